package ports

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/aretw0/autopilot/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunKVStoreContract runs a suite of tests to verify that a KVStore implementation
// adheres to the defined interface contract.
func RunKVStoreContract(t *testing.T, store KVStore) {
	ctx := context.Background()

	t.Run("Set and Get", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "current_task", "publish a post"))

		val, err := store.Get(ctx, "current_task")
		require.NoError(t, err)
		assert.Equal(t, "publish a post", val)
	})

	t.Run("Overwrite", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "current_step", "1"))
		require.NoError(t, store.Set(ctx, "current_step", "2"))

		val, err := store.Get(ctx, "current_step")
		require.NoError(t, err)
		assert.Equal(t, "2", val)
	})

	t.Run("Get Non-Existent", func(t *testing.T) {
		_, err := store.Get(ctx, "missing-key")
		assert.ErrorIs(t, err, domain.ErrKeyNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "a", "1"))
		require.NoError(t, store.Set(ctx, "b", "2"))

		require.NoError(t, store.Delete(ctx, "a", "b", "never-set"))

		_, err := store.Get(ctx, "a")
		assert.ErrorIs(t, err, domain.ErrKeyNotFound)
		_, err = store.Get(ctx, "b")
		assert.ErrorIs(t, err, domain.ErrKeyNotFound)
	})

	t.Run("All returns a copy", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "snap", "v"))

		all, err := store.All(ctx)
		require.NoError(t, err)
		assert.Equal(t, "v", all["snap"])

		all["snap"] = "mutated"
		val, err := store.Get(ctx, "snap")
		require.NoError(t, err)
		assert.Equal(t, "v", val)
	})

	t.Run("Clear", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "current_task", "x"))
		require.NoError(t, store.Clear(ctx))

		_, err := store.Get(ctx, "current_task")
		assert.ErrorIs(t, err, domain.ErrKeyNotFound)

		all, err := store.All(ctx)
		require.NoError(t, err)
		assert.Empty(t, all)
	})

	t.Run("Concurrent writers", func(t *testing.T) {
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				key := fmt.Sprintf("k%d", i)
				assert.NoError(t, store.Set(ctx, key, key))
				_, _ = store.All(ctx)
			}(i)
		}
		wg.Wait()

		for i := 0; i < 20; i++ {
			key := fmt.Sprintf("k%d", i)
			val, err := store.Get(ctx, key)
			require.NoError(t, err)
			assert.Equal(t, key, val)
		}
		require.NoError(t, store.Clear(ctx))
	})
}
