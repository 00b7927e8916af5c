package middleware_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/autopilot/pkg/adapters/memory"
	"github.com/aretw0/autopilot/pkg/domain"
	"github.com/aretw0/autopilot/pkg/persistence/middleware"
)

func TestRedactionMiddleware_MasksSnapshots(t *testing.T) {
	underlying := memory.NewStore()
	mw, err := middleware.NewRedactionMiddleware([]string{"token", "password"})
	require.NoError(t, err)
	store := mw(underlying)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, domain.KeyLoginToken, "tok-123"))
	require.NoError(t, store.Set(ctx, domain.KeyCurrentTask, "publish a post"))

	all, err := store.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, middleware.Mask, all[domain.KeyLoginToken])
	assert.Equal(t, "publish a post", all[domain.KeyCurrentTask])

	// single-key reads and the backend keep the real value
	val, err := store.Get(ctx, domain.KeyLoginToken)
	require.NoError(t, err)
	assert.Equal(t, "tok-123", val)
	raw, err := underlying.Get(ctx, domain.KeyLoginToken)
	require.NoError(t, err)
	assert.Equal(t, "tok-123", raw)
}

func TestRedactionMiddleware_InvalidPattern(t *testing.T) {
	_, err := middleware.NewRedactionMiddleware([]string{"("})
	assert.Error(t, err)
}

func TestChain_Order(t *testing.T) {
	underlying := memory.NewStore()
	enc, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	require.NoError(t, err)
	redact, err := middleware.NewRedactionMiddleware([]string{"token"})
	require.NoError(t, err)

	store := middleware.Chain(underlying, redact, enc)
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, domain.KeyLoginToken, "tok-123"))
	require.NoError(t, store.Set(ctx, domain.KeyNextStep, "list posts"))

	all, err := store.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, middleware.Mask, all[domain.KeyLoginToken])
	assert.Equal(t, "list posts", all[domain.KeyNextStep])
}
