package ports

import "context"

// KVStore defines the raw storage behind the execution state.
// Implementations must make every mutation visible to the next read from any goroutine.
type KVStore interface {
	// Get returns the value for key.
	// Returns domain.ErrKeyNotFound if the key does not exist.
	Get(ctx context.Context, key string) (string, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error

	// Delete removes the given keys. Missing keys are ignored.
	Delete(ctx context.Context, keys ...string) error

	// Clear removes every key owned by the store.
	Clear(ctx context.Context) error

	// All returns a copy of every key/value pair.
	All(ctx context.Context) (map[string]string, error)
}
