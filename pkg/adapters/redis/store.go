package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/autopilot/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// Store implements ports.KVStore on a single Redis hash.
// All execution state lives under one key so Clear is a single DEL.
type Store struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

type Option func(*Store)

// WithTTL sets the expiration of the state hash. It is refreshed on every write.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix for the state hash.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New creates a new Redis store with options.
func New(address, password string, db int, opts ...Option) *Store {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a new Redis store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: "autopilot:",
		ttl:    0, // No expiration by default
	}

	for _, opt := range opts {
		opt(store)
	}

	return store
}

func (s *Store) hashKey() string {
	return s.prefix + "state"
}

// Get reads one field of the state hash.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	val, err := s.client.HGet(ctx, s.hashKey(), key).Result()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return "", domain.ErrKeyNotFound
		}
		return "", fmt.Errorf("failed to get from redis: %w", err)
	}
	return val, nil
}

// Set writes one field and refreshes the TTL when configured.
func (s *Store) Set(ctx context.Context, key, value string) error {
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, s.hashKey(), key, value)
	if s.ttl > 0 {
		pipe.Expire(ctx, s.hashKey(), s.ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save to redis: %w", err)
	}
	return nil
}

// Delete removes fields from the state hash.
func (s *Store) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.HDel(ctx, s.hashKey(), keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete from redis: %w", err)
	}
	return nil
}

// Clear drops the whole state hash.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.hashKey()).Err(); err != nil {
		return fmt.Errorf("failed to clear redis state: %w", err)
	}
	return nil
}

// All returns every field of the state hash.
func (s *Store) All(ctx context.Context) (map[string]string, error) {
	vals, err := s.client.HGetAll(ctx, s.hashKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read redis state: %w", err)
	}
	return vals, nil
}

// Ping checks connectivity with the server.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}
