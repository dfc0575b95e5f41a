package persist

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

// RedisClient defines the Redis operations the store needs.
// This interface is compatible with github.com/redis/go-redis/v9.
type RedisClient interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) RedisStatusCmd
	Get(ctx context.Context, key string) RedisStringCmd
	Del(ctx context.Context, keys ...string) RedisIntCmd
}

// RedisStatusCmd represents a Redis status command result.
type RedisStatusCmd interface {
	Err() error
}

// RedisStringCmd represents a Redis string command result.
type RedisStringCmd interface {
	Bytes() ([]byte, error)
	Err() error
}

// RedisIntCmd represents a Redis int command result.
type RedisIntCmd interface {
	Err() error
}

// ErrRedisNil is returned when a key doesn't exist in Redis.
// This should match redis.Nil from go-redis.
var ErrRedisNil = errors.New("redis: nil")

// RedisStore persists snapshots in Redis. It is suitable for
// multi-server deployments that share one snapshot.
type RedisStore struct {
	client RedisClient
	key    string
	closed atomic.Bool
}

// RedisStoreOption configures RedisStore behavior.
type RedisStoreOption func(*redisStoreConfig)

type redisStoreConfig struct {
	key string
}

// WithRedisKey sets the Redis key the snapshot is stored under.
// Default: "optimist:snapshot".
func WithRedisKey(key string) RedisStoreOption {
	return func(c *redisStoreConfig) {
		c.key = key
	}
}

// NewRedisStore creates a Redis-backed snapshot store.
func NewRedisStore(client RedisClient, opts ...RedisStoreOption) *RedisStore {
	cfg := &redisStoreConfig{
		key: "optimist:snapshot",
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return &RedisStore{
		client: client,
		key:    cfg.key,
	}
}

// Save encodes the snapshot and stores it without expiration.
func (r *RedisStore) Save(ctx context.Context, s *Snapshot) error {
	if r.closed.Load() {
		return ErrStoreClosed
	}

	data, err := Encode(s)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.key, data, 0).Err()
}

// Load retrieves and decodes the stored snapshot.
func (r *RedisStore) Load(ctx context.Context) (*Snapshot, error) {
	if r.closed.Load() {
		return nil, ErrStoreClosed
	}

	data, err := r.client.Get(ctx, r.key).Bytes()
	if err != nil {
		// go-redis reports a missing key through its Nil error.
		if err.Error() == ErrRedisNil.Error() {
			return nil, ErrNoSnapshot
		}
		return nil, err
	}

	return Decode(data)
}

// Close marks the store as closed.
// Note: this does not close the underlying Redis client,
// as it may be shared with other components.
func (r *RedisStore) Close() error {
	r.closed.Store(true)
	return nil
}

// Key returns the Redis key in use.
// This is for testing/debugging purposes.
func (r *RedisStore) Key() string {
	return r.key
}
