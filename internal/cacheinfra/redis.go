package cacheinfra

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds the configuration for the go-redis backed region.
type RedisConfig struct {
	// Addr is the host:port of the redis server.
	Addr string

	// Password authenticates the connection. Empty for no auth.
	Password string

	// DB selects the logical redis database.
	DB int

	// TTL is the default expiration applied by Set when the caller does
	// not override it. Zero persists keys until redis evicts them.
	TTL time.Duration

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int
	MinIdleConns int

	// Client, when set, is used directly and the connection settings
	// above are ignored. The caller owns its lifecycle.
	Client *redis.Client
}

// DefaultRedisConfig returns connection settings suitable for a local
// redis instance.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		TTL:          5 * time.Minute,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 5,
	}
}

// RedisRegion is a region backed by a redis server. Unlike the in-memory
// backend, GetOrCreate has no cross-client locking: two processes missing
// at once both run their creator. Per-process coalescing belongs to the
// manager's singleflight layer.
type RedisRegion struct {
	client    *redis.Client
	ttl       time.Duration
	ownClient bool
}

// NewRedisRegion connects to redis and verifies the connection with a
// ping, so a misconfigured backend is caught at construction time (where
// the manager degrades to the null region) rather than on first use.
func NewRedisRegion(cfg RedisConfig) (*RedisRegion, error) {
	if cfg.Client != nil {
		return &RedisRegion{client: cfg.Client, ttl: cfg.TTL}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("cacheinfra: redis ping failed: %w", err)
	}

	return &RedisRegion{client: client, ttl: cfg.TTL, ownClient: true}, nil
}

// Get returns the payload stored at key, or ok=false on miss.
func (r *RedisRegion) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cacheinfra: redis get: %w", err)
	}
	return data, true, nil
}

// GetOrCreate reads key, running creator and storing its result on a
// miss. The read-create-write sequence is not atomic across processes.
func (r *RedisRegion) GetOrCreate(ctx context.Context, key string, creator func(ctx context.Context) ([]byte, error), ttl time.Duration) ([]byte, error) {
	data, ok, err := r.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if ok {
		return data, nil
	}
	data, err = creator(ctx)
	if err != nil {
		return nil, err
	}
	if err := r.Set(ctx, key, data, ttl); err != nil {
		return nil, err
	}
	return data, nil
}

// Set stores the payload at key. ttl <= 0 falls back to the configured
// default.
func (r *RedisRegion) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = r.ttl
	}
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("cacheinfra: redis set: %w", err)
	}
	return nil
}

// Delete removes key.
func (r *RedisRegion) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("cacheinfra: redis del: %w", err)
	}
	return nil
}

// Invalidate flushes the selected redis database. This clears everything
// in the database, including keys written by other applications.
func (r *RedisRegion) Invalidate(ctx context.Context) error {
	if err := r.client.FlushDB(ctx).Err(); err != nil {
		return fmt.Errorf("cacheinfra: redis flushdb: %w", err)
	}
	return nil
}

// Close releases the connection when this region opened it. A region
// handed an external client leaves its lifecycle to the caller.
func (r *RedisRegion) Close() error {
	if !r.ownClient {
		return nil
	}
	return r.client.Close()
}
