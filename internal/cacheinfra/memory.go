package cacheinfra

import (
	"context"
	"time"

	"github.com/viccon/sturdyc"
)

// NeverExpire is the TTL used when the caller asked for no expiration.
// sturdyc has no "keep forever" mode, so we use a horizon long past any
// realistic process lifetime.
const NeverExpire = 10 * 365 * 24 * time.Hour

// MemoryConfig holds the configuration for the sturdyc-backed region.
type MemoryConfig struct {
	// Capacity defines the maximum number of entries the cache can store.
	// Must be greater than 0.
	Capacity int

	// NumShards determines the number of cache shards for concurrent
	// access. Higher values improve concurrency but increase memory
	// overhead. Must be greater than 0.
	NumShards int

	// TTL is the time-to-live for cached entries. sturdyc applies it
	// client-wide; per-call TTL overrides are not supported by this
	// backend. Must be greater than 0.
	TTL time.Duration

	// EvictionPercentage specifies what percentage of entries to evict
	// when the cache reaches capacity. Must be between 1-100.
	EvictionPercentage int

	// EarlyRefresh configures stampede-avoiding early refresh for hot
	// entries. Nil disables it.
	EarlyRefresh *EarlyRefreshConfig

	// MissingRecordStorage remembers keys whose creator returned no
	// result, preventing repeated source fetches for absent records.
	MissingRecordStorage bool

	// EvictionInterval sets how often expired entries are collected.
	// Zero uses sturdyc's default interval.
	EvictionInterval time.Duration
}

// EarlyRefreshConfig configures early refresh behavior. Early refresh
// renews frequently accessed entries before they expire so hot keys never
// stampede the source on expiry.
type EarlyRefreshConfig struct {
	MinAsyncRefreshTime time.Duration
	MaxAsyncRefreshTime time.Duration
	SyncRefreshTime     time.Duration
	RetryBaseDelay      time.Duration
}

// DefaultMemoryConfig returns a MemoryConfig with sensible defaults.
func DefaultMemoryConfig() MemoryConfig {
	return MemoryConfig{
		Capacity:             10000,
		NumShards:            256,
		TTL:                  5 * time.Minute,
		EvictionPercentage:   10,
		MissingRecordStorage: false,
	}
}

// Validate checks the configuration values.
func (c MemoryConfig) Validate() error {
	if c.Capacity <= 0 {
		return &ConfigError{Field: "Capacity", Message: "must be greater than 0"}
	}
	if c.NumShards <= 0 {
		return &ConfigError{Field: "NumShards", Message: "must be greater than 0"}
	}
	if c.TTL <= 0 {
		return &ConfigError{Field: "TTL", Message: "must be greater than 0"}
	}
	if c.EvictionPercentage < 1 || c.EvictionPercentage > 100 {
		return &ConfigError{Field: "EvictionPercentage", Message: "must be between 1 and 100"}
	}
	return nil
}

// options maps the config onto sturdyc options. Capacity, NumShards, TTL,
// and EvictionPercentage go to the constructor directly.
func (c MemoryConfig) options() []sturdyc.Option {
	var options []sturdyc.Option

	if c.EarlyRefresh != nil {
		options = append(options, sturdyc.WithEarlyRefreshes(
			c.EarlyRefresh.MinAsyncRefreshTime,
			c.EarlyRefresh.MaxAsyncRefreshTime,
			c.EarlyRefresh.SyncRefreshTime,
			c.EarlyRefresh.RetryBaseDelay,
		))
	}
	if c.MissingRecordStorage {
		options = append(options, sturdyc.WithMissingRecordStorage())
	}
	if c.EvictionInterval > 0 {
		options = append(options, sturdyc.WithEvictionInterval(c.EvictionInterval))
	}

	return options
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return "config error in field " + e.Field + ": " + e.Message
}

// MemoryRegion is an in-process region backed by a sturdyc client.
// GetOrCreate inherits sturdyc's in-flight deduplication, so concurrent
// creators for the same key collapse to one source fetch within the
// process.
type MemoryRegion struct {
	client *sturdyc.Client[[]byte]
}

// NewMemoryRegion validates the configuration and builds the region.
//
// Version compatibility note: this assumes the sturdyc v1.x API. Monitor
// sturdyc upgrades for option mapping changes.
func NewMemoryRegion(cfg MemoryConfig) (*MemoryRegion, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := sturdyc.New[[]byte](
		cfg.Capacity,
		cfg.NumShards,
		cfg.TTL,
		cfg.EvictionPercentage,
		cfg.options()...,
	)

	return &MemoryRegion{client: client}, nil
}

// Get returns the payload stored at key, or ok=false on miss.
func (r *MemoryRegion) Get(_ context.Context, key string) ([]byte, bool, error) {
	value, ok := r.client.Get(key)
	return value, ok, nil
}

// GetOrCreate returns the payload at key, running creator on a miss.
// sturdyc deduplicates concurrent in-process creators for the same key.
func (r *MemoryRegion) GetOrCreate(ctx context.Context, key string, creator func(ctx context.Context) ([]byte, error), _ time.Duration) ([]byte, error) {
	return r.client.GetOrFetch(ctx, key, func(ctx context.Context) ([]byte, error) {
		return creator(ctx)
	})
}

// Set stores the payload at key. The per-call TTL is ignored; sturdyc
// expires entries on the client-wide TTL.
func (r *MemoryRegion) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	r.client.Set(key, value)
	return nil
}

// Delete removes key.
func (r *MemoryRegion) Delete(_ context.Context, key string) error {
	r.client.Delete(key)
	return nil
}

// Invalidate clears every entry in the client.
func (r *MemoryRegion) Invalidate(_ context.Context) error {
	for _, key := range r.client.ScanKeys() {
		r.client.Delete(key)
	}
	return nil
}
