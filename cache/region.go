package cache

import (
	"context"
	"sort"
	"sync"
	"time"
)

// CreatorFn produces the value for a key on a cache miss. It is the
// "source of truth" fetch the region falls back to in GetOrCreate.
type CreatorFn = func(ctx context.Context) ([]byte, error)

// Region is the minimal capability a cache backend must provide.
// Values are opaque byte payloads; a miss is reported through the ok
// return, never through a nil value, so a legitimately empty payload
// stays distinguishable from "not present".
//
// Contract:
//   - Concurrency: implementations must be safe for concurrent use.
//   - Get never conflates miss and error; (nil, false, nil) is a clean miss.
//   - Invalidate clears the entire backing store the region is bound to,
//     not just keys written through this region. Callers sharing a backend
//     across applications must not rely on it for namespace isolation.
type Region interface {
	// Get returns the payload stored at key, or ok=false on miss.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// GetOrCreate returns the payload at key, invoking creator on a miss
	// and storing its result with the given TTL. Whether concurrent
	// creators for the same key are collapsed is a property of the
	// specific backend, not a generic guarantee; see Manager.Do for
	// per-process coalescing that holds regardless of backend.
	GetOrCreate(ctx context.Context, key string, creator func(ctx context.Context) ([]byte, error), ttl time.Duration) ([]byte, error)

	// Set stores the payload at key. A ttl <= 0 means the region's
	// configured default expiration.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key. Idempotent; deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Invalidate clears the whole backing store.
	Invalidate(ctx context.Context) error
}

// RegionFactory builds a Region from a Config. Supplying one on Config
// bypasses the backend registry entirely, letting callers plug in any
// implementation without registering it.
type RegionFactory func(cfg Config) (Region, error)

var (
	backendsMu sync.RWMutex
	backends   = map[string]RegionFactory{}
)

// RegisterBackend makes a backend constructor available under name.
// Registration typically happens from an init function; registering the
// same name twice replaces the earlier factory.
func RegisterBackend(name string, factory RegionFactory) {
	backendsMu.Lock()
	defer backendsMu.Unlock()
	backends[name] = factory
}

// Backends returns the sorted names of all registered backends.
func Backends() []string {
	backendsMu.RLock()
	defer backendsMu.RUnlock()
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func backendFactory(name string) (RegionFactory, bool) {
	backendsMu.RLock()
	defer backendsMu.RUnlock()
	factory, ok := backends[name]
	return factory, ok
}
