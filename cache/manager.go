package cache

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"reflect"
	"sync"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
	hex "github.com/tmthrgd/go-hex"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"
)

// DefaultMaxConcurrency caps how many backend calls a manager issues at
// once. A surge of concurrent cache reads queues on the semaphore instead
// of monopolizing scheduler resources or the backend's connection pool.
const DefaultMaxConcurrency = 64

// Manager is the orchestration core: it owns key construction, the entity
// and list read/write paths, model version tokens, singleflight
// coalescing, and the lazily constructed Region. One long-lived Manager
// per logical cache (typically one per application, or one per bind group
// in multi-database deployments); construct it at startup and inject it,
// do not recreate it per request.
//
// Every cache failure short of a coalesced creator's own error is absorbed
// here: reads degrade to misses, writes to no-ops, all logged. The
// surrounding application must behave identically with the cache fully
// degraded, just slower.
type Manager struct {
	cfg Config
	log *slog.Logger

	regionOnce sync.Once
	region     Region

	// versions caches the region's authoritative token per model. Reads
	// outside the region are an optimistic fast path; the region copy is
	// what other processes observe.
	versions *xsync.MapOf[string, string]

	flight    singleflight.Group // blocking Do callers
	flightCtx singleflight.Group // DoContext waiters
	sem       *semaphore.Weighted
}

// ManagerOption adjusts a Manager at construction time.
type ManagerOption func(*Manager)

// WithLogger routes the manager's degradation logging. Defaults to
// slog.Default().
func WithLogger(log *slog.Logger) ManagerOption {
	return func(m *Manager) { m.log = log }
}

// WithMaxConcurrency bounds concurrent backend calls. Defaults to
// DefaultMaxConcurrency.
func WithMaxConcurrency(n int64) ManagerOption {
	return func(m *Manager) { m.sem = semaphore.NewWeighted(n) }
}

// New constructs a Manager. The Region is not built here; it is created on
// first use and a construction failure degrades to a NullRegion rather
// than failing startup.
func New(cfg Config, opts ...ManagerOption) *Manager {
	m := &Manager{
		cfg:      cfg,
		log:      slog.Default(),
		versions: xsync.NewMapOf[string, string](),
		sem:      semaphore.NewWeighted(DefaultMaxConcurrency),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Config returns the manager's immutable configuration.
func (m *Manager) Config() Config { return m.cfg }

// Region returns the backing region, constructing it on first call. The
// constructed region is cached for the life of the manager.
func (m *Manager) Region() Region {
	m.regionOnce.Do(func() { m.region = m.createRegion() })
	return m.region
}

// createRegion resolves the region in strict order: explicit factory,
// disabled flag, registry lookup, native construction. Every failure path
// lands on the NullRegion so the application keeps running uncached.
func (m *Manager) createRegion() Region {
	if m.cfg.RegionFactory != nil {
		region, err := m.cfg.RegionFactory(m.cfg)
		if err != nil {
			m.log.Warn("cache region factory failed, caching disabled", "error", err)
			return NullRegion{}
		}
		return region
	}

	if !m.cfg.Enabled {
		return NullRegion{}
	}

	factory, ok := backendFactory(m.cfg.Backend)
	if !ok {
		m.log.Warn("cache backend not registered, caching disabled",
			"backend", m.cfg.Backend, "registered", Backends())
		return NullRegion{}
	}

	region, err := factory(m.cfg)
	if err != nil {
		m.log.Warn("cache backend construction failed, caching disabled",
			"backend", m.cfg.Backend, "error", err)
		return NullRegion{}
	}
	return region
}

// GetEntity reads the cached payload for (model, id) into dest, a pointer
// to the entity struct. It reports false on a miss, on a backend error, or
// on a corrupt payload; the corrupt case also deletes the key so the bad
// entry cannot recur on every request.
func (m *Manager) GetEntity(ctx context.Context, model, id string, dest any, opts ...KeyOption) bool {
	key := m.cfg.entityKey(model, id, applyKeyOptions(opts))
	data, ok := m.regionGet(ctx, key)
	if !ok {
		return false
	}
	if err := m.deserialize(data, dest); err != nil {
		m.log.Warn("discarding corrupt cache payload", "key", key, "error", err)
		m.regionDelete(ctx, key)
		return false
	}
	return true
}

// SetEntity serializes and stores an entity snapshot. Failures are logged
// and swallowed; a cache write must never fail the caller's primary path.
func (m *Manager) SetEntity(ctx context.Context, model, id string, entity any, opts ...KeyOption) {
	data, err := m.serialize(entity)
	if err != nil {
		m.log.Warn("cache serialize failed, skipping write", "model", model, "id", id, "error", err)
		return
	}
	m.regionSet(ctx, m.cfg.entityKey(model, id, applyKeyOptions(opts)), data)
}

// InvalidateEntity removes the cached payload for (model, id). Call it
// after any create, update, or delete touching that row.
func (m *Manager) InvalidateEntity(ctx context.Context, model, id string, opts ...KeyOption) {
	m.regionDelete(ctx, m.cfg.entityKey(model, id, applyKeyOptions(opts)))
}

// listEnvelope is the stored form of a list+count entry.
type listEnvelope struct {
	Items []string `json:"items"`
	Count int      `json:"count"`
}

// SetList stores a slice of entities under a caller-constructed key. The
// key should embed the model's current version token so a bump orphans it.
// The payload is a JSON array of base64-encoded per-item payloads; base64
// keeps the item encoding uniform regardless of what bytes the serializer
// produced.
func (m *Manager) SetList(ctx context.Context, key string, entities any) {
	items, err := m.encodeItems(entities)
	if err != nil {
		m.log.Warn("cache list serialize failed, skipping write", "key", key, "error", err)
		return
	}
	data, err := json.Marshal(items)
	if err != nil {
		m.log.Warn("cache list serialize failed, skipping write", "key", key, "error", err)
		return
	}
	m.regionSet(ctx, m.cfg.listKey(key), data)
}

// GetList reads a cached list into dest, a pointer to a slice of the
// entity type. Decode failures behave like entity decode failures: the
// entry is deleted and the call reports a miss.
func (m *Manager) GetList(ctx context.Context, key string, dest any) bool {
	full := m.cfg.listKey(key)
	data, ok := m.regionGet(ctx, full)
	if !ok {
		return false
	}
	var items []string
	if err := json.Unmarshal(data, &items); err != nil {
		m.log.Warn("discarding corrupt cache list", "key", full, "error", err)
		m.regionDelete(ctx, full)
		return false
	}
	if err := m.decodeItems(items, dest); err != nil {
		m.log.Warn("discarding corrupt cache list", "key", full, "error", err)
		m.regionDelete(ctx, full)
		return false
	}
	return true
}

// SetListAndCount stores a page of entities together with the total count
// of the unpaginated query, for "list + total" endpoints.
func (m *Manager) SetListAndCount(ctx context.Context, key string, entities any, count int) {
	items, err := m.encodeItems(entities)
	if err != nil {
		m.log.Warn("cache list serialize failed, skipping write", "key", key, "error", err)
		return
	}
	data, err := json.Marshal(listEnvelope{Items: items, Count: count})
	if err != nil {
		m.log.Warn("cache list serialize failed, skipping write", "key", key, "error", err)
		return
	}
	m.regionSet(ctx, m.cfg.listKey(key), data)
}

// GetListAndCount reads a cached page and its total count into dest.
func (m *Manager) GetListAndCount(ctx context.Context, key string, dest any) (int, bool) {
	full := m.cfg.listKey(key)
	data, ok := m.regionGet(ctx, full)
	if !ok {
		return 0, false
	}
	var envelope listEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		m.log.Warn("discarding corrupt cache list", "key", full, "error", err)
		m.regionDelete(ctx, full)
		return 0, false
	}
	if err := m.decodeItems(envelope.Items, dest); err != nil {
		m.log.Warn("discarding corrupt cache list", "key", full, "error", err)
		m.regionDelete(ctx, full)
		return 0, false
	}
	return envelope.Count, true
}

// ModelVersion returns the model's current version token: the in-process
// copy when present, the region's durable copy otherwise (backfilling the
// in-process map), and "0" when the model has never been bumped anywhere.
func (m *Manager) ModelVersion(ctx context.Context, model string) string {
	if v, ok := m.versions.Load(model); ok {
		return v
	}
	if data, ok := m.regionGet(ctx, m.cfg.versionKey(model)); ok && len(data) > 0 {
		v := string(data)
		m.versions.Store(model, v)
		return v
	}
	return initialVersion
}

// BumpModelVersion generates a fresh random token for the model and writes
// it to the in-process map and the region. This is the whole invalidation
// mechanism for list caches: every previously cached list key embedding
// the old token is silently orphaned (never looked up again; evicted by
// the backend's TTL in its own time).
func (m *Manager) BumpModelVersion(ctx context.Context, model string) string {
	u := uuid.New()
	token := hex.EncodeToString(u[:])
	m.versions.Store(model, token)
	m.regionSet(ctx, m.cfg.versionKey(model), []byte(token))
	return token
}

// InvalidateAll clears the region's entire backing store and the
// in-process version map. This is backend-wide, not prefix-scoped:
// applications sharing a backend must not rely on it for isolation.
func (m *Manager) InvalidateAll(ctx context.Context) {
	if err := m.sem.Acquire(ctx, 1); err != nil {
		return
	}
	defer m.sem.Release(1)
	if err := m.Region().Invalidate(ctx); err != nil {
		m.log.Warn("cache invalidate failed", "error", err)
	}
	m.versions.Clear()
}

func (m *Manager) serialize(entity any) ([]byte, error) {
	if m.cfg.Serializer != nil {
		return m.cfg.Serializer(entity)
	}
	return SerializeEntity(entity)
}

func (m *Manager) deserialize(data []byte, dest any) error {
	if m.cfg.Deserializer != nil {
		return m.cfg.Deserializer(data, dest)
	}
	return DeserializeEntity(data, dest)
}

// encodeItems serializes each element of a slice and base64-encodes the
// results.
func (m *Manager) encodeItems(entities any) ([]string, error) {
	rv := reflect.ValueOf(entities)
	for rv.Kind() == reflect.Ptr {
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("cache: list payload must be a slice, got %T", entities)
	}
	items := make([]string, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		data, err := m.serialize(rv.Index(i).Interface())
		if err != nil {
			return nil, fmt.Errorf("cache: item %d: %w", i, err)
		}
		items[i] = base64.StdEncoding.EncodeToString(data)
	}
	return items, nil
}

// decodeItems rebuilds a slice of entities from base64-encoded payloads.
// dest must be a pointer to a slice of the entity type.
func (m *Manager) decodeItems(items []string, dest any) error {
	rv := reflect.ValueOf(dest)
	if rv.Kind() != reflect.Ptr || rv.IsNil() || rv.Elem().Kind() != reflect.Slice {
		return fmt.Errorf("cache: list target must be a pointer to slice, got %T", dest)
	}
	slice := rv.Elem()
	elemType := slice.Type().Elem()

	out := reflect.MakeSlice(slice.Type(), 0, len(items))
	for i, item := range items {
		data, err := base64.StdEncoding.DecodeString(item)
		if err != nil {
			return corruptf("item %d: invalid base64: %v", i, err)
		}
		elem := reflect.New(elemType)
		target := elem.Interface()
		if elemType.Kind() == reflect.Ptr {
			inner := reflect.New(elemType.Elem())
			elem.Elem().Set(inner)
			target = inner.Interface()
		}
		if err := m.deserialize(data, target); err != nil {
			return fmt.Errorf("cache: item %d: %w", i, err)
		}
		out = reflect.Append(out, elem.Elem())
	}
	slice.Set(out)
	return nil
}

// regionGet fetches a raw payload, converting backend errors to misses.
func (m *Manager) regionGet(ctx context.Context, key string) ([]byte, bool) {
	if err := m.sem.Acquire(ctx, 1); err != nil {
		return nil, false
	}
	defer m.sem.Release(1)
	data, ok, err := m.Region().Get(ctx, key)
	if err != nil {
		m.log.Warn("cache get failed", "key", key, "error", err)
		return nil, false
	}
	return data, ok
}

// regionSet stores a raw payload with the configured default expiration,
// converting backend errors to no-ops.
func (m *Manager) regionSet(ctx context.Context, key string, data []byte) {
	if err := m.sem.Acquire(ctx, 1); err != nil {
		return
	}
	defer m.sem.Release(1)
	if err := m.Region().Set(ctx, key, data, 0); err != nil {
		m.log.Warn("cache set failed", "key", key, "error", err)
	}
}

// regionDelete removes a key, converting backend errors to no-ops.
func (m *Manager) regionDelete(ctx context.Context, key string) {
	if err := m.sem.Acquire(ctx, 1); err != nil {
		return
	}
	defer m.sem.Release(1)
	if err := m.Region().Delete(ctx, key); err != nil {
		m.log.Warn("cache delete failed", "key", key, "error", err)
	}
}

// GetEntity is the type-safe read wrapper: it allocates a fresh *T and
// reports whether the cache populated it. T may itself be a pointer type
// (repositories are commonly parameterized over *Model); the inner struct
// is allocated as needed.
func GetEntity[T any](ctx context.Context, m *Manager, model, id string, opts ...KeyOption) (*T, bool) {
	entity := new(T)
	target := any(entity)
	if rv := reflect.ValueOf(entity).Elem(); rv.Kind() == reflect.Ptr {
		inner := reflect.New(rv.Type().Elem())
		rv.Set(inner)
		target = inner.Interface()
	}
	if !m.GetEntity(ctx, model, id, target, opts...) {
		return nil, false
	}
	return entity, true
}

// GetList is the type-safe list read wrapper.
func GetList[T any](ctx context.Context, m *Manager, key string) ([]T, bool) {
	var entities []T
	if !m.GetList(ctx, key, &entities) {
		return nil, false
	}
	return entities, true
}

// GetListAndCount is the type-safe list+count read wrapper.
func GetListAndCount[T any](ctx context.Context, m *Manager, key string) ([]T, int, bool) {
	var entities []T
	count, ok := m.GetListAndCount(ctx, key, &entities)
	if !ok {
		return nil, 0, false
	}
	return entities, count, true
}
