package repositorycache

import (
	"context"
	"fmt"
	"reflect"

	"github.com/goliatone/go-entity-cache/cache"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// Interface assertion to ensure CachedRepository implements Repository[T]
var _ repository.Repository[any] = (*CachedRepository[any])(nil)

// listResult wraps the tuple result from List operations so a single
// coalesced fetch can carry both values.
type listResult[T any] struct {
	Records []T
	Total   int
}

// CachedRepository decorates a base repository with read-through caching
// and write-path invalidation. Reads go through the cache manager's entity
// and list keys; every successful write invalidates the affected entity
// key and bumps the model's version token, which orphans all cached lists
// for the model. This is the commit hook surface: rather than sniffing ORM
// events, callers route writes through the decorator and invalidation
// happens at the same point the write succeeds.
type CachedRepository[T any] struct {
	base       repository.Repository[T]
	manager    *cache.Manager
	serializer cache.KeySerializer
	model      string
	bindGroup  string
}

// Option adjusts a CachedRepository at construction time.
type Option[T any] func(*CachedRepository[T])

// WithModelName overrides the model segment of every cache key. The
// default is the pluralized snake_case of T's type name.
func WithModelName[T any](name string) Option[T] {
	return func(c *CachedRepository[T]) { c.model = name }
}

// WithDefaultBindGroup scopes this repository's keys to a database bind.
// A bind group carried on the request context takes precedence.
func WithDefaultBindGroup[T any](group string) Option[T] {
	return func(c *CachedRepository[T]) { c.bindGroup = group }
}

// New creates a CachedRepository that wraps base with caching through the
// provided manager.
func New[T any](base repository.Repository[T], manager *cache.Manager, serializer cache.KeySerializer, opts ...Option[T]) *CachedRepository[T] {
	c := &CachedRepository[T]{
		base:       base,
		manager:    manager,
		serializer: serializer,
		model:      cache.ModelName[T](),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Model returns the model name this repository keys its cache entries under.
func (c *CachedRepository[T]) Model() string { return c.model }

// keyOpts resolves the effective bind group for this call.
func (c *CachedRepository[T]) keyOpts(ctx context.Context) []cache.KeyOption {
	group := bindGroupFromContext(ctx)
	if group == "" {
		group = c.bindGroup
	}
	if group == "" {
		return nil
	}
	return []cache.KeyOption{cache.WithBindGroup(group)}
}

// flightKey namespaces singleflight slots per model and operation.
func (c *CachedRepository[T]) flightKey(parts ...any) string {
	return c.model + ":" + c.serializer.SerializeKey("flight", parts...)
}

// GetByID retrieves a record by ID, serving from cache when possible.
// Only criteria-free lookups are cached: criteria can reshape the row
// (joins, column subsets) and a reshaped row must not shadow the plain
// entity payload.
func (c *CachedRepository[T]) GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (T, error) {
	if len(criteria) > 0 {
		return c.base.GetByID(ctx, id, criteria...)
	}

	opts := c.keyOpts(ctx)
	if record, ok := cache.GetEntity[T](ctx, c.manager, c.model, id, opts...); ok {
		return *record, nil
	}

	record, err := cache.DoContext(ctx, c.manager, c.flightKey("GetByID", id), func(ctx context.Context) (T, error) {
		return c.base.GetByID(ctx, id, criteria...)
	})
	if err != nil {
		return record, err
	}
	c.manager.SetEntity(ctx, c.model, id, record, opts...)
	return record, nil
}

// GetByIdentifier retrieves a record by a secondary identifier. The result
// is cached under the record's primary ID so subsequent GetByID calls hit.
func (c *CachedRepository[T]) GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (T, error) {
	record, err := cache.DoContext(ctx, c.manager, c.flightKey("GetByIdentifier", identifier), func(ctx context.Context) (T, error) {
		return c.base.GetByIdentifier(ctx, identifier, criteria...)
	})
	if err != nil {
		return record, err
	}
	if len(criteria) == 0 {
		c.cacheRecord(ctx, record)
	}
	return record, nil
}

// Get retrieves a single record by criteria. Criteria lookups are
// coalesced but not stored: there is no stable entity key for an arbitrary
// predicate, so only the fetched record itself is primed under its ID.
func (c *CachedRepository[T]) Get(ctx context.Context, criteria ...repository.SelectCriteria) (T, error) {
	record, err := cache.DoContext(ctx, c.manager, c.flightKey("Get", criteria), func(ctx context.Context) (T, error) {
		return c.base.Get(ctx, criteria...)
	})
	if err != nil {
		return record, err
	}
	c.cacheRecord(ctx, record)
	return record, nil
}

// List retrieves records and the unpaginated total, cached under a key
// embedding the model's current version token.
func (c *CachedRepository[T]) List(ctx context.Context, criteria ...repository.SelectCriteria) ([]T, int, error) {
	version := c.manager.ModelVersion(ctx, c.model)
	key := cache.ListKey(c.serializer, c.model, version, "List", criteria)

	if records, total, ok := cache.GetListAndCount[T](ctx, c.manager, key); ok {
		return records, total, nil
	}

	res, err := cache.DoContext(ctx, c.manager, key, func(ctx context.Context) (listResult[T], error) {
		records, total, err := c.base.List(ctx, criteria...)
		return listResult[T]{Records: records, Total: total}, err
	})
	if err != nil {
		return nil, 0, err
	}
	c.manager.SetListAndCount(ctx, key, res.Records, res.Total)
	return res.Records, res.Total, nil
}

// Count returns the number of records matching the criteria. Counts share
// the list cache machinery: the entry is stored as an empty page with a
// total, under a version-token key like any other list.
func (c *CachedRepository[T]) Count(ctx context.Context, criteria ...repository.SelectCriteria) (int, error) {
	version := c.manager.ModelVersion(ctx, c.model)
	key := cache.ListKey(c.serializer, c.model, version, "Count", criteria)

	if _, total, ok := cache.GetListAndCount[T](ctx, c.manager, key); ok {
		return total, nil
	}

	total, err := cache.DoContext(ctx, c.manager, key, func(ctx context.Context) (int, error) {
		return c.base.Count(ctx, criteria...)
	})
	if err != nil {
		return 0, err
	}
	c.manager.SetListAndCount(ctx, key, []T{}, total)
	return total, nil
}

// Create creates a new record and bumps the model version so cached lists
// and counts stop matching.
func (c *CachedRepository[T]) Create(ctx context.Context, record T, criteria ...repository.InsertCriteria) (T, error) {
	result, err := c.base.Create(ctx, record, criteria...)
	if err == nil {
		c.invalidateRecord(ctx, result)
	}
	return result, err
}

// CreateTx creates a new record within a transaction.
func (c *CachedRepository[T]) CreateTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.InsertCriteria) (T, error) {
	result, err := c.base.CreateTx(ctx, tx, record, criteria...)
	if err == nil {
		c.invalidateRecord(ctx, result)
	}
	return result, err
}

// CreateMany creates multiple records.
func (c *CachedRepository[T]) CreateMany(ctx context.Context, records []T, criteria ...repository.InsertCriteria) ([]T, error) {
	result, err := c.base.CreateMany(ctx, records, criteria...)
	if err == nil {
		c.invalidateRecords(ctx, result)
	}
	return result, err
}

// CreateManyTx creates multiple records within a transaction.
func (c *CachedRepository[T]) CreateManyTx(ctx context.Context, tx bun.IDB, records []T, criteria ...repository.InsertCriteria) ([]T, error) {
	result, err := c.base.CreateManyTx(ctx, tx, records, criteria...)
	if err == nil {
		c.invalidateRecords(ctx, result)
	}
	return result, err
}

// GetOrCreate gets a record or creates it if it doesn't exist.
func (c *CachedRepository[T]) GetOrCreate(ctx context.Context, record T) (T, error) {
	result, err := c.base.GetOrCreate(ctx, record)
	if err == nil {
		// May have created; invalidate as if it did.
		c.invalidateRecord(ctx, result)
	}
	return result, err
}

// GetOrCreateTx gets a record or creates it within a transaction.
func (c *CachedRepository[T]) GetOrCreateTx(ctx context.Context, tx bun.IDB, record T) (T, error) {
	result, err := c.base.GetOrCreateTx(ctx, tx, record)
	if err == nil {
		c.invalidateRecord(ctx, result)
	}
	return result, err
}

// Update updates a record.
func (c *CachedRepository[T]) Update(ctx context.Context, record T, criteria ...repository.UpdateCriteria) (T, error) {
	result, err := c.base.Update(ctx, record, criteria...)
	if err == nil {
		c.invalidateRecord(ctx, result)
	}
	return result, err
}

// UpdateTx updates a record within a transaction.
func (c *CachedRepository[T]) UpdateTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.UpdateCriteria) (T, error) {
	result, err := c.base.UpdateTx(ctx, tx, record, criteria...)
	if err == nil {
		c.invalidateRecord(ctx, result)
	}
	return result, err
}

// UpdateMany updates multiple records.
func (c *CachedRepository[T]) UpdateMany(ctx context.Context, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	result, err := c.base.UpdateMany(ctx, records, criteria...)
	if err == nil {
		c.invalidateRecords(ctx, result)
	}
	return result, err
}

// UpdateManyTx updates multiple records within a transaction.
func (c *CachedRepository[T]) UpdateManyTx(ctx context.Context, tx bun.IDB, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	result, err := c.base.UpdateManyTx(ctx, tx, records, criteria...)
	if err == nil {
		c.invalidateRecords(ctx, result)
	}
	return result, err
}

// Upsert inserts or updates a record.
func (c *CachedRepository[T]) Upsert(ctx context.Context, record T, criteria ...repository.UpdateCriteria) (T, error) {
	result, err := c.base.Upsert(ctx, record, criteria...)
	if err == nil {
		c.invalidateRecord(ctx, result)
	}
	return result, err
}

// UpsertTx inserts or updates a record within a transaction.
func (c *CachedRepository[T]) UpsertTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.UpdateCriteria) (T, error) {
	result, err := c.base.UpsertTx(ctx, tx, record, criteria...)
	if err == nil {
		c.invalidateRecord(ctx, result)
	}
	return result, err
}

// UpsertMany inserts or updates multiple records.
func (c *CachedRepository[T]) UpsertMany(ctx context.Context, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	result, err := c.base.UpsertMany(ctx, records, criteria...)
	if err == nil {
		c.invalidateRecords(ctx, result)
	}
	return result, err
}

// UpsertManyTx inserts or updates multiple records within a transaction.
func (c *CachedRepository[T]) UpsertManyTx(ctx context.Context, tx bun.IDB, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	result, err := c.base.UpsertManyTx(ctx, tx, records, criteria...)
	if err == nil {
		c.invalidateRecords(ctx, result)
	}
	return result, err
}

// Delete deletes a record.
func (c *CachedRepository[T]) Delete(ctx context.Context, record T) error {
	err := c.base.Delete(ctx, record)
	if err == nil {
		c.invalidateRecord(ctx, record)
	}
	return err
}

// DeleteTx deletes a record within a transaction.
func (c *CachedRepository[T]) DeleteTx(ctx context.Context, tx bun.IDB, record T) error {
	err := c.base.DeleteTx(ctx, tx, record)
	if err == nil {
		c.invalidateRecord(ctx, record)
	}
	return err
}

// DeleteMany deletes records by criteria. Without the deleted records in
// hand there are no entity keys to target; the version bump invalidates
// lists and counts, while stale entity payloads age out on TTL. Callers
// needing strict entity coherence should delete by record.
func (c *CachedRepository[T]) DeleteMany(ctx context.Context, criteria ...repository.DeleteCriteria) error {
	err := c.base.DeleteMany(ctx, criteria...)
	if err == nil {
		c.manager.BumpModelVersion(ctx, c.model)
	}
	return err
}

// DeleteManyTx deletes records by criteria within a transaction.
func (c *CachedRepository[T]) DeleteManyTx(ctx context.Context, tx bun.IDB, criteria ...repository.DeleteCriteria) error {
	err := c.base.DeleteManyTx(ctx, tx, criteria...)
	if err == nil {
		c.manager.BumpModelVersion(ctx, c.model)
	}
	return err
}

// DeleteWhere deletes records by criteria; same invalidation semantics as
// DeleteMany.
func (c *CachedRepository[T]) DeleteWhere(ctx context.Context, criteria ...repository.DeleteCriteria) error {
	err := c.base.DeleteWhere(ctx, criteria...)
	if err == nil {
		c.manager.BumpModelVersion(ctx, c.model)
	}
	return err
}

// DeleteWhereTx deletes records by criteria within a transaction.
func (c *CachedRepository[T]) DeleteWhereTx(ctx context.Context, tx bun.IDB, criteria ...repository.DeleteCriteria) error {
	err := c.base.DeleteWhereTx(ctx, tx, criteria...)
	if err == nil {
		c.manager.BumpModelVersion(ctx, c.model)
	}
	return err
}

// ForceDelete force deletes a record (bypassing soft delete).
func (c *CachedRepository[T]) ForceDelete(ctx context.Context, record T) error {
	err := c.base.ForceDelete(ctx, record)
	if err == nil {
		c.invalidateRecord(ctx, record)
	}
	return err
}

// ForceDeleteTx force deletes a record within a transaction.
func (c *CachedRepository[T]) ForceDeleteTx(ctx context.Context, tx bun.IDB, record T) error {
	err := c.base.ForceDeleteTx(ctx, tx, record)
	if err == nil {
		c.invalidateRecord(ctx, record)
	}
	return err
}

// Transactional reads bypass the cache entirely: a transaction must see
// its own uncommitted writes, never a snapshot from before them.

// GetTx retrieves a single record within a transaction.
func (c *CachedRepository[T]) GetTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) (T, error) {
	return c.base.GetTx(ctx, tx, criteria...)
}

// GetByIDTx retrieves a record by ID within a transaction.
func (c *CachedRepository[T]) GetByIDTx(ctx context.Context, tx bun.IDB, id string, criteria ...repository.SelectCriteria) (T, error) {
	return c.base.GetByIDTx(ctx, tx, id, criteria...)
}

// ListTx retrieves records within a transaction.
func (c *CachedRepository[T]) ListTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) ([]T, int, error) {
	return c.base.ListTx(ctx, tx, criteria...)
}

// CountTx counts records within a transaction.
func (c *CachedRepository[T]) CountTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) (int, error) {
	return c.base.CountTx(ctx, tx, criteria...)
}

// GetByIdentifierTx retrieves a record by identifier within a transaction.
func (c *CachedRepository[T]) GetByIdentifierTx(ctx context.Context, tx bun.IDB, identifier string, criteria ...repository.SelectCriteria) (T, error) {
	return c.base.GetByIdentifierTx(ctx, tx, identifier, criteria...)
}

// Raw executes a raw SQL query; results are never cached since the
// statement's write/read nature is opaque here.
func (c *CachedRepository[T]) Raw(ctx context.Context, sql string, args ...any) ([]T, error) {
	return c.base.Raw(ctx, sql, args...)
}

// RawTx executes a raw SQL query within a transaction.
func (c *CachedRepository[T]) RawTx(ctx context.Context, tx bun.IDB, sql string, args ...any) ([]T, error) {
	return c.base.RawTx(ctx, tx, sql, args...)
}

// Handlers returns the model handlers from the base repository.
func (c *CachedRepository[T]) Handlers() repository.ModelHandlers[T] {
	return c.base.Handlers()
}

// cacheRecord primes the entity key for a record fetched by something
// other than its primary ID.
func (c *CachedRepository[T]) cacheRecord(ctx context.Context, record T) {
	id, err := extractID(record)
	if err != nil {
		return
	}
	c.manager.SetEntity(ctx, c.model, id, record, c.keyOpts(ctx)...)
}

// invalidateRecord drops the record's entity key and bumps the model
// version so every cached list and count for the model is orphaned.
func (c *CachedRepository[T]) invalidateRecord(ctx context.Context, record T) {
	if id, err := extractID(record); err == nil {
		c.manager.InvalidateEntity(ctx, c.model, id, c.keyOpts(ctx)...)
	}
	c.manager.BumpModelVersion(ctx, c.model)
}

// invalidateRecords handles bulk writes: one entity invalidation per
// record, a single version bump.
func (c *CachedRepository[T]) invalidateRecords(ctx context.Context, records []T) {
	opts := c.keyOpts(ctx)
	for _, record := range records {
		if id, err := extractID(record); err == nil {
			c.manager.InvalidateEntity(ctx, c.model, id, opts...)
		}
	}
	c.manager.BumpModelVersion(ctx, c.model)
}

// extractID pulls the primary identifier off a record using reflection,
// trying the common ID field spellings.
func extractID(record any) (string, error) {
	v := reflect.ValueOf(record)
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return "", fmt.Errorf("nil record")
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return "", fmt.Errorf("record is %s, want struct", v.Kind())
	}

	for _, fieldName := range []string{"ID", "Id", "id"} {
		field := v.FieldByName(fieldName)
		if field.IsValid() && field.CanInterface() {
			return fmt.Sprintf("%v", field.Interface()), nil
		}
	}
	return "", fmt.Errorf("no ID field found in record")
}
