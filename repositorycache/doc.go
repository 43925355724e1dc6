// Package repositorycache provides cached repository decorators for go-repository-bun.
//
// # Overview
//
// This package implements the repository decorator pattern over the cache
// manager. The cached repository wraps a base repository, serves entity and
// list reads from the cache, and invalidates at the exact point a write
// succeeds: since all writes flow through the decorator, the write path
// doubles as the commit hook and no ORM event sniffing is needed.
//
// # Basic Usage
//
// Create a cached repository by wrapping an existing repository:
//
//	manager := cache.New(cache.DefaultConfig())
//	serializer := cache.NewDefaultKeySerializer()
//
//	cached := repositorycache.New(base, manager, serializer)
//
//	// Use exactly like your base repository
//	user, err := cached.GetByID(ctx, "user-123")
//	users, total, err := cached.List(ctx, repository.Where("active", true))
//
// # Cached vs Pass-through Operations
//
// Read operations are cached: GetByID under the entity key, List and Count
// under version-token list keys, Get and GetByIdentifier coalesced with
// their result primed under the record's primary ID. Criteria-qualified
// GetByID calls bypass the cache since criteria can reshape the row.
//
// Write operations pass through to the base repository; on success the
// decorator drops the affected entity key and bumps the model's version
// token, which orphans every cached list and count for the model.
//
// Transaction-based operations (*Tx methods) and raw SQL bypass the cache
// entirely: a transaction must see its own uncommitted writes, never a
// snapshot from before them.
//
// # Bind Groups
//
// Deployments routing models across shards or replicas scope keys with a
// bind group, either per repository (WithDefaultBindGroup) or per request
// (WithBindGroup on the context, which takes precedence).
//
// # Error Handling
//
// Errors from the base repository are propagated unchanged. Cache failures
// never are: a failed cache read degrades to a base fetch and a failed
// invalidation is logged and swallowed, so the decorated repository
// behaves identically to the base with the cache fully down.
//
// # See Also
//
// For cache configuration, the entity codec, and key construction, see the
// cache package. For dependency injection setup, see the pkg/di package.
package repositorycache
