// Package cache implements a commit-aware entity cache that sits in front
// of ORM repository reads.
//
// # Overview
//
// The package is organized around four pieces:
//
//   - Region: the minimal capability a backend must provide (get, set,
//     delete, get-or-create, whole-store invalidate). Backends register
//     under a string name; "memory" (sturdyc) and "redis" (go-redis) ship
//     built in, and a Config.RegionFactory can substitute anything else.
//   - NullRegion: a total no-op used when caching is disabled or the
//     configured backend cannot be constructed. With it the application is
//     behavior-identical to running without a cache.
//   - Entity codec: SerializeEntity/DeserializeEntity turn an entity's
//     exported attributes into a JSON payload with type markers for values
//     JSON cannot carry (timestamps, durations, decimals, binary, uuids,
//     sets), plus embedded model/table names validated on read-back.
//   - Manager: the orchestration core. It builds keys, reads and writes
//     entity and list payloads, maintains per-model version tokens, and
//     coalesces concurrent misses per key (Do/DoContext).
//
// # Invalidation model
//
// Entity reads are keyed "{model}:get:{id}" (with an optional bind-group
// segment for multi-database deployments). Writes invalidate the entity
// key directly and bump the model's version token, an opaque random hex
// string stored both in process and in the region. List keys embed the
// token, so a bump orphans every cached list for the model without
// touching the backend: stale entries simply stop being addressable and
// age out on TTL.
//
//	version := manager.ModelVersion(ctx, "users")
//	key := cache.ListKey(serializer, "users", version, "List", filters)
//	if users, ok := cache.GetList[User](ctx, manager, key); ok {
//		return users, nil
//	}
//
// # Failure policy
//
// A cache failure must never become an application failure. Backend
// construction errors degrade the manager to the NullRegion; serialization
// errors skip the write; corrupt payloads are deleted and reported as
// misses. The only errors that propagate are those returned by the
// caller's own creator function inside Do/DoContext, which every coalesced
// waiter receives verbatim.
//
// # Concurrency
//
// All Manager methods are safe for concurrent use. Backend calls pass
// through a weighted semaphore (WithMaxConcurrency) so a burst of cache
// traffic cannot exhaust the backend's connection pool. Do and DoContext
// guarantee one creator execution per key per concurrent burst; a
// DoContext waiter that cancels stops waiting without aborting the shared
// computation. Coalescing is per-process only — cross-process stampede
// protection is whatever the backend's own GetOrCreate provides.
//
// # See Also
//
// The repositorycache package decorates go-repository-bun repositories
// with this manager, wiring reads and write-path invalidation
// automatically.
package cache
