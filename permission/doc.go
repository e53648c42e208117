// Package permission resolves a user's effective permission codes and caches
// them with a TTL.
//
// [Service] reads through a [Cache] and falls back to a [Source] (normally the
// role repository) on a miss. Role changes call
// [Service.InvalidatePermissionsCache] after they commit. A stale read is
// bounded by the cache TTL or the next invalidation, whichever comes first.
//
// Two caches are provided: [LocalCache], an in-process expirable LRU, and
// [RedisCache], shared across service instances. With LocalCache on several
// nodes, invalidations must be fanned out (see the fanout package).
package permission
