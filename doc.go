// Package tokenguard authenticates users and issues short-lived access tokens
// together with rotating, device-bound refresh tokens.
//
// Every refresh retires the presented token and issues a new one. Presenting a
// retired token again is treated as evidence of theft: the token is marked
// Reused and every Active token of the user is revoked in the same unit of
// work. Role changes invalidate the cached permission set of the user once the
// change has committed.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// tokenguard is the public surface. It exposes [Engine], [Builder], [Config]
// and request/response value types. Flow orchestration and rate limiting live
// under internal/. Persistence is plugged in through the repositories of the
// token and user packages; store/memory, store/redis and store/postgres ship
// implementations.
//
// # What this package must NOT do
//
//   - Log or export refresh token hashes or password material.
//   - Dispatch domain events before the producing transaction commits.
//   - Import any sub-package that re-imports tokenguard (no import cycles).
package tokenguard
