// Package flows contains the orchestration for every Engine operation that
// touches refresh tokens or role assignments.
//
// Each flow function (RunLogin, RunRefresh, RunSetRoles, RunLogout,
// RunRevokeAll) accepts a typed dependency struct and returns a result value
// carrying either the outcome or a failure kind. Flows never publish events
// themselves: the events produced inside a committed transaction are handed
// back on the result so the Engine can dispatch them after commit.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import tokenguard (to avoid import cycles).
//   - Perform I/O directly. All I/O goes through dependency interfaces.
package flows
