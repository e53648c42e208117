// Package middleware exposes HTTP middleware built on tokenguard.Engine.
//
// # Guards
//
//   - [RequireAuth] verifies the bearer access token and stores the
//     validated [tokenguard.AuthResult] on the request context.
//   - [RequirePermission] runs after RequireAuth and rejects callers whose
//     effective permissions lack a code.
//   - [ClientIP] records the caller address for the login IP throttle.
//
// This package translates HTTP semantics into Engine calls. It does not
// parse JWTs or read stores itself.
package middleware
