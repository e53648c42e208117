// Package httpapi serves the tokenguard engine over HTTP using a chi router.
//
// Routes:
//
//	POST /auth/login             issue an access and refresh token pair
//	POST /auth/refresh-token     rotate a refresh token
//	POST /auth/logout            revoke a refresh token
//	PUT  /users/{id}/roles       replace a user's role set (bearer)
//	GET  /users/{id}/permissions effective permission codes (bearer)
//	GET  /healthz
//	GET  /metrics                Prometheus text, when a handler is supplied
//
// Every refresh refusal maps to the same 401 body so that clients cannot
// tell an unknown token from a reused, expired or foreign-device one.
package httpapi
