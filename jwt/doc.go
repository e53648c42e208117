// Package jwt issues and verifies the short-lived access tokens returned by
// login and refresh.
//
// Access tokens carry the user id as subject plus a unique jti. They never
// carry permission claims; permissions are resolved per request.
package jwt
