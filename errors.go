package tokenguard

import "errors"

var (
	// ErrValidation is returned for malformed request input.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidCredentials covers unknown email, deleted account and wrong password alike.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidRefreshToken is returned when the presented token is unknown.
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	// ErrRefreshTokenReused is returned when a retired token is presented again.
	ErrRefreshTokenReused = errors.New("refresh token reuse detected")
	// ErrRefreshTokenExpired is returned when the presented token is past its expiry.
	ErrRefreshTokenExpired = errors.New("refresh token expired")
	// ErrDeviceMismatch is returned when a token is presented from another device.
	ErrDeviceMismatch = errors.New("refresh token device mismatch")
	ErrUserNotFound   = errors.New("user not found")
	// ErrRolesNotFound is returned when any requested role id does not exist.
	ErrRolesNotFound = errors.New("one or more roles not found")
	ErrInvalidActor  = errors.New("invalid role change actor")
	// ErrUnauthorized is returned by access token validation.
	ErrUnauthorized       = errors.New("unauthorized")
	ErrPermissionDenied   = errors.New("permission denied")
	ErrLoginRateLimited   = errors.New("login rate limited")
	ErrRefreshRateLimited = errors.New("refresh rate limited")
	// ErrStoreUnavailable wraps infrastructure failures of the backing stores.
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrEngineNotReady   = errors.New("engine not initialized")
)

// ErrorKind buckets engine errors for transport mapping.
type ErrorKind int

const (
	KindFailure ErrorKind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindUnauthorized
	KindRateLimited
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindUnauthorized:
		return "unauthorized"
	case KindRateLimited:
		return "rate_limited"
	default:
		return "failure"
	}
}

// KindOf classifies err. Unknown errors are KindFailure.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindFailure
	case errors.Is(err, ErrValidation), errors.Is(err, ErrInvalidActor), errors.Is(err, ErrRolesNotFound):
		return KindValidation
	case errors.Is(err, ErrUserNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrUnauthorized),
		errors.Is(err, ErrPermissionDenied),
		IsRefreshFailure(err):
		return KindUnauthorized
	case errors.Is(err, ErrLoginRateLimited), errors.Is(err, ErrRefreshRateLimited):
		return KindRateLimited
	default:
		return KindFailure
	}
}

// IsRefreshFailure reports whether err is one of the refresh outcomes that
// clients must not be able to tell apart.
func IsRefreshFailure(err error) bool {
	return errors.Is(err, ErrInvalidRefreshToken) ||
		errors.Is(err, ErrRefreshTokenReused) ||
		errors.Is(err, ErrRefreshTokenExpired) ||
		errors.Is(err, ErrDeviceMismatch)
}
