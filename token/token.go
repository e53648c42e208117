package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/tokenguard/events"
	"github.com/google/uuid"
)

var (
	// ErrInvalidTransition is returned when a status change is not allowed
	// from the token's current status.
	ErrInvalidTransition = errors.New("invalid refresh token transition")
	// ErrNotFound is returned by repositories when no token matches.
	ErrNotFound = errors.New("refresh token not found")
	// ErrStaleStatus is returned by repositories when a compare-and-set on
	// the stored status loses to a concurrent writer.
	ErrStaleStatus = errors.New("refresh token status changed concurrently")
	// ErrDuplicateHash is returned when a token hash already exists.
	ErrDuplicateHash = errors.New("refresh token hash already exists")
)

// Status is the lifecycle state of a refresh token.
type Status uint8

const (
	StatusActive Status = iota + 1
	StatusRotated
	StatusRevoked
	StatusReused
	StatusExpired
)

// String returns the lower-case persisted name of s.
func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusRotated:
		return "rotated"
	case StatusRevoked:
		return "revoked"
	case StatusReused:
		return "reused"
	case StatusExpired:
		return "expired"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// ParseStatus is the inverse of [Status.String].
func ParseStatus(v string) (Status, error) {
	switch v {
	case "active":
		return StatusActive, nil
	case "rotated":
		return StatusRotated, nil
	case "revoked":
		return StatusRevoked, nil
	case "reused":
		return StatusReused, nil
	case "expired":
		return StatusExpired, nil
	}
	return 0, fmt.Errorf("unknown refresh token status %q", v)
}

// Revocation reasons recorded on Revoked events.
const (
	ReasonDeviceMismatch   = "device_mismatch"
	ReasonChainCompromised = "chain_compromised"
	ReasonLogout           = "logout"
	ReasonAdministrative   = "administrative"
)

// RefreshToken is the aggregate root for one issued refresh credential.
//
// TokenHash is the only form of the secret that is ever stored. It must not
// be logged.
type RefreshToken struct {
	ID           string
	TokenHash    string
	UserID       string
	DeviceID     string
	Status       Status
	ExpiresAt    time.Time
	RevokedAt    *time.Time
	ReplacedByID string
	CreatedAt    time.Time
	ModifiedAt   time.Time

	events.Recorder
}

// New creates an Active token for userID bound to deviceID and records a
// [Created] event.
func New(tokenHash, userID, deviceID string, now time.Time, ttl time.Duration) (*RefreshToken, error) {
	if tokenHash == "" {
		return nil, errors.New("token hash is required")
	}
	if userID == "" {
		return nil, errors.New("user id is required")
	}
	if deviceID == "" {
		return nil, errors.New("device id is required")
	}
	if ttl <= 0 {
		return nil, errors.New("refresh ttl must be > 0")
	}

	t := &RefreshToken{
		ID:        uuid.NewString(),
		TokenHash: tokenHash,
		UserID:    userID,
		DeviceID:  deviceID,
		Status:    StatusActive,
		ExpiresAt: now.Add(ttl),
	}
	t.Record(Created{
		TokenID:  t.ID,
		UserID:   userID,
		DeviceID: deviceID,
		At:       now,
	})
	return t, nil
}

// IsActive reports whether the token can still be rotated.
func (t *RefreshToken) IsActive() bool {
	return t.Status == StatusActive
}

// IsExpired reports whether ExpiresAt has been reached at now.
func (t *RefreshToken) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// CanTransition reports whether from -> to is a legal move.
// Reused -> Reused is accepted as a repeated reuse confirmation.
func CanTransition(from, to Status) bool {
	switch to {
	case StatusRotated, StatusRevoked, StatusExpired:
		return from == StatusActive
	case StatusReused:
		return from == StatusActive || from == StatusRotated || from == StatusRevoked || from == StatusReused
	default:
		return false
	}
}

// Rotate retires t in favour of next. It sets RevokedAt, links ReplacedByID
// and records a [Rotated] event. next must be a fresh Active token for the
// same user and device.
func (t *RefreshToken) Rotate(next *RefreshToken, now time.Time) error {
	if next == nil {
		return errors.New("next token is required")
	}
	if !CanTransition(t.Status, StatusRotated) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, StatusRotated)
	}
	if t.ReplacedByID != "" {
		return fmt.Errorf("%w: token already replaced", ErrInvalidTransition)
	}
	if next.UserID != t.UserID || next.DeviceID != t.DeviceID {
		return errors.New("replacement token must keep user and device")
	}

	at := now
	t.Status = StatusRotated
	t.RevokedAt = &at
	t.ReplacedByID = next.ID
	t.Record(Rotated{
		OldID:    t.ID,
		NewID:    next.ID,
		UserID:   t.UserID,
		DeviceID: t.DeviceID,
		At:       now,
	})
	return nil
}

// Revoke moves an Active token to Revoked.
func (t *RefreshToken) Revoke(now time.Time, reason string) error {
	if !CanTransition(t.Status, StatusRevoked) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, StatusRevoked)
	}
	at := now
	t.Status = StatusRevoked
	t.RevokedAt = &at
	t.Record(Revoked{TokenID: t.ID, UserID: t.UserID, Reason: reason, At: now})
	return nil
}

// RejectDevice revokes t because it was presented from actualDeviceID and
// records a [DeviceMismatchDetected] event ahead of the revocation.
func (t *RefreshToken) RejectDevice(actualDeviceID string, now time.Time) error {
	if !CanTransition(t.Status, StatusRevoked) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, StatusRevoked)
	}
	t.Record(DeviceMismatchDetected{
		TokenID:          t.ID,
		UserID:           t.UserID,
		ExpectedDeviceID: t.DeviceID,
		ActualDeviceID:   actualDeviceID,
		At:               now,
	})
	return t.Revoke(now, ReasonDeviceMismatch)
}

// MarkExpired is the lazy Active -> Expired transition observed when a
// refresh arrives after ExpiresAt.
func (t *RefreshToken) MarkExpired(now time.Time) error {
	if !CanTransition(t.Status, StatusExpired) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, StatusExpired)
	}
	if !t.IsExpired(now) {
		return fmt.Errorf("%w: token has not reached its expiry", ErrInvalidTransition)
	}
	t.Status = StatusExpired
	t.Record(ExpiredUsage{
		TokenID:     t.ID,
		UserID:      t.UserID,
		ExpiresAt:   t.ExpiresAt,
		AttemptedAt: now,
	})
	return nil
}

// MarkReused flags t as exfiltrated and returns the status it had before.
// RevokedAt keeps its first value when already set.
func (t *RefreshToken) MarkReused(now time.Time) (Status, error) {
	previous := t.Status
	if !CanTransition(previous, StatusReused) {
		return previous, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, previous, StatusReused)
	}
	t.Status = StatusReused
	if t.RevokedAt == nil {
		at := now
		t.RevokedAt = &at
	}
	t.Record(ReuseDetected{
		TokenID:        t.ID,
		UserID:         t.UserID,
		DeviceID:       t.DeviceID,
		PreviousStatus: previous,
		At:             now,
	})
	return previous, nil
}

// Clone returns a copy of t without pending events.
func (t *RefreshToken) Clone() *RefreshToken {
	if t == nil {
		return nil
	}
	out := &RefreshToken{
		ID:           t.ID,
		TokenHash:    t.TokenHash,
		UserID:       t.UserID,
		DeviceID:     t.DeviceID,
		Status:       t.Status,
		ExpiresAt:    t.ExpiresAt,
		ReplacedByID: t.ReplacedByID,
		CreatedAt:    t.CreatedAt,
		ModifiedAt:   t.ModifiedAt,
	}
	if t.RevokedAt != nil {
		at := *t.RevokedAt
		out.RevokedAt = &at
	}
	return out
}
