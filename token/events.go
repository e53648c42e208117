package token

import "time"

// Event names used for bus subscriptions.
const (
	EventCreated                = "refresh_token.created"
	EventRotated                = "refresh_token.rotated"
	EventRevoked                = "refresh_token.revoked"
	EventReuseDetected          = "refresh_token.reuse_detected"
	EventChainCompromised       = "refresh_token.chain_compromised"
	EventExpiredUsage           = "refresh_token.expired_usage"
	EventDeviceMismatchDetected = "refresh_token.device_mismatch_detected"
)

// Created is recorded when a token is issued at login.
type Created struct {
	TokenID  string
	UserID   string
	DeviceID string
	At       time.Time
}

func (Created) EventName() string       { return EventCreated }
func (e Created) OccurredAt() time.Time { return e.At }

// Rotated is recorded when OldID is replaced by NewID.
type Rotated struct {
	OldID    string
	NewID    string
	UserID   string
	DeviceID string
	At       time.Time
}

func (Rotated) EventName() string       { return EventRotated }
func (e Rotated) OccurredAt() time.Time { return e.At }

// Revoked is recorded when an Active token is revoked.
type Revoked struct {
	TokenID string
	UserID  string
	Reason  string
	At      time.Time
}

func (Revoked) EventName() string       { return EventRevoked }
func (e Revoked) OccurredAt() time.Time { return e.At }

// ReuseDetected is recorded when a non-Active token is presented again.
type ReuseDetected struct {
	TokenID        string
	UserID         string
	DeviceID       string
	PreviousStatus Status
	At             time.Time
}

func (ReuseDetected) EventName() string       { return EventReuseDetected }
func (e ReuseDetected) OccurredAt() time.Time { return e.At }

// ChainCompromised is emitted once per user per reuse detection, after every
// Active token of the user has been revoked.
type ChainCompromised struct {
	UserID       string
	RevokedCount int
	At           time.Time
}

func (ChainCompromised) EventName() string       { return EventChainCompromised }
func (e ChainCompromised) OccurredAt() time.Time { return e.At }

// ExpiredUsage is recorded when an expired token is presented.
type ExpiredUsage struct {
	TokenID     string
	UserID      string
	ExpiresAt   time.Time
	AttemptedAt time.Time
}

func (ExpiredUsage) EventName() string       { return EventExpiredUsage }
func (e ExpiredUsage) OccurredAt() time.Time { return e.AttemptedAt }

// DeviceMismatchDetected is recorded when a token is presented from a device
// other than the one it was bound to.
type DeviceMismatchDetected struct {
	TokenID          string
	UserID           string
	ExpectedDeviceID string
	ActualDeviceID   string
	At               time.Time
}

func (DeviceMismatchDetected) EventName() string       { return EventDeviceMismatchDetected }
func (e DeviceMismatchDetected) OccurredAt() time.Time { return e.At }
