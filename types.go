package tokenguard

import (
	"context"
	"time"

	"github.com/MrEthical07/tokenguard/user"
)

// LoginRequest is the input of [Engine.Login].
type LoginRequest struct {
	Email    string
	Password string
	DeviceID string
}

// RefreshRequest is the input of [Engine.Refresh].
type RefreshRequest struct {
	RefreshToken string
	DeviceID     string
}

// TokenPair is returned by successful login and refresh calls. RefreshToken
// is the raw value; only its hash is stored.
type TokenPair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
	TokenType        string
}

// SetRolesRequest replaces the full role set of a user. Actor is one of
// "self", "administrator" or "system".
type SetRolesRequest struct {
	UserID  string
	RoleIDs []user.RoleID
	Actor   string
}

// RoleChange reports the outcome of [Engine.SetUserRoles].
type RoleChange struct {
	UserID     string
	Changed    bool
	OldRoleIDs []user.RoleID
	NewRoleIDs []user.RoleID
}

// AuthResult is returned by [Engine.ValidateAccess].
type AuthResult struct {
	UserID    string
	TokenID   string
	ExpiresAt time.Time
}

// UnitOfWork runs fn in one transaction. Stores that take part in the
// transaction find it on the ctx passed to fn. A nil return commits.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type directUnitOfWork struct{}

func (directUnitOfWork) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
