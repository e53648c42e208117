package flows

import (
	"context"
	"time"
)

// Deps groups flow dependency sets. Root engine builds this once and delegates
// request methods to the matching flow implementation.
type Deps struct {
	Login   LoginDeps
	Refresh RefreshDeps
	Roles   RolesDeps
	Logout  LogoutDeps
}

// TxRunner runs fn inside one unit of work. A nil return commits.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// AccessIssuer mints a signed access token for a user.
type AccessIssuer func(userID string) (string, time.Time, error)

// TokenPair is the credential set handed to a client.
type TokenPair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}
