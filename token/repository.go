package token

import (
	"context"
	"time"
)

// Repository is the persistence boundary for refresh tokens.
//
// Writes that change Status are compare-and-set on the stored status so that
// only one concurrent caller can move a token out of a given state. Stores
// participating in a unit of work pick the transaction up from ctx.
type Repository interface {
	GetByTokenHash(ctx context.Context, tokenHash string) (*RefreshToken, error)
	GetActiveByUserID(ctx context.Context, userID string) ([]*RefreshToken, error)
	Insert(ctx context.Context, t *RefreshToken) error

	// Rotate persists old (now Rotated) and inserts next as one atomic
	// unit. It returns ErrStaleStatus when old is no longer Active in the
	// store.
	Rotate(ctx context.Context, old, next *RefreshToken) error

	// Transition persists t's current status, RevokedAt and ReplacedByID
	// if the stored status still equals from.
	Transition(ctx context.Context, t *RefreshToken, from Status) error

	// MarkReusedAndRevokeChain persists t as Reused and revokes every
	// Active token of t.UserID in the same atomic unit. It returns the ids
	// of the tokens it revoked.
	MarkReusedAndRevokeChain(ctx context.Context, t *RefreshToken, from Status, now time.Time) ([]string, error)

	// RevokeAllForUser revokes every Active token of userID.
	RevokeAllForUser(ctx context.Context, userID string, now time.Time) ([]string, error)

	DeleteExpiredByUserID(ctx context.Context, userID string, now time.Time) (int, error)
	DeleteExpired(ctx context.Context, now time.Time, limit int) (int, error)
}
