package flows

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/MrEthical07/tokenguard/events"
	"github.com/MrEthical07/tokenguard/token"
)

// RefreshFailureKind classifies refresh flow failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureValidation
	RefreshFailureRateLimited
	RefreshFailureNotFound
	RefreshFailureReuse
	RefreshFailureExpired
	RefreshFailureDeviceMismatch
	RefreshFailureStore
)

// RefreshResult carries either the rotated pair or failure metadata. Events
// holds everything recorded in the committed transaction, including for
// failed outcomes.
type RefreshResult struct {
	Failure      RefreshFailureKind
	Err          error
	UserID       string
	TokenID      string
	NewTokenID   string
	Pair         TokenPair
	RevokedCount int
	Attempts     int
	Events       []events.Event
}

type RefreshRateLimiter interface {
	CheckRefresh(ctx context.Context, deviceID, ip string) error
}

// RefreshDeps captures refresh flow dependencies.
type RefreshDeps struct {
	Now         func() time.Time
	TTL         time.Duration
	MaxAttempts int
	ClientIP    func(context.Context) string
	Tokens      token.Repository
	Tx          TxRunner
	Generate    func() (string, string, error)
	IssueAccess AccessIssuer
	RateLimiter RefreshRateLimiter
	Logger      *slog.Logger
}

var errRefreshContention = errors.New("refresh token contention: retries exhausted")

// RunRefresh validates a presented refresh token and either rotates it or
// records why it was refused. Losing a compare-and-set re-reads the token
// and classifies it again, so concurrent presentations of one token produce
// a single rotation and the rest are handled as reuse.
func RunRefresh(ctx context.Context, rawToken, deviceID string, deps RefreshDeps) RefreshResult {
	if deviceID == "" {
		return RefreshResult{Failure: RefreshFailureValidation, Err: errors.New("device id is required")}
	}
	if err := token.CheckRaw(rawToken); err != nil {
		return RefreshResult{Failure: RefreshFailureNotFound, Err: err}
	}
	if deps.RateLimiter != nil {
		var ip string
		if deps.ClientIP != nil {
			ip = deps.ClientIP(ctx)
		}
		if err := deps.RateLimiter.CheckRefresh(ctx, deviceID, ip); err != nil {
			return RefreshResult{Failure: RefreshFailureRateLimited, Err: err}
		}
	}

	hash := token.Hash(rawToken)
	attempts := deps.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		var res RefreshResult
		err := deps.Tx.RunInTx(ctx, func(ctx context.Context) error {
			res = RefreshResult{}
			return refreshOnce(ctx, hash, deviceID, deps, &res)
		})
		if errors.Is(err, token.ErrStaleStatus) {
			if deps.Logger != nil {
				deps.Logger.DebugContext(ctx, "refresh lost compare-and-set, retrying", "attempt", attempt)
			}
			continue
		}
		res.Attempts = attempt
		if err != nil {
			return RefreshResult{Failure: RefreshFailureStore, Err: err, Attempts: attempt}
		}
		return res
	}

	return RefreshResult{Failure: RefreshFailureStore, Err: errRefreshContention, Attempts: attempts}
}

// refreshOnce runs one classification inside a transaction. Domain failures
// are written to res and the function returns nil so their state changes
// commit; only infrastructure errors and lost races abort.
func refreshOnce(ctx context.Context, hash, deviceID string, deps RefreshDeps, res *RefreshResult) error {
	t, err := deps.Tokens.GetByTokenHash(ctx, hash)
	if err != nil {
		if errors.Is(err, token.ErrNotFound) {
			res.Failure = RefreshFailureNotFound
			res.Err = err
			return nil
		}
		return err
	}

	now := deps.Now()
	res.TokenID = t.ID
	res.UserID = t.UserID

	switch t.Status {
	case token.StatusRotated, token.StatusRevoked, token.StatusReused:
		return handleReuse(ctx, t, now, deps, res)
	case token.StatusExpired:
		res.Failure = RefreshFailureExpired
		return nil
	case token.StatusActive:
	default:
		return errors.New("refresh token has unknown status")
	}

	if t.IsExpired(now) {
		if err := t.MarkExpired(now); err != nil {
			return err
		}
		if err := deps.Tokens.Transition(ctx, t, token.StatusActive); err != nil {
			return err
		}
		res.Failure = RefreshFailureExpired
		res.Events = t.PullEvents()
		return nil
	}

	if t.DeviceID != deviceID {
		if err := t.RejectDevice(deviceID, now); err != nil {
			return err
		}
		if err := deps.Tokens.Transition(ctx, t, token.StatusActive); err != nil {
			return err
		}
		res.Failure = RefreshFailureDeviceMismatch
		res.Events = t.PullEvents()
		return nil
	}

	raw, nextHash, err := deps.Generate()
	if err != nil {
		return err
	}
	next, err := token.New(nextHash, t.UserID, t.DeviceID, now, deps.TTL)
	if err != nil {
		return err
	}
	if err := t.Rotate(next, now); err != nil {
		return err
	}
	if err := deps.Tokens.Rotate(ctx, t, next); err != nil {
		return err
	}

	access, accessExp, err := deps.IssueAccess(t.UserID)
	if err != nil {
		return err
	}

	res.NewTokenID = next.ID
	res.Pair = TokenPair{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     raw,
		RefreshExpiresAt: next.ExpiresAt,
	}
	res.Events = append(t.PullEvents(), next.PullEvents()...)
	return nil
}

func handleReuse(ctx context.Context, t *token.RefreshToken, now time.Time, deps RefreshDeps, res *RefreshResult) error {
	from, err := t.MarkReused(now)
	if err != nil {
		return err
	}
	revoked, err := deps.Tokens.MarkReusedAndRevokeChain(ctx, t, from, now)
	if err != nil {
		return err
	}
	t.Record(token.ChainCompromised{
		UserID:       t.UserID,
		RevokedCount: len(revoked),
		At:           now,
	})

	res.Failure = RefreshFailureReuse
	res.RevokedCount = len(revoked)
	res.Events = t.PullEvents()
	return nil
}
