package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/tokenguard/events"
	"github.com/MrEthical07/tokenguard/token"
)

// LogoutDeps captures logout and revoke-all dependencies.
type LogoutDeps struct {
	Now    func() time.Time
	Tokens token.Repository
	Tx     TxRunner
}

// LogoutResult reports what a logout or revoke-all changed.
type LogoutResult struct {
	Err     error
	UserID  string
	Revoked int
	Events  []events.Event
}

// RunLogout revokes the Active token matching rawToken. Unknown and
// already-retired tokens are a silent no-op.
func RunLogout(ctx context.Context, rawToken string, deps LogoutDeps) LogoutResult {
	if err := token.CheckRaw(rawToken); err != nil {
		return LogoutResult{}
	}
	hash := token.Hash(rawToken)

	var res LogoutResult
	err := deps.Tx.RunInTx(ctx, func(ctx context.Context) error {
		t, err := deps.Tokens.GetByTokenHash(ctx, hash)
		if err != nil {
			if errors.Is(err, token.ErrNotFound) {
				return nil
			}
			return err
		}
		if !t.IsActive() {
			return nil
		}
		if err := t.Revoke(deps.Now(), token.ReasonLogout); err != nil {
			return err
		}
		if err := deps.Tokens.Transition(ctx, t, token.StatusActive); err != nil {
			return err
		}
		res = LogoutResult{UserID: t.UserID, Revoked: 1, Events: t.PullEvents()}
		return nil
	})
	if errors.Is(err, token.ErrStaleStatus) {
		return LogoutResult{}
	}
	if err != nil {
		return LogoutResult{Err: err}
	}
	return res
}

// RunRevokeAll revokes every Active token of userID.
func RunRevokeAll(ctx context.Context, userID, reason string, deps LogoutDeps) LogoutResult {
	var res LogoutResult
	err := deps.Tx.RunInTx(ctx, func(ctx context.Context) error {
		now := deps.Now()
		ids, err := deps.Tokens.RevokeAllForUser(ctx, userID, now)
		if err != nil {
			return err
		}
		res = LogoutResult{UserID: userID, Revoked: len(ids)}
		for _, id := range ids {
			res.Events = append(res.Events, token.Revoked{
				TokenID: id,
				UserID:  userID,
				Reason:  reason,
				At:      now,
			})
		}
		return nil
	})
	if err != nil {
		return LogoutResult{Err: err, UserID: userID}
	}
	return res
}
