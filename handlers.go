package tokenguard

import (
	"context"

	"github.com/MrEthical07/tokenguard/events"
	"github.com/MrEthical07/tokenguard/token"
	"github.com/MrEthical07/tokenguard/user"
)

func (e *Engine) registerBuiltinHandlers() {
	e.bus.Subscribe(token.EventCreated, events.HandlerFunc(e.onTokenCreated))
	e.bus.Subscribe(user.EventRolesChanged, events.HandlerFunc(e.onRolesChanged))
}

// onTokenCreated removes the user's expired tokens. Failures are logged and
// never affect the login that produced the event.
func (e *Engine) onTokenCreated(ctx context.Context, ev events.Event) error {
	created, ok := ev.(token.Created)
	if !ok {
		return nil
	}
	n, err := e.tokens.DeleteExpiredByUserID(ctx, created.UserID, e.clock.Now())
	if err != nil {
		e.logger.WarnContext(ctx, "expired token cleanup failed", "user_id", created.UserID, "error", err)
		return nil
	}
	if n > 0 {
		e.logger.DebugContext(ctx, "expired tokens removed", "user_id", created.UserID, "deleted", n)
	}
	return nil
}

func (e *Engine) onRolesChanged(ctx context.Context, ev events.Event) error {
	changed, ok := ev.(user.RolesChanged)
	if !ok {
		return nil
	}
	// Failures are logged by the permission service; the entry expires on
	// its own within the cache TTL.
	_ = e.permissions.InvalidatePermissionsCache(ctx, changed.UserID)
	return nil
}
