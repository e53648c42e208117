package tokenguard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrEthical07/tokenguard/events"
	"github.com/MrEthical07/tokenguard/internal/flows"
	"github.com/MrEthical07/tokenguard/internal/rate"
	"github.com/MrEthical07/tokenguard/jwt"
	"github.com/MrEthical07/tokenguard/password"
	"github.com/MrEthical07/tokenguard/permission"
	"github.com/MrEthical07/tokenguard/token"
	"github.com/MrEthical07/tokenguard/user"
)

const tokenTypeBearer = "Bearer"

// Engine runs the login, refresh, logout and role assignment commands.
//
// Engine instances are configured through [Builder] and treated as
// immutable afterwards.
type Engine struct {
	config      Config
	clock       Clock
	logger      *slog.Logger
	tokens      token.Repository
	users       user.Repository
	roles       user.RoleRepository
	uow         UnitOfWork
	hasher      password.Hasher
	generator   *token.Generator
	jwtManager  *jwt.Manager
	permissions *permission.Service
	bus         *events.Bus
	metrics     *Metrics
	flows       flows.Deps

	dummyOnce sync.Once
	dummyHash string
}

// Close drains the async event queue, if any.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.bus != nil {
		e.bus.Close()
	}
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config {
	return cloneConfig(e.config)
}

// EventsDropped reports events discarded by a full async queue.
func (e *Engine) EventsDropped() uint64 {
	if e == nil || e.bus == nil {
		return 0
	}
	return e.bus.Dropped()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) publish(ctx context.Context, evs []events.Event) {
	if len(evs) == 0 {
		return
	}
	e.bus.Publish(ctx, evs...)
}

// Login authenticates the caller and issues an access token plus a refresh
// token bound to req.DeviceID.
func (e *Engine) Login(ctx context.Context, req LoginRequest) Result[TokenPair] {
	if e == nil || e.hasher == nil {
		return Fail[TokenPair](ErrEngineNotReady)
	}

	res := flows.RunLogin(ctx, req.Email, req.Password, req.DeviceID, e.flows.Login)
	switch res.Failure {
	case flows.LoginFailureNone:
	case flows.LoginFailureValidation:
		return Fail[TokenPair](fmt.Errorf("%w: %v", ErrValidation, res.Err))
	case flows.LoginFailureRateLimited:
		if errors.Is(res.Err, rate.ErrRateLimited) {
			e.metricInc(MetricLoginRateLimited)
			return Fail[TokenPair](ErrLoginRateLimited)
		}
		return Fail[TokenPair](fmt.Errorf("%w: %v", ErrStoreUnavailable, res.Err))
	case flows.LoginFailureInvalidCredentials:
		e.metricInc(MetricLoginFailure)
		return Fail[TokenPair](ErrInvalidCredentials)
	default:
		e.metricInc(MetricLoginFailure)
		e.logger.ErrorContext(ctx, "login failed", "user_id", res.UserID, "error", res.Err)
		return Fail[TokenPair](fmt.Errorf("%w: %v", ErrStoreUnavailable, res.Err))
	}

	e.publish(ctx, res.Events)
	e.metricInc(MetricLoginSuccess)
	e.logger.InfoContext(ctx, "login succeeded",
		"user_id", res.UserID,
		"token_id", res.TokenID,
		"device_id", req.DeviceID,
	)
	return Ok(pairFrom(res.Pair))
}

// Refresh rotates the presented refresh token. Every refusal reason has its
// own error, and all of them satisfy [IsRefreshFailure].
func (e *Engine) Refresh(ctx context.Context, req RefreshRequest) Result[TokenPair] {
	if e == nil || e.jwtManager == nil {
		return Fail[TokenPair](ErrEngineNotReady)
	}
	start := time.Now()
	defer func() {
		if e.metrics.LatencyEnabled() {
			e.metrics.Observe(MetricRefreshLatency, time.Since(start))
		}
	}()

	res := flows.RunRefresh(ctx, req.RefreshToken, req.DeviceID, e.flows.Refresh)
	if res.Attempts > 1 {
		e.metrics.Add(MetricRefreshRetry, uint64(res.Attempts-1))
	}

	// State changes of refused refreshes have committed; their events go out
	// before the error is returned.
	e.publish(ctx, res.Events)

	switch res.Failure {
	case flows.RefreshFailureNone:
		e.metricInc(MetricRefreshSuccess)
		e.logger.DebugContext(ctx, "refresh token rotated",
			"user_id", res.UserID,
			"token_id", res.TokenID,
			"new_token_id", res.NewTokenID,
		)
		return Ok(pairFrom(res.Pair))
	case flows.RefreshFailureValidation:
		return Fail[TokenPair](fmt.Errorf("%w: %v", ErrValidation, res.Err))
	case flows.RefreshFailureRateLimited:
		if errors.Is(res.Err, rate.ErrRateLimited) {
			e.metricInc(MetricRefreshRateLimited)
			return Fail[TokenPair](ErrRefreshRateLimited)
		}
		return Fail[TokenPair](fmt.Errorf("%w: %v", ErrStoreUnavailable, res.Err))
	case flows.RefreshFailureNotFound:
		e.metricInc(MetricRefreshFailure)
		return Fail[TokenPair](ErrInvalidRefreshToken)
	case flows.RefreshFailureReuse:
		e.metricInc(MetricRefreshFailure)
		e.metricInc(MetricRefreshReuseDetected)
		e.metricInc(MetricChainCompromised)
		e.metrics.Add(MetricTokenRevoked, uint64(res.RevokedCount))
		e.logger.ErrorContext(ctx, "refresh token reuse detected, token chain revoked",
			"user_id", res.UserID,
			"token_id", res.TokenID,
			"revoked", res.RevokedCount,
		)
		return Fail[TokenPair](ErrRefreshTokenReused)
	case flows.RefreshFailureExpired:
		e.metricInc(MetricRefreshFailure)
		e.metricInc(MetricRefreshExpired)
		return Fail[TokenPair](ErrRefreshTokenExpired)
	case flows.RefreshFailureDeviceMismatch:
		e.metricInc(MetricRefreshFailure)
		e.metricInc(MetricDeviceMismatch)
		e.metricInc(MetricTokenRevoked)
		e.logger.WarnContext(ctx, "refresh token presented from another device",
			"user_id", res.UserID,
			"token_id", res.TokenID,
			"device_id", req.DeviceID,
		)
		return Fail[TokenPair](ErrDeviceMismatch)
	default:
		e.metricInc(MetricRefreshFailure)
		e.logger.ErrorContext(ctx, "refresh failed", "token_id", res.TokenID, "error", res.Err)
		return Fail[TokenPair](fmt.Errorf("%w: %v", ErrStoreUnavailable, res.Err))
	}
}

// SetUserRoles replaces the role set of a user. The permission cache of the
// user is invalidated after the change commits.
func (e *Engine) SetUserRoles(ctx context.Context, req SetRolesRequest) Result[RoleChange] {
	if e == nil || e.users == nil {
		return Fail[RoleChange](ErrEngineNotReady)
	}

	res := flows.RunSetRoles(ctx, req.UserID, req.RoleIDs, req.Actor, e.flows.Roles)
	switch res.Failure {
	case flows.RolesFailureNone:
	case flows.RolesFailureInvalidActor:
		return Fail[RoleChange](fmt.Errorf("%w: %v", ErrInvalidActor, res.Err))
	case flows.RolesFailureUserNotFound:
		return Fail[RoleChange](ErrUserNotFound)
	case flows.RolesFailureRolesNotFound:
		return Fail[RoleChange](ErrRolesNotFound)
	default:
		e.logger.ErrorContext(ctx, "role assignment failed", "user_id", req.UserID, "error", res.Err)
		return Fail[RoleChange](fmt.Errorf("%w: %v", ErrStoreUnavailable, res.Err))
	}

	e.publish(ctx, res.Events)
	if res.Changed {
		e.metricInc(MetricRolesChanged)
		e.logger.InfoContext(ctx, "user roles changed",
			"user_id", req.UserID,
			"old_role_ids", res.OldRoleIDs,
			"new_role_ids", res.NewRoleIDs,
			"actor", req.Actor,
		)
	} else {
		e.metricInc(MetricRolesUnchanged)
	}

	return Ok(RoleChange{
		UserID:     req.UserID,
		Changed:    res.Changed,
		OldRoleIDs: res.OldRoleIDs,
		NewRoleIDs: res.NewRoleIDs,
	})
}

// GetUserPermissions returns the effective permission codes of userID.
func (e *Engine) GetUserPermissions(ctx context.Context, userID string) ([]string, error) {
	if e == nil || e.permissions == nil {
		return nil, ErrEngineNotReady
	}
	perms, err := e.permissions.GetUserPermissions(ctx, userID)
	if err != nil {
		return nil, mapUserLookupError(err)
	}
	return perms, nil
}

// HasPermission reports whether userID currently holds code.
func (e *Engine) HasPermission(ctx context.Context, userID, code string) (bool, error) {
	if e == nil || e.permissions == nil {
		return false, ErrEngineNotReady
	}
	ok, err := e.permissions.HasPermission(ctx, userID, code)
	if err != nil {
		return false, mapUserLookupError(err)
	}
	return ok, nil
}

// InvalidatePermissionsCache drops the cached permission set of userID on
// this node. Remote invalidation messages land here.
func (e *Engine) InvalidatePermissionsCache(ctx context.Context, userID string) error {
	if e == nil || e.permissions == nil {
		return ErrEngineNotReady
	}
	return e.permissions.InvalidatePermissionsCache(ctx, userID)
}

func mapUserLookupError(err error) error {
	if errors.Is(err, user.ErrNotFound) {
		return ErrUserNotFound
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

// Logout revokes the presented refresh token. Unknown or already retired
// tokens succeed silently.
func (e *Engine) Logout(ctx context.Context, refreshToken string) error {
	if e == nil || e.tokens == nil {
		return ErrEngineNotReady
	}
	res := flows.RunLogout(ctx, refreshToken, e.flows.Logout)
	if res.Err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, res.Err)
	}
	e.publish(ctx, res.Events)
	e.metricInc(MetricLogout)
	if res.Revoked > 0 {
		e.metrics.Add(MetricTokenRevoked, uint64(res.Revoked))
		e.logger.InfoContext(ctx, "logout", "user_id", res.UserID)
	}
	return nil
}

// RevokeAllForUser revokes every Active refresh token of userID and returns
// how many were revoked.
func (e *Engine) RevokeAllForUser(ctx context.Context, userID string) (int, error) {
	if e == nil || e.tokens == nil {
		return 0, ErrEngineNotReady
	}
	if userID == "" {
		return 0, fmt.Errorf("%w: user id is required", ErrValidation)
	}
	res := flows.RunRevokeAll(ctx, userID, token.ReasonAdministrative, e.flows.Logout)
	if res.Err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, res.Err)
	}
	e.publish(ctx, res.Events)
	e.metricInc(MetricRevokeAll)
	e.metrics.Add(MetricTokenRevoked, uint64(res.Revoked))
	e.logger.InfoContext(ctx, "revoked all refresh tokens", "user_id", userID, "revoked", res.Revoked)
	return res.Revoked, nil
}

// ValidateAccess verifies an access token. Every failure is ErrUnauthorized.
func (e *Engine) ValidateAccess(ctx context.Context, accessToken string) (*AuthResult, error) {
	if e == nil || e.jwtManager == nil {
		return nil, ErrEngineNotReady
	}
	start := time.Now()
	claims, err := e.jwtManager.ParseAccess(accessToken)
	if e.metrics.LatencyEnabled() {
		e.metrics.Observe(MetricValidateLatency, time.Since(start))
	}
	if err != nil {
		e.metricInc(MetricValidateFailure)
		e.logger.DebugContext(ctx, "access token rejected", "error", err)
		return nil, ErrUnauthorized
	}
	e.metricInc(MetricValidateSuccess)

	res := &AuthResult{
		UserID:  claims.UserID(),
		TokenID: claims.ID,
	}
	if claims.ExpiresAt != nil {
		res.ExpiresAt = claims.ExpiresAt.Time
	}
	return res, nil
}

// SweepExpired deletes expired refresh tokens in batches of
// Config.Sweeper.BatchSize until a short batch signals nothing is left.
func (e *Engine) SweepExpired(ctx context.Context) (int, error) {
	if e == nil || e.tokens == nil {
		return 0, ErrEngineNotReady
	}
	now := e.clock.Now()
	batch := e.config.Sweeper.BatchSize
	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, err := e.tokens.DeleteExpired(ctx, now, batch)
		total += n
		if err != nil {
			e.metrics.Add(MetricSweepDeleted, uint64(total))
			return total, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		if n < batch {
			break
		}
	}
	e.metrics.Add(MetricSweepDeleted, uint64(total))
	if total > 0 {
		e.logger.InfoContext(ctx, "expired refresh tokens swept", "deleted", total)
	}
	return total, nil
}

func (e *Engine) dummyVerify(pw string) {
	e.dummyOnce.Do(func() {
		h, err := e.hasher.Hash("tokenguard-timing-equalizer")
		if err == nil {
			e.dummyHash = h
		}
	})
	if e.dummyHash != "" {
		_, _ = e.hasher.Verify(pw, e.dummyHash)
	}
}

func pairFrom(p flows.TokenPair) TokenPair {
	return TokenPair{
		AccessToken:      p.AccessToken,
		AccessExpiresAt:  p.AccessExpiresAt,
		RefreshToken:     p.RefreshToken,
		RefreshExpiresAt: p.RefreshExpiresAt,
		TokenType:        tokenTypeBearer,
	}
}
