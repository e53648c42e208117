package permission

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultTTL is used when New is given a non-positive ttl.
const DefaultTTL = 30 * time.Minute

// Source computes permission codes from persisted role associations.
type Source interface {
	PermissionsForUser(ctx context.Context, userID string) ([]string, error)
}

// Hooks lets the engine count cache behaviour without this package
// depending on the metrics type.
type Hooks struct {
	Hit              func()
	Miss             func()
	InvalidateFailed func()
}

// Service resolves and caches effective permissions.
type Service struct {
	source Source
	cache  Cache
	ttl    time.Duration
	logger *slog.Logger
	hooks  Hooks
	group  singleflight.Group
}

// Option customizes a Service.
type Option func(*Service)

// WithLogger sets the logger used for degraded-cache warnings.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithHooks installs counters.
func WithHooks(h Hooks) Option {
	return func(s *Service) { s.hooks = h }
}

// New builds a Service. A nil cache disables caching.
func New(source Source, cache Cache, ttl time.Duration, opts ...Option) (*Service, error) {
	if source == nil {
		return nil, errors.New("permission source is required")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s := &Service{
		source: source,
		cache:  cache,
		ttl:    ttl,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// TTL returns the cache lifetime applied to populated entries.
func (s *Service) TTL() time.Duration {
	return s.ttl
}

// GetUserPermissions returns the distinct, sorted permission codes of userID.
// Cache failures fall through to the source.
func (s *Service) GetUserPermissions(ctx context.Context, userID string) ([]string, error) {
	if userID == "" {
		return nil, errors.New("user id is required")
	}

	if s.cache != nil {
		perms, ok, err := s.cache.Get(ctx, userID)
		switch {
		case err != nil:
			s.logger.WarnContext(ctx, "permission cache read failed", "user_id", userID, "error", err)
		case ok:
			call(s.hooks.Hit)
			return perms, nil
		}
	}
	call(s.hooks.Miss)

	v, err, _ := s.group.Do(userID, func() (any, error) {
		perms, err := s.source.PermissionsForUser(ctx, userID)
		if err != nil {
			return nil, err
		}
		perms = normalize(perms)
		if s.cache != nil {
			if err := s.cache.Set(ctx, userID, perms, s.ttl); err != nil {
				s.logger.WarnContext(ctx, "permission cache write failed", "user_id", userID, "error", err)
			}
		}
		return perms, nil
	})
	if err != nil {
		return nil, err
	}
	return slices.Clone(v.([]string)), nil
}

// HasPermission reports whether code is in the user's effective set.
func (s *Service) HasPermission(ctx context.Context, userID, code string) (bool, error) {
	perms, err := s.GetUserPermissions(ctx, userID)
	if err != nil {
		return false, err
	}
	_, found := slices.BinarySearch(perms, code)
	return found, nil
}

// InvalidatePermissionsCache drops the cached entry for userID. Failures are
// logged and returned; callers treat them as best-effort.
func (s *Service) InvalidatePermissionsCache(ctx context.Context, userID string) error {
	if s.cache == nil {
		return nil
	}
	s.group.Forget(userID)
	if err := s.cache.Delete(ctx, userID); err != nil {
		call(s.hooks.InvalidateFailed)
		s.logger.WarnContext(ctx, "permission cache invalidation failed", "user_id", userID, "error", err)
		return err
	}
	return nil
}

func normalize(perms []string) []string {
	out := make([]string, 0, len(perms))
	for _, p := range perms {
		if p != "" {
			out = append(out, p)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

func call(fn func()) {
	if fn != nil {
		fn()
	}
}
