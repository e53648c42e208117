package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/MrEthical07/tokenguard/token"
	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps every Redis command failure.
var ErrRedisUnavailable = errors.New("redis unavailable")

// DefaultPrefix namespaces every key written by the store.
const DefaultPrefix = "tg:rt"

// TokenStore implements token.Repository on Redis. It does not take part in
// SQL transactions; each method is atomic on its own.
type TokenStore struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewTokenStore returns a store using prefix for its keys. now stamps
// CreatedAt and ModifiedAt and defaults to time.Now.
func NewTokenStore(client redis.UniversalClient, prefix string, now func() time.Time) *TokenStore {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if now == nil {
		now = time.Now
	}
	return &TokenStore{redis: client, prefix: prefix, now: now}
}

func (s *TokenStore) tokenPrefix() string       { return s.prefix + ":t:" }
func (s *TokenStore) hashPrefix() string        { return s.prefix + ":h:" }
func (s *TokenStore) userPrefix() string        { return s.prefix + ":u:" }
func (s *TokenStore) tokenKey(id string) string { return s.tokenPrefix() + id }
func (s *TokenStore) hashKey(h string) string   { return s.hashPrefix() + h }
func (s *TokenStore) userKey(id string) string  { return s.userPrefix() + id }
func (s *TokenStore) expKey() string            { return s.prefix + ":exp" }

func (s *TokenStore) GetByTokenHash(ctx context.Context, tokenHash string) (*token.RefreshToken, error) {
	id, err := s.redis.Get(ctx, s.hashKey(tokenHash)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, token.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return s.getByID(ctx, id)
}

// GetByID returns the token stored under id.
func (s *TokenStore) GetByID(ctx context.Context, id string) (*token.RefreshToken, error) {
	return s.getByID(ctx, id)
}

func (s *TokenStore) getByID(ctx context.Context, id string) (*token.RefreshToken, error) {
	fields, err := s.redis.HGetAll(ctx, s.tokenKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, token.ErrNotFound
	}
	return decodeToken(fields)
}

func (s *TokenStore) GetActiveByUserID(ctx context.Context, userID string) ([]*token.RefreshToken, error) {
	ids, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	pipe := s.redis.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, s.tokenKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	var out []*token.RefreshToken
	for _, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		t, err := decodeToken(fields)
		if err != nil {
			return nil, err
		}
		if t.IsActive() {
			out = append(out, t)
		}
	}
	sortByCreated(out)
	return out, nil
}

func (s *TokenStore) Insert(ctx context.Context, t *token.RefreshToken) error {
	now := s.now()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.ModifiedAt = now

	res, err := insertLua.Run(ctx, s.redis,
		[]string{s.tokenKey(t.ID), s.hashKey(t.TokenHash), s.userKey(t.UserID), s.expKey()},
		t.ID, t.TokenHash, t.UserID, t.DeviceID, t.Status.String(),
		micros(t.ExpiresAt), micros(t.CreatedAt), micros(t.ModifiedAt),
	).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return scriptResult(res)
}

func (s *TokenStore) Rotate(ctx context.Context, old, next *token.RefreshToken) error {
	now := s.now()
	if next.CreatedAt.IsZero() {
		next.CreatedAt = now
	}

	res, err := rotateLua.Run(ctx, s.redis,
		[]string{s.tokenKey(old.ID), s.tokenKey(next.ID), s.hashKey(next.TokenHash), s.userKey(old.UserID), s.expKey()},
		old.Status.String(), optionalMicros(old.RevokedAt), old.ReplacedByID, micros(now),
		next.ID, next.TokenHash, next.DeviceID, micros(next.ExpiresAt), micros(next.CreatedAt),
	).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if err := scriptResult(res); err != nil {
		return err
	}
	old.ModifiedAt = now
	next.ModifiedAt = now
	return nil
}

func (s *TokenStore) Transition(ctx context.Context, t *token.RefreshToken, from token.Status) error {
	now := s.now()
	res, err := transitionLua.Run(ctx, s.redis,
		[]string{s.tokenKey(t.ID)},
		from.String(), t.Status.String(), optionalMicros(t.RevokedAt), t.ReplacedByID, micros(now),
	).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if err := scriptResult(res); err != nil {
		return err
	}
	t.ModifiedAt = now
	return nil
}

func (s *TokenStore) MarkReusedAndRevokeChain(ctx context.Context, t *token.RefreshToken, from token.Status, now time.Time) ([]string, error) {
	out, err := reuseLua.Run(ctx, s.redis,
		[]string{s.tokenKey(t.ID), s.userKey(t.UserID)},
		from.String(), t.Status.String(), optionalMicros(t.RevokedAt), t.ReplacedByID, micros(s.now()),
		s.tokenPrefix(), micros(now),
	).Slice()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: empty script reply", ErrRedisUnavailable)
	}
	code, _ := out[0].(int64)
	if err := scriptResult(code); err != nil {
		return nil, err
	}
	return stringsOf(out[1:]), nil
}

func (s *TokenStore) RevokeAllForUser(ctx context.Context, userID string, now time.Time) ([]string, error) {
	out, err := revokeAllLua.Run(ctx, s.redis,
		[]string{s.userKey(userID)},
		s.tokenPrefix(), micros(now),
	).Slice()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return stringsOf(out), nil
}

func (s *TokenStore) DeleteExpiredByUserID(ctx context.Context, userID string, now time.Time) (int, error) {
	n, err := deleteExpiredForUserLua.Run(ctx, s.redis,
		[]string{s.userKey(userID), s.expKey()},
		s.tokenPrefix(), s.hashPrefix(), s.userPrefix(), micros(now),
	).Int()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return n, nil
}

func (s *TokenStore) DeleteExpired(ctx context.Context, now time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = 500
	}
	n, err := deleteExpiredLua.Run(ctx, s.redis,
		[]string{s.expKey()},
		s.tokenPrefix(), s.hashPrefix(), s.userPrefix(), micros(now), limit,
	).Int()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return n, nil
}

func scriptResult(code int64) error {
	switch code {
	case scriptApplied:
		return nil
	case scriptNotFound:
		return token.ErrNotFound
	case scriptStale:
		return token.ErrStaleStatus
	case scriptDuplicate:
		return token.ErrDuplicateHash
	default:
		return fmt.Errorf("%w: unexpected script result %d", ErrRedisUnavailable, code)
	}
}

func stringsOf(vals []any) []string {
	if len(vals) == 0 {
		return nil
	}
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func micros(t time.Time) string {
	return strconv.FormatInt(t.UnixMicro(), 10)
}

func optionalMicros(t *time.Time) string {
	if t == nil {
		return ""
	}
	return micros(*t)
}
