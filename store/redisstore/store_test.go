package redisstore

import (
	"context"
	"testing"
	"time"

	"github.com/MrEthical07/tokenguard/store/storetest"
	"github.com/MrEthical07/tokenguard/token"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, now func() time.Time) (*TokenStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewTokenStore(rdb, "", now), mr
}

func TestTokenStoreContract(t *testing.T) {
	storetest.TokenRepository(t, func(t *testing.T, now func() time.Time) token.Repository {
		s, _ := newTestStore(t, now)
		return s
	})
}

func TestRecordLayout(t *testing.T) {
	now := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	s, mr := newTestStore(t, func() time.Time { return now })

	tok, err := token.New("abc", "user-1", "dev-1", now, time.Hour)
	require.NoError(t, err)
	require.NoError(t, s.Insert(context.Background(), tok))

	id, err := mr.Get("tg:rt:h:abc")
	require.NoError(t, err)
	assert.Equal(t, tok.ID, id)
	assert.Equal(t, "active", mr.HGet("tg:rt:t:"+tok.ID, "status"))

	members, err := mr.SMembers("tg:rt:u:user-1")
	require.NoError(t, err)
	assert.Equal(t, []string{tok.ID}, members)
}

func TestCorruptRecord(t *testing.T) {
	s, mr := newTestStore(t, nil)
	require.NoError(t, mr.Set("tg:rt:h:bad", "id-1"))
	mr.HSet("tg:rt:t:id-1", "id", "id-1", "user", "u", "status", "sideways")

	_, err := s.GetByTokenHash(context.Background(), "bad")
	assert.ErrorIs(t, err, ErrCorruptRecord)
}

func TestRedisDownIsWrapped(t *testing.T) {
	s, mr := newTestStore(t, nil)
	mr.Close()

	_, err := s.GetByTokenHash(context.Background(), "x")
	assert.ErrorIs(t, err, ErrRedisUnavailable)
}
