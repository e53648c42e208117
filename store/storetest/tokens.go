// Package storetest holds the behaviour every token.Repository must share.
// Store packages run it from their own tests.
package storetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/tokenguard/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns an empty repository whose write timestamps come from now.
type Factory func(t *testing.T, now func() time.Time) token.Repository

// Clock is a settable time source for the suite.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

var epoch = time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

// TokenRepository runs the shared repository contract against newRepo.
func TokenRepository(t *testing.T, newRepo Factory) {
	t.Run("InsertAndLookup", func(t *testing.T) { testInsertAndLookup(t, newRepo) })
	t.Run("DuplicateHash", func(t *testing.T) { testDuplicateHash(t, newRepo) })
	t.Run("RotateCompareAndSet", func(t *testing.T) { testRotate(t, newRepo) })
	t.Run("Transition", func(t *testing.T) { testTransition(t, newRepo) })
	t.Run("ReuseCascade", func(t *testing.T) { testReuseCascade(t, newRepo) })
	t.Run("RevokeAll", func(t *testing.T) { testRevokeAll(t, newRepo) })
	t.Run("DeleteExpired", func(t *testing.T) { testDeleteExpired(t, newRepo) })
}

func mustToken(t *testing.T, hash, userID, device string, now time.Time, ttl time.Duration) *token.RefreshToken {
	t.Helper()
	tok, err := token.New(hash, userID, device, now, ttl)
	require.NoError(t, err)
	return tok
}

func testInsertAndLookup(t *testing.T, newRepo Factory) {
	ctx := context.Background()
	clock := &Clock{now: epoch}
	repo := newRepo(t, clock.Now)

	tok := mustToken(t, "hash-a", "user-1", "dev-1", epoch, time.Hour)
	require.NoError(t, repo.Insert(ctx, tok))

	got, err := repo.GetByTokenHash(ctx, "hash-a")
	require.NoError(t, err)
	assert.Equal(t, tok.ID, got.ID)
	assert.Equal(t, "user-1", got.UserID)
	assert.Equal(t, "dev-1", got.DeviceID)
	assert.Equal(t, token.StatusActive, got.Status)
	assert.True(t, got.ExpiresAt.Equal(epoch.Add(time.Hour)))
	assert.Nil(t, got.RevokedAt)
	assert.Empty(t, got.ReplacedByID)

	_, err = repo.GetByTokenHash(ctx, "missing")
	assert.ErrorIs(t, err, token.ErrNotFound)

	active, err := repo.GetActiveByUserID(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func testDuplicateHash(t *testing.T, newRepo Factory) {
	ctx := context.Background()
	repo := newRepo(t, (&Clock{now: epoch}).Now)

	require.NoError(t, repo.Insert(ctx, mustToken(t, "dup", "u", "d", epoch, time.Hour)))
	assert.ErrorIs(t, repo.Insert(ctx, mustToken(t, "dup", "u", "d", epoch, time.Hour)), token.ErrDuplicateHash)
}

func testRotate(t *testing.T, newRepo Factory) {
	ctx := context.Background()
	repo := newRepo(t, (&Clock{now: epoch}).Now)

	require.NoError(t, repo.Insert(ctx, mustToken(t, "h1", "u1", "d1", epoch, time.Hour)))

	a, err := repo.GetByTokenHash(ctx, "h1")
	require.NoError(t, err)
	b := a.Clone()

	first := mustToken(t, "h2", "u1", "d1", epoch, time.Hour)
	require.NoError(t, a.Rotate(first, epoch))
	require.NoError(t, repo.Rotate(ctx, a, first))

	second := mustToken(t, "h3", "u1", "d1", epoch, time.Hour)
	require.NoError(t, b.Rotate(second, epoch))
	assert.ErrorIs(t, repo.Rotate(ctx, b, second), token.ErrStaleStatus)

	stored, err := repo.GetByTokenHash(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, token.StatusRotated, stored.Status)
	assert.Equal(t, first.ID, stored.ReplacedByID)
	require.NotNil(t, stored.RevokedAt)
	assert.True(t, stored.RevokedAt.Equal(epoch))

	_, err = repo.GetByTokenHash(ctx, "h3")
	assert.ErrorIs(t, err, token.ErrNotFound)

	active, err := repo.GetActiveByUserID(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, first.ID, active[0].ID)
}

func testTransition(t *testing.T, newRepo Factory) {
	ctx := context.Background()
	repo := newRepo(t, (&Clock{now: epoch}).Now)

	require.NoError(t, repo.Insert(ctx, mustToken(t, "h", "u", "d1", epoch, time.Hour)))
	tok, err := repo.GetByTokenHash(ctx, "h")
	require.NoError(t, err)
	stale := tok.Clone()

	require.NoError(t, tok.RejectDevice("d2", epoch))
	require.NoError(t, repo.Transition(ctx, tok, token.StatusActive))

	require.NoError(t, stale.Revoke(epoch, token.ReasonLogout))
	assert.ErrorIs(t, repo.Transition(ctx, stale, token.StatusActive), token.ErrStaleStatus)

	stored, err := repo.GetByTokenHash(ctx, "h")
	require.NoError(t, err)
	assert.Equal(t, token.StatusRevoked, stored.Status)
	assert.NotNil(t, stored.RevokedAt)
}

func testReuseCascade(t *testing.T, newRepo Factory) {
	ctx := context.Background()
	repo := newRepo(t, (&Clock{now: epoch}).Now)

	rotated := mustToken(t, "a", "u1", "d1", epoch, time.Hour)
	require.NoError(t, repo.Insert(ctx, rotated))
	live := mustToken(t, "b", "u1", "d1", epoch, time.Hour)
	require.NoError(t, repo.Insert(ctx, live))
	require.NoError(t, repo.Insert(ctx, mustToken(t, "c", "u1", "d2", epoch, time.Hour)))
	require.NoError(t, repo.Insert(ctx, mustToken(t, "d", "u2", "d1", epoch, time.Hour)))

	cur, err := repo.GetByTokenHash(ctx, "a")
	require.NoError(t, err)
	require.NoError(t, cur.Revoke(epoch, token.ReasonLogout))
	require.NoError(t, repo.Transition(ctx, cur, token.StatusActive))

	presented, err := repo.GetByTokenHash(ctx, "a")
	require.NoError(t, err)
	from, err := presented.MarkReused(epoch)
	require.NoError(t, err)
	assert.Equal(t, token.StatusRevoked, from)

	ids, err := repo.MarkReusedAndRevokeChain(ctx, presented, from, epoch)
	require.NoError(t, err)
	assert.Len(t, ids, 2)
	assert.Contains(t, ids, live.ID)

	active, err := repo.GetActiveByUserID(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, active)
	active, err = repo.GetActiveByUserID(ctx, "u2")
	require.NoError(t, err)
	assert.Len(t, active, 1)

	again, err := repo.GetByTokenHash(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, token.StatusReused, again.Status)

	// A second presentation still matches Reused and finds nothing to revoke.
	from, err = again.MarkReused(epoch)
	require.NoError(t, err)
	ids, err = repo.MarkReusedAndRevokeChain(ctx, again, from, epoch)
	require.NoError(t, err)
	assert.Empty(t, ids)

	// A stale from status loses.
	_, err = repo.MarkReusedAndRevokeChain(ctx, again, token.StatusRotated, epoch)
	assert.ErrorIs(t, err, token.ErrStaleStatus)
}

func testRevokeAll(t *testing.T, newRepo Factory) {
	ctx := context.Background()
	repo := newRepo(t, (&Clock{now: epoch}).Now)

	require.NoError(t, repo.Insert(ctx, mustToken(t, "a", "u1", "d1", epoch, time.Hour)))
	require.NoError(t, repo.Insert(ctx, mustToken(t, "b", "u1", "d2", epoch, time.Hour)))

	ids, err := repo.RevokeAllForUser(ctx, "u1", epoch)
	require.NoError(t, err)
	assert.Len(t, ids, 2)

	ids, err = repo.RevokeAllForUser(ctx, "u1", epoch)
	require.NoError(t, err)
	assert.Empty(t, ids)

	ids, err = repo.RevokeAllForUser(ctx, "nobody", epoch)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func testDeleteExpired(t *testing.T, newRepo Factory) {
	ctx := context.Background()
	repo := newRepo(t, (&Clock{now: epoch}).Now)

	past := epoch.Add(-2 * time.Hour)
	for _, h := range []string{"e1", "e2", "e3"} {
		require.NoError(t, repo.Insert(ctx, mustToken(t, h, "u1", "d", past, time.Hour)))
	}
	require.NoError(t, repo.Insert(ctx, mustToken(t, "other", "u2", "d", past, time.Hour)))
	require.NoError(t, repo.Insert(ctx, mustToken(t, "live", "u1", "d", epoch, time.Hour)))

	n, err := repo.DeleteExpiredByUserID(ctx, "u1", epoch)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = repo.GetByTokenHash(ctx, "e1")
	assert.ErrorIs(t, err, token.ErrNotFound)

	n, err = repo.DeleteExpired(ctx, epoch, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = repo.GetByTokenHash(ctx, "live")
	assert.NoError(t, err)
}
