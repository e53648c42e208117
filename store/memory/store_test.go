package memory

import (
	"context"
	"testing"
	"time"

	"github.com/MrEthical07/tokenguard/store/storetest"
	"github.com/MrEthical07/tokenguard/token"
	"github.com/MrEthical07/tokenguard/user"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newToken(t *testing.T, hash, userID, device string, now time.Time) *token.RefreshToken {
	t.Helper()
	tok, err := token.New(hash, userID, device, now, time.Hour)
	require.NoError(t, err)
	return tok
}

func TestRotateIsCompareAndSet(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewTokenStore(func() time.Time { return now })

	old := newToken(t, "h1", "u1", "d1", now)
	require.NoError(t, s.Insert(ctx, old))

	first := newToken(t, "h2", "u1", "d1", now)
	a, _ := s.GetByTokenHash(ctx, "h1")
	require.NoError(t, a.Rotate(first, now))
	require.NoError(t, s.Rotate(ctx, a, first))

	second := newToken(t, "h3", "u1", "d1", now)
	b := old.Clone()
	require.NoError(t, b.Rotate(second, now))
	assert.ErrorIs(t, s.Rotate(ctx, b, second), token.ErrStaleStatus)

	stored, err := s.GetByTokenHash(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, token.StatusRotated, stored.Status)
	assert.Equal(t, first.ID, stored.ReplacedByID)
	_, err = s.GetByTokenHash(ctx, "h3")
	assert.ErrorIs(t, err, token.ErrNotFound)
}

func TestMarkReusedRevokesEveryActiveToken(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	s := NewTokenStore(nil)

	rotated := newToken(t, "a", "u1", "d1", now)
	rotated.Status = token.StatusRotated
	require.NoError(t, s.Insert(ctx, rotated))
	require.NoError(t, s.Insert(ctx, newToken(t, "b", "u1", "d1", now)))
	require.NoError(t, s.Insert(ctx, newToken(t, "c", "u1", "d2", now)))
	other := newToken(t, "d", "u2", "d1", now)
	require.NoError(t, s.Insert(ctx, other))

	presented, _ := s.GetByTokenHash(ctx, "a")
	from, err := presented.MarkReused(now)
	require.NoError(t, err)
	ids, err := s.MarkReusedAndRevokeChain(ctx, presented, from, now)
	require.NoError(t, err)
	assert.Len(t, ids, 2)

	active, err := s.GetActiveByUserID(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, active)

	active, err = s.GetActiveByUserID(ctx, "u2")
	require.NoError(t, err)
	assert.Len(t, active, 1)

	again, _ := s.GetByTokenHash(ctx, "a")
	assert.Equal(t, token.StatusReused, again.Status)
}

func TestDuplicateHashRejected(t *testing.T) {
	s := NewTokenStore(nil)
	now := time.Now()
	require.NoError(t, s.Insert(context.Background(), newToken(t, "x", "u", "d", now)))
	assert.ErrorIs(t, s.Insert(context.Background(), newToken(t, "x", "u", "d", now)), token.ErrDuplicateHash)
}

func TestDeleteExpired(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	s := NewTokenStore(nil)
	for i, h := range []string{"e1", "e2", "e3"} {
		tok, err := token.New(h, "u1", "d", now.Add(-2*time.Hour), time.Hour)
		require.NoError(t, err, i)
		require.NoError(t, s.Insert(ctx, tok))
	}
	require.NoError(t, s.Insert(ctx, newToken(t, "live", "u1", "d", now)))

	n, err := s.DeleteExpired(ctx, now, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = s.DeleteExpiredByUserID(ctx, "u1", now)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, s.Len())
}

func TestUserStoreRolesAndPermissions(t *testing.T) {
	ctx := context.Background()
	s := NewUserStore()
	s.AddRole(user.Role{ID: 1, Name: "Member", Permissions: []string{"todo.read"}})
	s.AddRole(user.Role{ID: 2, Name: "Administrator", Permissions: []string{"todo.read", "users.manage"}})
	require.NoError(t, s.AddUser(&user.User{ID: "u1", Email: user.MustEmail("a@example.com"), Roles: []user.RoleID{1}}))
	assert.ErrorIs(t, s.AddUser(&user.User{ID: "u2", Email: user.MustEmail("A@example.com")}), user.ErrEmailTaken)

	roles, err := s.GetByIDs(ctx, []user.RoleID{2, 1, 9})
	require.NoError(t, err)
	assert.Len(t, roles, 2)

	u, err := s.GetByEmail(ctx, user.MustEmail("a@example.com"))
	require.NoError(t, err)
	u.Roles = []user.RoleID{2, 1}
	require.NoError(t, s.SaveRoles(ctx, u, []user.RoleID{1}))

	// A writer that read the old set loses.
	u.Roles = []user.RoleID{1}
	assert.ErrorIs(t, s.SaveRoles(ctx, u, []user.RoleID{1}), user.ErrStaleRoles)

	perms, err := s.PermissionsForUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"todo.read", "users.manage"}, perms)

	_, err = s.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, user.ErrNotFound)
}

func TestTokenStoreContract(t *testing.T) {
	storetest.TokenRepository(t, func(_ *testing.T, now func() time.Time) token.Repository {
		return NewTokenStore(now)
	})
}
