package postgres

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/MrEthical07/tokenguard/store/storetest"
	"github.com/MrEthical07/tokenguard/token"
	"github.com/MrEthical07/tokenguard/user"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests need a disposable database named by TOKENGUARD_TEST_DATABASE_URL.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	url := os.Getenv("TOKENGUARD_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TOKENGUARD_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := Connect(ctx, url, 4, 1, 0, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, Migrate(ctx, pool))
	_, err = pool.Exec(ctx, `TRUNCATE refresh_tokens, user_roles, role_permissions, roles, users`)
	require.NoError(t, err)
	return pool
}

func TestTokenStoreContract(t *testing.T) {
	storetest.TokenRepository(t, func(t *testing.T, now func() time.Time) token.Repository {
		return NewTokenStore(NewTxManager(testPool(t)), now)
	})
}

func TestRunInTxRollsBack(t *testing.T) {
	pool := testPool(t)
	tx := NewTxManager(pool)
	tokens := NewTokenStore(tx, nil)
	ctx := context.Background()

	tok, err := token.New("rollback", "u1", "d1", time.Now(), time.Hour)
	require.NoError(t, err)

	sentinel := assert.AnError
	err = tx.RunInTx(ctx, func(ctx context.Context) error {
		require.NoError(t, tokens.Insert(ctx, tok))
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel)

	_, err = tokens.GetByTokenHash(ctx, "rollback")
	assert.ErrorIs(t, err, token.ErrNotFound)
}

func TestUserStoreRoundTrip(t *testing.T) {
	pool := testPool(t)
	store := NewUserStore(NewTxManager(pool))
	ctx := context.Background()

	require.NoError(t, store.UpsertRole(ctx, user.Role{ID: 1, Name: "Member", Permissions: []string{"todo.read", "todo.write"}}))
	require.NoError(t, store.UpsertRole(ctx, user.Role{ID: 2, Name: "Administrator", Permissions: []string{"todo.read", "users.manage"}}))
	require.NoError(t, store.CreateUser(ctx, &user.User{
		ID:           "u1",
		Email:        user.MustEmail("alice@example.com"),
		PasswordHash: "hash",
		Roles:        []user.RoleID{1},
	}))
	assert.ErrorIs(t, store.CreateUser(ctx, &user.User{
		ID:           "u2",
		Email:        user.MustEmail("alice@example.com"),
		PasswordHash: "hash",
	}), user.ErrEmailTaken)

	u, err := store.GetByEmail(ctx, user.MustEmail("alice@example.com"))
	require.NoError(t, err)
	assert.Equal(t, []user.RoleID{1}, u.Roles)

	u.Roles = []user.RoleID{1, 2}
	require.NoError(t, store.SaveRoles(ctx, u, []user.RoleID{1}))
	assert.ErrorIs(t, store.SaveRoles(ctx, u, []user.RoleID{1}), user.ErrStaleRoles)

	perms, err := store.PermissionsForUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"todo.read", "todo.write", "users.manage"}, perms)

	roles, err := store.GetByIDs(ctx, []user.RoleID{2, 9})
	require.NoError(t, err)
	require.Len(t, roles, 1)
	assert.Equal(t, "Administrator", roles[0].Name)

	_, err = store.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, user.ErrNotFound)
	_, err = store.PermissionsForUser(ctx, "missing")
	assert.ErrorIs(t, err, user.ErrNotFound)
}

func TestReuseCascadeWaitsForOpenRotation(t *testing.T) {
	pool := testPool(t)
	tx := NewTxManager(pool)
	tokens := NewTokenStore(tx, nil)
	ctx := context.Background()
	now := time.Now().UTC()

	first, err := token.New("t0", "u1", "d1", now, time.Hour)
	require.NoError(t, err)
	require.NoError(t, tokens.Insert(ctx, first))
	second, err := token.New("t1", "u1", "d1", now, time.Hour)
	require.NoError(t, err)
	require.NoError(t, first.Rotate(second, now))
	require.NoError(t, tokens.Rotate(ctx, first, second))

	// Rotate t1 to t2 and hold the transaction open.
	var third *token.RefreshToken
	rotated := make(chan struct{})
	release := make(chan struct{})
	rotateDone := make(chan error, 1)
	go func() {
		rotateDone <- tx.RunInTx(ctx, func(ctx context.Context) error {
			cur, err := tokens.GetByTokenHash(ctx, "t1")
			if err != nil {
				return err
			}
			next, err := token.New("t2", "u1", "d1", now, time.Hour)
			if err != nil {
				return err
			}
			if err := cur.Rotate(next, now); err != nil {
				return err
			}
			if err := tokens.Rotate(ctx, cur, next); err != nil {
				return err
			}
			third = next
			close(rotated)
			<-release
			return nil
		})
	}()
	select {
	case <-rotated:
	case err := <-rotateDone:
		t.Fatalf("rotation ended early: %v", err)
	}

	type cascadeResult struct {
		ids []string
		err error
	}
	cascadeDone := make(chan cascadeResult, 1)
	go func() {
		replayed, err := tokens.GetByTokenHash(ctx, "t0")
		if err != nil {
			cascadeDone <- cascadeResult{err: err}
			return
		}
		from, err := replayed.MarkReused(now)
		if err != nil {
			cascadeDone <- cascadeResult{err: err}
			return
		}
		ids, err := tokens.MarkReusedAndRevokeChain(ctx, replayed, from, now)
		cascadeDone <- cascadeResult{ids: ids, err: err}
	}()

	select {
	case res := <-cascadeDone:
		t.Fatalf("cascade finished while the rotation was open: %+v", res)
	case <-time.After(200 * time.Millisecond):
	}

	close(release)
	require.NoError(t, <-rotateDone)
	res := <-cascadeDone
	require.NoError(t, res.err)
	assert.Contains(t, res.ids, third.ID)

	active, err := tokens.GetActiveByUserID(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestRevokeAllWaitsForOpenRotation(t *testing.T) {
	pool := testPool(t)
	tx := NewTxManager(pool)
	tokens := NewTokenStore(tx, nil)
	ctx := context.Background()
	now := time.Now().UTC()

	first, err := token.New("r0", "u1", "d1", now, time.Hour)
	require.NoError(t, err)
	require.NoError(t, tokens.Insert(ctx, first))

	rotated := make(chan struct{})
	release := make(chan struct{})
	rotateDone := make(chan error, 1)
	go func() {
		rotateDone <- tx.RunInTx(ctx, func(ctx context.Context) error {
			next, err := token.New("r1", "u1", "d1", now, time.Hour)
			if err != nil {
				return err
			}
			if err := first.Rotate(next, now); err != nil {
				return err
			}
			if err := tokens.Rotate(ctx, first, next); err != nil {
				return err
			}
			close(rotated)
			<-release
			return nil
		})
	}()
	select {
	case <-rotated:
	case err := <-rotateDone:
		t.Fatalf("rotation ended early: %v", err)
	}

	revokeDone := make(chan error, 1)
	go func() {
		_, err := tokens.RevokeAllForUser(ctx, "u1", now)
		revokeDone <- err
	}()
	time.Sleep(100 * time.Millisecond)
	close(release)
	require.NoError(t, <-rotateDone)
	require.NoError(t, <-revokeDone)

	active, err := tokens.GetActiveByUserID(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, active)
}
