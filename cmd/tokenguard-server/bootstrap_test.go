package main

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/tokenguard"
	"github.com/MrEthical07/tokenguard/internal/config"
	"github.com/MrEthical07/tokenguard/password"
	"github.com/MrEthical07/tokenguard/store/memory"
	"github.com/MrEthical07/tokenguard/user"
)

func TestSeedRolesAndAdmin(t *testing.T) {
	ctx := context.Background()
	store := memory.NewUserStore()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	pw := tokenguard.DefaultConfig().Password
	pw.Memory, pw.Time, pw.Parallelism = 8*1024, 1, 1

	cfg := config.BootstrapConfig{
		Roles: []config.BootstrapRole{
			{ID: 1, Name: "Member", Permissions: []string{"todo.read"}},
			{ID: 2, Name: "Administrator", Permissions: []string{"users.manage"}},
		},
		AdminEmail:    "Admin@Example.com",
		AdminPassword: "bootstrap-password-1",
		AdminRoleIDs:  []int64{2, 1, 2},
	}
	require.NoError(t, seed(ctx, store, cfg, pw, log))

	admin, err := store.GetByEmail(ctx, user.MustEmail("admin@example.com"))
	require.NoError(t, err)
	assert.Equal(t, []user.RoleID{1, 2}, admin.Roles)

	hasher, err := password.NewArgon2(password.Config{Memory: pw.Memory, Time: pw.Time, Parallelism: pw.Parallelism, SaltLength: pw.SaltLength, KeyLength: pw.KeyLength})
	require.NoError(t, err)
	ok, err := hasher.Verify("bootstrap-password-1", admin.PasswordHash)
	require.NoError(t, err)
	assert.True(t, ok)

	perms, err := store.PermissionsForUser(ctx, admin.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"todo.read", "users.manage"}, perms)

	// A second start keeps the existing admin.
	require.NoError(t, seed(ctx, store, cfg, pw, log))
	again, err := store.GetByEmail(ctx, user.MustEmail("admin@example.com"))
	require.NoError(t, err)
	assert.Equal(t, admin.ID, again.ID)
}

func TestSeedWithoutAdmin(t *testing.T) {
	store := memory.NewUserStore()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	require.NoError(t, seed(context.Background(), store, config.BootstrapConfig{}, tokenguard.DefaultConfig().Password, log))
}
