package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/MrEthical07/tokenguard"
	"github.com/MrEthical07/tokenguard/internal/config"
	"github.com/MrEthical07/tokenguard/password"
	"github.com/MrEthical07/tokenguard/user"
)

// seeder is implemented by the memory and Postgres user stores.
type seeder interface {
	UpsertRole(ctx context.Context, r user.Role) error
	CreateUser(ctx context.Context, u *user.User) error
}

func seed(ctx context.Context, s seeder, cfg config.BootstrapConfig, pw tokenguard.PasswordConfig, log *slog.Logger) error {
	for _, r := range cfg.Roles {
		if err := s.UpsertRole(ctx, user.Role{
			ID:          user.RoleID(r.ID),
			Name:        r.Name,
			Permissions: r.Permissions,
		}); err != nil {
			return fmt.Errorf("role %d: %w", r.ID, err)
		}
	}
	if len(cfg.Roles) > 0 {
		log.Info("roles seeded", "count", len(cfg.Roles))
	}

	if cfg.AdminEmail == "" {
		return nil
	}
	email, err := user.NewEmail(cfg.AdminEmail)
	if err != nil {
		return err
	}
	hasher, err := password.NewArgon2(password.Config{
		Memory:           pw.Memory,
		Time:             pw.Time,
		Parallelism:      pw.Parallelism,
		SaltLength:       pw.SaltLength,
		KeyLength:        pw.KeyLength,
		MaxPasswordBytes: pw.MaxPasswordBytes,
	})
	if err != nil {
		return err
	}
	hash, err := hasher.Hash(cfg.AdminPassword)
	if err != nil {
		return fmt.Errorf("hashing admin password: %w", err)
	}

	roles := make([]user.RoleID, 0, len(cfg.AdminRoleIDs))
	for _, id := range cfg.AdminRoleIDs {
		roles = append(roles, user.RoleID(id))
	}
	admin := &user.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		Roles:        user.NormalizeRoleIDs(roles),
	}
	err = s.CreateUser(ctx, admin)
	switch {
	case errors.Is(err, user.ErrEmailTaken):
		log.Info("bootstrap admin already exists")
		return nil
	case err != nil:
		return fmt.Errorf("creating admin: %w", err)
	}
	log.Info("bootstrap admin created", "user_id", admin.ID)
	return nil
}
