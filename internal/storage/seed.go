package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/your-org/marina/internal/models"
)

// SeedStore is the slice of the store one-time seeding needs.
type SeedStore interface {
	SeedApplied(ctx context.Context) (bool, error)
	MarkSeedApplied(ctx context.Context) error
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	CreateUser(ctx context.Context, u *models.User) error
}

// Seed creates the initial admin account, guarded by the db_init_state
// marker so re-running it never duplicates rows. hash turns the configured
// admin password into its stored digest.
func Seed(ctx context.Context, store SeedStore, adminPassword string, hash func(string) (string, error)) error {
	applied, err := store.SeedApplied(ctx)
	if err != nil {
		return err
	}
	if applied {
		slog.Debug("seed already applied, skipping")
		return nil
	}

	if adminPassword == "" {
		return fmt.Errorf("admin password is required for initial seeding")
	}

	// Tolerate a marker lost after the user row was written.
	if _, err := store.GetUserByUsername(ctx, "admin"); err == nil {
		return store.MarkSeedApplied(ctx)
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}

	digest, err := hash(adminPassword)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	admin := &models.User{
		FullName:       "Administrator",
		Username:       "admin",
		Role:           models.RoleAdmin,
		IsActive:       true,
		HashedPassword: digest,
	}
	if err := store.CreateUser(ctx, admin); err != nil {
		return err
	}

	slog.Info("seeded initial admin user", "user_id", admin.ID)
	return store.MarkSeedApplied(ctx)
}
