// Package main seeds the first operator accounts. The API has no
// self-service path to the admin role; this command bootstraps it.
//
// Import Path (ADR-0016): aeroclaim.io/aeroclaim/cmd/seed
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"aeroclaim.io/aeroclaim/internal/auth"
	"aeroclaim.io/aeroclaim/internal/config"
	"aeroclaim.io/aeroclaim/internal/domain"
	"aeroclaim.io/aeroclaim/internal/infrastructure"
	apperrors "aeroclaim.io/aeroclaim/internal/pkg/errors"
	"aeroclaim.io/aeroclaim/internal/pkg/kms"
	"aeroclaim.io/aeroclaim/internal/pkg/logger"
	"aeroclaim.io/aeroclaim/internal/repository"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "seed error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	email := os.Getenv("SEED_ADMIN_EMAIL")
	password := os.Getenv("SEED_ADMIN_PASSWORD")
	if email == "" || password == "" {
		return fmt.Errorf("SEED_ADMIN_EMAIL and SEED_ADMIN_PASSWORD must be set")
	}
	role := domain.RoleAdmin
	if r := domain.Role(os.Getenv("SEED_ADMIN_ROLE")); r != "" {
		if !r.Valid() || !r.Admin() {
			return fmt.Errorf("SEED_ADMIN_ROLE must be admin or superadmin")
		}
		role = r
	}
	if err := auth.ValidatePassword(cfg.Security.PasswordPolicy, password); err != nil {
		return fmt.Errorf("seed password rejected by policy: %w", err)
	}

	ctx := context.Background()

	db, err := infrastructure.NewDatabaseClients(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("init database: %w", err)
	}
	defer db.Close()

	// Schema migrations are a release step; seeding only writes rows.
	codec, err := kms.NewFieldCodec([]byte(cfg.Security.DBEncryptionKey))
	if err != nil {
		return fmt.Errorf("init field codec: %w", err)
	}
	store := repository.NewStore(db.Pool, codec)

	if err := seedOperator(ctx, store, cfg, email, password, role); err != nil {
		return err
	}

	logger.Info("Seeding completed")
	return nil
}

// seedOperator creates the operator account once; rerunning against an
// existing account is a no-op.
func seedOperator(ctx context.Context, store *repository.Store, cfg *config.Config,
	email, password string, role domain.Role) error {

	existing, err := store.Customers.GetByEmail(ctx, email)
	switch {
	case err == nil:
		logger.Info("operator account already exists, skipping",
			zap.String("customer_id", existing.ID.String()),
			zap.String("role", string(existing.Role)),
		)
		return nil
	case !apperrors.IsKind(err, apperrors.KindNotFound):
		return fmt.Errorf("look up operator account: %w", err)
	}

	hash, err := auth.HashPassword(password, cfg.Auth.BcryptCost)
	if err != nil {
		return fmt.Errorf("hash seed password: %w", err)
	}

	now := time.Now().UTC()
	operator := &domain.Customer{
		ID:            uuid.Must(uuid.NewV7()),
		Email:         email,
		PasswordHash:  hash,
		Role:          role,
		EmailVerified: true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := store.Customers.Create(ctx, operator); err != nil {
		return fmt.Errorf("create operator account: %w", err)
	}

	logger.Info("operator account created",
		zap.String("customer_id", operator.ID.String()),
		zap.String("role", string(role)),
	)
	return nil
}
