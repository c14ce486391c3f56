// Package infrastructure provides database and connection pool setup.
//
// ADR-0012: one shared pgxpool carries the repositories and River, so
// a status change and the job announcing it commit in one transaction.
//
// Import Path (ADR-0016): aeroclaim.io/aeroclaim/internal/infrastructure
package infrastructure

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"go.uber.org/zap"

	"aeroclaim.io/aeroclaim/internal/config"
	"aeroclaim.io/aeroclaim/internal/jobs"
	"aeroclaim.io/aeroclaim/internal/pkg/logger"
	"aeroclaim.io/aeroclaim/internal/repository"
)

// DatabaseClients contains all database-related clients.
//
// Coding Standard: everything shares Pool. Do not open a second pool
// or a separate sql.DB next to it; that doubles connections.
type DatabaseClients struct {
	// Pool is the shared connection pool (repositories + River).
	Pool *pgxpool.Pool

	// RiverClient is the job queue client backed by the shared pool.
	// Set by InitRiverClient once the worker registry exists.
	RiverClient *river.Client[pgx.Tx]
}

// NewDatabaseClients creates the shared connection pool.
func NewDatabaseClients(ctx context.Context, cfg config.DatabaseConfig) (*DatabaseClients, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}
	poolConfig.MaxConns = cfg.MaxConns
	poolConfig.MinConns = cfg.MinConns
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolConfig.HealthCheckPeriod = time.Minute

	// All timestamps are stored and compared in UTC.
	poolConfig.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		_, err := conn.Exec(ctx, "SET timezone = 'UTC'")
		return err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	logger.Info("Database connection pool created",
		zap.Int32("max_conns", cfg.MaxConns),
		zap.Int32("min_conns", cfg.MinConns),
	)

	return &DatabaseClients{Pool: pool}, nil
}

// Migrate applies the goose schema migrations and the River queue
// tables. Runs at every startup when database.auto_migrate is set;
// production deployments run it as an explicit release step instead.
func (c *DatabaseClients) Migrate(ctx context.Context) error {
	logger.Info("Running schema migrations...")
	if err := repository.Migrate(ctx, c.Pool); err != nil {
		return fmt.Errorf("schema migrate: %w", err)
	}

	logger.Info("Running River migration...")
	migrator, err := rivermigrate.New(riverpgxv5.New(c.Pool), nil)
	if err != nil {
		return fmt.Errorf("create river migrator: %w", err)
	}
	res, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil)
	if err != nil {
		return fmt.Errorf("river migrate up: %w", err)
	}
	if len(res.Versions) > 0 {
		logger.Info("River migration completed",
			zap.Int("versions_applied", len(res.Versions)),
		)
	} else {
		logger.Info("River migration: already up-to-date")
	}
	return nil
}

// InitRiverClient creates a River client with registered workers.
// Called after NewDatabaseClients; workers come from bootstrap.
func (c *DatabaseClients) InitRiverClient(workers *river.Workers, cfg config.RiverConfig) error {
	riverClient, err := river.NewClient(riverpgxv5.New(c.Pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			jobs.QueueNotifications: {MaxWorkers: cfg.NotificationWorkers},
			jobs.QueueDocuments:     {MaxWorkers: cfg.DocumentWorkers},
			jobs.QueueMaintenance:   {MaxWorkers: cfg.MaintenanceWorkers},
		},
		Workers:                     workers,
		CompletedJobRetentionPeriod: cfg.CompletedJobRetentionPeriod,
	})
	if err != nil {
		return fmt.Errorf("create river client: %w", err)
	}
	c.RiverClient = riverClient
	logger.Info("River client initialized",
		zap.Int("notification_workers", cfg.NotificationWorkers),
		zap.Int("document_workers", cfg.DocumentWorkers),
		zap.Int("maintenance_workers", cfg.MaintenanceWorkers),
	)
	return nil
}

// Close closes the connection pool.
func (c *DatabaseClients) Close() {
	if c.Pool != nil {
		c.Pool.Close()
	}
}
