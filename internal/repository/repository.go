// Package repository is the hand-written pgx data layer. Each entity
// gets a small repo struct bound to a DBTX; Store bundles them and
// WithTx rebinds the whole bundle to a transaction so multi-row
// invariants (status + history + queue insert) commit atomically.
//
// PII columns are encrypted here, at the boundary: repos accept and
// return plaintext domain values and never let ciphertext or blind
// indexes leak upward.
//
// Import Path (ADR-0016): aeroclaim.io/aeroclaim/internal/repository
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"aeroclaim.io/aeroclaim/internal/pkg/kms"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DBTX is the subset of pgx shared by *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store bundles the entity repos over one DBTX.
type Store struct {
	Customers     *Customers
	Claims        *Claims
	Groups        *Groups
	Files         *Files
	AccessLogs    *AccessLogs
	History       *History
	Notes         *Notes
	RefreshTokens *RefreshTokens
	LoginTokens   *LoginTokens
	Events        *Events
}

// NewStore builds the repo bundle. The codec encrypts PII columns and
// computes blind indexes; it is shared by every repo that touches PII.
func NewStore(db DBTX, codec *kms.FieldCodec) *Store {
	return &Store{
		Customers:     &Customers{db: db, codec: codec},
		Claims:        &Claims{db: db, codec: codec},
		Groups:        &Groups{db: db},
		Files:         &Files{db: db, codec: codec},
		AccessLogs:    &AccessLogs{db: db},
		History:       &History{db: db},
		Notes:         &Notes{db: db},
		RefreshTokens: &RefreshTokens{db: db},
		LoginTokens:   &LoginTokens{db: db},
		Events:        &Events{db: db},
	}
}

// WithTx rebinds every repo to the transaction.
func (s *Store) WithTx(tx pgx.Tx) *Store {
	clone := *s

	customers := *s.Customers
	customers.db = tx
	clone.Customers = &customers

	claims := *s.Claims
	claims.db = tx
	clone.Claims = &claims

	groups := *s.Groups
	groups.db = tx
	clone.Groups = &groups

	files := *s.Files
	files.db = tx
	clone.Files = &files

	accessLogs := *s.AccessLogs
	accessLogs.db = tx
	clone.AccessLogs = &accessLogs

	history := *s.History
	history.db = tx
	clone.History = &history

	notes := *s.Notes
	notes.db = tx
	clone.Notes = &notes

	refresh := *s.RefreshTokens
	refresh.db = tx
	clone.RefreshTokens = &refresh

	login := *s.LoginTokens
	login.db = tx
	clone.LoginTokens = &login

	events := *s.Events
	events.db = tx
	clone.Events = &events

	return &clone
}

// Migrate applies the embedded goose migrations through the shared
// pool. River's queue tables are migrated separately by the
// infrastructure layer.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}

// uniqueViolation is the Postgres error code for constraint 23505.
const uniqueViolation = "23505"

// isUniqueViolation reports whether err is a unique-constraint failure,
// optionally on a specific constraint name.
func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}

// noRows reports whether err is pgx.ErrNoRows.
func noRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
