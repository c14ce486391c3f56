package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"aeroclaim.io/aeroclaim/internal/domain"
	apperrors "aeroclaim.io/aeroclaim/internal/pkg/errors"
)

// Groups persists claim groups. A group holds no claim set; membership
// lives on claims.group_id and is materialized by query.
type Groups struct {
	db DBTX
}

const groupColumns = `id, owner_id, name, flight_number, flight_date,
	consent_confirmed, consent_confirmed_at, consent_ip, created_at`

// Create inserts a group.
func (r *Groups) Create(ctx context.Context, g *domain.ClaimGroup) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO claim_groups (
			id, owner_id, name, flight_number, flight_date,
			consent_confirmed, consent_confirmed_at, consent_ip, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		g.ID, g.OwnerID, g.Name, g.FlightNumber, dateOrNil(g.FlightDate),
		g.ConsentConfirmed, g.ConsentConfirmedAt, g.ConsentIP, g.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert claim group: %w", err)
	}
	return nil
}

// GetByID loads one group.
func (r *Groups) GetByID(ctx context.Context, id uuid.UUID) (*domain.ClaimGroup, error) {
	row := r.db.QueryRow(ctx, `SELECT `+groupColumns+` FROM claim_groups WHERE id = $1`, id)
	return r.scan(row)
}

// ListByOwner returns the owner's groups, newest first.
func (r *Groups) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*domain.ClaimGroup, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+groupColumns+` FROM claim_groups WHERE owner_id = $1 ORDER BY created_at DESC`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("list claim groups: %w", err)
	}
	defer rows.Close()

	var out []*domain.ClaimGroup
	for rows.Next() {
		g, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate claim groups: %w", err)
	}
	return out, nil
}

// ConfirmConsent sets the group-level consent flag once.
func (r *Groups) ConfirmConsent(ctx context.Context, id uuid.UUID, at time.Time, ip string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE claim_groups SET
			consent_confirmed = TRUE, consent_confirmed_at = $2, consent_ip = $3
		WHERE id = $1 AND consent_confirmed = FALSE`,
		id, at, ip,
	)
	if err != nil {
		return fmt.Errorf("confirm group consent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.Conflict("consent_already_confirmed", "group consent is already confirmed")
	}
	return nil
}

func (r *Groups) scan(row pgx.Row) (*domain.ClaimGroup, error) {
	var (
		g          domain.ClaimGroup
		flightDate *time.Time
	)
	err := row.Scan(
		&g.ID, &g.OwnerID, &g.Name, &g.FlightNumber, &flightDate,
		&g.ConsentConfirmed, &g.ConsentConfirmedAt, &g.ConsentIP, &g.CreatedAt,
	)
	if noRows(err) {
		return nil, apperrors.NotFound(apperrors.CodeGroupNotFound, "claim group not found")
	}
	if err != nil {
		return nil, fmt.Errorf("scan claim group: %w", err)
	}
	if flightDate != nil {
		g.FlightDate = *flightDate
	}
	return &g, nil
}
