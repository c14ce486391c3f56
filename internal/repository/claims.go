package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"aeroclaim.io/aeroclaim/internal/domain"
	apperrors "aeroclaim.io/aeroclaim/internal/pkg/errors"
	"aeroclaim.io/aeroclaim/internal/pkg/kms"
)

// Claims persists claim rows. Booking reference and ticket number are
// ciphertext at rest. Every mutation bumps the version column; writers
// CAS against the version they read.
type Claims struct {
	db    DBTX
	codec *kms.FieldCodec
}

const claimColumns = `id, customer_id, group_id, flight_number, flight_date, airline,
	departure_airport, arrival_airport,
	scheduled_departure, scheduled_arrival, actual_departure, actual_arrival,
	incident_type, incident_description, status,
	compensation_amount::text, compensation_currency, flight_distance_km, delay_minutes,
	extraordinary, rejection_reason, assignee_id, reviewer_id,
	booking_reference_enc, ticket_number_enc,
	terms_consent_at, privacy_consent_at, consent_ip,
	version, created_at, submitted_at, updated_at`

// Create inserts a fresh draft.
func (r *Claims) Create(ctx context.Context, c *domain.Claim) error {
	bookingEnc, ticketEnc, err := r.encryptRefs(c)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO claims (
			id, customer_id, group_id, flight_number, flight_date, airline,
			departure_airport, arrival_airport,
			scheduled_departure, scheduled_arrival, actual_departure, actual_arrival,
			incident_type, incident_description, status,
			extraordinary, booking_reference_enc, ticket_number_enc,
			terms_consent_at, privacy_consent_at, consent_ip,
			version, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,1,$22,$22)`,
		c.ID, c.CustomerID, c.GroupID, c.FlightNumber, dateOrNil(c.FlightDate), c.Airline,
		c.DepartureAirport, c.ArrivalAirport,
		c.ScheduledDeparture, c.ScheduledArrival, c.ActualDeparture, c.ActualArrival,
		c.IncidentType, c.IncidentDescription, c.Status,
		c.Extraordinary, bookingEnc, ticketEnc,
		c.TermsConsentAt, c.PrivacyConsentAt, c.ConsentIP,
		c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert claim: %w", err)
	}
	return nil
}

// GetByID loads one claim.
func (r *Claims) GetByID(ctx context.Context, id uuid.UUID) (*domain.Claim, error) {
	row := r.db.QueryRow(ctx, `SELECT `+claimColumns+` FROM claims WHERE id = $1`, id)
	return r.scan(row)
}

// GetForUpdate loads one claim under a row lock. Only meaningful
// inside a transaction.
func (r *Claims) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Claim, error) {
	row := r.db.QueryRow(ctx, `SELECT `+claimColumns+` FROM claims WHERE id = $1 FOR UPDATE`, id)
	return r.scan(row)
}

// ListByGroup returns all member claims of a group.
func (r *Claims) ListByGroup(ctx context.Context, groupID uuid.UUID) ([]*domain.Claim, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+claimColumns+` FROM claims WHERE group_id = $1 ORDER BY created_at`, groupID)
	if err != nil {
		return nil, fmt.Errorf("list claims by group: %w", err)
	}
	return r.scanAll(rows)
}

// ListByGroupForUpdate locks and returns all member claims, ordered by
// id so concurrent bulk actions acquire locks in the same order.
func (r *Claims) ListByGroupForUpdate(ctx context.Context, groupID uuid.UUID) ([]*domain.Claim, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+claimColumns+` FROM claims WHERE group_id = $1 ORDER BY id FOR UPDATE`, groupID)
	if err != nil {
		return nil, fmt.Errorf("lock claims by group: %w", err)
	}
	return r.scanAll(rows)
}

// UpdateDraft rewrites the editable fields of a draft, CAS on version.
func (r *Claims) UpdateDraft(ctx context.Context, c *domain.Claim) error {
	bookingEnc, ticketEnc, err := r.encryptRefs(c)
	if err != nil {
		return err
	}

	tag, err := r.db.Exec(ctx, `
		UPDATE claims SET
			group_id = $2, flight_number = $3, flight_date = $4, airline = $5,
			departure_airport = $6, arrival_airport = $7,
			scheduled_departure = $8, scheduled_arrival = $9,
			actual_departure = $10, actual_arrival = $11,
			incident_type = $12, incident_description = $13, extraordinary = $14,
			booking_reference_enc = $15, ticket_number_enc = $16,
			terms_consent_at = $17, privacy_consent_at = $18, consent_ip = $19,
			version = version + 1, updated_at = NOW()
		WHERE id = $1 AND status = 'draft' AND version = $20`,
		c.ID, c.GroupID, c.FlightNumber, dateOrNil(c.FlightDate), c.Airline,
		c.DepartureAirport, c.ArrivalAirport,
		c.ScheduledDeparture, c.ScheduledArrival,
		c.ActualDeparture, c.ActualArrival,
		c.IncidentType, c.IncidentDescription, c.Extraordinary,
		bookingEnc, ticketEnc,
		c.TermsConsentAt, c.PrivacyConsentAt, c.ConsentIP,
		c.Version,
	)
	if err != nil {
		return fmt.Errorf("update draft: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrConcurrentModification()
	}
	c.Version++
	return nil
}

// StatusUpdate is one CAS transition write. Nil optional fields leave
// the column untouched.
type StatusUpdate struct {
	ClaimID         uuid.UUID
	ExpectedVersion int
	To              domain.ClaimStatus

	SubmittedAt  *time.Time
	Amount       *decimal.Decimal
	Currency     string
	DistanceKm   *float64
	DelayMinutes *int
	Reason       string
	ReviewerID   *uuid.UUID
}

// ApplyStatus flips the status under the optimistic lock. A version
// mismatch maps to concurrent_modification; tripping the one-live-claim
// index maps to duplicate_claim.
func (r *Claims) ApplyStatus(ctx context.Context, u StatusUpdate) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE claims SET
			status = $2,
			submitted_at = COALESCE($3, submitted_at),
			compensation_amount = COALESCE($4::numeric, compensation_amount),
			compensation_currency = COALESCE(NULLIF($5, ''), compensation_currency),
			flight_distance_km = COALESCE($6, flight_distance_km),
			delay_minutes = COALESCE($7, delay_minutes),
			rejection_reason = COALESCE(NULLIF($8, ''), rejection_reason),
			reviewer_id = COALESCE($9, reviewer_id),
			version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $10`,
		u.ClaimID, u.To,
		u.SubmittedAt, decimalParam(u.Amount), u.Currency,
		u.DistanceKm, u.DelayMinutes, u.Reason, u.ReviewerID,
		u.ExpectedVersion,
	)
	if isUniqueViolation(err, "claims_no_duplicate_submission_idx") {
		return apperrors.Conflict(apperrors.CodeDuplicateClaim,
			"a claim for this flight already exists")
	}
	if err != nil {
		return fmt.Errorf("apply claim status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrConcurrentModification()
	}
	return nil
}

// ExistsActive reports whether a non-draft, non-discarded claim already
// exists for (customer, flight number, flight date). Used for the
// friendly pre-check; the partial unique index remains the authority.
func (r *Claims) ExistsActive(ctx context.Context, customerID uuid.UUID, flightNumber string, flightDate time.Time) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM claims
			WHERE customer_id = $1 AND flight_number = $2 AND flight_date = $3
			  AND status NOT IN ('draft', 'discarded')
		)`,
		customerID, flightNumber, dateOrNil(flightDate),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check duplicate claim: %w", err)
	}
	return exists, nil
}

// ListFilter narrows List and Count. Nil fields are not applied.
type ListFilter struct {
	CustomerID *uuid.UUID
	GroupID    *uuid.UUID
	Status     *domain.ClaimStatus
	Limit      int
	Offset     int
}

// List returns claims newest-first.
func (r *Claims) List(ctx context.Context, f ListFilter) ([]*domain.Claim, error) {
	where, args := f.whereClause()

	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	args = append(args, limit, f.Offset)
	query := fmt.Sprintf(`SELECT %s FROM claims %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		claimColumns, where, len(args)-1, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list claims: %w", err)
	}
	return r.scanAll(rows)
}

// Count returns the number of claims matching the filter.
func (r *Claims) Count(ctx context.Context, f ListFilter) (int64, error) {
	where, args := f.whereClause()

	var n int64
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM claims `+where, args...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count claims: %w", err)
	}
	return n, nil
}

func (f ListFilter) whereClause() (string, []any) {
	where := ""
	var args []any
	add := func(cond string, arg any) {
		args = append(args, arg)
		clause := fmt.Sprintf(cond, len(args))
		if where == "" {
			where = "WHERE " + clause
		} else {
			where += " AND " + clause
		}
	}

	if f.CustomerID != nil {
		add("customer_id = $%d", *f.CustomerID)
	}
	if f.GroupID != nil {
		add("group_id = $%d", *f.GroupID)
	}
	if f.Status != nil {
		add("status = $%d", *f.Status)
	}
	return where, args
}

// ListStaleDrafts returns drafts created before the cutoff, oldest
// first. The sweep uses it both for reminders and for discards.
func (r *Claims) ListStaleDrafts(ctx context.Context, createdBefore time.Time, limit int) ([]*domain.Claim, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+claimColumns+` FROM claims
		WHERE status = 'draft' AND created_at <= $1
		ORDER BY created_at
		LIMIT $2`,
		createdBefore, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list stale drafts: %w", err)
	}
	return r.scanAll(rows)
}

func (r *Claims) encryptRefs(c *domain.Claim) (booking, ticket string, err error) {
	if c.BookingReference != "" {
		if booking, err = r.codec.Encrypt(c.BookingReference); err != nil {
			return "", "", fmt.Errorf("encrypt booking reference: %w", err)
		}
	}
	if c.TicketNumber != "" {
		if ticket, err = r.codec.Encrypt(c.TicketNumber); err != nil {
			return "", "", fmt.Errorf("encrypt ticket number: %w", err)
		}
	}
	return booking, ticket, nil
}

func (r *Claims) scan(row pgx.Row) (*domain.Claim, error) {
	c, err := r.scanRow(row)
	if noRows(err) {
		return nil, apperrors.ErrClaimNotFound()
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (r *Claims) scanAll(rows pgx.Rows) ([]*domain.Claim, error) {
	defer rows.Close()

	var out []*domain.Claim
	for rows.Next() {
		c, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate claims: %w", err)
	}
	return out, nil
}

func (r *Claims) scanRow(row pgx.Row) (*domain.Claim, error) {
	var (
		c          domain.Claim
		flightDate *time.Time
		amountText *string
		bookingEnc string
		ticketEnc  string
	)
	err := row.Scan(
		&c.ID, &c.CustomerID, &c.GroupID, &c.FlightNumber, &flightDate, &c.Airline,
		&c.DepartureAirport, &c.ArrivalAirport,
		&c.ScheduledDeparture, &c.ScheduledArrival, &c.ActualDeparture, &c.ActualArrival,
		&c.IncidentType, &c.IncidentDescription, &c.Status,
		&amountText, &c.CompensationCurrency, &c.FlightDistanceKm, &c.DelayMinutes,
		&c.Extraordinary, &c.RejectionReason, &c.AssigneeID, &c.ReviewerID,
		&bookingEnc, &ticketEnc,
		&c.TermsConsentAt, &c.PrivacyConsentAt, &c.ConsentIP,
		&c.Version, &c.CreatedAt, &c.SubmittedAt, &c.UpdatedAt,
	)
	if err != nil {
		if noRows(err) {
			return nil, err
		}
		return nil, fmt.Errorf("scan claim: %w", err)
	}

	if flightDate != nil {
		c.FlightDate = *flightDate
	}
	if amountText != nil {
		amount, err := decimal.NewFromString(*amountText)
		if err != nil {
			return nil, fmt.Errorf("parse compensation amount: %w", err)
		}
		c.CompensationAmount = &amount
	}
	if bookingEnc != "" {
		if c.BookingReference, err = r.codec.Decrypt(bookingEnc); err != nil {
			return nil, fmt.Errorf("decrypt booking reference: %w", err)
		}
	}
	if ticketEnc != "" {
		if c.TicketNumber, err = r.codec.Decrypt(ticketEnc); err != nil {
			return nil, fmt.Errorf("decrypt ticket number: %w", err)
		}
	}
	return &c, nil
}

// dateOrNil maps the zero time to NULL for DATE columns.
func dateOrNil(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// decimalParam renders a decimal for a ::numeric cast parameter.
func decimalParam(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.StringFixed(2)
	return &s
}
