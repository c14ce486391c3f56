// Package auth implements account registration, password and
// magic-link login, access/refresh token issuance and the lockout and
// rate-limit policy around them.
//
// Import Path (ADR-0016): aeroclaim.io/aeroclaim/internal/auth
package auth

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"aeroclaim.io/aeroclaim/internal/config"
	"aeroclaim.io/aeroclaim/internal/domain"
	"aeroclaim.io/aeroclaim/internal/jobs"
	apperrors "aeroclaim.io/aeroclaim/internal/pkg/errors"
	"aeroclaim.io/aeroclaim/internal/pkg/kms"
	"aeroclaim.io/aeroclaim/internal/pkg/logger"
	"aeroclaim.io/aeroclaim/internal/repository"
)

// failureCounterTTL matches the longest lockout step so stale counters
// decay on their own.
const failureCounterTTL = 24 * time.Hour

// Session is the result of a successful authentication. RefreshToken
// is the raw value and is returned exactly once; only its digest is
// stored.
type Session struct {
	Customer         *domain.Customer
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// Deps bundles the service dependencies (ADR-0013: manual wiring).
type Deps struct {
	Config config.AuthConfig
	Policy config.PasswordPolicy
	Store  *repository.Store
	Pool   *pgxpool.Pool
	Queue  *river.Client[pgx.Tx]
	Redis  redis.UniversalClient
	Codec  *kms.FieldCodec
	Tokens *TokenIssuer
}

// Service implements the authentication operations. All mail is
// enqueued transactionally with the token row it announces; nothing is
// sent on the request path.
type Service struct {
	cfg    config.AuthConfig
	policy config.PasswordPolicy

	store   *repository.Store
	pool    *pgxpool.Pool
	queue   *river.Client[pgx.Tx]
	limiter *Limiter
	tokens  *TokenIssuer
	codec   *kms.FieldCodec

	// dummyHash keeps the no-such-account path as expensive as a real
	// bcrypt comparison.
	dummyHash string
	now       func() time.Time
}

// NewService wires an auth service.
func NewService(d Deps) (*Service, error) {
	dummy, err := HashPassword(uuid.NewString(), d.Config.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("prepare dummy hash: %w", err)
	}
	return &Service{
		cfg:       d.Config,
		policy:    d.Policy,
		store:     d.Store,
		pool:      d.Pool,
		queue:     d.Queue,
		limiter:   NewLimiter(d.Redis),
		tokens:    d.Tokens,
		codec:     d.Codec,
		dummyHash: dummy,
		now:       time.Now,
	}, nil
}

// RegisterInput carries the self-service signup fields.
type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Phone     string
	Address   domain.Address
}

// Register creates a password-bearing account and enqueues the
// verification mail in the same transaction as the customer row.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*domain.Customer, error) {
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	if err := ValidatePassword(s.policy, in.Password); err != nil {
		return nil, err
	}
	hash, err := HashPassword(in.Password, s.cfg.BcryptCost)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	customer := &domain.Customer{
		ID:           uuid.Must(uuid.NewV7()),
		Email:        email,
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Phone:        strings.TrimSpace(in.Phone),
		Address:      in.Address,
		Role:         domain.RoleCustomer,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin register: %w", err)
	}
	defer tx.Rollback(ctx)
	st := s.store.WithTx(tx)

	if err := st.Customers.Create(ctx, customer); err != nil {
		return nil, err
	}
	if err := s.issueLoginToken(ctx, st, tx, customer, domain.PurposeEmailVerify, nil, now); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit register: %w", err)
	}

	logger.Info("customer registered", zap.String("customer_id", customer.ID.String()))
	return customer, nil
}

// Login performs a password login. The observable latency never drops
// below the configured floor, and unknown accounts burn a bcrypt
// comparison so response times do not leak existence.
func (s *Service) Login(ctx context.Context, email, password, userAgent, clientIP string) (*Session, error) {
	started := s.now()
	defer s.holdLoginFloor(ctx, started)

	email, err := normalizeEmail(email)
	if err != nil {
		return nil, apperrors.ErrInvalidCredentials()
	}
	if err := s.limiter.Allow(ctx, "rl:login:ip:"+clientIP, loginIPLimit, loginIPWindow); err != nil {
		return nil, err
	}
	if err := s.limiter.Allow(ctx, "rl:login:email:"+kms.DigestToken(email), loginEmailLimit, loginEmailWindow); err != nil {
		return nil, err
	}

	customer, err := s.store.Customers.GetByEmail(ctx, email)
	if err != nil {
		CheckPassword(s.dummyHash, password)
		if apperrors.IsKind(err, apperrors.KindNotFound) {
			return nil, apperrors.ErrInvalidCredentials()
		}
		return nil, err
	}

	now := s.now().UTC()
	if customer.Locked(now) {
		return nil, apperrors.AccountLocked(apperrors.CodeAccountLocked,
			"account is temporarily locked, try again later")
	}
	if customer.Anonymized() || !customer.HasPassword() {
		CheckPassword(s.dummyHash, password)
		return nil, apperrors.ErrInvalidCredentials()
	}

	if !CheckPassword(customer.PasswordHash, password) {
		s.recordFailure(ctx, customer)
		return nil, apperrors.ErrInvalidCredentials()
	}

	s.limiter.Clear(ctx, failKey(customer.ID))
	if err := s.store.Customers.RecordLoginSuccess(ctx, customer.ID, now); err != nil {
		logger.Warn("failed to record login success",
			zap.String("customer_id", customer.ID.String()), zap.Error(err))
	}
	return s.issueSession(ctx, s.store, customer, userAgent, clientIP)
}

// Refresh rotates a refresh token: the presented token is revoked and a
// replacement issued in one transaction. Presenting an already-rotated
// token is treated as theft and revokes every live token of the account.
func (s *Service) Refresh(ctx context.Context, rawToken, userAgent, clientIP string) (*Session, error) {
	if rawToken == "" {
		return nil, apperrors.Unauthenticated(apperrors.CodeTokenInvalid, "refresh token is required")
	}
	digest := kms.DigestToken(rawToken)
	now := s.now().UTC()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin refresh: %w", err)
	}
	defer tx.Rollback(ctx)
	st := s.store.WithTx(tx)

	current, err := st.RefreshTokens.GetByDigest(ctx, digest)
	if err != nil {
		return nil, err
	}
	if current.RevokedAt != nil {
		if _, err := st.RefreshTokens.RevokeAllForCustomer(ctx, current.CustomerID, now); err != nil {
			return nil, err
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("commit revocation: %w", err)
		}
		logger.Warn("rotated-out refresh token presented, revoking all sessions",
			zap.String("customer_id", current.CustomerID.String()))
		return nil, apperrors.Unauthenticated(apperrors.CodeTokenRevoked, "refresh token has been revoked")
	}
	if !current.ExpiresAt.After(now) {
		return nil, apperrors.Unauthenticated(apperrors.CodeTokenExpired, "refresh token has expired")
	}

	customer, err := st.Customers.GetByID(ctx, current.CustomerID)
	if err != nil {
		return nil, err
	}

	raw, nextDigest, err := kms.NewToken()
	if err != nil {
		return nil, fmt.Errorf("issue refresh token: %w", err)
	}
	next := &domain.RefreshToken{
		ID:          uuid.Must(uuid.NewV7()),
		CustomerID:  customer.ID,
		TokenDigest: nextDigest,
		IssuedAt:    now,
		ExpiresAt:   now.Add(s.cfg.RefreshTokenTTL),
		UserAgent:   userAgent,
		ClientIP:    clientIP,
	}
	if err := st.RefreshTokens.Insert(ctx, next); err != nil {
		return nil, err
	}
	rotated, err := st.RefreshTokens.Revoke(ctx, current.ID, now, &next.ID)
	if err != nil {
		return nil, err
	}
	if !rotated {
		// Lost a race against a concurrent rotation of the same token.
		return nil, apperrors.Unauthenticated(apperrors.CodeTokenRevoked, "refresh token has been revoked")
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit refresh rotation: %w", err)
	}

	access, accessExpiry, err := s.tokens.Issue(customer, now)
	if err != nil {
		return nil, err
	}
	return &Session{
		Customer:         customer,
		AccessToken:      access,
		AccessExpiresAt:  accessExpiry,
		RefreshToken:     raw,
		RefreshExpiresAt: next.ExpiresAt,
	}, nil
}

// Logout revokes every refresh token of the customer.
func (s *Service) Logout(ctx context.Context, customerID uuid.UUID) error {
	n, err := s.store.RefreshTokens.RevokeAllForCustomer(ctx, customerID, s.now().UTC())
	if err != nil {
		return err
	}
	logger.Debug("logout revoked refresh tokens",
		zap.String("customer_id", customerID.String()), zap.Int64("revoked", n))
	return nil
}

// RequestMagicLink issues a single-use sign-in link. The outcome is
// indistinguishable to the caller whether or not the address is known;
// a first request creates a passwordless account. Pending links for the
// account are superseded.
func (s *Service) RequestMagicLink(ctx context.Context, email string, claimID *uuid.UUID, clientIP string) error {
	email, err := normalizeEmail(email)
	if err != nil {
		// Quietly drop malformed addresses; the endpoint never confirms.
		return nil
	}
	if err := s.limiter.Allow(ctx, "rl:magic:ip:"+clientIP, magicLinkLimit, magicLinkWindow); err != nil {
		return err
	}
	if err := s.limiter.Allow(ctx, "rl:magic:email:"+kms.DigestToken(email), magicLinkLimit, magicLinkWindow); err != nil {
		return err
	}

	now := s.now().UTC()
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin magic link request: %w", err)
	}
	defer tx.Rollback(ctx)
	st := s.store.WithTx(tx)

	customer, err := st.Customers.GetByEmail(ctx, email)
	switch {
	case apperrors.IsKind(err, apperrors.KindNotFound):
		customer = &domain.Customer{
			ID:        uuid.Must(uuid.NewV7()),
			Email:     email,
			Role:      domain.RoleCustomer,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := st.Customers.Create(ctx, customer); err != nil {
			return err
		}
	case err != nil:
		return err
	}
	if customer.Anonymized() {
		return nil
	}

	// Bind the link to a claim only when the recipient owns it.
	if claimID != nil {
		claim, err := st.Claims.GetByID(ctx, *claimID)
		if err != nil || claim.CustomerID != customer.ID {
			claimID = nil
		}
	}

	if err := st.LoginTokens.InvalidatePending(ctx, customer.ID, domain.PurposeMagicLink, now); err != nil {
		return err
	}
	if err := s.issueLoginToken(ctx, st, tx, customer, domain.PurposeMagicLink, claimID, now); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit magic link request: %w", err)
	}
	return nil
}

// VerifyMagicLink consumes a magic-link token and signs the account in.
// Returns the claim id the link was bound to, if any, for deep-linking.
func (s *Service) VerifyMagicLink(ctx context.Context, rawToken, userAgent, clientIP string) (*Session, *uuid.UUID, error) {
	if rawToken == "" {
		return nil, nil, apperrors.Unauthenticated(apperrors.CodeTokenInvalid, "token is required")
	}
	digest := kms.DigestToken(rawToken)
	now := s.now().UTC()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("begin magic link verify: %w", err)
	}
	defer tx.Rollback(ctx)
	st := s.store.WithTx(tx)

	token, err := st.LoginTokens.Consume(ctx, digest, domain.PurposeMagicLink, now)
	if err != nil {
		return nil, nil, s.classifyTokenFailure(ctx, digest, err)
	}
	customer, err := st.Customers.GetByID(ctx, token.CustomerID)
	if err != nil {
		return nil, nil, err
	}
	if customer.Anonymized() {
		return nil, nil, apperrors.Unauthenticated(apperrors.CodeTokenInvalid, "token is invalid or has expired")
	}

	// A consumed link proves mailbox ownership.
	if !customer.EmailVerified {
		if err := st.Customers.MarkEmailVerified(ctx, customer.ID); err != nil {
			return nil, nil, err
		}
		customer.EmailVerified = true
	}
	if err := st.Customers.RecordLoginSuccess(ctx, customer.ID, now); err != nil {
		return nil, nil, err
	}
	session, err := s.issueSession(ctx, st, customer, userAgent, clientIP)
	if err != nil {
		return nil, nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("commit magic link verify: %w", err)
	}

	s.limiter.Clear(ctx, failKey(customer.ID))
	return session, token.ClaimID, nil
}

// RequestPasswordReset issues a reset link. Like the magic-link
// endpoint it never discloses whether the address is registered.
func (s *Service) RequestPasswordReset(ctx context.Context, email, clientIP string) error {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil
	}
	if err := s.limiter.Allow(ctx, "rl:reset:email:"+kms.DigestToken(email), resetLimit, resetWindow); err != nil {
		return err
	}

	customer, err := s.store.Customers.GetByEmail(ctx, email)
	if apperrors.IsKind(err, apperrors.KindNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if customer.Anonymized() {
		return nil
	}

	now := s.now().UTC()
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin reset request: %w", err)
	}
	defer tx.Rollback(ctx)
	st := s.store.WithTx(tx)

	if err := st.LoginTokens.InvalidatePending(ctx, customer.ID, domain.PurposePasswordReset, now); err != nil {
		return err
	}
	if err := s.issueLoginToken(ctx, st, tx, customer, domain.PurposePasswordReset, nil, now); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit reset request: %w", err)
	}
	return nil
}

// ResetPassword consumes a reset token, sets the new password and
// revokes every refresh token of the account.
func (s *Service) ResetPassword(ctx context.Context, rawToken, newPassword string) error {
	if err := ValidatePassword(s.policy, newPassword); err != nil {
		return err
	}
	hash, err := HashPassword(newPassword, s.cfg.BcryptCost)
	if err != nil {
		return err
	}
	digest := kms.DigestToken(rawToken)
	now := s.now().UTC()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin password reset: %w", err)
	}
	defer tx.Rollback(ctx)
	st := s.store.WithTx(tx)

	token, err := st.LoginTokens.Consume(ctx, digest, domain.PurposePasswordReset, now)
	if err != nil {
		return s.classifyTokenFailure(ctx, digest, err)
	}
	if err := st.Customers.SetPassword(ctx, token.CustomerID, hash); err != nil {
		return err
	}
	if err := st.Customers.MarkEmailVerified(ctx, token.CustomerID); err != nil {
		return err
	}
	if _, err := st.RefreshTokens.RevokeAllForCustomer(ctx, token.CustomerID, now); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit password reset: %w", err)
	}

	s.limiter.Clear(ctx, failKey(token.CustomerID))
	return nil
}

// VerifyEmail consumes an email-verification token.
func (s *Service) VerifyEmail(ctx context.Context, rawToken string) error {
	if rawToken == "" {
		return apperrors.Unauthenticated(apperrors.CodeTokenInvalid, "token is required")
	}
	digest := kms.DigestToken(rawToken)
	now := s.now().UTC()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin email verify: %w", err)
	}
	defer tx.Rollback(ctx)
	st := s.store.WithTx(tx)

	token, err := st.LoginTokens.Consume(ctx, digest, domain.PurposeEmailVerify, now)
	if err != nil {
		return s.classifyTokenFailure(ctx, digest, err)
	}
	if err := st.Customers.MarkEmailVerified(ctx, token.CustomerID); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit email verify: %w", err)
	}
	return nil
}

// ChangePassword verifies the current password (when one is set) and
// replaces it, revoking all refresh tokens.
func (s *Service) ChangePassword(ctx context.Context, customerID uuid.UUID, current, next string) error {
	customer, err := s.store.Customers.GetByID(ctx, customerID)
	if err != nil {
		return err
	}
	if customer.HasPassword() && !CheckPassword(customer.PasswordHash, current) {
		return apperrors.ErrInvalidCredentials()
	}
	if err := ValidatePassword(s.policy, next); err != nil {
		return err
	}
	hash, err := HashPassword(next, s.cfg.BcryptCost)
	if err != nil {
		return err
	}

	now := s.now().UTC()
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin password change: %w", err)
	}
	defer tx.Rollback(ctx)
	st := s.store.WithTx(tx)

	if err := st.Customers.SetPassword(ctx, customerID, hash); err != nil {
		return err
	}
	if _, err := st.RefreshTokens.RevokeAllForCustomer(ctx, customerID, now); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit password change: %w", err)
	}
	return nil
}

// Anonymize scrubs the account's PII to sentinels and revokes every
// live credential. The row survives so claims keep a valid owner.
func (s *Service) Anonymize(ctx context.Context, customerID uuid.UUID) error {
	now := s.now().UTC()
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin anonymize: %w", err)
	}
	defer tx.Rollback(ctx)
	st := s.store.WithTx(tx)

	if err := st.Customers.Anonymize(ctx, customerID, now); err != nil {
		return err
	}
	if _, err := st.RefreshTokens.RevokeAllForCustomer(ctx, customerID, now); err != nil {
		return err
	}
	for _, purpose := range []domain.TokenPurpose{
		domain.PurposeMagicLink, domain.PurposePasswordReset, domain.PurposeEmailVerify,
	} {
		if err := st.LoginTokens.InvalidatePending(ctx, customerID, purpose, now); err != nil {
			return err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit anonymize: %w", err)
	}

	s.limiter.Clear(ctx, failKey(customerID))
	logger.Info("customer anonymized", zap.String("customer_id", customerID.String()))
	return nil
}

// issueLoginToken inserts a purpose-tagged single-use token and
// enqueues its mail in the caller's transaction. The raw token travels
// to the dispatcher encrypted; at rest only the digest exists.
func (s *Service) issueLoginToken(ctx context.Context, st *repository.Store, tx pgx.Tx,
	customer *domain.Customer, purpose domain.TokenPurpose, claimID *uuid.UUID, now time.Time) error {

	raw, digest, err := kms.NewToken()
	if err != nil {
		return fmt.Errorf("issue %s token: %w", purpose, err)
	}
	cipher, err := s.codec.Encrypt(raw)
	if err != nil {
		return fmt.Errorf("seal %s token: %w", purpose, err)
	}

	var ttl time.Duration
	var event domain.EventType
	switch purpose {
	case domain.PurposeMagicLink:
		ttl, event = s.cfg.MagicLinkTTL, domain.EventMagicLink
	case domain.PurposePasswordReset:
		ttl, event = s.cfg.PasswordResetTTL, domain.EventPasswordReset
	case domain.PurposeEmailVerify:
		ttl, event = s.cfg.EmailVerifyTTL, domain.EventEmailVerify
	default:
		return fmt.Errorf("unknown token purpose %q", purpose)
	}

	if err := st.LoginTokens.Insert(ctx, &domain.LoginToken{
		ID:          uuid.Must(uuid.NewV7()),
		CustomerID:  customer.ID,
		Purpose:     purpose,
		TokenDigest: digest,
		ClaimID:     claimID,
		ExpiresAt:   now.Add(ttl),
		CreatedAt:   now,
	}); err != nil {
		return err
	}

	if _, err := s.queue.InsertTx(ctx, tx, jobs.EmailArgs{
		Event:       event,
		CustomerID:  customer.ID,
		ClaimID:     claimID,
		TokenCipher: cipher,
		DedupeKey:   string(event) + ":" + digest,
	}, nil); err != nil {
		return fmt.Errorf("enqueue %s mail: %w", purpose, err)
	}
	return nil
}

// issueSession inserts a refresh token through st and signs an access
// token. Callers running inside a transaction pass their tx-bound store.
func (s *Service) issueSession(ctx context.Context, st *repository.Store,
	customer *domain.Customer, userAgent, clientIP string) (*Session, error) {

	now := s.now().UTC()
	raw, digest, err := kms.NewToken()
	if err != nil {
		return nil, fmt.Errorf("issue refresh token: %w", err)
	}
	refresh := &domain.RefreshToken{
		ID:          uuid.Must(uuid.NewV7()),
		CustomerID:  customer.ID,
		TokenDigest: digest,
		IssuedAt:    now,
		ExpiresAt:   now.Add(s.cfg.RefreshTokenTTL),
		UserAgent:   userAgent,
		ClientIP:    clientIP,
	}
	if err := st.RefreshTokens.Insert(ctx, refresh); err != nil {
		return nil, err
	}

	access, accessExpiry, err := s.tokens.Issue(customer, now)
	if err != nil {
		return nil, err
	}
	return &Session{
		Customer:         customer,
		AccessToken:      access,
		AccessExpiresAt:  accessExpiry,
		RefreshToken:     raw,
		RefreshExpiresAt: refresh.ExpiresAt,
	}, nil
}

// classifyTokenFailure upgrades a generic consume failure to the
// precise wire code (consumed vs expired) when the digest is known.
func (s *Service) classifyTokenFailure(ctx context.Context, digest string, cause error) error {
	if !apperrors.IsKind(cause, apperrors.KindUnauthenticated) {
		return cause
	}
	token, err := s.store.LoginTokens.Find(ctx, digest)
	if err != nil || token == nil {
		return cause
	}
	switch {
	case token.UsedAt != nil:
		return apperrors.Unauthenticated(apperrors.CodeTokenConsumed, "this link has already been used")
	case !token.ExpiresAt.After(s.now().UTC()):
		return apperrors.Unauthenticated(apperrors.CodeTokenExpired, "this link has expired")
	}
	return cause
}

// recordFailure bumps the Redis failure counter and persists the
// backoff lockout to the row. Redis being down degrades to the
// row-local counter rather than skipping the lockout.
func (s *Service) recordFailure(ctx context.Context, customer *domain.Customer) {
	failures, err := s.limiter.Bump(ctx, failKey(customer.ID), failureCounterTTL)
	if err != nil {
		logger.Warn("failure counter unavailable, using row counter", zap.Error(err))
		failures = customer.FailedLogins + 1
	}

	var lockedUntil *time.Time
	if d := lockoutAfter(failures); d > 0 {
		t := s.now().UTC().Add(d)
		lockedUntil = &t
	}
	if err := s.store.Customers.RecordLoginFailure(ctx, customer.ID, failures, lockedUntil); err != nil {
		logger.Error("failed to persist login failure",
			zap.String("customer_id", customer.ID.String()), zap.Error(err))
	}
}

// holdLoginFloor sleeps until the configured minimum login latency has
// elapsed, masking the cheap rejection paths.
func (s *Service) holdLoginFloor(ctx context.Context, started time.Time) {
	if s.cfg.LoginFloor <= 0 {
		return
	}
	remaining := s.cfg.LoginFloor - s.now().Sub(started)
	if remaining <= 0 {
		return
	}
	timer := time.NewTimer(remaining)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// lockoutAfter maps consecutive failures to the backoff schedule.
func lockoutAfter(failures int) time.Duration {
	switch {
	case failures <= 1:
		return 0
	case failures == 2:
		return 30 * time.Second
	case failures == 3:
		return 2 * time.Minute
	case failures == 4:
		return 10 * time.Minute
	default:
		return 24 * time.Hour
	}
}

func failKey(customerID uuid.UUID) string {
	return "auth:fail:" + customerID.String()
}

// normalizeEmail lowercases, trims and validates an address. The
// normalized form feeds the blind index, so it must be deterministic.
func normalizeEmail(raw string) (string, error) {
	email := kms.Normalize(raw)
	if email == "" || len(email) > 254 {
		return "", apperrors.Validation(apperrors.CodeValidationFailed, "a valid email address is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", apperrors.Validation(apperrors.CodeValidationFailed, "a valid email address is required")
	}
	return email, nil
}
