package auth

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"aeroclaim.io/aeroclaim/internal/config"
	"aeroclaim.io/aeroclaim/internal/domain"
	apperrors "aeroclaim.io/aeroclaim/internal/pkg/errors"
	"aeroclaim.io/aeroclaim/internal/pkg/kms"
	"aeroclaim.io/aeroclaim/internal/pkg/logger"
	"aeroclaim.io/aeroclaim/internal/repository"
	"aeroclaim.io/aeroclaim/internal/testutil"
)

func init() { _ = logger.Init("error", "json") }

type fixture struct {
	svc   *Service
	store *repository.Store
	pool  *pgxpool.Pool
	codec *kms.FieldCodec
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store, pool := testutil.OpenStore(t, "auth")
	rdb, _ := testutil.OpenRedis(t)
	codec := testutil.FieldCodec(t)

	svc, err := NewService(Deps{
		Config: config.AuthConfig{
			AccessTokenTTL:   15 * time.Minute,
			RefreshTokenTTL:  30 * 24 * time.Hour,
			MagicLinkTTL:     15 * time.Minute,
			PasswordResetTTL: time.Hour,
			EmailVerifyTTL:   24 * time.Hour,
			BcryptCost:       bcrypt.MinCost,
		},
		Policy: config.PasswordPolicy{MinLength: 8},
		Store:  store,
		Pool:   pool,
		Queue:  testutil.OpenQueue(t, pool),
		Redis:  rdb,
		Codec:  codec,
		Tokens: NewTokenIssuer(testutil.RandomKey(t), 15*time.Minute),
	})
	require.NoError(t, err)

	return &fixture{svc: svc, store: store, pool: pool, codec: codec}
}

func (f *fixture) register(t *testing.T, email, password string) *domain.Customer {
	t.Helper()

	customer, err := f.svc.Register(context.Background(), RegisterInput{
		Email:     email,
		Password:  password,
		FirstName: "Erika",
		LastName:  "Mustermann",
	})
	require.NoError(t, err)
	return customer
}

// uniqueEmail keeps accounts from colliding on the blind index across
// subtests sharing one schema.
func uniqueEmail() string {
	return fmt.Sprintf("%s@example.test", uuid.NewString())
}

// mailToken pulls the sealed single-use token out of the queued mail
// job and unseals it, standing in for the link the customer would get.
func (f *fixture) mailToken(t *testing.T, event domain.EventType, customerID uuid.UUID) string {
	t.Helper()

	var cipher string
	err := f.pool.QueryRow(context.Background(),
		`SELECT args->>'token_cipher' FROM river_job
		 WHERE kind = 'email_dispatch' AND args->>'event' = $1 AND args->>'customer_id' = $2
		 ORDER BY id DESC LIMIT 1`,
		string(event), customerID.String()).Scan(&cipher)
	require.NoError(t, err, "expected a queued %s mail", event)

	raw, err := f.codec.Decrypt(cipher)
	require.NoError(t, err)
	return raw
}

func (f *fixture) queuedMail(t *testing.T, event domain.EventType) int {
	t.Helper()

	var n int
	require.NoError(t, f.pool.QueryRow(context.Background(),
		`SELECT count(*) FROM river_job
		 WHERE kind = 'email_dispatch' AND args->>'event' = $1`, string(event)).Scan(&n))
	return n
}

func TestRegister_LoginRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	email := uniqueEmail()

	customer := f.register(t, email, "correct horse battery")
	assert.Equal(t, domain.RoleCustomer, customer.Role)
	assert.False(t, customer.EmailVerified, "verification happens via the mailed link")
	assert.Equal(t, 1, f.queuedMail(t, domain.EventEmailVerify))

	session, err := f.svc.Login(ctx, email, "correct horse battery", "test/1", "203.0.113.9")
	require.NoError(t, err)
	assert.Equal(t, customer.ID, session.Customer.ID)
	assert.NotEmpty(t, session.RefreshToken)
	assert.True(t, session.RefreshExpiresAt.After(session.AccessExpiresAt))

	claims, err := f.svc.tokens.Verify(session.AccessToken)
	require.NoError(t, err)
	id, err := claims.CustomerID()
	require.NoError(t, err)
	assert.Equal(t, customer.ID, id)

	// At rest only the refresh token digest exists.
	stored, err := f.store.RefreshTokens.GetByDigest(ctx, kms.DigestToken(session.RefreshToken))
	require.NoError(t, err)
	assert.Equal(t, customer.ID, stored.CustomerID)
	assert.Nil(t, stored.RevokedAt)
}

func TestRegister_DuplicateEmail(t *testing.T) {
	f := newFixture(t)
	email := uniqueEmail()
	f.register(t, email, "correct horse battery")

	_, err := f.svc.Register(context.Background(), RegisterInput{
		Email:    "  " + email + " ", // normalization must not dodge the index
		Password: "correct horse battery",
	})
	require.Error(t, err)
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.CodeEmailTaken, appErr.Code)
}

func TestRegister_WeakPasswordRejected(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Register(context.Background(), RegisterInput{
		Email:    uniqueEmail(),
		Password: "short",
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))
}

func TestLogin_WrongPasswordAndUnknownAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	email := uniqueEmail()
	f.register(t, email, "correct horse battery")

	_, err := f.svc.Login(ctx, email, "not the password", "test/1", "203.0.113.9")
	require.Error(t, err)
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.CodeInvalidCredentials, appErr.Code)

	// Unknown accounts are indistinguishable from a wrong password.
	_, err = f.svc.Login(ctx, uniqueEmail(), "whatever it is", "test/1", "203.0.113.9")
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.CodeInvalidCredentials, appErr.Code)
}

func TestLogin_LockoutAfterRepeatedFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	email := uniqueEmail()
	f.register(t, email, "correct horse battery")

	for i := 0; i < 2; i++ {
		_, err := f.svc.Login(ctx, email, "not the password", "test/1", "203.0.113.9")
		require.Error(t, err)
	}

	// The second failure starts the backoff; even the right password
	// bounces until it elapses.
	_, err := f.svc.Login(ctx, email, "correct horse battery", "test/1", "203.0.113.9")
	require.Error(t, err)
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.CodeAccountLocked, appErr.Code)
	assert.True(t, apperrors.IsKind(err, apperrors.KindAccountLocked))
}

func TestLogin_SuccessClearsFailureCounter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	email := uniqueEmail()
	customer := f.register(t, email, "correct horse battery")

	_, err := f.svc.Login(ctx, email, "not the password", "test/1", "203.0.113.9")
	require.Error(t, err)

	_, err = f.svc.Login(ctx, email, "correct horse battery", "test/1", "203.0.113.9")
	require.NoError(t, err)

	stored, err := f.store.Customers.GetByID(ctx, customer.ID)
	require.NoError(t, err)
	assert.Zero(t, stored.FailedLogins)
	assert.NotNil(t, stored.LastLoginAt)
}

func TestRefresh_RotationAndReuseDetection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	email := uniqueEmail()
	f.register(t, email, "correct horse battery")

	first, err := f.svc.Login(ctx, email, "correct horse battery", "test/1", "203.0.113.9")
	require.NoError(t, err)

	second, err := f.svc.Refresh(ctx, first.RefreshToken, "test/1", "203.0.113.9")
	require.NoError(t, err)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)

	// Replaying the rotated-out token is treated as theft: every live
	// token of the account goes with it.
	_, err = f.svc.Refresh(ctx, first.RefreshToken, "test/1", "203.0.113.9")
	require.Error(t, err)
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.CodeTokenRevoked, appErr.Code)

	_, err = f.svc.Refresh(ctx, second.RefreshToken, "test/1", "203.0.113.9")
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.CodeTokenRevoked, appErr.Code)
}

func TestRefresh_ExpiredToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	email := uniqueEmail()
	f.register(t, email, "correct horse battery")

	session, err := f.svc.Login(ctx, email, "correct horse battery", "test/1", "203.0.113.9")
	require.NoError(t, err)

	f.svc.now = func() time.Time { return time.Now().Add(31 * 24 * time.Hour) }
	_, err = f.svc.Refresh(ctx, session.RefreshToken, "test/1", "203.0.113.9")
	require.Error(t, err)
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.CodeTokenExpired, appErr.Code)
}

func TestLogout_RevokesRefreshTokens(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	email := uniqueEmail()
	customer := f.register(t, email, "correct horse battery")

	session, err := f.svc.Login(ctx, email, "correct horse battery", "test/1", "203.0.113.9")
	require.NoError(t, err)

	require.NoError(t, f.svc.Logout(ctx, customer.ID))

	_, err = f.svc.Refresh(ctx, session.RefreshToken, "test/1", "203.0.113.9")
	require.Error(t, err)
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.CodeTokenRevoked, appErr.Code)
}

func TestMagicLink_CreatesAccountAndSignsIn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	email := uniqueEmail()

	require.NoError(t, f.svc.RequestMagicLink(ctx, email, nil, "203.0.113.9"))

	customer, err := f.store.Customers.GetByEmail(ctx, email)
	require.NoError(t, err, "a first request creates a passwordless account")
	assert.False(t, customer.HasPassword())

	raw := f.mailToken(t, domain.EventMagicLink, customer.ID)
	session, claimID, err := f.svc.VerifyMagicLink(ctx, raw, "test/1", "203.0.113.9")
	require.NoError(t, err)
	assert.Nil(t, claimID)
	assert.Equal(t, customer.ID, session.Customer.ID)
	assert.True(t, session.Customer.EmailVerified, "a consumed link proves mailbox ownership")

	// Single use.
	_, _, err = f.svc.VerifyMagicLink(ctx, raw, "test/1", "203.0.113.9")
	require.Error(t, err)
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.CodeTokenConsumed, appErr.Code)
}

func TestMagicLink_ClaimBindingRequiresOwnership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	owner := testutil.SeedCustomer(t, f.store, domain.RoleCustomer)
	stranger := testutil.SeedCustomer(t, f.store, domain.RoleCustomer)
	claim := testutil.SeedDraftClaim(t, f.store, owner.ID)

	require.NoError(t, f.svc.RequestMagicLink(ctx, owner.Email, &claim.ID, "203.0.113.9"))
	raw := f.mailToken(t, domain.EventMagicLink, owner.ID)
	_, claimID, err := f.svc.VerifyMagicLink(ctx, raw, "test/1", "203.0.113.9")
	require.NoError(t, err)
	require.NotNil(t, claimID)
	assert.Equal(t, claim.ID, *claimID)

	// A claim the recipient does not own is silently unbound.
	require.NoError(t, f.svc.RequestMagicLink(ctx, stranger.Email, &claim.ID, "198.51.100.7"))
	raw = f.mailToken(t, domain.EventMagicLink, stranger.ID)
	_, claimID, err = f.svc.VerifyMagicLink(ctx, raw, "test/1", "198.51.100.7")
	require.NoError(t, err)
	assert.Nil(t, claimID)
}

func TestMagicLink_SupersedesPendingLinks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	customer := testutil.SeedCustomer(t, f.store, domain.RoleCustomer)

	require.NoError(t, f.svc.RequestMagicLink(ctx, customer.Email, nil, "203.0.113.9"))
	first := f.mailToken(t, domain.EventMagicLink, customer.ID)
	require.NoError(t, f.svc.RequestMagicLink(ctx, customer.Email, nil, "203.0.113.9"))

	_, _, err := f.svc.VerifyMagicLink(ctx, first, "test/1", "203.0.113.9")
	require.Error(t, err, "a newer link invalidates the pending one")
}

func TestMagicLink_RateLimited(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	email := uniqueEmail()

	for i := 0; i < 3; i++ {
		require.NoError(t, f.svc.RequestMagicLink(ctx, email, nil, "203.0.113.9"))
	}
	err := f.svc.RequestMagicLink(ctx, email, nil, "203.0.113.9")
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindRateLimited))
}

func TestPasswordReset_Flow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	email := uniqueEmail()
	customer := f.register(t, email, "correct horse battery")

	session, err := f.svc.Login(ctx, email, "correct horse battery", "test/1", "203.0.113.9")
	require.NoError(t, err)

	require.NoError(t, f.svc.RequestPasswordReset(ctx, email, "203.0.113.9"))
	raw := f.mailToken(t, domain.EventPasswordReset, customer.ID)
	require.NoError(t, f.svc.ResetPassword(ctx, raw, "a brand new passphrase"))

	// The reset revokes every live session.
	_, err = f.svc.Refresh(ctx, session.RefreshToken, "test/1", "203.0.113.9")
	require.Error(t, err)

	_, err = f.svc.Login(ctx, email, "correct horse battery", "test/1", "203.0.113.9")
	require.Error(t, err, "old password no longer works")
	_, err = f.svc.Login(ctx, email, "a brand new passphrase", "test/1", "203.0.113.9")
	require.NoError(t, err)

	stored, err := f.store.Customers.GetByID(ctx, customer.ID)
	require.NoError(t, err)
	assert.True(t, stored.EmailVerified, "a consumed reset link proves mailbox ownership")
}

func TestPasswordReset_UnknownEmailIsSilent(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.svc.RequestPasswordReset(context.Background(), uniqueEmail(), "203.0.113.9"))
	assert.Zero(t, f.queuedMail(t, domain.EventPasswordReset))
}

func TestChangePassword_VerifiesCurrentAndRevokesSessions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	email := uniqueEmail()
	customer := f.register(t, email, "correct horse battery")

	session, err := f.svc.Login(ctx, email, "correct horse battery", "test/1", "203.0.113.9")
	require.NoError(t, err)

	err = f.svc.ChangePassword(ctx, customer.ID, "not the password", "a brand new passphrase")
	require.Error(t, err)
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.CodeInvalidCredentials, appErr.Code)

	require.NoError(t, f.svc.ChangePassword(ctx, customer.ID, "correct horse battery", "a brand new passphrase"))

	_, err = f.svc.Refresh(ctx, session.RefreshToken, "test/1", "203.0.113.9")
	require.Error(t, err, "password change revokes refresh tokens")
	_, err = f.svc.Login(ctx, email, "a brand new passphrase", "test/1", "203.0.113.9")
	require.NoError(t, err)
}

func TestVerifyEmail_ConsumesMailedToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	email := uniqueEmail()
	customer := f.register(t, email, "correct horse battery")

	raw := f.mailToken(t, domain.EventEmailVerify, customer.ID)
	require.NoError(t, f.svc.VerifyEmail(ctx, raw))

	stored, err := f.store.Customers.GetByID(ctx, customer.ID)
	require.NoError(t, err)
	assert.True(t, stored.EmailVerified)

	err = f.svc.VerifyEmail(ctx, raw)
	require.Error(t, err)
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.CodeTokenConsumed, appErr.Code)
}

func TestAnonymize_RevokesEverythingAndBlocksLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	email := uniqueEmail()
	customer := f.register(t, email, "correct horse battery")

	session, err := f.svc.Login(ctx, email, "correct horse battery", "test/1", "203.0.113.9")
	require.NoError(t, err)

	require.NoError(t, f.svc.Anonymize(ctx, customer.ID))

	_, err = f.svc.Login(ctx, email, "correct horse battery", "test/1", "203.0.113.9")
	require.Error(t, err, "the scrubbed blind index no longer resolves the address")

	_, err = f.svc.Refresh(ctx, session.RefreshToken, "test/1", "203.0.113.9")
	require.Error(t, err)

	// The row survives without PII so claims keep a valid owner.
	stored, err := f.store.Customers.GetByID(ctx, customer.ID)
	require.NoError(t, err)
	assert.True(t, stored.Anonymized())
	assert.Empty(t, stored.Email)
	assert.Empty(t, stored.FirstName)
	assert.False(t, stored.HasPassword())

	_, err = f.store.Customers.GetByEmail(ctx, email)
	assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound),
		"the scrubbed blind index no longer resolves the address")
}
