// Package docpipe is the secure document pipeline. An upload passes a
// fixed sequence of gates: claim access, content sniffing, per-type
// rules, safety scan, envelope encryption, remote write and post-write
// verification, and only then gets a database row. Failure at any gate
// releases partial remote state and leaves no record behind.
//
// Import Path (ADR-0016): aeroclaim.io/aeroclaim/internal/docpipe
package docpipe

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"aeroclaim.io/aeroclaim/internal/config"
	"aeroclaim.io/aeroclaim/internal/domain"
	"aeroclaim.io/aeroclaim/internal/pkg/kms"
	"aeroclaim.io/aeroclaim/internal/pkg/logger"
	"aeroclaim.io/aeroclaim/internal/repository"

	apperrors "aeroclaim.io/aeroclaim/internal/pkg/errors"
)

// ObjectStore is the remote ciphertext store. *storage.Client
// implements it; tests substitute an in-memory fake.
type ObjectStore interface {
	Put(ctx context.Context, remotePath string, src io.ReadSeeker) error
	Get(ctx context.Context, remotePath string) (io.ReadCloser, error)
	GetRange(ctx context.Context, remotePath string, offset, length int64) (io.ReadCloser, error)
	Size(ctx context.Context, remotePath string) (int64, error)
	Remove(ctx context.Context, remotePath string) error
}

// ThreatScanner vets content against the malware scanner.
// *scan.Scanner implements it.
type ThreatScanner interface {
	Enabled() bool
	Scan(ctx context.Context, filename string, content []byte) error
}

// Deps bundles the pipeline dependencies (ADR-0013: manual wiring).
type Deps struct {
	Config  config.FilesConfig
	Store   *repository.Store
	Pool    *pgxpool.Pool
	Objects ObjectStore
	Scanner ThreatScanner
	Cipher  *kms.FileCipher
	Queue   *river.Client[pgx.Tx]
}

// Service runs the document pipeline operations.
type Service struct {
	cfg     config.FilesConfig
	store   *repository.Store
	pool    *pgxpool.Pool
	objects ObjectStore
	scanner ThreatScanner
	cipher  *kms.FileCipher
	queue   *river.Client[pgx.Tx]
	now     func() time.Time
}

// NewService wires a document pipeline service.
func NewService(d Deps) *Service {
	return &Service{
		cfg:     d.Config,
		store:   d.Store,
		pool:    d.Pool,
		objects: d.Objects,
		scanner: d.Scanner,
		cipher:  d.Cipher,
		queue:   d.Queue,
		now:     time.Now,
	}
}

// Actor identifies the authenticated caller of a pipeline operation.
// ClientIP and UserAgent flow into the access audit trail.
type Actor struct {
	ID        uuid.UUID
	Role      domain.Role
	ClientIP  string
	UserAgent string
}

// authorizeClaim loads the claim and enforces the file-access
// predicate: file access requires claim access, meaning the caller
// owns the claim or holds an admin role.
func (s *Service) authorizeClaim(ctx context.Context, actor Actor, claimID uuid.UUID) (*domain.Claim, error) {
	claim, err := s.store.Claims.GetByID(ctx, claimID)
	if err != nil {
		return nil, err
	}
	if !actor.Role.Admin() && claim.CustomerID != actor.ID {
		return nil, apperrors.Forbidden(apperrors.CodeAccessDenied, "you do not have access to this claim")
	}
	return claim, nil
}

// authorizeFile loads a file and applies the claim-access predicate to
// its owning claim. A foreign file reads as not_found, the same
// masking claim reads get, so file ids cannot be probed for existence.
func (s *Service) authorizeFile(ctx context.Context, actor Actor, fileID uuid.UUID) (*domain.ClaimFile, error) {
	file, err := s.store.Files.GetByID(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if _, err := s.authorizeClaim(ctx, actor, file.ClaimID); err != nil {
		if apperrors.IsKind(err, apperrors.KindForbidden) {
			return nil, apperrors.ErrFileNotFound()
		}
		return nil, err
	}
	return file, nil
}

func (s *Service) accessLog(fileID uuid.UUID, actor Actor, action domain.FileAction, detail string) *domain.FileAccessLog {
	return &domain.FileAccessLog{
		ID:        uuid.Must(uuid.NewV7()),
		FileID:    fileID,
		ActorID:   actor.ID,
		Action:    action,
		Detail:    detail,
		ClientIP:  actor.ClientIP,
		UserAgent: actor.UserAgent,
		CreatedAt: s.now().UTC(),
	}
}

// appendLog records an audit row outside any transaction. Best effort:
// a failed audit write is logged, never turned into a caller error.
func (s *Service) appendLog(ctx context.Context, fileID uuid.UUID, actor Actor, action domain.FileAction, detail string) {
	if err := s.store.AccessLogs.Insert(ctx, s.accessLog(fileID, actor, action, detail)); err != nil {
		logger.Error("append file access log",
			zap.String("file_id", fileID.String()),
			zap.String("action", string(action)),
			zap.Error(err))
	}
}

// removeRemote is the compensating delete for a failed upload. Failure
// is logged, not returned: an unreferenced blob is inert ciphertext
// bound to a path no row will ever point at again.
func (s *Service) removeRemote(ctx context.Context, remotePath string) {
	if err := s.objects.Remove(context.WithoutCancel(ctx), remotePath); err != nil {
		logger.Error("orphan ciphertext left on remote store",
			zap.String("path", remotePath), zap.Error(err))
	}
}
