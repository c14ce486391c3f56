package docpipe

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"aeroclaim.io/aeroclaim/internal/domain"
	"aeroclaim.io/aeroclaim/internal/pkg/kms"
	"aeroclaim.io/aeroclaim/internal/pkg/logger"
	"aeroclaim.io/aeroclaim/internal/scan"

	apperrors "aeroclaim.io/aeroclaim/internal/pkg/errors"
)

// UploadInput carries one document into the pipeline.
type UploadInput struct {
	ClaimID      uuid.UUID
	DocumentType domain.DocumentType
	// Filename is display-only. It never participates in content-type
	// decisions.
	Filename string
	// DeclaredType is the client-sent Content-Type. A contradiction
	// with the sniffed type rejects the upload; agreement proves
	// nothing, the sniffer stays authoritative.
	DeclaredType string
	Content      io.Reader
}

// Upload runs the full pipeline and returns the stored file record.
// The remote object exists and has been read back verified before the
// database row is committed; if the row cannot be written the object
// is deleted again.
func (s *Service) Upload(ctx context.Context, actor Actor, in UploadInput) (*domain.ClaimFile, error) {
	claim, err := s.authorizeClaim(ctx, actor, in.ClaimID)
	if err != nil {
		return nil, err
	}

	rule, ok := RuleFor(in.DocumentType)
	if !ok {
		return nil, apperrors.Validation(apperrors.CodeValidationFailed, "unknown document type").
			WithFieldErrors([]apperrors.FieldError{{Field: "documentType", Message: "unknown document type"}})
	}

	content, err := s.spool(in.Content, rule.MaxBytes)
	if err != nil {
		return nil, err
	}

	mtype := mimetype.Detect(content)
	if err := checkDeclaredType(in.DeclaredType, mtype); err != nil {
		return nil, err
	}
	if !rule.accepts(mtype.Is) {
		return nil, apperrors.Validation(apperrors.CodeUnsupportedType,
			fmt.Sprintf("%s is not an accepted content type for a %s", mtype.String(), in.DocumentType))
	}

	if mtype.Is("application/pdf") {
		if err := scan.CheckPDF(content); err != nil {
			return nil, err
		}
	}
	if rule.RequireScan && s.scanner != nil && s.scanner.Enabled() {
		if err := s.scanner.Scan(ctx, in.Filename, content); err != nil {
			return nil, err
		}
	}

	digest := sha256.Sum256(content)
	fileID := uuid.Must(uuid.NewV7())
	remotePath := objectPath(claim.CustomerID, claim.ID, fileID)

	ciphertext, scheme, chunkSize, err := s.encrypt(content, []byte(remotePath))
	if err != nil {
		return nil, err
	}

	if err := s.objects.Put(ctx, remotePath, bytes.NewReader(ciphertext)); err != nil {
		// a failed write may still have left partial bytes behind
		s.removeRemote(ctx, remotePath)
		return nil, err
	}
	if err := s.verifyRemote(ctx, remotePath, content, ciphertext, scheme, chunkSize); err != nil {
		s.removeRemote(ctx, remotePath)
		return nil, err
	}

	file := &domain.ClaimFile{
		ID:               fileID,
		ClaimID:          claim.ID,
		Filename:         displayName(in.Filename),
		ContentType:      mtype.String(),
		DocumentType:     in.DocumentType,
		PlainSize:        int64(len(content)),
		CipherSize:       int64(len(ciphertext)),
		PlainDigest:      hex.EncodeToString(digest[:]),
		StoragePath:      remotePath,
		EncryptionScheme: scheme,
		ChunkSize:        chunkSize,
		ReviewStatus:     domain.FileUploaded,
		UploadedBy:       actor.ID,
		UploadedAt:       s.now().UTC(),
	}

	if err := s.record(ctx, file, actor); err != nil {
		s.removeRemote(ctx, remotePath)
		return nil, err
	}

	logger.Info("document stored",
		zap.String("file_id", file.ID.String()),
		zap.String("claim_id", claim.ID.String()),
		zap.String("content_type", file.ContentType),
		zap.String("scheme", scheme),
		zap.Int64("plain_size", file.PlainSize))
	return file, nil
}

// record commits the file row and its upload audit entry atomically
// (ADR-0012). Storage already holds the verified object at this point.
func (s *Service) record(ctx context.Context, file *domain.ClaimFile, actor Actor) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	txStore := s.store.WithTx(tx)
	if err := txStore.Files.Create(ctx, file); err != nil {
		return err
	}
	if err := txStore.AccessLogs.Insert(ctx, s.accessLog(file.ID, actor, domain.FileActionUpload, "")); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// spool buffers the whole upload, enforcing the per-type cap and the
// global files.max_size cap. Rules top out well below the global
// limit, so buffering in memory stays cheap.
func (s *Service) spool(src io.Reader, ruleMax int64) ([]byte, error) {
	limit := ruleMax
	if s.cfg.MaxSize > 0 && s.cfg.MaxSize < limit {
		limit = s.cfg.MaxSize
	}
	content, err := io.ReadAll(io.LimitReader(src, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(content)) > limit {
		return nil, apperrors.Validation(apperrors.CodeFileTooLarge,
			fmt.Sprintf("document exceeds the %d byte limit for this type", limit))
	}
	if len(content) == 0 {
		return nil, apperrors.Validation(apperrors.CodeValidationFailed, "document is empty")
	}
	return content, nil
}

// checkDeclaredType rejects uploads whose declared Content-Type
// contradicts the sniffed one. An absent or generic declaration
// passes; the sniffer decides either way.
func checkDeclaredType(declared string, mtype *mimetype.MIME) error {
	if declared == "" {
		return nil
	}
	media, _, err := mime.ParseMediaType(declared)
	if err != nil {
		return apperrors.MimeMismatch(apperrors.CodeMimeMismatch, "declared content type is malformed")
	}
	if media == "application/octet-stream" {
		return nil
	}
	if !mtype.Is(media) {
		return apperrors.MimeMismatch(apperrors.CodeMimeMismatch,
			fmt.Sprintf("declared type %s does not match detected type %s", media, mtype.String()))
	}
	return nil
}

// encrypt seals content under a fresh DEK, bound to its remote path
// through the AAD. Files at or above the streaming threshold use the
// framed stream so downloads decrypt without buffering; smaller ones
// use the single-shot envelope.
func (s *Service) encrypt(content, aad []byte) ([]byte, string, int, error) {
	if int64(len(content)) < s.cfg.StreamingThreshold {
		blob, err := s.cipher.EncryptBytes(content, aad)
		if err != nil {
			return nil, "", 0, err
		}
		return blob, kms.SchemeSingleShot, 0, nil
	}

	chunkSize := s.cfg.ChunkSize
	if chunkSize == 0 {
		chunkSize = kms.DefaultChunkSize
	}
	var buf bytes.Buffer
	w, err := s.cipher.NewEncryptWriter(&buf, chunkSize, aad)
	if err != nil {
		return nil, "", 0, err
	}
	if _, err := w.Write(content); err != nil {
		return nil, "", 0, err
	}
	if err := w.Close(); err != nil {
		return nil, "", 0, err
	}
	return buf.Bytes(), kms.SchemeStream, chunkSize, nil
}

// verifyRemote proves the store holds exactly what was sent: the
// reported size must match, and the first and last frames must
// round-trip decrypt through ranged reads. Catches truncating or
// rewriting middleboxes before the upload is acknowledged.
func (s *Service) verifyRemote(ctx context.Context, remotePath string, plain, ciphertext []byte, scheme string, chunkSize int) error {
	size, err := s.objects.Size(ctx, remotePath)
	if err != nil {
		return err
	}
	if size != int64(len(ciphertext)) {
		return integrityErr(remotePath, fmt.Errorf("remote reports %d bytes, wrote %d", size, len(ciphertext)))
	}
	if scheme == kms.SchemeStream {
		return s.verifyStream(ctx, remotePath, plain, chunkSize)
	}
	return s.verifySingleShot(ctx, remotePath, plain, int64(len(ciphertext)))
}

func (s *Service) verifyStream(ctx context.Context, remotePath string, plain []byte, chunkSize int) error {
	hdrBytes, err := s.readRange(ctx, remotePath, 0, kms.StreamHeaderSize)
	if err != nil {
		return err
	}
	header, err := kms.ParseStreamHeader(hdrBytes)
	if err != nil {
		return integrityErr(remotePath, err)
	}
	key, err := s.cipher.OpenStreamKey(header, []byte(remotePath))
	if err != nil {
		return integrityErr(remotePath, err)
	}

	plainSize := int64(len(plain))
	frames := kms.StreamFrameCount(plainSize, chunkSize)

	check := func(index int64) error {
		offset, length := kms.StreamFrameRange(plainSize, chunkSize, index)
		frame, err := s.readRange(ctx, remotePath, offset, length)
		if err != nil {
			return err
		}
		got, err := key.OpenFrame(frame, uint64(index), index == frames-1)
		if err != nil {
			return integrityErr(remotePath, err)
		}
		lo := index * int64(chunkSize)
		if !bytes.Equal(got, plain[lo:lo+int64(len(got))]) {
			return integrityErr(remotePath, errors.New("frame plaintext differs"))
		}
		return nil
	}

	if err := check(0); err != nil {
		return err
	}
	if frames > 1 {
		return check(frames - 1)
	}
	return nil
}

func (s *Service) verifySingleShot(ctx context.Context, remotePath string, plain []byte, cipherLen int64) error {
	blob, err := s.readRange(ctx, remotePath, 0, cipherLen)
	if err != nil {
		return err
	}
	got, err := s.cipher.DecryptBytes(blob, []byte(remotePath))
	if err != nil {
		return integrityErr(remotePath, err)
	}
	if !bytes.Equal(got, plain) {
		return integrityErr(remotePath, errors.New("plaintext differs"))
	}
	return nil
}

func (s *Service) readRange(ctx context.Context, remotePath string, offset, length int64) ([]byte, error) {
	rc, err := s.objects.GetRange(ctx, remotePath, offset, length)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	b := make([]byte, length)
	if _, err := io.ReadFull(rc, b); err != nil {
		return nil, integrityErr(remotePath, fmt.Errorf("short ranged read: %w", err))
	}
	return b, nil
}

func integrityErr(remotePath string, cause error) error {
	logger.Error("post-write verification failed",
		zap.String("path", remotePath), zap.Error(cause))
	return apperrors.IntegrityCheckFailed(apperrors.CodeIntegrityFailed,
		"uploaded document failed verification and was discarded")
}

// objectPath derives the deterministic remote location of a file.
// Determinism keeps re-PUTs idempotent across retries.
func objectPath(ownerID, claimID, fileID uuid.UUID) string {
	return ownerID.String() + "/" + claimID.String() + "/" + fileID.String()
}

// displayName reduces the client filename to its last path element so
// audit views and Content-Disposition headers never echo a path.
// Both separator styles are stripped; browsers on Windows send full
// paths with backslashes.
func displayName(filename string) string {
	name := filename
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." {
		return "document"
	}
	return name
}
