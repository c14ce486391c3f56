package docpipe

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"aeroclaim.io/aeroclaim/internal/domain"
	"aeroclaim.io/aeroclaim/internal/pkg/kms"
	"aeroclaim.io/aeroclaim/internal/pkg/logger"

	apperrors "aeroclaim.io/aeroclaim/internal/pkg/errors"
)

// DownloadStream is an opened document ready to decrypt. File is
// available before the first byte streams, so callers can set
// response headers from it. Close releases the remote connection.
type DownloadStream struct {
	File *domain.ClaimFile

	svc   *Service
	actor Actor
	rc    io.ReadCloser
}

// OpenDownload authorizes the caller, writes the download audit row
// and opens the remote object. The audit row is committed before any
// content moves: a crashed stream still leaves evidence the download
// started.
func (s *Service) OpenDownload(ctx context.Context, actor Actor, fileID uuid.UUID) (*DownloadStream, error) {
	file, err := s.authorizeFile(ctx, actor, fileID)
	if err != nil {
		return nil, err
	}
	if file.Deleted() {
		return nil, apperrors.ErrFileNotFound()
	}
	if !file.Readable() {
		return nil, apperrors.IntegrityCheckFailed(apperrors.CodeIntegrityFailed,
			"document failed a previous integrity check and is quarantined")
	}

	if err := s.store.AccessLogs.Insert(ctx, s.accessLog(file.ID, actor, domain.FileActionDownload, "")); err != nil {
		return nil, err
	}

	rc, err := s.objects.Get(ctx, file.StoragePath)
	if err != nil {
		return nil, err
	}
	return &DownloadStream{File: file, svc: s, actor: actor, rc: rc}, nil
}

// Stream decrypts the object into sink, verifying the plaintext digest
// as it goes. A decrypt or digest failure quarantines the file; a sink
// failure only records how far delivery got.
func (d *DownloadStream) Stream(ctx context.Context, sink io.Writer) error {
	src, err := d.newPlainReader()
	if err != nil {
		return d.quarantine(ctx, err)
	}

	hash := sha256.New()
	out := &meteredWriter{w: sink}
	n, err := io.Copy(io.MultiWriter(hash, out), src)
	if err != nil {
		if out.err != nil {
			d.svc.appendLog(context.WithoutCancel(ctx), d.File.ID, d.actor, domain.FileActionDownload,
				fmt.Sprintf("partial delivery, %d of %d bytes sent", out.n, d.File.PlainSize))
			return fmt.Errorf("stream document: %w", err)
		}
		return d.quarantine(ctx, err)
	}

	if n != d.File.PlainSize {
		return d.quarantine(ctx, fmt.Errorf("decrypted %d bytes, expected %d", n, d.File.PlainSize))
	}
	if hex.EncodeToString(hash.Sum(nil)) != d.File.PlainDigest {
		return d.quarantine(ctx, errors.New("plaintext digest mismatch"))
	}
	return nil
}

// Close releases the remote object stream.
func (d *DownloadStream) Close() error {
	return d.rc.Close()
}

func (d *DownloadStream) newPlainReader() (io.Reader, error) {
	aad := []byte(d.File.StoragePath)
	switch d.File.EncryptionScheme {
	case kms.SchemeStream:
		return d.svc.cipher.NewDecryptReader(d.rc, aad)
	case kms.SchemeSingleShot:
		blob, err := io.ReadAll(d.rc)
		if err != nil {
			return nil, err
		}
		plain, err := d.svc.cipher.DecryptBytes(blob, aad)
		if err != nil {
			return nil, err
		}
		return bytes.NewReader(plain), nil
	default:
		return nil, fmt.Errorf("unknown encryption scheme %q", d.File.EncryptionScheme)
	}
}

// quarantine marks the file corrupted and appends the failure to the
// audit trail. The stored ciphertext no longer decrypts to what was
// uploaded; nothing serves it again until an operator intervenes.
func (d *DownloadStream) quarantine(ctx context.Context, cause error) error {
	ctx = context.WithoutCancel(ctx)
	logger.Error("document failed integrity verification during download",
		zap.String("file_id", d.File.ID.String()),
		zap.String("path", d.File.StoragePath),
		zap.Error(cause))
	if err := d.svc.store.Files.MarkCorrupted(ctx, d.File.ID); err != nil {
		logger.Error("mark file corrupted",
			zap.String("file_id", d.File.ID.String()), zap.Error(err))
	}
	d.svc.appendLog(ctx, d.File.ID, d.actor, domain.FileActionDownload, "failed integrity verification")
	return apperrors.IntegrityCheckFailed(apperrors.CodeIntegrityFailed,
		"document failed integrity verification")
}

// meteredWriter tracks delivered bytes and remembers the first sink
// error, so source failures can be told apart from client hangups.
type meteredWriter struct {
	w   io.Writer
	n   int64
	err error
}

func (m *meteredWriter) Write(p []byte) (int, error) {
	n, err := m.w.Write(p)
	m.n += int64(n)
	if err != nil && m.err == nil {
		m.err = err
	}
	return n, err
}
