// Package storage wraps the WebDAV object store behind the platform's
// retry and error-classification policy.
//
// Every call runs as one attempt on the Remote worker pool so that
// concurrency against the store stays bounded (ADR-0003); backoff
// sleeps happen outside the pool so waiting never holds a slot.
//
// Import Path (ADR-0016): aeroclaim.io/aeroclaim/internal/storage
package storage

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/studio-b12/gowebdav"
	"go.uber.org/zap"

	"aeroclaim.io/aeroclaim/internal/config"
	apperrors "aeroclaim.io/aeroclaim/internal/pkg/errors"
	"aeroclaim.io/aeroclaim/internal/pkg/logger"
	"aeroclaim.io/aeroclaim/internal/pkg/worker"
)

// Client is the bounded, retrying WebDAV wrapper. Paths passed to its
// methods are relative to the configured base collection.
type Client struct {
	dav      *gowebdav.Client
	basePath string
	pool     *worker.Pool

	retryMax  int
	baseDelay time.Duration
	maxDelay  time.Duration
}

// NewClient builds the wrapper. It performs no I/O; connectivity is
// checked by Health and by the first real call.
func NewClient(cfg config.WebDAVConfig, pool *worker.Pool) *Client {
	dav := gowebdav.NewClient(cfg.URL, cfg.User, cfg.Pass)
	dav.SetTimeout(cfg.ReadTimeout)
	dav.SetTransport(&http.Transport{
		DialContext:         (&net.Dialer{Timeout: cfg.ConnectTimeout}).DialContext,
		MaxIdleConnsPerHost: 8,
		ForceAttemptHTTP2:   true,
	})

	return &Client{
		dav:       dav,
		basePath:  "/" + strings.Trim(cfg.BasePath, "/"),
		pool:      pool,
		retryMax:  cfg.RetryMax,
		baseDelay: cfg.RetryBaseDelay,
		maxDelay:  cfg.RetryMaxDelay,
	}
}

// Put uploads src to the given path, creating parent collections as
// needed. src must be rewindable: every retry re-reads from the start,
// which keeps re-PUTs byte-identical.
func (c *Client) Put(ctx context.Context, remotePath string, src io.ReadSeeker) error {
	if err := c.EnsureDir(ctx, path.Dir(remotePath)); err != nil {
		return err
	}
	return c.withRetry(ctx, "put "+remotePath, func() error {
		if _, err := src.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("rewind upload source: %w", err)
		}
		return c.dav.WriteStream(c.abs(remotePath), src, 0o644)
	})
}

// Get opens the object for streaming. Only the open is retried; a
// failure mid-body surfaces to the consumer of the returned reader.
func (c *Client) Get(ctx context.Context, remotePath string) (io.ReadCloser, error) {
	var rc io.ReadCloser
	err := c.withRetry(ctx, "get "+remotePath, func() error {
		var err error
		rc, err = c.dav.ReadStream(c.abs(remotePath))
		return err
	})
	return rc, err
}

// GetRange opens a byte range of the object. length 0 reads to the end.
func (c *Client) GetRange(ctx context.Context, remotePath string, offset, length int64) (io.ReadCloser, error) {
	var rc io.ReadCloser
	err := c.withRetry(ctx, "get range "+remotePath, func() error {
		var err error
		rc, err = c.dav.ReadStreamRange(c.abs(remotePath), offset, length)
		return err
	})
	return rc, err
}

// Size returns the stored object size as the server reports it.
func (c *Client) Size(ctx context.Context, remotePath string) (int64, error) {
	var size int64
	err := c.withRetry(ctx, "stat "+remotePath, func() error {
		info, err := c.dav.Stat(c.abs(remotePath))
		if err != nil {
			return err
		}
		size = info.Size()
		return nil
	})
	return size, err
}

// Remove deletes the object. A missing object counts as removed, which
// makes the purge reaper idempotent.
func (c *Client) Remove(ctx context.Context, remotePath string) error {
	err := c.withRetry(ctx, "remove "+remotePath, func() error {
		return c.dav.Remove(c.abs(remotePath))
	})
	if err != nil && IsNotFound(err) {
		return nil
	}
	return err
}

// EnsureDir creates the collection hierarchy for a relative directory.
func (c *Client) EnsureDir(ctx context.Context, remoteDir string) error {
	return c.withRetry(ctx, "mkdir "+remoteDir, func() error {
		return c.dav.MkdirAll(c.abs(remoteDir), 0o755)
	})
}

// Health verifies the store answers at all. Used by readiness checks;
// no retries, one bounded attempt.
func (c *Client) Health(ctx context.Context) error {
	err := c.run(ctx, func() error { return c.dav.Connect() })
	if err != nil {
		return apperrors.Wrap(err, apperrors.KindDependencyUnavailable,
			apperrors.CodeStorageUnavailable, "document storage is unreachable")
	}
	return nil
}

// abs resolves a relative object path against the base collection.
func (c *Client) abs(remotePath string) string {
	return path.Join(c.basePath, remotePath)
}

// run executes fn as one task on the Remote pool and waits for it.
// Saturation blocks the submit, which is the intended backpressure.
func (c *Client) run(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	if err := c.pool.Submit(ctx, func(context.Context) {
		done <- fn()
	}); err != nil {
		return err
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// withRetry runs fn with the backoff schedule, classifying each failure.
func (c *Client) withRetry(ctx context.Context, op string, fn func() error) error {
	attempts := c.retryMax
	if attempts < 1 {
		attempts = 1
	}

	var last error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			if err := sleepCtx(ctx, c.backoff(attempt-1)); err != nil {
				return err
			}
		}

		err := c.run(ctx, fn)
		if err == nil {
			return nil
		}
		last = err

		if !retryable(err) {
			return c.permanent(op, err)
		}
		logger.Warn("webdav call failed, will retry",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}

	logger.Error("webdav call exhausted retries", zap.String("op", op), zap.Error(last))
	return apperrors.Wrap(last, apperrors.KindDependencyUnavailable,
		apperrors.CodeStorageUnavailable, "document storage is unavailable")
}

// permanent maps a non-retryable failure to its caller-facing error.
// Credential rejections are the operator's problem and get alarmed.
func (c *Client) permanent(op string, err error) error {
	if status, ok := statusOf(err); ok {
		switch status {
		case http.StatusUnauthorized, http.StatusForbidden:
			logger.Error("webdav rejected the configured credentials, check webdav.user/webdav.pass",
				zap.String("op", op), zap.Int("status", status))
			return apperrors.Wrap(err, apperrors.KindDependencyUnavailable,
				apperrors.CodeStorageUnavailable, "document storage rejected its credentials")
		case http.StatusNotFound:
			// Callers decide what a missing object means; keep it inspectable.
			return fmt.Errorf("%s: %w", op, err)
		case http.StatusInsufficientStorage:
			return apperrors.Wrap(err, apperrors.KindDependencyUnavailable,
				apperrors.CodeStorageUnavailable, "document storage is out of space")
		}
	}
	return apperrors.Wrap(err, apperrors.KindDependencyUnavailable,
		apperrors.CodeStorageUnavailable, "document storage request failed")
}
