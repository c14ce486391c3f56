package storage

import (
	"context"
	"errors"
	"io"
	"math/rand/v2"
	"net"
	"net/http"
	"syscall"
	"time"

	"github.com/studio-b12/gowebdav"
)

// statusOf extracts the HTTP status carried by a gowebdav error chain.
func statusOf(err error) (int, bool) {
	var se gowebdav.StatusError
	if errors.As(err, &se) {
		return se.Status, true
	}
	return 0, false
}

// IsNotFound reports whether err means the object does not exist on
// the store.
func IsNotFound(err error) bool {
	status, ok := statusOf(err)
	return ok && status == http.StatusNotFound
}

// retryable reports whether another attempt could plausibly succeed:
// transient server statuses, transport resets and timeouts. Context
// cancellation is never retried.
func retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	if status, ok := statusOf(err); ok {
		switch status {
		case http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		}
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	// Dropped connections surface as *url.Error around *net.OpError
	// without a status; treat any remaining socket-level failure as
	// transient.
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// backoff returns the delay before the given retry (1-based): the base
// delay doubled per retry with 25% jitter, capped at maxDelay.
func (c *Client) backoff(retry int) time.Duration {
	base := c.baseDelay
	if base <= 0 {
		base = 250 * time.Millisecond
	}
	ceiling := c.maxDelay
	if ceiling <= 0 {
		ceiling = 30 * time.Second
	}

	d := base
	for i := 1; i < retry && d < ceiling; i++ {
		d *= 2
	}
	if d > ceiling {
		d = ceiling
	}

	// Uniform jitter in [-d/4, +d/4] keeps concurrent retries from
	// synchronizing against a recovering server.
	d += time.Duration(rand.Int64N(int64(d)/2+1)) - d/4
	if d < 0 {
		d = 0
	}
	return d
}

// sleepCtx waits for d unless the context ends first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
