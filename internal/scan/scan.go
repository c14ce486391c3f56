// Package scan vets documents before they enter the encrypted store:
// a structural gate for PDFs and an optional external malware scanner
// wrapped in a circuit breaker.
//
// Scanner calls run on the Remote worker pool (ADR-0003) and fail
// closed: when the scanner is configured but unreachable the upload is
// rejected. Development deployments may opt into fail-open.
//
// Import Path (ADR-0016): aeroclaim.io/aeroclaim/internal/scan
package scan

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"aeroclaim.io/aeroclaim/internal/config"
	apperrors "aeroclaim.io/aeroclaim/internal/pkg/errors"
	"aeroclaim.io/aeroclaim/internal/pkg/logger"
	"aeroclaim.io/aeroclaim/internal/pkg/worker"
)

// Scanner submits file contents to an external malware scanner. The
// zero URL disables it; Scan then passes everything through.
type Scanner struct {
	url      string
	failOpen bool
	client   *http.Client
	pool     *worker.Pool
	breaker  *gobreaker.CircuitBreaker
}

// verdict is the scanner's JSON answer.
type verdict struct {
	Status    string `json:"status"`
	Signature string `json:"signature,omitempty"`
}

func (v verdict) infected() bool { return !strings.EqualFold(v.Status, "clean") }

// NewScanner builds the scanner client. production forces fail-closed
// regardless of the fail-open flag.
func NewScanner(cfg config.ScannerConfig, production bool, pool *worker.Pool) *Scanner {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	s := &Scanner{
		url:      strings.TrimRight(cfg.URL, "/"),
		failOpen: cfg.FailOpen && !production,
		client:   &http.Client{Timeout: timeout},
		pool:     pool,
	}
	s.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "malware-scanner",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("scanner circuit state changed",
				zap.String("breaker", name),
				zap.Stringer("from", from),
				zap.Stringer("to", to),
			)
		},
		// A cancelled caller is not a scanner fault; do not trip on it.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
	return s
}

// Enabled reports whether a scanner endpoint is configured.
func (s *Scanner) Enabled() bool { return s != nil && s.url != "" }

// Scan submits content and maps the outcome: a positive hit rejects the
// document, an unreachable scanner rejects unless fail-open is active.
func (s *Scanner) Scan(ctx context.Context, filename string, content []byte) error {
	if !s.Enabled() {
		return nil
	}

	res, err := s.breaker.Execute(func() (interface{}, error) {
		return s.submit(ctx, filename, content)
	})
	if err != nil {
		if s.failOpen {
			logger.Warn("malware scanner unavailable, failing open",
				zap.String("file", filename),
				zap.Error(err),
			)
			return nil
		}
		logger.Error("malware scanner unavailable, upload rejected",
			zap.String("file", filename),
			zap.Error(err),
		)
		return apperrors.ScannerUnavailable(apperrors.CodeScannerUnavailable,
			"malware scanning is temporarily unavailable, try again later")
	}

	v := res.(*verdict)
	if v.infected() {
		logger.Warn("malware scanner flagged upload",
			zap.String("file", filename),
			zap.String("signature", v.Signature),
		)
		return apperrors.ScannerDetectedThreat(apperrors.CodeScannerThreat,
			"document was rejected by the malware scan")
	}
	return nil
}

// submit runs one scanner call as a task on the Remote pool.
func (s *Scanner) submit(ctx context.Context, filename string, content []byte) (*verdict, error) {
	var v *verdict
	done := make(chan error, 1)
	if err := s.pool.Submit(ctx, func(context.Context) {
		var err error
		v, err = s.post(ctx, filename, content)
		done <- err
	}); err != nil {
		return nil, err
	}
	select {
	case err := <-done:
		return v, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Scanner) post(ctx context.Context, filename string, content []byte) (*verdict, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url+"/scan", bytes.NewReader(content))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("X-Filename", headerSafe(filename))

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("scanner returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var v verdict
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		return nil, fmt.Errorf("decode scanner verdict: %w", err)
	}
	return &v, nil
}

// headerSafe strips bytes that are not valid inside an HTTP header
// value. The filename is advisory only.
func headerSafe(name string) string {
	return strings.Map(func(r rune) rune {
		if r < 0x20 || r > 0x7e {
			return '_'
		}
		return r
	}, name)
}
