package scan

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aeroclaim.io/aeroclaim/internal/config"
	apperrors "aeroclaim.io/aeroclaim/internal/pkg/errors"
	"aeroclaim.io/aeroclaim/internal/pkg/logger"
	"aeroclaim.io/aeroclaim/internal/pkg/worker"
)

func init() {
	_ = logger.Init("error", "json")
}

func testPool(t *testing.T) *worker.Pool {
	t.Helper()
	pools, err := worker.NewPools(context.Background(), worker.PoolConfig{
		GeneralPoolSize: 2,
		RemotePoolSize:  2,
	})
	require.NoError(t, err)
	t.Cleanup(pools.Shutdown)
	return pools.Remote
}

func newTestScanner(t *testing.T, url string, failOpen, production bool) *Scanner {
	t.Helper()
	return NewScanner(config.ScannerConfig{
		URL:      url,
		Timeout:  2 * time.Second,
		FailOpen: failOpen,
	}, production, testPool(t))
}

func TestScan_CleanVerdictPasses(t *testing.T) {
	var gotName atomic.Value
	var gotBody atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotName.Store(r.Header.Get("X-Filename"))
		body, _ := io.ReadAll(r.Body)
		gotBody.Store(body)
		_, _ = w.Write([]byte(`{"status":"clean"}`))
	}))
	defer srv.Close()

	s := newTestScanner(t, srv.URL, false, true)
	err := s.Scan(context.Background(), "boarding.pdf", []byte("pdf bytes"))
	require.NoError(t, err)
	assert.Equal(t, "boarding.pdf", gotName.Load())
	assert.Equal(t, []byte("pdf bytes"), gotBody.Load())
}

func TestScan_InfectedVerdictRejects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status":"infected","signature":"Eicar-Test-Signature"}`))
	}))
	defer srv.Close()

	s := newTestScanner(t, srv.URL, false, true)
	err := s.Scan(context.Background(), "sketchy.pdf", []byte("x"))
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindScannerDetectedThreat))

	appErr, ok := apperrors.IsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.CodeScannerThreat, appErr.Code)
}

func TestScan_UnreachableFailsClosed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "backend exploded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := newTestScanner(t, srv.URL, false, true)
	err := s.Scan(context.Background(), "doc.pdf", []byte("x"))
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindScannerUnavailable))
}

func TestScan_DevelopmentMayFailOpen(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	s := newTestScanner(t, srv.URL, true, false)
	assert.NoError(t, s.Scan(context.Background(), "doc.pdf", []byte("x")))
}

func TestScan_ProductionIgnoresFailOpenFlag(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	s := newTestScanner(t, srv.URL, true, true)
	err := s.Scan(context.Background(), "doc.pdf", []byte("x"))
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindScannerUnavailable))
}

func TestScan_UnconfiguredScannerPassesThrough(t *testing.T) {
	s := newTestScanner(t, "", false, true)
	assert.NoError(t, s.Scan(context.Background(), "doc.pdf", []byte("x")))
	assert.False(t, s.Enabled())
}

func TestScan_BreakerShedsLoadAfterConsecutiveFailures(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	s := newTestScanner(t, srv.URL, false, true)
	for i := 0; i < 3; i++ {
		err := s.Scan(context.Background(), "doc.pdf", []byte("x"))
		require.Error(t, err)
	}
	require.Equal(t, int32(3), hits.Load())

	// Breaker is open now; the next call must not reach the scanner.
	err := s.Scan(context.Background(), "doc.pdf", []byte("x"))
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindScannerUnavailable))
	assert.Equal(t, int32(3), hits.Load())
}
