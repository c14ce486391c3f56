// Package testutil provides integration-test fixtures: a PostgreSQL
// pool isolated in a throwaway schema per test, a fully migrated
// repository store, and an in-process Redis.
package testutil

import (
	"context"
	"crypto/rand"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"aeroclaim.io/aeroclaim/internal/pkg/kms"
	"aeroclaim.io/aeroclaim/internal/repository"
)

var nonIdentChars = regexp.MustCompile(`[^a-z0-9_]+`)

// goose keeps dialect and base FS in package globals, so migrations
// from concurrent tests must not interleave.
var migrateMu sync.Mutex

// OpenPool opens a pgx pool bound to a fresh schema that is dropped
// when the test finishes. Tests are skipped when no test database is
// configured.
func OpenPool(t *testing.T, prefix string) *pgxpool.Pool {
	t.Helper()

	dsn := strings.TrimSpace(os.Getenv("TEST_DATABASE_URL"))
	if dsn == "" {
		dsn = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	}
	if dsn == "" {
		t.Skip("postgres tests need TEST_DATABASE_URL or DATABASE_URL")
	}

	schema := schemaName(prefix)
	ctx := context.Background()

	adminPool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("open postgres admin pool: %v", err)
	}
	t.Cleanup(adminPool.Close)

	if err := adminPool.Ping(ctx); err != nil {
		t.Fatalf("ping postgres: %v", err)
	}

	if _, err := adminPool.Exec(ctx, fmt.Sprintf(`CREATE SCHEMA "%s"`, schema)); err != nil {
		t.Fatalf("create test schema %q: %v", schema, err)
	}
	t.Cleanup(func() {
		_, _ = adminPool.Exec(ctx, fmt.Sprintf(`DROP SCHEMA IF EXISTS "%s" CASCADE`, schema))
	})

	schemaDSN, err := searchPathDSN(dsn, schema)
	if err != nil {
		t.Fatalf("build schema DSN: %v", err)
	}

	pool, err := pgxpool.New(ctx, schemaDSN)
	if err != nil {
		t.Fatalf("open postgres test pool: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := pool.Ping(ctx); err != nil {
		t.Fatalf("ping postgres test pool: %v", err)
	}
	return pool
}

// OpenStore opens a migrated schema and returns the repo bundle plus
// the pool for tests that need raw SQL or transactions.
func OpenStore(t *testing.T, prefix string) (*repository.Store, *pgxpool.Pool) {
	t.Helper()

	pool := OpenPool(t, prefix)

	migrateMu.Lock()
	err := repository.Migrate(context.Background(), pool)
	migrateMu.Unlock()
	if err != nil {
		t.Fatalf("migrate test schema: %v", err)
	}

	return repository.NewStore(pool, FieldCodec(t)), pool
}

// FieldCodec returns a PII codec over a random test key.
func FieldCodec(t *testing.T) *kms.FieldCodec {
	t.Helper()

	codec, err := kms.NewFieldCodec(RandomKey(t))
	if err != nil {
		t.Fatalf("build field codec: %v", err)
	}
	return codec
}

// FileCipher returns a document cipher over a random test key.
func FileCipher(t *testing.T) *kms.FileCipher {
	t.Helper()

	cipher, err := kms.NewFileCipher(RandomKey(t))
	if err != nil {
		t.Fatalf("build file cipher: %v", err)
	}
	return cipher
}

// RandomKey returns 32 random bytes.
func RandomKey(t *testing.T) []byte {
	t.Helper()

	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("generate test key: %v", err)
	}
	return key
}

func searchPathDSN(dsn, schema string) (string, error) {
	if strings.Contains(dsn, "://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", fmt.Errorf("parse DSN: %w", err)
		}
		q := u.Query()
		q.Set("search_path", schema)
		u.RawQuery = q.Encode()
		return u.String(), nil
	}

	if strings.Contains(dsn, "search_path=") {
		re := regexp.MustCompile(`search_path=\S+`)
		return re.ReplaceAllString(dsn, "search_path="+schema), nil
	}
	return dsn + " search_path=" + schema, nil
}

func schemaName(prefix string) string {
	base := strings.ToLower(prefix)
	base = nonIdentChars.ReplaceAllString(base, "_")
	base = strings.Trim(base, "_")
	if base == "" {
		base = "test"
	}

	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")
	const maxPostgresIdentLen = 63
	maxBaseLen := maxPostgresIdentLen - len("t__") - len(suffix)
	if len(base) > maxBaseLen {
		base = base[:maxBaseLen]
	}
	return fmt.Sprintf("t_%s_%s", base, suffix)
}
