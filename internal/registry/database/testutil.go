package database

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/agentregistry-dev/modelregistry/pkg/registry/database"
)

const templateDBName = "model_registry_test_template"

// testServerURI returns the base URI of the PostgreSQL server used by tests,
// overridable with MODEL_REGISTRY_TEST_DATABASE_HOST.
func testServerURI(dbName string) string {
	host := os.Getenv("MODEL_REGISTRY_TEST_DATABASE_HOST")
	if host == "" {
		host = "localhost:5432"
	}
	return fmt.Sprintf("postgres://modelregistry:modelregistry@%s/%s?sslmode=disable", host, dbName)
}

// ensureTemplateDB creates a template database with migrations applied
// Multiple processes may call this, so we handle race conditions
func ensureTemplateDB(ctx context.Context, t *testing.T, adminConn *pgx.Conn) error {
	// Serialize template creation/migration across concurrent test processes.
	const lockKey int64 = 0x6d726567 // "mreg" prefix
	if _, err := adminConn.Exec(ctx, "SELECT pg_advisory_lock($1)", lockKey); err != nil {
		return fmt.Errorf("failed to acquire advisory lock for template DB: %w", err)
	}
	defer func() {
		_, _ = adminConn.Exec(context.Background(), "SELECT pg_advisory_unlock($1)", lockKey)
	}()

	var exists bool
	err := adminConn.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM pg_database WHERE datname = $1)", templateDBName).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check template database: %w", err)
	}

	if !exists {
		_, err = adminConn.Exec(ctx, fmt.Sprintf("CREATE DATABASE %s", templateDBName))
		if err != nil {
			// Another process may have created it concurrently
			var pgErr *pgconn.PgError
			if !errors.As(err, &pgErr) || (pgErr.Code != "42P04" && pgErr.Code != pgUniqueViolation) {
				return fmt.Errorf("failed to create template database: %w", err)
			}
		}
	}

	// Always migrate to keep the template up-to-date
	templateDB, err := NewPostgreSQL(ctx, testServerURI(templateDBName), zaptest.NewLogger(t))
	if err != nil {
		return fmt.Errorf("failed to connect to template database: %w", err)
	}
	return templateDB.Close()
}

// NewTestDB creates an isolated PostgreSQL database for each test by copying a template.
// The template database has migrations pre-applied, so each test is fast.
// Tests are skipped when PostgreSQL is not reachable.
func NewTestDB(t *testing.T) database.Database {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	adminConn, err := pgx.Connect(ctx, testServerURI("postgres"))
	if err != nil {
		t.Skipf("PostgreSQL not available. Skipping database tests. Error: %v", err)
	}
	defer func() { _ = adminConn.Close(ctx) }()

	err = ensureTemplateDB(ctx, t, adminConn)
	require.NoError(t, err, "Failed to initialize template database")

	var randomBytes [8]byte
	_, err = rand.Read(randomBytes[:])
	require.NoError(t, err, "Failed to generate random database id")
	dbName := fmt.Sprintf("test_%d", binary.BigEndian.Uint64(randomBytes[:]))

	// Create test database from template (fast - just copies files)
	_, err = adminConn.Exec(ctx, fmt.Sprintf("CREATE DATABASE %s TEMPLATE %s", dbName, templateDBName))
	require.NoError(t, err, "Failed to create test database from template")

	t.Cleanup(func() {
		cleanupCtx, cleanupCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cleanupCancel()

		conn, err := pgx.Connect(cleanupCtx, testServerURI("postgres"))
		if err != nil {
			return
		}
		defer func() { _ = conn.Close(cleanupCtx) }()

		_, _ = conn.Exec(cleanupCtx, fmt.Sprintf(
			"SELECT pg_terminate_backend(pid) FROM pg_stat_activity WHERE datname = '%s' AND pid <> pg_backend_pid()",
			dbName,
		))
		_, _ = conn.Exec(cleanupCtx, fmt.Sprintf("DROP DATABASE IF EXISTS %s", dbName))
	})

	db, err := NewPostgreSQL(ctx, testServerURI(dbName), zaptest.NewLogger(t))
	require.NoError(t, err, "Failed to connect to test database")

	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Logf("Warning: failed to close test database connection: %v", err)
		}
	})

	return db
}
