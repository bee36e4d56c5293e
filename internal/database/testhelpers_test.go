package database

import (
	"context"
	"database/sql"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// analyticsTables are emptied between subtests. RESTART IDENTITY keeps
// trade sequence ids predictable.
var analyticsTables = []string{"trade_data", "stock_prices"}

// TestDB is a migrated database running in a throwaway postgres container
type TestDB struct {
	*DB
	container *tcpostgres.PostgresContainer
}

// SetupTestDB starts postgres, applies db/migrations and registers
// teardown with t.Cleanup
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()
	ctx := context.Background()

	pg, err := tcpostgres.Run(ctx,
		"postgres:15-alpine",
		tcpostgres.WithDatabase("analytics_test"),
		tcpostgres.WithUsername("analytics"),
		tcpostgres.WithPassword("analytics"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	tdb := &TestDB{container: pg}
	t.Cleanup(func() { tdb.teardown(t) })

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}

	if tdb.DB, err = NewWithPool(connStr, 4); err != nil {
		t.Fatalf("failed to connect to test database: %v", err)
	}

	if err := tdb.RunMigrations(); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	return tdb
}

// RunMigrations applies db/migrations from the repository root
func (tdb *TestDB) RunMigrations() error {
	_, filename, _, _ := runtime.Caller(0)
	return tdb.Migrate(filepath.Join(filepath.Dir(filename), "..", "..", "db", "migrations"))
}

func (tdb *TestDB) teardown(t *testing.T) {
	if tdb.DB != nil {
		tdb.DB.Close()
	}
	if err := tdb.container.Terminate(context.Background()); err != nil {
		t.Errorf("failed to terminate container: %v", err)
	}
}

// TruncateAll empties every analytics table
func (tdb *TestDB) TruncateAll(t *testing.T) {
	t.Helper()
	for _, table := range analyticsTables {
		if _, err := tdb.conn.Exec("TRUNCATE TABLE " + table + " RESTART IDENTITY"); err != nil {
			t.Fatalf("failed to truncate %s: %v", table, err)
		}
	}
}

// Raw exposes the connection for schema checks
func (tdb *TestDB) Raw() *sql.DB {
	return tdb.conn
}
