// Package testenv connects tests to a disposable PostgreSQL database.
//
// Tests needing a database read the DSN from the environment variable
// named by EnvPostgresDsn and skip themselves when it is not set, so
// `go test ./...` stays green on machines without a database.
package testenv

import (
	"context"
	"os"
	"testing"

	kpool "github.com/fogbank-io/runtrack/pkg/conn/db/postgres/pool"
	"github.com/fogbank-io/runtrack/pkg/domain/registry/postgres/schema"
)

const EnvPostgresDsn = "RUNTRACK_TEST_POSTGRES"

// Pool connects to the test database, applies the schema and truncates
// all registry tables. The pool is closed when the test ends.
//
// The database pointed at by the DSN is OWNED by tests: every call
// wipes its content.
func Pool(ctx context.Context, t *testing.T) kpool.Pool {
	t.Helper()

	dsn := os.Getenv(EnvPostgresDsn)
	if dsn == "" {
		t.Skipf("set %s to a postgres DSN to run this test", EnvPostgresDsn)
	}

	pool, err := kpool.Connect(ctx, dsn)
	if err != nil {
		t.Fatalf("cannot connect to test database: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := schema.New(pool).Ensure(ctx); err != nil {
		t.Fatalf("cannot apply schema: %v", err)
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		t.Fatalf("cannot acquire connection: %v", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(
		ctx,
		`
		truncate "run_param", "run_metric", "run_tag", "artifact",
			"pipeline_run", "run", "experiment"
		restart identity cascade
		`,
	); err != nil {
		t.Fatalf("cannot truncate tables: %v", err)
	}

	return pool
}
