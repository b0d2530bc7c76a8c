package pgtest

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
)

// ConnString returns TEST_DATABASE, skipping the test when it is unset or when
// running in short mode.
func ConnString(t testing.TB) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	dsn := os.Getenv("TEST_DATABASE")
	if dsn == "" {
		t.Skip("TEST_DATABASE not set")
	}
	return dsn
}

// Pool opens a pool to the test database that is closed with the test.
func Pool(ctx context.Context, t testing.TB) *pgxpool.Pool {
	t.Helper()
	pool, err := pgxpool.New(ctx, ConnString(t))
	require.NoError(t, err)
	require.NoError(t, pool.Ping(ctx))

	t.Cleanup(pool.Close)
	return pool
}

// Exec runs sql on pool and fails the test on error.
func Exec(ctx context.Context, t testing.TB, pool *pgxpool.Pool, sql string, args ...any) {
	t.Helper()
	_, err := pool.Exec(ctx, sql, args...)
	require.NoError(t, err)
}
