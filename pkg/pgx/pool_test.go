package pgx

import (
	"context"
	"testing"
	"time"

	"github.com/edgeflare/ctastream/internal/testutil/pgtest"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen(t *testing.T) {
	ctx := context.Background()
	connString := pgtest.ConnString(t)

	t.Run("ConnString", func(t *testing.T) {
		pool, err := Open(ctx, Pool{ConnString: connString}, nil)
		require.NoError(t, err)
		defer pool.Close()

		var one int
		require.NoError(t, pool.QueryRow(ctx, "SELECT 1").Scan(&one))
		assert.Equal(t, 1, one)
	})

	t.Run("Config", func(t *testing.T) {
		poolConfig, err := pgxpool.ParseConfig(connString)
		require.NoError(t, err)
		pool, err := Open(ctx, Pool{Config: poolConfig, ConnectTimeout: time.Second}, nil)
		require.NoError(t, err)
		pool.Close()
	})
}

func TestOpenErrors(t *testing.T) {
	ctx := context.Background()

	_, err := Open(ctx, Pool{}, nil)
	assert.ErrorIs(t, err, ErrNoConnString)

	_, err = Open(ctx, Pool{ConnString: "postgres://%zz"}, nil)
	assert.ErrorContains(t, err, "parse config")

	start := time.Now()
	_, err = Open(ctx, Pool{
		ConnString:     "postgres://nobody@127.0.0.1:1/none?connect_timeout=1",
		ConnectTimeout: 300 * time.Millisecond,
	}, nil)
	assert.ErrorContains(t, err, "ping connection")
	assert.Less(t, time.Since(start), 5*time.Second)
}
