// Package pgx opens the Postgres pools read by the stations bridge.
package pgx

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Pool represents a connection configuration.
type Pool struct {
	Config     *pgxpool.Config `mapstructure:"-"` // Takes precedence over ConnString
	ConnString string          `mapstructure:"connString"` // Used if Config is nil
	// ConnectTimeout bounds the time spent waiting for the database to accept
	// connections. Zero tries once.
	ConnectTimeout time.Duration `mapstructure:"connectTimeout"`
}

var ErrNoConnString = errors.New("pgx: either Config or ConnString must be provided")

// Open creates a pool and pings it, retrying with exponential backoff until
// cfg.ConnectTimeout elapses.
func Open(ctx context.Context, cfg Pool, logger *zap.Logger) (*pgxpool.Pool, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	poolConfig := cfg.Config
	if poolConfig == nil {
		if cfg.ConnString == "" {
			return nil, ErrNoConnString
		}
		var err error
		poolConfig, err = pgxpool.ParseConfig(cfg.ConnString)
		if err != nil {
			return nil, fmt.Errorf("pgx: parse config: %w", err)
		}
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("pgx: creating pool: %w", err)
	}

	ping := func() error { return pool.Ping(ctx) }
	if cfg.ConnectTimeout > 0 {
		b := backoff.NewExponentialBackOff()
		b.MaxElapsedTime = cfg.ConnectTimeout
		err = backoff.RetryNotify(ping, backoff.WithContext(b, ctx), func(err error, next time.Duration) {
			logger.Warn("waiting for database",
				zap.String("host", poolConfig.ConnConfig.Host),
				zap.Duration("retryIn", next),
				zap.Error(err))
		})
	} else {
		err = ping()
	}
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgx: ping connection: %w", err)
	}
	return pool, nil
}
