package postgres

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5/pgxpool"
)

// One scan session writes at most one attempt at a time.
const (
	attemptMaxConns    = 2
	attemptMaxLifetime = time.Hour
	attemptMaxIdleTime = 10 * time.Minute
	attemptHealthCheck = time.Minute
)

func NewPool(ctx context.Context, url string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, errors.Wrap(err, "parse database url")
	}

	cfg.MaxConns = attemptMaxConns
	cfg.MaxConnLifetime = attemptMaxLifetime
	cfg.MaxConnIdleTime = attemptMaxIdleTime
	cfg.HealthCheckPeriod = attemptHealthCheck

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "ping database")
	}
	return pool, nil
}
