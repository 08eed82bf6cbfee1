package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB implements the evidence, job, refresh-run, and user repositories over a
// single shared pgx pool. Schema migrations live under migrations/ and are
// applied with the goose CLI (see tools/tools.go).
type DB struct {
	Pool         *pgxpool.Pool
	validityDays int
}

func Connect(ctx context.Context, url string) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = 10
	cfg.HealthCheckPeriod = 30 * time.Second
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &DB{Pool: pool, validityDays: defaultValidityDays}, nil
}

// SetValidityDays overrides the evidence validity window; non-positive
// values keep the default.
func (db *DB) SetValidityDays(days int) {
	if days > 0 {
		db.validityDays = days
	}
}

func (db *DB) Close() { db.Pool.Close() }
