package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rxcare/platform/internal/shared/config"
)

// Pool sizing. Repository calls hold a connection for single statements
// or short transactions (the fill reservation), so a modest pool with
// hourly recycling covers the workload.
const (
	maxConns        = 25
	minConns        = 5
	connMaxLifetime = time.Hour
	connMaxIdle     = 30 * time.Minute
	healthInterval  = time.Minute
)

// DB owns the pgx connection pool shared by every postgres repository.
type DB struct {
	Pool *pgxpool.Pool
}

// New opens a pool against cfg and verifies it with a ping, so a
// misconfigured database surfaces at startup rather than on the first
// request.
func New(ctx context.Context, cfg config.DatabaseConfig) (*DB, error) {
	pc, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse database dsn: %w", err)
	}
	pc.MaxConns = maxConns
	pc.MinConns = minConns
	pc.MaxConnLifetime = connMaxLifetime
	pc.MaxConnIdleTime = connMaxIdle
	pc.HealthCheckPeriod = healthInterval

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("open connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &DB{Pool: pool}, nil
}

// Close releases the pool. Safe on a nil-pool DB.
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
	}
}

// Health pings the database, backing the readiness endpoint.
func (db *DB) Health(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}
