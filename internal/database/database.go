// Package database provides PostgreSQL connection management using pgx.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/avolkov/eventbot/internal/config"
	"github.com/jackc/pgx/v5/pgxpool"
)

// NewPool creates and validates a pgxpool connection pool.
// It retries up to 5 times to accommodate containers starting up.
func NewPool(ctx context.Context, cfg config.Database) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse db config: %w", err)
	}

	// Sensible pool defaults for a small service.
	poolCfg.MaxConns = 20
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	var pool *pgxpool.Pool
	for attempt := 1; attempt <= 5; attempt++ {
		pool, err = pgxpool.NewWithConfig(ctx, poolCfg)
		if err == nil {
			pingErr := pool.Ping(ctx)
			if pingErr == nil {
				return pool, nil
			}
			pool.Close()
			err = pingErr
		}
		if attempt < 5 {
			time.Sleep(2 * time.Second)
		}
	}
	return nil, fmt.Errorf("connect to postgres: %w", err)
}

// schema declares the full persisted state. Both hard invariants live here
// rather than in application code: the unique index over (user_id, event_id)
// makes duplicate registration a constraint violation, and the cascade from
// registrations to events makes event deletion a single atomic statement.
// reminder_runs is the per-day claim that keeps the reminder job from firing
// twice on the same calendar day across process restarts.
const schema = `
CREATE TABLE IF NOT EXISTS users (
	id         TEXT PRIMARY KEY,
	tg_id      BIGINT NOT NULL UNIQUE,
	full_name  TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS events (
	id          TEXT PRIMARY KEY,
	title       TEXT NOT NULL,
	topic       TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	date        DATE NOT NULL
);

CREATE TABLE IF NOT EXISTS registrations (
	id            TEXT PRIMARY KEY,
	user_id       TEXT NOT NULL REFERENCES users (id),
	event_id      TEXT NOT NULL REFERENCES events (id) ON DELETE CASCADE,
	registered_at TIMESTAMPTZ NOT NULL,
	UNIQUE (user_id, event_id)
);

CREATE TABLE IF NOT EXISTS reminder_runs (
	run_date   DATE PRIMARY KEY,
	started_at TIMESTAMPTZ NOT NULL
);
`

// Migrate creates the schema if it does not exist yet.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
