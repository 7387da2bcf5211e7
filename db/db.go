// Package db mirrors crawl runs and their observations into Postgres.
// The JSON store stays the source of truth; the database is an optional queryable copy.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx postgres driver registered as 'pgx'
)

// Connect opens a Postgres connection and checks it is reachable.
func Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("empty DSN")
	}
	database, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	database.SetMaxOpenConns(4)
	database.SetConnMaxIdleTime(5 * time.Minute)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := database.PingContext(pingCtx); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return database, nil
}

// Migrate applies the schema with idempotent statements. It is the fallback for
// databases that cannot run the versioned migrations.
func Migrate(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS crawl_runs (
			id SERIAL PRIMARY KEY,
			run_id TEXT NOT NULL UNIQUE,
			started_at TIMESTAMPTZ NOT NULL,
			finished_at TIMESTAMPTZ NOT NULL,
			sub_areas INTEGER NOT NULL DEFAULT 0,
			rooms INTEGER NOT NULL DEFAULT 0,
			inconclusive INTEGER NOT NULL DEFAULT 0,
			records INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS flv_observations (
			id SERIAL PRIMARY KEY,
			run_id TEXT NOT NULL REFERENCES crawl_runs(run_id) ON DELETE CASCADE,
			area_id TEXT NOT NULL,
			area_name TEXT,
			sub_area_id TEXT NOT NULL,
			sub_area_name TEXT,
			room_id TEXT NOT NULL,
			flv_available BOOLEAN NOT NULL,
			observed_at TIMESTAMPTZ NOT NULL,
			UNIQUE (run_id, sub_area_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_flv_observations_sub_area ON flv_observations(sub_area_id, observed_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_crawl_runs_finished ON crawl_runs(finished_at DESC)`,
	}
	for i, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("postgres migrate step %d failed: %w", i+1, err)
		}
	}
	return nil
}
