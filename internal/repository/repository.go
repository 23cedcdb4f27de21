// Package repository provides data access layer implementations.
package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the subset of pgx satisfied by both *pgxpool.Pool and pgx.Tx.
// Methods that must run inside a caller-owned transaction take it
// explicitly.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Migrate applies the schema. Safe to run repeatedly.
func Migrate(ctx context.Context, q Querier) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS dungeon_config (
			id BIGSERIAL PRIMARY KEY,
			daily_seed VARCHAR(64) NOT NULL,
			free_runs_per_day INT NOT NULL DEFAULT 1,
			ad_run_refresh_max INT NOT NULL DEFAULT 1,
			ad_loot_reroll_max INT NOT NULL DEFAULT 1,
			win_chance DOUBLE PRECISION NOT NULL DEFAULT 0.85,
			base_hp INT NOT NULL DEFAULT 100,
			base_atk INT NOT NULL DEFAULT 10,
			active BOOLEAN NOT NULL DEFAULT TRUE
		)`,
		`CREATE TABLE IF NOT EXISTS dungeon_daily_state (
			user_id UUID NOT NULL,
			day VARCHAR(64) NOT NULL,
			runs_used INT NOT NULL DEFAULT 0,
			ad_runs_used INT NOT NULL DEFAULT 0,
			rerolls_used INT NOT NULL DEFAULT 0,
			last_result_tier VARCHAR(16),
			streak_low_tier_days INT NOT NULL DEFAULT 0,
			PRIMARY KEY (user_id, day)
		)`,
		`CREATE TABLE IF NOT EXISTS dungeon_runs (
			user_id UUID NOT NULL,
			day VARCHAR(64) NOT NULL,
			run_index INT NOT NULL,
			result_drop_id BIGINT,
			rerolls_used INT NOT NULL DEFAULT 0,
			ad_reroll_ready BOOLEAN NOT NULL DEFAULT FALSE,
			claimed BOOLEAN NOT NULL DEFAULT FALSE,
			PRIMARY KEY (user_id, day, run_index)
		)`,
		`CREATE TABLE IF NOT EXISTS dungeon_drops (
			drop_id BIGSERIAL PRIMARY KEY,
			user_id UUID NOT NULL,
			day VARCHAR(64) NOT NULL,
			loot_id BIGINT NOT NULL,
			qty INT NOT NULL,
			tier VARCHAR(16) NOT NULL,
			was_reroll BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_dungeon_drops_user_day
			ON dungeon_drops(user_id, day)`,
		`CREATE TABLE IF NOT EXISTS dungeon_loot_table (
			loot_id BIGSERIAL PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			type VARCHAR(32) NOT NULL,
			tier VARCHAR(16) NOT NULL,
			weight_base DOUBLE PRECISION NOT NULL,
			min_qty INT NOT NULL DEFAULT 1,
			max_qty INT NOT NULL DEFAULT 1,
			is_active BOOLEAN NOT NULL DEFAULT TRUE
		)`,
		`CREATE TABLE IF NOT EXISTS currencies (
			user_id UUID PRIMARY KEY,
			coins BIGINT NOT NULL DEFAULT 0,
			dust BIGINT NOT NULL DEFAULT 0
		)`,
	}

	for _, stmt := range statements {
		if _, err := q.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
