package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"dungeon-run-backend/internal/model"
)

// Config-related errors.
var (
	ErrNoActiveConfig = errors.New("no active dungeon config")
)

// ConfigRepository reads the single active daily configuration.
type ConfigRepository struct {
	pool *pgxpool.Pool
}

// NewConfigRepository creates a new ConfigRepository instance.
func NewConfigRepository(pool *pgxpool.Pool) *ConfigRepository {
	return &ConfigRepository{pool: pool}
}

// GetActive returns the active config row. The returned value is treated
// as immutable for the duration of a request.
func (r *ConfigRepository) GetActive(ctx context.Context) (*model.Config, error) {
	const query = `
		SELECT id, daily_seed, free_runs_per_day, ad_run_refresh_max,
		       ad_loot_reroll_max, win_chance, base_hp, base_atk, active
		FROM dungeon_config
		WHERE active
		ORDER BY id
		LIMIT 1
	`

	var cfg model.Config
	err := r.pool.QueryRow(ctx, query).Scan(
		&cfg.ID,
		&cfg.DailySeed,
		&cfg.FreeRunsPerDay,
		&cfg.AdRunRefreshMax,
		&cfg.AdLootRerollMax,
		&cfg.WinChance,
		&cfg.BaseHP,
		&cfg.BaseAtk,
		&cfg.Active,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoActiveConfig
		}
		return nil, fmt.Errorf("failed to get active config: %w", err)
	}

	return &cfg, nil
}

// SeedDefault inserts a config row when the table is empty. Used at boot
// so a fresh database serves requests without manual setup.
func (r *ConfigRepository) SeedDefault(ctx context.Context, cfg model.Config) error {
	const query = `
		INSERT INTO dungeon_config
			(daily_seed, free_runs_per_day, ad_run_refresh_max,
			 ad_loot_reroll_max, win_chance, base_hp, base_atk, active)
		SELECT $1, $2, $3, $4, $5, $6, $7, TRUE
		WHERE NOT EXISTS (SELECT 1 FROM dungeon_config)
	`

	_, err := r.pool.Exec(ctx, query,
		cfg.DailySeed,
		cfg.FreeRunsPerDay,
		cfg.AdRunRefreshMax,
		cfg.AdLootRerollMax,
		cfg.WinChance,
		cfg.BaseHP,
		cfg.BaseAtk,
	)
	if err != nil {
		return fmt.Errorf("failed to seed config: %w", err)
	}
	return nil
}
