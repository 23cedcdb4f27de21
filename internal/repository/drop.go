package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"dungeon-run-backend/internal/model"
)

// Drop and loot table errors.
var (
	ErrDropNotFound = errors.New("drop not found")
	ErrLootNotFound = errors.New("loot entry not found")
)

// DropRepository handles the append-only drop log and the loot table.
type DropRepository struct {
	pool *pgxpool.Pool
}

// NewDropRepository creates a new DropRepository instance.
func NewDropRepository(pool *pgxpool.Pool) *DropRepository {
	return &DropRepository{pool: pool}
}

// Insert appends a drop row and returns its id. Drop rows are never
// mutated; a rerolled drop stays in the log, orphaned from the run's
// current pointer.
func (r *DropRepository) Insert(ctx context.Context, q Querier, userID, day string, lootID int64, qty int, tier string, wasReroll bool) (int64, error) {
	const query = `
		INSERT INTO dungeon_drops (user_id, day, loot_id, qty, tier, was_reroll)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING drop_id
	`

	var dropID int64
	err := q.QueryRow(ctx, query, userID, day, lootID, qty, tier, wasReroll).Scan(&dropID)
	if err != nil {
		return 0, fmt.Errorf("failed to insert drop: %w", err)
	}
	return dropID, nil
}

// GetByID retrieves one drop row.
func (r *DropRepository) GetByID(ctx context.Context, q Querier, dropID int64) (*model.Drop, error) {
	const query = `
		SELECT drop_id, user_id, day, loot_id, qty, tier, was_reroll, created_at
		FROM dungeon_drops
		WHERE drop_id = $1
	`

	var d model.Drop
	err := q.QueryRow(ctx, query, dropID).Scan(
		&d.DropID,
		&d.UserID,
		&d.Day,
		&d.LootID,
		&d.Qty,
		&d.Tier,
		&d.WasReroll,
		&d.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDropNotFound
		}
		return nil, fmt.Errorf("failed to get drop: %w", err)
	}
	return &d, nil
}

// DeleteDay removes all of a user's drops for the day. Dev-reset only.
func (r *DropRepository) DeleteDay(ctx context.Context, q Querier, userID, day string) (int64, error) {
	const query = `DELETE FROM dungeon_drops WHERE user_id = $1 AND day = $2`

	tag, err := q.Exec(ctx, query, userID, day)
	if err != nil {
		return 0, fmt.Errorf("failed to delete drops: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ActiveLoot returns the active rows of the loot table in id order.
func (r *DropRepository) ActiveLoot(ctx context.Context) ([]model.LootRow, error) {
	const query = `
		SELECT loot_id, name, type, tier, weight_base, min_qty, max_qty, is_active
		FROM dungeon_loot_table
		WHERE is_active
		ORDER BY loot_id
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get loot table: %w", err)
	}
	defer rows.Close()

	var loot []model.LootRow
	for rows.Next() {
		var lr model.LootRow
		err := rows.Scan(
			&lr.LootID,
			&lr.Name,
			&lr.Type,
			&lr.Tier,
			&lr.WeightBase,
			&lr.MinQty,
			&lr.MaxQty,
			&lr.IsActive,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan loot row: %w", err)
		}
		loot = append(loot, lr)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating loot table: %w", err)
	}
	return loot, nil
}

// GetLoot retrieves one loot table entry by id.
func (r *DropRepository) GetLoot(ctx context.Context, q Querier, lootID int64) (*model.LootRow, error) {
	const query = `
		SELECT loot_id, name, type, tier, weight_base, min_qty, max_qty, is_active
		FROM dungeon_loot_table
		WHERE loot_id = $1
	`

	var lr model.LootRow
	err := q.QueryRow(ctx, query, lootID).Scan(
		&lr.LootID,
		&lr.Name,
		&lr.Type,
		&lr.Tier,
		&lr.WeightBase,
		&lr.MinQty,
		&lr.MaxQty,
		&lr.IsActive,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLootNotFound
		}
		return nil, fmt.Errorf("failed to get loot entry: %w", err)
	}
	return &lr, nil
}

// AddLoot inserts a loot table entry. Used by seeding and tests.
func (r *DropRepository) AddLoot(ctx context.Context, row model.LootRow) (int64, error) {
	const query = `
		INSERT INTO dungeon_loot_table (name, type, tier, weight_base, min_qty, max_qty, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING loot_id
	`

	var lootID int64
	err := r.pool.QueryRow(ctx, query,
		row.Name, row.Type, row.Tier, row.WeightBase, row.MinQty, row.MaxQty, row.IsActive,
	).Scan(&lootID)
	if err != nil {
		return 0, fmt.Errorf("failed to add loot entry: %w", err)
	}
	return lootID, nil
}
