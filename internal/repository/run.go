package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"dungeon-run-backend/internal/model"
)

// Run record errors.
var (
	ErrRunNotFound = errors.New("run not found")
)

const runColumns = `user_id, day, run_index, result_drop_id, rerolls_used,
	ad_reroll_ready, claimed`

// RunRepository handles per-run record persistence. Mutations that guard a
// one-shot transition (first resolve, single reroll, single claim) are
// conditional updates; callers that need to distinguish failure causes
// first take the row lock with GetForUpdate inside their transaction.
type RunRepository struct {
	pool *pgxpool.Pool
}

// NewRunRepository creates a new RunRepository instance.
func NewRunRepository(pool *pgxpool.Pool) *RunRepository {
	return &RunRepository{pool: pool}
}

func scanRun(row pgx.Row) (*model.RunRecord, error) {
	var run model.RunRecord
	err := row.Scan(
		&run.UserID,
		&run.Day,
		&run.RunIndex,
		&run.ResultDropID,
		&run.RerollsUsed,
		&run.AdRerollReady,
		&run.Claimed,
	)
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// Create inserts the empty run record for a freshly consumed run slot.
func (r *RunRepository) Create(ctx context.Context, q Querier, userID, day string, runIndex int) error {
	const query = `
		INSERT INTO dungeon_runs (user_id, day, run_index)
		VALUES ($1, $2, $3)
	`
	if _, err := q.Exec(ctx, query, userID, day, runIndex); err != nil {
		return fmt.Errorf("failed to create run record: %w", err)
	}
	return nil
}

// Get retrieves a run record. Returns ErrRunNotFound if it does not exist.
func (r *RunRepository) Get(ctx context.Context, userID, day string, runIndex int) (*model.RunRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM dungeon_runs WHERE user_id = $1 AND day = $2 AND run_index = $3`, runColumns)

	run, err := scanRun(r.pool.QueryRow(ctx, query, userID, day, runIndex))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// GetForUpdate retrieves a run record holding a row lock until the
// caller's transaction ends. Serializes concurrent reroll/claim attempts
// on the same run.
func (r *RunRepository) GetForUpdate(ctx context.Context, q Querier, userID, day string, runIndex int) (*model.RunRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM dungeon_runs WHERE user_id = $1 AND day = $2 AND run_index = $3 FOR UPDATE`, runColumns)

	run, err := scanRun(q.QueryRow(ctx, query, userID, day, runIndex))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("failed to lock run: %w", err)
	}
	return run, nil
}

// AttachDrop links the first resolve's drop to the run. The IS NULL guard
// makes the first resolve one-shot; reports false when another resolve got
// there first.
func (r *RunRepository) AttachDrop(ctx context.Context, q Querier, userID, day string, runIndex int, dropID int64) (bool, error) {
	const query = `
		UPDATE dungeon_runs
		SET result_drop_id = $4
		WHERE user_id = $1 AND day = $2 AND run_index = $3
		  AND result_drop_id IS NULL
	`
	tag, err := q.Exec(ctx, query, userID, day, runIndex, dropID)
	if err != nil {
		return false, fmt.Errorf("failed to attach drop: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// OpenAdGate sets the rewarded-ad flag. The conditions mirror the state
// machine guards; reports false when no row qualified.
func (r *RunRepository) OpenAdGate(ctx context.Context, q Querier, userID, day string, runIndex, rerollCap int) (bool, error) {
	const query = `
		UPDATE dungeon_runs
		SET ad_reroll_ready = TRUE
		WHERE user_id = $1 AND day = $2 AND run_index = $3
		  AND result_drop_id IS NOT NULL
		  AND rerolls_used < $4
	`
	tag, err := q.Exec(ctx, query, userID, day, runIndex, rerollCap)
	if err != nil {
		return false, fmt.Errorf("failed to open ad gate: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ApplyReroll consumes the gate flag and the reroll allowance while
// swapping the active drop. The guards make the reroll one-shot even if
// two attempts race past the service checks.
func (r *RunRepository) ApplyReroll(ctx context.Context, q Querier, userID, day string, runIndex int, newDropID int64, rerollCap int) (bool, error) {
	const query = `
		UPDATE dungeon_runs
		SET rerolls_used = rerolls_used + 1,
		    result_drop_id = $4,
		    ad_reroll_ready = FALSE
		WHERE user_id = $1 AND day = $2 AND run_index = $3
		  AND rerolls_used < $5
		  AND result_drop_id IS NOT NULL
		  AND ad_reroll_ready
		  AND NOT claimed
	`
	tag, err := q.Exec(ctx, query, userID, day, runIndex, newDropID, rerollCap)
	if err != nil {
		return false, fmt.Errorf("failed to apply reroll: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// MarkClaimed flips the claimed flag exactly once and forces the ad flag
// off. Reports false when the run was already claimed or has no drop.
func (r *RunRepository) MarkClaimed(ctx context.Context, q Querier, userID, day string, runIndex int) (bool, error) {
	const query = `
		UPDATE dungeon_runs
		SET claimed = TRUE,
		    ad_reroll_ready = FALSE
		WHERE user_id = $1 AND day = $2 AND run_index = $3
		  AND result_drop_id IS NOT NULL
		  AND NOT claimed
	`
	tag, err := q.Exec(ctx, query, userID, day, runIndex)
	if err != nil {
		return false, fmt.Errorf("failed to mark claimed: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// DeleteDay removes all of a user's runs for the day. Dev-reset only.
func (r *RunRepository) DeleteDay(ctx context.Context, q Querier, userID, day string) (int64, error) {
	const query = `DELETE FROM dungeon_runs WHERE user_id = $1 AND day = $2`

	tag, err := q.Exec(ctx, query, userID, day)
	if err != nil {
		return 0, fmt.Errorf("failed to delete runs: %w", err)
	}
	return tag.RowsAffected(), nil
}
