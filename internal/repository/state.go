package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"dungeon-run-backend/internal/model"
)

// Daily limit errors, produced by the conditional counter updates.
var (
	ErrRunLimitExceeded    = errors.New("daily run limit exceeded")
	ErrAdRunsLimitExceeded = errors.New("daily ad-run limit exceeded")
)

const dailyStateColumns = `user_id, day, runs_used, ad_runs_used, rerolls_used,
	last_result_tier, streak_low_tier_days`

// StateRepository handles per-user, per-day counter persistence. All
// counter mutations are single-statement conditional updates so that
// concurrent requests cannot push a counter past its limit.
type StateRepository struct {
	pool *pgxpool.Pool
}

// NewStateRepository creates a new StateRepository instance.
func NewStateRepository(pool *pgxpool.Pool) *StateRepository {
	return &StateRepository{pool: pool}
}

func scanDailyState(row pgx.Row) (*model.DailyState, error) {
	var st model.DailyState
	err := row.Scan(
		&st.UserID,
		&st.Day,
		&st.RunsUsed,
		&st.AdRunsUsed,
		&st.RerollsUsed,
		&st.LastResultTier,
		&st.StreakLowTierDays,
	)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// Get returns the state for (user, day), or a zeroed state if none exists
// yet. A user who has not started today simply has zero counters.
func (r *StateRepository) Get(ctx context.Context, userID, day string) (*model.DailyState, error) {
	query := fmt.Sprintf(`SELECT %s FROM dungeon_daily_state WHERE user_id = $1 AND day = $2`, dailyStateColumns)

	st, err := scanDailyState(r.pool.QueryRow(ctx, query, userID, day))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &model.DailyState{UserID: userID, Day: day}, nil
		}
		return nil, fmt.Errorf("failed to get daily state: %w", err)
	}
	return st, nil
}

// Ensure creates the (user, day) row with zeroed counters if absent.
func (r *StateRepository) Ensure(ctx context.Context, q Querier, userID, day string) error {
	const query = `
		INSERT INTO dungeon_daily_state (user_id, day)
		VALUES ($1, $2)
		ON CONFLICT (user_id, day) DO NOTHING
	`
	if _, err := q.Exec(ctx, query, userID, day); err != nil {
		return fmt.Errorf("failed to ensure daily state: %w", err)
	}
	return nil
}

// ConsumeRun atomically increments runs_used, but only while the limit
// free + LEAST(ad_runs_used, adMax) still has room. Returns the new
// counter value, which doubles as the run index. A plain read-then-upsert
// here would lose updates under concurrency and let a user exceed the
// daily limit.
func (r *StateRepository) ConsumeRun(ctx context.Context, q Querier, userID, day string, free, adMax int) (int, error) {
	if err := r.Ensure(ctx, q, userID, day); err != nil {
		return 0, err
	}

	const query = `
		UPDATE dungeon_daily_state
		SET runs_used = runs_used + 1
		WHERE user_id = $1 AND day = $2
		  AND runs_used < $3 + LEAST(ad_runs_used, $4)
		RETURNING runs_used
	`

	var runsUsed int
	err := q.QueryRow(ctx, query, userID, day, free, adMax).Scan(&runsUsed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrRunLimitExceeded
		}
		return 0, fmt.Errorf("failed to consume run: %w", err)
	}
	return runsUsed, nil
}

// ConsumeAdRun atomically increments ad_runs_used below adMax and returns
// the updated state.
func (r *StateRepository) ConsumeAdRun(ctx context.Context, q Querier, userID, day string, adMax int) (*model.DailyState, error) {
	if err := r.Ensure(ctx, q, userID, day); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		UPDATE dungeon_daily_state
		SET ad_runs_used = ad_runs_used + 1
		WHERE user_id = $1 AND day = $2 AND ad_runs_used < $3
		RETURNING %s
	`, dailyStateColumns)

	st, err := scanDailyState(q.QueryRow(ctx, query, userID, day, adMax))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAdRunsLimitExceeded
		}
		return nil, fmt.Errorf("failed to consume ad run: %w", err)
	}
	return st, nil
}

// IncrementReroll bumps the informational per-day reroll counter.
func (r *StateRepository) IncrementReroll(ctx context.Context, q Querier, userID, day string) error {
	if err := r.Ensure(ctx, q, userID, day); err != nil {
		return err
	}

	const query = `
		UPDATE dungeon_daily_state
		SET rerolls_used = rerolls_used + 1
		WHERE user_id = $1 AND day = $2
	`
	if _, err := q.Exec(ctx, query, userID, day); err != nil {
		return fmt.Errorf("failed to increment rerolls: %w", err)
	}
	return nil
}

// Reset zeroes the (user, day) counters. Test/ops only, invoked by the
// dev-reset operation.
func (r *StateRepository) Reset(ctx context.Context, q Querier, userID, day string) (*model.DailyState, error) {
	query := fmt.Sprintf(`
		INSERT INTO dungeon_daily_state (user_id, day)
		VALUES ($1, $2)
		ON CONFLICT (user_id, day) DO UPDATE SET
			runs_used = 0,
			ad_runs_used = 0,
			rerolls_used = 0,
			last_result_tier = NULL,
			streak_low_tier_days = 0
		RETURNING %s
	`, dailyStateColumns)

	st, err := scanDailyState(q.QueryRow(ctx, query, userID, day))
	if err != nil {
		return nil, fmt.Errorf("failed to reset daily state: %w", err)
	}
	return st, nil
}
