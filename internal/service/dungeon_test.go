// Package service provides business logic implementations.
// Tests use testcontainers-go to spin up a PostgreSQL container and drive
// the run state machine end to end.
package service

import (
	"context"
	"os/exec"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"dungeon-run-backend/internal/model"
	"dungeon-run-backend/internal/repository"
	"dungeon-run-backend/internal/token"
)

const testDay = "D1"

func checkDockerAvailable() bool {
	cmd := exec.Command("docker", "info")
	err := cmd.Run()
	return err == nil
}

// setupService spins up a PostgreSQL container, applies the schema, seeds
// the config (win chance 1.0 so resolves are deterministic wins) and a
// two-row loot table, and returns a wired service.
func setupService(t *testing.T) (*DungeonService, *pgxpool.Pool, func()) {
	if !checkDockerAvailable() {
		t.Skip("Docker is not available, skipping integration test")
	}

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)

	require.NoError(t, repository.Migrate(ctx, pool))

	configRepo := repository.NewConfigRepository(pool)
	stateRepo := repository.NewStateRepository(pool)
	runRepo := repository.NewRunRepository(pool)
	dropRepo := repository.NewDropRepository(pool)
	walletRepo := repository.NewWalletRepository(pool)

	err = configRepo.SeedDefault(ctx, model.Config{
		DailySeed:       testDay,
		FreeRunsPerDay:  1,
		AdRunRefreshMax: 1,
		AdLootRerollMax: 1,
		WinChance:       1.0,
		BaseHP:          100,
		BaseAtk:         10,
	})
	require.NoError(t, err)

	_, err = dropRepo.AddLoot(ctx, model.LootRow{
		Name: "Copper Coins", Type: model.LootTypeCoins, Tier: model.TierLow,
		WeightBase: 50, MinQty: 10, MaxQty: 30, IsActive: true,
	})
	require.NoError(t, err)
	_, err = dropRepo.AddLoot(ctx, model.LootRow{
		Name: "Arcane Dust", Type: model.LootTypeDust, Tier: model.TierMid,
		WeightBase: 50, MinQty: 5, MaxQty: 15, IsActive: true,
	})
	require.NoError(t, err)

	svc := NewDungeonService(pool, configRepo, stateRepo, runRepo, dropRepo, walletRepo)

	cleanup := func() {
		pool.Close()
		_ = pgContainer.Terminate(ctx)
	}

	return svc, pool, cleanup
}

func TestDungeonService_FullRunFlow(t *testing.T) {
	svc, _, cleanup := setupService(t)
	defer cleanup()

	ctx := context.Background()
	userID := uuid.NewString()

	// Fresh user: zeroed counters
	st, err := svc.Status(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, testDay, st.Day)
	assert.Equal(t, 1, st.Limits.Free)
	assert.Equal(t, 0, st.Used.Runs)

	// Start consumes the free slot and issues the token
	start, err := svc.Start(ctx, userID)
	require.NoError(t, err)
	assert.True(t, start.OK)
	assert.Equal(t, 1, start.RunIndex)
	assert.Equal(t, "Seeded Warden", start.Boss.Name)
	assert.GreaterOrEqual(t, start.Boss.HP, 100)
	assert.LessOrEqual(t, start.Boss.HP, 140)

	claims, err := token.Decode(start.Token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, testDay, claims.Day)
	assert.Equal(t, 1, claims.RunIndex)

	// No second free run
	_, err = svc.Start(ctx, userID)
	assert.ErrorIs(t, err, repository.ErrRunLimitExceeded)

	// Resolve wins (win chance 1.0) and rolls a drop
	res, err := svc.Resolve(ctx, userID, start.Token)
	require.NoError(t, err)
	assert.True(t, res.Win)
	require.NotNil(t, res.Drop)
	assert.NotEmpty(t, res.Drop.Name)
	assert.Positive(t, res.Drop.Qty)

	// The first resolve is sticky
	_, err = svc.Resolve(ctx, userID, start.Token)
	assert.ErrorIs(t, err, model.ErrAlreadyResolved)

	// Reroll without the ad gate is refused
	_, err = svc.Reroll(ctx, userID, start.Token)
	assert.ErrorIs(t, err, model.ErrAdRequired)

	require.NoError(t, svc.AdReroll(ctx, userID, start.Token))

	reroll, err := svc.Reroll(ctx, userID, start.Token)
	require.NoError(t, err)
	assert.NotEmpty(t, reroll.Final.Name)

	// The single reroll allowance is spent
	_, err = svc.Reroll(ctx, userID, start.Token)
	assert.ErrorIs(t, err, model.ErrRerollLimitReached)
	err = svc.AdReroll(ctx, userID, start.Token)
	assert.ErrorIs(t, err, model.ErrRerollLimitReached)

	// Claim credits the final drop exactly once
	claim, err := svc.Claim(ctx, userID, start.Token)
	require.NoError(t, err)
	assert.True(t, claim.OK)
	assert.Equal(t, reroll.Final.Qty, claim.Applied.Qty)
	assert.Equal(t, reroll.Final.Type, claim.Applied.Type)
	require.NotNil(t, claim.Wallet)
	switch claim.Applied.Type {
	case model.LootTypeCoins:
		assert.Equal(t, int64(claim.Applied.Qty), claim.Wallet.Coins)
	case model.LootTypeDust:
		assert.Equal(t, int64(claim.Applied.Qty), claim.Wallet.Dust)
	}

	_, err = svc.Claim(ctx, userID, start.Token)
	assert.ErrorIs(t, err, model.ErrAlreadyClaimed)

	// Rerolls after a claim stay refused
	err = svc.AdReroll(ctx, userID, start.Token)
	assert.ErrorIs(t, err, model.ErrRerollLimitReached)

	// Counters reflect the day's activity
	st, err = svc.Status(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Used.Runs)
	assert.Equal(t, 1, st.Used.Rerolls)
}

func TestDungeonService_AdRunExtendsLimit(t *testing.T) {
	svc, _, cleanup := setupService(t)
	defer cleanup()

	ctx := context.Background()
	userID := uuid.NewString()

	_, err := svc.Start(ctx, userID)
	require.NoError(t, err)
	_, err = svc.Start(ctx, userID)
	assert.ErrorIs(t, err, repository.ErrRunLimitExceeded)

	adRes, err := svc.AdRun(ctx, userID)
	require.NoError(t, err)
	assert.True(t, adRes.OK)
	assert.Equal(t, 1, adRes.Used.AdRuns)

	start, err := svc.Start(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 2, start.RunIndex)

	// Both the ad cap and the widened run limit are exhausted
	_, err = svc.AdRun(ctx, userID)
	assert.ErrorIs(t, err, repository.ErrAdRunsLimitExceeded)
	_, err = svc.Start(ctx, userID)
	assert.ErrorIs(t, err, repository.ErrRunLimitExceeded)
}

func TestDungeonService_LossLeavesNothingToClaim(t *testing.T) {
	svc, pool, cleanup := setupService(t)
	defer cleanup()

	ctx := context.Background()
	userID := uuid.NewString()

	// Zero win chance forces a loss
	_, err := pool.Exec(ctx, `UPDATE dungeon_config SET win_chance = 0`)
	require.NoError(t, err)

	start, err := svc.Start(ctx, userID)
	require.NoError(t, err)

	res, err := svc.Resolve(ctx, userID, start.Token)
	require.NoError(t, err)
	assert.False(t, res.Win)
	assert.Nil(t, res.Drop)

	// A lost run has no drop to reroll or claim
	_, err = svc.Claim(ctx, userID, start.Token)
	assert.ErrorIs(t, err, model.ErrNoDropYet)
	err = svc.AdReroll(ctx, userID, start.Token)
	assert.ErrorIs(t, err, model.ErrNoDropYet)
}

func TestDungeonService_TokenChecks(t *testing.T) {
	svc, _, cleanup := setupService(t)
	defer cleanup()

	ctx := context.Background()
	userID := uuid.NewString()
	otherID := uuid.NewString()

	start, err := svc.Start(ctx, userID)
	require.NoError(t, err)

	// Another user presenting the token is a mismatch, not a stale token
	_, err = svc.Resolve(ctx, otherID, start.Token)
	assert.ErrorIs(t, err, token.ErrTokenMismatch)

	// A token minted for a previous day is stale
	stale := token.Encode(userID, "D0", 1)
	_, err = svc.Resolve(ctx, userID, stale)
	assert.ErrorIs(t, err, token.ErrStaleToken)

	// Garbage is malformed
	_, err = svc.Resolve(ctx, userID, "not-base64!!")
	assert.ErrorIs(t, err, token.ErrMalformedToken)

	// A syntactically valid token for a run that never started
	ghost := token.Encode(userID, testDay, 7)
	_, err = svc.Resolve(ctx, userID, ghost)
	assert.ErrorIs(t, err, repository.ErrRunNotFound)
}

func TestDungeonService_BossIsSharedAcrossUsers(t *testing.T) {
	svc, _, cleanup := setupService(t)
	defer cleanup()

	ctx := context.Background()

	a, err := svc.Start(ctx, uuid.NewString())
	require.NoError(t, err)
	b, err := svc.Start(ctx, uuid.NewString())
	require.NoError(t, err)

	// Boss stats derive from the day seed only
	assert.Equal(t, a.Boss.HP, b.Boss.HP)
	assert.Equal(t, a.Boss.Atk, b.Boss.Atk)
	assert.Equal(t, a.Boss.Seed, b.Boss.Seed)
}

func TestDungeonService_ConcurrentClaims(t *testing.T) {
	svc, _, cleanup := setupService(t)
	defer cleanup()

	ctx := context.Background()
	userID := uuid.NewString()

	start, err := svc.Start(ctx, userID)
	require.NoError(t, err)
	_, err = svc.Resolve(ctx, userID, start.Token)
	require.NoError(t, err)

	const workers = 8
	var wg sync.WaitGroup
	results := make(chan error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Claim(ctx, userID, start.Token)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var successes int
	for err := range results {
		if err == nil {
			successes++
		} else {
			assert.ErrorIs(t, err, model.ErrAlreadyClaimed)
		}
	}
	assert.Equal(t, 1, successes)

	// Exactly one credit landed
	w, err := svc.walletRepo.Get(ctx, userID)
	require.NoError(t, err)
	assert.Positive(t, w.Coins+w.Dust)
}

func TestDungeonService_DevReset(t *testing.T) {
	svc, _, cleanup := setupService(t)
	defer cleanup()

	ctx := context.Background()
	userID := uuid.NewString()

	start, err := svc.Start(ctx, userID)
	require.NoError(t, err)
	_, err = svc.Resolve(ctx, userID, start.Token)
	require.NoError(t, err)

	reset, err := svc.DevReset(ctx, userID)
	require.NoError(t, err)
	assert.True(t, reset.OK)
	assert.Equal(t, int64(1), reset.Deleted.Runs)
	assert.Equal(t, int64(1), reset.Deleted.Drops)
	assert.Equal(t, 0, reset.State.RunsUsed)

	// The old token now points at a deleted run
	_, err = svc.Claim(ctx, userID, start.Token)
	assert.ErrorIs(t, err, repository.ErrRunNotFound)

	// The free slot is available again
	again, err := svc.Start(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 1, again.RunIndex)
}
