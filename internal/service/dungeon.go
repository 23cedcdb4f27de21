// Package service provides business logic implementations.
package service

import (
	"context"
	"math"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"dungeon-run-backend/internal/loot"
	"dungeon-run-backend/internal/model"
	"dungeon-run-backend/internal/repository"
	"dungeon-run-backend/internal/rng"
	"dungeon-run-backend/internal/token"
)

// Seed purposes for per-run random streams.
const (
	purposeBattle = "battle"
	purposeLoot   = "loot"
	purposeReroll = "reroll"
)

// bossName is the single daily encounter. Stats vary by day seed.
const bossName = "Seeded Warden"

// DungeonService sequences the run state machine:
// Start -> Resolve -> (AdReroll -> Reroll)? -> Claim, with AdRun widening
// the daily limit. All multi-row effects run in one transaction.
type DungeonService struct {
	pool       *pgxpool.Pool
	configRepo *repository.ConfigRepository
	stateRepo  *repository.StateRepository
	runRepo    *repository.RunRepository
	dropRepo   *repository.DropRepository
	walletRepo *repository.WalletRepository
}

// NewDungeonService creates a new DungeonService instance.
func NewDungeonService(
	pool *pgxpool.Pool,
	configRepo *repository.ConfigRepository,
	stateRepo *repository.StateRepository,
	runRepo *repository.RunRepository,
	dropRepo *repository.DropRepository,
	walletRepo *repository.WalletRepository,
) *DungeonService {
	return &DungeonService{
		pool:       pool,
		configRepo: configRepo,
		stateRepo:  stateRepo,
		runRepo:    runRepo,
		dropRepo:   dropRepo,
		walletRepo: walletRepo,
	}
}

// Limits mirrors the config-level daily allowances.
type Limits struct {
	Free    int `json:"free"`
	AdRuns  int `json:"ad_runs"`
	Rerolls int `json:"rerolls"`
}

// Usage mirrors the per-day counters.
type Usage struct {
	Runs    int `json:"runs"`
	AdRuns  int `json:"ad_runs"`
	Rerolls int `json:"rerolls"`
}

// Status is the read-only daily overview.
type Status struct {
	Day    string `json:"day"`
	Active bool   `json:"active"`
	Limits Limits `json:"limits"`
	Used   Usage  `json:"used"`
}

// StartResult is the outcome of a successful Start.
type StartResult struct {
	OK       bool       `json:"ok"`
	Boss     model.Boss `json:"boss"`
	Token    string     `json:"token"`
	RunIndex int        `json:"run_index"`
}

// DropReward is the client-facing view of a rolled drop.
type DropReward struct {
	LootID int64  `json:"loot_id"`
	Name   string `json:"name"`
	Type   string `json:"type"`
	Tier   string `json:"tier"`
	Qty    int    `json:"qty"`
}

// ResolveResult is the outcome of a Resolve. Drop is nil on a loss.
type ResolveResult struct {
	Win  bool        `json:"win"`
	Drop *DropReward `json:"drop,omitempty"`
}

// AdRunResult reports the widened limits after an ad-run grant.
type AdRunResult struct {
	OK     bool   `json:"ok"`
	Limits Limits `json:"limits"`
	Used   Usage  `json:"used"`
}

// RerollResult carries the replacement drop.
type RerollResult struct {
	Final DropReward `json:"final"`
}

// Applied describes what the claim credited (or merely logged).
type Applied struct {
	Type string `json:"type"`
	Qty  int    `json:"qty"`
	Name string `json:"name"`
	Tier string `json:"tier"`
}

// ClaimResult is the outcome of a successful Claim. Wallet is nil when the
// drop was not a currency type.
type ClaimResult struct {
	OK      bool          `json:"ok"`
	Applied Applied       `json:"applied"`
	Wallet  *model.Wallet `json:"wallet"`
}

// ResetResult reports what the dev reset removed.
type ResetResult struct {
	OK      bool              `json:"ok"`
	Day     string            `json:"day"`
	Deleted ResetCounts       `json:"deleted"`
	State   *model.DailyState `json:"state"`
}

// ResetCounts are the deleted row counts of a dev reset.
type ResetCounts struct {
	Runs  int64 `json:"runs"`
	Drops int64 `json:"drops"`
}

// Status returns the caller's daily overview. Never fails for an
// authenticated caller with an active config; a user with no state yet
// gets zeroed counters.
func (s *DungeonService) Status(ctx context.Context, userID string) (*Status, error) {
	cfg, err := s.configRepo.GetActive(ctx)
	if err != nil {
		return nil, err
	}

	st, err := s.stateRepo.Get(ctx, userID, cfg.Day())
	if err != nil {
		return nil, err
	}

	return &Status{
		Day:    cfg.Day(),
		Active: cfg.Active,
		Limits: limitsOf(cfg),
		Used:   usageOf(st),
	}, nil
}

// Start consumes a run slot, creates the run record and issues the run
// token. The counter increment and the record insert commit together.
func (s *DungeonService) Start(ctx context.Context, userID string) (*StartResult, error) {
	cfg, err := s.configRepo.GetActive(ctx)
	if err != nil {
		return nil, err
	}
	day := cfg.Day()

	var runIndex int
	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		idx, err := s.stateRepo.ConsumeRun(ctx, tx, userID, day, cfg.FreeRunsPerDay, cfg.AdRunRefreshMax)
		if err != nil {
			return err
		}
		runIndex = idx
		return s.runRepo.Create(ctx, tx, userID, day, runIndex)
	})
	if err != nil {
		return nil, err
	}

	boss := rollBoss(cfg)
	tok := token.Encode(userID, day, runIndex)

	log.Info().
		Str("user_id", userID).
		Str("day", day).
		Int("run_index", runIndex).
		Msg("Run started")

	return &StartResult{OK: true, Boss: boss, Token: tok, RunIndex: runIndex}, nil
}

// Resolve settles the run's battle. The outcome is fully determined by the
// per-run battle seed; a win rolls loot and attaches the drop, a loss
// records nothing and leaves the run terminal.
func (s *DungeonService) Resolve(ctx context.Context, userID, runToken string) (*ResolveResult, error) {
	cfg, claims, err := s.verifyToken(ctx, userID, runToken)
	if err != nil {
		return nil, err
	}
	day := cfg.Day()

	battle := rng.New(rng.RunSeed(userID, day, purposeBattle, claims.RunIndex))
	if battle() >= cfg.WinChance {
		return &ResolveResult{Win: false}, nil
	}

	rows, err := s.dropRepo.ActiveLoot(ctx)
	if err != nil {
		return nil, err
	}
	pick := loot.PickLoot(rows, rng.New(rng.RunSeed(userID, day, purposeLoot, claims.RunIndex)))

	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		run, err := s.runRepo.GetForUpdate(ctx, tx, userID, day, claims.RunIndex)
		if err != nil {
			return err
		}
		if err := run.CanResolve(); err != nil {
			return err
		}

		dropID, err := s.dropRepo.Insert(ctx, tx, userID, day, pick.Row.LootID, pick.Qty, pick.Row.Tier, false)
		if err != nil {
			return err
		}

		ok, err := s.runRepo.AttachDrop(ctx, tx, userID, day, claims.RunIndex, dropID)
		if err != nil {
			return err
		}
		if !ok {
			return model.ErrAlreadyResolved
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &ResolveResult{Win: true, Drop: rewardOf(pick)}, nil
}

// AdRun grants one extra run slot for a watched ad, up to the daily cap.
func (s *DungeonService) AdRun(ctx context.Context, userID string) (*AdRunResult, error) {
	cfg, err := s.configRepo.GetActive(ctx)
	if err != nil {
		return nil, err
	}

	st, err := s.stateRepo.ConsumeAdRun(ctx, s.pool, userID, cfg.Day(), cfg.AdRunRefreshMax)
	if err != nil {
		return nil, err
	}

	return &AdRunResult{OK: true, Limits: limitsOf(cfg), Used: usageOf(st)}, nil
}

// AdReroll opens the reroll gate after a rewarded-ad acknowledgment. The
// flag is the sole proof of ad completion and is consumed by the reroll it
// authorizes.
func (s *DungeonService) AdReroll(ctx context.Context, userID, runToken string) error {
	cfg, claims, err := s.verifyToken(ctx, userID, runToken)
	if err != nil {
		return err
	}
	day := cfg.Day()

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		run, err := s.runRepo.GetForUpdate(ctx, tx, userID, day, claims.RunIndex)
		if err != nil {
			return err
		}
		if err := run.CanOpenAdGate(cfg.AdLootRerollMax); err != nil {
			return err
		}

		ok, err := s.runRepo.OpenAdGate(ctx, tx, userID, day, claims.RunIndex, cfg.AdLootRerollMax)
		if err != nil {
			return err
		}
		if !ok {
			return model.ErrRerollLimitReached
		}
		return nil
	})
}

// Reroll replaces the run's drop once, consuming the ad gate. The old drop
// row stays in the log.
func (s *DungeonService) Reroll(ctx context.Context, userID, runToken string) (*RerollResult, error) {
	cfg, claims, err := s.verifyToken(ctx, userID, runToken)
	if err != nil {
		return nil, err
	}
	day := cfg.Day()

	rows, err := s.dropRepo.ActiveLoot(ctx)
	if err != nil {
		return nil, err
	}
	pick := loot.PickLoot(rows, rng.New(rng.RunSeed(userID, day, purposeReroll, claims.RunIndex)))

	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		run, err := s.runRepo.GetForUpdate(ctx, tx, userID, day, claims.RunIndex)
		if err != nil {
			return err
		}
		if err := run.CanReroll(cfg.AdLootRerollMax); err != nil {
			return err
		}

		dropID, err := s.dropRepo.Insert(ctx, tx, userID, day, pick.Row.LootID, pick.Qty, pick.Row.Tier, true)
		if err != nil {
			return err
		}

		ok, err := s.runRepo.ApplyReroll(ctx, tx, userID, day, claims.RunIndex, dropID, cfg.AdLootRerollMax)
		if err != nil {
			return err
		}
		if !ok {
			return model.ErrRerollLimitReached
		}

		return s.stateRepo.IncrementReroll(ctx, tx, userID, day)
	})
	if err != nil {
		return nil, err
	}

	return &RerollResult{Final: *rewardOf(pick)}, nil
}

// Claim credits the run's drop to the wallet exactly once and makes the
// run terminal. Non-currency drops are logged but not auto-applied.
func (s *DungeonService) Claim(ctx context.Context, userID, runToken string) (*ClaimResult, error) {
	cfg, claims, err := s.verifyToken(ctx, userID, runToken)
	if err != nil {
		return nil, err
	}
	day := cfg.Day()

	var result ClaimResult
	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		run, err := s.runRepo.GetForUpdate(ctx, tx, userID, day, claims.RunIndex)
		if err != nil {
			return err
		}
		if err := run.CanClaim(); err != nil {
			return err
		}

		drop, err := s.dropRepo.GetByID(ctx, tx, *run.ResultDropID)
		if err != nil {
			return err
		}
		lootRow, err := s.dropRepo.GetLoot(ctx, tx, drop.LootID)
		if err != nil {
			return err
		}

		var wallet *model.Wallet
		switch lootRow.Type {
		case model.LootTypeCoins:
			wallet, err = s.walletRepo.Credit(ctx, tx, userID, int64(drop.Qty), 0)
		case model.LootTypeDust:
			wallet, err = s.walletRepo.Credit(ctx, tx, userID, 0, int64(drop.Qty))
		default:
			log.Info().
				Str("user_id", userID).
				Str("loot_type", lootRow.Type).
				Int64("loot_id", lootRow.LootID).
				Msg("Non-currency drop claimed, not auto-applied")
		}
		if err != nil {
			return err
		}

		ok, err := s.runRepo.MarkClaimed(ctx, tx, userID, day, claims.RunIndex)
		if err != nil {
			return err
		}
		if !ok {
			return model.ErrAlreadyClaimed
		}

		result = ClaimResult{
			OK: true,
			Applied: Applied{
				Type: lootRow.Type,
				Qty:  drop.Qty,
				Name: lootRow.Name,
				Tier: lootRow.Tier,
			},
			Wallet: wallet,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &result, nil
}

// DevReset deletes the caller's current-day runs and drops and zeroes the
// daily state. The handler refuses this outside non-production
// environments.
func (s *DungeonService) DevReset(ctx context.Context, userID string) (*ResetResult, error) {
	cfg, err := s.configRepo.GetActive(ctx)
	if err != nil {
		return nil, err
	}
	day := cfg.Day()

	var result ResetResult
	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		runs, err := s.runRepo.DeleteDay(ctx, tx, userID, day)
		if err != nil {
			return err
		}
		drops, err := s.dropRepo.DeleteDay(ctx, tx, userID, day)
		if err != nil {
			return err
		}
		st, err := s.stateRepo.Reset(ctx, tx, userID, day)
		if err != nil {
			return err
		}

		result = ResetResult{
			OK:      true,
			Day:     day,
			Deleted: ResetCounts{Runs: runs, Drops: drops},
			State:   st,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Warn().
		Str("user_id", userID).
		Str("day", day).
		Int64("runs", result.Deleted.Runs).
		Int64("drops", result.Deleted.Drops).
		Msg("Dev reset executed")

	return &result, nil
}

// verifyToken loads the live config, decodes the run token and checks it
// against the caller identity and the current day.
func (s *DungeonService) verifyToken(ctx context.Context, userID, runToken string) (*model.Config, token.Claims, error) {
	cfg, err := s.configRepo.GetActive(ctx)
	if err != nil {
		return nil, token.Claims{}, err
	}

	claims, err := token.Decode(runToken)
	if err != nil {
		return nil, token.Claims{}, err
	}
	if err := claims.Verify(userID, cfg.Day()); err != nil {
		return nil, token.Claims{}, err
	}
	return cfg, claims, nil
}

// rollBoss derives the day's boss from the boss seed: hp then atk, each
// scaled up to +40% over the base stats.
func rollBoss(cfg *model.Config) model.Boss {
	stream := rng.New(rng.BossSeed(cfg.Day()))
	return model.Boss{
		Name: bossName,
		HP:   int(math.Floor(float64(cfg.BaseHP) * (1 + stream()*0.4))),
		Atk:  int(math.Floor(float64(cfg.BaseAtk) * (1 + stream()*0.4))),
		Seed: cfg.Day(),
	}
}

func rewardOf(pick loot.Pick) *DropReward {
	return &DropReward{
		LootID: pick.Row.LootID,
		Name:   pick.Row.Name,
		Type:   pick.Row.Type,
		Tier:   pick.Row.Tier,
		Qty:    pick.Qty,
	}
}

func limitsOf(cfg *model.Config) Limits {
	return Limits{
		Free:    cfg.FreeRunsPerDay,
		AdRuns:  cfg.AdRunRefreshMax,
		Rerolls: cfg.AdLootRerollMax,
	}
}

func usageOf(st *model.DailyState) Usage {
	return Usage{
		Runs:    st.RunsUsed,
		AdRuns:  st.AdRunsUsed,
		Rerolls: st.RerollsUsed,
	}
}
