// Package model defines the data models for the dungeon run engine.
package model

import "time"

// Config is the single active daily configuration. It is immutable within
// a day; a new DailySeed value defines a new day boundary.
type Config struct {
	ID              int64   `db:"id"`
	DailySeed       string  `db:"daily_seed"`
	FreeRunsPerDay  int     `db:"free_runs_per_day"`
	AdRunRefreshMax int     `db:"ad_run_refresh_max"`
	AdLootRerollMax int     `db:"ad_loot_reroll_max"`
	WinChance       float64 `db:"win_chance"`
	BaseHP          int     `db:"base_hp"`
	BaseAtk         int     `db:"base_atk"`
	Active          bool    `db:"active"`
}

// Day returns the logical game-day identifier. The day boundary is defined
// by the seed value, not wall-clock date.
func (c *Config) Day() string {
	return c.DailySeed
}

// DailyState holds per-user, per-day run counters.
type DailyState struct {
	UserID            string  `db:"user_id"`
	Day               string  `db:"day"`
	RunsUsed          int     `db:"runs_used"`
	AdRunsUsed        int     `db:"ad_runs_used"`
	RerollsUsed       int     `db:"rerolls_used"`
	LastResultTier    *string `db:"last_result_tier"`
	StreakLowTierDays int     `db:"streak_low_tier_days"`
}

// RunRecord tracks one run attempt. ResultDropID is a weak reference to
// the currently-active drop; a drop replaced by a reroll stays in the log.
type RunRecord struct {
	UserID        string `db:"user_id"`
	Day           string `db:"day"`
	RunIndex      int    `db:"run_index"`
	ResultDropID  *int64 `db:"result_drop_id"`
	RerollsUsed   int    `db:"rerolls_used"`
	AdRerollReady bool   `db:"ad_reroll_ready"`
	Claimed       bool   `db:"claimed"`
}

// Drop is an immutable log row for one loot roll outcome. Append-only.
type Drop struct {
	DropID    int64     `db:"drop_id"`
	UserID    string    `db:"user_id"`
	Day       string    `db:"day"`
	LootID    int64     `db:"loot_id"`
	Qty       int       `db:"qty"`
	Tier      string    `db:"tier"`
	WasReroll bool      `db:"was_reroll"`
	CreatedAt time.Time `db:"created_at"`
}

// LootRow is one weighted entry of the loot table.
type LootRow struct {
	LootID     int64   `db:"loot_id"`
	Name       string  `db:"name"`
	Type       string  `db:"type"`
	Tier       string  `db:"tier"`
	WeightBase float64 `db:"weight_base"`
	MinQty     int     `db:"min_qty"`
	MaxQty     int     `db:"max_qty"`
	IsActive   bool    `db:"is_active"`
}

// Wallet holds a user's persistent currency balances.
type Wallet struct {
	UserID string `db:"user_id" json:"user_id"`
	Coins  int64  `db:"coins" json:"coins"`
	Dust   int64  `db:"dust" json:"dust"`
}

// Boss describes the encounter generated at run start. Stats derive from
// the day seed, so every user faces the same boss on a given day.
type Boss struct {
	Name string `json:"name"`
	HP   int    `json:"hp"`
	Atk  int    `json:"atk"`
	Seed string `json:"seed"`
}

// Loot types. Only currency types are credited to the wallet at claim
// time; everything else stays a log entry.
const (
	LootTypeCoins = "coins"
	LootTypeDust  = "dust"
	LootTypeNone  = "none"
)

// Loot tiers.
const (
	TierLow  = "low"
	TierMid  = "mid"
	TierHigh = "high"
)
