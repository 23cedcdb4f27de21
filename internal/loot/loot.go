// Package loot samples one entry from a weighted loot table.
package loot

import (
	"math"

	"dungeon-run-backend/internal/model"
	"dungeon-run-backend/internal/rng"
)

// Pick is the outcome of one loot roll.
type Pick struct {
	Row model.LootRow
	Qty int
}

// Nothing is the sentinel returned for an empty loot table. Picking never
// fails.
var Nothing = model.LootRow{
	LootID: 0,
	Name:   "Nothing",
	Type:   model.LootTypeNone,
	Tier:   model.TierLow,
	MinQty: 1,
	MaxQty: 1,
}

// PickLoot draws one row proportionally to weight_base, then a quantity
// uniform over [min_qty, max_qty]. The quantity consumes exactly one extra
// draw from the stream. No pity or weight boost is applied.
func PickLoot(rows []model.LootRow, stream rng.Stream) Pick {
	if len(rows) == 0 {
		return Pick{Row: Nothing, Qty: 1}
	}

	var total float64
	for _, r := range rows {
		total += r.WeightBase
	}

	roll := stream() * total
	idx := len(rows) - 1 // fallback: float accumulation may exhaust the walk
	acc := 0.0
	for i, r := range rows {
		acc += r.WeightBase
		if roll <= acc {
			idx = i
			break
		}
	}

	row := rows[idx]
	qty := row.MinQty + int(math.Floor(stream()*float64(row.MaxQty-row.MinQty+1)))
	if qty > row.MaxQty {
		// stream() is inclusive of 1.0 at one state in 2^32
		qty = row.MaxQty
	}
	return Pick{Row: row, Qty: qty}
}
