// Package rng provides the deterministic pseudo-random stream used for
// boss stats, battle outcomes and loot rolls.
package rng

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
)

// Stream produces values in [0, 1]. Two streams built from the same seed
// string yield identical sequences.
type Stream func() float64

// New derives a Stream from a seed string. The seed is hashed with SHA-256
// and the first 32 bits (little-endian) become the xorshift state.
func New(seed string) Stream {
	sum := sha256.Sum256([]byte(seed))
	state := binary.LittleEndian.Uint32(sum[:4])

	return func() float64 {
		state ^= state << 13
		state ^= state >> 17
		state ^= state << 5
		return float64(state) / float64(0xFFFFFFFF)
	}
}

// BossSeed returns the seed string for the day's boss stats. All users
// share the same boss for a given day.
func BossSeed(day string) string {
	return fmt.Sprintf("%s-boss", day)
}

// RunSeed returns the seed string for a per-run event. Distinct purposes
// ("battle", "loot", "reroll") give mutually uncorrelated streams for the
// same run.
func RunSeed(userID, day, purpose string, runIndex int) string {
	return fmt.Sprintf("%s-%s-%s-%d", userID, day, purpose, runIndex)
}
