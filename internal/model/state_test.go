package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func dropRef(id int64) *int64 { return &id }

func TestRunRecord_State(t *testing.T) {
	tests := []struct {
		name string
		run  RunRecord
		want RunState
	}{
		{"fresh run", RunRecord{}, StateCreated},
		{"resolved win", RunRecord{ResultDropID: dropRef(1)}, StateWonPendingClaim},
		{"gate open", RunRecord{ResultDropID: dropRef(1), AdRerollReady: true}, StateAdGateOpen},
		{"claimed", RunRecord{ResultDropID: dropRef(1), Claimed: true}, StateClaimed},
		{"claimed wins over gate flag", RunRecord{ResultDropID: dropRef(1), AdRerollReady: true, Claimed: true}, StateClaimed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.run.State())
		})
	}
}

func TestRunRecord_CanResolve(t *testing.T) {
	run := RunRecord{}
	assert.NoError(t, run.CanResolve())

	run.ResultDropID = dropRef(7)
	assert.ErrorIs(t, run.CanResolve(), ErrAlreadyResolved)
}

func TestRunRecord_CanOpenAdGate(t *testing.T) {
	run := RunRecord{}
	assert.ErrorIs(t, run.CanOpenAdGate(1), ErrNoDropYet)

	run.ResultDropID = dropRef(7)
	assert.NoError(t, run.CanOpenAdGate(1))

	run.RerollsUsed = 1
	assert.ErrorIs(t, run.CanOpenAdGate(1), ErrRerollLimitReached)
}

func TestRunRecord_CanReroll_GuardOrder(t *testing.T) {
	// Limit check comes first: a spent reroll reports the limit even when
	// the gate flag was set again afterwards.
	run := RunRecord{ResultDropID: dropRef(7), RerollsUsed: 1, AdRerollReady: true}
	assert.ErrorIs(t, run.CanReroll(1), ErrRerollLimitReached)

	run = RunRecord{}
	assert.ErrorIs(t, run.CanReroll(1), ErrNoDropYet)

	run = RunRecord{ResultDropID: dropRef(7)}
	assert.ErrorIs(t, run.CanReroll(1), ErrAdRequired)

	run = RunRecord{ResultDropID: dropRef(7), AdRerollReady: true, Claimed: true}
	assert.ErrorIs(t, run.CanReroll(1), ErrAlreadyClaimed)

	run = RunRecord{ResultDropID: dropRef(7), AdRerollReady: true}
	assert.NoError(t, run.CanReroll(1))
}

func TestRunRecord_CanClaim(t *testing.T) {
	run := RunRecord{}
	assert.ErrorIs(t, run.CanClaim(), ErrNoDropYet)

	run.ResultDropID = dropRef(7)
	assert.NoError(t, run.CanClaim())

	run.Claimed = true
	assert.ErrorIs(t, run.CanClaim(), ErrAlreadyClaimed)
}

// TestRerollExactlyOnceProperty: after one reroll the allowance is spent,
// no matter how often the ad gate is reopened.
func TestRerollExactlyOnceProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		run := RunRecord{ResultDropID: dropRef(1)}
		const rerollCap = 1

		// Gate then reroll once.
		if err := run.CanOpenAdGate(rerollCap); err != nil {
			rt.Fatalf("first gate should open: %v", err)
		}
		run.AdRerollReady = true
		if err := run.CanReroll(rerollCap); err != nil {
			rt.Fatalf("first reroll should pass: %v", err)
		}
		run.RerollsUsed++
		run.AdRerollReady = false

		// Any number of further gate attempts must fail, and so must a
		// second reroll even with the flag forced on.
		attempts := rapid.IntRange(1, 5).Draw(rt, "attempts")
		for i := 0; i < attempts; i++ {
			if err := run.CanOpenAdGate(rerollCap); err == nil {
				rt.Fatalf("gate reopened after reroll spent")
			}
			run.AdRerollReady = true
			if err := run.CanReroll(rerollCap); err == nil {
				rt.Fatalf("second reroll permitted")
			}
		}
	})
}

// TestClaimExactlyOnceProperty: once claimed, every later claim attempt
// fails and the reroll path is closed too.
func TestClaimExactlyOnceProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		run := RunRecord{ResultDropID: dropRef(1)}
		if rapid.Bool().Draw(rt, "rerolledFirst") {
			run.RerollsUsed = 1
		}

		if err := run.CanClaim(); err != nil {
			rt.Fatalf("first claim should pass: %v", err)
		}
		run.Claimed = true
		run.AdRerollReady = false

		attempts := rapid.IntRange(1, 5).Draw(rt, "attempts")
		for i := 0; i < attempts; i++ {
			if err := run.CanClaim(); err == nil {
				rt.Fatalf("second claim permitted")
			}
			run.AdRerollReady = true
			if err := run.CanReroll(1); err == nil {
				rt.Fatalf("reroll permitted after claim")
			}
		}
	})
}
