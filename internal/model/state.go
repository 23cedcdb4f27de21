package model

import "errors"

// State-transition errors. These are expected client-flow conflicts, not
// system faults; handlers surface them as 400 responses.
var (
	ErrNoDropYet          = errors.New("run has no drop yet")
	ErrAlreadyResolved    = errors.New("run already resolved")
	ErrAlreadyClaimed     = errors.New("run already claimed")
	ErrRerollLimitReached = errors.New("reroll limit reached for this run")
	ErrAdRequired         = errors.New("ad acknowledgment required before reroll")
)

// RunState is the explicit state of a run record, derived from the stored
// flags. The flag combinations the transitions below permit map onto
// exactly these variants; anything else is unreachable.
type RunState int

const (
	// StateCreated: run started, not yet resolved (or resolved as a loss,
	// which records nothing and leaves the run terminal with no drop).
	StateCreated RunState = iota
	// StateWonPendingClaim: a drop is attached and claimable.
	StateWonPendingClaim
	// StateAdGateOpen: a drop is attached and the rewarded-ad flag is set,
	// authorizing exactly one reroll.
	StateAdGateOpen
	// StateClaimed: terminal; the drop has been credited.
	StateClaimed
)

// String implements fmt.Stringer.
func (s RunState) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateWonPendingClaim:
		return "won_pending_claim"
	case StateAdGateOpen:
		return "ad_gate_open"
	case StateClaimed:
		return "claimed"
	default:
		return "unknown"
	}
}

// State derives the tagged state from the record's flags.
func (r *RunRecord) State() RunState {
	switch {
	case r.Claimed:
		return StateClaimed
	case r.ResultDropID != nil && r.AdRerollReady:
		return StateAdGateOpen
	case r.ResultDropID != nil:
		return StateWonPendingClaim
	default:
		return StateCreated
	}
}

// CanResolve reports whether the run may take its first resolve. A run is
// resolved at most once; rerolls go through the ad gate instead.
func (r *RunRecord) CanResolve() error {
	if r.ResultDropID != nil {
		return ErrAlreadyResolved
	}
	return nil
}

// CanOpenAdGate reports whether the rewarded-ad flag may be set. Requires
// a resolved win and an unused reroll allowance.
func (r *RunRecord) CanOpenAdGate(rerollCap int) error {
	if r.ResultDropID == nil {
		return ErrNoDropYet
	}
	if r.RerollsUsed >= rerollCap {
		return ErrRerollLimitReached
	}
	return nil
}

// CanReroll reports whether the single gated reroll may run. Guard order
// matches the operation contract: limit, drop, gate, claim.
func (r *RunRecord) CanReroll(rerollCap int) error {
	if r.RerollsUsed >= rerollCap {
		return ErrRerollLimitReached
	}
	if r.ResultDropID == nil {
		return ErrNoDropYet
	}
	if !r.AdRerollReady {
		return ErrAdRequired
	}
	if r.Claimed {
		return ErrAlreadyClaimed
	}
	return nil
}

// CanClaim reports whether the drop may be credited to the wallet.
func (r *RunRecord) CanClaim() error {
	if r.ResultDropID == nil {
		return ErrNoDropYet
	}
	if r.Claimed {
		return ErrAlreadyClaimed
	}
	return nil
}
