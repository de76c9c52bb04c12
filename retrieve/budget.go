// Package retrieve implements the budget-constrained retrieval protocol:
// markers first, full content on demand, never truncated. The budget
// governs how many items are granted, never which part of an item comes
// back.
package retrieve

import "sync"

// Config holds the per-step budget knobs.
type Config struct {
	// ContextWindowLimit is the total budget units available per step.
	ContextWindowLimit int
	// MaxItemsPerRound caps how many items one round may admit.
	MaxItemsPerRound int
	// MaxFollowupsPerStep caps retrieval rounds per step; further rounds
	// are denied outright so the protocol always terminates.
	MaxFollowupsPerStep int
	// UnitBytes is the byte size of one budget unit.
	UnitBytes int
}

// DefaultConfig returns the default retrieval configuration.
func DefaultConfig() Config {
	return Config{
		ContextWindowLimit:  64,
		MaxItemsPerRound:    4,
		MaxFollowupsPerStep: 5,
		UnitBytes:           4096,
	}
}

// stepBudget tracks one step's consumption. Mutated only under the
// owning ledger's lock; rounds resolve atomically as a batch.
type stepBudget struct {
	consumedUnits int
	rounds        int
}

// ledger owns budget counters for all steps.
type ledger struct {
	mu    sync.Mutex
	steps map[int]*stepBudget
}

func newLedger() *ledger {
	return &ledger{steps: make(map[int]*stepBudget)}
}

// step returns the budget for a step, creating it on first use.
// Caller must hold l.mu.
func (l *ledger) step(stepID int) *stepBudget {
	b, ok := l.steps[stepID]
	if !ok {
		b = &stepBudget{}
		l.steps[stepID] = b
	}
	return b
}

// Usage reports a step's consumed units and completed rounds.
func (l *ledger) Usage(stepID int) (consumedUnits, rounds int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.steps[stepID]
	if !ok {
		return 0, 0
	}
	return b.consumedUnits, b.rounds
}
