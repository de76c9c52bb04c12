// Package digest maintains the append-only log of step digests and the
// novelty filter that keeps later steps from re-reporting what earlier
// steps already found.
//
// Information Hiding:
// - Persistence keys and in-memory ordering hidden behind Aggregator
// - Similarity scoring hidden behind the Scorer interface
package digest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rowanlock/skein/model"
	"github.com/rowanlock/skein/store"
)

// ErrDuplicateStepDigest is returned when a step id is appended twice.
// The log is append-only; a second digest for the same step is a caller
// bug, not something to merge silently.
var ErrDuplicateStepDigest = errors.New("step digest already recorded")

const stepPrefix = "step/"

// StepKey returns the artifact key a step digest persists under.
func StepKey(stepID int) string {
	return fmt.Sprintf("%s%06d", stepPrefix, stepID)
}

// Aggregator is the append-only store of step digests. Every digest is
// visible to all later steps; none is ever mutated or removed.
type Aggregator struct {
	mu      sync.RWMutex
	digests map[int]model.StepDigest
	order   []int

	artifacts store.Artifacts
}

// NewAggregator creates an aggregator persisting through artifacts.
func NewAggregator(artifacts store.Artifacts) *Aggregator {
	return &Aggregator{
		digests:   make(map[int]model.StepDigest),
		artifacts: artifacts,
	}
}

// Load rebuilds the log from persisted artifacts, replacing in-memory
// state. Used to resume a session.
func (a *Aggregator) Load(ctx context.Context) error {
	keys, err := a.artifacts.List(ctx, stepPrefix)
	if err != nil {
		return fmt.Errorf("load step digests: %w", err)
	}

	digests := make(map[int]model.StepDigest, len(keys))
	order := make([]int, 0, len(keys))
	for _, key := range keys {
		payload, err := a.artifacts.Get(ctx, key, "")
		if err != nil {
			return fmt.Errorf("load step digest %q: %w", key, err)
		}
		var d model.StepDigest
		if err := json.Unmarshal([]byte(payload), &d); err != nil {
			return fmt.Errorf("decode step digest %q: %w", key, err)
		}
		digests[d.StepID] = d
		order = append(order, d.StepID)
	}
	sort.Ints(order)

	a.mu.Lock()
	a.digests = digests
	a.order = order
	a.mu.Unlock()
	return nil
}

// Append records a completed step's digest. Appending the same step id
// twice returns ErrDuplicateStepDigest.
func (a *Aggregator) Append(ctx context.Context, d model.StepDigest) error {
	a.mu.Lock()
	if _, exists := a.digests[d.StepID]; exists {
		a.mu.Unlock()
		return fmt.Errorf("step %d: %w", d.StepID, ErrDuplicateStepDigest)
	}
	a.digests[d.StepID] = d
	a.order = append(a.order, d.StepID)
	sort.Ints(a.order)
	a.mu.Unlock()

	// Roll the in-memory insert back if the write does not stick, so a
	// retry is not rejected as a duplicate of a digest that was never
	// persisted.
	payload, err := json.Marshal(d)
	if err != nil {
		a.rollback(d.StepID)
		return fmt.Errorf("encode step digest %d: %w", d.StepID, err)
	}
	if err := a.artifacts.Save(ctx, StepKey(d.StepID), string(payload)); err != nil {
		a.rollback(d.StepID)
		return fmt.Errorf("persist step digest %d: %w", d.StepID, err)
	}
	return nil
}

// rollback undoes an Append whose persist failed.
func (a *Aggregator) rollback(stepID int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.digests, stepID)
	for i, id := range a.order {
		if id == stepID {
			a.order = append(a.order[:i], a.order[i+1:]...)
			break
		}
	}
}

// Get returns the digest for a step, if recorded.
func (a *Aggregator) Get(stepID int) (model.StepDigest, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	d, ok := a.digests[stepID]
	return d, ok
}

// All returns every recorded digest in step order.
func (a *Aggregator) All() []model.StepDigest {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]model.StepDigest, 0, len(a.order))
	for _, id := range a.order {
		out = append(out, a.digests[id])
	}
	return out
}

// Len returns the number of recorded digests.
func (a *Aggregator) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.order)
}

// priorFinding is one finding with the step that reported it.
type priorFinding struct {
	stepID int
	text   string
}

// findingsBefore returns all findings from steps strictly earlier than
// upToStep, in step order.
func (a *Aggregator) findingsBefore(upToStep int) []priorFinding {
	a.mu.RLock()
	defer a.mu.RUnlock()
	var out []priorFinding
	for _, id := range a.order {
		if id >= upToStep {
			break
		}
		for _, f := range a.digests[id].Findings() {
			out = append(out, priorFinding{stepID: id, text: f})
		}
	}
	return out
}
