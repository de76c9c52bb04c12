// Package ingest coordinates content acquisition events with the
// summarization pipeline.
//
// Information Hiding:
// - Per-item lifecycle state and locking discipline hidden behind Registry
// - Queue management and completion detection hidden behind Coordinator
package ingest

import (
	"fmt"
	"sync"

	"github.com/rowanlock/skein/model"
)

// Registry exclusively owns ContentItem records. State transitions are
// monotonic on both axes and guarded per item, so items progress
// independently and in any order.
type Registry struct {
	mu    sync.RWMutex
	items map[string]*itemEntry
}

// itemEntry guards one item's state. The registry map itself only grows;
// entries are never removed mid-run.
type itemEntry struct {
	mu   sync.Mutex
	item model.ContentItem
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{items: make(map[string]*itemEntry)}
}

// RegisterExpected initializes one pending/pending item per id.
// Already-registered ids are left untouched.
func (r *Registry) RegisterExpected(ids []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		if _, exists := r.items[id]; exists {
			continue
		}
		r.items[id] = &itemEntry{
			item: model.ContentItem{
				ID:            id,
				Acquisition:   model.AcquisitionPending,
				Summarization: model.SummarizationPending,
			},
		}
	}
}

// Known reports whether an id was registered.
func (r *Registry) Known(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.items[id]
	return ok
}

// Get returns a snapshot of one item's state.
func (r *Registry) Get(id string) (model.ContentItem, bool) {
	entry := r.entry(id)
	if entry == nil {
		return model.ContentItem{}, false
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.item, true
}

// MarkAcquired transitions an item's acquisition axis to acquired and
// records the raw content locator. Returns false if the item is unknown
// or the acquisition axis is already terminal (duplicate event).
func (r *Registry) MarkAcquired(id, rawRef, contentHash string) bool {
	entry := r.entry(id)
	if entry == nil {
		return false
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.item.Acquisition.Terminal() {
		return false
	}
	entry.item.Acquisition = model.AcquisitionAcquired
	entry.item.RawRef = rawRef
	entry.item.ContentHash = contentHash
	return true
}

// MarkAcquisitionFailed transitions both axes to failed: an item that
// never produced raw content has nothing to summarize, and a failed item
// still counts toward completion. Returns false on unknown ids or
// duplicate events.
func (r *Registry) MarkAcquisitionFailed(id, reason string) bool {
	entry := r.entry(id)
	if entry == nil {
		return false
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.item.Acquisition.Terminal() {
		return false
	}
	entry.item.Acquisition = model.AcquisitionFailed
	entry.item.Summarization = model.SummarizationFailed
	entry.item.FailureReason = reason
	return true
}

// AdvanceSummarization moves an item's summarization axis forward.
// Regressions and transitions out of a terminal state are rejected.
func (r *Registry) AdvanceSummarization(id string, next model.SummarizationState) error {
	entry := r.entry(id)
	if entry == nil {
		return fmt.Errorf("unknown item %q", id)
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()

	current := entry.item.Summarization
	if current.Terminal() {
		return fmt.Errorf("item %q summarization already terminal (%s)", id, current)
	}
	// Failed is reachable from any non-terminal state; everything else
	// must move strictly forward through the fixed order.
	if next != model.SummarizationFailed && next <= current {
		return fmt.Errorf("item %q cannot regress summarization %s -> %s", id, current, next)
	}
	entry.item.Summarization = next
	return nil
}

// SetFailureReason records why an item failed without touching state.
func (r *Registry) SetFailureReason(id, reason string) {
	entry := r.entry(id)
	if entry == nil {
		return
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	entry.item.FailureReason = reason
}

// IsComplete returns true iff every registered item has both state axes
// terminal. An empty registry is trivially complete.
func (r *Registry) IsComplete() bool {
	r.mu.RLock()
	entries := make([]*itemEntry, 0, len(r.items))
	for _, e := range r.items {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	for _, e := range entries {
		e.mu.Lock()
		terminal := e.item.Terminal()
		e.mu.Unlock()
		if !terminal {
			return false
		}
	}
	return true
}

// FailNonTerminal marks every non-terminal item failed with the given
// reason. Used by cancellation.
func (r *Registry) FailNonTerminal(reason string) int {
	r.mu.RLock()
	entries := make([]*itemEntry, 0, len(r.items))
	for _, e := range r.items {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	failed := 0
	for _, e := range entries {
		e.mu.Lock()
		changed := false
		if !e.item.Acquisition.Terminal() {
			e.item.Acquisition = model.AcquisitionFailed
			changed = true
		}
		if !e.item.Summarization.Terminal() {
			e.item.Summarization = model.SummarizationFailed
			changed = true
		}
		if changed {
			e.item.FailureReason = reason
			failed++
		}
		e.mu.Unlock()
	}
	return failed
}

// Snapshot returns a copy of every item's current state.
func (r *Registry) Snapshot() []model.ContentItem {
	r.mu.RLock()
	entries := make([]*itemEntry, 0, len(r.items))
	for _, e := range r.items {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	items := make([]model.ContentItem, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		items = append(items, e.item)
		e.mu.Unlock()
	}
	return items
}

// Len returns the number of registered items.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

func (r *Registry) entry(id string) *itemEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.items[id]
}
