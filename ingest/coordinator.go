package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rowanlock/skein/model"
)

// Job is one unit of summarization work handed from the coordinator to
// the worker pool.
type Job struct {
	ItemID string
	RawRef string
}

// CancelReason is recorded on every item failed by Cancel.
const CancelReason = "cancelled"

// Coordinator receives acquisition-completion events, feeds the
// summarization queue, and detects overall pipeline completion.
// Acquisition and summarization progress independently; they join only
// at the completion barrier, which is what lets summarization start
// before all acquisition finishes.
type Coordinator struct {
	registry *Registry
	jobs     chan Job
	log      *slog.Logger

	mu        sync.Mutex
	cancelled bool
}

// NewCoordinator creates a coordinator over the given registry with a
// summarization queue of the given depth.
func NewCoordinator(registry *Registry, queueDepth int) *Coordinator {
	if queueDepth < 1 {
		queueDepth = 1
	}
	return &Coordinator{
		registry: registry,
		jobs:     make(chan Job, queueDepth),
		log:      slog.Default().With("component", "ingest"),
	}
}

// Registry returns the item registry the coordinator drives.
func (c *Coordinator) Registry() *Registry {
	return c.registry
}

// Jobs returns the queue the worker pool consumes from.
func (c *Coordinator) Jobs() <-chan Job {
	return c.jobs
}

// RegisterExpected tells the coordinator which ids to expect. Each id
// will be considered for completion until it reaches a terminal state.
func (c *Coordinator) RegisterExpected(ids []string) {
	c.registry.RegisterExpected(ids)
}

// OnAcquired handles one acquisition-completion event. Duplicate events
// are no-ops; events for unregistered ids are logged and ignored rather
// than crashing the coordinator. Acquisition failure does not block the
// pipeline; the failed item still counts toward completion.
func (c *Coordinator) OnAcquired(ctx context.Context, ev model.AcquisitionEvent) {
	if !c.registry.Known(ev.ItemID) {
		c.log.Warn("acquisition event for unregistered item, ignoring", "item_id", ev.ItemID)
		return
	}

	if ev.Failed() {
		if !c.registry.MarkAcquisitionFailed(ev.ItemID, ev.Err) {
			c.log.Debug("duplicate acquisition event, ignoring", "item_id", ev.ItemID)
			return
		}
		c.log.Info("acquisition failed", "item_id", ev.ItemID, "error", ev.Err)
		return
	}

	if !c.registry.MarkAcquired(ev.ItemID, ev.RawRef, "") {
		c.log.Debug("duplicate acquisition event, ignoring", "item_id", ev.ItemID)
		return
	}

	c.mu.Lock()
	cancelled := c.cancelled
	c.mu.Unlock()
	if cancelled {
		// Run is shutting down; don't start new summarization work.
		c.registry.AdvanceSummarization(ev.ItemID, model.SummarizationFailed)
		c.registry.SetFailureReason(ev.ItemID, CancelReason)
		return
	}

	if err := c.registry.AdvanceSummarization(ev.ItemID, model.SummarizationQueued); err != nil {
		c.log.Warn("failed to queue item for summarization", "item_id", ev.ItemID, "error", err)
		return
	}

	select {
	case c.jobs <- Job{ItemID: ev.ItemID, RawRef: ev.RawRef}:
		c.log.Debug("item queued for summarization", "item_id", ev.ItemID)
	case <-ctx.Done():
		c.registry.AdvanceSummarization(ev.ItemID, model.SummarizationFailed)
		c.registry.SetFailureReason(ev.ItemID, ctx.Err().Error())
	}
}

// IsComplete returns true iff every registered item has both state axes
// terminal. Completion is defined strictly over item states, never over
// counts, so it cannot fire while any item is mid-flight.
func (c *Coordinator) IsComplete() bool {
	return c.registry.IsComplete()
}

// AwaitCompletion blocks until every registered item is terminal,
// polling at the given interval. Returns the context's error if it is
// cancelled first.
func (c *Coordinator) AwaitCompletion(ctx context.Context, pollInterval time.Duration) error {
	if pollInterval <= 0 {
		pollInterval = 50 * time.Millisecond
	}
	if c.IsComplete() {
		return nil
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("await completion: %w", ctx.Err())
		case <-ticker.C:
			if c.IsComplete() {
				return nil
			}
		}
	}
}

// Cancel marks all non-terminal items failed with reason "cancelled" and
// drains the queue so no new summarization work starts. In-flight worker
// calls are stopped by the pool's context, not by the coordinator.
func (c *Coordinator) Cancel() {
	c.mu.Lock()
	if c.cancelled {
		c.mu.Unlock()
		return
	}
	c.cancelled = true
	c.mu.Unlock()

	drained := 0
	for {
		select {
		case <-c.jobs:
			drained++
		default:
			failed := c.registry.FailNonTerminal(CancelReason)
			c.log.Info("pipeline cancelled", "drained_jobs", drained, "failed_items", failed)
			return
		}
	}
}
