// Package engine assembles the full pipeline: ingestion coordination,
// the summarization worker pool, the marker store, budget-constrained
// retrieval, and the step digest log with its novelty filter.
//
// Information Hiding:
// - Component wiring and lifecycle hidden behind Engine
// - Callers interact through events, requests, and digests only
package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/rowanlock/skein/config"
	"github.com/rowanlock/skein/digest"
	"github.com/rowanlock/skein/ingest"
	"github.com/rowanlock/skein/model"
	"github.com/rowanlock/skein/retrieve"
	"github.com/rowanlock/skein/store"
	"github.com/rowanlock/skein/summarize"
)

// Engine owns one ingestion-to-context session. Create it with New,
// call Start, feed acquisition events, then await completion before
// serving retrieval rounds and step digests.
type Engine struct {
	runID    string
	settings config.Settings

	artifacts   store.Artifacts
	markers     *store.MarkerStore
	registry    *ingest.Registry
	coordinator *ingest.Coordinator
	pool        *summarize.Pool
	retriever   *retrieve.Manager
	aggregator  *digest.Aggregator
	novelty     *digest.Filter

	cancel context.CancelFunc
	log    *slog.Logger
}

// New wires an engine from settings, a backing artifact store, and a
// summarization collaborator. A nil scorer defaults to keyword overlap.
func New(settings config.Settings, artifacts store.Artifacts, summarizer summarize.Summarizer, scorer digest.Scorer) *Engine {
	markers := store.NewMarkerStore(artifacts)
	registry := ingest.NewRegistry()
	coordinator := ingest.NewCoordinator(registry, settings.Ingest.QueueDepth)

	bounds := model.DigestBounds{
		ListMin:  settings.Summarize.MarkerListMin,
		ListMax:  settings.Summarize.MarkerListMax,
		WordsMax: settings.Summarize.MarkerWordsMax,
	}
	pool := summarize.NewPool(summarize.PoolConfig{
		NumWorkers:        settings.Summarize.NumWorkers,
		Bounds:            bounds,
		CallTimeout:       settings.Summarize.CallTimeout,
		RetryAttempts:     settings.Summarize.RetryAttempts,
		RetryInitialDelay: settings.Summarize.RetryInitialDelay,
	}, summarizer, registry, markers)

	retriever := retrieve.NewManager(retrieve.Config{
		ContextWindowLimit:  settings.Retrieve.ContextWindowLimit,
		MaxItemsPerRound:    settings.Retrieve.MaxItemsPerRound,
		MaxFollowupsPerStep: settings.Retrieve.MaxFollowupsPerStep,
		UnitBytes:           settings.Retrieve.UnitBytes,
	}, markers)

	aggregator := digest.NewAggregator(artifacts)
	novelty := digest.NewFilter(digest.FilterConfig{
		SimilarityThreshold:     settings.Novelty.SimilarityThreshold,
		AllowRevisionDuplicates: settings.Novelty.AllowRevisionDuplicates,
	}, aggregator, scorer)

	runID := uuid.NewString()
	return &Engine{
		runID:       runID,
		settings:    settings,
		artifacts:   artifacts,
		markers:     markers,
		registry:    registry,
		coordinator: coordinator,
		pool:        pool,
		retriever:   retriever,
		aggregator:  aggregator,
		novelty:     novelty,
		log:         slog.Default().With("component", "engine", "run_id", runID),
	}
}

// RunID identifies this session in logs and artifacts.
func (e *Engine) RunID() string {
	return e.runID
}

// Start launches the worker pool. Workers run until Close.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	e.pool.Start(ctx, e.coordinator.Jobs())
	e.log.Info("engine started", "workers", e.settings.Summarize.NumWorkers)
}

// Resume reloads persisted digests and step records from the artifact
// store, for continuing a previous session.
func (e *Engine) Resume(ctx context.Context) error {
	if err := e.markers.Load(ctx); err != nil {
		return fmt.Errorf("resume markers: %w", err)
	}
	if err := e.aggregator.Load(ctx); err != nil {
		return fmt.Errorf("resume step digests: %w", err)
	}
	e.log.Info("session resumed", "digests", len(e.markers.ItemIDs()), "steps", e.aggregator.Len())
	return nil
}

// RegisterExpected declares the ids the pipeline will wait for.
func (e *Engine) RegisterExpected(ids []string) {
	e.coordinator.RegisterExpected(ids)
}

// OnAcquired ingests one acquisition-completion event. For successful
// events the raw content must already be saved under the event's
// locator; the engine snapshots its hash and size before queueing.
func (e *Engine) OnAcquired(ctx context.Context, ev model.AcquisitionEvent) {
	if !ev.Failed() {
		if err := e.markers.RegisterRaw(ctx, ev.ItemID, ev.RawRef); err != nil {
			e.log.Warn("failed to register raw content, treating acquisition as failed",
				"item_id", ev.ItemID, "error", err)
			ev.Err = err.Error()
		}
	}
	e.coordinator.OnAcquired(ctx, ev)
}

// AwaitCompletion blocks until every registered item is terminal on
// both state axes.
func (e *Engine) AwaitCompletion(ctx context.Context) error {
	return e.coordinator.AwaitCompletion(ctx, e.settings.Ingest.PollInterval)
}

// IsComplete reports whether every registered item is terminal.
func (e *Engine) IsComplete() bool {
	return e.coordinator.IsComplete()
}

// Cancel fails all non-terminal items and stops new summarization work.
func (e *Engine) Cancel() {
	e.coordinator.Cancel()
}

// Snapshot returns the current state of every registered item.
func (e *Engine) Snapshot() []model.ContentItem {
	return e.registry.Snapshot()
}

// MarkerOverview renders digests for the given items as display text.
// Empty ids means all items with digests.
func (e *Engine) MarkerOverview(ids []string, filter store.MarkerTypeFilter) string {
	if len(ids) == 0 {
		ids = e.markers.ItemIDs()
	}
	return e.markers.Overview(ids, filter)
}

// SubmitRequests resolves one retrieval round for a step against its
// budget. Responses preserve request order.
func (e *Engine) SubmitRequests(ctx context.Context, stepID int, requests []model.RetrievalRequest) ([]model.RetrievalResponse, error) {
	return e.retriever.SubmitRound(ctx, stepID, requests)
}

// BudgetUsage reports a step's consumed units and completed rounds.
func (e *Engine) BudgetUsage(stepID int) (consumedUnits, rounds int) {
	return e.retriever.Usage(stepID)
}

// AppendStepDigest records a completed step's digest in the append-only
// log.
func (e *Engine) AppendStepDigest(ctx context.Context, d model.StepDigest) error {
	return e.aggregator.Append(ctx, d)
}

// StepDigests returns all recorded step digests in step order.
func (e *Engine) StepDigests() []model.StepDigest {
	return e.aggregator.All()
}

// FilterNovel screens candidate findings against all steps before
// upToStep.
func (e *Engine) FilterNovel(ctx context.Context, candidates []string, upToStep int) (accepted []string, suppressed []model.SuppressedFinding, err error) {
	return e.novelty.FilterNovel(ctx, candidates, upToStep)
}

// Close stops the workers, waits for them to drain, and closes the
// artifact store if it holds resources.
func (e *Engine) Close() error {
	if e.cancel != nil {
		e.cancel()
	}
	done := make(chan struct{})
	go func() {
		e.pool.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		e.log.Warn("timed out waiting for workers to stop")
	}

	if closer, ok := e.artifacts.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			return fmt.Errorf("close artifacts: %w", err)
		}
	}
	e.log.Info("engine closed")
	return nil
}
