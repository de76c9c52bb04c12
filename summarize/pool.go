package summarize

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/rowanlock/skein/ingest"
	"github.com/rowanlock/skein/internal/retry"
	"github.com/rowanlock/skein/model"
	"github.com/rowanlock/skein/store"
)

// PoolConfig configures the worker pool.
type PoolConfig struct {
	NumWorkers int
	Bounds     model.DigestBounds
	// CallTimeout bounds each collaborator attempt.
	CallTimeout time.Duration
	// RetryAttempts per item before degrading to a fallback digest.
	RetryAttempts int
	// RetryInitialDelay seeds the exponential backoff between attempts.
	RetryInitialDelay time.Duration
}

// DefaultPoolConfig returns the default pool configuration.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		NumWorkers:        8,
		Bounds:            model.DefaultDigestBounds(),
		CallTimeout:       60 * time.Second,
		RetryAttempts:     3,
		RetryInitialDelay: 500 * time.Millisecond,
	}
}

// Pool is a fixed-size pool of workers that consume summarization jobs,
// call the collaborator, validate the result, and write digests to the
// marker store. One failed item never blocks the others or completion.
type Pool struct {
	config     PoolConfig
	summarizer Summarizer
	registry   *ingest.Registry
	markers    *store.MarkerStore
	log        *slog.Logger
	wg         sync.WaitGroup
}

// NewPool creates a worker pool writing digests to the given store.
func NewPool(config PoolConfig, summarizer Summarizer, registry *ingest.Registry, markers *store.MarkerStore) *Pool {
	if config.NumWorkers < 1 {
		config.NumWorkers = 1
	}
	return &Pool{
		config:     config,
		summarizer: summarizer,
		registry:   registry,
		markers:    markers,
		log:        slog.Default().With("component", "summarize"),
	}
}

// Start launches the workers. They exit when ctx is cancelled; use Wait
// to block until they have all stopped.
func (p *Pool) Start(ctx context.Context, jobs <-chan ingest.Job) {
	for i := 0; i < p.config.NumWorkers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i, jobs)
	}
}

// Wait blocks until all workers have exited.
func (p *Pool) Wait() {
	p.wg.Wait()
}

func (p *Pool) worker(ctx context.Context, id int, jobs <-chan ingest.Job) {
	defer p.wg.Done()
	log := p.log.With("worker", id)
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-jobs:
			if !ok {
				return
			}
			p.process(ctx, log, job)
		}
	}
}

// process runs one item through summarize -> validate -> store. After
// retries are exhausted it writes a degraded fallback digest and marks
// the item failed; the pipeline proceeds either way.
func (p *Pool) process(ctx context.Context, log *slog.Logger, job ingest.Job) {
	if err := p.registry.AdvanceSummarization(job.ItemID, model.SummarizationRunning); err != nil {
		log.Warn("skipping job with stale state", "item_id", job.ItemID, "error", err)
		return
	}

	var digest model.MarkerDigest
	err := retry.Do(ctx, "summarize "+job.ItemID, retry.Config{
		MaxAttempts:  p.config.RetryAttempts,
		InitialDelay: p.config.RetryInitialDelay,
	}, func() error {
		callCtx := ctx
		if p.config.CallTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, p.config.CallTimeout)
			defer cancel()
		}
		d, err := p.summarizer.Summarize(callCtx, job.ItemID, job.RawRef)
		if err != nil {
			return err
		}
		if err := d.Validate(p.config.Bounds); err != nil {
			return err
		}
		digest = d
		return nil
	})

	if err != nil {
		p.degrade(ctx, log, job, err)
		return
	}

	if err := p.markers.Put(ctx, digest); err != nil {
		if errors.Is(err, store.ErrDuplicateDigest) {
			// Single-writer discipline violated; surface loudly.
			log.Error("duplicate digest write", "item_id", job.ItemID, "error", err)
		} else {
			log.Error("failed to store digest", "item_id", job.ItemID, "error", err)
		}
		p.fail(job.ItemID, err.Error())
		return
	}

	if err := p.registry.AdvanceSummarization(job.ItemID, model.SummarizationDone); err != nil {
		log.Warn("failed to mark item summarized", "item_id", job.ItemID, "error", err)
		return
	}
	log.Info("item summarized", "item_id", job.ItemID, "markers", digest.MarkerCount)
}

// degrade writes a minimal fallback digest built from a raw sample and
// marks the item failed.
func (p *Pool) degrade(ctx context.Context, log *slog.Logger, job ingest.Job, cause error) {
	log.Warn("summarization degraded to fallback digest", "item_id", job.ItemID, "error", cause)

	raw, rawErr := p.markers.GetRaw(ctx, job.ItemID, nil)
	if rawErr != nil {
		log.Warn("no raw sample for fallback digest", "item_id", job.ItemID, "error", rawErr)
	}

	fallback := FallbackDigest(job.ItemID, raw, p.config.Bounds)
	if err := p.markers.Put(ctx, fallback); err != nil {
		log.Error("failed to store fallback digest", "item_id", job.ItemID, "error", err)
	}
	p.fail(job.ItemID, cause.Error())
}

func (p *Pool) fail(itemID, reason string) {
	if err := p.registry.AdvanceSummarization(itemID, model.SummarizationFailed); err == nil {
		p.registry.SetFailureReason(itemID, reason)
	}
}
