package digest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rowanlock/skein/model"
)

// FilterConfig configures the novelty filter.
type FilterConfig struct {
	// SimilarityThreshold at or above which a candidate counts as a
	// duplicate of a prior finding.
	SimilarityThreshold float64
	// AllowRevisionDuplicates keeps duplicates in the accepted set,
	// tagged "revision", instead of suppressing them. Used when a later
	// step legitimately refines an earlier finding.
	AllowRevisionDuplicates bool
}

// DefaultFilterConfig returns the default filter configuration.
func DefaultFilterConfig() FilterConfig {
	return FilterConfig{SimilarityThreshold: 0.8}
}

// Filter screens candidate findings against everything earlier steps
// reported, so each step digest adds information instead of repeating it.
type Filter struct {
	config     FilterConfig
	aggregator *Aggregator
	scorer     Scorer
	log        *slog.Logger
}

// NewFilter creates a novelty filter reading priors from the aggregator.
// A nil scorer falls back to keyword overlap.
func NewFilter(config FilterConfig, aggregator *Aggregator, scorer Scorer) *Filter {
	if scorer == nil {
		scorer = KeywordOverlapScorer{}
	}
	return &Filter{
		config:     config,
		aggregator: aggregator,
		scorer:     scorer,
		log:        slog.Default().With("component", "novelty"),
	}
}

// FilterNovel splits candidates into accepted and suppressed against all
// findings from steps earlier than upToStep. Candidates scoring at or
// above the threshold are suppressed with a "duplicate_of: step N"
// annotation naming the closest prior; with revision duplicates allowed
// they are kept and reported as suppressed with the "revision" tag so
// callers can still see the overlap.
func (f *Filter) FilterNovel(ctx context.Context, candidates []string, upToStep int) (accepted []string, suppressed []model.SuppressedFinding, err error) {
	priors := f.aggregator.findingsBefore(upToStep)
	if len(priors) == 0 {
		return append([]string(nil), candidates...), nil, nil
	}

	priorTexts := make([]string, len(priors))
	for i, p := range priors {
		priorTexts[i] = p.text
	}

	for _, candidate := range candidates {
		scores, err := f.scorer.Score(ctx, candidate, priorTexts)
		if err != nil {
			return nil, nil, fmt.Errorf("score finding: %w", err)
		}

		best, bestIdx := 0.0, -1
		for i, s := range scores {
			if s > best {
				best, bestIdx = s, i
			}
		}

		if bestIdx < 0 || best < f.config.SimilarityThreshold {
			accepted = append(accepted, candidate)
			continue
		}

		dupStep := priors[bestIdx].stepID
		if f.config.AllowRevisionDuplicates {
			accepted = append(accepted, candidate)
			suppressed = append(suppressed, model.SuppressedFinding{
				Text:            candidate,
				Annotation:      "revision",
				Similarity:      best,
				DuplicateOfStep: dupStep,
			})
			continue
		}

		f.log.Debug("finding suppressed as duplicate",
			"similarity", best, "duplicate_of_step", dupStep)
		suppressed = append(suppressed, model.SuppressedFinding{
			Text:            candidate,
			Annotation:      fmt.Sprintf("duplicate_of: step %d", dupStep),
			Similarity:      best,
			DuplicateOfStep: dupStep,
		})
	}
	return accepted, suppressed, nil
}
