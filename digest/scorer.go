package digest

import (
	"context"
	"strings"
)

// Scorer measures similarity between a candidate finding and a prior
// one on a 0..1 scale. Implementations must be safe for concurrent use.
type Scorer interface {
	// Score returns similarities between the candidate and each prior
	// text, in order.
	Score(ctx context.Context, candidate string, priors []string) ([]float64, error)
}

// KeywordOverlapScorer scores by Jaccard overlap of lowercased word
// sets. Cheap, deterministic, no external calls; the default scorer.
type KeywordOverlapScorer struct{}

// Score computes Jaccard similarity against each prior.
func (KeywordOverlapScorer) Score(_ context.Context, candidate string, priors []string) ([]float64, error) {
	cand := wordSet(candidate)
	scores := make([]float64, len(priors))
	for i, prior := range priors {
		scores[i] = jaccard(cand, wordSet(prior))
	}
	return scores, nil
}

func wordSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(s)) {
		w = strings.Trim(w, ".,;:!?\"'()[]")
		if w != "" {
			set[w] = true
		}
	}
	return set
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for w := range a {
		if b[w] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

var _ Scorer = KeywordOverlapScorer{}
