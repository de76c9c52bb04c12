package digest

import (
	"context"
	"fmt"
	"math"

	"github.com/rowanlock/skein/llm"
)

// EmbeddingScorer scores by cosine similarity of embedding vectors.
// Priors and candidate are embedded in one batch per call; callers that
// score many candidates against a stable corpus should prefer the
// keyword scorer or add caching in front.
type EmbeddingScorer struct {
	embedder llm.Embedder
}

// NewEmbeddingScorer creates a scorer over the given embedder.
func NewEmbeddingScorer(embedder llm.Embedder) *EmbeddingScorer {
	return &EmbeddingScorer{embedder: embedder}
}

// Score embeds the candidate together with the priors and returns the
// cosine similarity against each prior.
func (s *EmbeddingScorer) Score(ctx context.Context, candidate string, priors []string) ([]float64, error) {
	if len(priors) == 0 {
		return nil, nil
	}

	inputs := append([]string{candidate}, priors...)
	vectors, err := s.embedder.Embed(ctx, inputs)
	if err != nil {
		return nil, fmt.Errorf("embed findings: %w", err)
	}
	if len(vectors) != len(inputs) {
		return nil, fmt.Errorf("embed findings: got %d vectors for %d inputs", len(vectors), len(inputs))
	}

	cand := vectors[0]
	scores := make([]float64, len(priors))
	for i, vec := range vectors[1:] {
		scores[i] = cosine(cand, vec)
	}
	return scores, nil
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

var _ Scorer = (*EmbeddingScorer)(nil)
