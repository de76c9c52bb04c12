package digest

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rowanlock/skein/model"
	"github.com/rowanlock/skein/store"
)

func TestKeywordOverlapScorer(t *testing.T) {
	scorer := KeywordOverlapScorer{}
	scores, err := scorer.Score(context.Background(),
		"the reactor output doubled in march",
		[]string{
			"the reactor output doubled in march",
			"The reactor output doubled in March.",
			"completely unrelated sentence here",
		})
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if scores[0] != 1.0 {
		t.Errorf("identical text should score 1.0, got %g", scores[0])
	}
	if scores[1] != 1.0 {
		t.Errorf("case and punctuation should not matter, got %g", scores[1])
	}
	if scores[2] > 0.2 {
		t.Errorf("unrelated text should score low, got %g", scores[2])
	}
}

func newTestFilter(t *testing.T, cfg FilterConfig, priors map[int][]string) *Filter {
	t.Helper()
	a := NewAggregator(store.NewInMemoryArtifacts())
	ctx := context.Background()
	for stepID, findings := range priors {
		d := model.StepDigest{StepID: stepID, PointsOfInterest: findings}
		if err := a.Append(ctx, d); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	return NewFilter(cfg, a, nil)
}

func TestFilterNovelSuppressesDuplicates(t *testing.T) {
	f := newTestFilter(t, DefaultFilterConfig(), map[int][]string{
		2: {"the reactor output doubled in march"},
	})

	accepted, suppressed, err := f.FilterNovel(context.Background(),
		[]string{
			"the reactor output doubled in march",
			"a brand new observation about grid storage economics",
		}, 5)
	if err != nil {
		t.Fatalf("FilterNovel: %v", err)
	}

	if len(accepted) != 1 || !strings.Contains(accepted[0], "grid storage") {
		t.Errorf("unexpected accepted set: %v", accepted)
	}
	if len(suppressed) != 1 {
		t.Fatalf("expected 1 suppressed finding, got %d", len(suppressed))
	}
	s := suppressed[0]
	if s.Annotation != "duplicate_of: step 2" {
		t.Errorf("expected annotation 'duplicate_of: step 2', got %q", s.Annotation)
	}
	if s.DuplicateOfStep != 2 {
		t.Errorf("expected duplicate of step 2, got %d", s.DuplicateOfStep)
	}
	if s.Similarity < DefaultFilterConfig().SimilarityThreshold {
		t.Errorf("suppressed similarity %g below threshold", s.Similarity)
	}
}

func TestFilterNovelNoPriors(t *testing.T) {
	f := newTestFilter(t, DefaultFilterConfig(), nil)
	candidates := []string{"anything", "goes"}

	accepted, suppressed, err := f.FilterNovel(context.Background(), candidates, 1)
	if err != nil {
		t.Fatalf("FilterNovel: %v", err)
	}
	if len(accepted) != 2 || len(suppressed) != 0 {
		t.Errorf("first step should accept everything: accepted=%v suppressed=%v", accepted, suppressed)
	}
}

func TestFilterNovelIgnoresLaterSteps(t *testing.T) {
	f := newTestFilter(t, DefaultFilterConfig(), map[int][]string{
		7: {"the reactor output doubled in march"},
	})

	// Step 5 must not be compared against step 7's findings.
	accepted, suppressed, err := f.FilterNovel(context.Background(),
		[]string{"the reactor output doubled in march"}, 5)
	if err != nil {
		t.Fatalf("FilterNovel: %v", err)
	}
	if len(accepted) != 1 || len(suppressed) != 0 {
		t.Errorf("later steps leaked into comparison: accepted=%v suppressed=%v", accepted, suppressed)
	}
}

func TestFilterNovelRevisionMode(t *testing.T) {
	cfg := DefaultFilterConfig()
	cfg.AllowRevisionDuplicates = true
	f := newTestFilter(t, cfg, map[int][]string{
		1: {"the reactor output doubled in march"},
	})

	accepted, suppressed, err := f.FilterNovel(context.Background(),
		[]string{"the reactor output doubled in march"}, 3)
	if err != nil {
		t.Fatalf("FilterNovel: %v", err)
	}
	if len(accepted) != 1 {
		t.Errorf("revision mode should keep the duplicate, accepted=%v", accepted)
	}
	if len(suppressed) != 1 || suppressed[0].Annotation != "revision" {
		t.Errorf("expected revision tag, got %+v", suppressed)
	}
}

// failingScorer always errors, for propagation checks.
type failingScorer struct{}

func (failingScorer) Score(context.Context, string, []string) ([]float64, error) {
	return nil, errors.New("scorer unavailable")
}

func TestFilterNovelPropagatesScorerError(t *testing.T) {
	a := NewAggregator(store.NewInMemoryArtifacts())
	a.Append(context.Background(), model.StepDigest{StepID: 1, PointsOfInterest: []string{"prior"}})
	f := NewFilter(DefaultFilterConfig(), a, failingScorer{})

	_, _, err := f.FilterNovel(context.Background(), []string{"candidate"}, 2)
	if err == nil {
		t.Error("expected scorer error to propagate")
	}
}

// fixedEmbedder returns predetermined vectors keyed by input text.
type fixedEmbedder struct {
	vectors map[string][]float32
}

func (f fixedEmbedder) Embed(_ context.Context, inputs []string) ([][]float32, error) {
	out := make([][]float32, len(inputs))
	for i, in := range inputs {
		out[i] = f.vectors[in]
	}
	return out, nil
}

func TestEmbeddingScorerCosine(t *testing.T) {
	scorer := NewEmbeddingScorer(fixedEmbedder{vectors: map[string][]float32{
		"candidate":  {1, 0},
		"same":       {2, 0},
		"orthogonal": {0, 1},
		"opposite":   {-1, 0},
	}})

	scores, err := scorer.Score(context.Background(), "candidate",
		[]string{"same", "orthogonal", "opposite"})
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if scores[0] < 0.999 {
		t.Errorf("parallel vectors should score ~1, got %g", scores[0])
	}
	if scores[1] > 0.001 {
		t.Errorf("orthogonal vectors should score ~0, got %g", scores[1])
	}
	if scores[2] > -0.999 {
		t.Errorf("opposite vectors should score ~-1, got %g", scores[2])
	}
}
