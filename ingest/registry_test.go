package ingest

import (
	"testing"

	"github.com/rowanlock/skein/model"
)

func TestRegisterExpectedIsIdempotent(t *testing.T) {
	r := NewRegistry()
	r.RegisterExpected([]string{"a", "b"})
	if !r.MarkAcquired("a", "raw/a", "") {
		t.Fatal("MarkAcquired failed")
	}

	// Re-registering must not reset existing state.
	r.RegisterExpected([]string{"a", "b", "c"})
	item, ok := r.Get("a")
	if !ok {
		t.Fatal("item a missing")
	}
	if item.Acquisition != model.AcquisitionAcquired {
		t.Errorf("expected acquired, got %s", item.Acquisition)
	}
	if r.Len() != 3 {
		t.Errorf("expected 3 items, got %d", r.Len())
	}
}

func TestMarkAcquiredDuplicate(t *testing.T) {
	r := NewRegistry()
	r.RegisterExpected([]string{"a"})

	if !r.MarkAcquired("a", "raw/a", "hash1") {
		t.Fatal("first MarkAcquired failed")
	}
	if r.MarkAcquired("a", "raw/other", "hash2") {
		t.Error("duplicate MarkAcquired should return false")
	}

	item, _ := r.Get("a")
	if item.RawRef != "raw/a" {
		t.Errorf("duplicate event must not overwrite ref, got %q", item.RawRef)
	}
}

func TestMarkAcquiredUnknown(t *testing.T) {
	r := NewRegistry()
	if r.MarkAcquired("ghost", "raw/ghost", "") {
		t.Error("MarkAcquired for unregistered id should return false")
	}
}

func TestAcquisitionFailureFailsBothAxes(t *testing.T) {
	r := NewRegistry()
	r.RegisterExpected([]string{"a"})

	if !r.MarkAcquisitionFailed("a", "fetch timed out") {
		t.Fatal("MarkAcquisitionFailed failed")
	}

	item, _ := r.Get("a")
	if item.Acquisition != model.AcquisitionFailed {
		t.Errorf("expected acquisition failed, got %s", item.Acquisition)
	}
	if item.Summarization != model.SummarizationFailed {
		t.Errorf("expected summarization failed, got %s", item.Summarization)
	}
	if item.FailureReason != "fetch timed out" {
		t.Errorf("unexpected failure reason %q", item.FailureReason)
	}
	if !item.Terminal() {
		t.Error("failed item must be terminal")
	}
}

func TestAdvanceSummarizationOrder(t *testing.T) {
	r := NewRegistry()
	r.RegisterExpected([]string{"a"})

	steps := []model.SummarizationState{
		model.SummarizationQueued,
		model.SummarizationRunning,
		model.SummarizationDone,
	}
	for _, next := range steps {
		if err := r.AdvanceSummarization("a", next); err != nil {
			t.Fatalf("advance to %s: %v", next, err)
		}
	}

	// Terminal state admits no further transitions.
	if err := r.AdvanceSummarization("a", model.SummarizationFailed); err == nil {
		t.Error("expected error advancing out of terminal state")
	}
}

func TestAdvanceSummarizationRejectsRegression(t *testing.T) {
	r := NewRegistry()
	r.RegisterExpected([]string{"a"})

	if err := r.AdvanceSummarization("a", model.SummarizationRunning); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := r.AdvanceSummarization("a", model.SummarizationQueued); err == nil {
		t.Error("expected error on regression summarizing -> queued")
	}
}

func TestAdvanceSummarizationFailedFromAnyNonTerminal(t *testing.T) {
	r := NewRegistry()
	r.RegisterExpected([]string{"pending", "queued", "running"})
	r.AdvanceSummarization("queued", model.SummarizationQueued)
	r.AdvanceSummarization("running", model.SummarizationQueued)
	r.AdvanceSummarization("running", model.SummarizationRunning)

	for _, id := range []string{"pending", "queued", "running"} {
		if err := r.AdvanceSummarization(id, model.SummarizationFailed); err != nil {
			t.Errorf("fail from %s state: %v", id, err)
		}
	}
}

func TestIsCompleteRequiresAllTerminal(t *testing.T) {
	r := NewRegistry()
	r.RegisterExpected([]string{"a", "b"})

	if r.IsComplete() {
		t.Error("pending items should not be complete")
	}

	r.MarkAcquired("a", "raw/a", "")
	r.AdvanceSummarization("a", model.SummarizationQueued)
	r.AdvanceSummarization("a", model.SummarizationRunning)
	r.AdvanceSummarization("a", model.SummarizationDone)
	if r.IsComplete() {
		t.Error("one item terminal is not completion")
	}

	r.MarkAcquisitionFailed("b", "gone")
	if !r.IsComplete() {
		t.Error("all items terminal should be complete")
	}
}

func TestIsCompleteAcquiredButNotSummarized(t *testing.T) {
	r := NewRegistry()
	r.RegisterExpected([]string{"a"})
	r.MarkAcquired("a", "raw/a", "")

	// Acquisition terminal, summarization still pending.
	if r.IsComplete() {
		t.Error("item with pending summarization should not count as complete")
	}
}

func TestFailNonTerminal(t *testing.T) {
	r := NewRegistry()
	r.RegisterExpected([]string{"done", "pending", "running"})

	r.MarkAcquired("done", "raw/done", "")
	r.AdvanceSummarization("done", model.SummarizationQueued)
	r.AdvanceSummarization("done", model.SummarizationRunning)
	r.AdvanceSummarization("done", model.SummarizationDone)

	r.MarkAcquired("running", "raw/running", "")
	r.AdvanceSummarization("running", model.SummarizationQueued)

	failed := r.FailNonTerminal("cancelled")
	if failed != 2 {
		t.Errorf("expected 2 items failed, got %d", failed)
	}
	if !r.IsComplete() {
		t.Error("registry should be complete after FailNonTerminal")
	}

	item, _ := r.Get("done")
	if item.Summarization != model.SummarizationDone {
		t.Errorf("completed item must not be touched, got %s", item.Summarization)
	}
	if item.FailureReason != "" {
		t.Errorf("completed item must keep empty failure reason, got %q", item.FailureReason)
	}
}
