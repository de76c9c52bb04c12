package retrieve

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rowanlock/skein/model"
	"github.com/rowanlock/skein/store"
)

func testConfig() Config {
	return Config{
		ContextWindowLimit:  10,
		MaxItemsPerRound:    4,
		MaxFollowupsPerStep: 3,
		UnitBytes:           1000,
	}
}

// addItem saves raw content of roughly size bytes and a digest carrying
// the given markers, then registers the item with the store.
func addItem(t *testing.T, markers *store.MarkerStore, artifacts store.Artifacts, id string, size int, markerText string, topics ...string) {
	t.Helper()
	ctx := context.Background()

	raw := model.RawContent{ItemID: id, Primary: strings.Repeat("x", size)}
	payload, err := json.Marshal(raw)
	if err != nil {
		t.Fatalf("marshal raw: %v", err)
	}
	ref := store.RawKey(id)
	if err := artifacts.Save(ctx, ref, string(payload)); err != nil {
		t.Fatalf("save raw: %v", err)
	}
	if err := markers.RegisterRaw(ctx, id, ref); err != nil {
		t.Fatalf("register raw: %v", err)
	}

	d := model.MarkerDigest{
		SourceItemID: id,
		KeyFacts:     []string{markerText},
		TopicAreas:   topics,
	}
	d.RecountMarkers()
	if err := markers.Put(ctx, d); err != nil {
		t.Fatalf("put digest: %v", err)
	}
}

func setup(t *testing.T, cfg Config) (*Manager, *store.MarkerStore, store.Artifacts) {
	t.Helper()
	artifacts := store.NewInMemoryArtifacts()
	markers := store.NewMarkerStore(artifacts)
	return NewManager(cfg, markers), markers, artifacts
}

func fullItem(stepID int, id string, priority int) model.RetrievalRequest {
	return model.RetrievalRequest{
		StepID:   stepID,
		Kind:     model.KindFullItem,
		Target:   id,
		Priority: priority,
	}
}

func TestSubmitRoundGrantsWithinBudget(t *testing.T) {
	m, markers, artifacts := setup(t, testConfig())
	addItem(t, markers, artifacts, "a", 500, "solar capacity doubled")
	addItem(t, markers, artifacts, "b", 500, "grid demand fell")

	responses, err := m.SubmitRound(context.Background(), 1, []model.RetrievalRequest{
		fullItem(1, "a", 1),
		fullItem(1, "b", 1),
	})
	if err != nil {
		t.Fatalf("SubmitRound: %v", err)
	}

	for i, resp := range responses {
		if resp.Status != model.StatusGranted {
			t.Errorf("response %d: expected granted, got %s (%s)", i, resp.Status, resp.Reason)
			continue
		}
		if len(resp.Items) != 1 {
			t.Errorf("response %d: expected 1 item, got %d", i, len(resp.Items))
		}
		if resp.CostUnits < 1 {
			t.Errorf("response %d: cost must be at least 1 unit", i)
		}
	}

	consumed, rounds := m.Usage(1)
	if consumed < 2 {
		t.Errorf("expected consumption from two grants, got %d", consumed)
	}
	if rounds != 1 {
		t.Errorf("expected 1 round, got %d", rounds)
	}
}

func TestSubmitRoundNeverTruncates(t *testing.T) {
	m, markers, artifacts := setup(t, testConfig())
	addItem(t, markers, artifacts, "big", 8000, "long report on storage")

	responses, err := m.SubmitRound(context.Background(), 1, []model.RetrievalRequest{
		fullItem(1, "big", 1),
	})
	if err != nil {
		t.Fatalf("SubmitRound: %v", err)
	}
	if responses[0].Status != model.StatusGranted {
		t.Fatalf("expected granted, got %s (%s)", responses[0].Status, responses[0].Reason)
	}
	if got := len(responses[0].Items[0].Primary); got != 8000 {
		t.Errorf("content must come back whole, got %d of 8000 bytes", got)
	}
}

func TestSubmitRoundDefersOnBudgetExhausted(t *testing.T) {
	m, markers, artifacts := setup(t, testConfig())
	addItem(t, markers, artifacts, "a", 7000, "first report")  // ~8 units
	addItem(t, markers, artifacts, "b", 7000, "second report") // ~8 units, cannot also fit in 10

	responses, err := m.SubmitRound(context.Background(), 1, []model.RetrievalRequest{
		fullItem(1, "a", 2),
		fullItem(1, "b", 1),
	})
	if err != nil {
		t.Fatalf("SubmitRound: %v", err)
	}

	if responses[0].Status != model.StatusGranted {
		t.Errorf("higher priority request should be granted, got %s", responses[0].Status)
	}
	if responses[1].Status != model.StatusDeferred {
		t.Errorf("expected deferred, got %s", responses[1].Status)
	}
	if responses[1].Reason != model.ReasonBudgetExhausted {
		t.Errorf("expected reason %q, got %q", model.ReasonBudgetExhausted, responses[1].Reason)
	}
	if len(responses[1].Items) != 0 {
		t.Error("deferred response must carry no content")
	}

	consumed, _ := m.Usage(1)
	if consumed > testConfig().ContextWindowLimit {
		t.Errorf("consumed %d exceeds limit %d", consumed, testConfig().ContextWindowLimit)
	}
}

func TestSubmitRoundPriorityBeatsSubmissionOrder(t *testing.T) {
	m, markers, artifacts := setup(t, testConfig())
	addItem(t, markers, artifacts, "low", 7000, "low priority report")
	addItem(t, markers, artifacts, "high", 7000, "high priority report")

	// The low-priority request comes first but only one fits the budget.
	responses, err := m.SubmitRound(context.Background(), 1, []model.RetrievalRequest{
		fullItem(1, "low", 1),
		fullItem(1, "high", 9),
	})
	if err != nil {
		t.Fatalf("SubmitRound: %v", err)
	}

	// Responses preserve request order even though admission reordered.
	if responses[0].Request.Target != "low" {
		t.Fatal("responses must preserve request order")
	}
	if responses[0].Status != model.StatusDeferred {
		t.Errorf("low priority should be deferred, got %s", responses[0].Status)
	}
	if responses[1].Status != model.StatusGranted {
		t.Errorf("high priority should be granted, got %s (%s)", responses[1].Status, responses[1].Reason)
	}
}

func TestSubmitRoundTiesBreakBySubmissionOrder(t *testing.T) {
	m, markers, artifacts := setup(t, testConfig())
	addItem(t, markers, artifacts, "first", 7000, "first report")
	addItem(t, markers, artifacts, "second", 7000, "second report")

	responses, err := m.SubmitRound(context.Background(), 1, []model.RetrievalRequest{
		fullItem(1, "first", 5),
		fullItem(1, "second", 5),
	})
	if err != nil {
		t.Fatalf("SubmitRound: %v", err)
	}
	if responses[0].Status != model.StatusGranted {
		t.Errorf("earlier request should win the tie, got %s", responses[0].Status)
	}
	if responses[1].Status != model.StatusDeferred {
		t.Errorf("later request should be deferred, got %s", responses[1].Status)
	}
}

func TestSubmitRoundDefersOnRoundItemCap(t *testing.T) {
	cfg := testConfig()
	cfg.MaxItemsPerRound = 1
	cfg.ContextWindowLimit = 100
	m, markers, artifacts := setup(t, cfg)
	addItem(t, markers, artifacts, "a", 100, "alpha report")
	addItem(t, markers, artifacts, "b", 100, "beta report")

	responses, err := m.SubmitRound(context.Background(), 1, []model.RetrievalRequest{
		fullItem(1, "a", 2),
		fullItem(1, "b", 1),
	})
	if err != nil {
		t.Fatalf("SubmitRound: %v", err)
	}
	if responses[0].Status != model.StatusGranted {
		t.Errorf("expected first granted, got %s", responses[0].Status)
	}
	if responses[1].Status != model.StatusDeferred || responses[1].Reason != model.ReasonRoundItemCap {
		t.Errorf("expected deferred/%s, got %s/%s",
			model.ReasonRoundItemCap, responses[1].Status, responses[1].Reason)
	}
}

func TestSubmitRoundDeniesAfterMaxRounds(t *testing.T) {
	cfg := testConfig()
	cfg.MaxFollowupsPerStep = 1
	m, markers, artifacts := setup(t, cfg)
	addItem(t, markers, artifacts, "a", 100, "alpha report")

	ctx := context.Background()
	if _, err := m.SubmitRound(ctx, 1, []model.RetrievalRequest{fullItem(1, "a", 1)}); err != nil {
		t.Fatalf("round 1: %v", err)
	}

	responses, err := m.SubmitRound(ctx, 1, []model.RetrievalRequest{fullItem(1, "a", 1)})
	if err != nil {
		t.Fatalf("round 2: %v", err)
	}
	if responses[0].Status != model.StatusDenied || responses[0].Reason != model.ReasonMaxRounds {
		t.Errorf("expected denied/%s, got %s/%s",
			model.ReasonMaxRounds, responses[0].Status, responses[0].Reason)
	}

	// A denied round must not advance the round counter forever; other
	// steps are unaffected.
	if _, err := m.SubmitRound(ctx, 2, []model.RetrievalRequest{fullItem(2, "a", 1)}); err != nil {
		t.Fatalf("other step: %v", err)
	}
	if consumed, _ := m.Usage(2); consumed < 1 {
		t.Error("step 2 should have its own budget")
	}
}

func TestSubmitRoundDeniesUnknownTargets(t *testing.T) {
	m, markers, artifacts := setup(t, testConfig())
	addItem(t, markers, artifacts, "a", 100, "alpha report")

	responses, err := m.SubmitRound(context.Background(), 1, []model.RetrievalRequest{
		fullItem(1, "ghost", 1),
		{StepID: 1, Kind: model.KindByMarker, Target: "no such marker text"},
		{StepID: 1, Kind: model.KindByTopic, Target: "no such topic"},
	})
	if err != nil {
		t.Fatalf("SubmitRound: %v", err)
	}
	for i, resp := range responses {
		if resp.Status != model.StatusDenied || resp.Reason != model.ReasonNotFound {
			t.Errorf("response %d: expected denied/%s, got %s/%s",
				i, model.ReasonNotFound, resp.Status, resp.Reason)
		}
	}

	consumed, _ := m.Usage(1)
	if consumed != 0 {
		t.Errorf("denied requests must not consume budget, got %d", consumed)
	}
}

func TestSubmitRoundResolvesByMarker(t *testing.T) {
	m, markers, artifacts := setup(t, testConfig())
	addItem(t, markers, artifacts, "a", 100, "the reactor came online in march")
	addItem(t, markers, artifacts, "b", 100, "unrelated content")

	responses, err := m.SubmitRound(context.Background(), 1, []model.RetrievalRequest{
		{StepID: 1, Kind: model.KindByMarker, Target: "reactor came online"},
	})
	if err != nil {
		t.Fatalf("SubmitRound: %v", err)
	}
	resp := responses[0]
	if resp.Status != model.StatusGranted {
		t.Fatalf("expected granted, got %s (%s)", resp.Status, resp.Reason)
	}
	if len(resp.Items) != 1 || resp.Items[0].ItemID != "a" {
		t.Errorf("expected item a, got %+v", resp.Items)
	}
}

func TestSubmitRoundResolvesByTopic(t *testing.T) {
	m, markers, artifacts := setup(t, testConfig())
	addItem(t, markers, artifacts, "a", 100, "alpha report", "energy")
	addItem(t, markers, artifacts, "b", 100, "beta report", "energy")
	addItem(t, markers, artifacts, "c", 100, "gamma report", "finance")

	responses, err := m.SubmitRound(context.Background(), 1, []model.RetrievalRequest{
		{StepID: 1, Kind: model.KindByTopic, Target: "energy"},
	})
	if err != nil {
		t.Fatalf("SubmitRound: %v", err)
	}
	resp := responses[0]
	if resp.Status != model.StatusGranted {
		t.Fatalf("expected granted, got %s (%s)", resp.Status, resp.Reason)
	}
	if len(resp.Items) != 2 {
		t.Errorf("expected 2 items for topic, got %d", len(resp.Items))
	}
}

func TestSubmitRoundResolvesMarkerSetAsUnion(t *testing.T) {
	m, markers, artifacts := setup(t, testConfig())
	addItem(t, markers, artifacts, "a", 100, "solar output rose sharply")
	addItem(t, markers, artifacts, "b", 100, "wind output stayed flat")

	responses, err := m.SubmitRound(context.Background(), 1, []model.RetrievalRequest{
		{StepID: 1, Kind: model.KindByMarkerSet, Targets: []string{"solar output", "wind output"}},
	})
	if err != nil {
		t.Fatalf("SubmitRound: %v", err)
	}
	resp := responses[0]
	if resp.Status != model.StatusGranted {
		t.Fatalf("expected granted, got %s (%s)", resp.Status, resp.Reason)
	}
	if len(resp.Items) != 2 {
		t.Errorf("expected union of 2 items, got %d", len(resp.Items))
	}
}

func TestBudgetIsMonotonicAcrossRounds(t *testing.T) {
	cfg := testConfig()
	cfg.ContextWindowLimit = 3
	m, markers, artifacts := setup(t, cfg)
	addItem(t, markers, artifacts, "a", 100, "alpha report")
	addItem(t, markers, artifacts, "b", 100, "beta report")
	addItem(t, markers, artifacts, "c", 100, "gamma report")
	addItem(t, markers, artifacts, "d", 100, "delta report")

	ctx := context.Background()
	last := 0
	for round, id := range []string{"a", "b", "c", "d"} {
		m.SubmitRound(ctx, 1, []model.RetrievalRequest{fullItem(1, id, 1)})
		consumed, _ := m.Usage(1)
		if consumed < last {
			t.Fatalf("round %d: consumption regressed %d -> %d", round+1, last, consumed)
		}
		if consumed > cfg.ContextWindowLimit {
			t.Fatalf("round %d: consumption %d exceeds limit %d", round+1, consumed, cfg.ContextWindowLimit)
		}
		last = consumed
	}

	// Limit 3 and four one-unit items: the last request must have been
	// deferred, not squeezed in.
	if last != 3 {
		t.Errorf("expected exactly 3 units consumed, got %d", last)
	}
}
