package store

import (
	"context"
	"strings"
	"testing"

	"github.com/rowanlock/skein/model"
)

func TestOverviewIncludesAllMarkerTypes(t *testing.T) {
	s := NewMarkerStore(NewInMemoryArtifacts())
	s.Put(context.Background(), testDigest("item-1", "energy"))

	out := s.Overview([]string{"item-1"}, MarkerTypeFilter{})
	for _, want := range []string{"## item-1", "Topics: energy", "Facts:", "Opinions:", "Datapoints:"} {
		if !strings.Contains(out, want) {
			t.Errorf("overview missing %q:\n%s", want, out)
		}
	}
}

func TestOverviewFactsOnly(t *testing.T) {
	s := NewMarkerStore(NewInMemoryArtifacts())
	s.Put(context.Background(), testDigest("item-1"))

	out := s.Overview([]string{"item-1"}, MarkerTypeFilter{FactsOnly: true})
	if !strings.Contains(out, "Facts:") {
		t.Errorf("expected facts section:\n%s", out)
	}
	if strings.Contains(out, "Opinions:") || strings.Contains(out, "Datapoints:") {
		t.Errorf("filtered sections leaked:\n%s", out)
	}
}

func TestOverviewReportsMissingDigest(t *testing.T) {
	s := NewMarkerStore(NewInMemoryArtifacts())
	out := s.Overview([]string{"ghost"}, MarkerTypeFilter{})
	if !strings.Contains(out, "(no digest available)") {
		t.Errorf("missing digest should be reported:\n%s", out)
	}
}

func TestOverviewTagsDegradedDigest(t *testing.T) {
	s := NewMarkerStore(NewInMemoryArtifacts())
	d := model.MarkerDigest{
		SourceItemID: "item-1",
		KeyFacts:     []string{"first line of raw content"},
		Degraded:     true,
	}
	d.RecountMarkers()
	s.Put(context.Background(), d)

	out := s.Overview([]string{"item-1"}, MarkerTypeFilter{})
	if !strings.Contains(out, "[degraded digest]") {
		t.Errorf("degraded digest should be tagged:\n%s", out)
	}
}
