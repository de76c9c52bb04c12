package store

import (
	"fmt"
	"strings"
)

// MarkerTypeFilter selects which typed marker lists appear in an overview.
// The zero value includes everything.
type MarkerTypeFilter struct {
	FactsOnly      bool
	OpinionsOnly   bool
	DatapointsOnly bool
}

func (f MarkerTypeFilter) wantAll() bool {
	return !f.FactsOnly && !f.OpinionsOnly && !f.DatapointsOnly
}

// Overview renders a compact, readable listing of all markers for the
// requested items. This is what the first round of a step sees in place
// of raw content. Items without digests are reported as such rather
// than silently omitted.
func (s *MarkerStore) Overview(ids []string, filter MarkerTypeFilter) string {
	if len(ids) == 0 {
		ids = s.ItemIDs()
	}

	var b strings.Builder
	for i, id := range ids {
		if i > 0 {
			b.WriteString("\n")
		}
		digest, ok := s.Get(id)
		if !ok {
			fmt.Fprintf(&b, "## %s\n(no digest available)\n", id)
			continue
		}

		fmt.Fprintf(&b, "## %s", id)
		if digest.Degraded {
			b.WriteString(" [degraded digest]")
		}
		b.WriteString("\n")
		if len(digest.TopicAreas) > 0 {
			fmt.Fprintf(&b, "Topics: %s\n", strings.Join(digest.TopicAreas, ", "))
		}

		if filter.wantAll() || filter.FactsOnly {
			writeMarkerList(&b, "Facts", digest.KeyFacts)
		}
		if filter.wantAll() || filter.OpinionsOnly {
			writeMarkerList(&b, "Opinions", digest.KeyOpinions)
		}
		if filter.wantAll() || filter.DatapointsOnly {
			writeMarkerList(&b, "Datapoints", digest.KeyDatapoints)
		}
	}
	return b.String()
}

func writeMarkerList(b *strings.Builder, heading string, markers []string) {
	if len(markers) == 0 {
		return
	}
	fmt.Fprintf(b, "%s:\n", heading)
	for _, m := range markers {
		fmt.Fprintf(b, "- %s\n", m)
	}
}
