package model

import (
	"fmt"
	"strings"
)

// MarkerDigest is the bounded collection of markers extracted from one
// content item. It is the cheap proxy a step sees before deciding to pull
// full content.
type MarkerDigest struct {
	SourceItemID  string   `json:"source_item_id"`
	KeyFacts      []string `json:"key_facts"`
	KeyOpinions   []string `json:"key_opinions"`
	KeyDatapoints []string `json:"key_datapoints"`
	TopicAreas    []string `json:"topic_areas"`
	MarkerCount   int      `json:"marker_count"`
	// Degraded marks a minimal fallback digest produced after the
	// summarization collaborator exhausted its retries.
	Degraded bool `json:"degraded,omitempty"`
}

// Markers returns all typed markers as one flat list.
func (d MarkerDigest) Markers() []string {
	out := make([]string, 0, len(d.KeyFacts)+len(d.KeyOpinions)+len(d.KeyDatapoints))
	out = append(out, d.KeyFacts...)
	out = append(out, d.KeyOpinions...)
	out = append(out, d.KeyDatapoints...)
	return out
}

// RecountMarkers recomputes MarkerCount from the typed lists.
func (d *MarkerDigest) RecountMarkers() {
	d.MarkerCount = len(d.KeyFacts) + len(d.KeyOpinions) + len(d.KeyDatapoints)
}

// DigestBounds configures the cardinality and length invariants for
// marker digests.
type DigestBounds struct {
	ListMin  int // minimum entries per typed list
	ListMax  int // maximum entries per typed list
	WordsMax int // maximum words per marker string
}

// DefaultDigestBounds returns the bounds used when none are configured.
func DefaultDigestBounds() DigestBounds {
	return DigestBounds{ListMin: 5, ListMax: 15, WordsMax: 50}
}

// Validate checks a digest produced by the summarization collaborator
// against the cardinality and marker-length invariants. Degraded fallback
// digests are exempt from the minimum cardinality since they are built
// from whatever raw sample was available.
func (d MarkerDigest) Validate(bounds DigestBounds) error {
	if d.SourceItemID == "" {
		return fmt.Errorf("digest missing source item id")
	}
	lists := []struct {
		name    string
		markers []string
	}{
		{"key_facts", d.KeyFacts},
		{"key_opinions", d.KeyOpinions},
		{"key_datapoints", d.KeyDatapoints},
	}
	for _, l := range lists {
		if !d.Degraded && len(l.markers) < bounds.ListMin {
			return fmt.Errorf("%s has %d markers, need at least %d", l.name, len(l.markers), bounds.ListMin)
		}
		if len(l.markers) > bounds.ListMax {
			return fmt.Errorf("%s has %d markers, max is %d", l.name, len(l.markers), bounds.ListMax)
		}
		for _, m := range l.markers {
			if words := len(strings.Fields(m)); words > bounds.WordsMax {
				return fmt.Errorf("%s marker exceeds %d words (%d): %q", l.name, bounds.WordsMax, words, preview(m, 60))
			}
		}
	}
	return nil
}

// StepDigest is the structured record of one completed execution step.
// Immutable once appended; visible to all later steps.
type StepDigest struct {
	StepID           int      `json:"step_id"`
	GoalText         string   `json:"goal_text"`
	Summary          string   `json:"summary"`
	PointsOfInterest []string `json:"points_of_interest"`
	NotableEvidence  []string `json:"notable_evidence"`
}

// Findings returns the union of points of interest and notable evidence,
// the corpus the novelty filter compares candidates against.
func (d StepDigest) Findings() []string {
	out := make([]string, 0, len(d.PointsOfInterest)+len(d.NotableEvidence))
	out = append(out, d.PointsOfInterest...)
	out = append(out, d.NotableEvidence...)
	return out
}

// SuppressedFinding is a candidate finding rejected or tagged by the
// novelty filter, annotated with where the duplicate lives.
type SuppressedFinding struct {
	Text string `json:"text"`
	// Annotation is "duplicate_of: step N", or "revision" when revision
	// duplicates are allowed and the finding was kept.
	Annotation string `json:"annotation"`
	// Similarity is the score against the closest prior finding.
	Similarity float64 `json:"similarity"`
	// DuplicateOfStep is the step whose digest holds the matched finding.
	DuplicateOfStep int `json:"duplicate_of_step"`
}

func preview(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
