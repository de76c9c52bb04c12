// Package summarize turns raw content into marker digests through a
// bounded pool of workers calling a summarization collaborator.
//
// Information Hiding:
// - Collaborator prompt and response parsing hidden behind Summarizer
// - Retry/backoff/degradation policy hidden inside the pool
package summarize

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	jsonutil "github.com/rowanlock/skein/internal/json"
	"github.com/rowanlock/skein/llm"
	"github.com/rowanlock/skein/model"
	"github.com/rowanlock/skein/store"
)

// Summarizer is the external summarization collaborator: it dereferences
// a raw-content locator and produces a marker digest. Assumed to be a
// remote call; the pool wraps it with timeouts and retries.
type Summarizer interface {
	Summarize(ctx context.Context, itemID, rawRef string) (model.MarkerDigest, error)
}

const summarizeSystemPrompt = `You extract markers from source material for a research pipeline.
A marker is one self-contained statement of 10 to 50 words.
Respond with a JSON object only:
{
  "key_facts": [...],       // %d-%d verifiable statements from the text
  "key_opinions": [...],    // %d-%d attributed viewpoints or assessments
  "key_datapoints": [...],  // %d-%d numbers, dates, quantities with context
  "topic_areas": [...]      // short topic labels covering the content
}`

// markerPayload is the JSON shape the collaborator returns.
type markerPayload struct {
	KeyFacts      []string `json:"key_facts"`
	KeyOpinions   []string `json:"key_opinions"`
	KeyDatapoints []string `json:"key_datapoints"`
	TopicAreas    []string `json:"topic_areas"`
}

// LLMSummarizer implements Summarizer over an LLM provider. Raw content
// locators are resolved through the artifact store.
type LLMSummarizer struct {
	provider  llm.Provider
	artifacts store.Artifacts
	bounds    model.DigestBounds

	mu    sync.Mutex
	usage llm.TokenUsage
}

// NewLLMSummarizer creates a summarizer backed by the given provider.
func NewLLMSummarizer(provider llm.Provider, artifacts store.Artifacts, bounds model.DigestBounds) *LLMSummarizer {
	return &LLMSummarizer{
		provider:  provider,
		artifacts: artifacts,
		bounds:    bounds,
	}
}

// Summarize resolves the raw content and asks the provider for a digest.
func (s *LLMSummarizer) Summarize(ctx context.Context, itemID, rawRef string) (model.MarkerDigest, error) {
	payload, err := s.artifacts.Get(ctx, rawRef, "")
	if err != nil {
		return model.MarkerDigest{}, fmt.Errorf("resolve raw content %q: %w", rawRef, err)
	}
	if payload == "" {
		return model.MarkerDigest{}, fmt.Errorf("raw content %q: %w", rawRef, store.ErrNotFound)
	}

	var raw model.RawContent
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return model.MarkerDigest{}, fmt.Errorf("decode raw content %q: %w", rawRef, err)
	}

	system := fmt.Sprintf(summarizeSystemPrompt,
		s.bounds.ListMin, s.bounds.ListMax,
		s.bounds.ListMin, s.bounds.ListMax,
		s.bounds.ListMin, s.bounds.ListMax)

	user := raw.Primary
	if raw.Discussion != "" {
		user += "\n\n--- discussion ---\n" + raw.Discussion
	}

	resp, err := s.provider.ChatWithFormat(ctx,
		[]llm.ChatMessage{llm.SystemMessage(system), llm.UserMessage(user)},
		llm.NewJSONObjectFormat(),
	)
	if err != nil {
		return model.MarkerDigest{}, fmt.Errorf("summarize %s: %w", itemID, err)
	}

	s.mu.Lock()
	s.usage.Add(resp.Usage)
	s.mu.Unlock()

	parsed, err := jsonutil.Unmarshal[markerPayload](resp.Content)
	if err != nil {
		return model.MarkerDigest{}, fmt.Errorf("summarize %s: %w", itemID, err)
	}

	digest := model.MarkerDigest{
		SourceItemID:  itemID,
		KeyFacts:      parsed.KeyFacts,
		KeyOpinions:   parsed.KeyOpinions,
		KeyDatapoints: parsed.KeyDatapoints,
		TopicAreas:    parsed.TopicAreas,
	}
	digest.RecountMarkers()
	return digest, nil
}

// Usage returns the accumulated token usage across all calls.
func (s *LLMSummarizer) Usage() llm.TokenUsage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usage
}

var _ Summarizer = (*LLMSummarizer)(nil)
