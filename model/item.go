// Package model provides domain types shared across packages.
package model

import "fmt"

// AcquisitionState tracks the acquisition axis of a content item.
// Transitions are monotonic: Pending -> Acquired or Pending -> AcquisitionFailed.
type AcquisitionState int

const (
	AcquisitionPending AcquisitionState = iota
	AcquisitionAcquired
	AcquisitionFailed
)

// String returns the string representation of the acquisition state.
func (s AcquisitionState) String() string {
	switch s {
	case AcquisitionPending:
		return "pending"
	case AcquisitionAcquired:
		return "acquired"
	case AcquisitionFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further acquisition transition can occur.
func (s AcquisitionState) Terminal() bool {
	return s == AcquisitionAcquired || s == AcquisitionFailed
}

// SummarizationState tracks the summarization axis of a content item.
// Transitions are monotonic through the fixed order
// Pending -> Queued -> Summarizing -> Summarized, with Failed reachable
// from any non-terminal state.
type SummarizationState int

const (
	SummarizationPending SummarizationState = iota
	SummarizationQueued
	SummarizationRunning
	SummarizationDone
	SummarizationFailed
)

// String returns the string representation of the summarization state.
func (s SummarizationState) String() string {
	switch s {
	case SummarizationPending:
		return "pending"
	case SummarizationQueued:
		return "queued"
	case SummarizationRunning:
		return "summarizing"
	case SummarizationDone:
		return "summarized"
	case SummarizationFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further summarization transition can occur.
func (s SummarizationState) Terminal() bool {
	return s == SummarizationDone || s == SummarizationFailed
}

// ContentItem holds the per-item lifecycle state for one expected piece
// of content. Items are created when the coordinator is told to expect
// an id and are never deleted mid-run.
type ContentItem struct {
	ID            string             `json:"id"`
	Acquisition   AcquisitionState   `json:"acquisition_state"`
	Summarization SummarizationState `json:"summarization_state"`
	// RawRef is an opaque locator for the full content. Set by the
	// acquisition completion event; resolved through the artifact store.
	RawRef string `json:"raw_content_ref,omitempty"`
	// ContentHash is the xxhash of the raw content at acquisition time,
	// used to verify integrity on later retrieval.
	ContentHash string `json:"content_hash,omitempty"`
	// FailureReason records why either axis failed ("cancelled",
	// acquisition error text, summarizer error text).
	FailureReason string `json:"failure_reason,omitempty"`
}

// Terminal reports whether both state axes are terminal.
func (c ContentItem) Terminal() bool {
	return c.Acquisition.Terminal() && c.Summarization.Terminal()
}

// AcquisitionEvent is delivered by the external content-acquisition
// collaborator exactly once per expected id.
type AcquisitionEvent struct {
	ItemID string `json:"item_id"`
	RawRef string `json:"raw_content_ref"`
	Err    string `json:"error,omitempty"`
}

// Failed reports whether the event carries an acquisition error.
func (e AcquisitionEvent) Failed() bool {
	return e.Err != ""
}

// ContentType selects which parts of an item's raw content to return.
type ContentType string

const (
	// ContentPrimary is the item's main text.
	ContentPrimary ContentType = "primary_text"
	// ContentDiscussion is secondary discussion attached to the item
	// (comments, replies).
	ContentDiscussion ContentType = "secondary_discussion"
)

// ParseContentType parses a string into a ContentType.
func ParseContentType(s string) (ContentType, error) {
	switch s {
	case "primary_text":
		return ContentPrimary, nil
	case "secondary_discussion":
		return ContentDiscussion, nil
	default:
		return "", fmt.Errorf("unknown content type: %q", s)
	}
}

// RawContent is the complete, never-truncated content for one item.
// Excluded content types are left empty; included parts are always whole.
type RawContent struct {
	ItemID     string `json:"item_id"`
	Primary    string `json:"primary_text"`
	Discussion string `json:"secondary_discussion,omitempty"`
}
