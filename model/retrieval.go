package model

import "fmt"

// RequestKind is the closed set of retrieval request variants. The budget
// manager handles every kind exhaustively; there is no open-ended dispatch.
type RequestKind int

const (
	// KindFullItem requests the complete content of one item by id.
	KindFullItem RequestKind = iota
	// KindByMarker requests the item whose digest contains a marker.
	KindByMarker
	// KindByTopic requests all items tagged with a topic area.
	KindByTopic
	// KindByMarkerSet requests the items covering a set of markers.
	KindByMarkerSet
)

// String returns the string representation of the request kind.
func (k RequestKind) String() string {
	switch k {
	case KindFullItem:
		return "full_content_item"
	case KindByMarker:
		return "by_marker"
	case KindByTopic:
		return "by_topic"
	case KindByMarkerSet:
		return "by_marker_set"
	default:
		return "unknown"
	}
}

// ParseRequestKind parses a string into a RequestKind.
func ParseRequestKind(s string) (RequestKind, error) {
	switch s {
	case "full_content_item":
		return KindFullItem, nil
	case "by_marker":
		return KindByMarker, nil
	case "by_topic":
		return KindByTopic, nil
	case "by_marker_set":
		return KindByMarkerSet, nil
	default:
		return 0, fmt.Errorf("unknown request kind: %q", s)
	}
}

// RetrievalRequest asks for full, un-truncated source material on behalf
// of a step. Requests are resolved in rounds against the step's budget.
type RetrievalRequest struct {
	StepID int         `json:"requesting_step_id"`
	Kind   RequestKind `json:"kind"`
	// Target is the item id, marker text, or topic string depending on Kind.
	Target string `json:"target,omitempty"`
	// Targets holds the marker set for KindByMarkerSet.
	Targets []string `json:"targets,omitempty"`
	// ContentTypes selects which parts of the content to return.
	// Empty means no filtering: every part comes back.
	ContentTypes []ContentType `json:"content_types,omitempty"`
	// Priority orders admission within a round; higher is more relevant.
	Priority int `json:"priority"`
	// Reason is free text kept for audit.
	Reason string `json:"reason,omitempty"`
}

// ResponseStatus is the outcome of one retrieval request.
type ResponseStatus string

const (
	// StatusGranted means the full content was returned.
	StatusGranted ResponseStatus = "granted"
	// StatusDeferred means the request lost admission this round and may
	// be resubmitted in a later round.
	StatusDeferred ResponseStatus = "deferred"
	// StatusDenied means the request can never be granted for this step.
	StatusDenied ResponseStatus = "denied"
)

// Reasons attached to deferred and denied responses. Callers receive an
// explicit "why not" rather than silence or truncated content.
const (
	ReasonBudgetExhausted = "budget_exhausted"
	ReasonRoundItemCap    = "round_item_cap"
	ReasonMaxRounds       = "max_rounds_reached"
	ReasonNotFound        = "not_found"
)

// RetrievalResponse answers one RetrievalRequest. A granted response
// carries the complete content of every resolved item, never a prefix.
type RetrievalResponse struct {
	Request RetrievalRequest `json:"request"`
	Status  ResponseStatus   `json:"status"`
	Reason  string           `json:"reason,omitempty"`
	// Items holds the resolved content for granted requests.
	Items []RawContent `json:"items,omitempty"`
	// CostUnits is the budget charge for a granted request.
	CostUnits int `json:"cost_units,omitempty"`
}
