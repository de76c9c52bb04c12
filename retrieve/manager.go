package retrieve

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/rowanlock/skein/model"
	"github.com/rowanlock/skein/store"
)

// Manager resolves retrieval rounds against per-step budgets. Each round
// is decided atomically: requests are ordered, admitted greedily, and
// every non-granted request carries an explicit reason. Granted content
// is always complete; running low on budget defers whole items instead
// of truncating them.
//
// Information Hiding:
// - Budget accounting and round counters hidden behind SubmitRound
// - Target resolution (id, marker, topic) hidden inside the manager
type Manager struct {
	config  Config
	markers *store.MarkerStore
	budgets *ledger
	log     *slog.Logger
}

// NewManager creates a retrieval manager over the given marker store.
func NewManager(config Config, markers *store.MarkerStore) *Manager {
	if config.UnitBytes < 1 {
		config.UnitBytes = DefaultConfig().UnitBytes
	}
	return &Manager{
		config:  config,
		markers: markers,
		budgets: newLedger(),
		log:     slog.Default().With("component", "retrieve"),
	}
}

// Usage reports a step's consumed budget units and completed rounds.
func (m *Manager) Usage(stepID int) (consumedUnits, rounds int) {
	return m.budgets.Usage(stepID)
}

// decision is one request's admission outcome before content is fetched.
type decision struct {
	request model.RetrievalRequest
	status  model.ResponseStatus
	reason  string
	itemIDs []string
	cost    int
}

// SubmitRound resolves one round of requests for a step. Responses come
// back in the original request order. The round counter and budget move
// together under the ledger lock, so concurrent rounds for the same step
// serialize cleanly.
func (m *Manager) SubmitRound(ctx context.Context, stepID int, requests []model.RetrievalRequest) ([]model.RetrievalResponse, error) {
	if len(requests) == 0 {
		return nil, nil
	}

	decisions := m.admit(stepID, requests)

	responses := make([]model.RetrievalResponse, len(requests))
	for i, d := range decisions {
		resp := model.RetrievalResponse{
			Request: d.request,
			Status:  d.status,
			Reason:  d.reason,
		}
		if d.status == model.StatusGranted {
			items, err := m.fetch(ctx, d)
			if err != nil {
				// Content went away between admission and fetch; refund
				// the charge so the budget reflects delivered content.
				m.refund(stepID, d.cost)
				m.log.Warn("granted request failed to fetch, refunded",
					"step_id", stepID, "cost_units", d.cost, "error", err)
				resp.Status = model.StatusDenied
				resp.Reason = model.ReasonNotFound
			} else {
				resp.Items = items
				resp.CostUnits = d.cost
			}
		}
		responses[i] = resp
	}

	consumed, rounds := m.budgets.Usage(stepID)
	m.log.Info("retrieval round resolved",
		"step_id", stepID, "requests", len(requests),
		"consumed_units", consumed, "rounds", rounds)
	return responses, nil
}

// admit makes the whole round's grant/defer/deny decisions atomically
// under the ledger lock. Requests are considered in priority order,
// highest first, with submission order breaking ties.
func (m *Manager) admit(stepID int, requests []model.RetrievalRequest) []decision {
	m.budgets.mu.Lock()
	defer m.budgets.mu.Unlock()

	budget := m.budgets.step(stepID)
	decisions := make([]decision, len(requests))

	if m.config.MaxFollowupsPerStep > 0 && budget.rounds >= m.config.MaxFollowupsPerStep {
		for i, req := range requests {
			decisions[i] = decision{
				request: req,
				status:  model.StatusDenied,
				reason:  model.ReasonMaxRounds,
			}
		}
		return decisions
	}
	budget.rounds++

	order := make([]int, len(requests))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return requests[order[a]].Priority > requests[order[b]].Priority
	})

	itemsGranted := 0
	for _, idx := range order {
		req := requests[idx]

		ids, err := m.resolve(req)
		if err != nil {
			decisions[idx] = decision{
				request: req,
				status:  model.StatusDenied,
				reason:  model.ReasonNotFound,
			}
			continue
		}

		cost := 0
		for _, id := range ids {
			c, ok := m.markers.ItemCost(id, m.config.UnitBytes)
			if !ok {
				// Resolved from a digest but raw content was never
				// registered; treat the whole request as unresolvable.
				cost = -1
				break
			}
			cost += c
		}
		if cost < 0 {
			decisions[idx] = decision{
				request: req,
				status:  model.StatusDenied,
				reason:  model.ReasonNotFound,
			}
			continue
		}

		if m.config.MaxItemsPerRound > 0 && itemsGranted+len(ids) > m.config.MaxItemsPerRound {
			decisions[idx] = decision{
				request: req,
				status:  model.StatusDeferred,
				reason:  model.ReasonRoundItemCap,
			}
			continue
		}
		if budget.consumedUnits+cost > m.config.ContextWindowLimit {
			decisions[idx] = decision{
				request: req,
				status:  model.StatusDeferred,
				reason:  model.ReasonBudgetExhausted,
			}
			continue
		}

		budget.consumedUnits += cost
		itemsGranted += len(ids)
		decisions[idx] = decision{
			request: req,
			status:  model.StatusGranted,
			itemIDs: ids,
			cost:    cost,
		}
	}
	return decisions
}

// resolve maps a request to the item ids it covers.
func (m *Manager) resolve(req model.RetrievalRequest) ([]string, error) {
	switch req.Kind {
	case model.KindFullItem:
		if _, ok := m.markers.ItemCost(req.Target, m.config.UnitBytes); !ok {
			return nil, fmt.Errorf("item %q: %w", req.Target, store.ErrNotFound)
		}
		return []string{req.Target}, nil

	case model.KindByMarker:
		ids := m.markers.FindByMarker(req.Target)
		if len(ids) == 0 {
			return nil, fmt.Errorf("marker %q: %w", req.Target, store.ErrNotFound)
		}
		return ids, nil

	case model.KindByTopic:
		ids := m.markers.FindByTopic(req.Target)
		if len(ids) == 0 {
			return nil, fmt.Errorf("topic %q: %w", req.Target, store.ErrNotFound)
		}
		return ids, nil

	case model.KindByMarkerSet:
		// Union across the set: an item qualifies by matching any marker.
		seen := make(map[string]bool)
		var ids []string
		for _, marker := range req.Targets {
			for _, id := range m.markers.FindByMarker(marker) {
				if !seen[id] {
					seen[id] = true
					ids = append(ids, id)
				}
			}
		}
		if len(ids) == 0 {
			return nil, fmt.Errorf("marker set %v: %w", req.Targets, store.ErrNotFound)
		}
		sort.Strings(ids)
		return ids, nil

	default:
		return nil, fmt.Errorf("request kind %s: %w", req.Kind, store.ErrNotFound)
	}
}

// fetch loads complete content for every item a granted request covers.
func (m *Manager) fetch(ctx context.Context, d decision) ([]model.RawContent, error) {
	items := make([]model.RawContent, 0, len(d.itemIDs))
	for _, id := range d.itemIDs {
		raw, err := m.markers.GetRaw(ctx, id, d.request.ContentTypes)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", id, err)
		}
		items = append(items, raw)
	}
	return items, nil
}

func (m *Manager) refund(stepID int, cost int) {
	m.budgets.mu.Lock()
	defer m.budgets.mu.Unlock()
	b := m.budgets.step(stepID)
	b.consumedUnits -= cost
	if b.consumedUnits < 0 {
		b.consumedUnits = 0
	}
}
