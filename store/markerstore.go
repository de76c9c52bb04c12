// MarkerStore implementation with artifact-backed persistence.
//
// Architecture:
// - In-memory: radix tree for item key lookup, suffix array for marker
//   text search, topic map for topic lookups
// - Artifacts: digests and raw content persisted through the key/value
//   collaborator (memory or SQLite)
package store

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/rowanlock/skein/internal/dsa"
	"github.com/rowanlock/skein/model"
)

// Artifact key prefixes. Raw content refs produced by the acquisition
// collaborator are artifact keys under rawPrefix.
const (
	markerPrefix = "marker/"
	rawPrefix    = "raw/"
)

// RawKey returns the artifact key for an item's raw content. Acquisition
// collaborators that write through the same artifact store use this to
// build the raw_content_ref they report.
func RawKey(itemID string) string {
	return rawPrefix + itemID
}

// rawEntry records where an item's full content lives and what it hashed
// to when acquired.
type rawEntry struct {
	ref      string
	hash     string
	byteSize int
}

// markerSpan maps a range of the concatenated search text back to the
// item whose marker produced it.
type markerSpan struct {
	itemID string
	start  int
	end    int
}

// MarkerStore owns marker digests and raw-content locators. Digests are
// written exactly once per item by the summarization pool, then read-only;
// raw content is only ever returned whole.
type MarkerStore struct {
	mu sync.RWMutex

	digests  map[string]model.MarkerDigest
	keyIndex *dsa.Trie[string]   // item id -> item id, for prefix listing
	topics   map[string][]string // lowercased topic -> item ids
	raws     map[string]rawEntry

	// Lazily rebuilt suffix array over all marker text. searchGen counts
	// digest writes so a rebuild can tell whether a write landed while it
	// ran outside the lock.
	searchIndex *dsa.SuffixArray
	searchText  string
	searchSpans []markerSpan
	searchDirty bool
	searchGen   uint64

	artifacts Artifacts
}

// NewMarkerStore creates a marker store persisting through the given
// artifact collaborator.
func NewMarkerStore(artifacts Artifacts) *MarkerStore {
	return &MarkerStore{
		digests:     make(map[string]model.MarkerDigest),
		keyIndex:    dsa.NewTrie[string](),
		topics:      make(map[string][]string),
		raws:        make(map[string]rawEntry),
		searchDirty: true,
		artifacts:   artifacts,
	}
}

// Load restores previously persisted digests from the artifact store,
// so a fresh engine can resume over an existing run's markers.
func (s *MarkerStore) Load(ctx context.Context) error {
	keys, err := s.artifacts.List(ctx, markerPrefix)
	if err != nil {
		return fmt.Errorf("list persisted digests: %w", err)
	}
	for _, key := range keys {
		payload, err := s.artifacts.Get(ctx, key, "")
		if err != nil {
			return fmt.Errorf("load persisted digest %q: %w", key, err)
		}
		if payload == "" {
			continue
		}
		var digest model.MarkerDigest
		if err := json.Unmarshal([]byte(payload), &digest); err != nil {
			return fmt.Errorf("decode persisted digest %q: %w", key, err)
		}
		s.mu.Lock()
		s.indexDigest(digest)
		s.mu.Unlock()
	}

	// Re-register raw content so costs and fetches work after a restart.
	rawKeys, err := s.artifacts.List(ctx, rawPrefix)
	if err != nil {
		return fmt.Errorf("list persisted raw content: %w", err)
	}
	for _, key := range rawKeys {
		payload, err := s.artifacts.Get(ctx, key, "")
		if err != nil {
			return fmt.Errorf("load persisted raw content %q: %w", key, err)
		}
		if payload == "" {
			continue
		}
		s.mu.Lock()
		s.raws[strings.TrimPrefix(key, rawPrefix)] = rawEntry{
			ref:      key,
			hash:     hashContent(payload),
			byteSize: len(payload),
		}
		s.mu.Unlock()
	}
	return nil
}

// RegisterRaw records the raw-content locator for an item and snapshots
// the content's hash and size. The one-time read here keeps later budget
// decisions free of storage I/O.
func (s *MarkerStore) RegisterRaw(ctx context.Context, itemID, ref string) error {
	payload, err := s.artifacts.Get(ctx, ref, "")
	if err != nil {
		return fmt.Errorf("resolve raw content ref %q: %w", ref, err)
	}
	if payload == "" {
		return fmt.Errorf("raw content ref %q: %w", ref, ErrNotFound)
	}

	s.mu.Lock()
	s.raws[itemID] = rawEntry{
		ref:      ref,
		hash:     hashContent(payload),
		byteSize: len(payload),
	}
	s.mu.Unlock()
	return nil
}

// Put writes a validated digest for an item. Exactly one write per item
// is allowed; a second write is a sequencing bug and fails.
func (s *MarkerStore) Put(ctx context.Context, digest model.MarkerDigest) error {
	if digest.SourceItemID == "" {
		return fmt.Errorf("digest missing source item id")
	}

	s.mu.Lock()
	if _, exists := s.digests[digest.SourceItemID]; exists {
		s.mu.Unlock()
		return fmt.Errorf("item %s: %w", digest.SourceItemID, ErrDuplicateDigest)
	}
	s.indexDigest(digest)
	s.mu.Unlock()

	// Persist outside the lock; roll the indexes back if the write does
	// not stick, so the caller can retry without hitting the duplicate
	// guard for a digest that was never stored.
	payload, err := json.Marshal(digest)
	if err != nil {
		s.rollbackDigest(digest)
		return fmt.Errorf("encode digest for %s: %w", digest.SourceItemID, err)
	}
	if err := s.artifacts.Save(ctx, markerPrefix+digest.SourceItemID, string(payload)); err != nil {
		s.rollbackDigest(digest)
		return fmt.Errorf("persist digest for %s: %w", digest.SourceItemID, err)
	}
	return nil
}

// rollbackDigest undoes indexDigest after a failed persist.
func (s *MarkerStore) rollbackDigest(digest model.MarkerDigest) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := digest.SourceItemID
	delete(s.digests, id)
	s.keyIndex.Delete(id)
	for _, topic := range digest.TopicAreas {
		key := strings.ToLower(strings.TrimSpace(topic))
		if key == "" {
			continue
		}
		ids := s.topics[key]
		for i, v := range ids {
			if v == id {
				s.topics[key] = append(ids[:i], ids[i+1:]...)
				break
			}
		}
		if len(s.topics[key]) == 0 {
			delete(s.topics, key)
		}
	}
	s.searchDirty = true
	s.searchGen++
}

// indexDigest registers a digest in all in-memory indexes.
// Caller holds the write lock.
func (s *MarkerStore) indexDigest(digest model.MarkerDigest) {
	id := digest.SourceItemID
	s.digests[id] = digest
	s.keyIndex.Insert(id, id)
	for _, topic := range digest.TopicAreas {
		key := strings.ToLower(strings.TrimSpace(topic))
		if key == "" {
			continue
		}
		s.topics[key] = append(s.topics[key], id)
	}
	s.searchDirty = true
	s.searchGen++
}

// Get returns the digest for an item, if one has been written.
func (s *MarkerStore) Get(itemID string) (model.MarkerDigest, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.digests[itemID]
	return d, ok
}

// Has reports whether a digest exists for the item.
func (s *MarkerStore) Has(itemID string) bool {
	_, ok := s.Get(itemID)
	return ok
}

// ItemIDs returns the ids of all items with digests, sorted.
func (s *MarkerStore) ItemIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.digests))
	s.keyIndex.ForEach(func(_ string, id string) {
		ids = append(ids, id)
	})
	return ids
}

// ItemCost returns the item's retrieval cost in budget units, computed
// from the byte size snapshotted at registration. False if the item's
// raw content was never registered.
func (s *MarkerStore) ItemCost(itemID string, unitBytes int) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.raws[itemID]
	if !ok {
		return 0, false
	}
	if unitBytes < 1 {
		unitBytes = 1
	}
	units := (entry.byteSize + unitBytes - 1) / unitBytes
	if units < 1 {
		units = 1
	}
	return units, true
}

// GetRaw returns the complete, never-truncated raw content for an item,
// filtered to the requested content types. This is the only path by
// which full content reaches a consumer.
func (s *MarkerStore) GetRaw(ctx context.Context, itemID string, types []model.ContentType) (model.RawContent, error) {
	s.mu.RLock()
	entry, ok := s.raws[itemID]
	s.mu.RUnlock()
	if !ok {
		return model.RawContent{}, fmt.Errorf("item %s has no raw content: %w", itemID, ErrNotFound)
	}

	payload, err := s.artifacts.Get(ctx, entry.ref, "")
	if err != nil {
		return model.RawContent{}, fmt.Errorf("fetch raw content for %s: %w", itemID, err)
	}
	if payload == "" {
		return model.RawContent{}, fmt.Errorf("raw content for %s vanished from artifact store: %w", itemID, ErrNotFound)
	}
	if entry.hash != "" && hashContent(payload) != entry.hash {
		return model.RawContent{}, fmt.Errorf("item %s: %w", itemID, ErrCorruptContent)
	}

	var raw model.RawContent
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return model.RawContent{}, fmt.Errorf("decode raw content for %s: %w", itemID, err)
	}
	raw.ItemID = itemID

	if len(types) > 0 {
		wantPrimary, wantDiscussion := false, false
		for _, t := range types {
			switch t {
			case model.ContentPrimary:
				wantPrimary = true
			case model.ContentDiscussion:
				wantDiscussion = true
			}
		}
		if !wantPrimary {
			raw.Primary = ""
		}
		if !wantDiscussion {
			raw.Discussion = ""
		}
	}
	return raw, nil
}

// FindByMarker returns the ids of items whose digest contains the given
// marker text, via suffix-array substring search.
func (s *MarkerStore) FindByMarker(marker string) []string {
	marker = strings.TrimSpace(marker)
	if marker == "" {
		return nil
	}
	s.ensureSearchIndex()

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.searchIndex == nil {
		return nil
	}

	seen := make(map[string]bool)
	var ids []string
	for _, pos := range s.searchIndex.Search(strings.ToLower(marker)) {
		for _, span := range s.searchSpans {
			if pos >= span.start && pos < span.end {
				if !seen[span.itemID] {
					seen[span.itemID] = true
					ids = append(ids, span.itemID)
				}
				break
			}
		}
	}
	sort.Strings(ids)
	return ids
}

// FindByTopic returns the ids of items tagged with the given topic area.
func (s *MarkerStore) FindByTopic(topic string) []string {
	key := strings.ToLower(strings.TrimSpace(topic))
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.topics[key]
	out := make([]string, len(ids))
	copy(out, ids)
	sort.Strings(out)
	return out
}

// ensureSearchIndex rebuilds the suffix array if any digest landed since
// the last build. The build runs outside the lock; the dirty flag is only
// cleared when no write landed during the build, so a concurrent Put is
// picked up by the next search instead of being lost.
func (s *MarkerStore) ensureSearchIndex() {
	type entry struct {
		itemID  string
		markers []string
	}

	s.mu.RLock()
	if !s.searchDirty {
		s.mu.RUnlock()
		return
	}
	gen := s.searchGen
	items := make([]entry, 0, len(s.digests))
	for id, d := range s.digests {
		items = append(items, entry{itemID: id, markers: d.Markers()})
	}
	s.mu.RUnlock()

	sort.Slice(items, func(i, j int) bool { return items[i].itemID < items[j].itemID })

	var b strings.Builder
	var spans []markerSpan
	for _, item := range items {
		start := b.Len()
		for _, m := range item.markers {
			b.WriteString(strings.ToLower(m))
			b.WriteString("\x00")
		}
		spans = append(spans, markerSpan{itemID: item.itemID, start: start, end: b.Len()})
	}

	text := b.String()
	var index *dsa.SuffixArray
	if len(text) > 0 {
		index = dsa.BuildSuffixArray(text)
	}

	// A write that landed during the build re-dirtied the index and may
	// already be in a fresher rebuild; discard this one in that case.
	s.mu.Lock()
	if s.searchGen == gen {
		s.searchText = text
		s.searchIndex = index
		s.searchSpans = spans
		s.searchDirty = false
	}
	s.mu.Unlock()
}

// hashContent uses xxHash: non-cryptographic but fast, plenty for
// detecting store corruption and deduplicating content.
func hashContent(content string) string {
	h := xxhash.Sum64String(content)
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], h)
	return hex.EncodeToString(buf[:])
}
