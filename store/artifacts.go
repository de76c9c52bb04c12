// Package store provides the marker store and the artifact key/value
// collaborator it persists through.
//
// Information Hiding:
// - Persistence backend (memory, SQLite) hidden behind the Artifacts interface
// - Marker indexing details (radix tree, suffix array) encapsulated
// - Content integrity hashing handled internally
package store

import (
	"context"
	"errors"
	"sync"
)

// ErrNotFound is returned when a requested item, digest, or artifact
// does not exist.
var ErrNotFound = errors.New("store: not found")

// ErrDuplicateDigest is returned when a second digest is written for the
// same item. The worker pool writes exactly once per item, so a duplicate
// signals a sequencing bug upstream.
var ErrDuplicateDigest = errors.New("store: digest already written for item")

// ErrCorruptContent is returned when stored raw content no longer hashes
// to the value recorded at acquisition time.
var ErrCorruptContent = errors.New("store: raw content hash mismatch")

// Artifacts is the externally-owned key/value collaborator the engine
// persists digests and raw content through. The engine makes no
// assumptions about the backend's durability guarantees.
type Artifacts interface {
	// Save stores value under key, overwriting any existing value.
	Save(ctx context.Context, key, value string) error

	// Get returns the value for key, or defaultValue if the key is absent.
	Get(ctx context.Context, key, defaultValue string) (string, error)

	// List returns all keys starting with prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}

// InMemoryArtifacts implements Artifacts with a map. Data is lost when
// the process terminates; suitable for tests and single-shot runs.
type InMemoryArtifacts struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewInMemoryArtifacts creates an empty in-memory artifact store.
func NewInMemoryArtifacts() *InMemoryArtifacts {
	return &InMemoryArtifacts{values: make(map[string]string)}
}

// Save stores value under key.
func (a *InMemoryArtifacts) Save(ctx context.Context, key, value string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.values[key] = value
	return nil
}

// Get returns the value for key, or defaultValue if absent.
func (a *InMemoryArtifacts) Get(ctx context.Context, key, defaultValue string) (string, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	v, ok := a.values[key]
	if !ok {
		return defaultValue, nil
	}
	return v, nil
}

// List returns all keys starting with prefix.
func (a *InMemoryArtifacts) List(ctx context.Context, prefix string) ([]string, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	var keys []string
	for k := range a.values {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

var _ Artifacts = (*InMemoryArtifacts)(nil)
