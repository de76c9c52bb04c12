// Package dsa provides the index structures backing the marker store:
// a radix tree for key prefix lookups and a suffix array for marker
// text search.
package dsa

import (
	"github.com/armon/go-radix"
)

// Trie wraps go-radix for compressed prefix-tree lookups over store keys.
// O(k) insert/lookup where k is key length; compressed paths keep memory
// proportional to the number of keys, not key length times alphabet.
type Trie[V any] struct {
	tree *radix.Tree
	size int
}

// NewTrie creates an empty radix tree.
func NewTrie[V any]() *Trie[V] {
	return &Trie[V]{tree: radix.New()}
}

// Insert adds a key-value pair, replacing any existing value.
func (t *Trie[V]) Insert(key string, value V) {
	_, updated := t.tree.Insert(key, value)
	if !updated {
		t.size++
	}
}

// Search looks up a key.
func (t *Trie[V]) Search(key string) (V, bool) {
	val, found := t.tree.Get(key)
	if !found {
		var zero V
		return zero, false
	}
	v, ok := val.(V)
	if !ok {
		var zero V
		return zero, false
	}
	return v, true
}

// StartsWith returns all keys that start with the given prefix.
func (t *Trie[V]) StartsWith(prefix string) []string {
	var results []string
	t.tree.WalkPrefix(prefix, func(k string, v interface{}) bool {
		results = append(results, k)
		return false // continue walking
	})
	return results
}

// Delete removes a key. Returns true if the key existed.
func (t *Trie[V]) Delete(key string) bool {
	_, deleted := t.tree.Delete(key)
	if deleted {
		t.size--
	}
	return deleted
}

// ForEach calls fn for each key-value pair in lexicographic key order.
func (t *Trie[V]) ForEach(fn func(key string, value V)) {
	t.tree.Walk(func(k string, v interface{}) bool {
		if val, ok := v.(V); ok {
			fn(k, val)
		}
		return false
	})
}

// Size returns the number of keys.
func (t *Trie[V]) Size() int {
	return t.size
}
