package dsa

import (
	"sort"
)

// SuffixArray enables O(m log n) substring search over the concatenated
// marker text of a run, where m is pattern length and n is text length.
type SuffixArray struct {
	Text string
	SA   []int // SA[i] = start position of the i-th smallest suffix
	rank []int
}

// BuildSuffixArray constructs a suffix array using prefix doubling.
// O(n log^2 n) build time, O(n) space.
func BuildSuffixArray(text string) *SuffixArray {
	n := len(text)
	if n == 0 {
		return &SuffixArray{Text: text, SA: []int{}}
	}

	sa := &SuffixArray{
		Text: text,
		SA:   make([]int, n),
		rank: make([]int, n),
	}
	for i := 0; i < n; i++ {
		sa.SA[i] = i
		sa.rank[i] = int(text[i])
	}

	rankAt := func(pos, k int) int {
		if pos+k < n {
			return sa.rank[pos+k]
		}
		return -1
	}

	next := make([]int, n)
	for k := 1; k < n; k *= 2 {
		sort.Slice(sa.SA, func(i, j int) bool {
			a, b := sa.SA[i], sa.SA[j]
			if sa.rank[a] != sa.rank[b] {
				return sa.rank[a] < sa.rank[b]
			}
			return rankAt(a, k) < rankAt(b, k)
		})

		next[sa.SA[0]] = 0
		for i := 1; i < n; i++ {
			prev, curr := sa.SA[i-1], sa.SA[i]
			next[curr] = next[prev]
			if sa.rank[prev] != sa.rank[curr] || rankAt(prev, k) != rankAt(curr, k) {
				next[curr]++
			}
		}
		copy(sa.rank, next)

		// All suffixes distinguished; further doubling is a no-op.
		if sa.rank[sa.SA[n-1]] == n-1 {
			break
		}
	}

	return sa
}

// Search returns the start positions of every occurrence of pattern,
// in ascending order.
func (sa *SuffixArray) Search(pattern string) []int {
	if len(pattern) == 0 || len(sa.SA) == 0 {
		return nil
	}

	n := len(sa.SA)
	m := len(pattern)

	left := sort.Search(n, func(i int) bool {
		suffix := sa.Text[sa.SA[i]:]
		if len(suffix) < m {
			return suffix >= pattern[:len(suffix)]
		}
		return suffix[:m] >= pattern
	})
	right := sort.Search(n, func(i int) bool {
		suffix := sa.Text[sa.SA[i]:]
		if len(suffix) < m {
			return suffix > pattern[:len(suffix)]
		}
		return suffix[:m] > pattern
	})

	var matches []int
	for i := left; i < right; i++ {
		pos := sa.SA[i]
		if pos+m <= len(sa.Text) && sa.Text[pos:pos+m] == pattern {
			matches = append(matches, pos)
		}
	}
	sort.Ints(matches)
	return matches
}

// Contains reports whether pattern occurs anywhere in the text.
func (sa *SuffixArray) Contains(pattern string) bool {
	return len(sa.Search(pattern)) > 0
}
