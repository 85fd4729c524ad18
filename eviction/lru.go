// This file implements LRU eviction.

package eviction

// lru ranks purely by last access time; the entry untouched for the longest
// time goes first.
type lru struct{}

func (lru) Order(cands []Candidate) []Candidate {
	return sortBy(cands, func(a, b *Candidate) (bool, bool) {
		if a.LastAccessed.Equal(b.LastAccessed) {
			return false, false
		}
		return a.LastAccessed.Before(b.LastAccessed), true
	})
}
