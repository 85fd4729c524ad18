// This file implements LFU eviction.

package eviction

// lfu ranks by access count. Among keys with the same count, the least
// recently used goes first, then the key decides.
type lfu struct{}

func (lfu) Order(cands []Candidate) []Candidate {
	return sortBy(cands, func(a, b *Candidate) (bool, bool) {
		if a.AccessCount != b.AccessCount {
			return a.AccessCount < b.AccessCount, true
		}
		if !a.LastAccessed.Equal(b.LastAccessed) {
			return a.LastAccessed.Before(b.LastAccessed), true
		}
		return false, false
	})
}
