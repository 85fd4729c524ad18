// This file implements FIFO eviction.

package eviction

// fifo ignores reads completely; the entry written first is evicted first.
// A Set on an existing key creates a fresh entry, so it moves to the back.
type fifo struct{}

func (fifo) Order(cands []Candidate) []Candidate {
	return sortBy(cands, func(a, b *Candidate) (bool, bool) {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return false, false
		}
		return a.CreatedAt.Before(b.CreatedAt), true
	})
}
