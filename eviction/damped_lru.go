package eviction

// dampedLRU favours recency but softens the penalty for entries that are old
// yet frequently read.
type dampedLRU struct{}

// Score returns the damped-LRU score of c. Higher scores are safer from eviction.
func Score(c Candidate) float64 {
	return float64(c.LastAccessed.UnixMilli()) * (1 + float64(c.AccessCount)/100)
}

func (dampedLRU) Order(cands []Candidate) []Candidate {
	return sortBy(cands, func(a, b *Candidate) (bool, bool) {
		sa, sb := Score(*a), Score(*b)
		if sa == sb {
			return false, false
		}
		return sa < sb, true
	})
}
