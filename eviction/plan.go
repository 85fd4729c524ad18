package eviction

// Limits are the configured bounds of a tier. A zero field means unbounded.
type Limits struct {
	MaxEntries   int
	MaxSizeBytes int64
}

// Usage is what a tier currently holds.
type Usage struct {
	Entries int
	Bytes   int64
}

/*
Fits is the single capacity check used by every eviction path.

It reports whether usage plus a pending admission of pendingEntries entries
totalling pendingBytes stays within the limits. Pre-insert eviction passes the
entry about to be written; the post-insert safety net passes zero for both.
*/
func (l Limits) Fits(u Usage, pendingEntries int, pendingBytes int64) bool {
	if l.MaxEntries > 0 && u.Entries+pendingEntries > l.MaxEntries {
		return false
	}
	if l.MaxSizeBytes > 0 && u.Bytes+pendingBytes > l.MaxSizeBytes {
		return false
	}
	return true
}

/*
Plan decides which entries to evict so that the pending admission fits.

Candidates are taken in the order chosen by the policy and the shortest prefix
that makes room is returned; nothing with a higher rank is evicted before
something ranked lower. ok is false when the pending admission could never fit,
even in an empty tier, or when evicting every candidate is still not enough.
In the first case no victims are returned so the caller loses nothing.
*/
func Plan(p Policy, cands []Candidate, l Limits, u Usage, pendingEntries int, pendingBytes int64) (victims []string, ok bool) {
	if !l.Fits(Usage{}, pendingEntries, pendingBytes) {
		return nil, false
	}
	if l.Fits(u, pendingEntries, pendingBytes) {
		return nil, true
	}

	for _, c := range p.Order(cands) {
		victims = append(victims, c.Key)
		u.Entries--
		u.Bytes -= c.SizeBytes
		if l.Fits(u, pendingEntries, pendingBytes) {
			return victims, true
		}
	}
	return victims, false
}
