package eviction

import (
	"fmt"
	"sort"
	"time"
)

/*
This file defines how a tier decides what to remove when it runs out of space.
*/

// Candidate is the view of one live entry that a policy needs to rank it.
type Candidate struct {
	Key          string
	LastAccessed time.Time
	CreatedAt    time.Time
	AccessCount  int64
	SizeBytes    int64
}

/*
Policy is the interface that all eviction strategies must follow.

A policy is a pure function over a snapshot of the tier's entries. It keeps no
state of its own, so the tier can hand it whatever entries it currently holds
and always get the same answer for the same input.

Order returns the candidates sorted so that the first element is the first
to evict. Ties must be broken deterministically by key.
*/
type Policy interface {
	Order(cands []Candidate) []Candidate
}

// PolicyType is a simple identifier for supported eviction strategies.
type PolicyType string

const (
	// DampedLRU scores entries by recency scaled up by access frequency:
	// score = lastAccessed * (1 + accessCount/100). Lowest score goes first.
	// This is the default.
	DampedLRU PolicyType = "damped-lru"

	// LRU (Least Recently Used): Evicts the key that has NOT been accessed for the longest time.
	LRU PolicyType = "lru"

	// LFU (Least Frequently Used): Evicts the key that has been accessed the fewest times.
	// Recency breaks ties between equally used keys.
	LFU PolicyType = "lfu"

	// FIFO (First In First Out): Evicts the oldest written key, regardless of access.
	FIFO PolicyType = "fifo"
)

// ParsePolicyType validates a configured policy name. The empty string
// selects DampedLRU.
func ParsePolicyType(s string) (PolicyType, error) {
	switch PolicyType(s) {
	case "":
		return DampedLRU, nil
	case DampedLRU, LRU, LFU, FIFO:
		return PolicyType(s), nil
	default:
		return "", fmt.Errorf("unknown eviction policy %q", s)
	}
}

// NewEvictionPolicy is a small factory function.
// Given a PolicyType, it creates the correct eviction policy.
func NewEvictionPolicy(t PolicyType) Policy {
	switch t {
	case DampedLRU, "":
		return dampedLRU{}
	case LRU:
		return lru{}
	case LFU:
		return lfu{}
	case FIFO:
		return fifo{}
	default:
		panic("unknown eviction policy")
	}
}

// sortBy copies cands and sorts the copy with less, falling back to the key
// when less considers two candidates equal.
func sortBy(cands []Candidate, less func(a, b *Candidate) (bool, bool)) []Candidate {
	out := make([]Candidate, len(cands))
	copy(out, cands)
	sort.SliceStable(out, func(i, j int) bool {
		if lt, decided := less(&out[i], &out[j]); decided {
			return lt
		}
		return out[i].Key < out[j].Key
	})
	return out
}
