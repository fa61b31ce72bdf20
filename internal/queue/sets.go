package queue

import "slices"

// CanonicalSetOrder fixes the order sets are presented in during the
// normal round. Ordering across sets never changes; ordering within a
// set is randomized once at auction start.
var CanonicalSetOrder = []string{
	"M1",  // marquee
	"M2",
	"BA1", // batters
	"AL1", // all-rounders
	"WK1", // wicketkeepers
	"FA1", // fast bowlers
	"SP1", // spinners
	"BA2",
	"AL2",
	"WK2",
	"FA2",
	"SP2",
}

// IsNormalRoundSet reports whether the set is part of the normal round.
// Players in any other set are only reachable in accelerated rounds.
func IsNormalRoundSet(set string) bool {
	return slices.Contains(CanonicalSetOrder, set)
}

// SetIndex returns the canonical position of a set, with unknown sets
// ranked after every canonical one. Used for presentation sorting.
func SetIndex(set string) int {
	if i := slices.Index(CanonicalSetOrder, set); i >= 0 {
		return i
	}
	return len(CanonicalSetOrder)
}

func nextSet(current string) (string, bool) {
	i := slices.Index(CanonicalSetOrder, current)
	if i < 0 || i+1 >= len(CanonicalSetOrder) {
		return "", false
	}
	return CanonicalSetOrder[i+1], true
}
