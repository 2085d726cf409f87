package models

import "strings"

// pairSeparator joins the two member ids of a canonical pair key. Member
// ids must never contain it, or two distinct pairs could map to the same
// key; ValidPairMember is the guard and mutating operations enforce it.
const pairSeparator = "_"

// CanonicalPair returns the order-independent key for two user ids.
// Both parties address the same request/friendship row through this key
// regardless of who acts first, so uniqueness checks and row contention are
// always scoped to a single record per pair.
func CanonicalPair(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + pairSeparator + b
}

// ValidPairMember reports whether id can participate in a canonical pair
// key without making the key ambiguous.
func ValidPairMember(id string) bool {
	return id != "" && !strings.Contains(id, pairSeparator)
}

// SortPair returns the two ids in canonical (lexicographic) order.
func SortPair(a, b string) (string, string) {
	if a > b {
		return b, a
	}
	return a, b
}
