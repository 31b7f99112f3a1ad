package permission

import "sort"

// Set maps capability keys to grants. A missing key is the same as false.
type Set map[string]bool

// Has reports whether capability is granted.
func (s Set) Has(capability string) bool {
	return s[capability]
}

// Granted returns the granted capability keys in sorted order.
func (s Set) Granted() []string {
	out := make([]string, 0, len(s))
	for k, v := range s {
		if v {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// Clone returns an independent copy of s. Clone of a nil set is an empty set.
func (s Set) Clone() Set {
	out := make(Set, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Empty reports whether s carries no entries at all. A map holding only
// false grants is not empty.
func (s Set) Empty() bool {
	return len(s) == 0
}
