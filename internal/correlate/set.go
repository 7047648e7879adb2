package correlate

import "sort"

// stringSet is an insertion-ordered set of strings.
type stringSet struct {
	index map[string]struct{}
	items []string
}

func newStringSet() *stringSet {
	return &stringSet{index: make(map[string]struct{})}
}

// Add inserts v if absent and reports whether it was added.
func (s *stringSet) Add(v string) bool {
	if _, ok := s.index[v]; ok {
		return false
	}
	s.index[v] = struct{}{}
	s.items = append(s.items, v)
	return true
}

// Len returns the number of distinct members.
func (s *stringSet) Len() int {
	return len(s.items)
}

// Sorted returns a sorted copy of the members.
func (s *stringSet) Sorted() []string {
	out := make([]string, len(s.items))
	copy(out, s.items)
	sort.Strings(out)
	return out
}
