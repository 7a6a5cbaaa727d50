package index

import (
	"maps"
	"slices"
)

// IDSet is a set of task ids.
type IDSet map[string]struct{}

func NewIDSet(ids ...string) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s IDSet) Add(id string) {
	s[id] = struct{}{}
}

func (s IDSet) Remove(id string) {
	delete(s, id)
}

func (s IDSet) Len() int {
	return len(s)
}

func (s IDSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

func (s IDSet) Clone() IDSet {
	return maps.Clone(s)
}

// Sorted returns the ids in ascending order.
func (s IDSet) Sorted() []string {
	return slices.Sorted(maps.Keys(s))
}

// Intersect returns a new set with the ids present in both a and b.
// It walks the smaller set and probes the larger one.
func Intersect(a, b IDSet) IDSet {
	if len(a) > len(b) {
		a, b = b, a
	}
	res := make(IDSet, len(a))
	for id := range a {
		if b.Has(id) {
			res[id] = struct{}{}
		}
	}
	return res
}

// UnionInto adds every id of src to dst.
func UnionInto(dst, src IDSet) {
	for id := range src {
		dst[id] = struct{}{}
	}
}
