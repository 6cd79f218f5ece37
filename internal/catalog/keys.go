package catalog

import "sort"

// KeySet is a set of dataset keys.
type KeySet map[DatasetKey]struct{}

func NewKeySet(keys ...DatasetKey) KeySet {
	s := make(KeySet, len(keys))
	for _, k := range keys {
		s[k] = struct{}{}
	}
	return s
}

func (s KeySet) Add(k DatasetKey) {
	s[k] = struct{}{}
}

func (s KeySet) Has(k DatasetKey) bool {
	_, ok := s[k]
	return ok
}

func (s KeySet) Len() int {
	return len(s)
}

// Sorted returns the keys in lexical order.
func (s KeySet) Sorted() []DatasetKey {
	out := make([]DatasetKey, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// FindFailedKeys returns requested minus retrieved. Retrieved keys that were
// never requested are ignored.
func FindFailedKeys(requested, retrieved KeySet) KeySet {
	failed := make(KeySet)
	for k := range requested {
		if !retrieved.Has(k) {
			failed.Add(k)
		}
	}
	return failed
}
