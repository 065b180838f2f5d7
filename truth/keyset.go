package truth

import (
	"encoding/json"
	"sort"
)

// KeySet is a set of entity keys.
type KeySet map[string]struct{}

// NewKeySet builds a set from keys, dropping duplicates.
func NewKeySet(keys ...string) KeySet {
	s := make(KeySet, len(keys))
	for _, k := range keys {
		s[k] = struct{}{}
	}
	return s
}

// Has reports whether k is in the set.
func (s KeySet) Has(k string) bool {
	_, ok := s[k]
	return ok
}

// Len returns the number of keys.
func (s KeySet) Len() int {
	return len(s)
}

// Sorted returns the keys in ascending order.
func (s KeySet) Sorted() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Equal reports whether both sets hold the same keys.
func (s KeySet) Equal(o KeySet) bool {
	if len(s) != len(o) {
		return false
	}
	for k := range s {
		if !o.Has(k) {
			return false
		}
	}
	return true
}

// Intersection returns the number of keys present in both sets.
func (s KeySet) Intersection(o KeySet) int {
	small, large := s, o
	if len(large) < len(small) {
		small, large = large, small
	}
	n := 0
	for k := range small {
		if large.Has(k) {
			n++
		}
	}
	return n
}

// MarshalJSON encodes the set as a sorted array.
func (s KeySet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

// UnmarshalJSON decodes an array of keys.
func (s *KeySet) UnmarshalJSON(data []byte) error {
	var keys []string
	if err := json.Unmarshal(data, &keys); err != nil {
		return err
	}
	*s = NewKeySet(keys...)
	return nil
}
