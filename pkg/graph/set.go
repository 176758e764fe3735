package graph

import (
	"encoding/json"
	"sort"

	"followgraph/pkg/social"
)

// Set is an unordered set of user IDs. It encodes as a sorted JSON array.
type Set map[social.UserID]struct{}

// NewSet builds a set from ids.
func NewSet(ids ...social.UserID) Set {
	s := make(Set, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Add inserts id.
func (s Set) Add(id social.UserID) { s[id] = struct{}{} }

// Remove deletes id.
func (s Set) Remove(id social.UserID) { delete(s, id) }

// Has reports membership.
func (s Set) Has(id social.UserID) bool {
	_, ok := s[id]
	return ok
}

// Union adds every member of other.
func (s Set) Union(other Set) {
	for id := range other {
		s[id] = struct{}{}
	}
}

// AddAll inserts every id.
func (s Set) AddAll(ids []social.UserID) {
	for _, id := range ids {
		s[id] = struct{}{}
	}
}

// Sorted returns the members in ascending order.
func (s Set) Sorted() []social.UserID {
	out := make([]social.UserID, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (s Set) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

func (s *Set) UnmarshalJSON(data []byte) error {
	var ids []social.UserID
	if err := json.Unmarshal(data, &ids); err != nil {
		return err
	}
	*s = NewSet(ids...)
	return nil
}
