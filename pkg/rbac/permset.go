package rbac

import (
	"encoding/json"
	"sort"
)

// PermissionSet is a set of permission ids
type PermissionSet map[string]struct{}

// NewPermissionSet builds a set from ids, ignoring duplicates
func NewPermissionSet(ids ...string) PermissionSet {
	s := make(PermissionSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Has reports whether id is in the set
func (s PermissionSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// HasAll reports whether every id is in the set
func (s PermissionSet) HasAll(ids ...string) bool {
	for _, id := range ids {
		if !s.Has(id) {
			return false
		}
	}
	return true
}

// HasAny reports whether at least one id is in the set
func (s PermissionSet) HasAny(ids ...string) bool {
	for _, id := range ids {
		if s.Has(id) {
			return true
		}
	}
	return false
}

// Len returns the number of ids
func (s PermissionSet) Len() int {
	return len(s)
}

// Clone returns an independent copy. The clone of a nil set is empty, not nil.
func (s PermissionSet) Clone() PermissionSet {
	c := make(PermissionSet, len(s))
	for id := range s {
		c[id] = struct{}{}
	}
	return c
}

// Slice returns the ids in sorted order
func (s PermissionSet) Slice() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// MarshalJSON encodes the set as a sorted array
func (s PermissionSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Slice())
}

// UnmarshalJSON decodes an array of ids
func (s *PermissionSet) UnmarshalJSON(data []byte) error {
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return err
	}
	*s = NewPermissionSet(ids...)
	return nil
}
