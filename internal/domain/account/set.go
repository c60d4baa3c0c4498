package account

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Set is the canonical form of every account collection. Stored records may
// carry a set either as a list or as a keyed map; both decode into a Set.
type Set struct {
	items map[string]struct{}
}

// NewSet builds a set from values, dropping blanks and duplicates.
func NewSet(values ...string) Set {
	s := Set{items: make(map[string]struct{}, len(values))}
	for _, v := range values {
		s.Add(v)
	}
	return s
}

// Add inserts v and reports whether it was absent.
func (s *Set) Add(v string) bool {
	if v == "" {
		return false
	}
	if s.items == nil {
		s.items = make(map[string]struct{})
	}
	if _, ok := s.items[v]; ok {
		return false
	}
	s.items[v] = struct{}{}
	return true
}

func (s Set) Has(v string) bool {
	_, ok := s.items[v]
	return ok
}

func (s Set) Len() int {
	return len(s.items)
}

// Values returns the members in sorted order.
func (s Set) Values() []string {
	out := make([]string, 0, len(s.items))
	for v := range s.items {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// Missing returns the values not present in the set, preserving input order.
func (s Set) Missing(values []string) []string {
	var out []string
	for _, v := range values {
		if !s.Has(v) {
			out = append(out, v)
		}
	}
	return out
}

// ContainsAll reports whether every value is a member.
func (s Set) ContainsAll(values []string) bool {
	return len(s.Missing(values)) == 0
}

func (s Set) Clone() Set {
	return NewSet(s.Values()...)
}

func (s Set) Equal(other Set) bool {
	if s.Len() != other.Len() {
		return false
	}
	for v := range s.items {
		if !other.Has(v) {
			return false
		}
	}
	return true
}

func (s Set) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Values())
}

func (s *Set) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	norm, err := Normalize(raw)
	if err != nil {
		return err
	}
	*s = norm
	return nil
}

// Normalize converts any persisted representation of a set into a Set.
// Lists contribute their string elements. Keyed maps contribute their string
// values, or their keys when the value is a boolean true flag.
func Normalize(raw interface{}) (Set, error) {
	out := NewSet()
	switch v := raw.(type) {
	case nil:
		return out, nil
	case []string:
		for _, item := range v {
			out.Add(item)
		}
	case []interface{}:
		for _, item := range v {
			if str, ok := item.(string); ok {
				out.Add(str)
			}
		}
	case map[string]interface{}:
		for key, item := range v {
			switch val := item.(type) {
			case string:
				out.Add(val)
			case bool:
				if val {
					out.Add(key)
				}
			}
		}
	case map[string]string:
		for _, item := range v {
			out.Add(item)
		}
	default:
		return out, fmt.Errorf("unsupported set representation %T", raw)
	}
	return out, nil
}
