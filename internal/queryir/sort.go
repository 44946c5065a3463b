package queryir

import "github.com/roach88/relmap/internal/record"

// Direction is a sort direction.
type Direction int

const (
	Asc Direction = iota + 1
	Desc
)

func (d Direction) String() string {
	if d == Desc {
		return "DESC"
	}
	return "ASC"
}

// SortKey is one sort entry. Exactly one of Field and Array is set; sorting
// by an array sorts by its element index.
type SortKey struct {
	Field *record.Field
	Array *record.Array
	Dir   Direction
}

// SortSpec is an insertion-ordered set of sort keys. A key keeps the
// position of its first declaration; declaring it again only changes its
// direction.
type SortSpec struct {
	keys []SortKey
}

// NewSort returns an empty sort spec.
func NewSort() *SortSpec {
	return &SortSpec{}
}

// By adds or redirects a field key.
func (s *SortSpec) By(f *record.Field, dir Direction) *SortSpec {
	for i := range s.keys {
		if s.keys[i].Field == f && f != nil {
			s.keys[i].Dir = dir
			return s
		}
	}
	s.keys = append(s.keys, SortKey{Field: f, Dir: dir})
	return s
}

// ByArray adds or redirects an array key.
func (s *SortSpec) ByArray(a *record.Array, dir Direction) *SortSpec {
	for i := range s.keys {
		if s.keys[i].Array == a && a != nil {
			s.keys[i].Dir = dir
			return s
		}
	}
	s.keys = append(s.keys, SortKey{Array: a, Dir: dir})
	return s
}

// Keys returns the keys in declaration order.
func (s *SortSpec) Keys() []SortKey {
	if s == nil {
		return nil
	}
	return s.keys
}

// Len returns the number of keys.
func (s *SortSpec) Len() int {
	if s == nil {
		return 0
	}
	return len(s.keys)
}
