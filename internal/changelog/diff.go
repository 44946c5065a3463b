package changelog

import (
	"strconv"
	"strings"

	"github.com/roach88/relmap/internal/ir"
	"github.com/roach88/relmap/internal/record"
)

// Kind tells what an entry records.
type Kind int

const (
	// KindValue is a field whose value or null-state changed.
	KindValue Kind = iota + 1
	// KindSize is an array whose length changed. Old and New hold the
	// lengths in decimal.
	KindSize
)

// String returns "value" or "size".
func (k Kind) String() string {
	if k == KindSize {
		return "size"
	}
	return "value"
}

// Entry is one change of a record.
//
// Escaped is set on entries produced by Chunk: their text has backslashes
// doubled and a chunk ending in an unescaped backslash continues in the
// next entry for the same path.
type Entry struct {
	Path    string
	Kind    Kind
	Old     string
	New     string
	OldNull bool
	NewNull bool
	Escaped bool
}

type snapshot struct {
	fields map[string]ir.Value
	arrays map[string]int
	order  []string
}

func capture(r *record.Record) (snapshot, error) {
	s := snapshot{fields: map[string]ir.Value{}, arrays: map[string]int{}}
	if r == nil {
		return s, nil
	}
	err := record.Walk(r, record.Visitor{
		Field: func(p record.Path, f *record.Field) error {
			s.fields[p.String()] = f.Value()
			s.order = append(s.order, p.String())
			return nil
		},
		EnterArray: func(p record.Path, a *record.Array) (bool, error) {
			s.arrays[p.String()] = a.Len()
			s.order = append(s.order, p.String())
			return true, nil
		},
	})
	return s, err
}

// cleared returns the entries for an element of before that is now a hole:
// its non-null fields go to null and its non-empty arrays to size 0.
func (s snapshot) cleared(elem string) []Entry {
	var out []Entry
	prefix := elem + "."
	for _, path := range s.order {
		if !strings.HasPrefix(path, prefix) {
			continue
		}
		if n, ok := s.arrays[path]; ok {
			if n > 0 {
				out = append(out, Entry{Path: path, Kind: KindSize, Old: strconv.Itoa(n), New: "0"})
			}
			continue
		}
		if old := s.fields[path]; !ir.IsNull(old) {
			out = append(out, Entry{Path: path, Kind: KindValue, Old: ir.Format(old), NewNull: true})
		}
	}
	return out
}

// Diff compares after with before and returns the changes in after's
// member order. A nil before is the empty baseline: every field null and
// every array empty.
//
// Elements that exist only in before because the array shrank are covered
// by the array's size entry. An element that became a hole reports its
// former fields as set to null.
func Diff(before, after *record.Record) ([]Entry, error) {
	if after == nil {
		return nil, ir.Errorf(ir.ErrCodeUnsupported, "diff needs a current record")
	}
	if before != nil && before.Name() != after.Name() {
		return nil, ir.Errorf(ir.ErrCodeSchemaMismatch, "cannot diff %s against %s", after.Name(), before.Name())
	}
	base, err := capture(before)
	if err != nil {
		return nil, err
	}

	var out []Entry
	err = record.Walk(after, record.Visitor{
		Field: func(p record.Path, f *record.Field) error {
			path := p.String()
			old, ok := base.fields[path]
			if !ok {
				old = ir.Null{}
			}
			cur := f.Value()
			oldNull, newNull := ir.IsNull(old), ir.IsNull(cur)
			if oldNull == newNull && (newNull || ir.Equal(old, cur)) {
				return nil
			}
			out = append(out, Entry{
				Path:    path,
				Kind:    KindValue,
				Old:     ir.Format(old),
				New:     ir.Format(cur),
				OldNull: oldNull,
				NewNull: newNull,
			})
			return nil
		},
		EnterArray: func(p record.Path, a *record.Array) (bool, error) {
			path := p.String()
			if old := base.arrays[path]; old != a.Len() {
				out = append(out, Entry{
					Path: path,
					Kind: KindSize,
					Old:  strconv.Itoa(old),
					New:  strconv.Itoa(a.Len()),
				})
			}
			return true, nil
		},
		Element: func(p record.Path, _ *record.Array, _ int, e *record.Record) (bool, error) {
			if e == nil {
				out = append(out, base.cleared(p.String())...)
			}
			return true, nil
		},
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
