package record

import (
	"github.com/roach88/relmap/internal/ir"
)

// Entry describes one indexed field or array.
type Entry struct {
	Handle Handle
	Path   Path
	Field  *Field // nil for array entries
	Array  *Array // nil for field entries
}

// Index resolves field and array identities to paths.
//
// Building an index assigns every field and array of the record shape a
// Handle in one traversal. Fields inside arrays are indexed through the
// array's Schema element, so filters and sorts reference those fields.
// Lookups go through the handle, never through the value.
type Index struct {
	entries []Entry
	byPath  map[string]int
}

// NewIndex indexes r. Handles previously assigned by another index are
// overwritten.
func NewIndex(r *Record) *Index {
	ix := &Index{byPath: make(map[string]int)}
	ix.add(r, nil)
	return ix
}

func (ix *Index) add(r *Record, prefix Path) {
	for _, m := range r.Members() {
		switch m.Kind {
		case MemberField:
			p := prefix.Append(Step{Kind: StepField, Name: m.Field.Name(), Index: -1})
			h := ix.push(Entry{Path: p, Field: m.Field})
			m.Field.setHandle(h)
		case MemberRecord:
			ix.add(m.Record, prefix.Append(Step{Kind: StepRecord, Name: m.Record.Name(), Index: -1}))
		case MemberArray:
			p := prefix.Append(Step{Kind: StepArray, Name: m.Array.Name(), Index: -1})
			h := ix.push(Entry{Path: p, Array: m.Array})
			m.Array.setHandle(h)
			ix.add(m.Array.Schema(), p)
		}
	}
}

func (ix *Index) push(e Entry) Handle {
	e.Handle = Handle(len(ix.entries) + 1)
	ix.entries = append(ix.entries, e)
	ix.byPath[e.Path.Dotted()] = len(ix.entries) - 1
	return e.Handle
}

func (ix *Index) entry(h Handle) (Entry, bool) {
	if h == 0 || int(h) > len(ix.entries) {
		return Entry{}, false
	}
	return ix.entries[h-1], true
}

// Field resolves f to its entry. Fields that were not indexed by ix (or
// were re-indexed by another index since) do not resolve.
func (ix *Index) Field(f *Field) (Entry, error) {
	if f == nil {
		return Entry{}, ir.Errorf(ir.ErrCodeUnresolvedField, "nil field reference")
	}
	e, ok := ix.entry(f.Handle())
	if !ok || e.Field != f {
		return Entry{}, ir.FieldError(ir.ErrCodeUnresolvedField, f.Name(), "field is not part of the indexed record")
	}
	return e, nil
}

// Array resolves a to its entry.
func (ix *Index) Array(a *Array) (Entry, error) {
	if a == nil {
		return Entry{}, ir.Errorf(ir.ErrCodeUnresolvedField, "nil array reference")
	}
	e, ok := ix.entry(a.Handle())
	if !ok || e.Array != a {
		return Entry{}, ir.FieldError(ir.ErrCodeUnresolvedField, a.Name(), "array is not part of the indexed record")
	}
	return e, nil
}

// Lookup finds the entry for a dotted path such as "items.qty".
func (ix *Index) Lookup(dotted string) (Entry, bool) {
	i, ok := ix.byPath[dotted]
	if !ok {
		return Entry{}, false
	}
	return ix.entries[i], true
}

// Entries returns every entry in traversal order.
func (ix *Index) Entries() []Entry {
	return ix.entries
}
