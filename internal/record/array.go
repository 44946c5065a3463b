package record

import (
	"github.com/roach88/relmap/internal/ir"
)

// ScalarElement is the field name used by single-value array elements.
const ScalarElement = "value"

// Array is an ordered sequence of element records.
//
// A nil element is a hole: it exists in the sequence but holds nothing and
// is deleted, not written, on save. InitialSize is the size observed at the
// last load or save; the difference to Len drives detail deletes.
type Array struct {
	name    string
	newElem func() *Record
	scalar  bool
	elems   []*Record
	initial int
	schema  *Record
	handle  Handle
}

// NewArray creates an array whose elements are built by newElem.
func NewArray(name string, newElem func() *Record) *Array {
	return &Array{name: name, newElem: newElem}
}

// NewScalarArray creates an array of single-field elements of the given kind.
func NewScalarArray(name string, kind Kind, opts ...FieldOption) *Array {
	a := NewArray(name, func() *Record {
		r := New(name)
		r.AddField(NewField(ScalarElement, kind, opts...))
		return r
	})
	a.scalar = true
	return a
}

func (a *Array) Name() string { return a.name }
func (a *Array) Len() int { return len(a.elems) }
func (a *Array) InitialSize() int { return a.initial }
func (a *Array) IsScalar() bool { return a.scalar }
func (a *Array) Handle() Handle { return a.handle }

// At returns the element at i, or nil for a hole or an index out of range.
func (a *Array) At(i int) *Record {
	if i < 0 || i >= len(a.elems) {
		return nil
	}
	return a.elems[i]
}

// NewElement builds a detached element of the array's shape.
func (a *Array) NewElement() *Record {
	return a.newElem()
}

// Schema returns a cached element used for table layout and for field
// references into the array (filters, sorts). It never holds data.
func (a *Array) Schema() *Record {
	if a.schema == nil {
		a.schema = a.newElem()
	}
	return a.schema
}

// Append adds a new element at the end and returns it.
func (a *Array) Append() *Record {
	e := a.newElem()
	a.elems = append(a.elems, e)
	return e
}

// AppendValue adds a scalar element holding v.
func (a *Array) AppendValue(v ir.Value) error {
	e := a.Append()
	return e.Field(ScalarElement).Set(v)
}

// Ensure returns the element at i, creating it (and growing the array) when
// it is a hole or beyond the end.
func (a *Array) Ensure(i int) (*Record, error) {
	if i < 0 {
		return nil, ir.Errorf(ir.ErrCodeIndexRange, "negative index %d in %s", i, a.name)
	}
	if i >= len(a.elems) {
		a.Resize(i + 1)
	}
	if a.elems[i] == nil {
		a.elems[i] = a.newElem()
	}
	return a.elems[i], nil
}

// Set replaces the element at i. A nil element makes a hole.
func (a *Array) Set(i int, e *Record) error {
	if i < 0 || i >= len(a.elems) {
		return ir.Errorf(ir.ErrCodeIndexRange, "index %d out of range [0,%d) in %s", i, len(a.elems), a.name)
	}
	a.elems[i] = e
	return nil
}

// SetNull turns the element at i into a hole.
func (a *Array) SetNull(i int) error {
	return a.Set(i, nil)
}

// Resize grows the array with holes or truncates it to n elements.
func (a *Array) Resize(n int) {
	if n < 0 {
		n = 0
	}
	if n <= len(a.elems) {
		clear(a.elems[n:])
		a.elems = a.elems[:n]
		return
	}
	a.elems = append(a.elems, make([]*Record, n-len(a.elems))...)
}

// MarkLoaded records the current size as the stored size.
func (a *Array) MarkLoaded() {
	a.initial = len(a.elems)
}

// Values returns the scalar values of a scalar array; holes yield Null.
func (a *Array) Values() []ir.Value {
	out := make([]ir.Value, len(a.elems))
	for i, e := range a.elems {
		if e == nil {
			out[i] = ir.Null{}
			continue
		}
		out[i] = e.Field(ScalarElement).Value()
	}
	return out
}

func (a *Array) setHandle(h Handle) { a.handle = h }

func (a *Array) clone() *Array {
	c := &Array{name: a.name, newElem: a.newElem, scalar: a.scalar, initial: a.initial}
	c.elems = make([]*Record, len(a.elems))
	for i, e := range a.elems {
		c.elems[i] = e.Clone()
	}
	return c
}
