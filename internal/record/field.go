package record

import (
	"fmt"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/relmap/internal/ir"
)

// Kind is the scalar type of a Field.
type Kind int

const (
	KindInt Kind = iota + 1
	KindUint
	KindText
	KindBool
	KindTime
)

// String returns the schema spelling of the kind.
func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindUint:
		return "uint"
	case KindText:
		return "text"
	case KindBool:
		return "bool"
	case KindTime:
		return "time"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind maps a schema spelling back to a Kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "int":
		return KindInt, nil
	case "uint":
		return KindUint, nil
	case "text", "string":
		return KindText, nil
	case "bool":
		return KindBool, nil
	case "time", "timestamp":
		return KindTime, nil
	default:
		return 0, fmt.Errorf("unknown field kind %q", s)
	}
}

// Handle is an opaque field identity assigned by an Index.
// The zero Handle means "not indexed".
type Handle uint32

// Field is a scalar leaf of a record.
type Field struct {
	name     string
	kind     Kind
	key      bool
	version  bool
	nullable bool
	compact  bool
	length   int

	value    ir.Value
	modified bool
	handle   Handle
}

// FieldOption configures a Field at construction.
type FieldOption func(*Field)

// Key marks the field as part of the record identity.
func Key() FieldOption { return func(f *Field) { f.key = true } }

// Version marks the field as the optimistic-lock counter.
func Version() FieldOption { return func(f *Field) { f.version = true } }

// Nullable allows the field to be stored as NULL.
func Nullable() FieldOption { return func(f *Field) { f.nullable = true } }

// Compact requests the narrowest storage the dialect offers.
func Compact() FieldOption { return func(f *Field) { f.compact = true } }

// Length sets the maximum length, in runes, of a text field.
func Length(n int) FieldOption { return func(f *Field) { f.length = n } }

// NewField creates a null field of the given kind.
func NewField(name string, kind Kind, opts ...FieldOption) *Field {
	f := &Field{name: name, kind: kind, value: ir.Null{}}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *Field) Name() string { return f.name }
func (f *Field) Kind() Kind { return f.kind }
func (f *Field) IsKey() bool { return f.key }
func (f *Field) IsVersion() bool { return f.version }
func (f *Field) Nullable() bool { return f.nullable }
func (f *Field) IsCompact() bool { return f.compact }
func (f *Field) Length() int { return f.length }
func (f *Field) Value() ir.Value { return f.value }
func (f *Field) IsNull() bool { return ir.IsNull(f.value) }
func (f *Field) Modified() bool { return f.modified }
func (f *Field) Handle() Handle { return f.handle }
func (f *Field) ClearModified() { f.modified = false }
func (f *Field) setHandle(h Handle) { f.handle = h }

// Set assigns v and marks the field modified. v must match the field kind;
// an Int is accepted for a uint field when it is not negative.
func (f *Field) Set(v ir.Value) error {
	cv, err := f.coerce(v)
	if err != nil {
		return err
	}
	f.value = cv
	f.modified = true
	return nil
}

// Load assigns v without marking the field modified. Read-back uses it.
func (f *Field) Load(v ir.Value) error {
	cv, err := f.coerce(v)
	if err != nil {
		return err
	}
	f.value = cv
	return nil
}

// SetNull makes the field null and marks it modified.
func (f *Field) SetNull() {
	f.value = ir.Null{}
	f.modified = true
}

func (f *Field) SetInt(n int64) error { return f.Set(ir.Int(n)) }
func (f *Field) SetUint(n uint64) error { return f.Set(ir.Uint(n)) }
func (f *Field) SetText(s string) error { return f.Set(ir.Text(s)) }
func (f *Field) SetBool(b bool) error { return f.Set(ir.Bool(b)) }
func (f *Field) SetTime(t time.Time) error { return f.Set(ir.NewTime(t)) }

// Int returns the value as int64. Null and non-integer kinds yield 0.
func (f *Field) Int() int64 {
	switch v := f.value.(type) {
	case ir.Int:
		return int64(v)
	case ir.Uint:
		return int64(v)
	}
	return 0
}

// Uint returns the value as uint64. Null and non-integer kinds yield 0.
func (f *Field) Uint() uint64 {
	switch v := f.value.(type) {
	case ir.Uint:
		return uint64(v)
	case ir.Int:
		return uint64(v)
	}
	return 0
}

// Text returns the value as a string; null yields "".
func (f *Field) Text() string {
	if v, ok := f.value.(ir.Text); ok {
		return string(v)
	}
	return ""
}

// Bool returns the value as a bool; null yields false.
func (f *Field) Bool() bool {
	if v, ok := f.value.(ir.Bool); ok {
		return bool(v)
	}
	return false
}

// Time returns the value as a time; null yields the zero time.
func (f *Field) Time() time.Time {
	if v, ok := f.value.(ir.Time); ok {
		return v.Time
	}
	return time.Time{}
}

// RuneLength returns the length of a text value in runes after NFC
// normalization, the unit length hints are expressed in.
func (f *Field) RuneLength() int {
	s, ok := f.value.(ir.Text)
	if !ok {
		return 0
	}
	return len([]rune(norm.NFC.String(string(s))))
}

// Accepts reports whether v may be assigned to f.
func (f *Field) Accepts(v ir.Value) bool {
	_, err := f.coerce(v)
	return err == nil
}

// Coerce returns v converted to the field kind, or an error.
func (f *Field) Coerce(v ir.Value) (ir.Value, error) {
	return f.coerce(v)
}

func (f *Field) coerce(v ir.Value) (ir.Value, error) {
	if ir.IsNull(v) {
		return ir.Null{}, nil
	}
	switch f.kind {
	case KindInt:
		switch val := v.(type) {
		case ir.Int:
			return val, nil
		case ir.Uint:
			if uint64(val) <= 1<<63-1 {
				return ir.Int(val), nil
			}
		}
	case KindUint:
		switch val := v.(type) {
		case ir.Uint:
			return val, nil
		case ir.Int:
			if val >= 0 {
				return ir.Uint(val), nil
			}
		}
	case KindText:
		if val, ok := v.(ir.Text); ok {
			return val, nil
		}
	case KindBool:
		if val, ok := v.(ir.Bool); ok {
			return val, nil
		}
	case KindTime:
		switch val := v.(type) {
		case ir.Time:
			return ir.NewTime(val.Time), nil
		case ir.Text:
			t, err := time.Parse(time.RFC3339Nano, string(val))
			if err == nil {
				return ir.NewTime(t), nil
			}
		}
	}
	return nil, ir.FieldError(ir.ErrCodeTypeMismatch, f.name, "cannot assign %T to %s field", v, f.kind)
}

// clone copies the field's schema and value; the handle is not copied.
func (f *Field) clone() *Field {
	c := *f
	c.handle = 0
	return &c
}
