package record

import (
	"fmt"
)

// FieldSpec describes a field in a record schema.
type FieldSpec struct {
	Name     string
	Kind     Kind
	Key      bool
	Version  bool
	Nullable bool
	Compact  bool
	Length   int
}

// ArraySpec describes an array member. Exactly one of Element and Scalar is set.
type ArraySpec struct {
	Name    string
	Element *Spec
	Scalar  *FieldSpec
}

// MemberSpec is the schema form of a Member.
type MemberSpec struct {
	Kind   MemberKind
	Field  *FieldSpec
	Record *Spec
	Array  *ArraySpec
}

// Spec is a record schema. New builds fresh, empty records from it.
type Spec struct {
	Name    string
	Lazy    bool
	Members []MemberSpec
}

// Field appends a field member and returns the spec for chaining.
func (s *Spec) Field(name string, kind Kind, opts ...FieldOption) *Spec {
	f := NewField(name, kind, opts...)
	s.Members = append(s.Members, MemberSpec{Kind: MemberField, Field: &FieldSpec{
		Name: name, Kind: kind, Key: f.key, Version: f.version,
		Nullable: f.nullable, Compact: f.compact, Length: f.length,
	}})
	return s
}

// Record appends a sub-record member.
func (s *Spec) Record(sub *Spec) *Spec {
	s.Members = append(s.Members, MemberSpec{Kind: MemberRecord, Record: sub})
	return s
}

// Array appends an array of records.
func (s *Spec) Array(name string, elem *Spec) *Spec {
	s.Members = append(s.Members, MemberSpec{Kind: MemberArray, Array: &ArraySpec{Name: name, Element: elem}})
	return s
}

// ScalarArray appends an array of scalars.
func (s *Spec) ScalarArray(name string, kind Kind, opts ...FieldOption) *Spec {
	f := NewField(ScalarElement, kind, opts...)
	s.Members = append(s.Members, MemberSpec{Kind: MemberArray, Array: &ArraySpec{Name: name, Scalar: &FieldSpec{
		Name: ScalarElement, Kind: kind, Nullable: f.nullable, Compact: f.compact, Length: f.length,
	}}})
	return s
}

// NewSpec starts a record schema.
func NewSpec(name string) *Spec {
	return &Spec{Name: name}
}

// New builds an empty record of this shape.
func (s *Spec) New() *Record {
	r := New(s.Name).SetLazy(s.Lazy)
	for _, m := range s.Members {
		switch m.Kind {
		case MemberField:
			r.AddField(m.Field.build())
		case MemberRecord:
			r.AddRecord(m.Record.New())
		case MemberArray:
			a := m.Array
			if a.Scalar != nil {
				r.AddArray(NewScalarArray(a.Name, a.Scalar.Kind, a.Scalar.options()...))
			} else {
				r.AddArray(NewArray(a.Name, a.Element.New))
			}
		}
	}
	return r
}

func (f *FieldSpec) options() []FieldOption {
	var opts []FieldOption
	if f.Key {
		opts = append(opts, Key())
	}
	if f.Version {
		opts = append(opts, Version())
	}
	if f.Nullable {
		opts = append(opts, Nullable())
	}
	if f.Compact {
		opts = append(opts, Compact())
	}
	if f.Length > 0 {
		opts = append(opts, Length(f.Length))
	}
	return opts
}

func (f *FieldSpec) build() *Field {
	return NewField(f.Name, f.Kind, f.options()...)
}

// Validate checks the schema rules: unique member names per level, at most
// one version field of an integer kind, keys outside arrays only, and no
// lazy flags on array elements.
func (s *Spec) Validate() error {
	return s.validate(s.Name, true, new(int))
}

func (s *Spec) validate(path string, root bool, versions *int) error {
	seen := make(map[string]bool)
	for _, m := range s.Members {
		var name string
		switch m.Kind {
		case MemberField:
			name = m.Field.Name
			if m.Field.Version {
				*versions++
				if *versions > 1 {
					return fmt.Errorf("%s.%s: more than one version field", path, name)
				}
				if m.Field.Kind != KindInt && m.Field.Kind != KindUint {
					return fmt.Errorf("%s.%s: version field must be int or uint", path, name)
				}
				if !root {
					return fmt.Errorf("%s.%s: version field inside an array element", path, name)
				}
			}
			if m.Field.Key && !root {
				return fmt.Errorf("%s.%s: key field inside an array element", path, name)
			}
		case MemberRecord:
			name = m.Record.Name
			if err := m.Record.validate(path+"."+name, root, versions); err != nil {
				return err
			}
		case MemberArray:
			name = m.Array.Name
			if (m.Array.Element == nil) == (m.Array.Scalar == nil) {
				return fmt.Errorf("%s.%s: array needs exactly one of element or scalar", path, name)
			}
			if m.Array.Element != nil {
				if m.Array.Element.Lazy {
					return fmt.Errorf("%s.%s: array elements cannot be lazy", path, name)
				}
				if err := m.Array.Element.validate(path+"."+name, false, versions); err != nil {
					return err
				}
			}
		default:
			return fmt.Errorf("%s: member with unknown kind %d", path, m.Kind)
		}
		if name == "" {
			return fmt.Errorf("%s: member without a name", path)
		}
		if seen[name] {
			return fmt.Errorf("%s.%s: duplicate member", path, name)
		}
		seen[name] = true
	}
	return nil
}
