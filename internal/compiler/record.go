package compiler

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/relmap/internal/record"
)

// memberAttrs are the labels a detailed member struct may carry.
var memberAttrs = map[string]bool{
	"kind":     true,
	"record":   true,
	"array":    true,
	"key":      true,
	"version":  true,
	"nullable": true,
	"compact":  true,
	"length":   true,
	"lazy":     true,
}

// CompileRecords compiles every record under the top-level "record" struct,
// in declaration order.
//
//	record: Order: {
//		k:     {kind: "int", key: true}
//		v:     {kind: "int", version: true}
//		note:  {kind: "text", nullable: true, length: 40}
//		items: {array: {sku: "text", qty: int}}
//		tags:  {array: "text"}
//	}
func CompileRecords(v cue.Value) ([]*record.Spec, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	recordsVal := v.LookupPath(cue.ParsePath("record"))
	if !recordsVal.Exists() {
		return nil, nil
	}

	iter, err := recordsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var specs []*record.Spec
	for iter.Next() {
		spec, err := CompileRecord(iter.Value())
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// CompileRecord parses one record struct into a record.Spec. The record
// name is the last path selector of v:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`record: Customer: { id: {kind: "int", key: true} }`)
//	spec, err := CompileRecord(v.LookupPath(cue.ParsePath("record.Customer")))
func CompileRecord(v cue.Value) (*record.Spec, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	var name string
	if labels := v.Path().Selectors(); len(labels) > 0 {
		name = labels[len(labels)-1].String()
	}
	if name == "" {
		return nil, &CompileError{
			Field:   "record",
			Message: "record name is required",
			Pos:     v.Pos(),
		}
	}

	return compileMembers(name, v)
}

// compileMembers builds the spec for a struct of members.
func compileMembers(name string, v cue.Value) (*record.Spec, error) {
	if v.IncompleteKind() != cue.StructKind {
		return nil, &CompileError{
			Field:   name,
			Message: "record must be a struct of members",
			Pos:     v.Pos(),
		}
	}

	spec := record.NewSpec(name)
	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		m, err := compileMember(name+"."+iter.Label(), iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		spec.Members = append(spec.Members, m)
	}
	return spec, nil
}

// compileMember handles the three member shapes. A bare kind, either a
// kind name string or a CUE type, is shorthand for a plain field.
func compileMember(path, name string, v cue.Value) (record.MemberSpec, error) {
	if v.IncompleteKind() != cue.StructKind {
		kind, err := kindOf(path, v)
		if err != nil {
			return record.MemberSpec{}, err
		}
		return record.MemberSpec{
			Kind:  record.MemberField,
			Field: &record.FieldSpec{Name: name, Kind: kind},
		}, nil
	}

	if err := checkAttrs(path, v); err != nil {
		return record.MemberSpec{}, err
	}

	kindVal := v.LookupPath(cue.ParsePath("kind"))
	recordVal := v.LookupPath(cue.ParsePath("record"))
	arrayVal := v.LookupPath(cue.ParsePath("array"))

	shapes := 0
	for _, s := range []cue.Value{kindVal, recordVal, arrayVal} {
		if s.Exists() {
			shapes++
		}
	}
	if shapes != 1 {
		return record.MemberSpec{}, &CompileError{
			Field:   path,
			Message: "member needs exactly one of kind, record or array",
			Pos:     v.Pos(),
		}
	}

	switch {
	case kindVal.Exists():
		f, err := compileField(path, name, kindVal, v)
		if err != nil {
			return record.MemberSpec{}, err
		}
		return record.MemberSpec{Kind: record.MemberField, Field: f}, nil

	case recordVal.Exists():
		sub, err := compileMembers(name, recordVal)
		if err != nil {
			return record.MemberSpec{}, err
		}
		if sub.Lazy, err = boolAttr(v, "lazy"); err != nil {
			return record.MemberSpec{}, err
		}
		return record.MemberSpec{Kind: record.MemberRecord, Record: sub}, nil

	default:
		arr := &record.ArraySpec{Name: name}
		if arrayVal.IncompleteKind() == cue.StructKind {
			elem, err := compileMembers(name, arrayVal)
			if err != nil {
				return record.MemberSpec{}, err
			}
			arr.Element = elem
		} else {
			f, err := compileField(path, record.ScalarElement, arrayVal, v)
			if err != nil {
				return record.MemberSpec{}, err
			}
			arr.Scalar = f
		}
		return record.MemberSpec{Kind: record.MemberArray, Array: arr}, nil
	}
}

// compileField reads the kind from kindVal and the field flags from attrs.
func compileField(path, name string, kindVal, attrs cue.Value) (*record.FieldSpec, error) {
	kind, err := kindOf(path, kindVal)
	if err != nil {
		return nil, err
	}
	f := &record.FieldSpec{Name: name, Kind: kind}
	for _, flag := range []struct {
		label string
		dst   *bool
	}{
		{"key", &f.Key},
		{"version", &f.Version},
		{"nullable", &f.Nullable},
		{"compact", &f.Compact},
	} {
		if *flag.dst, err = boolAttr(attrs, flag.label); err != nil {
			return nil, err
		}
	}

	lengthVal := attrs.LookupPath(cue.ParsePath("length"))
	if lengthVal.Exists() {
		n, err := lengthVal.Int64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		f.Length = int(n)
	}
	return f, nil
}

// kindOf converts a kind name or a CUE type into a field kind.
// Floats are forbidden: no dialect stores them exactly.
func kindOf(path string, v cue.Value) (record.Kind, error) {
	switch v.IncompleteKind() {
	case cue.StringKind:
		if !v.IsConcrete() {
			return record.KindText, nil
		}
		s, err := v.String()
		if err != nil {
			return 0, formatCUEError(err)
		}
		if isFloatType(s) {
			return 0, floatError(path, v)
		}
		kind, err := record.ParseKind(s)
		if err != nil {
			return 0, &CompileError{Field: path, Message: err.Error(), Pos: v.Pos()}
		}
		return kind, nil
	case cue.IntKind:
		return record.KindInt, nil
	case cue.BoolKind:
		return record.KindBool, nil
	case cue.FloatKind, cue.NumberKind:
		return 0, floatError(path, v)
	default:
		return 0, &CompileError{
			Field:   path,
			Message: fmt.Sprintf("unsupported type kind: %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
}

func floatError(path string, v cue.Value) error {
	return &CompileError{
		Field:   path,
		Message: "float types are forbidden - use int instead",
		Pos:     v.Pos(),
	}
}

// boolAttr reads an optional boolean label, false when absent.
func boolAttr(v cue.Value, label string) (bool, error) {
	b := v.LookupPath(cue.ParsePath(label))
	if !b.Exists() {
		return false, nil
	}
	out, err := b.Bool()
	if err != nil {
		return false, formatCUEError(err)
	}
	return out, nil
}

func checkAttrs(path string, v cue.Value) error {
	iter, err := v.Fields()
	if err != nil {
		return formatCUEError(err)
	}
	for iter.Next() {
		if !memberAttrs[iter.Label()] {
			return &CompileError{
				Field:   path,
				Message: fmt.Sprintf("unknown member attribute %q", iter.Label()),
				Pos:     iter.Value().Pos(),
			}
		}
	}
	return nil
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
