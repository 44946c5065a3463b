package compiler

import (
	"fmt"
	"regexp"

	"github.com/roach88/relmap/internal/record"
)

// Validation error codes (E100-E199)
const (
	// General validation errors (E100)
	ErrUnsupportedType = "E100" // unsupported value for validation

	// Record spec errors (E101-E112)
	ErrRecordNoMembers  = "E101" // record has no members
	ErrRecordNoKey      = "E102" // root record has no key field
	ErrDuplicateName    = "E103" // duplicate member name within a level
	ErrInvalidFieldKind = "E104" // unknown field kind
	ErrInvalidName      = "E105" // name is not a plain identifier
	ErrMultipleVersions = "E106" // more than one version field
	ErrVersionKind      = "E107" // version field is not int or uint
	ErrKeyInArray       = "E108" // key or version inside an array element
	ErrLazyArrayElement = "E109" // array element marked lazy
	ErrInvalidLength    = "E110" // negative length or length on a non-text field
	ErrArrayShape       = "E111" // array without exactly one element form
	ErrNullableKey      = "E112" // key field marked nullable
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate validates a compiled record spec against the schema rules.
// Returns all errors found (does not fail-fast).
func Validate(v any) []ValidationError {
	switch s := v.(type) {
	case *record.Spec:
		return validateSpec(s)
	case record.Spec:
		return validateSpec(&s)
	default:
		return []ValidationError{{
			Field:   "type",
			Message: fmt.Sprintf("unsupported type: %T", v),
			Code:    ErrUnsupportedType,
		}}
	}
}

func validateSpec(spec *record.Spec) []ValidationError {
	var errs []ValidationError
	versions := 0
	errs = append(errs, validateLevel(spec, spec.Name, false, &versions)...)

	var keys int
	for _, m := range spec.Members {
		if m.Kind == record.MemberField && m.Field.Key {
			keys++
		}
	}
	if keys == 0 {
		errs = append(errs, ValidationError{
			Field:   spec.Name,
			Message: "root record needs at least one key field",
			Code:    ErrRecordNoKey,
		})
	}
	return errs
}

// validateLevel checks one struct of members. inArray is true below an
// array element, where keys, versions and lazy flags are not allowed.
func validateLevel(spec *record.Spec, path string, inArray bool, versions *int) []ValidationError {
	var errs []ValidationError

	if !isValidName(spec.Name) {
		errs = append(errs, ValidationError{
			Field:   path,
			Message: fmt.Sprintf("invalid name %q", spec.Name),
			Code:    ErrInvalidName,
		})
	}
	if len(spec.Members) == 0 {
		errs = append(errs, ValidationError{
			Field:   path,
			Message: "record needs at least one member",
			Code:    ErrRecordNoMembers,
		})
	}
	if spec.Lazy && inArray {
		errs = append(errs, ValidationError{
			Field:   path,
			Message: "records inside array elements cannot be lazy",
			Code:    ErrLazyArrayElement,
		})
	}

	names := make(map[string]bool)
	for i, m := range spec.Members {
		var name string
		switch m.Kind {
		case record.MemberField:
			name = m.Field.Name
			errs = append(errs, validateField(m.Field, path+"."+name, inArray, versions)...)
		case record.MemberRecord:
			name = m.Record.Name
			errs = append(errs, validateLevel(m.Record, path+"."+name, inArray, versions)...)
		case record.MemberArray:
			name = m.Array.Name
			errs = append(errs, validateArray(m.Array, path+"."+name, versions)...)
		default:
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("%s.members[%d]", path, i),
				Message: fmt.Sprintf("unknown member kind %d", m.Kind),
				Code:    ErrUnsupportedType,
			})
			continue
		}

		if names[name] {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("%s.members[%d]", path, i),
				Message: fmt.Sprintf("duplicate member name: %q", name),
				Code:    ErrDuplicateName,
			})
		}
		names[name] = true
	}
	return errs
}

func validateArray(a *record.ArraySpec, path string, versions *int) []ValidationError {
	var errs []ValidationError
	if !isValidName(a.Name) {
		errs = append(errs, ValidationError{
			Field:   path,
			Message: fmt.Sprintf("invalid name %q", a.Name),
			Code:    ErrInvalidName,
		})
	}
	switch {
	case (a.Element == nil) == (a.Scalar == nil):
		errs = append(errs, ValidationError{
			Field:   path,
			Message: "array needs exactly one of an element record or a scalar kind",
			Code:    ErrArrayShape,
		})
	case a.Element != nil:
		if a.Element.Lazy {
			errs = append(errs, ValidationError{
				Field:   path,
				Message: "array elements cannot be lazy",
				Code:    ErrLazyArrayElement,
			})
		}
		elem := *a.Element
		elem.Lazy = false
		errs = append(errs, validateLevel(&elem, path, true, versions)...)
	default:
		errs = append(errs, validateField(a.Scalar, path+"."+record.ScalarElement, true, versions)...)
	}
	return errs
}

func validateField(f *record.FieldSpec, path string, inArray bool, versions *int) []ValidationError {
	var errs []ValidationError

	if f.Name != record.ScalarElement && !isValidName(f.Name) {
		errs = append(errs, ValidationError{
			Field:   path,
			Message: fmt.Sprintf("invalid name %q", f.Name),
			Code:    ErrInvalidName,
		})
	}
	if f.Kind < record.KindInt || f.Kind > record.KindTime {
		errs = append(errs, ValidationError{
			Field:   path,
			Message: fmt.Sprintf("invalid kind %v", f.Kind),
			Code:    ErrInvalidFieldKind,
		})
	}

	if (f.Key || f.Version) && inArray {
		errs = append(errs, ValidationError{
			Field:   path,
			Message: "key and version fields are not allowed inside array elements",
			Code:    ErrKeyInArray,
		})
	}
	if f.Key && f.Nullable {
		errs = append(errs, ValidationError{
			Field:   path,
			Message: "key fields cannot be nullable",
			Code:    ErrNullableKey,
		})
	}
	if f.Version {
		*versions++
		if *versions > 1 {
			errs = append(errs, ValidationError{
				Field:   path,
				Message: "at most one version field per record",
				Code:    ErrMultipleVersions,
			})
		}
		if f.Kind != record.KindInt && f.Kind != record.KindUint {
			errs = append(errs, ValidationError{
				Field:   path,
				Message: fmt.Sprintf("version field must be int or uint, got %v", f.Kind),
				Code:    ErrVersionKind,
			})
		}
	}

	if f.Length < 0 || (f.Length > 0 && f.Kind != record.KindText) {
		errs = append(errs, ValidationError{
			Field:   path,
			Message: "length must be positive and only applies to text fields",
			Code:    ErrInvalidLength,
		})
	}
	return errs
}

// namePattern matches names usable as table and column identifiers.
var namePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

func isValidName(name string) bool {
	return namePattern.MatchString(name)
}

// isFloatType checks if a kind name represents a float type.
func isFloatType(t string) bool {
	floatTypes := map[string]bool{
		"float":   true,
		"float32": true,
		"float64": true,
		"number":  true,
		"double":  true,
	}
	return floatTypes[t]
}
