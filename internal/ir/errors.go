package ir

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes mapping errors.
type ErrorCode string

const (
	// Structural: the request itself is malformed.
	ErrCodeMalformedFilter ErrorCode = "MALFORMED_FILTER"
	ErrCodeMissingKey      ErrorCode = "MISSING_KEY"
	ErrCodeIndexRange      ErrorCode = "INDEX_RANGE"
	ErrCodeUnresolvedField ErrorCode = "UNRESOLVED_FIELD"
	ErrCodeTypeMismatch    ErrorCode = "TYPE_MISMATCH"
	ErrCodeUnsupported     ErrorCode = "UNSUPPORTED"
	ErrCodeSchemaMismatch  ErrorCode = "SCHEMA_MISMATCH"

	// Conflict: the data cannot be stored as is.
	ErrCodeVersionOverflow ErrorCode = "VERSION_OVERFLOW"
	ErrCodeValueTooLong    ErrorCode = "VALUE_TOO_LONG"
	ErrCodeDuplicateKey    ErrorCode = "DUPLICATE_KEY"

	// ErrCodeLockConflict means a version-checked write matched no row.
	ErrCodeLockConflict     ErrorCode = "LOCK_CONFLICT"
	ErrCodeNotFound         ErrorCode = "NOT_FOUND"
	ErrCodeInvalidSchema    ErrorCode = "INVALID_SCHEMA"
	ErrCodeCursorExhausted  ErrorCode = "CURSOR_EXHAUSTED"
	ErrCodeUnexpectedResult ErrorCode = "UNEXPECTED_RESULT"
)

// Error is the typed error raised by compilers and the store.
//
// Path names the offending field ("items[1].qty") when one is known.
// Pos is the token position for filter errors, -1 otherwise.
type Error struct {
	Code    ErrorCode
	Message string
	Path    string
	Pos     int
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Path != "" {
		msg += fmt.Sprintf(" (field=%s)", e.Path)
	}
	if e.Pos >= 0 {
		msg += fmt.Sprintf(" (token=%d)", e.Pos)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by code, so errors.Is(err, ir.ErrLockConflict) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code && t.Message == "" && t.Path == ""
}

// Sentinels for errors.Is comparisons.
var (
	ErrMalformedFilter = &Error{Code: ErrCodeMalformedFilter, Pos: -1}
	ErrMissingKey      = &Error{Code: ErrCodeMissingKey, Pos: -1}
	ErrIndexRange      = &Error{Code: ErrCodeIndexRange, Pos: -1}
	ErrUnresolvedField = &Error{Code: ErrCodeUnresolvedField, Pos: -1}
	ErrTypeMismatch    = &Error{Code: ErrCodeTypeMismatch, Pos: -1}
	ErrUnsupported     = &Error{Code: ErrCodeUnsupported, Pos: -1}
	ErrVersionOverflow = &Error{Code: ErrCodeVersionOverflow, Pos: -1}
	ErrValueTooLong    = &Error{Code: ErrCodeValueTooLong, Pos: -1}
	ErrDuplicateKey    = &Error{Code: ErrCodeDuplicateKey, Pos: -1}
	ErrLockConflict    = &Error{Code: ErrCodeLockConflict, Pos: -1}
	ErrNotFound        = &Error{Code: ErrCodeNotFound, Pos: -1}
	ErrSchemaMismatch  = &Error{Code: ErrCodeSchemaMismatch, Pos: -1}
	ErrInvalidSchema   = &Error{Code: ErrCodeInvalidSchema, Pos: -1}

	ErrCursorExhausted  = &Error{Code: ErrCodeCursorExhausted, Pos: -1}
	ErrUnexpectedResult = &Error{Code: ErrCodeUnexpectedResult, Pos: -1}
)

// Errorf creates an *Error with a formatted message.
func Errorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Pos: -1}
}

// FieldError creates an *Error that names the offending field path.
func FieldError(code ErrorCode, path string, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Path: path, Pos: -1}
}

// FilterError creates a MALFORMED_FILTER error at token position pos.
func FilterError(pos int, format string, args ...any) *Error {
	return &Error{Code: ErrCodeMalformedFilter, Message: fmt.Sprintf(format, args...), Pos: pos}
}

// Wrap attaches a cause to a new *Error.
func Wrap(code ErrorCode, err error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Pos: -1, Err: err}
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsStructural reports whether err is a structural (caller) error.
// Uses errors.As to handle wrapped errors.
func IsStructural(err error) bool {
	switch CodeOf(err) {
	case ErrCodeMalformedFilter, ErrCodeMissingKey, ErrCodeIndexRange, ErrCodeUnresolvedField,
		ErrCodeTypeMismatch, ErrCodeUnsupported, ErrCodeSchemaMismatch, ErrCodeInvalidSchema,
		ErrCodeCursorExhausted:
		return true
	}
	return false
}

// IsConflict reports whether err is a data-integrity conflict: version
// overflow, over-long value or duplicate key.
func IsConflict(err error) bool {
	switch CodeOf(err) {
	case ErrCodeVersionOverflow, ErrCodeValueTooLong, ErrCodeDuplicateKey:
		return true
	}
	return false
}

// IsLockConflict reports whether err is an optimistic-lock failure.
func IsLockConflict(err error) bool {
	return CodeOf(err) == ErrCodeLockConflict
}

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool {
	return CodeOf(err) == ErrCodeNotFound
}
