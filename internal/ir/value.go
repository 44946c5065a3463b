package ir

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Value is a sealed interface over the scalar values a record field can hold.
// Only Null, Int, Uint, Text, Bool and Time implement it.
// NO floats - every numeric column is an exact integer.
type Value interface {
	irValue() // Sealed - only these types implement it
}

// Null is the absent value. A Field holding Null is null.
type Null struct{}

func (Null) irValue() {}

// MarshalJSON implements json.Marshaler for Null.
func (Null) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// Int is a signed 64-bit integer value.
type Int int64

func (Int) irValue() {}

// Uint is an unsigned 64-bit integer value.
type Uint uint64

func (Uint) irValue() {}

// Text is a string value.
type Text string

func (Text) irValue() {}

// Bool is a boolean value.
type Bool bool

func (Bool) irValue() {}

// Time is an instant. Values are kept in UTC so that equality and
// rendering do not depend on the process location.
type Time struct {
	time.Time
}

func (Time) irValue() {}

// NewTime wraps t as a Time value normalized to UTC.
func NewTime(t time.Time) Time {
	return Time{Time: t.UTC()}
}

// MarshalJSON implements json.Marshaler for Time using RFC 3339 with nanoseconds.
func (t Time) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

// IsNull reports whether v is nil or Null.
func IsNull(v Value) bool {
	if v == nil {
		return true
	}
	_, ok := v.(Null)
	return ok
}

// Equal reports whether a and b hold the same variant and value.
// Two nulls are equal; Time compares instants, not locations.
func Equal(a, b Value) bool {
	if IsNull(a) || IsNull(b) {
		return IsNull(a) && IsNull(b)
	}
	switch av := a.(type) {
	case Int:
		bv, ok := b.(Int)
		return ok && av == bv
	case Uint:
		bv, ok := b.(Uint)
		return ok && av == bv
	case Text:
		bv, ok := b.(Text)
		return ok && av == bv
	case Bool:
		bv, ok := b.(Bool)
		return ok && av == bv
	case Time:
		bv, ok := b.(Time)
		return ok && av.Equal(bv.Time)
	default:
		return false
	}
}

// Format renders v as the plain text used in change entries and transcripts.
// Null renders as the empty string; callers track null-ness separately.
func Format(v Value) string {
	switch val := v.(type) {
	case nil, Null:
		return ""
	case Int:
		return strconv.FormatInt(int64(val), 10)
	case Uint:
		return strconv.FormatUint(uint64(val), 10)
	case Text:
		return string(val)
	case Bool:
		return strconv.FormatBool(bool(val))
	case Time:
		return val.UTC().Format(time.RFC3339Nano)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// FromAny converts a decoded Go value (YAML, JSON, msgpack) into a Value.
// Integers of every width become Int, except uint64 above MaxInt64 which
// becomes Uint. Floats are rejected unless they hold an exact integer.
func FromAny(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return val, nil
	case string:
		return Text(val), nil
	case bool:
		return Bool(val), nil
	case int:
		return Int(val), nil
	case int8:
		return Int(val), nil
	case int16:
		return Int(val), nil
	case int32:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case uint:
		return fromUint64(uint64(val)), nil
	case uint8:
		return Int(val), nil
	case uint16:
		return Int(val), nil
	case uint32:
		return Int(val), nil
	case uint64:
		return fromUint64(val), nil
	case float64:
		if val != float64(int64(val)) {
			return nil, fmt.Errorf("floats are not supported: %v", val)
		}
		return Int(int64(val)), nil
	case float32:
		if val != float32(int64(val)) {
			return nil, fmt.Errorf("floats are not supported: %v", val)
		}
		return Int(int64(val)), nil
	case time.Time:
		return NewTime(val), nil
	case json.Number:
		n, err := val.Int64()
		if err != nil {
			return nil, fmt.Errorf("not an integer: %s", val)
		}
		return Int(n), nil
	default:
		return nil, fmt.Errorf("unsupported value type: %T", v)
	}
}

func fromUint64(n uint64) Value {
	if n > 1<<63-1 {
		return Uint(n)
	}
	return Int(int64(n))
}

// ToAny converts v into the plain Go value used by document encoders.
func ToAny(v Value) any {
	switch val := v.(type) {
	case nil, Null:
		return nil
	case Int:
		return int64(val)
	case Uint:
		return uint64(val)
	case Text:
		return string(val)
	case Bool:
		return bool(val)
	case Time:
		return val.UTC()
	default:
		return nil
	}
}
