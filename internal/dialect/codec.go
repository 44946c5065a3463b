package dialect

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/relmap/internal/ir"
	"github.com/roach88/relmap/internal/record"
)

// timeLayouts are the textual timestamp forms drivers return when they do
// not parse times themselves.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

// decode converts a driver value into a value of f's kind.
func decode(f *record.Field, src any) (ir.Value, error) {
	if src == nil {
		return ir.Null{}, nil
	}
	mismatch := func(err error) error {
		return ir.Wrap(ir.ErrCodeTypeMismatch, err, "read %s column %q from %T", f.Kind(), f.Name(), src)
	}
	switch f.Kind() {
	case record.KindInt:
		n, err := decodeInt(src)
		if err != nil {
			return nil, mismatch(err)
		}
		return ir.Int(n), nil
	case record.KindUint:
		switch v := src.(type) {
		case uint64:
			return ir.Uint(v), nil
		case []byte, string:
			n, err := strconv.ParseUint(asString(v), 10, 64)
			if err != nil {
				return nil, mismatch(err)
			}
			return ir.Uint(n), nil
		}
		n, err := decodeInt(src)
		if err != nil {
			return nil, mismatch(err)
		}
		if n < 0 {
			return nil, mismatch(fmt.Errorf("negative value %d", n))
		}
		return ir.Uint(n), nil
	case record.KindText:
		switch v := src.(type) {
		case string:
			return ir.Text(v), nil
		case []byte:
			return ir.Text(string(v)), nil
		}
		return nil, mismatch(fmt.Errorf("not text"))
	case record.KindBool:
		switch v := src.(type) {
		case bool:
			return ir.Bool(v), nil
		case []byte, string:
			b, err := strconv.ParseBool(strings.ToLower(asString(v)))
			if err != nil {
				return nil, mismatch(err)
			}
			return ir.Bool(b), nil
		}
		n, err := decodeInt(src)
		if err != nil {
			return nil, mismatch(err)
		}
		return ir.Bool(n != 0), nil
	case record.KindTime:
		switch v := src.(type) {
		case time.Time:
			return ir.NewTime(v), nil
		case int64:
			return ir.NewTime(time.Unix(0, v)), nil
		case []byte, string:
			s := asString(v)
			if n, err := strconv.ParseInt(s, 10, 64); err == nil {
				return ir.NewTime(time.Unix(0, n)), nil
			}
			for _, layout := range timeLayouts {
				if t, err := time.Parse(layout, s); err == nil {
					return ir.NewTime(t), nil
				}
			}
			return nil, mismatch(fmt.Errorf("unrecognized timestamp %q", s))
		}
		return nil, mismatch(fmt.Errorf("not a timestamp"))
	}
	return nil, mismatch(fmt.Errorf("unknown kind"))
}

func decodeInt(src any) (int64, error) {
	switch v := src.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case uint64:
		if v > math.MaxInt64 {
			return 0, fmt.Errorf("value %d overflows int64", v)
		}
		return int64(v), nil
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("value %v is not an integer", v)
		}
		return int64(v), nil
	case []byte, string:
		return strconv.ParseInt(asString(v), 10, 64)
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	}
	return 0, fmt.Errorf("unsupported driver type %T", src)
}

func asString(v any) string {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v.(string)
}

// signedUint narrows a uint for drivers that only bind int64.
func signedUint(f *record.Field, v ir.Uint) (int64, error) {
	if uint64(v) > math.MaxInt64 {
		return 0, ir.FieldError(ir.ErrCodeUnsupported, f.Name(), "value %d exceeds the backend integer range", v)
	}
	return int64(v), nil
}
