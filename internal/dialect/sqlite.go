package dialect

import (
	"math"
	"time"

	"github.com/roach88/relmap/internal/ir"
	"github.com/roach88/relmap/internal/record"
)

// SQLiteDialect stores every non-text kind as INTEGER: booleans as 0/1 and
// timestamps as Unix nanoseconds, so values compare and sort natively.
// Timestamps outside the nanosecond range are stored as RFC 3339 text.
type SQLiteDialect struct {
	base
}

var (
	minNanoTime = time.Unix(0, math.MinInt64)
	maxNanoTime = time.Unix(0, math.MaxInt64)
)

// NewSQLite returns the sqlite dialect.
func NewSQLite() *SQLiteDialect {
	d := &SQLiteDialect{}
	d.base = base{
		name:  SQLite,
		quote: `"`,
		codec: d,
		flags: Flags{
			NullNeedsIs:       true,
			CreateIfNotExists: true,
			Upsert:            UpsertInsertOrReplace,
			AuditValueLimit:   255,
		},
	}
	return d
}

// Placeholders returns the parameter style.
func (d *SQLiteDialect) Placeholders() PlaceholderStyle { return Question }

func (d *SQLiteDialect) ColumnType(f *record.Field) string {
	if f.Kind() == record.KindText {
		return "TEXT"
	}
	return "INTEGER"
}

func (d *SQLiteDialect) IndexType() string { return "INTEGER" }

func (d *SQLiteDialect) encode(f *record.Field, v ir.Value) (any, error) {
	switch val := v.(type) {
	case ir.Int:
		return int64(val), nil
	case ir.Uint:
		return signedUint(f, val)
	case ir.Text:
		return string(val), nil
	case ir.Bool:
		if val {
			return int64(1), nil
		}
		return int64(0), nil
	case ir.Time:
		if val.Before(minNanoTime) || val.After(maxNanoTime) {
			return val.UTC().Format(time.RFC3339Nano), nil
		}
		return val.UnixNano(), nil
	}
	return nil, ir.FieldError(ir.ErrCodeTypeMismatch, f.Name(), "cannot bind %T", v)
}
