package dialect

import (
	"fmt"

	"github.com/roach88/relmap/internal/ir"
	"github.com/roach88/relmap/internal/record"
)

// MySQLDialect quotes identifiers with backticks and spells upserts as
// REPLACE INTO. Its DDL is emitted without IF [NOT] EXISTS.
type MySQLDialect struct {
	base
}

// NewMySQL returns the mysql dialect.
func NewMySQL() *MySQLDialect {
	d := &MySQLDialect{}
	d.base = base{
		name:  MySQL,
		quote: "`",
		codec: d,
		flags: Flags{
			NullNeedsIs:     true,
			Upsert:          UpsertReplaceInto,
			OrderByInSelect: true,
			AuditValueLimit: 255,
		},
	}
	return d
}

func (d *MySQLDialect) Placeholders() PlaceholderStyle { return Question }

func (d *MySQLDialect) ColumnType(f *record.Field) string {
	switch f.Kind() {
	case record.KindInt:
		if f.IsCompact() {
			return "INT"
		}
		return "BIGINT"
	case record.KindUint:
		if f.IsCompact() {
			return "INT UNSIGNED"
		}
		return "BIGINT UNSIGNED"
	case record.KindText:
		switch {
		case f.Length() > 0:
			return fmt.Sprintf("VARCHAR(%d)", f.Length())
		case f.IsKey():
			return "VARCHAR(255)"
		}
		return "TEXT"
	case record.KindBool:
		return "BOOLEAN"
	case record.KindTime:
		return "DATETIME(6)"
	}
	return "TEXT"
}

func (d *MySQLDialect) IndexType() string { return "INT" }

func (d *MySQLDialect) encode(f *record.Field, v ir.Value) (any, error) {
	switch val := v.(type) {
	case ir.Int:
		return int64(val), nil
	case ir.Uint:
		return uint64(val), nil
	case ir.Text:
		return string(val), nil
	case ir.Bool:
		return bool(val), nil
	case ir.Time:
		return val.UTC(), nil
	}
	return nil, ir.FieldError(ir.ErrCodeTypeMismatch, f.Name(), "cannot bind %T", v)
}
