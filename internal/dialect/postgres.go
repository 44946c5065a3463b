package dialect

import (
	"fmt"

	"github.com/roach88/relmap/internal/ir"
	"github.com/roach88/relmap/internal/record"
)

// PostgresDialect uses numbered placeholders and ON CONFLICT upserts.
type PostgresDialect struct {
	base
}

// NewPostgres returns the postgres dialect.
func NewPostgres() *PostgresDialect {
	d := &PostgresDialect{}
	d.base = base{
		name:  Postgres,
		quote: `"`,
		codec: d,
		flags: Flags{
			NullNeedsIs:       true,
			CreateIfNotExists: true,
			Upsert:            UpsertOnConflict,
			OrderByInSelect:   true,
			AuditValueLimit:   1024,
		},
	}
	return d
}

func (d *PostgresDialect) Placeholders() PlaceholderStyle { return Dollar }

func (d *PostgresDialect) ColumnType(f *record.Field) string {
	switch f.Kind() {
	case record.KindInt, record.KindUint:
		if f.IsCompact() {
			return "INTEGER"
		}
		return "BIGINT"
	case record.KindText:
		if f.Length() > 0 {
			return fmt.Sprintf("VARCHAR(%d)", f.Length())
		}
		return "TEXT"
	case record.KindBool:
		return "BOOLEAN"
	case record.KindTime:
		return "TIMESTAMPTZ"
	}
	return "TEXT"
}

func (d *PostgresDialect) IndexType() string { return "INTEGER" }

func (d *PostgresDialect) encode(f *record.Field, v ir.Value) (any, error) {
	switch val := v.(type) {
	case ir.Int:
		return int64(val), nil
	case ir.Uint:
		return signedUint(f, val)
	case ir.Text:
		return string(val), nil
	case ir.Bool:
		return bool(val), nil
	case ir.Time:
		return val.UTC(), nil
	}
	return nil, ir.FieldError(ir.ErrCodeTypeMismatch, f.Name(), "cannot bind %T", v)
}
