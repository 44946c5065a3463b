package dialect

import (
	"fmt"
	"strings"

	"github.com/go-openapi/inflect"

	"github.com/roach88/relmap/internal/ir"
	"github.com/roach88/relmap/internal/record"
)

// Dialect names.
const (
	SQLite   = "sqlite3"
	Postgres = "postgres"
	MySQL    = "mysql"
)

// UpsertStyle is how a dialect spells "insert or overwrite".
type UpsertStyle int

const (
	UpsertNone UpsertStyle = iota
	UpsertInsertOrReplace
	UpsertOnConflict
	UpsertReplaceInto
)

// Flags are the behavioural switches compilers consult.
type Flags struct {
	// NullNeedsIs renders null comparisons as IS NULL instead of = NULL.
	NullNeedsIs bool
	// CreateIfNotExists adds IF NOT EXISTS / IF EXISTS to DDL.
	CreateIfNotExists bool
	// Upsert selects the replace statement form.
	Upsert UpsertStyle
	// OrderByInSelect requires ORDER BY expressions in a DISTINCT select list.
	OrderByInSelect bool
	// AuditValueLimit is the longest change-entry value, in runes.
	AuditValueLimit int
}

// Dialect is the strategy every backend implements. Compilers never spell
// SQL syntax that differs between backends themselves.
type Dialect interface {
	Name() string
	Flags() Flags
	Placeholders() PlaceholderStyle

	// TableName maps a record name to a table name.
	TableName(record string) string
	// ColumnName joins a member path into one column name.
	ColumnName(parts ...string) string
	QuoteIdent(name string) string
	ColumnType(f *record.Field) string
	IndexType() string

	// RenderLiteral binds f's current value and returns its placeholder.
	// Outside a WHERE clause a version field renders its next value and
	// text fields are checked against their length hint.
	RenderLiteral(args *Args, f *record.Field, where bool) (string, error)
	// RenderValue binds v, converted for f's kind.
	RenderValue(args *Args, f *record.Field, v ir.Value) (string, error)
	RenderIndexLiteral(args *Args, i int) string

	// ReadScalar assigns a driver value to f, without marking it modified.
	ReadScalar(f *record.Field, src any) error
	ReadIndex(src any) (int, error)
}

// ByName returns the dialect registered under name.
func ByName(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case SQLite, "sqlite":
		return NewSQLite(), nil
	case Postgres, "postgresql", "pg":
		return NewPostgres(), nil
	case MySQL:
		return NewMySQL(), nil
	default:
		return nil, fmt.Errorf("unknown dialect %q", name)
	}
}

// base holds the behaviour shared by all dialects. Each dialect embeds it
// and supplies its own codec for driver values.
type base struct {
	name  string
	flags Flags
	quote string
	codec codec
}

// codec converts between record values and driver values.
type codec interface {
	encode(f *record.Field, v ir.Value) (any, error)
}

func (b *base) Name() string { return b.name }

func (b *base) Flags() Flags { return b.flags }

func (b *base) TableName(name string) string {
	return inflect.Underscore(name)
}

func (b *base) ColumnName(parts ...string) string {
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = inflect.Underscore(p)
	}
	return strings.Join(out, "_")
}

func (b *base) QuoteIdent(name string) string {
	return b.quote + strings.ReplaceAll(name, b.quote, b.quote+b.quote) + b.quote
}

func (b *base) RenderIndexLiteral(args *Args, i int) string {
	return args.Add(int64(i))
}

func (b *base) RenderLiteral(args *Args, f *record.Field, where bool) (string, error) {
	v := f.Value()
	if !where {
		if f.IsVersion() {
			next, err := NextVersion(f)
			if err != nil {
				return "", err
			}
			v = next
		} else if f.Kind() == record.KindText && f.Length() > 0 && f.RuneLength() > f.Length() {
			return "", ir.FieldError(ir.ErrCodeValueTooLong, f.Name(),
				"%d runes exceeds length %d", f.RuneLength(), f.Length())
		}
	}
	return b.RenderValue(args, f, v)
}

func (b *base) RenderValue(args *Args, f *record.Field, v ir.Value) (string, error) {
	if ir.IsNull(v) {
		return "NULL", nil
	}
	cv, err := f.Coerce(v)
	if err != nil {
		return "", err
	}
	dv, err := b.codec.encode(f, cv)
	if err != nil {
		return "", err
	}
	return args.Add(dv), nil
}

func (b *base) ReadScalar(f *record.Field, src any) error {
	v, err := decode(f, src)
	if err != nil {
		return err
	}
	return f.Load(v)
}

func (b *base) ReadIndex(src any) (int, error) {
	n, err := decodeInt(src)
	if err != nil {
		return 0, ir.Wrap(ir.ErrCodeTypeMismatch, err, "read index column")
	}
	if n < 0 {
		return 0, ir.Errorf(ir.ErrCodeIndexRange, "negative index %d", n)
	}
	return int(n), nil
}

// NextVersion returns the value a write stores in a version field: one
// more than the current value, or 1 when the version is new or unknown.
func NextVersion(f *record.Field) (ir.Value, error) {
	switch v := f.Value().(type) {
	case ir.Int:
		if v < 0 {
			return ir.Int(1), nil
		}
		if v == 1<<63-1 {
			return nil, ir.FieldError(ir.ErrCodeVersionOverflow, f.Name(), "version %d cannot be incremented", v)
		}
		return v + 1, nil
	case ir.Uint:
		if v == 1<<64-1 {
			return nil, ir.FieldError(ir.ErrCodeVersionOverflow, f.Name(), "version %d cannot be incremented", v)
		}
		return v + 1, nil
	default:
		if f.Kind() == record.KindUint {
			return ir.Uint(1), nil
		}
		return ir.Int(1), nil
	}
}

// VersionState classifies a version field.
type VersionState int

const (
	VersionNew VersionState = iota + 1
	VersionKnown
	VersionUnknown
)

// StateOf returns the state of version field f (nil means unversioned,
// which behaves as unknown).
func StateOf(f *record.Field) VersionState {
	if f == nil {
		return VersionUnknown
	}
	switch v := f.Value().(type) {
	case ir.Int:
		switch {
		case v == 0:
			return VersionNew
		case v > 0:
			return VersionKnown
		}
	case ir.Uint:
		if v == 0 {
			return VersionNew
		}
		return VersionKnown
	}
	return VersionUnknown
}
