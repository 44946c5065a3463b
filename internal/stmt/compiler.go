package stmt

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/relmap/internal/dialect"
	"github.com/roach88/relmap/internal/ir"
	"github.com/roach88/relmap/internal/record"
)

// Op identifies a statement kind.
type Op int

const (
	OpCreate Op = iota + 1
	OpDrop
	OpInsert
	OpReplace
	OpUpdate
	OpDelete
	OpSelect
)

// String returns the SQL verb of the op.
func (o Op) String() string {
	switch o {
	case OpCreate:
		return "CREATE"
	case OpDrop:
		return "DROP"
	case OpInsert:
		return "INSERT"
	case OpReplace:
		return "REPLACE"
	case OpUpdate:
		return "UPDATE"
	case OpDelete:
		return "DELETE"
	case OpSelect:
		return "SELECT"
	default:
		return fmt.Sprintf("op(%d)", int(o))
	}
}

// Statement is one rendered SQL statement with its bound arguments.
type Statement struct {
	Op    Op
	Table string
	SQL   string
	Args  []any

	// Detail is the work item the statement was drained from; nil for the
	// master statement.
	Detail *DetailInfo

	// Versioned is set on master writes that carry the version predicate.
	// Zero affected rows on such a statement is a lock conflict.
	Versioned bool

	// Columns is the number of leading result columns read-back consumes.
	Columns int
}

type options struct {
	onlyModified   bool
	noCleaner      bool
	noVersionCheck bool
	withLazy       bool
}

// Option configures a Compiler.
type Option func(*options)

// OnlyModified restricts update SET lists to modified fields (and the version).
func OnlyModified() Option { return func(o *options) { o.onlyModified = true } }

// WithoutCleaner leaves stored rows under array holes untouched. Trailing
// deletes for shrunk arrays are still emitted.
func WithoutCleaner() Option { return func(o *options) { o.noCleaner = true } }

// WithoutVersionCheck drops the version predicate from master writes.
func WithoutVersionCheck() Option { return func(o *options) { o.noVersionCheck = true } }

// WithLazy includes lazy sub-records in selects and read-back.
func WithLazy() Option { return func(o *options) { o.withLazy = true } }

// column is one scalar column of a row.
type column struct {
	name  string
	field *record.Field
	path  string
}

// arrayRef is an array member reached while flattening a row.
type arrayRef struct {
	array  *record.Array
	column string // flattened array name, prefix of its table and index column
	path   string
}

// Compiler renders the statements for one record.
//
// A Compiler is bound to one record and one dialect and is not reentrant.
// It never mutates the record: version increments are rendered, and the
// store applies them after commit.
type Compiler struct {
	rec     *record.Record
	d       dialect.Dialect
	opts    options
	table   string
	keys    []column
	version *column
	ix      *record.Index
}

// New binds a compiler to rec.
func New(rec *record.Record, d dialect.Dialect, opts ...Option) *Compiler {
	c := &Compiler{rec: rec, d: d, table: d.TableName(rec.Name())}
	for _, opt := range opts {
		opt(&c.opts)
	}
	cols, _ := c.collect(rec, nil, "", OpCreate)
	for _, col := range cols {
		if col.field.IsKey() {
			c.keys = append(c.keys, col)
		}
		if col.field.IsVersion() && c.version == nil {
			v := col
			c.version = &v
		}
	}
	return c
}

// Table returns the master table name.
func (c *Compiler) Table() string { return c.table }

// Dialect returns the dialect statements are rendered for.
func (c *Compiler) Dialect() dialect.Dialect { return c.d }

// Record returns the bound record.
func (c *Compiler) Record() *record.Record { return c.rec }

// versionField returns the version field, or nil for unversioned records.
func (c *Compiler) versionField() *record.Field {
	if c.version == nil {
		return nil
	}
	return c.version.field
}

// includeSub decides whether a sub-record takes part in an op's row.
// Lazy sub-records are only read on request and only updated when touched.
func (c *Compiler) includeSub(sub *record.Record, op Op) bool {
	if !sub.Lazy() {
		return true
	}
	switch op {
	case OpSelect:
		return c.opts.withLazy
	case OpUpdate:
		return sub.HasModified()
	default:
		return true
	}
}

// collect flattens r into its row columns and the arrays it owns.
// Sub-records contribute prefixed columns; arrays are returned for detail
// scheduling and never contribute columns.
func (c *Compiler) collect(r *record.Record, prefix []string, path string, op Op) ([]column, []arrayRef) {
	var cols []column
	var arrays []arrayRef
	for _, m := range r.Members() {
		switch m.Kind {
		case record.MemberField:
			cols = append(cols, column{
				name:  c.d.ColumnName(append(prefix, m.Field.Name())...),
				field: m.Field,
				path:  joinPath(path, m.Field.Name()),
			})
		case record.MemberRecord:
			if !c.includeSub(m.Record, op) {
				continue
			}
			sub := append(append([]string(nil), prefix...), m.Record.Name())
			sc, sa := c.collect(m.Record, sub, joinPath(path, m.Record.Name()), op)
			cols = append(cols, sc...)
			arrays = append(arrays, sa...)
		case record.MemberArray:
			arrays = append(arrays, arrayRef{
				array:  m.Array,
				column: c.d.ColumnName(append(prefix, m.Array.Name())...),
				path:   joinPath(path, m.Array.Name()),
			})
		}
	}
	return cols, arrays
}

func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

func (c *Compiler) q(name string) string {
	return c.d.QuoteIdent(name)
}

func (c *Compiler) newArgs() *dialect.Args {
	return dialect.NewArgs(c.d.Placeholders())
}

// detailTable names the table of an array owned by a row of parent.
func detailTable(parent, arrayColumn string) string {
	return parent + "_" + arrayColumn
}

func indexColumn(arrayColumn string) string {
	return arrayColumn + "_idx"
}

// keyWhere renders the identity predicate: every key column, the chain of
// index columns and, when withVersion is set, the version predicate.
func (c *Compiler) keyWhere(args *dialect.Args, chain []Link, withVersion bool) (string, error) {
	if len(c.keys) == 0 {
		return "", ir.Errorf(ir.ErrCodeMissingKey, "record %s has no key fields", c.rec.Name())
	}
	parts := make([]string, 0, len(c.keys)+len(chain)+1)
	for _, k := range c.keys {
		if k.field.IsNull() {
			return "", ir.FieldError(ir.ErrCodeMissingKey, k.path, "key field is null")
		}
		lit, err := c.d.RenderLiteral(args, k.field, true)
		if err != nil {
			return "", atPath(err, k.path)
		}
		parts = append(parts, c.q(k.name)+" = "+lit)
	}
	for _, l := range chain {
		parts = append(parts, c.q(l.Column)+" = "+c.d.RenderIndexLiteral(args, l.Index))
	}
	if withVersion && c.versionChecked() {
		lit, err := c.d.RenderLiteral(args, c.version.field, true)
		if err != nil {
			return "", atPath(err, c.version.path)
		}
		parts = append(parts, c.q(c.version.name)+" = "+lit)
	}
	return strings.Join(parts, " AND "), nil
}

// versionChecked reports whether master writes carry the version predicate.
func (c *Compiler) versionChecked() bool {
	return c.version != nil && !c.opts.noVersionCheck &&
		dialect.StateOf(c.version.field) != dialect.VersionUnknown
}

// atPath sets the full field path on a mapping error.
func atPath(err error, path string) error {
	var e *ir.Error
	if errors.As(err, &e) {
		cp := *e
		cp.Path = path
		return &cp
	}
	return err
}

func quoteAll(c *Compiler, names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = c.q(n)
	}
	return out
}
