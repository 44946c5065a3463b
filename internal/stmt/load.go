package stmt

import (
	"fmt"
	"strings"

	"github.com/roach88/relmap/internal/ir"
)

// Loader replays result rows into the bound record.
//
// ReadMaster consumes the master row and leaves one pending DetailInfo per
// array. For each, Next returns the detail SELECT; the caller feeds every
// row of its cursor to ReadDetail and then calls EndDetail. Reading an
// element queues its own arrays, so a loader is drained until Exhausted.
type Loader struct {
	c      *Compiler
	Master Statement

	cols    []column
	arrays  []arrayRef
	pending detailQueue

	cur     *DetailInfo
	curCols []column
	max     int
	read    bool
}

// Load compiles the master SELECT by key and returns a loader for its row.
func (c *Compiler) Load() (*Loader, error) {
	l := c.Loader()
	args := c.newArgs()
	where, err := c.keyWhere(args, nil, false)
	if err != nil {
		return nil, fmt.Errorf("compile select %s: %w", c.table, err)
	}
	names := make([]string, len(l.cols))
	for i, col := range l.cols {
		names[i] = c.q(col.name)
	}
	l.Master = Statement{
		Op:      OpSelect,
		Table:   c.table,
		SQL:     "SELECT " + strings.Join(names, ", ") + " FROM " + c.q(c.table) + " WHERE " + where,
		Args:    args.Values(),
		Columns: len(l.cols),
	}
	return l, nil
}

// Loader returns a loader for master rows produced elsewhere, e.g. by Query.
// Rows must start with the master columns in Query's select order.
func (c *Compiler) Loader() *Loader {
	cols, arrays := c.collect(c.rec, nil, "", OpSelect)
	return &Loader{c: c, cols: cols, arrays: arrays}
}

// State reports whether detail selects remain.
func (l *Loader) State() CursorState {
	if l.cur != nil || l.pending.len() > 0 {
		return Pending
	}
	return Exhausted
}

// ReadMaster assigns the master columns of row. Extra trailing columns
// (sort expressions a dialect forces into the select list) are ignored.
func (l *Loader) ReadMaster(row []any) error {
	if len(row) < len(l.cols) {
		return ir.Errorf(ir.ErrCodeSchemaMismatch, "master row has %d columns, want %d", len(row), len(l.cols))
	}
	for i, col := range l.cols {
		if err := l.c.d.ReadScalar(col.field, row[i]); err != nil {
			return atPath(err, col.path)
		}
	}
	for _, ref := range l.arrays {
		ref.array.Resize(0)
		ref.array.Resize(1)
		l.pending.push(&DetailInfo{
			Array:  ref.array,
			Table:  detailTable(l.c.table, ref.column),
			Column: indexColumn(ref.column),
			path:   ref.path,
		})
	}
	l.read = true
	return nil
}

// Next starts the next pending array and returns its SELECT. The previous
// array must have been ended.
func (l *Loader) Next() (Statement, error) {
	if !l.read {
		return Statement{}, ir.Errorf(ir.ErrCodeUnexpectedResult, "detail read before master row")
	}
	if l.cur != nil {
		return Statement{}, ir.Errorf(ir.ErrCodeUnexpectedResult, "array %s was not ended", l.cur.path)
	}
	d, ok := l.pending.pop()
	if !ok {
		return Statement{}, ir.Errorf(ir.ErrCodeCursorExhausted, "no pending detail selects")
	}
	c := l.c
	cols, _ := c.collect(d.Array.Schema(), nil, d.path, OpSelect)
	args := c.newArgs()
	where, err := c.keyWhere(args, d.Chain, false)
	if err != nil {
		return Statement{}, fmt.Errorf("compile select %s: %w", d.Table, err)
	}
	names := []string{c.q(d.Column)}
	for _, col := range cols {
		names = append(names, c.q(col.name))
	}
	l.cur, l.curCols, l.max = d, cols, -1
	return Statement{
		Op:    OpSelect,
		Table: d.Table,
		SQL: "SELECT " + strings.Join(names, ", ") + " FROM " + c.q(d.Table) +
			" WHERE " + where + " ORDER BY " + c.q(d.Column),
		Args:    args.Values(),
		Detail:  d,
		Columns: len(names),
	}, nil
}

// ReadDetail consumes one detail row: the index column, then the element
// columns. The element's own arrays are queued.
func (l *Loader) ReadDetail(row []any) error {
	d := l.cur
	if d == nil {
		return ir.Errorf(ir.ErrCodeUnexpectedResult, "detail row without a started array")
	}
	if len(row) != len(l.curCols)+1 {
		return ir.FieldError(ir.ErrCodeSchemaMismatch, d.path,
			"detail row has %d columns, want %d", len(row), len(l.curCols)+1)
	}
	idx, err := l.c.d.ReadIndex(row[0])
	if err != nil {
		return atPath(err, d.path)
	}
	elem, err := d.Array.Ensure(idx)
	if err != nil {
		return atPath(err, d.path)
	}
	at := *d
	at.Index = idx
	cols, arrays := l.c.collect(elem, nil, at.Path(), OpSelect)
	for i, col := range cols {
		if err := l.c.d.ReadScalar(col.field, row[i+1]); err != nil {
			return atPath(err, col.path)
		}
	}
	for _, ref := range arrays {
		ref.array.Resize(0)
		ref.array.Resize(1)
		l.pending.push(&DetailInfo{
			Array:  ref.array,
			Table:  detailTable(d.Table, ref.column),
			Column: indexColumn(ref.column),
			Chain:  at.Links(),
			path:   ref.path,
		})
	}
	if idx > l.max {
		l.max = idx
	}
	return nil
}

// EndDetail closes the current array: it is sized to the highest index read
// plus one (holes between stored rows stay holes) and marked loaded.
func (l *Loader) EndDetail() error {
	d := l.cur
	if d == nil {
		return ir.Errorf(ir.ErrCodeUnexpectedResult, "no started array to end")
	}
	d.Array.Resize(l.max + 1)
	d.Array.MarkLoaded()
	l.cur, l.curCols = nil, nil
	return nil
}

// Finish accepts the loaded values as the record's clean state.
func (l *Loader) Finish() {
	l.c.rec.AcceptChanges()
}
