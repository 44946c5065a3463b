package stmt

import (
	"fmt"
	"strings"

	"github.com/roach88/relmap/internal/dialect"
	"github.com/roach88/relmap/internal/ir"
	"github.com/roach88/relmap/internal/record"
)

// Save picks the write for the record's version state: new (0) inserts,
// known (> 0) updates with the optimistic check, unknown (-1, null or no
// version field) updates without it and falls back to an insert when the
// update matches no row.
func (c *Compiler) Save() (*Plan, error) {
	if dialect.StateOf(c.versionField()) == dialect.VersionNew {
		return c.Insert()
	}
	return c.Update()
}

// Insert compiles an insert of the record and every array element.
func (c *Compiler) Insert() (*Plan, error) {
	p := c.newPlan(OpInsert)
	cols, arrays := c.collect(c.rec, nil, "", OpInsert)
	master, err := c.insertRow(OpInsert, c.table, nil, cols)
	if err != nil {
		return nil, fmt.Errorf("compile insert %s: %w", c.table, err)
	}
	p.Master = master
	p.scheduleArrays(arrays, c.table, nil, "")
	return p, nil
}

// Replace compiles an insert-or-overwrite of the record. Stored elements
// beyond the current array sizes are always deleted.
func (c *Compiler) Replace() (*Plan, error) {
	if c.d.Flags().Upsert == dialect.UpsertNone {
		return nil, ir.Errorf(ir.ErrCodeUnsupported, "dialect %s has no replace statement", c.d.Name())
	}
	p := c.newPlan(OpReplace)
	cols, arrays := c.collect(c.rec, nil, "", OpReplace)
	master, err := c.insertRow(OpReplace, c.table, nil, cols)
	if err != nil {
		return nil, fmt.Errorf("compile replace %s: %w", c.table, err)
	}
	p.Master = master
	p.scheduleArrays(arrays, c.table, nil, "")
	return p, nil
}

// Update compiles an update of the record. Elements below an array's
// initial size are updated, elements beyond it inserted, holes and
// truncated tails deleted.
func (c *Compiler) Update() (*Plan, error) {
	p := c.newPlan(OpUpdate)
	p.fallback = dialect.StateOf(c.versionField()) == dialect.VersionUnknown

	cols, arrays := c.collect(c.rec, nil, "", OpUpdate)
	args := c.newArgs()
	sets, err := c.setList(args, cols, p.fallback)
	if err != nil {
		return nil, fmt.Errorf("compile update %s: %w", c.table, err)
	}
	if len(sets) == 0 && len(c.keys) > 0 {
		k := c.q(c.keys[0].name)
		sets = []string{k + " = " + k}
	}
	where, err := c.keyWhere(args, nil, true)
	if err != nil {
		return nil, fmt.Errorf("compile update %s: %w", c.table, err)
	}
	p.Master = Statement{
		Op:        OpUpdate,
		Table:     c.table,
		SQL:       "UPDATE " + c.q(c.table) + " SET " + strings.Join(sets, ", ") + " WHERE " + where,
		Args:      args.Values(),
		Versioned: c.versionChecked(),
	}
	p.scheduleArrays(arrays, c.table, nil, "")
	return p, nil
}

// Delete compiles a delete of the record and of every detail row it owns.
func (c *Compiler) Delete() (*Plan, error) {
	p := c.newPlan(OpDelete)
	args := c.newArgs()
	where, err := c.keyWhere(args, nil, true)
	if err != nil {
		return nil, fmt.Errorf("compile delete %s: %w", c.table, err)
	}
	p.Master = Statement{
		Op:        OpDelete,
		Table:     c.table,
		SQL:       "DELETE FROM " + c.q(c.table) + " WHERE " + where,
		Args:      args.Values(),
		Versioned: c.versionChecked(),
	}
	_, arrays := c.collect(c.rec, nil, "", OpCreate)
	for _, ref := range arrays {
		p.clean(ref.array, detailTable(c.table, ref.column), indexColumn(ref.column), nil, ref.path, 0, Open)
	}
	return p, nil
}

// setList renders the SET assignments of an update. Keys are never set.
// An unknown version increments in place.
func (c *Compiler) setList(args *dialect.Args, cols []column, unknownVersion bool) ([]string, error) {
	var sets []string
	for _, col := range cols {
		f := col.field
		if f.IsKey() {
			continue
		}
		name := c.q(col.name)
		if f.IsVersion() {
			if unknownVersion {
				sets = append(sets, name+" = COALESCE("+name+", 0) + 1")
				continue
			}
		} else if c.opts.onlyModified && !f.Modified() {
			continue
		}
		lit, err := c.d.RenderLiteral(args, f, false)
		if err != nil {
			return nil, atPath(err, col.path)
		}
		sets = append(sets, name+" = "+lit)
	}
	return sets, nil
}

// insertRow renders an INSERT (or the dialect's replace form) of one row.
// Detail rows lead with the master keys and the chain index columns.
func (c *Compiler) insertRow(op Op, table string, chain []Link, cols []column) (Statement, error) {
	args := c.newArgs()
	var names, values []string
	if chain != nil {
		for _, k := range c.keys {
			if k.field.IsNull() {
				return Statement{}, ir.FieldError(ir.ErrCodeMissingKey, k.path, "key field is null")
			}
			lit, err := c.d.RenderLiteral(args, k.field, false)
			if err != nil {
				return Statement{}, atPath(err, k.path)
			}
			names = append(names, k.name)
			values = append(values, lit)
		}
		for _, l := range chain {
			names = append(names, l.Column)
			values = append(values, c.d.RenderIndexLiteral(args, l.Index))
		}
	}
	for _, col := range cols {
		lit, err := c.d.RenderLiteral(args, col.field, false)
		if err != nil {
			return Statement{}, atPath(err, col.path)
		}
		names = append(names, col.name)
		values = append(values, lit)
	}

	head := "INSERT INTO "
	tail := ""
	if op == OpReplace {
		switch c.d.Flags().Upsert {
		case dialect.UpsertInsertOrReplace:
			head = "INSERT OR REPLACE INTO "
		case dialect.UpsertReplaceInto:
			head = "REPLACE INTO "
		case dialect.UpsertOnConflict:
			tail = c.onConflict(chain, names)
		case dialect.UpsertNone:
			return Statement{}, ir.Errorf(ir.ErrCodeUnsupported, "dialect %s has no replace statement", c.d.Name())
		}
	}
	return Statement{
		Op:    op,
		Table: table,
		SQL: head + c.q(table) + " (" + strings.Join(quoteAll(c, names), ", ") + ") VALUES (" +
			strings.Join(values, ", ") + ")" + tail,
		Args: args.Values(),
	}, nil
}

// onConflict renders the postgres upsert tail for a row keyed by the master
// keys plus chain.
func (c *Compiler) onConflict(chain []Link, names []string) string {
	pk := make(map[string]bool)
	var pkNames []string
	for _, k := range c.keys {
		pk[k.name] = true
		pkNames = append(pkNames, k.name)
	}
	for _, l := range chain {
		pk[l.Column] = true
		pkNames = append(pkNames, l.Column)
	}
	var sets []string
	for _, n := range names {
		if !pk[n] {
			sets = append(sets, c.q(n)+" = EXCLUDED."+c.q(n))
		}
	}
	tail := " ON CONFLICT (" + strings.Join(quoteAll(c, pkNames), ", ") + ")"
	if len(sets) == 0 {
		return tail + " DO NOTHING"
	}
	return tail + " DO UPDATE SET " + strings.Join(sets, ", ")
}

// scheduleArrays schedules the arrays owned by one row.
func (p *Plan) scheduleArrays(arrays []arrayRef, table string, chain []Link, pathPrefix string) {
	for _, ref := range arrays {
		path := ref.path
		if pathPrefix != "" {
			path = pathPrefix + "." + ref.path
		}
		p.schedule(ref.array, detailTable(table, ref.column), indexColumn(ref.column), chain, path, 0)
	}
}

// schedule finds the next element of a at or after start. A run of holes
// that ends before the array does becomes one range delete; an exhausted
// array gets one open-ended delete when stored rows may lie beyond start.
func (p *Plan) schedule(a *record.Array, table, col string, chain []Link, path string, start int) {
	n := a.Len()
	j := start
	for j < n && a.At(j) == nil {
		j++
	}
	if j < n {
		if j > start && p.cleansHoles(a, start) {
			p.clean(a, table, col, chain, path, start, j-1)
		}
		p.writes.push(&DetailInfo{Array: a, Table: table, Column: col, Chain: chain, Index: j, path: path})
		return
	}
	switch p.op {
	case OpReplace:
		p.clean(a, table, col, chain, path, start, Open)
	case OpUpdate:
		if a.InitialSize() > start {
			p.clean(a, table, col, chain, path, start, Open)
		}
	}
}

// cleansHoles reports whether a hole run starting at start may cover
// stored rows that must go.
func (p *Plan) cleansHoles(a *record.Array, start int) bool {
	if p.c.opts.noCleaner {
		return false
	}
	switch p.op {
	case OpReplace:
		return true
	case OpUpdate:
		return start < a.InitialSize()
	}
	return false
}

// clean queues a range delete on a's table and on every table nested
// below it, since their rows are keyed by the same index column.
func (p *Plan) clean(a *record.Array, table, col string, chain []Link, path string, from, to int) {
	p.cleans.push(&DetailInfo{Array: a, Table: table, Column: col, Chain: chain, Cleaning: true, From: from, To: to, path: path})
	for _, t := range p.c.nestedTables(a, table) {
		p.cleans.push(&DetailInfo{Array: a, Table: t, Column: col, Chain: chain, Cleaning: true, From: from, To: to, path: path})
	}
}

// nestedTables lists every table below array a, depth first.
func (c *Compiler) nestedTables(a *record.Array, table string) []string {
	var out []string
	_, arrays := c.collect(a.Schema(), nil, "", OpCreate)
	for _, ref := range arrays {
		t := detailTable(table, ref.column)
		out = append(out, t)
		out = append(out, c.nestedTables(ref.array, t)...)
	}
	return out
}

// writeStatement drains a write item: the element row, then the element's
// own arrays, then the array's next element.
func (p *Plan) writeStatement(d *DetailInfo) (Statement, error) {
	op := p.op
	if op == OpCreate || op == OpDrop {
		return p.ddlStatement(d), nil
	}
	if op == OpUpdate && d.Index >= d.Array.InitialSize() {
		op = OpInsert
	}
	st, err := p.c.elementRow(d, op)
	if err != nil {
		return Statement{}, err
	}

	elem := d.Array.At(d.Index)
	_, arrays := p.c.collect(elem, nil, "", p.op)
	p.scheduleArrays(arrays, d.Table, d.Links(), d.Path())
	p.schedule(d.Array, d.Table, d.Column, d.Chain, d.path, d.Index+1)
	return st, nil
}

// elementRow renders the row statement of one array element.
func (c *Compiler) elementRow(d *DetailInfo, op Op) (Statement, error) {
	elem := d.Array.At(d.Index)
	if elem == nil {
		return Statement{}, ir.Errorf(ir.ErrCodeIndexRange, "element %s is a hole", d.Path())
	}
	cols, _ := c.collect(elem, nil, d.Path(), op)
	links := d.Links()

	var st Statement
	var err error
	switch op {
	case OpInsert, OpReplace:
		st, err = c.insertRow(op, d.Table, links, cols)
	case OpUpdate:
		st, err = c.updateRow(d.Table, links, cols)
	default:
		err = ir.Errorf(ir.ErrCodeUnsupported, "no element statement for %s", op)
	}
	if err != nil {
		return Statement{}, fmt.Errorf("compile %s %s: %w", strings.ToLower(op.String()), d.Path(), err)
	}
	st.Detail = d
	return st, nil
}

// updateRow renders the UPDATE of one detail row. Detail rows never carry
// the version predicate.
func (c *Compiler) updateRow(table string, links []Link, cols []column) (Statement, error) {
	args := c.newArgs()
	sets, err := c.setList(args, cols, false)
	if err != nil {
		return Statement{}, err
	}
	if len(sets) == 0 {
		own := c.q(links[len(links)-1].Column)
		sets = []string{own + " = " + own}
	}
	where, err := c.keyWhere(args, links, false)
	if err != nil {
		return Statement{}, err
	}
	return Statement{
		Op:    OpUpdate,
		Table: table,
		SQL:   "UPDATE " + c.q(table) + " SET " + strings.Join(sets, ", ") + " WHERE " + where,
		Args:  args.Values(),
	}, nil
}

// cleanStatement renders the DELETE of a cleaning item.
func (p *Plan) cleanStatement(d *DetailInfo) (Statement, error) {
	c := p.c
	args := c.newArgs()
	where, err := c.keyWhere(args, d.Chain, false)
	if err != nil {
		return Statement{}, fmt.Errorf("compile delete %s: %w", d.Table, err)
	}
	col := c.q(d.Column)
	switch {
	case d.From == 0 && d.To == Open:
	case d.To == Open:
		where += " AND " + col + " > " + c.d.RenderIndexLiteral(args, d.From-1)
	case d.From == d.To:
		where += " AND " + col + " = " + c.d.RenderIndexLiteral(args, d.From)
	default:
		lo := c.d.RenderIndexLiteral(args, d.From)
		hi := c.d.RenderIndexLiteral(args, d.To)
		where += " AND " + col + " BETWEEN " + lo + " AND " + hi
	}
	return Statement{
		Op:     OpDelete,
		Table:  d.Table,
		SQL:    "DELETE FROM " + c.q(d.Table) + " WHERE " + where,
		Args:   args.Values(),
		Detail: d,
	}, nil
}
