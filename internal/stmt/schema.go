package stmt

import "strings"

// Create compiles CREATE TABLE for the master table and, through the
// cursor, one per detail table. Detail tables are keyed by the master keys
// plus one index column per enclosing array.
func (c *Compiler) Create() (*Plan, error) {
	return c.ddl(OpCreate)
}

// Drop compiles DROP TABLE for the master and every detail table.
func (c *Compiler) Drop() (*Plan, error) {
	return c.ddl(OpDrop)
}

func (c *Compiler) ddl(op Op) (*Plan, error) {
	if len(c.keys) == 0 && op == OpCreate {
		return nil, missingKeys(c)
	}
	p := c.newPlan(op)
	cols, arrays := c.collect(c.rec, nil, "", OpCreate)
	p.Master = c.tableStatement(op, c.table, nil, cols)
	for _, ref := range arrays {
		p.writes.push(&DetailInfo{
			Array:  ref.array,
			Table:  detailTable(c.table, ref.column),
			Column: indexColumn(ref.column),
			path:   ref.path,
		})
	}
	return p, nil
}

// tableStatement renders CREATE or DROP for one table. links are the index
// columns of the enclosing arrays, outermost first.
func (c *Compiler) tableStatement(op Op, table string, links []Link, cols []column) Statement {
	ifExists := c.d.Flags().CreateIfNotExists
	if op == OpDrop {
		sql := "DROP TABLE "
		if ifExists {
			sql += "IF EXISTS "
		}
		return Statement{Op: OpDrop, Table: table, SQL: sql + c.q(table)}
	}

	var defs, pk []string
	if links != nil {
		for _, k := range c.keys {
			defs = append(defs, c.q(k.name)+" "+c.d.ColumnType(k.field)+" NOT NULL")
		}
		for _, l := range links {
			defs = append(defs, c.q(l.Column)+" "+c.d.IndexType()+" NOT NULL")
		}
	}
	for _, col := range cols {
		def := c.q(col.name) + " " + c.d.ColumnType(col.field)
		if !col.field.Nullable() || (links == nil && col.field.IsKey()) {
			def += " NOT NULL"
		}
		defs = append(defs, def)
	}
	for _, k := range c.keys {
		pk = append(pk, c.q(k.name))
	}
	for _, l := range links {
		pk = append(pk, c.q(l.Column))
	}
	defs = append(defs, "PRIMARY KEY ("+strings.Join(pk, ", ")+")")

	sql := "CREATE TABLE "
	if ifExists {
		sql += "IF NOT EXISTS "
	}
	return Statement{
		Op:    OpCreate,
		Table: table,
		SQL:   sql + c.q(table) + " (" + strings.Join(defs, ", ") + ")",
	}
}

// ddlStatement drains one DDL item: the array's table, then its nested
// arrays' tables.
func (p *Plan) ddlStatement(d *DetailInfo) Statement {
	links := d.Links()
	cols, arrays := p.c.collect(d.Array.Schema(), nil, d.path, OpCreate)
	for _, ref := range arrays {
		p.writes.push(&DetailInfo{
			Array:  ref.array,
			Table:  detailTable(d.Table, ref.column),
			Column: indexColumn(ref.column),
			Chain:  links,
			path:   ref.path,
		})
	}
	st := p.c.tableStatement(p.op, d.Table, links, cols)
	st.Detail = d
	return st
}

// schemaTables returns every table of a record shape, master first.
func (c *Compiler) schemaTables() []string {
	tables := []string{c.table}
	_, arrays := c.collect(c.rec, nil, "", OpCreate)
	for _, ref := range arrays {
		t := detailTable(c.table, ref.column)
		tables = append(tables, t)
		tables = append(tables, c.nestedTables(ref.array, t)...)
	}
	return tables
}

// Tables lists the master table and every detail table of the record.
func (c *Compiler) Tables() []string {
	return c.schemaTables()
}

func missingKeys(c *Compiler) error {
	_, err := c.keyWhere(c.newArgs(), nil, false)
	return err
}
