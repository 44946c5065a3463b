package stmt

import (
	"fmt"
	"strings"

	"github.com/roach88/relmap/internal/queryir"
	"github.com/roach88/relmap/internal/querysql"
	"github.com/roach88/relmap/internal/record"
)

// Index returns the field index of the bound record, building it on first
// use. Filter items passed to Query must reference fields resolved through
// it (queryir.Parse) or the bound record's own fields.
func (c *Compiler) Index() *record.Index {
	if c.ix == nil {
		c.ix = record.NewIndex(c.rec)
	}
	return c.ix
}

// Query compiles a filtered, sorted SELECT of master rows. References to
// array-element fields add LEFT JOINs down the detail table chain; the
// select is DISTINCT whenever a join is present. Rows are read back with
// Loader.
func (c *Compiler) Query(items []queryir.Item, sort *queryir.SortSpec) (Statement, error) {
	root, err := queryir.Build(items)
	if err != nil {
		return Statement{}, err
	}
	scope := newJoinScope(c)
	args := c.newArgs()
	where, err := querysql.Where(root, scope, c.d, args)
	if err != nil {
		return Statement{}, fmt.Errorf("compile query %s: %w", c.table, err)
	}
	order, extra, err := querysql.OrderBy(sort, scope, c.d)
	if err != nil {
		return Statement{}, fmt.Errorf("compile query %s: %w", c.table, err)
	}

	cols, _ := c.collect(c.rec, nil, "", OpSelect)
	sel := make([]string, 0, len(cols)+len(extra))
	for _, col := range cols {
		sel = append(sel, masterAlias+"."+c.q(col.name))
	}
	distinct := len(scope.joins) > 0
	if distinct {
		sel = append(sel, extra...)
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	if distinct {
		b.WriteString("DISTINCT ")
	}
	b.WriteString(strings.Join(sel, ", "))
	b.WriteString(" FROM " + c.q(c.table) + " " + masterAlias)
	for _, j := range scope.joins {
		b.WriteString(" " + j)
	}
	if where != "" {
		b.WriteString(" WHERE " + where)
	}
	if order != "" {
		b.WriteString(" ORDER BY " + order)
	}
	return Statement{
		Op:      OpSelect,
		Table:   c.table,
		SQL:     b.String(),
		Args:    args.Values(),
		Columns: len(cols),
	}, nil
}

const masterAlias = "t0"

// joinTarget is one table reachable from the master row.
type joinTarget struct {
	alias string
	table string
	links []string // index columns identifying a row, outermost first
}

// joinScope resolves references to aliased columns and records the joins
// they need, each at most once.
type joinScope struct {
	c      *Compiler
	joins  []string
	byPath map[string]joinTarget
}

func newJoinScope(c *Compiler) *joinScope {
	return &joinScope{c: c, byPath: make(map[string]joinTarget)}
}

func (s *joinScope) FieldColumn(f *record.Field) (string, error) {
	e, err := s.c.Index().Field(f)
	if err != nil {
		return "", err
	}
	arrays := e.Path.Arrays()
	if len(arrays) == 0 {
		return masterAlias + "." + s.c.q(s.c.d.ColumnName(names(e.Path)...)), nil
	}
	last := arrays[len(arrays)-1]
	t := s.target(e.Path, last)
	return t.alias + "." + s.c.q(s.c.d.ColumnName(names(e.Path[last+1:])...)), nil
}

func (s *joinScope) ArrayColumn(a *record.Array) (string, error) {
	e, err := s.c.Index().Array(a)
	if err != nil {
		return "", err
	}
	t := s.target(e.Path, len(e.Path)-1)
	return t.alias + "." + s.c.q(t.links[len(t.links)-1]), nil
}

// target returns the join for the array at p[at], adding it and every
// enclosing array's join when missing.
func (s *joinScope) target(p record.Path, at int) joinTarget {
	key := p[:at+1].Dotted()
	if t, ok := s.byPath[key]; ok {
		return t
	}
	parent := joinTarget{alias: masterAlias, table: s.c.table}
	from := 0
	for i := at - 1; i >= 0; i-- {
		if p[i].Kind == record.StepArray {
			parent = s.target(p, i)
			from = i + 1
			break
		}
	}
	col := s.c.d.ColumnName(names(p[from : at+1])...)
	t := joinTarget{
		alias: fmt.Sprintf("t%d", len(s.byPath)+1),
		table: detailTable(parent.table, col),
		links: append(append([]string(nil), parent.links...), indexColumn(col)),
	}
	var on []string
	for _, k := range s.c.keys {
		on = append(on, t.alias+"."+s.c.q(k.name)+" = "+parent.alias+"."+s.c.q(k.name))
	}
	for _, l := range parent.links {
		on = append(on, t.alias+"."+s.c.q(l)+" = "+parent.alias+"."+s.c.q(l))
	}
	s.joins = append(s.joins, "LEFT JOIN "+s.c.q(t.table)+" "+t.alias+" ON "+strings.Join(on, " AND "))
	s.byPath[key] = t
	return t
}

func names(p record.Path) []string {
	out := make([]string, len(p))
	for i, st := range p {
		out[i] = st.Name
	}
	return out
}
