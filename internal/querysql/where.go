package querysql

import (
	"fmt"
	"strings"

	"github.com/roach88/relmap/internal/dialect"
	"github.com/roach88/relmap/internal/ir"
	"github.com/roach88/relmap/internal/queryir"
	"github.com/roach88/relmap/internal/record"
)

// Scope resolves filter and sort references to qualified column
// expressions. Resolving an array-element field may make the scope add the
// joins that reach its detail table.
type Scope interface {
	FieldColumn(f *record.Field) (string, error)
	ArrayColumn(a *record.Array) (string, error)
}

// Where renders a filter tree as a WHERE clause body. The root group's
// members are joined without parentheses; nested groups are parenthesized.
// Values are always bound through args, never interpolated.
func Where(root *queryir.Group, scope Scope, d dialect.Dialect, args *dialect.Args) (string, error) {
	if root == nil {
		return "", nil
	}
	w := &whereCompiler{scope: scope, d: d, args: args}
	return w.join(root)
}

type whereCompiler struct {
	scope Scope
	d     dialect.Dialect
	args  *dialect.Args
}

func (w *whereCompiler) join(g *queryir.Group) (string, error) {
	sep := " AND "
	if g.Or {
		sep = " OR "
	}
	parts := make([]string, 0, len(g.Nodes))
	for _, n := range g.Nodes {
		s, err := w.node(n)
		if err != nil {
			return "", err
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, sep), nil
}

func (w *whereCompiler) node(n queryir.Node) (string, error) {
	switch n := n.(type) {
	case *queryir.Compare:
		return w.compare(n)
	case *queryir.Between:
		col, err := w.scope.FieldColumn(n.Field)
		if err != nil {
			return "", err
		}
		lo, err := w.value(n.Field, n.Lo)
		if err != nil {
			return "", err
		}
		hi, err := w.value(n.Field, n.Hi)
		if err != nil {
			return "", err
		}
		return col + " BETWEEN " + lo + " AND " + hi, nil
	case *queryir.In:
		col, err := w.scope.FieldColumn(n.Field)
		if err != nil {
			return "", err
		}
		vals := make([]string, len(n.Values))
		for i, v := range n.Values {
			if vals[i], err = w.value(n.Field, v); err != nil {
				return "", err
			}
		}
		return col + " IN (" + strings.Join(vals, ", ") + ")", nil
	case *queryir.Null:
		col, err := w.scope.FieldColumn(n.Field)
		if err != nil {
			return "", err
		}
		if n.Not {
			return col + " IS NOT NULL", nil
		}
		return col + " IS NULL", nil
	case *queryir.Group:
		s, err := w.join(n)
		if err != nil {
			return "", err
		}
		return "(" + s + ")", nil
	case *queryir.Not:
		s, err := w.node(n.Node)
		if err != nil {
			return "", err
		}
		switch n.Node.(type) {
		case *queryir.Group, *queryir.Raw:
			return "NOT " + s, nil
		}
		return "NOT (" + s + ")", nil
	case *queryir.Raw:
		if n.SQL == "" {
			return "", ir.Errorf(ir.ErrCodeUnsupported, "literal has no SQL fragment")
		}
		return "(" + n.SQL + ")", nil
	default:
		return "", ir.Errorf(ir.ErrCodeUnsupported, "unsupported filter node %T", n)
	}
}

func (w *whereCompiler) compare(c *queryir.Compare) (string, error) {
	col, err := w.scope.FieldColumn(c.Field)
	if err != nil {
		return "", err
	}
	if ir.IsNull(c.Value) && w.d.Flags().NullNeedsIs {
		switch c.Op {
		case queryir.OpEq:
			return col + " IS NULL", nil
		case queryir.OpNe:
			return col + " IS NOT NULL", nil
		}
	}
	v, err := w.value(c.Field, c.Value)
	if err != nil {
		return "", err
	}
	return col + " " + c.Op.String() + " " + v, nil
}

func (w *whereCompiler) value(f *record.Field, v ir.Value) (string, error) {
	s, err := w.d.RenderValue(w.args, f, v)
	if err != nil {
		return "", fmt.Errorf("filter on %s: %w", f.Name(), err)
	}
	return s, nil
}
