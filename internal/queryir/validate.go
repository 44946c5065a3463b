package queryir

import (
	"fmt"

	"github.com/roach88/relmap/internal/ir"
)

// ValidationResult reports which targets can render a filter tree.
type ValidationResult struct {
	// SQL is false when a literal carries no SQL fragment.
	SQL bool
	// Document is false when a literal carries no document fragment.
	Document bool
	// Warnings lists every finding, in tree order.
	Warnings []string
}

// Validate checks a built tree against both renderer targets. A nil tree
// renders everywhere.
//
// Validate is a pure function with no side effects.
func Validate(root Node) ValidationResult {
	v := &validator{res: ValidationResult{SQL: true, Document: true}}
	if root != nil {
		v.node(root)
	}
	return v.res
}

type validator struct {
	res ValidationResult
}

func (v *validator) warn(format string, args ...any) {
	v.res.Warnings = append(v.res.Warnings, fmt.Sprintf(format, args...))
}

func (v *validator) node(n Node) {
	switch n := n.(type) {
	case *Compare:
		if n.Op == OpLike {
			if _, ok := n.Value.(ir.Text); !ok {
				v.warn("LIKE on %s needs a text pattern", n.Field.Name())
				v.res.SQL, v.res.Document = false, false
			}
		} else if ir.IsNull(n.Value) && n.Op != OpEq && n.Op != OpNe {
			v.warn("%s %s NULL is never true", n.Field.Name(), n.Op)
		}
	case *Between:
		if ir.IsNull(n.Lo) || ir.IsNull(n.Hi) {
			v.warn("BETWEEN on %s with a NULL bound is never true", n.Field.Name())
		}
	case *In:
		for _, x := range n.Values {
			if ir.IsNull(x) {
				v.warn("IN on %s lists NULL, which never matches", n.Field.Name())
				break
			}
		}
	case *Null:
	case *Group:
		for _, c := range n.Nodes {
			v.node(c)
		}
	case *Not:
		v.node(n.Node)
	case *Raw:
		if n.SQL == "" {
			v.warn("literal has no SQL fragment")
			v.res.SQL = false
		}
		if len(n.Doc) == 0 {
			v.warn("literal has no document fragment")
			v.res.Document = false
		}
	default:
		v.warn("unknown node %T", n)
		v.res.SQL, v.res.Document = false, false
	}
}
