package docstore

import (
	"regexp"
	"slices"
	"strings"

	"github.com/roach88/relmap/internal/ir"
	"github.com/roach88/relmap/internal/queryir"
	"github.com/roach88/relmap/internal/record"
)

// Filter renders a filter tree as a document filter. Field references are
// resolved through ix to dotted storage paths ("items.sku"); a nil tree
// matches everything.
func Filter(root *queryir.Group, ix *record.Index) (D, error) {
	if root == nil {
		return D{}, nil
	}
	f := &filterCompiler{ix: ix}
	if len(root.Nodes) == 1 {
		return f.node(root.Nodes[0])
	}
	return f.node(root)
}

type filterCompiler struct {
	ix *record.Index
}

func (fc *filterCompiler) path(f *record.Field) (string, error) {
	e, err := fc.ix.Field(f)
	if err != nil {
		return "", err
	}
	return e.Path.Dotted(), nil
}

func (fc *filterCompiler) value(f *record.Field, v ir.Value) (any, error) {
	if ir.IsNull(v) {
		return nil, nil
	}
	cv, err := f.Coerce(v)
	if err != nil {
		return nil, err
	}
	return ir.ToAny(cv), nil
}

var compareKeys = map[queryir.CompareOp]string{
	queryir.OpNe: "$ne",
	queryir.OpLt: "$lt",
	queryir.OpLe: "$lte",
	queryir.OpGt: "$gt",
	queryir.OpGe: "$gte",
}

func (fc *filterCompiler) node(n queryir.Node) (D, error) {
	switch n := n.(type) {
	case *queryir.Compare:
		p, err := fc.path(n.Field)
		if err != nil {
			return nil, err
		}
		v, err := fc.value(n.Field, n.Value)
		if err != nil {
			return nil, err
		}
		switch n.Op {
		case queryir.OpEq:
			return D{{Key: p, Value: v}}, nil
		case queryir.OpLike:
			s, ok := v.(string)
			if !ok {
				return nil, ir.FieldError(ir.ErrCodeTypeMismatch, p, "LIKE needs a text pattern")
			}
			return D{{Key: p, Value: D{{Key: "$regex", Value: LikePattern(s)}}}}, nil
		default:
			return D{{Key: p, Value: D{{Key: compareKeys[n.Op], Value: v}}}}, nil
		}
	case *queryir.Between:
		p, err := fc.path(n.Field)
		if err != nil {
			return nil, err
		}
		lo, err := fc.value(n.Field, n.Lo)
		if err != nil {
			return nil, err
		}
		hi, err := fc.value(n.Field, n.Hi)
		if err != nil {
			return nil, err
		}
		return D{{Key: p, Value: D{{Key: "$gte", Value: lo}, {Key: "$lte", Value: hi}}}}, nil
	case *queryir.In:
		p, err := fc.path(n.Field)
		if err != nil {
			return nil, err
		}
		vals := make([]any, len(n.Values))
		for i, v := range n.Values {
			if vals[i], err = fc.value(n.Field, v); err != nil {
				return nil, err
			}
		}
		return D{{Key: p, Value: D{{Key: "$in", Value: vals}}}}, nil
	case *queryir.Null:
		p, err := fc.path(n.Field)
		if err != nil {
			return nil, err
		}
		if n.Not {
			return D{{Key: p, Value: D{{Key: "$ne", Value: nil}}}}, nil
		}
		return D{{Key: p, Value: nil}}, nil
	case *queryir.Group:
		key := "$and"
		if n.Or {
			key = "$or"
		}
		list := make([]any, 0, len(n.Nodes))
		for _, c := range n.Nodes {
			d, err := fc.node(c)
			if err != nil {
				return nil, err
			}
			list = append(list, d)
		}
		return D{{Key: key, Value: list}}, nil
	case *queryir.Not:
		d, err := fc.node(n.Node)
		if err != nil {
			return nil, err
		}
		return D{{Key: "$nor", Value: []any{d}}}, nil
	case *queryir.Raw:
		if len(n.Doc) == 0 {
			return nil, ir.Errorf(ir.ErrCodeUnsupported, "literal has no document fragment")
		}
		list := make([]any, len(n.Doc))
		for i, frag := range n.Doc {
			if m, ok := frag.(map[string]any); ok {
				list[i] = fromMap(m)
				continue
			}
			list[i] = frag
		}
		if len(list) == 1 {
			if d, ok := list[0].(D); ok {
				return d, nil
			}
		}
		return D{{Key: "$and", Value: list}}, nil
	default:
		return nil, ir.Errorf(ir.ErrCodeUnsupported, "unsupported filter node %T", n)
	}
}

// LikePattern converts a SQL LIKE pattern into an anchored regular
// expression: % matches any run, _ any single character.
func LikePattern(like string) string {
	var b strings.Builder
	b.WriteByte('^')
	for _, r := range like {
		switch r {
		case '%':
			b.WriteString(".*")
		case '_':
			b.WriteByte('.')
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteByte('$')
	return b.String()
}

// Sort renders a sort spec as {path: 1|-1} in declaration order. Document
// stores keep arrays inline, so array keys are rejected.
func Sort(spec *queryir.SortSpec, ix *record.Index) (D, error) {
	var out D
	for _, k := range spec.Keys() {
		if k.Array != nil {
			return nil, ir.FieldError(ir.ErrCodeUnsupported, k.Array.Name(), "document stores cannot sort by element index")
		}
		e, err := ix.Field(k.Field)
		if err != nil {
			return nil, err
		}
		dir := int64(1)
		if k.Dir == queryir.Desc {
			dir = -1
		}
		out = append(out, E{Key: e.Path.Dotted(), Value: dir})
	}
	return out, nil
}

// fromMap converts a plain map into a document with sorted keys.
func fromMap(m map[string]any) D {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	d := make(D, 0, len(m))
	for _, k := range keys {
		v := m[k]
		if sub, ok := v.(map[string]any); ok {
			v = fromMap(sub)
		}
		d = append(d, E{Key: k, Value: v})
	}
	return d
}
