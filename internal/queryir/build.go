package queryir

import (
	"strings"

	"github.com/roach88/relmap/internal/ir"
	"github.com/roach88/relmap/internal/record"
)

// Build compiles a flat item stream into a filter tree in one left to
// right pass.
//
// The result is the root AND group, or nil for an empty stream. Every
// malformation (unmatched group, operator arity, dangling NOT, empty IN or
// group, open literal) is a MALFORMED_FILTER error carrying the offending
// item position.
func Build(items []Item) (*Group, error) {
	b := &builder{stack: []frame{{g: &Group{}, begin: -1}}}
	for i, it := range items {
		if err := b.step(i, it); err != nil {
			return nil, err
		}
	}
	if err := b.finish(); err != nil {
		return nil, err
	}
	root := b.stack[0].g
	if len(root.Nodes) == 0 {
		return nil, nil
	}
	return root, nil
}

// frame is one open group.
type frame struct {
	g     *Group
	not   bool
	begin int
}

// builder is the stream state machine: the group stack, the pending
// predicate (field, operator, constants collected so far), the pending
// negation and an open literal region.
type builder struct {
	stack []frame
	not   bool
	notAt int

	field   *record.Field
	fieldAt int
	op      Kind
	opAt    int
	consts  []ir.Value

	lit   *Raw
	litAt int
	sql   strings.Builder
}

func (b *builder) pending() bool {
	return b.field != nil || b.op != 0
}

func (b *builder) step(i int, it Item) error {
	if b.lit != nil {
		switch it.Kind {
		case KindLiteral:
			b.sql.WriteString(it.SQL)
			if it.Doc != nil {
				b.lit.Doc = append(b.lit.Doc, it.Doc)
			}
			return nil
		case KindLiteralEnd:
			b.lit.SQL = b.sql.String()
			if b.lit.SQL == "" && len(b.lit.Doc) == 0 {
				return ir.FilterError(i, "empty literal")
			}
			lit := b.lit
			b.lit = nil
			b.emit(lit)
			return nil
		default:
			return ir.FilterError(i, "%s inside a literal region", it.Kind)
		}
	}

	switch it.Kind {
	case KindField:
		if it.Field == nil {
			return ir.FilterError(i, "field item without a field")
		}
		if b.pending() {
			return ir.FilterError(i, "field %s follows an incomplete predicate", it.Field.Name())
		}
		b.field, b.fieldAt = it.Field, i

	case KindEq, KindNe, KindLt, KindLe, KindGt, KindGe, KindLike, KindBetween, KindIn:
		if b.field == nil || b.op != 0 {
			return ir.FilterError(i, "%s must follow exactly one field", it.Kind)
		}
		b.op, b.opAt, b.consts = it.Kind, i, nil

	case KindIsNull, KindNotNull:
		if b.field == nil || b.op != 0 {
			return ir.FilterError(i, "%s must follow exactly one field", it.Kind)
		}
		b.emit(&Null{Field: b.field, Not: it.Kind == KindNotNull})
		b.reset()

	case KindConst:
		if b.op == 0 {
			return ir.FilterError(i, "constant without an operator")
		}
		v := it.Value
		if v == nil {
			v = ir.Null{}
		}
		b.consts = append(b.consts, v)
		switch b.op {
		case KindBetween:
			if len(b.consts) == 2 {
				b.emit(&Between{Field: b.field, Lo: b.consts[0], Hi: b.consts[1]})
				b.reset()
			}
		case KindIn:
		default:
			b.emit(&Compare{Op: compareOps[b.op], Field: b.field, Value: v})
			b.reset()
		}

	case KindInEnd:
		if b.op != KindIn {
			return ir.FilterError(i, "IN-END without IN")
		}
		if len(b.consts) == 0 {
			return ir.FilterError(b.opAt, "IN with no values")
		}
		b.emit(&In{Field: b.field, Values: b.consts})
		b.reset()

	case KindAndBegin, KindOrBegin:
		if b.pending() {
			return ir.FilterError(i, "group begins inside an incomplete predicate")
		}
		b.stack = append(b.stack, frame{g: &Group{Or: it.Kind == KindOrBegin}, not: b.not, begin: i})
		b.not = false

	case KindAndEnd, KindOrEnd:
		if b.pending() {
			return ir.FilterError(i, "group ends inside an incomplete predicate")
		}
		if b.not {
			return ir.FilterError(b.notAt, "NOT without a predicate")
		}
		if len(b.stack) == 1 {
			return ir.FilterError(i, "%s without a matching begin", it.Kind)
		}
		top := b.stack[len(b.stack)-1]
		if top.g.Or != (it.Kind == KindOrEnd) {
			return ir.FilterError(i, "%s closes a group opened at %d", it.Kind, top.begin)
		}
		if len(top.g.Nodes) == 0 {
			return ir.FilterError(top.begin, "empty group")
		}
		b.stack = b.stack[:len(b.stack)-1]
		var n Node = top.g
		if top.not {
			n = &Not{Node: n}
		}
		b.add(n)

	case KindNot:
		if b.pending() {
			return ir.FilterError(i, "NOT inside an incomplete predicate")
		}
		b.not = !b.not
		b.notAt = i

	case KindLiteralBegin:
		if b.pending() {
			return ir.FilterError(i, "literal inside an incomplete predicate")
		}
		b.lit, b.litAt = &Raw{}, i
		b.sql.Reset()

	case KindLiteral, KindLiteralEnd:
		return ir.FilterError(i, "%s outside a literal region", it.Kind)

	default:
		return ir.FilterError(i, "unknown item %s", it.Kind)
	}
	return nil
}

func (b *builder) finish() error {
	switch {
	case b.lit != nil:
		return ir.FilterError(b.litAt, "literal region is never closed")
	case b.op != 0:
		return ir.FilterError(b.opAt, "%s is missing constants", b.op)
	case b.field != nil:
		return ir.FilterError(b.fieldAt, "field %s has no operator", b.field.Name())
	case len(b.stack) > 1:
		top := b.stack[len(b.stack)-1]
		return ir.FilterError(top.begin, "group is never closed")
	case b.not:
		return ir.FilterError(b.notAt, "NOT without a predicate")
	}
	return nil
}

// emit adds a completed predicate, consuming the pending negation.
func (b *builder) emit(n Node) {
	if b.not {
		n = &Not{Node: n}
		b.not = false
	}
	b.add(n)
}

func (b *builder) add(n Node) {
	top := b.stack[len(b.stack)-1].g
	top.Nodes = append(top.Nodes, n)
}

func (b *builder) reset() {
	b.field, b.op, b.consts = nil, 0, nil
}

var compareOps = map[Kind]CompareOp{
	KindEq:   OpEq,
	KindNe:   OpNe,
	KindLt:   OpLt,
	KindLe:   OpLe,
	KindGt:   OpGt,
	KindGe:   OpGe,
	KindLike: OpLike,
}
