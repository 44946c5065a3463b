package queryir

import (
	"fmt"

	"github.com/roach88/relmap/internal/ir"
	"github.com/roach88/relmap/internal/record"
)

// Kind identifies a query item.
type Kind int

const (
	KindField Kind = iota + 1
	KindConst

	KindEq
	KindNe
	KindLt
	KindLe
	KindGt
	KindGe
	KindLike
	KindBetween
	KindIn
	KindInEnd
	KindIsNull
	KindNotNull

	KindAndBegin
	KindAndEnd
	KindOrBegin
	KindOrEnd
	KindNot

	KindLiteralBegin
	KindLiteral
	KindLiteralEnd
)

var kindNames = map[Kind]string{
	KindField:        "FIELD",
	KindConst:        "CONST",
	KindEq:           "=",
	KindNe:           "<>",
	KindLt:           "<",
	KindLe:           "<=",
	KindGt:           ">",
	KindGe:           ">=",
	KindLike:         "LIKE",
	KindBetween:      "BETWEEN",
	KindIn:           "IN",
	KindInEnd:        "IN-END",
	KindIsNull:       "IS NULL",
	KindNotNull:      "IS NOT NULL",
	KindAndBegin:     "AND(",
	KindAndEnd:       ")AND",
	KindOrBegin:      "OR(",
	KindOrEnd:        ")OR",
	KindNot:          "NOT",
	KindLiteralBegin: "LITERAL(",
	KindLiteral:      "LITERAL",
	KindLiteralEnd:   ")LITERAL",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Item is one token of a flat filter stream.
//
// A predicate is a field reference, an operator and the operator's
// constants: Field Eq Const, Field Between Const Const, Field In Const...
// InEnd, Field IsNull. Groups are bracketed by AndBegin/AndEnd or
// OrBegin/OrEnd; the stream itself is an implicit AND group. Not negates
// the next completed predicate or group. LiteralBegin Literal... LiteralEnd
// passes store-native fragments through as one predicate.
type Item struct {
	Kind  Kind
	Field *record.Field
	Value ir.Value

	// SQL and Doc carry the fragment of a Literal item for the relational
	// and the document target.
	SQL string
	Doc any
}

// Field references f.
func Field(f *record.Field) Item { return Item{Kind: KindField, Field: f} }

// Const is an operator constant.
func Const(v ir.Value) Item { return Item{Kind: KindConst, Value: v} }

// Token is an operator or grouping item.
func Token(k Kind) Item { return Item{Kind: k} }

// Literal is a raw fragment. Either target may be empty when the filter is
// only ever rendered for the other one.
func Literal(sql string, doc any) Item { return Item{Kind: KindLiteral, SQL: sql, Doc: doc} }

// Node is a compiled filter node.
//
// This is a sealed interface; renderers switch over the concrete types:
// *Compare, *Between, *In, *Null, *Group, *Not and *Raw.
type Node interface {
	filterNode()
}

// CompareOp is a binary comparison.
type CompareOp int

const (
	OpEq CompareOp = iota + 1
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
	OpLike
)

// String returns the SQL spelling of the operator.
func (o CompareOp) String() string {
	switch o {
	case OpEq:
		return "="
	case OpNe:
		return "<>"
	case OpLt:
		return "<"
	case OpLe:
		return "<="
	case OpGt:
		return ">"
	case OpGe:
		return ">="
	case OpLike:
		return "LIKE"
	}
	return fmt.Sprintf("op(%d)", int(o))
}

// Compare is field <op> value. A Null value under OpEq or OpNe is a null
// test.
type Compare struct {
	Op    CompareOp
	Field *record.Field
	Value ir.Value
}

// Between is field BETWEEN lo AND hi, inclusive.
type Between struct {
	Field  *record.Field
	Lo, Hi ir.Value
}

// In is field IN (values...). Values is never empty.
type In struct {
	Field  *record.Field
	Values []ir.Value
}

// Null is field IS [NOT] NULL.
type Null struct {
	Field *record.Field
	Not   bool
}

// Group joins its nodes with AND, or with OR when Or is set.
type Group struct {
	Or    bool
	Nodes []Node
}

// Not negates one node.
type Not struct {
	Node Node
}

// Raw is a passed-through fragment.
type Raw struct {
	SQL string
	Doc []any
}

func (*Compare) filterNode() {}
func (*Between) filterNode() {}
func (*In) filterNode()      {}
func (*Null) filterNode()    {}
func (*Group) filterNode()   {}
func (*Not) filterNode()     {}
func (*Raw) filterNode()     {}

// Fields returns every field referenced under n, in stream order.
func Fields(n Node) []*record.Field {
	var out []*record.Field
	var walk func(Node)
	walk = func(n Node) {
		switch n := n.(type) {
		case *Compare:
			out = append(out, n.Field)
		case *Between:
			out = append(out, n.Field)
		case *In:
			out = append(out, n.Field)
		case *Null:
			out = append(out, n.Field)
		case *Group:
			for _, c := range n.Nodes {
				walk(c)
			}
		case *Not:
			walk(n.Node)
		}
	}
	if n != nil {
		walk(n)
	}
	return out
}
