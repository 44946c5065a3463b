package queryir

import (
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"github.com/roach88/relmap/internal/ir"
	"github.com/roach88/relmap/internal/record"
)

var filterLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Keyword", Pattern: `(?i)\b(AND|OR|NOT|IN|BETWEEN|LIKE|IS|NULL|TRUE|FALSE)\b`},
	{Name: "Ident", Pattern: `[a-zA-Z_][a-zA-Z0-9_]*(?:\.[a-zA-Z_][a-zA-Z0-9_]*)*`},
	{Name: "String", Pattern: `'(?:''|[^'])*'`},
	{Name: "Int", Pattern: `-?\d+`},
	{Name: "Op", Pattern: `<>|!=|<=|>=|=|<|>`},
	{Name: "Punct", Pattern: `[(),]`},
	{Name: "Whitespace", Pattern: `\s+`},
})

type exprOr struct {
	And []*exprAnd `@@ ( "OR" @@ )*`
}

type exprAnd struct {
	Unary []*exprUnary `@@ ( "AND" @@ )*`
}

type exprUnary struct {
	Not     *exprUnary   `  "NOT" @@`
	Primary *exprPrimary `| @@`
}

type exprPrimary struct {
	Group *exprOr   `  "(" @@ ")"`
	Pred  *exprPred `| @@`
}

type exprPred struct {
	Pos   lexer.Position
	Field string    `@Ident`
	Test  *exprTest `@@`
}

type exprTest struct {
	Cmp     *exprCmp     `  @@`
	Like    *exprValue   `| "LIKE" @@`
	Between *exprBetween `| "BETWEEN" @@`
	In      *exprIn      `| "IN" "(" @@ ")"`
	Is      *exprIs      `| "IS" @@`
}

type exprCmp struct {
	Op    string     `@Op`
	Value *exprValue `@@`
}

type exprBetween struct {
	Lo *exprValue `@@`
	Hi *exprValue `"AND" @@`
}

type exprIn struct {
	Values []*exprValue `@@ ( "," @@ )*`
}

type exprIs struct {
	Not  bool `@"NOT"?`
	Null bool `@"NULL"`
}

type exprValue struct {
	String *string `  @String`
	Int    *int64  `| @Int`
	Bool   *string `| @("TRUE" | "FALSE")`
	Null   bool    `| @"NULL"`
}

var filterParser = participle.MustBuild[exprOr](
	participle.Lexer(filterLexer),
	participle.Elide("Whitespace"),
	participle.CaseInsensitive("Keyword"),
	participle.UseLookahead(2),
)

// Parse reads a textual filter such as
//
//	status = 'open' AND (qty BETWEEN 1 AND 9 OR NOT items.sku IN ('a', 'b'))
//
// and emits the equivalent item stream. Field names are dotted member paths
// resolved through ix; array elements are addressed without an index
// ("items.sku").
func Parse(text string, ix *record.Index) ([]Item, error) {
	tree, err := filterParser.ParseString("", text)
	if err != nil {
		return nil, ir.Wrap(ir.ErrCodeMalformedFilter, err, "parse filter")
	}
	p := &emitter{ix: ix}
	if err := p.or(tree); err != nil {
		return nil, err
	}
	return p.items, nil
}

type emitter struct {
	ix    *record.Index
	items []Item
}

func (p *emitter) push(items ...Item) {
	p.items = append(p.items, items...)
}

func (p *emitter) or(e *exprOr) error {
	if len(e.And) == 1 {
		return p.and(e.And[0])
	}
	p.push(Token(KindOrBegin))
	for _, a := range e.And {
		if err := p.and(a); err != nil {
			return err
		}
	}
	p.push(Token(KindOrEnd))
	return nil
}

func (p *emitter) and(e *exprAnd) error {
	if len(e.Unary) == 1 {
		return p.unary(e.Unary[0])
	}
	p.push(Token(KindAndBegin))
	for _, u := range e.Unary {
		if err := p.unary(u); err != nil {
			return err
		}
	}
	p.push(Token(KindAndEnd))
	return nil
}

func (p *emitter) unary(e *exprUnary) error {
	if e.Not != nil {
		p.push(Token(KindNot))
		return p.unary(e.Not)
	}
	if e.Primary.Group != nil {
		return p.or(e.Primary.Group)
	}
	return p.pred(e.Primary.Pred)
}

var textOps = map[string]Kind{
	"=":  KindEq,
	"<>": KindNe,
	"!=": KindNe,
	"<":  KindLt,
	"<=": KindLe,
	">":  KindGt,
	">=": KindGe,
}

func (p *emitter) pred(e *exprPred) error {
	entry, ok := p.ix.Lookup(e.Field)
	if !ok || entry.Field == nil {
		return ir.FieldError(ir.ErrCodeUnresolvedField, e.Field, "no field at offset %d", e.Pos.Offset)
	}
	p.push(Field(entry.Field))
	t := e.Test
	switch {
	case t.Cmp != nil:
		p.push(Token(textOps[t.Cmp.Op]), Const(t.Cmp.Value.value()))
	case t.Like != nil:
		p.push(Token(KindLike), Const(t.Like.value()))
	case t.Between != nil:
		p.push(Token(KindBetween), Const(t.Between.Lo.value()), Const(t.Between.Hi.value()))
	case t.In != nil:
		p.push(Token(KindIn))
		for _, v := range t.In.Values {
			p.push(Const(v.value()))
		}
		p.push(Token(KindInEnd))
	case t.Is != nil:
		if t.Is.Not {
			p.push(Token(KindNotNull))
		} else {
			p.push(Token(KindIsNull))
		}
	}
	return nil
}

func (v *exprValue) value() ir.Value {
	switch {
	case v.String != nil:
		s := *v.String
		return ir.Text(strings.ReplaceAll(s[1:len(s)-1], "''", "'"))
	case v.Int != nil:
		return ir.Int(*v.Int)
	case v.Bool != nil:
		return ir.Bool(strings.EqualFold(*v.Bool, "true"))
	default:
		return ir.Null{}
	}
}
