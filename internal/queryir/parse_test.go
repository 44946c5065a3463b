package queryir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/relmap/internal/ir"
	"github.com/roach88/relmap/internal/record"
)

func parseFixture() (*record.Record, *record.Index) {
	r := record.NewSpec("Order").
		Field("k", record.KindInt, record.Key()).
		Field("status", record.KindText).
		Field("note", record.KindText, record.Nullable()).
		Array("items", record.NewSpec("items").
			Field("sku", record.KindText).
			Field("qty", record.KindInt)).
		New()
	return r, record.NewIndex(r)
}

func TestParse_Stream(t *testing.T) {
	r, ix := parseFixture()
	items, err := Parse("status = 'open' and (k between 1 and 9 or not items.sku in ('a', 'it''s'))", ix)
	require.NoError(t, err)

	sku, _ := ix.Lookup("items.sku")
	kinds := make([]Kind, len(items))
	for i, it := range items {
		kinds[i] = it.Kind
	}
	assert.Equal(t, []Kind{
		KindAndBegin,
		KindField, KindEq, KindConst,
		KindOrBegin,
		KindField, KindBetween, KindConst, KindConst,
		KindNot, KindField, KindIn, KindConst, KindConst, KindInEnd,
		KindOrEnd,
		KindAndEnd,
	}, kinds)
	assert.Same(t, r.Field("status"), items[1].Field)
	assert.Same(t, sku.Field, items[10].Field)
	assert.Equal(t, ir.Text("it's"), items[13].Value)

	_, err = Build(items)
	require.NoError(t, err)
}

func TestParse_NullTests(t *testing.T) {
	_, ix := parseFixture()
	items, err := Parse("note IS NOT NULL OR note = NULL", ix)
	require.NoError(t, err)
	root, err := Build(items)
	require.NoError(t, err)

	or := root.Nodes[0].(*Group)
	assert.Equal(t, &Null{Field: or.Nodes[0].(*Null).Field, Not: true}, or.Nodes[0])
	assert.Equal(t, ir.Null{}, or.Nodes[1].(*Compare).Value)
}

func TestParse_Errors(t *testing.T) {
	_, ix := parseFixture()

	_, err := Parse("missing = 1", ix)
	assert.ErrorIs(t, err, ir.ErrUnresolvedField)

	_, err = Parse("items = 1", ix)
	assert.ErrorIs(t, err, ir.ErrUnresolvedField, "arrays are not comparable")

	_, err = Parse("k = ", ix)
	assert.ErrorIs(t, err, ir.ErrMalformedFilter)
}
