package record_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/relmap/internal/ir"
	"github.com/roach88/relmap/internal/record"
	"github.com/roach88/relmap/internal/testutil"
)

func TestIndexResolvesFieldsAndArrays(t *testing.T) {
	r := testutil.OrderSpec().New()
	ix := record.NewIndex(r)

	e, err := ix.Field(r.Record("shipping").Field("city"))
	require.NoError(t, err)
	assert.Equal(t, "shipping.city", e.Path.Dotted())

	qty := r.Array("items").Schema().Field("qty")
	e, err = ix.Field(qty)
	require.NoError(t, err)
	assert.Equal(t, "items.qty", e.Path.Dotted())
	assert.Equal(t, []int{0}, e.Path.Arrays())

	parts := r.Array("items").Schema().Array("parts")
	e, err = ix.Array(parts)
	require.NoError(t, err)
	assert.Equal(t, "items.parts", e.Path.Dotted())

	found, ok := ix.Lookup("items.parts.code")
	require.True(t, ok)
	assert.Equal(t, "code", found.Field.Name())
}

func TestIndexRejectsForeignFields(t *testing.T) {
	a := testutil.OrderSpec().New()
	b := testutil.OrderSpec().New()
	ix := record.NewIndex(a)

	_, err := ix.Field(b.Field("k"))
	require.Error(t, err)
	assert.True(t, ir.IsStructural(err))

	// Re-indexing b hands out the same handle numbers; identity still differs.
	record.NewIndex(b)
	_, err = ix.Field(b.Field("k"))
	assert.Error(t, err)
	_, err = ix.Field(nil)
	assert.Error(t, err)
}

func TestPathString(t *testing.T) {
	p := record.Path{
		{Kind: record.StepArray, Name: "items", Index: 1},
		{Kind: record.StepRecord, Name: "dim", Index: -1},
		{Kind: record.StepField, Name: "w", Index: -1},
	}
	assert.Equal(t, "items[1].dim.w", p.String())
	assert.Equal(t, "items.dim.w", p.Dotted())
}
