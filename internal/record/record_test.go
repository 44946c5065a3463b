package record_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/relmap/internal/ir"
	"github.com/roach88/relmap/internal/record"
	"github.com/roach88/relmap/internal/testutil"
)

func TestSpecBuildsOrderedMembers(t *testing.T) {
	r := testutil.OrderSpec().New()

	var names []string
	for _, m := range r.Members() {
		names = append(names, m.Name())
	}
	assert.Equal(t, []string{"k", "v", "note", "shipping", "items", "tags"}, names)

	keys := r.Keys()
	require.Len(t, keys, 1)
	assert.Equal(t, "k", keys[0].Name())
	assert.Equal(t, "v", r.VersionField().Name())
	assert.True(t, r.Array("tags").IsScalar())
	assert.Equal(t, 40, r.Field("note").Length())
}

func TestFieldSetCoercesAndMarksModified(t *testing.T) {
	r := testutil.CustomerSpec().New()

	rev := r.Field("rev")
	require.NoError(t, rev.Set(ir.Int(3)))
	assert.Equal(t, ir.Uint(3), rev.Value())
	assert.True(t, rev.Modified())

	err := rev.Set(ir.Int(-1))
	require.Error(t, err)
	assert.True(t, ir.IsStructural(err))

	joined := r.Field("joined")
	require.NoError(t, joined.Load(ir.Text("2024-03-01T10:00:00Z")))
	assert.False(t, joined.Modified())
	assert.True(t, joined.Time().Equal(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)))

	assert.Error(t, r.Field("active").Set(ir.Text("yes")))

	joined.SetNull()
	assert.True(t, joined.IsNull())
}

func TestRuneLengthCountsNormalizedRunes(t *testing.T) {
	f := record.NewField("name", record.KindText, record.Length(3))
	require.NoError(t, f.SetText("e\u0301te"))
	assert.Equal(t, 3, f.RuneLength())
}

func TestArrayHolesAndResize(t *testing.T) {
	r := testutil.NewOrder(1, 1,
		testutil.Item{SKU: "a", Qty: 1},
		testutil.Item{SKU: "b", Qty: 2},
		testutil.Item{SKU: "c", Qty: 3},
	)
	items := r.Array("items")
	assert.Equal(t, 3, items.InitialSize())

	require.NoError(t, items.SetNull(1))
	assert.Nil(t, items.At(1))
	assert.Error(t, items.SetNull(5))

	items.Resize(2)
	assert.Equal(t, 2, items.Len())
	assert.Equal(t, 3, items.InitialSize())

	e, err := items.Ensure(4)
	require.NoError(t, err)
	assert.NotNil(t, e)
	assert.Equal(t, 5, items.Len())
	assert.Nil(t, items.At(3))

	items.MarkLoaded()
	assert.Equal(t, 5, items.InitialSize())
}

func TestCloneIsDeep(t *testing.T) {
	r := testutil.NewOrder(7, 2, testutil.Item{SKU: "a", Qty: 1, Parts: []string{"p"}})
	c := r.Clone()

	require.NoError(t, c.Field("k").SetInt(8))
	require.NoError(t, c.Array("items").At(0).Field("qty").SetInt(9))
	c.Array("items").Append()

	assert.Equal(t, int64(7), r.Field("k").Int())
	assert.Equal(t, int64(1), r.Array("items").At(0).Field("qty").Int())
	assert.Equal(t, 1, r.Array("items").Len())
	assert.Equal(t, 1, c.Array("items").InitialSize())
	assert.Equal(t, "p", c.Array("items").At(0).Array("parts").At(0).Field("code").Text())
}

func TestAcceptChanges(t *testing.T) {
	r := testutil.OrderSpec().New()
	require.NoError(t, r.Field("note").SetText("x"))
	testutil.AppendItem(r.Array("items"), testutil.Item{SKU: "a", Qty: 1})
	assert.True(t, r.HasModified())

	r.AcceptChanges()
	assert.False(t, r.HasModified())
	assert.Equal(t, 1, r.Array("items").InitialSize())
}

func TestWalkVisitsInOrder(t *testing.T) {
	r := testutil.NewOrder(1, 1, testutil.Item{SKU: "a", Qty: 1, Parts: []string{"x"}})
	r.Array("items").Resize(2)

	var seen []string
	err := record.Walk(r, record.Visitor{
		Field: func(p record.Path, f *record.Field) error {
			seen = append(seen, p.String())
			return nil
		},
		Element: func(p record.Path, a *record.Array, i int, e *record.Record) (bool, error) {
			if e == nil {
				seen = append(seen, p.String()+"=hole")
			}
			return true, nil
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"k", "v", "note",
		"shipping.city", "shipping.zip",
		"items[0].sku", "items[0].qty", "items[0].parts[0].code",
		"items[1]=hole",
	}, seen)
}

func TestSpecValidate(t *testing.T) {
	require.NoError(t, testutil.OrderSpec().Validate())

	twoVersions := record.NewSpec("X").
		Field("a", record.KindInt, record.Version()).
		Field("b", record.KindInt, record.Version())
	assert.ErrorContains(t, twoVersions.Validate(), "more than one version")

	textVersion := record.NewSpec("X").Field("a", record.KindText, record.Version())
	assert.ErrorContains(t, textVersion.Validate(), "must be int or uint")

	keyInArray := record.NewSpec("X").
		Array("items", record.NewSpec("items").Field("id", record.KindInt, record.Key()))
	assert.ErrorContains(t, keyInArray.Validate(), "key field inside an array")

	dup := record.NewSpec("X").Field("a", record.KindInt).Field("a", record.KindText)
	assert.ErrorContains(t, dup.Validate(), "duplicate member")
}
