package changelog

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/relmap/internal/ir"
	"github.com/roach88/relmap/internal/testutil"
)

func TestDiff_NestedChanges(t *testing.T) {
	before := testutil.NewOrder(1, 2,
		testutil.Item{SKU: "a", Qty: 1},
		testutil.Item{SKU: "b", Qty: 2, Parts: []string{"x"}})
	after := before.Clone()
	require.NoError(t, after.Field("note").SetText("hi"))
	require.NoError(t, after.Array("items").At(1).Field("qty").SetInt(5))
	testutil.AppendItem(after.Array("items"), testutil.Item{SKU: "c", Qty: 3})
	require.NoError(t, after.Array("tags").AppendValue(ir.Text("red")))

	entries, err := Diff(before, after)
	require.NoError(t, err)
	assert.Equal(t, []Entry{
		{Path: "note", Kind: KindValue, New: "hi", OldNull: true},
		{Path: "items", Kind: KindSize, Old: "2", New: "3"},
		{Path: "items[1].qty", Kind: KindValue, Old: "2", New: "5"},
		{Path: "items[2].sku", Kind: KindValue, New: "c", OldNull: true},
		{Path: "items[2].qty", Kind: KindValue, New: "3", OldNull: true},
		{Path: "tags", Kind: KindSize, Old: "0", New: "1"},
		{Path: "tags[0].value", Kind: KindValue, New: "red", OldNull: true},
	}, entries)
}

func TestDiff_EmptyBaseline(t *testing.T) {
	r := testutil.CustomerSpec().New()
	require.NoError(t, r.Field("id").SetInt(1))
	require.NoError(t, r.Field("name").SetText("ann"))

	entries, err := Diff(nil, r)
	require.NoError(t, err)
	assert.Equal(t, []Entry{
		{Path: "id", Kind: KindValue, New: "1", OldNull: true},
		{Path: "name", Kind: KindValue, New: "ann", OldNull: true},
	}, entries)
}

func TestDiff_NullTransitions(t *testing.T) {
	before := testutil.CustomerSpec().New()
	require.NoError(t, before.Field("id").SetInt(1))
	require.NoError(t, before.Field("name").SetText(""))
	after := before.Clone()
	after.Field("name").SetNull()
	require.NoError(t, after.Field("balance").SetInt(0))

	entries, err := Diff(before, after)
	require.NoError(t, err)
	assert.Equal(t, []Entry{
		{Path: "name", Kind: KindValue, NewNull: true},
		{Path: "balance", Kind: KindValue, New: "0", OldNull: true},
	}, entries)
}

func TestDiff_ShrunkArrayAndHole(t *testing.T) {
	before := testutil.NewOrder(1, 1,
		testutil.Item{SKU: "a", Qty: 1},
		testutil.Item{SKU: "b", Qty: 2},
		testutil.Item{SKU: "c", Qty: 3})
	after := before.Clone()
	require.NoError(t, after.Array("items").SetNull(0))
	after.Array("items").Resize(2)

	entries, err := Diff(before, after)
	require.NoError(t, err)
	assert.Equal(t, []Entry{
		{Path: "items", Kind: KindSize, Old: "3", New: "2"},
		{Path: "items[0].sku", Kind: KindValue, Old: "a", NewNull: true},
		{Path: "items[0].qty", Kind: KindValue, Old: "1", NewNull: true},
	}, entries)
}

func TestDiff_HoleWithoutResize(t *testing.T) {
	before := testutil.NewOrder(1, 1,
		testutil.Item{SKU: "a", Qty: 1},
		testutil.Item{SKU: "b", Qty: 2})
	after := before.Clone()
	require.NoError(t, after.Array("items").SetNull(1))

	entries, err := Diff(before, after)
	require.NoError(t, err)
	assert.Equal(t, []Entry{
		{Path: "items[1].sku", Kind: KindValue, Old: "b", NewNull: true},
		{Path: "items[1].qty", Kind: KindValue, Old: "2", NewNull: true},
	}, entries)
}

func TestDiff_Errors(t *testing.T) {
	_, err := Diff(nil, nil)
	assert.ErrorIs(t, err, ir.ErrUnsupported)

	_, err = Diff(testutil.CustomerSpec().New(), testutil.OrderSpec().New())
	assert.ErrorIs(t, err, ir.ErrSchemaMismatch)
}

func TestChunk_ChainsLongValues(t *testing.T) {
	entries := []Entry{{Path: "note", Kind: KindValue, Old: "abcde", New: "abcdef"}}

	chunks, err := Chunk(entries, 3)
	require.NoError(t, err)
	assert.Equal(t, []Entry{
		{Path: "note", Kind: KindValue, Old: `abc\`, New: `abc\`, Escaped: true},
		{Path: "note", Kind: KindValue, Old: "de", New: "def", Escaped: true},
	}, chunks)

	assert.Equal(t, entries, Join(chunks))
}

func TestChunk_UnevenSides(t *testing.T) {
	entries := []Entry{{Path: "note", Kind: KindValue, New: "abcdefg", OldNull: true}}

	chunks, err := Chunk(entries, 3)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, []string{"", "", ""}, []string{chunks[0].Old, chunks[1].Old, chunks[2].Old})
	assert.Equal(t, []string{`abc\`, `def\`, "g"}, []string{chunks[0].New, chunks[1].New, chunks[2].New})

	assert.Equal(t, entries, Join(chunks))
}

func TestChunk_Backslashes(t *testing.T) {
	tests := []struct {
		name   string
		value  string
		chunks []string
	}{
		{"escaped value fits", `\b`, []string{`\\b`}},
		{"pair is never split", `ab\c`, []string{`ab\`, `\\c`}},
		{"trailing backslash", `abc\`, []string{`abc\`, `\\`}},
		{"only backslashes", `\\\`, []string{`\\\`, `\\\`, `\\`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries := []Entry{{Path: "p", Kind: KindValue, New: tt.value}}
			chunks, err := Chunk(entries, 3)
			require.NoError(t, err)

			var got []string
			for _, c := range chunks {
				got = append(got, c.New)
			}
			assert.Equal(t, tt.chunks, got)
			assert.Equal(t, entries, Join(chunks))
		})
	}
}

func TestJoin_Idempotent(t *testing.T) {
	entries := []Entry{
		{Path: "note", Kind: KindValue, Old: `C:\`, New: `C:\dir\`},
		{Path: "items", Kind: KindSize, Old: "1", New: "2"},
	}
	chunks, err := Chunk(entries, 2)
	require.NoError(t, err)

	once := Join(chunks)
	assert.Equal(t, entries, once)
	assert.Equal(t, once, Join(once))

	again, err := Chunk(chunks, 2)
	require.NoError(t, err)
	assert.Equal(t, chunks, again)
}

func TestJoin_SeparatesPaths(t *testing.T) {
	chunks := []Entry{
		{Path: "a", Kind: KindValue, New: `x\`, Escaped: true},
		{Path: "b", Kind: KindValue, New: "y", Escaped: true},
	}
	assert.Equal(t, []Entry{
		{Path: "a", Kind: KindValue, New: "x"},
		{Path: "b", Kind: KindValue, New: "y"},
	}, Join(chunks))
}

func TestUnescape(t *testing.T) {
	assert.Equal(t, "plain", Unescape("plain"))
	assert.Equal(t, `a\b`, Unescape(`a\\b`))
	assert.Equal(t, `\\`, Unescape(`\\\\`))
	assert.Equal(t, `a\`, Unescape(`a\`))
}

func TestContinued(t *testing.T) {
	assert.True(t, Continued(`abc\`))
	assert.False(t, Continued(`abc\\`))
	assert.True(t, Continued(`abc\\\`))
	assert.False(t, Continued("abc"))
	assert.False(t, Continued(""))
}

func TestChunk_RejectsTinyLimit(t *testing.T) {
	_, err := Chunk(nil, 1)
	assert.ErrorIs(t, err, ir.ErrUnsupported)
}

func TestCompute(t *testing.T) {
	before := testutil.NewOrder(1, 1)
	after := before.Clone()
	require.NoError(t, after.Field("note").SetText("abcdef"))
	gen := testutil.NewFixedIDGenerator("cs-1")

	whole, err := Compute(gen, "order", before, after, 0)
	require.NoError(t, err)
	assert.Equal(t, "cs-1", whole.ID)
	assert.Equal(t, "order", whole.Table)
	assert.Len(t, whole.Entries, 1)
	assert.False(t, whole.Empty())

	chunked, err := Compute(gen, "order", before, after, 4)
	require.NoError(t, err)
	assert.Len(t, chunked.Entries, 2)

	d1, err := whole.Digest()
	require.NoError(t, err)
	d2, err := chunked.Digest()
	require.NoError(t, err)
	assert.Equal(t, d1, d2)
	assert.Len(t, d1, 64)

	chunked.ID = "cs-2"
	d3, err := chunked.Digest()
	require.NoError(t, err)
	assert.NotEqual(t, d1, d3)
}

func TestCompute_NoChanges(t *testing.T) {
	r := testutil.NewOrder(1, 1)
	cs, err := Compute(UUIDv7Generator{}, "order", r.Clone(), r, 10)
	require.NoError(t, err)
	assert.True(t, cs.Empty())

	id, err := uuid.Parse(cs.ID)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), id.Version())
}

func TestClock(t *testing.T) {
	c := NewClockAt(41)
	assert.Equal(t, int64(41), c.Current())
	assert.Equal(t, int64(42), c.Next())
	assert.Equal(t, int64(43), c.Next())
	assert.Equal(t, int64(43), c.Current())
}
