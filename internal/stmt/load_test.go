package stmt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/relmap/internal/dialect"
	"github.com/roach88/relmap/internal/ir"
	"github.com/roach88/relmap/internal/queryir"
	"github.com/roach88/relmap/internal/testutil"
)

func TestLoad_HolesSurvive(t *testing.T) {
	r := docSpec().New()
	require.NoError(t, r.Field("k").SetInt(5))

	l, err := New(r, dialect.NewSQLite()).Load()
	require.NoError(t, err)
	assert.Equal(t, `SELECT "k", "v" FROM "doc" WHERE "k" = ?`, l.Master.SQL)
	assert.Equal(t, []any{int64(5)}, l.Master.Args)
	assert.Equal(t, 2, l.Master.Columns)

	require.NoError(t, l.ReadMaster([]any{int64(5), int64(7)}))
	assert.Equal(t, 1, r.Array("items").Len(), "arrays are pre-sized to one until read")

	st, err := l.Next()
	require.NoError(t, err)
	assert.Equal(t, `SELECT "items_idx", "sku", "qty" FROM "doc_items" WHERE "k" = ? ORDER BY "items_idx"`, st.SQL)
	assert.Equal(t, 3, st.Columns)

	require.NoError(t, l.ReadDetail([]any{int64(0), "a", int64(1)}))
	require.NoError(t, l.ReadDetail([]any{int64(2), []byte("c"), int64(3)}))
	require.NoError(t, l.EndDetail())
	assert.Equal(t, Exhausted, l.State())
	l.Finish()

	items := r.Array("items")
	assert.Equal(t, 3, items.Len())
	assert.Equal(t, 3, items.InitialSize())
	assert.Nil(t, items.At(1))
	assert.Equal(t, "c", items.At(2).Field("sku").Text())
	assert.Equal(t, int64(7), r.Field("v").Int())
	assert.False(t, r.HasModified())
}

func TestLoad_EmptyArray(t *testing.T) {
	r := docSpec().New()
	require.NoError(t, r.Field("k").SetInt(5))
	l, err := New(r, dialect.NewSQLite()).Load()
	require.NoError(t, err)
	require.NoError(t, l.ReadMaster([]any{int64(5), int64(1)}))
	_, err = l.Next()
	require.NoError(t, err)
	require.NoError(t, l.EndDetail())
	assert.Equal(t, 0, r.Array("items").Len())
}

func TestLoad_NestedChain(t *testing.T) {
	r := testutil.OrderSpec().New()
	require.NoError(t, r.Field("k").SetInt(3))
	l, err := New(r, dialect.NewSQLite()).Load()
	require.NoError(t, err)
	require.NoError(t, l.ReadMaster([]any{int64(3), int64(2), nil, "Oslo", nil}))
	assert.Equal(t, "Oslo", r.Record("shipping").Field("city").Text())
	assert.True(t, r.Field("note").IsNull())

	st, err := l.Next()
	require.NoError(t, err)
	assert.Equal(t, "order_items", st.Table)
	require.NoError(t, l.ReadDetail([]any{int64(1), "a", int64(4)}))
	require.NoError(t, l.EndDetail())

	st, err = l.Next()
	require.NoError(t, err)
	assert.Equal(t, "order_tags", st.Table)
	require.NoError(t, l.EndDetail())

	st, err = l.Next()
	require.NoError(t, err)
	assert.Equal(t, `SELECT "parts_idx", "code" FROM "order_items_parts" WHERE "k" = ? AND "items_idx" = ? ORDER BY "parts_idx"`, st.SQL)
	assert.Equal(t, []any{int64(3), int64(1)}, st.Args)
	err = l.ReadDetail([]any{int64(0)})
	var e *ir.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "items[1].parts", e.Path)
	require.NoError(t, l.ReadDetail([]any{int64(0), "p"}))
	require.NoError(t, l.EndDetail())
	assert.Equal(t, Exhausted, l.State())

	assert.Equal(t, "p", r.Array("items").At(1).Array("parts").At(0).Field("code").Text())
}

func TestLoad_Errors(t *testing.T) {
	r := docSpec().New()
	require.NoError(t, r.Field("k").SetInt(5))
	l, err := New(r, dialect.NewSQLite()).Load()
	require.NoError(t, err)

	_, err = l.Next()
	assert.Equal(t, ir.ErrCodeUnexpectedResult, ir.CodeOf(err))

	err = l.ReadMaster([]any{int64(5)})
	assert.Equal(t, ir.ErrCodeSchemaMismatch, ir.CodeOf(err))

	err = l.ReadMaster([]any{int64(5), "seven"})
	assert.ErrorIs(t, err, ir.ErrTypeMismatch)
	var e *ir.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "v", e.Path)

	require.NoError(t, l.ReadMaster([]any{int64(5), int64(1)}))
	_, err = l.Next()
	require.NoError(t, err)
	err = l.ReadDetail([]any{int64(-1), "a", int64(1)})
	assert.ErrorIs(t, err, ir.ErrIndexRange)
	err = l.ReadDetail([]any{int64(0), "a"})
	assert.Equal(t, ir.ErrCodeSchemaMismatch, ir.CodeOf(err))
}

func TestRoundTrip_AllKinds(t *testing.T) {
	src := testutil.CustomerSpec().New()
	require.NoError(t, src.Field("id").SetInt(9))
	require.NoError(t, src.Field("rev").SetUint(0))
	require.NoError(t, src.Field("name").SetText("Zo\u00eb"))
	require.NoError(t, src.Field("active").SetBool(true))
	require.NoError(t, src.Field("joined").SetTime(testutil.FixedTime))
	require.NoError(t, src.Field("balance").SetInt(-42))

	for _, d := range []dialect.Dialect{dialect.NewSQLite(), dialect.NewPostgres(), dialect.NewMySQL()} {
		t.Run(d.Name(), func(t *testing.T) {
			p, err := New(src, d).Insert()
			require.NoError(t, err)

			dst := testutil.CustomerSpec().New()
			require.NoError(t, dst.Field("id").SetInt(9))
			l, err := New(dst, d).Load()
			require.NoError(t, err)
			require.NoError(t, l.ReadMaster(p.Master.Args))

			for _, name := range []string{"id", "name", "active", "joined", "balance"} {
				assert.True(t, ir.Equal(src.Field(name).Value(), dst.Field(name).Value()), name)
			}
			assert.Equal(t, uint64(1), dst.Field("rev").Uint(), "the insert stores the next version")
		})
	}
}

func TestQuery_Joins(t *testing.T) {
	r := testutil.OrderSpec().New()
	c := New(r, dialect.NewSQLite())
	ix := c.Index()

	items, err := queryir.Parse("items.qty > 2 AND items.parts.code = 'x'", ix)
	require.NoError(t, err)
	sort := queryir.NewSort().By(r.Field("k"), queryir.Desc)

	st, err := c.Query(items, sort)
	require.NoError(t, err)
	assert.Equal(t, `SELECT DISTINCT t0."k", t0."v", t0."note", t0."shipping_city", t0."shipping_zip" FROM "order" t0`+
		` LEFT JOIN "order_items" t1 ON t1."k" = t0."k"`+
		` LEFT JOIN "order_items_parts" t2 ON t2."k" = t1."k" AND t2."items_idx" = t1."items_idx"`+
		` WHERE (t1."qty" > ? AND t2."code" = ?) ORDER BY t0."k" DESC`, st.SQL)
	assert.Equal(t, []any{int64(2), "x"}, st.Args)
	assert.Equal(t, 5, st.Columns)
}

func TestQuery_SingleTable(t *testing.T) {
	r := testutil.OrderSpec().New()
	c := New(r, dialect.NewPostgres())
	items, err := queryir.Parse("note IS NULL OR shipping.city LIKE 'O%'", c.Index())
	require.NoError(t, err)

	st, err := c.Query(items, nil)
	require.NoError(t, err)
	assert.Equal(t, `SELECT t0."k", t0."v", t0."note", t0."shipping_city", t0."shipping_zip" FROM "order" t0`+
		` WHERE (t0."note" IS NULL OR t0."shipping_city" LIKE $1)`, st.SQL)
}

func TestQuery_SortByArrayAddsSelectColumns(t *testing.T) {
	r := testutil.OrderSpec().New()
	c := New(r, dialect.NewPostgres())
	sort := queryir.NewSort().ByArray(r.Array("tags"), queryir.Asc)

	st, err := c.Query(nil, sort)
	require.NoError(t, err)
	assert.Equal(t, `SELECT DISTINCT t0."k", t0."v", t0."note", t0."shipping_city", t0."shipping_zip", t1."tags_idx"`+
		` FROM "order" t0 LEFT JOIN "order_tags" t1 ON t1."k" = t0."k" ORDER BY t1."tags_idx" ASC`, st.SQL)
	assert.Equal(t, 5, st.Columns)
}

func TestQuery_ForeignField(t *testing.T) {
	r := testutil.OrderSpec().New()
	other := testutil.OrderSpec().New()
	c := New(r, dialect.NewSQLite())
	_, err := c.Query([]queryir.Item{
		queryir.Field(other.Field("k")), queryir.Token(queryir.KindEq), queryir.Const(ir.Int(1)),
	}, nil)
	assert.ErrorIs(t, err, ir.ErrUnresolvedField)
}
