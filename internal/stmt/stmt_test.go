package stmt

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/relmap/internal/dialect"
	"github.com/roach88/relmap/internal/ir"
	"github.com/roach88/relmap/internal/record"
	"github.com/roach88/relmap/internal/testutil"
)

// docSpec is Doc{k key, v version, items[]{sku, qty}}.
func docSpec() *record.Spec {
	return record.NewSpec("Doc").
		Field("k", record.KindInt, record.Key()).
		Field("v", record.KindInt, record.Version()).
		Array("items", record.NewSpec("items").
			Field("sku", record.KindText, record.Length(4)).
			Field("qty", record.KindInt))
}

// newDoc builds a loaded Doc holding one element per sku; element i has
// qty i+1.
func newDoc(t *testing.T, k, v int64, skus ...string) *record.Record {
	t.Helper()
	r := docSpec().New()
	require.NoError(t, r.Field("k").SetInt(k))
	require.NoError(t, r.Field("v").SetInt(v))
	for i, s := range skus {
		e := r.Array("items").Append()
		require.NoError(t, e.Field("sku").SetText(s))
		require.NoError(t, e.Field("qty").SetInt(int64(i+1)))
	}
	r.AcceptChanges()
	return r
}

func drain(t *testing.T, p *Plan) []Statement {
	t.Helper()
	all, err := p.Statements()
	require.NoError(t, err)
	return all
}

func sqlOf(sts []Statement) []string {
	out := make([]string, len(sts))
	for i, st := range sts {
		out[i] = st.SQL
	}
	return out
}

func TestUpdate_ShrunkArray(t *testing.T) {
	r := newDoc(t, 5, 2, "a", "b", "c")
	r.Array("items").Resize(2)

	p, err := New(r, dialect.NewSQLite()).Update()
	require.NoError(t, err)
	sts := drain(t, p)

	assert.Equal(t, []string{
		`UPDATE "doc" SET "v" = ? WHERE "k" = ? AND "v" = ?`,
		`UPDATE "doc_items" SET "sku" = ?, "qty" = ? WHERE "k" = ? AND "items_idx" = ?`,
		`UPDATE "doc_items" SET "sku" = ?, "qty" = ? WHERE "k" = ? AND "items_idx" = ?`,
		`DELETE FROM "doc_items" WHERE "k" = ? AND "items_idx" > ?`,
	}, sqlOf(sts))
	assert.Equal(t, []any{int64(3), int64(5), int64(2)}, sts[0].Args)
	assert.True(t, sts[0].Versioned)
	assert.Equal(t, []any{"a", int64(1), int64(5), int64(0)}, sts[1].Args)
	assert.Equal(t, []any{"b", int64(2), int64(5), int64(1)}, sts[2].Args)
	assert.Equal(t, []any{int64(5), int64(1)}, sts[3].Args)

	assert.Equal(t, int64(2), r.Field("v").Int(), "compiling never touches the version")
	assert.Equal(t, Exhausted, p.State())
	_, err = p.Next()
	assert.Equal(t, ir.ErrCodeCursorExhausted, ir.CodeOf(err))
}

func TestUpdate_ShrinkIsOneTrailingDelete(t *testing.T) {
	r := newDoc(t, 1, 1, "a", "b", "c", "d", "e")
	r.Array("items").Resize(1)

	p, err := New(r, dialect.NewSQLite()).Update()
	require.NoError(t, err)

	var deletes []Statement
	for _, st := range drain(t, p) {
		if st.Op == OpDelete {
			deletes = append(deletes, st)
		}
	}
	require.Len(t, deletes, 1)
	assert.Equal(t, []any{int64(1), int64(0)}, deletes[0].Args)
}

func TestUpdate_HoleIsNotMergedWithTail(t *testing.T) {
	r := newDoc(t, 5, 2, "a", "b", "c", "d", "e")
	items := r.Array("items")
	require.NoError(t, items.SetNull(1))
	items.Resize(3)

	p, err := New(r, dialect.NewSQLite()).Update()
	require.NoError(t, err)
	sts := drain(t, p)[1:]

	assert.Equal(t, []string{
		`UPDATE "doc_items" SET "sku" = ?, "qty" = ? WHERE "k" = ? AND "items_idx" = ?`,
		`UPDATE "doc_items" SET "sku" = ?, "qty" = ? WHERE "k" = ? AND "items_idx" = ?`,
		`DELETE FROM "doc_items" WHERE "k" = ? AND "items_idx" = ?`,
		`DELETE FROM "doc_items" WHERE "k" = ? AND "items_idx" > ?`,
	}, sqlOf(sts))
	assert.Equal(t, int64(2), sts[1].Args[3])
	assert.Equal(t, []any{int64(5), int64(1)}, sts[2].Args)
	assert.Equal(t, []any{int64(5), int64(2)}, sts[3].Args)
}

func TestUpdate_HoleRunIsOneRange(t *testing.T) {
	r := newDoc(t, 5, 2, "a", "b", "c", "d")
	items := r.Array("items")
	require.NoError(t, items.SetNull(0))
	require.NoError(t, items.SetNull(1))
	require.NoError(t, items.SetNull(2))

	p, err := New(r, dialect.NewSQLite()).Update()
	require.NoError(t, err)
	sts := drain(t, p)[1:]

	require.Len(t, sts, 2)
	assert.Equal(t, OpUpdate, sts[0].Op)
	assert.Equal(t, `DELETE FROM "doc_items" WHERE "k" = ? AND "items_idx" BETWEEN ? AND ?`, sts[1].SQL)
	assert.Equal(t, []any{int64(5), int64(0), int64(2)}, sts[1].Args)
}

func TestUpdate_WithoutCleanerKeepsHoles(t *testing.T) {
	r := newDoc(t, 5, 2, "a", "b", "c")
	items := r.Array("items")
	require.NoError(t, items.SetNull(0))
	items.Resize(2)

	p, err := New(r, dialect.NewSQLite(), WithoutCleaner()).Update()
	require.NoError(t, err)
	sts := drain(t, p)[1:]

	require.Len(t, sts, 2)
	assert.Equal(t, OpUpdate, sts[0].Op)
	assert.Equal(t, `DELETE FROM "doc_items" WHERE "k" = ? AND "items_idx" > ?`, sts[1].SQL)
}

func TestUpdate_GrownArrayInserts(t *testing.T) {
	r := newDoc(t, 5, 2, "a")
	e := r.Array("items").Append()
	require.NoError(t, e.Field("sku").SetText("n"))
	require.NoError(t, e.Field("qty").SetInt(9))

	p, err := New(r, dialect.NewSQLite()).Update()
	require.NoError(t, err)
	sts := drain(t, p)[1:]

	require.Len(t, sts, 2)
	assert.Equal(t, OpUpdate, sts[0].Op)
	assert.Equal(t, `INSERT INTO "doc_items" ("k", "items_idx", "sku", "qty") VALUES (?, ?, ?, ?)`, sts[1].SQL)
	assert.Equal(t, []any{int64(5), int64(1), "n", int64(9)}, sts[1].Args)
}

func TestUpdate_ScalarOnlyWhere(t *testing.T) {
	r := testutil.CustomerSpec().New()
	require.NoError(t, r.Field("id").SetInt(1))
	require.NoError(t, r.Field("rev").SetUint(4))
	require.NoError(t, r.Field("name").SetText("ann"))
	require.NoError(t, r.Field("active").SetBool(true))

	c := New(r, dialect.NewSQLite())
	p, err := c.Update()
	require.NoError(t, err)
	assert.Equal(t,
		`UPDATE "customer" SET "rev" = ?, "name" = ?, "active" = ?, "joined" = NULL, "balance" = NULL WHERE "id" = ? AND "rev" = ?`,
		p.Master.SQL)
	assert.Equal(t, []any{int64(5), "ann", int64(1), int64(1), int64(4)}, p.Master.Args)
	assert.Equal(t, Exhausted, p.State())

	del, err := c.Delete()
	require.NoError(t, err)
	assert.Equal(t, `DELETE FROM "customer" WHERE "id" = ? AND "rev" = ?`, del.Master.SQL)
	assert.Equal(t, []any{int64(1), int64(4)}, del.Master.Args)

	del, err = New(r, dialect.NewSQLite(), WithoutVersionCheck()).Delete()
	require.NoError(t, err)
	assert.Equal(t, `DELETE FROM "customer" WHERE "id" = ?`, del.Master.SQL)
	assert.False(t, del.Master.Versioned)
}

func TestUpdate_OnlyModified(t *testing.T) {
	r := testutil.CustomerSpec().New()
	require.NoError(t, r.Field("id").SetInt(1))
	require.NoError(t, r.Field("rev").SetUint(4))
	require.NoError(t, r.Field("name").SetText("ann"))
	require.NoError(t, r.Field("active").SetBool(true))
	r.AcceptChanges()
	require.NoError(t, r.Field("name").SetText("bob"))

	p, err := New(r, dialect.NewSQLite(), OnlyModified()).Update()
	require.NoError(t, err)
	assert.Equal(t, `UPDATE "customer" SET "rev" = ?, "name" = ? WHERE "id" = ? AND "rev" = ?`, p.Master.SQL)
}

func TestSave_VersionStates(t *testing.T) {
	t.Run("new inserts", func(t *testing.T) {
		r := newDoc(t, 5, 0, "a")
		p, err := New(r, dialect.NewSQLite()).Save()
		require.NoError(t, err)
		sts := drain(t, p)
		assert.Equal(t, []string{
			`INSERT INTO "doc" ("k", "v") VALUES (?, ?)`,
			`INSERT INTO "doc_items" ("k", "items_idx", "sku", "qty") VALUES (?, ?, ?, ?)`,
		}, sqlOf(sts))
		assert.Equal(t, []any{int64(5), int64(1)}, sts[0].Args)
		assert.False(t, p.FallbackOnMiss())
	})

	t.Run("known updates with check", func(t *testing.T) {
		p, err := New(newDoc(t, 5, 7), dialect.NewSQLite()).Save()
		require.NoError(t, err)
		assert.Equal(t, OpUpdate, p.Master.Op)
		assert.True(t, p.Master.Versioned)
		assert.False(t, p.FallbackOnMiss())
	})

	t.Run("unknown updates then falls back", func(t *testing.T) {
		r := newDoc(t, 5, -1, "a")
		p, err := New(r, dialect.NewSQLite()).Save()
		require.NoError(t, err)
		assert.Equal(t, `UPDATE "doc" SET "v" = COALESCE("v", 0) + 1 WHERE "k" = ?`, p.Master.SQL)
		assert.False(t, p.Master.Versioned)
		require.True(t, p.FallbackOnMiss())

		fb, err := p.Fallback()
		require.NoError(t, err)
		assert.Equal(t, OpInsert, fb.Master.Op)
		assert.Equal(t, []any{int64(5), int64(1)}, fb.Master.Args)
		assert.Len(t, drain(t, fb), 2)
	})

	t.Run("no fallback on known", func(t *testing.T) {
		p, err := New(newDoc(t, 5, 7), dialect.NewSQLite()).Update()
		require.NoError(t, err)
		_, err = p.Fallback()
		assert.ErrorIs(t, err, ir.ErrUnsupported)
	})
}

func TestInsertFor(t *testing.T) {
	p, err := New(newDoc(t, 5, 2, "a"), dialect.NewSQLite()).Update()
	require.NoError(t, err)
	st, err := p.Next()
	require.NoError(t, err)
	require.Equal(t, OpUpdate, st.Op)

	ins, err := p.InsertFor(st)
	require.NoError(t, err)
	assert.Equal(t, `INSERT INTO "doc_items" ("k", "items_idx", "sku", "qty") VALUES (?, ?, ?, ?)`, ins.SQL)

	_, err = p.InsertFor(p.Master)
	assert.ErrorIs(t, err, ir.ErrUnsupported)
}

func TestCompileFailures(t *testing.T) {
	t.Run("version overflow", func(t *testing.T) {
		_, err := New(newDoc(t, 5, math.MaxInt64), dialect.NewSQLite()).Update()
		assert.ErrorIs(t, err, ir.ErrVersionOverflow)
		assert.True(t, ir.IsConflict(err))
	})

	t.Run("value too long", func(t *testing.T) {
		p, err := New(newDoc(t, 5, 0, "toolong"), dialect.NewSQLite()).Insert()
		require.NoError(t, err)
		_, err = p.Next()
		assert.ErrorIs(t, err, ir.ErrValueTooLong)
		var e *ir.Error
		require.ErrorAs(t, err, &e)
		assert.Equal(t, "items[0].sku", e.Path)
	})

	t.Run("null key", func(t *testing.T) {
		r := docSpec().New()
		_, err := New(r, dialect.NewSQLite()).Delete()
		assert.ErrorIs(t, err, ir.ErrMissingKey)
		assert.True(t, ir.IsStructural(err))
	})

	t.Run("no key fields", func(t *testing.T) {
		r := record.NewSpec("Loose").Field("a", record.KindInt).New()
		_, err := New(r, dialect.NewSQLite()).Load()
		assert.ErrorIs(t, err, ir.ErrMissingKey)
	})
}

func TestDelete_Cascades(t *testing.T) {
	r := testutil.NewOrder(3, 4, testutil.Item{SKU: "a", Qty: 1, Parts: []string{"p"}})
	p, err := New(r, dialect.NewSQLite()).Delete()
	require.NoError(t, err)
	assert.Equal(t, []string{
		`DELETE FROM "order" WHERE "k" = ? AND "v" = ?`,
		`DELETE FROM "order_items" WHERE "k" = ?`,
		`DELETE FROM "order_items_parts" WHERE "k" = ?`,
		`DELETE FROM "order_tags" WHERE "k" = ?`,
	}, sqlOf(drain(t, p)))
}

func TestNestedArrays_ChainKeys(t *testing.T) {
	r := testutil.OrderSpec().New()
	require.NoError(t, r.Field("k").SetInt(3))
	require.NoError(t, r.Field("v").SetInt(0))
	testutil.AppendItem(r.Array("items"), testutil.Item{SKU: "a", Qty: 1})
	testutil.AppendItem(r.Array("items"), testutil.Item{SKU: "b", Qty: 2, Parts: []string{"x", "y"}})
	require.NoError(t, r.Array("tags").AppendValue(ir.Text("red")))

	p, err := New(r, dialect.NewSQLite()).Insert()
	require.NoError(t, err)
	sts := drain(t, p)

	assert.Equal(t, []string{
		`INSERT INTO "order" ("k", "v", "note", "shipping_city", "shipping_zip") VALUES (?, ?, NULL, NULL, NULL)`,
		`INSERT INTO "order_items" ("k", "items_idx", "sku", "qty") VALUES (?, ?, ?, ?)`,
		`INSERT INTO "order_tags" ("k", "tags_idx", "value") VALUES (?, ?, ?)`,
		`INSERT INTO "order_items" ("k", "items_idx", "sku", "qty") VALUES (?, ?, ?, ?)`,
		`INSERT INTO "order_items_parts" ("k", "items_idx", "parts_idx", "code") VALUES (?, ?, ?, ?)`,
		`INSERT INTO "order_items_parts" ("k", "items_idx", "parts_idx", "code") VALUES (?, ?, ?, ?)`,
	}, sqlOf(sts))
	assert.Equal(t, []any{int64(3), int64(1), int64(1), "y"}, sts[5].Args)
	assert.Equal(t, "items[1].parts[1]", sts[5].Detail.Path())
}

func TestReplace_PerDialect(t *testing.T) {
	build := func() *record.Record {
		r := newDoc(t, 5, 0)
		e := r.Array("items").Append()
		require.NoError(t, e.Field("sku").SetText("a"))
		require.NoError(t, e.Field("qty").SetInt(1))
		return r
	}

	p, err := New(build(), dialect.NewSQLite()).Replace()
	require.NoError(t, err)
	assert.Equal(t, []string{
		`INSERT OR REPLACE INTO "doc" ("k", "v") VALUES (?, ?)`,
		`INSERT OR REPLACE INTO "doc_items" ("k", "items_idx", "sku", "qty") VALUES (?, ?, ?, ?)`,
		`DELETE FROM "doc_items" WHERE "k" = ? AND "items_idx" > ?`,
	}, sqlOf(drain(t, p)))

	p, err = New(build(), dialect.NewMySQL()).Replace()
	require.NoError(t, err)
	assert.Equal(t, "REPLACE INTO `doc` (`k`, `v`) VALUES (?, ?)", p.Master.SQL)

	p, err = New(build(), dialect.NewPostgres()).Replace()
	require.NoError(t, err)
	sts := drain(t, p)
	assert.Equal(t,
		`INSERT INTO "doc" ("k", "v") VALUES ($1, $2) ON CONFLICT ("k") DO UPDATE SET "v" = EXCLUDED."v"`,
		sts[0].SQL)
	assert.Equal(t,
		`INSERT INTO "doc_items" ("k", "items_idx", "sku", "qty") VALUES ($1, $2, $3, $4) ON CONFLICT ("k", "items_idx") DO UPDATE SET "sku" = EXCLUDED."sku", "qty" = EXCLUDED."qty"`,
		sts[1].SQL)
	assert.Equal(t, `DELETE FROM "doc_items" WHERE "k" = $1 AND "items_idx" > $2`, sts[2].SQL)
}

func TestCreateDrop(t *testing.T) {
	c := New(testutil.NewOrder(1, 1), dialect.NewSQLite())
	p, err := c.Create()
	require.NoError(t, err)
	assert.Equal(t, []string{
		`CREATE TABLE IF NOT EXISTS "order" ("k" INTEGER NOT NULL, "v" INTEGER NOT NULL, "note" TEXT, "shipping_city" TEXT, "shipping_zip" TEXT, PRIMARY KEY ("k"))`,
		`CREATE TABLE IF NOT EXISTS "order_items" ("k" INTEGER NOT NULL, "items_idx" INTEGER NOT NULL, "sku" TEXT NOT NULL, "qty" INTEGER NOT NULL, PRIMARY KEY ("k", "items_idx"))`,
		`CREATE TABLE IF NOT EXISTS "order_tags" ("k" INTEGER NOT NULL, "tags_idx" INTEGER NOT NULL, "value" TEXT NOT NULL, PRIMARY KEY ("k", "tags_idx"))`,
		`CREATE TABLE IF NOT EXISTS "order_items_parts" ("k" INTEGER NOT NULL, "items_idx" INTEGER NOT NULL, "parts_idx" INTEGER NOT NULL, "code" TEXT NOT NULL, PRIMARY KEY ("k", "items_idx", "parts_idx"))`,
	}, sqlOf(drain(t, p)))

	p, err = c.Drop()
	require.NoError(t, err)
	assert.Equal(t, []string{
		`DROP TABLE IF EXISTS "order"`,
		`DROP TABLE IF EXISTS "order_items"`,
		`DROP TABLE IF EXISTS "order_tags"`,
		`DROP TABLE IF EXISTS "order_items_parts"`,
	}, sqlOf(drain(t, p)))

	p, err = New(newDoc(t, 1, 1), dialect.NewMySQL()).Create()
	require.NoError(t, err)
	assert.Equal(t, "CREATE TABLE `doc` (`k` BIGINT NOT NULL, `v` BIGINT NOT NULL, PRIMARY KEY (`k`))", p.Master.SQL)

	assert.Equal(t, []string{"order", "order_items", "order_items_parts", "order_tags"}, c.Tables())
}

func TestLazySubRecord(t *testing.T) {
	extra := record.NewSpec("extra").Field("blob", record.KindText, record.Nullable())
	extra.Lazy = true
	spec := record.NewSpec("Doc").
		Field("k", record.KindInt, record.Key()).
		Field("name", record.KindText, record.Nullable()).
		Record(extra)
	r := spec.New()
	require.NoError(t, r.Field("k").SetInt(1))
	r.AcceptChanges()

	l, err := New(r, dialect.NewSQLite()).Load()
	require.NoError(t, err)
	assert.Equal(t, `SELECT "k", "name" FROM "doc" WHERE "k" = ?`, l.Master.SQL)

	l, err = New(r, dialect.NewSQLite(), WithLazy()).Load()
	require.NoError(t, err)
	assert.Equal(t, `SELECT "k", "name", "extra_blob" FROM "doc" WHERE "k" = ?`, l.Master.SQL)

	p, err := New(r, dialect.NewSQLite()).Update()
	require.NoError(t, err)
	assert.Equal(t, `UPDATE "doc" SET "name" = NULL WHERE "k" = ?`, p.Master.SQL)

	require.NoError(t, r.Record("extra").Field("blob").SetText("x"))
	p, err = New(r, dialect.NewSQLite()).Update()
	require.NoError(t, err)
	assert.Equal(t, `UPDATE "doc" SET "name" = NULL, "extra_blob" = ? WHERE "k" = ?`, p.Master.SQL)
}

func TestPlan_PeekDoesNotDrain(t *testing.T) {
	p, err := New(newDoc(t, 5, 2, "a"), dialect.NewSQLite()).Update()
	require.NoError(t, err)
	d, ok := p.Peek()
	require.True(t, ok)
	assert.Equal(t, "write items[0]", d.String())
	assert.Equal(t, Pending, p.State())
	st, err := p.Next()
	require.NoError(t, err)
	assert.Same(t, d, st.Detail)
}
