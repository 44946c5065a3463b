package testutil

import (
	"time"

	"github.com/roach88/relmap/internal/record"
)

// FixedTime is a deterministic UTC timestamp with microsecond precision,
// the finest every dialect stores.
var FixedTime = time.Date(2024, 3, 1, 12, 30, 5, 123456000, time.UTC)

// OrderSpec is the nested fixture used across packages:
//
//	Order{k key, v version, note, shipping{city, zip},
//	      items[]{sku, qty, parts[]{code}}, tags[]text}
func OrderSpec() *record.Spec {
	part := record.NewSpec("parts").
		Field("code", record.KindText)
	item := record.NewSpec("items").
		Field("sku", record.KindText, record.Length(16)).
		Field("qty", record.KindInt).
		Array("parts", part)
	shipping := record.NewSpec("shipping").
		Field("city", record.KindText, record.Nullable()).
		Field("zip", record.KindText, record.Nullable())

	return record.NewSpec("Order").
		Field("k", record.KindInt, record.Key()).
		Field("v", record.KindInt, record.Version()).
		Field("note", record.KindText, record.Nullable(), record.Length(40)).
		Record(shipping).
		Array("items", item).
		ScalarArray("tags", record.KindText)
}

// CustomerSpec is a scalar-only fixture covering every field kind.
func CustomerSpec() *record.Spec {
	return record.NewSpec("Customer").
		Field("id", record.KindInt, record.Key()).
		Field("rev", record.KindUint, record.Version()).
		Field("name", record.KindText, record.Length(8)).
		Field("active", record.KindBool).
		Field("joined", record.KindTime, record.Nullable()).
		Field("balance", record.KindInt, record.Nullable(), record.Compact())
}

// Item is a value for one Order.items element.
type Item struct {
	SKU   string
	Qty   int64
	Parts []string
}

// NewOrder builds an Order with key k, version v and the given items. The
// array state is as-loaded: InitialSize equals the number of items.
func NewOrder(k, v int64, items ...Item) *record.Record {
	r := OrderSpec().New()
	must(r.Field("k").SetInt(k))
	must(r.Field("v").SetInt(v))
	arr := r.Array("items")
	for _, it := range items {
		AppendItem(arr, it)
	}
	r.AcceptChanges()
	return r
}

// AppendItem appends it to an Order.items array.
func AppendItem(arr *record.Array, it Item) *record.Record {
	e := arr.Append()
	must(e.Field("sku").SetText(it.SKU))
	must(e.Field("qty").SetInt(it.Qty))
	parts := e.Array("parts")
	for _, code := range it.Parts {
		must(parts.Append().Field("code").SetText(code))
	}
	return e
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}
