package queryir

import "github.com/roach88/relmap/internal/record"

// Example builds a query-by-example stream from rec: one equality per
// modified, non-null field of the record and its sub-records, in member
// order. Arrays do not take part.
func Example(rec *record.Record) []Item {
	var items []Item
	var walk func(r *record.Record)
	walk = func(r *record.Record) {
		for _, m := range r.Members() {
			switch m.Kind {
			case record.MemberField:
				if m.Field.Modified() && !m.Field.IsNull() {
					items = append(items, Field(m.Field), Token(KindEq), Const(m.Field.Value()))
				}
			case record.MemberRecord:
				walk(m.Record)
			case record.MemberArray:
			}
		}
	}
	walk(rec)
	return items
}
