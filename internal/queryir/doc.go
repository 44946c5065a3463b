// Package queryir is the portable filter and sort representation shared by
// the relational and the document renderers.
//
// ARCHITECTURE:
//
// Callers describe a filter as a flat stream of Items, either directly, from
// a textual expression (Parse) or from a probe record (Example):
//
//	[items] → Build → [*Group tree] → querysql.Where  (SQL text + args)
//	                                → docstore.Filter (ordered document)
//
// Build consumes the stream once, left to right, with an explicit group
// stack and an arity state machine: comparisons take one constant, BETWEEN
// two, IN any positive number up to IN-END. NOT is a single pending flag
// applied to the next completed predicate or group.
//
// SEALED INTERFACES:
//
// Node is sealed with a marker method. Renderers switch exhaustively over
// *Compare, *Between, *In, *Null, *Group, *Not and *Raw.
//
// FIELD IDENTITY:
//
// Items reference fields by pointer to the record the query is compiled
// for; renderers resolve them through a record.Index, never by name,
// because the same name can occur at several depths.
//
// SORTING:
//
// SortSpec keeps declaration order. Re-declaring a key only changes its
// direction.
package queryir
