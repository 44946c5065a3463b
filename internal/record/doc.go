// Package record is the in-memory model of hierarchical records.
//
// A Record holds ordered Members, each a Field (scalar leaf), a nested
// Record (flattened into its parent's row) or an Array of element records
// (stored in a detail table keyed by the parent key plus the element index).
//
// Records are built from a Spec, mutated by the caller, read by the
// statement and document compilers, and filled in place by read-back.
// An Index assigns opaque handles to every field and array of a record
// shape so filters and sorts can refer to fields by identity.
package record
