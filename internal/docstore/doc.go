// Package docstore is the document-store rendering of records and filters.
//
// Records map to one nested document each: sub-records embed, arrays are
// inline lists. Commands mirror the relational write paths (insert,
// update with the optimistic version filter, replace, delete, find) but
// are single round trips. Documents are ordered (D) and encode to msgpack
// deterministically.
package docstore
