// Package changelog computes the audit trail of a save.
//
// Diff walks the current record against its pre-mutation snapshot and
// reports one entry per changed field and one per resized array. Backends
// with a short value column store long values through Chunk: backslashes
// are doubled and a chunk ending in a single unescaped backslash continues
// in the next entry for the same path. Join reverses this.
//
//	entries, _ := changelog.Diff(before, after)
//	rows, _ := changelog.Chunk(entries, 255)
//	back := changelog.Join(rows) // equal to entries
package changelog
