// Package store executes compiled statements over database/sql.
//
// A Store pairs a connection with a dialect. Writes compile a stmt.Plan and
// run it in one transaction: the master statement, then every detail
// statement in cursor order. The store owns the runtime decisions the
// compiler leaves open:
//
//   - zero rows on a version-checked master is LOCK_CONFLICT
//   - zero rows on an unknown-version update runs the insert fallback
//   - zero rows on a detail update runs the element's insert instead
//   - unique-constraint failures become DUPLICATE_KEY
//
// Only after commit does the record take its new version and accept its
// changes; a failed save leaves it untouched.
//
// # Audit
//
// SaveAudited writes a changelog.ChangeSet in the save's transaction. Entry
// values are chunked to the dialect's AuditValueLimit and joined again by
// ChangeSets.
//
// # Database Configuration (SQLite)
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - single open connection: SQLite has one writer
package store
