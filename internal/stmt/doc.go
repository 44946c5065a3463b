// Package stmt compiles records into SQL statements.
//
// A Compiler is bound to one record and one dialect. Every write entry
// point returns a Plan: the master statement, rendered immediately, and a
// FIFO cursor of DetailInfo work items for the detail tables. Draining an
// item renders one statement and may queue more (the next element of the
// same array, the arrays nested in the element), so a caller executes one
// statement per Next until the plan is Exhausted:
//
//	plan, err := stmt.New(rec, d).Save()
//	exec(plan.Master)
//	for plan.State() == stmt.Pending {
//		st, err := plan.Next()
//		exec(st)
//	}
//
// Writes drain before deletes, so a range delete never removes a row that
// the same plan just wrote. Read-back mirrors the write path through a
// Loader; Query renders filtered selects, joining detail tables when a
// filter or sort reaches into arrays.
package stmt
