package harness

import (
	"context"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/roach88/relmap/internal/dialect"
	"github.com/roach88/relmap/internal/store"
)

// validIdentifier matches valid SQL identifiers (table/column names).
// Identifiers are quoted by the dialect but still checked, since they are
// interpolated into the query text.
var validIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type       string // Assertion type for categorization
	Expected   string // Human-readable expected outcome
	Actual     string // Human-readable actual outcome
	Statements []Line // Statements of the asserted step, if any
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Statements) > 0 {
		fmt.Fprintf(&buf, "\nStatements:\n")
		for i, l := range e.Statements {
			fmt.Fprintf(&buf, "  [%d] %s\n", i+1, l.SQL)
		}
	}

	return buf.String()
}

func stepStatements(result *Result, step int) ([]Line, error) {
	if step < 1 || step > len(result.Steps) {
		return nil, fmt.Errorf("step %d out of range [1,%d]", step, len(result.Steps))
	}
	return result.Steps[step-1].Statements, nil
}

// assertStatementContains checks that some statement of the step contains
// the SQL fragment.
func assertStatementContains(result *Result, assertion Assertion) error {
	lines, err := stepStatements(result, assertion.Step)
	if err != nil {
		return err
	}
	for _, l := range lines {
		if strings.Contains(l.SQL, assertion.SQL) {
			return nil
		}
	}

	return &AssertionError{
		Type:       AssertStatementContains,
		Expected:   fmt.Sprintf("step %d statement containing %q", assertion.Step, assertion.SQL),
		Actual:     "not found",
		Statements: lines,
	}
}

// assertStatementOrder checks that each fragment occurs in a statement
// strictly after the statement holding the previous fragment.
func assertStatementOrder(result *Result, assertion Assertion) error {
	lines, err := stepStatements(result, assertion.Step)
	if err != nil {
		return err
	}

	next := 0
	for _, frag := range assertion.Fragments {
		found := -1
		for i := next; i < len(lines); i++ {
			if strings.Contains(lines[i].SQL, frag) {
				found = i
				break
			}
		}
		if found < 0 {
			return &AssertionError{
				Type:       AssertStatementOrder,
				Expected:   fmt.Sprintf("fragments in order: %q", assertion.Fragments),
				Actual:     fmt.Sprintf("%q not found after statement %d", frag, next),
				Statements: lines,
			}
		}
		next = found + 1
	}

	return nil
}

// assertStatementCount checks the number of statements a step compiled.
func assertStatementCount(result *Result, assertion Assertion) error {
	lines, err := stepStatements(result, assertion.Step)
	if err != nil {
		return err
	}

	if len(lines) != assertion.Count {
		return &AssertionError{
			Type:       AssertStatementCount,
			Expected:   fmt.Sprintf("%d statements in step %d", assertion.Count, assertion.Step),
			Actual:     fmt.Sprintf("%d statements", len(lines)),
			Statements: lines,
		}
	}

	return nil
}

// assertFinalState checks that exactly one row of the table matches Where
// and that it holds the expected values, using subset semantics.
func assertFinalState(ctx context.Context, st *store.Store, assertion Assertion) error {
	if assertion.Table == "" {
		return fmt.Errorf("final_state assertion requires table name")
	}

	if !validIdentifier.MatchString(assertion.Table) {
		return fmt.Errorf("invalid table name %q: must match pattern %s", assertion.Table, validIdentifier.String())
	}

	d := st.Dialect()
	whereSQL, whereArgs, err := buildWhereClause(d, assertion.Where)
	if err != nil {
		return err
	}

	query := fmt.Sprintf("SELECT * FROM %s", d.QuoteIdent(assertion.Table))
	if whereSQL != "" {
		query += " WHERE " + whereSQL
	}

	rows, err := st.DB().QueryContext(ctx, query, whereArgs...)
	if err != nil {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("query table %s", assertion.Table),
			Actual:   fmt.Sprintf("query error: %v", err),
		}
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("get columns: %w", err)
	}

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return fmt.Errorf("read rows: %w", err)
		}
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("row in %s where %s", assertion.Table, formatWhereClause(assertion.Where)),
			Actual:   "row not found",
		}
	}

	values := make([]any, len(columns))
	valuePtrs := make([]any, len(columns))
	for i := range values {
		valuePtrs[i] = &values[i]
	}
	if err := rows.Scan(valuePtrs...); err != nil {
		return fmt.Errorf("scan row: %w", err)
	}

	// More than one row makes the assertion ambiguous.
	if rows.Next() {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("exactly one row in %s where %s", assertion.Table, formatWhereClause(assertion.Where)),
			Actual:   "multiple rows matched (assertion is ambiguous)",
		}
	}

	actualRow := make(map[string]any, len(columns))
	for i, col := range columns {
		actualRow[col] = values[i]
	}

	keys := make([]string, 0, len(assertion.Expect))
	for k := range assertion.Expect {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		expectedValue := assertion.Expect[key]
		actualValue, exists := actualRow[key]
		if !exists {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q to exist", key),
				Actual:   fmt.Sprintf("field %q not present in result columns: %v", key, columns),
			}
		}

		if !stateValuesEqual(expectedValue, actualValue) {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q = %v (type %T)", key, expectedValue, expectedValue),
				Actual:   fmt.Sprintf("field %q = %v (type %T)", key, actualValue, actualValue),
			}
		}
	}

	return nil
}

// buildWhereClause constructs a parameterized WHERE clause from Where, in
// key order. Column names are validated and quoted by the dialect.
func buildWhereClause(d dialect.Dialect, where map[string]any) (string, []any, error) {
	if len(where) == 0 {
		return "", nil, nil
	}

	keys := make([]string, 0, len(where))
	for k := range where {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	args := dialect.NewArgs(d.Placeholders())
	clauses := make([]string, 0, len(keys))
	for _, key := range keys {
		if !validIdentifier.MatchString(key) {
			return "", nil, fmt.Errorf("invalid column name %q in where clause: must match pattern %s", key, validIdentifier.String())
		}
		if where[key] == nil {
			clauses = append(clauses, d.QuoteIdent(key)+" IS NULL")
			continue
		}
		clauses = append(clauses, fmt.Sprintf("%s = %s", d.QuoteIdent(key), args.Add(toSQLValue(where[key]))))
	}

	return strings.Join(clauses, " AND "), args.Values(), nil
}

// toSQLValue converts a YAML-decoded value to a driver value.
func toSQLValue(v any) any {
	switch val := v.(type) {
	case string, int, int64, bool:
		return val
	default:
		return fmt.Sprintf("%v", val)
	}
}

// formatWhereClause creates a human-readable description of WHERE conditions.
func formatWhereClause(where map[string]any) string {
	if len(where) == 0 {
		return "(no conditions)"
	}

	keys := make([]string, 0, len(where))
	for k := range where {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, where[k]))
	}
	return strings.Join(parts, " AND ")
}

// stateValuesEqual compares expected and actual values from tables.
// Handles type coercion for SQLite values which may be returned as
// different types.
func stateValuesEqual(expected, actual any) bool {
	if expected == nil && actual == nil {
		return true
	}
	if expected == nil || actual == nil {
		return false
	}
	if b, ok := actual.([]byte); ok {
		actual = string(b)
	}

	switch exp := expected.(type) {
	case string:
		if actualStr, ok := actual.(string); ok {
			return exp == actualStr
		}
		return false
	case int:
		if actualInt, ok := actual.(int64); ok {
			return int64(exp) == actualInt
		}
		if actualInt, ok := actual.(int); ok {
			return exp == actualInt
		}
		return false
	case int64:
		if actualInt, ok := actual.(int64); ok {
			return exp == actualInt
		}
		return false
	case bool:
		if actualBool, ok := actual.(bool); ok {
			return exp == actualBool
		}
		// SQLite stores booleans as integers
		if actualInt, ok := actual.(int64); ok {
			return exp == (actualInt != 0)
		}
		return false
	}

	return reflect.DeepEqual(expected, actual)
}

// AssertionContext provides context for evaluating assertions.
type AssertionContext struct {
	Store *store.Store
	Ctx   context.Context
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
// The actx parameter provides database access for final_state assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertStatementContains:
			err = assertStatementContains(result, assertion)
		case AssertStatementOrder:
			err = assertStatementOrder(result, assertion)
		case AssertStatementCount:
			err = assertStatementCount(result, assertion)
		case AssertFinalState:
			if actx == nil || actx.Store == nil {
				err = fmt.Errorf("assertion[%d]: final_state requires database context", i)
			} else {
				err = assertFinalState(actx.Ctx, actx.Store, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
