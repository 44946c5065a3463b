package store

import (
	"context"
	"database/sql/driver"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/roach88/relmap/internal/dialect"
	"github.com/roach88/relmap/internal/record"
	"github.com/roach88/relmap/internal/stmt"
	"github.com/roach88/relmap/internal/testutil"
)

// createTestStore creates a new file-backed sqlite store with the Order
// tables in place.
func createTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.CreateTables(context.Background(), testutil.OrderSpec().New()))
	return s
}

// createMockStore wraps a sqlmock connection that matches SQL exactly.
func createMockStore(t *testing.T, opts ...Option) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return OpenDB(db, dialect.NewSQLite(), opts...), mock
}

// planOf compiles the statements a store call on rec will run, on a copy
// so rec stays untouched.
func planOf(t *testing.T, rec *record.Record, compile func(*stmt.Compiler) (*stmt.Plan, error)) (*stmt.Plan, []stmt.Statement) {
	t.Helper()
	p, err := compile(stmt.New(rec.Clone(), dialect.NewSQLite()))
	require.NoError(t, err)
	sts, err := p.Statements()
	require.NoError(t, err)
	return p, sts
}

// driverArgs converts bound arguments for sqlmock's WithArgs.
func driverArgs(t *testing.T, args []any) []driver.Value {
	t.Helper()
	out := make([]driver.Value, len(args))
	for i, a := range args {
		v, err := driver.DefaultParameterConverter.ConvertValue(a)
		require.NoError(t, err)
		out[i] = v
	}
	return out
}

// loadOrder reads Order k from s into a fresh record.
func loadOrder(t *testing.T, s *Store, k int64) *record.Record {
	t.Helper()
	r := testutil.OrderSpec().New()
	require.NoError(t, r.Field("k").SetInt(k))
	require.NoError(t, s.Load(context.Background(), r))
	return r
}
