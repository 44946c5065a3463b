package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/relmap/internal/ir"
	"github.com/roach88/relmap/internal/queryir"
	"github.com/roach88/relmap/internal/record"
	"github.com/roach88/relmap/internal/stmt"
)

// Query selects records for Find. The filter is the AND of Items, the
// parsed Where text and, when Example is set, the prototype's modified
// fields.
type Query struct {
	Where   string
	Items   []queryir.Item
	Example bool
	Sort    *queryir.SortSpec
	Limit   int
}

// Load reads the row tree of rec by its key fields into rec.
// Returns NOT_FOUND if no master row matches.
func (s *Store) Load(ctx context.Context, rec *record.Record, opts ...stmt.Option) error {
	c := stmt.New(rec, s.d, opts...)
	l, err := c.Load()
	if err != nil {
		return err
	}
	rows, err := s.queryRows(ctx, l.Master)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return ir.Errorf(ir.ErrCodeNotFound, "no %s row for %s", c.Table(), keyString(rec))
	}
	if err := l.ReadMaster(rows[0]); err != nil {
		return err
	}
	if err := s.drain(ctx, l); err != nil {
		return err
	}
	l.Finish()
	return nil
}

// Find returns the records matching q, each a loaded copy of proto, in the
// query's sort order. Rows repeated by detail joins are returned once.
//
// Returns an empty slice (not nil) when nothing matches.
func (s *Store) Find(ctx context.Context, proto *record.Record, q Query, opts ...stmt.Option) ([]*record.Record, error) {
	c := stmt.New(proto, s.d, opts...)
	items := append([]queryir.Item(nil), q.Items...)
	if q.Where != "" {
		parsed, err := queryir.Parse(q.Where, c.Index())
		if err != nil {
			return nil, err
		}
		items = append(items, parsed...)
	}
	if q.Example {
		items = append(items, queryir.Example(proto)...)
	}
	st, err := c.Query(items, q.Sort)
	if err != nil {
		return nil, err
	}
	rows, err := s.queryRows(ctx, st)
	if err != nil {
		return nil, err
	}

	out := []*record.Record{}
	seen := make(map[string]bool)
	for _, row := range rows {
		rec := proto.Clone()
		l := stmt.New(rec, s.d, opts...).Loader()
		if err := l.ReadMaster(row); err != nil {
			return nil, err
		}
		key := keyString(rec)
		if seen[key] {
			continue
		}
		seen[key] = true
		if err := s.drain(ctx, l); err != nil {
			return nil, err
		}
		l.Finish()
		out = append(out, rec)
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out, nil
}

// drain runs every detail select of a loader.
func (s *Store) drain(ctx context.Context, l *stmt.Loader) error {
	for l.State() == stmt.Pending {
		st, err := l.Next()
		if err != nil {
			return err
		}
		rows, err := s.queryRows(ctx, st)
		if err != nil {
			return err
		}
		for _, row := range rows {
			if err := l.ReadDetail(row); err != nil {
				return err
			}
		}
		if err := l.EndDetail(); err != nil {
			return err
		}
	}
	return nil
}

// queryRows runs a select and reads every row before returning, so the
// connection is free for the next statement.
func (s *Store) queryRows(ctx context.Context, st stmt.Statement) ([][]any, error) {
	s.logger.Debug("query", "table", st.Table, "sql", st.SQL, "args", len(st.Args))
	rows, err := s.db.QueryContext(ctx, st.SQL, st.Args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", st.Table, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", st.Table, err)
	}
	var out [][]any
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", st.Table, err)
		}
		out = append(out, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", st.Table, err)
	}
	return out, nil
}

// keyString renders the key fields of rec, e.g. "k=1".
func keyString(rec *record.Record) string {
	var parts []string
	for _, k := range rec.Keys() {
		parts = append(parts, k.Name()+"="+ir.Format(k.Value()))
	}
	return strings.Join(parts, ",")
}
