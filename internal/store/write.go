package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/relmap/internal/changelog"
	"github.com/roach88/relmap/internal/dialect"
	"github.com/roach88/relmap/internal/ir"
	"github.com/roach88/relmap/internal/record"
	"github.com/roach88/relmap/internal/stmt"
)

// execer is the part of *sql.DB and *sql.Tx the store runs statements on.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type compileFunc func(c *stmt.Compiler) (*stmt.Plan, error)

// Save inserts a new record (version 0), updates a known one with the
// optimistic version check, or updates an unknown one falling back to an
// insert. On success the version is advanced and the record accepted.
func (s *Store) Save(ctx context.Context, rec *record.Record, opts ...stmt.Option) error {
	return s.write(ctx, rec, (*stmt.Compiler).Save, opts, nil)
}

// Insert writes rec as a new row tree.
func (s *Store) Insert(ctx context.Context, rec *record.Record, opts ...stmt.Option) error {
	return s.write(ctx, rec, (*stmt.Compiler).Insert, opts, nil)
}

// Update writes rec over its stored row tree.
func (s *Store) Update(ctx context.Context, rec *record.Record, opts ...stmt.Option) error {
	return s.write(ctx, rec, (*stmt.Compiler).Update, opts, nil)
}

// Replace inserts or overwrites rec with the dialect's upsert form.
func (s *Store) Replace(ctx context.Context, rec *record.Record, opts ...stmt.Option) error {
	return s.write(ctx, rec, (*stmt.Compiler).Replace, opts, nil)
}

// Delete removes rec and every detail row it owns.
func (s *Store) Delete(ctx context.Context, rec *record.Record, opts ...stmt.Option) error {
	return s.write(ctx, rec, (*stmt.Compiler).Delete, opts, nil)
}

// SaveAudited saves after and, in the same transaction, writes the change
// set between before and after to the audit tables. A nil before audits
// against the empty baseline. Saves that change nothing write no change set
// and return nil.
func (s *Store) SaveAudited(ctx context.Context, before, after *record.Record, opts ...stmt.Option) (*changelog.ChangeSet, error) {
	cs, err := changelog.Compute(s.ids, s.d.TableName(after.Name()), before, after, s.limit)
	if err != nil {
		return nil, fmt.Errorf("audit %s: %w", after.Name(), err)
	}
	if cs.Empty() {
		cs = nil
	} else {
		cs.Seq = s.clock.Next()
	}
	if err := s.write(ctx, after, (*stmt.Compiler).Save, opts, cs); err != nil {
		return nil, err
	}
	return cs, nil
}

// CreateTables creates the master and detail tables of rec's shape.
func (s *Store) CreateTables(ctx context.Context, rec *record.Record) error {
	return s.ddl(ctx, rec, (*stmt.Compiler).Create)
}

// DropTables drops the master and detail tables of rec's shape.
func (s *Store) DropTables(ctx context.Context, rec *record.Record) error {
	return s.ddl(ctx, rec, (*stmt.Compiler).Drop)
}

func (s *Store) ddl(ctx context.Context, rec *record.Record, compile compileFunc) error {
	c := stmt.New(rec, s.d)
	plan, err := compile(c)
	if err != nil {
		return err
	}
	sts, err := plan.Statements()
	if err != nil {
		return err
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, st := range sts {
			if _, err := s.execResult(ctx, tx, st); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) write(ctx context.Context, rec *record.Record, compile compileFunc, opts []stmt.Option, cs *changelog.ChangeSet) error {
	c := stmt.New(rec, s.d, opts...)
	plan, err := compile(c)
	if err != nil {
		return err
	}

	var (
		next ir.Value
		done *stmt.Plan
	)
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		done, err = s.run(ctx, tx, plan)
		if err != nil {
			return err
		}
		if cs != nil {
			if err := s.writeChangeSet(ctx, tx, cs); err != nil {
				return err
			}
		}
		next, err = nextVersion(rec, done)
		return err
	})
	if err != nil {
		return err
	}
	s.logger.Info("write committed", "op", done.Op().String(), "table", c.Table(), "audited", cs != nil)

	if plan.Op() == stmt.OpDelete {
		return nil
	}
	if next != nil {
		if err := rec.VersionField().Load(next); err != nil {
			return err
		}
	}
	rec.AcceptChanges()
	return nil
}

// run executes a plan and returns the plan that took effect, which is the
// insert fallback when an unknown-version update matched nothing.
func (s *Store) run(ctx context.Context, tx execer, plan *stmt.Plan) (*stmt.Plan, error) {
	n, err := s.exec(ctx, tx, plan.Master)
	if err != nil {
		return nil, err
	}
	if op := plan.Master.Op; n == 0 && (op == stmt.OpUpdate || op == stmt.OpDelete) {
		switch {
		case plan.Master.Versioned:
			return nil, ir.Errorf(ir.ErrCodeLockConflict, "%s %s matched no row at the expected version",
				op, plan.Master.Table)
		case plan.FallbackOnMiss():
			fb, err := plan.Fallback()
			if err != nil {
				return nil, err
			}
			s.logger.Info("update matched no row, inserting", "table", plan.Master.Table)
			return s.run(ctx, tx, fb)
		default:
			return nil, ir.Errorf(ir.ErrCodeNotFound, "%s %s matched no row", op, plan.Master.Table)
		}
	}

	for plan.State() == stmt.Pending {
		st, err := plan.Next()
		if err != nil {
			return nil, err
		}
		n, err := s.exec(ctx, tx, st)
		if err != nil {
			return nil, err
		}
		if n == 0 && st.Op == stmt.OpUpdate && st.Detail != nil {
			ins, err := plan.InsertFor(st)
			if err != nil {
				return nil, err
			}
			if _, err := s.exec(ctx, tx, ins); err != nil {
				return nil, err
			}
		}
	}
	return plan, nil
}

// exec runs one statement and returns the affected row count.
func (s *Store) exec(ctx context.Context, tx execer, st stmt.Statement) (int64, error) {
	res, err := s.execResult(ctx, tx, st)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s %s: rows affected: %w", st.Op, st.Table, err)
	}
	return n, nil
}

// execResult runs one statement. DDL goes through it directly: some drivers
// report no affected-row count for it.
func (s *Store) execResult(ctx context.Context, tx execer, st stmt.Statement) (sql.Result, error) {
	s.logger.Debug("exec", "op", st.Op.String(), "table", st.Table, "sql", st.SQL, "args", len(st.Args))
	res, err := tx.ExecContext(ctx, st.SQL, st.Args...)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", st.Op, st.Table, dialect.Classify(err, st.Table))
	}
	return res, nil
}

// inTx runs fn in a transaction, rolling back on any error.
func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	if err := fn(tx); err != nil {
		s.logger.Warn("rolled back", "error", err)
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// nextVersion returns the version the executed plan stored, or nil when it
// is not known locally: an unknown-version update increments in place.
func nextVersion(rec *record.Record, done *stmt.Plan) (ir.Value, error) {
	vf := rec.VersionField()
	if vf == nil || done.Op() == stmt.OpDelete {
		return nil, nil
	}
	if done.Op() == stmt.OpUpdate && done.FallbackOnMiss() {
		return nil, nil
	}
	return dialect.NextVersion(vf)
}
