package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/roach88/relmap/internal/changelog"
	"github.com/roach88/relmap/internal/dialect"
)

// Audit table names. Change sets are the header rows; entries are stored
// chunked, one row per chunk, in entry order.
const (
	ChangeSetTable = "relmap_changesets"
	EntryTable     = "relmap_changes"
)

// InitAudit creates the audit tables if missing and resumes the change-set
// clock from the highest stored sequence. Idempotent.
func (s *Store) InitAudit(ctx context.Context) error {
	q := s.d.QuoteIdent
	ddl := []string{
		"CREATE TABLE IF NOT EXISTS " + q(ChangeSetTable) + " (" +
			q("id") + " VARCHAR(64) NOT NULL, " +
			q("seq") + " BIGINT NOT NULL, " +
			q("tbl") + " VARCHAR(255) NOT NULL, " +
			q("digest") + " VARCHAR(64) NOT NULL, " +
			"PRIMARY KEY (" + q("id") + "))",
		"CREATE TABLE IF NOT EXISTS " + q(EntryTable) + " (" +
			q("changeset") + " VARCHAR(64) NOT NULL, " +
			q("pos") + " INTEGER NOT NULL, " +
			q("path") + " VARCHAR(255) NOT NULL, " +
			q("kind") + " VARCHAR(8) NOT NULL, " +
			q("old_value") + " TEXT, " +
			q("new_value") + " TEXT, " +
			"PRIMARY KEY (" + q("changeset") + ", " + q("pos") + "))",
	}
	for _, create := range ddl {
		if _, err := s.db.ExecContext(ctx, create); err != nil {
			return fmt.Errorf("failed to create audit tables: %w", err)
		}
	}

	var last sql.NullInt64
	if err := s.db.QueryRowContext(ctx, "SELECT MAX("+q("seq")+") FROM "+q(ChangeSetTable)).Scan(&last); err != nil {
		return fmt.Errorf("read audit sequence: %w", err)
	}
	s.clock = changelog.NewClockAt(last.Int64)
	return nil
}

// writeChangeSet stores cs inside the save's transaction.
func (s *Store) writeChangeSet(ctx context.Context, tx execer, cs *changelog.ChangeSet) error {
	digest, err := cs.Digest()
	if err != nil {
		return fmt.Errorf("write change set: %w", err)
	}
	q := s.d.QuoteIdent

	args := dialect.NewArgs(s.d.Placeholders())
	head := "INSERT INTO " + q(ChangeSetTable) + " (" +
		strings.Join([]string{q("id"), q("seq"), q("tbl"), q("digest")}, ", ") + ") VALUES (" +
		strings.Join([]string{args.Add(cs.ID), args.Add(cs.Seq), args.Add(cs.Table), args.Add(digest)}, ", ") + ")"
	if _, err := tx.ExecContext(ctx, head, args.Values()...); err != nil {
		return fmt.Errorf("write change set: %w", dialect.Classify(err, ChangeSetTable))
	}

	for i, e := range cs.Entries {
		args := dialect.NewArgs(s.d.Placeholders())
		row := "INSERT INTO " + q(EntryTable) + " (" +
			strings.Join([]string{q("changeset"), q("pos"), q("path"), q("kind"), q("old_value"), q("new_value")}, ", ") +
			") VALUES (" + strings.Join([]string{
			args.Add(cs.ID),
			args.Add(int64(i)),
			args.Add(e.Path),
			args.Add(e.Kind.String()),
			args.Add(nullable(e.Old, e.OldNull)),
			args.Add(nullable(e.New, e.NewNull)),
		}, ", ") + ")"
		if _, err := tx.ExecContext(ctx, row, args.Values()...); err != nil {
			return fmt.Errorf("write change entry %s: %w", e.Path, err)
		}
	}
	return nil
}

// ChangeSets returns the stored change sets of table in save order, with
// chunked entries joined back together.
//
// Returns an empty slice (not nil) if nothing was audited.
func (s *Store) ChangeSets(ctx context.Context, table string) ([]changelog.ChangeSet, error) {
	q := s.d.QuoteIdent
	args := dialect.NewArgs(s.d.Placeholders())
	query := "SELECT c." + q("id") + ", c." + q("seq") + ", e." + q("path") + ", e." + q("kind") +
		", e." + q("old_value") + ", e." + q("new_value") +
		" FROM " + q(ChangeSetTable) + " c JOIN " + q(EntryTable) + " e ON e." + q("changeset") + " = c." + q("id") +
		" WHERE c." + q("tbl") + " = " + args.Add(table) +
		" ORDER BY c." + q("seq") + " ASC, e." + q("pos") + " ASC"

	rows, err := s.db.QueryContext(ctx, query, args.Values()...)
	if err != nil {
		return nil, fmt.Errorf("query change sets: %w", err)
	}
	defer rows.Close()

	sets := []changelog.ChangeSet{}
	for rows.Next() {
		var (
			id, path, kind string
			seq            int64
			oldV, newV     sql.NullString
		)
		if err := rows.Scan(&id, &seq, &path, &kind, &oldV, &newV); err != nil {
			return nil, fmt.Errorf("scan change entry: %w", err)
		}
		if n := len(sets); n == 0 || sets[n-1].ID != id {
			sets = append(sets, changelog.ChangeSet{ID: id, Seq: seq, Table: table})
		}
		cs := &sets[len(sets)-1]
		e := changelog.Entry{
			Path:    path,
			Kind:    changelog.KindValue,
			Old:     oldV.String,
			New:     newV.String,
			OldNull: !oldV.Valid,
			NewNull: !newV.Valid,
			Escaped: s.limit > 0,
		}
		if kind == changelog.KindSize.String() {
			e.Kind = changelog.KindSize
		}
		cs.Entries = append(cs.Entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate change sets: %w", err)
	}

	for i := range sets {
		sets[i].Entries = changelog.Join(sets[i].Entries)
	}
	return sets, nil
}

func nullable(s string, null bool) any {
	if null {
		return nil
	}
	return s
}
