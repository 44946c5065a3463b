package changelog

import (
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/roach88/relmap/internal/ir"
	"github.com/roach88/relmap/internal/record"
)

// IDGenerator produces change-set ids.
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 change-set ids.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 and returns it as a hyphenated string.
// Panics if UUID generation fails.
func (g UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Clock stamps change sets with a strictly increasing sequence number, so
// audit rows written in one session sort in save order even when their ids
// share a millisecond.
//
// Thread-safety: Clock is safe for concurrent use.
type Clock struct {
	seq atomic.Int64
}

// NewClockAt creates a clock whose next value is start+1. Stores resume
// from the highest sequence already written.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last sequence number handed out.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}

// ChangeSet is the audit record of one save.
type ChangeSet struct {
	ID      string
	Seq     int64
	Table   string
	Entries []Entry
}

// Compute diffs before and after and, when limit is positive, chunks the
// entries for a backend with that value limit.
func Compute(gen IDGenerator, table string, before, after *record.Record, limit int) (*ChangeSet, error) {
	entries, err := Diff(before, after)
	if err != nil {
		return nil, err
	}
	if limit > 0 {
		if entries, err = Chunk(entries, limit); err != nil {
			return nil, err
		}
	}
	return &ChangeSet{ID: gen.Generate(), Table: table, Entries: entries}, nil
}

// Empty reports whether the save changed nothing.
func (cs *ChangeSet) Empty() bool { return len(cs.Entries) == 0 }

// Digest returns the content digest of the change set. Entries are digested
// joined, so chunking with different limits yields the same digest; the
// sequence number is not part of the content.
func (cs *ChangeSet) Digest() (string, error) {
	joined := Join(cs.Entries)
	entries := make([]any, len(joined))
	for i, e := range joined {
		entries[i] = map[string]any{
			"path":     e.Path,
			"kind":     e.Kind.String(),
			"old":      e.Old,
			"new":      e.New,
			"old_null": e.OldNull,
			"new_null": e.NewNull,
		}
	}
	return ir.Digest(ir.DomainChangeSet, map[string]any{
		"id":      cs.ID,
		"table":   cs.Table,
		"entries": entries,
	})
}
