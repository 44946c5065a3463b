package stmt

import (
	"github.com/roach88/relmap/internal/ir"
)

// CursorState is the state of a plan's detail cursor.
type CursorState int

const (
	// Pending means Next will return another detail statement.
	Pending CursorState = iota + 1
	// Exhausted means every detail item has been drained.
	Exhausted
)

// String returns "pending" or "exhausted".
func (s CursorState) String() string {
	if s == Pending {
		return "pending"
	}
	return "exhausted"
}

// Plan is a master statement plus the cursor over its detail statements.
//
// Detail writes drain before detail deletes, so every delete of a table
// follows that table's writes. Draining an element may schedule its nested
// arrays and the array's next element; both are appended to the queue.
type Plan struct {
	c      *Compiler
	op     Op
	Master Statement

	writes detailQueue
	cleans detailQueue

	fallback bool
}

func (c *Compiler) newPlan(op Op) *Plan {
	return &Plan{c: c, op: op}
}

// Op returns the operation the plan was compiled for.
func (p *Plan) Op() Op { return p.op }

// State reports whether detail statements remain.
func (p *Plan) State() CursorState {
	if p.writes.len() > 0 || p.cleans.len() > 0 {
		return Pending
	}
	return Exhausted
}

// Peek returns the next DetailInfo without draining it.
func (p *Plan) Peek() (*DetailInfo, bool) {
	if p.writes.len() > 0 {
		return p.writes.items[0], true
	}
	if p.cleans.len() > 0 {
		return p.cleans.items[0], true
	}
	return nil, false
}

// Next drains one DetailInfo and returns its statement.
func (p *Plan) Next() (Statement, error) {
	if d, ok := p.writes.pop(); ok {
		return p.writeStatement(d)
	}
	if d, ok := p.cleans.pop(); ok {
		return p.cleanStatement(d)
	}
	return Statement{}, ir.Errorf(ir.ErrCodeCursorExhausted, "no pending detail statements")
}

// Drain returns every remaining detail statement in order.
func (p *Plan) Drain() ([]Statement, error) {
	var out []Statement
	for p.State() == Pending {
		st, err := p.Next()
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

// Statements returns the master statement followed by every remaining
// detail statement.
func (p *Plan) Statements() ([]Statement, error) {
	details, err := p.Drain()
	if err != nil {
		return nil, err
	}
	return append([]Statement{p.Master}, details...), nil
}

// FallbackOnMiss reports whether a master that matches no row should be
// retried as an insert (the version was unknown when the plan was built).
func (p *Plan) FallbackOnMiss() bool { return p.fallback }

// Fallback returns the insert plan used when an unknown-version update
// matched no row. The inserted version is 1.
func (p *Plan) Fallback() (*Plan, error) {
	if !p.fallback {
		return nil, ir.Errorf(ir.ErrCodeUnsupported, "plan for %s has no insert fallback", p.op)
	}
	return p.c.Insert()
}

// InsertFor renders the insert equivalent of a detail UPDATE that matched
// no row, e.g. an element written into a slot that was a hole when stored.
// Nested arrays of the element are not rescheduled.
func (p *Plan) InsertFor(st Statement) (Statement, error) {
	d := st.Detail
	if d == nil || d.Cleaning || st.Op != OpUpdate {
		return Statement{}, ir.Errorf(ir.ErrCodeUnsupported, "only detail updates have an insert equivalent")
	}
	return p.c.elementRow(d, OpInsert)
}
