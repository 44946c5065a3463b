package stmt

import (
	"fmt"
	"strings"

	"github.com/roach88/relmap/internal/record"
)

// Open marks an open-ended cleaning range.
const Open = -1

// Link fixes one enclosing array position on a detail row.
type Link struct {
	Column string // index column of the enclosing array
	Index  int
}

// DetailInfo is the unit of work for one array occurrence.
//
// A write item addresses element Index of Array; draining it emits that
// element's row statement. A cleaning item deletes the rows of Table whose
// Column index lies in [From, To] (To == Open: no upper bound; From == 0
// and To == Open: every row under Chain).
//
// DetailInfos are created during a pass, drained exactly once and then
// discarded.
type DetailInfo struct {
	Array    *record.Array
	Table    string
	Column   string
	Chain    []Link
	Index    int
	Cleaning bool
	From     int
	To       int

	path string
}

// Links returns Chain extended by this item's own position.
func (d *DetailInfo) Links() []Link {
	out := make([]Link, len(d.Chain), len(d.Chain)+1)
	copy(out, d.Chain)
	return append(out, Link{Column: d.Column, Index: d.Index})
}

// Path renders the element path, e.g. "items[1].parts[0]".
func (d *DetailInfo) Path() string {
	if d.Cleaning {
		return d.path
	}
	return fmt.Sprintf("%s[%d]", d.path, d.Index)
}

// String describes the item for logs and transcripts.
func (d *DetailInfo) String() string {
	if !d.Cleaning {
		return fmt.Sprintf("write %s", d.Path())
	}
	var b strings.Builder
	fmt.Fprintf(&b, "clean %s %s", d.Table, d.path)
	switch {
	case d.From == 0 && d.To == Open:
		b.WriteString(" all")
	case d.To == Open:
		fmt.Fprintf(&b, " > %d", d.From-1)
	default:
		fmt.Fprintf(&b, " [%d,%d]", d.From, d.To)
	}
	return b.String()
}
