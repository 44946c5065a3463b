package harness

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/relmap/internal/changelog"
	"github.com/roach88/relmap/internal/docstore"
	"github.com/roach88/relmap/internal/ir"
	"github.com/roach88/relmap/internal/record"
)

// Transcript renders a result as the plain text stored in golden files.
//
//	scenario: shrink_items
//	dialect: sqlite3
//	step 1: update
//	  UPDATE "doc" SET "v" = ? WHERE "k" = ? AND "v" = ?
//	    args: 3, 5, 2
//
// Diff entries, document commands, rows read back and step errors follow
// their step on indented lines of their own.
func Transcript(name string, result *Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "scenario: %s\n", name)
	fmt.Fprintf(&b, "dialect: %s\n", result.Dialect)
	for i, s := range result.Steps {
		fmt.Fprintf(&b, "step %d: %s\n", i+1, s.Op)
		for _, l := range s.Statements {
			fmt.Fprintf(&b, "  %s\n", l.SQL)
			if len(l.Args) > 0 {
				args := make([]string, len(l.Args))
				for j, a := range l.Args {
					args[j] = formatArg(a)
				}
				fmt.Fprintf(&b, "    args: %s\n", strings.Join(args, ", "))
			}
		}
		for _, e := range s.Entries {
			fmt.Fprintf(&b, "  %s\n", formatEntry(e))
		}
		if s.Command != "" {
			fmt.Fprintf(&b, "  command: %s\n", s.Command)
		}
		for _, row := range s.Rows {
			fmt.Fprintf(&b, "  row: %s\n", row)
		}
		if s.Error != "" {
			fmt.Fprintf(&b, "  error: %s\n", s.Error)
		}
	}
	return b.String()
}

func formatEntry(e changelog.Entry) string {
	side := func(s string, null bool) string {
		switch {
		case null:
			return "null"
		case e.Kind == changelog.KindSize:
			return s
		default:
			return strconv.Quote(s)
		}
	}
	line := fmt.Sprintf("%s %s: %s -> %s", e.Kind, e.Path, side(e.Old, e.OldNull), side(e.New, e.NewNull))
	if e.Escaped {
		line += " (escaped)"
	}
	return line
}

// formatArg renders a statement argument: NULL for nil, quoted text, and
// RFC 3339 UTC times.
func formatArg(a any) string {
	switch v := a.(type) {
	case nil:
		return "NULL"
	case string:
		return strconv.Quote(v)
	case []byte:
		return strconv.Quote(string(v))
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano)
	case ir.Value:
		if ir.IsNull(v) {
			return "NULL"
		}
		return formatArg(ir.ToAny(v))
	default:
		return fmt.Sprintf("%v", v)
	}
}

// formatDoc renders a document value. Ordered documents keep their order;
// plain maps are rendered with sorted keys.
func formatDoc(v any) string {
	switch v := v.(type) {
	case nil:
		return "null"
	case docstore.D:
		parts := make([]string, len(v))
		for i, e := range v {
			parts[i] = e.Key + ": " + formatDoc(e.Value)
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + ": " + formatDoc(v[k])
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case []any:
		parts := make([]string, len(v))
		for i, x := range v {
			parts[i] = formatDoc(x)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return formatArg(v)
	}
}

// renderCommand renders a document command on one line.
func renderCommand(cmd docstore.Command) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", cmd.Op, cmd.Collection)
	for _, part := range []struct {
		name string
		doc  docstore.D
	}{
		{"filter", cmd.Filter},
		{"doc", cmd.Doc},
		{"update", cmd.Update},
		{"sort", cmd.Sort},
	} {
		if part.doc != nil {
			fmt.Fprintf(&b, " %s=%s", part.name, formatDoc(part.doc))
		}
	}
	if cmd.Upsert {
		b.WriteString(" upsert")
	}
	if cmd.Versioned {
		b.WriteString(" versioned")
	}
	return b.String()
}

// renderRecord renders the current state of rec as a document.
func renderRecord(rec *record.Record) (string, error) {
	doc, err := docstore.Document(rec, false)
	if err != nil {
		return "", err
	}
	return formatDoc(doc), nil
}
