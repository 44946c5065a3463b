package changelog

import (
	"strings"

	"github.com/roach88/relmap/internal/ir"
)

// Chunk prepares entries for a backend that stores at most limit runes per
// value. Backslashes are doubled, then values longer than limit are split;
// every chunk but the last ends in one extra, unescaped backslash. Both
// sides of an entry are split independently and paired up, the shorter side
// padding with empty text.
//
// Entries already escaped pass through unchanged.
func Chunk(entries []Entry, limit int) ([]Entry, error) {
	if limit < 2 {
		return nil, ir.Errorf(ir.ErrCodeUnsupported, "chunk limit %d is below 2", limit)
	}
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.Escaped {
			out = append(out, e)
			continue
		}
		olds := split(escape(e.Old), limit)
		news := split(escape(e.New), limit)
		n := max(len(olds), len(news))
		for i := 0; i < n; i++ {
			c := e
			c.Old, c.New = at(olds, i), at(news, i)
			c.Escaped = true
			out = append(out, c)
		}
	}
	return out, nil
}

// Join reassembles chunked entries and unescapes their text. Entries that
// are not escaped pass through, so joining joined entries changes nothing.
func Join(entries []Entry) []Entry {
	out := make([]Entry, 0, len(entries))
	for i := 0; i < len(entries); {
		e := entries[i]
		if !e.Escaped {
			out = append(out, e)
			i++
			continue
		}
		var olds, news strings.Builder
		oldOpen, newOpen := true, true
		j := i
		for j < len(entries) && (oldOpen || newOpen) {
			c := entries[j]
			if !c.Escaped || c.Path != e.Path || c.Kind != e.Kind {
				break
			}
			if oldOpen {
				oldOpen = appendChunk(&olds, c.Old)
			}
			if newOpen {
				newOpen = appendChunk(&news, c.New)
			}
			j++
		}
		e.Old, e.New = Unescape(olds.String()), Unescape(news.String())
		e.Escaped = false
		out = append(out, e)
		i = j
	}
	return out
}

// Unescape undoes the backslash doubling applied by Chunk. A lone
// backslash is kept.
func Unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		b.WriteByte(s[i])
		if s[i] == '\\' && i+1 < len(s) && s[i+1] == '\\' {
			i++
		}
	}
	return b.String()
}

// Continued reports whether chunk ends in an unescaped backslash.
func Continued(chunk string) bool {
	n := 0
	for i := len(chunk) - 1; i >= 0 && chunk[i] == '\\'; i-- {
		n++
	}
	return n%2 == 1
}

func appendChunk(b *strings.Builder, chunk string) bool {
	if Continued(chunk) {
		b.WriteString(chunk[:len(chunk)-1])
		return true
	}
	b.WriteString(chunk)
	return false
}

func escape(s string) string {
	return strings.ReplaceAll(s, `\`, `\\`)
}

// split cuts escaped text into chunks of at most limit runes plus the
// marker. An escaped backslash pair is never cut in two.
func split(s string, limit int) []string {
	runes := []rune(s)
	if len(runes) <= limit {
		return []string{s}
	}
	var out []string
	start, n := 0, 0
	for i := 0; i < len(runes); {
		width := 1
		if runes[i] == '\\' {
			width = 2
		}
		if n+width > limit {
			out = append(out, string(runes[start:i])+`\`)
			start, n = i, 0
		}
		i += width
		n += width
	}
	return append(out, string(runes[start:]))
}

func at(chunks []string, i int) string {
	if i < len(chunks) {
		return chunks[i]
	}
	return ""
}
