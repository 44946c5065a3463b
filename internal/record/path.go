package record

import (
	"strconv"
	"strings"
)

// StepKind tells how a path step was reached.
type StepKind int

const (
	StepField StepKind = iota + 1
	StepRecord
	StepArray
)

// Step is one segment of a Path. Index is the element position for array
// steps that address a concrete element, -1 otherwise.
type Step struct {
	Kind  StepKind
	Name  string
	Index int
}

// Path locates a member from the root record.
type Path []Step

// Append returns a copy of p extended by s.
func (p Path) Append(s Step) Path {
	out := make(Path, len(p), len(p)+1)
	copy(out, p)
	return append(out, s)
}

// WithIndex returns a copy of p whose last step addresses element i.
func (p Path) WithIndex(i int) Path {
	out := make(Path, len(p))
	copy(out, p)
	if len(out) > 0 {
		out[len(out)-1].Index = i
	}
	return out
}

// String renders the path as "items[1].qty", the form used in errors and
// change entries.
func (p Path) String() string {
	var b strings.Builder
	for i, s := range p {
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(s.Name)
		if s.Index >= 0 && s.Kind == StepArray {
			b.WriteByte('[')
			b.WriteString(strconv.Itoa(s.Index))
			b.WriteByte(']')
		}
	}
	return b.String()
}

// Dotted renders the path without element indexes ("items.qty"), the form
// document stores use for field references.
func (p Path) Dotted() string {
	names := make([]string, len(p))
	for i, s := range p {
		names[i] = s.Name
	}
	return strings.Join(names, ".")
}

// Arrays returns the positions of array steps in p.
func (p Path) Arrays() []int {
	var out []int
	for i, s := range p {
		if s.Kind == StepArray {
			out = append(out, i)
		}
	}
	return out
}
