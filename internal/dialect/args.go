package dialect

import (
	"strconv"
)

// PlaceholderStyle is how bound parameters are spelled.
type PlaceholderStyle int

const (
	// Question renders every parameter as "?".
	Question PlaceholderStyle = iota
	// Dollar renders parameters as "$1", "$2", ...
	Dollar
)

// Args collects bound parameter values in statement order.
type Args struct {
	style  PlaceholderStyle
	values []any
}

// NewArgs creates an empty argument list.
func NewArgs(style PlaceholderStyle) *Args {
	return &Args{style: style}
}

// Add binds v and returns its placeholder.
func (a *Args) Add(v any) string {
	a.values = append(a.values, v)
	if a.style == Dollar {
		return "$" + strconv.Itoa(len(a.values))
	}
	return "?"
}

// Values returns the bound values.
func (a *Args) Values() []any {
	return a.values
}

// Len returns the number of bound values.
func (a *Args) Len() int {
	return len(a.values)
}
