// Package querysql renders queryir filter trees and sort specs as SQL
// clause text for a dialect.
//
// Rendering never decides table layout: a Scope maps every field and array
// reference to a qualified column, synthesizing joins as needed, so the
// same renderer serves single-table and joined selects. All values are
// bound through dialect.Args.
package querysql
