package harness

import (
	"github.com/roach88/relmap/internal/changelog"
)

// Line is one compiled statement of a step.
type Line struct {
	SQL  string `json:"sql"`
	Args []any  `json:"args,omitempty"`
}

// StepResult is the transcript of one step.
type StepResult struct {
	Op string `json:"op"`

	// Statements holds the compiled SQL in execution order.
	Statements []Line `json:"statements,omitempty"`

	// Command is the rendered document command of a document step.
	Command string `json:"command,omitempty"`

	// Entries are the change entries of a diff step.
	Entries []changelog.Entry `json:"entries,omitempty"`

	// Rows renders the records an executed query or select read back.
	Rows []string `json:"rows,omitempty"`

	// Error is the error code the step failed with, if any.
	Error string `json:"error,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall success: every step behaved as expected and
	// every assertion held.
	Pass bool `json:"pass"`

	// Dialect is the dialect the statements were compiled for.
	Dialect string `json:"dialect"`

	// Steps holds one transcript entry per scenario step.
	Steps []StepResult `json:"steps"`

	// Errors contains failure messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult(dialect string) *Result {
	return &Result{
		Pass:    true,
		Dialect: dialect,
		Steps:   []StepResult{},
		Errors:  []string{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddStep appends a step transcript.
func (r *Result) AddStep(s StepResult) {
	r.Steps = append(r.Steps, s)
}
