package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario defines a mapping scenario: a record shape, an optional loaded
// state, and a sequence of steps whose compiled statements form the
// transcript.
type Scenario struct {
	// Name uniquely identifies this scenario. It names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario demonstrates.
	Description string `yaml:"description"`

	// Dialect selects the SQL dialect. Defaults to sqlite.
	Dialect string `yaml:"dialect,omitempty"`

	// Specs lists CUE files holding record definitions.
	// Paths are relative to the scenario file location.
	Specs []string `yaml:"specs"`

	// Record names the record definition the steps operate on.
	Record string `yaml:"record"`

	// Loaded is the state the record starts in, as if read from the
	// database: values are not modified and arrays are marked loaded.
	Loaded map[string]any `yaml:"loaded,omitempty"`

	// Steps run in order against the same record.
	Steps []Step `yaml:"steps"`

	// Assertions validate the transcript and, when executing, the tables.
	// Supported types: statement_contains, statement_order,
	// statement_count, final_state
	Assertions []Assertion `yaml:"assertions,omitempty"`

	// Execute runs every step against a fresh in-memory sqlite store in
	// addition to compiling it. Requires the sqlite dialect.
	Execute bool `yaml:"execute,omitempty"`
}

// Step is one operation on the scenario record.
type Step struct {
	// Op is one of the Op* constants.
	Op string `yaml:"op"`

	// Set assigns values before the op runs. Lists resize arrays: a null
	// element makes a hole and an empty map keeps the element as is.
	Set map[string]any `yaml:"set,omitempty"`

	// Where is a textual filter for query steps.
	Where string `yaml:"where,omitempty"`

	// Example adds the record's non-null fields as equality filters.
	Example bool `yaml:"example,omitempty"`

	// Sort orders query results.
	Sort []SortKey `yaml:"sort,omitempty"`

	// Limit caps executed query results.
	Limit int `yaml:"limit,omitempty"`

	// Options are statement compiler options: only_modified,
	// without_cleaner, without_version_check, with_lazy.
	Options []string `yaml:"options,omitempty"`

	// Command is the document command of a document step: save, insert,
	// update, replace, delete or find. Defaults to save.
	Command string `yaml:"command,omitempty"`

	// Chunk is the value limit applied to diff entries; 0 disables chunking.
	Chunk int `yaml:"chunk,omitempty"`

	// Error is the expected error code. The step must fail with it.
	Error string `yaml:"error,omitempty"`
}

// SortKey is one ORDER BY term naming a field by its dotted path.
type SortKey struct {
	Field string `yaml:"field"`
	Desc  bool   `yaml:"desc,omitempty"`
}

// Step op constants.
const (
	OpCreate   = "create"
	OpDrop     = "drop"
	OpInsert   = "insert"
	OpUpdate   = "update"
	OpReplace  = "replace"
	OpDelete   = "delete"
	OpSave     = "save"
	OpSelect   = "select"
	OpQuery    = "query"
	OpDiff     = "diff"
	OpDocument = "document"
)

var validOps = map[string]bool{
	OpCreate: true, OpDrop: true, OpInsert: true, OpUpdate: true,
	OpReplace: true, OpDelete: true, OpSave: true, OpSelect: true,
	OpQuery: true, OpDiff: true, OpDocument: true,
}

// Document step commands. The empty command means save.
const (
	CommandSave    = "save"
	CommandInsert  = "insert"
	CommandUpdate  = "update"
	CommandReplace = "replace"
	CommandDelete  = "delete"
	CommandFind    = "find"
)

var validCommands = map[string]bool{
	"": true, CommandSave: true, CommandInsert: true, CommandUpdate: true,
	CommandReplace: true, CommandDelete: true, CommandFind: true,
}

// Assertion validates the transcript or the final table contents.
type Assertion struct {
	// Type specifies the assertion type:
	// - "statement_contains": some statement of Step contains SQL
	// - "statement_order": the SQL fragments appear in order within Step
	// - "statement_count": Step compiled exactly Count statements
	// - "final_state": query Table and verify expected values (execute only)
	Type string `yaml:"type"`

	// Step is the 1-based step number (statement assertions).
	Step int `yaml:"step,omitempty"`

	// SQL is the expected statement fragment (statement_contains).
	SQL string `yaml:"sql,omitempty"`

	// Fragments are the expected fragments in order (statement_order).
	Fragments []string `yaml:"fragments,omitempty"`

	// Count is the expected number of statements (statement_count).
	Count int `yaml:"count,omitempty"`

	// Table is the table name (used by final_state).
	Table string `yaml:"table,omitempty"`

	// Where specifies query filters (used by final_state).
	// All fields must match exactly.
	Where map[string]any `yaml:"where,omitempty"`

	// Expect contains expected column values (used by final_state).
	// Subset match - only specified columns are validated.
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertStatementContains = "statement_contains"
	AssertStatementOrder    = "statement_order"
	AssertStatementCount    = "statement_count"
	AssertFinalState        = "final_state"
)

// LoadScenario reads and parses a scenario YAML file. Spec paths are
// resolved relative to the scenario file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving spec paths relative to the provided base path.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	// Resolve spec paths relative to base path BEFORE validation
	for i, specPath := range scenario.Specs {
		if !filepath.IsAbs(specPath) && basePath != "" {
			scenario.Specs[i] = filepath.Join(basePath, specPath)
		}
	}

	if err := validateScenario(scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return scenario, nil
}

// ParseScenario decodes scenario YAML without validating spec paths.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Specs) == 0 {
		return fmt.Errorf("specs list is required and must be non-empty")
	}

	if s.Record == "" {
		return fmt.Errorf("record is required")
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	// Validate spec paths exist
	for _, specPath := range s.Specs {
		if _, err := os.Stat(specPath); os.IsNotExist(err) {
			return fmt.Errorf("spec file not found: %s", specPath)
		}
	}

	for i, step := range s.Steps {
		if !validOps[step.Op] {
			return fmt.Errorf("steps[%d]: unknown op %q", i, step.Op)
		}
		filtered := step.Op == OpQuery || (step.Op == OpDocument && step.Command == CommandFind)
		if !filtered && (step.Where != "" || step.Example || len(step.Sort) > 0) {
			return fmt.Errorf("steps[%d]: where, example and sort apply to queries only", i)
		}
		if step.Op != OpQuery && step.Limit != 0 {
			return fmt.Errorf("steps[%d]: limit applies to query steps only", i)
		}
		if step.Op != OpDocument && step.Command != "" {
			return fmt.Errorf("steps[%d]: command applies to document steps only", i)
		}
		if step.Op == OpDocument && !validCommands[step.Command] {
			return fmt.Errorf("steps[%d]: unknown document command %q", i, step.Command)
		}
		if step.Chunk < 0 {
			return fmt.Errorf("steps[%d]: chunk must be non-negative", i)
		}
		for _, opt := range step.Options {
			if _, ok := stmtOptions[opt]; !ok {
				return fmt.Errorf("steps[%d]: unknown option %q", i, opt)
			}
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion, len(s.Steps)); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, steps int) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertStatementContains, AssertStatementOrder, AssertStatementCount:
		if a.Step < 1 || a.Step > steps {
			return fmt.Errorf("assertions[%d]: step must be between 1 and %d", index, steps)
		}
	}

	switch a.Type {
	case AssertStatementContains:
		if a.SQL == "" {
			return fmt.Errorf("assertions[%d]: sql is required for statement_contains", index)
		}
	case AssertStatementOrder:
		if len(a.Fragments) == 0 {
			return fmt.Errorf("assertions[%d]: fragments list is required for statement_order", index)
		}
	case AssertStatementCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for statement_count", index)
		}
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
