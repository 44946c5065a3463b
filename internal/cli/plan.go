package cli

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/relmap/internal/harness"
)

// PlanOptions holds flags for the plan command.
type PlanOptions struct {
	*RootOptions
	SpecsDir string // base directory for relative spec paths
}

// PlanResult is the JSON payload of plan and apply.
type PlanResult struct {
	Scenario string          `json:"scenario"`
	Result   *harness.Result `json:"result"`
}

// NewPlanCommand creates the plan command.
func NewPlanCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PlanOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "plan <scenario.yaml>",
		Short: "Compile a scenario without touching a database",
		Long: `Compile every step of a scenario and print its transcript: the SQL
statements with their arguments, document commands and change entries.

Nothing is executed. A scenario without a dialect uses the configured one.

Exit codes:
  0 - All steps and assertions held
  1 - A step failed unexpectedly or an assertion did not hold
  2 - Command error (invalid scenario, unknown record, etc.)

Examples:
  relmap plan scenarios/shrink_items.yaml
  relmap plan scenarios/shrink_items.yaml --dialect postgres
  relmap plan scenarios/shrink_items.yaml --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.SpecsDir, "specs", "", "resolve relative spec paths against this directory")

	return cmd
}

func runPlan(opts *PlanOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	scenario, err := loadScenario(opts.RootOptions, path, opts.SpecsDir)
	if err != nil {
		return outputScenarioError(formatter, err)
	}
	scenario.Execute = false
	formatter.VerboseLog("Compiling %d step(s) of %s for %s", len(scenario.Steps), scenario.Name, scenario.Dialect)

	result, err := harness.Run(scenario)
	if err != nil {
		return outputScenarioError(formatter, err)
	}
	return outputScenarioResult(formatter, scenario.Name, result)
}

// loadScenario reads a scenario and applies the configured defaults: the
// dialect when the scenario names none, and lazy loading for reads.
func loadScenario(opts *RootOptions, path, specsDir string) (*harness.Scenario, error) {
	if err := opts.ensureConfig(); err != nil {
		return nil, err
	}

	var (
		scenario *harness.Scenario
		err      error
	)
	if specsDir != "" {
		scenario, err = harness.LoadScenarioWithBasePath(path, specsDir)
	} else {
		scenario, err = harness.LoadScenario(path)
	}
	if err != nil {
		return nil, err
	}

	if scenario.Dialect == "" {
		scenario.Dialect = opts.Config.Dialect
	}
	if opts.Config.Lazy {
		for i := range scenario.Steps {
			step := &scenario.Steps[i]
			if (step.Op == harness.OpSelect || step.Op == harness.OpQuery) && !hasOption(step.Options, "with_lazy") {
				step.Options = append(step.Options, "with_lazy")
			}
		}
	}
	return scenario, nil
}

func hasOption(options []string, name string) bool {
	for _, o := range options {
		if o == name {
			return true
		}
	}
	return false
}

// outputScenarioResult prints the transcript, or the result as JSON, and
// maps a failing result to exit code 1.
func outputScenarioResult(formatter *OutputFormatter, name string, result *harness.Result) error {
	if formatter.Format == "json" {
		if result.Pass {
			return formatter.Success(PlanResult{Scenario: name, Result: result})
		}
		_ = formatter.Error("E_SCENARIO_FAILED", strings.Join(result.Errors, "; "), PlanResult{Scenario: name, Result: result})
		return NewExitError(ExitFailure, fmt.Sprintf("scenario %s failed", name))
	}

	fmt.Fprint(formatter.Writer, harness.Transcript(name, result))
	if result.Pass {
		return nil
	}
	fmt.Fprintf(formatter.Writer, "%s %s\n", failMark(), name)
	for _, e := range result.Errors {
		fmt.Fprintf(formatter.Writer, "  %s\n", e)
	}
	return NewExitError(ExitFailure, fmt.Sprintf("scenario %s failed", name))
}

// outputScenarioError reports a scenario that could not be loaded or run.
func outputScenarioError(formatter *OutputFormatter, err error) error {
	_ = formatter.Error(ErrCodeScenario, err.Error(), nil)
	return WrapExitError(ExitCommandError, "scenario error", err)
}

// scenarioName returns the file name of a scenario without its extension.
func scenarioName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
