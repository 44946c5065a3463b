package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/relmap/internal/dialect"
	"github.com/roach88/relmap/internal/record"
	"github.com/roach88/relmap/internal/stmt"
)

// SchemaOptions holds flags for the schema command.
type SchemaOptions struct {
	*RootOptions
	Output string // output file path
	Drop   bool   // emit DROP TABLE before CREATE TABLE
}

// RecordSchema is the DDL of one record: its master table first, then one
// detail table per array.
type RecordSchema struct {
	Record     string   `json:"record"`
	Statements []string `json:"statements"`
}

// SchemaResult holds the DDL for every record of a specs directory.
type SchemaResult struct {
	Dialect string         `json:"dialect"`
	Records []RecordSchema `json:"records"`
}

// NewSchemaCommand creates the schema command.
func NewSchemaCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SchemaOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "schema <specs-dir>",
		Short: "Compile record specs to table DDL",
		Long: `Compile the CUE records of a specs directory to CREATE TABLE
statements for the configured dialect.

Every record maps to a master table; every array maps to a detail table
keyed by the master keys plus one index column per enclosing array.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchema(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write the SQL script to this file")
	cmd.Flags().BoolVar(&opts.Drop, "drop", false, "drop the tables before creating them")

	return cmd
}

func runSchema(opts *SchemaOptions, specsDir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	loadResult, loadErrors := LoadSpecs(specsDir, LoadModeCollectAll)
	if loadResult == nil && len(loadErrors) > 0 {
		var loadErr *LoadError
		if errors.As(loadErrors[0], &loadErr) {
			return outputSchemaError(formatter, loadErr.Code, loadErr.Message)
		}
		return outputSchemaError(formatter, ErrCodeGeneric, loadErrors[0].Error())
	}
	formatter.VerboseLog("Found %d CUE file(s) in %s", loadResult.FileCount, specsDir)
	if len(loadErrors) > 0 {
		return outputLoadErrors(formatter, "Schema compilation failed", loadErrors)
	}

	if err := opts.ensureConfig(); err != nil {
		return err
	}
	d, err := dialect.ByName(opts.Config.Dialect)
	if err != nil {
		return outputSchemaError(formatter, ErrCodeGeneric, err.Error())
	}

	result, err := compileSchema(d, loadResult.Records, opts.Drop)
	if err != nil {
		return outputSchemaError(formatter, ErrCodeGeneric, err.Error())
	}
	for _, rs := range result.Records {
		formatter.VerboseLog("Record %s: %d statement(s)", rs.Record, len(rs.Statements))
	}

	if opts.Output != "" {
		if err := os.WriteFile(opts.Output, []byte(result.Script()), 0644); err != nil {
			return outputSchemaError(formatter, ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err))
		}
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	if opts.Output != "" {
		fmt.Fprintf(formatter.Writer, "%s Wrote %d record(s) for %s to %s\n", passMark(), len(result.Records), result.Dialect, opts.Output)
		return nil
	}
	fmt.Fprint(formatter.Writer, result.Script())
	return nil
}

// compileSchema compiles DDL for each record in declaration order.
func compileSchema(d dialect.Dialect, specs []*record.Spec, drop bool) (*SchemaResult, error) {
	result := &SchemaResult{Dialect: d.Name(), Records: make([]RecordSchema, 0, len(specs))}
	for _, spec := range specs {
		c := stmt.New(spec.New(), d)
		rs := RecordSchema{Record: spec.Name}
		if drop {
			p, err := c.Drop()
			if err != nil {
				return nil, fmt.Errorf("record %s: %w", spec.Name, err)
			}
			if rs.Statements, err = appendSQL(rs.Statements, p); err != nil {
				return nil, fmt.Errorf("record %s: %w", spec.Name, err)
			}
		}
		p, err := c.Create()
		if err != nil {
			return nil, fmt.Errorf("record %s: %w", spec.Name, err)
		}
		if rs.Statements, err = appendSQL(rs.Statements, p); err != nil {
			return nil, fmt.Errorf("record %s: %w", spec.Name, err)
		}
		result.Records = append(result.Records, rs)
	}
	return result, nil
}

func appendSQL(dst []string, p *stmt.Plan) ([]string, error) {
	stmts, err := p.Statements()
	if err != nil {
		return nil, err
	}
	for _, st := range stmts {
		dst = append(dst, st.SQL)
	}
	return dst, nil
}

// Script renders the result as a SQL script, one statement per line and a
// comment line per record.
func (r *SchemaResult) Script() string {
	var b strings.Builder
	for i, rs := range r.Records {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "-- %s (%s)\n", rs.Record, r.Dialect)
		for _, sql := range rs.Statements {
			b.WriteString(sql)
			b.WriteString(";\n")
		}
	}
	return b.String()
}

// outputSchemaError outputs a single error; these are command-level errors.
func outputSchemaError(formatter *OutputFormatter, code, message string) error {
	_ = formatter.Error(code, message, nil)
	return WrapExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message), nil)
}

// outputLoadErrors outputs every compile or validation error of a load.
func outputLoadErrors(formatter *OutputFormatter, title string, errs []error) error {
	if formatter.Format == "json" {
		cliErrors := make([]CLIError, len(errs))
		for i, err := range errs {
			code, message := parseLoadError(err)
			cliErrors[i] = CLIError{Code: code, Message: message}
		}

		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(CLIResponse{
			Status: "error",
			Error:  &cliErrors[0],
			Data:   cliErrors,
		}); err != nil {
			return err
		}
		return NewExitError(ExitCommandError, fmt.Sprintf("%s with %d error(s)", strings.ToLower(title), len(errs)))
	}

	fmt.Fprintf(formatter.Writer, "%s %s\n\n", failMark(), title)
	for _, err := range errs {
		code, message := parseLoadError(err)
		var loadErr *LoadError
		if errors.As(err, &loadErr) && loadErr.Pos.IsValid() {
			fmt.Fprintf(formatter.Writer, "%s:%d:%d\n",
				loadErr.Pos.Filename(),
				loadErr.Pos.Line(),
				loadErr.Pos.Column())
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", code, message)
	}
	return NewExitError(ExitCommandError, fmt.Sprintf("%s with %d error(s)", strings.ToLower(title), len(errs)))
}

// parseLoadError extracts error code and message from an error.
func parseLoadError(err error) (string, string) {
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		if loadErr.Field != "" {
			return loadErr.Code, loadErr.Field + ": " + loadErr.Message
		}
		return loadErr.Code, loadErr.Message
	}
	return ErrCodeGeneric, err.Error()
}
