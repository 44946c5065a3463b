package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/relmap/internal/config"
	"github.com/roach88/relmap/internal/dialect"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string
	Dialect    string

	// Config is resolved before any subcommand runs: defaults, relmap.yaml,
	// RELMAP_ environment variables, then the --dialect flag.
	Config *config.Config
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the relmap CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "relmap",
		Short: "relmap - relational and document mapping",
		Long: `Compile nested records into SQL statements, document commands and
change logs.

Records are declared in CUE; scenarios describe a record, its loaded state
and the operations to compile or execute against it.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return resolveConfig(opts)
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "config file (default ./relmap.yaml)")
	cmd.PersistentFlags().StringVar(&opts.Dialect, "dialect", "", "SQL dialect (sqlite3|postgres|mysql)")

	cmd.AddCommand(NewSchemaCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewPlanCommand(opts))
	cmd.AddCommand(NewApplyCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// resolveConfig loads the configuration and applies flag overrides.
func resolveConfig(opts *RootOptions) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	if opts.Dialect != "" {
		d, err := dialect.ByName(opts.Dialect)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --dialect", err)
		}
		cfg.Dialect = d.Name()
	}
	opts.Config = cfg
	return nil
}

// ensureConfig resolves the configuration for subcommands run without the
// root command.
func (o *RootOptions) ensureConfig() error {
	if o.Config != nil {
		return nil
	}
	return resolveConfig(o)
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
