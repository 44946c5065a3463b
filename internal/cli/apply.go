package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/relmap/internal/harness"
	"github.com/roach88/relmap/internal/store"
)

// ApplyOptions holds flags for the apply command.
type ApplyOptions struct {
	*RootOptions
	SpecsDir string
	Database string // sqlite path or server DSN; defaults to the configured database
}

// NewApplyCommand creates the apply command.
func NewApplyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ApplyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "apply <scenario.yaml>",
		Short: "Run a scenario against a database",
		Long: `Compile and execute every step of a scenario against a database.

The loaded state is inserted first, so the database must not already hold
the record. Writes are version checked; changes are recorded in the
change-log tables, chunked at the configured audit limit.

Examples:
  relmap apply scenarios/orders.yaml --db ./relmap.db
  relmap apply scenarios/orders.yaml --dialect postgres --db "postgres://localhost/relmap?sslmode=disable"`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.SpecsDir, "specs", "", "resolve relative spec paths against this directory")
	cmd.Flags().StringVar(&opts.Database, "db", "", "sqlite path or DSN (default from config)")

	return cmd
}

func runApply(opts *ApplyOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	logLevel := slog.LevelWarn
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(formatter.GetErrWriter(), &slog.HandlerOptions{
		Level: logLevel,
	}))

	scenario, err := loadScenario(opts.RootOptions, path, opts.SpecsDir)
	if err != nil {
		return outputScenarioError(formatter, err)
	}
	scenario.Execute = true

	dsn := opts.Database
	if dsn == "" {
		dsn = opts.Config.Database
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("opening database", "dialect", scenario.Dialect, "dsn", dsn)
	storeOpts := []store.Option{store.WithLogger(logger)}
	if opts.Config.AuditLimit != nil {
		storeOpts = append(storeOpts, store.WithAuditLimit(*opts.Config.AuditLimit))
	}
	st, err := store.Connect(ctx, scenario.Dialect, dsn, storeOpts...)
	if err != nil {
		_ = formatter.Error(ErrCodeDatabase, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()

	result, err := harness.RunWithStore(ctx, scenario, st)
	if err != nil {
		return outputScenarioError(formatter, err)
	}
	logger.Info("scenario applied", "scenario", scenario.Name, "steps", len(result.Steps), "pass", result.Pass)
	return outputScenarioResult(formatter, scenario.Name, result)
}
