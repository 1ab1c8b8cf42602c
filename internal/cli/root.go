package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/intelstore/internal/pipeline"
	"github.com/roach88/intelstore/internal/store"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	Database   string // overrides the configured db_path
	ConfigPath string
	Metrics    bool // print store metrics to stderr on exit

	// Clock overrides store write timestamps (for testing).
	Clock store.Clock
	// IDs overrides generated run ids (for testing).
	// If nil, defaults to UUIDv7Generator.
	IDs pipeline.IDGenerator
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the intelstore CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "intelstore",
		Short: "Auditable state store for the brand intelligence pipeline",
		Long: `intelstore records pipeline runs, the intel items each run produces,
and per-run telemetry in a single SQLite database.

The database path comes from --db, then BRAND_ORCH_DB_PATH, then db_path in
the --config file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Validate format flag
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite database")
	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to YAML config file")
	cmd.PersistentFlags().BoolVar(&opts.Metrics, "metrics", false, "print store metrics and transaction span counts to stderr on exit")

	// Add subcommands
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewItemsCommand(opts))
	cmd.AddCommand(NewTelemetryCommand(opts))
	cmd.AddCommand(NewConformanceCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
