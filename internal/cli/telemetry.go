package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/intelstore/internal/ingest"
	"github.com/roach88/intelstore/internal/ir"
)

// NewTelemetryCommand creates the telemetry command group.
func NewTelemetryCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "telemetry",
		Short: "Write and show per-run telemetry",
	}

	cmd.AddCommand(newTelemetryWriteCommand(rootOpts))
	cmd.AddCommand(newTelemetryShowCommand(rootOpts))

	return cmd
}

func newTelemetryWriteCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "write <run-id> <file|->",
		Short: "Store a run's telemetry object, replacing any earlier one",
		Long: `Store a YAML or JSON object as the run's telemetry.

Example:
  intelstore telemetry write run-001 telemetry.json
  echo '{"items_total": 3}' | intelstore telemetry write run-001 -`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := newFormatter(opts, cmd)

			payload, err := readTelemetry(cmd, args[1])
			if err != nil {
				return out.Fail("read telemetry", err)
			}

			e, err := setup(opts, cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			sess, err := e.session(cmd)
			if err != nil {
				return err
			}
			if err := sess.WriteTelemetry(cmd.Context(), args[0], payload); err != nil {
				return e.out.Fail("write telemetry", err)
			}
			e.logger.Info("telemetry written", "run_id", args[0], "metrics", len(payload))

			if e.out.Format == "json" {
				return e.out.Success(map[string]any{"run_id": args[0], "metrics": len(payload)})
			}
			fmt.Fprintf(e.out.Writer, "Wrote %d metric(s) for run %s\n", len(payload), args[0])
			return nil
		},
	}
}

func newTelemetryShowCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show a run's telemetry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(opts, cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			sess, err := e.session(cmd)
			if err != nil {
				return err
			}
			rec, err := sess.GetTelemetry(cmd.Context(), args[0])
			if err != nil {
				return e.out.Fail("show telemetry", err)
			}

			if e.out.Format == "json" {
				return e.out.Success(rec)
			}
			fmt.Fprintf(e.out.Writer, "Telemetry for run %s (written %s)\n", rec.RunID, formatTimestamp(rec.CreatedAt))
			for _, k := range rec.Payload.SortedKeys() {
				writeCanonical(e.out.Writer, "  "+k+": ", rec.Payload[k])
			}
			return nil
		},
	}
}

func readTelemetry(cmd *cobra.Command, path string) (ir.Object, error) {
	if path == "-" {
		return ingest.ReadTelemetry(cmd.InOrStdin())
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ingest.ErrInvalidDocument, err)
	}
	defer f.Close()
	return ingest.ReadTelemetry(f)
}
