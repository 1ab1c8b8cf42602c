package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/roach88/intelstore/internal/ir"
	"github.com/roach88/intelstore/internal/pipeline"
	"github.com/roach88/intelstore/internal/store"
)

// NewRunCommand creates the run command group.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start, finish and inspect pipeline runs",
	}

	cmd.AddCommand(newRunStartCommand(rootOpts))
	cmd.AddCommand(newRunFinishCommand(rootOpts))
	cmd.AddCommand(newRunShowCommand(rootOpts))
	cmd.AddCommand(newRunListCommand(rootOpts))

	return cmd
}

func newRunStartCommand(opts *RootOptions) *cobra.Command {
	var runType string

	cmd := &cobra.Command{
		Use:   "start [run-id]",
		Short: "Record the start of a run",
		Long: `Record a new run with status "running" and the current settings snapshot.

A UUIDv7 run id is generated when none is given.

Example:
  intelstore run start --type daily
  intelstore run start run-001 --type backfill --db ./state.sqlite`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(opts, cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			runID := ""
			if len(args) == 1 {
				runID = args[0]
			} else {
				ids := opts.IDs
				if ids == nil {
					ids = pipeline.UUIDv7Generator{}
				}
				runID = ids.Generate()
			}

			sess, err := e.session(cmd)
			if err != nil {
				return err
			}
			rec, err := sess.StartRun(cmd.Context(), runID, runType, e.cfg.Snapshot())
			if err != nil {
				return e.out.Fail("start run", err)
			}
			e.logger.Info("run started", "run_id", rec.RunID, "run_type", rec.RunType)
			return outputRun(e.out, rec)
		},
	}

	cmd.Flags().StringVar(&runType, "type", "manual", "run type")

	return cmd
}

func newRunFinishCommand(opts *RootOptions) *cobra.Command {
	var status, notes string

	cmd := &cobra.Command{
		Use:   "finish <run-id>",
		Short: "Record the end of a run",
		Long: `Set the run's finish time, status and notes.

Finishing a run again overwrites the earlier finish time, status and notes.

Example:
  intelstore run finish run-001
  intelstore run finish run-001 --status failed --notes "source timeout"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(opts, cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			if status == "" {
				_ = e.out.Error(ErrCodeInvalid, "--status must not be empty", nil)
				return NewExitError(ExitCommandError, "empty status")
			}

			var notesPtr *string
			if cmd.Flags().Changed("notes") {
				notesPtr = store.Ptr(notes)
			}

			sess, err := e.session(cmd)
			if err != nil {
				return err
			}
			if err := sess.FinishRun(cmd.Context(), args[0], status, notesPtr); err != nil {
				return e.out.Fail("finish run", err)
			}
			rec, err := sess.GetRun(cmd.Context(), args[0])
			if err != nil {
				return e.out.Fail("read run", err)
			}
			e.logger.Info("run finished", "run_id", rec.RunID, "status", rec.Status)
			return outputRun(e.out, rec)
		},
	}

	cmd.Flags().StringVar(&status, "status", store.StatusSucceeded, "final run status")
	cmd.Flags().StringVar(&notes, "notes", "", "free-text notes")

	return cmd
}

func newRunShowCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one run",
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
			rec, err := sess.GetRun(cmd.Context(), args[0])
			if err != nil {
				return e.out.Fail("show run", err)
			}
			return outputRun(e.out, rec)
		},
	}
}

func newRunListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List runs in start order",
		Args:  cobra.NoArgs,
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
			runs, err := sess.ListRuns(cmd.Context())
			if err != nil {
				return e.out.Fail("list runs", err)
			}

			if e.out.Format == "json" {
				return e.out.Success(runs)
			}
			if len(runs) == 0 {
				fmt.Fprintln(e.out.Writer, "No runs recorded.")
				return nil
			}
			tw := tabwriter.NewWriter(e.out.Writer, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "RUN ID\tTYPE\tSTATUS\tSTARTED\tFINISHED")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
					r.RunID, r.RunType, statusLabel(r.Status), formatTimestamp(r.StartedAt), formatOptionalTime(r.FinishedAt))
			}
			return tw.Flush()
		},
	}
}

// outputRun renders a single run record.
func outputRun(out *OutputFormatter, rec store.RunRecord) error {
	if out.Format == "json" {
		return out.Success(rec)
	}

	w := out.Writer
	fmt.Fprintf(w, "Run %s\n", rec.RunID)
	fmt.Fprintf(w, "  Type:     %s\n", rec.RunType)
	fmt.Fprintf(w, "  Status:   %s\n", statusLabel(rec.Status))
	fmt.Fprintf(w, "  Started:  %s\n", formatTimestamp(rec.StartedAt))
	fmt.Fprintf(w, "  Finished: %s\n", formatOptionalTime(rec.FinishedAt))
	if rec.Notes != nil {
		fmt.Fprintf(w, "  Notes:    %s\n", *rec.Notes)
	}
	if out.Verbose {
		writeCanonical(w, "  Settings: ", rec.SettingsSnapshot)
	}
	return nil
}

// statusLabel renders a stored status for humans: "succeeded" -> "Succeeded".
// A Caser holds state, so each call gets its own.
func statusLabel(status string) string {
	return cases.Title(language.English).String(status)
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return formatTimestamp(*t)
}

// writeCanonical prints a labeled payload as canonical JSON.
func writeCanonical(w io.Writer, label string, v ir.Value) {
	data, err := ir.MarshalCanonical(v)
	if err != nil {
		fmt.Fprintf(w, "%s<unprintable: %v>\n", label, err)
		return
	}
	fmt.Fprintf(w, "%s%s\n", label, data)
}
