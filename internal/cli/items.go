package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/intelstore/internal/ingest"
	"github.com/roach88/intelstore/internal/store"
)

// ImportResult summarizes an items import.
type ImportResult struct {
	Items   int `json:"items"`
	Chunks  int `json:"chunks"`
	Written int `json:"written"`
}

// NewItemsCommand creates the items command group.
func NewItemsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "items",
		Short: "Import and list intel items",
	}

	cmd.AddCommand(newItemsImportCommand(rootOpts))
	cmd.AddCommand(newItemsListCommand(rootOpts))

	return cmd
}

func newItemsImportCommand(opts *RootOptions) *cobra.Command {
	var runID string
	var workers int

	cmd := &cobra.Command{
		Use:   "import <file|->",
		Short: "Upsert intel items from a YAML or JSON document",
		Long: `Upsert every item of a YAML or JSON items document.

Items without a run_id take the document's run_id, then --run. The document
is split into --workers contiguous chunks, each written by its own session
in one transaction: a chunk is stored completely or not at all.

Atomicity is per chunk, not per document. With --workers above 1, a failed
import can leave other chunks committed. Upserts are keyed by item_id, so
fixing the document and importing it again converges on the full set.
Use --workers 1 when the document must be stored all or nothing.

Example:
  intelstore items import items.yaml --run run-001
  cat items.json | intelstore items import - --workers 4`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runItemsImport(opts, cmd, args[0], runID, workers)
		},
	}

	cmd.Flags().StringVar(&runID, "run", "", "run id for items that name none")
	cmd.Flags().IntVarP(&workers, "workers", "w", 1, "number of parallel writer sessions")

	return cmd
}

func runItemsImport(opts *RootOptions, cmd *cobra.Command, path, runID string, workers int) error {
	out := newFormatter(opts, cmd)
	if workers < 1 {
		_ = out.Error(ErrCodeInvalid, fmt.Sprintf("--workers must be at least 1, got %d", workers), nil)
		return NewExitError(ExitCommandError, "invalid --workers")
	}

	doc, err := readItems(cmd, path)
	if err != nil {
		return out.Fail("read items", err)
	}
	doc.AssignRun(runID)
	for _, item := range doc.Items {
		if item.RunID == "" {
			_ = out.Error(ErrCodeInput, fmt.Sprintf("item %q has no run_id; pass --run", item.ItemID), nil)
			return NewExitError(ExitCommandError, "item without run_id")
		}
	}

	e, err := setup(opts, cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	// The first session creates the file and schema before writers fan out.
	if _, err := e.session(cmd); err != nil {
		return err
	}

	chunks := doc.Split(workers)
	written, err := importChunks(cmd.Context(), e, chunks)
	if err != nil {
		e.logger.Warn("import incomplete", "written", written, "items", len(doc.Items))
		return e.out.Fail("import items", err)
	}
	e.logger.Info("items imported", "items", written, "chunks", len(chunks))

	result := ImportResult{Items: len(doc.Items), Chunks: len(chunks), Written: written}
	if e.out.Format == "json" {
		return e.out.Success(result)
	}
	fmt.Fprintf(e.out.Writer, "Imported %d item(s) in %d chunk(s)\n", result.Written, result.Chunks)
	return nil
}

// importChunks writes each chunk on its own session and returns how many
// items were committed. A failed chunk leaves none of its items behind;
// chunks that already committed stay committed.
func importChunks(ctx context.Context, e *env, chunks [][]store.IntelItem) (int, error) {
	var written atomic.Int64

	g, ctx := errgroup.WithContext(ctx)
	for i, chunk := range chunks {
		g.Go(func() error {
			worker := fmt.Sprintf("import-%d", i)
			sess, err := e.store.Acquire(ctx, worker)
			if err != nil {
				return err
			}
			defer func() {
				if err := e.store.Release(worker); err != nil {
					e.logger.Error("release session", "worker", worker, "error", err)
				}
			}()

			if err := sess.UpsertIntelItems(ctx, chunk); err != nil {
				return fmt.Errorf("chunk %d: %w", i, err)
			}
			written.Add(int64(len(chunk)))
			e.logger.Debug("chunk committed", "worker", worker, "items", len(chunk))
			return nil
		})
	}
	err := g.Wait()
	return int(written.Load()), err
}

func readItems(cmd *cobra.Command, path string) (ingest.Document, error) {
	if path == "-" {
		return ingest.ReadItems(cmd.InOrStdin())
	}
	f, err := os.Open(path)
	if err != nil {
		return ingest.Document{}, fmt.Errorf("%w: %w", ingest.ErrInvalidDocument, err)
	}
	defer f.Close()
	return ingest.ReadItems(f)
}

func newItemsListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list <run-id>",
		Short: "List a run's items in creation order",
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
			items, err := sess.ListItemsForRun(cmd.Context(), args[0])
			if err != nil {
				return e.out.Fail("list items", err)
			}

			if e.out.Format == "json" {
				return e.out.Success(items)
			}
			if len(items) == 0 {
				fmt.Fprintf(e.out.Writer, "No items for run %s.\n", args[0])
				return nil
			}
			return writeItemTable(e.out.Writer, items, e.out.Verbose)
		},
	}
}

func writeItemTable(w io.Writer, items []store.IntelItem, verbose bool) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ITEM ID\tTYPE\tDECISION\tCREATED\tTITLE")
	for _, it := range items {
		decision := "-"
		if it.Decision != nil {
			decision = *it.Decision
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			it.ItemID, it.ItemType, decision, formatTimestamp(it.CreatedAt), it.Title)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if verbose {
		for _, it := range items {
			fmt.Fprintf(w, "\n%s\n", it.ItemID)
			writeCanonical(w, "  scores:         ", it.Scores)
			writeCanonical(w, "  risk_flags:     ", it.RiskFlags)
			writeCanonical(w, "  explainability: ", it.Explainability)
		}
	}
	return nil
}
