package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/intelstore/internal/ir"
	"github.com/roach88/intelstore/internal/store"
	"github.com/roach88/intelstore/internal/telemetry"
)

// DefaultConcurrency bounds parallel Assess calls.
const DefaultConcurrency = 4

// Result summarizes a finished run.
type Result struct {
	RunID     string
	Status    string
	Items     int
	Decisions map[string]int
}

// Runner executes pipeline runs against a store.
// A Runner is safe for concurrent use; each Execute uses its own session.
type Runner struct {
	store       *store.Store
	assessor    Assessor
	settings    ir.Object
	ids         IDGenerator
	concurrency int
	worker      string
	logger      *slog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithSettings sets the snapshot stored with every run.
func WithSettings(settings ir.Object) Option {
	return func(r *Runner) { r.settings = settings }
}

// WithIDGenerator overrides UUIDv7 run and item ids.
func WithIDGenerator(ids IDGenerator) Option {
	return func(r *Runner) { r.ids = ids }
}

// WithConcurrency sets how many candidates are assessed at once.
func WithConcurrency(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithWorker sets the prefix of the store worker name used per run.
func WithWorker(name string) Option {
	return func(r *Runner) { r.worker = name }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) { r.logger = logger }
}

// NewRunner creates a runner writing to st and assessing with assessor.
func NewRunner(st *store.Store, assessor Assessor, opts ...Option) *Runner {
	r := &Runner{
		store:       st,
		assessor:    assessor,
		settings:    ir.Object{},
		ids:         UUIDv7Generator{},
		concurrency: DefaultConcurrency,
		worker:      "runner",
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Execute performs one run over candidates.
//
// The run is started with status "running". Every candidate is assessed;
// if all assessments succeed the items are upserted in one batch. The run
// always receives telemetry and is finished "succeeded" or, on any failure
// after it started, "failed" with the error as notes. The returned error is
// the failure that failed the run.
func (r *Runner) Execute(ctx context.Context, runType string, candidates []Candidate) (Result, error) {
	started := time.Now()
	runID := r.ids.Generate()
	worker := r.worker + "/" + runID

	sess, err := r.store.Acquire(ctx, worker)
	if err != nil {
		return Result{}, fmt.Errorf("acquire session: %w", err)
	}
	defer func() {
		if err := r.store.Release(worker); err != nil {
			r.logger.Warn("release session failed", "worker", worker, "error", err)
		}
	}()

	if _, err := sess.StartRun(ctx, runID, runType, r.settings); err != nil {
		return Result{}, fmt.Errorf("start run: %w", err)
	}
	r.logger.Info("run started", "run_id", runID, "run_type", runType, "candidates", len(candidates))

	rec := telemetry.New()
	rec.Record("candidates_total", ir.Int(len(candidates)))

	result := Result{RunID: runID, Decisions: make(map[string]int)}

	items, runErr := r.assess(ctx, runID, candidates)
	if runErr == nil {
		runErr = sess.UpsertIntelItems(ctx, items)
	}
	if runErr == nil {
		result.Items = len(items)
		for _, item := range items {
			if item.Decision != nil {
				result.Decisions[*item.Decision]++
			}
		}
	}

	rec.Record("items_total", ir.Int(result.Items))
	for decision, n := range result.Decisions {
		rec.Record("decision."+decision, ir.Int(n))
	}
	rec.Record("duration_ms", ir.Float(float64(time.Since(started).Microseconds())/1000))

	// Bookkeeping must land even if ctx was cancelled mid-run.
	finishCtx := context.WithoutCancel(ctx)

	if err := sess.WriteTelemetry(finishCtx, runID, rec.Snapshot()); err != nil {
		r.logger.Error("write telemetry failed", "run_id", runID, "error", err)
		runErr = errors.Join(runErr, fmt.Errorf("write telemetry: %w", err))
	}

	result.Status = store.StatusSucceeded
	var notes *string
	if runErr != nil {
		result.Status = store.StatusFailed
		notes = store.Ptr(runErr.Error())
	}
	if err := sess.FinishRun(finishCtx, runID, result.Status, notes); err != nil {
		return result, errors.Join(runErr, fmt.Errorf("finish run: %w", err))
	}

	if runErr != nil {
		r.logger.Warn("run failed", "run_id", runID, "error", runErr)
		return result, runErr
	}
	r.logger.Info("run finished", "run_id", runID, "items", result.Items, "status", result.Status)
	return result, nil
}

// assess fans candidates out to the assessor and returns the items in
// candidate order. The first assessor error cancels the rest.
func (r *Runner) assess(ctx context.Context, runID string, candidates []Candidate) ([]store.IntelItem, error) {
	// Ids are drawn up front so that generation order matches candidate order.
	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.ItemID
		if ids[i] == "" {
			ids[i] = r.ids.Generate()
		}
	}

	items := make([]store.IntelItem, len(candidates))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for i, c := range candidates {
		g.Go(func() error {
			c.ItemID = ids[i]
			a, err := r.assessor.Assess(gCtx, c)
			if err != nil {
				return fmt.Errorf("assess %s: %w", c.ItemID, err)
			}
			items[i] = toItem(runID, c, a)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return items, nil
}

func toItem(runID string, c Candidate, a Assessment) store.IntelItem {
	item := store.IntelItem{
		ItemID:         c.ItemID,
		RunID:          runID,
		ItemType:       c.ItemType,
		Title:          c.Title,
		Summary:        c.Summary,
		Claims:         c.Claims,
		Evidence:       c.Evidence,
		Scores:         a.Scores,
		RiskFlags:      a.RiskFlags,
		Explainability: a.Explainability,
	}
	if a.Decision != "" {
		item.Decision = store.Ptr(a.Decision)
	}
	if a.DecisionReason != "" {
		item.DecisionReason = store.Ptr(a.DecisionReason)
	}
	return item
}
