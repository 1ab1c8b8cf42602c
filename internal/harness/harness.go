package harness

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/roach88/intelstore/internal/ingest"
	"github.com/roach88/intelstore/internal/ir"
	"github.com/roach88/intelstore/internal/store"
	"github.com/roach88/intelstore/internal/testutil"
)

const worker = "harness"

// Harness executes scenario steps against one store session.
type Harness struct {
	sess   *store.Session
	logger *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario runs against a fresh database file in a temporary directory
// with a deterministic clock, through a single session.
//
// Execution flow:
//  1. Open a store in a new temporary directory
//  2. Execute flow steps, checking each against its expect clause
//  3. Roll back a transaction the flow left open
//  4. Evaluate assertions and capture the final state
//
// Run returns an error only when the scenario cannot be executed at all
// (bad arguments, unusable temp directory). Failed expectations are
// reported through Result.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	dir, err := os.MkdirTemp("", "intelstore-harness-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create scenario directory: %w", err)
	}
	defer os.RemoveAll(dir)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st, err := store.Open(filepath.Join(dir, "state.db"),
		store.WithClock(testutil.NewDeterministicClock()),
		store.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	sess, err := st.Acquire(ctx, worker)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire session: %w", err)
	}
	defer st.Release(worker)

	h := &Harness{sess: sess, logger: logger}

	result := NewResult()
	if err := h.executeFlow(ctx, scenario.Flow, result); err != nil {
		return nil, fmt.Errorf("failed to execute flow: %w", err)
	}

	if sess.InTransaction() {
		result.AddError("flow left a transaction open")
		for sess.InTransaction() {
			if err := sess.Rollback(); err != nil {
				return nil, fmt.Errorf("failed to roll back open transaction: %w", err)
			}
		}
	}

	actx := &AssertionContext{Session: sess, Ctx: ctx}
	for _, msg := range EvaluateAssertions(scenario.Assertions, actx) {
		result.AddError(msg)
	}

	state, err := captureState(ctx, sess)
	if err != nil {
		return nil, fmt.Errorf("failed to capture state: %w", err)
	}
	result.State = state
	return result, nil
}

// executeFlow runs the flow steps in order. A step's outcome is compared to
// its expect clause; a mismatch is recorded and execution continues.
func (h *Harness) executeFlow(ctx context.Context, flow []Step, result *Result) error {
	for i, step := range flow {
		err := h.execute(ctx, step)

		var argErr *argError
		if errors.As(err, &argErr) {
			return fmt.Errorf("flow[%d] %s: %w", i, step.Op, err)
		}

		outcome := outcomeOf(err)
		result.AddTrace(step.Op, outcome)
		h.logger.Debug("step executed", "index", i, "op", step.Op, "outcome", outcome)

		switch {
		case step.Expect == nil && err != nil:
			result.AddError(fmt.Sprintf("flow[%d] %s: unexpected error: %v", i, step.Op, err))
		case step.Expect != nil && outcome != step.Expect.Error:
			result.AddError(fmt.Sprintf("flow[%d] %s: expected error %s, got %s", i, step.Op, step.Expect.Error, outcome))
		}
	}
	return nil
}

// execute dispatches one step to the session.
func (h *Harness) execute(ctx context.Context, step Step) error {
	switch step.Op {
	case OpStartRun:
		settings, err := objectArg(step.Args, "settings")
		if err != nil {
			return err
		}
		_, err = h.sess.StartRun(ctx, stringArg(step.Args, "run_id"), stringArg(step.Args, "run_type"), settings)
		return err

	case OpFinishRun:
		var notes *string
		if _, ok := step.Args["notes"]; ok {
			notes = store.Ptr(stringArg(step.Args, "notes"))
		}
		return h.sess.FinishRun(ctx, stringArg(step.Args, "run_id"), stringArg(step.Args, "status"), notes)

	case OpUpsertItem:
		item, ok := step.Args["item"]
		if !ok {
			return &argError{msg: "item is required"}
		}
		doc, err := decodeItems(map[string]any{"items": []any{item}})
		if err != nil {
			return err
		}
		return h.sess.UpsertIntelItem(ctx, doc.Items[0])

	case OpUpsertItems:
		doc, err := decodeItems(step.Args)
		if err != nil {
			return err
		}
		return h.sess.UpsertIntelItems(ctx, doc.Items)

	case OpWriteTelemetry:
		payload, err := objectArg(step.Args, "payload")
		if err != nil {
			return err
		}
		return h.sess.WriteTelemetry(ctx, stringArg(step.Args, "run_id"), payload)

	case OpBegin:
		return h.sess.Begin(ctx)
	case OpCommit:
		return h.sess.Commit()
	case OpRollback:
		return h.sess.Rollback()
	}
	return &argError{msg: fmt.Sprintf("unknown op %q", step.Op)}
}

// argError reports a step the harness could not translate into a store call.
type argError struct {
	msg string
	err error
}

func (e *argError) Error() string {
	if e.err != nil {
		return e.msg + ": " + e.err.Error()
	}
	return e.msg
}

func (e *argError) Unwrap() error { return e.err }

// outcomeOf names a step result for the trace.
func outcomeOf(err error) string {
	if err == nil {
		return OutcomeOK
	}
	var se *store.Error
	if errors.As(err, &se) {
		return string(se.Code)
	}
	return "ERROR"
}

// decodeItems runs step arguments through the items document decoder so
// scenario items get the same validation as imported files.
func decodeItems(args map[string]any) (ingest.Document, error) {
	data, err := json.Marshal(args)
	if err != nil {
		return ingest.Document{}, &argError{msg: "encode items", err: err}
	}
	doc, err := ingest.DecodeItems(data)
	if err != nil {
		return ingest.Document{}, &argError{msg: "decode items", err: err}
	}
	return doc, nil
}

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

// objectArg converts an optional object argument. Absent means empty.
func objectArg(args map[string]any, key string) (ir.Object, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return ir.Object{}, nil
	}
	v, err := ir.FromAny(raw)
	if err != nil {
		return nil, &argError{msg: key, err: err}
	}
	obj, ok := v.(ir.Object)
	if !ok {
		return nil, &argError{msg: fmt.Sprintf("%s: expected object, got %s", key, ir.Kind(v))}
	}
	return obj, nil
}

// captureState reads every run, item and telemetry payload, dropping
// timestamps so the state is stable across runs.
func captureState(ctx context.Context, sess *store.Session) (ir.Object, error) {
	runs, err := sess.ListRuns(ctx)
	if err != nil {
		return nil, err
	}

	runList := ir.Array{}
	itemList := ir.Array{}
	telemetry := ir.Object{}
	for _, run := range runs {
		runList = append(runList, runObject(run))

		items, err := sess.ListItemsForRun(ctx, run.RunID)
		if err != nil {
			return nil, err
		}
		for _, item := range items {
			itemList = append(itemList, ir.NewObject(
				ir.O("run_id", ir.String(item.RunID)),
				ir.O("item_id", ir.String(item.ItemID)),
				ir.O("title", ir.String(item.Title)),
				ir.O("decision", optional(item.Decision)),
			))
		}

		rec, err := sess.GetTelemetry(ctx, run.RunID)
		switch {
		case errors.Is(err, store.ErrNotFound):
		case err != nil:
			return nil, err
		default:
			telemetry[run.RunID] = rec.Payload
		}
	}

	return ir.NewObject(
		ir.O("runs", runList),
		ir.O("items", itemList),
		ir.O("telemetry", telemetry),
	), nil
}

func runObject(run store.RunRecord) ir.Object {
	return ir.NewObject(
		ir.O("run_id", ir.String(run.RunID)),
		ir.O("run_type", ir.String(run.RunType)),
		ir.O("status", ir.String(run.Status)),
		ir.O("finished", ir.Bool(run.Finished())),
		ir.O("notes", optional(run.Notes)),
	)
}

func itemObject(item store.IntelItem) ir.Object {
	return ir.NewObject(
		ir.O("item_id", ir.String(item.ItemID)),
		ir.O("run_id", ir.String(item.RunID)),
		ir.O("item_type", ir.String(item.ItemType)),
		ir.O("title", ir.String(item.Title)),
		ir.O("summary", ir.String(item.Summary)),
		ir.O("claims", item.Claims),
		ir.O("evidence", item.Evidence),
		ir.O("scores", item.Scores),
		ir.O("risk_flags", item.RiskFlags),
		ir.O("explainability", item.Explainability),
		ir.O("decision", optional(item.Decision)),
		ir.O("decision_reason", optional(item.DecisionReason)),
	)
}

func optional(s *string) ir.Value {
	if s == nil {
		return ir.Null{}
	}
	return ir.String(*s)
}
