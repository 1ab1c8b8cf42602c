package harness

import "github.com/roach88/intelstore/internal/ir"

// Outcome of a step that succeeded.
const OutcomeOK = "OK"

// TraceEvent records one executed step.
type TraceEvent struct {
	Seq     int    `json:"seq"`
	Op      string `json:"op"`
	Outcome string `json:"outcome"` // OutcomeOK or a store error code
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if every step matched its expectation and every assertion held.
	Pass bool `json:"pass"`

	// Trace contains the executed steps in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// State is the final store content without timestamps:
	// "runs", "items" and "telemetry".
	State ir.Object `json:"state,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		State:  ir.Object{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends a step outcome to the trace.
func (r *Result) AddTrace(op, outcome string) {
	r.Trace = append(r.Trace, TraceEvent{
		Seq:     len(r.Trace) + 1,
		Op:      op,
		Outcome: outcome,
	})
}
