package store

import (
	"time"

	"github.com/roach88/intelstore/internal/ir"
)

// Run statuses written by the pipeline. Callers may define others.
const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// RunRecord is one execution of the upstream pipeline.
type RunRecord struct {
	RunID            string     `json:"run_id"`
	RunType          string     `json:"run_type"`
	StartedAt        time.Time  `json:"started_at"`
	FinishedAt       *time.Time `json:"finished_at,omitempty"` // nil until FinishRun
	Status           string     `json:"status"`
	SettingsSnapshot ir.Object  `json:"settings_snapshot"`
	Notes            *string    `json:"notes,omitempty"`
}

// Finished reports whether FinishRun has been called for the run.
func (r RunRecord) Finished() bool {
	return r.FinishedAt != nil
}

// IntelItem is one analyzed content unit.
//
// The five payload fields are opaque to the store. A nil payload is written
// as its default: [] for claims, evidence, risk flags and explainability,
// {} for scores.
type IntelItem struct {
	ItemID         string    `json:"item_id"`
	RunID          string    `json:"run_id"`
	ItemType       string    `json:"item_type"`
	Title          string    `json:"title"`
	Summary        string    `json:"summary"`
	Claims         ir.Value  `json:"claims"`
	Evidence       ir.Value  `json:"evidence"`
	Scores         ir.Value  `json:"scores"`
	RiskFlags      ir.Value  `json:"risk_flags"`
	Explainability ir.Value  `json:"explainability"`
	Decision       *string   `json:"decision,omitempty"`
	DecisionReason *string   `json:"decision_reason,omitempty"`
	CreatedAt      time.Time `json:"created_at"` // assigned by the store on every write
}

// TelemetryRecord is the single telemetry payload of a run.
type TelemetryRecord struct {
	RunID     string    `json:"run_id"`
	Payload   ir.Object `json:"payload"`
	CreatedAt time.Time `json:"created_at"`
}

// Ptr returns a pointer to s, for the optional string fields.
func Ptr(s string) *string {
	return &s
}
