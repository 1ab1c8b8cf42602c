package pipeline

import (
	"context"

	"github.com/roach88/intelstore/internal/ir"
)

// Decisions an assessor normally returns. Others are stored as given.
const (
	DecisionPromote = "promote"
	DecisionMonitor = "monitor"
	DecisionBlock   = "block"
)

// Candidate is one content unit awaiting assessment.
type Candidate struct {
	ItemID   string // generated when empty
	ItemType string
	Title    string
	Summary  string
	Claims   ir.Value
	Evidence ir.Value
}

// Assessment is the assessor's verdict on a candidate.
type Assessment struct {
	Scores         ir.Value
	RiskFlags      ir.Value
	Explainability ir.Value
	Decision       string
	DecisionReason string
}

// Assessor scores and gates a candidate.
// Implementations must be safe for concurrent use.
type Assessor interface {
	Assess(ctx context.Context, c Candidate) (Assessment, error)
}

// AssessorFunc adapts a function to Assessor.
type AssessorFunc func(ctx context.Context, c Candidate) (Assessment, error)

// Assess calls f.
func (f AssessorFunc) Assess(ctx context.Context, c Candidate) (Assessment, error) {
	return f(ctx, c)
}
