package harness

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/intelstore/internal/ir"
)

// Snapshot is the golden form of a result: the step trace and the final
// state. It carries no timestamps.
func Snapshot(name string, result *Result) ir.Object {
	trace := make(ir.Array, len(result.Trace))
	for i, event := range result.Trace {
		trace[i] = ir.NewObject(
			ir.O("seq", ir.Int(event.Seq)),
			ir.O("op", ir.String(event.Op)),
			ir.O("outcome", ir.String(event.Outcome)),
		)
	}
	return ir.NewObject(
		ir.O("scenario_name", ir.String(name)),
		ir.O("trace", trace),
		ir.O("state", result.State),
	)
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		return nil, err
	}
	return result, AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares an already computed result against its golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := ir.MarshalCanonical(Snapshot(scenarioName, result))
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}
