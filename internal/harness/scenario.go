package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario defines a store conformance scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Flow contains the store operations to perform, in order.
	Flow []Step `yaml:"flow"`

	// Assertions validate the final state.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one store operation.
type Step struct {
	// Op is the operation name (see Op* constants).
	Op string `yaml:"op"`

	// Args are the operation arguments.
	Args map[string]any `yaml:"args,omitempty"`

	// Expect specifies the expected outcome.
	// If nil, the step must succeed.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect specifies the expected outcome of a step.
type Expect struct {
	// Error is the store error code the step must fail with.
	Error string `yaml:"error"`
}

// Assertion validates final state.
type Assertion struct {
	// Type specifies the assertion type (see Assert* constants).
	Type string `yaml:"type"`

	// RunID selects the run (run, item, item_count, item_order, telemetry).
	RunID string `yaml:"run_id,omitempty"`

	// ItemID selects the item (item).
	ItemID string `yaml:"item_id,omitempty"`

	// Expect contains expected field values. Subset match.
	Expect map[string]any `yaml:"expect,omitempty"`

	// Count is the expected number of items (item_count).
	Count int `yaml:"count,omitempty"`

	// Items is the expected item order (item_order).
	Items []string `yaml:"items,omitempty"`
}

// Operation names.
const (
	OpStartRun       = "start_run"
	OpFinishRun      = "finish_run"
	OpUpsertItem     = "upsert_item"
	OpUpsertItems    = "upsert_items"
	OpWriteTelemetry = "write_telemetry"
	OpBegin          = "begin"
	OpCommit         = "commit"
	OpRollback       = "rollback"
)

// Assertion type constants.
const (
	AssertRun       = "run"
	AssertItem      = "item"
	AssertItemCount = "item_count"
	AssertItemOrder = "item_order"
	AssertTelemetry = "telemetry"
)

var knownOps = map[string]bool{
	OpStartRun: true, OpFinishRun: true, OpUpsertItem: true, OpUpsertItems: true,
	OpWriteTelemetry: true, OpBegin: true, OpCommit: true, OpRollback: true,
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Parse YAML with strict field validation (catches typos like "assertion:" vs "assertions:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Flow {
		if step.Op == "" {
			return fmt.Errorf("flow[%d]: op is required", i)
		}
		if !knownOps[step.Op] {
			return fmt.Errorf("flow[%d]: unknown op %q", i, step.Op)
		}
		if step.Expect != nil && step.Expect.Error == "" {
			return fmt.Errorf("flow[%d].expect: error is required", i)
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}
	if a.RunID == "" {
		return fmt.Errorf("assertions[%d]: run_id is required for %s", index, a.Type)
	}

	switch a.Type {
	case AssertRun, AssertTelemetry:
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for %s", index, a.Type)
		}
	case AssertItem:
		if a.ItemID == "" {
			return fmt.Errorf("assertions[%d]: item_id is required for item", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for item", index)
		}
	case AssertItemCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for item_count", index)
		}
	case AssertItemOrder:
		if a.Items == nil {
			return fmt.Errorf("assertions[%d]: items list is required for item_order", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
