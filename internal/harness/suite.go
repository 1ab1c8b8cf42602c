package harness

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
)

// NoScenariosError is returned when a suite directory holds no scenario files.
type NoScenariosError struct {
	Dir string
}

// Error implements the error interface.
func (e *NoScenariosError) Error() string {
	return fmt.Sprintf("no scenario files (*.yaml) in %s", e.Dir)
}

// SuiteResult summarizes a directory of scenarios.
type SuiteResult struct {
	TotalScenarios int               `json:"total_scenarios"`
	Passed         int               `json:"passed"`
	Failed         int               `json:"failed"`
	Failures       []ScenarioFailure `json:"failures,omitempty"`
}

// ScenarioFailure represents a scenario that failed to load, run or pass.
type ScenarioFailure struct {
	ScenarioPath string   `json:"scenario_path"`
	Errors       []string `json:"errors"`
}

// ScenarioPaths lists the scenario files in dir, sorted by name.
func ScenarioPaths(dir string) ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, &NoScenariosError{Dir: dir}
	}
	slices.Sort(paths)
	return paths, nil
}

// RunSuite loads and runs every scenario in dir.
//
// A scenario that cannot be loaded or executed counts as failed; the
// remaining scenarios still run.
func RunSuite(ctx context.Context, dir string) (*SuiteResult, error) {
	paths, err := ScenarioPaths(dir)
	if err != nil {
		return nil, err
	}

	result := &SuiteResult{}
	for _, path := range paths {
		result.TotalScenarios++

		errs := runOne(ctx, path)
		if len(errs) == 0 {
			result.Passed++
			continue
		}
		result.Failed++
		result.Failures = append(result.Failures, ScenarioFailure{
			ScenarioPath: path,
			Errors:       errs,
		})
	}
	return result, nil
}

func runOne(ctx context.Context, path string) []string {
	scenario, err := LoadScenario(path)
	if err != nil {
		return []string{err.Error()}
	}
	res, err := Run(ctx, scenario)
	if err != nil {
		return []string{err.Error()}
	}
	return res.Errors
}
