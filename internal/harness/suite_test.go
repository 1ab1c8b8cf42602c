package harness

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunSuite_Fixtures(t *testing.T) {
	result, err := RunSuite(context.Background(), "testdata/scenarios")
	require.NoError(t, err)

	assert.Equal(t, 4, result.TotalScenarios)
	assert.Equal(t, 4, result.Passed)
	assert.Zero(t, result.Failed)
	assert.Empty(t, result.Failures)
}

func TestRunSuite_CollectsFailures(t *testing.T) {
	dir := t.TempDir()
	good := `
name: good
description: d
flow:
  - op: start_run
    args: {run_id: r1, run_type: daily}
assertions:
  - {type: item_count, run_id: r1, count: 0}
`
	bad := `
name: bad
description: d
flow:
  - op: start_run
    args: {run_id: r1, run_type: daily}
assertions:
  - {type: item_count, run_id: r1, count: 5}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a_good.yaml"), []byte(good), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b_bad.yaml"), []byte(bad), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "c_broken.yaml"), []byte("name: ["), 0644))

	result, err := RunSuite(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, 3, result.TotalScenarios)
	assert.Equal(t, 1, result.Passed)
	assert.Equal(t, 2, result.Failed)
	require.Len(t, result.Failures, 2)
	assert.Equal(t, filepath.Join(dir, "b_bad.yaml"), result.Failures[0].ScenarioPath)
	assert.Contains(t, result.Failures[0].Errors[0], "Expected: 5 items")
	assert.Contains(t, result.Failures[1].Errors[0], "failed to parse YAML")
}

func TestRunSuite_EmptyDir(t *testing.T) {
	_, err := RunSuite(context.Background(), t.TempDir())

	var noScenarios *NoScenariosError
	require.ErrorAs(t, err, &noScenarios)
}
