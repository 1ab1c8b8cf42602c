package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/intelstore/internal/config"
)

type runJSON struct {
	RunID            string         `json:"run_id"`
	RunType          string         `json:"run_type"`
	Status           string         `json:"status"`
	StartedAt        string         `json:"started_at"`
	FinishedAt       *string        `json:"finished_at"`
	Notes            *string        `json:"notes"`
	SettingsSnapshot map[string]any `json:"settings_snapshot"`
}

func TestRunStart_Text(t *testing.T) {
	h := newCLIHarness(t)

	out := h.mustRun("run", "start", "run-001", "--type", "daily")

	assert.Contains(t, out, "Run run-001")
	assert.Contains(t, out, "Type:     daily")
	assert.Contains(t, out, "Status:   Running")
	assert.Contains(t, out, "Started:  2026-01-01T00:00:00Z")
	assert.Contains(t, out, "Finished: -")
	assert.NotContains(t, out, "Settings:", "settings only in verbose mode")
}

func TestRunStart_GeneratedIDAndSnapshot(t *testing.T) {
	h := newCLIHarness(t)

	out := h.mustRun("--format", "json", "run", "start")

	var rec runJSON
	resp := decodeResponse(t, out, &rec)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "run-gen-1", rec.RunID)
	assert.Equal(t, "manual", rec.RunType)
	assert.Equal(t, "running", rec.Status)
	assert.Nil(t, rec.FinishedAt)

	require.Contains(t, rec.SettingsSnapshot, "db_path")
	assert.Equal(t, h.db, rec.SettingsSnapshot["db_path"])
	assert.Contains(t, rec.SettingsSnapshot, "thresholds")
}

func TestRunStart_Verbose(t *testing.T) {
	h := newCLIHarness(t)

	out, stderr, err := h.run("", "--verbose", "run", "start", "run-001")
	require.NoError(t, err)

	assert.Contains(t, out, `Settings: {"artifacts_dir":`)
	assert.Contains(t, stderr, "session opened", "debug logs go to stderr")
}

func TestRunStart_Duplicate(t *testing.T) {
	h := newCLIHarness(t)
	h.mustRun("run", "start", "run-001")

	out, _, err := h.run("", "--format", "json", "run", "start", "run-001")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	resp := decodeResponse(t, out, nil)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeDuplicate, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "run-001")
}

func TestRunFinish(t *testing.T) {
	h := newCLIHarness(t)
	h.mustRun("run", "start", "run-001")

	out := h.mustRun("run", "finish", "run-001", "--status", "failed", "--notes", "source timeout")

	assert.Contains(t, out, "Status:   Failed")
	assert.Contains(t, out, "Notes:    source timeout")
	assert.NotContains(t, out, "Finished: -")
}

func TestRunFinish_DefaultsToSucceededWithoutNotes(t *testing.T) {
	h := newCLIHarness(t)
	h.mustRun("run", "start", "run-001")

	out := h.mustRun("--format", "json", "run", "finish", "run-001")

	var rec runJSON
	decodeResponse(t, out, &rec)
	assert.Equal(t, "succeeded", rec.Status)
	require.NotNil(t, rec.FinishedAt)
	assert.Nil(t, rec.Notes)
}

func TestRunFinish_EmptyStatus(t *testing.T) {
	h := newCLIHarness(t)
	h.mustRun("run", "start", "run-001")

	out, _, err := h.run("", "run", "finish", "run-001", "--status", "")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error ["+ErrCodeInvalid+"]")
}

func TestRunFinish_Unknown(t *testing.T) {
	h := newCLIHarness(t)

	out, _, err := h.run("", "run", "finish", "missing")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error ["+ErrCodeNotFound+"]")
}

func TestRunShow(t *testing.T) {
	h := newCLIHarness(t)
	h.mustRun("run", "start", "run-001", "--type", "daily")

	out := h.mustRun("--format", "json", "run", "show", "run-001")

	var rec runJSON
	decodeResponse(t, out, &rec)
	assert.Equal(t, "run-001", rec.RunID)
	assert.Equal(t, "daily", rec.RunType)
}

func TestRunShow_Unknown(t *testing.T) {
	h := newCLIHarness(t)

	out, _, err := h.run("", "--format", "json", "run", "show", "missing")
	require.Error(t, err)

	resp := decodeResponse(t, out, nil)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeNotFound, resp.Error.Code)
}

func TestRunList(t *testing.T) {
	h := newCLIHarness(t)
	h.mustRun("run", "start", "run-b")
	h.mustRun("run", "start", "run-a")
	h.mustRun("run", "finish", "run-b")

	out := h.mustRun("--format", "json", "run", "list")
	var runs []runJSON
	decodeResponse(t, out, &runs)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-b", runs[0].RunID, "runs list in start order")
	assert.Equal(t, "run-a", runs[1].RunID)

	text := h.mustRun("run", "list")
	lines := strings.Split(strings.TrimSpace(text), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "RUN ID"))
	assert.Contains(t, lines[1], "Succeeded")
	assert.Contains(t, lines[2], "Running")
}

func TestRunList_Empty(t *testing.T) {
	h := newCLIHarness(t)

	out := h.mustRun("run", "list")
	assert.Contains(t, out, "No runs recorded.")

	jsonOut := h.mustRun("--format", "json", "run", "list")
	var runs []runJSON
	decodeResponse(t, jsonOut, &runs)
	assert.NotNil(t, runs)
	assert.Empty(t, runs)
}

func TestRun_DatabaseFromEnvironment(t *testing.T) {
	h := newCLIHarness(t)
	t.Setenv(config.EnvDBPath, h.db)

	_, _, err := h.runRaw("", "run", "start", "run-env")
	require.NoError(t, err)

	out, _, err := h.runRaw("", "run", "show", "run-env")
	require.NoError(t, err)
	assert.Contains(t, out, "Run run-env")
	assert.FileExists(t, h.db)
}

func TestRun_ConfigFile(t *testing.T) {
	h := newCLIHarness(t)
	dbPath := filepath.Join(t.TempDir(), "from-config.sqlite")
	cfgPath := h.writeFile("config.yaml", "db_path: "+dbPath+"\nlog_level: warning\n")

	_, _, err := h.runRaw("", "--config", cfgPath, "run", "start", "run-cfg")
	require.NoError(t, err)
	assert.FileExists(t, dbPath)
}

func TestRun_InvalidConfig(t *testing.T) {
	h := newCLIHarness(t)
	cfgPath := h.writeFile("config.yaml", "thresholds:\n  must_cover_score: 10\n")

	out, _, err := h.run("", "--format", "json", "--config", cfgPath, "run", "list")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	resp := decodeResponse(t, out, nil)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeConfig, resp.Error.Code)
	assert.NotNil(t, resp.Error.Details, "schema problems are listed")

	_, statErr := os.Stat(h.db)
	assert.True(t, os.IsNotExist(statErr), "no database is created for a bad config")
}

func TestRun_UnusableDatabasePath(t *testing.T) {
	h := newCLIHarness(t)
	blocker := h.writeFile("blocker", "not a directory")

	out, _, err := h.runRaw("", "--db", filepath.Join(blocker, "state.sqlite"), "run", "list")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error ["+ErrCodeIO+"]")
}
