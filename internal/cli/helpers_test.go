package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/intelstore/internal/config"
	"github.com/roach88/intelstore/internal/pipeline"
	"github.com/roach88/intelstore/internal/testutil"
)

// cliHarness runs root commands against a fresh database.
type cliHarness struct {
	t    *testing.T
	db   string
	opts *RootOptions
}

func newCLIHarness(t *testing.T) *cliHarness {
	t.Helper()
	for _, key := range []string{config.EnvDBPath, config.EnvArtifactsDir, config.EnvLogLevel, config.EnvBusyTimeoutMS} {
		t.Setenv(key, "")
	}
	return &cliHarness{
		t:  t,
		db: filepath.Join(t.TempDir(), "state.sqlite"),
		opts: &RootOptions{
			Clock: testutil.NewDeterministicClock(),
			IDs:   pipeline.NewFixedGenerator("run-gen-1", "run-gen-2", "run-gen-3"),
		},
	}
}

// run executes the root command with --db prepended.
func (h *cliHarness) run(stdin string, args ...string) (stdout, stderr string, err error) {
	h.t.Helper()
	return h.runRaw(stdin, append([]string{"--db", h.db}, args...)...)
}

// runRaw executes the root command with args exactly as given.
func (h *cliHarness) runRaw(stdin string, args ...string) (stdout, stderr string, err error) {
	h.t.Helper()
	cmd := newRootCommand(h.opts)
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err = cmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

// mustRun fails the test if the command fails.
func (h *cliHarness) mustRun(args ...string) string {
	h.t.Helper()
	out, errOut, err := h.run("", args...)
	require.NoError(h.t, err, "stdout: %s\nstderr: %s", out, errOut)
	return out
}

func (h *cliHarness) writeFile(name, body string) string {
	h.t.Helper()
	path := filepath.Join(h.t.TempDir(), name)
	require.NoError(h.t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

// rawResponse is CLIResponse with the payload left undecoded.
type rawResponse struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  *CLIError       `json:"error"`
}

func decodeResponse(t *testing.T, out string, data any) rawResponse {
	t.Helper()
	var resp rawResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp), "output: %s", out)
	if data != nil {
		require.NoError(t, json.Unmarshal(resp.Data, data))
	}
	return resp
}
