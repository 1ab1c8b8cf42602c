package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/intelstore/internal/config"
	"github.com/roach88/intelstore/internal/ingest"
	"github.com/roach88/intelstore/internal/store"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Success(map[string]string{"run_id": "run-001"})
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.NotNil(t, resp.Data)
	assert.Nil(t, resp.Error)
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Error(ErrCodeNotFound, "run not found", nil)
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeNotFound, resp.Error.Code)
	assert.Equal(t, "run not found", resp.Error.Message)
}

func TestOutputFormatter_TextError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format:  "text",
		Writer:  buf,
		Verbose: false,
	}

	err := formatter.Error(ErrCodeBusy, "database is locked", []string{"worker cli"})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Error [E103]: database is locked")
	assert.NotContains(t, buf.String(), "Details:", "details only in verbose mode")
}

func TestOutputFormatter_TextErrorVerbose(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format:  "text",
		Writer:  buf,
		Verbose: true,
	}

	err := formatter.Error(ErrCodeConfig, "invalid configuration", []string{"thresholds.optional_score"})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Error [E002]")
	assert.Contains(t, buf.String(), "Details:")
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	tests := []struct {
		name    string
		verbose bool
		wantLog bool
	}{
		{"verbose_enabled", true, true},
		{"verbose_disabled", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
			formatter := &OutputFormatter{
				Format:    "json",
				Writer:    out,
				ErrWriter: errOut,
				Verbose:   tt.verbose,
			}

			formatter.VerboseLog("importing %s", "items.yaml")

			assert.Empty(t, out.String(), "verbose logs never corrupt JSON output")
			if tt.wantLog {
				assert.Contains(t, errOut.String(), "importing items.yaml")
			} else {
				assert.Empty(t, errOut.String())
			}
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
		wantExit int
	}{
		{"config", &config.ValidationError{Problems: []string{"x"}}, ErrCodeConfig, ExitCommandError},
		{"document", fmt.Errorf("items document: %w", ingest.ErrInvalidDocument), ErrCodeInput, ExitCommandError},
		{"not found", fmt.Errorf("finish: %w", store.ErrNotFound), ErrCodeNotFound, ExitFailure},
		{"duplicate", store.ErrDuplicateKey, ErrCodeDuplicate, ExitFailure},
		{"busy", store.ErrBusy, ErrCodeBusy, ExitFailure},
		{"corrupt", store.ErrCorrupt, ErrCodeCorrupt, ExitFailure},
		{"io", store.ErrIO, ErrCodeIO, ExitFailure},
		{"invalid", store.ErrInvalid, ErrCodeInvalid, ExitCommandError},
		{"other", errors.New("boom"), ErrCodeGeneric, ExitFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, exit := Classify(tt.err)
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.wantExit, exit)
		})
	}
}

func TestOutputFormatter_Fail(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	cause := fmt.Errorf("run-001: %w", store.ErrNotFound)
	err := formatter.Fail("show run", cause)

	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.ErrorIs(t, err, store.ErrNotFound)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeNotFound, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "show run: run-001")
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "bad flag")))
	assert.Equal(t, ExitFailure, GetExitCode(WrapExitError(ExitFailure, "op", errors.New("x"))))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
	assert.Equal(t, ExitCommandError, GetExitCode(fmt.Errorf("wrapped: %w", NewExitError(ExitCommandError, "x"))))
}

func TestExitError_Message(t *testing.T) {
	assert.Equal(t, "load config", NewExitError(ExitCommandError, "load config").Error())
	assert.Equal(t, "load config: boom", WrapExitError(ExitCommandError, "load config", errors.New("boom")).Error())
}
