package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/intelstore/internal/config"
	"github.com/roach88/intelstore/internal/ingest"
	"github.com/roach88/intelstore/internal/store"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Store operation failed (not found, duplicate, busy, corrupt data)
	ExitCommandError = 2 // Command error (bad flags, unreadable config or input document)
)

// Error codes reported in CLIError.Code.
const (
	ErrCodeGeneric   = "E001" // Generic/unknown error
	ErrCodeConfig    = "E002" // Config file unreadable or invalid
	ErrCodeInput     = "E003" // Input document unreadable or invalid
	ErrCodeNotFound  = "E101" // Run or telemetry not found
	ErrCodeDuplicate = "E102" // Run id already exists
	ErrCodeBusy      = "E103" // Database locked past the busy timeout
	ErrCodeCorrupt   = "E104" // Stored data failed to decode
	ErrCodeIO        = "E105" // Database could not be opened or written
	ErrCodeInvalid   = "E106" // Missing identity field or misuse
)

// ExitError represents an error with a specific exit code.
// Use this to return errors with meaningful exit codes from CLI commands.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// Classify maps an error onto a CLI error code and exit code.
func Classify(err error) (code string, exit int) {
	var cfgErr *config.ValidationError
	switch {
	case errors.As(err, &cfgErr):
		return ErrCodeConfig, ExitCommandError
	case errors.Is(err, ingest.ErrInvalidDocument):
		return ErrCodeInput, ExitCommandError
	case errors.Is(err, store.ErrNotFound):
		return ErrCodeNotFound, ExitFailure
	case errors.Is(err, store.ErrDuplicateKey):
		return ErrCodeDuplicate, ExitFailure
	case errors.Is(err, store.ErrBusy):
		return ErrCodeBusy, ExitFailure
	case errors.Is(err, store.ErrCorrupt):
		return ErrCodeCorrupt, ExitFailure
	case errors.Is(err, store.ErrIO):
		return ErrCodeIO, ExitFailure
	case errors.Is(err, store.ErrInvalid):
		return ErrCodeInvalid, ExitCommandError
	default:
		return ErrCodeGeneric, ExitFailure
	}
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Separate writer for verbose/diagnostic output (defaults to Writer)
	Verbose   bool
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status"`          // "ok" or "error"
	Data   any       `json:"data,omitempty"`  // success payload
	Error  *CLIError `json:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`              // "E001", "E101", etc.
	Message string `json:"message"`           // human-readable message
	Details any    `json:"details,omitempty"` // additional context
}

// Success outputs a successful result in the configured format.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}

	// Human-readable text output
	fmt.Fprintln(f.Writer, data)
	return nil
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	// Human-readable error
	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// Fail reports err in the configured format and returns the ExitError the
// command should return.
func (f *OutputFormatter) Fail(message string, err error) error {
	code, exit := Classify(err)

	var details any
	var cfgErr *config.ValidationError
	if errors.As(err, &cfgErr) {
		details = cfgErr.Problems
	}

	_ = f.Error(code, fmt.Sprintf("%s: %v", message, err), details)
	return WrapExitError(exit, message, err)
}

// VerboseLog outputs a message only if verbose mode is enabled.
// Uses ErrWriter if set, otherwise falls back to Writer.
// When format is JSON, verbose logs go to ErrWriter to avoid corrupting JSON output.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	w := f.ErrWriter
	if w == nil {
		w = f.Writer
	}
	fmt.Fprintf(w, format+"\n", args...)
}

// GetErrWriter returns the appropriate writer for diagnostic output.
// Returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}
