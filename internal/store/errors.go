package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
)

// ErrorCode categorizes store failures.
type ErrorCode string

const (
	// CodeNotFound: a referenced run_id does not exist.
	CodeNotFound ErrorCode = "NOT_FOUND"

	// CodeDuplicateKey: StartRun on an existing run_id.
	CodeDuplicateKey ErrorCode = "DUPLICATE_KEY"

	// CodeBusy: the lock wait exceeded the busy timeout. Retryable.
	CodeBusy ErrorCode = "BUSY"

	// CodeCorrupt: a stored payload failed to decode.
	CodeCorrupt ErrorCode = "CORRUPT"

	// CodeIOFailure: filesystem or database engine error.
	CodeIOFailure ErrorCode = "IO_FAILURE"

	// CodeInvalid: a record is missing an identity field or has an
	// unencodable payload.
	CodeInvalid ErrorCode = "INVALID"

	// CodeAborted: commit of a transaction that a nested scope rolled back.
	CodeAborted ErrorCode = "ABORTED"

	// CodeClosed: the store was closed.
	CodeClosed ErrorCode = "CLOSED"
)

// Sentinels for errors.Is. A *Error matches the sentinel with the same code.
var (
	ErrNotFound     = &Error{Code: CodeNotFound}
	ErrDuplicateKey = &Error{Code: CodeDuplicateKey}
	ErrBusy         = &Error{Code: CodeBusy}
	ErrCorrupt      = &Error{Code: CodeCorrupt}
	ErrIO           = &Error{Code: CodeIOFailure}
	ErrInvalid      = &Error{Code: CodeInvalid}
	ErrAborted      = &Error{Code: CodeAborted}
	ErrClosed       = &Error{Code: CodeClosed}
)

// Error is returned by every store operation.
// Op and Key carry enough context to retry or log the failure.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Op is the store operation, e.g. "upsert intel item".
	Op string

	// Key is the run_id or item_id the operation was about.
	Key string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := string(e.Code)
	if e.Op != "" {
		prefix := e.Op
		if e.Key != "" {
			prefix = fmt.Sprintf("%s %q", e.Op, e.Key)
		}
		msg = prefix + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches sentinel errors by code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code && t.Op == "" && t.Key == ""
}

// Retryable reports whether the operation may succeed if retried.
func (e *Error) Retryable() bool {
	return e.Code == CodeBusy
}

func newError(code ErrorCode, op, key string, err error) *Error {
	return &Error{Code: code, Op: op, Key: key, Err: err}
}

// classify maps a driver error onto the store taxonomy.
// An existing *Error passes through unchanged.
func classify(op, key string, err error) error {
	if err == nil {
		return nil
	}

	var storeErr *Error
	if errors.As(err, &storeErr) {
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return newError(CodeBusy, op, key, err)
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.ExtendedCode {
		case sqlite3.ErrConstraintForeignKey:
			return newError(CodeNotFound, op, key, err)
		case sqlite3.ErrConstraintPrimaryKey, sqlite3.ErrConstraintUnique:
			return newError(CodeDuplicateKey, op, key, err)
		}
		if sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked {
			return newError(CodeBusy, op, key, err)
		}
	}

	return newError(CodeIOFailure, op, key, err)
}

// IsRetryable reports whether err is a store error worth retrying.
func IsRetryable(err error) bool {
	var storeErr *Error
	return errors.As(err, &storeErr) && storeErr.Retryable()
}
