package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/intelstore/internal/config"
	"github.com/roach88/intelstore/internal/ir"
	"github.com/roach88/intelstore/internal/store"
)

// cliWorker names the session used by single-session commands.
const cliWorker = "cli"

// env is the per-invocation state shared by store-backed commands.
type env struct {
	cfg    *config.Config
	store  *store.Store
	logger *slog.Logger
	out    *OutputFormatter

	// instruments is set by --metrics.
	instruments *instruments
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}
}

// setup loads configuration, installs the logger and opens the store.
// The caller must Close the returned env.
func setup(opts *RootOptions, cmd *cobra.Command) (*env, error) {
	out := newFormatter(opts, cmd)

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		var details any
		var verr *config.ValidationError
		if errors.As(err, &verr) {
			details = verr.Problems
		}
		_ = out.Error(ErrCodeConfig, "load config: "+err.Error(), details)
		return nil, WrapExitError(ExitCommandError, "load config", err)
	}
	if opts.Database != "" {
		if cfg.DBPath, err = filepath.Abs(opts.Database); err != nil {
			_ = out.Error(ErrCodeConfig, "resolve --db: "+err.Error(), nil)
			return nil, WrapExitError(ExitCommandError, "resolve --db", err)
		}
	}

	// Configure logging based on verbose flag and configured level
	level := cfg.SlogLevel()
	if opts.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: level,
	}))

	storeOpts := []store.Option{
		store.WithBusyTimeout(cfg.BusyTimeout()),
		store.WithLogger(logger),
	}
	if opts.Clock != nil {
		storeOpts = append(storeOpts, store.WithClock(opts.Clock))
	}
	var inst *instruments
	if opts.Metrics {
		inst = newInstruments()
		storeOpts = append(storeOpts, inst.storeOptions()...)
	}

	st, err := store.Open(cfg.DBPath, storeOpts...)
	if err != nil {
		_ = out.Error(ErrCodeIO, "open store: "+err.Error(), nil)
		return nil, WrapExitError(ExitCommandError, "open store", err)
	}
	logger.Debug("store opened", "path", cfg.DBPath)

	return &env{cfg: cfg, store: st, logger: logger, out: out, instruments: inst}, nil
}

// session acquires the single CLI session.
func (e *env) session(cmd *cobra.Command) (*store.Session, error) {
	sess, err := e.store.Acquire(cmd.Context(), cliWorker)
	if err != nil {
		return nil, e.out.Fail("open database", err)
	}
	return sess, nil
}

// Close closes the store and, with --metrics, prints the collected store
// metrics as one canonical JSON line to stderr.
func (e *env) Close() {
	if err := e.store.Close(); err != nil {
		e.logger.Error("error closing database", "error", err)
	}
	if e.instruments == nil {
		return
	}

	ctx := context.Background()
	if snapshot, err := e.instruments.snapshot(ctx); err != nil {
		e.logger.Error("collect metrics", "error", err)
	} else if data, err := ir.MarshalCanonical(snapshot); err != nil {
		e.logger.Error("encode metrics", "error", err)
	} else {
		fmt.Fprintf(e.out.GetErrWriter(), "metrics: %s\n", data)
	}
	if err := e.instruments.shutdown(ctx); err != nil {
		e.logger.Error("shutdown metrics", "error", err)
	}
}
