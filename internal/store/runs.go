package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/intelstore/internal/ir"
)

// StartRun creates a run with status "running" and started_at set to now.
// It fails with ErrDuplicateKey if runID already exists.
func (sess *Session) StartRun(ctx context.Context, runID, runType string, settings ir.Object) (RunRecord, error) {
	const op = "start run"
	start := time.Now()

	if runID == "" {
		return RunRecord{}, newError(CodeInvalid, op, runID, errors.New("empty run_id"))
	}

	snapshot, err := encodeObject(settings)
	if err != nil {
		err = newError(CodeInvalid, op, runID, fmt.Errorf("encode settings snapshot: %w", err))
		sess.store.cfg.metrics.record(ctx, "start_run", start, err)
		return RunRecord{}, err
	}

	rec := RunRecord{
		RunID:            runID,
		RunType:          runType,
		StartedAt:        sess.store.cfg.clock.Now().UTC(),
		Status:           StatusRunning,
		SettingsSnapshot: settings,
	}
	if rec.SettingsSnapshot == nil {
		rec.SettingsSnapshot = ir.Object{}
	}

	_, err = sess.conn().ExecContext(ctx, `
		INSERT INTO runs (run_id, run_type, started_at, finished_at, status, settings_snapshot_json, notes)
		VALUES (?, ?, ?, NULL, ?, ?, NULL)
	`, rec.RunID, rec.RunType, formatTime(rec.StartedAt), rec.Status, snapshot)
	err = classify(op, runID, err)
	sess.store.cfg.metrics.record(ctx, "start_run", start, err)
	if err != nil {
		return RunRecord{}, err
	}

	sess.store.cfg.logger.Debug("run started", "worker", sess.worker, "run_id", runID, "run_type", runType)
	return rec, nil
}

// FinishRun sets the run's finished_at, status and notes.
// Finishing an already finished run overwrites all three.
func (sess *Session) FinishRun(ctx context.Context, runID, status string, notes *string) error {
	const op = "finish run"
	start := time.Now()

	err := sess.withWriteLock(ctx, func(ctx context.Context) error {
		res, err := sess.conn().ExecContext(ctx, `
			UPDATE runs SET finished_at = ?, status = ?, notes = ?
			WHERE run_id = ?
		`, formatTime(sess.store.cfg.clock.Now()), status, nullString(notes), runID)
		if err == nil {
			var n int64
			n, err = res.RowsAffected()
			if err == nil && n == 0 {
				err = newError(CodeNotFound, op, runID, nil)
			}
		}
		return classify(op, runID, err)
	})
	sess.store.cfg.metrics.record(ctx, "finish_run", start, err)
	if err != nil {
		return err
	}

	sess.store.cfg.logger.Debug("run finished", "worker", sess.worker, "run_id", runID, "status", status)
	return nil
}

// GetRun returns the run with the given id, or ErrNotFound.
func (sess *Session) GetRun(ctx context.Context, runID string) (RunRecord, error) {
	const op = "get run"
	start := time.Now()

	row := sess.conn().QueryRowContext(ctx, `
		SELECT `+runColumns+`
		FROM runs
		WHERE run_id = ?
	`, runID)

	rec, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		err = newError(CodeNotFound, op, runID, nil)
	}
	err = classify(op, runID, err)
	sess.store.cfg.metrics.record(ctx, "get_run", start, err)
	if err != nil {
		return RunRecord{}, err
	}
	return rec, nil
}

// ListRuns returns every run ordered by started_at, then run_id.
func (sess *Session) ListRuns(ctx context.Context) ([]RunRecord, error) {
	const op = "list runs"
	start := time.Now()

	runs, err := sess.queryRuns(ctx)
	err = classify(op, "", err)
	sess.store.cfg.metrics.record(ctx, "list_runs", start, err)
	if err != nil {
		return nil, err
	}
	return runs, nil
}

func (sess *Session) queryRuns(ctx context.Context) ([]RunRecord, error) {
	rows, err := sess.conn().QueryContext(ctx, `
		SELECT `+runColumns+`
		FROM runs
		ORDER BY started_at ASC, run_id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := make([]RunRecord, 0)
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

const runColumns = `run_id, run_type, started_at, finished_at, status, settings_snapshot_json, notes`

func scanRun(sc interface{ Scan(dest ...any) error }) (RunRecord, error) {
	var (
		rec        RunRecord
		startedAt  string
		finishedAt sql.NullString
		snapshot   string
		notes      sql.NullString
	)
	if err := sc.Scan(&rec.RunID, &rec.RunType, &startedAt, &finishedAt, &rec.Status, &snapshot, &notes); err != nil {
		return RunRecord{}, err
	}

	t, err := parseTime(startedAt)
	if err != nil {
		return RunRecord{}, newError(CodeCorrupt, "decode run", rec.RunID, fmt.Errorf("started_at: %w", err))
	}
	rec.StartedAt = t

	if finishedAt.Valid {
		t, err := parseTime(finishedAt.String)
		if err != nil {
			return RunRecord{}, newError(CodeCorrupt, "decode run", rec.RunID, fmt.Errorf("finished_at: %w", err))
		}
		rec.FinishedAt = &t
	}

	rec.SettingsSnapshot, err = decodeObject(snapshot)
	if err != nil {
		return RunRecord{}, newError(CodeCorrupt, "decode run", rec.RunID, fmt.Errorf("settings_snapshot_json: %w", err))
	}
	rec.Notes = stringPtr(notes)

	return rec, nil
}
