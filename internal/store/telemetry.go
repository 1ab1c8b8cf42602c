package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/intelstore/internal/ir"
)

// WriteTelemetry stores the run's telemetry payload, replacing any previous
// payload and its timestamp. Fails with ErrNotFound when the run is unknown.
func (sess *Session) WriteTelemetry(ctx context.Context, runID string, payload ir.Object) error {
	const op = "write telemetry"
	start := time.Now()

	encoded, err := encodeObject(payload)
	if err != nil {
		err = newError(CodeInvalid, op, runID, fmt.Errorf("encode telemetry: %w", err))
		sess.store.cfg.metrics.record(ctx, "write_telemetry", start, err)
		return err
	}

	err = sess.withWriteLock(ctx, func(ctx context.Context) error {
		_, err := sess.conn().ExecContext(ctx, `
			INSERT INTO telemetry (run_id, telemetry_json, created_at)
			VALUES (?, ?, ?)
			ON CONFLICT(run_id) DO UPDATE SET
				telemetry_json = excluded.telemetry_json,
				created_at = excluded.created_at
		`, runID, encoded, formatTime(sess.store.cfg.clock.Now()))
		return classify(op, runID, err)
	})
	sess.store.cfg.metrics.record(ctx, "write_telemetry", start, err)
	return err
}

// GetTelemetry returns the run's telemetry, or ErrNotFound if none was written.
func (sess *Session) GetTelemetry(ctx context.Context, runID string) (TelemetryRecord, error) {
	const op = "get telemetry"
	start := time.Now()

	var (
		rec       = TelemetryRecord{RunID: runID}
		payload   string
		createdAt string
	)
	err := sess.conn().QueryRowContext(ctx, `
		SELECT telemetry_json, created_at
		FROM telemetry
		WHERE run_id = ?
	`, runID).Scan(&payload, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		err = newError(CodeNotFound, op, runID, nil)
	}
	if err == nil {
		rec.Payload, err = decodeObject(payload)
		if err != nil {
			err = newError(CodeCorrupt, op, runID, fmt.Errorf("telemetry_json: %w", err))
		}
	}
	if err == nil {
		rec.CreatedAt, err = parseTime(createdAt)
		if err != nil {
			err = newError(CodeCorrupt, op, runID, fmt.Errorf("created_at: %w", err))
		}
	}
	err = classify(op, runID, err)
	sess.store.cfg.metrics.record(ctx, "get_telemetry", start, err)
	if err != nil {
		return TelemetryRecord{}, err
	}
	return rec, nil
}
