package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// UpsertIntelItem inserts the item, or replaces the mutable fields of the
// existing item with the same item_id.
//
// Replaced: title, summary, the five payloads, decision, decision_reason.
// Preserved: item_id, run_id, item_type. created_at is refreshed to the
// write time either way. The timestamp is read while the write lock is
// held, so the surviving row of concurrent upserts to one item_id always
// carries the latest stamp.
//
// Fails with ErrNotFound when item.RunID names no run, including when the
// item already exists, and ErrInvalid when an identity field is empty or a
// payload cannot be encoded.
func (sess *Session) UpsertIntelItem(ctx context.Context, item IntelItem) error {
	start := time.Now()
	err := sess.withWriteLock(ctx, func(ctx context.Context) error {
		return sess.upsertItem(ctx, item)
	})
	sess.store.cfg.metrics.record(ctx, "upsert_item", start, err)
	if err != nil {
		return err
	}
	sess.store.cfg.metrics.items.Add(ctx, 1)
	return nil
}

// UpsertIntelItems upserts every item inside one transaction. If any item
// fails, none of the batch is written and the first error is returned.
// Inside an already open transaction the batch joins it.
func (sess *Session) UpsertIntelItems(ctx context.Context, items []IntelItem) error {
	start := time.Now()
	err := sess.Transaction(ctx, func(ctx context.Context) error {
		for i, item := range items {
			if err := sess.upsertItem(ctx, item); err != nil {
				return fmt.Errorf("batch item %d: %w", i, err)
			}
		}
		return nil
	})
	sess.store.cfg.metrics.record(ctx, "upsert_items", start, err)
	if err != nil {
		return err
	}

	sess.store.cfg.metrics.items.Add(ctx, int64(len(items)))
	sess.store.cfg.logger.Debug("batch upserted", "worker", sess.worker, "items", len(items))
	return nil
}

const upsertItemSQL = `
	INSERT INTO intel_items (` + itemColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(item_id) DO UPDATE SET
		title = excluded.title,
		summary = excluded.summary,
		claims_json = excluded.claims_json,
		evidence_json = excluded.evidence_json,
		scores_json = excluded.scores_json,
		risk_flags_json = excluded.risk_flags_json,
		explainability_json = excluded.explainability_json,
		decision = excluded.decision,
		decision_reason = excluded.decision_reason,
		created_at = excluded.created_at
`

func (sess *Session) upsertItem(ctx context.Context, item IntelItem) error {
	const op = "upsert intel item"

	switch {
	case item.ItemID == "":
		return newError(CodeInvalid, op, item.ItemID, errors.New("empty item_id"))
	case item.RunID == "":
		return newError(CodeInvalid, op, item.ItemID, errors.New("empty run_id"))
	case item.ItemType == "":
		return newError(CodeInvalid, op, item.ItemID, errors.New("empty item_type"))
	}

	// The conflict path never writes run_id, so the foreign key alone does
	// not catch an unknown run on re-upsert.
	var one int
	err := sess.conn().QueryRowContext(ctx, "SELECT 1 FROM runs WHERE run_id = ?", item.RunID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return newError(CodeNotFound, op, item.ItemID, fmt.Errorf("run %q does not exist", item.RunID))
	}
	if err != nil {
		return classify(op, item.ItemID, err)
	}

	// Every caller holds the write lock here.
	item.CreatedAt = sess.store.cfg.clock.Now()
	row, err := toRow(item)
	if err != nil {
		return newError(CodeInvalid, op, item.ItemID, err)
	}

	_, err = sess.conn().ExecContext(ctx, upsertItemSQL, row.args()...)
	return classify(op, item.ItemID, err)
}

// ListItemsForRun returns the run's items ordered by created_at, then
// item_id by byte value. The result is empty, not nil, when nothing matches.
func (sess *Session) ListItemsForRun(ctx context.Context, runID string) ([]IntelItem, error) {
	const op = "list items for run"
	start := time.Now()

	items, err := sess.queryItems(ctx, runID)
	err = classify(op, runID, err)
	sess.store.cfg.metrics.record(ctx, "list_items", start, err)
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (sess *Session) queryItems(ctx context.Context, runID string) ([]IntelItem, error) {
	rows, err := sess.conn().QueryContext(ctx, `
		SELECT `+itemColumns+`
		FROM intel_items
		WHERE run_id = ?
		ORDER BY created_at ASC, item_id COLLATE BINARY ASC
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]IntelItem, 0)
	for rows.Next() {
		var row itemRow
		if err := row.scan(rows); err != nil {
			return nil, err
		}
		item, err := fromRow(row)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}
	return items, nil
}
