package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/intelstore/internal/ir"
)

// itemRow is the column encoding of an IntelItem, in intel_items column
// order. Batch and single upserts both write through toRow.
type itemRow struct {
	ItemID             string
	RunID              string
	ItemType           string
	Title              string
	Summary            string
	ClaimsJSON         string
	EvidenceJSON       string
	ScoresJSON         string
	RiskFlagsJSON      string
	ExplainabilityJSON string
	Decision           sql.NullString
	DecisionReason     sql.NullString
	CreatedAt          string
}

// args returns the row values in insert order.
func (r itemRow) args() []any {
	return []any{
		r.ItemID, r.RunID, r.ItemType, r.Title, r.Summary,
		r.ClaimsJSON, r.EvidenceJSON, r.ScoresJSON, r.RiskFlagsJSON, r.ExplainabilityJSON,
		r.Decision, r.DecisionReason, r.CreatedAt,
	}
}

// scan reads a row selected with itemColumns.
func (r *itemRow) scan(sc interface{ Scan(dest ...any) error }) error {
	return sc.Scan(
		&r.ItemID, &r.RunID, &r.ItemType, &r.Title, &r.Summary,
		&r.ClaimsJSON, &r.EvidenceJSON, &r.ScoresJSON, &r.RiskFlagsJSON, &r.ExplainabilityJSON,
		&r.Decision, &r.DecisionReason, &r.CreatedAt,
	)
}

const itemColumns = `item_id, run_id, item_type, title, summary,
	claims_json, evidence_json, scores_json, risk_flags_json, explainability_json,
	decision, decision_reason, created_at`

// payloadDefault is written in place of a nil payload.
func payloadDefault(column string) ir.Value {
	if column == "scores_json" {
		return ir.Object{}
	}
	return ir.Array{}
}

// toRow encodes an item for a single parameterized write.
func toRow(item IntelItem) (itemRow, error) {
	row := itemRow{
		ItemID:         item.ItemID,
		RunID:          item.RunID,
		ItemType:       item.ItemType,
		Title:          item.Title,
		Summary:        item.Summary,
		Decision:       nullString(item.Decision),
		DecisionReason: nullString(item.DecisionReason),
		CreatedAt:      formatTime(item.CreatedAt),
	}

	payloads := []struct {
		column string
		value  ir.Value
		dst    *string
	}{
		{"claims_json", item.Claims, &row.ClaimsJSON},
		{"evidence_json", item.Evidence, &row.EvidenceJSON},
		{"scores_json", item.Scores, &row.ScoresJSON},
		{"risk_flags_json", item.RiskFlags, &row.RiskFlagsJSON},
		{"explainability_json", item.Explainability, &row.ExplainabilityJSON},
	}
	for _, p := range payloads {
		v := p.value
		if v == nil {
			v = payloadDefault(p.column)
		}
		encoded, err := encodePayload(v)
		if err != nil {
			return itemRow{}, fmt.Errorf("encode %s: %w", p.column, err)
		}
		*p.dst = encoded
	}

	return row, nil
}

// fromRow decodes a stored row. A payload that fails to decode is reported
// as ErrCorrupt naming the column; no field is ever dropped silently.
func fromRow(row itemRow) (IntelItem, error) {
	item := IntelItem{
		ItemID:         row.ItemID,
		RunID:          row.RunID,
		ItemType:       row.ItemType,
		Title:          row.Title,
		Summary:        row.Summary,
		Decision:       stringPtr(row.Decision),
		DecisionReason: stringPtr(row.DecisionReason),
	}

	payloads := []struct {
		column  string
		encoded string
		dst     *ir.Value
	}{
		{"claims_json", row.ClaimsJSON, &item.Claims},
		{"evidence_json", row.EvidenceJSON, &item.Evidence},
		{"scores_json", row.ScoresJSON, &item.Scores},
		{"risk_flags_json", row.RiskFlagsJSON, &item.RiskFlags},
		{"explainability_json", row.ExplainabilityJSON, &item.Explainability},
	}
	for _, p := range payloads {
		v, err := decodePayload(p.encoded)
		if err != nil {
			return IntelItem{}, newError(CodeCorrupt, "decode intel item", row.ItemID,
				fmt.Errorf("%s: %w", p.column, err))
		}
		*p.dst = v
	}

	createdAt, err := parseTime(row.CreatedAt)
	if err != nil {
		return IntelItem{}, newError(CodeCorrupt, "decode intel item", row.ItemID,
			fmt.Errorf("created_at: %w", err))
	}
	item.CreatedAt = createdAt

	return item, nil
}

// encodePayload converts a structured value to canonical JSON text.
func encodePayload(v ir.Value) (string, error) {
	data, err := ir.MarshalCanonical(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// decodePayload parses canonical JSON text back into a value.
func decodePayload(data string) (ir.Value, error) {
	if data == "" {
		return nil, errors.New("empty payload")
	}
	return ir.UnmarshalValue([]byte(data))
}

// encodeObject and decodeObject handle the settings snapshot and telemetry
// payloads, which must be JSON objects.
func encodeObject(obj ir.Object) (string, error) {
	if obj == nil {
		obj = ir.Object{}
	}
	return encodePayload(obj)
}

func decodeObject(data string) (ir.Object, error) {
	if data == "" {
		return nil, errors.New("empty payload")
	}
	return ir.UnmarshalObject([]byte(data))
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
