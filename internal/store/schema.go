package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
)

//go:embed schema.sql
var schemaSQL string

// Relations created by ensureSchema.
var schemaTables = []string{"runs", "intel_items", "telemetry"}

// Indexes created by ensureSchema.
var schemaIndexes = []string{"idx_intel_items_run_id", "idx_intel_items_created_at"}

// ensureSchema creates the relations and indexes if they are absent.
// Every statement is IF NOT EXISTS, so concurrent sessions may all run it;
// they serialize on the write lock under the busy timeout.
func ensureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return nil
}
