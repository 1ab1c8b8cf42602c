// Package store provides the SQLite-backed auditable state store for
// pipeline runs, the intel items they produce, and per-run telemetry.
//
// The store keeps:
//   - Runs: one row per pipeline execution, finished in place, never deleted
//   - Intel items: keyed by item_id across runs and upserted in place
//   - Telemetry: at most one payload per run, replaced on rewrite
//
// # Sessions
//
// A Store is a registry of per-worker sessions. Each worker (a caller-chosen
// name, usually one per goroutine) gets its own *Session wrapping a
// dedicated single-connection handle. No application lock is held while SQL
// runs; concurrent writers serialize on SQLite's write lock and wait at
// most the configured busy timeout before failing with ErrBusy.
//
// # Transactions
//
// Statements auto-commit unless the session has an explicit transaction
// open. Begin nests by depth: inner scopes join the outer transaction, and a
// rolled-back inner scope makes the outer Commit fail with ErrAborted.
// UpsertIntelItems always runs in a transaction, so a failed batch leaves
// no partial writes.
//
// # Ordering
//
// created_at is written as fixed-width ISO-8601 UTC text from a clock that
// never goes backwards, and ListItemsForRun orders by
// created_at ASC, item_id ASC COLLATE BINARY.
//
// # Database Configuration
//
//   - WAL mode: readers do not block the writer
//   - synchronous=FULL: committed writes survive power loss
//   - busy_timeout: bounded lock waits (default 5s)
//   - foreign_keys=ON: items and telemetry must name an existing run
//
// Payload columns hold canonical JSON produced by internal/ir.
package store
