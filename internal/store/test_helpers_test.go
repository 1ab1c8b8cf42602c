package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/intelstore/internal/ir"
	"github.com/roach88/intelstore/internal/testutil"
)

// createTestStore creates a store over a fresh file database with a
// deterministic clock.
func createTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	opts = append([]Option{WithClock(testutil.NewDeterministicClock())}, opts...)
	s, err := Open(path, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// acquire returns the worker's session or fails the test.
func acquire(t *testing.T, s *Store, worker string) *Session {
	t.Helper()
	sess, err := s.Acquire(context.Background(), worker)
	require.NoError(t, err)
	return sess
}

// startTestRun creates a run with a small settings snapshot.
func startTestRun(t *testing.T, sess *Session, runID string) RunRecord {
	t.Helper()
	rec, err := sess.StartRun(context.Background(), runID, "daily", ir.NewObject(ir.O("x", ir.Int(1))))
	require.NoError(t, err)
	return rec
}

// createTestItem creates an item with every payload populated.
func createTestItem(itemID, runID, title string) IntelItem {
	return IntelItem{
		ItemID:   itemID,
		RunID:    runID,
		ItemType: "news",
		Title:    title,
		Summary:  "summary of " + title,
		Claims: ir.NewArray(ir.NewObject(
			ir.O("text", ir.String("claim for "+itemID)),
			ir.O("confidence", ir.Float(0.75)),
		)),
		Evidence:       ir.NewArray(ir.NewObject(ir.O("url", ir.String("https://example.com/"+itemID)))),
		Scores:         ir.NewObject(ir.O("relevance", ir.Int(80)), ir.O("risk", ir.Float(12.5))),
		RiskFlags:      ir.Strings("none"),
		Explainability: ir.NewArray(ir.String("matched brand keywords")),
	}
}

// countItems counts the run's rows through the session's handle. The
// session must not have a transaction open: its only connection is the tx.
func countItems(t *testing.T, sess *Session, runID string) int {
	t.Helper()
	var n int
	err := sess.db.QueryRow("SELECT COUNT(*) FROM intel_items WHERE run_id = ?", runID).Scan(&n)
	require.NoError(t, err)
	return n
}

// clockFunc adapts a function to Clock.
type clockFunc func() time.Time

func (f clockFunc) Now() time.Time { return f() }
