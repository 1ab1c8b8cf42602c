package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/intelstore/internal/ir"
	"github.com/roach88/intelstore/internal/testutil"
)

func TestStartRun_CreatesRunningRun(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	sess := acquire(t, s, "main")

	settings := ir.NewObject(
		ir.O("x", ir.Int(1)),
		ir.O("weights", ir.NewObject(ir.O("credibility", ir.Int(25)))),
	)
	rec, err := sess.StartRun(ctx, "r1", "daily", settings)
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, rec.Status)
	assert.False(t, rec.Finished())

	got, err := sess.GetRun(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, rec, got)
	assert.Equal(t, settings, got.SettingsSnapshot)
	assert.Nil(t, got.Notes)
}

func TestStartRun_NilSettingsStoredAsEmptyObject(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	sess := acquire(t, s, "main")

	_, err := sess.StartRun(ctx, "r1", "daily", nil)
	require.NoError(t, err)

	var raw string
	require.NoError(t, sess.db.QueryRow("SELECT settings_snapshot_json FROM runs WHERE run_id = 'r1'").Scan(&raw))
	assert.Equal(t, "{}", raw)
}

func TestStartRun_Duplicate(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	sess := acquire(t, s, "main")
	startTestRun(t, sess, "r1")

	_, err := sess.StartRun(ctx, "r1", "weekly", nil)
	assert.ErrorIs(t, err, ErrDuplicateKey)

	got, err := sess.GetRun(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "daily", got.RunType, "original run must be untouched")
}

func TestStartRun_EmptyID(t *testing.T) {
	s := createTestStore(t)
	sess := acquire(t, s, "main")

	_, err := sess.StartRun(context.Background(), "", "daily", nil)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestStartRun_InvalidUTF8Settings(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	sess := acquire(t, s, "main")

	_, err := sess.StartRun(ctx, "r1", "daily", ir.NewObject(ir.O("query", ir.String("caf\xe9"))))
	assert.ErrorIs(t, err, ErrInvalid)
	assert.Contains(t, err.Error(), "invalid UTF-8")

	_, err = sess.GetRun(ctx, "r1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFinishRun_SetsFields(t *testing.T) {
	clock := testutil.NewDeterministicClockAt(testutil.DefaultEpoch, time.Minute)
	s := createTestStore(t, WithClock(clock))
	ctx := context.Background()
	sess := acquire(t, s, "main")
	startTestRun(t, sess, "r1")

	require.NoError(t, sess.FinishRun(ctx, "r1", StatusFailed, Ptr("assessor unavailable")))

	got, err := sess.GetRun(ctx, "r1")
	require.NoError(t, err)
	require.NotNil(t, got.FinishedAt)
	assert.Equal(t, testutil.DefaultEpoch, got.StartedAt)
	assert.Equal(t, testutil.DefaultEpoch.Add(time.Minute), *got.FinishedAt)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, Ptr("assessor unavailable"), got.Notes)
}

// A second finish overwrites the first. Pinned so that a change to
// reject or ignore repeated finishes is a deliberate decision.
func TestFinishRun_TwiceOverwrites(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	sess := acquire(t, s, "main")
	startTestRun(t, sess, "r1")

	require.NoError(t, sess.FinishRun(ctx, "r1", StatusFailed, Ptr("first")))
	first, err := sess.GetRun(ctx, "r1")
	require.NoError(t, err)

	require.NoError(t, sess.FinishRun(ctx, "r1", StatusSucceeded, nil))
	second, err := sess.GetRun(ctx, "r1")
	require.NoError(t, err)

	assert.Equal(t, StatusSucceeded, second.Status)
	assert.Nil(t, second.Notes)
	require.NotNil(t, second.FinishedAt)
	assert.True(t, second.FinishedAt.After(*first.FinishedAt))
}

func TestFinishRun_Unknown(t *testing.T) {
	s := createTestStore(t)
	sess := acquire(t, s, "main")

	err := sess.FinishRun(context.Background(), "missing", StatusSucceeded, nil)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), `"missing"`)
}

func TestGetRun_Unknown(t *testing.T) {
	s := createTestStore(t)
	sess := acquire(t, s, "main")

	_, err := sess.GetRun(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetRun_CorruptSnapshot(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	sess := acquire(t, s, "main")
	startTestRun(t, sess, "r1")

	_, err := sess.db.Exec(`UPDATE runs SET settings_snapshot_json = '[1,2]' WHERE run_id = 'r1'`)
	require.NoError(t, err)

	_, err = sess.GetRun(ctx, "r1")
	assert.ErrorIs(t, err, ErrCorrupt)
	assert.Contains(t, err.Error(), "settings_snapshot_json")
}

func TestListRuns_OrderedByStart(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	sess := acquire(t, s, "main")

	runs, err := sess.ListRuns(ctx)
	require.NoError(t, err)
	assert.NotNil(t, runs)
	assert.Empty(t, runs)

	for _, id := range []string{"r3", "r1", "r2"} {
		startTestRun(t, sess, id)
	}
	require.NoError(t, sess.FinishRun(ctx, "r1", StatusSucceeded, nil))

	runs, err = sess.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "r3", runs[0].RunID)
	assert.Equal(t, "r1", runs[1].RunID)
	assert.Equal(t, "r2", runs[2].RunID)
	assert.True(t, runs[1].Finished())
}
