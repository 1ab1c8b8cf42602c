package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/intelstore/internal/ir"
)

func TestSnapshot_StableKeys(t *testing.T) {
	snap := Default().Snapshot()

	assert.Equal(t, []string{
		"artifacts_dir", "brand", "db_path", "log_level", "source_policy", "thresholds", "weights",
	}, snap.SortedKeys())

	weights, ok := snap["weights"].(ir.Object)
	require.True(t, ok)
	assert.Equal(t, ir.Int(25), weights["impact"])

	policy, ok := snap["source_policy"].(ir.Object)
	require.True(t, ok)
	domains, ok := policy["allowed_domains_tier_a"].(ir.Array)
	require.True(t, ok)
	assert.Len(t, domains, 15)
	assert.Equal(t, ir.String("reuters.com"), domains[0])
}

func TestSnapshot_Deterministic(t *testing.T) {
	a, err := ir.MarshalCanonical(Default().Snapshot())
	require.NoError(t, err)
	b, err := ir.MarshalCanonical(Default().Snapshot())
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestSnapshot_ExcludesBusyTimeout(t *testing.T) {
	snap := Default().Snapshot()
	_, ok := snap["busy_timeout_ms"]
	assert.False(t, ok)
}
