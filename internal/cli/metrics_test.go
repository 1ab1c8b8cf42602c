package cli

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

type reportedMetric struct {
	Value int64 `json:"value"`
}

// metricsLine decodes the metrics line printed to stderr.
func metricsLine(t *testing.T, stderr string) map[string]reportedMetric {
	t.Helper()
	for _, line := range strings.Split(stderr, "\n") {
		if data, ok := strings.CutPrefix(line, "metrics: "); ok {
			var out map[string]reportedMetric
			require.NoError(t, json.Unmarshal([]byte(data), &out))
			return out
		}
	}
	t.Fatalf("no metrics line in stderr:\n%s", stderr)
	return nil
}

func TestMetricsFlag_PrintsStoreMetrics(t *testing.T) {
	h := newCLIHarness(t)
	h.mustRun("run", "start", "run-001")
	path := h.writeFile("items.yaml", manyItems(6))

	_, stderr, err := h.run("", "--metrics", "items", "import", path, "--workers", "2")
	require.NoError(t, err)

	metrics := metricsLine(t, stderr)
	assert.Equal(t, int64(2), metrics["intelstore.store.operations{op=upsert_items,outcome=ok}"].Value)
	assert.Equal(t, int64(2), metrics["intelstore.store.duration.count{op=upsert_items,outcome=ok}"].Value)
	assert.Equal(t, int64(6), metrics["intelstore.store.items_written"].Value)
	assert.Equal(t, int64(0), metrics["intelstore.store.sessions"].Value, "every session is released by exit")
	assert.Equal(t, int64(2), metrics["spans.store.transaction"].Value)
}

func TestMetricsFlag_CountsFailedTransactions(t *testing.T) {
	h := newCLIHarness(t)
	h.mustRun("run", "start", "run-001")
	path := h.writeFile("items.yaml", itemsDoc+"  - {item_id: item-003, run_id: ghost, item_type: news, title: t}\n")

	_, stderr, err := h.run("", "--metrics", "items", "import", path)
	require.Error(t, err)

	metrics := metricsLine(t, stderr)
	assert.Equal(t, int64(1), metrics["intelstore.store.operations{op=upsert_items,outcome=NOT_FOUND}"].Value)
	assert.Equal(t, int64(1), metrics["spans.store.transaction.error"].Value)
}

func TestMetricsFlag_OffByDefault(t *testing.T) {
	h := newCLIHarness(t)
	_, stderr, err := h.run("", "run", "start", "run-001")
	require.NoError(t, err)
	assert.NotContains(t, stderr, "metrics: ")
}

func TestMetricKey(t *testing.T) {
	assert.Equal(t, "plain", metricKey("plain", *attribute.EmptySet()))

	set := attribute.NewSet(attribute.String("outcome", "ok"), attribute.String("op", "commit"))
	assert.Equal(t, "m{op=commit,outcome=ok}", metricKey("m", set))
}
