package observability

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "info", "json")

	logger.Debug("hidden")
	logger.Info("run finished", "run_id", "abc")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "run finished", rec["msg"])
	assert.Equal(t, "abc", rec["run_id"])
}

func TestNewLoggerText(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(&buf, "debug", "text").Debug("listing scraped", "matches", 3)
	assert.Contains(t, buf.String(), "listing scraped")
	assert.Contains(t, buf.String(), "matches")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warn"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}

func TestMetricsForTestingAreIndependent(t *testing.T) {
	a := NewMetricsForTesting()
	b := NewMetricsForTesting()

	a.ItemsCreated.WithLabelValues("c").Inc()
	assert.InDelta(t, 1, testutil.ToFloat64(a.ItemsCreated.WithLabelValues("c")), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(b.ItemsCreated.WithLabelValues("c")), 0)

	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(a.Runs))
}
