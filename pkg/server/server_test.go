package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dylanlee/wncat/internal/config"
	"github.com/dylanlee/wncat/internal/objstore"
	"github.com/dylanlee/wncat/internal/observability"
)

// writeCollection stores a flat collection whose source is an HTML listing
// at listingURL.
func writeCollection(t *testing.T, listingURL string) string {
	t.Helper()
	dir := t.TempDir()
	doc := map[string]any{
		"id":          "floodlight-composite",
		"title":       "VIIRS flood composite",
		"description": "VIIRS 1-day composite flood maps.",
		"license":     "CC0-1.0",
		"start_date":  "2012-01-20",
		"source": map[string]any{
			"type":        "html",
			"listing_url": listingURL,
			"filters":     []string{".tif"},
		},
	}
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "floodlight-composite.json"), data, 0o644))
	return dir
}

func newTestServer(t *testing.T, mutate func(*config.Config)) (*Server, *clockwork.FakeClock) {
	t.Helper()

	listing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><body><a href="README.txt">README.txt</a></body></html>`)
	}))
	t.Cleanup(listing.Close)

	cfg, err := Options{Memory: true, CollectionsDir: writeCollection(t, listing.URL)}.config()
	require.NoError(t, err)
	cfg.Sync.Validate = false
	cfg.Sync.Start = config.Date{Time: time.Date(2012, 1, 20, 0, 0, 0, 0, time.UTC)}
	cfg.Sync.End = config.Date{Time: time.Date(2012, 1, 21, 0, 0, 0, 0, time.UTC)}
	if mutate != nil {
		mutate(cfg)
	}

	clock := clockwork.NewFakeClockAt(time.Date(2012, 1, 22, 3, 0, 0, 0, time.UTC))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := newServer(context.Background(), cfg, logger, observability.NewMetricsForTesting(), prometheus.NewRegistry(), clock)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, clock
}

func TestOptionsConfig(t *testing.T) {
	cfg, err := Options{Bucket: "fim-staging", Region: "us-west-2", Interval: time.Hour}.config()
	require.NoError(t, err)
	assert.Equal(t, "s3", cfg.Store.Type)
	assert.Equal(t, "fim-staging", cfg.Store.Bucket)
	assert.Equal(t, "us-west-2", cfg.Store.Region)
	assert.Equal(t, "./collections", cfg.Sync.CollectionsDir)
	assert.Equal(t, time.Hour, cfg.Sync.Interval)
	assert.Empty(t, cfg.Ops.Addr, "embedded engines leave serving to the host")

	cfg, err = Options{Memory: true}.config()
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Store.Type)
}

func TestSyncPublishesCatalogTree(t *testing.T) {
	s, _ := newTestServer(t, nil)

	summary, err := s.Sync(context.Background(), time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Len(t, summary.Buckets, 2)
	assert.Zero(t, summary.Created())

	mem := s.store.(*objstore.Memory)
	assert.Equal(t, []string{objstore.CatalogKey, objstore.CollectionKey("floodlight-composite")}, mem.Keys())

	status := s.tracker.Snapshot()
	assert.False(t, status.Running)
	assert.Equal(t, 1, status.Runs)
	require.NotNil(t, status.LastSuccess)
}

func TestSyncAppliesRetentionFirst(t *testing.T) {
	s, _ := newTestServer(t, func(cfg *config.Config) {
		cfg.Retention.Items = config.Date{Time: time.Date(2012, 1, 5, 0, 0, 0, 0, time.UTC)}
	})
	mem := s.store.(*objstore.Memory)
	old := objstore.ItemKey("floodlight-composite", time.Date(2012, 1, 2, 0, 0, 0, 0, time.UTC), "VFM_20120102T000000_aaaaaaaa")
	require.NoError(t, mem.Put(context.Background(), old, []byte(`{}`), objstore.ContentTypeJSON))

	_, err := s.Sync(context.Background(), time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.NotContains(t, mem.Keys(), old)
}

func TestReadiness(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"store":"ok"`)
}

func TestRunRepeatsOnInterval(t *testing.T) {
	s, clock := newTestServer(t, func(cfg *config.Config) {
		cfg.Sync.Interval = time.Hour
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(time.Hour)
	require.Eventually(t, func() bool {
		return s.tracker.Snapshot().Runs == 2
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRunOnceReturnsSyncError(t *testing.T) {
	s, _ := newTestServer(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Error(t, s.Run(ctx))
}
