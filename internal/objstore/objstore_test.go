package objstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dylanlee/wncat/internal/retry"
)

func TestKeys(t *testing.T) {
	day := time.Date(2012, 1, 21, 13, 0, 0, 0, time.UTC)

	assert.Equal(t, "catalog.json", CatalogKey)
	assert.Equal(t, "collections/viirs-1-day-composite.json", CollectionKey("viirs-1-day-composite"))
	assert.Equal(t, "collections/viirs-1-day-composite/2012-01-21/collection.json", SubCollectionKey("viirs-1-day-composite", day))
	assert.Equal(t, "items/viirs-1-day-composite/2012/01/21/VFM_20120121T000000_be57214d.json", ItemKey("viirs-1-day-composite", day, "VFM_20120121T000000_be57214d"))
	assert.Equal(t, "thumbnails/viirs-1-day-composite/2012-01-21/VFM_s20120121.png", ThumbnailKey("viirs-1-day-composite", day, "VFM_s20120121"))
	assert.Equal(t, "overviews/viirs-1-day-composite/2012-01-21/VFM_s20120121.tif", OverviewKey("viirs-1-day-composite", day, "VFM_s20120121.tif"))
}

func TestMemoryProbeGetPut(t *testing.T) {
	ctx := context.Background()
	m := NewMemory("fim-public", "")

	presence, err := m.Probe(ctx, "catalog.json")
	require.NoError(t, err)
	assert.Equal(t, NotFound, presence)

	_, err = m.Get(ctx, "catalog.json")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, m.Put(ctx, "catalog.json", []byte(`{}`), ContentTypeJSON))

	presence, err = m.Probe(ctx, "catalog.json")
	require.NoError(t, err)
	assert.Equal(t, Exists, presence)

	data, err := m.Get(ctx, "catalog.json")
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(data))
	assert.Equal(t, ContentTypeJSON, m.ContentType("catalog.json"))
	assert.Equal(t, "https://fim-public.s3.amazonaws.com/catalog.json", m.URL("catalog.json"))
}

func TestMemoryProbeCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	presence, err := NewMemory("b", "").Probe(ctx, "k")
	require.Error(t, err)
	assert.Equal(t, ProbeFailed, presence)
}

func TestMemoryListAndDelete(t *testing.T) {
	ctx := context.Background()
	m := NewMemory("b", "http://localhost:9000/b/")

	for _, k := range []string{"items/c/b.json", "items/c/a.json", "thumbnails/c/a.png"} {
		require.NoError(t, m.Put(ctx, k, []byte("x"), ContentTypeJSON))
	}

	objs, err := m.List(ctx, ItemsPrefix)
	require.NoError(t, err)
	require.Len(t, objs, 2)
	assert.Equal(t, "items/c/a.json", objs[0].Key)
	assert.Equal(t, "items/c/b.json", objs[1].Key)

	require.NoError(t, m.Delete(ctx, "items/c/a.json"))
	assert.Equal(t, []string{"items/c/b.json", "thumbnails/c/a.png"}, m.Keys())
	assert.Equal(t, "http://localhost:9000/b/items/c/b.json", m.URL("items/c/b.json"))
}

// flakyStore fails UploadFile a fixed number of times.
type flakyStore struct {
	*Memory
	failures int32
	err      error
	calls    atomic.Int32
}

func (f *flakyStore) UploadFile(ctx context.Context, path, key, contentType string) error {
	if f.calls.Add(1) <= f.failures {
		return f.err
	}
	return f.Memory.UploadFile(ctx, path, key, contentType)
}

func writeTempFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "thumb.png")
	require.NoError(t, os.WriteFile(path, []byte("png"), 0o644))
	return path
}

func TestUploadFileWithRetrySucceedsOnThirdAttempt(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	clock := clockwork.NewFakeClock()
	policy := retry.NewPolicy(5, 1.5).WithClock(clock)
	store := &flakyStore{Memory: NewMemory("fim-public", ""), failures: 2, err: errors.New("503 slow down")}
	path := writeTempFile(t)

	type result struct {
		url string
		err error
	}
	done := make(chan result, 1)
	go func() {
		url, err := UploadFileWithRetry(ctx, store, policy, path, "thumbnails/c/2012-01-21/a.png", "image/png")
		done <- result{url, err}
	}()

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(time.Second)
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(1500 * time.Millisecond)

	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, "https://fim-public.s3.amazonaws.com/thumbnails/c/2012-01-21/a.png", res.url)
	assert.EqualValues(t, 3, store.calls.Load())
	assert.Equal(t, "image/png", store.ContentType("thumbnails/c/2012-01-21/a.png"))
}

func TestUploadFileWithRetryMissingCredentials(t *testing.T) {
	policy := retry.NewPolicy(5, 1.5).WithClock(clockwork.NewFakeClock())
	store := &flakyStore{Memory: NewMemory("fim-public", ""), failures: 5, err: ErrMissingCredentials}

	_, err := UploadFileWithRetry(context.Background(), store, policy, writeTempFile(t), "k", "image/png")

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingCredentials)
	assert.True(t, retry.IsNonRetryable(err))
	assert.EqualValues(t, 1, store.calls.Load())
}

func TestUploadFileWithRetryExhausted(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	clock := clockwork.NewFakeClock()
	policy := retry.NewPolicy(2, 1.5).WithClock(clock)
	store := &flakyStore{Memory: NewMemory("fim-public", ""), failures: 10, err: errors.New("timeout")}
	path := writeTempFile(t)

	done := make(chan error, 1)
	go func() {
		_, err := UploadFileWithRetry(ctx, store, policy, path, "overviews/c/2012-01-21/a.tif", "image/tiff")
		done <- err
	}()

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(time.Second)

	err := <-done
	require.Error(t, err)
	assert.ErrorIs(t, err, retry.ErrRetriesExhausted)
	assert.Contains(t, err.Error(), path)
	assert.Contains(t, err.Error(), "overviews/c/2012-01-21/a.tif")
}

func TestClassify(t *testing.T) {
	err := classify(errors.New("put s3://b/k: operation error S3: PutObject, failed to retrieve credentials: no EC2 IMDS role found"))
	assert.ErrorIs(t, err, ErrMissingCredentials)

	err = classify(errors.New("put s3://b/k: connection reset"))
	assert.NotErrorIs(t, err, ErrMissingCredentials)
}

func TestPresenceString(t *testing.T) {
	assert.Equal(t, "exists", Exists.String())
	assert.Equal(t, "not_found", NotFound.String())
	assert.Equal(t, "error", ProbeFailed.String())
}
