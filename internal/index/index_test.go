package index

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dylanlee/wncat/internal/stac"
)

type execCall struct {
	sql  string
	args []any
}

type fakeExecer struct {
	calls []execCall
	err   error
}

func (f *fakeExecer) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.calls = append(f.calls, execCall{sql: sql, args: args})
	return pgconn.NewCommandTag("SELECT 1"), f.err
}

func testItem(platform string) *stac.Item {
	item := stac.NewItem("VFM_20120121T000000_be57214d", "viirs-1-day-composite-2012-01-21")
	item.Bbox = []float64{-180, -90, 180, 90}
	item.Properties["datetime"] = nil
	item.Properties["start_datetime"] = "2012-01-21T00:00:00Z"
	item.Properties["end_datetime"] = "2012-01-21T23:59:59Z"
	item.Properties["platform"] = platform
	return item
}

func TestPgSTACUpsertItem(t *testing.T) {
	db := &fakeExecer{}
	p := NewPgSTAC(db)

	item := testItem("NPP")
	require.NoError(t, p.UpsertItem(context.Background(), item))
	require.NoError(t, p.UpsertItem(context.Background(), item))

	require.Len(t, db.calls, 2)
	assert.Equal(t, upsertItemSQL, db.calls[0].sql)
	assert.Equal(t, db.calls[0], db.calls[1], "re-loading an unchanged item must issue the same statement")

	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(db.calls[0].args[0].(string)), &doc))
	assert.Equal(t, "VFM_20120121T000000_be57214d", doc["id"])
	assert.Equal(t, "viirs-1-day-composite-2012-01-21", doc["collection"])
	assert.Equal(t, "Feature", doc["type"])
}

func TestPgSTACUpsertCollection(t *testing.T) {
	db := &fakeExecer{}
	p := NewPgSTAC(db)

	c := stac.NewCollection("viirs-1-day-composite", "VIIRS", "desc")
	c.License = "CC0-1.0"
	require.NoError(t, p.UpsertCollection(context.Background(), c))

	require.Len(t, db.calls, 1)
	assert.Equal(t, upsertCollectionSQL, db.calls[0].sql)
	assert.Contains(t, db.calls[0].args[0], `"id":"viirs-1-day-composite"`)
}

func TestPgSTACErrors(t *testing.T) {
	db := &fakeExecer{err: errors.New("relation pgstac.items does not exist")}
	p := NewPgSTAC(db)

	err := p.UpsertItem(context.Background(), testItem("NPP"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "VFM_20120121T000000_be57214d")

	require.NoError(t, p.Close())
	assert.ErrorIs(t, p.UpsertItem(context.Background(), testItem("NPP")), ErrClosed)
}

func TestBleveReplacesWholeDocument(t *testing.T) {
	b, err := OpenBleve("")
	require.NoError(t, err)
	defer b.Close()

	ctx := context.Background()
	require.NoError(t, b.UpsertItem(ctx, testItem("NPP")))
	require.NoError(t, b.UpsertItem(ctx, testItem("NPP")))

	count, err := b.Count()
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	changed := testItem("N20")
	require.NoError(t, b.UpsertItem(ctx, changed))

	count, err = b.Count()
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	doc, err := b.Document(ItemDocID(changed.Collection, changed.Id))
	require.NoError(t, err)
	assert.Contains(t, doc, `"platform":"N20"`)
	assert.NotContains(t, doc, `"platform":"NPP"`)

	hits, err := b.Search("properties.platform:npp", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestBleveCollections(t *testing.T) {
	b, err := OpenBleve(filepath.Join(t.TempDir(), "catalog.bleve"))
	require.NoError(t, err)

	c := stac.NewCollection("floodlight-composite", "Floodlight", "VIIRS/ABI flood composite")
	c.Keywords = []string{"flood", "composite"}
	require.NoError(t, b.UpsertCollection(context.Background(), c))

	hits, err := b.Search("keywords:flood", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{CollectionDocID("floodlight-composite")}, hits)

	require.NoError(t, b.Close())
	assert.ErrorIs(t, b.Ping(context.Background()), ErrClosed)
}

func TestNoop(t *testing.T) {
	var idx Index = Noop{}
	assert.NoError(t, idx.UpsertItem(context.Background(), testItem("NPP")))
	assert.Equal(t, "none", idx.Name())
}
