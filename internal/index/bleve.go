package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/dylanlee/wncat/internal/stac"
)

// Bleve keeps a local full-text index of the catalog. Documents are keyed
// "collection/<id>" and "item/<collection>/<id>".
type Bleve struct {
	index  bleve.Index
	logger *slog.Logger
}

func buildMapping() mapping.IndexMapping {
	docMapping := bleve.NewDocumentMapping()

	keyword := bleve.NewKeywordFieldMapping()
	docMapping.AddFieldMappingsAt("kind", keyword)
	docMapping.AddFieldMappingsAt("id", keyword)
	docMapping.AddFieldMappingsAt("collection", keyword)

	datetime := bleve.NewDateTimeFieldMapping()
	docMapping.AddFieldMappingsAt("start_datetime", datetime)
	docMapping.AddFieldMappingsAt("end_datetime", datetime)

	// The raw document is stored for retrieval only.
	raw := bleve.NewTextFieldMapping()
	raw.Index = false
	raw.Store = true
	docMapping.AddFieldMappingsAt("document", raw)

	m := bleve.NewIndexMapping()
	m.DefaultMapping = docMapping
	return m
}

// OpenBleve opens the index at path, creating it when missing. An empty path
// keeps the index in memory.
func OpenBleve(path string) (*Bleve, error) {
	var (
		idx bleve.Index
		err error
	)
	switch {
	case path == "":
		idx, err = bleve.NewMemOnly(buildMapping())
	default:
		if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
			idx, err = bleve.New(path, buildMapping())
		} else {
			idx, err = bleve.Open(path)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("open bleve index %q: %w", path, err)
	}
	return &Bleve{index: idx, logger: slog.Default()}, nil
}

// WithLogger sets a custom logger for the index.
func (b *Bleve) WithLogger(logger *slog.Logger) *Bleve {
	b.logger = logger
	return b
}

// CollectionDocID and ItemDocID name documents in the index.
func CollectionDocID(collectionID string) string { return "collection/" + collectionID }
func ItemDocID(collectionID, itemID string) string {
	return "item/" + collectionID + "/" + itemID
}

func (b *Bleve) UpsertCollection(_ context.Context, collection *stac.Collection) error {
	if b.index == nil {
		return ErrClosed
	}
	raw, err := json.Marshal(collection)
	if err != nil {
		return fmt.Errorf("encode collection %s: %w", collection.Id, err)
	}
	doc := map[string]any{
		"kind":        "collection",
		"id":          collection.Id,
		"title":       collection.Title,
		"description": collection.Description,
		"keywords":    collection.Keywords,
		"license":     collection.License,
		"document":    string(raw),
	}
	if err := b.index.Index(CollectionDocID(collection.Id), doc); err != nil {
		return fmt.Errorf("index collection %s: %w", collection.Id, err)
	}
	return nil
}

func (b *Bleve) UpsertItem(_ context.Context, item *stac.Item) error {
	if b.index == nil {
		return ErrClosed
	}
	raw, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("encode item %s: %w", item.Id, err)
	}
	doc := map[string]any{
		"kind":       "item",
		"id":         item.Id,
		"collection": item.Collection,
		"properties": withoutNulls(item.Properties),
		"bbox":       item.Bbox,
		"document":   string(raw),
	}
	for _, field := range []string{"datetime", "start_datetime", "end_datetime"} {
		if v, ok := item.Properties[field]; ok && v != nil {
			doc[field] = v
		}
	}
	if err := b.index.Index(ItemDocID(item.Collection, item.Id), doc); err != nil {
		return fmt.Errorf("index item %s/%s: %w", item.Collection, item.Id, err)
	}
	return nil
}

func withoutNulls(props map[string]any) map[string]any {
	out := make(map[string]any, len(props))
	for k, v := range props {
		if v != nil {
			out[k] = v
		}
	}
	return out
}

// Document returns the stored JSON of a document, or "" if absent.
func (b *Bleve) Document(docID string) (string, error) {
	if b.index == nil {
		return "", ErrClosed
	}
	req := bleve.NewSearchRequest(bleve.NewDocIDQuery([]string{docID}))
	req.Fields = []string{"document"}
	res, err := b.index.Search(req)
	if err != nil {
		return "", fmt.Errorf("lookup %s: %w", docID, err)
	}
	if len(res.Hits) == 0 {
		return "", nil
	}
	doc, _ := res.Hits[0].Fields["document"].(string)
	return doc, nil
}

// Count returns the number of indexed documents.
func (b *Bleve) Count() (uint64, error) {
	if b.index == nil {
		return 0, ErrClosed
	}
	return b.index.DocCount()
}

// Search runs a query-string search and returns matching document ids.
func (b *Bleve) Search(query string, limit int) ([]string, error) {
	if b.index == nil {
		return nil, ErrClosed
	}
	if limit <= 0 {
		limit = 25
	}
	req := bleve.NewSearchRequestOptions(bleve.NewQueryStringQuery(query), limit, 0, false)
	res, err := b.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}
	ids := make([]string, 0, len(res.Hits))
	for _, hit := range res.Hits {
		ids = append(ids, hit.ID)
	}
	return ids, nil
}

func (b *Bleve) Ping(context.Context) error {
	if b.index == nil {
		return ErrClosed
	}
	return nil
}

func (b *Bleve) Close() error {
	if b.index == nil {
		return nil
	}
	err := b.index.Close()
	b.index = nil
	return err
}

func (b *Bleve) Name() string { return "bleve" }
