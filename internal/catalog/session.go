package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dylanlee/wncat/internal/config"
	"github.com/dylanlee/wncat/internal/objstore"
	"github.com/dylanlee/wncat/internal/retry"
	"github.com/dylanlee/wncat/internal/source"
	"github.com/dylanlee/wncat/internal/stac"
)

// session is the state of one run: the loaded catalog plus what this run
// knows to be in each store. Nothing is carried over between runs.
type session struct {
	*Reconciler

	runID   string
	logger  *slog.Logger
	catalog *stac.Catalog

	// persisted holds the canonical JSON of each document last read from or
	// written to the store under this key.
	persisted map[string][]byte
	// indexed records collections upserted into the index during this run.
	indexed map[string]bool
}

// collectionState is a top-level collection opened by the session.
type collectionState struct {
	cfg    *config.CollectionConfig
	key    string
	doc    *stac.Collection
	lister source.Lister
	logger *slog.Logger
}

func (s *session) catalogURL() string {
	return s.store.URL(objstore.CatalogKey)
}

// load reads the document at key into doc. It reports false only when the
// store positively says the key does not exist; an ambiguous probe is an
// error.
func (s *session) load(ctx context.Context, key string, doc any) (bool, error) {
	presence, err := s.store.Probe(ctx, key)
	switch presence {
	case objstore.Exists:
	case objstore.NotFound:
		return false, nil
	default:
		if err == nil {
			err = errors.New("store returned no answer")
		}
		return false, fmt.Errorf("probe %s: %w", key, err)
	}

	data, err := retry.DoWithResult(ctx, s.retry, "get "+key, func(ctx context.Context) ([]byte, error) {
		return s.store.Get(ctx, key)
	})
	if err != nil {
		return false, fmt.Errorf("load %s: %w", key, err)
	}
	if err := json.Unmarshal(data, doc); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	if canon, err := canonicalJSON(data); err == nil {
		s.persisted[key] = canon
	}
	return true, nil
}

// persist writes doc to key unless the store already holds an equivalent
// document. It reports whether a write happened.
func (s *session) persist(ctx context.Context, kind stac.DocumentKind, key, id string, doc any, validate func() error) (bool, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return false, fmt.Errorf("encode %s %q: %w", kind, id, err)
	}
	canon, err := canonicalJSON(data)
	if err != nil {
		return false, fmt.Errorf("encode %s %q: %w", kind, id, err)
	}
	if bytes.Equal(canon, s.persisted[key]) {
		return false, nil
	}

	if s.validator != nil && !s.admit(kind, id, validate(), s.logger) {
		return false, fmt.Errorf("%s %q rejected by strict validation", kind, id)
	}

	if err := objstore.PutWithRetry(ctx, s.store, s.retry, key, data, objstore.ContentTypeJSON); err != nil {
		return false, fmt.Errorf("persist %s %q: %w", kind, id, err)
	}
	s.persisted[key] = canon
	s.logger.Debug("document written", "kind", kind, "id", id, "key", key)
	return true, nil
}

// admit applies the validation policy to a validation result and reports
// whether the document may be published.
func (s *session) admit(kind stac.DocumentKind, id string, err error, logger *slog.Logger) bool {
	if err == nil {
		return true
	}
	if !errors.Is(err, stac.ErrInvalidDocument) {
		// A schema that cannot be loaded says nothing about the document.
		logger.Warn("validation unavailable", "kind", kind, "id", id, "error", err)
		return true
	}

	s.metrics.InvalidDocuments.WithLabelValues(string(kind)).Inc()
	if s.opts.StrictValidation {
		logger.Error("document failed validation, not publishing", "kind", kind, "id", id, "error", err)
		return false
	}
	logger.Warn("document failed validation, publishing anyway", "kind", kind, "id", id, "error", err)
	return true
}

func (s *session) loadCatalog(ctx context.Context) error {
	catalog := &stac.Catalog{}
	found, err := s.load(ctx, objstore.CatalogKey, catalog)
	if err != nil {
		return fmt.Errorf("catalog: %w", err)
	}
	if !found {
		s.logger.Info("creating catalog", "id", s.opts.Catalog.ID)
		catalog = stac.NewCatalog(s.opts.Catalog.ID, s.opts.Catalog.Title, s.opts.Catalog.Description)
	}
	applyCatalogTemplate(catalog, s.opts.Catalog)
	s.catalog = catalog
	return s.persistCatalog(ctx)
}

// persistCatalog relinks and writes the catalog. The catalog is its own
// root and parent.
func (s *session) persistCatalog(ctx context.Context) error {
	self := s.catalogURL()
	s.catalog.Links = stac.Relink(s.catalog.Links, stac.Structure{
		Self:     self,
		Root:     self,
		Parent:   self,
		Children: stac.Hrefs(s.catalog.Links, stac.RelChild),
	})
	_, err := s.persist(ctx, stac.KindCatalog, objstore.CatalogKey, s.catalog.Id, s.catalog, func() error {
		return s.validator.ValidateCatalog(s.catalog)
	})
	return err
}

// openCollection loads or creates a top-level collection, links it into the
// catalog, and persists both before any of its items are touched.
func (s *session) openCollection(ctx context.Context, cc *config.CollectionConfig) (*collectionState, error) {
	logger := s.logger.With("collection", cc.ID)
	key := objstore.CollectionKey(cc.ID)

	doc := &stac.Collection{}
	found, err := s.load(ctx, key, doc)
	if err != nil {
		return nil, fmt.Errorf("collection %s: %w", cc.ID, err)
	}
	if found {
		logger.Debug("collection loaded",
			"children", stac.CountRel(doc.Links, stac.RelChild),
			"items", stac.CountRel(doc.Links, stac.RelItem),
		)
		if err := s.pruneCollection(ctx, cc.ID, key, doc, logger); err != nil {
			return nil, fmt.Errorf("collection %s: %w", cc.ID, err)
		}
	} else {
		logger.Info("creating collection")
		doc = stac.NewCollection(cc.ID, cc.Title, cc.Description)
	}
	applyCollectionTemplate(doc, cc)

	lister, err := s.sources(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("collection %s source: %w", cc.ID, err)
	}

	cs := &collectionState{cfg: cc, key: key, doc: doc, lister: lister, logger: logger}
	if err := s.persistCollection(ctx, key, doc, s.catalogURL()); err != nil {
		return nil, err
	}

	s.catalog.Links = append(s.catalog.Links, &stac.Link{Rel: stac.RelChild, Href: s.store.URL(key), Type: stac.MediaTypeJSON})
	if err := s.persistCatalog(ctx); err != nil {
		return nil, err
	}
	return cs, nil
}

// persistCollection relinks a collection under parent and writes it to the
// store, then the index. The index is written at least once per run even
// when the stored document is unchanged, so a failed index write from an
// earlier run is repaired.
func (s *session) persistCollection(ctx context.Context, key string, doc *stac.Collection, parent string) error {
	doc.Links = stac.Relink(doc.Links, stac.Structure{
		Self:     s.store.URL(key),
		Root:     s.catalogURL(),
		Parent:   parent,
		Children: stac.Hrefs(doc.Links, stac.RelChild),
	})

	changed, err := s.persist(ctx, stac.KindCollection, key, doc.Id, doc, func() error {
		return s.validator.ValidateCollection(doc)
	})
	if err != nil {
		return err
	}

	if changed || !s.indexed[key] {
		if err := s.index.UpsertCollection(ctx, doc); err != nil {
			return fmt.Errorf("index collection %q: %w", doc.Id, err)
		}
		s.indexed[key] = true
	}
	return nil
}

// canonicalJSON re-encodes data with sorted keys so documents can be
// compared regardless of who wrote them.
func canonicalJSON(data []byte) ([]byte, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return json.Marshal(v)
}
