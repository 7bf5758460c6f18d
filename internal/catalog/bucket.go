package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dylanlee/wncat/internal/identity"
	"github.com/dylanlee/wncat/internal/objstore"
	"github.com/dylanlee/wncat/internal/retry"
	"github.com/dylanlee/wncat/internal/stac"
)

// BucketState is where a day bucket stands in reconciliation.
//
//	UNKNOWN --probe: not found--> ABSENT --construct+link--> CREATED --write--> PERSISTED
//	UNKNOWN --probe: exists-----> PERSISTED
//
// A failed probe leaves the bucket UNKNOWN and aborts it.
type BucketState int

const (
	StateUnknown BucketState = iota
	StateAbsent
	StateCreated
	StatePersisted
)

func (s BucketState) String() string {
	switch s {
	case StateAbsent:
		return "ABSENT"
	case StateCreated:
		return "CREATED"
	case StatePersisted:
		return "PERSISTED"
	default:
		return "UNKNOWN"
	}
}

// bucket is one day of one collection. For collections without day
// sub-collections, doc is the top-level collection itself.
type bucket struct {
	cs    *collectionState
	day   time.Time
	state BucketState
	key   string
	doc   *stac.Collection
	// items are the ids already linked from doc.
	items  map[string]bool
	claims *identity.Claims
}

func (b *bucket) bucketed() bool {
	return b.doc != b.cs.doc
}

// openBucket resolves the bucket's collection document, creating and
// persisting it when the store positively reports it absent.
func (s *session) openBucket(ctx context.Context, cs *collectionState, day time.Time, logger *slog.Logger) (*bucket, error) {
	b := &bucket{cs: cs, day: day, claims: identity.NewClaims()}

	if !cs.cfg.Bucketed {
		b.key, b.doc = cs.key, cs.doc
		b.state = StatePersisted
		b.items = stac.ItemIDs(cs.doc.Links)
		return b, nil
	}

	b.key = objstore.SubCollectionKey(cs.cfg.ID, day)
	doc := &stac.Collection{}
	found, err := s.load(ctx, b.key, doc)
	if err != nil {
		return b, fmt.Errorf("sub-collection %s: %w", SubCollectionID(cs.cfg.ID, day), err)
	}
	if found {
		b.state = StatePersisted
		var dropped int
		if doc.Links, dropped = s.pruneItems(doc.Links); dropped > 0 {
			logger.Info("dropped links to purged items", "count", dropped)
		}
	} else {
		b.state = StateAbsent
		doc = stac.NewCollection(SubCollectionID(cs.cfg.ID, day), cs.cfg.Title, cs.cfg.Description)
	}
	applySubCollectionTemplate(doc, cs.cfg, day)
	b.doc = doc
	b.items = stac.ItemIDs(doc.Links)

	// Re-adding the child link also repairs a parent that lost it.
	cs.doc.Links = append(cs.doc.Links, &stac.Link{Rel: stac.RelChild, Href: s.store.URL(b.key), Type: stac.MediaTypeJSON})
	if b.state == StateAbsent {
		b.state = StateCreated
		logger.Info("creating sub-collection", "id", doc.Id)
	}

	// The sub-collection must reach the index before any of its items.
	if err := s.persistBucket(ctx, b); err != nil {
		return b, err
	}
	return b, nil
}

// persistBucket writes the bucket's collection, its parent, and the catalog,
// in that order. Unchanged documents are not rewritten.
func (s *session) persistBucket(ctx context.Context, b *bucket) error {
	if b.bucketed() {
		if err := s.persistCollection(ctx, b.key, b.doc, s.store.URL(b.cs.key)); err != nil {
			return err
		}
		b.state = StatePersisted
	}
	if err := s.persistCollection(ctx, b.cs.key, b.cs.doc, s.catalogURL()); err != nil {
		return err
	}
	return s.persistCatalog(ctx)
}

// syncBucket reconciles one day of a collection. The returned error is
// non-nil only for failures that leave the document tree unpersisted; asset
// failures are recorded in the result.
func (s *session) syncBucket(ctx context.Context, cs *collectionState, day time.Time) (*BucketResult, error) {
	started := s.clock.Now()
	logger := cs.logger.With("bucket", day.Format(time.DateOnly))
	result := &BucketResult{Collection: cs.cfg.ID, Day: day}
	defer func() {
		result.Elapsed = s.clock.Since(started)
		s.metrics.BucketDuration.WithLabelValues(cs.cfg.ID).Observe(result.Elapsed.Seconds())
		if result.Err != nil {
			logger.Error("bucket failed", "summary", result, "error", result.Err)
			return
		}
		logger.Info("bucket reconciled", "summary", result)
	}()

	sources, err := retry.DoWithResult(ctx, s.retry, "list "+cs.cfg.ID+" "+day.Format(time.DateOnly),
		func(ctx context.Context) ([]string, error) {
			return cs.lister.List(ctx, day)
		})
	if err != nil {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		// A listing failure costs this day only; the next run lists it again.
		result.Err = fmt.Errorf("list sources: %w", err)
		return result, nil
	}
	if len(sources) == 0 {
		logger.Debug("no source assets listed")
		return result, nil
	}

	b, err := s.openBucket(ctx, cs, day, logger)
	result.State = b.state
	if err != nil {
		result.Err = err
		return result, err
	}

	for _, src := range sources {
		ar, err := s.reconcileAsset(ctx, b, src, logger)
		result.Assets = append(result.Assets, ar)
		s.countOutcome(cs.cfg.ID, ar.Outcome)
		if err != nil {
			result.State = b.state
			result.Err = err
			return result, err
		}
	}
	result.State = b.state
	return result, nil
}

func (s *session) countOutcome(collectionID string, o Outcome) {
	switch o {
	case OutcomeCreated:
		s.metrics.ItemsCreated.WithLabelValues(collectionID).Inc()
	case OutcomeSkipped:
		s.metrics.ItemsSkipped.WithLabelValues(collectionID).Inc()
	case OutcomeOutsideRegion:
		s.metrics.ItemsOutsideRegion.WithLabelValues(collectionID).Inc()
	case OutcomeFailed:
		s.metrics.ItemsFailed.WithLabelValues(collectionID).Inc()
	}
}

// reconcileAsset publishes one source asset unless its bucket already links
// it. The returned error aborts the run; the asset's own failures are in the
// result.
func (s *session) reconcileAsset(ctx context.Context, b *bucket, src string, logger *slog.Logger) (AssetResult, error) {
	id := identity.Derive(src)
	ar := AssetResult{Source: src, ItemID: id.ID}
	logger = logger.With("item_id", id.ID, "source", src)

	if id.Fallback() {
		s.metrics.FallbackTimestamps.WithLabelValues(b.cs.cfg.ID).Inc()
		logger.Warn("no date in source filename, using fallback timestamp", "timestamp", stac.FormatTime(id.Start))
	}

	if err := b.claims.Claim(id.ID, src); err != nil {
		ar.Outcome, ar.Err = OutcomeFailed, err
		logger.Error("item id conflict, not publishing", "error", err)
		return ar, nil
	}

	if b.items[id.ID] {
		ar.Outcome = OutcomeSkipped
		logger.Debug("item already published")
		return ar, nil
	}

	item, degraded, err := s.buildItem(ctx, b, id, src, logger)
	ar.Degraded = degraded
	switch {
	case errors.Is(err, errOutsideRegion):
		ar.Outcome = OutcomeOutsideRegion
		logger.Info("raster outside configured regions, skipping")
		return ar, nil
	case err != nil:
		ar.Outcome, ar.Err = OutcomeFailed, err
		if ctx.Err() != nil {
			return ar, ctx.Err()
		}
		logger.Error("asset processing failed", "error", err)
		return ar, nil
	}

	href, err := s.publishItem(ctx, b, item, logger)
	if err != nil {
		ar.Outcome, ar.Err = OutcomeFailed, err
		if ctx.Err() != nil {
			return ar, ctx.Err()
		}
		logger.Error("item not published", "error", err)
		return ar, nil
	}

	// The item is live in both stores; its ancestors must follow.
	b.doc.Links, _ = stac.AddItemLink(b.doc.Links, href)
	b.items[id.ID] = true
	if err := s.persistBucket(ctx, b); err != nil {
		ar.Outcome, ar.Err = OutcomeFailed, err
		return ar, err
	}

	ar.Outcome = OutcomeCreated
	if len(degraded) > 0 {
		logger.Warn("item published without some assets", "missing", degraded)
	} else {
		logger.Info("item published")
	}
	s.announce(ctx, item, href, src, logger)
	return ar, nil
}
