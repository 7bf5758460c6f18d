package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dylanlee/wncat/internal/identity"
	"github.com/dylanlee/wncat/internal/objstore"
	"github.com/dylanlee/wncat/internal/stac"
)

// Forget marks item documents deleted outside the reconciler, for example by
// retention. The next run drops every link to them. Keys stay marked until a
// run succeeds.
func (r *Reconciler) Forget(keys ...string) {
	if r.forgotten == nil {
		r.forgotten = make(map[string]bool, len(keys))
	}
	for _, key := range keys {
		r.forgotten[key] = true
	}
}

func (r *Reconciler) itemsCutoff() time.Time {
	if r.opts.ItemsCutoff.IsZero() {
		return time.Time{}
	}
	return identity.Day(r.opts.ItemsCutoff)
}

// keyOf maps a published href back to its store key.
func (s *session) keyOf(href string) (string, bool) {
	return strings.CutPrefix(href, s.store.URL(""))
}

// retiredItem reports whether the item document behind href has been purged.
// Item keys are dated the same way retention dates them.
func (s *session) retiredItem(href string) bool {
	key, ok := s.keyOf(href)
	if !ok {
		return false
	}
	if s.forgotten[key] {
		return true
	}
	cutoff := s.itemsCutoff()
	if cutoff.IsZero() || !strings.HasPrefix(key, objstore.ItemsPrefix) {
		return false
	}
	date, ok := identity.DateInKey(key)
	return ok && date.Before(cutoff)
}

// pruneItems drops item links to purged documents.
func (s *session) pruneItems(links []*stac.Link) ([]*stac.Link, int) {
	kept := links[:0:0]
	dropped := 0
	for _, link := range links {
		if link != nil && link.Rel == stac.RelItem && s.retiredItem(link.Href) {
			dropped++
			continue
		}
		kept = append(kept, link)
	}
	return kept, dropped
}

// staleChild reports whether href is a day sub-collection that may link
// purged items: one for a day before the items cutoff, or one holding a
// forgotten key.
func (s *session) staleChild(collectionID, href string) bool {
	key, ok := s.keyOf(href)
	if !ok {
		return false
	}
	rest, ok := strings.CutPrefix(key, objstore.CollectionsPrefix+collectionID+"/")
	if !ok {
		return false
	}
	dir, _, _ := strings.Cut(rest, "/")
	day, err := time.ParseInLocation(time.DateOnly, dir, time.UTC)
	if err != nil {
		return false
	}
	if cutoff := s.itemsCutoff(); !cutoff.IsZero() && day.Before(cutoff) {
		return true
	}
	items := strings.TrimSuffix(objstore.ItemKey(collectionID, day, "_"), "_.json")
	for forgotten := range s.forgotten {
		if strings.HasPrefix(forgotten, items) {
			return true
		}
	}
	return false
}

// pruneCollection removes links into the purged part of a loaded collection:
// item links to deleted items, and child links to day sub-collections left
// with no items. A surviving stale sub-collection is rewritten without its
// dead links.
func (s *session) pruneCollection(ctx context.Context, collectionID, key string, doc *stac.Collection, logger *slog.Logger) error {
	var dropped int
	doc.Links, dropped = s.pruneItems(doc.Links)
	if dropped > 0 {
		logger.Info("dropped links to purged items", "count", dropped)
	}

	kept := doc.Links[:0:0]
	for _, link := range doc.Links {
		if link == nil || link.Rel != stac.RelChild || !s.staleChild(collectionID, link.Href) {
			kept = append(kept, link)
			continue
		}
		live, err := s.pruneSubCollection(ctx, key, link.Href, logger)
		if err != nil {
			return err
		}
		if live {
			kept = append(kept, link)
		}
	}
	doc.Links = kept
	return nil
}

// pruneSubCollection drops purged item links from the sub-collection at href
// and reports whether it still links any item.
func (s *session) pruneSubCollection(ctx context.Context, parentKey, href string, logger *slog.Logger) (bool, error) {
	key, _ := s.keyOf(href)
	sub := &stac.Collection{}
	found, err := s.load(ctx, key, sub)
	if err != nil {
		return false, fmt.Errorf("sub-collection %s: %w", key, err)
	}
	if !found {
		logger.Info("dropped link to missing sub-collection", "key", key)
		return false, nil
	}

	var dropped int
	sub.Links, dropped = s.pruneItems(sub.Links)
	if dropped > 0 {
		if err := s.persistCollection(ctx, key, sub, s.store.URL(parentKey)); err != nil {
			return false, err
		}
	}
	if stac.CountRel(sub.Links, stac.RelItem) > 0 {
		return true, nil
	}
	logger.Info("retired purged sub-collection", "id", sub.Id, "items_dropped", dropped)
	return false, nil
}
