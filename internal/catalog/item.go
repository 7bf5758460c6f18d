package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"

	"github.com/dylanlee/wncat/internal/config"
	"github.com/dylanlee/wncat/internal/identity"
	"github.com/dylanlee/wncat/internal/notify"
	"github.com/dylanlee/wncat/internal/objstore"
	"github.com/dylanlee/wncat/internal/raster"
	"github.com/dylanlee/wncat/internal/stac"
	"github.com/dylanlee/wncat/pkg/geojson"
)

// Asset keys of a published item.
const (
	AssetThumbnail = "thumbnail"
	AssetImage     = "image"
	AssetData      = "data"
)

var errOutsideRegion = errors.New("raster outside configured regions")

// buildItem downloads src into a scratch directory, describes it, and
// uploads its derived assets. The scratch directory is removed before
// returning on every path. The returned slice names derived assets that
// could not be attached.
func (s *session) buildItem(ctx context.Context, b *bucket, id identity.Identity, src string, logger *slog.Logger) (*stac.Item, []string, error) {
	dir, err := os.MkdirTemp(s.opts.WorkDir, "wncat-")
	if err != nil {
		return nil, nil, fmt.Errorf("create scratch dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			logger.Warn("failed to remove scratch dir", "dir", dir, "error", err)
		}
	}()

	cfg := b.cs.cfg
	local := filepath.Join(dir, id.Filename)
	if err := s.fetcher.Fetch(ctx, src, local); err != nil {
		return nil, nil, fmt.Errorf("download: %w", err)
	}

	md, err := s.extractor.Extract(local)
	if err != nil {
		return nil, nil, fmt.Errorf("extract %s: %w", id.Filename, err)
	}

	if !inRegions(cfg.Regions, md.BBox()) {
		return nil, nil, errOutsideRegion
	}

	item := newItem(cfg, b.doc.Id, id, md)
	for _, name := range slices.Sorted(maps.Keys(cfg.CoverSentinels)) {
		if pct := s.extractor.CoveragePercent(local, cfg.CoverSentinels[name]); pct != raster.CoverageUnavailable {
			item.Properties[name+"_cover"] = pct
		}
	}

	var degraded []string

	thumbPath := filepath.Join(dir, id.Base()+".png")
	thumbKey := objstore.ThumbnailKey(cfg.ID, b.day, id.Base())
	href, err := s.derive(ctx, "thumbnail", local, thumbPath, thumbKey, stac.MediaTypePNG, s.deriver.Thumbnail, logger)
	switch {
	case err != nil:
		return nil, nil, err
	case href == "":
		degraded = append(degraded, AssetThumbnail)
	default:
		item.Assets[AssetThumbnail] = &stac.Asset{
			Href:  href,
			Type:  stac.MediaTypePNG,
			Title: cfg.AssetTitles.Thumbnail,
			Roles: []string{"thumbnail"},
		}
	}

	overviewPath := filepath.Join(dir, "cog-"+id.Filename)
	overviewKey := objstore.OverviewKey(cfg.ID, b.day, id.Filename)
	href, err = s.derive(ctx, "overview", local, overviewPath, overviewKey, stac.MediaTypeCOG, s.deriver.Overview, logger)
	switch {
	case err != nil:
		return nil, nil, err
	case href == "":
		degraded = append(degraded, AssetImage)
	default:
		item.Assets[AssetImage] = &stac.Asset{
			Href:  href,
			Type:  stac.MediaTypeCOG,
			Title: cfg.AssetTitles.Image,
			Roles: []string{"visual"},
		}
	}

	item.Assets[AssetData] = dataAsset(cfg, src)
	return item, degraded, nil
}

// derive renders one derived asset and uploads it. An empty href with a nil
// error means the asset is left out: rendering failed, or the store had no
// credentials. Any other upload failure aborts the asset.
func (s *session) derive(ctx context.Context, name, src, dest, key, contentType string, render func(src, dest string) error, logger *slog.Logger) (string, error) {
	if err := render(src, dest); err != nil {
		logger.Warn("failed to derive asset", "asset", name, "error", err)
		return "", nil
	}
	href, err := objstore.UploadFileWithRetry(ctx, s.store, s.retry, dest, key, contentType)
	if errors.Is(err, objstore.ErrMissingCredentials) {
		logger.Error("no store credentials, publishing without asset", "asset", name, "key", key, "error", err)
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return href, nil
}

func dataAsset(cfg *config.CollectionConfig, src string) *stac.Asset {
	href := cfg.DataLink.Href(src)
	mediaType := stac.MediaTypeFromURL(href)
	if cfg.DataLink != nil && cfg.DataLink.Type != "" {
		mediaType = cfg.DataLink.Type
	}
	return &stac.Asset{
		Href:  href,
		Type:  mediaType,
		Title: cfg.AssetTitles.Data,
		Roles: []string{"data"},
	}
}

// newItem builds an item without assets or links.
func newItem(cfg *config.CollectionConfig, collectionID string, id identity.Identity, md *raster.Metadata) *stac.Item {
	item := stac.NewItem(id.ID, collectionID)
	item.Geometry = md.Footprint
	item.Bbox = slices.Clone(md.BBox())

	maps.Copy(item.Properties, cfg.ItemProperties)
	item.Properties["start_datetime"] = stac.FormatTime(id.Start)
	item.Properties["end_datetime"] = stac.FormatTime(id.End)
	// STAC requires datetime to be null when a range is given.
	item.Properties["datetime"] = nil

	extensions := slices.Clone(cfg.Extensions)
	if md.EPSG > 0 {
		item.Properties["proj:epsg"] = md.EPSG
		extensions = append(extensions, stac.ExtensionProjection)
	}
	if md.CRS != "" {
		item.Properties["crs"] = md.CRS
	}
	if p := providers(cfg); len(p) > 0 {
		item.Properties["providers"] = p
	}
	item.Extensions = stac.Extensions(extensions...)
	return item
}

// inRegions reports whether bbox intersects one of regions. No regions means
// everywhere.
func inRegions(regions []config.Region, bbox []float64) bool {
	if len(regions) == 0 {
		return true
	}
	for _, r := range regions {
		if geojson.BBoxIntersects(r.BBox, bbox) {
			return true
		}
	}
	return false
}

// publishItem links, validates and writes an item to the store and then the
// index. It returns the item's public href.
func (s *session) publishItem(ctx context.Context, b *bucket, item *stac.Item, logger *slog.Logger) (string, error) {
	key := objstore.ItemKey(b.cs.cfg.ID, b.day, item.Id)
	href := s.store.URL(key)
	bucketURL := s.store.URL(b.key)
	item.Links = append(item.Links,
		&stac.Link{Rel: stac.RelSelf, Href: href, Type: stac.MediaTypeGeoJSON},
		&stac.Link{Rel: stac.RelRoot, Href: s.catalogURL(), Type: stac.MediaTypeJSON},
		&stac.Link{Rel: stac.RelParent, Href: bucketURL, Type: stac.MediaTypeJSON},
		&stac.Link{Rel: stac.RelCollection, Href: bucketURL, Type: stac.MediaTypeJSON},
	)

	if s.validator != nil && !s.admit(stac.KindItem, item.Id, s.validator.ValidateItem(item), logger) {
		return "", fmt.Errorf("item %q rejected by strict validation", item.Id)
	}

	data, err := json.Marshal(item)
	if err != nil {
		return "", fmt.Errorf("encode item %q: %w", item.Id, err)
	}
	if err := objstore.PutWithRetry(ctx, s.store, s.retry, key, data, objstore.ContentTypeJSON); err != nil {
		return "", fmt.Errorf("persist item %q: %w", item.Id, err)
	}
	// Until the index has the item it stays unlinked, so the next run
	// rebuilds and re-upserts it.
	if err := s.index.UpsertItem(ctx, item); err != nil {
		return "", fmt.Errorf("index item %q: %w", item.Id, err)
	}
	return href, nil
}

// announce publishes an item event. Delivery failures are logged only.
func (s *session) announce(ctx context.Context, item *stac.Item, href, src string, logger *slog.Logger) {
	if _, ok := s.publisher.(notify.Noop); ok {
		return
	}
	event := notify.Event{
		Type:        notify.EventItemPublished,
		RunID:       s.runID,
		Collection:  item.Collection,
		ItemID:      item.Id,
		Href:        href,
		Source:      src,
		PublishedAt: s.clock.Now().UTC(),
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		logger.Warn("failed to publish catalog event", "error", err)
		return
	}
	s.metrics.EventsPublished.Inc()
}
