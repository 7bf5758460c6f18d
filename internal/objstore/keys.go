package objstore

import (
	"path"
	"time"
)

// CatalogKey is the key of the root catalog document.
const CatalogKey = "catalog.json"

// Prefixes of the derived artifact trees, used by retention rules.
const (
	ThumbnailsPrefix  = "thumbnails/"
	ItemsPrefix       = "items/"
	OverviewsPrefix   = "overviews/"
	CollectionsPrefix = "collections/"
)

// CollectionKey is the key of a top-level collection document.
func CollectionKey(collectionID string) string {
	return CollectionsPrefix + collectionID + ".json"
}

// SubCollectionKey is the key of the per-day child of a bucketed collection.
func SubCollectionKey(collectionID string, day time.Time) string {
	return CollectionsPrefix + path.Join(collectionID, day.UTC().Format(time.DateOnly), "collection.json")
}

// ItemKey is the key of an item document.
func ItemKey(collectionID string, day time.Time, itemID string) string {
	return ItemsPrefix + path.Join(collectionID, day.UTC().Format("2006/01/02"), itemID+".json")
}

// ThumbnailKey is the key of an item's PNG thumbnail. base is the source
// filename without extension.
func ThumbnailKey(collectionID string, day time.Time, base string) string {
	return ThumbnailsPrefix + path.Join(collectionID, day.UTC().Format(time.DateOnly), base+".png")
}

// OverviewKey is the key of an item's cloud-optimized overview.
func OverviewKey(collectionID string, day time.Time, filename string) string {
	return OverviewsPrefix + path.Join(collectionID, day.UTC().Format(time.DateOnly), filename)
}
