// Package stac provides STAC document types and utilities, wrapping
// planetlabs/go-stac for core types and adding link and validation helpers.
package stac

import (
	"strings"
	"time"

	gostac "github.com/planetlabs/go-stac"
)

// Version is the STAC version every document is written with.
const Version = "1.0.0"

// Re-export core types from planetlabs/go-stac for convenience
type (
	Item           = gostac.Item
	Collection     = gostac.Collection
	Catalog        = gostac.Catalog
	Asset          = gostac.Asset
	Link           = gostac.Link
	Provider       = gostac.Provider
	Extent         = gostac.Extent
	SpatialExtent  = gostac.SpatialExtent
	TemporalExtent = gostac.TemporalExtent
)

// NewItem creates a new STAC Item with the given ID and collection.
func NewItem(id, collection string) *gostac.Item {
	return &gostac.Item{
		Version:    Version,
		Id:         id,
		Collection: collection,
		Properties: make(map[string]any),
		Assets:     make(map[string]*gostac.Asset),
		Links:      make([]*gostac.Link, 0),
	}
}

// NewCollection creates a new STAC Collection with the given ID.
func NewCollection(id, title, description string) *gostac.Collection {
	return &gostac.Collection{
		Version:     Version,
		Id:          id,
		Title:       title,
		Description: description,
		Links:       make([]*gostac.Link, 0),
	}
}

// NewCatalog creates a new root STAC Catalog.
func NewCatalog(id, title, description string) *gostac.Catalog {
	return &gostac.Catalog{
		Version:     Version,
		Id:          id,
		Title:       title,
		Description: description,
		Links:       make([]*gostac.Link, 0),
	}
}

// NewOpenExtent builds an extent with the given boxes starting at start and
// with an open ("ongoing") end.
func NewOpenExtent(bbox [][]float64, start time.Time) *gostac.Extent {
	return &gostac.Extent{
		Spatial:  &gostac.SpatialExtent{Bbox: bbox},
		Temporal: &gostac.TemporalExtent{Interval: [][]any{{FormatTime(start), nil}}},
	}
}

// NewDayExtent builds an extent covering one UTC day.
func NewDayExtent(bbox [][]float64, day time.Time) *gostac.Extent {
	start := day.UTC().Truncate(24 * time.Hour)
	end := start.Add(24*time.Hour - time.Second)
	return &gostac.Extent{
		Spatial:  &gostac.SpatialExtent{Bbox: bbox},
		Temporal: &gostac.TemporalExtent{Interval: [][]any{{FormatTime(start), FormatTime(end)}}},
	}
}

// FormatTime formats a time.Time as RFC3339 for STAC.
// STAC uses RFC3339 format: "2023-06-15T14:00:00Z"
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// Media types used for links and assets.
const (
	MediaTypeJSON    = "application/json"
	MediaTypeGeoJSON = "application/geo+json"
	MediaTypeHTML    = "text/html"
	MediaTypePNG     = "image/png"
	MediaTypeGeoTIFF = "image/tiff; application=geotiff"
	MediaTypeCOG     = "image/tiff; application=geotiff; profile=cloud-optimized"
	MediaTypeNetCDF  = "application/netcdf"
)

// MediaTypeFromURL attempts to determine MIME type from URL
func MediaTypeFromURL(url string) string {
	url = strings.ToLower(url)
	switch {
	case strings.HasSuffix(url, ".tif"), strings.HasSuffix(url, ".tiff"):
		return MediaTypeGeoTIFF
	case strings.HasSuffix(url, ".png"):
		return MediaTypePNG
	case strings.HasSuffix(url, ".jpg"), strings.HasSuffix(url, ".jpeg"):
		return "image/jpeg"
	case strings.HasSuffix(url, ".json"):
		return MediaTypeJSON
	case strings.HasSuffix(url, ".nc"), strings.HasSuffix(url, ".nc4"):
		return MediaTypeNetCDF
	case strings.HasSuffix(url, ".h5"), strings.HasSuffix(url, ".hdf5"):
		return "application/x-hdf5"
	case strings.HasSuffix(url, ".zip"):
		return "application/zip"
	default:
		return "application/octet-stream"
	}
}

// STAC extension URIs
const (
	ExtensionProjection = "https://stac-extensions.github.io/projection/v1.1.0/schema.json"
	ExtensionEO         = "https://stac-extensions.github.io/eo/v1.1.0/schema.json"
)

// declaredExtension only declares an extension URI in stac_extensions. Its
// fields are written directly into the document's properties.
type declaredExtension string

func (e declaredExtension) URI() string                { return string(e) }
func (e declaredExtension) Encode(map[string]any) error { return nil }
func (e declaredExtension) Decode(map[string]any) error { return nil }

// Extensions converts extension URIs into go-stac declarations, dropping
// duplicates.
func Extensions(uris ...string) []gostac.Extension {
	seen := make(map[string]bool, len(uris))
	exts := make([]gostac.Extension, 0, len(uris))
	for _, uri := range uris {
		if uri == "" || seen[uri] {
			continue
		}
		seen[uri] = true
		exts = append(exts, declaredExtension(uri))
	}
	return exts
}
