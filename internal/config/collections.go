package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ErrCollectionNotFound is returned when a requested collection is not registered.
var ErrCollectionNotFound = errors.New("collection not found")

// CollectionConfig describes one published collection and how its items are
// built. This is typically loaded from JSON files in the collections directory.
type CollectionConfig struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Keywords    []string   `json:"keywords,omitempty"`
	License     string     `json:"license"`
	Providers   []Provider `json:"providers,omitempty"`
	Links       []Link     `json:"links,omitempty"`
	// Extensions are STAC extension URIs declared on the collection and its items.
	Extensions []string `json:"stac_extensions,omitempty"`
	// BBox defaults to the whole globe.
	BBox      [][]float64 `json:"bbox,omitempty"`
	StartDate string      `json:"start_date"`
	// Bucketed collections get one sub-collection per UTC day.
	Bucketed bool `json:"bucketed"`

	ItemProperties map[string]any `json:"item_properties,omitempty"`
	// CoverSentinels maps a cover name (e.g. "cloud") to the pixel value counted.
	CoverSentinels map[string]float64 `json:"cover_sentinels,omitempty"`
	// Regions limits publishing to rasters intersecting one of these WGS84 boxes.
	Regions     []Region    `json:"regions,omitempty"`
	AssetTitles AssetTitles `json:"asset_titles"`
	DataLink    *DataLink   `json:"data_link,omitempty"`

	Source *SourceConfig `json:"source,omitempty"`

	start time.Time
}

// Provider represents a data provider in a STAC collection.
type Provider struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Roles       []string `json:"roles,omitempty"`
	URL         string   `json:"url,omitempty"`
}

// Link is an extra (non-structural) link attached to the collection.
type Link struct {
	Rel   string `json:"rel"`
	Href  string `json:"href"`
	Type  string `json:"type,omitempty"`
	Title string `json:"title,omitempty"`
}

// Region is a named WGS84 bounding box.
type Region struct {
	Name string    `json:"name"`
	BBox []float64 `json:"bbox"`
}

// AssetTitles are the human titles of the three item assets.
type AssetTitles struct {
	Thumbnail string `json:"thumbnail,omitempty"`
	Image     string `json:"image,omitempty"`
	Data      string `json:"data,omitempty"`
}

// DataLink rewrites the source URL into the "data" asset href, e.g. a sibling
// netCDF file next to each GeoTIFF.
type DataLink struct {
	Replace string `json:"replace"`
	With    string `json:"with"`
	Type    string `json:"type,omitempty"`
}

// Href applies the rewrite to a source URL.
func (d *DataLink) Href(sourceURL string) string {
	if d == nil || d.Replace == "" {
		return sourceURL
	}
	return strings.ReplaceAll(sourceURL, d.Replace, d.With)
}

// Start returns the first day of data as a UTC midnight.
func (c *CollectionConfig) Start() time.Time {
	return c.start
}

// SpatialBBox returns the configured spatial extent, or the whole globe.
func (c *CollectionConfig) SpatialBBox() [][]float64 {
	if len(c.BBox) == 0 {
		return [][]float64{{-180, -90, 180, 90}}
	}
	return c.BBox
}

// CollectionRegistry holds all loaded collection configurations indexed by ID.
type CollectionRegistry struct {
	collections map[string]*CollectionConfig
}

// NewCollectionRegistry creates a new empty collection registry.
func NewCollectionRegistry() *CollectionRegistry {
	return &CollectionRegistry{
		collections: make(map[string]*CollectionConfig),
	}
}

// LoadCollections loads collection definitions from JSON files in the specified directory.
// It returns a CollectionRegistry containing all successfully loaded collections.
// Only files with a .json extension are processed.
func LoadCollections(collectionsDir string) (*CollectionRegistry, error) {
	registry := NewCollectionRegistry()

	info, err := os.Stat(collectionsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to access collections directory %q: %w", collectionsDir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("collections path %q is not a directory", collectionsDir)
	}

	entries, err := os.ReadDir(collectionsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read collections directory %q: %w", collectionsDir, err)
	}

	loadedCount := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		filename := entry.Name()
		if !strings.HasSuffix(strings.ToLower(filename), ".json") {
			continue
		}

		filePath := filepath.Join(collectionsDir, filename)
		collection, err := loadCollectionFile(filePath)
		if err != nil {
			return nil, fmt.Errorf("failed to load collection from %q: %w", filePath, err)
		}

		if err := registry.Add(collection); err != nil {
			return nil, fmt.Errorf("failed to add collection from %q: %w", filePath, err)
		}

		loadedCount++
	}

	if loadedCount == 0 {
		return nil, fmt.Errorf("no collection files found in %q", collectionsDir)
	}

	return registry, nil
}

// loadCollectionFile loads a single collection configuration from a JSON file.
func loadCollectionFile(filePath string) (*CollectionConfig, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var collection CollectionConfig
	if err := json.Unmarshal(data, &collection); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}

	return &collection, nil
}

// validateCollection checks that a collection configuration is valid and
// caches its parsed start date.
func validateCollection(c *CollectionConfig) error {
	if c.ID == "" {
		return fmt.Errorf("collection ID is required")
	}

	if strings.ContainsAny(c.ID, "/ ") {
		return fmt.Errorf("collection ID %q must not contain '/' or spaces", c.ID)
	}

	if c.Title == "" {
		return fmt.Errorf("collection title is required")
	}

	if c.Description == "" {
		return fmt.Errorf("collection description is required")
	}

	if c.License == "" {
		return fmt.Errorf("collection license is required")
	}

	start, err := ParseDate(c.StartDate)
	if err != nil {
		return fmt.Errorf("collection start_date: %w", err)
	}
	c.start = start

	for i, bbox := range c.BBox {
		if len(bbox) != 4 && len(bbox) != 6 {
			return fmt.Errorf("bbox[%d] must have 4 or 6 values, got %d", i, len(bbox))
		}
	}

	for i, region := range c.Regions {
		if len(region.BBox) != 4 {
			return fmt.Errorf("region[%d] %q bbox must have 4 values, got %d", i, region.Name, len(region.BBox))
		}
		if region.BBox[0] > region.BBox[2] || region.BBox[1] > region.BBox[3] {
			return fmt.Errorf("region[%d] %q bbox is inverted", i, region.Name)
		}
	}

	for name := range c.CoverSentinels {
		if name == "" {
			return fmt.Errorf("cover sentinel name must not be empty")
		}
	}

	for i, link := range c.Links {
		if link.Rel == "" || link.Href == "" {
			return fmt.Errorf("link[%d] requires rel and href", i)
		}
		switch link.Rel {
		case "self", "parent", "child", "root", "item":
			return fmt.Errorf("link[%d] rel %q is managed by the catalog and cannot be configured", i, link.Rel)
		}
	}

	if c.DataLink != nil && c.DataLink.Replace == "" {
		return fmt.Errorf("data_link.replace is required when data_link is set")
	}

	return nil
}

// Add registers a collection in the registry.
// Returns an error if the collection is invalid or a collection with the same ID already exists.
func (r *CollectionRegistry) Add(collection *CollectionConfig) error {
	if collection == nil {
		return fmt.Errorf("cannot add nil collection")
	}

	if err := validateCollection(collection); err != nil {
		return fmt.Errorf("invalid collection configuration: %w", err)
	}

	if _, exists := r.collections[collection.ID]; exists {
		return fmt.Errorf("collection with ID %q already exists", collection.ID)
	}

	r.collections[collection.ID] = collection
	return nil
}

// Get retrieves a collection by ID.
// Returns nil if the collection does not exist.
func (r *CollectionRegistry) Get(id string) *CollectionConfig {
	return r.collections[id]
}

// Lookup is Get with an ErrCollectionNotFound error for unknown ids.
func (r *CollectionRegistry) Lookup(id string) (*CollectionConfig, error) {
	c, ok := r.collections[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrCollectionNotFound, id)
	}
	return c, nil
}

// Has checks if a collection with the given ID exists in the registry.
func (r *CollectionRegistry) Has(id string) bool {
	_, exists := r.collections[id]
	return exists
}

// All returns all collections in the registry ordered by ID.
func (r *CollectionRegistry) All() []*CollectionConfig {
	collections := make([]*CollectionConfig, 0, len(r.collections))
	for _, id := range r.IDs() {
		collections = append(collections, r.collections[id])
	}
	return collections
}

// IDs returns all collection IDs in the registry, sorted.
func (r *CollectionRegistry) IDs() []string {
	ids := make([]string, 0, len(r.collections))
	for id := range r.collections {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Count returns the number of collections in the registry.
func (r *CollectionRegistry) Count() int {
	return len(r.collections)
}

// Select returns the collections named by ids, in that order. An empty ids
// selects everything.
func (r *CollectionRegistry) Select(ids []string) ([]*CollectionConfig, error) {
	if len(ids) == 0 {
		return r.All(), nil
	}
	selected := make([]*CollectionConfig, 0, len(ids))
	for _, id := range ids {
		c, err := r.Lookup(strings.TrimSpace(id))
		if err != nil {
			return nil, err
		}
		selected = append(selected, c)
	}
	return selected, nil
}
