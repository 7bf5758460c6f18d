package catalog

import (
	"time"

	"github.com/dylanlee/wncat/internal/config"
	"github.com/dylanlee/wncat/internal/stac"
)

// applyCatalogTemplate sets the configured descriptive fields on a catalog,
// leaving its links alone.
func applyCatalogTemplate(catalog *stac.Catalog, cfg config.CatalogConfig) {
	catalog.Version = stac.Version
	catalog.Id = cfg.ID
	catalog.Title = cfg.Title
	catalog.Description = cfg.Description
}

// applyCollectionTemplate sets every configured field on a top-level
// collection. Loaded collections are refreshed this way too, so edits to a
// collection file reach the published document on the next run.
func applyCollectionTemplate(collection *stac.Collection, cfg *config.CollectionConfig) {
	fillCollection(collection, cfg)
	collection.Id = cfg.ID
	collection.Title = cfg.Title
	collection.Extent = stac.NewOpenExtent(cfg.SpatialBBox(), cfg.Start())
}

// applySubCollectionTemplate fills a day sub-collection from its parent's
// template.
func applySubCollectionTemplate(collection *stac.Collection, cfg *config.CollectionConfig, day time.Time) {
	fillCollection(collection, cfg)
	collection.Id = SubCollectionID(cfg.ID, day)
	collection.Title = cfg.Title + " " + day.Format(time.DateOnly)
	collection.Extent = stac.NewDayExtent(cfg.SpatialBBox(), day)
}

func fillCollection(collection *stac.Collection, cfg *config.CollectionConfig) {
	collection.Version = stac.Version
	collection.Description = cfg.Description
	collection.Keywords = cfg.Keywords
	collection.License = cfg.License
	collection.Providers = providers(cfg)
	collection.Extensions = stac.Extensions(cfg.Extensions...)

	// Configured links are re-added from the template each time, ahead of
	// item links so a reloaded document keeps its link order.
	links := make([]*stac.Link, 0, len(cfg.Links)+len(collection.Links))
	for _, l := range cfg.Links {
		links = append(links, &stac.Link{Rel: l.Rel, Href: l.Href, Type: l.Type, Title: l.Title})
	}
	collection.Links = append(links, stac.RemoveLinks(collection.Links, configuredRels(cfg)...)...)
}

func configuredRels(cfg *config.CollectionConfig) []string {
	rels := make([]string, 0, len(cfg.Links))
	for _, l := range cfg.Links {
		rels = append(rels, l.Rel)
	}
	return rels
}

func providers(cfg *config.CollectionConfig) []*stac.Provider {
	if len(cfg.Providers) == 0 {
		return nil
	}
	out := make([]*stac.Provider, len(cfg.Providers))
	for i, p := range cfg.Providers {
		out[i] = &stac.Provider{
			Name:        p.Name,
			Description: p.Description,
			Roles:       p.Roles,
			Url:         p.URL,
		}
	}
	return out
}

// SubCollectionID is the id of the day bucket of a collection.
func SubCollectionID(collectionID string, day time.Time) string {
	return collectionID + "-" + day.UTC().Format(time.DateOnly)
}
