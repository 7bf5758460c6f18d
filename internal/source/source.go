// Package source lists and downloads the source rasters a collection is
// built from.
package source

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dylanlee/wncat/internal/config"
)

// Lister returns the retrievable URLs of the source assets for one UTC day,
// in a stable order.
type Lister interface {
	List(ctx context.Context, day time.Time) ([]string, error)
}

// Fetcher downloads a source URL to a local path.
type Fetcher interface {
	Fetch(ctx context.Context, url, dest string) error
}

// ListerFunc adapts a function to Lister.
type ListerFunc func(ctx context.Context, day time.Time) ([]string, error)

func (f ListerFunc) List(ctx context.Context, day time.Time) ([]string, error) {
	return f(ctx, day)
}

// New builds the lister described by cfg. Listers cache nothing across
// constructions, so a fresh one is made for each run.
func New(ctx context.Context, cfg config.SourceConfig, client *http.Client, logger *slog.Logger) (Lister, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Type {
	case "html":
		return NewHTMLLister(cfg.ListingURL, cfg.Filters, client).WithLogger(logger), nil
	case "s3":
		l, err := NewS3Lister(ctx, cfg.Bucket, cfg.Region, cfg.PrefixTemplate, cfg.Extension)
		if err != nil {
			return nil, err
		}
		return l.WithLogger(logger), nil
	default:
		return nil, fmt.Errorf("unsupported source type %q", cfg.Type)
	}
}

// ExpandPrefix substitutes {YYYY}, {MM} and {DD} in template with day.
func ExpandPrefix(template string, day time.Time) string {
	day = day.UTC()
	return strings.NewReplacer(
		"{YYYY}", day.Format("2006"),
		"{MM}", day.Format("01"),
		"{DD}", day.Format("02"),
	).Replace(template)
}
