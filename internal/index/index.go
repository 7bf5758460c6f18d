// Package index loads catalog documents into a queryable search index.
//
// Every loader replaces whole documents: upserting an unchanged document is
// a no-op and upserting a changed one discards the previous field values.
package index

import (
	"context"
	"errors"

	"github.com/dylanlee/wncat/internal/stac"
)

// ErrClosed is returned when a loader is used after Close.
var ErrClosed = errors.New("index closed")

// Index receives collection and item documents.
type Index interface {
	UpsertCollection(ctx context.Context, collection *stac.Collection) error
	UpsertItem(ctx context.Context, item *stac.Item) error

	// Ping reports whether the index is reachable.
	Ping(ctx context.Context) error

	Close() error

	// Name returns the index name (e.g., "pgstac", "bleve").
	Name() string
}

// Noop discards every document.
type Noop struct{}

func (Noop) UpsertCollection(context.Context, *stac.Collection) error { return nil }
func (Noop) UpsertItem(context.Context, *stac.Item) error             { return nil }
func (Noop) Ping(context.Context) error                               { return nil }
func (Noop) Close() error                                             { return nil }
func (Noop) Name() string                                             { return "none" }
