// Package catalog reconciles the published STAC tree with the source
// inventory.
//
// A run loads (or creates) the root catalog and each configured collection,
// then walks the collection one UTC day at a time. Every day is a bucket: for
// bucketed collections it owns a sub-collection, otherwise it shares the
// top-level collection. Source assets already linked from their bucket are
// skipped without being downloaded, which makes re-running a day a no-op.
// New assets are downloaded, described, given derived thumbnail and overview
// assets, and persisted to the object store and the search index, followed by
// the documents that link to them.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/dylanlee/wncat/internal/config"
	"github.com/dylanlee/wncat/internal/identity"
	"github.com/dylanlee/wncat/internal/index"
	"github.com/dylanlee/wncat/internal/notify"
	"github.com/dylanlee/wncat/internal/objstore"
	"github.com/dylanlee/wncat/internal/observability"
	"github.com/dylanlee/wncat/internal/raster"
	"github.com/dylanlee/wncat/internal/retry"
	"github.com/dylanlee/wncat/internal/source"
	"github.com/dylanlee/wncat/internal/stac"
)

// Extractor describes a local raster.
type Extractor interface {
	Extract(path string) (*raster.Metadata, error)
	CoveragePercent(path string, sentinel float64) int
}

// Deriver renders the derived assets of a raster.
type Deriver interface {
	Thumbnail(src, dest string) error
	Overview(src, dest string) error
}

// Validator checks documents before they are published.
type Validator interface {
	ValidateItem(item *stac.Item) error
	ValidateCollection(collection *stac.Collection) error
	ValidateCatalog(catalog *stac.Catalog) error
}

// SourceFactory builds the lister for a collection. It is called once per
// collection per run, so listers may cache within a run.
type SourceFactory func(ctx context.Context, collection *config.CollectionConfig) (source.Lister, error)

// Deps are the collaborators of a Reconciler. Store, Sources, Fetcher,
// Extractor and Deriver are required.
type Deps struct {
	Store     objstore.Store
	Index     index.Index
	Sources   SourceFactory
	Fetcher   source.Fetcher
	Extractor Extractor
	Deriver   Deriver
	// Validator nil disables validation.
	Validator Validator
	Publisher notify.Publisher
	Retry     *retry.Policy
	Metrics   *observability.Metrics
	Clock     clockwork.Clock
	Logger    *slog.Logger
}

// Options tune a Reconciler.
type Options struct {
	Catalog     config.CatalogConfig
	Collections []*config.CollectionConfig
	// WorkDir holds per-asset scratch directories; empty uses os.TempDir.
	WorkDir string
	// StrictValidation skips documents that fail validation instead of
	// publishing them with a warning.
	StrictValidation bool
	// ItemsCutoff is the items retention cutoff. Days before it are not
	// synced, and links to items dated before it are dropped.
	ItemsCutoff time.Time
}

// Reconciler owns the catalog document graph during a run. It is not safe
// for concurrent use; one Reconciler should be the only writer of its
// collections.
type Reconciler struct {
	store     objstore.Store
	index     index.Index
	sources   SourceFactory
	fetcher   source.Fetcher
	extractor Extractor
	deriver   Deriver
	validator Validator
	publisher notify.Publisher
	retry     *retry.Policy
	metrics   *observability.Metrics
	clock     clockwork.Clock
	logger    *slog.Logger
	opts      Options

	// forgotten holds item keys deleted since the last successful run.
	forgotten map[string]bool
}

// New creates a Reconciler, filling optional dependencies with no-op or
// default implementations.
func New(deps Deps, opts Options) (*Reconciler, error) {
	switch {
	case deps.Store == nil:
		return nil, errors.New("catalog: store is required")
	case deps.Sources == nil:
		return nil, errors.New("catalog: source factory is required")
	case deps.Fetcher == nil:
		return nil, errors.New("catalog: fetcher is required")
	case deps.Extractor == nil:
		return nil, errors.New("catalog: extractor is required")
	case deps.Deriver == nil:
		return nil, errors.New("catalog: deriver is required")
	}
	if opts.Catalog.ID == "" {
		return nil, errors.New("catalog: catalog id is required")
	}

	r := &Reconciler{
		store:     deps.Store,
		index:     deps.Index,
		sources:   deps.Sources,
		fetcher:   deps.Fetcher,
		extractor: deps.Extractor,
		deriver:   deps.Deriver,
		validator: deps.Validator,
		publisher: deps.Publisher,
		retry:     deps.Retry,
		metrics:   deps.Metrics,
		clock:     deps.Clock,
		logger:    deps.Logger,
		opts:      opts,
	}
	if r.index == nil {
		r.index = index.Noop{}
	}
	if r.publisher == nil {
		r.publisher = notify.Noop{}
	}
	if r.clock == nil {
		r.clock = clockwork.NewRealClock()
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.retry == nil {
		r.retry = retry.NewPolicy(5, 1.5).WithClock(r.clock).WithLogger(r.logger)
	}
	if r.metrics == nil {
		r.metrics = observability.NewMetricsForTesting()
	}
	return r, nil
}

// Yesterday is the last fully elapsed UTC day.
func (r *Reconciler) Yesterday() time.Time {
	return identity.Day(r.clock.Now()).AddDate(0, 0, -1)
}

// Run reconciles every configured collection over [from, to]. A zero from
// starts at each collection's start date; a zero to ends yesterday. Failures
// of individual assets are recorded in the summary; the returned error is
// set only when a catalog or collection document could not be loaded,
// probed, or persisted.
func (r *Reconciler) Run(ctx context.Context, from, to time.Time) (*Summary, error) {
	s := r.newSession()
	summary := &Summary{RunID: s.runID, StartedAt: r.clock.Now()}

	r.metrics.SyncRunning.Set(1)
	defer r.metrics.SyncRunning.Set(0)

	err := r.run(ctx, s, summary, from, to)
	summary.FinishedAt = r.clock.Now()

	if err != nil {
		r.metrics.Runs.WithLabelValues("error").Inc()
		s.logger.Error("sync run failed",
			"error", err,
			"created", summary.Created(),
			"skipped", summary.Skipped(),
			"failed", summary.Failed(),
		)
		return summary, err
	}

	r.forgotten = nil
	r.metrics.Runs.WithLabelValues("success").Inc()
	r.metrics.LastRunSuccess.Set(float64(summary.FinishedAt.Unix()))
	s.logger.Info("sync run finished",
		"buckets", len(summary.Buckets),
		"created", summary.Created(),
		"skipped", summary.Skipped(),
		"failed", summary.Failed(),
		"duration", summary.FinishedAt.Sub(summary.StartedAt),
	)
	return summary, nil
}

func (r *Reconciler) run(ctx context.Context, s *session, summary *Summary, from, to time.Time) error {
	if err := s.loadCatalog(ctx); err != nil {
		return err
	}

	for _, cc := range r.opts.Collections {
		// Opening prunes purged links even when no day is left to sync.
		cs, err := s.openCollection(ctx, cc)
		if err != nil {
			return err
		}

		first, last := r.span(cc, from, to)
		if last.Before(first) {
			s.logger.Info("nothing to sync", "collection", cc.ID, "from", first.Format(time.DateOnly), "to", last.Format(time.DateOnly))
			continue
		}

		for day := first; !day.After(last); day = day.AddDate(0, 0, 1) {
			if err := ctx.Err(); err != nil {
				return err
			}
			result, err := s.syncBucket(ctx, cs, day)
			if result != nil {
				summary.Buckets = append(summary.Buckets, result)
			}
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// span clamps [from, to] to the collection's life and the retained window.
func (r *Reconciler) span(cc *config.CollectionConfig, from, to time.Time) (time.Time, time.Time) {
	first := cc.Start()
	if !from.IsZero() && identity.Day(from).After(first) {
		first = identity.Day(from)
	}
	if cutoff := r.itemsCutoff(); cutoff.After(first) {
		first = cutoff
	}
	last := r.Yesterday()
	if !to.IsZero() {
		last = identity.Day(to)
	}
	return first, last
}

// SyncBucket reconciles a single day of one collection, loading the catalog
// and collection it hangs off first.
func (r *Reconciler) SyncBucket(ctx context.Context, collectionID string, day time.Time) (*BucketResult, error) {
	var cc *config.CollectionConfig
	for _, c := range r.opts.Collections {
		if c.ID == collectionID {
			cc = c
			break
		}
	}
	if cc == nil {
		return nil, fmt.Errorf("%w: %q", config.ErrCollectionNotFound, collectionID)
	}

	s := r.newSession()
	if err := s.loadCatalog(ctx); err != nil {
		return nil, err
	}
	cs, err := s.openCollection(ctx, cc)
	if err != nil {
		return nil, err
	}
	return s.syncBucket(ctx, cs, identity.Day(day))
}

func (r *Reconciler) newSession() *session {
	runID := uuid.NewString()
	return &session{
		Reconciler: r,
		runID:      runID,
		logger:     r.logger.With("run_id", runID),
		persisted:  make(map[string][]byte),
		indexed:    make(map[string]bool),
	}
}
