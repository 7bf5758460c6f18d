// Package server provides a public API for embedding the wncat sync engine.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dylanlee/wncat/internal/catalog"
	"github.com/dylanlee/wncat/internal/cleanup"
	"github.com/dylanlee/wncat/internal/config"
	"github.com/dylanlee/wncat/internal/index"
	"github.com/dylanlee/wncat/internal/notify"
	"github.com/dylanlee/wncat/internal/objstore"
	"github.com/dylanlee/wncat/internal/observability"
	"github.com/dylanlee/wncat/internal/ops"
	"github.com/dylanlee/wncat/internal/raster"
	"github.com/dylanlee/wncat/internal/retry"
	"github.com/dylanlee/wncat/internal/source"
	"github.com/dylanlee/wncat/internal/stac"
)

// Options configures an embedded sync engine. Unset fields take the same
// defaults as the wncat command.
type Options struct {
	// Bucket is the destination S3 bucket (required unless Memory is set).
	Bucket string

	// Region is the destination bucket region.
	// Default: "us-east-1"
	Region string

	// Endpoint overrides the S3 endpoint, e.g. for MinIO.
	Endpoint string

	// PublicBaseURL is the prefix of every published href.
	// Default: "https://<bucket>.s3.amazonaws.com"
	PublicBaseURL string

	// Memory keeps every document in process instead of S3.
	Memory bool

	// CollectionsDir is the path to collection definition JSON files.
	// Default: "./collections"
	CollectionsDir string

	// Collections restricts syncing to these ids.
	// Default: every collection in CollectionsDir
	Collections []string

	// WorkDir holds scratch downloads.
	// Default: os.TempDir()
	WorkDir string

	// Interval > 0 makes Run repeat the sync until its context ends.
	Interval time.Duration

	// Logger is the slog logger to use.
	// Default: slog.Default()
	Logger *slog.Logger
}

// Server runs sync passes and serves the ops endpoints.
type Server struct {
	cfg        *config.Config
	reconciler *catalog.Reconciler
	retention  *cleanup.Policy
	store      objstore.Store
	index      index.Index
	publisher  notify.Publisher
	tracker    *ops.Tracker
	ops        *ops.Server
	clock      clockwork.Clock
	logger     *slog.Logger
}

// New creates a sync engine from opts.
func New(ctx context.Context, opts Options) (*Server, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	cfg, err := opts.config()
	if err != nil {
		return nil, err
	}
	return NewFromConfig(ctx, cfg, opts.Logger)
}

// config maps opts onto the environment defaults.
func (o Options) config() (*config.Config, error) {
	cfg, err := config.Defaults()
	if err != nil {
		return nil, err
	}
	if o.Memory {
		cfg.Store.Type = "memory"
	}
	if o.Bucket != "" {
		cfg.Store.Bucket = o.Bucket
	}
	if o.Region != "" {
		cfg.Store.Region = o.Region
	}
	cfg.Store.Endpoint = o.Endpoint
	cfg.Store.PublicBaseURL = o.PublicBaseURL
	if o.CollectionsDir != "" {
		cfg.Sync.CollectionsDir = o.CollectionsDir
	}
	cfg.Sync.Collections = o.Collections
	cfg.Sync.WorkDir = o.WorkDir
	cfg.Sync.Interval = o.Interval
	cfg.Ops.Addr = ""
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// NewFromConfig builds every collaborator described by cfg and registers
// metrics with the default Prometheus registry. Call it once per process.
func NewFromConfig(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	return newServer(ctx, cfg, logger, observability.NewMetrics(), prometheus.DefaultGatherer, clockwork.NewRealClock())
}

func newServer(ctx context.Context, cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics, gatherer prometheus.Gatherer, clock clockwork.Clock) (*Server, error) {
	registry, err := config.LoadCollections(cfg.Sync.CollectionsDir)
	if err != nil {
		return nil, fmt.Errorf("load collections: %w", err)
	}
	collections, err := registry.Select(cfg.Sync.Collections)
	if err != nil {
		return nil, err
	}
	logger.Info("loaded collections", "count", len(collections), "dir", cfg.Sync.CollectionsDir)

	store, err := newStore(ctx, cfg.Store, logger)
	if err != nil {
		return nil, err
	}

	idx, err := newIndex(ctx, cfg.Index, logger)
	if err != nil {
		return nil, err
	}

	var publisher notify.Publisher = notify.Noop{}
	if cfg.Kafka.Enabled() {
		publisher = notify.NewKafka(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
		logger.Info("publishing catalog events", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	}

	policy := retry.NewPolicy(cfg.Store.UploadAttempts, cfg.Store.BackoffFactor).
		WithClock(clock).
		WithLogger(logger).
		OnRetry(func(int, time.Duration, error) { metrics.UploadRetries.Inc() })

	client := source.NewHTTPClient(cfg.Source.Timeout)
	sources := func(ctx context.Context, cc *config.CollectionConfig) (source.Lister, error) {
		return source.New(ctx, cfg.Source.Merge(cc.Source), client, logger.With("collection", cc.ID))
	}

	deps := catalog.Deps{
		Store:     store,
		Index:     idx,
		Sources:   sources,
		Fetcher:   source.NewHTTPFetcher(client).WithLogger(logger),
		Extractor: raster.NewExtractor().WithLogger(logger),
		Deriver:   raster.NewDeriver(cfg.Sync.ThumbnailSize).WithLogger(logger),
		Publisher: publisher,
		Retry:     policy,
		Metrics:   metrics,
		Clock:     clock,
		Logger:    logger,
	}
	if cfg.Sync.Validate {
		deps.Validator = stac.NewValidator(cfg.Sync.SchemaBaseURL)
	}

	reconciler, err := catalog.New(deps, catalog.Options{
		Catalog:          cfg.Catalog,
		Collections:      collections,
		WorkDir:          cfg.Sync.WorkDir,
		StrictValidation: cfg.Sync.StrictValidation,
		ItemsCutoff:      cfg.Retention.Items.Time,
	})
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:        cfg,
		reconciler: reconciler,
		store:      store,
		index:      idx,
		publisher:  publisher,
		tracker:    ops.NewTracker(),
		clock:      clock,
		logger:     logger,
	}
	if cfg.Retention.Enabled() {
		s.retention = cleanup.NewPolicy(store, metrics, logger)
	}
	s.ops = ops.NewServer(ops.Options{
		Addr: cfg.Ops.Addr,
		Checks: map[string]ops.CheckFunc{
			"store": s.checkStore,
			"index": idx.Ping,
		},
		Tracker:  s.tracker,
		Gatherer: gatherer,
	}, logger)
	return s, nil
}

func newStore(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (objstore.Store, error) {
	switch cfg.Type {
	case "memory":
		logger.Warn("using in-memory store, documents are lost on exit")
		return objstore.NewMemory(cfg.Bucket, cfg.BaseURL()), nil
	default:
		store, err := objstore.NewS3(ctx, objstore.S3Config{
			Bucket:        cfg.Bucket,
			Region:        cfg.Region,
			Endpoint:      cfg.Endpoint,
			PublicBaseURL: cfg.PublicBaseURL,
		})
		if err != nil {
			return nil, fmt.Errorf("create S3 store: %w", err)
		}
		logger.Info("using S3 store", "bucket", cfg.Bucket, "region", cfg.Region)
		return store.WithLogger(logger), nil
	}
}

func newIndex(ctx context.Context, cfg config.IndexConfig, logger *slog.Logger) (index.Index, error) {
	switch cfg.Type {
	case "pgstac":
		idx, err := index.OpenPgSTAC(ctx, cfg.DSN, cfg.MaxConns)
		if err != nil {
			return nil, fmt.Errorf("open pgstac index: %w", err)
		}
		logger.Info("using pgstac index", "max_conns", cfg.MaxConns)
		return idx.WithLogger(logger), nil
	case "bleve":
		idx, err := index.OpenBleve(cfg.BlevePath)
		if err != nil {
			return nil, fmt.Errorf("open bleve index: %w", err)
		}
		logger.Info("using bleve index", "path", cfg.BlevePath)
		return idx.WithLogger(logger), nil
	default:
		return index.Noop{}, nil
	}
}

func (s *Server) checkStore(ctx context.Context) error {
	_, err := s.store.Probe(ctx, objstore.CatalogKey)
	return err
}

// Handler returns the ops router (/healthz, /readyz, /status, /metrics) for
// mounting in another application.
func (s *Server) Handler() http.Handler {
	return s.ops
}

// Sync runs one pass: retention first, then reconciliation over [from, to].
// Zero bounds fall back to the configured window.
func (s *Server) Sync(ctx context.Context, from, to time.Time) (*catalog.Summary, error) {
	if from.IsZero() {
		from = s.cfg.Sync.Start.Time
	}
	if to.IsZero() {
		to = s.cfg.Sync.End.Time
	}

	s.tracker.Begin(s.clock.Now())
	summary, err := s.sync(ctx, from, to)
	s.tracker.Finish(summary, err)
	return summary, err
}

func (s *Server) sync(ctx context.Context, from, to time.Time) (*catalog.Summary, error) {
	if s.retention != nil {
		results, err := s.retention.Apply(ctx, cleanup.Rules(s.cfg.Retention))
		// Items deleted before a failure are gone all the same.
		for _, res := range results {
			if res.Prefix == objstore.ItemsPrefix {
				s.reconciler.Forget(res.Keys...)
			}
		}
		if err != nil {
			return nil, fmt.Errorf("retention: %w", err)
		}
	}
	return s.reconciler.Run(ctx, from, to)
}

// Run syncs once, or every Interval until ctx ends when one is configured.
// In repeating mode a failed pass is logged and the next tick retries.
func (s *Server) Run(ctx context.Context) error {
	_, err := s.Sync(ctx, time.Time{}, time.Time{})
	if s.cfg.Sync.Interval <= 0 {
		return err
	}

	ticker := s.clock.NewTicker(s.cfg.Sync.Interval)
	defer ticker.Stop()
	s.logger.Info("repeating sync", "interval", s.cfg.Sync.Interval)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
			if _, err := s.Sync(ctx, time.Time{}, time.Time{}); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Warn("sync pass failed, retrying next interval", "error", err)
			}
		}
	}
}

// ListenAndServe serves the ops endpoints on the configured address. An
// empty address disables them and blocks until ctx ends.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s.cfg.Ops.Addr == "" {
		<-ctx.Done()
		return nil
	}
	err := s.ops.Start()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops the ops endpoints.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.cfg.Ops.Addr == "" {
		return nil
	}
	return s.ops.Shutdown(ctx)
}

// Close releases the index and the event publisher.
func (s *Server) Close() error {
	return errors.Join(s.publisher.Close(), s.index.Close())
}
