// Package config provides configuration management for the catalog sync engine.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// ErrInvalidConfig is returned (wrapped) by Validate for any rejected setting.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds the complete application configuration loaded from environment variables.
type Config struct {
	Catalog   CatalogConfig   `envPrefix:"CATALOG_"`
	Store     StoreConfig     `envPrefix:"STORE_"`
	Index     IndexConfig     `envPrefix:"INDEX_"`
	Source    SourceConfig    `envPrefix:"SOURCE_"`
	Sync      SyncConfig      `envPrefix:"SYNC_"`
	Retention RetentionConfig `envPrefix:"RETENTION_"`
	Ops       OpsConfig       `envPrefix:"OPS_"`
	Kafka     KafkaConfig     `envPrefix:"KAFKA_"`
	Logging   LoggingConfig   `envPrefix:"LOG_"`
}

// CatalogConfig describes the root catalog document.
type CatalogConfig struct {
	ID          string `env:"ID" envDefault:"Water Prediction Node"`
	Title       string `env:"TITLE" envDefault:""`
	Description string `env:"DESCRIPTION" envDefault:"The geospatial asset catalog of the Water Prediction Node."`
}

// StoreConfig contains the document store (object storage) configuration.
type StoreConfig struct {
	// Type specifies which store to use: "s3" or "memory"
	Type     string `env:"TYPE" envDefault:"s3"`
	Bucket   string `env:"BUCKET" envDefault:"fim-public"`
	Region   string `env:"REGION" envDefault:"us-east-1"`
	Endpoint string `env:"ENDPOINT" envDefault:""`
	// PublicBaseURL is the prefix for hrefs; defaults to https://<bucket>.s3.amazonaws.com
	PublicBaseURL  string  `env:"PUBLIC_BASE_URL" envDefault:""`
	UploadAttempts int     `env:"UPLOAD_ATTEMPTS" envDefault:"5"`
	BackoffFactor  float64 `env:"BACKOFF_FACTOR" envDefault:"1.5"`
}

// BaseURL returns the public URL prefix documents are addressed under.
func (s *StoreConfig) BaseURL() string {
	if s.PublicBaseURL != "" {
		return strings.TrimRight(s.PublicBaseURL, "/")
	}
	return fmt.Sprintf("https://%s.s3.amazonaws.com", s.Bucket)
}

// IndexConfig contains search index configuration.
type IndexConfig struct {
	// Type specifies which index to use: "pgstac", "bleve" or "none"
	Type string `env:"TYPE" envDefault:"none"`
	DSN  string `env:"DSN" envDefault:""`
	// BlevePath is the on-disk index location; empty keeps the index in memory.
	BlevePath string `env:"BLEVE_PATH" envDefault:""`
	MaxConns  int32  `env:"MAX_CONNS" envDefault:"4"`
}

// SourceConfig describes where source rasters are listed from. The env values
// are defaults; a collection file may override any of them.
type SourceConfig struct {
	// Type specifies the listing method: "s3" or "html"
	Type   string `env:"TYPE" envDefault:"s3" json:"type,omitempty"`
	Bucket string `env:"BUCKET" envDefault:"noaa-jpss" json:"bucket,omitempty"`
	Region string `env:"REGION" envDefault:"us-east-1" json:"region,omitempty"`
	// PrefixTemplate may contain {YYYY}, {MM} and {DD} placeholders.
	PrefixTemplate string   `env:"PREFIX_TEMPLATE" envDefault:"JPSS_Blended_Products/VFM_1day_GLB/TIF/{YYYY}/{MM}/{DD}/" json:"prefix_template,omitempty"`
	Extension      string   `env:"EXTENSION" envDefault:".tif" json:"extension,omitempty"`
	ListingURL     string   `env:"LISTING_URL" envDefault:"" json:"listing_url,omitempty"`
	Filters        []string `env:"FILTERS" envDefault:"" envSeparator:"," json:"filters,omitempty"`
	Timeout        time.Duration `env:"TIMEOUT" envDefault:"5m" json:"-"`
}

// SyncConfig controls a reconciliation run.
type SyncConfig struct {
	CollectionsDir string `env:"COLLECTIONS_DIR" envDefault:"./collections"`
	// Collections restricts the run to these ids; empty runs every loaded collection.
	Collections []string `env:"COLLECTIONS" envDefault:"" envSeparator:","`
	Start       Date     `env:"START" envDefault:""`
	End         Date     `env:"END" envDefault:""`
	WorkDir     string   `env:"WORK_DIR" envDefault:""`
	// Interval > 0 keeps the process running and repeats the sync.
	Interval         time.Duration `env:"INTERVAL" envDefault:"0s"`
	SchemaBaseURL    string        `env:"SCHEMA_BASE_URL" envDefault:"https://schemas.stacspec.org/v1.0.0"`
	Validate         bool          `env:"VALIDATE" envDefault:"true"`
	StrictValidation bool          `env:"STRICT_VALIDATION" envDefault:"false"`
	ThumbnailSize    int           `env:"THUMBNAIL_SIZE" envDefault:"256"`
}

// RetentionConfig holds per-prefix purge cutoffs. A zero date disables that rule.
type RetentionConfig struct {
	Thumbnails Date `env:"THUMBNAILS" envDefault:""`
	Items      Date `env:"ITEMS" envDefault:""`
	Overviews  Date `env:"OVERVIEWS" envDefault:""`
}

// Enabled reports whether any retention rule is configured.
func (r *RetentionConfig) Enabled() bool {
	return !r.Thumbnails.IsZero() || !r.Items.IsZero() || !r.Overviews.IsZero()
}

// OpsConfig contains the operational HTTP endpoint configuration.
type OpsConfig struct {
	// Addr is the listen address; empty disables the ops server.
	Addr            string        `env:"ADDR" envDefault:":9090"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// KafkaConfig contains catalog event publishing configuration.
type KafkaConfig struct {
	// Brokers empty disables event publishing.
	Brokers []string `env:"BROKERS" envDefault:"" envSeparator:","`
	Topic   string   `env:"TOPIC" envDefault:"wncat.items"`
}

// Enabled reports whether events should be published.
func (k *KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"json"`
}

// Load parses configuration from environment variables.
// It returns an error if required fields are missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{}

	opts := env.Options{
		RequiredIfNoDef: true,
	}

	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Defaults returns the configuration an empty environment produces, without
// validating it.
func Defaults() (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Environment: map[string]string{}}); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if err := c.validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

func (c *Config) validate() error {
	if c.Catalog.ID == "" {
		return fmt.Errorf("catalog ID is required")
	}

	// Validate store config
	switch c.Store.Type {
	case "s3":
		if c.Store.Bucket == "" {
			return fmt.Errorf("store bucket is required for store type s3")
		}
	case "memory":
	default:
		return fmt.Errorf("store type must be 's3' or 'memory', got %q", c.Store.Type)
	}

	if c.Store.UploadAttempts < 1 {
		return fmt.Errorf("store upload attempts must be at least 1, got %d", c.Store.UploadAttempts)
	}

	if c.Store.BackoffFactor < 1 {
		return fmt.Errorf("store backoff factor must be >= 1, got %g", c.Store.BackoffFactor)
	}

	// Validate index config
	switch c.Index.Type {
	case "pgstac":
		if c.Index.DSN == "" {
			return fmt.Errorf("index DSN is required for index type pgstac")
		}
		if c.Index.MaxConns < 1 {
			return fmt.Errorf("index max conns must be at least 1, got %d", c.Index.MaxConns)
		}
	case "bleve", "none":
	default:
		return fmt.Errorf("index type must be 'pgstac', 'bleve' or 'none', got %q", c.Index.Type)
	}

	if err := c.Source.Validate(); err != nil {
		return err
	}

	if c.Source.Timeout <= 0 {
		return fmt.Errorf("source timeout must be positive, got %s", c.Source.Timeout)
	}

	// Validate sync config
	if c.Sync.CollectionsDir == "" {
		return fmt.Errorf("collections directory is required")
	}

	if !c.Sync.Start.IsZero() && !c.Sync.End.IsZero() && c.Sync.End.Before(c.Sync.Start.Time) {
		return fmt.Errorf("sync end %s is before sync start %s", c.Sync.End, c.Sync.Start)
	}

	if c.Sync.Interval < 0 {
		return fmt.Errorf("sync interval must not be negative, got %s", c.Sync.Interval)
	}

	if c.Sync.ThumbnailSize < 1 {
		return fmt.Errorf("thumbnail size must be at least 1, got %d", c.Sync.ThumbnailSize)
	}

	if c.Sync.Validate && c.Sync.SchemaBaseURL == "" {
		return fmt.Errorf("schema base URL is required when validation is enabled")
	}

	if c.Kafka.Enabled() && c.Kafka.Topic == "" {
		return fmt.Errorf("kafka topic is required when brokers are set")
	}

	if c.Ops.ShutdownTimeout <= 0 {
		return fmt.Errorf("ops shutdown timeout must be positive, got %s", c.Ops.ShutdownTimeout)
	}

	// Validate logging config
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level %q, must be one of: debug, info, warn, error", c.Logging.Level)
	}

	validLogFormats := map[string]bool{
		"json": true,
		"text": true,
	}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format %q, must be one of: json, text", c.Logging.Format)
	}

	return nil
}

// Validate checks a source definition on its own, so collection overrides can
// be checked after merging.
func (s *SourceConfig) Validate() error {
	switch s.Type {
	case "s3":
		if s.Bucket == "" {
			return fmt.Errorf("source bucket is required for source type s3")
		}
		if s.Extension == "" {
			return fmt.Errorf("source extension is required for source type s3")
		}
	case "html":
		if s.ListingURL == "" {
			return fmt.Errorf("source listing URL is required for source type html")
		}
	default:
		return fmt.Errorf("source type must be 's3' or 'html', got %q", s.Type)
	}
	return nil
}

// Merge returns s with every non-empty field of override applied on top.
func (s SourceConfig) Merge(override *SourceConfig) SourceConfig {
	if override == nil {
		return s
	}
	if override.Type != "" {
		s.Type = override.Type
	}
	if override.Bucket != "" {
		s.Bucket = override.Bucket
	}
	if override.Region != "" {
		s.Region = override.Region
	}
	if override.PrefixTemplate != "" {
		s.PrefixTemplate = override.PrefixTemplate
	}
	if override.Extension != "" {
		s.Extension = override.Extension
	}
	if override.ListingURL != "" {
		s.ListingURL = override.ListingURL
	}
	if len(override.Filters) > 0 {
		s.Filters = override.Filters
	}
	return s
}

// Date is a UTC calendar day parsed from YYYY-MM-DD or YYYYMMDD.
type Date struct {
	time.Time
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Date) UnmarshalText(text []byte) error {
	parsed, err := ParseDate(string(text))
	if err != nil {
		return err
	}
	d.Time = parsed
	return nil
}

// String formats the date as YYYY-MM-DD, or "" when unset.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(time.DateOnly)
}

// ParseDate parses a calendar date in either YYYY-MM-DD or YYYYMMDD form.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.DateOnly, "20060102"} {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD or YYYYMMDD", s)
}
