package config

import (
	"errors"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Store.Type != "s3" {
		t.Errorf("expected default store type s3, got %s", cfg.Store.Type)
	}

	if cfg.Store.Bucket != "fim-public" {
		t.Errorf("expected default bucket fim-public, got %s", cfg.Store.Bucket)
	}

	if cfg.Store.UploadAttempts != 5 {
		t.Errorf("expected default upload attempts 5, got %d", cfg.Store.UploadAttempts)
	}

	if cfg.Store.BackoffFactor != 1.5 {
		t.Errorf("expected default backoff factor 1.5, got %g", cfg.Store.BackoffFactor)
	}

	if cfg.Index.Type != "none" {
		t.Errorf("expected default index type none, got %s", cfg.Index.Type)
	}

	if cfg.Source.PrefixTemplate != "JPSS_Blended_Products/VFM_1day_GLB/TIF/{YYYY}/{MM}/{DD}/" {
		t.Errorf("unexpected default prefix template %s", cfg.Source.PrefixTemplate)
	}

	if len(cfg.Source.Filters) != 0 {
		t.Errorf("expected no default filters, got %v", cfg.Source.Filters)
	}

	if !cfg.Sync.Start.IsZero() || !cfg.Sync.End.IsZero() {
		t.Errorf("expected no default sync range, got %s..%s", cfg.Sync.Start, cfg.Sync.End)
	}

	if cfg.Retention.Enabled() {
		t.Error("expected retention to be disabled by default")
	}

	if cfg.Kafka.Enabled() {
		t.Error("expected kafka to be disabled by default")
	}

	if cfg.Logging.Level != "info" {
		t.Errorf("expected default log level info, got %s", cfg.Logging.Level)
	}
}

func TestLoadWithCustomValues(t *testing.T) {
	t.Setenv("STORE_TYPE", "memory")
	t.Setenv("STORE_PUBLIC_BASE_URL", "https://cdn.example.com/")
	t.Setenv("INDEX_TYPE", "pgstac")
	t.Setenv("INDEX_DSN", "postgres://localhost/pgstac")
	t.Setenv("SOURCE_TYPE", "html")
	t.Setenv("SOURCE_LISTING_URL", "https://floodlight.ssec.wisc.edu/composite/")
	t.Setenv("SOURCE_FILTERS", "composite1,.tif")
	t.Setenv("SYNC_START", "2012-01-20")
	t.Setenv("SYNC_END", "20120125")
	t.Setenv("SYNC_INTERVAL", "24h")
	t.Setenv("RETENTION_ITEMS", "2012-01-05")
	t.Setenv("KAFKA_BROKERS", "localhost:9092,localhost:9093")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if got := cfg.Store.BaseURL(); got != "https://cdn.example.com" {
		t.Errorf("expected trimmed base URL, got %s", got)
	}

	if len(cfg.Source.Filters) != 2 || cfg.Source.Filters[0] != "composite1" || cfg.Source.Filters[1] != ".tif" {
		t.Errorf("unexpected filters %v", cfg.Source.Filters)
	}

	wantStart := time.Date(2012, 1, 20, 0, 0, 0, 0, time.UTC)
	if !cfg.Sync.Start.Equal(wantStart) {
		t.Errorf("expected sync start %s, got %s", wantStart, cfg.Sync.Start)
	}

	wantEnd := time.Date(2012, 1, 25, 0, 0, 0, 0, time.UTC)
	if !cfg.Sync.End.Equal(wantEnd) {
		t.Errorf("expected sync end %s, got %s", wantEnd, cfg.Sync.End)
	}

	if cfg.Sync.Interval != 24*time.Hour {
		t.Errorf("expected interval 24h, got %s", cfg.Sync.Interval)
	}

	if !cfg.Retention.Enabled() || cfg.Retention.Items.String() != "2012-01-05" {
		t.Errorf("expected items retention 2012-01-05, got %q", cfg.Retention.Items)
	}

	if !cfg.Kafka.Enabled() || len(cfg.Kafka.Brokers) != 2 {
		t.Errorf("expected two kafka brokers, got %v", cfg.Kafka.Brokers)
	}

	if cfg.Logging.Format != "text" {
		t.Errorf("expected log format text, got %s", cfg.Logging.Format)
	}
}

func TestLoadInvalidDate(t *testing.T) {
	t.Setenv("SYNC_START", "21/01/2012")

	if _, err := Load(); err == nil {
		t.Error("expected error for malformed date")
	}
}

func validConfig() *Config {
	return &Config{
		Catalog: CatalogConfig{ID: "Water Prediction Node"},
		Store: StoreConfig{
			Type:           "s3",
			Bucket:         "fim-public",
			UploadAttempts: 5,
			BackoffFactor:  1.5,
		},
		Index: IndexConfig{Type: "none"},
		Source: SourceConfig{
			Type:      "s3",
			Bucket:    "noaa-jpss",
			Extension: ".tif",
			Timeout:   time.Minute,
		},
		Sync: SyncConfig{
			CollectionsDir: "./collections",
			SchemaBaseURL:  "https://schemas.stacspec.org/v1.0.0",
			Validate:       true,
			ThumbnailSize:  256,
		},
		Ops:     OpsConfig{Addr: ":9090", ShutdownTimeout: 10 * time.Second},
		Kafka:   KafkaConfig{Topic: "wncat.items"},
		Logging: LoggingConfig{Level: "info", Format: "json"},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *Config)
		wantError bool
	}{
		{
			name:   "valid config",
			mutate: func(c *Config) {},
		},
		{
			name:   "memory store without bucket",
			mutate: func(c *Config) { c.Store.Type = "memory"; c.Store.Bucket = "" },
		},
		{
			name:      "s3 store without bucket",
			mutate:    func(c *Config) { c.Store.Bucket = "" },
			wantError: true,
		},
		{
			name:      "invalid store type",
			mutate:    func(c *Config) { c.Store.Type = "gcs" },
			wantError: true,
		},
		{
			name:      "zero upload attempts",
			mutate:    func(c *Config) { c.Store.UploadAttempts = 0 },
			wantError: true,
		},
		{
			name:      "shrinking backoff",
			mutate:    func(c *Config) { c.Store.BackoffFactor = 0.5 },
			wantError: true,
		},
		{
			name:      "pgstac without DSN",
			mutate:    func(c *Config) { c.Index.Type = "pgstac" },
			wantError: true,
		},
		{
			name: "pgstac with DSN",
			mutate: func(c *Config) {
				c.Index.Type = "pgstac"
				c.Index.DSN = "postgres://localhost/pgstac"
				c.Index.MaxConns = 2
			},
		},
		{
			name:      "html source without listing URL",
			mutate:    func(c *Config) { c.Source.Type = "html" },
			wantError: true,
		},
		{
			name: "end before start",
			mutate: func(c *Config) {
				c.Sync.Start = Date{time.Date(2012, 1, 21, 0, 0, 0, 0, time.UTC)}
				c.Sync.End = Date{time.Date(2012, 1, 20, 0, 0, 0, 0, time.UTC)}
			},
			wantError: true,
		},
		{
			name:      "kafka without topic",
			mutate:    func(c *Config) { c.Kafka.Brokers = []string{"localhost:9092"}; c.Kafka.Topic = "" },
			wantError: true,
		},
		{
			name:      "invalid log level",
			mutate:    func(c *Config) { c.Logging.Level = "trace" },
			wantError: true,
		},
		{
			name:      "invalid log format",
			mutate:    func(c *Config) { c.Logging.Format = "xml" },
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantError {
				t.Errorf("Validate() error = %v, wantError %v", err, tt.wantError)
			}
			if err != nil && !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Validate() error %v does not wrap ErrInvalidConfig", err)
			}
		})
	}
}

func TestStoreConfigBaseURL(t *testing.T) {
	cfg := StoreConfig{Bucket: "fim-public"}

	if got := cfg.BaseURL(); got != "https://fim-public.s3.amazonaws.com" {
		t.Errorf("BaseURL() = %s", got)
	}
}

func TestSourceConfigMerge(t *testing.T) {
	base := SourceConfig{
		Type:           "s3",
		Bucket:         "noaa-jpss",
		PrefixTemplate: "TIF/{YYYY}/{MM}/{DD}/",
		Extension:      ".tif",
	}

	merged := base.Merge(&SourceConfig{Bucket: "other-bucket", Filters: []string{"a"}})
	if merged.Bucket != "other-bucket" {
		t.Errorf("expected overridden bucket, got %s", merged.Bucket)
	}
	if merged.PrefixTemplate != base.PrefixTemplate || merged.Extension != ".tif" {
		t.Errorf("expected untouched fields to be kept, got %+v", merged)
	}
	if len(merged.Filters) != 1 {
		t.Errorf("expected overridden filters, got %v", merged.Filters)
	}

	if same := base.Merge(nil); same.Bucket != "noaa-jpss" {
		t.Errorf("Merge(nil) changed the config: %+v", same)
	}
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		input   string
		want    time.Time
		wantErr bool
	}{
		{input: "2012-01-21", want: time.Date(2012, 1, 21, 0, 0, 0, 0, time.UTC)},
		{input: "20120121", want: time.Date(2012, 1, 21, 0, 0, 0, 0, time.UTC)},
		{input: " 2012-01-21 ", want: time.Date(2012, 1, 21, 0, 0, 0, 0, time.UTC)},
		{input: "2012-13-01", wantErr: true},
		{input: "yesterday", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDate(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseDate(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && !got.Equal(tt.want) {
				t.Errorf("ParseDate(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}

func TestDefaultsIgnoresEnvironment(t *testing.T) {
	t.Setenv("STORE_BUCKET", "somewhere-else")

	cfg, err := Defaults()
	if err != nil {
		t.Fatalf("Defaults() failed: %v", err)
	}
	if cfg.Store.Bucket != "fim-public" {
		t.Errorf("expected default bucket fim-public, got %s", cfg.Store.Bucket)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}
