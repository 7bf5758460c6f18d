// Package cleanup enforces retention on published objects.
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dylanlee/wncat/internal/config"
	"github.com/dylanlee/wncat/internal/identity"
	"github.com/dylanlee/wncat/internal/objstore"
	"github.com/dylanlee/wncat/internal/observability"
)

// Rule deletes objects under Prefix dated before Cutoff.
type Rule struct {
	Prefix string
	Cutoff time.Time
}

// Rules converts the configured cutoffs into rules, skipping unset ones.
func Rules(cfg config.RetentionConfig) []Rule {
	var rules []Rule
	for _, r := range []struct {
		prefix string
		cutoff config.Date
	}{
		{objstore.ThumbnailsPrefix, cfg.Thumbnails},
		{objstore.ItemsPrefix, cfg.Items},
		{objstore.OverviewsPrefix, cfg.Overviews},
	} {
		if !r.cutoff.IsZero() {
			rules = append(rules, Rule{Prefix: r.prefix, Cutoff: r.cutoff.Time})
		}
	}
	return rules
}

// Result counts what a purge did under one prefix.
type Result struct {
	Prefix  string
	Listed  int
	Deleted int
	// Undated objects carry no date in their key and are never deleted.
	Undated int
	// Keys are the deleted keys, in listing order.
	Keys []string
}

// Policy purges objects from a store.
type Policy struct {
	store   objstore.Store
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewPolicy creates a retention policy over store. metrics may be nil.
func NewPolicy(store objstore.Store, metrics *observability.Metrics, logger *slog.Logger) *Policy {
	if logger == nil {
		logger = slog.Default()
	}
	return &Policy{store: store, metrics: metrics, logger: logger}
}

// PurgeBefore deletes every object under prefix whose key embeds a date
// strictly before cutoff.
func (p *Policy) PurgeBefore(ctx context.Context, prefix string, cutoff time.Time) (Result, error) {
	result := Result{Prefix: prefix}
	cutoff = identity.Day(cutoff)

	objects, err := p.store.List(ctx, prefix)
	if err != nil {
		return result, fmt.Errorf("list %s: %w", prefix, err)
	}
	result.Listed = len(objects)

	for _, obj := range objects {
		date, ok := identity.DateInKey(obj.Key)
		if !ok {
			result.Undated++
			p.logger.Debug("no date in key, keeping", "key", obj.Key)
			continue
		}
		if !date.Before(cutoff) {
			continue
		}
		if err := p.store.Delete(ctx, obj.Key); err != nil {
			return result, fmt.Errorf("delete %s: %w", obj.Key, err)
		}
		result.Deleted++
		result.Keys = append(result.Keys, obj.Key)
		if p.metrics != nil {
			p.metrics.ObjectsPurged.WithLabelValues(prefix).Inc()
		}
	}

	p.logger.Info("retention applied",
		"prefix", prefix,
		"cutoff", cutoff.Format(time.DateOnly),
		"listed", result.Listed,
		"deleted", result.Deleted,
		"undated", result.Undated,
	)
	return result, nil
}

// Apply runs each rule in turn, stopping at the first failure.
func (p *Policy) Apply(ctx context.Context, rules []Rule) ([]Result, error) {
	results := make([]Result, 0, len(rules))
	for _, rule := range rules {
		res, err := p.PurgeBefore(ctx, rule.Prefix, rule.Cutoff)
		results = append(results, res)
		if err != nil {
			return results, err
		}
	}
	return results, nil
}
