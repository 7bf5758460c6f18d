// Script to compare the source archive against the published catalog, day by day
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/dylanlee/wncat/internal/config"
	"github.com/dylanlee/wncat/internal/identity"
	"github.com/dylanlee/wncat/internal/objstore"
	"github.com/dylanlee/wncat/internal/source"
)

const days = 7

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: compare_catalog <collection-id>")
		os.Exit(2)
	}
	if err := compare(context.Background(), os.Args[1]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func compare(ctx context.Context, collectionID string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	registry, err := config.LoadCollections(cfg.Sync.CollectionsDir)
	if err != nil {
		return err
	}
	cc, err := registry.Lookup(collectionID)
	if err != nil {
		return err
	}

	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	lister, err := source.New(ctx, cfg.Source.Merge(cc.Source), source.NewHTTPClient(cfg.Source.Timeout), quiet)
	if err != nil {
		return err
	}
	store, err := objstore.NewS3(ctx, objstore.S3Config{
		Bucket:        cfg.Store.Bucket,
		Region:        cfg.Store.Region,
		Endpoint:      cfg.Store.Endpoint,
		PublicBaseURL: cfg.Store.PublicBaseURL,
	})
	if err != nil {
		return err
	}

	end := identity.Day(time.Now()).AddDate(0, 0, -1)
	fmt.Printf("=== %s: last %d days ===\n", cc.ID, days)
	fmt.Printf("%-12s %8s %10s %8s\n", "day", "source", "published", "missing")

	for day := end.AddDate(0, 0, -(days - 1)); !day.After(end); day = day.AddDate(0, 0, 1) {
		urls, err := lister.List(ctx, day)
		if err != nil {
			fmt.Printf("%-12s list failed: %v\n", day.Format(time.DateOnly), err)
			continue
		}

		prefix := strings.TrimSuffix(objstore.ItemKey(cc.ID, day, "x"), "x.json")
		objects, err := store.List(ctx, prefix)
		if err != nil {
			return fmt.Errorf("list %s: %w", prefix, err)
		}
		published := make(map[string]bool, len(objects))
		for _, obj := range objects {
			published[obj.Key] = true
		}

		missing := 0
		for _, u := range urls {
			id := identity.Derive(u).ID
			if !published[objstore.ItemKey(cc.ID, day, id)] {
				missing++
			}
		}
		fmt.Printf("%-12s %8d %10d %8d\n", day.Format(time.DateOnly), len(urls), len(objects), missing)
	}
	return nil
}
