package source

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/html"

	"github.com/dylanlee/wncat/internal/identity"
)

// HTMLLister scrapes anchor hrefs from a directory listing page. An href is
// kept only when it contains every filter substring. The page is fetched once
// per lister and assets are assigned to days by their filename date. A failed
// fetch is not cached, so the next call tries the page again.
type HTMLLister struct {
	listingURL string
	filters    []string
	client     *http.Client
	logger     *slog.Logger

	mu   sync.Mutex
	urls []string
}

// NewHTMLLister creates a lister for listingURL. A nil client uses
// http.DefaultClient.
func NewHTMLLister(listingURL string, filters []string, client *http.Client) *HTMLLister {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTMLLister{
		listingURL: listingURL,
		filters:    filters,
		client:     client,
		logger:     slog.Default(),
	}
}

// WithLogger sets a custom logger for the lister.
func (l *HTMLLister) WithLogger(logger *slog.Logger) *HTMLLister {
	if logger != nil {
		l.logger = logger
	}
	return l
}

func (l *HTMLLister) List(ctx context.Context, day time.Time) ([]string, error) {
	all, err := l.All(ctx)
	if err != nil {
		return nil, err
	}
	day = identity.Day(day)
	var out []string
	for _, u := range all {
		if identity.Derive(u).Day().Equal(day) {
			out = append(out, u)
		}
	}
	return out, nil
}

// All returns every matching URL on the listing page.
func (l *HTMLLister) All(ctx context.Context) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.urls != nil {
		return l.urls, nil
	}
	urls, err := l.scrape(ctx)
	if err != nil {
		return nil, err
	}
	if urls == nil {
		urls = []string{}
	}
	l.urls = urls
	return urls, nil
}

func (l *HTMLLister) scrape(ctx context.Context) ([]string, error) {
	base, err := url.Parse(l.listingURL)
	if err != nil {
		return nil, fmt.Errorf("invalid listing URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.listingURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := l.client.Do(req)
	if err != nil {
		l.logger.ErrorContext(ctx, "listing request failed",
			slog.String("error", err.Error()),
			slog.String("url", l.listingURL),
		)
		return nil, fmt.Errorf("listing request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("listing %s returned status %d: %s", l.listingURL, resp.StatusCode, string(body))
	}

	doc, err := html.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse listing %s: %w", l.listingURL, err)
	}

	var (
		urls []string
		seen = make(map[string]bool)
	)
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			href := getAttr(n, "href")
			if href != "" && matchesAll(href, l.filters) {
				if ref, err := url.Parse(href); err == nil {
					abs := base.ResolveReference(ref).String()
					if !seen[abs] {
						seen[abs] = true
						urls = append(urls, abs)
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	l.logger.DebugContext(ctx, "listing scraped",
		slog.String("url", l.listingURL),
		slog.Int("matches", len(urls)),
	)
	return urls, nil
}

func getAttr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func matchesAll(href string, filters []string) bool {
	for _, f := range filters {
		if f != "" && !strings.Contains(href, f) {
			return false
		}
	}
	return true
}
