package source

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"
)

const userAgent = "wncat/1.0"

// NewHTTPClient returns the client shared by listers and the fetcher.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// HTTPFetcher downloads source rasters over HTTP(S).
type HTTPFetcher struct {
	httpClient *http.Client
	logger     *slog.Logger
}

// NewHTTPFetcher creates a fetcher. A nil client uses http.DefaultClient.
func NewHTTPFetcher(client *http.Client) *HTTPFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPFetcher{httpClient: client, logger: slog.Default()}
}

// WithLogger sets a custom logger for the fetcher
func (f *HTTPFetcher) WithLogger(logger *slog.Logger) *HTTPFetcher {
	if logger != nil {
		f.logger = logger
	}
	return f
}

// Fetch writes the body of url to dest. A partial file is removed on failure.
func (f *HTTPFetcher) Fetch(ctx context.Context, url, dest string) (err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		f.logger.ErrorContext(ctx, "download request failed",
			slog.String("error", err.Error()),
			slog.String("url", url),
		)
		return fmt.Errorf("download %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("download %s returned status %d: %s", url, resp.StatusCode, string(body))
	}

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create %s: %w", dest, err)
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", dest, cerr)
		}
		if err != nil {
			os.Remove(dest)
		}
	}()

	n, err := io.Copy(out, resp.Body)
	if err != nil {
		return fmt.Errorf("download %s: %w", url, err)
	}

	f.logger.DebugContext(ctx, "source downloaded",
		slog.String("url", url),
		slog.Int64("bytes", n),
	)
	return nil
}
