package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// maxAssetBytes caps a single downloaded sample.
const maxAssetBytes = 32 << 20

// ErrNotFound reports a locator that points at nothing.
var ErrNotFound = errors.New("asset not found")

// Fetcher retrieves the raw bytes behind a locator.
type Fetcher interface {
	Fetch(ctx context.Context, locator string) ([]byte, error)
}

// HTTPFetcher downloads samples from a remote host, paced by a token bucket
// so a burst of preloads does not hammer the sample server.
type HTTPFetcher struct {
	apiKey  string
	limiter *rate.Limiter
	http    *http.Client
}

// NewHTTPFetcher creates a fetcher allowing perSecond requests with a small burst.
// A non-positive rate disables pacing.
func NewHTTPFetcher(apiKey string, perSecond float64) *HTTPFetcher {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	return &HTTPFetcher{
		apiKey:  apiKey,
		limiter: rate.NewLimiter(limit, 4),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, locator string) ([]byte, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if f.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+f.apiKey)
	}

	resp, err := f.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download sample: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%s: %w", locator, ErrNotFound)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("download sample: HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAssetBytes))
	if err != nil {
		return nil, fmt.Errorf("read sample: %w", err)
	}
	return data, nil
}

// Probe checks once that the sample host answers for locator. Any status
// below 500 counts as reachable; a missing note is not a dead host.
func (f *HTTPFetcher) Probe(ctx context.Context, locator string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, locator, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if f.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+f.apiKey)
	}
	resp, err := f.http.Do(req)
	if err != nil {
		return fmt.Errorf("probe sample host: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("probe sample host: HTTP %d", resp.StatusCode)
	}
	return nil
}

// FileFetcher reads bundled assets from disk. Relative locators resolve
// against Root.
type FileFetcher struct {
	Root string
}

func (f FileFetcher) Fetch(ctx context.Context, locator string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := strings.TrimPrefix(locator, "file://")
	if !filepath.IsAbs(path) && f.Root != "" {
		path = filepath.Join(f.Root, path)
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read asset: %w", err)
	}
	return data, nil
}

// MultiFetcher routes http(s) locators to Remote and everything else to Local.
type MultiFetcher struct {
	Remote Fetcher
	Local  Fetcher
}

func (m MultiFetcher) Fetch(ctx context.Context, locator string) ([]byte, error) {
	if strings.HasPrefix(locator, "http://") || strings.HasPrefix(locator, "https://") {
		if m.Remote == nil {
			return nil, fmt.Errorf("no remote fetcher for %s", locator)
		}
		return m.Remote.Fetch(ctx, locator)
	}
	if m.Local == nil {
		return nil, fmt.Errorf("no local fetcher for %s", locator)
	}
	return m.Local.Fetch(ctx, locator)
}
