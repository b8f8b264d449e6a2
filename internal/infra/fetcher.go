package infra

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/eliteGoblin/hawkeye/internal/domain"
)

const (
	defaultFetchTimeout      = 10 * time.Second
	defaultGuardFetchTimeout = 5 * time.Minute

	// Caps on how much of a response is read into memory. The guard is a
	// full executable, the JSON documents are small.
	maxDocumentBytes = 8 << 20
	maxGuardBytes    = 256 << 20
)

// fetchLimit bounds one request.
type fetchLimit struct {
	timeout  time.Duration
	maxBytes int64
}

// HTTPFetcher implements domain.Fetcher over HTTP(S).
type HTTPFetcher struct {
	client    *http.Client
	document  fetchLimit
	guard     fetchLimit
	userAgent string
}

// NewHTTPFetcher creates a fetcher bounding JSON documents by timeout and
// the guard executable by the default guard timeout.
func NewHTTPFetcher(timeout time.Duration, userAgent string) *HTTPFetcher {
	return NewHTTPFetcherWithLimits(timeout, defaultGuardFetchTimeout, userAgent)
}

// NewHTTPFetcherWithLimits creates a fetcher with separate timeouts for JSON
// documents and for the guard executable. The guard timeout is never
// shorter than the document timeout.
func NewHTTPFetcherWithLimits(timeout, guardTimeout time.Duration, userAgent string) *HTTPFetcher {
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	if guardTimeout <= 0 {
		guardTimeout = defaultGuardFetchTimeout
	}
	if guardTimeout < timeout {
		guardTimeout = timeout
	}
	return &HTTPFetcher{
		// Backstop only; each request carries its own deadline
		client:    &http.Client{Timeout: guardTimeout},
		document:  fetchLimit{timeout: timeout, maxBytes: maxDocumentBytes},
		guard:     fetchLimit{timeout: guardTimeout, maxBytes: maxGuardBytes},
		userAgent: userAgent,
	}
}

func (f *HTTPFetcher) limitFor(kind domain.ArtifactKind) fetchLimit {
	if kind == domain.KindGuard {
		return f.guard
	}
	return f.document
}

// Fetch retrieves url for an artifact of the given kind. Errors cover
// transport failures, timeouts, non-2xx status and oversized bodies.
func (f *HTTPFetcher) Fetch(ctx context.Context, kind domain.ArtifactKind, url string) (*domain.FetchResult, error) {
	limit := f.limitFor(kind)
	ctx, cancel := context.WithTimeout(ctx, limit.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetch %s returned status %d", url, resp.StatusCode)
	}
	if resp.ContentLength > limit.maxBytes {
		return nil, fmt.Errorf("body of %s exceeds %d bytes", url, limit.maxBytes)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, limit.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read body of %s: %w", url, err)
	}
	if int64(len(body)) > limit.maxBytes {
		return nil, fmt.Errorf("body of %s exceeds %d bytes", url, limit.maxBytes)
	}

	return &domain.FetchResult{
		Body:        body,
		ContentType: resp.Header.Get("Content-Type"),
	}, nil
}

// Ensure HTTPFetcher implements domain.Fetcher.
var _ domain.Fetcher = (*HTTPFetcher)(nil)
