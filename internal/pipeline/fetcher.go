package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html/charset"

	"github.com/ppiankov/cragrank/internal/cache"
	"github.com/ppiankov/cragrank/internal/model"
	"github.com/ppiankov/cragrank/internal/util"
	"github.com/ppiankov/cragrank/internal/worker"
)

// ErrDisallowed is returned for URLs that robots.txt excludes
var ErrDisallowed = errors.New("disallowed by robots.txt")

// ErrBodyTooLarge is returned for bodies over the configured size cap
var ErrBodyTooLarge = errors.New("response body too large")

var errTooManyRedirects = errors.New("stopped after 3 redirects")

// fetchSleepFunc is the wait between attempts (injectable for tests)
var fetchSleepFunc = func(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// StatusError is returned for non-2xx responses
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d %s for %s", e.StatusCode, http.StatusText(e.StatusCode), e.URL)
}

// Retryable reports whether another attempt might succeed
func (e *StatusError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Fetcher performs polite GET requests: every network request waits for the
// per-host limiter, and bodies can be served from a cache
type Fetcher struct {
	httpClient *http.Client
	userAgent  string
	maxBytes   int64
	attempts   int
	limiter    *worker.Limiter
	cache      cache.Cache
	robots     *util.RobotsChecker
	logger     *slog.Logger
}

// FetcherOption customises a Fetcher
type FetcherOption func(*Fetcher)

// WithCache serves and stores bodies through c
func WithCache(c cache.Cache) FetcherOption {
	return func(f *Fetcher) { f.cache = c }
}

// WithRobots checks robots.txt before each request and applies its crawl delay
func WithRobots(r *util.RobotsChecker) FetcherOption {
	return func(f *Fetcher) { f.robots = r }
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) FetcherOption {
	return func(f *Fetcher) { f.logger = l }
}

// WithHTTPClient replaces the default client
func WithHTTPClient(c *http.Client) FetcherOption {
	return func(f *Fetcher) { f.httpClient = c }
}

// NewFetcher creates a Fetcher for cfg whose requests are spaced by limiter
func NewFetcher(cfg model.HTTPConfig, limiter *worker.Limiter, opts ...FetcherOption) *Fetcher {
	attempts := cfg.Attempts
	if attempts < 1 {
		attempts = 1
	}
	if limiter == nil {
		limiter = worker.NewLimiter(0)
	}

	f := &Fetcher{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				Proxy: util.NewProxyFunc(cfg.HTTPProxy, cfg.HTTPSProxy, cfg.NoProxy),
			},
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 3 {
					return errTooManyRedirects
				}
				return nil
			},
		},
		userAgent: cfg.UserAgent,
		maxBytes:  cfg.MaxBodyBytes,
		attempts:  attempts,
		limiter:   limiter,
		cache:     cache.Nop{},
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.logger = f.logger.With("component", "fetcher")
	if f.robots != nil {
		// robots.txt requests count against the host's spacing too
		f.robots.PaceWith(f.limiter.Wait)
	}

	return f
}

// FetchResult contains a fetched body and where it came from
type FetchResult struct {
	Body        []byte
	FinalURL    string
	StatusCode  int
	ContentType string
	FromCache   bool
}

// Fetch retrieves rawURL, trying up to the configured number of attempts on
// transient failures
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*FetchResult, error) {
	key := cache.Key(rawURL)
	if body, ok := f.cache.Get(key); ok {
		f.logger.Debug("cache hit", "url", rawURL)
		return &FetchResult{Body: body, FinalURL: rawURL, StatusCode: http.StatusOK, FromCache: true}, nil
	}

	if f.robots != nil {
		allowed, crawlDelay, err := f.robots.CanFetch(ctx, rawURL)
		if err != nil {
			return nil, fmt.Errorf("robots: %w", err)
		}
		if !allowed {
			return nil, fmt.Errorf("%s: %w", rawURL, ErrDisallowed)
		}
		if crawlDelay > 0 {
			if parsed, err := url.Parse(rawURL); err == nil {
				f.limiter.RaiseSpacing(parsed.Host, crawlDelay)
			}
		}
	}

	var result *FetchResult
	var err error
	for attempt := 1; attempt <= f.attempts; attempt++ {
		result, err = f.fetchOnce(ctx, rawURL)
		if err == nil || !isRetryableFetchError(err) || attempt == f.attempts {
			break
		}
		backoff := time.Duration(1<<uint(attempt-1)) * time.Second
		f.logger.Warn("fetch failed, retrying", "url", rawURL, "attempt", attempt, "backoff", backoff, "err", err)
		if sleepErr := fetchSleepFunc(ctx, backoff); sleepErr != nil {
			return nil, fmt.Errorf("%s: %w", rawURL, sleepErr)
		}
	}
	if err != nil {
		return nil, err
	}

	if err := f.cache.Set(key, result.Body, 0); err != nil {
		f.logger.Warn("cache store failed", "url", rawURL, "err", err)
	}

	return result, nil
}

// Get returns only the body of rawURL
func (f *Fetcher) Get(ctx context.Context, rawURL string) ([]byte, error) {
	result, err := f.Fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	return result.Body, nil
}

func (f *Fetcher) fetchOnce(ctx context.Context, rawURL string) (*FetchResult, error) {
	if err := f.limiter.Wait(ctx, rawURL); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/json;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	f.logger.Debug("fetching", "url", rawURL)
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(raw)) > f.maxBytes {
		return nil, fmt.Errorf("%s: over %d bytes: %w", rawURL, f.maxBytes, ErrBodyTooLarge)
	}

	contentType := resp.Header.Get("Content-Type")
	reader, err := charset.NewReader(bytes.NewReader(raw), contentType)
	if err != nil {
		return nil, fmt.Errorf("decode body: %w", err)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("decode body: %w", err)
	}

	return &FetchResult{
		Body:        body,
		FinalURL:    resp.Request.URL.String(),
		StatusCode:  resp.StatusCode,
		ContentType: contentType,
	}, nil
}

// isRetryableFetchError reports whether err is a transient failure
func isRetryableFetchError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, errTooManyRedirects) || errors.Is(err, ErrBodyTooLarge) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Retryable()
	}
	// *url.Error is itself a net.Error; the transport failure underneath decides
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		err = urlErr.Err
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "connection refused") ||
		strings.Contains(s, "connection reset") ||
		strings.Contains(s, "timeout")
}
