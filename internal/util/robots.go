package util

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
)

// allowAll stands in for hosts whose robots.txt cannot be fetched
var allowAll, _ = robotstxt.FromStatusAndBytes(http.StatusNotFound, nil)

// RobotsChecker answers robots.txt questions and keeps one parsed file per host
type RobotsChecker struct {
	client *http.Client
	agent  string

	mu    sync.Mutex
	hosts map[string]*robotstxt.RobotsData
	pace  func(ctx context.Context, rawURL string) error
}

// NewRobotsChecker creates a checker that fetches robots.txt with client.
// A nil client gets a plain client with the given timeout.
func NewRobotsChecker(userAgent string, client *http.Client, timeout time.Duration) *RobotsChecker {
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &RobotsChecker{
		client: client,
		agent:  NormalizeUserAgent(userAgent),
		hosts:  make(map[string]*robotstxt.RobotsData),
	}
}

// PaceWith makes every robots.txt request wait on pace first, typically the
// same per-host limiter the page requests use
func (r *RobotsChecker) PaceWith(pace func(ctx context.Context, rawURL string) error) {
	r.mu.Lock()
	r.pace = pace
	r.mu.Unlock()
}

// CanFetch reports whether rawURL may be fetched and the host's crawl delay.
// A host whose robots.txt is unreachable allows everything, and is not asked again
// until Clear.
func (r *RobotsChecker) CanFetch(ctx context.Context, rawURL string) (bool, time.Duration, error) {
	target, err := url.Parse(rawURL)
	if err != nil {
		return false, 0, fmt.Errorf("parse URL: %w", err)
	}

	data := r.forHost(ctx, target)

	path := target.EscapedPath()
	if path == "" {
		path = "/"
	}

	var delay time.Duration
	if group := data.FindGroup(r.agent); group != nil {
		delay = group.CrawlDelay
	}
	return data.TestAgent(path, r.agent), delay, nil
}

func (r *RobotsChecker) forHost(ctx context.Context, target *url.URL) *robotstxt.RobotsData {
	r.mu.Lock()
	data, ok := r.hosts[target.Host]
	pace := r.pace
	r.mu.Unlock()
	if ok {
		return data
	}

	data, err := r.fetch(ctx, pace, target.Scheme+"://"+target.Host+"/robots.txt")
	if err != nil {
		// A cancelled caller says nothing about the host
		if ctx.Err() != nil {
			return allowAll
		}
		data = allowAll
	}

	r.mu.Lock()
	r.hosts[target.Host] = data
	r.mu.Unlock()
	return data
}

func (r *RobotsChecker) fetch(ctx context.Context, pace func(context.Context, string) error, robotsURL string) (*robotstxt.RobotsData, error) {
	if pace != nil {
		if err := pace(ctx, robotsURL); err != nil {
			return nil, fmt.Errorf("wait for %s: %w", robotsURL, err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", r.agent)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch robots.txt: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	// 4xx allows everything, 5xx disallows everything
	return robotstxt.FromResponse(resp)
}

// Clear forgets every host
func (r *RobotsChecker) Clear() {
	r.mu.Lock()
	r.hosts = make(map[string]*robotstxt.RobotsData)
	r.mu.Unlock()
}

// NormalizeUserAgent reduces a user agent to its product token, which is what robots.txt groups match on
func NormalizeUserAgent(ua string) string {
	product, _, _ := strings.Cut(strings.TrimSpace(ua), " ")
	name, _, _ := strings.Cut(product, "/")
	return name
}
