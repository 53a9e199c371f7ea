package worker

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter spaces requests per host. Every host gets a token bucket of size
// one, so two requests to the same host are never closer than its spacing.
type Limiter struct {
	limiters       map[string]*rate.Limiter
	spacing        map[string]time.Duration
	mu             sync.Mutex
	defaultSpacing time.Duration
}

// NewLimiter creates a limiter with the given minimum spacing per host.
// A spacing of zero disables limiting.
func NewLimiter(spacing time.Duration) *Limiter {
	if spacing < 0 {
		spacing = 0
	}

	return &Limiter{
		limiters:       make(map[string]*rate.Limiter),
		spacing:        make(map[string]time.Duration),
		defaultSpacing: spacing,
	}
}

// Wait blocks until a request to rawURL's host may be sent
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	host, err := extractHost(rawURL)
	if err != nil {
		return err
	}

	return l.getLimiter(host).Wait(ctx)
}

// Allow reports whether a request to rawURL's host may be sent now, consuming the slot if so
func (l *Limiter) Allow(rawURL string) bool {
	host, err := extractHost(rawURL)
	if err != nil {
		return false
	}

	return l.getLimiter(host).Allow()
}

// Spacing returns the current minimum spacing for host
func (l *Limiter) Spacing(host string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	if d, ok := l.spacing[host]; ok {
		return d
	}
	return l.defaultSpacing
}

// RaiseSpacing widens the spacing for host to d. It never narrows it, so a
// robots.txt crawl-delay can only make the collector slower.
func (l *Limiter) RaiseSpacing(host string, d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	current := l.defaultSpacing
	if existing, ok := l.spacing[host]; ok {
		current = existing
	}
	if d <= current {
		return
	}

	l.spacing[host] = d
	if limiter, ok := l.limiters[host]; ok {
		limiter.SetLimit(every(d))
		return
	}
	l.limiters[host] = rate.NewLimiter(every(d), 1)
}

func (l *Limiter) getLimiter(host string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if limiter, ok := l.limiters[host]; ok {
		return limiter
	}

	spacing := l.defaultSpacing
	if d, ok := l.spacing[host]; ok {
		spacing = d
	}
	limiter := rate.NewLimiter(every(spacing), 1)
	l.limiters[host] = limiter

	return limiter
}

func every(d time.Duration) rate.Limit {
	if d <= 0 {
		return rate.Inf
	}
	return rate.Every(d)
}

func extractHost(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("no host in %q", rawURL)
	}
	return parsed.Host, nil
}
