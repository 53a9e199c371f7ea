package crag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"

	"github.com/ppiankov/cragrank/internal/model"
	"github.com/ppiankov/cragrank/internal/storage"
	"github.com/ppiankov/cragrank/internal/worker"
)

// Fetcher returns the body of a page. Implementations are responsible for
// request spacing.
type Fetcher interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// Collector scrapes routes and their ascents from 27crags
type Collector struct {
	fetcher Fetcher
	base    *url.URL
	cfg     model.CollectConfig
	logger  *slog.Logger
}

// NewCollector creates a collector that resolves links against baseURL
func NewCollector(fetcher Fetcher, baseURL string, cfg model.CollectConfig, logger *slog.Logger) (*Collector, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base URL %q must be absolute", baseURL)
	}
	if cfg.ListPattern == "" {
		cfg.ListPattern = model.DefaultConfig().Collect.ListPattern
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Collector{
		fetcher: fetcher,
		base:    base,
		cfg:     cfg,
		logger:  logger.With("component", "collector"),
	}, nil
}

// ListURL returns the route list page of crag
func (c *Collector) ListURL(crag string) string {
	return c.base.String() + fmt.Sprintf(c.cfg.ListPattern, crag)
}

// resolve turns a link found on a page into an absolute URL
func (c *Collector) resolve(href string) (string, error) {
	ref, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("parse link %q: %w", href, err)
	}
	return c.base.ResolveReference(ref).String(), nil
}

// CollectAll collects every configured crag in order, merges the results and
// writes the catalog to path, replacing whatever was there. Routes of a later
// crag overwrite same-named routes of an earlier one.
func (c *Collector) CollectAll(ctx context.Context, path string) (model.Catalog, []model.RouteOutcome, error) {
	catalog := make(model.Catalog)
	var outcomes []model.RouteOutcome

	for _, crag := range c.cfg.Crags {
		routes, cragOutcomes, err := c.CollectCrag(ctx, crag)
		outcomes = append(outcomes, cragOutcomes...)
		if err != nil {
			return nil, outcomes, err
		}
		catalog.Merge(routes)
	}

	if err := storage.SaveCatalog(path, catalog); err != nil {
		return nil, outcomes, err
	}
	c.logger.Info("catalog written", "path", path, "routes", len(catalog))

	return catalog, outcomes, nil
}

// CollectCrag collects every route on crag's route list. Each route yields an
// outcome; with fail-fast on, the first skipped route aborts the crag with
// its error. A route list failure always aborts.
func (c *Collector) CollectCrag(ctx context.Context, crag string) (model.Catalog, []model.RouteOutcome, error) {
	listURL := c.ListURL(crag)
	logger := c.logger.With("crag", crag)
	logger.Info("collecting crag", "url", listURL)

	body, err := c.fetcher.Get(ctx, listURL)
	if err != nil {
		return nil, nil, fmt.Errorf("crag %s: route list: %w", crag, err)
	}
	hrefs, err := ParseRouteList(listURL, body)
	if err != nil {
		return nil, nil, fmt.Errorf("crag %s: %w", crag, err)
	}
	logger.Debug("route list parsed", "routes", len(hrefs))

	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	pool := worker.NewPool(jobCtx, c.cfg.Concurrency)
	pool.Start()
	for i, href := range hrefs {
		job := &routeJob{collector: c, crag: crag, href: href, index: i}
		if c.cfg.FailFast {
			job.abort = cancel
		}
		if !pool.Submit(job) {
			break
		}
	}
	results := pool.Wait()

	outcomes := make([]indexedOutcome, 0, len(results))
	for _, r := range results {
		outcomes = append(outcomes, r.(*routeResult).indexedOutcome)
	}
	sort.Slice(outcomes, func(i, j int) bool { return outcomes[i].index < outcomes[j].index })

	if err := ctx.Err(); err != nil {
		return nil, flatten(outcomes), fmt.Errorf("crag %s: %w", crag, err)
	}

	routes := make(model.Catalog)
	skipped := 0
	for _, o := range outcomes {
		if !o.Skipped() {
			routes.Add(o.Route)
			continue
		}
		// Routes cancelled by an earlier fail-fast abort are not failures of their own
		if errors.Is(o.Err, context.Canceled) {
			continue
		}
		if c.cfg.FailFast {
			return nil, flatten(outcomes), fmt.Errorf("crag %s: %w", crag, o.Err)
		}
		skipped++
		logger.Warn("route skipped", "url", o.URL, "err", o.Err)
	}

	logger.Info("crag collected", "routes", len(routes), "skipped", skipped)
	return routes, flatten(outcomes), nil
}

// collectRoute fetches one route page and, when the page offers it, the
// "more ticks" payload
func (c *Collector) collectRoute(ctx context.Context, crag, routeURL string) (*model.Route, error) {
	body, err := c.fetcher.Get(ctx, routeURL)
	if err != nil {
		return nil, err
	}
	page, err := ParseRoutePage(routeURL, body)
	if err != nil {
		return nil, err
	}

	ascents := page.Ascents()

	if page.MoreHref != "" {
		moreURL, err := c.resolve(page.MoreHref)
		if err != nil {
			return nil, err
		}
		moreBody, err := c.fetcher.Get(ctx, moreURL)
		if err != nil {
			return nil, fmt.Errorf("more ticks: %w", err)
		}
		more, err := ParseMoreTicks(moreURL, moreBody)
		if err != nil {
			return nil, err
		}

		// The route page's dates are reused unless the payload's own are asked for
		dates := page.Dates
		if c.cfg.MoreDatesFromPayload {
			if dates, err = more.Dates(); err != nil {
				return nil, fmt.Errorf("more ticks: %w", err)
			}
		}
		ascents = append(ascents, zipAscents(more.Ratings, dates)...)
	}

	return &model.Route{
		Name:     page.Name,
		Location: page.Location,
		Grade:    page.Grade,
		Crag:     crag,
		Ascents:  ascents,
	}, nil
}

type indexedOutcome struct {
	model.RouteOutcome
	index int
}

func flatten(outcomes []indexedOutcome) []model.RouteOutcome {
	out := make([]model.RouteOutcome, len(outcomes))
	for i, o := range outcomes {
		out[i] = o.RouteOutcome
	}
	return out
}

// routeJob collects a single route on the worker pool
type routeJob struct {
	collector *Collector
	crag      string
	href      string
	index     int
	abort     context.CancelFunc // Set with fail-fast
}

type routeResult struct {
	indexedOutcome
}

func (r *routeResult) GetError() error { return r.Err }

func (j *routeJob) Execute(ctx context.Context) worker.Result {
	outcome := model.RouteOutcome{Crag: j.crag}

	routeURL, err := j.collector.resolve(j.href)
	if err == nil {
		outcome.URL = routeURL
		outcome.Route, err = j.collector.collectRoute(ctx, j.crag, routeURL)
	} else {
		outcome.URL = j.href
	}
	outcome.Err = err

	if err != nil && j.abort != nil && ctx.Err() == nil {
		j.abort()
	}

	return &routeResult{indexedOutcome{RouteOutcome: outcome, index: j.index}}
}
