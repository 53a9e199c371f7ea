package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/ppiankov/cragrank/internal/cache"
	"github.com/ppiankov/cragrank/internal/crag"
	"github.com/ppiankov/cragrank/internal/model"
	"github.com/ppiankov/cragrank/internal/report"
	"github.com/ppiankov/cragrank/internal/score"
	"github.com/ppiankov/cragrank/internal/util"
	"github.com/ppiankov/cragrank/internal/worker"
)

// Pipeline wires the collector and the rating engine to one configuration
type Pipeline struct {
	config    *model.Config
	cache     cache.Cache
	fetcher   *Fetcher
	collector *crag.Collector
	scorer    *score.Scorer
	logger    *slog.Logger
}

// NewPipeline validates cfg and builds every component
func NewPipeline(cfg *model.Config, logger *slog.Logger) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	pageCache := cache.FromConfig(cfg.Cache)

	opts := []FetcherOption{WithCache(pageCache), WithLogger(logger)}
	if cfg.Collect.RespectRobots {
		robotsClient := &http.Client{
			Timeout:   cfg.HTTP.Timeout,
			Transport: &http.Transport{Proxy: util.NewProxyFunc(cfg.HTTP.HTTPProxy, cfg.HTTP.HTTPSProxy, cfg.HTTP.NoProxy)},
		}
		opts = append(opts, WithRobots(util.NewRobotsChecker(cfg.HTTP.UserAgent, robotsClient, cfg.HTTP.Timeout)))
	}
	fetcher := NewFetcher(cfg.HTTP, worker.NewLimiter(cfg.Collect.Delay), opts...)

	collector, err := crag.NewCollector(fetcher, cfg.HTTP.BaseURL, cfg.Collect, logger)
	if err != nil {
		return nil, err
	}

	scorer, err := score.NewScorer(cfg.Rating)
	if err != nil {
		return nil, err
	}

	return &Pipeline{
		config:    cfg,
		cache:     pageCache,
		fetcher:   fetcher,
		collector: collector,
		scorer:    scorer,
		logger:    logger.With("component", "pipeline"),
	}, nil
}

// CollectResult summarises a collection run
type CollectResult struct {
	Catalog     model.Catalog
	Outcomes    []model.RouteOutcome
	Skipped     int
	Duration    time.Duration
	CacheHits   int64
	CacheMisses int64
}

// Collect scrapes every configured crag and writes the catalog file
func (p *Pipeline) Collect(ctx context.Context) (*CollectResult, error) {
	start := time.Now()
	p.logger.Info("collection started", "crags", len(p.config.Collect.Crags), "catalog", p.config.Output.Catalog)

	catalog, outcomes, err := p.collector.CollectAll(ctx, p.config.Output.Catalog)
	if err != nil {
		return nil, fmt.Errorf("collect: %w", err)
	}

	result := &CollectResult{
		Catalog:  catalog,
		Outcomes: outcomes,
		Duration: time.Since(start),
	}
	for _, o := range outcomes {
		if o.Skipped() {
			result.Skipped++
		}
	}
	if layered, ok := p.cache.(*cache.LayeredCache); ok {
		result.CacheHits, result.CacheMisses = layered.Stats()
	}

	p.logger.Info("collection finished", "routes", len(catalog), "skipped", result.Skipped, "duration", result.Duration)
	return result, nil
}

// Rate loads the configured catalog and rates it
func (p *Pipeline) Rate() (*model.RatingReport, error) {
	report, err := p.scorer.RateFile(p.config.Output.Catalog)
	if err != nil {
		return nil, fmt.Errorf("rate: %w", err)
	}
	p.logger.Debug("catalog rated", "routes", report.Routes, "rated", report.Rated(), "global_mean", report.GlobalMean)
	return report, nil
}

// RenderReport writes the report to w and, when configured, exports it
func (p *Pipeline) RenderReport(w io.Writer, r *model.RatingReport) error {
	if err := report.Render(w, r, p.config.Output.Format, p.config.Output.Sort); err != nil {
		return fmt.Errorf("render: %w", err)
	}
	if p.config.Output.Export != "" {
		if err := report.Export(p.config.Output.Export, r, p.config.Output.Sort); err != nil {
			return err
		}
		p.logger.Info("report exported", "path", p.config.Output.Export)
	}
	return nil
}
