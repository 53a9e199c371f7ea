package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ppiankov/cragrank/internal/pipeline"
)

var (
	noCache     bool
	rateAfter   bool
	showSkipped bool
)

// collectCmd represents the collect command
var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Collect routes and ascents from 27crags into the catalog",
	Long: `Collect fetches the route list of every configured crag, then each route's
page and its "more ticks" payload, and writes the catalog file. An existing
catalog is replaced.

Requests to the same host are spaced by at least --delay. Routes that fail
to fetch or parse are skipped and reported, unless --fail-fast is set.

Example:
  cragrank collect
  cragrank collect --crag ostmarka-bukkeberget --crag ostmarka-haralokka
  cragrank collect --catalog boulders.json --delay 2s --rate`,
	Args: cobra.NoArgs,
	RunE: runCollect,
}

func init() {
	rootCmd.AddCommand(collectCmd)

	flags := collectCmd.Flags()
	flags.StringSlice("crag", nil, "crag slug as used in its 27crags URL (repeatable)")
	flags.String("base-url", "", "27crags base URL")
	flags.Duration("delay", 0, "minimum spacing between requests to one host (default: 1s)")
	flags.Int("concurrency", 0, "route pages fetched in parallel (default: 1)")
	flags.Bool("fail-fast", false, "abort on the first route that fails")
	flags.Bool("respect-robots", false, "skip paths disallowed by robots.txt and honour its crawl-delay")
	flags.Bool("more-dates-from-payload", false, "date extra ascents from the \"more ticks\" payload instead of the route page")
	flags.Duration("timeout", 0, "HTTP timeout per request (default: 30s)")
	flags.Int("attempts", 0, "attempts per request on transient failures (default: 1)")
	flags.String("ua", "", "HTTP User-Agent")
	flags.String("cache-dir", "", "page cache directory")
	flags.Bool("cache", false, "cache fetched pages in memory and on disk")

	flags.BoolVar(&noCache, "no-cache", false, "disable cache (force fresh fetch)")
	flags.BoolVar(&rateAfter, "rate", false, "rate the catalog once collected")
	flags.BoolVar(&showSkipped, "show-skipped", false, "list every skipped route")

	bindFlags(flags.Lookup, map[string]string{
		"crag":                    "collect.crags",
		"base-url":                "http.base_url",
		"delay":                   "collect.delay",
		"concurrency":             "collect.concurrency",
		"fail-fast":               "collect.fail_fast",
		"respect-robots":          "collect.respect_robots",
		"more-dates-from-payload": "collect.more_dates_from_payload",
		"timeout":                 "http.timeout",
		"attempts":                "http.attempts",
		"ua":                      "http.user_agent",
		"cache-dir":               "cache.dir",
		"cache":                   "cache.enabled",
	})
}

func runCollect(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return err
	}
	if noCache {
		cfg.Cache.Enabled = false
	}
	logger := setupLogger(cfg.Output.Verbose)

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  cragrank collection\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Crags:        %v\n", cfg.Collect.Crags)
	fmt.Fprintf(os.Stderr, "  Base URL:     %s\n", cfg.HTTP.BaseURL)
	fmt.Fprintf(os.Stderr, "  Delay:        %v\n", cfg.Collect.Delay)
	fmt.Fprintf(os.Stderr, "  Workers:      %d\n", cfg.Collect.Concurrency)
	fmt.Fprintf(os.Stderr, "  Cache:        %v\n", cfg.Cache.Enabled)
	fmt.Fprintf(os.Stderr, "  Catalog:      %s\n", cfg.Output.Catalog)
	fmt.Fprintf(os.Stderr, "\n")

	p, err := pipeline.NewPipeline(cfg, logger)
	if err != nil {
		return err
	}

	result, err := p.Collect(cmd.Context())
	if err != nil {
		return fmt.Errorf("collection failed: %w", err)
	}

	if showSkipped || cfg.Output.Verbose {
		for _, o := range result.Outcomes {
			if o.Skipped() {
				fmt.Fprintf(os.Stderr, "✗ %s: %v\n", o.URL, o.Err)
			}
		}
	}

	// Summary
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Collection Complete\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Routes:    %d\n", len(result.Catalog))
	fmt.Fprintf(os.Stderr, "  Skipped:   %d\n", result.Skipped)
	if cfg.Cache.Enabled {
		fmt.Fprintf(os.Stderr, "  Cache:     %d hits, %d misses\n", result.CacheHits, result.CacheMisses)
	}
	fmt.Fprintf(os.Stderr, "  Duration:  %v\n", result.Duration.Round(time.Millisecond))
	fmt.Fprintf(os.Stderr, "  Output:    %s\n", cfg.Output.Catalog)
	fmt.Fprintf(os.Stderr, "\n")

	if rateAfter {
		return rateAndRender(cmd, p, cfg)
	}
	return nil
}
