package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/ppiankov/cragrank/internal/model"
)

func bindFlags(lookup func(string) *pflag.Flag, keys map[string]string) {
	for flag, key := range keys {
		_ = viper.BindPFlag(key, lookup(flag))
	}
}

// loadConfig merges defaults, config file, environment and flags.
// Priority (highest to lowest): CLI flags > env vars > config file > defaults.
func loadConfig(v *viper.Viper) (*model.Config, error) {
	if initErr != nil {
		return nil, initErr
	}

	cfg := model.DefaultConfig()
	setDefaults(v, cfg)

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// setDefaults registers default values in viper
func setDefaults(v *viper.Viper, cfg *model.Config) {
	v.SetDefault("http.base_url", cfg.HTTP.BaseURL)
	v.SetDefault("http.user_agent", cfg.HTTP.UserAgent)
	v.SetDefault("http.timeout", cfg.HTTP.Timeout)
	v.SetDefault("http.max_body_bytes", cfg.HTTP.MaxBodyBytes)
	v.SetDefault("http.attempts", cfg.HTTP.Attempts)
	v.SetDefault("http.http_proxy", cfg.HTTP.HTTPProxy)
	v.SetDefault("http.https_proxy", cfg.HTTP.HTTPSProxy)
	v.SetDefault("http.no_proxy", cfg.HTTP.NoProxy)

	v.SetDefault("collect.crags", cfg.Collect.Crags)
	v.SetDefault("collect.list_pattern", cfg.Collect.ListPattern)
	v.SetDefault("collect.delay", cfg.Collect.Delay)
	v.SetDefault("collect.concurrency", cfg.Collect.Concurrency)
	v.SetDefault("collect.fail_fast", cfg.Collect.FailFast)
	v.SetDefault("collect.respect_robots", cfg.Collect.RespectRobots)
	v.SetDefault("collect.more_dates_from_payload", cfg.Collect.MoreDatesFromPayload)

	v.SetDefault("cache.enabled", cfg.Cache.Enabled)
	v.SetDefault("cache.dir", cfg.Cache.Dir)
	v.SetDefault("cache.memory_ttl", cfg.Cache.MemoryTTL)
	v.SetDefault("cache.disk_ttl", cfg.Cache.DiskTTL)

	v.SetDefault("rating.min_votes", cfg.Rating.MinVotes)
	v.SetDefault("rating.prior_votes", cfg.Rating.PriorVotes)
	v.SetDefault("rating.prior", string(cfg.Rating.Prior))

	v.SetDefault("output.catalog", cfg.Output.Catalog)
	v.SetDefault("output.format", cfg.Output.Format)
	v.SetDefault("output.sort", cfg.Output.Sort)
	v.SetDefault("output.export", cfg.Output.Export)
	v.SetDefault("output.verbose", cfg.Output.Verbose)
}

// setupLogger returns a text logger on stderr, at debug level when verbose
func setupLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}
