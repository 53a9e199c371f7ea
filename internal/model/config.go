package model

import (
	"errors"
	"fmt"
	"time"
)

// Config holds the complete cragrank configuration
type Config struct {
	HTTP    HTTPConfig    `yaml:"http" mapstructure:"http"`
	Collect CollectConfig `yaml:"collect" mapstructure:"collect"`
	Cache   CacheConfig   `yaml:"cache" mapstructure:"cache"`
	Rating  RatingConfig  `yaml:"rating" mapstructure:"rating"`
	Output  OutputConfig  `yaml:"output" mapstructure:"output"`
}

// HTTPConfig configures outbound requests
type HTTPConfig struct {
	BaseURL      string        `yaml:"base_url" mapstructure:"base_url"`
	UserAgent    string        `yaml:"user_agent" mapstructure:"user_agent"`
	Timeout      time.Duration `yaml:"timeout" mapstructure:"timeout"`
	MaxBodyBytes int64         `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	Attempts     int           `yaml:"attempts" mapstructure:"attempts"` // 1 = no retry
	HTTPProxy    string        `yaml:"http_proxy,omitempty" mapstructure:"http_proxy"`
	HTTPSProxy   string        `yaml:"https_proxy,omitempty" mapstructure:"https_proxy"`
	NoProxy      string        `yaml:"no_proxy,omitempty" mapstructure:"no_proxy"`
}

// CollectConfig configures the route collector
type CollectConfig struct {
	// Crags are 27crags URL slugs, as used in the crag's front page URL
	Crags         []string      `yaml:"crags" mapstructure:"crags"`
	ListPattern   string        `yaml:"list_pattern" mapstructure:"list_pattern"`
	Delay         time.Duration `yaml:"delay" mapstructure:"delay"` // Minimum spacing between requests to one host
	Concurrency   int           `yaml:"concurrency" mapstructure:"concurrency"`
	FailFast      bool          `yaml:"fail_fast" mapstructure:"fail_fast"`
	RespectRobots bool          `yaml:"respect_robots" mapstructure:"respect_robots"`

	// MoreDatesFromPayload pairs "more ticks" ascents with the payload's own
	// dates instead of the route page's
	MoreDatesFromPayload bool `yaml:"more_dates_from_payload" mapstructure:"more_dates_from_payload"`
}

// CacheConfig configures the page cache
type CacheConfig struct {
	Enabled   bool          `yaml:"enabled" mapstructure:"enabled"`
	Dir       string        `yaml:"dir" mapstructure:"dir"`
	MemoryTTL time.Duration `yaml:"memory_ttl" mapstructure:"memory_ttl"`
	DiskTTL   time.Duration `yaml:"disk_ttl" mapstructure:"disk_ttl"`
}

// RatingConfig configures the weighted rating
type RatingConfig struct {
	MinVotes   int        `yaml:"min_votes" mapstructure:"min_votes"`
	PriorVotes int        `yaml:"prior_votes" mapstructure:"prior_votes"` // m
	Prior      PriorScope `yaml:"prior" mapstructure:"prior"`
}

// OutputConfig configures catalog location and report rendering
type OutputConfig struct {
	Catalog string `yaml:"catalog" mapstructure:"catalog"`
	Format  string `yaml:"format" mapstructure:"format"` // text, table, csv, json
	Sort    string `yaml:"sort" mapstructure:"sort"`     // name, wr
	Export  string `yaml:"export,omitempty" mapstructure:"export"`
	Verbose bool   `yaml:"-" mapstructure:"verbose"`
}

// DefaultConfig returns the built-in defaults
func DefaultConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{
			BaseURL:      "https://27crags.com",
			UserAgent:    "cragrank/0.1 (+https://github.com/ppiankov/cragrank)",
			Timeout:      30 * time.Second,
			MaxBodyBytes: 4_000_000,
			Attempts:     1,
		},
		Collect: CollectConfig{
			Crags:       []string{"ostmarka-bukkeberget"},
			ListPattern: "/crags/%s/routelist",
			Delay:       time.Second,
			Concurrency: 1,
		},
		Cache: CacheConfig{
			Enabled:   false,
			Dir:       ".cragrank-cache",
			MemoryTTL: 30 * time.Minute,
			DiskTTL:   24 * time.Hour,
		},
		Rating: RatingConfig{
			MinVotes:   5,
			PriorVotes: 5,
			Prior:      PriorGlobal,
		},
		Output: OutputConfig{
			Catalog: "all_boulders_test.json",
			Format:  "text",
			Sort:    "name",
		},
	}
}

// Validate reports every invalid setting
func (c *Config) Validate() error {
	var errs []error

	if c.HTTP.BaseURL == "" {
		errs = append(errs, errors.New("http.base_url must be set"))
	}
	if c.HTTP.Attempts < 1 {
		errs = append(errs, fmt.Errorf("http.attempts must be >= 1, got %d", c.HTTP.Attempts))
	}
	if c.HTTP.MaxBodyBytes <= 0 {
		errs = append(errs, fmt.Errorf("http.max_body_bytes must be positive, got %d", c.HTTP.MaxBodyBytes))
	}
	if c.Collect.Delay < 0 {
		errs = append(errs, fmt.Errorf("collect.delay must not be negative, got %v", c.Collect.Delay))
	}
	if c.Collect.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("collect.concurrency must be >= 1, got %d", c.Collect.Concurrency))
	}
	if c.Rating.MinVotes < 0 {
		errs = append(errs, fmt.Errorf("rating.min_votes must not be negative, got %d", c.Rating.MinVotes))
	}
	if c.Rating.PriorVotes <= 0 {
		errs = append(errs, fmt.Errorf("rating.prior_votes must be positive, got %d", c.Rating.PriorVotes))
	}
	switch c.Rating.Prior {
	case PriorGlobal, PriorGrade:
	default:
		errs = append(errs, fmt.Errorf("rating.prior must be %q or %q, got %q", PriorGlobal, PriorGrade, c.Rating.Prior))
	}
	switch c.Output.Format {
	case "text", "table", "csv", "json":
	default:
		errs = append(errs, fmt.Errorf("output.format must be text, table, csv or json, got %q", c.Output.Format))
	}
	switch c.Output.Sort {
	case "name", "wr":
	default:
		errs = append(errs, fmt.Errorf("output.sort must be name or wr, got %q", c.Output.Sort))
	}

	return errors.Join(errs...)
}
