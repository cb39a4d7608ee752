// Package config loads runtime tuning from PIPSCAN_* environment variables.
package config

import (
	"fmt"
	"net/url"
	"os"

	"github.com/andresmejia3/pipscan/internal/match"
	"github.com/andresmejia3/pipscan/internal/pipeline"
	"github.com/andresmejia3/pipscan/internal/segment"
	"github.com/caarlos0/env/v11"
)

// DefaultStoreURL is used when neither --store, PIPSCAN_STORE nor POSTGRES_* are set.
const DefaultStoreURL = "sqlite://pipscan.db"

// Config holds the environment-driven settings.
type Config struct {
	MergeThreshold      float64 `env:"MERGE_THRESHOLD" envDefault:"0.15"`
	OtsuFloor           uint8   `env:"OTSU_FLOOR" envDefault:"15"`
	ColorSpace          string  `env:"COLOR_SPACE" envDefault:"gray"`
	BlurRadius          int     `env:"BLUR_RADIUS" envDefault:"2"`
	MaskCloseRadius     int     `env:"MASK_CLOSE_RADIUS" envDefault:"3"`
	MaskCloseIterations int     `env:"MASK_CLOSE_ITERATIONS" envDefault:"1"`
	MatchWorkers        int     `env:"MATCH_WORKERS" envDefault:"1"`
	MatchMetric         string  `env:"MATCH_METRIC" envDefault:"overlap"`
	Store               string  `env:"STORE"`
	Debug               bool    `env:"DEBUG"`
}

// Load reads Config from PIPSCAN_* variables and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "PIPSCAN_"}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the pipeline cannot run with.
func (c Config) Validate() error {
	if c.MergeThreshold <= 0 || c.MergeThreshold > 1 {
		return fmt.Errorf("merge threshold must be in (0,1], got %v", c.MergeThreshold)
	}
	switch segment.ColorSpace(c.ColorSpace) {
	case segment.Gray, segment.Lab:
	default:
		return fmt.Errorf("unknown color space %q (want gray or lab)", c.ColorSpace)
	}
	if c.BlurRadius < 0 || c.MaskCloseRadius < 0 || c.MaskCloseIterations < 0 {
		return fmt.Errorf("radii and iterations must not be negative")
	}
	if c.MatchWorkers < 1 {
		return fmt.Errorf("match workers must be at least 1, got %d", c.MatchWorkers)
	}
	if _, ok := match.Metrics[c.MatchMetric]; !ok {
		return fmt.Errorf("unknown match metric %q (want overlap or mad)", c.MatchMetric)
	}
	return nil
}

// Matcher builds the rotation search every command scores tiles with.
func (c Config) Matcher() match.Matcher {
	return match.Matcher{Workers: c.MatchWorkers, Metric: match.Metrics[c.MatchMetric]}
}

// PipelineOptions maps the settings onto pipeline tuning.
func (c Config) PipelineOptions() pipeline.Options {
	opts := pipeline.DefaultOptions()
	opts.Segment.ColorSpace = segment.ColorSpace(c.ColorSpace)
	opts.Segment.BlurRadius = c.BlurRadius
	opts.Segment.Floor = c.OtsuFloor
	opts.MaskCloseRadius = c.MaskCloseRadius
	opts.MaskCloseIterations = c.MaskCloseIterations
	opts.MergeThreshold = c.MergeThreshold
	return opts
}

// ResolveStoreURL picks the exemplar store: an explicit flag wins, then PIPSCAN_STORE,
// then a Postgres URL composed from POSTGRES_* variables, then the local SQLite file.
func ResolveStoreURL(flag string, cfg Config) string {
	if flag != "" {
		return flag
	}
	if cfg.Store != "" {
		return cfg.Store
	}
	if u := postgresFromEnv(); u != "" {
		return u
	}
	return DefaultStoreURL
}

func postgresFromEnv() string {
	host := os.Getenv("POSTGRES_HOST")
	user := os.Getenv("POSTGRES_USER")
	if host == "" || user == "" {
		return ""
	}
	port := os.Getenv("POSTGRES_PORT")
	if port == "" {
		port = "5432"
	}
	db := os.Getenv("POSTGRES_DB")
	if db == "" {
		db = "pipscan"
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(user, os.Getenv("POSTGRES_PASSWORD")),
		Host:     host + ":" + port,
		Path:     db,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}
