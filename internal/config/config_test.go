package config

import (
	"strings"
	"testing"

	"github.com/andresmejia3/pipscan/internal/segment"
	"github.com/andresmejia3/pipscan/internal/types"
)

func clearPostgresEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"POSTGRES_HOST", "POSTGRES_USER", "POSTGRES_PASSWORD", "POSTGRES_DB", "POSTGRES_PORT"} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.MergeThreshold != 0.15 || cfg.OtsuFloor != 15 || cfg.ColorSpace != "gray" {
		t.Errorf("Unexpected defaults: %+v", cfg)
	}
	if cfg.MatchWorkers != 1 || cfg.BlurRadius != 2 || cfg.MaskCloseRadius != 3 || cfg.MatchMetric != "overlap" {
		t.Errorf("Unexpected defaults: %+v", cfg)
	}
	if m := cfg.Matcher(); m.Metric == nil || m.Workers != 1 {
		t.Errorf("Unexpected matcher: %+v", m)
	}
}

func TestMatcherFollowsMetric(t *testing.T) {
	two := make(types.NormalizedFace, types.FacePixels)
	three := make(types.NormalizedFace, types.FacePixels)
	for _, c := range []int{10, 32, 54} {
		for y := c - 4; y <= c+4; y++ {
			for x := c - 4; x <= c+4; x++ {
				three[y*64+x] = 255
				if c != 32 {
					two[y*64+x] = 255
				}
			}
		}
	}

	tests := []struct {
		metric    string
		wantMerge bool
	}{
		{"overlap", false},
		{"mad", true},
	}
	for _, tt := range tests {
		t.Run(tt.metric, func(t *testing.T) {
			t.Setenv("PIPSCAN_MATCH_METRIC", tt.metric)
			cfg, err := Load()
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			score := cfg.Matcher().Dissimilarity(two, three)
			if merge := score < cfg.MergeThreshold; merge != tt.wantMerge {
				t.Errorf("Score %v against threshold %v: merge = %v, want %v", score, cfg.MergeThreshold, merge, tt.wantMerge)
			}
		})
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PIPSCAN_MERGE_THRESHOLD", "0.08")
	t.Setenv("PIPSCAN_COLOR_SPACE", "lab")
	t.Setenv("PIPSCAN_MATCH_WORKERS", "4")
	t.Setenv("PIPSCAN_DEBUG", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.MergeThreshold != 0.08 || cfg.ColorSpace != "lab" || cfg.MatchWorkers != 4 || !cfg.Debug {
		t.Errorf("Overrides not applied: %+v", cfg)
	}

	opts := cfg.PipelineOptions()
	if opts.Segment.ColorSpace != segment.Lab || opts.MergeThreshold != 0.08 {
		t.Errorf("PipelineOptions did not carry overrides: %+v", opts)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
		want string
	}{
		{"Malformed number", "PIPSCAN_MERGE_THRESHOLD", "abc", "parse env:"},
		{"Threshold out of range", "PIPSCAN_MERGE_THRESHOLD", "1.5", "merge threshold"},
		{"Unknown color space", "PIPSCAN_COLOR_SPACE", "hsv", "color space"},
		{"No workers", "PIPSCAN_MATCH_WORKERS", "0", "match workers"},
		{"Unknown metric", "PIPSCAN_MATCH_METRIC", "ssim", "match metric"},
		{"Negative radius", "PIPSCAN_BLUR_RADIUS", "-1", "negative"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			_, err := Load()
			if err == nil {
				t.Fatal("Expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestResolveStoreURL(t *testing.T) {
	t.Run("Flag wins", func(t *testing.T) {
		t.Setenv("POSTGRES_HOST", "db")
		t.Setenv("POSTGRES_USER", "u")
		got := ResolveStoreURL("bolt://x.db", Config{Store: "sqlite://y.db"})
		if got != "bolt://x.db" {
			t.Errorf("ResolveStoreURL() = %s", got)
		}
	})

	t.Run("Config before Postgres env", func(t *testing.T) {
		t.Setenv("POSTGRES_HOST", "db")
		t.Setenv("POSTGRES_USER", "u")
		if got := ResolveStoreURL("", Config{Store: "sqlite://y.db"}); got != "sqlite://y.db" {
			t.Errorf("ResolveStoreURL() = %s", got)
		}
	})

	t.Run("Postgres env", func(t *testing.T) {
		clearPostgresEnv(t)
		t.Setenv("POSTGRES_HOST", "db")
		t.Setenv("POSTGRES_USER", "dice")
		t.Setenv("POSTGRES_PASSWORD", "secret")
		t.Setenv("POSTGRES_DB", "rolls")
		want := "postgres://dice:secret@db:5432/rolls?sslmode=disable"
		if got := ResolveStoreURL("", Config{}); got != want {
			t.Errorf("ResolveStoreURL() = %s, want %s", got, want)
		}
	})

	t.Run("Local default", func(t *testing.T) {
		clearPostgresEnv(t)
		if got := ResolveStoreURL("", Config{}); got != DefaultStoreURL {
			t.Errorf("ResolveStoreURL() = %s, want %s", got, DefaultStoreURL)
		}
	})
}
