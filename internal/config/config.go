// Package config loads application configuration and produces the
// settings snapshot recorded with every run.
//
// Precedence, lowest first: built-in defaults, an optional YAML file, then
// BRAND_ORCH_* environment variables. The result is validated against an
// embedded CUE schema.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables read by Load.
const (
	EnvDBPath        = "BRAND_ORCH_DB_PATH"
	EnvArtifactsDir  = "BRAND_ORCH_ARTIFACTS_DIR"
	EnvLogLevel      = "BRAND_ORCH_LOG_LEVEL"
	EnvBusyTimeoutMS = "BRAND_ORCH_BUSY_TIMEOUT_MS"
)

// Config is the application configuration.
type Config struct {
	DBPath        string `yaml:"db_path" json:"db_path"`
	ArtifactsDir  string `yaml:"artifacts_dir" json:"artifacts_dir"`
	LogLevel      string `yaml:"log_level" json:"log_level"`
	BusyTimeoutMS int    `yaml:"busy_timeout_ms" json:"busy_timeout_ms"`

	Brand        Brand        `yaml:"brand" json:"brand"`
	Weights      Weights      `yaml:"weights" json:"weights"`
	Thresholds   Thresholds   `yaml:"thresholds" json:"thresholds"`
	SourcePolicy SourcePolicy `yaml:"source_policy" json:"source_policy"`
}

// Brand describes the editorial constraints scoring is tuned for.
type Brand struct {
	BrandName           string   `yaml:"brand_name" json:"brand_name"`
	Promise             string   `yaml:"promise" json:"promise"`
	Pillars             []string `yaml:"pillars" json:"pillars"`
	ForbiddenTactics    []string `yaml:"forbidden_tactics" json:"forbidden_tactics"`
	AlwaysCoverTriggers []string `yaml:"always_cover_triggers" json:"always_cover_triggers"`
}

// Weights are the trend score component weights.
type Weights struct {
	Impact     int `yaml:"impact" json:"impact"`
	Timeliness int `yaml:"timeliness" json:"timeliness"`
	Virality   int `yaml:"virality" json:"virality"`
	Relevance  int `yaml:"relevance" json:"relevance"`
	Confidence int `yaml:"confidence" json:"confidence"`
}

// Thresholds decide promotion, monitoring, or blocking.
type Thresholds struct {
	MustCoverScore       int `yaml:"must_cover_score" json:"must_cover_score"`
	OptionalScore        int `yaml:"optional_score" json:"optional_score"`
	WatchScore           int `yaml:"watch_score" json:"watch_score"`
	MinConfidencePromote int `yaml:"min_confidence_promote" json:"min_confidence_promote"`
	MinConfidenceMonitor int `yaml:"min_confidence_monitor" json:"min_confidence_monitor"`
}

// SourcePolicy lists trusted source domains.
type SourcePolicy struct {
	AllowedDomainsTierA []string `yaml:"allowed_domains_tier_a" json:"allowed_domains_tier_a"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		DBPath:        filepath.Join("data", "brand_orchestrator.sqlite"),
		ArtifactsDir:  "artifacts",
		LogLevel:      "INFO",
		BusyTimeoutMS: 5000,
		Brand: Brand{
			BrandName: "Brand Orchestrator",
			Promise: "Analyze politics, economics, and internet culture through a socialist lens, " +
				"focusing on material reality and power.",
			Pillars: []string{
				"material_analysis",
				"institutional_critique",
				"internet_culture_and_ideology",
				"geopolitical_power_structures",
			},
			ForbiddenTactics: []string{
				"harassment",
				"doxxing",
				"pile_on_private_individuals",
				"speculative_accusations_without_evidence",
			},
			AlwaysCoverTriggers: []string{
				"major_labor_action",
				"supreme_court_ruling",
				"budget_legislation",
				"war_escalation",
				"corporate_exploitation_scandal",
				"platform_censorship_shift",
			},
		},
		Weights: Weights{
			Impact:     25,
			Timeliness: 20,
			Virality:   15,
			Relevance:  25,
			Confidence: 10,
		},
		Thresholds: Thresholds{
			MustCoverScore:       75,
			OptionalScore:        60,
			WatchScore:           45,
			MinConfidencePromote: 6,
			MinConfidenceMonitor: 3,
		},
		SourcePolicy: SourcePolicy{
			AllowedDomainsTierA: []string{
				"reuters.com",
				"apnews.com",
				"bbc.co.uk",
				"bbc.com",
				"theguardian.com",
				"cnn.com",
				"nytimes.com",
				"washingtonpost.com",
				"wsj.com",
				"economist.com",
				"gov",
				"gc.ca",
				"canada.ca",
				"whitehouse.gov",
				"supremecourt.gov",
			},
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path (if
// path is non-empty), and the environment, then validates it.
//
// Paths are made absolute and the log level upper-cased.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := decodeYAML(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := normalize(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decodeYAML overlays data onto cfg. Unknown keys are rejected.
func decodeYAML(data []byte, cfg *Config) error {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func applyEnvOverrides(cfg *Config) error {
	if raw := os.Getenv(EnvDBPath); raw != "" {
		cfg.DBPath = raw
	}
	if raw := os.Getenv(EnvArtifactsDir); raw != "" {
		cfg.ArtifactsDir = raw
	}
	if raw := os.Getenv(EnvLogLevel); raw != "" {
		cfg.LogLevel = raw
	}
	if raw := os.Getenv(EnvBusyTimeoutMS); raw != "" {
		v, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return fmt.Errorf("%s: %w", EnvBusyTimeoutMS, err)
		}
		cfg.BusyTimeoutMS = v
	}
	return nil
}

func normalize(cfg *Config) error {
	cfg.LogLevel = strings.ToUpper(strings.TrimSpace(cfg.LogLevel))

	// A YAML key with no value decodes to a nil list; treat it as empty.
	for _, list := range []*[]string{
		&cfg.Brand.Pillars,
		&cfg.Brand.ForbiddenTactics,
		&cfg.Brand.AlwaysCoverTriggers,
		&cfg.SourcePolicy.AllowedDomainsTierA,
	} {
		if *list == nil {
			*list = []string{}
		}
	}

	var err error
	if cfg.DBPath != "" {
		if cfg.DBPath, err = filepath.Abs(cfg.DBPath); err != nil {
			return fmt.Errorf("resolve db_path: %w", err)
		}
	}
	if cfg.ArtifactsDir != "" {
		if cfg.ArtifactsDir, err = filepath.Abs(cfg.ArtifactsDir); err != nil {
			return fmt.Errorf("resolve artifacts_dir: %w", err)
		}
	}
	return nil
}

// BusyTimeout returns the configured lock wait bound.
func (c *Config) BusyTimeout() time.Duration {
	return time.Duration(c.BusyTimeoutMS) * time.Millisecond
}

// SlogLevel maps LogLevel onto a slog level. Unknown values map to Info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR", "CRITICAL":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
