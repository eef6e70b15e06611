// Package config loads llmap's runtime configuration: backend
// credentials and model overrides from the environment, plus an
// optional YAML file for the handful of non-secret tunables that don't
// belong in env vars (concurrency default, telemetry endpoint). Env
// vars always win over the file, and the file is optional — a fresh
// checkout with just API keys exported works with no config file at
// all.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/jbellis/llmap/llm"
	"github.com/jbellis/llmap/llm/cache"
)

// Config is llmap's full runtime configuration.
type Config struct {
	Credentials llm.BackendCredentials

	AnalyzeModel string `yaml:"analyze_model"`
	RefineModel  string `yaml:"refine_model"`

	CacheMode cache.Mode `yaml:"cache_mode"`
	CacheDir  string     `yaml:"cache_dir"`

	Verbose bool `yaml:"verbose"`

	Concurrency int `yaml:"concurrency"`

	OTELEndpoint string `yaml:"otel_endpoint"`
}

// fileOverlay mirrors the subset of Config that may come from a YAML
// file; credentials are deliberately excluded; secrets belong in the
// environment, never on disk.
type fileOverlay struct {
	AnalyzeModel string     `yaml:"analyze_model"`
	RefineModel  string     `yaml:"refine_model"`
	CacheMode    cache.Mode `yaml:"cache_mode"`
	CacheDir     string     `yaml:"cache_dir"`
	Concurrency  int        `yaml:"concurrency"`
	OTELEndpoint string     `yaml:"otel_endpoint"`
}

// Load reads Config from the process environment, optionally layering
// in yamlPath first if it exists. yamlPath may be empty, in which case
// only the environment and built-in defaults apply.
func Load(yamlPath string) (Config, error) {
	cfg := Config{
		CacheMode:   cache.ModeReadWrite,
		Concurrency: 100,
	}

	if yamlPath != "" {
		if err := applyYAML(&cfg, yamlPath); err != nil {
			return Config{}, err
		}
	}

	cfg.Credentials = llm.BackendCredentials{
		OpenRouterAPIKey: os.Getenv("OPENROUTER_API_KEY"),
		DeepSeekAPIKey:   os.Getenv("DEEPSEEK_API_KEY"),
		GeminiAPIKey:     os.Getenv("GEMINI_API_KEY"),
	}

	if v := os.Getenv("LLMAP_ANALYZE_MODEL"); v != "" {
		cfg.AnalyzeModel = v
	}
	if v := os.Getenv("LLMAP_REFINE_MODEL"); v != "" {
		cfg.RefineModel = v
	}
	if v := os.Getenv("LLMAP_CACHE"); v != "" {
		mode, err := cache.ParseMode(v)
		if err != nil {
			return Config{}, err
		}
		cfg.CacheMode = mode
	}
	if v := os.Getenv("LLMAP_VERBOSE"); v != "" {
		cfg.Verbose = v != "0" && v != "false"
	}
	if v := os.Getenv("LLMAP_OTEL_ENDPOINT"); v != "" {
		cfg.OTELEndpoint = v
	}

	if cfg.CacheDir == "" {
		dir, err := cache.DefaultDir()
		if err != nil {
			return Config{}, err
		}
		cfg.CacheDir = dir
	}

	return cfg, nil
}

func applyYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	var overlay fileOverlay
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	if overlay.AnalyzeModel != "" {
		cfg.AnalyzeModel = overlay.AnalyzeModel
	}
	if overlay.RefineModel != "" {
		cfg.RefineModel = overlay.RefineModel
	}
	if overlay.CacheMode != "" {
		cfg.CacheMode = overlay.CacheMode
	}
	if overlay.CacheDir != "" {
		cfg.CacheDir = overlay.CacheDir
	}
	if overlay.Concurrency != 0 {
		cfg.Concurrency = overlay.Concurrency
	}
	if overlay.OTELEndpoint != "" {
		cfg.OTELEndpoint = overlay.OTELEndpoint
	}
	return nil
}
