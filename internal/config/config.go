// Package config loads the subsystem configuration: a YAML file with
// environment-variable overrides on top, validated before use.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration accepts "30s" style YAML scalars.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the full subsystem configuration.
type Config struct {
	// VectorStoreURL is the Chroma-compatible REST endpoint.
	VectorStoreURL string `yaml:"vector_store_url"`

	LLM       LLMConfig       `yaml:"llm"`
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// QueryLimit is the default per-collection similarity fan-out size.
	QueryLimit int `yaml:"query_limit"`
	// MinCategorySize is the sparse-category backfill floor.
	MinCategorySize int `yaml:"min_category_size"`
}

// LLMConfig selects and tunes the inference provider.
type LLMConfig struct {
	// Provider is "ollama" (default) or "anthropic".
	Provider string `yaml:"provider"`
	// Endpoint is the Ollama base URL; ignored for anthropic.
	Endpoint string `yaml:"endpoint"`
	// Model is the default model for all prompts.
	Model string `yaml:"model"`
	// Timeout bounds each inference call.
	Timeout Duration `yaml:"timeout"`
	// MaxConcurrent caps in-flight inference calls.
	MaxConcurrent int `yaml:"max_concurrent"`
	// RatePerSecond limits call admission.
	RatePerSecond float64 `yaml:"rate_per_second"`
}

// TelemetryConfig controls the local metrics database.
type TelemetryConfig struct {
	Enabled bool   `yaml:"enabled"`
	DBPath  string `yaml:"db_path"`
	// Retention is how long datapoints are kept.
	Retention Duration `yaml:"retention"`
}

// Default returns production defaults: a local vector store and a local
// Ollama endpoint.
func Default() Config {
	return Config{
		VectorStoreURL: "http://localhost:8000",
		LLM: LLMConfig{
			Provider:      "ollama",
			Endpoint:      "http://localhost:11434",
			Model:         "llama3.1",
			Timeout:       Duration(15 * time.Second),
			MaxConcurrent: 3,
			RatePerSecond: 2,
		},
		Telemetry: TelemetryConfig{
			Enabled:   true,
			DBPath:    "leo-telemetry.db",
			Retention: Duration(7 * 24 * time.Hour),
		},
		QueryLimit:      20,
		MinCategorySize: 5,
	}
}

// Load reads the YAML file at path (missing file is fine, defaults apply),
// then applies LEO_* environment overrides, then validates.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// No file: defaults plus env.
		case err != nil:
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(raw, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("LEO_VECTOR_STORE_URL"); v != "" {
		cfg.VectorStoreURL = v
	}
	if v := os.Getenv("LEO_LLM_PROVIDER"); v != "" {
		cfg.LLM.Provider = v
	}
	if v := os.Getenv("LEO_LLM_ENDPOINT"); v != "" {
		cfg.LLM.Endpoint = v
	}
	if v := os.Getenv("LEO_LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("LEO_TELEMETRY_DB"); v != "" {
		cfg.Telemetry.DBPath = v
	}
}

// Validate rejects configurations that would misbehave at runtime.
func (c Config) Validate() error {
	if c.VectorStoreURL == "" {
		return fmt.Errorf("vector_store_url is required")
	}
	if c.LLM.Provider != "ollama" && c.LLM.Provider != "anthropic" {
		return fmt.Errorf("llm.provider must be ollama or anthropic (got %q)", c.LLM.Provider)
	}
	if c.LLM.Provider == "ollama" && c.LLM.Endpoint == "" {
		return fmt.Errorf("llm.endpoint is required for the ollama provider")
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("llm.model is required")
	}
	if c.LLM.Timeout <= 0 {
		return fmt.Errorf("llm.timeout must be positive (got %s)", c.LLM.Timeout.Std())
	}
	if c.LLM.MaxConcurrent < 1 {
		return fmt.Errorf("llm.max_concurrent must be at least 1 (got %d)", c.LLM.MaxConcurrent)
	}
	if c.QueryLimit < 1 {
		return fmt.Errorf("query_limit must be at least 1 (got %d)", c.QueryLimit)
	}
	if c.MinCategorySize < 0 {
		return fmt.Errorf("min_category_size cannot be negative (got %d)", c.MinCategorySize)
	}
	if c.Telemetry.Enabled && c.Telemetry.DBPath == "" {
		return fmt.Errorf("telemetry.db_path is required when telemetry is enabled")
	}
	return nil
}
