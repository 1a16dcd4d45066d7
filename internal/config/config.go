// Package config loads and validates advisor configuration from YAML with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all advisor configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// LLM configuration
	LLM LLMConfig `yaml:"llm"`

	// Analysis pipeline settings
	Pipeline PipelineConfig `yaml:"pipeline"`

	// Persistence
	Store StoreConfig `yaml:"store"`

	// Agent world lifecycle
	World WorldConfig `yaml:"world"`

	// HTTP surface
	Server ServerConfig `yaml:"server"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// LLMConfig configures the inference client.
type LLMConfig struct {
	APIKey      string `yaml:"api_key"`
	Model       string `yaml:"model"`
	BaseURL     string `yaml:"base_url"`
	Timeout     string `yaml:"timeout"`
	MaxRetries  int    `yaml:"max_retries"`
	RateLimitMs int    `yaml:"rate_limit_ms"` // minimum spacing between requests
	Slots       int    `yaml:"slots"`         // concurrent in-flight LLM calls
}

// PipelineConfig configures the analysis pipeline.
type PipelineConfig struct {
	MaxConcurrentExecutions int    `yaml:"max_concurrent_executions"` // capability fan-out width
	MaxRecommendations      int    `yaml:"max_recommendations"`       // cap on actions per run
	StageTimeout            string `yaml:"stage_timeout"`
	RunTimeout              string `yaml:"run_timeout"`
}

// StoreConfig configures sqlite persistence.
type StoreConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// WorldConfig configures the agent world lifecycle.
type WorldConfig struct {
	WorldName   string `yaml:"world_name"`
	CleanupRoom bool   `yaml:"cleanup_room"` // delete scratch rooms after each run
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr            string `yaml:"addr"`
	ReadTimeout     string `yaml:"read_timeout"`
	WriteTimeout    string `yaml:"write_timeout"`
	ShutdownTimeout string `yaml:"shutdown_timeout"`
}

// LoggingConfig configures categorized file logging.
type LoggingConfig struct {
	Level      string          `yaml:"level"` // debug, info, warn, error
	DebugMode  bool            `yaml:"debug_mode"`
	Categories map[string]bool `yaml:"categories"`
	JSONFormat bool            `yaml:"json_format"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "advisor",
		Version: "1.0.0",

		LLM: LLMConfig{
			Model:       "gemini-2.5-flash",
			BaseURL:     "https://generativelanguage.googleapis.com/v1beta",
			Timeout:     "120s",
			MaxRetries:  3,
			RateLimitMs: 100,
			Slots:       4,
		},

		Pipeline: PipelineConfig{
			MaxConcurrentExecutions: 5,
			MaxRecommendations:      10,
			StageTimeout:            "60s",
			RunTimeout:              "10m",
		},

		Store: StoreConfig{
			DatabasePath: "data/advisor.db",
		},

		World: WorldConfig{
			WorldName:   "advisor",
			CleanupRoom: true,
		},

		Server: ServerConfig{
			Addr:            ":8090",
			ReadTimeout:     "30s",
			WriteTimeout:    "60s",
			ShutdownTimeout: "15s",
		},

		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// DefaultConfigPath returns the default path to .advisor/config.yaml.
func DefaultConfigPath() string {
	cwd, err := os.Getwd()
	if err != nil {
		return filepath.Join(".advisor", "config.yaml")
	}
	return filepath.Join(cwd, ".advisor", "config.yaml")
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return defaults if config file doesn't exist
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.LLM.APIKey = key
	}
	if model := os.Getenv("ADVISOR_MODEL"); model != "" {
		c.LLM.Model = model
	}
	if path := os.Getenv("ADVISOR_DB"); path != "" {
		c.Store.DatabasePath = path
	}
	if addr := os.Getenv("ADVISOR_ADDR"); addr != "" {
		c.Server.Addr = addr
	}
}

// GetLLMTimeout returns the LLM timeout as a duration.
func (c *Config) GetLLMTimeout() time.Duration {
	d, err := time.ParseDuration(c.LLM.Timeout)
	if err != nil {
		return 120 * time.Second
	}
	return d
}

// GetRateLimitInterval returns the minimum spacing between LLM requests.
func (c *Config) GetRateLimitInterval() time.Duration {
	if c.LLM.RateLimitMs <= 0 {
		return 100 * time.Millisecond
	}
	return time.Duration(c.LLM.RateLimitMs) * time.Millisecond
}

// GetStageTimeout returns the per-stage timeout as a duration.
func (c *Config) GetStageTimeout() time.Duration {
	d, err := time.ParseDuration(c.Pipeline.StageTimeout)
	if err != nil {
		return 60 * time.Second
	}
	return d
}

// GetRunTimeout returns the whole-run timeout as a duration.
func (c *Config) GetRunTimeout() time.Duration {
	d, err := time.ParseDuration(c.Pipeline.RunTimeout)
	if err != nil {
		return 10 * time.Minute
	}
	return d
}

// GetReadTimeout returns the HTTP read timeout as a duration.
func (c *Config) GetReadTimeout() time.Duration {
	d, err := time.ParseDuration(c.Server.ReadTimeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// GetWriteTimeout returns the HTTP write timeout as a duration.
func (c *Config) GetWriteTimeout() time.Duration {
	d, err := time.ParseDuration(c.Server.WriteTimeout)
	if err != nil {
		return 60 * time.Second
	}
	return d
}

// GetShutdownTimeout returns the graceful shutdown timeout as a duration.
func (c *Config) GetShutdownTimeout() time.Duration {
	d, err := time.ParseDuration(c.Server.ShutdownTimeout)
	if err != nil {
		return 15 * time.Second
	}
	return d
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.LLM.APIKey == "" {
		return fmt.Errorf("LLM API key not configured (set GEMINI_API_KEY or llm.api_key)")
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("LLM model not configured")
	}
	if c.Pipeline.MaxConcurrentExecutions < 1 {
		return fmt.Errorf("pipeline.max_concurrent_executions must be at least 1, got %d", c.Pipeline.MaxConcurrentExecutions)
	}
	if c.Pipeline.MaxRecommendations < 1 {
		return fmt.Errorf("pipeline.max_recommendations must be at least 1, got %d", c.Pipeline.MaxRecommendations)
	}
	if c.LLM.Slots < 1 {
		return fmt.Errorf("llm.slots must be at least 1, got %d", c.LLM.Slots)
	}
	if c.Store.DatabasePath == "" {
		return fmt.Errorf("store.database_path not configured")
	}
	return nil
}
