// Package config loads the cot YAML configuration, applies environment overrides
// and watches the file for controller changes.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/example/cotflow/internal/adapters/genai"
	"github.com/example/cotflow/internal/adapters/search"
	"github.com/example/cotflow/internal/app"
	"github.com/example/cotflow/internal/core/recovery"
	"github.com/example/cotflow/internal/db"
	"github.com/example/cotflow/internal/ports/primary"
)

// Environment overrides.
const (
	EnvDBPath       = "COT_DB_PATH"
	EnvSearchAPIKey = "COT_SEARCH_API_KEY"
	EnvGenAIAPIKey  = "COT_GENAI_API_KEY"
	EnvGeminiAPIKey = "GEMINI_API_KEY"
	EnvLogLevel     = "COT_LOG_LEVEL"
)

// Config is the root of ~/.cot/config.yaml.
type Config struct {
	Database   DatabaseConfig   `yaml:"database"`
	Controller ControllerConfig `yaml:"controller"`
	Queue      QueueConfig      `yaml:"queue"`
	Recovery   RecoveryConfig   `yaml:"recovery"`
	Search     SearchConfig     `yaml:"search"`
	Generator  GeneratorConfig  `yaml:"generator"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// DatabaseConfig selects the store and tunes the resilience manager.
type DatabaseConfig struct {
	Path         string        `yaml:"path"`
	Driver       string        `yaml:"driver"` // sqlite3 (cgo) or sqlite (pure Go)
	MaxRetries   int           `yaml:"max_retries"`
	RetryDelay   time.Duration `yaml:"retry_delay"`
	TxTimeout    time.Duration `yaml:"tx_timeout"`
	MonitorEvery time.Duration `yaml:"monitor_every"`
}

// ControllerConfig mirrors the trigger controller settings.
type ControllerConfig struct {
	AutoProgressSteps  bool          `yaml:"auto_progress_steps"`
	AutoProgressPhases bool          `yaml:"auto_progress_phases"`
	MaxRetries         int           `yaml:"max_retries"`
	RetryDelay         time.Duration `yaml:"retry_delay"`
	DefaultMaxPhases   int           `yaml:"default_max_phases"`
}

// QueueConfig tunes the request queue worker.
type QueueConfig struct {
	PacingDelay    time.Duration `yaml:"pacing_delay"`
	RequeueDelay   time.Duration `yaml:"requeue_delay"`
	MaxItemRetries int           `yaml:"max_item_retries"`
	SearchTimeout  time.Duration `yaml:"search_timeout"`
	DispatchBuffer int           `yaml:"dispatch_buffer"`
}

// RecoveryConfig holds the escalation ceilings.
type RecoveryConfig struct {
	SameType     int `yaml:"same_type"`
	AbortRetries int `yaml:"abort_retries"`
}

// SearchConfig configures the search provider.
type SearchConfig struct {
	APIKey     string        `yaml:"api_key"`
	BaseURL    string        `yaml:"base_url"`
	Model      string        `yaml:"model"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

// GeneratorConfig configures content generation.
type GeneratorConfig struct {
	APIKey  string        `yaml:"api_key"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
	BaseURL string        `yaml:"base_url"`
}

// LoggingConfig selects the logger flavor.
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Default returns the stock configuration. Database.Path is left empty and resolved by Load.
func Default() *Config {
	ctrl := primary.DefaultControllerConfig()
	q := app.DefaultQueueConfig()
	th := recovery.DefaultThresholds()
	return &Config{
		Database: DatabaseConfig{
			Driver:       db.DriverCGO,
			MaxRetries:   db.DefaultQueryRetries,
			RetryDelay:   db.DefaultRetryDelay,
			TxTimeout:    db.DefaultTxTimeout,
			MonitorEvery: db.DefaultMonitorEvery,
		},
		Controller: ControllerConfig{
			AutoProgressSteps:  ctrl.AutoProgressSteps,
			AutoProgressPhases: ctrl.AutoProgressPhases,
			MaxRetries:         ctrl.MaxRetries,
			RetryDelay:         ctrl.RetryDelay,
			DefaultMaxPhases:   ctrl.DefaultMaxPhases,
		},
		Queue: QueueConfig{
			PacingDelay:    q.PacingDelay,
			RequeueDelay:   q.RequeueDelay,
			MaxItemRetries: q.MaxItemRetries,
			SearchTimeout:  q.SearchTimeout,
			DispatchBuffer: app.DefaultDispatchBuffer,
		},
		Recovery: RecoveryConfig{SameType: th.SameType, AbortRetries: th.AbortRetries},
		Search: SearchConfig{
			BaseURL:    search.DefaultBaseURL,
			Model:      search.DefaultModel,
			Timeout:    search.DefaultTimeout,
			MaxRetries: search.DefaultMaxRetries,
		},
		Generator: GeneratorConfig{
			Model:   genai.DefaultModel,
			Timeout: genai.DefaultTimeout,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// DefaultPath returns ~/.cot/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".cot", "config.yaml"), nil
}

// Load reads path over the defaults and applies environment overrides.
// A missing file is not an error; the defaults are used.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg.applyEnv(os.Getenv)
	if cfg.Database.Path == "" {
		p, err := db.DefaultPath()
		if err != nil {
			return nil, err
		}
		cfg.Database.Path = p
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv(EnvDBPath); v != "" {
		c.Database.Path = v
	}
	if v := getenv(EnvSearchAPIKey); v != "" {
		c.Search.APIKey = v
	}
	// COT_GENAI_API_KEY wins over the SDK's own variable.
	if v := getenv(EnvGeminiAPIKey); v != "" && c.Generator.APIKey == "" {
		c.Generator.APIKey = v
	}
	if v := getenv(EnvGenAIAPIKey); v != "" {
		c.Generator.APIKey = v
	}
	if v := getenv(EnvLogLevel); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
}

// Validate rejects settings the services cannot run with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case db.DriverCGO, db.DriverPureGo:
	default:
		return fmt.Errorf("database.driver must be %q or %q, got %q", db.DriverCGO, db.DriverPureGo, c.Database.Driver)
	}
	if c.Controller.DefaultMaxPhases < 1 {
		return fmt.Errorf("controller.default_max_phases must be at least 1, got %d", c.Controller.DefaultMaxPhases)
	}
	if c.Controller.MaxRetries < 0 {
		return fmt.Errorf("controller.max_retries must not be negative")
	}
	if c.Queue.MaxItemRetries < 1 {
		return fmt.Errorf("queue.max_item_retries must be at least 1, got %d", c.Queue.MaxItemRetries)
	}
	if c.Recovery.SameType < 1 || c.Recovery.AbortRetries < 1 {
		return fmt.Errorf("recovery thresholds must be positive")
	}
	return nil
}

// ControllerSettings maps the controller section to the port type.
func (c *Config) ControllerSettings() primary.ControllerConfig {
	return primary.ControllerConfig{
		AutoProgressSteps:  c.Controller.AutoProgressSteps,
		AutoProgressPhases: c.Controller.AutoProgressPhases,
		MaxRetries:         c.Controller.MaxRetries,
		RetryDelay:         c.Controller.RetryDelay,
		DefaultMaxPhases:   c.Controller.DefaultMaxPhases,
	}
}

// QueueSettings maps the queue section to the worker settings.
func (c *Config) QueueSettings() app.QueueConfig {
	return app.QueueConfig{
		PacingDelay:    c.Queue.PacingDelay,
		RequeueDelay:   c.Queue.RequeueDelay,
		MaxItemRetries: c.Queue.MaxItemRetries,
		SearchTimeout:  c.Queue.SearchTimeout,
	}
}

// Thresholds maps the recovery section.
func (c *Config) Thresholds() recovery.Thresholds {
	return recovery.Thresholds{SameType: c.Recovery.SameType, AbortRetries: c.Recovery.AbortRetries}
}

// ManagerSettings maps the database section to the resilience manager settings.
func (c *Config) ManagerSettings() db.ManagerConfig {
	m := db.DefaultManagerConfig()
	m.MaxRetries = c.Database.MaxRetries
	if c.Database.RetryDelay > 0 {
		m.RetryDelay = c.Database.RetryDelay
	}
	if c.Database.TxTimeout > 0 {
		m.TxTimeout = c.Database.TxTimeout
	}
	return m
}

// SearchSettings maps the search section to the client settings.
func (c *Config) SearchSettings() search.Config {
	s := search.DefaultConfig(c.Search.APIKey)
	if c.Search.BaseURL != "" {
		s.BaseURL = c.Search.BaseURL
	}
	if c.Search.Model != "" {
		s.Model = c.Search.Model
	}
	if c.Search.Timeout > 0 {
		s.Timeout = c.Search.Timeout
	}
	s.MaxRetries = c.Search.MaxRetries
	return s
}

// GeneratorSettings maps the generator section.
func (c *Config) GeneratorSettings() genai.Config {
	return genai.Config{
		APIKey:  c.Generator.APIKey,
		Model:   c.Generator.Model,
		Timeout: c.Generator.Timeout,
		BaseURL: c.Generator.BaseURL,
	}
}
