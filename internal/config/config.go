// Package config loads the engine configuration from YAML with compiled-in
// defaults. A missing file is not an error: the defaults run the engine
// against the standard upstream endpoints with an in-memory cache.
package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/leadscope/enrich/internal/enrich"
	"github.com/leadscope/enrich/internal/sources"
)

// SourceConfig holds the per-source wire coordinates.
type SourceConfig struct {
	BaseURL string `yaml:"base_url" validate:"omitempty,url"`
	APIKey  string `yaml:"api_key"`
}

// SchedulerConfig holds the execution bounds.
type SchedulerConfig struct {
	ModuleTimeoutSeconds int      `yaml:"module_timeout_seconds" validate:"min=1,max=600"`
	JobTimeoutSeconds    int      `yaml:"job_timeout_seconds" validate:"min=1,max=3600"`
	MaxRetries           int      `yaml:"max_retries" validate:"min=0,max=5"`
	CriticalModules      []string `yaml:"critical_modules"`
}

// BatchConfig bounds batch execution.
type BatchConfig struct {
	MaxConcurrentDomains int `yaml:"max_concurrent_domains" validate:"min=1,max=64"`
}

// Config is the full engine configuration.
type Config struct {
	LogLevel    string                  `yaml:"log_level" validate:"oneof=trace debug info warn error"`
	ListenAddr  string                  `yaml:"listen_addr"`
	RedisAddr   string                  `yaml:"redis_addr"`
	PostgresDSN string                  `yaml:"postgres_dsn"`
	Sources     map[string]SourceConfig `yaml:"sources"`
	Scheduler   SchedulerConfig         `yaml:"scheduler"`
	Batch       BatchConfig             `yaml:"batch"`
}

// Default returns the compiled-in configuration.
func Default() *Config {
	return &Config{
		LogLevel:   "info",
		ListenAddr: ":8080",
		Sources: map[string]SourceConfig{
			sources.NameTechFingerprint: {BaseURL: "https://api.builtwith.com/v21"},
			sources.NameTraffic:         {BaseURL: "https://api.similarweb.com/v1"},
			sources.NameFinance:         {BaseURL: "https://financialmodelingprep.com/api/v3"},
			sources.NameRegulatory:      {BaseURL: "https://data.sec.gov/api"},
			sources.NameWebSearch:       {BaseURL: "https://serpapi.com/search"},
			sources.NamePeople:          {BaseURL: "https://api.apollo.io/v1"},
		},
		Scheduler: SchedulerConfig{
			ModuleTimeoutSeconds: 120,
			JobTimeoutSeconds:    600,
			MaxRetries:           2,
			CriticalModules:      []string{enrich.M01CompanyContext},
		},
		Batch: BatchConfig{MaxConcurrentDomains: 5},
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads the YAML file at path over the defaults. An empty path or a
// missing file yields the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("config: read %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints and module references.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	for _, id := range c.Scheduler.CriticalModules {
		if !enrich.ValidModuleID(id) {
			return fmt.Errorf("config: invalid critical module id %q", id)
		}
	}
	for name := range c.Sources {
		if _, ok := sources.DefaultTable[name]; !ok {
			return fmt.Errorf("config: unknown source %q", name)
		}
	}
	return nil
}

// Endpoints converts the source table into the wiring form.
func (c *Config) Endpoints() sources.Endpoints {
	eps := sources.Endpoints{}
	for name, sc := range c.Sources {
		eps[name] = sources.Endpoint{BaseURL: sc.BaseURL, APIKey: sc.APIKey}
	}
	return eps
}
