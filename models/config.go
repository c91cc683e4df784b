package models

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// CorpusConfig identifies one corpus to harvest: the code's short id, its
// display name, and the URL of the expanded hierarchy page.
type CorpusConfig struct {
	ID           string `yaml:"id"`
	Name         string `yaml:"name"`
	HierarchyURL string `yaml:"hierarchy_url"`
}

// Config is the harvest runtime configuration, loaded from YAML with CLI
// flags taking precedence.
type Config struct {
	Corpora             []CorpusConfig `yaml:"corpora"`
	Workers             int            `yaml:"workers"`
	MaxAttempts         int            `yaml:"max_attempts"`
	ConcurrencySchedule []int          `yaml:"concurrency_schedule"`
	OutputDir           string         `yaml:"output_dir"`
	MaxAge              string         `yaml:"max_age"`
}

// ParseMaxAge returns the artifact freshness window. An empty value means
// no expiry (always fresh).
func (c *Config) ParseMaxAge() (time.Duration, error) {
	if c.MaxAge == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.MaxAge)
	if err != nil {
		return 0, fmt.Errorf("invalid max_age duration: %w", err)
	}
	return d, nil
}

// LoadConfig reads and validates a YAML config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	config := &Config{}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if config.Workers <= 0 {
		config.Workers = 8
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if len(config.ConcurrencySchedule) == 0 {
		config.ConcurrencySchedule = []int{config.Workers, config.Workers / 2, 2}
	}
	for i := 1; i < len(config.ConcurrencySchedule); i++ {
		if config.ConcurrencySchedule[i] > config.ConcurrencySchedule[i-1] {
			return nil, fmt.Errorf("concurrency_schedule must be non-increasing, got %v", config.ConcurrencySchedule)
		}
	}
	if config.OutputDir == "" {
		config.OutputDir = "lexharvest-results"
	}

	return config, nil
}

// Corpus returns the corpus config with the given id.
func (c *Config) Corpus(id string) (*CorpusConfig, error) {
	for i := range c.Corpora {
		if c.Corpora[i].ID == id {
			return &c.Corpora[i], nil
		}
	}
	return nil, fmt.Errorf("corpus %q not found in config", id)
}
