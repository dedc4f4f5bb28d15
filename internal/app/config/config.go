package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/ObserveRTC/connector-sub000/internal/app/pipeline"
)

type Config struct {
	Log       LogConfig        `yaml:"log"`
	Metrics   MetricsConfig    `yaml:"metrics"`
	Workers   WorkersConfig    `yaml:"workers"`
	Pipelines []PipelineConfig `yaml:"pipelines"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

type WorkersConfig struct {
	PoolSize int `yaml:"pool_size"`
}

// StageConfig selects a registered stage implementation by type and carries
// its implementation-specific config untouched.
type StageConfig struct {
	Type   string    `yaml:"type"`
	Config yaml.Node `yaml:"config"`
}

type DecoderConfig struct {
	Type          string    `yaml:"type"`
	RethrowErrors bool      `yaml:"rethrow_errors"`
	Config        yaml.Node `yaml:"config"`
}

// Stage returns the decoder as a plain stage selection.
func (d DecoderConfig) Stage() StageConfig {
	return StageConfig{Type: d.Type, Config: d.Config}
}

type PipelineConfig struct {
	Name            string                `yaml:"name"`
	Replicas        int                   `yaml:"replicas"`
	Schedule        string                `yaml:"schedule"`
	Disabled        bool                  `yaml:"disabled"`
	Source          StageConfig           `yaml:"source"`
	Decoder         DecoderConfig         `yaml:"decoder"`
	Transformations []StageConfig         `yaml:"transformations"`
	Buffer          pipeline.BufferConfig `yaml:"buffer"`
	Sink            StageConfig           `yaml:"sink"`
}

// Load reads a YAML config file. ${VAR} references are expanded from the
// environment before parsing.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse([]byte(os.ExpandEnv(string(raw))))
}

func Parse(raw []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9100"
	}
	if c.Workers.PoolSize == 0 {
		c.Workers.PoolSize = 4
	}
	for i := range c.Pipelines {
		c.Pipelines[i].applyDefaults()
	}
}

func (p *PipelineConfig) applyDefaults() {
	if p.Replicas == 0 {
		p.Replicas = 1
	}
	if p.Decoder.Type == "" {
		p.Decoder.Type = "json"
	}
}

func (c *Config) validate() error {
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	if c.Workers.PoolSize < 1 {
		return fmt.Errorf("workers.pool_size must be >= 1")
	}
	seen := make(map[string]bool, len(c.Pipelines))
	var errs []error
	for i, p := range c.Pipelines {
		if err := p.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("pipelines[%d]: %w", i, err))
			continue
		}
		if seen[p.Name] {
			errs = append(errs, fmt.Errorf("pipelines[%d]: duplicate name %q", i, p.Name))
		}
		seen[p.Name] = true
	}
	return errors.Join(errs...)
}

// Validate checks one pipeline entry.
func (p PipelineConfig) Validate() error {
	switch {
	case p.Name == "":
		return fmt.Errorf("name is required")
	case p.Replicas < 1:
		return fmt.Errorf("%s: replicas must be >= 1", p.Name)
	case p.Source.Type == "":
		return fmt.Errorf("%s: source.type is required", p.Name)
	case p.Sink.Type == "":
		return fmt.Errorf("%s: sink.type is required", p.Name)
	}
	for i, t := range p.Transformations {
		if t.Type == "" {
			return fmt.Errorf("%s: transformations[%d].type is required", p.Name, i)
		}
	}
	if p.Schedule != "" {
		if _, err := cron.ParseStandard(p.Schedule); err != nil {
			return fmt.Errorf("%s: schedule: %w", p.Name, err)
		}
	}
	return nil
}

// NewLogger builds the process logger from the log section.
func (c LogConfig) NewLogger() (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(c.Level)
	if err != nil {
		return nil, err
	}
	log := logrus.New()
	log.SetLevel(level)
	if c.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return log, nil
}
