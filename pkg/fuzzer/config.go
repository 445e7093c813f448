package fuzzer

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Config tunes a fuzzing run. The zero value is usable after DefaultConfig
// normalization; everything here can also come from a YAML file.
type Config struct {
	// Workers is the number of concurrent fuzz workers.
	Workers int `yaml:"workers"`

	// MaxPasses bounds the number of full spec traversals. 0 runs until the
	// context is cancelled.
	MaxPasses int `yaml:"max_passes"`

	// Seed makes a run reproducible. 0 derives a seed from the clock.
	Seed int64 `yaml:"seed"`

	// TimeoutSeconds bounds each request so a hung endpoint cannot stall
	// the run.
	TimeoutSeconds int `yaml:"timeout_seconds"`

	// RateLimit caps outgoing requests per second. 0 means unlimited.
	RateLimit float64 `yaml:"rate_limit"`

	// Insecure skips TLS certificate verification.
	Insecure bool `yaml:"insecure"`

	// MaxBodySnippet bounds the response body slice kept in anomalies.
	MaxBodySnippet int `yaml:"max_body_snippet"`

	// ReportPath receives one JSON record per anomaly when set.
	ReportPath string `yaml:"report"`

	// TokenPath points at a YAML token description for authorized fuzzing.
	TokenPath string `yaml:"token"`

	// Headers are attached verbatim to every request.
	Headers map[string]string `yaml:"headers"`
}

// DefaultConfig returns the sequential baseline: one worker, 30s request
// timeout, unbounded passes.
func DefaultConfig() Config {
	return Config{
		Workers:        1,
		TimeoutSeconds: 30,
		MaxBodySnippet: 512,
	}
}

// LoadConfig reads a YAML config file over the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg.normalized(), nil
}

func (c Config) normalized() Config {
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 30
	}
	if c.MaxBodySnippet <= 0 {
		c.MaxBodySnippet = 512
	}
	return c
}

func (c Config) timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}
