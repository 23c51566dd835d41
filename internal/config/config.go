package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTP    HTTPConfig    `yaml:"http"`
	Metrics MetricsConfig `yaml:"metrics"`
	Store   StoreConfig   `yaml:"store"`
	NATS    NATSConfig    `yaml:"nats"`
	Gateway GatewayConfig `yaml:"gateway"`
	Session SessionConfig `yaml:"session"`
	Linking LinkingConfig `yaml:"linking"`
	Tracing TracingConfig `yaml:"tracing"`
	// SeedFile optionally points at a YAML fixture applied at startup.
	SeedFile string `yaml:"seed_file"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

// NATSConfig enables the push transport when URL is set.
type NATSConfig struct {
	URL             string `yaml:"url"`
	InboundSubject  string `yaml:"inbound_subject"`
	OutboundSubject string `yaml:"outbound_subject"`
}

// GatewayConfig enables the pull transport when BaseURL is set. Outbound
// messages go back through the same gateway.
type GatewayConfig struct {
	BaseURL      string        `yaml:"base_url"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

type SessionConfig struct {
	IdleTTL       time.Duration `yaml:"idle_ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

type LinkingConfig struct {
	CodeTTL time.Duration `yaml:"code_ttl"`
}

type TracingConfig struct {
	Enabled bool `yaml:"enabled"`
}

func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

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
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9090"
	}
	if c.Store.Path == "" {
		c.Store.Path = "./data/badger"
	}
	if c.NATS.URL != "" {
		if c.NATS.InboundSubject == "" {
			c.NATS.InboundSubject = "fieldops.chat.inbound"
		}
		if c.NATS.OutboundSubject == "" {
			c.NATS.OutboundSubject = "fieldops.chat.outbound"
		}
	}
	if c.Gateway.PollInterval == 0 {
		c.Gateway.PollInterval = 2 * time.Second
	}
	if c.Session.IdleTTL == 0 {
		c.Session.IdleTTL = 30 * time.Minute
	}
	if c.Session.SweepInterval == 0 {
		c.Session.SweepInterval = time.Minute
	}
	if c.Linking.CodeTTL == 0 {
		c.Linking.CodeTTL = 24 * time.Hour
	}
}

func (c *Config) validate() error {
	if c.NATS.URL == "" && c.Gateway.BaseURL == "" {
		return fmt.Errorf("either nats.url or gateway.base_url must be set")
	}
	if c.Session.IdleTTL < time.Minute {
		return fmt.Errorf("session.idle_ttl must be at least 1m")
	}
	if c.Linking.CodeTTL < time.Minute {
		return fmt.Errorf("linking.code_ttl must be at least 1m")
	}
	return nil
}
