package config

import (
	"fmt"
	"os"
	"time"

	"github.com/nordmail/formsync/internal/form"
	"gopkg.in/yaml.v3"
)

// Config is the main configuration structure
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Mailer  MailerConfig  `yaml:"mailer"`
	Cache   CacheConfig   `yaml:"cache"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	Forms   []form.Form   `yaml:"forms"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	ListenAddr     string        `yaml:"listen_addr"`
	APIKey         string        `yaml:"api_key"`
	MaxHeaderBytes int           `yaml:"max_header_bytes"` // Max HTTP header size (default: 1MB)
	ReadTimeout    time.Duration `yaml:"read_timeout"`     // HTTP read timeout (default: 30s)
	WriteTimeout   time.Duration `yaml:"write_timeout"`    // HTTP write timeout (default: 30s)
	IdleTimeout    time.Duration `yaml:"idle_timeout"`     // HTTP idle timeout (default: 60s)
}

// MailerConfig contains the mailer REST API credentials
type MailerConfig struct {
	UserID     string        `yaml:"user_id"`
	SecretKey  string        `yaml:"secret_key"`
	Realm      string        `yaml:"realm"`       // Default: PV
	BaseURL    string        `yaml:"base_url"`    // Default: https://rest.lianamailer.com
	APIVersion int           `yaml:"api_version"` // 1-3, default 1
	Timeout    time.Duration `yaml:"timeout"`     // Per-call timeout (default: 10s)
}

// CacheConfig contains site snapshot cache settings
type CacheConfig struct {
	Path string        `yaml:"path"` // Persisted cache file; empty = in-memory only
	TTL  time.Duration `yaml:"ttl"`  // Snapshot max age (default: 24h)
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// MetricsConfig contains Prometheus metrics settings
type MetricsConfig struct {
	Enabled    bool     `yaml:"enabled"`
	ListenAddr string   `yaml:"listen_addr"` // Default: :9090
	Path       string   `yaml:"path"`        // Default: /metrics
	AllowedIPs []string `yaml:"allowed_ips"` // IP addresses/CIDRs allowed to access metrics
}

// Load loads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// setDefaults sets default values for configuration
func (c *Config) setDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = ":8080"
	}
	if c.Server.MaxHeaderBytes == 0 {
		c.Server.MaxHeaderBytes = 1 << 20 // 1 MB
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 30 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 30 * time.Second
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 60 * time.Second
	}

	if c.Mailer.Realm == "" {
		c.Mailer.Realm = "PV"
	}
	if c.Mailer.BaseURL == "" {
		c.Mailer.BaseURL = "https://rest.lianamailer.com"
	}
	if c.Mailer.APIVersion == 0 {
		c.Mailer.APIVersion = 1
	}
	if c.Mailer.Timeout == 0 {
		c.Mailer.Timeout = 10 * time.Second
	}

	if c.Cache.TTL == 0 {
		c.Cache.TTL = 24 * time.Hour
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	if c.Metrics.ListenAddr == "" {
		c.Metrics.ListenAddr = ":9090"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Mailer.UserID == "" {
		return fmt.Errorf("mailer.user_id is required")
	}
	if c.Mailer.SecretKey == "" {
		return fmt.Errorf("mailer.secret_key is required")
	}
	if c.Mailer.APIVersion < 1 || c.Mailer.APIVersion > 3 {
		return fmt.Errorf("mailer.api_version must be 1, 2 or 3")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging.level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid logging.format: %s (must be json or text)", c.Logging.Format)
	}

	seen := make(map[string]bool, len(c.Forms))
	for i := range c.Forms {
		f := &c.Forms[i]
		if err := f.Validate(); err != nil {
			return err
		}
		if seen[f.ID] {
			return fmt.Errorf("duplicate form id %s", f.ID)
		}
		seen[f.ID] = true
	}

	return nil
}

// FormByID returns the form definition with the given id, or nil
func (c *Config) FormByID(id string) *form.Form {
	for i := range c.Forms {
		if c.Forms[i].ID == id {
			return &c.Forms[i]
		}
	}
	return nil
}
