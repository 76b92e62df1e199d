package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	Fetch    FetchConfig    `yaml:"fetch"`
	Delivery DeliveryConfig `yaml:"delivery"`
	Worker   WorkerConfig   `yaml:"worker"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string        `yaml:"host" envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port         int           `yaml:"port" envconfig:"SERVER_PORT" default:"9848"`
	APIKey       string        `yaml:"api_key" envconfig:"API_KEY"`
	ReadTimeout  time.Duration `yaml:"read_timeout" envconfig:"SERVER_READ_TIMEOUT" default:"30s"`
	WriteTimeout time.Duration `yaml:"write_timeout" envconfig:"SERVER_WRITE_TIMEOUT" default:"5m"`
}

// StorageConfig holds local scratch and cache database configuration.
type StorageConfig struct {
	SaveDir string `yaml:"save_dir" envconfig:"SAVE_DIR" default:"/data/media"`
	DBPath  string `yaml:"db_path" envconfig:"CACHE_DB_PATH"`
}

// FetchConfig holds external fetch/metadata tool configuration.
type FetchConfig struct {
	SmartSelector      string        `yaml:"smart_selector" envconfig:"SMART_SELECTOR" default:"bv*[height<=1080]+ba/b[height<=1080]/b"`
	AnimSelector       string        `yaml:"anim_selector" envconfig:"ANIM_SELECTOR" default:"bv*[height<=480]+ba/b[height<=480]/b"`
	UserAgent          string        `yaml:"user_agent" envconfig:"FETCH_USER_AGENT" default:"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"`
	CookiesFile        string        `yaml:"cookies_file" envconfig:"COOKIES_FILE"`
	CookiesFromBrowser string        `yaml:"cookies_from_browser" envconfig:"COOKIES_FROM_BROWSER"`
	ProbeTimeout       time.Duration `yaml:"probe_timeout" envconfig:"PROBE_TIMEOUT" default:"45s"`
	FetchTimeout       time.Duration `yaml:"fetch_timeout" envconfig:"FETCH_TIMEOUT" default:"20m"`
	ProbesPerSecond    float64       `yaml:"probes_per_second" envconfig:"PROBES_PER_SECOND" default:"2"`
	MaxParallel        int           `yaml:"max_parallel" envconfig:"MAX_PARALLEL" default:"2"`
}

// DeliveryConfig holds upload routing configuration.
type DeliveryConfig struct {
	// SizeThreshold is the largest artifact the primary identity can
	// upload directly. Anything bigger goes through the relay.
	SizeThreshold int64 `yaml:"size_threshold" envconfig:"SIZE_THRESHOLD" default:"52428800"`

	// AnimSizeCeiling bounds the animation transcode ladder output.
	AnimSizeCeiling int64 `yaml:"anim_size_ceiling" envconfig:"ANIM_SIZE_CEILING" default:"52428800"`

	// RelayChannel is the shared channel both upload identities can reach.
	RelayChannel string `yaml:"relay_channel" envconfig:"RELAY_CHANNEL"`

	// PrimaryDM is where the secondary identity sends the first relay
	// copy so the primary identity has it in its own history.
	PrimaryDM string `yaml:"primary_dm" envconfig:"PRIMARY_DM"`
}

// WorkerConfig holds resolve-job worker pool configuration.
type WorkerConfig struct {
	Count        int           `yaml:"count" envconfig:"WORKER_COUNT" default:"2"`
	PollInterval time.Duration `yaml:"poll_interval" envconfig:"WORKER_POLL_INTERVAL" default:"2s"`
	MaxRetries   int           `yaml:"max_retries" envconfig:"WORKER_MAX_RETRIES" default:"2"`
}

// Load reads configuration from file and environment variables.
// Environment variables override file values.
func Load(configPath string) (*Config, error) {
	cfg := &Config{}

	// Load from YAML file if provided
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	// Override with environment variables
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}

	if cfg.Storage.DBPath == "" && cfg.Storage.SaveDir != "" {
		cfg.Storage.DBPath = filepath.Join(cfg.Storage.SaveDir, "cache.db")
	}

	// Validate
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration values are set.
func (c *Config) Validate() error {
	if c.Server.APIKey == "" {
		return fmt.Errorf("API_KEY is required")
	}
	if c.Storage.SaveDir == "" {
		return fmt.Errorf("SAVE_DIR is required")
	}
	if c.Delivery.SizeThreshold <= 0 {
		return fmt.Errorf("SIZE_THRESHOLD must be positive")
	}
	if c.Delivery.RelayChannel == "" {
		return fmt.Errorf("RELAY_CHANNEL is required")
	}
	if c.Fetch.MaxParallel <= 0 {
		return fmt.Errorf("MAX_PARALLEL must be positive")
	}
	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
