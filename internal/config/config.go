// Package config loads service configuration: connection settings from the
// environment, tunables from an optional YAML file with defaults when the
// file is absent.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full service configuration.
type Config struct {
	Supabase SupabaseConfig
	Server   ServerConfig
	Tunables Tunables
}

// SupabaseConfig holds store connection settings, environment-driven.
type SupabaseConfig struct {
	URL        string `env:"SUPABASE_URL,required"`
	AnonKey    string `env:"SUPABASE_ANON_KEY"`
	ServiceKey string `env:"SUPABASE_SERVICE_KEY,required"`
}

// ServerConfig holds process-level settings, environment-driven.
type ServerConfig struct {
	Port     int    `env:"PORT,default=8090"`
	LogLevel string `env:"LOG_LEVEL,default=info"`
}

// Tunables are operational knobs loaded from YAML. Every field has a
// default so the file is optional.
type Tunables struct {
	Store struct {
		RequestTimeout    time.Duration `yaml:"request_timeout"`
		MaxRetries        int           `yaml:"max_retries"`
		InitialBackoff    time.Duration `yaml:"initial_backoff"`
		MaxBackoff        time.Duration `yaml:"max_backoff"`
		RequestsPerSecond float64       `yaml:"requests_per_second"`
	} `yaml:"store"`
	Cache struct {
		UserDataTTL time.Duration `yaml:"user_data_ttl"`
	} `yaml:"cache"`
	Cleanup struct {
		Schedule string `yaml:"schedule"`
	} `yaml:"cleanup"`
}

// DefaultTunables returns the tunables used when no YAML file is present.
func DefaultTunables() Tunables {
	var t Tunables
	t.Store.RequestTimeout = 30 * time.Second
	t.Store.MaxRetries = 3
	t.Store.InitialBackoff = 100 * time.Millisecond
	t.Store.MaxBackoff = 2 * time.Second
	t.Cache.UserDataTTL = 10 * time.Minute
	return t
}

// Load reads environment configuration (after loading .env when present) and
// the optional tunables file.
func Load(tunablesPath string) (*Config, error) {
	// Missing .env is fine; explicit environment wins anyway.
	_ = godotenv.Load()

	var cfg Config
	if err := envdecode.Decode(&cfg.Supabase); err != nil {
		return nil, fmt.Errorf("decode supabase config: %w", err)
	}
	if err := envdecode.Decode(&cfg.Server); err != nil {
		return nil, fmt.Errorf("decode server config: %w", err)
	}

	tunables, err := LoadTunables(tunablesPath)
	if err != nil {
		return nil, err
	}
	cfg.Tunables = tunables

	return &cfg, nil
}

// LoadTunables reads the YAML tunables file, falling back to defaults when
// the path is empty or the file does not exist. Present-but-broken files are
// an error rather than a silent fallback.
func LoadTunables(path string) (Tunables, error) {
	defaults := DefaultTunables()
	if path == "" {
		return defaults, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return defaults, nil
		}
		return defaults, fmt.Errorf("read tunables: %w", err)
	}

	t := defaults
	if err := yaml.Unmarshal(data, &t); err != nil {
		return defaults, fmt.Errorf("parse tunables: %w", err)
	}
	if t.Store.MaxRetries < 0 {
		return defaults, fmt.Errorf("store.max_retries must not be negative")
	}
	return t, nil
}
