/*
Package configs is responsible for loading and parsing the application's configuration settings.

Values are resolved in layers: built-in defaults, then an optional YAML file, then an optional
.env file, then the process environment. Later layers override earlier ones. The result is
validated before it is returned.
*/
package configs

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"chatclient/internal/app/store"
)

// AppConfig contains all configuration parameters required for the client to run.
type AppConfig struct {
	// General Settings
	Environment string `yaml:"environment"`
	LogLevel    string `yaml:"log_level"`

	// Bridge Server Settings
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	RateLimit      struct {
		RPS   float64 `yaml:"rps"`
		Burst int     `yaml:"burst"`
	} `yaml:"rate_limit"`

	// Chat Server Settings
	ServerURL string `yaml:"server_url"`
	Offline   bool   `yaml:"offline"`

	// Session Settings
	TypingTimeout time.Duration `yaml:"typing_timeout"`
	Reconnect     struct {
		Attempts  uint64        `yaml:"attempts"`
		BaseDelay time.Duration `yaml:"base_delay"`
		MaxDelay  time.Duration `yaml:"max_delay"`
	} `yaml:"reconnect"`

	// Persistence Settings
	Store struct {
		Driver string `yaml:"driver"`
		Path   string `yaml:"path"`
	} `yaml:"store"`
	DatabaseDSN string `yaml:"database_url"`
}

// IsDevelopment reports whether the client runs in the development environment.
func (c *AppConfig) IsDevelopment() bool {
	return c.Environment == "development"
}

// Addr is the bridge listen address.
func (c *AppConfig) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// StoreConfig returns the persistence backend selection.
func (c *AppConfig) StoreConfig() store.Config {
	return store.Config{
		Driver:      c.Store.Driver,
		Path:        c.Store.Path,
		DatabaseDSN: c.DatabaseDSN,
	}
}

// Default returns the configuration used when nothing overrides it.
func Default() *AppConfig {
	cfg := &AppConfig{
		Environment:    "development",
		Port:           8080,
		AllowedOrigins: []string{},
		ServerURL:      "ws://localhost:3001/ws",
		TypingTimeout:  2000 * time.Millisecond,
	}

	cfg.RateLimit.RPS = 5
	cfg.RateLimit.Burst = 10

	cfg.Reconnect.BaseDelay = 500 * time.Millisecond
	cfg.Reconnect.MaxDelay = 10 * time.Second

	cfg.Store.Driver = store.DriverPebble
	cfg.Store.Path = "./.chatclient"

	return cfg
}

// LoadConfig builds the configuration. path names an optional YAML file; an empty
// path skips it, a missing file is an error. A .env file in the working directory
// is loaded when present.
func LoadConfig(path string) (*AppConfig, error) {
	cfg := Default()

	if path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadFile(path string, cfg *AppConfig) error {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("config file not found: %s", path)
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(b, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return nil
}

// applyEnv overrides cfg with any environment variables that are set.
func applyEnv(cfg *AppConfig) error {
	// --- General Settings ---
	if v := os.Getenv("ENVIRONMENT"); v != "" {
		cfg.Environment = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	// --- Bridge Server Settings ---
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT environment variable: %w", err)
		}
		cfg.Port = port
	}

	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		cfg.AllowedOrigins = splitList(v)
	}

	if v := os.Getenv("RATE_LIMIT_RPS"); v != "" {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid RATE_LIMIT_RPS environment variable: %w", err)
		}
		cfg.RateLimit.RPS = rps
	}
	if v := os.Getenv("RATE_LIMIT_BURST"); v != "" {
		burst, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid RATE_LIMIT_BURST environment variable: %w", err)
		}
		cfg.RateLimit.Burst = burst
	}

	// --- Chat Server Settings ---
	if v := os.Getenv("SERVER_URL"); v != "" {
		cfg.ServerURL = v
	}
	if v := os.Getenv("OFFLINE"); v != "" {
		offline, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid OFFLINE environment variable: %w", err)
		}
		cfg.Offline = offline
	}

	// --- Session Settings ---
	if err := envDuration("TYPING_TIMEOUT", &cfg.TypingTimeout); err != nil {
		return err
	}
	if v := os.Getenv("RECONNECT_ATTEMPTS"); v != "" {
		attempts, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid RECONNECT_ATTEMPTS environment variable: %w", err)
		}
		cfg.Reconnect.Attempts = attempts
	}
	if err := envDuration("RECONNECT_BASE_DELAY", &cfg.Reconnect.BaseDelay); err != nil {
		return err
	}
	if err := envDuration("RECONNECT_MAX_DELAY", &cfg.Reconnect.MaxDelay); err != nil {
		return err
	}

	// --- Persistence Settings ---
	if v := os.Getenv("STORE_DRIVER"); v != "" {
		cfg.Store.Driver = strings.ToLower(v)
	}
	if v := os.Getenv("STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseDSN = v
	}

	return nil
}

// Validate checks ranges and cross-field requirements.
func (c *AppConfig) Validate() error {
	if c.Port < 1024 || c.Port > 65535 {
		return fmt.Errorf("port number %d is outside the recommended range (%d-%d) to avoid privileged ports", c.Port, 1024, 65535)
	}

	if c.TypingTimeout <= 0 {
		return fmt.Errorf("typing timeout must be positive, got %s", c.TypingTimeout)
	}

	if c.Reconnect.BaseDelay <= 0 || c.Reconnect.MaxDelay < c.Reconnect.BaseDelay {
		return fmt.Errorf("reconnect delays must satisfy 0 < base (%s) <= max (%s)", c.Reconnect.BaseDelay, c.Reconnect.MaxDelay)
	}

	if c.RateLimit.RPS <= 0 || c.RateLimit.Burst <= 0 {
		return fmt.Errorf("rate limit rps and burst must be positive")
	}

	if !c.Offline {
		u, err := url.Parse(c.ServerURL)
		if err != nil {
			return fmt.Errorf("invalid SERVER_URL: %w", err)
		}
		if u.Scheme != "ws" && u.Scheme != "wss" {
			return fmt.Errorf("SERVER_URL must use ws or wss, got %q", u.Scheme)
		}
	}

	switch c.Store.Driver {
	case store.DriverMemory:
	case store.DriverPebble:
		if c.Store.Path == "" {
			return fmt.Errorf("STORE_PATH is required for the %s store", c.Store.Driver)
		}
	case store.DriverPostgres:
		if c.DatabaseDSN == "" {
			return fmt.Errorf("DATABASE_URL is required for the %s store", c.Store.Driver)
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q (want memory, pebble or postgres)", c.Store.Driver)
	}

	return nil
}

// envDuration parses key as a Go duration ("2s") or as plain milliseconds ("2000").
func envDuration(key string, dst *time.Duration) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}

	if ms, err := strconv.Atoi(v); err == nil {
		*dst = time.Duration(ms) * time.Millisecond
		return nil
	}

	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s environment variable: %w", key, err)
	}
	*dst = d
	return nil
}

func splitList(v string) []string {
	out := []string{}
	for _, part := range strings.Split(v, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
