package configs

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"chatclient/internal/app/store"
)

// clearEnv blanks every variable LoadConfig reads so the host environment does not leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"ENVIRONMENT", "LOG_LEVEL", "PORT", "ALLOWED_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
		"SERVER_URL", "OFFLINE", "TYPING_TIMEOUT", "RECONNECT_ATTEMPTS", "RECONNECT_BASE_DELAY",
		"RECONNECT_MAX_DELAY", "STORE_DRIVER", "STORE_PATH", "DATABASE_URL",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if !cfg.IsDevelopment() || cfg.Port != 8080 {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.TypingTimeout != 2*time.Second {
		t.Fatalf("typing timeout = %s; want 2s", cfg.TypingTimeout)
	}
	if cfg.Reconnect.Attempts != 0 {
		t.Fatalf("reconnect attempts = %d; want 0", cfg.Reconnect.Attempts)
	}
	if cfg.Store.Driver != store.DriverPebble {
		t.Fatalf("store driver = %q", cfg.Store.Driver)
	}
}

func TestLoadConfigFileThenEnv(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "chatclient.yaml")
	yml := `
environment: production
port: 9090
server_url: wss://chat.example.com/ws
typing_timeout: 3s
reconnect:
  attempts: 4
  base_delay: 250ms
  max_delay: 5s
store:
  driver: memory
allowed_origins:
  - https://app.example.com
`
	if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("PORT", "9191")
	t.Setenv("TYPING_TIMEOUT", "1500")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Environment != "production" || cfg.ServerURL != "wss://chat.example.com/ws" {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.Port != 9191 {
		t.Fatalf("port = %d; env should override file", cfg.Port)
	}
	if cfg.TypingTimeout != 1500*time.Millisecond {
		t.Fatalf("typing timeout = %s; want 1.5s", cfg.TypingTimeout)
	}
	if cfg.Reconnect.Attempts != 4 || cfg.Reconnect.BaseDelay != 250*time.Millisecond || cfg.Reconnect.MaxDelay != 5*time.Second {
		t.Fatalf("reconnect = %+v", cfg.Reconnect)
	}
	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "https://app.example.com" {
		t.Fatalf("allowed origins = %v", cfg.AllowedOrigins)
	}
	if sc := cfg.StoreConfig(); sc.Driver != store.DriverMemory {
		t.Fatalf("store config = %+v", sc)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	clearEnv(t)

	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"non-numeric port", map[string]string{"PORT": "http"}},
		{"privileged port", map[string]string{"PORT": "80"}},
		{"bad duration", map[string]string{"TYPING_TIMEOUT": "soon"}},
		{"zero typing timeout", map[string]string{"TYPING_TIMEOUT": "0"}},
		{"negative attempts", map[string]string{"RECONNECT_ATTEMPTS": "-1"}},
		{"max below base", map[string]string{"RECONNECT_BASE_DELAY": "2s", "RECONNECT_MAX_DELAY": "1s"}},
		{"http server url", map[string]string{"SERVER_URL": "http://chat.example.com"}},
		{"unknown driver", map[string]string{"STORE_DRIVER": "redis"}},
		{"postgres without dsn", map[string]string{"STORE_DRIVER": "postgres"}},
		{"bad offline flag", map[string]string{"OFFLINE": "maybe"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			if _, err := LoadConfig(""); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestOfflineSkipsServerURLCheck(t *testing.T) {
	clearEnv(t)
	t.Setenv("OFFLINE", "true")
	t.Setenv("SERVER_URL", "not a websocket url")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if !cfg.Offline {
		t.Fatalf("offline not applied")
	}
}
