package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "web.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "logging:\n  level: debug\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.ListenAddr != ":8088" {
		t.Errorf("ListenAddr = %q, want %q", cfg.Server.ListenAddr, ":8088")
	}
	if cfg.Backend.BaseURL != "http://localhost:5000" {
		t.Errorf("Backend.BaseURL = %q, want %q", cfg.Backend.BaseURL, "http://localhost:5000")
	}
	if cfg.Backend.PollInterval != 5*time.Second {
		t.Errorf("PollInterval = %v, want %v", cfg.Backend.PollInterval, 5*time.Second)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %q, want %q", cfg.Logging.Format, "json")
	}
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
server:
  listen_addr: ":9090"
backend:
  base_url: "https://api.mailward.io"
  poll_interval: 10s
database:
  path: /tmp/app.db
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.ListenAddr != ":9090" {
		t.Errorf("ListenAddr = %q, want %q", cfg.Server.ListenAddr, ":9090")
	}
	if cfg.Backend.BaseURL != "https://api.mailward.io" {
		t.Errorf("Backend.BaseURL = %q", cfg.Backend.BaseURL)
	}
	if cfg.Backend.PollInterval != 10*time.Second {
		t.Errorf("PollInterval = %v, want 10s", cfg.Backend.PollInterval)
	}
	if cfg.Database.Path != "/tmp/app.db" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name:    "relative backend url",
			content: "backend:\n  base_url: \"localhost:5000\"\n",
		},
		{
			name:    "poll interval too small",
			content: "backend:\n  poll_interval: 100ms\n",
		},
		{
			name:    "tls without certs",
			content: "server:\n  tls:\n    enabled: true\n",
		},
		{
			name:    "acme without domains",
			content: "server:\n  tls:\n    enabled: true\n    acme:\n      enabled: true\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.content)
			if _, err := Load(path); err == nil {
				t.Error("Load() should have failed")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/web.yaml"); err == nil {
		t.Error("Load() should fail for missing file")
	}
}
