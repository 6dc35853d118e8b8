package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	restore := chdir(t, dir)
	defer restore()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
	if !cfg.MediaSessionEnabled() {
		t.Error("MediaSessionEnabled should default to true")
	}
	if cfg.Prefetch.AllowWarmOnSlow() {
		t.Error("AllowWarmOnSlow should default to false")
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	content := `
log_level = "debug"

[api]
base_url = "https://api.example.com/"

[proxy]
prefix = "https://proxy.example.com/fetch?url="

[prefetch]
workers = 4
data_saver = true

[cache]
capacity = 100
ttl_hours = 2

[media_session]
enabled = false
`
	if err := os.WriteFile(filepath.Join(dir, "config.toml"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	restore := chdir(t, dir)
	defer restore()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
	if cfg.API.BaseURL != "https://api.example.com" {
		t.Errorf("BaseURL = %q, trailing slash should be trimmed", cfg.API.BaseURL)
	}
	if cfg.Proxy.Prefix == "" {
		t.Error("Proxy.Prefix should be set")
	}
	if cfg.Prefetch.Workers != 4 || !cfg.Prefetch.DataSaver {
		t.Errorf("Prefetch = %+v, want workers 4, data_saver true", cfg.Prefetch)
	}
	if cfg.Cache.Capacity != 100 || cfg.Cache.TTLHours != 2 {
		t.Errorf("Cache = %+v, want capacity 100, ttl 2h", cfg.Cache)
	}
	if cfg.MediaSessionEnabled() {
		t.Error("MediaSessionEnabled should be false")
	}
}

func chdir(t *testing.T, dir string) func() {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	return func() { _ = os.Chdir(old) }
}
