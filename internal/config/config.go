// Package config loads the player configuration from TOML files.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	// API is the lossless streaming backend.
	API APIConfig `koanf:"api"`

	// Proxy rewrites resolved stream URLs before they reach the engine.
	Proxy ProxyConfig `koanf:"proxy"`

	// Prefetch tunes background stream warming.
	Prefetch PrefetchConfig `koanf:"prefetch"`

	// Cache tunes the stream URL cache.
	Cache CacheConfig `koanf:"cache"`

	// MediaSession exposes playback on the desktop "now playing" surface.
	MediaSession MediaSessionConfig `koanf:"media_session"`

	LogLevel string `koanf:"log_level"` // "debug", "info", "warn", "error"
}

// APIConfig holds the backend connection settings.
type APIConfig struct {
	BaseURL string `koanf:"base_url"` // e.g. "https://api.example.com"
}

// ProxyConfig holds stream URL rewriting settings. When Prefix is set,
// every resolved URL is rewritten to Prefix + originalURL.
type ProxyConfig struct {
	Prefix string `koanf:"prefix"`
}

// PrefetchConfig tunes the background prefetch scheduler.
type PrefetchConfig struct {
	Workers        int   `koanf:"workers"`         // concurrent prefetches (default: 2)
	DataSaver      bool  `koanf:"data_saver"`      // disable prefetching entirely
	SlowConnection bool  `koanf:"slow_connection"` // skip warm fetches
	AllowSlowWarm  *bool `koanf:"allow_slow_warm"` // warm anyway on slow connections
}

// CacheConfig tunes the stream URL cache.
type CacheConfig struct {
	Capacity int `koanf:"capacity"`  // max entries (default: 600)
	TTLHours int `koanf:"ttl_hours"` // freshness ceiling (default: 6)
}

// MediaSessionConfig controls the MPRIS bridge.
type MediaSessionConfig struct {
	Enabled *bool `koanf:"enabled"` // default: true
}

func Load() (*Config, error) {
	k := koanf.New(".")

	// Try config files in order of priority (last wins)
	for _, path := range getConfigPaths() {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
				return nil, err
			}
		}
	}

	cfg := &Config{
		LogLevel: "info",
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, err
	}

	cfg.API.BaseURL = strings.TrimSuffix(cfg.API.BaseURL, "/")

	return cfg, nil
}

// MediaSessionEnabled resolves the tri-state flag with its default.
func (c *Config) MediaSessionEnabled() bool {
	if c.MediaSession.Enabled == nil {
		return true
	}
	return *c.MediaSession.Enabled
}

// AllowSlowWarm resolves the tri-state flag with its default.
func (c *PrefetchConfig) AllowWarmOnSlow() bool {
	if c.AllowSlowWarm == nil {
		return false
	}
	return *c.AllowSlowWarm
}

func getConfigPaths() []string {
	paths := []string{}

	// 1. ~/.config/hifi/config.toml
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "hifi", "config.toml"))
	}

	// 2. ./config.toml (pwd, highest priority)
	paths = append(paths, "config.toml")

	return paths
}
