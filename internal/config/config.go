// Package config loads runtime settings for the sync client, layering
// defaults, an optional JSON file, and command-line flags, in that order
// (later stages win), mirroring the client config layering used elsewhere
// in this codebase.
package config

import "time"

// Config holds the sync engine's tunable parameters (§4.5, §5, §6).
type Config struct {
	ServerEndpointAddr string
	DatabasePath        string

	OnlineCheckInterval time.Duration

	PerRequestCap     int
	PageLimit         int
	WatchdogThreshold time.Duration
	WatchdogTick      time.Duration
	ReentryDelay      time.Duration
	BulkLoadChunkSize int
}

// LoadDefaults populates c with the values named throughout §4.5/§5/§6.
func (c *Config) LoadDefaults() {
	c.ServerEndpointAddr = "https://sync.example.com"
	c.DatabasePath = "sync-client.db"
	c.OnlineCheckInterval = 3 * time.Second
	c.PerRequestCap = 100
	c.PageLimit = 150
	c.WatchdogThreshold = 5 * time.Second
	c.WatchdogTick = 500 * time.Millisecond
	c.ReentryDelay = 10 * time.Millisecond
	c.BulkLoadChunkSize = 100
}

// LoadConfig constructs a Config, applies defaults, then overlays values
// from JSON (if present) and command-line flags (if present).
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJSON(cfg)
	parseFlags(cfg)
	return cfg
}
