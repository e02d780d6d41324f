package config

import (
	"encoding/json"
	"os"

	"github.com/noteforge/core/internal/flagx"
	"github.com/noteforge/core/internal/timex"
)

// JSONConfig is a DTO used exclusively for JSON unmarshalling; timex.Duration
// lets a config file express intervals as either "3s" or raw nanoseconds.
type JSONConfig struct {
	ServerEndpointAddr string         `json:"server_endpoint_addr"`
	DatabasePath       string         `json:"database_path"`
	OnlineCheckInterval timex.Duration `json:"online_check_interval"`
	PerRequestCap       int            `json:"per_request_cap"`
	PageLimit           int            `json:"page_limit"`
	WatchdogThreshold   timex.Duration `json:"watchdog_threshold"`
	WatchdogTick        timex.Duration `json:"watchdog_tick"`
	ReentryDelay        timex.Duration `json:"reentry_delay"`
	BulkLoadChunkSize   int            `json:"bulk_load_chunk_size"`
}

// parseJSON overlays Config with values loaded from a JSON file, resolved
// via -c/-config (flagx.JsonConfigFlags). Absent flag means no overlay.
func parseJSON(cfg *Config) {
	path := flagx.JsonConfigFlags()
	if path == "" {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}
	var jc JSONConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.ServerEndpointAddr != "" {
		cfg.ServerEndpointAddr = jc.ServerEndpointAddr
	}
	if jc.DatabasePath != "" {
		cfg.DatabasePath = jc.DatabasePath
	}
	if jc.OnlineCheckInterval.Duration != 0 {
		cfg.OnlineCheckInterval = jc.OnlineCheckInterval.Duration
	}
	if jc.PerRequestCap != 0 {
		cfg.PerRequestCap = jc.PerRequestCap
	}
	if jc.PageLimit != 0 {
		cfg.PageLimit = jc.PageLimit
	}
	if jc.WatchdogThreshold.Duration != 0 {
		cfg.WatchdogThreshold = jc.WatchdogThreshold.Duration
	}
	if jc.WatchdogTick.Duration != 0 {
		cfg.WatchdogTick = jc.WatchdogTick.Duration
	}
	if jc.ReentryDelay.Duration != 0 {
		cfg.ReentryDelay = jc.ReentryDelay.Duration
	}
	if jc.BulkLoadChunkSize != 0 {
		cfg.BulkLoadChunkSize = jc.BulkLoadChunkSize
	}
}
