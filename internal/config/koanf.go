// Ergosync - Workout Reconciliation and Publication
// Copyright 2026 Ergosync contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ergosync/ergosync

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where config files are searched, in order.
// The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/ergosync/config.yaml",
	"/etc/ergosync/config.yml",
}

// ConfigPathEnvVar overrides the config file search path.
const ConfigPathEnvVar = "CONFIG_PATH"

// Load loads configuration with layered sources: defaults, then an
// optional YAML file, then environment variables. The result is validated
// before being returned. An empty path falls back to the search order in
// DefaultConfigPaths.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path == "" {
		path = findConfigFile()
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envTransformFunc maps flat environment variable names to nested koanf
// config paths. Unmapped variables are dropped so random environment
// contents cannot pollute the configuration.
//
// Examples:
//   - PELOTON_USERNAME -> peloton.username
//   - SYNC_INTERVAL -> sync.interval
//   - STRAVA_MIN_DURATION -> sync.strava_min_duration
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		"peloton_username": "peloton.username",
		"peloton_password": "peloton.password",
		"peloton_base_url": "peloton.base_url",
		"peloton_timeout":  "peloton.timeout",

		"garmin_username":   "garmin.username",
		"garmin_password":   "garmin.password",
		"garmin_use_tokens": "garmin.use_tokens",
		"garmin_token_path": "garmin.token_path",
		"garmin_base_url":   "garmin.base_url",
		"garmin_timeout":    "garmin.timeout",

		"strava_client_id":     "strava.client_id",
		"strava_client_secret": "strava.client_secret",
		"strava_refresh_token": "strava.refresh_token",
		"strava_access_token":  "strava.access_token",
		"strava_base_url":      "strava.base_url",
		"strava_timeout":       "strava.timeout",

		"sync_interval":       "sync.interval",
		"sync_fetch_limit":    "sync.fetch_limit",
		"match_time_window":   "sync.match_time_window",
		"strava_min_duration": "sync.strava_min_duration",
		"strava_wait":         "sync.strava_wait",
		"stage2_fetch_limit":  "sync.stage2_fetch_limit",

		"ledger_path": "ledger.path",

		"http_host":    "server.host",
		"http_port":    "server.port",
		"http_timeout": "server.timeout",

		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}
	return ""
}
