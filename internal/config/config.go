// Ergosync - Workout Reconciliation and Publication
// Copyright 2026 Ergosync contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ergosync/ergosync

package config

import "time"

// Config is the root configuration for the Ergosync process.
type Config struct {
	Peloton PelotonConfig `koanf:"peloton"`
	Garmin  GarminConfig  `koanf:"garmin"`
	Strava  StravaConfig  `koanf:"strava"`
	Sync    SyncConfig    `koanf:"sync"`
	Ledger  LedgerConfig  `koanf:"ledger"`
	Server  ServerConfig  `koanf:"server"`
	Logging LoggingConfig `koanf:"logging"`
}

// PelotonConfig configures the primary workout source.
type PelotonConfig struct {
	Username string        `koanf:"username" validate:"required"`
	Password string        `koanf:"password" validate:"required"`
	BaseURL  string        `koanf:"base_url" validate:"required,url"`
	Timeout  time.Duration `koanf:"timeout" validate:"gt=0"`
}

// GarminConfig configures the secondary activity source, which is also the
// stage-1 upload destination.
type GarminConfig struct {
	Username  string        `koanf:"username"`
	Password  string        `koanf:"password"`
	UseTokens bool          `koanf:"use_tokens"`
	TokenPath string        `koanf:"token_path"`
	BaseURL   string        `koanf:"base_url" validate:"required,url"`
	Timeout   time.Duration `koanf:"timeout" validate:"gt=0"`
}

// StravaConfig configures the stage-2 upload destination.
type StravaConfig struct {
	ClientID     string        `koanf:"client_id" validate:"required"`
	ClientSecret string        `koanf:"client_secret" validate:"required"`
	RefreshToken string        `koanf:"refresh_token"`
	AccessToken  string        `koanf:"access_token"`
	BaseURL      string        `koanf:"base_url" validate:"required,url"`
	Timeout      time.Duration `koanf:"timeout" validate:"gt=0"`
}

// SyncConfig tunes the reconciliation cycle.
type SyncConfig struct {
	// Interval between scheduled cycles in serve mode.
	Interval time.Duration `koanf:"interval" validate:"gt=0"`

	// FetchLimit is how many recent records to pull from each source.
	FetchLimit int `koanf:"fetch_limit" validate:"gt=0,lte=100"`

	// MatchTimeWindow is the maximum start-time difference for a
	// Peloton/Garmin pair to be considered at all.
	MatchTimeWindow time.Duration `koanf:"match_time_window" validate:"gt=0"`

	// StravaMinDuration: activities shorter than this are never published
	// to Strava.
	StravaMinDuration time.Duration `koanf:"strava_min_duration" validate:"gte=0"`

	// StravaWait is how long after an activity ends before it becomes
	// eligible for Strava publication. Gives the sources time to settle.
	StravaWait time.Duration `koanf:"strava_wait" validate:"gte=0"`

	// Stage2FetchLimit is how many recent Peloton workouts to scan when
	// recovering details for pending Strava uploads.
	Stage2FetchLimit int `koanf:"stage2_fetch_limit" validate:"gt=0,lte=200"`
}

// LedgerConfig configures the durable processing ledger.
type LedgerConfig struct {
	Path string `koanf:"path" validate:"required"`
}

// ServerConfig configures the status/metrics HTTP listener.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port" validate:"gt=0,lte=65535"`
	Timeout time.Duration `koanf:"timeout" validate:"gt=0"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// defaultConfig returns a Config with all default values. Defaults are
// applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Peloton: PelotonConfig{
			BaseURL: "https://api.onepeloton.com",
			Timeout: 30 * time.Second,
		},
		Garmin: GarminConfig{
			UseTokens: false,
			TokenPath: "./data/garmin-tokens",
			BaseURL:   "https://connect.garmin.com",
			Timeout:   30 * time.Second,
		},
		Strava: StravaConfig{
			BaseURL: "https://www.strava.com/api/v3",
			Timeout: 60 * time.Second,
		},
		Sync: SyncConfig{
			Interval:          2 * time.Hour,
			FetchLimit:        20,
			MatchTimeWindow:   30 * time.Minute,
			StravaMinDuration: 25 * time.Minute,
			StravaWait:        90 * time.Minute,
			Stage2FetchLimit:  50,
		},
		Ledger: LedgerConfig{
			Path: "./data/ledger",
		},
		Server: ServerConfig{
			Host:    "0.0.0.0",
			Port:    8422,
			Timeout: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}
