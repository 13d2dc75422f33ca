// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults.
// - Load layers defaults, an optional .env file, an optional YAML file and
//   SKILLCERT_ environment variables, then validates the result.
package config

import "time"

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level" validate:"oneof=debug info warn error"`

	// LogFormat selects the log handler: text or json.
	LogFormat string `koanf:"log_format" validate:"oneof=text json"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr" validate:"required"`

	// BackendURL is the base URL of the REST collaborator, e.g. "http://api:8000/api/".
	BackendURL string `koanf:"backend_url" validate:"required,url"`

	// BackendToken is sent as "Authorization: Token <token>" when set.
	BackendToken string `koanf:"backend_token"`

	// BackendTimeoutMS bounds every backend request.
	BackendTimeoutMS int `koanf:"backend_timeout_ms" validate:"gt=0"`

	// ResultsMaxPages caps how many pages a backend list call follows.
	ResultsMaxPages int `koanf:"results_max_pages" validate:"gt=0,lte=1000"`

	// PrefetchEnabled starts a roster load whenever a position is selected.
	PrefetchEnabled bool `koanf:"prefetch_enabled"`

	// LevelProgressEnabled lets the backend's precomputed level progress
	// override the computed level booleans.
	LevelProgressEnabled bool `koanf:"level_progress_enabled"`

	// MetricsRefreshMS is how often gauges derived from service stats are
	// refreshed.
	MetricsRefreshMS int `koanf:"metrics_refresh_ms" validate:"gt=0"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:             "info",
		LogFormat:            "text",
		Addr:                 ":9080",
		BackendURL:           "http://localhost:8000/api/",
		BackendTimeoutMS:     10_000,
		ResultsMaxPages:      50,
		PrefetchEnabled:      true,
		LevelProgressEnabled: true,
		MetricsRefreshMS:     5_000,
	}
}

// BackendTimeout returns BackendTimeoutMS as a duration.
func (c *Config) BackendTimeout() time.Duration {
	return time.Duration(c.BackendTimeoutMS) * time.Millisecond
}

// MetricsRefresh returns MetricsRefreshMS as a duration.
func (c *Config) MetricsRefresh() time.Duration {
	return time.Duration(c.MetricsRefreshMS) * time.Millisecond
}
