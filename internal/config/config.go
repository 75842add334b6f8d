// Package config provides the configuration schema and loader for the
// Handraise help-alert server.
package config

import "time"

// LogLevel controls log verbosity for the Handraise server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for Handraise.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Alerts   AlertsConfig   `yaml:"alerts"`
}

// ServerConfig holds network and logging settings for the ops endpoints.
type ServerConfig struct {
	// ListenAddr is the TCP address the ops server (health + metrics)
	// listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// AnalysisConfig tunes the transcript analysis pipeline.
type AnalysisConfig struct {
	// MinConfidence filters low-quality STT entries out of analysis.
	// Zero means the pipeline default (0.7).
	MinConfidence float64 `yaml:"min_confidence"`

	// CronSpec is the schedule for periodic per-session analysis jobs
	// (robfig/cron syntax). Empty means the scheduler default.
	CronSpec string `yaml:"cron_spec"`

	// TaxonomyFile is an optional YAML override for the built-in keyword
	// taxonomy. Empty uses the defaults.
	TaxonomyFile string `yaml:"taxonomy_file"`

	// TaxonomyReloadSeconds is the polling interval for taxonomy file
	// hot-reload. Zero disables reloading.
	TaxonomyReloadSeconds int `yaml:"taxonomy_reload_seconds"`
}

// AlertsConfig tunes the alert lifecycle policy.
type AlertsConfig struct {
	// AutoDismissMinutes is how long an alert may stay pending before the
	// sweeper dismisses it. Zero means the sweeper default (30).
	AutoDismissMinutes int `yaml:"auto_dismiss_minutes"`

	// SweepIntervalSeconds is how often the sweeper runs. Zero means the
	// sweeper default (60).
	SweepIntervalSeconds int `yaml:"sweep_interval_seconds"`
}

// AutoDismissTTL returns the configured auto-dismiss TTL as a duration,
// or zero when unset.
func (a AlertsConfig) AutoDismissTTL() time.Duration {
	return time.Duration(a.AutoDismissMinutes) * time.Minute
}

// SweepInterval returns the configured sweep interval as a duration,
// or zero when unset.
func (a AlertsConfig) SweepInterval() time.Duration {
	return time.Duration(a.SweepIntervalSeconds) * time.Second
}
