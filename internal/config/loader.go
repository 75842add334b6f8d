package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("config: decode yaml: %w", err)
		}
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if cfg.Analysis.MinConfidence < 0 || cfg.Analysis.MinConfidence > 1 {
		errs = append(errs, fmt.Errorf("analysis.min_confidence %.2f is out of range [0, 1]", cfg.Analysis.MinConfidence))
	}
	if cfg.Analysis.TaxonomyReloadSeconds < 0 {
		errs = append(errs, fmt.Errorf("analysis.taxonomy_reload_seconds %d must not be negative", cfg.Analysis.TaxonomyReloadSeconds))
	}
	if cfg.Analysis.TaxonomyFile == "" && cfg.Analysis.TaxonomyReloadSeconds > 0 {
		errs = append(errs, errors.New("analysis.taxonomy_reload_seconds requires analysis.taxonomy_file"))
	}

	if cfg.Alerts.AutoDismissMinutes < 0 {
		errs = append(errs, fmt.Errorf("alerts.auto_dismiss_minutes %d must not be negative", cfg.Alerts.AutoDismissMinutes))
	}
	if cfg.Alerts.SweepIntervalSeconds < 0 {
		errs = append(errs, fmt.Errorf("alerts.sweep_interval_seconds %d must not be negative", cfg.Alerts.SweepIntervalSeconds))
	}

	return errors.Join(errs...)
}
