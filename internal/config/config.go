package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/1broseidon/iccsync/internal/pnp"
	"github.com/1broseidon/iccsync/internal/runtimepath"
)

const (
	DefaultRegistryTimeout = 5 * time.Second
	DefaultLogLevel        = "info"
	DefaultLogMaxSizeMB    = 10
	DefaultLogMaxFiles     = 3
	DefaultLogMaxAgeDays   = 28
)

// Config is the effective daemon configuration
type Config struct {
	// Display is the X display to contact; empty uses $DISPLAY
	Display string `yaml:"display"`
	// VendorLookup selects how EDID manufacturer codes become vendor names:
	// pnp (hwdata table), dmi (host vendor) or none
	VendorLookup string `yaml:"vendor_lookup"`
	PNPIDs       string `yaml:"pnp_ids"`
	ProfileDir   string `yaml:"profile_dir"`
	// Registry mirrors displays into colord; false runs standalone
	Registry        bool          `yaml:"registry"`
	RegistryTimeout Duration      `yaml:"registry_timeout"`
	ResyncInterval  Duration      `yaml:"resync_interval"`
	Logging         LoggingConfig `yaml:"log"`
}

// LoggingConfig controls log level and the optional rotating log file
type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxFiles   int    `yaml:"max_files"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// Duration is a time.Duration written as a Go duration string in YAML
type Duration time.Duration

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be a string like \"5s\"")
	}
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// DefaultConfig returns the built-in configuration
func DefaultConfig() *Config {
	profileDir, err := runtimepath.ProfileDir()
	if err != nil {
		profileDir = ""
	}
	return &Config{
		VendorLookup:    pnp.ModePNP,
		PNPIDs:          pnp.DefaultIDsPath,
		ProfileDir:      profileDir,
		Registry:        true,
		RegistryTimeout: Duration(DefaultRegistryTimeout),
		Logging: LoggingConfig{
			Level:      DefaultLogLevel,
			MaxSizeMB:  DefaultLogMaxSizeMB,
			MaxFiles:   DefaultLogMaxFiles,
			MaxAgeDays: DefaultLogMaxAgeDays,
		},
	}
}

type ValidationError struct {
	Path   string
	Source Source
	Err    error
}

func (e *ValidationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Source.Kind == SourceFile && e.Source.File != "" && e.Source.Line > 0 {
		return fmt.Sprintf("%s:%d:%d: %s: %v", e.Source.File, e.Source.Line, e.Source.Column, e.Path, e.Err)
	}
	if e.Path != "" {
		return fmt.Sprintf("%s: %v", e.Path, e.Err)
	}
	return e.Err.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Validate checks the effective configuration
func (c *Config) Validate() error {
	switch c.VendorLookup {
	case pnp.ModePNP:
		if c.PNPIDs == "" {
			return &ValidationError{Path: "pnp_ids", Err: fmt.Errorf("pnp_ids is required when vendor_lookup is pnp")}
		}
	case pnp.ModeDMI, pnp.ModeNone:
	default:
		return &ValidationError{Path: "vendor_lookup", Err: fmt.Errorf("vendor_lookup must be one of: pnp, dmi, none")}
	}
	if c.ProfileDir == "" {
		return &ValidationError{Path: "profile_dir", Err: fmt.Errorf("profile_dir is required")}
	}
	if c.RegistryTimeout <= 0 {
		return &ValidationError{Path: "registry_timeout", Err: fmt.Errorf("registry_timeout must be > 0")}
	}
	if c.ResyncInterval < 0 {
		return &ValidationError{Path: "resync_interval", Err: fmt.Errorf("resync_interval must be >= 0")}
	}
	switch c.Logging.Level {
	case "debug", "info", "warning", "error":
	default:
		return &ValidationError{Path: "log.level", Err: fmt.Errorf("level must be one of: debug, info, warning, error")}
	}
	if c.Logging.MaxSizeMB <= 0 {
		return &ValidationError{Path: "log.max_size_mb", Err: fmt.Errorf("max_size_mb must be > 0")}
	}
	if c.Logging.MaxFiles < 0 {
		return &ValidationError{Path: "log.max_files", Err: fmt.Errorf("max_files must be >= 0")}
	}
	if c.Logging.MaxAgeDays < 0 {
		return &ValidationError{Path: "log.max_age_days", Err: fmt.Errorf("max_age_days must be >= 0")}
	}
	return nil
}
