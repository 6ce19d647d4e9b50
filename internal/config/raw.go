package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// IncludeList supports either:
//
//	include: "/path/to/file.yaml"
//
// or:
//
//	include:
//	  - "/path/to/file.yaml"
//	  - "/path/to/dir"
type IncludeList []string

func (l *IncludeList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case 0:
		// Not present.
		*l = nil
		return nil
	case yaml.ScalarNode:
		if value.Tag != "!!str" {
			return fmt.Errorf("include must be a string or list of strings")
		}
		*l = []string{value.Value}
		return nil
	case yaml.SequenceNode:
		out := make([]string, 0, len(value.Content))
		for _, item := range value.Content {
			if item.Kind != yaml.ScalarNode || item.Tag != "!!str" {
				return fmt.Errorf("include entries must be strings")
			}
			out = append(out, item.Value)
		}
		*l = out
		return nil
	default:
		return fmt.Errorf("include must be a string or list of strings")
	}
}

type RawLoggingConfig struct {
	Level      *string `yaml:"level"`
	File       *string `yaml:"file"`
	MaxSizeMB  *int    `yaml:"max_size_mb"`
	MaxFiles   *int    `yaml:"max_files"`
	MaxAgeDays *int    `yaml:"max_age_days"`
}

// RawConfig mirrors the YAML file; nil fields keep the default
type RawConfig struct {
	Include         IncludeList       `yaml:"include"`
	Display         *string           `yaml:"display"`
	VendorLookup    *string           `yaml:"vendor_lookup"`
	PNPIDs          *string           `yaml:"pnp_ids"`
	ProfileDir      *string           `yaml:"profile_dir"`
	Registry        *bool             `yaml:"registry"`
	RegistryTimeout *Duration         `yaml:"registry_timeout"`
	ResyncInterval  *Duration         `yaml:"resync_interval"`
	Logging         *RawLoggingConfig `yaml:"log"`
}

func (c RawConfig) merge(overlay RawConfig) RawConfig {
	out := c

	if overlay.Display != nil {
		out.Display = overlay.Display
	}
	if overlay.VendorLookup != nil {
		out.VendorLookup = overlay.VendorLookup
	}
	if overlay.PNPIDs != nil {
		out.PNPIDs = overlay.PNPIDs
	}
	if overlay.ProfileDir != nil {
		out.ProfileDir = overlay.ProfileDir
	}
	if overlay.Registry != nil {
		out.Registry = overlay.Registry
	}
	if overlay.RegistryTimeout != nil {
		out.RegistryTimeout = overlay.RegistryTimeout
	}
	if overlay.ResyncInterval != nil {
		out.ResyncInterval = overlay.ResyncInterval
	}
	if overlay.Logging != nil {
		if out.Logging == nil {
			out.Logging = &RawLoggingConfig{}
		} else {
			copied := *out.Logging
			out.Logging = &copied
		}
		if overlay.Logging.Level != nil {
			out.Logging.Level = overlay.Logging.Level
		}
		if overlay.Logging.File != nil {
			out.Logging.File = overlay.Logging.File
		}
		if overlay.Logging.MaxSizeMB != nil {
			out.Logging.MaxSizeMB = overlay.Logging.MaxSizeMB
		}
		if overlay.Logging.MaxFiles != nil {
			out.Logging.MaxFiles = overlay.Logging.MaxFiles
		}
		if overlay.Logging.MaxAgeDays != nil {
			out.Logging.MaxAgeDays = overlay.Logging.MaxAgeDays
		}
	}

	return out
}
