package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// BuildEffectiveConfig applies raw over DefaultConfig. Paths may start
// with "~/".
func BuildEffectiveConfig(raw RawConfig) (*Config, error) {
	cfg := DefaultConfig()

	if raw.Display != nil {
		cfg.Display = *raw.Display
	}
	if raw.VendorLookup != nil {
		cfg.VendorLookup = strings.ToLower(strings.TrimSpace(*raw.VendorLookup))
	}
	if raw.PNPIDs != nil {
		path, err := expandHome(*raw.PNPIDs)
		if err != nil {
			return nil, &ValidationError{Path: "pnp_ids", Err: err}
		}
		cfg.PNPIDs = path
	}
	if raw.ProfileDir != nil {
		path, err := expandHome(*raw.ProfileDir)
		if err != nil {
			return nil, &ValidationError{Path: "profile_dir", Err: err}
		}
		cfg.ProfileDir = path
	}
	if raw.Registry != nil {
		cfg.Registry = *raw.Registry
	}
	if raw.RegistryTimeout != nil {
		cfg.RegistryTimeout = *raw.RegistryTimeout
	}
	if raw.ResyncInterval != nil {
		cfg.ResyncInterval = *raw.ResyncInterval
	}

	if raw.Logging != nil {
		if raw.Logging.Level != nil {
			cfg.Logging.Level = strings.ToLower(strings.TrimSpace(*raw.Logging.Level))
		}
		if raw.Logging.File != nil {
			path, err := expandHome(*raw.Logging.File)
			if err != nil {
				return nil, &ValidationError{Path: "log.file", Err: err}
			}
			cfg.Logging.File = path
		}
		if raw.Logging.MaxSizeMB != nil {
			cfg.Logging.MaxSizeMB = *raw.Logging.MaxSizeMB
		}
		if raw.Logging.MaxFiles != nil {
			cfg.Logging.MaxFiles = *raw.Logging.MaxFiles
		}
		if raw.Logging.MaxAgeDays != nil {
			cfg.Logging.MaxAgeDays = *raw.Logging.MaxAgeDays
		}
	}

	return cfg, nil
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	if path == "~" {
		return home, nil
	}
	return filepath.Join(home, path[2:]), nil
}
