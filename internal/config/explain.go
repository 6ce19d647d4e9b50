package config

import (
	"fmt"
	"strings"
)

// Explain returns the effective value at the given YAML-like path and its source.
//
// Supported paths:
//
//	display
//	vendor_lookup
//	pnp_ids
//	profile_dir
//	registry
//	registry_timeout
//	resync_interval
//	log.level
//	log.file
//	log.max_size_mb
//	log.max_files
//	log.max_age_days
func Explain(res *LoadResult, path string) (any, Source, error) {
	if res == nil || res.Config == nil {
		return nil, Source{}, fmt.Errorf("no config loaded")
	}
	if path == "" {
		return nil, Source{}, fmt.Errorf("path is empty")
	}

	value, err := lookupValue(res.Config, path)
	if err != nil {
		return nil, Source{}, err
	}

	if src, ok := res.Sources[path]; ok {
		return value, src, nil
	}
	return value, Source{Kind: SourceDefault, Name: "defaults"}, nil
}

func lookupValue(cfg *Config, path string) (any, error) {
	switch path {
	case "display":
		return cfg.Display, nil
	case "vendor_lookup":
		return cfg.VendorLookup, nil
	case "pnp_ids":
		return cfg.PNPIDs, nil
	case "profile_dir":
		return cfg.ProfileDir, nil
	case "registry":
		return cfg.Registry, nil
	case "registry_timeout":
		return cfg.RegistryTimeout.String(), nil
	case "resync_interval":
		return cfg.ResyncInterval.String(), nil
	case "log":
		return cfg.Logging, nil
	}

	if rest, ok := strings.CutPrefix(path, "log."); ok {
		switch rest {
		case "level":
			return cfg.Logging.Level, nil
		case "file":
			return cfg.Logging.File, nil
		case "max_size_mb":
			return cfg.Logging.MaxSizeMB, nil
		case "max_files":
			return cfg.Logging.MaxFiles, nil
		case "max_age_days":
			return cfg.Logging.MaxAgeDays, nil
		}
	}
	return nil, fmt.Errorf("unknown path: %s", path)
}
