// Package pnp resolves EDID manufacturer codes to vendor names.
package pnp

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/1broseidon/iccsync/internal/edid"
)

// DefaultIDsPath is where hwdata installs the PNP id table.
const DefaultIDsPath = "/usr/share/hwdata/pnp.ids"

const cacheSize = 128

// Lookup modes accepted by NewResolver.
const (
	ModePNP  = "pnp"
	ModeDMI  = "dmi"
	ModeNone = "none"
)

// Table looks up vendors in a pnp.ids file ("ABC<TAB>Vendor Name" per line).
// The file is scanned on a cache miss; hits and misses are both cached.
type Table struct {
	path   string
	cache  *lru.Cache[string, string]
	logger *slog.Logger
}

// NewTable returns a Table reading path. The file does not have to exist.
func NewTable(path string, logger *slog.Logger) *Table {
	if logger == nil {
		logger = slog.Default()
	}
	if path == "" {
		path = DefaultIDsPath
	}
	// only fails for a non-positive size
	cache, _ := lru.New[string, string](cacheSize)
	return &Table{path: path, cache: cache, logger: logger}
}

// Vendor implements edid.VendorResolver
func (t *Table) Vendor(code string) (string, bool) {
	if name, ok := t.cache.Get(code); ok {
		return name, name != ""
	}

	name, err := t.scan(code)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			t.logger.Debug("pnp id table not found", "path", t.path)
		} else {
			t.logger.Warn("failed to read pnp id table", "path", t.path, "error", err)
		}
		return "", false
	}
	t.cache.Add(code, name)
	return name, name != ""
}

func (t *Table) scan(code string) (string, error) {
	f, err := os.Open(t.path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if line == "" {
			continue
		}
		if len(line) < 5 || line[3] != '\t' {
			t.logger.Debug("skipping malformed pnp id line", "path", t.path, "line", lineNo)
			continue
		}
		if line[:3] == code {
			return strings.TrimSpace(line[4:]), nil
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("scan %s: %w", t.path, err)
	}
	return "", nil
}

// NewResolver returns the vendor resolver for mode. ModeNone yields nil,
// which leaves vendors unresolved.
func NewResolver(mode, idsPath string, logger *slog.Logger) (edid.VendorResolver, error) {
	switch mode {
	case "", ModePNP:
		return NewTable(idsPath, logger), nil
	case ModeDMI:
		return NewHostInventory(""), nil
	case ModeNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown vendor lookup mode %q", mode)
	}
}
