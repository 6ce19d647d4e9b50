package pnp

import (
	"os"
	"path/filepath"
	"strings"
)

// DefaultDMIDir is the sysfs directory exposing SMBIOS strings.
const DefaultDMIDir = "/sys/class/dmi/id"

// HostInventory answers vendor queries with the host machine's vendor.
// It only makes sense for built-in panels, where the panel maker is
// usually the machine maker.
type HostInventory struct {
	dir string
}

// NewHostInventory reads DMI strings from dir (DefaultDMIDir when empty)
func NewHostInventory(dir string) *HostInventory {
	if dir == "" {
		dir = DefaultDMIDir
	}
	return &HostInventory{dir: dir}
}

// Vendor implements edid.VendorResolver; code is ignored.
func (h *HostInventory) Vendor(string) (string, bool) {
	return h.first("sys_vendor", "chassis_vendor", "board_vendor")
}

func (h *HostInventory) first(names ...string) (string, bool) {
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(h.dir, name))
		if err != nil {
			continue
		}
		if value := strings.TrimSpace(string(data)); value != "" {
			return value, true
		}
	}
	return "", false
}
