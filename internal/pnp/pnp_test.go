package pnp

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestTableVendor(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pnp.ids")
	writeFile(t, path, "AAA\tAvolites Ltd\nbroken line\n\nDEL\tDell Inc.\nSAM\tSamsung Electric Company\n")

	table := NewTable(path, nil)

	if name, ok := table.Vendor("DEL"); !ok || name != "Dell Inc." {
		t.Fatalf("Vendor(DEL) = %q, %v", name, ok)
	}
	if name, ok := table.Vendor("SAM"); !ok || name != "Samsung Electric Company" {
		t.Fatalf("Vendor(SAM) = %q, %v", name, ok)
	}
	if _, ok := table.Vendor("XYZ"); ok {
		t.Fatalf("expected miss for XYZ")
	}

	// cached results survive the file going away
	if err := os.Remove(path); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if name, ok := table.Vendor("DEL"); !ok || name != "Dell Inc." {
		t.Fatalf("cached Vendor(DEL) = %q, %v", name, ok)
	}
}

func TestTableMissingFile(t *testing.T) {
	table := NewTable(filepath.Join(t.TempDir(), "missing.ids"), nil)
	if _, ok := table.Vendor("DEL"); ok {
		t.Fatalf("expected miss with missing table")
	}
}

func TestHostInventory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "sys_vendor"), "  \n")
	writeFile(t, filepath.Join(dir, "chassis_vendor"), "LENOVO\n")

	inv := NewHostInventory(dir)
	if name, ok := inv.Vendor("ANY"); !ok || name != "LENOVO" {
		t.Fatalf("Vendor = %q, %v", name, ok)
	}

	empty := NewHostInventory(t.TempDir())
	if _, ok := empty.Vendor("ANY"); ok {
		t.Fatalf("expected miss without DMI data")
	}
}

func TestNewResolver(t *testing.T) {
	r, err := NewResolver(ModeNone, "", nil)
	if err != nil || r != nil {
		t.Fatalf("none mode = %v, %v", r, err)
	}
	if r, err := NewResolver(ModePNP, "", nil); err != nil || r == nil {
		t.Fatalf("pnp mode = %v, %v", r, err)
	}
	if r, err := NewResolver(ModeDMI, "", nil); err != nil || r == nil {
		t.Fatalf("dmi mode = %v, %v", r, err)
	}
	if _, err := NewResolver("bogus", "", nil); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
}
