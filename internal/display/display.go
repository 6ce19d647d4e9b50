// Package display tracks the X server's connected outputs and applies color
// state to them.
package display

import (
	"strings"

	"github.com/1broseidon/iccsync/internal/edid"
	"github.com/1broseidon/iccsync/internal/gamma"
)

// Display is one connected output as seen during an enumeration pass.
// A *Display handed out by the engine stays valid until the next pass.
type Display struct {
	// Ordinal is the output's position in the pass that produced it
	Ordinal       int
	Name          string
	ConnectorName string
	IsLaptop      bool
	IsPrimary     bool
	Identity      edid.Identity
	// Controller is the CRTC driving the output, 0 when undriven
	Controller uint32
	Root       uint32
}

// Driven reports whether a controller is attached
func (d *Display) Driven() bool {
	return d.Controller != 0
}

// OutputInfo is the per-output state read from the server
type OutputInfo struct {
	Name      string
	Connected bool
	Crtc      uint32
}

// Server is the slice of the X server the engine needs. x11.Connection
// implements it against RandR.
type Server interface {
	// Screens returns the root window of every screen
	Screens() []uint32
	// Outputs returns the outputs of a screen and its primary output (0 if unset)
	Outputs(root uint32) (outputs []uint32, primary uint32, err error)
	OutputInfo(output uint32) (OutputInfo, error)
	// OutputEDID returns nil when the output has no usable EDID property
	OutputEDID(output uint32) ([]byte, error)
	// ConnectorType returns "" when the property is absent
	ConnectorType(output uint32) (string, error)
	GammaSize(crtc uint32) (int, error)
	SetGamma(crtc uint32, ramp gamma.Ramp) error
	// SetRootProfile replaces the root window's profile property; nil deletes it
	SetRootProfile(root uint32, data []byte) error
	Close()
}

// Listener receives display lifecycle events
type Listener interface {
	DisplayAdded(d *Display)
	DisplayRemoved(d *Display)
	DisplayChanged(d *Display)
}

// ListenerFuncs adapts plain functions to Listener. Nil fields are skipped.
type ListenerFuncs struct {
	Added   func(d *Display)
	Removed func(d *Display)
	Changed func(d *Display)
}

func (l ListenerFuncs) DisplayAdded(d *Display) {
	if l.Added != nil {
		l.Added(d)
	}
}

func (l ListenerFuncs) DisplayRemoved(d *Display) {
	if l.Removed != nil {
		l.Removed(d)
	}
}

func (l ListenerFuncs) DisplayChanged(d *Display) {
	if l.Changed != nil {
		l.Changed(d)
	}
}

var laptopPrefixes = []string{"LVDS", "Lvds", "lvds", "LCD", "eDP", "DFP"}

const panelConnector = "Panel"

func isLaptop(connector, connectorType string) bool {
	if connectorType == panelConnector {
		return true
	}
	for _, p := range laptopPrefixes {
		if strings.HasPrefix(connector, p) {
			return true
		}
	}
	return false
}

// displayName derives the stable device key: "xrandr" followed by the
// EDID vendor, model and serial that were actually present, or by the
// connector name when none were.
func displayName(id edid.Identity, connector string) string {
	parts := []string{"xrandr"}
	if id.HasVendor {
		parts = append(parts, id.Vendor)
	}
	if id.HasModel {
		parts = append(parts, id.Model)
	}
	if id.HasSerial {
		parts = append(parts, id.Serial)
	}
	if len(parts) == 1 {
		parts = append(parts, connector)
	}
	return strings.Join(parts, "-")
}

// Diff matches prev and next by Name. Each next display claims at most one
// previous display with the same name. A previous display is only removed
// once no display in next carries its name.
func Diff(prev, next []*Display) (added, kept, removed []*Display) {
	claimed := make([]bool, len(prev))
	present := make(map[string]bool, len(next))
	for _, d := range next {
		present[d.Name] = true
		match := -1
		for i, p := range prev {
			if !claimed[i] && p.Name == d.Name {
				match = i
				break
			}
		}
		if match < 0 {
			added = append(added, d)
			continue
		}
		claimed[match] = true
		kept = append(kept, d)
	}
	for i, p := range prev {
		if !claimed[i] && !present[p.Name] {
			removed = append(removed, p)
		}
	}
	return added, kept, removed
}
