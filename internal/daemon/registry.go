package daemon

import (
	"github.com/BurntSushi/xgb"
	"github.com/godbus/dbus/v5"

	"github.com/1broseidon/iccsync/internal/colord"
)

// Registry is the color device/profile registry the daemon mirrors
// displays into. *colord.Client implements it.
type Registry interface {
	CreateDevice(id string, props map[string]string) error
	FindDevice(id string) (string, error)
	DeleteDevice(id string) error
	Device(path string) (colord.Device, error)
	AddProfile(devicePath, profilePath string) error
	CreateProfile(id, filename string) error
	DeleteProfileByFilename(filename string) error
	Profile(path string) (colord.Profile, error)
	DisplayDevices() ([]string, error)
	Profiles() ([]string, error)
	Signals() <-chan *dbus.Signal
	Close() error
}

// EventSource hands X events over in bursts. *x11.Pump implements it.
type EventSource interface {
	Ready() <-chan struct{}
	Closed() <-chan struct{}
	Drain() []xgb.Event
	Stop()
}

var _ Registry = (*colord.Client)(nil)
