package colord

import "github.com/godbus/dbus/v5"

// EventType identifies a registry signal
type EventType int

const (
	DeviceAdded EventType = iota
	DeviceChanged
	ProfileAdded
)

func (t EventType) String() string {
	switch t {
	case DeviceAdded:
		return "device-added"
	case DeviceChanged:
		return "device-changed"
	case ProfileAdded:
		return "profile-added"
	}
	return "unknown"
}

// Event is a decoded registry signal
type Event struct {
	Type EventType
	Path string
}

var signalTypes = map[string]EventType{
	managerIface + ".DeviceAdded":   DeviceAdded,
	managerIface + ".DeviceChanged": DeviceChanged,
	managerIface + ".ProfileAdded":  ProfileAdded,
}

// ParseSignal decodes the registry signals iccsync reacts to. Other
// signals, and those without an object path argument, return false.
func ParseSignal(sig *dbus.Signal) (Event, bool) {
	if sig == nil {
		return Event{}, false
	}
	typ, ok := signalTypes[sig.Name]
	if !ok || len(sig.Body) == 0 {
		return Event{}, false
	}
	path, ok := sig.Body[0].(dbus.ObjectPath)
	if !ok || !path.IsValid() {
		return Event{}, false
	}
	return Event{Type: typ, Path: string(path)}, true
}
