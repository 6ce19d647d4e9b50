package colord

import (
	"errors"
	"fmt"
	"testing"

	"github.com/godbus/dbus/v5"
)

func TestParseSignal(t *testing.T) {
	tests := []struct {
		name   string
		sig    *dbus.Signal
		want   Event
		wantOK bool
	}{
		{
			name:   "device added",
			sig:    &dbus.Signal{Name: managerIface + ".DeviceAdded", Body: []any{dbus.ObjectPath("/org/freedesktop/ColorManager/devices/xrandr_1")}},
			want:   Event{Type: DeviceAdded, Path: "/org/freedesktop/ColorManager/devices/xrandr_1"},
			wantOK: true,
		},
		{
			name:   "profile added",
			sig:    &dbus.Signal{Name: managerIface + ".ProfileAdded", Body: []any{dbus.ObjectPath("/org/freedesktop/ColorManager/profiles/icc_1")}},
			want:   Event{Type: ProfileAdded, Path: "/org/freedesktop/ColorManager/profiles/icc_1"},
			wantOK: true,
		},
		{
			name: "ignored member",
			sig:  &dbus.Signal{Name: managerIface + ".DeviceRemoved", Body: []any{dbus.ObjectPath("/x")}},
		},
		{
			name: "missing body",
			sig:  &dbus.Signal{Name: managerIface + ".DeviceChanged"},
		},
		{
			name: "wrong argument type",
			sig:  &dbus.Signal{Name: managerIface + ".DeviceChanged", Body: []any{"/x"}},
		},
		{name: "nil"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseSignal(tt.sig)
			if ok != tt.wantOK || got != tt.want {
				t.Fatalf("ParseSignal = %+v, %v; want %+v, %v", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestIsRegistryError(t *testing.T) {
	exists := dbus.Error{Name: "org.freedesktop.ColorManager.AlreadyExists", Body: []any{"device id 'x' already exists"}}
	if !isRegistryError(exists, "AlreadyExists") {
		t.Fatalf("value error not recognized")
	}
	if !isRegistryError(&exists, "AlreadyExists") {
		t.Fatalf("pointer error not recognized")
	}
	if !isRegistryError(fmt.Errorf("wrapped: %w", exists), "AlreadyExists") {
		t.Fatalf("wrapped error not recognized")
	}
	if isRegistryError(dbus.Error{Name: "org.freedesktop.DBus.Error.AlreadyExists"}, "AlreadyExists") {
		t.Fatalf("foreign error accepted")
	}
	if isRegistryError(errors.New("AlreadyExists"), "AlreadyExists") {
		t.Fatalf("plain error accepted")
	}
	if isRegistryError(nil, "AlreadyExists") {
		t.Fatalf("nil accepted")
	}

	notFound := wrapNotFound(dbus.Error{Name: "org.freedesktop.ColorManager.NotFound"})
	if !errors.Is(notFound, ErrNotFound) {
		t.Fatalf("NotFound not mapped: %v", notFound)
	}
}
