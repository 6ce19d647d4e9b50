// Package colord talks to the colord color management registry over the
// system bus.
package colord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/godbus/dbus/v5"
)

const (
	busName       = "org.freedesktop.ColorManager"
	rootPath      = dbus.ObjectPath("/org/freedesktop/ColorManager")
	managerIface  = "org.freedesktop.ColorManager"
	deviceIface   = "org.freedesktop.ColorManager.Device"
	profileIface  = "org.freedesktop.ColorManager.Profile"
	propertiesGet = "org.freedesktop.DBus.Properties.Get"

	// DefaultTimeout bounds every registry call
	DefaultTimeout = 5 * time.Second
)

// ScopeTemp keeps registered objects only for the registry's lifetime
const ScopeTemp = "temp"

// Device property and metadata keys
const (
	DeviceKind       = "Kind"
	DeviceMode       = "Mode"
	DeviceColorspace = "Colorspace"
	DeviceVendor     = "Vendor"
	DeviceModel      = "Model"
	DeviceSerial     = "Serial"
	DeviceEmbedded   = "Embedded"
	DeviceXRandRName = "XRANDR_name"
	DevicePriority   = "OutputPriority"

	KindDisplay       = "display"
	ModePhysical      = "physical"
	ColorspaceRGB     = "rgb"
	PriorityPrimary   = "primary"
	PrioritySecondary = "secondary"

	ProfileFilename     = "Filename"
	ProfileFileChecksum = "FILE_checksum"

	relationSoft = "soft"
)

// ErrNotFound is returned when the registry has no matching object
var ErrNotFound = errors.New("not found in color registry")

// Device is the subset of a registry device iccsync reads
type Device struct {
	Path     string
	ID       string
	Kind     string
	Profiles []string
}

// Profile is the subset of a registry profile iccsync reads
type Profile struct {
	Path     string
	ID       string
	Filename string
	Metadata map[string]string
}

// Client is a colord connection. Methods block for at most the configured
// timeout; the caller is expected to serialize them.
type Client struct {
	conn    *dbus.Conn
	timeout time.Duration
	signals chan *dbus.Signal
	logger  *slog.Logger
}

// Dial connects to the system bus and subscribes to registry signals
func Dial(timeout time.Duration, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("connect to system bus: %w", err)
	}
	c := &Client{
		conn:    conn,
		timeout: timeout,
		signals: make(chan *dbus.Signal, 32),
		logger:  logger,
	}

	ctx, cancel := c.context()
	defer cancel()
	err = conn.AddMatchSignalContext(ctx,
		dbus.WithMatchInterface(managerIface),
		dbus.WithMatchObjectPath(rootPath),
	)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("subscribe to color registry signals: %w", err)
	}
	conn.Signal(c.signals)

	// fail early when colord is not installed
	if _, err := c.Profiles(); err != nil {
		conn.Close()
		return nil, err
	}
	return c, nil
}

// Close disconnects from the bus
func (c *Client) Close() error {
	c.conn.RemoveSignal(c.signals)
	return c.conn.Close()
}

// Signals delivers raw bus signals; decode them with ParseSignal
func (c *Client) Signals() <-chan *dbus.Signal {
	return c.signals
}

func (c *Client) context() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), c.timeout)
}

func (c *Client) call(path dbus.ObjectPath, method string, args []any, out ...any) error {
	ctx, cancel := c.context()
	defer cancel()
	call := c.conn.Object(busName, path).CallWithContext(ctx, method, 0, args...)
	if call.Err != nil {
		return call.Err
	}
	if len(out) == 0 {
		return nil
	}
	return call.Store(out...)
}

func (c *Client) property(path dbus.ObjectPath, iface, name string, out any) error {
	var v dbus.Variant
	if err := c.call(path, propertiesGet, []any{iface, name}, &v); err != nil {
		return fmt.Errorf("read %s.%s: %w", iface, name, err)
	}
	return v.Store(out)
}

// isRegistryError reports whether err is a colord error whose name ends
// with suffix, e.g. "AlreadyExists"
func isRegistryError(err error, suffix string) bool {
	var dbusErr dbus.Error
	if errors.As(err, &dbusErr) {
		return strings.HasPrefix(dbusErr.Name, busName) && strings.HasSuffix(dbusErr.Name, suffix)
	}
	var dbusErrPtr *dbus.Error
	if errors.As(err, &dbusErrPtr) {
		return strings.HasPrefix(dbusErrPtr.Name, busName) && strings.HasSuffix(dbusErrPtr.Name, suffix)
	}
	return false
}

func wrapNotFound(err error) error {
	if isRegistryError(err, "NotFound") {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return err
}

// CreateDevice registers a device for the session. A device that already
// exists is not an error.
func (c *Client) CreateDevice(id string, props map[string]string) error {
	var path dbus.ObjectPath
	err := c.call(rootPath, managerIface+".CreateDevice", []any{id, ScopeTemp, props}, &path)
	if isRegistryError(err, "AlreadyExists") {
		c.logger.Debug("device already registered", "device", id)
		return nil
	}
	if err != nil {
		return fmt.Errorf("create device %s: %w", id, err)
	}
	c.logger.Debug("device registered", "device", id, "path", path)
	return nil
}

// FindDevice returns the object path of the device with the given id
func (c *Client) FindDevice(id string) (string, error) {
	var path dbus.ObjectPath
	if err := c.call(rootPath, managerIface+".FindDeviceById", []any{id}, &path); err != nil {
		return "", fmt.Errorf("find device %s: %w", id, wrapNotFound(err))
	}
	return string(path), nil
}

// DeleteDevice removes the device with the given id
func (c *Client) DeleteDevice(id string) error {
	path, err := c.FindDevice(id)
	if err != nil {
		return err
	}
	if err := c.call(rootPath, managerIface+".DeleteDevice", []any{dbus.ObjectPath(path)}); err != nil {
		return fmt.Errorf("delete device %s: %w", id, wrapNotFound(err))
	}
	return nil
}

// Device reads a device's id, kind and profile list
func (c *Client) Device(path string) (Device, error) {
	obj := dbus.ObjectPath(path)
	d := Device{Path: path}
	if err := c.property(obj, deviceIface, "Id", &d.ID); err != nil {
		return d, err
	}
	if err := c.property(obj, deviceIface, "Kind", &d.Kind); err != nil {
		return d, err
	}
	var profiles []dbus.ObjectPath
	if err := c.property(obj, deviceIface, "Profiles", &profiles); err != nil {
		return d, err
	}
	for _, p := range profiles {
		d.Profiles = append(d.Profiles, string(p))
	}
	return d, nil
}

// AddProfile attaches a profile to a device with a soft relation. A profile
// that is already attached is not an error.
func (c *Client) AddProfile(devicePath, profilePath string) error {
	err := c.call(dbus.ObjectPath(devicePath), deviceIface+".AddProfile",
		[]any{relationSoft, dbus.ObjectPath(profilePath)})
	if isRegistryError(err, "AlreadyExists") || isRegistryError(err, "ProfileAlreadyAdded") {
		return nil
	}
	if err != nil {
		return fmt.Errorf("add profile %s to %s: %w", profilePath, devicePath, err)
	}
	return nil
}

// CreateProfile registers a profile file under id
func (c *Client) CreateProfile(id, filename string) error {
	props := map[string]string{
		ProfileFilename:     filename,
		ProfileFileChecksum: id,
	}
	var path dbus.ObjectPath
	err := c.call(rootPath, managerIface+".CreateProfile", []any{id, ScopeTemp, props}, &path)
	if isRegistryError(err, "AlreadyExists") {
		return nil
	}
	if err != nil {
		return fmt.Errorf("create profile %s: %w", id, err)
	}
	return nil
}

// DeleteProfileByFilename removes the profile registered for filename
func (c *Client) DeleteProfileByFilename(filename string) error {
	var path dbus.ObjectPath
	if err := c.call(rootPath, managerIface+".FindProfileByFilename", []any{filename}, &path); err != nil {
		return fmt.Errorf("find profile %s: %w", filename, wrapNotFound(err))
	}
	if err := c.call(rootPath, managerIface+".DeleteProfile", []any{path}); err != nil {
		return fmt.Errorf("delete profile %s: %w", filename, wrapNotFound(err))
	}
	return nil
}

// Profile reads a profile's id, filename and metadata
func (c *Client) Profile(path string) (Profile, error) {
	obj := dbus.ObjectPath(path)
	p := Profile{Path: path}
	if err := c.property(obj, profileIface, "Id", &p.ID); err != nil {
		return p, err
	}
	if err := c.property(obj, profileIface, "Filename", &p.Filename); err != nil {
		return p, err
	}
	if err := c.property(obj, profileIface, "Metadata", &p.Metadata); err != nil {
		return p, err
	}
	return p, nil
}

// DisplayDevices lists all display devices
func (c *Client) DisplayDevices() ([]string, error) {
	var paths []dbus.ObjectPath
	if err := c.call(rootPath, managerIface+".GetDevicesByKind", []any{KindDisplay}, &paths); err != nil {
		return nil, fmt.Errorf("list display devices: %w", err)
	}
	return pathStrings(paths), nil
}

// Profiles lists all registered profiles
func (c *Client) Profiles() ([]string, error) {
	var paths []dbus.ObjectPath
	if err := c.call(rootPath, managerIface+".GetProfiles", nil, &paths); err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	return pathStrings(paths), nil
}

func pathStrings(paths []dbus.ObjectPath) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = string(p)
	}
	return out
}
