package daemon

import (
	"errors"
	"log/slog"
	"os"

	"github.com/godbus/dbus/v5"

	"github.com/1broseidon/iccsync/internal/colord"
	"github.com/1broseidon/iccsync/internal/display"
	"github.com/1broseidon/iccsync/internal/icc"
	"github.com/1broseidon/iccsync/internal/storage"
)

// Synchronizer keeps the registry, the profile directory and the X server
// consistent with the engine's displays. It is a display.Listener; every
// method runs on the daemon loop.
type Synchronizer struct {
	engine   *display.Engine
	registry Registry
	storage  *storage.Storage
	synth    storage.Synthesizer
	readFile func(string) ([]byte, error)
	logger   *slog.Logger
}

// NewSynchronizer creates the glue between engine, registry and storage.
// registry and store may be nil; without a registry profiles are
// synthesized and applied directly.
func NewSynchronizer(engine *display.Engine, registry Registry, store *storage.Storage, synth storage.Synthesizer, logger *slog.Logger) *Synchronizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Synchronizer{
		engine:   engine,
		registry: registry,
		storage:  store,
		synth:    synth,
		readFile: os.ReadFile,
		logger:   logger,
	}
}

// Standalone reports whether the synchronizer runs without a registry
func (s *Synchronizer) Standalone() bool {
	return s.registry == nil
}

// DropRegistry switches to standalone mode and reapplies every display
func (s *Synchronizer) DropRegistry() {
	if s.registry == nil {
		return
	}
	s.registry = nil
	s.logger.Warn("color registry unavailable, applying synthesized profiles directly")
	for _, d := range s.engine.Displays() {
		if found := s.engine.FindByName(d.Name); found != nil {
			s.applySynthesized(found)
		}
	}
}

// DisplayAdded writes a profile for the display's EDID and registers the
// display as a device
func (s *Synchronizer) DisplayAdded(d *display.Display) {
	s.logger.Debug("added display", "name", d.Name, "connector", d.ConnectorName)

	if s.storage != nil {
		s.HandleStorage(s.storage.EnsureProfile(d.Identity))
	}
	if s.registry == nil {
		s.applySynthesized(d)
		return
	}
	s.createDevice(d)
}

// DisplayRemoved drops the display's device
func (s *Synchronizer) DisplayRemoved(d *display.Display) {
	s.logger.Debug("removed display", "name", d.Name)

	if s.registry == nil {
		return
	}
	err := s.registry.DeleteDevice(d.Name)
	if errors.Is(err, colord.ErrNotFound) {
		s.logger.Debug("device not found so not removed", "device", d.Name)
		return
	}
	if err != nil {
		s.logger.Error("device not removed", "device", d.Name, "error", err)
	}
}

// DisplayChanged reapplies the display's current profile
func (s *Synchronizer) DisplayChanged(d *display.Display) {
	if s.registry == nil {
		s.applySynthesized(d)
		return
	}
	path, err := s.registry.FindDevice(d.Name)
	if errors.Is(err, colord.ErrNotFound) {
		s.createDevice(d)
		return
	}
	if err != nil {
		s.logger.Error("unable to find device", "device", d.Name, "error", err)
		return
	}
	s.UpdateDevice(path)
}

func (s *Synchronizer) createDevice(d *display.Display) {
	if err := s.registry.CreateDevice(d.Name, deviceProperties(d)); err != nil {
		s.logger.Error("failed to create color device", "device", d.Name, "error", err)
	}
}

func deviceProperties(d *display.Display) map[string]string {
	props := map[string]string{
		colord.DeviceKind:       colord.KindDisplay,
		colord.DeviceMode:       colord.ModePhysical,
		colord.DeviceColorspace: colord.ColorspaceRGB,
		colord.DeviceVendor:     d.Identity.Vendor,
		colord.DeviceModel:      d.Identity.Model,
		colord.DeviceXRandRName: d.ConnectorName,
		colord.DevicePriority:   colord.PrioritySecondary,
	}
	if d.Identity.Serial != "" {
		props[colord.DeviceSerial] = d.Identity.Serial
	}
	if d.IsPrimary {
		props[colord.DevicePriority] = colord.PriorityPrimary
	}
	if d.IsLaptop {
		props[colord.DeviceEmbedded] = ""
	}
	return props
}

// applySynthesized applies a profile built in memory from the display's
// EDID, or a linear ramp when none can be built
func (s *Synchronizer) applySynthesized(d *display.Display) {
	if s.synth == nil {
		s.engine.Apply(d, nil)
		return
	}
	p, err := s.synth(d.Identity)
	if err != nil {
		s.logger.Debug("no profile for display", "name", d.Name, "error", err)
		p = nil
	}
	s.engine.Apply(d, p)
}

// HandleSignal reacts to a registry signal
func (s *Synchronizer) HandleSignal(sig *dbus.Signal) {
	ev, ok := colord.ParseSignal(sig)
	if !ok || s.registry == nil {
		return
	}
	switch ev.Type {
	case colord.DeviceAdded, colord.DeviceChanged:
		s.UpdateDevice(ev.Path)
	case colord.ProfileAdded:
		s.UpdateProfile(ev.Path)
	}
}

// UpdateDevice applies the default profile of the device at path to its
// display. A device without profiles resets the display to linear.
func (s *Synchronizer) UpdateDevice(path string) {
	dev, err := s.registry.Device(path)
	if err != nil {
		s.logger.Error("unable to read device", "path", path, "error", err)
		return
	}
	if dev.Kind != colord.KindDisplay {
		s.logger.Debug("ignoring device: not a display", "device", dev.ID)
		return
	}

	d := s.engine.FindByName(dev.ID)
	if d == nil {
		s.logger.Debug("no display for device", "device", dev.ID)
		return
	}

	if len(dev.Profiles) == 0 {
		s.logger.Debug("unloading profile", "display", d.Name)
		s.engine.Apply(d, nil)
		return
	}

	prof, err := s.registry.Profile(dev.Profiles[0])
	if err != nil {
		s.logger.Error("unable to read profile", "path", dev.Profiles[0], "error", err)
		return
	}
	p, err := s.loadProfile(prof.Filename)
	if err != nil {
		s.logger.Error("can't get profile for display", "display", d.Name, "file", prof.Filename, "error", err)
		p = nil
	}
	s.logger.Debug("loading profile", "display", d.Name, "file", prof.Filename)
	s.engine.Apply(d, p)
}

func (s *Synchronizer) loadProfile(filename string) (*icc.Profile, error) {
	if filename == "" {
		return nil, errors.New("profile has no file")
	}
	data, err := s.readFile(filename)
	if err != nil {
		return nil, err
	}
	return icc.Parse(data)
}

// UpdateProfile attaches the profile at path to the display whose EDID it
// was made from
func (s *Synchronizer) UpdateProfile(path string) {
	prof, err := s.registry.Profile(path)
	if err != nil {
		s.logger.Error("unable to read profile", "path", path, "error", err)
		return
	}
	md5 := prof.Metadata[icc.MetaEDIDMD5]
	if md5 == "" {
		return
	}
	d := s.engine.FindByContentID(md5)
	if d == nil {
		return
	}
	s.logger.Debug("profile matches display", "profile", prof.ID, "display", d.Name)

	devicePath, err := s.registry.FindDevice(d.Name)
	if err != nil {
		s.logger.Error("unable to find device", "device", d.Name, "error", err)
		return
	}
	if err := s.registry.AddProfile(devicePath, path); err != nil {
		s.logger.Error("unable to add device profile", "device", d.Name, "error", err)
	}
}

// HandleStorage mirrors profile directory changes into the registry
func (s *Synchronizer) HandleStorage(events []storage.Event) {
	if s.registry == nil {
		return
	}
	for _, ev := range events {
		switch ev.Type {
		case storage.ProfileAdded:
			if err := s.registry.CreateProfile(ev.ID, ev.Path); err != nil {
				s.logger.Error("unable to create profile", "id", ev.ID, "error", err)
			}
		case storage.ProfileRemoved:
			err := s.registry.DeleteProfileByFilename(ev.Path)
			if errors.Is(err, colord.ErrNotFound) {
				s.logger.Debug("profile not found so not removed", "id", ev.ID, "file", ev.Path)
				continue
			}
			if err != nil {
				s.logger.Error("unable to remove profile", "file", ev.Path, "error", err)
			}
		}
	}
}

// Bootstrap processes the registry's existing devices and profiles and the
// profile directory's existing files
func (s *Synchronizer) Bootstrap() {
	if s.registry != nil {
		devices, err := s.registry.DisplayDevices()
		if err != nil {
			s.logger.Error("failed to get device list", "error", err)
		}
		for _, path := range devices {
			s.UpdateDevice(path)
		}

		profiles, err := s.registry.Profiles()
		if err != nil {
			s.logger.Error("failed to get profile list", "error", err)
		}
		for _, path := range profiles {
			s.UpdateProfile(path)
		}
	}
	if s.storage != nil {
		s.HandleStorage(s.storage.Scan())
	}
}
