package daemon

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/BurntSushi/xgb"
	"github.com/godbus/dbus/v5"

	"github.com/1broseidon/iccsync/internal/colord"
	"github.com/1broseidon/iccsync/internal/display"
	"github.com/1broseidon/iccsync/internal/edid"
	"github.com/1broseidon/iccsync/internal/gamma"
	"github.com/1broseidon/iccsync/internal/icc"
	"github.com/1broseidon/iccsync/internal/storage"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// colorEDID returns a valid base block with sRGB-like primaries, gamma 2.2
// and model in a 0xFC descriptor
func colorEDID(model string) []byte {
	b := make([]byte, edid.MinSize)
	copy(b, []byte{0x00, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x00})
	b[8], b[9] = 0x10, 0xac
	b[23] = 120
	// high bits of rx ry gx gy bx by wx wy
	copy(b[27:35], []byte{164, 84, 77, 154, 38, 15, 80, 84})
	for i := 54; i < 126; i += 18 {
		b[i+3] = 0x10
	}
	b[72+3] = 0xfc
	field := b[72+5 : 72+17]
	for i := range field {
		field[i] = ' '
	}
	copy(field, model+"\n")
	var sum byte
	for _, v := range b[:127] {
		sum += v
	}
	b[127] = -sum
	return b
}

type fakeOutput struct {
	id   uint32
	info display.OutputInfo
	edid []byte
}

type fakeServer struct {
	outputs     []*fakeOutput
	primary     uint32
	gammaWrites map[uint32][]gamma.Ramp
	rootProfile []byte
	profileSets int
}

func newFakeServer(outputs ...*fakeOutput) *fakeServer {
	return &fakeServer{outputs: outputs, gammaWrites: map[uint32][]gamma.Ramp{}}
}

func output(id uint32, name string, crtc uint32, edidBytes []byte) *fakeOutput {
	return &fakeOutput{id: id, info: display.OutputInfo{Name: name, Connected: true, Crtc: crtc}, edid: edidBytes}
}

func (s *fakeServer) find(id uint32) *fakeOutput {
	for _, o := range s.outputs {
		if o.id == id {
			return o
		}
	}
	return nil
}

func (s *fakeServer) Screens() []uint32 { return []uint32{1} }

func (s *fakeServer) Outputs(root uint32) ([]uint32, uint32, error) {
	var ids []uint32
	for _, o := range s.outputs {
		ids = append(ids, o.id)
	}
	return ids, s.primary, nil
}

func (s *fakeServer) OutputInfo(out uint32) (display.OutputInfo, error) {
	o := s.find(out)
	if o == nil {
		return display.OutputInfo{}, fmt.Errorf("bad output %d", out)
	}
	return o.info, nil
}

func (s *fakeServer) OutputEDID(out uint32) ([]byte, error)    { return s.find(out).edid, nil }
func (s *fakeServer) ConnectorType(out uint32) (string, error) { return "", nil }
func (s *fakeServer) GammaSize(crtc uint32) (int, error)       { return 256, nil }
func (s *fakeServer) Close()                                   {}

func (s *fakeServer) SetGamma(crtc uint32, ramp gamma.Ramp) error {
	s.gammaWrites[crtc] = append(s.gammaWrites[crtc], ramp)
	return nil
}

func (s *fakeServer) SetRootProfile(root uint32, data []byte) error {
	s.rootProfile = data
	s.profileSets++
	return nil
}

type createdDevice struct {
	id    string
	props map[string]string
}

type fakeRegistry struct {
	devices         map[string]*colord.Device
	profiles        map[string]*colord.Profile
	created         []createdDevice
	deleted         []string
	createdProfiles []string
	deletedProfiles []string
	attached        []string
	signals         chan *dbus.Signal
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{
		devices:  map[string]*colord.Device{},
		profiles: map[string]*colord.Profile{},
		signals:  make(chan *dbus.Signal, 8),
	}
}

func (r *fakeRegistry) CreateDevice(id string, props map[string]string) error {
	r.created = append(r.created, createdDevice{id: id, props: props})
	path := "/devices/" + id
	if _, ok := r.devices[path]; !ok {
		r.devices[path] = &colord.Device{Path: path, ID: id, Kind: props[colord.DeviceKind]}
	}
	return nil
}

func (r *fakeRegistry) FindDevice(id string) (string, error) {
	for path, d := range r.devices {
		if d.ID == id {
			return path, nil
		}
	}
	return "", fmt.Errorf("find device %s: %w", id, colord.ErrNotFound)
}

func (r *fakeRegistry) DeleteDevice(id string) error {
	path, err := r.FindDevice(id)
	if err != nil {
		return err
	}
	delete(r.devices, path)
	r.deleted = append(r.deleted, id)
	return nil
}

func (r *fakeRegistry) Device(path string) (colord.Device, error) {
	d, ok := r.devices[path]
	if !ok {
		return colord.Device{}, colord.ErrNotFound
	}
	return *d, nil
}

func (r *fakeRegistry) AddProfile(devicePath, profilePath string) error {
	d, ok := r.devices[devicePath]
	if !ok {
		return colord.ErrNotFound
	}
	d.Profiles = append(d.Profiles, profilePath)
	r.attached = append(r.attached, d.ID+"<-"+profilePath)
	return nil
}

// CreateProfile reads metadata from the file the way the registry does
func (r *fakeRegistry) CreateProfile(id, filename string) error {
	r.createdProfiles = append(r.createdProfiles, id)
	p := &colord.Profile{Path: "/profiles/" + id, ID: id, Filename: filename}
	if data, err := os.ReadFile(filename); err == nil {
		if parsed, err := icc.Parse(data); err == nil {
			p.Metadata = parsed.MetadataMap()
		}
	}
	r.profiles[p.Path] = p
	return nil
}

func (r *fakeRegistry) DeleteProfileByFilename(filename string) error {
	for path, p := range r.profiles {
		if p.Filename == filename {
			delete(r.profiles, path)
			r.deletedProfiles = append(r.deletedProfiles, filename)
			return nil
		}
	}
	return fmt.Errorf("find profile %s: %w", filename, colord.ErrNotFound)
}

func (r *fakeRegistry) Profile(path string) (colord.Profile, error) {
	p, ok := r.profiles[path]
	if !ok {
		return colord.Profile{}, colord.ErrNotFound
	}
	return *p, nil
}

func (r *fakeRegistry) DisplayDevices() ([]string, error) {
	var out []string
	for path, d := range r.devices {
		if d.Kind == colord.KindDisplay {
			out = append(out, path)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (r *fakeRegistry) Profiles() ([]string, error) {
	var out []string
	for path := range r.profiles {
		out = append(out, path)
	}
	sort.Strings(out)
	return out, nil
}

func (r *fakeRegistry) Signals() <-chan *dbus.Signal { return r.signals }
func (r *fakeRegistry) Close() error                 { return nil }

type fakeEvents struct {
	ready  chan struct{}
	closed chan struct{}
	drains int
}

func newFakeEvents() *fakeEvents {
	return &fakeEvents{ready: make(chan struct{}), closed: make(chan struct{})}
}

func (e *fakeEvents) Ready() <-chan struct{}  { return e.ready }
func (e *fakeEvents) Closed() <-chan struct{} { return e.closed }
func (e *fakeEvents) Drain() []xgb.Event {
	e.drains++
	return nil
}
func (e *fakeEvents) Stop() {}

func synth(id edid.Identity) (*icc.Profile, error) {
	return icc.FromIdentity(id, icc.Options{Now: func() time.Time { return time.Unix(0, 0) }})
}

type fixture struct {
	server   *fakeServer
	engine   *display.Engine
	registry *fakeRegistry
	storage  *storage.Storage
	events   *fakeEvents
	daemon   *Daemon
}

func newFixture(t *testing.T, registry *fakeRegistry, outputs ...*fakeOutput) *fixture {
	t.Helper()
	server := newFakeServer(outputs...)
	engine, err := display.Open(func() (display.Server, error) { return server, nil }, display.Options{Logger: quietLogger()})
	if err != nil {
		t.Fatalf("display.Open: %v", err)
	}
	store, err := storage.New(filepath.Join(t.TempDir(), "icc"), synth, quietLogger())
	if err != nil {
		t.Fatalf("storage.New: %v", err)
	}
	t.Cleanup(store.Stop)

	f := &fixture{
		server:   server,
		engine:   engine,
		registry: registry,
		storage:  store,
		events:   newFakeEvents(),
	}
	opts := Options{
		Engine:     engine,
		Events:     f.events,
		Storage:    store,
		Synthesize: synth,
		Logger:     quietLogger(),
	}
	if registry != nil {
		opts.Registry = registry
	}
	f.daemon = New(opts)
	return f
}

// start bootstraps and enumerates without running the loop
func (f *fixture) start() {
	f.daemon.sync.Bootstrap()
	f.engine.Start()
}

func TestDisplayAddedRegistersDeviceAndProfile(t *testing.T) {
	f := newFixture(t, newFakeRegistry(), output(10, "DP-1", 100, colorEDID("Studio")))
	f.server.primary = 10
	f.start()

	if len(f.registry.created) != 1 {
		t.Fatalf("created devices = %+v", f.registry.created)
	}
	dev := f.registry.created[0]
	if dev.id != "xrandr-Studio" {
		t.Fatalf("device id = %q", dev.id)
	}
	want := map[string]string{
		colord.DeviceKind:       colord.KindDisplay,
		colord.DeviceMode:       colord.ModePhysical,
		colord.DeviceColorspace: colord.ColorspaceRGB,
		colord.DeviceVendor:     edid.UnknownVendor,
		colord.DeviceModel:      "Studio",
		colord.DeviceXRandRName: "DP-1",
		colord.DevicePriority:   colord.PriorityPrimary,
	}
	for k, v := range want {
		if dev.props[k] != v {
			t.Fatalf("prop %s = %q, want %q", k, dev.props[k], v)
		}
	}
	if _, ok := dev.props[colord.DeviceEmbedded]; ok {
		t.Fatalf("external display marked embedded")
	}

	if len(f.registry.createdProfiles) != 1 || f.storage.Len() != 1 {
		t.Fatalf("profiles: registry=%v storage=%d", f.registry.createdProfiles, f.storage.Len())
	}
}

func TestProfileAddedAttachesAndDeviceChangedApplies(t *testing.T) {
	f := newFixture(t, newFakeRegistry(), output(10, "DP-1", 100, colorEDID("Studio")))
	f.start()

	profilePath := "/profiles/" + f.registry.createdProfiles[0]
	f.daemon.sync.HandleSignal(&dbus.Signal{
		Name: "org.freedesktop.ColorManager.ProfileAdded",
		Body: []any{dbus.ObjectPath(profilePath)},
	})
	if len(f.registry.attached) != 1 || f.registry.attached[0] != "xrandr-Studio<-"+profilePath {
		t.Fatalf("attached = %v", f.registry.attached)
	}

	f.daemon.sync.HandleSignal(&dbus.Signal{
		Name: "org.freedesktop.ColorManager.DeviceChanged",
		Body: []any{dbus.ObjectPath("/devices/xrandr-Studio")},
	})
	if len(f.server.gammaWrites[100]) != 1 {
		t.Fatalf("gamma writes = %d", len(f.server.gammaWrites[100]))
	}
	file, err := os.ReadFile(f.registry.profiles[profilePath].Filename)
	if err != nil {
		t.Fatalf("read profile: %v", err)
	}
	if !bytes.Equal(f.server.rootProfile, file) {
		t.Fatalf("root profile (%d bytes) does not match file (%d bytes)", len(f.server.rootProfile), len(file))
	}
}

func TestDeviceWithoutProfileResetsToLinear(t *testing.T) {
	f := newFixture(t, newFakeRegistry(), output(10, "DP-1", 100, colorEDID("Studio")))
	f.start()

	f.daemon.sync.UpdateDevice("/devices/xrandr-Studio")
	writes := f.server.gammaWrites[100]
	if len(writes) != 1 {
		t.Fatalf("gamma writes = %d", len(writes))
	}
	if got, want := writes[0].Red[128], gamma.Linear(256).Red[128]; got != want {
		t.Fatalf("ramp midpoint = %d, want %d", got, want)
	}
	if f.server.profileSets != 1 || f.server.rootProfile != nil {
		t.Fatalf("root profile not cleared: sets=%d len=%d", f.server.profileSets, len(f.server.rootProfile))
	}
}

func TestUnreadableProfileFileResetsToLinear(t *testing.T) {
	f := newFixture(t, newFakeRegistry(), output(10, "DP-1", 100, colorEDID("Studio")))
	f.start()

	f.registry.profiles["/profiles/gone"] = &colord.Profile{Path: "/profiles/gone", Filename: filepath.Join(t.TempDir(), "gone.icc")}
	f.registry.devices["/devices/xrandr-Studio"].Profiles = []string{"/profiles/gone"}

	f.daemon.sync.UpdateDevice("/devices/xrandr-Studio")
	if len(f.server.gammaWrites[100]) != 1 || f.server.rootProfile != nil {
		t.Fatalf("expected linear reset, writes=%d root=%d", len(f.server.gammaWrites[100]), len(f.server.rootProfile))
	}
}

func TestForeignDevicesAreIgnored(t *testing.T) {
	f := newFixture(t, newFakeRegistry(), output(10, "DP-1", 100, colorEDID("Studio")))
	f.registry.devices["/devices/printer"] = &colord.Device{Path: "/devices/printer", ID: "printer", Kind: "printer"}
	f.registry.devices["/devices/other"] = &colord.Device{Path: "/devices/other", ID: "xrandr-Elsewhere", Kind: colord.KindDisplay}
	f.start()

	f.daemon.sync.UpdateDevice("/devices/printer")
	f.daemon.sync.UpdateDevice("/devices/other")
	if len(f.server.gammaWrites) != 0 {
		t.Fatalf("foreign devices touched gamma: %v", f.server.gammaWrites)
	}
}

func TestDisplayRemovedDeletesDevice(t *testing.T) {
	f := newFixture(t, newFakeRegistry(),
		output(10, "DP-1", 100, colorEDID("Studio")),
		output(11, "HDMI-1", 101, colorEDID("Side")))
	f.start()

	f.server.outputs = f.server.outputs[:1]
	f.engine.Update()
	if len(f.registry.deleted) != 1 || f.registry.deleted[0] != "xrandr-Side" {
		t.Fatalf("deleted = %v", f.registry.deleted)
	}

	// already gone from the registry: logged, not fatal
	delete(f.registry.devices, "/devices/xrandr-Studio")
	f.server.outputs = nil
	f.engine.Update()
	if len(f.registry.deleted) != 1 {
		t.Fatalf("deleted = %v", f.registry.deleted)
	}
}

func TestUnplugOfIdenticalMonitorKeepsDevice(t *testing.T) {
	f := newFixture(t, newFakeRegistry(),
		output(10, "DP-1", 100, colorEDID("Twin")),
		output(11, "DP-2", 101, colorEDID("Twin")))
	f.start()

	f.server.outputs = f.server.outputs[:1]
	f.engine.Update()

	if len(f.registry.deleted) != 0 {
		t.Fatalf("deleted = %v", f.registry.deleted)
	}
	if f.engine.FindByName("xrandr-Twin") == nil {
		t.Fatalf("remaining display not found")
	}
	if _, err := f.registry.FindDevice("xrandr-Twin"); err != nil {
		t.Fatalf("device lost: %v", err)
	}

	f.server.outputs = nil
	f.engine.Update()
	if len(f.registry.deleted) != 1 || f.registry.deleted[0] != "xrandr-Twin" {
		t.Fatalf("deleted = %v", f.registry.deleted)
	}
}

func TestDisplayChangedRecreatesMissingDevice(t *testing.T) {
	f := newFixture(t, newFakeRegistry(), output(10, "DP-1", 100, colorEDID("Studio")))
	f.start()

	delete(f.registry.devices, "/devices/xrandr-Studio")
	f.engine.Update()
	if len(f.registry.created) != 2 {
		t.Fatalf("created = %+v", f.registry.created)
	}
}

func TestStorageEventsMirrorIntoRegistry(t *testing.T) {
	f := newFixture(t, newFakeRegistry())
	f.start()

	p, err := synth(edid.Parse(colorEDID("Loose"), nil))
	if err != nil {
		t.Fatalf("synth: %v", err)
	}
	path := filepath.Join(f.storage.Dir(), "loose.icc")
	if err := os.WriteFile(path, p.Bytes(), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	f.daemon.sync.HandleStorage(f.storage.Handle(path))
	if len(f.registry.createdProfiles) != 1 || f.registry.createdProfiles[0] != "icc-"+p.ID() {
		t.Fatalf("created profiles = %v", f.registry.createdProfiles)
	}

	if err := os.Remove(path); err != nil {
		t.Fatalf("remove: %v", err)
	}
	f.daemon.sync.HandleStorage(f.storage.Handle(path))
	if len(f.registry.deletedProfiles) != 1 || f.registry.deletedProfiles[0] != path {
		t.Fatalf("deleted profiles = %v", f.registry.deletedProfiles)
	}
}

func TestStandaloneAppliesSynthesizedProfile(t *testing.T) {
	f := newFixture(t, nil, output(10, "eDP-1", 100, colorEDID("Panel")))
	f.start()

	if len(f.server.gammaWrites[100]) != 1 {
		t.Fatalf("gamma writes = %d", len(f.server.gammaWrites[100]))
	}
	p, err := icc.Parse(f.server.rootProfile)
	if err != nil {
		t.Fatalf("root profile: %v", err)
	}
	if p.Description() != "Panel" {
		t.Fatalf("description = %q", p.Description())
	}
	if f.storage.Len() != 1 {
		t.Fatalf("storage has %d profiles", f.storage.Len())
	}
}

func TestDropRegistryReappliesDisplays(t *testing.T) {
	f := newFixture(t, newFakeRegistry(), output(10, "DP-1", 100, colorEDID("Studio")))
	f.start()
	if len(f.server.gammaWrites[100]) != 0 {
		t.Fatalf("registry mode applied before any device signal")
	}

	f.daemon.sync.DropRegistry()
	if !f.daemon.sync.Standalone() {
		t.Fatalf("still using registry")
	}
	if len(f.server.gammaWrites[100]) != 1 || f.server.rootProfile == nil {
		t.Fatalf("display not reapplied")
	}
}

func TestReconcileRestoresDevices(t *testing.T) {
	f := newFixture(t, newFakeRegistry(), output(10, "DP-1", 100, colorEDID("Studio")))
	f.start()

	f.registry.devices = map[string]*colord.Device{}
	passes := f.engine.Passes()

	if err := f.daemon.reconciler.reconcile(); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if f.engine.Passes() != passes+1 {
		t.Fatalf("passes = %d, want %d", f.engine.Passes(), passes+1)
	}
	if _, err := f.registry.FindDevice("xrandr-Studio"); err != nil {
		t.Fatalf("device not restored: %v", err)
	}
}

func TestRunServesRequestsUntilCancelled(t *testing.T) {
	f := newFixture(t, newFakeRegistry(), output(10, "DP-1", 100, colorEDID("Studio")))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.daemon.Run(ctx) }()

	h := f.daemon.Handler(time.Second)
	status, err := h.Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.EngineState != "idle" || status.DisplayCount != 1 || !status.Registry || status.Profiles != 1 {
		t.Fatalf("status = %+v", status)
	}

	displays, err := h.Displays()
	if err != nil {
		t.Fatalf("Displays: %v", err)
	}
	if len(displays) != 1 || displays[0].Name != "xrandr-Studio" || displays[0].Gamma != 2.2 || !displays[0].Driven {
		t.Fatalf("displays = %+v", displays)
	}

	if err := h.Update(); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := h.ResetGamma("xrandr-Studio"); err != nil {
		t.Fatalf("ResetGamma: %v", err)
	}
	if err := h.ResetGamma("nope"); err == nil {
		t.Fatalf("ResetGamma of unknown display succeeded")
	}

	f.events.ready <- struct{}{}
	if err := f.daemon.Do(ctx, func() error { return nil }); err != nil {
		t.Fatalf("Do: %v", err)
	}
	if f.events.drains != 1 {
		t.Fatalf("drains = %d", f.events.drains)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Run did not return")
	}

	if err := f.daemon.Do(context.Background(), func() error { return nil }); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("Do after exit = %v", err)
	}
}

func TestUpdateRequestRestoresDevices(t *testing.T) {
	f := newFixture(t, newFakeRegistry(), output(10, "DP-1", 100, colorEDID("Studio")))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.daemon.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	h := f.daemon.Handler(time.Second)
	err := f.daemon.Do(ctx, func() error {
		f.registry.devices = map[string]*colord.Device{}
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	passes := 0
	if err := f.daemon.Do(ctx, func() error { passes = f.engine.Passes(); return nil }); err != nil {
		t.Fatalf("Do: %v", err)
	}

	if err := h.Update(); err != nil {
		t.Fatalf("Update: %v", err)
	}
	err = f.daemon.Do(ctx, func() error {
		if f.engine.Passes() != passes+1 {
			return fmt.Errorf("passes = %d, want %d", f.engine.Passes(), passes+1)
		}
		_, err := f.registry.FindDevice("xrandr-Studio")
		return err
	})
	if err != nil {
		t.Fatalf("after Update: %v", err)
	}
}

func TestRunStopsWhenDisplayCloses(t *testing.T) {
	f := newFixture(t, nil, output(10, "DP-1", 100, colorEDID("Studio")))
	close(f.events.closed)

	if err := f.daemon.Run(context.Background()); !errors.Is(err, ErrDisplayClosed) {
		t.Fatalf("Run = %v", err)
	}
}

func TestRunFallsBackWhenRegistryCloses(t *testing.T) {
	f := newFixture(t, newFakeRegistry(), output(10, "DP-1", 100, colorEDID("Studio")))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- f.daemon.Run(ctx) }()

	close(f.registry.signals)
	h := f.daemon.Handler(time.Second)
	deadline := time.Now().Add(5 * time.Second)
	for {
		status, err := h.Status()
		if err != nil {
			t.Fatalf("Status: %v", err)
		}
		if !status.Registry {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("registry still in use")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	<-done
}
