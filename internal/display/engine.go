package display

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/randr"

	"github.com/1broseidon/iccsync/internal/edid"
	"github.com/1broseidon/iccsync/internal/gamma"
	"github.com/1broseidon/iccsync/internal/icc"
)

// State is the engine lifecycle state
type State int

const (
	StateUninitialized State = iota
	StateConnected
	StateEnumerating
	StateIdle
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateConnected:
		return "connected"
	case StateEnumerating:
		return "enumerating"
	case StateIdle:
		return "idle"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ErrAlreadyConnected is returned by Connect on an engine past setup
var ErrAlreadyConnected = errors.New("display engine already connected")

// Options configure an Engine
type Options struct {
	// Resolver maps EDID manufacturer codes to vendor names; may be nil
	Resolver edid.VendorResolver
	Logger   *slog.Logger
}

// Engine owns the server connection and the current display snapshot. It is
// not safe for concurrent use: all calls, including listener callbacks, run
// on the caller's goroutine.
type Engine struct {
	server    Server
	resolver  edid.VendorResolver
	logger    *slog.Logger
	state     State
	displays  []*Display
	listeners []Listener
	rerun     bool
	passes    int
}

// New returns an unconnected engine
func New(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		resolver: opts.Resolver,
		logger:   logger,
		state:    StateUninitialized,
	}
}

// Open creates an engine and connects it with dial. On failure the engine
// is returned Closed together with the setup error.
func Open(dial func() (Server, error), opts Options) (*Engine, error) {
	e := New(opts)
	return e, e.Connect(dial)
}

// Connect dials the server and checks that every screen's output resources
// can be read. Any failure leaves the engine Closed.
func (e *Engine) Connect(dial func() (Server, error)) error {
	if e.state != StateUninitialized {
		return ErrAlreadyConnected
	}

	server, err := dial()
	if err != nil {
		e.state = StateClosed
		return fmt.Errorf("connect to display server: %w", err)
	}
	for _, root := range server.Screens() {
		if _, _, err := server.Outputs(root); err != nil {
			server.Close()
			e.state = StateClosed
			return fmt.Errorf("query output resources of screen %#x: %w", root, err)
		}
	}

	e.server = server
	e.state = StateConnected
	return nil
}

// Close releases the connection. Every later call is a no-op.
func (e *Engine) Close() {
	if e.server != nil {
		e.server.Close()
		e.server = nil
	}
	e.displays = nil
	e.state = StateClosed
}

// State returns the lifecycle state
func (e *Engine) State() State {
	return e.state
}

// Passes returns the number of completed enumeration passes
func (e *Engine) Passes() int {
	return e.passes
}

func (e *Engine) usable() bool {
	switch e.state {
	case StateConnected, StateEnumerating, StateIdle:
		return true
	}
	return false
}

// AddListener registers l for display events
func (e *Engine) AddListener(l Listener) {
	e.listeners = append(e.listeners, l)
}

// Start runs the first enumeration pass
func (e *Engine) Start() {
	e.Update()
}

// Update forces an enumeration pass. Called from a listener during a pass,
// it schedules one more pass to run once the current one has finished.
func (e *Engine) Update() {
	switch e.state {
	case StateConnected, StateIdle:
	case StateEnumerating:
		e.rerun = true
		return
	default:
		return
	}

	for {
		e.rerun = false
		e.pass()
		if !e.rerun || !e.usable() {
			return
		}
	}
}

// HandleEvents runs at most one pass for a drained burst of X events, and
// only if the burst holds a screen, CRTC or output change. It reports
// whether a pass ran.
func (e *Engine) HandleEvents(events []xgb.Event) bool {
	if !e.usable() {
		return false
	}
	for _, ev := range events {
		if isLayoutChange(ev) {
			e.Update()
			return true
		}
	}
	return false
}

func isLayoutChange(ev xgb.Event) bool {
	switch ev := ev.(type) {
	case randr.ScreenChangeNotifyEvent:
		return true
	case randr.NotifyEvent:
		return ev.SubCode == randr.NotifyCrtcChange || ev.SubCode == randr.NotifyOutputChange
	}
	return false
}

func (e *Engine) pass() {
	e.state = StateEnumerating

	next, err := e.enumerate()
	if err != nil {
		e.logger.Error("display enumeration failed", "error", err)
		e.state = StateIdle
		return
	}

	added, kept, removed := Diff(e.displays, next)
	e.displays = next
	e.passes++
	e.logger.Debug("display enumeration finished",
		"displays", len(next), "added", len(added), "changed", len(kept), "removed", len(removed))

	e.emit(added, Listener.DisplayAdded)
	e.emit(kept, Listener.DisplayChanged)
	e.emit(removed, Listener.DisplayRemoved)

	if e.state == StateEnumerating {
		e.state = StateIdle
	}
}

func (e *Engine) emit(displays []*Display, fn func(Listener, *Display)) {
	for _, d := range displays {
		for _, l := range e.listeners {
			if !e.usable() {
				return
			}
			fn(l, d)
		}
	}
}

func (e *Engine) enumerate() ([]*Display, error) {
	var out []*Display
	for _, root := range e.server.Screens() {
		outputs, primary, err := e.server.Outputs(root)
		if err != nil {
			return nil, fmt.Errorf("query output resources of screen %#x: %w", root, err)
		}
		for _, output := range outputs {
			info, err := e.server.OutputInfo(output)
			if err != nil {
				e.logger.Warn("failed to query output", "output", output, "error", err)
				continue
			}
			if !info.Connected {
				continue
			}
			d := e.describe(root, output, primary, info)
			d.Ordinal = len(out)
			out = append(out, d)
		}
	}
	return out, nil
}

func (e *Engine) describe(root, output, primary uint32, info OutputInfo) *Display {
	data, err := e.server.OutputEDID(output)
	if err != nil {
		e.logger.Debug("failed to read EDID", "output", info.Name, "error", err)
		data = nil
	}
	id := edid.ParseWithLogger(data, e.resolver, e.logger)

	connectorType, err := e.server.ConnectorType(output)
	if err != nil {
		e.logger.Debug("failed to read connector type", "output", info.Name, "error", err)
	}

	return &Display{
		Name:          displayName(id, info.Name),
		ConnectorName: info.Name,
		IsLaptop:      isLaptop(info.Name, connectorType),
		IsPrimary:     primary != 0 && output == primary,
		Identity:      id,
		Controller:    info.Crtc,
		Root:          root,
	}
}

// FindByName returns the display with the given device key, or nil
func (e *Engine) FindByName(name string) *Display {
	if !e.usable() {
		return nil
	}
	for _, d := range e.displays {
		if d.Name == name {
			return d
		}
	}
	return nil
}

// FindByContentID returns the display whose EDID hashes to id, or nil
func (e *Engine) FindByContentID(id string) *Display {
	if !e.usable() || id == "" {
		return nil
	}
	for _, d := range e.displays {
		if d.Identity.ContentID == id {
			return d
		}
	}
	return nil
}

// Displays returns a copy of the current snapshot
func (e *Engine) Displays() []Display {
	if !e.usable() {
		return nil
	}
	out := make([]Display, len(e.displays))
	for i, d := range e.displays {
		out[i] = *d
	}
	return out
}

// Main returns the display that owns the shared root profile property:
// the primary output, else the laptop panel, else the first driven output.
func (e *Engine) Main() *Display {
	if !e.usable() {
		return nil
	}
	var first, laptop *Display
	for _, d := range e.displays {
		if !d.Driven() {
			continue
		}
		if d.IsPrimary {
			return d
		}
		if first == nil {
			first = d
		}
		if laptop == nil && d.IsLaptop {
			laptop = d
		}
	}
	if laptop != nil {
		return laptop
	}
	return first
}

// Apply loads p (nil resets to linear) into d's gamma ramp and, when d is
// the main display, publishes p on the root window. Hardware failures are
// logged, not returned.
func (e *Engine) Apply(d *Display, p *icc.Profile) {
	if !e.usable() || d == nil {
		return
	}
	if !d.Driven() {
		e.logger.Debug("display has no controller, skipping", "display", d.Name)
		return
	}

	e.applyGamma(d, p)
	e.publishProfile(d, p)
}

func (e *Engine) applyGamma(d *Display, p *icc.Profile) {
	size, err := e.server.GammaSize(d.Controller)
	if err != nil {
		e.logger.Error("failed to query gamma size", "display", d.Name, "error", err)
		return
	}
	if size <= 0 {
		e.logger.Error("controller reports no gamma ramp", "display", d.Name, "size", size)
		return
	}

	ramp := gamma.ForProfile(p, size)
	if err := e.server.SetGamma(d.Controller, ramp); err != nil {
		e.logger.Error("failed to set gamma ramp", "display", d.Name, "error", err)
		return
	}
	e.logger.Debug("gamma ramp applied", "display", d.Name, "size", size, "linear", p == nil)
}

func (e *Engine) publishProfile(d *Display, p *icc.Profile) {
	owner := e.Main()
	if owner == nil || owner.Ordinal != d.Ordinal || owner.Name != d.Name {
		return
	}

	var data []byte
	if p != nil {
		data = p.Bytes()
	}
	if err := e.server.SetRootProfile(d.Root, data); err != nil {
		e.logger.Error("failed to publish root profile", "display", d.Name, "error", err)
		return
	}
	e.logger.Debug("root profile published", "display", d.Name, "bytes", len(data))
}
