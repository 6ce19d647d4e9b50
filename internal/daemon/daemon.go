// Package daemon runs the iccsync event loop.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/1broseidon/iccsync/internal/display"
	"github.com/1broseidon/iccsync/internal/ipc"
	"github.com/1broseidon/iccsync/internal/storage"
)

var (
	// ErrDisplayClosed is returned by Run when the X connection goes away
	ErrDisplayClosed = errors.New("display connection closed")
	// ErrNotRunning is returned by Do once the loop has exited
	ErrNotRunning = errors.New("daemon is not running")
)

// Options wire a Daemon. Engine and Events are required.
type Options struct {
	Engine   *display.Engine
	Events   EventSource
	Registry Registry
	Storage  *storage.Storage
	// Synthesize builds profiles for standalone operation
	Synthesize     storage.Synthesizer
	ResyncInterval time.Duration
	Logger         *slog.Logger
}

type request struct {
	fn   func() error
	done chan error
}

// Daemon owns the event loop. Engine, registry and storage are only
// touched from Run's goroutine; other goroutines go through Do.
type Daemon struct {
	engine     *display.Engine
	events     EventSource
	storage    *storage.Storage
	sync       *Synchronizer
	reconciler *Reconciler
	requests   chan request
	stopped    chan struct{}
	started    time.Time
	logger     *slog.Logger
}

// New creates a daemon and registers its synchronizer with the engine
func New(opts Options) *Daemon {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	d := &Daemon{
		engine:   opts.Engine,
		events:   opts.Events,
		storage:  opts.Storage,
		sync:     NewSynchronizer(opts.Engine, opts.Registry, opts.Storage, opts.Synthesize, logger),
		requests: make(chan request),
		stopped:  make(chan struct{}),
		logger:   logger,
	}
	d.reconciler = NewReconciler(ReconcilerConfig{
		Interval: opts.ResyncInterval,
		Logger:   logger,
	}, d)
	d.engine.AddListener(d.sync)
	return d
}

// Run bootstraps the registry and profile directory state, performs the
// first enumeration pass, then serves events until ctx is cancelled or the
// X connection closes.
func (d *Daemon) Run(ctx context.Context) error {
	defer close(d.stopped)
	d.started = time.Now()

	d.sync.Bootstrap()
	if d.storage != nil {
		if err := d.storage.Start(); err != nil {
			d.logger.Warn("profile directory not watched", "error", err)
		}
	}
	d.engine.Start()
	d.logger.Info("daemon started",
		"displays", len(d.engine.Displays()),
		"standalone", d.sync.Standalone())

	reconcileCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go d.reconciler.Run(reconcileCtx)

	signals := d.signals()
	var changes <-chan string
	if d.storage != nil {
		changes = d.storage.Changes()
	}

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("shutting down daemon")
			return nil

		case <-d.events.Ready():
			d.engine.HandleEvents(d.events.Drain())

		case <-d.events.Closed():
			return ErrDisplayClosed

		case sig, ok := <-signals:
			if !ok {
				signals = nil
				d.sync.DropRegistry()
				continue
			}
			d.sync.HandleSignal(sig)

		case path := <-changes:
			d.sync.HandleStorage(d.storage.Handle(path))

		case req := <-d.requests:
			req.done <- req.fn()
		}
	}
}

func (d *Daemon) signals() <-chan *dbus.Signal {
	if d.sync.registry == nil {
		return nil
	}
	return d.sync.registry.Signals()
}

// Do runs fn on the loop goroutine and returns its error
func (d *Daemon) Do(ctx context.Context, fn func() error) error {
	req := request{fn: fn, done: make(chan error, 1)}
	select {
	case d.requests <- req:
	case <-d.stopped:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Handler exposes the daemon to IPC clients. Each call runs on the loop
// and gives up after timeout.
func (d *Daemon) Handler(timeout time.Duration) ipc.Handler {
	if timeout <= 0 {
		timeout = ipc.DefaultTimeout
	}
	return &ipcHandler{d: d, timeout: timeout}
}

type ipcHandler struct {
	d       *Daemon
	timeout time.Duration
}

func (h *ipcHandler) do(fn func() error) error {
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()
	return h.d.Do(ctx, fn)
}

func (h *ipcHandler) Status() (ipc.StatusData, error) {
	var status ipc.StatusData
	err := h.do(func() error {
		status = ipc.StatusData{
			EngineState:   h.d.engine.State().String(),
			DisplayCount:  len(h.d.engine.Displays()),
			Passes:        h.d.engine.Passes(),
			Registry:      !h.d.sync.Standalone(),
			UptimeSeconds: int64(time.Since(h.d.started).Seconds()),
		}
		if h.d.storage != nil {
			status.Profiles = h.d.storage.Len()
		}
		return nil
	})
	return status, err
}

func (h *ipcHandler) Displays() ([]ipc.DisplayInfo, error) {
	var infos []ipc.DisplayInfo
	err := h.do(func() error {
		for _, disp := range h.d.engine.Displays() {
			infos = append(infos, displayInfo(disp))
		}
		return nil
	})
	return infos, err
}

func displayInfo(d display.Display) ipc.DisplayInfo {
	info := ipc.DisplayInfo{
		Ordinal:   d.Ordinal,
		Name:      d.Name,
		Connector: d.ConnectorName,
		Laptop:    d.IsLaptop,
		Primary:   d.IsPrimary,
		Driven:    d.Driven(),
		Vendor:    d.Identity.Vendor,
		Model:     d.Identity.Model,
		Serial:    d.Identity.Serial,
		ContentID: d.Identity.ContentID,
	}
	if d.Identity.GammaDefined() {
		info.Gamma = d.Identity.Gamma
	}
	return info
}

// Update re-enumerates and restores missing registry devices
func (h *ipcHandler) Update() error {
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()
	return h.d.reconciler.ReconcileNow(ctx)
}

func (h *ipcHandler) ResetGamma(name string) error {
	return h.do(func() error {
		disp := h.d.engine.FindByName(name)
		if disp == nil {
			return fmt.Errorf("no display named %q", name)
		}
		h.d.engine.Apply(disp, nil)
		return nil
	})
}
