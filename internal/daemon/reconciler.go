package daemon

import (
	"context"
	"log/slog"
	"time"
)

// ReconcilerConfig holds configuration for the reconciler.
type ReconcilerConfig struct {
	Interval time.Duration
	Logger   *slog.Logger
}

// Reconciler periodically re-enumerates displays and restores registry
// devices that went missing, e.g. after the registry restarted.
type Reconciler struct {
	interval time.Duration
	daemon   *Daemon
	logger   *slog.Logger
}

// NewReconciler creates a reconciler for d. A non-positive interval
// disables it.
func NewReconciler(cfg ReconcilerConfig, d *Daemon) *Reconciler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		interval: cfg.Interval,
		daemon:   d,
		logger:   logger,
	}
}

// Run starts the reconciliation loop. Blocks until context is cancelled.
// Passes are executed on the daemon loop.
func (r *Reconciler) Run(ctx context.Context) {
	if r.interval <= 0 {
		return
	}
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("reconciler started", "interval", r.interval)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reconciler stopped")
			return
		case <-ticker.C:
			if err := r.daemon.Do(ctx, r.reconcile); err != nil && ctx.Err() == nil {
				r.logger.Warn("reconciler: pass not run", "error", err)
			}
		}
	}
}

// reconcile performs a single reconciliation pass.
func (r *Reconciler) reconcile() error {
	// Recover from panics to prevent crashing the daemon
	defer func() {
		if err := recover(); err != nil {
			r.logger.Error("reconciler panic recovered", "error", err)
		}
	}()

	r.daemon.engine.Update()

	registry := r.daemon.sync.registry
	if registry == nil {
		return nil
	}

	paths, err := registry.DisplayDevices()
	if err != nil {
		r.logger.Error("reconciler: failed to list devices", "error", err)
		return nil
	}
	registered := make(map[string]bool, len(paths))
	for _, path := range paths {
		dev, err := registry.Device(path)
		if err != nil {
			r.logger.Warn("reconciler: failed to read device", "path", path, "error", err)
			continue
		}
		registered[dev.ID] = true
	}

	for _, d := range r.daemon.engine.Displays() {
		if registered[d.Name] {
			continue
		}
		r.logger.Info("reconciler: display has no device", "display", d.Name)
		if found := r.daemon.engine.FindByName(d.Name); found != nil {
			r.daemon.sync.createDevice(found)
		}
	}
	return nil
}

// ReconcileNow triggers an immediate reconciliation pass on the daemon loop.
func (r *Reconciler) ReconcileNow(ctx context.Context) error {
	return r.daemon.Do(ctx, r.reconcile)
}
