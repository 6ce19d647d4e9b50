package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/1broseidon/iccsync/internal/buildinfo"
	"github.com/1broseidon/iccsync/internal/colord"
	"github.com/1broseidon/iccsync/internal/daemon"
	"github.com/1broseidon/iccsync/internal/display"
	"github.com/1broseidon/iccsync/internal/edid"
	"github.com/1broseidon/iccsync/internal/icc"
	"github.com/1broseidon/iccsync/internal/ipc"
	"github.com/1broseidon/iccsync/internal/logging"
	"github.com/1broseidon/iccsync/internal/pnp"
	"github.com/1broseidon/iccsync/internal/runtimepath"
	"github.com/1broseidon/iccsync/internal/storage"
	"github.com/1broseidon/iccsync/internal/x11"
)

var standaloneFlag bool

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the color sync daemon in the foreground",
	Long: `Run the color sync daemon. Displays are enumerated on start and on every
RandR change. With colord available, displays and their EDID profiles are
registered there and the registry's default profile is applied; otherwise
(or with --standalone) the synthesized profile is applied directly.`,
	Args: cobra.NoArgs,
	RunE: runDaemon,
}

func init() {
	daemonCmd.Flags().BoolVar(&standaloneFlag, "standalone", false, "Do not use colord; apply synthesized profiles directly")
}

// synthesizer stamps generated profiles with this binary's identity.
func synthesizer() storage.Synthesizer {
	binary := "iccsync"
	if exe, err := os.Executable(); err == nil {
		binary = filepath.Base(exe)
	}
	opts := icc.Options{
		Product: "iccsync",
		Binary:  binary,
		Version: buildinfo.Version,
	}
	return func(id edid.Identity) (*icc.Profile, error) {
		return icc.FromIdentity(id, opts)
	}
}

func runDaemon(cmd *cobra.Command, args []string) error {
	res, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	cfg := res.Config

	logger, err := logging.Setup(cfg.Logging, debugFlag)
	if err != nil {
		return err
	}
	defer logging.Close()
	logger.Info("configuration loaded", "files", res.Files, "vendor_lookup", cfg.VendorLookup, "registry", cfg.Registry && !standaloneFlag)

	env, err := x11.ResolveEnv(cfg.Display)
	if err != nil {
		return err
	}
	if err := env.Export(); err != nil {
		return fmt.Errorf("failed to export XAUTHORITY: %w", err)
	}

	resolver, err := pnp.NewResolver(cfg.VendorLookup, cfg.PNPIDs, logger)
	if err != nil {
		return err
	}

	var conn *x11.Connection
	engine, err := display.Open(func() (display.Server, error) {
		c, err := x11.Dial(env.Display, logger)
		if err != nil {
			return nil, err
		}
		conn = c
		return c, nil
	}, display.Options{Resolver: resolver, Logger: logger})
	if err != nil {
		return fmt.Errorf("failed to connect to display: %w", err)
	}
	defer engine.Close()
	logger.Info("connected to X server", "display", env.Display)

	pump := conn.StartPump()
	defer pump.Stop()

	synth := synthesizer()
	store, err := storage.New(cfg.ProfileDir, synth, logger)
	if err != nil {
		return err
	}
	defer store.Stop()

	opts := daemon.Options{
		Engine:         engine,
		Events:         pump,
		Storage:        store,
		Synthesize:     synth,
		ResyncInterval: cfg.ResyncInterval.Std(),
		Logger:         logger,
	}
	if cfg.Registry && !standaloneFlag {
		client, err := colord.Dial(cfg.RegistryTimeout.Std(), logger)
		if err != nil {
			logger.Warn("color registry unavailable, running standalone", "error", err)
		} else {
			defer client.Close()
			opts.Registry = client
		}
	}
	d := daemon.New(opts)

	socketPath, err := runtimepath.SocketPath()
	if err != nil {
		return err
	}
	server := ipc.NewServer(socketPath, d.Handler(ipc.DefaultTimeout), logger)
	if err := server.Start(); err != nil {
		return fmt.Errorf("failed to start IPC server: %w", err)
	}
	defer server.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = d.Run(ctx)
	if errors.Is(err, daemon.ErrDisplayClosed) {
		logger.Error("X server connection lost")
	}
	logger.Debug("daemon stopped")
	return err
}
