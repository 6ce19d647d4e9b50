// Package main is the entry point for the iccsync daemon and CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/1broseidon/iccsync/internal/config"
)

var (
	configPath string
	displayArg string
	debugFlag  bool
)

var rootCmd = &cobra.Command{
	Use:   "iccsync",
	Short: "Keep X11 display color profiles in sync",
	Long: `iccsync watches the X server's RandR outputs, decodes each display's EDID,
registers the displays and their ICC profiles with colord and applies the
default profile's calibration curves to the CRTC gamma ramps.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file path (default: ~/.config/iccsync/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&displayArg, "display", "", "X display to use (overrides config and $DISPLAY)")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "Enable debug logging")

	// Add subcommands (alphabetical)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(displaysCmd)
	rootCmd.AddCommand(edidCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig loads --config (or the default path) and applies --display.
func loadConfig() (*config.LoadResult, error) {
	var (
		res *config.LoadResult
		err error
	)
	if configPath == "" {
		res, err = config.LoadWithSources()
	} else {
		res, err = config.LoadFromPath(configPath)
	}
	if err != nil {
		return nil, err
	}
	if displayArg != "" {
		if err := res.Override("display", func(c *config.Config) { c.Display = displayArg }); err != nil {
			return nil, err
		}
	}
	return res, nil
}
