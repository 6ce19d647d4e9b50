package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/1broseidon/iccsync/internal/ipc"
)

var displaysJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status via IPC",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := ipc.NewClient().GetStatus()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "daemon_running: %v\n", status.DaemonRunning)
		fmt.Fprintf(out, "engine_state:   %s\n", status.EngineState)
		fmt.Fprintf(out, "displays:       %d\n", status.DisplayCount)
		fmt.Fprintf(out, "passes:         %d\n", status.Passes)
		fmt.Fprintf(out, "registry:       %v\n", status.Registry)
		fmt.Fprintf(out, "profiles:       %d\n", status.Profiles)
		fmt.Fprintf(out, "uptime_seconds: %d\n", status.UptimeSeconds)
		return nil
	},
}

var displaysCmd = &cobra.Command{
	Use:     "displays",
	Aliases: []string{"ls"},
	Short:   "List connected displays",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := ipc.NewClient().ListDisplays()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if displaysJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(data.Displays)
		}
		writeDisplays(out, data.Displays, isTerminal(out))
		return nil
	},
}

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Force the daemon to re-enumerate displays",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ipc.NewClient().Update(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "update: ok")
		return nil
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset <display>",
	Short: "Reset a display's gamma ramp to linear",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ipc.NewClient().ResetGamma(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "reset: %s\n", args[0])
		return nil
	},
}

func init() {
	displaysCmd.Flags().BoolVar(&displaysJSON, "json", false, "Print displays as JSON")
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// writeDisplays prints an aligned table for terminals and tab-separated
// rows with a header otherwise.
func writeDisplays(w io.Writer, displays []ipc.DisplayInfo, table bool) {
	header := []string{"#", "NAME", "CONNECTOR", "FLAGS", "VENDOR", "MODEL", "SERIAL", "GAMMA"}
	rows := make([][]string, 0, len(displays))
	for _, d := range displays {
		rows = append(rows, []string{
			strconv.Itoa(d.Ordinal),
			d.Name,
			d.Connector,
			displayFlags(d),
			orDash(d.Vendor),
			orDash(d.Model),
			orDash(d.Serial),
			formatGamma(d.Gamma),
		})
	}

	if !table {
		fmt.Fprintln(w, strings.Join(header, "\t"))
		for _, row := range rows {
			fmt.Fprintln(w, strings.Join(row, "\t"))
		}
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(header, "\t"))
	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	tw.Flush()
}

func displayFlags(d ipc.DisplayInfo) string {
	var flags []string
	if d.Primary {
		flags = append(flags, "primary")
	}
	if d.Laptop {
		flags = append(flags, "laptop")
	}
	if !d.Driven {
		flags = append(flags, "off")
	}
	if len(flags) == 0 {
		return "-"
	}
	return strings.Join(flags, ",")
}

func formatGamma(g float64) string {
	if g <= 0 {
		return "-"
	}
	return strconv.FormatFloat(g, 'f', 2, 64)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
