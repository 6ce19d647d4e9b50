package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/1broseidon/iccsync/internal/edid"
	"github.com/1broseidon/iccsync/internal/mcp"
	"github.com/1broseidon/iccsync/internal/pnp"
)

var profileOutput string

var edidCmd = &cobra.Command{
	Use:   "edid",
	Short: "Inspect EDID blobs offline",
}

var edidDecodeCmd = &cobra.Command{
	Use:   "decode <file|->",
	Short: "Decode an EDID file (raw or hex) and print its identity as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := decodeEDIDArg(cmd, args[0])
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(mcp.Describe(id))
	},
}

var edidProfileCmd = &cobra.Command{
	Use:   "profile <file|->",
	Short: "Write the ICC profile synthesized from an EDID",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := decodeEDIDArg(cmd, args[0])
		if err != nil {
			return err
		}
		profile, err := synthesizer()(id)
		if err != nil {
			return err
		}
		out := profileOutput
		if out == "" {
			out = "edid-" + id.ContentID + ".icc"
		}
		if err := os.WriteFile(out, profile.Bytes(), 0644); err != nil {
			return fmt.Errorf("failed to write profile: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s (%s)\n", out, profile.Description(), profile.ID())
		return nil
	},
}

func init() {
	edidProfileCmd.Flags().StringVarP(&profileOutput, "output", "o", "", "Output path (default: edid-<content id>.icc)")
	edidCmd.AddCommand(edidDecodeCmd)
	edidCmd.AddCommand(edidProfileCmd)
}

func decodeEDIDArg(cmd *cobra.Command, path string) (edid.Identity, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return edid.Identity{}, err
	}
	data, err = normalizeEDID(data)
	if err != nil {
		return edid.Identity{}, err
	}

	resolver, err := offlineResolver()
	if err != nil {
		return edid.Identity{}, err
	}
	id := edid.Parse(data, resolver)
	if !id.Valid {
		return id, fmt.Errorf("%s: not a valid EDID base block", path)
	}
	return id, nil
}

// normalizeEDID accepts raw bytes or a hex dump.
func normalizeEDID(data []byte) ([]byte, error) {
	text := strings.TrimSpace(string(data))
	if text == "" {
		return nil, fmt.Errorf("input is empty")
	}
	if isHexDump(text) {
		return mcp.ParseHex(text)
	}
	return data, nil
}

func isHexDump(s string) bool {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f', r >= 'A' && r <= 'F':
		case r == ' ', r == '\t', r == '\n', r == '\r', r == ':':
		default:
			return false
		}
	}
	return true
}

// offlineResolver uses the configured vendor lookup, falling back to the
// defaults when no config file can be loaded.
func offlineResolver() (edid.VendorResolver, error) {
	res, err := loadConfig()
	if err != nil {
		return pnp.NewResolver(pnp.ModePNP, pnp.DefaultIDsPath, nil)
	}
	return pnp.NewResolver(res.Config.VendorLookup, res.Config.PNPIDs, nil)
}
