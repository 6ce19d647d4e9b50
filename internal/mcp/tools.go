package mcp

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/1broseidon/iccsync/internal/edid"
	"github.com/1broseidon/iccsync/internal/ipc"
)

func (s *Server) handleStatus(_ context.Context, _ *mcpsdk.CallToolRequest, _ StatusInput) (*mcpsdk.CallToolResult, ipc.StatusData, error) {
	status, err := s.client.GetStatus()
	if err != nil {
		return nil, ipc.StatusData{}, err
	}
	return nil, *status, nil
}

func (s *Server) handleListDisplays(_ context.Context, _ *mcpsdk.CallToolRequest, args ListDisplaysInput) (*mcpsdk.CallToolResult, ListDisplaysOutput, error) {
	data, err := s.client.ListDisplays()
	if err != nil {
		return nil, ListDisplaysOutput{}, err
	}

	displays := make([]ipc.DisplayInfo, 0, len(data.Displays))
	for _, d := range data.Displays {
		if args.Name != "" && d.Name != args.Name {
			continue
		}
		displays = append(displays, d)
	}
	if args.Name != "" && len(displays) == 0 {
		return nil, ListDisplaysOutput{}, fmt.Errorf("no display named %q", args.Name)
	}
	return nil, ListDisplaysOutput{Displays: displays}, nil
}

func (s *Server) handleUpdate(_ context.Context, _ *mcpsdk.CallToolRequest, _ UpdateInput) (*mcpsdk.CallToolResult, UpdateOutput, error) {
	if err := s.client.Update(); err != nil {
		return nil, UpdateOutput{}, err
	}
	data, err := s.client.ListDisplays()
	if err != nil {
		return nil, UpdateOutput{}, err
	}
	return nil, UpdateOutput{Displays: len(data.Displays)}, nil
}

func (s *Server) handleResetGamma(_ context.Context, _ *mcpsdk.CallToolRequest, args ResetGammaInput) (*mcpsdk.CallToolResult, ResetGammaOutput, error) {
	name := strings.TrimSpace(args.Name)
	if name == "" {
		return nil, ResetGammaOutput{}, fmt.Errorf("name is required")
	}
	if err := s.client.ResetGamma(name); err != nil {
		return nil, ResetGammaOutput{}, err
	}
	return nil, ResetGammaOutput{Name: name, Reset: true}, nil
}

func (s *Server) handleDecodeEDID(_ context.Context, _ *mcpsdk.CallToolRequest, args DecodeEDIDInput) (*mcpsdk.CallToolResult, DecodeEDIDOutput, error) {
	data, err := ParseHex(args.Hex)
	if err != nil {
		return nil, DecodeEDIDOutput{}, err
	}

	id := edid.Parse(data, s.resolver)
	out := Describe(id)
	if !id.Valid {
		return nil, out, nil
	}

	if args.Synthesize && s.synthesize != nil {
		profile, err := s.synthesize(id)
		if err != nil {
			out.ProfileError = err.Error()
		} else {
			out.Profile = &ProfileSummary{
				ID:          profile.ID(),
				Description: profile.Description(),
				Size:        len(profile.Bytes()),
			}
		}
	}
	return nil, out, nil
}

// Describe converts a decoded identity into its reported form. Fallback
// vendor and model values are left out.
func Describe(id edid.Identity) DecodeEDIDOutput {
	out := DecodeEDIDOutput{
		Valid:     id.Valid,
		ContentID: id.ContentID,
	}
	if !id.Valid {
		return out
	}

	out.ManufacturerCode = id.ManufacturerCode
	if id.HasVendor {
		out.Vendor = id.Vendor
	}
	if id.HasModel {
		out.Model = id.Model
	}
	if id.HasSerial {
		out.Serial = id.Serial
	}
	out.SRGB = id.SRGB
	out.Gamma = id.Gamma
	out.Red = Point{X: id.Red.X, Y: id.Red.Y}
	out.Green = Point{X: id.Green.X, Y: id.Green.Y}
	out.Blue = Point{X: id.Blue.X, Y: id.Blue.Y}
	out.White = Point{X: id.White.X, Y: id.White.Y}
	return out
}

// ParseHex decodes a hex dump as printed by xrandr --props or edid-decode.
func ParseHex(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\r', ':':
			return -1
		}
		return r
	}, s)
	if s == "" {
		return nil, fmt.Errorf("hex is empty")
	}
	data, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex: %w", err)
	}
	return data, nil
}
