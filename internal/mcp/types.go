package mcp

import "github.com/1broseidon/iccsync/internal/ipc"

// StatusInput is the input for the get_status tool.
type StatusInput struct{}

// ListDisplaysInput is the input for the list_displays tool.
type ListDisplaysInput struct {
	Name string `json:"name,omitempty" jsonschema:"Only return the display with this name"`
}

// ListDisplaysOutput is the output for the list_displays tool.
type ListDisplaysOutput struct {
	Displays []ipc.DisplayInfo `json:"displays"`
}

// UpdateInput is the input for the update_displays tool.
type UpdateInput struct{}

// UpdateOutput is the output for the update_displays tool.
type UpdateOutput struct {
	Displays int `json:"displays"`
}

// ResetGammaInput is the input for the reset_gamma tool.
type ResetGammaInput struct {
	Name string `json:"name" jsonschema:"Display name as reported by list_displays"`
}

// ResetGammaOutput is the output for the reset_gamma tool.
type ResetGammaOutput struct {
	Name  string `json:"name"`
	Reset bool   `json:"reset"`
}

// DecodeEDIDInput is the input for the decode_edid tool.
type DecodeEDIDInput struct {
	Hex        string `json:"hex" jsonschema:"EDID bytes as hex. Whitespace, colons and a 0x prefix are ignored."`
	Synthesize bool   `json:"synthesize,omitempty" jsonschema:"Also build the ICC profile iccsync would generate for this EDID"`
}

// Point is a CIE 1931 xy chromaticity.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// ProfileSummary describes a synthesized ICC profile.
type ProfileSummary struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Size        int    `json:"size"`
}

// DecodeEDIDOutput is the output for the decode_edid tool.
type DecodeEDIDOutput struct {
	Valid            bool            `json:"valid"`
	ContentID        string          `json:"content_id"`
	ManufacturerCode string          `json:"manufacturer_code,omitempty"`
	Vendor           string          `json:"vendor,omitempty"`
	Model            string          `json:"model,omitempty"`
	Serial           string          `json:"serial,omitempty"`
	SRGB             bool            `json:"srgb"`
	Gamma            float64         `json:"gamma,omitempty"`
	Red              Point           `json:"red"`
	Green            Point           `json:"green"`
	Blue             Point           `json:"blue"`
	White            Point           `json:"white"`
	Profile          *ProfileSummary `json:"profile,omitempty"`
	ProfileError     string          `json:"profile_error,omitempty"`
}
