package ipc

import (
	"encoding/json"
	"fmt"
)

// CommandType represents different IPC command types
type CommandType string

const (
	CommandGetStatus    CommandType = "GET_STATUS"
	CommandListDisplays CommandType = "LIST_DISPLAYS"
	CommandUpdate       CommandType = "UPDATE"
	CommandResetGamma   CommandType = "RESET_GAMMA"
)

// Request represents an IPC request from client to server
type Request struct {
	Command CommandType     `json:"command"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Response represents an IPC response from server to client
type Response struct {
	Status string          `json:"status"` // "OK" or "ERROR"
	Data   json.RawMessage `json:"data,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// StatusData represents the data returned by GET_STATUS
type StatusData struct {
	EngineState   string `json:"engine_state"`
	DisplayCount  int    `json:"display_count"`
	Passes        int    `json:"passes"`
	Registry      bool   `json:"registry"`
	Profiles      int    `json:"profiles"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	DaemonRunning bool   `json:"daemon_running"`
}

// DisplayInfo describes one connected display
type DisplayInfo struct {
	Ordinal   int     `json:"ordinal"`
	Name      string  `json:"name"`
	Connector string  `json:"connector"`
	Laptop    bool    `json:"laptop"`
	Primary   bool    `json:"primary"`
	Driven    bool    `json:"driven"`
	Vendor    string  `json:"vendor"`
	Model     string  `json:"model"`
	Serial    string  `json:"serial"`
	ContentID string  `json:"content_id,omitempty"`
	Gamma     float64 `json:"gamma"`
}

// DisplaysData represents the data returned by LIST_DISPLAYS
type DisplaysData struct {
	Displays []DisplayInfo `json:"displays"`
}

// ResetGammaPayload names the display whose ramp is reset to linear
type ResetGammaPayload struct {
	Name string `json:"name"`
}

// NewOKResponse creates a successful response with optional data
func NewOKResponse(data interface{}) (*Response, error) {
	var dataBytes json.RawMessage
	if data != nil {
		bytes, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal response data: %w", err)
		}
		dataBytes = bytes
	}

	return &Response{
		Status: "OK",
		Data:   dataBytes,
	}, nil
}

// NewErrorResponse creates an error response with a message
func NewErrorResponse(errMsg string) *Response {
	return &Response{
		Status: "ERROR",
		Error:  errMsg,
	}
}

// ParseRequest parses a request from JSON bytes
func ParseRequest(data []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("failed to parse request: %w", err)
	}
	return &req, nil
}

// Marshal converts a response to JSON bytes
func (r *Response) Marshal() ([]byte, error) {
	return json.Marshal(r)
}
