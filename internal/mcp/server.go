package mcp

import (
	"context"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/1broseidon/iccsync/internal/buildinfo"
	"github.com/1broseidon/iccsync/internal/edid"
	"github.com/1broseidon/iccsync/internal/ipc"
	"github.com/1broseidon/iccsync/internal/storage"
)

const ServerName = "iccsync"

// DaemonClient is the subset of the IPC client the tools use.
type DaemonClient interface {
	GetStatus() (*ipc.StatusData, error)
	ListDisplays() (*ipc.DisplaysData, error)
	Update() error
	ResetGamma(name string) error
}

var _ DaemonClient = (*ipc.Client)(nil)

// Options configure a Server
type Options struct {
	Client DaemonClient
	// Resolver names vendors in decode_edid; may be nil
	Resolver   edid.VendorResolver
	Synthesize storage.Synthesizer
}

// Server exposes the daemon's display state as MCP tools.
type Server struct {
	mcpServer  *mcpsdk.Server
	client     DaemonClient
	resolver   edid.VendorResolver
	synthesize storage.Synthesizer
}

// NewServer creates a new MCP server talking to the daemon through client.
func NewServer(opts Options) *Server {
	s := &Server{
		client:     opts.Client,
		resolver:   opts.Resolver,
		synthesize: opts.Synthesize,
	}

	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    ServerName,
			Version: buildinfo.Version,
		},
		nil,
	)

	s.registerTools()
	return s
}

// Run starts the MCP server on stdio transport, blocking until done.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "get_status",
		Description: "Report whether the iccsync daemon is running, its display engine state, the number of enumeration passes and whether colord is in use.",
	}, s.handleStatus)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "list_displays",
		Description: "List the connected displays in enumeration order with their connector, EDID identity (vendor, model, serial, content id) and declared gamma.",
	}, s.handleListDisplays)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "update_displays",
		Description: "Force a re-enumeration of the X server outputs. Hotplugged displays are registered and their profiles applied.",
	}, s.handleUpdate)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "reset_gamma",
		Description: "Reset one display's gamma ramp to linear. The next profile change re-applies calibration.",
	}, s.handleResetGamma)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "decode_edid",
		Description: "Decode a raw EDID blob into its identity and colorimetry. Works without the daemon.",
	}, s.handleDecodeEDID)
}
