package toolserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// NewMCPServer exposes every tool currently registered on d.
func (d *Dispatcher) NewMCPServer(name, version string) (*server.MCPServer, error) {
	s := server.NewMCPServer(name, version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
	for _, desc := range d.ListTools() {
		schema, err := json.Marshal(desc.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal input schema of '%v': %w", desc.Name, err)
		}
		s.AddTool(mcpgo.NewToolWithRawSchema(desc.Name, desc.Description, schema), d.handleCall)
	}
	return s, nil
}

func (d *Dispatcher) handleCall(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	res := d.Invoke(ctx, req.Params.Name, req.GetArguments())
	if res.IsError {
		return mcpgo.NewToolResultError(res.Text), nil
	}
	return mcpgo.NewToolResultText(res.Text), nil
}

// Serve speaks MCP over in/out until ctx is cancelled or in is closed.
// Nothing but protocol frames may be written to out.
func (d *Dispatcher) Serve(ctx context.Context, name, version string, in io.Reader, out io.Writer) error {
	s, err := d.NewMCPServer(name, version)
	if err != nil {
		return err
	}
	stdio := server.NewStdioServer(s)
	stdio.SetErrorLogger(slog.NewLogLogger(slog.Default().Handler(), slog.LevelError))
	if err := stdio.Listen(ctx, in, out); err != nil && ctx.Err() == nil {
		return fmt.Errorf("failed to serve tools: %w", err)
	}
	return nil
}
