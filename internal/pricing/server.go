package pricing

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/scorzo/cloudcost/internal/toolserver"
)

const ServerName = "cloud-cost-calculator"

// ServeStdio loads the table at dataPath (embedded table when empty) and
// serves the calculator tools over in/out until ctx is done or in closes.
func ServeStdio(ctx context.Context, dataPath, version string, in io.Reader, out io.Writer) error {
	table, err := Load(dataPath)
	if err != nil {
		return err
	}
	d := toolserver.NewDispatcher()
	Register(d, NewCalculator(table))
	slog.Info("Cloud Cost Calculator MCP Server running on stdio",
		"instance_types", len(table.AWSInstances),
		"regions", len(table.Regions))
	if err := d.Serve(ctx, ServerName, version, in, out); err != nil {
		return fmt.Errorf("failed to run pricing server: %w", err)
	}
	return nil
}
