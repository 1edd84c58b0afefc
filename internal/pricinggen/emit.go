package pricinggen

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// Render writes data priced by r in format and returns the number of
// instance types written.
func Render(w io.Writer, format string, data AWSData, r *Rules, now time.Time) (int, error) {
	var v any
	var n int
	switch format {
	case FormatGenerator, "":
		out := Generate(data, r, now)
		v, n = out, len(out.Instances)
	case FormatTable:
		table, err := BuildTable(data, r, now)
		if err != nil {
			return 0, err
		}
		v, n = table, len(table.AWSInstances)
	default:
		return 0, fmt.Errorf("unknown format: '%v', expected '%v' or '%v'", format, FormatGenerator, FormatTable)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return 0, fmt.Errorf("failed to write output: %w", err)
	}
	return n, nil
}
