package internal

import (
	"fmt"
	"io"
	"runtime/debug"
)

// Set with buildflag if built in pipeline and not using go install
var (
	BuildVersion  = ""
	BuildChecksum = ""
)

// Version of the running binary, as set by build flag or module info.
func Version() string {
	if BuildVersion != "" {
		return BuildVersion
	}
	bi, ok := debug.ReadBuildInfo()
	if !ok || bi.Main.Version == "" {
		return "dev"
	}
	return bi.Main.Version
}

// PrintVersion writes the version followed by all dependency versions.
func PrintVersion(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "version: %v\n", Version()); err != nil {
		return fmt.Errorf("failed to print version: %w", err)
	}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return nil
	}
	for _, dep := range bi.Deps {
		fmt.Fprintf(w, "%s %s\n", dep.Path, dep.Version)
	}
	return nil
}
