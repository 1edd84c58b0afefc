package mcp

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned by operations which need a live tool server.
	ErrNotConnected = errors.New("tool server not connected")
	// ErrConnectionLost is returned by calls whose transport died mid-flight.
	ErrConnectionLost = errors.New("tool server connection lost")
)

// StartupError means the tool server could not be located, spawned or
// handshaked with. The manager stays Disconnected.
type StartupError struct {
	Server string
	Op     string
	Err    error
}

func (e *StartupError) Error() string {
	return fmt.Sprintf("failed to start tool server '%v' (%v): %v", e.Server, e.Op, e.Err)
}

func (e *StartupError) Unwrap() error { return e.Err }

// InvocationError is a failure of one specific tool call. Message is the text
// the tool server returned, without its "Error: " prefix.
type InvocationError struct {
	Tool    string
	Message string
	Err     error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("tool '%v' failed: %v", e.Tool, e.Message)
}

func (e *InvocationError) Unwrap() error { return e.Err }

// UnexpectedExitError is published when the child dies without a requested
// stop. The owning session should end.
type UnexpectedExitError struct {
	Server   string
	ExitCode int
	Err      error
}

func (e *UnexpectedExitError) Error() string {
	msg := fmt.Sprintf("tool server '%v' exited unexpectedly with code %v, a restart is required", e.Server, e.ExitCode)
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

func (e *UnexpectedExitError) Unwrap() error { return e.Err }
