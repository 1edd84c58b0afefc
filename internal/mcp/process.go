package mcp

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/baalimago/go_away_boilerplate/pkg/ancli"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/sys/unix"
)

const sessionCloseTimeout = time.Second

// process is one spawned tool server together with its transport.
type process struct {
	name    string
	cmd     *exec.Cmd
	stdin   *os.File
	stdout  *watchedReader
	session *mcpsdk.ClientSession

	exited  chan struct{}
	waitErr error

	// stopping is only written with Manager.mu held
	stopping  bool
	closeOnce sync.Once
}

// watchedReader marks the transport as lost on the first read failure.
type watchedReader struct {
	f      *os.File
	failed atomic.Bool
}

func (r *watchedReader) Read(p []byte) (int, error) {
	n, err := r.f.Read(p)
	if err != nil {
		r.failed.Store(true)
	}
	return n, err
}

func (r *watchedReader) Close() error {
	r.failed.Store(true)
	return r.f.Close()
}

func (p *process) hasExited() bool {
	select {
	case <-p.exited:
		return true
	default:
		return false
	}
}

// transportLost reports if calls on this process can no longer complete.
func (p *process) transportLost() bool {
	return p.stdout.failed.Load() || p.hasExited()
}

func (p *process) exitCode() int {
	if p.cmd.ProcessState == nil {
		return -1
	}
	return p.cmd.ProcessState.ExitCode()
}

// closeTransport closes the client side of both pipes, then the session.
// The raw pipes go first so that any blocked read or write returns at once.
func (p *process) closeTransport() {
	p.closeOnce.Do(func() {
		p.stdin.Close()
		p.stdout.Close()
		if p.session == nil {
			return
		}
		done := make(chan struct{})
		go func() {
			p.session.Close()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(sessionCloseTimeout):
			ancli.Warnf("timed out closing session of tool server '%v'\n", p.name)
		}
	})
}

// terminate sends SIGTERM and escalates to SIGKILL once grace has passed.
func (p *process) terminate(grace time.Duration) error {
	if p.hasExited() {
		return nil
	}
	if err := p.cmd.Process.Signal(unix.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
		ancli.Warnf("failed to send SIGTERM to tool server '%v': %v\n", p.name, err)
	}
	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-p.exited:
		return nil
	case <-timer.C:
	}

	ancli.Warnf("tool server '%v' still running after %v, sending SIGKILL\n", p.name, grace)
	if err := p.cmd.Process.Signal(unix.SIGKILL); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("failed to kill tool server '%v': %w", p.name, err)
	}
	select {
	case <-p.exited:
		return nil
	case <-time.After(grace):
		return fmt.Errorf("tool server '%v' did not exit after SIGKILL", p.name)
	}
}

// lineWriter splits the child's stderr into lines and hands each to emit.
type lineWriter struct {
	mu   sync.Mutex
	buf  bytes.Buffer
	emit func(line string)
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf.Write(p)
	for {
		line, err := w.buf.ReadString('\n')
		if err != nil {
			// incomplete line, keep it for the next write
			w.buf.Reset()
			w.buf.WriteString(line)
			return len(p), nil
		}
		w.emit(line[:len(line)-1])
	}
}
