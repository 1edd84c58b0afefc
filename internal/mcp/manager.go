// Package mcp supervises a stdio tool server process: spawn, handshake,
// tool calls, graceful and forced termination, and detection of unexpected
// exits.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/baalimago/go_away_boilerplate/pkg/ancli"
	"github.com/baalimago/go_away_boilerplate/pkg/misc"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/scorzo/cloudcost/internal/event"
	"github.com/scorzo/cloudcost/internal/models"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultGracePeriod      = 2 * time.Second
	DefaultHandshakeTimeout = 30 * time.Second

	errorPrefix = "Error: "
)

type State int

const (
	Disconnected State = iota
	Starting
	Connected
	Stopping
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Starting:
		return "starting"
	case Connected:
		return "connected"
	case Stopping:
		return "stopping"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

type EventKind string

const (
	EventConnected      EventKind = "connected"
	EventDisconnected   EventKind = "disconnected"
	EventUnexpectedExit EventKind = "unexpected_exit"
)

type Event struct {
	Kind   EventKind
	Server string
	// Err is an *UnexpectedExitError for EventUnexpectedExit.
	Err error
}

type Option func(*Manager)

func WithGracePeriod(d time.Duration) Option {
	return func(m *Manager) { m.grace = d }
}

func WithHandshakeTimeout(d time.Duration) Option {
	return func(m *Manager) { m.handshakeTimeout = d }
}

// WithStderr sends each line the child writes to stderr to w instead of
// logging it.
func WithStderr(w io.Writer) Option {
	return func(m *Manager) { m.stderr = w }
}

func WithClientInfo(name, version string) Option {
	return func(m *Manager) {
		m.clientName = name
		m.clientVersion = version
	}
}

// Manager owns at most one tool server process and its transport.
type Manager struct {
	// opMu serializes start and stop, mu guards the fields below it
	opMu sync.Mutex
	sf   singleflight.Group

	mu    sync.RWMutex
	cfg   ServerConfig
	state State
	proc  *process
	gen   uint64
	known map[string]struct{}

	observers event.Observers[Event]

	grace            time.Duration
	handshakeTimeout time.Duration
	stderr           io.Writer
	clientName       string
	clientVersion    string
	debug            bool
}

func NewManager(cfg ServerConfig, opts ...Option) *Manager {
	m := &Manager{
		cfg:              cfg,
		grace:            DefaultGracePeriod,
		handshakeTimeout: DefaultHandshakeTimeout,
		clientName:       "cloudcost",
		clientVersion:    "dev",
		debug:            misc.Truthy(os.Getenv("DEBUG")) || misc.Truthy(os.Getenv("MCP_DEBUG")),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *Manager) Connected() bool {
	return m.State() == Connected
}

// Generation increases on every successful start.
func (m *Manager) Generation() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.gen
}

func (m *Manager) Config() ServerConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// Configure replaces the server config. Only allowed while Disconnected.
func (m *Manager) Configure(cfg ServerConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Disconnected {
		return fmt.Errorf("cannot reconfigure tool server while %v", m.state)
	}
	m.cfg = cfg
	return nil
}

// Subscribe to lifecycle events. Delivery is synchronous on the goroutine
// causing the transition.
func (m *Manager) Subscribe(fn func(Event)) func() {
	return m.observers.Subscribe(fn)
}

// Start spawns the tool server and performs the protocol handshake. It's a
// no-op while Connected, and concurrent callers share one attempt.
func (m *Manager) Start(ctx context.Context) error {
	_, err, _ := m.sf.Do("start", func() (any, error) {
		return nil, m.start(ctx)
	})
	return err
}

func (m *Manager) start(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	cfg := m.cfg
	if m.state == Connected {
		m.mu.Unlock()
		ancli.Noticef("tool server '%v' already running\n", cfg.displayName())
		return nil
	}
	m.state = Starting
	m.mu.Unlock()

	proc, err := m.spawn(ctx, cfg)
	if err != nil {
		m.mu.Lock()
		m.state = Disconnected
		m.mu.Unlock()
		return err
	}

	m.mu.Lock()
	m.proc = proc
	m.state = Connected
	m.gen++
	m.known = nil
	m.mu.Unlock()

	go m.watch(proc)
	if m.debug {
		ancli.Okf("tool server '%v' connected, pid: %v\n", proc.name, proc.cmd.Process.Pid)
	}
	m.observers.Publish(Event{Kind: EventConnected, Server: proc.name})
	return nil
}

func (m *Manager) spawn(ctx context.Context, cfg ServerConfig) (*process, error) {
	name := cfg.displayName()
	startupErr := func(op string, err error) error {
		return &StartupError{Server: name, Op: op, Err: err}
	}
	if cfg.Command == "" {
		return nil, startupErr("locate", errors.New("no command configured"))
	}
	path, err := exec.LookPath(cfg.Command)
	if err != nil {
		return nil, startupErr("locate", err)
	}
	env, err := cfg.environ()
	if err != nil {
		return nil, startupErr("configure", err)
	}

	// Own both pipes so that the child's exit shows up as EOF on our side
	// instead of being hidden behind exec's copying goroutines.
	stdinR, stdinW, err := os.Pipe()
	if err != nil {
		return nil, startupErr("spawn", err)
	}
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		stdinR.Close()
		stdinW.Close()
		return nil, startupErr("spawn", err)
	}

	cmd := exec.Command(path, cfg.Args...)
	cmd.Dir = cfg.Dir
	cmd.Env = env
	cmd.Stdin = stdinR
	cmd.Stdout = stdoutW
	cmd.Stderr = m.stderrSink(name)
	cmd.WaitDelay = time.Second
	if err := cmd.Start(); err != nil {
		for _, f := range []*os.File{stdinR, stdinW, stdoutR, stdoutW} {
			f.Close()
		}
		return nil, startupErr("spawn", err)
	}
	stdinR.Close()
	stdoutW.Close()

	proc := &process{
		name:   name,
		cmd:    cmd,
		stdin:  stdinW,
		stdout: &watchedReader{f: stdoutR},
		exited: make(chan struct{}),
	}
	go func() {
		proc.waitErr = cmd.Wait()
		close(proc.exited)
	}()

	hsCtx, cancel := context.WithTimeout(ctx, m.handshakeTimeout)
	defer cancel()
	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: m.clientName, Version: m.clientVersion}, nil)
	session, err := client.Connect(hsCtx, &mcpsdk.IOTransport{Reader: proc.stdout, Writer: proc.stdin}, nil)
	if err != nil {
		proc.closeTransport()
		if termErr := proc.terminate(m.grace); termErr != nil {
			ancli.Warnf("%v\n", termErr)
		}
		if proc.hasExited() && proc.exitCode() > 0 {
			err = fmt.Errorf("%w (exit code %v)", err, proc.exitCode())
		}
		return nil, startupErr("handshake", err)
	}
	proc.session = session
	return proc, nil
}

func (m *Manager) stderrSink(name string) io.Writer {
	if m.stderr != nil {
		return &lineWriter{emit: func(line string) {
			fmt.Fprintf(m.stderr, "[%v] %v\n", name, line)
		}}
	}
	return &lineWriter{emit: func(line string) {
		ancli.Noticef("[%v] %v\n", name, line)
	}}
}

// watch tears down after an exit which nobody asked for.
func (m *Manager) watch(proc *process) {
	<-proc.exited

	m.mu.Lock()
	if proc.stopping || m.proc != proc {
		m.mu.Unlock()
		return
	}
	m.proc = nil
	m.state = Disconnected
	m.known = nil
	m.mu.Unlock()

	proc.closeTransport()
	exitErr := &UnexpectedExitError{Server: proc.name, ExitCode: proc.exitCode(), Err: proc.waitErr}
	ancli.PrintErr(fmt.Sprintf("%v\n", exitErr))
	m.observers.Publish(Event{Kind: EventUnexpectedExit, Server: proc.name, Err: exitErr})
	m.observers.Publish(Event{Kind: EventDisconnected, Server: proc.name})
}

// Stop closes the transport, sends SIGTERM and escalates to SIGKILL after the
// grace period. Calling it while Disconnected is a no-op.
func (m *Manager) Stop() error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	proc := m.proc
	if proc == nil {
		m.state = Disconnected
		m.mu.Unlock()
		return nil
	}
	proc.stopping = true
	m.state = Stopping
	m.mu.Unlock()

	proc.closeTransport()
	err := proc.terminate(m.grace)

	m.mu.Lock()
	if m.proc == proc {
		m.proc = nil
	}
	m.state = Disconnected
	m.known = nil
	m.mu.Unlock()

	if m.debug {
		ancli.Okf("tool server '%v' stopped\n", proc.name)
	}
	m.observers.Publish(Event{Kind: EventDisconnected, Server: proc.name})
	return err
}

func (m *Manager) live() (*process, map[string]struct{}, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state != Connected || m.proc == nil {
		return nil, nil, ErrNotConnected
	}
	return m.proc, m.known, nil
}

func (m *Manager) lostErr(ctx context.Context, proc *process, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if proc.transportLost() {
		return fmt.Errorf("%w: %v", ErrConnectionLost, err)
	}
	return nil
}

// ListTools queries the tool server for its current tools.
func (m *Manager) ListTools(ctx context.Context) ([]models.ToolDescriptor, error) {
	proc, _, err := m.live()
	if err != nil {
		return nil, err
	}
	var ret []models.ToolDescriptor
	for tool, err := range proc.session.Tools(ctx, nil) {
		if err != nil {
			if lost := m.lostErr(ctx, proc, err); lost != nil {
				return nil, lost
			}
			return nil, fmt.Errorf("failed to list tools: %w", err)
		}
		desc, err := toDescriptor(tool)
		if err != nil {
			return nil, err
		}
		ret = append(ret, desc)
	}

	known := make(map[string]struct{}, len(ret))
	for _, d := range ret {
		known[d.Name] = struct{}{}
	}
	m.mu.Lock()
	if m.proc == proc {
		m.known = known
	}
	m.mu.Unlock()
	return ret, nil
}

// InvokeTool calls name with args. Tool level failures come back as
// *InvocationError. A payload which isn't JSON is returned as a JSON string.
func (m *Manager) InvokeTool(ctx context.Context, name string, args models.Input) (json.RawMessage, error) {
	proc, known, err := m.live()
	if err != nil {
		return nil, err
	}
	if known != nil {
		if _, ok := known[name]; !ok {
			return nil, &InvocationError{Tool: name, Message: fmt.Sprintf("Unknown tool: %v", name)}
		}
	}
	if args == nil {
		args = models.Input{}
	}
	if m.debug {
		ancli.Okf("calling tool '%v' with: %v\n", name, args)
	}
	res, err := proc.session.CallTool(ctx, &mcpsdk.CallToolParams{Name: name, Arguments: map[string]any(args)})
	if err != nil {
		if lost := m.lostErr(ctx, proc, err); lost != nil {
			return nil, lost
		}
		return nil, &InvocationError{Tool: name, Message: err.Error(), Err: err}
	}

	text := resultText(res)
	if res.IsError || strings.HasPrefix(text, errorPrefix) {
		return nil, &InvocationError{Tool: name, Message: strings.TrimPrefix(text, errorPrefix)}
	}
	if text == "" {
		return nil, &InvocationError{Tool: name, Message: "empty response from tool server"}
	}
	return normalizePayload(text), nil
}

// Ping checks that the tool server still answers.
func (m *Manager) Ping(ctx context.Context) error {
	proc, _, err := m.live()
	if err != nil {
		return err
	}
	if err := proc.session.Ping(ctx, nil); err != nil {
		if lost := m.lostErr(ctx, proc, err); lost != nil {
			return lost
		}
		return fmt.Errorf("failed to ping tool server: %w", err)
	}
	return nil
}

func resultText(res *mcpsdk.CallToolResult) string {
	parts := make([]string, 0, len(res.Content))
	for _, c := range res.Content {
		if t, ok := c.(*mcpsdk.TextContent); ok {
			parts = append(parts, t.Text)
		}
	}
	return strings.Join(parts, "\n")
}

func normalizePayload(text string) json.RawMessage {
	if json.Valid([]byte(text)) {
		return json.RawMessage(text)
	}
	b, _ := json.Marshal(text)
	return b
}

func toDescriptor(t *mcpsdk.Tool) (models.ToolDescriptor, error) {
	desc := models.ToolDescriptor{Name: t.Name, Description: t.Description}
	switch s := t.InputSchema.(type) {
	case nil:
		desc.InputSchema = map[string]any{"type": "object", "properties": map[string]any{}}
	case map[string]any:
		desc.InputSchema = s
	default:
		b, err := json.Marshal(s)
		if err != nil {
			return desc, fmt.Errorf("failed to marshal input schema of '%v': %w", t.Name, err)
		}
		if err := json.Unmarshal(b, &desc.InputSchema); err != nil {
			return desc, fmt.Errorf("failed to unmarshal input schema of '%v': %w", t.Name, err)
		}
	}
	return desc, nil
}
