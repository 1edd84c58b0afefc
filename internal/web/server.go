// Package web serves the browser client: an HTTP admin API which installs
// and connects a tool server from GitHub, and a WebSocket chat where every
// connection gets its own conversation.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/baalimago/go_away_boilerplate/pkg/ancli"
	"github.com/baalimago/go_away_boilerplate/pkg/misc"
	"github.com/robfig/cron"
	"github.com/scorzo/cloudcost/internal/chat"
	"github.com/scorzo/cloudcost/internal/installer"
	"github.com/scorzo/cloudcost/internal/mcp"
)

const (
	StatusDisconnected = "disconnected"
	StatusInstalling   = "installing"
	StatusConnecting   = "connecting"
	StatusConnected    = "connected"
	StatusError        = "error"
	StatusWarning      = "warning"
)

// Installer is the part of installer.Installer the server drives.
type Installer interface {
	Install(ctx context.Context, src installer.PackageSource) (installer.Installation, error)
	Remove(src installer.PackageSource) error
	Sweep(keep ...string) ([]string, error)
}

// ToolServer is the part of mcp.Manager the server drives.
type ToolServer interface {
	chat.ToolExecutor
	Start(ctx context.Context) error
	Stop() error
	Configure(cfg mcp.ServerConfig) error
	Ping(ctx context.Context) error
	Subscribe(fn func(mcp.Event)) func()
}

type Option func(*Server)

// WithOrigin sets the origin allowed by CORS and the WebSocket upgrade.
func WithOrigin(origin string) Option {
	return func(s *Server) {
		if origin != "" {
			s.origin = origin
		}
	}
}

func WithEngineOptions(opts ...chat.Option) Option {
	return func(s *Server) { s.engineOpts = append(s.engineOpts, opts...) }
}

func WithPingTimeout(d time.Duration) Option {
	return func(s *Server) { s.pingTimeout = d }
}

// Status is the connection state reported by the admin API.
type Status struct {
	Status     string                   `json:"status"`
	Message    string                   `json:"message,omitempty"`
	Connected  bool                     `json:"connected"`
	Source     *installer.PackageSource `json:"source,omitempty"`
	ToolsCount int                      `json:"tools_count"`
}

type Server struct {
	ctx        context.Context
	completer  chat.Completer
	tools      ToolServer
	installer  Installer
	engineOpts []chat.Option

	origin      string
	pingTimeout time.Duration
	debug       bool

	mu         sync.Mutex
	status     string
	message    string
	source     *installer.PackageSource
	toolsCount int

	hub   *hub
	jobs  *cron.Cron
	unsub func()
}

// New creates a server. ctx bounds installs and tool server starts, which
// outlive the request that triggered them.
func New(ctx context.Context, completer chat.Completer, tools ToolServer, inst Installer, opts ...Option) *Server {
	s := &Server{
		ctx:         ctx,
		completer:   completer,
		tools:       tools,
		installer:   inst,
		origin:      "*",
		pingTimeout: 5 * time.Second,
		debug:       misc.Truthy(os.Getenv("DEBUG")) || misc.Truthy(os.Getenv("WEB_DEBUG")),
		status:      StatusDisconnected,
		hub:         newHub(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.unsub = tools.Subscribe(s.onToolServerEvent)
	return s
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /api/mcp/connect", s.handleConnect)
	mux.HandleFunc("POST /api/mcp/disconnect", s.handleDisconnect)
	mux.HandleFunc("GET /api/mcp/status", s.handleStatus)
	mux.HandleFunc("GET /api/mcp/tools", s.handleTools)
	mux.HandleFunc("GET /ws/chat", s.handleChat)
	return s.cors(s.logRequests(mux))
}

// StartJobs schedules the tool server health probe and the sweep of stale
// install dirs.
func (s *Server) StartJobs() error {
	c := cron.New()
	if err := c.AddFunc("@every 30s", s.probe); err != nil {
		return fmt.Errorf("failed to schedule health probe: %w", err)
	}
	if err := c.AddFunc("@hourly", s.sweep); err != nil {
		return fmt.Errorf("failed to schedule install sweep: %w", err)
	}
	c.Start()
	s.jobs = c
	return nil
}

// Close stops the jobs, hangs up every chat connection and stops the tool
// server.
func (s *Server) Close() error {
	if s.jobs != nil {
		s.jobs.Stop()
	}
	s.unsub()
	s.hub.closeAll()
	return s.tools.Stop()
}

// Snapshot returns the current status.
func (s *Server) Snapshot() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Server) snapshotLocked() Status {
	st := Status{
		Status:     s.status,
		Message:    s.message,
		Connected:  s.tools.Connected(),
		ToolsCount: s.toolsCount,
	}
	if s.source != nil {
		src := *s.source
		st.Source = &src
	}
	return st
}

// setStatus records a transition and tells every chat connection about it.
func (s *Server) setStatus(status, message string) {
	s.mu.Lock()
	s.status = status
	s.message = message
	s.mu.Unlock()
	s.hub.broadcast(statusFrame(status, message))
}

func (s *Server) onToolServerEvent(ev mcp.Event) {
	if ev.Kind != mcp.EventUnexpectedExit {
		return
	}
	msg := "tool server exited unexpectedly"
	if ev.Err != nil {
		msg = ev.Err.Error()
	}
	s.mu.Lock()
	s.toolsCount = 0
	s.mu.Unlock()
	s.hub.resetAll()
	s.setStatus(StatusError, msg)
}

func (s *Server) probe() {
	if !s.tools.Connected() {
		return
	}
	ctx, cancel := context.WithTimeout(s.ctx, s.pingTimeout)
	defer cancel()
	if err := s.tools.Ping(ctx); err != nil {
		ancli.Warnf("tool server health probe failed: %v\n", err)
		s.hub.broadcast(statusFrame(StatusWarning, fmt.Sprintf("tool server did not answer: %v", err)))
		return
	}
	if s.debug {
		ancli.Okf("tool server answered health probe\n")
	}
}

func (s *Server) sweep() {
	var keep []string
	s.mu.Lock()
	if s.source != nil {
		keep = append(keep, s.source.ID())
	}
	s.mu.Unlock()
	removed, err := s.installer.Sweep(keep...)
	if err != nil {
		ancli.Warnf("failed to sweep install dir: %v\n", err)
	}
	for _, dir := range removed {
		ancli.Noticef("removed stale install: %v\n", dir)
	}
}

func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", s.origin)
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.debug {
			ancli.Noticef("%v %v\n", r.Method, r.URL.Path)
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		ancli.Errf("failed to write response: %v\n", err)
	}
}
