package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/baalimago/go_away_boilerplate/pkg/ancli"
	"github.com/scorzo/cloudcost/internal"
	"github.com/scorzo/cloudcost/internal/installer"
	"github.com/scorzo/cloudcost/internal/models"
)

type connectResponse struct {
	Status
	Tools []models.ToolDescriptor `json:"tools,omitempty"`
}

type errorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "Cloud Cost Web Client API",
		"version": internal.Version(),
		"endpoints": map[string]string{
			"health":         "/health",
			"mcp_connect":    "POST /api/mcp/connect",
			"mcp_disconnect": "POST /api/mcp/disconnect",
			"mcp_status":     "GET /api/mcp/status",
			"mcp_tools":      "GET /api/mcp/tools",
			"websocket":      "/ws/chat",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"timestamp":     time.Now().UTC().Format(time.RFC3339),
		"mcp_connected": s.tools.Connected(),
	})
}

// begin claims the connect slot for src. It returns the current status and
// false when the request has to be answered without installing.
func (s *Server) begin(src installer.PackageSource) (Status, int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	same := s.source != nil && s.source.Same(src)
	switch {
	case s.status == StatusInstalling || s.status == StatusConnecting:
		if same {
			return s.snapshotLocked(), http.StatusOK, false
		}
		return s.snapshotLocked(), http.StatusConflict, false
	case s.tools.Connected():
		if same {
			return s.snapshotLocked(), http.StatusOK, false
		}
		return s.snapshotLocked(), http.StatusConflict, false
	}
	s.status = StatusInstalling
	s.message = fmt.Sprintf("Installing %v", src)
	s.source = &src
	s.toolsCount = 0
	return s.snapshotLocked(), http.StatusOK, true
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	var src installer.PackageSource
	if err := json.NewDecoder(r.Body).Decode(&src); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{StatusError, fmt.Sprintf("invalid request body: %v", err)})
		return
	}
	if err := src.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{StatusError, err.Error()})
		return
	}
	src = src.WithDefaults()

	st, code, proceed := s.begin(src)
	if !proceed {
		if code == http.StatusConflict {
			st.Message = fmt.Sprintf("another tool server is %v, disconnect first", st.Status)
		}
		writeJSON(w, code, connectResponse{Status: st})
		return
	}
	s.hub.broadcast(statusFrame(st.Status, st.Message))

	tools, err := s.connect(src)
	if err != nil {
		ancli.Errf("failed to connect %v: %v\n", src, err)
		s.setStatus(StatusError, err.Error())
		writeJSON(w, http.StatusInternalServerError, connectResponse{Status: s.Snapshot()})
		return
	}
	writeJSON(w, http.StatusOK, connectResponse{Status: s.Snapshot(), Tools: tools})
}

// connect installs src and starts it. Failures are returned as is, there's
// no fallback server.
func (s *Server) connect(src installer.PackageSource) ([]models.ToolDescriptor, error) {
	inst, err := s.installer.Install(s.ctx, src)
	if err != nil {
		return nil, err
	}
	s.setStatus(StatusConnecting, fmt.Sprintf("Starting %v", src))
	if err := s.tools.Configure(inst.ServerConfig()); err != nil {
		return nil, err
	}
	if err := s.tools.Start(s.ctx); err != nil {
		return nil, err
	}
	tools, err := s.tools.ListTools(s.ctx)
	if err != nil {
		if stopErr := s.tools.Stop(); stopErr != nil {
			ancli.Warnf("failed to stop %v: %v\n", src, stopErr)
		}
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}
	s.mu.Lock()
	s.toolsCount = len(tools)
	s.mu.Unlock()
	s.hub.resetAll()
	s.setStatus(StatusConnected, fmt.Sprintf("Connected to %v/%v", src.Owner, src.Repo))
	ancli.Okf("connected to %v, %v tools available\n", src, len(tools))
	return tools, nil
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	if s.status == StatusInstalling || s.status == StatusConnecting {
		st := s.snapshotLocked()
		s.mu.Unlock()
		st.Message = fmt.Sprintf("cannot disconnect while %v", st.Status)
		writeJSON(w, http.StatusConflict, st)
		return
	}
	src := s.source
	s.source = nil
	s.toolsCount = 0
	s.mu.Unlock()

	if err := s.tools.Stop(); err != nil {
		ancli.Warnf("failed to stop tool server: %v\n", err)
	}
	if src != nil {
		if err := s.installer.Remove(*src); err != nil {
			ancli.Warnf("failed to remove install of %v: %v\n", src, err)
		}
	}
	s.hub.resetAll()
	s.setStatus(StatusDisconnected, "Tool server disconnected")
	writeJSON(w, http.StatusOK, s.Snapshot())
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Snapshot())
}

func (s *Server) handleTools(w http.ResponseWriter, r *http.Request) {
	if !s.tools.Connected() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"error": "MCP server not connected",
			"tools": []models.ToolDescriptor{},
		})
		return
	}
	tools, err := s.tools.ListTools(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error": err.Error(),
			"tools": []models.ToolDescriptor{},
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tools": tools})
}
