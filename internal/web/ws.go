package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/baalimago/go_away_boilerplate/pkg/ancli"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/scorzo/cloudcost/internal/chat"
	"github.com/scorzo/cloudcost/internal/models"
	"github.com/scorzo/cloudcost/internal/session"
)

const (
	FrameMessage  = "message"
	FrameToolCall = "tool_call"
	FrameError    = "error"
	FrameStatus   = "status"

	sendBuffer   = 64
	writeTimeout = 10 * time.Second

	notConnectedMessage = "MCP server not connected. Please connect to an MCP server first."
)

// Frame is one WebSocket message, in either direction.
type Frame struct {
	Type      string `json:"type"`
	Role      string `json:"role,omitempty"`
	Content   string `json:"content,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	ToolName  string `json:"tool_name,omitempty"`
	Status    string `json:"status,omitempty"`
	Message   string `json:"message,omitempty"`
}

func statusFrame(status, message string) Frame {
	return Frame{Type: FrameStatus, Status: status, Message: message}
}

func errorFrame(message string) Frame {
	return Frame{Type: FrameError, Message: message}
}

func messageFrame(role, content string) Frame {
	return Frame{
		Type:      FrameMessage,
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// client is one chat connection with its own conversation.
type client struct {
	id     string
	conn   *websocket.Conn
	engine *chat.Engine
	send   chan []byte
	done   chan struct{}
	once   sync.Once
	cancel context.CancelFunc
	// busy is held from the moment a message is accepted until its turn
	// returns
	busy atomic.Bool
}

// enqueue drops the frame if the client can't keep up.
func (c *client) enqueue(f Frame) {
	data, err := json.Marshal(f)
	if err != nil {
		ancli.Errf("failed to encode frame: %v\n", err)
		return
	}
	select {
	case c.send <- data:
	case <-c.done:
	default:
		ancli.Warnf("chat %v: dropped %v frame, send buffer full\n", c.id, f.Type)
	}
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		c.cancel()
	})
}

func (c *client) writePump() {
	defer c.conn.Close()
	for {
		select {
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				ancli.Warnf("chat %v: write failed: %v\n", c.id, err)
				c.close()
				return
			}
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server closing"))
			return
		}
	}
}

type hub struct {
	mu      sync.RWMutex
	clients map[string]*client
}

func newHub() *hub {
	return &hub{clients: make(map[string]*client)}
}

func (h *hub) add(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.id] = c
}

func (h *hub) remove(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, id)
}

func (h *hub) each(fn func(c *client)) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		fn(c)
	}
}

func (h *hub) broadcast(f Frame) {
	h.each(func(c *client) { c.enqueue(f) })
}

// resetAll forgets every conversation, e.g. when the tool set changed.
func (h *hub) resetAll() {
	h.each(func(c *client) { c.engine.Reset() })
}

func (h *hub) closeAll() {
	h.each(func(c *client) { c.close() })
}

func (h *hub) len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (s *Server) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return s.origin == "*" || origin == "" || origin == s.origin
		},
	}
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	up := s.upgrader()
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already answered the request
		ancli.Warnf("failed to upgrade chat connection: %v\n", err)
		return
	}
	ctx, cancel := context.WithCancel(s.ctx)
	c := &client{
		id:     uuid.NewString(),
		conn:   conn,
		engine: chat.NewEngine(s.completer, s.tools, s.engineOpts...),
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
		cancel: cancel,
	}
	unsub := c.engine.Subscribe(func(ev chat.Event) {
		if ev.Kind == chat.EventToolCall {
			c.enqueue(Frame{Type: FrameToolCall, ToolName: ev.Tool})
		}
	})
	s.hub.add(c)
	if s.debug {
		ancli.Noticef("chat %v: connected, %v open\n", c.id, s.hub.len())
	}
	defer func() {
		unsub()
		s.hub.remove(c.id)
		c.close()
		if s.debug {
			ancli.Noticef("chat %v: disconnected\n", c.id)
		}
	}()

	go c.writePump()
	st := s.Snapshot()
	c.enqueue(statusFrame(st.Status, st.Message))
	s.readLoop(ctx, c)
}

func (s *Server) readLoop(ctx context.Context, c *client) {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				ancli.Warnf("chat %v: read failed: %v\n", c.id, err)
			}
			return
		}
		var in Frame
		if err := json.Unmarshal(data, &in); err != nil {
			c.enqueue(errorFrame("invalid message: " + err.Error()))
			continue
		}
		if in.Type != FrameMessage {
			c.enqueue(errorFrame("unsupported message type: " + in.Type))
			continue
		}
		if !s.tools.Connected() {
			c.enqueue(errorFrame(notConnectedMessage))
			continue
		}
		if !c.busy.CompareAndSwap(false, true) {
			c.enqueue(errorFrame(session.WaitMessage))
			continue
		}
		c.enqueue(messageFrame(models.RoleUser, in.Content))
		go s.turn(ctx, c, in.Content)
	}
}

func (s *Server) turn(ctx context.Context, c *client, text string) {
	reply, err := c.engine.SendMessage(ctx, text)
	c.busy.Store(false)
	switch {
	case err == nil:
		c.enqueue(messageFrame(models.RoleAssistant, reply))
	case errors.Is(err, context.Canceled):
	default:
		ancli.Warnf("chat %v: turn failed: %v\n", c.id, err)
		c.enqueue(errorFrame(err.Error()))
	}
}
