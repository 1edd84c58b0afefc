// Package toolserver dispatches named tool invocations to their handlers and
// serves them over MCP stdio.
package toolserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"sync"

	"github.com/baalimago/go_away_boilerplate/pkg/misc"
	"github.com/scorzo/cloudcost/internal/models"
)

const errorPrefix = "Error: "

// Handler executes a tool. The returned value is serialized as indented JSON.
type Handler func(ctx context.Context, args models.Input) (any, error)

type Tool struct {
	Descriptor models.ToolDescriptor
	Handler    Handler
}

// Result is the textual outcome of one invocation. Error results carry the
// "Error: " prefix.
type Result struct {
	Text    string
	IsError bool
}

// Dispatcher is a threadsafe storage of tools, listed in registration order.
type Dispatcher struct {
	mu    sync.RWMutex
	tools map[string]Tool
	order []string
	debug bool
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		tools: make(map[string]Tool),
		debug: misc.Truthy(os.Getenv("DEBUG")),
	}
}

// Register adds t. Registering a name twice replaces the handler but keeps
// its position.
func (d *Dispatcher) Register(t Tool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.debug {
		slog.Debug("registering tool", "name", t.Descriptor.Name)
	}
	if _, exists := d.tools[t.Descriptor.Name]; !exists {
		d.order = append(d.order, t.Descriptor.Name)
	}
	d.tools[t.Descriptor.Name] = t
}

func (d *Dispatcher) ListTools() []models.ToolDescriptor {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ret := make([]models.ToolDescriptor, 0, len(d.order))
	for _, name := range d.order {
		ret = append(ret, d.tools[name].Descriptor)
	}
	return ret
}

func (d *Dispatcher) Get(name string) (Tool, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	t, ok := d.tools[name]
	return t, ok
}

// Invoke never panics. Unknown tools, handler errors and handler panics all
// become error results.
func (d *Dispatcher) Invoke(ctx context.Context, name string, args models.Input) (res Result) {
	t, ok := d.Get(name)
	if !ok {
		return errorResult(fmt.Errorf("Unknown tool: %v", name))
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Error("tool handler panicked", "tool", name, "panic", r, "stack", string(debug.Stack()))
			res = errorResult(fmt.Errorf("%v", r))
		}
	}()
	if args == nil {
		args = models.Input{}
	}
	v, err := t.Handler(ctx, args)
	if err != nil {
		return errorResult(err)
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult(fmt.Errorf("failed to serialize result: %w", err))
	}
	return Result{Text: string(b)}
}

func errorResult(err error) Result {
	return Result{Text: errorPrefix + err.Error(), IsError: true}
}

// DecodeArgs re-marshals the untyped argument object into T.
func DecodeArgs[T any](args models.Input) (T, error) {
	var ret T
	b, err := json.Marshal(args)
	if err != nil {
		return ret, fmt.Errorf("invalid arguments: %w", err)
	}
	if err := json.Unmarshal(b, &ret); err != nil {
		return ret, fmt.Errorf("invalid arguments: %w", err)
	}
	return ret, nil
}
