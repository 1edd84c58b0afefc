// Package chat drives one conversation with the language model, running the
// tools it asks for until it produces a final text answer.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/baalimago/go_away_boilerplate/pkg/ancli"
	"github.com/baalimago/go_away_boilerplate/pkg/debug"
	"github.com/baalimago/go_away_boilerplate/pkg/misc"
	"github.com/scorzo/cloudcost/internal/event"
	"github.com/scorzo/cloudcost/internal/mcp"
	"github.com/scorzo/cloudcost/internal/models"
)

const DefaultMaxIterations = 10

var (
	ErrTurnInProgress = errors.New("a request is already being processed")
	ErrMaxIterations  = errors.New("too many consecutive tool calls")
	// ErrTurnReset is returned by a turn whose history was reset under it.
	ErrTurnReset = errors.New("conversation was reset during the request")
)

// TurnError means the language model call itself failed. The user message of
// the failed turn stays in the history.
type TurnError struct {
	Err error
}

func (e *TurnError) Error() string {
	return fmt.Sprintf("failed to get response from model: %v", e.Err)
}

func (e *TurnError) Unwrap() error { return e.Err }

type Completer interface {
	Complete(ctx context.Context, req models.CompletionRequest) (models.Completion, error)
}

// ToolExecutor is what the engine needs from the lifecycle manager.
type ToolExecutor interface {
	Connected() bool
	Generation() uint64
	ListTools(ctx context.Context) ([]models.ToolDescriptor, error)
	InvokeTool(ctx context.Context, name string, args models.Input) (json.RawMessage, error)
}

type EventKind string

const (
	EventToolCall   EventKind = "tool_call"
	EventToolResult EventKind = "tool_result"
)

type Event struct {
	Kind      EventKind
	Tool      string
	ID        string
	Arguments models.Input
	IsError   bool
}

type Option func(*Engine)

func WithSystemPrompt(prompt string) Option {
	return func(e *Engine) { e.system = prompt }
}

func WithMaxIterations(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxIterations = n
		}
	}
}

type Engine struct {
	completer     Completer
	tools         ToolExecutor
	system        string
	maxIterations int
	debug         bool

	busy atomic.Bool

	mu      sync.Mutex
	history []models.Message
	epoch   uint64

	// Only touched while busy is held.
	decls       []models.ToolDescriptor
	declsGen    uint64
	declsLoaded bool

	observers event.Observers[Event]
}

func NewEngine(c Completer, tools ToolExecutor, opts ...Option) *Engine {
	e := &Engine{
		completer:     c,
		tools:         tools,
		system:        DefaultSystemPrompt,
		maxIterations: DefaultMaxIterations,
		debug:         misc.Truthy(os.Getenv("DEBUG")),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Subscribe to tool events. Delivery is synchronous on the turn's goroutine.
func (e *Engine) Subscribe(fn func(Event)) func() {
	return e.observers.Subscribe(fn)
}

// History returns a copy of the conversation so far.
func (e *Engine) History() []models.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	ret := make([]models.Message, len(e.history))
	copy(ret, e.history)
	return ret
}

// Reset clears the history. A turn in flight while Reset is called will not
// append anything more.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.history = nil
	e.epoch++
}

// Busy reports if a turn is in flight.
func (e *Engine) Busy() bool {
	return e.busy.Load()
}

// SendMessage runs one turn and returns the final text of the model.
func (e *Engine) SendMessage(ctx context.Context, text string) (string, error) {
	if !e.busy.CompareAndSwap(false, true) {
		return "", ErrTurnInProgress
	}
	defer e.busy.Store(false)

	if !e.tools.Connected() {
		return "", mcp.ErrNotConnected
	}

	e.mu.Lock()
	epoch := e.epoch
	e.history = append(e.history, models.Message{Role: models.RoleUser, Content: text})
	e.mu.Unlock()

	decls, err := e.toolDeclarations(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to list tools: %w", err)
	}

	for i := 0; i < e.maxIterations; i++ {
		msgs, ok := e.snapshot(epoch)
		if !ok {
			return "", ErrTurnReset
		}
		comp, err := e.completer.Complete(ctx, models.CompletionRequest{
			System:   e.system,
			Messages: msgs,
			Tools:    decls,
		})
		if err != nil {
			return "", &TurnError{Err: err}
		}
		if e.debug {
			ancli.PrintOK(fmt.Sprintf("completion: %v\n", debug.IndentedJsonFmt(comp)))
		}

		if !comp.WantsTools() {
			answer := models.JoinText(comp.Content)
			if !e.commit(epoch, models.Message{Role: models.RoleAssistant, Content: answer}) {
				return "", ErrTurnReset
			}
			return answer, nil
		}

		results, err := e.runTools(ctx, comp.Content)
		if err != nil {
			return "", err
		}
		ok = e.commit(epoch,
			models.Message{Role: models.RoleAssistant, Blocks: comp.Content},
			models.Message{Role: models.RoleUser, Blocks: results},
		)
		if !ok {
			return "", ErrTurnReset
		}
	}
	return "", &TurnError{Err: ErrMaxIterations}
}

// runTools invokes every tool_use block in order, one at a time. Tool failures
// become error results, a lost tool server or cancelled context ends the turn.
func (e *Engine) runTools(ctx context.Context, content []models.ContentBlock) ([]models.ContentBlock, error) {
	var results []models.ContentBlock
	for _, b := range content {
		if b.Type != models.BlockToolUse {
			continue
		}
		call := models.NewToolInvocation(b)
		e.observers.Publish(Event{
			Kind:      EventToolCall,
			Tool:      call.Name,
			ID:        call.ID,
			Arguments: call.Arguments,
		})
		res, err := e.invoke(ctx, call)
		if err != nil {
			return nil, err
		}
		e.observers.Publish(Event{
			Kind:    EventToolResult,
			Tool:    call.Name,
			ID:      call.ID,
			IsError: res.IsError,
		})
		results = append(results, res.Block())
	}
	return results, nil
}

func (e *Engine) invoke(ctx context.Context, call models.ToolInvocation) (models.ToolResult, error) {
	payload, err := e.tools.InvokeTool(ctx, call.Name, call.Arguments)
	if err == nil {
		return models.NewToolResult(call.ID, payload), nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return models.ToolResult{}, ctxErr
	}
	if errors.Is(err, mcp.ErrNotConnected) || errors.Is(err, mcp.ErrConnectionLost) {
		return models.ToolResult{}, fmt.Errorf("failed to invoke tool '%v': %w", call.Name, err)
	}
	if e.debug {
		ancli.Warnf("tool '%v' failed: %v\n", call.Name, err)
	}
	var invErr *mcp.InvocationError
	if errors.As(err, &invErr) {
		return models.ToolResult{ToolUseID: call.ID, Error: invErr.Message, IsError: true}, nil
	}
	return models.NewToolError(call.ID, err), nil
}

// toolDeclarations re-lists tools whenever the executor has restarted since
// the last listing.
func (e *Engine) toolDeclarations(ctx context.Context) ([]models.ToolDescriptor, error) {
	gen := e.tools.Generation()
	if e.declsLoaded && gen == e.declsGen {
		return e.decls, nil
	}
	decls, err := e.tools.ListTools(ctx)
	if err != nil {
		return nil, err
	}
	e.decls = decls
	e.declsGen = gen
	e.declsLoaded = true
	return decls, nil
}

func (e *Engine) snapshot(epoch uint64) ([]models.Message, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.epoch != epoch {
		return nil, false
	}
	ret := make([]models.Message, len(e.history))
	copy(ret, e.history)
	return ret, true
}

func (e *Engine) commit(epoch uint64, msgs ...models.Message) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.epoch != epoch {
		return false
	}
	e.history = append(e.history, msgs...)
	return true
}
