package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/baalimago/go_away_boilerplate/pkg/testboil"
	"github.com/scorzo/cloudcost/internal/mcp"
	"github.com/scorzo/cloudcost/internal/models"
)

type mockCompleter struct {
	mu       sync.Mutex
	requests []models.CompletionRequest
	respond  func(call int, req models.CompletionRequest) (models.Completion, error)
}

func (m *mockCompleter) Complete(ctx context.Context, req models.CompletionRequest) (models.Completion, error) {
	m.mu.Lock()
	call := len(m.requests)
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	return m.respond(call, req)
}

func (m *mockCompleter) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

type mockTools struct {
	connected bool
	gen       uint64
	listCalls int
	invoked   []string
	invoke    func(name string, args models.Input) (json.RawMessage, error)
}

func (m *mockTools) Connected() bool    { return m.connected }
func (m *mockTools) Generation() uint64 { return m.gen }

func (m *mockTools) ListTools(ctx context.Context) ([]models.ToolDescriptor, error) {
	m.listCalls++
	return []models.ToolDescriptor{
		{Name: "calculate_instance_savings", InputSchema: map[string]any{"type": "object"}},
		{Name: "list_supported_instances", InputSchema: map[string]any{"type": "object"}},
	}, nil
}

func (m *mockTools) InvokeTool(ctx context.Context, name string, args models.Input) (json.RawMessage, error) {
	m.invoked = append(m.invoked, name)
	if m.invoke != nil {
		return m.invoke(name, args)
	}
	return json.RawMessage(`{"ok":true}`), nil
}

func textCompletion(text string) models.Completion {
	return models.Completion{
		StopReason: "end_turn",
		Content:    []models.ContentBlock{{Type: models.BlockText, Text: text}},
	}
}

func toolCompletion(calls ...models.ContentBlock) models.Completion {
	content := []models.ContentBlock{{Type: models.BlockText, Text: "Let me check."}}
	content = append(content, calls...)
	return models.Completion{StopReason: models.StopToolUse, Content: content}
}

func toolUse(id, name string, args models.Input) models.ContentBlock {
	return models.ContentBlock{Type: models.BlockToolUse, ID: id, Name: name, Input: &args}
}

func TestSendMessagePlainAnswer(t *testing.T) {
	c := &mockCompleter{respond: func(int, models.CompletionRequest) (models.Completion, error) {
		return textCompletion("Hello there"), nil
	}}
	tools := &mockTools{connected: true}
	e := NewEngine(c, tools, WithSystemPrompt("be brief"))

	got, err := e.SendMessage(context.Background(), "hi")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	testboil.FailTestIfDiff(t, got, "Hello there")
	testboil.FailTestIfDiff(t, c.requests[0].System, "be brief")
	testboil.FailTestIfDiff(t, len(c.requests[0].Tools), 2)

	hist := e.History()
	testboil.FailTestIfDiff(t, len(hist), 2)
	testboil.FailTestIfDiff(t, hist[0].Role, models.RoleUser)
	testboil.FailTestIfDiff(t, hist[0].Content, "hi")
	testboil.FailTestIfDiff(t, hist[1].Role, models.RoleAssistant)
	testboil.FailTestIfDiff(t, hist[1].Content, "Hello there")
}

func TestSendMessageRunsToolsInOrder(t *testing.T) {
	c := &mockCompleter{respond: func(call int, req models.CompletionRequest) (models.Completion, error) {
		if call == 0 {
			return toolCompletion(
				toolUse("toolu_1", "list_supported_instances", models.Input{}),
				toolUse("toolu_2", "calculate_instance_savings", models.Input{"instances": []any{}}),
			), nil
		}
		return textCompletion("You save 20%"), nil
	}}
	tools := &mockTools{connected: true}
	e := NewEngine(c, tools)
	var events []Event
	e.Subscribe(func(ev Event) { events = append(events, ev) })

	got, err := e.SendMessage(context.Background(), "compare")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	testboil.FailTestIfDiff(t, got, "You save 20%")
	testboil.FailTestIfDiff(t, fmt.Sprint(tools.invoked), "[list_supported_instances calculate_instance_savings]")

	testboil.FailTestIfDiff(t, len(events), 4)
	testboil.FailTestIfDiff(t, events[0].Kind, EventToolCall)
	testboil.FailTestIfDiff(t, events[0].ID, "toolu_1")
	testboil.FailTestIfDiff(t, events[1].Kind, EventToolResult)
	testboil.FailTestIfDiff(t, events[2].Tool, "calculate_instance_savings")
	testboil.FailTestIfDiff(t, events[3].IsError, false)

	// Every tool_use is answered before the next model call.
	second := c.requests[1].Messages
	testboil.FailTestIfDiff(t, len(second), 3)
	testboil.FailTestIfDiff(t, second[1].Role, models.RoleAssistant)
	testboil.FailTestIfDiff(t, len(second[1].ToolUses()), 2)
	results := second[2].Blocks
	testboil.FailTestIfDiff(t, second[2].Role, models.RoleUser)
	testboil.FailTestIfDiff(t, len(results), 2)
	testboil.FailTestIfDiff(t, results[0].ToolUseID, "toolu_1")
	testboil.FailTestIfDiff(t, results[1].ToolUseID, "toolu_2")
	testboil.FailTestIfDiff(t, results[1].Content, `{"ok":true}`)

	testboil.FailTestIfDiff(t, len(e.History()), 4)
}

func TestSendMessageFeedsToolErrorsBack(t *testing.T) {
	c := &mockCompleter{respond: func(call int, req models.CompletionRequest) (models.Completion, error) {
		if call == 0 {
			return toolCompletion(toolUse("toolu_1", "calculate_instance_savings", models.Input{})), nil
		}
		return textCompletion("Quantity must be at least 1"), nil
	}}
	tools := &mockTools{
		connected: true,
		invoke: func(name string, args models.Input) (json.RawMessage, error) {
			return nil, &mcp.InvocationError{Tool: name, Message: "Quantity must be positive, got 0"}
		},
	}
	e := NewEngine(c, tools)
	var resultEv Event
	e.Subscribe(func(ev Event) {
		if ev.Kind == EventToolResult {
			resultEv = ev
		}
	})

	_, err := e.SendMessage(context.Background(), "3 t3.micro, 0 of them")
	if err != nil {
		t.Fatalf("tool failure should not end the turn: %v", err)
	}
	testboil.FailTestIfDiff(t, resultEv.IsError, true)
	block := c.requests[1].Messages[2].Blocks[0]
	testboil.FailTestIfDiff(t, block.IsError, true)
	testboil.FailTestIfDiff(t, block.Content, `{"error":"Quantity must be positive, got 0"}`)
}

func TestSendMessageTurnErrorKeepsUserMessage(t *testing.T) {
	apiErr := errors.New("overloaded")
	c := &mockCompleter{respond: func(int, models.CompletionRequest) (models.Completion, error) {
		return models.Completion{}, apiErr
	}}
	e := NewEngine(c, &mockTools{connected: true})

	_, err := e.SendMessage(context.Background(), "hi")
	var turnErr *TurnError
	if !errors.As(err, &turnErr) {
		t.Fatalf("expected TurnError, got: %v", err)
	}
	testboil.FailTestIfDiff(t, errors.Is(err, apiErr), true)
	hist := e.History()
	testboil.FailTestIfDiff(t, len(hist), 1)
	testboil.FailTestIfDiff(t, hist[0].Content, "hi")
}

func TestSendMessageNotConnected(t *testing.T) {
	c := &mockCompleter{}
	e := NewEngine(c, &mockTools{connected: false})
	_, err := e.SendMessage(context.Background(), "hi")
	testboil.FailTestIfDiff(t, errors.Is(err, mcp.ErrNotConnected), true)
	testboil.FailTestIfDiff(t, len(e.History()), 0)
	testboil.FailTestIfDiff(t, c.calls(), 0)
}

func TestSendMessageConnectionLostEndsTurn(t *testing.T) {
	c := &mockCompleter{respond: func(int, models.CompletionRequest) (models.Completion, error) {
		return toolCompletion(toolUse("toolu_1", "list_supported_instances", models.Input{})), nil
	}}
	tools := &mockTools{
		connected: true,
		invoke: func(string, models.Input) (json.RawMessage, error) {
			return nil, fmt.Errorf("call failed: %w", mcp.ErrConnectionLost)
		},
	}
	e := NewEngine(c, tools)
	_, err := e.SendMessage(context.Background(), "hi")
	testboil.FailTestIfDiff(t, errors.Is(err, mcp.ErrConnectionLost), true)
	testboil.FailTestIfDiff(t, c.calls(), 1)
	testboil.FailTestIfDiff(t, len(e.History()), 1)
}

func TestSendMessageRejectsConcurrentTurn(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	c := &mockCompleter{respond: func(int, models.CompletionRequest) (models.Completion, error) {
		close(entered)
		<-release
		return textCompletion("done"), nil
	}}
	e := NewEngine(c, &mockTools{connected: true})

	errCh := make(chan error, 1)
	go func() {
		_, err := e.SendMessage(context.Background(), "first")
		errCh <- err
	}()
	<-entered
	testboil.FailTestIfDiff(t, e.Busy(), true)

	_, err := e.SendMessage(context.Background(), "second")
	testboil.FailTestIfDiff(t, errors.Is(err, ErrTurnInProgress), true)
	testboil.FailTestIfDiff(t, len(e.History()), 1)

	close(release)
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("first turn failed: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("first turn did not finish")
	}
	testboil.FailTestIfDiff(t, len(e.History()), 2)
	testboil.FailTestIfDiff(t, e.Busy(), false)
}

func TestSendMessageMaxIterations(t *testing.T) {
	c := &mockCompleter{respond: func(call int, req models.CompletionRequest) (models.Completion, error) {
		return toolCompletion(toolUse(fmt.Sprintf("toolu_%v", call), "list_supported_instances", models.Input{})), nil
	}}
	e := NewEngine(c, &mockTools{connected: true}, WithMaxIterations(3))
	_, err := e.SendMessage(context.Background(), "loop forever")
	var turnErr *TurnError
	if !errors.As(err, &turnErr) {
		t.Fatalf("expected TurnError, got: %v", err)
	}
	testboil.FailTestIfDiff(t, errors.Is(err, ErrMaxIterations), true)
	testboil.FailTestIfDiff(t, c.calls(), 3)
}

func TestResetDuringTurnDiscardsAppends(t *testing.T) {
	var e *Engine
	c := &mockCompleter{respond: func(int, models.CompletionRequest) (models.Completion, error) {
		e.Reset()
		return textCompletion("late answer"), nil
	}}
	e = NewEngine(c, &mockTools{connected: true})
	_, err := e.SendMessage(context.Background(), "hi")
	testboil.FailTestIfDiff(t, errors.Is(err, ErrTurnReset), true)
	testboil.FailTestIfDiff(t, len(e.History()), 0)

	// The engine is usable again after the reset.
	c.respond = func(int, models.CompletionRequest) (models.Completion, error) {
		return textCompletion("fresh"), nil
	}
	got, err := e.SendMessage(context.Background(), "again")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	testboil.FailTestIfDiff(t, got, "fresh")
	testboil.FailTestIfDiff(t, len(e.History()), 2)
}

func TestToolCacheRefreshOnRestart(t *testing.T) {
	c := &mockCompleter{respond: func(int, models.CompletionRequest) (models.Completion, error) {
		return textCompletion("ok"), nil
	}}
	tools := &mockTools{connected: true, gen: 1}
	e := NewEngine(c, tools)

	for range 2 {
		if _, err := e.SendMessage(context.Background(), "hi"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	testboil.FailTestIfDiff(t, tools.listCalls, 1)

	tools.gen = 2
	if _, err := e.SendMessage(context.Background(), "hi"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	testboil.FailTestIfDiff(t, tools.listCalls, 2)
}

func TestSendMessageHonoursContext(t *testing.T) {
	c := &mockCompleter{respond: func(int, models.CompletionRequest) (models.Completion, error) {
		return toolCompletion(toolUse("toolu_1", "list_supported_instances", models.Input{})), nil
	}}
	tools := &mockTools{connected: true}
	e := NewEngine(c, tools)
	ctx, cancel := context.WithCancel(context.Background())
	tools.invoke = func(string, models.Input) (json.RawMessage, error) {
		cancel()
		return nil, context.Canceled
	}
	_, err := e.SendMessage(ctx, "hi")
	testboil.FailTestIfDiff(t, errors.Is(err, context.Canceled), true)
	testboil.FailTestIfDiff(t, c.calls(), 1)
}
