package models

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/baalimago/go_away_boilerplate/pkg/testboil"
)

func TestMessageMarshalPlainText(t *testing.T) {
	b, err := json.Marshal(Message{Role: RoleUser, Content: "hello"})
	if err != nil {
		t.Fatalf("failed to marshal: %v", err)
	}
	testboil.FailTestIfDiff(t, string(b), `{"role":"user","content":"hello"}`)
}

func TestMessageMarshalBlocks(t *testing.T) {
	msg := Message{
		Role: RoleAssistant,
		Blocks: []ContentBlock{
			{Type: BlockText, Text: "let me check"},
			{Type: BlockToolUse, ID: "toolu_1", Name: "list_supported_instances", Input: &Input{}},
		},
	}
	b, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("failed to marshal: %v", err)
	}
	testboil.FailTestIfDiff(t, string(b),
		`{"role":"assistant","content":[{"type":"text","text":"let me check"},{"type":"tool_use","id":"toolu_1","name":"list_supported_instances","input":{}}]}`)

	var got Message
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	testboil.FailTestIfDiff(t, len(got.ToolUses()), 1)
	testboil.FailTestIfDiff(t, got.Text(), "let me check")
}

func TestMessageUnmarshalRejectsObjectContent(t *testing.T) {
	var m Message
	err := json.Unmarshal([]byte(`{"role":"user","content":{"a":1}}`), &m)
	if err == nil {
		t.Fatal("expected error for object content")
	}
}

func TestToolResultBlock(t *testing.T) {
	t.Run("payload passes through", func(t *testing.T) {
		b := NewToolResult("id-1", json.RawMessage(`{"ok":true}`)).Block()
		testboil.FailTestIfDiff(t, b.Type, BlockToolResult)
		testboil.FailTestIfDiff(t, b.ToolUseID, "id-1")
		testboil.FailTestIfDiff(t, b.Content, `{"ok":true}`)
		testboil.FailTestIfDiff(t, b.IsError, false)
	})

	t.Run("error is wrapped as json", func(t *testing.T) {
		b := NewToolError("id-2", errors.New("Quantity must be positive, got 0")).Block()
		testboil.FailTestIfDiff(t, b.IsError, true)
		testboil.FailTestIfDiff(t, b.Content, `{"error":"Quantity must be positive, got 0"}`)
	})
}

func TestCompletionWantsTools(t *testing.T) {
	c := Completion{StopReason: StopToolUse}
	testboil.FailTestIfDiff(t, c.WantsTools(), false)
	c.Content = []ContentBlock{{Type: BlockToolUse, ID: "x", Name: "y"}}
	testboil.FailTestIfDiff(t, c.WantsTools(), true)
	c.StopReason = "end_turn"
	testboil.FailTestIfDiff(t, c.WantsTools(), false)
}
