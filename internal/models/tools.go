package models

import (
	"encoding/json"
	"fmt"
)

// ToolDescriptor describes a tool exposed by a tool server. InputSchema is
// passed through to the model untouched.
type ToolDescriptor struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

type ToolInvocation struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments Input  `json:"arguments"`
}

// NewToolInvocation from a tool_use content block.
func NewToolInvocation(b ContentBlock) ToolInvocation {
	args := Input{}
	if b.Input != nil {
		args = *b.Input
	}
	return ToolInvocation{ID: b.ID, Name: b.Name, Arguments: args}
}

// ToolResult is either a payload or an error, always tagged with the id of
// the invocation which produced it.
type ToolResult struct {
	ToolUseID string          `json:"tool_use_id"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Error     string          `json:"error,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

func NewToolResult(id string, payload json.RawMessage) ToolResult {
	return ToolResult{ToolUseID: id, Payload: payload}
}

func NewToolError(id string, err error) ToolResult {
	return ToolResult{ToolUseID: id, Error: err.Error(), IsError: true}
}

// Block converts the result into a tool_result content block.
func (r ToolResult) Block() ContentBlock {
	content := string(r.Payload)
	if r.IsError {
		b, err := json.Marshal(map[string]string{"error": r.Error})
		if err != nil {
			content = fmt.Sprintf("Error: %v", r.Error)
		} else {
			content = string(b)
		}
	}
	return ContentBlock{
		Type:      BlockToolResult,
		ToolUseID: r.ToolUseID,
		Content:   content,
		IsError:   r.IsError,
	}
}
