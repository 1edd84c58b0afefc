package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

const (
	BlockText       = "text"
	BlockToolUse    = "tool_use"
	BlockToolResult = "tool_result"
)

// Input is the argument object of a tool call. It's a pointer in ContentBlock
// so that an empty argument object still serializes as {}.
type Input map[string]any

type ContentBlock struct {
	Type      string `json:"type"`
	Text      string `json:"text,omitempty"`
	ID        string `json:"id,omitempty"`
	Name      string `json:"name,omitempty"`
	Input     *Input `json:"input,omitempty"`
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
	IsError   bool   `json:"is_error,omitempty"`
}

// Message is plain text when Blocks is empty, otherwise Content is ignored.
type Message struct {
	Role    string
	Content string
	Blocks  []ContentBlock
}

type wireMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

func (m Message) MarshalJSON() ([]byte, error) {
	var content any = m.Content
	if len(m.Blocks) > 0 {
		content = m.Blocks
	}
	raw, err := json.Marshal(content)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message content: %w", err)
	}
	return json.Marshal(wireMessage{Role: m.Role, Content: raw})
}

func (m *Message) UnmarshalJSON(b []byte) error {
	var w wireMessage
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	m.Role = w.Role
	m.Content = ""
	m.Blocks = nil
	if len(w.Content) == 0 {
		return nil
	}
	switch w.Content[0] {
	case '"':
		return json.Unmarshal(w.Content, &m.Content)
	case '[':
		return json.Unmarshal(w.Content, &m.Blocks)
	case 'n':
		return nil
	}
	return errors.New("message content must be a string or a list of content blocks")
}

// Text returns the concatenated text of the message.
func (m Message) Text() string {
	if len(m.Blocks) == 0 {
		return m.Content
	}
	return JoinText(m.Blocks)
}

// ToolUses returns the tool_use blocks of the message in emitted order.
func (m Message) ToolUses() []ContentBlock {
	var ret []ContentBlock
	for _, b := range m.Blocks {
		if b.Type == BlockToolUse {
			ret = append(ret, b)
		}
	}
	return ret
}

// JoinText concatenates all text blocks with newlines.
func JoinText(blocks []ContentBlock) string {
	parts := make([]string, 0, len(blocks))
	for _, b := range blocks {
		if b.Type == BlockText && b.Text != "" {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, "\n")
}
