package models

const StopToolUse = "tool_use"

type CompletionRequest struct {
	System   string
	Messages []Message
	Tools    []ToolDescriptor
}

type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type Completion struct {
	ID         string
	Model      string
	StopReason string
	Content    []ContentBlock
	Usage      Usage
}

// WantsTools reports if the model stopped to have tools invoked.
func (c Completion) WantsTools() bool {
	if c.StopReason != StopToolUse {
		return false
	}
	for _, b := range c.Content {
		if b.Type == BlockToolUse {
			return true
		}
	}
	return false
}
