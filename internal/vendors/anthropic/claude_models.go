package anthropic

import "github.com/scorzo/cloudcost/internal/models"

type ClaudeResponse struct {
	Content      []models.ContentBlock `json:"content"`
	ID           string                `json:"id"`
	Model        string                `json:"model"`
	Role         string                `json:"role"`
	StopReason   string                `json:"stop_reason"`
	StopSequence any                   `json:"stop_sequence"`
	Type         string                `json:"type"`
	Usage        TokenInfo             `json:"usage"`
}

type TokenInfo struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

func (r ClaudeResponse) toCompletion() models.Completion {
	content := make([]models.ContentBlock, 0, len(r.Content))
	for _, b := range r.Content {
		if b.Type == models.BlockToolUse && b.Input == nil {
			b.Input = &models.Input{}
		}
		content = append(content, b)
	}
	return models.Completion{
		ID:         r.ID,
		Model:      r.Model,
		StopReason: r.StopReason,
		Content:    content,
		Usage: models.Usage{
			InputTokens:  r.Usage.InputTokens,
			OutputTokens: r.Usage.OutputTokens,
		},
	}
}
