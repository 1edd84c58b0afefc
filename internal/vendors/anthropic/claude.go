package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/baalimago/go_away_boilerplate/pkg/ancli"
	"github.com/baalimago/go_away_boilerplate/pkg/debug"
	"github.com/scorzo/cloudcost/internal/models"
)

const (
	ClaudeURL    = "https://api.anthropic.com/v1/messages"
	DefaultModel = "claude-sonnet-4-20250514"

	maxRetryWait = 10 * time.Second
)

type Claude struct {
	Model            string  `json:"model"`
	MaxTokens        int     `json:"max_tokens"`
	Url              string  `json:"url"`
	AnthropicVersion string  `json:"anthropic-version"`
	Temperature      float64 `json:"temperature"`
	MaxRetries       int     `json:"max_retries"`

	client *http.Client
	apiKey string
	debug  bool
}

var ClaudeDefault = Claude{
	Model:            DefaultModel,
	Url:              ClaudeURL,
	AnthropicVersion: "2023-06-01",
	MaxTokens:        4096,
	Temperature:      -1,
	MaxRetries:       2,
}

type claudeTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

type claudeReq struct {
	Model       string           `json:"model"`
	MaxTokens   int              `json:"max_tokens"`
	System      string           `json:"system,omitempty"`
	Messages    []models.Message `json:"messages"`
	Tools       []claudeTool     `json:"tools,omitempty"`
	Temperature *float64         `json:"temperature,omitempty"`
}

// Complete sends one non-streaming request to the Messages API. Overloaded
// and rate limited responses are retried up to MaxRetries times.
func (c *Claude) Complete(ctx context.Context, req models.CompletionRequest) (models.Completion, error) {
	body, err := c.marshalRequest(req)
	if err != nil {
		return models.Completion{}, err
	}
	for attempt := 0; ; attempt++ {
		resp, err := c.do(ctx, body)
		if err == nil {
			return resp, nil
		}
		var apiErr *APIError
		if !errors.As(err, &apiErr) || !apiErr.Retryable() || attempt >= c.MaxRetries {
			return models.Completion{}, err
		}
		wait := apiErr.retryAfter(attempt)
		ancli.PrintWarn(fmt.Sprintf("anthropic api returned %v, retrying in %v\n", apiErr.StatusCode, wait))
		select {
		case <-ctx.Done():
			return models.Completion{}, ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (c *Claude) marshalRequest(req models.CompletionRequest) ([]byte, error) {
	tools := make([]claudeTool, 0, len(req.Tools))
	for _, t := range req.Tools {
		tools = append(tools, claudeTool{Name: t.Name, Description: t.Description, InputSchema: t.InputSchema})
	}
	cr := claudeReq{
		Model:     c.Model,
		MaxTokens: c.MaxTokens,
		System:    req.System,
		Messages:  req.Messages,
		Tools:     tools,
	}
	if c.Temperature >= 0 {
		cr.Temperature = &c.Temperature
	}
	b, err := json.Marshal(cr)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	if c.debug {
		ancli.PrintOK(fmt.Sprintf("claude request: %v\n", debug.IndentedJsonFmt(cr)))
	}
	return b, nil
}

func (c *Claude) do(ctx context.Context, body []byte) (models.Completion, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Url, bytes.NewReader(body))
	if err != nil {
		return models.Completion{}, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("content-type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", c.AnthropicVersion)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return models.Completion{}, fmt.Errorf("failed to do request: %w", err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.Completion{}, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return models.Completion{}, newAPIError(resp, respBody)
	}

	var cr ClaudeResponse
	if err := json.Unmarshal(respBody, &cr); err != nil {
		return models.Completion{}, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if c.debug {
		ancli.PrintOK(fmt.Sprintf("claude response: %v\n", debug.IndentedJsonFmt(cr)))
	}
	return cr.toCompletion(), nil
}

func parseRetryAfter(h http.Header) time.Duration {
	s := h.Get("retry-after")
	if s == "" {
		return 0
	}
	sec, err := strconv.ParseFloat(s, 64)
	if err != nil || sec < 0 {
		return 0
	}
	return time.Duration(sec * float64(time.Second))
}
