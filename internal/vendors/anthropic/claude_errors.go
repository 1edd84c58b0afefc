package anthropic

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// APIError is a non 200 response from the Messages API.
type APIError struct {
	StatusCode int
	Type       string
	Message    string
	retryAfter time.Duration
}

func (e *APIError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("anthropic api error (status %v): %v", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("anthropic api error (status %v, %v): %v", e.StatusCode, e.Type, e.Message)
}

// Retryable is true for rate limits (429) and overload (529).
func (e *APIError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode == 529
}

func (e *APIError) retryAfter(attempt int) time.Duration {
	wait := e.retryAfter
	if wait <= 0 {
		wait = time.Second << attempt
	}
	return min(wait, maxRetryWait)
}

type errorBody struct {
	Type  string `json:"type"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func newAPIError(resp *http.Response, body []byte) *APIError {
	ret := &APIError{
		StatusCode: resp.StatusCode,
		Message:    string(body),
		retryAfter: parseRetryAfter(resp.Header),
	}
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil && eb.Error.Message != "" {
		ret.Type = eb.Error.Type
		ret.Message = eb.Error.Message
	}
	return ret
}
