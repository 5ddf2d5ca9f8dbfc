package driver

import (
	"context"
	"strings"
)

// Driver sends one completion exchange to a text-generation provider.
type Driver interface {
	// Complete sends a completion request and returns the response.
	Complete(ctx context.Context, req *Request) (*Response, error)
	// Name returns the driver identifier (e.g., "openai").
	Name() string
}

// Message roles.
const (
	RoleSystem = "system"
	RoleUser   = "user"
)

// Message is a single chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ResponseFormat specifies the expected response format.
type ResponseFormat struct {
	Type string `json:"type"` // "text", "json_object"
}

// Usage contains token usage statistics.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Request is a provider-agnostic completion request. Temperature and
// MaxTokens are forwarded as given.
type Request struct {
	Model          string
	Messages       []Message
	ResponseFormat *ResponseFormat
	Temperature    *float64
	MaxTokens      *int
	Operation      string
	// RequestID correlates the exchange with the inbound API request.
	RequestID string
}

// Response is a provider-agnostic completion response.
type Response struct {
	Text         string
	FinishReason string
	Model        string
	Usage        *Usage
}

// SystemText returns the concatenated system messages of req.
func (r *Request) SystemText() string {
	return joinRole(r, RoleSystem)
}

// UserText returns the concatenated user messages of req.
func (r *Request) UserText() string {
	return joinRole(r, RoleUser)
}

func joinRole(r *Request, role string) string {
	if r == nil {
		return ""
	}
	var parts []string
	for _, msg := range r.Messages {
		if msg.Role == role {
			parts = append(parts, msg.Content)
		}
	}
	return strings.Join(parts, "\n\n")
}
