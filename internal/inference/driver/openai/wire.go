package openai

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/careerlens/careerlens/internal/inference/driver"
)

// chatRequest is the /chat/completions body. Nil sampling fields are omitted
// so the provider defaults apply.
type chatRequest struct {
	Model          string                 `json:"model"`
	Messages       []driver.Message       `json:"messages"`
	ResponseFormat *driver.ResponseFormat `json:"response_format,omitempty"`
	Temperature    *float64               `json:"temperature,omitempty"`
	MaxTokens      *int                   `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
			Refusal string `json:"refusal"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *driver.Usage `json:"usage,omitempty"`
}

// apiError is the error object OpenAI-compatible APIs return.
type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error"`
}

func newChatRequest(req *driver.Request) (*chatRequest, error) {
	switch {
	case req == nil:
		return nil, errors.New("request is required")
	case strings.TrimSpace(req.Model) == "":
		return nil, errors.New("model is required")
	case len(req.Messages) == 0:
		return nil, errors.New("messages are required")
	}
	return &chatRequest{
		Model:          req.Model,
		Messages:       req.Messages,
		ResponseFormat: req.ResponseFormat,
		Temperature:    req.Temperature,
		MaxTokens:      req.MaxTokens,
	}, nil
}

// decodeChat maps the first choice to a driver response. No choices yields
// empty text. A refusal is an error so the caller falls back instead of
// parsing prose.
func decodeChat(body []byte) (*driver.Response, error) {
	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return &driver.Response{Model: parsed.Model, Usage: parsed.Usage}, nil
	}

	first := parsed.Choices[0]
	if refusal := strings.TrimSpace(first.Message.Refusal); refusal != "" {
		return nil, fmt.Errorf("model refused: %s", refusal)
	}
	return &driver.Response{
		Text:         first.Message.Content,
		FinishReason: first.FinishReason,
		Model:        parsed.Model,
		Usage:        parsed.Usage,
	}, nil
}

// errorMessage prefers the structured error message over the raw body.
func errorMessage(body []byte) string {
	var parsed apiError
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		if parsed.Error.Type != "" {
			return fmt.Sprintf("%s (%s)", parsed.Error.Message, parsed.Error.Type)
		}
		return parsed.Error.Message
	}
	return strings.TrimSpace(string(body))
}
