// Package openai drives the OpenAI chat completions API and compatible
// endpoints (xAI, Groq, Ollama, local gateways) selected through BaseURL.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/careerlens/careerlens/internal/inference/driver"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"

	// maxResponseBytes bounds how much of a provider body is buffered.
	maxResponseBytes = 4 << 20

	// requestIDHeader is echoed in provider logs and support requests.
	requestIDHeader = "X-Client-Request-Id"
)

// Client is a driver.Driver over HTTP.
type Client struct {
	BaseURL      string
	APIKey       string
	Organization string
	HTTPClient   *http.Client
	// Timeout bounds one exchange on top of the caller's deadline.
	Timeout time.Duration
}

// NewClient returns a client for baseURL, or the OpenAI API when empty.
func NewClient(baseURL, apiKey string) *Client {
	url := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if url == "" {
		url = defaultBaseURL
	}
	return &Client{BaseURL: url, APIKey: strings.TrimSpace(apiKey)}
}

// Name returns the driver identifier.
func (c *Client) Name() string {
	return "openai"
}

// Complete sends one chat completion.
func (c *Client) Complete(ctx context.Context, req *driver.Request) (*driver.Response, error) {
	if c == nil {
		return nil, errors.New("openai client not configured")
	}
	if c.APIKey == "" {
		return nil, errors.New("api key is required")
	}

	payload, err := newChatRequest(req)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	status, respBody, err := c.post(ctx, req, "/chat/completions", body)
	if err != nil {
		return nil, err
	}
	if status < http.StatusOK || status >= http.StatusMultipleChoices {
		return nil, &driver.ProviderError{
			Provider:    c.Name(),
			StatusCode:  status,
			Message:     errorMessage(respBody),
			RawResponse: respBody,
		}
	}
	return decodeChat(respBody)
}

// post performs the HTTP exchange and traces it whatever the outcome.
func (c *Client) post(ctx context.Context, req *driver.Request, path string, body []byte) (int, []byte, error) {
	endpoint := c.BaseURL + path
	entry := driver.TraceEntry{
		Driver:      c.Name(),
		Operation:   req.Operation,
		RequestID:   req.RequestID,
		Endpoint:    endpoint,
		Model:       req.Model,
		RequestBody: driver.TraceBody(body),
	}
	start := time.Now()
	defer func() {
		entry.DurationMs = time.Since(start).Milliseconds()
		driver.Trace(entry)
	}()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		entry.Error = err.Error()
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")
	if c.Organization != "" {
		httpReq.Header.Set("OpenAI-Organization", c.Organization)
	}
	if req.RequestID != "" {
		httpReq.Header.Set(requestIDHeader, req.RequestID)
	}

	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		entry.Error = err.Error()
		return 0, nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	entry.StatusCode = resp.StatusCode
	entry.Response = driver.TraceBody(respBody)
	if err != nil {
		entry.Error = err.Error()
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, respBody, nil
}
