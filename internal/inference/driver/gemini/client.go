package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"google.golang.org/genai"

	"github.com/careerlens/careerlens/internal/inference/driver"
)

// Client sends completions to the Gemini API through the genai SDK.
// The SDK client is created lazily on the first call.
type Client struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client

	mu     sync.Mutex
	client *genai.Client
}

// NewClient returns a Gemini driver for apiKey.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		APIKey:  strings.TrimSpace(apiKey),
		BaseURL: strings.TrimSpace(baseURL),
	}
}

// Name returns the driver identifier.
func (c *Client) Name() string {
	return "gemini"
}

// Complete sends a single generateContent request.
func (c *Client) Complete(ctx context.Context, req *driver.Request) (*driver.Response, error) {
	if c == nil {
		return nil, fmt.Errorf("gemini client not configured")
	}
	model, contents, config, err := buildGenerateRequest(req)
	if err != nil {
		return nil, err
	}

	sdk, err := c.sdk(ctx)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := sdk.Models.GenerateContent(ctx, model, contents, config)
	c.trace(req, resp, err, time.Since(start))
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return nil, &driver.ProviderError{Provider: c.Name(), StatusCode: apiErr.Code, Message: apiErr.Message}
		}
		return nil, fmt.Errorf("request failed: %w", err)
	}

	return toDriverResponse(resp, model), nil
}

func (c *Client) sdk(ctx context.Context) (*genai.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		return c.client, nil
	}
	if c.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}

	cfg := &genai.ClientConfig{
		APIKey:     c.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: c.HTTPClient,
	}
	if c.BaseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: c.BaseURL}
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	c.client = client
	return client, nil
}

func (c *Client) trace(req *driver.Request, resp *genai.GenerateContentResponse, err error, elapsed time.Duration) {
	if !driver.IsTracingEnabled() {
		return
	}
	entry := driver.TraceEntry{
		Driver:     c.Name(),
		Operation:  req.Operation,
		RequestID:  req.RequestID,
		Endpoint:   "models/" + req.Model + ":generateContent",
		Model:      req.Model,
		DurationMs: elapsed.Milliseconds(),
	}
	if body, marshalErr := json.Marshal(req.Messages); marshalErr == nil {
		entry.RequestBody = body
	}
	if resp != nil {
		if body, marshalErr := json.Marshal(resp); marshalErr == nil {
			entry.Response = body
		}
	}
	if err != nil {
		entry.Error = err.Error()
	}
	driver.Trace(entry)
}

func buildGenerateRequest(req *driver.Request) (string, []*genai.Content, *genai.GenerateContentConfig, error) {
	if req == nil {
		return "", nil, nil, fmt.Errorf("request is required")
	}
	model := strings.TrimSpace(req.Model)
	if model == "" {
		return "", nil, nil, fmt.Errorf("model is required")
	}

	user := req.UserText()
	if strings.TrimSpace(user) == "" {
		return "", nil, nil, fmt.Errorf("messages are required")
	}

	config := &genai.GenerateContentConfig{}
	if system := req.SystemText(); system != "" {
		config.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	if req.Temperature != nil {
		config.Temperature = genai.Ptr(float32(*req.Temperature))
	}
	if req.MaxTokens != nil {
		config.MaxOutputTokens = int32(*req.MaxTokens)
	}
	if req.ResponseFormat != nil && req.ResponseFormat.Type == "json_object" {
		config.ResponseMIMEType = "application/json"
	}

	return model, genai.Text(user), config, nil
}

// toDriverResponse maps the first candidate. A response without candidates
// (for example a blocked prompt) has empty text, which callers treat as an
// unparsable answer.
func toDriverResponse(resp *genai.GenerateContentResponse, model string) *driver.Response {
	out := &driver.Response{Model: model}
	if resp == nil {
		return out
	}
	if len(resp.Candidates) > 0 {
		out.Text = resp.Text()
		out.FinishReason = string(resp.Candidates[0].FinishReason)
	}
	if resp.ModelVersion != "" {
		out.Model = resp.ModelVersion
	}
	if usage := resp.UsageMetadata; usage != nil {
		out.Usage = &driver.Usage{
			PromptTokens:     int(usage.PromptTokenCount),
			CompletionTokens: int(usage.CandidatesTokenCount),
			TotalTokens:      int(usage.TotalTokenCount),
		}
	}
	return out
}
