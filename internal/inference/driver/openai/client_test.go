package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/careerlens/careerlens/internal/inference/driver"
)

func userRequest(text string) *driver.Request {
	return &driver.Request{Model: "test", Messages: []driver.Message{{Role: driver.RoleUser, Content: text}}}
}

func TestClientRequiresAPIKey(t *testing.T) {
	client := NewClient("", "")
	_, err := client.Complete(context.Background(), userRequest("hi"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "api key")
}

func TestClientRequiresMessages(t *testing.T) {
	client := NewClient("", "test-key")
	_, err := client.Complete(context.Background(), &driver.Request{Model: "test"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "messages")
}

func TestClientSendsRequestAndParsesResponse(t *testing.T) {
	var (
		path    string
		auth    string
		payload map[string]any
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		auth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &payload)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"model":"gpt-test-2025","choices":[{"message":{"content":"{\"summary\":\"ok\"}"},"finish_reason":"stop"}],"usage":{"prompt_tokens":1,"completion_tokens":2,"total_tokens":3}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key")
	client.HTTPClient = server.Client()

	temperature := 0.2
	maxTokens := 800
	resp, err := client.Complete(context.Background(), &driver.Request{
		Model: "test-model",
		Messages: []driver.Message{
			{Role: driver.RoleSystem, Content: "sys"},
			{Role: driver.RoleUser, Content: "usr"},
		},
		ResponseFormat: &driver.ResponseFormat{Type: "json_object"},
		Temperature:    &temperature,
		MaxTokens:      &maxTokens,
	})
	require.NoError(t, err)
	require.Equal(t, "/chat/completions", path)
	require.Equal(t, "Bearer test-key", auth)

	require.Equal(t, "test-model", payload["model"])
	require.InDelta(t, 0.2, payload["temperature"], 1e-9)
	require.EqualValues(t, 800, payload["max_tokens"])
	require.Equal(t, map[string]any{"type": "json_object"}, payload["response_format"])
	require.Len(t, payload["messages"], 2)

	require.Equal(t, "stop", resp.FinishReason)
	require.Equal(t, "gpt-test-2025", resp.Model)
	require.Equal(t, `{"summary":"ok"}`, resp.Text)
	require.NotNil(t, resp.Usage)
	require.Equal(t, 3, resp.Usage.TotalTokens)
}

func TestClientOmitsUnsetSamplingParameters(t *testing.T) {
	var payload map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &payload)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{}"}}]}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key")
	_, err := client.Complete(context.Background(), userRequest("hi"))
	require.NoError(t, err)

	_, hasTemp := payload["temperature"]
	_, hasMax := payload["max_tokens"]
	require.False(t, hasTemp)
	require.False(t, hasMax)
}

func TestClientErrorsOnNon2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte("nope"))
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key")
	client.HTTPClient = server.Client()

	_, err := client.Complete(context.Background(), userRequest("hi"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "status 401")
	require.Contains(t, err.Error(), "nope")

	var providerErr *driver.ProviderError
	require.True(t, errors.As(err, &providerErr))
	require.Equal(t, http.StatusUnauthorized, providerErr.StatusCode)
}

func TestClientReturnsEmptyTextWithoutChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"model":"gpt-test","choices":[]}`))
	}))
	defer server.Close()

	resp, err := NewClient(server.URL, "test-key").Complete(context.Background(), userRequest("hi"))
	require.NoError(t, err)
	require.Empty(t, resp.Text)
	require.Equal(t, "gpt-test", resp.Model)
}

func TestClientHonoursContextDeadline(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := NewClient(server.URL, "test-key").Complete(ctx, userRequest("hi"))
	require.Error(t, err)
	require.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestClientSendsRequestID(t *testing.T) {
	var (
		requestID string
		payload   map[string]any
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID = r.Header.Get(requestIDHeader)
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &payload)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{}"}}]}`))
	}))
	defer server.Close()

	req := userRequest("hi")
	req.RequestID = "req-42"
	_, err := NewClient(server.URL, "test-key").Complete(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, "req-42", requestID)
	require.Equal(t, "test", payload["model"])
}

func TestClientReportsStructuredErrorMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"slow down","type":"rate_limit_exceeded"}}`))
	}))
	defer server.Close()

	_, err := NewClient(server.URL, "test-key").Complete(context.Background(), userRequest("hi"))
	var providerErr *driver.ProviderError
	require.True(t, errors.As(err, &providerErr))
	require.Equal(t, "slow down (rate_limit_exceeded)", providerErr.Message)
	require.True(t, providerErr.Retryable())
}

func TestClientTreatsRefusalAsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"","refusal":"cannot help"},"finish_reason":"stop"}]}`))
	}))
	defer server.Close()

	_, err := NewClient(server.URL, "test-key").Complete(context.Background(), userRequest("hi"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "cannot help")
}
