package driver

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTracingWritesNDJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.ndjson")

	cleanup, err := EnableTracing(path)
	require.NoError(t, err)
	require.True(t, IsTracingEnabled())

	Trace(TraceEntry{Driver: "openai", Operation: "parse-cv", Endpoint: "/chat/completions", RequestBody: TraceBody([]byte(`{"a":1}`))})
	Trace(TraceEntry{Driver: "openai", Operation: "parse-cv", Response: TraceBody([]byte("not json"))})
	cleanup()
	require.False(t, IsTracingEnabled())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close() // nolint:errcheck // test cleanup

	var entries []TraceEntry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var entry TraceEntry
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &entry))
		entries = append(entries, entry)
	}
	require.Len(t, entries, 2)
	require.JSONEq(t, `{"a":1}`, string(entries[0].RequestBody))
	require.JSONEq(t, `"not json"`, string(entries[1].Response))
	require.False(t, entries[0].Timestamp.IsZero())

	// Tracing disabled: no panic, no write.
	Trace(TraceEntry{Driver: "openai"})
}

func TestRequestTextHelpers(t *testing.T) {
	req := &Request{Messages: []Message{
		{Role: RoleSystem, Content: "sys"},
		{Role: RoleUser, Content: "one"},
		{Role: RoleUser, Content: "two"},
	}}
	require.Equal(t, "sys", req.SystemText())
	require.Equal(t, "one\n\ntwo", req.UserText())

	var nilReq *Request
	require.Empty(t, nilReq.UserText())
}

func TestProviderError(t *testing.T) {
	err := &ProviderError{Provider: "openai", StatusCode: 503, Message: "overloaded"}
	require.Equal(t, "openai request failed: status 503: overloaded", err.Error())
	require.True(t, err.Retryable())
	require.False(t, (&ProviderError{StatusCode: 400}).Retryable())
}

func TestTraceOmitsOversizedBodies(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.ndjson")
	cleanup, err := EnableTracing(path)
	require.NoError(t, err)

	big := strings.Repeat("x", maxTraceBody+1)
	Trace(TraceEntry{Driver: "gemini", RequestID: "r1", RequestBody: TraceBody([]byte(big))})
	cleanup()

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var entry TraceEntry
	require.NoError(t, json.Unmarshal(raw, &entry))
	require.True(t, entry.Truncated)
	require.Equal(t, "r1", entry.RequestID)
	require.Contains(t, string(entry.RequestBody), "bytes omitted")
}
