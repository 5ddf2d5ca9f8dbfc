package driver

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// maxTraceBody caps each traced body; CVs can be large.
const maxTraceBody = 256 << 10

// TraceEntry is one provider exchange written to the trace file.
type TraceEntry struct {
	Timestamp   time.Time       `json:"timestamp"`
	Driver      string          `json:"driver"`
	Operation   string          `json:"operation,omitempty"`
	RequestID   string          `json:"request_id,omitempty"`
	Endpoint    string          `json:"endpoint"`
	Model       string          `json:"model,omitempty"`
	RequestBody json.RawMessage `json:"request_body,omitempty"`
	StatusCode  int             `json:"status_code,omitempty"`
	Response    json.RawMessage `json:"response,omitempty"`
	Truncated   bool            `json:"truncated,omitempty"`
	Error       string          `json:"error,omitempty"`
	DurationMs  int64           `json:"duration_ms"`
}

// tracer serializes entries onto one NDJSON stream.
type tracer struct {
	mu  sync.Mutex
	out io.WriteCloser
	enc *json.Encoder
}

var active atomic.Pointer[tracer]

// EnableTracing appends provider exchanges to path as NDJSON until the
// returned function is called. A previous trace file is closed.
func EnableTracing(path string) (func(), error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open trace file: %w", err)
	}
	if prev := active.Swap(&tracer{out: f, enc: json.NewEncoder(f)}); prev != nil {
		prev.close()
	}
	return DisableTracing, nil
}

// DisableTracing stops tracing and closes the trace file.
func DisableTracing() {
	if prev := active.Swap(nil); prev != nil {
		prev.close()
	}
}

// IsTracingEnabled reports whether a trace file is open.
func IsTracingEnabled() bool {
	return active.Load() != nil
}

// Trace records entry when tracing is enabled.
func Trace(entry TraceEntry) {
	t := active.Load()
	if t == nil {
		return
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	entry.RequestBody, entry.Truncated = capBody(entry.RequestBody, entry.Truncated)
	entry.Response, entry.Truncated = capBody(entry.Response, entry.Truncated)

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.enc != nil {
		_ = t.enc.Encode(entry)
	}
}

// TraceBody returns b as raw JSON when valid, or as a JSON string otherwise.
func TraceBody(b []byte) json.RawMessage {
	if len(b) == 0 {
		return nil
	}
	if json.Valid(b) {
		return json.RawMessage(b)
	}
	quoted, err := json.Marshal(string(b))
	if err != nil {
		return nil
	}
	return quoted
}

func capBody(body json.RawMessage, truncated bool) (json.RawMessage, bool) {
	if len(body) <= maxTraceBody {
		return body, truncated
	}
	return TraceBody([]byte(fmt.Sprintf("%d bytes omitted", len(body)))), true
}

func (t *tracer) close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.out != nil {
		_ = t.out.Close()
	}
	t.out, t.enc = nil, nil
}
