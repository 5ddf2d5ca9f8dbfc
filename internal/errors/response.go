package errors

import (
	"encoding/json"
	"net/http"

	gferrors "github.com/fulmenhq/gofulmen/errors"
	"go.uber.org/zap"

	"github.com/careerlens/careerlens/internal/metrics"
	"github.com/careerlens/careerlens/internal/observability"
)

// HTTPErrorDetail is the error body returned to callers.
type HTTPErrorDetail struct {
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
}

// HTTPErrorResponse is the top-level error body.
type HTTPErrorResponse struct {
	Error HTTPErrorDetail `json:"error"`
}

// ResponseDetails merges envelope details and context for the API body.
// Details win on key clashes; the wrapped cause is dropped.
func ResponseDetails(env *gferrors.ErrorEnvelope) map[string]interface{} {
	if env == nil {
		return nil
	}
	out := make(map[string]interface{}, len(env.Details)+len(env.Context))
	for k, v := range env.Context {
		if k != causeKey {
			out[k] = v
		}
	}
	for k, v := range env.Details {
		out[k] = v
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// RespondWithError writes err as a JSON error body.
func RespondWithError(w http.ResponseWriter, r *http.Request, err error) {
	RespondWithEnvelope(w, r, EnsureEnvelope(err))
}

// RespondWithEnvelope logs env, counts it and writes it. Envelopes built
// outside a request get the request's ID here.
func RespondWithEnvelope(w http.ResponseWriter, r *http.Request, env *gferrors.ErrorEnvelope) {
	if w == nil {
		return
	}
	if env == nil {
		env = EnsureEnvelope(nil)
	}
	if env.CorrelationID == "" {
		id := ""
		if r != nil {
			id = requestID(r.Context())
		}
		if id == "" {
			id = "fallback-" + gferrors.GenerateCorrelationID()
		}
		env = env.WithCorrelationID(id)
	}

	status := HTTPStatusFromEnvelope(env)
	logEnvelope(env, status)
	metrics.RecordError(env.Code, status)
	if r != nil {
		metrics.RecordErrorByEndpoint(r.URL.Path, env.Code)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(HTTPErrorResponse{Error: HTTPErrorDetail{
		Code:      env.Code,
		Message:   env.Message,
		Details:   ResponseDetails(env),
		RequestID: env.CorrelationID,
	}})
}

func logEnvelope(env *gferrors.ErrorEnvelope, status int) {
	logger := observability.ServerLogger
	if logger == nil {
		return
	}

	fields := make([]zap.Field, 0, len(env.Context)+4)
	fields = append(fields,
		zap.String("error_code", env.Code),
		zap.Int("http_status", status),
		zap.String("request_id", env.CorrelationID),
	)
	if env.Severity != "" {
		fields = append(fields, zap.String("severity", string(env.Severity)))
	}
	for k, v := range env.Context {
		fields = append(fields, zap.Any(k, v))
	}

	// Caller mistakes stay at info.
	switch {
	case env.Severity == gferrors.SeverityCritical, env.Severity == gferrors.SeverityHigh:
		logger.Error(env.Message, fields...)
	case status >= http.StatusInternalServerError, env.Severity == gferrors.SeverityMedium:
		logger.Warn(env.Message, fields...)
	default:
		logger.Info(env.Message, fields...)
	}
}
