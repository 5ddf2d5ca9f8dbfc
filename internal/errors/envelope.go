// Package errors builds gofulmen error envelopes for careerlens and writes
// them as API error bodies.
package errors

import (
	"context"
	"errors"
	"net/http"
	"time"

	gferrors "github.com/fulmenhq/gofulmen/errors"
	"github.com/google/uuid"

	"github.com/careerlens/careerlens/internal/server/middleware"
)

// Error codes returned in the API error body.
const (
	CodeInvalidInput       = "INVALID_INPUT"
	CodeNotFound           = "NOT_FOUND"
	CodeMethodNotAllowed   = "METHOD_NOT_ALLOWED"
	CodePayloadTooLarge    = "PAYLOAD_TOO_LARGE"
	CodeUnsupportedMedia   = "UNSUPPORTED_MEDIA_TYPE"
	CodeRateLimited        = "RATE_LIMITED"
	CodeInternal           = "INTERNAL_ERROR"
	CodeDatabase           = "DATABASE_ERROR"
	CodeExternalService    = "EXTERNAL_SERVICE_ERROR"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodeConfigInvalid      = "CONFIG_INVALID"
)

// codeStatus maps codes to HTTP statuses. Unlisted codes are 500.
var codeStatus = map[string]int{
	CodeInvalidInput:       http.StatusBadRequest,
	CodeNotFound:           http.StatusNotFound,
	CodeMethodNotAllowed:   http.StatusMethodNotAllowed,
	CodePayloadTooLarge:    http.StatusRequestEntityTooLarge,
	CodeUnsupportedMedia:   http.StatusUnsupportedMediaType,
	CodeRateLimited:        http.StatusTooManyRequests,
	CodeExternalService:    http.StatusBadGateway,
	CodeServiceUnavailable: http.StatusServiceUnavailable,
}

// causeKey holds the wrapped error text in the envelope context. It is
// logged but never sent to callers.
const causeKey = "wrapped_error"

// ResetAtLayout formats details.reset_at on RATE_LIMITED responses.
const ResetAtLayout = "2006-01-02T15:04:05.000Z07:00"

// New returns an envelope with no request correlation.
func New(code, message string) *gferrors.ErrorEnvelope {
	return gferrors.NewErrorEnvelope(code, message)
}

func NewInvalidInputError(message string) *gferrors.ErrorEnvelope {
	return New(CodeInvalidInput, message)
}

// NewRateLimitedError reports an admission denial. resetAt is when the
// caller's window reopens.
func NewRateLimitedError(message string, resetAt time.Time) *gferrors.ErrorEnvelope {
	return withContext(New(CodeRateLimited, message), "reset_at", resetAt.UTC().Format(ResetAtLayout))
}

// Wrap builds an envelope for code carrying err and the request ID from ctx.
func Wrap(ctx context.Context, code string, err error, message string) *gferrors.ErrorEnvelope {
	id := requestID(ctx)
	if id == "" {
		id = uuid.NewString()
	}
	env := New(code, message).WithCorrelationID(id).WithTraceID(id)
	if err != nil {
		env = withContext(env, causeKey, err.Error())
	}
	return env
}

func WrapInvalidInput(ctx context.Context, err error, message string) *gferrors.ErrorEnvelope {
	return Wrap(ctx, CodeInvalidInput, err, message)
}

func WrapDatabaseError(ctx context.Context, err error, message string) *gferrors.ErrorEnvelope {
	return Wrap(ctx, CodeDatabase, err, message)
}

func WrapExternalService(ctx context.Context, err error, message string) *gferrors.ErrorEnvelope {
	return Wrap(ctx, CodeExternalService, err, message)
}

func WrapInternal(ctx context.Context, err error, message string) *gferrors.ErrorEnvelope {
	return Wrap(ctx, CodeInternal, err, message)
}

// EnsureEnvelope returns the envelope inside err, or an INTERNAL_ERROR
// envelope holding err as its cause.
func EnsureEnvelope(err error) *gferrors.ErrorEnvelope {
	if err == nil {
		env := New(CodeInternal, "unexpected nil error")
		if updated, sevErr := env.WithSeverity(gferrors.SeverityCritical); sevErr == nil {
			env = updated
		}
		return env
	}
	var env *gferrors.ErrorEnvelope
	if errors.As(err, &env) && env != nil {
		return env
	}
	env = withContext(New(CodeInternal, "unexpected error"), causeKey, err.Error())
	if updated, sevErr := env.WithSeverity(gferrors.SeverityHigh); sevErr == nil {
		env = updated
	}
	return env
}

// HTTPStatusFromEnvelope resolves the HTTP status for an envelope.
func HTTPStatusFromEnvelope(env *gferrors.ErrorEnvelope) int {
	if env == nil {
		return http.StatusInternalServerError
	}
	return HTTPStatusFromCode(env.Code)
}

// HTTPStatusFromCode resolves the HTTP status for an error code.
func HTTPStatusFromCode(code string) int {
	if status, ok := codeStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func requestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	return middleware.GetRequestID(ctx)
}

func withContext(env *gferrors.ErrorEnvelope, key string, value any) *gferrors.ErrorEnvelope {
	updated, err := env.WithContext(map[string]interface{}{key: value})
	if err != nil {
		return env
	}
	return updated
}
