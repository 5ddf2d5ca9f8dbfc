package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/careerlens/careerlens/internal/admission"
	"github.com/careerlens/careerlens/internal/analysis"
	apperrors "github.com/careerlens/careerlens/internal/errors"
	"github.com/careerlens/careerlens/internal/metrics"
	"github.com/careerlens/careerlens/internal/observability"
)

// Rate limit response headers.
const (
	HeaderLimit      = "X-RateLimit-Limit"
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderReset      = "X-RateLimit-Reset"
	HeaderRetryAfter = "Retry-After"
)

// admit checks the caller's budget for op before anything else runs. The
// decision is reported in headers on every response; a denial ends the
// request with 429.
func (s *Server) admit(op analysis.Operation) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			policy, err := s.deps.Service.Policy(op)
			if err != nil {
				HandleError(w, r, apperrors.WrapInternal(r.Context(), err, "operation is not configured"))
				return
			}

			key := admission.OperationKey(s.deps.ClientKey(r), string(op))
			decision := s.deps.Admission.Check(key, policy.Limit, policy.Window)
			now := time.Now()

			writeDecisionHeaders(w, decision)
			metrics.RecordAdmission(string(op), decision.Allowed)
			s.recordStats(r.Context(), admission.StatsEvent{
				Key:       key,
				Operation: string(op),
				Allowed:   decision.Allowed,
				At:        now,
			})

			if !decision.Allowed {
				w.Header().Set(HeaderRetryAfter, strconv.Itoa(decision.RetryAfter(now)))
				message := fmt.Sprintf("Too many %s requests. Try again after %s.",
					op, decision.ResetAt.UTC().Format(time.RFC3339))
				HandleError(w, r, apperrors.NewRateLimitedError(message, decision.ResetAt))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeDecisionHeaders(w http.ResponseWriter, d admission.Decision) {
	h := w.Header()
	h.Set(HeaderLimit, strconv.Itoa(d.Limit))
	h.Set(HeaderRemaining, strconv.Itoa(d.Remaining))
	h.Set(HeaderReset, strconv.FormatInt(d.ResetAtMillis(), 10))
}

func (s *Server) recordStats(ctx context.Context, ev admission.StatsEvent) {
	if s.deps.Stats == nil {
		return
	}
	if err := s.deps.Stats.Record(ctx, ev); err != nil && observability.ServerLogger != nil {
		observability.ServerLogger.Debug("Admission stats not recorded",
			zap.String("operation", ev.Operation),
			zap.Error(err))
	}
}
