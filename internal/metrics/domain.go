package metrics

import (
	"context"
	"strconv"
	"time"

	"github.com/careerlens/careerlens/internal/inference"
	"github.com/careerlens/careerlens/internal/observability"
)

// Metric names, Prometheus style.
const (
	AdmissionDecisionsTotal = "admission_decisions_total"
	InferenceOutcomesTotal  = "inference_outcomes_total"
	InferenceLatency        = "inference_latency_ms"
	DocumentsExtractedTotal = "documents_extracted_total"
	OutcomesPrunedTotal     = "outcomes_pruned_total"
	ServerStartTime         = "app_server_start_time_seconds"
)

// RecordAdmission counts one admission decision for operation.
func RecordAdmission(operation string, admitted bool) {
	if observability.TelemetrySystem == nil {
		return
	}
	decision := "admitted"
	if !admitted {
		decision = "denied"
	}
	_ = observability.TelemetrySystem.Counter(AdmissionDecisionsTotal, 1, map[string]string{
		"operation": operation,
		"decision":  decision,
	})
}

// RecordInference counts an invocation and observes its latency.
func RecordInference(ev inference.Event) {
	if observability.TelemetrySystem == nil {
		return
	}
	reason := string(ev.Reason)
	if reason == "" {
		reason = "none"
	}
	_ = observability.TelemetrySystem.Counter(InferenceOutcomesTotal, 1, map[string]string{
		"operation": ev.Operation,
		"outcome":   string(ev.Outcome),
		"reason":    reason,
	})
	_ = observability.TelemetrySystem.Histogram(InferenceLatency,
		time.Duration(ev.LatencyMs)*time.Millisecond,
		map[string]string{
			"operation": ev.Operation,
			"outcome":   string(ev.Outcome),
		})
}

// InferenceSink records every gateway event as metrics.
func InferenceSink() inference.Sink {
	return inference.SinkFunc(func(_ context.Context, ev inference.Event) error {
		RecordInference(ev)
		return nil
	})
}

// RecordDocument counts an upload extraction by detected kind.
func RecordDocument(kind string, ok bool) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Counter(DocumentsExtractedTotal, 1, map[string]string{
		"kind":    kind,
		"success": strconv.FormatBool(ok),
	})
}

// RecordPruned counts outcome rows removed by retention.
func RecordPruned(n int64) {
	if observability.TelemetrySystem == nil || n <= 0 {
		return
	}
	_ = observability.TelemetrySystem.Counter(OutcomesPrunedTotal, float64(n), nil)
}

// SetServerStartTime records the server start as a Unix timestamp.
func SetServerStartTime(timestamp int64) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Gauge(ServerStartTime, float64(timestamp), nil)
}
