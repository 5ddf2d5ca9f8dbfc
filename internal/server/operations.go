package server

import (
	"net/http"

	"github.com/careerlens/careerlens/internal/analysis"
	"github.com/careerlens/careerlens/internal/inference"
)

// operationView is the wire form of a policy with durations in plain units.
type operationView struct {
	Operation       analysis.Operation `json:"operation"`
	Limit           int                `json:"limit"`
	WindowSeconds   int64              `json:"window_seconds"`
	DeadlineMs      int64              `json:"deadline_ms"`
	Temperature     float64            `json:"temperature"`
	MaxOutputTokens int                `json:"max_output_tokens"`
	MaxInputChars   int                `json:"max_input_chars"`
	// Fields lists the result fields every response of the operation carries.
	Fields inference.Shape `json:"fields,omitempty"`
}

func (s *Server) handleOperations(w http.ResponseWriter, r *http.Request) {
	entries := s.deps.Service.Policies.All()
	shapes := analysis.Shapes()
	views := make([]operationView, 0, len(entries))
	for _, e := range entries {
		views = append(views, operationView{
			Operation:       e.Operation,
			Limit:           e.Limit,
			WindowSeconds:   int64(e.Window.Seconds()),
			DeadlineMs:      e.Deadline.Milliseconds(),
			Temperature:     e.Temperature,
			MaxOutputTokens: e.MaxOutputTokens,
			MaxInputChars:   e.MaxInputChars,
			Fields:          shapes[e.Operation],
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"operations": views})
}
