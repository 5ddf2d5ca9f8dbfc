package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/careerlens/careerlens/internal/inference"
)

// DefaultListLimit bounds ListOutcomes when the query sets no limit.
const DefaultListLimit = 100

// Outcome is one stored inference event.
type Outcome struct {
	RequestID string    `json:"request_id,omitempty"`
	Operation string    `json:"operation"`
	Outcome   string    `json:"outcome"`
	Reason    string    `json:"reason,omitempty"`
	LatencyMs int64     `json:"latency_ms"`
	Provider  string    `json:"provider,omitempty"`
	Model     string    `json:"model,omitempty"`
	Error     string    `json:"error,omitempty"`
	At        time.Time `json:"at"`
}

// OutcomeQuery filters outcomes. Zero fields match everything.
type OutcomeQuery struct {
	Operation string
	Outcome   string
	Since     time.Time
	Limit     int
}

// OutcomeCount is the number of outcomes for one operation and status.
type OutcomeCount struct {
	Operation string `json:"operation"`
	Outcome   string `json:"outcome"`
	Count     int64  `json:"count"`
}

// RecordOutcome appends ev to the log.
func (s *Store) RecordOutcome(ctx context.Context, ev inference.Event) error {
	if s == nil || s.DB == nil {
		return errNotInitialized
	}
	at := ev.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	_, err := s.DB.ExecContext(ctx, s.rebind(`
		INSERT INTO inference_outcomes
			(request_id, operation, outcome, reason, latency_ms, provider, model, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`), ev.RequestID, ev.Operation, string(ev.Outcome), string(ev.Reason), ev.LatencyMs,
		ev.Provider, ev.Model, ev.Error, at.UnixMilli())
	if err != nil {
		return fmt.Errorf("record outcome: %w", err)
	}
	return nil
}

// OutcomeSink adapts the store to an inference sink. Wrap it in an
// inference.AsyncSink so writes never block requests.
func (s *Store) OutcomeSink() inference.Sink {
	return inference.SinkFunc(s.RecordOutcome)
}

// ListOutcomes returns matching outcomes, newest first.
func (s *Store) ListOutcomes(ctx context.Context, q OutcomeQuery) ([]Outcome, error) {
	if s == nil || s.DB == nil {
		return nil, errNotInitialized
	}
	where, args := q.where()
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	args = append(args, limit)

	rows, err := s.DB.QueryContext(ctx, s.rebind(`
		SELECT request_id, operation, outcome, reason, latency_ms, provider, model, error, created_at
		FROM inference_outcomes`+where+`
		ORDER BY created_at DESC
		LIMIT ?
	`), args...)
	if err != nil {
		return nil, fmt.Errorf("list outcomes: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup on SQL rows

	var out []Outcome
	for rows.Next() {
		var (
			o         Outcome
			createdAt int64
		)
		if err := rows.Scan(&o.RequestID, &o.Operation, &o.Outcome, &o.Reason, &o.LatencyMs,
			&o.Provider, &o.Model, &o.Error, &createdAt); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		o.At = time.UnixMilli(createdAt).UTC()
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list outcomes: %w", err)
	}
	return out, nil
}

// CountOutcomes groups matching outcomes by operation and status.
func (s *Store) CountOutcomes(ctx context.Context, q OutcomeQuery) ([]OutcomeCount, error) {
	if s == nil || s.DB == nil {
		return nil, errNotInitialized
	}
	where, args := q.where()

	rows, err := s.DB.QueryContext(ctx, s.rebind(`
		SELECT operation, outcome, COUNT(*)
		FROM inference_outcomes`+where+`
		GROUP BY operation, outcome
		ORDER BY operation, outcome
	`), args...)
	if err != nil {
		return nil, fmt.Errorf("count outcomes: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup on SQL rows

	var out []OutcomeCount
	for rows.Next() {
		var c OutcomeCount
		if err := rows.Scan(&c.Operation, &c.Outcome, &c.Count); err != nil {
			return nil, fmt.Errorf("scan outcome count: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("count outcomes: %w", err)
	}
	return out, nil
}

// PruneOutcomes deletes outcomes recorded before the cutoff.
func (s *Store) PruneOutcomes(ctx context.Context, before time.Time) (int64, error) {
	if s == nil || s.DB == nil {
		return 0, errNotInitialized
	}
	res, err := s.DB.ExecContext(ctx, s.rebind(`DELETE FROM inference_outcomes WHERE created_at < ?`), before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("prune outcomes: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune outcomes: %w", err)
	}
	return n, nil
}

func (q OutcomeQuery) where() (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if op := strings.TrimSpace(q.Operation); op != "" {
		clauses = append(clauses, "operation = ?")
		args = append(args, op)
	}
	if outcome := strings.TrimSpace(q.Outcome); outcome != "" {
		clauses = append(clauses, "outcome = ?")
		args = append(args, outcome)
	}
	if !q.Since.IsZero() {
		clauses = append(clauses, "created_at >= ?")
		args = append(args, q.Since.UnixMilli())
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return "\n\t\tWHERE " + strings.Join(clauses, " AND "), args
}
