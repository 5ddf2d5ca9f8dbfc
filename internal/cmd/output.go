package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/careerlens/careerlens/internal/analysis"
	"github.com/careerlens/careerlens/internal/store"
)

// outputFormat selects how command results are printed.
type outputFormat string

const (
	formatTable outputFormat = "table"
	formatJSON  outputFormat = "json"
)

func parseFormat(value string) (outputFormat, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", string(formatTable):
		return formatTable, nil
	case string(formatJSON):
		return formatJSON, nil
	default:
		return "", fmt.Errorf("unsupported output format: %s (use table or json)", value)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	return t
}

// analysisReport is the printed result of one analyze run.
type analysisReport struct {
	Operation analysis.Operation `json:"operation"`
	Outcome   string             `json:"outcome"`
	Reason    string             `json:"reason,omitempty"`
	LatencyMs int64              `json:"latency_ms"`
	Result    any                `json:"result"`
}

func renderAnalysis(w io.Writer, format outputFormat, report analysisReport) error {
	if format == formatJSON {
		return writeJSON(w, report)
	}

	fields, err := flatten(report.Result)
	if err != nil {
		return err
	}

	t := newTable()
	t.SetTitle(fmt.Sprintf("%s (%s)", report.Operation, report.Outcome))
	t.AppendHeader(table.Row{"Field", "Value"})
	for _, f := range fields {
		t.AppendRow(table.Row{f.name, f.value})
	}
	footer := fmt.Sprintf("%dms", report.LatencyMs)
	if report.Reason != "" {
		footer = fmt.Sprintf("%s, %s", report.Reason, footer)
	}
	t.AppendFooter(table.Row{"", footer})

	_, err = fmt.Fprintln(w, t.Render())
	return err
}

type field struct {
	name  string
	value string
}

// flatten turns a result struct into ordered rows through its JSON form.
// Lists print one item per line; objects inside lists print as key: value
// pairs.
func flatten(v any) ([]field, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("result is not an object: %w", err)
	}

	names := make([]string, 0, len(obj))
	for name := range obj {
		names = append(names, name)
	}
	sort.Strings(names)

	fields := make([]field, 0, len(names))
	for _, name := range names {
		fields = append(fields, field{name: name, value: formatValue(obj[name])})
	}
	return fields, nil
}

func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case []any:
		lines := make([]string, 0, len(val))
		for _, item := range val {
			lines = append(lines, formatValue(item))
		}
		return strings.Join(lines, "\n")
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			if s := formatValue(val[k]); s != "" {
				parts = append(parts, fmt.Sprintf("%s: %s", k, strings.ReplaceAll(s, "\n", ", ")))
			}
		}
		return strings.Join(parts, "; ")
	default:
		return fmt.Sprint(val)
	}
}

func renderPolicies(w io.Writer, format outputFormat, entries []analysis.PolicyEntry) error {
	if format == formatJSON {
		return writeJSON(w, map[string]any{"operations": entries})
	}

	t := newTable()
	t.AppendHeader(table.Row{"Operation", "Limit", "Window", "Deadline", "Temperature", "Max Output Tokens", "Max Input Chars"})
	for _, e := range entries {
		t.AppendRow(table.Row{
			string(e.Operation),
			e.Limit,
			e.Window.String(),
			e.Deadline.String(),
			strconv.FormatFloat(e.Temperature, 'f', -1, 64),
			e.MaxOutputTokens,
			e.MaxInputChars,
		})
	}
	_, err := fmt.Fprintln(w, t.Render())
	return err
}

func renderOutcomes(w io.Writer, format outputFormat, outcomes []store.Outcome) error {
	if format == formatJSON {
		if outcomes == nil {
			outcomes = []store.Outcome{}
		}
		return writeJSON(w, outcomes)
	}

	t := newTable()
	t.AppendHeader(table.Row{"At", "Operation", "Outcome", "Reason", "Latency", "Model", "Request ID"})
	for _, o := range outcomes {
		t.AppendRow(table.Row{
			o.At.UTC().Format(time.RFC3339),
			o.Operation,
			o.Outcome,
			o.Reason,
			fmt.Sprintf("%dms", o.LatencyMs),
			o.Model,
			o.RequestID,
		})
	}
	t.AppendFooter(table.Row{"", "", "", "", "", "", fmt.Sprintf("%d outcomes", len(outcomes))})
	_, err := fmt.Fprintln(w, t.Render())
	return err
}

func renderCounts(w io.Writer, format outputFormat, counts []store.OutcomeCount) error {
	if format == formatJSON {
		if counts == nil {
			counts = []store.OutcomeCount{}
		}
		return writeJSON(w, counts)
	}

	t := newTable()
	t.AppendHeader(table.Row{"Operation", "Outcome", "Count"})
	var total int64
	for _, c := range counts {
		t.AppendRow(table.Row{c.Operation, c.Outcome, c.Count})
		total += c.Count
	}
	t.AppendFooter(table.Row{"", "Total", total})
	_, err := fmt.Fprintln(w, t.Render())
	return err
}
