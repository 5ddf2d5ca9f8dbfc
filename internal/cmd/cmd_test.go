package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careerlens/careerlens/internal/analysis"
	"github.com/careerlens/careerlens/internal/document"
	apperrors "github.com/careerlens/careerlens/internal/errors"
	"github.com/careerlens/careerlens/internal/inference"
	"github.com/careerlens/careerlens/internal/inference/driver"
	"github.com/careerlens/careerlens/internal/store"
)

type stubDriver struct {
	text string
	err  error
	last *driver.Request
}

func (d *stubDriver) Name() string { return "stub" }

func (d *stubDriver) Complete(_ context.Context, req *driver.Request) (*driver.Response, error) {
	d.last = req
	if d.err != nil {
		return nil, d.err
	}
	return &driver.Response{Text: d.text}, nil
}

func newService(drv driver.Driver) *analysis.Service {
	return analysis.NewService(inference.NewGateway(drv, "stub-model"), analysis.NewPolicies(nil))
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestParseFormat(t *testing.T) {
	for input, want := range map[string]outputFormat{"": formatTable, "table": formatTable, " JSON ": formatJSON} {
		got, err := parseFormat(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, got, input)
	}

	_, err := parseFormat("yaml")
	assert.Error(t, err)
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "", formatValue(nil))
	assert.Equal(t, "72.5", formatValue(72.5))
	assert.Equal(t, "true", formatValue(true))
	assert.Equal(t, "Go\nSQL", formatValue([]any{"Go", "SQL"}))
	assert.Equal(t, "company: Acme; title: Engineer", formatValue(map[string]any{"title": "Engineer", "company": "Acme", "end": ""}))
}

func TestFlattenSortsFields(t *testing.T) {
	fields, err := flatten(analysis.ProfileDetection{Kind: "cv", Confidence: 0.9, Language: "en"})
	require.NoError(t, err)

	names := make([]string, 0, len(fields))
	for _, f := range fields {
		names = append(names, f.name)
	}
	assert.Equal(t, []string{"confidence", "kind", "language", "reason"}, names)
	assert.Equal(t, "0.9", fields[0].value)
}

func TestFlattenRejectsNonObject(t *testing.T) {
	_, err := flatten([]string{"a"})
	assert.Error(t, err)
}

func TestRenderAnalysisJSON(t *testing.T) {
	var buf bytes.Buffer
	err := renderAnalysis(&buf, formatJSON, analysisReport{
		Operation: analysis.OpDetectProfile,
		Outcome:   "fallback",
		Reason:    "timeout",
		LatencyMs: 42,
		Result:    analysis.ProfileDetection{Kind: "unknown"},
	})
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "detect-profile", decoded["operation"])
	assert.Equal(t, "fallback", decoded["outcome"])
	assert.Equal(t, "timeout", decoded["reason"])
	assert.EqualValues(t, 42, decoded["latency_ms"])
	assert.Equal(t, "unknown", decoded["result"].(map[string]any)["kind"])
}

func TestRenderAnalysisTable(t *testing.T) {
	var buf bytes.Buffer
	err := renderAnalysis(&buf, formatTable, analysisReport{
		Operation: analysis.OpMatchJob,
		Outcome:   "success",
		LatencyMs: 120,
		Result:    analysis.JobMatch{Score: 81, Verdict: "strong", MatchedSkills: []string{"Go"}},
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "match-job (success)")
	assert.Contains(t, out, "matched_skills")
	assert.Contains(t, out, "strong")
	assert.Contains(t, out, "120ms")
}

func TestRenderPolicies(t *testing.T) {
	entries := analysis.NewPolicies(nil).All()

	var buf bytes.Buffer
	require.NoError(t, renderPolicies(&buf, formatTable, entries))
	for _, op := range analysis.Operations {
		assert.Contains(t, buf.String(), string(op))
	}

	buf.Reset()
	require.NoError(t, renderPolicies(&buf, formatJSON, entries))
	var decoded struct {
		Operations []map[string]any `json:"operations"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Len(t, decoded.Operations, len(analysis.Operations))
}

func TestRenderOutcomes(t *testing.T) {
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	outcomes := []store.Outcome{
		{RequestID: "req-1", Operation: "parse-cv", Outcome: "success", LatencyMs: 800, Model: "gpt-4o-mini", At: at},
		{RequestID: "req-2", Operation: "cover-letter", Outcome: "fallback", Reason: "timeout", LatencyMs: 30000, At: at},
	}

	var buf bytes.Buffer
	require.NoError(t, renderOutcomes(&buf, formatTable, outcomes))
	out := buf.String()
	assert.Contains(t, out, "2025-03-01T12:00:00Z")
	assert.Contains(t, out, "timeout")
	assert.Contains(t, out, "2 outcomes")

	buf.Reset()
	require.NoError(t, renderOutcomes(&buf, formatJSON, nil))
	assert.Equal(t, "[]", strings.TrimSpace(buf.String()))
}

func TestRenderCountsTotal(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, renderCounts(&buf, formatTable, []store.OutcomeCount{
		{Operation: "parse-cv", Outcome: "success", Count: 7},
		{Operation: "parse-cv", Outcome: "fallback", Count: 2},
	}))
	assert.Contains(t, buf.String(), "9")
}

func TestOutcomeQuery(t *testing.T) {
	now := time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC)

	q, err := outcomeQuery("Cover-Letter", "FALLBACK", 24*time.Hour, 10, now)
	require.NoError(t, err)
	assert.Equal(t, "cover-letter", q.Operation)
	assert.Equal(t, "fallback", q.Outcome)
	assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), q.Since)
	assert.Equal(t, 10, q.Limit)

	q, err = outcomeQuery("", "", 0, 0, now)
	require.NoError(t, err)
	assert.Equal(t, store.OutcomeQuery{}, q)

	_, err = outcomeQuery("translate", "", 0, 0, now)
	assert.Error(t, err)
	_, err = outcomeQuery("", "maybe", 0, 0, now)
	assert.Error(t, err)
	_, err = outcomeQuery("", "", -time.Hour, 0, now)
	assert.Error(t, err)
	_, err = outcomeQuery("", "", 0, -1, now)
	assert.Error(t, err)
}

func TestReadDocument(t *testing.T) {
	path := writeFile(t, "cv.txt", "Jane Doe\n\n\n\nGo engineer")
	text, err := readDocument(document.NewExtractor(document.Limits{}), nil, path)
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe\n\nGo engineer", text)

	text, err = readDocument(nil, strings.NewReader("from stdin"), "-")
	require.NoError(t, err)
	assert.Equal(t, "from stdin", text)

	_, err = readDocument(nil, nil, filepath.Join(t.TempDir(), "missing.pdf"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestRunAnalysisDetectProfile(t *testing.T) {
	drv := &stubDriver{text: `{"kind":"job_description","confidence":0.8,"language":"en","reason":"requirements list"}`}
	path := writeFile(t, "posting.txt", "We are hiring a Go engineer")

	report, err := runAnalysis(context.Background(), newService(drv), nil, nil, analysis.OpDetectProfile, analyzeOptions{text: path})
	require.NoError(t, err)

	assert.Equal(t, analysis.OpDetectProfile, report.Operation)
	assert.Equal(t, "success", report.Outcome)
	assert.Empty(t, report.Reason)
	result, ok := report.Result.(analysis.ProfileDetection)
	require.True(t, ok)
	assert.Equal(t, "job_description", result.Kind)
	require.NotNil(t, drv.last)
	assert.Equal(t, "detect-profile", drv.last.Operation)
}

func TestRunAnalysisFallsBackOnProviderError(t *testing.T) {
	drv := &stubDriver{err: errors.New("connection refused")}
	cv := writeFile(t, "cv.txt", "Jane Doe, Go engineer")
	job := writeFile(t, "job.txt", "Go engineer wanted")

	report, err := runAnalysis(context.Background(), newService(drv), nil, nil, analysis.OpMatchJob, analyzeOptions{cv: cv, job: job})
	require.NoError(t, err)

	assert.Equal(t, "fallback", report.Outcome)
	assert.Equal(t, string(inference.ReasonTransportError), report.Reason)
	result, ok := report.Result.(analysis.JobMatch)
	require.True(t, ok)
	assert.Equal(t, "unavailable", result.Verdict)
}

func TestRunAnalysisRejectsMissingInput(t *testing.T) {
	drv := &stubDriver{text: "{}"}
	cv := writeFile(t, "cv.txt", "Jane Doe")

	_, err := runAnalysis(context.Background(), newService(drv), nil, nil, analysis.OpCoverLetter, analyzeOptions{cv: cv})
	require.Error(t, err)
	assert.True(t, analysis.IsInputError(err))
	assert.Nil(t, drv.last)
}

func TestRunAnalysisReportsFlagOnReadError(t *testing.T) {
	_, err := runAnalysis(context.Background(), newService(&stubDriver{}), nil, nil, analysis.OpParseCV,
		analyzeOptions{cv: filepath.Join(t.TempDir(), "nope.txt")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--cv")
}

func TestLoadEnvFile(t *testing.T) {
	assert.NoError(t, loadEnvFile(""))
	assert.NoError(t, loadEnvFile(filepath.Join(t.TempDir(), "absent.env")))

	t.Setenv("CAREERLENS_TEST_PRESET", "kept")
	path := writeFile(t, ".env", "CAREERLENS_TEST_PRESET=overwritten\nCAREERLENS_TEST_FROM_FILE=loaded\n")
	t.Setenv("CAREERLENS_TEST_FROM_FILE", "")
	require.NoError(t, os.Unsetenv("CAREERLENS_TEST_FROM_FILE"))

	require.NoError(t, loadEnvFile(path))
	assert.Equal(t, "kept", os.Getenv("CAREERLENS_TEST_PRESET"))
	assert.Equal(t, "loaded", os.Getenv("CAREERLENS_TEST_FROM_FILE"))
}

func TestWriteFatal(t *testing.T) {
	info, ok := foundry.GetExitCodeInfo(foundry.ExitConfigInvalid)
	require.True(t, ok)

	var buf bytes.Buffer
	code := writeFatal(&buf, foundry.ExitConfigInvalid, "Invalid configuration", errors.New("bad port"))
	assert.Equal(t, info.Code, code)
	assert.Contains(t, buf.String(), "FATAL: Invalid configuration: bad port")
	assert.Contains(t, buf.String(), info.Name)

	buf.Reset()
	envelope := apperrors.NewInvalidInputError("--older-than must be positive")
	writeFatal(&buf, foundry.ExitFailure, "Command execution failed", envelope)
	assert.Contains(t, buf.String(), "[INVALID_INPUT]")
	assert.Contains(t, buf.String(), "--older-than must be positive")
}

func TestWriteVersion(t *testing.T) {
	SetVersionInfo("1.2.3", "abc123", "2025-03-01")

	var buf bytes.Buffer
	writeVersion(&buf, "careerlens", false)
	assert.Equal(t, "careerlens 1.2.3\n", buf.String())

	buf.Reset()
	writeVersion(&buf, "careerlens", true)
	assert.Contains(t, buf.String(), "Commit: abc123")
	assert.Contains(t, buf.String(), "Gofulmen:")
}

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "version", "analyze", "outcomes", "operations"} {
		assert.True(t, names[want], want)
	}
	assert.NotNil(t, GetAppIdentity())
}
