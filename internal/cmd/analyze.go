package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/careerlens/careerlens/internal/analysis"
	"github.com/careerlens/careerlens/internal/document"
	apperrors "github.com/careerlens/careerlens/internal/errors"
	"github.com/careerlens/careerlens/internal/inference"
	"github.com/careerlens/careerlens/internal/observability"
)

type analyzeOptions struct {
	cv       string
	job      string
	text     string
	tone     string
	focus    string
	language string
	format   string
}

var analyzeOpts analyzeOptions

var analyzeCmd = &cobra.Command{
	Use:   "analyze <operation>",
	Short: "Run one analysis locally",
	Long: `Run one analysis operation against the configured provider and print the
result. Admission limits do not apply; the operation's deadline, token and
input bounds do.

Operations: parse-cv, match-job, cover-letter, detect-profile, rewrite-cv

Files may be PDF, DOCX or plain text. Use - to read from stdin.`,
	Example: `  careerlens analyze parse-cv --cv resume.pdf
  careerlens analyze match-job --cv resume.docx --job posting.txt --format json
  careerlens analyze cover-letter --cv resume.pdf --job posting.txt --tone concise --language fr`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		op, err := analysis.ParseOperation(args[0])
		if err != nil {
			return apperrors.WrapInvalidInput(cmd.Context(), err, "unknown operation")
		}
		format, err := parseFormat(analyzeOpts.format)
		if err != nil {
			return apperrors.WrapInvalidInput(cmd.Context(), err, "invalid --format")
		}

		cfg, err := loadConfig()
		if err != nil {
			ExitWithCode(observability.CLILogger, foundry.ExitConfigInvalid, "Invalid configuration", err)
			return nil
		}

		svc, err := buildServices(cmd.Context(), cfg, observability.CLILogger, false)
		if err != nil {
			ExitWithCode(observability.CLILogger, foundry.ExitConfigInvalid, "Inference is not configured", err)
			return nil
		}
		defer svc.Close(context.Background())

		report, err := runAnalysis(cmd.Context(), svc.service, svc.extractor, cmd.InOrStdin(), op, analyzeOpts)
		if err != nil {
			return err
		}
		if report.Outcome == string(inference.StatusFallback) {
			observability.CLILogger.Warn("Provider call fell back",
				zap.String("operation", string(op)),
				zap.String("reason", report.Reason))
		}
		return renderAnalysis(cmd.OutOrStdout(), format, report)
	},
}

// runAnalysis reads the documents op needs and performs one gateway call.
func runAnalysis(ctx context.Context, svc *analysis.Service, extractor *document.Extractor, stdin io.Reader, op analysis.Operation, opts analyzeOptions) (analysisReport, error) {
	read := func(flag, path string) (string, error) {
		if strings.TrimSpace(path) == "" {
			return "", nil
		}
		text, err := readDocument(extractor, stdin, path)
		if err != nil {
			return "", fmt.Errorf("--%s: %w", flag, err)
		}
		return text, nil
	}

	cv, err := read("cv", opts.cv)
	if err != nil {
		return analysisReport{}, err
	}
	job, err := read("job", opts.job)
	if err != nil {
		return analysisReport{}, err
	}
	text, err := read("text", opts.text)
	if err != nil {
		return analysisReport{}, err
	}

	requestID := uuid.NewString()
	switch op {
	case analysis.OpParseCV:
		if text == "" {
			text = cv
		}
		out, err := svc.ParseCV(ctx, analysis.ParseCVInput{Text: text, Language: opts.language}, requestID)
		return toReport(op, out, err)
	case analysis.OpMatchJob:
		out, err := svc.MatchJob(ctx, analysis.MatchJobInput{CVText: cv, JobText: job, Language: opts.language}, requestID)
		return toReport(op, out, err)
	case analysis.OpCoverLetter:
		out, err := svc.CoverLetter(ctx, analysis.CoverLetterInput{CVText: cv, JobText: job, Tone: opts.tone, Language: opts.language}, requestID)
		return toReport(op, out, err)
	case analysis.OpDetectProfile:
		if text == "" {
			text = firstNonEmpty(cv, job)
		}
		out, err := svc.DetectProfile(ctx, analysis.DetectProfileInput{Text: text}, requestID)
		return toReport(op, out, err)
	case analysis.OpRewriteCV:
		out, err := svc.RewriteCV(ctx, analysis.RewriteCVInput{CVText: cv, JobText: job, Focus: opts.focus, Language: opts.language}, requestID)
		return toReport(op, out, err)
	default:
		return analysisReport{}, fmt.Errorf("unknown operation %q", op)
	}
}

func toReport[T any](op analysis.Operation, out inference.Outcome[T], err error) (analysisReport, error) {
	if err != nil {
		return analysisReport{}, err
	}
	return analysisReport{
		Operation: op,
		Outcome:   string(out.Status),
		Reason:    string(out.Reason),
		LatencyMs: out.Latency.Milliseconds(),
		Result:    out.Value,
	}, nil
}

// readDocument extracts the text of path, or of stdin when path is "-".
func readDocument(extractor *document.Extractor, stdin io.Reader, path string) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", err
	}
	return extractor.Extract(filepath.Base(path), data)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func init() {
	rootCmd.AddCommand(analyzeCmd)

	analyzeCmd.Flags().StringVar(&analyzeOpts.cv, "cv", "", "CV file (pdf, docx or text)")
	analyzeCmd.Flags().StringVar(&analyzeOpts.job, "job", "", "job description file")
	analyzeCmd.Flags().StringVar(&analyzeOpts.text, "text", "", "free text file for parse-cv or detect-profile")
	analyzeCmd.Flags().StringVar(&analyzeOpts.tone, "tone", "", "cover letter tone: "+strings.Join(analysis.Tones, ", "))
	analyzeCmd.Flags().StringVar(&analyzeOpts.focus, "focus", "", "what a rewrite should emphasise")
	analyzeCmd.Flags().StringVar(&analyzeOpts.language, "language", "", "output language: en or fr")
	analyzeCmd.Flags().StringVar(&analyzeOpts.format, "format", "table", "output format: table or json")
}
