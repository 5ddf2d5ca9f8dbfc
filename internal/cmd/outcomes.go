package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/careerlens/careerlens/internal/analysis"
	apperrors "github.com/careerlens/careerlens/internal/errors"
	"github.com/careerlens/careerlens/internal/inference"
	"github.com/careerlens/careerlens/internal/observability"
	"github.com/careerlens/careerlens/internal/store"
)

var (
	outcomesOperation string
	outcomesStatus    string
	outcomesSince     time.Duration
	outcomesLimit     int
	outcomesFormat    string
	outcomesSummary   bool
	pruneOlderThan    time.Duration
)

var outcomesCmd = &cobra.Command{
	Use:   "outcomes",
	Short: "Inspect the inference outcome log",
	Long:  "Inspect and prune the inference outcome log written by serve when store.enabled is set.",
}

var outcomesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent outcomes",
	Example: `  careerlens outcomes list --operation cover-letter --outcome fallback
  careerlens outcomes list --since 24h --summary`,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := parseFormat(outcomesFormat)
		if err != nil {
			return apperrors.WrapInvalidInput(cmd.Context(), err, "invalid --format")
		}
		query, err := outcomeQuery(outcomesOperation, outcomesStatus, outcomesSince, outcomesLimit, time.Now())
		if err != nil {
			return apperrors.WrapInvalidInput(cmd.Context(), err, "invalid filter")
		}

		db := mustOpenStore(cmd)
		defer func() { _ = db.Close() }()

		if outcomesSummary {
			counts, err := db.CountOutcomes(cmd.Context(), query)
			if err != nil {
				return apperrors.WrapDatabaseError(cmd.Context(), err, "count outcomes")
			}
			return renderCounts(cmd.OutOrStdout(), format, counts)
		}

		outcomes, err := db.ListOutcomes(cmd.Context(), query)
		if err != nil {
			return apperrors.WrapDatabaseError(cmd.Context(), err, "list outcomes")
		}
		return renderOutcomes(cmd.OutOrStdout(), format, outcomes)
	},
}

var outcomesPruneCmd = &cobra.Command{
	Use:     "prune",
	Short:   "Delete outcomes older than a given age",
	Example: "  careerlens outcomes prune --older-than 720h",
	RunE: func(cmd *cobra.Command, args []string) error {
		if pruneOlderThan <= 0 {
			return apperrors.NewInvalidInputError("--older-than must be positive")
		}

		db := mustOpenStore(cmd)
		defer func() { _ = db.Close() }()

		cutoff := time.Now().UTC().Add(-pruneOlderThan)
		removed, err := db.PruneOutcomes(cmd.Context(), cutoff)
		if err != nil {
			return apperrors.WrapDatabaseError(cmd.Context(), err, "prune outcomes")
		}
		observability.CLILogger.Debug("Pruned outcomes", zap.Int64("removed", removed), zap.Time("cutoff", cutoff))
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "Removed %d outcomes older than %s\n", removed, cutoff.Format(time.RFC3339))
		return err
	},
}

// outcomeQuery validates list filters. since is relative to now; zero keeps
// every age.
func outcomeQuery(operation, outcome string, since time.Duration, limit int, now time.Time) (store.OutcomeQuery, error) {
	q := store.OutcomeQuery{Limit: limit}

	if strings.TrimSpace(operation) != "" {
		op, err := analysis.ParseOperation(operation)
		if err != nil {
			return q, err
		}
		q.Operation = string(op)
	}

	switch status := inference.Status(strings.ToLower(strings.TrimSpace(outcome))); status {
	case "":
	case inference.StatusSuccess, inference.StatusFallback:
		q.Outcome = string(status)
	default:
		return q, fmt.Errorf("unknown outcome %q (use success or fallback)", outcome)
	}

	if since < 0 {
		return q, fmt.Errorf("--since must not be negative")
	}
	if since > 0 {
		q.Since = now.UTC().Add(-since)
	}
	if limit < 0 {
		return q, fmt.Errorf("--limit must not be negative")
	}
	return q, nil
}

// mustOpenStore opens the outcome store or exits; the log only exists when
// the store is configured.
func mustOpenStore(cmd *cobra.Command) *store.Store {
	cfg, err := loadConfig()
	if err != nil {
		ExitWithCode(observability.CLILogger, foundry.ExitConfigInvalid, "Invalid configuration", err)
	}
	if !cfg.Store.Enabled {
		ExitWithCode(observability.CLILogger, foundry.ExitConfigInvalid, "Outcome store is disabled",
			apperrors.NewInvalidInputError("set store.enabled (CAREERLENS_STORE_ENABLED=true) to record outcomes"))
	}

	db, err := openStore(cmd.Context(), cfg.Store)
	if err != nil {
		ExitWithCode(observability.CLILogger, foundry.ExitFileNotFound, "Failed to open outcome store", err)
	}
	return db
}

func init() {
	rootCmd.AddCommand(outcomesCmd)
	outcomesCmd.AddCommand(outcomesListCmd, outcomesPruneCmd)

	outcomesListCmd.Flags().StringVar(&outcomesOperation, "operation", "", "filter by operation")
	outcomesListCmd.Flags().StringVar(&outcomesStatus, "outcome", "", "filter by outcome: success or fallback")
	outcomesListCmd.Flags().DurationVar(&outcomesSince, "since", 0, "only outcomes newer than this age (e.g. 24h)")
	outcomesListCmd.Flags().IntVar(&outcomesLimit, "limit", store.DefaultListLimit, "maximum rows to list")
	outcomesListCmd.Flags().StringVar(&outcomesFormat, "format", "table", "output format: table or json")
	outcomesListCmd.Flags().BoolVar(&outcomesSummary, "summary", false, "print counts per operation and outcome")

	outcomesPruneCmd.Flags().DurationVar(&pruneOlderThan, "older-than", 0, "delete outcomes older than this age (e.g. 720h)")
	_ = outcomesPruneCmd.MarkFlagRequired("older-than")
}
