package cmd

import (
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"

	"github.com/careerlens/careerlens/internal/analysis"
	apperrors "github.com/careerlens/careerlens/internal/errors"
	"github.com/careerlens/careerlens/internal/observability"
)

var operationsFormat string

var operationsCmd = &cobra.Command{
	Use:   "operations",
	Short: "Print the active operation policies",
	Long:  "Print the per-operation admission and inference bounds after config overrides are applied.",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := parseFormat(operationsFormat)
		if err != nil {
			return apperrors.WrapInvalidInput(cmd.Context(), err, "invalid --format")
		}

		cfg, err := loadConfig()
		if err != nil {
			ExitWithCode(observability.CLILogger, foundry.ExitConfigInvalid, "Invalid configuration", err)
			return nil
		}
		table, err := cfg.Policies()
		if err != nil {
			return apperrors.Wrap(cmd.Context(), apperrors.CodeConfigInvalid, err, "invalid operation overrides")
		}
		return renderPolicies(cmd.OutOrStdout(), format, analysis.NewPolicies(table).All())
	},
}

func init() {
	rootCmd.AddCommand(operationsCmd)
	operationsCmd.Flags().StringVar(&operationsFormat, "format", "table", "output format: table or json")
}
