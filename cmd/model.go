package cmd

import (
	"github.com/attendrisk/attendrisk/core"
	"github.com/attendrisk/attendrisk/internal/contract"
	"github.com/spf13/cobra"
)

// modelCmd displays the active risk model.
var modelCmd = &cobra.Command{
	Use:   "model",
	Short: "Display the weights, formula and cutoffs of the risk model",
	Long: `Show the rule model that scores students: one weight per feature, the bias,
the logistic formula, the label cutoffs and the required attendance.

Custom weights from .attendrisk.yaml are shown when configured.
No attendance input is read - this is purely informational.

Examples:
  # Show the default model
  attendrisk model

  # View with custom weights from a config file
  attendrisk model --config term.yaml --output json`,
	Args:    cobra.NoArgs,
	PreRunE: sharedSetupWrapper,
	Run: func(_ *cobra.Command, _ []string) {
		if err := core.ExecuteModel(rootCtx, cfg, historyManager); err != nil {
			contract.LogFatal("Cannot display model", err)
		}
	},
}
