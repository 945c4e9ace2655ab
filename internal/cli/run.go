package cli

import (
	"github.com/spf13/cobra"

	"flightwatch/internal/app"
)

var runDryRun bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute one fetch-evaluate-alert cycle and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Run(cmd.Context(), app.RunOptions{DryRun: runDryRun})
	},
}

func init() {
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "Print alerts to stdout instead of sending them")
}
