package cli

import (
	"github.com/spf13/cobra"
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "List the alert ledger entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().ShowLedger()
	},
}
