package cli

import (
	"github.com/spf13/cobra"
)

var routesCmd = &cobra.Command{
	Use:   "routes",
	Short: "List the configured routes",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().ShowRoutes()
	},
}
