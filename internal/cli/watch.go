package cli

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"flightwatch/internal/app"
)

var (
	watchInterval time.Duration
	watchDryRun   bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run cycles continuously on a fixed interval",
	RunE: func(cmd *cobra.Command, args []string) error {
		if watchInterval <= 0 {
			return errors.New("--interval must be positive")
		}
		return getApp().Watch(cmd.Context(), app.WatchOptions{
			Interval: watchInterval,
			DryRun:   watchDryRun,
		})
	},
}

func init() {
	watchCmd.Flags().DurationVar(&watchInterval, "interval", time.Hour, "Time between cycles")
	watchCmd.Flags().BoolVar(&watchDryRun, "dry-run", false, "Print alerts to stdout instead of sending them")
}
