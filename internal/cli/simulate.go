package cli

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"flightwatch/internal/app"
)

var (
	simulateOrigin      string
	simulateDestination string
	simulateAirline     string
	simulateDate        string
	simulatePrice       float64
	simulateCurrency    string
	simulateDryRun      bool
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Inject a synthetic price observation into the pipeline",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateOrigin == "" || simulateDestination == "" {
			return errors.New("--origin and --destination are required")
		}
		if simulatePrice <= 0 {
			return errors.New("--price must be greater than 0")
		}

		return getApp().Simulate(cmd.Context(), app.SimulateOptions{
			Origin:      simulateOrigin,
			Destination: simulateDestination,
			Airline:     simulateAirline,
			Date:        simulateDate,
			Price:       simulatePrice,
			Currency:    simulateCurrency,
			DryRun:      simulateDryRun,
		})
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateOrigin, "origin", "", "Origin airport code")
	simulateCmd.Flags().StringVar(&simulateDestination, "destination", "", "Destination airport code")
	simulateCmd.Flags().StringVar(&simulateAirline, "airline", "Simulated", "Airline name")
	simulateCmd.Flags().StringVar(&simulateDate, "date", time.Now().AddDate(0, 1, 0).Format("2006-01-02"), "Departure date (YYYY-MM-DD)")
	simulateCmd.Flags().Float64Var(&simulatePrice, "price", 0, "Observed price")
	simulateCmd.Flags().StringVar(&simulateCurrency, "currency", "USD", "Price currency")
	simulateCmd.Flags().BoolVar(&simulateDryRun, "dry-run", false, "Print alerts to stdout instead of sending them")
}
