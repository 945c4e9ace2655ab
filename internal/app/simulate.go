package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"flightwatch/internal/checker"
	"flightwatch/internal/config"
	"flightwatch/internal/engine"
	"flightwatch/internal/flight"
	"flightwatch/internal/source"
)

// SimulateOptions describe a synthetic price observation injected into the
// pipeline. The observation flows through the checker, the ledger and the
// notifier exactly like a fetched one.
type SimulateOptions struct {
	Origin      string
	Destination string
	Airline     string
	Date        string
	Price       float64
	Currency    string
	DryRun      bool
}

// Simulate runs one cycle against a synthetic record instead of the live
// connectors. Useful for verifying alert delivery and ledger behaviour.
func (a *App) Simulate(ctx context.Context, opts SimulateOptions) error {
	origin := strings.ToUpper(opts.Origin)
	destination := strings.ToUpper(opts.Destination)

	route, err := a.findRoute(origin, destination)
	if err != nil {
		return err
	}

	notifier, nerr := a.newNotifier(opts.DryRun)
	if nerr != nil {
		return nerr
	}

	record := flight.PriceRecord{
		Source:      "simulated",
		Airline:     opts.Airline,
		Origin:      origin,
		Destination: destination,
		Date:        opts.Date,
		Price:       decimal.NewFromFloat(opts.Price),
		Currency:    strings.ToUpper(opts.Currency),
		FetchedAt:   time.Now().UTC(),
	}

	registry := source.Registry{
		"simulated": source.NewStatic("simulated", record.Currency, record),
	}

	simRoute := *route
	simRoute.Sources = []string{"simulated"}

	coordinator := engine.NewCoordinator(registry, a.Config.Settings, a.Logger)
	chk := checker.New(a.Config.Settings, a.Logger)
	led := a.openLedger()
	eng := engine.New(coordinator, chk, led, notifier, registry, []config.Route{simRoute}, a.Logger)

	summary, err := eng.RunCycle(ctx)
	if err != nil {
		return err
	}

	a.Logger.Info().
		Int("emitted", summary.Emitted).
		Int("suppressed", summary.Suppressed).
		Msg("simulation finished")

	if summary.Emitted == 0 {
		fmt.Println("no alert emitted (above threshold or suppressed by the ledger)")
	}
	return nil
}

func (a *App) findRoute(origin, destination string) (*config.Route, error) {
	for i := range a.Config.Routes {
		r := &a.Config.Routes[i]
		if r.Origin == origin && r.Destination == destination {
			return r, nil
		}
	}
	return nil, fmt.Errorf("route %s-%s is not configured", origin, destination)
}
