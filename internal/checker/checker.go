package checker

import (
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"flightwatch/internal/config"
	"flightwatch/internal/flight"
)

// Candidate is a record that passed threshold evaluation, carrying the
// matched route for downstream message construction.
type Candidate struct {
	Record flight.PriceRecord
	Route  config.Route
}

// Airports treated as interchangeable when resolving a record to a route.
// Sources sometimes answer with a sibling airport of the same city, e.g.
// Sky quoting AEP for a route configured as EZE.
var airportEquivalents = map[string][]string{
	"EZE": {"AEP"},
	"AEP": {"EZE"},
	"GIG": {"SDU"},
	"SDU": {"GIG"},
}

// Checker evaluates price records against route thresholds. It is pure:
// no I/O, no mutation of its inputs.
type Checker struct {
	settings config.Settings
	logger   zerolog.Logger
}

// New constructs a Checker.
func New(settings config.Settings, logger zerolog.Logger) *Checker {
	return &Checker{
		settings: settings,
		logger:   logger.With().Str("component", "checker").Logger(),
	}
}

// Filter resolves each record to its route and keeps those below
// threshold. Records for unknown routes are dropped.
func (c *Checker) Filter(records []flight.PriceRecord, routes []config.Route) []Candidate {
	lookup := make(map[string]config.Route, len(routes))
	for _, r := range routes {
		lookup[r.Key()] = r
	}

	candidates := make([]Candidate, 0)
	for _, rec := range records {
		route, ok := resolveRoute(rec, lookup)
		if !ok {
			continue
		}
		if cand := c.Evaluate(rec, route); cand != nil {
			candidates = append(candidates, *cand)
		}
	}

	c.logger.Info().
		Int("records", len(records)).
		Int("candidates", len(candidates)).
		Msg("threshold evaluation complete")
	return candidates
}

// Evaluate decides whether one record beats its route's threshold.
//
// Only same-currency threshold/price pairs are compared. The manual
// exchange rate is a deliberately separate, opt-in comparison path that
// runs in addition to the direct one, never instead of it: an implicit
// conversion would mask a stale configured rate.
func (c *Checker) Evaluate(rec flight.PriceRecord, route config.Route) *Candidate {
	if rec.Price.Sign() <= 0 {
		c.logger.Debug().
			Str("source", rec.Source).
			Str("route_key", rec.RouteKey()).
			Msg("discarding record without a usable price")
		return nil
	}

	if rec.Currency == flight.CurrencyUSD && route.ThresholdUSD != nil {
		if rec.Price.LessThanOrEqual(decimal.NewFromFloat(*route.ThresholdUSD)) {
			return &Candidate{Record: rec, Route: route}
		}
	}

	if rec.Currency == flight.CurrencyARS && route.ThresholdARS != nil {
		if rec.Price.LessThanOrEqual(decimal.NewFromFloat(*route.ThresholdARS)) {
			return &Candidate{Record: rec, Route: route}
		}
	}

	if c.settings.CrossCurrencyCheck && c.settings.ManualUSDToARS > 0 {
		rate := decimal.NewFromFloat(c.settings.ManualUSDToARS)

		if rec.Currency == flight.CurrencyUSD && route.ThresholdARS != nil {
			inARS := rec.Price.Mul(rate)
			if inARS.LessThanOrEqual(decimal.NewFromFloat(*route.ThresholdARS)) {
				c.logger.Debug().
					Str("route_key", rec.RouteKey()).
					Str("converted_ars", inARS.StringFixed(0)).
					Msg("record passed via manual rate conversion")
				return &Candidate{Record: rec, Route: route}
			}
		}

		if rec.Currency == flight.CurrencyARS && route.ThresholdUSD != nil {
			inUSD := rec.Price.Div(rate)
			if inUSD.LessThanOrEqual(decimal.NewFromFloat(*route.ThresholdUSD)) {
				c.logger.Debug().
					Str("route_key", rec.RouteKey()).
					Str("converted_usd", inUSD.StringFixed(0)).
					Msg("record passed via manual rate conversion")
				return &Candidate{Record: rec, Route: route}
			}
		}
	}

	return nil
}

func resolveRoute(rec flight.PriceRecord, lookup map[string]config.Route) (config.Route, bool) {
	if route, ok := lookup[rec.Origin+"-"+rec.Destination]; ok {
		return route, true
	}

	for _, altOrigin := range airportEquivalents[rec.Origin] {
		if route, ok := lookup[altOrigin+"-"+rec.Destination]; ok {
			return route, true
		}
	}
	for _, altDest := range airportEquivalents[rec.Destination] {
		if route, ok := lookup[rec.Origin+"-"+altDest]; ok {
			return route, true
		}
	}

	return config.Route{}, false
}
