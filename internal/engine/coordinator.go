package engine

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"flightwatch/internal/config"
	"flightwatch/internal/flight"
	"flightwatch/internal/source"
)

// Coordinator runs connectors for all configured routes with bounded
// concurrency, a per-call timeout, and fault isolation. One failed
// (route, source) pair contributes zero records; nothing aborts the run.
type Coordinator struct {
	registry source.Registry
	limit    int
	timeout  time.Duration
	logger   zerolog.Logger
}

// NewCoordinator constructs a fetch coordinator.
func NewCoordinator(registry source.Registry, settings config.Settings, logger zerolog.Logger) *Coordinator {
	limit := settings.ConcurrencyLimit
	if limit <= 0 {
		limit = 2
	}
	timeout := settings.FetchTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}

	return &Coordinator{
		registry: registry,
		limit:    limit,
		timeout:  timeout,
		logger:   logger.With().Str("component", "coordinator").Logger(),
	}
}

// FetchAll gathers every record obtainable in one run. Routes are
// processed concurrently up to the configured limit; a route iterates
// its sources in order. Output order carries no meaning.
func (c *Coordinator) FetchAll(ctx context.Context, routes []config.Route) []flight.PriceRecord {
	var (
		mu  sync.Mutex
		all []flight.PriceRecord
	)

	var g errgroup.Group
	g.SetLimit(c.limit)

	for _, route := range routes {
		route := route
		g.Go(func() error {
			records := c.fetchRoute(ctx, route)
			mu.Lock()
			all = append(all, records...)
			mu.Unlock()
			return nil
		})
	}

	// Workers never return errors; failures are isolated per pair.
	_ = g.Wait()

	deduped := dedupeRecords(all)
	c.logger.Info().
		Int("routes", len(routes)).
		Int("records", len(deduped)).
		Msg("fetch cycle complete")
	return deduped
}

func (c *Coordinator) fetchRoute(ctx context.Context, route config.Route) []flight.PriceRecord {
	c.logger.Info().
		Str("route", route.Key()).
		Strs("sources", route.Sources).
		Msg("processing route")

	var records []flight.PriceRecord
	for _, name := range route.Sources {
		src, ok := c.registry[name]
		if !ok {
			// Config validation makes this unreachable; belt and braces.
			c.logger.Warn().Str("source", name).Msg("no connector registered")
			continue
		}

		got, err := c.fetchOne(ctx, src, route)
		if err != nil {
			c.logger.Warn().Err(err).
				Str("source", name).
				Str("route", route.Key()).
				Msg("source fetch failed, continuing")
		}
		records = append(records, got...)

		if ctx.Err() != nil {
			break
		}
	}
	return records
}

// fetchOne bounds a single connector call with the per-call timeout.
// Partial results returned alongside an error are kept.
func (c *Coordinator) fetchOne(ctx context.Context, src source.Source, route config.Route) ([]flight.PriceRecord, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	return src.Fetch(callCtx, route)
}

// dedupeRecords collapses duplicates by (source, origin, destination,
// date), keeping the lower price. A single source scanning overlapping
// windows collapses; distinct sources quoting the same flight stay apart.
func dedupeRecords(records []flight.PriceRecord) []flight.PriceRecord {
	index := make(map[string]int, len(records))
	out := make([]flight.PriceRecord, 0, len(records))

	for _, rec := range records {
		key := rec.Source + "|" + rec.RouteKey()
		if i, ok := index[key]; ok {
			// A priceless record never shadows a usable quote.
			if rec.Price.Sign() > 0 && (out[i].Price.Sign() <= 0 || rec.Price.LessThan(out[i].Price)) {
				out[i] = rec
			}
			continue
		}
		index[key] = len(out)
		out = append(out, rec)
	}
	return out
}
