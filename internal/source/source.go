package source

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"flightwatch/internal/config"
	"flightwatch/internal/flight"
)

// Source is the capability a flight price provider exposes to the fetch
// coordinator. Implementations fail soft: transient trouble inside a scan
// yields partial results and a warn log, not an error. An error return
// means the whole call produced nothing usable.
type Source interface {
	// Name is the stable source identifier referenced by route config.
	Name() string
	// Currency is the currency this source declares for its records.
	Currency() string
	// Fetch returns all price records obtainable for the route.
	Fetch(ctx context.Context, route config.Route) ([]flight.PriceRecord, error)
}

// CredentialReporter is implemented by sources whose upstream credential
// can be revoked mid-flight (Sky's public APIM key). The pipeline checks
// it after a run to tell the operator once instead of failing silently.
type CredentialReporter interface {
	KeyFailed() bool
}

// Registry maps source identifiers to connectors.
type Registry map[string]Source

// NewRegistry builds connectors for every supported source identifier.
// Each connector owns one rate limiter shared across routes, so pacing
// against a provider holds even when routes are fetched concurrently.
func NewRegistry(settings config.Settings, logger zerolog.Logger) Registry {
	level := NewLevel(LevelOptions{
		UserAgent:    settings.UserAgent,
		RequestDelay: settings.RequestDelay,
	}, logger)

	sky := NewSky(SkyOptions{
		UserAgent:    settings.UserAgent,
		RequestDelay: settings.RequestDelay,
	}, logger)

	google := NewGoogleFlights(GoogleFlightsOptions{
		UserAgent:           settings.UserAgent,
		RequestDelay:        settings.RequestDelay,
		TripDurationMinDays: settings.TripDurationMinDays,
		TripDurationMaxDays: settings.TripDurationMaxDays,
	}, logger)

	return Registry{
		level.Name():  level,
		sky.Name():    sky,
		google.Name(): google,
	}
}

// pacer builds the shared per-source limiter. A zero delay disables pacing.
func pacer(delay time.Duration) *rate.Limiter {
	if delay <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(delay), 1)
}

// monthWindow is one (year, month) pair of a forward scan.
type monthWindow struct {
	year  int
	month time.Month
}

// monthsFrom lists n consecutive calendar months starting at t's month.
func monthsFrom(t time.Time, n int) []monthWindow {
	windows := make([]monthWindow, 0, n)
	y, m, _ := t.Date()
	for i := 0; i < n; i++ {
		month := int(m) + i
		year := y + (month-1)/12
		month = (month-1)%12 + 1
		windows = append(windows, monthWindow{year: year, month: time.Month(month)})
	}
	return windows
}
