package source

import (
	"context"

	"flightwatch/internal/config"
	"flightwatch/internal/flight"
)

// Static returns canned records. It backs the simulate command and tests.
type Static struct {
	SourceName   string
	SourceCcy    string
	Records      []flight.PriceRecord
	Err          error
	FetchedCalls int
}

// NewStatic builds a static connector emitting the given records.
func NewStatic(name, currency string, records ...flight.PriceRecord) *Static {
	return &Static{SourceName: name, SourceCcy: currency, Records: records}
}

// Name implements Source.
func (s *Static) Name() string { return s.SourceName }

// Currency implements Source.
func (s *Static) Currency() string { return s.SourceCcy }

// Fetch implements Source.
func (s *Static) Fetch(ctx context.Context, route config.Route) ([]flight.PriceRecord, error) {
	s.FetchedCalls++
	if s.Err != nil {
		return nil, s.Err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.Records, nil
}

var _ Source = (*Static)(nil)
