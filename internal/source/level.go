package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"flightwatch/internal/config"
	"flightwatch/internal/flight"
)

const (
	levelCalendarPath = "/nwe/flights/api/calendar/"

	// Level quotes its long-haul calendar in USD; requesting anything
	// else silently falls back to EUR, so we pin the currency here.
	levelCurrency = flight.CurrencyUSD
)

// LevelOptions parameterise the Level calendar connector.
type LevelOptions struct {
	BaseURL      string
	Timeout      time.Duration
	UserAgent    string
	RequestDelay time.Duration
}

// Level fetches monthly fare calendars from the Level Airlines public API.
// The endpoint needs no authentication and returns one price per day.
type Level struct {
	opts    LevelOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
	limiter *rate.Limiter
	now     func() time.Time
}

// NewLevel constructs a Level connector.
func NewLevel(opts LevelOptions, logger zerolog.Logger) *Level {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://www.flylevel.com"
	}

	return &Level{
		opts:    opts,
		logger:  logger.With().Str("component", "source_level").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
		limiter: pacer(opts.RequestDelay),
		now:     time.Now,
	}
}

// Name implements Source.
func (l *Level) Name() string { return "level" }

// Currency implements Source.
func (l *Level) Currency() string { return levelCurrency }

// Fetch scans month by month from the current month up to the route's
// horizon. A failed month is logged and skipped; overlapping months are
// deduplicated by date.
func (l *Level) Fetch(ctx context.Context, route config.Route) ([]flight.PriceRecord, error) {
	windows := monthsFrom(l.now().UTC(), route.MonthsAhead)
	tripType := "RT"
	if !route.RoundTrip() {
		tripType = "OW"
	}

	l.logger.Info().
		Str("origin", route.Origin).
		Str("destination", route.Destination).
		Int("months", len(windows)).
		Msg("scanning fare calendar")

	records := make([]flight.PriceRecord, 0)
	seen := make(map[string]struct{})

	for _, w := range windows {
		if err := l.limiter.Wait(ctx); err != nil {
			return records, err
		}

		monthRecords, err := l.fetchMonth(ctx, route, w, tripType, seen)
		if err != nil {
			if ctx.Err() != nil {
				return records, ctx.Err()
			}
			l.logger.Warn().Err(err).
				Str("route", route.Key()).
				Int("year", w.year).
				Int("month", int(w.month)).
				Msg("month scan failed")
			continue
		}
		records = append(records, monthRecords...)
	}

	l.logger.Info().
		Str("route", route.Key()).
		Int("records", len(records)).
		Msg("fare calendar scan complete")
	return records, nil
}

func (l *Level) fetchMonth(ctx context.Context, route config.Route, w monthWindow, tripType string, seen map[string]struct{}) ([]flight.PriceRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.baseURL+levelCalendarPath, nil)
	if err != nil {
		return nil, err
	}

	q := req.URL.Query()
	q.Set("triptype", tripType)
	q.Set("origin", route.Origin)
	q.Set("destination", route.Destination)
	q.Set("month", strconv.Itoa(int(w.month)))
	q.Set("year", strconv.Itoa(w.year))
	q.Set("currencyCode", levelCurrency)
	q.Set("originType", "flights")
	req.URL.RawQuery = q.Encode()

	if ua := strings.TrimSpace(l.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("level api status %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var body levelCalendarResponse
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, fmt.Errorf("decode calendar payload: %w", err)
	}

	fetchedAt := l.now().UTC()
	records := make([]flight.PriceRecord, 0, len(body.Data.DayPrices))
	for _, day := range body.Data.DayPrices {
		if day.Date == "" || day.Price == nil {
			continue
		}
		if _, dup := seen[day.Date]; dup {
			continue
		}
		seen[day.Date] = struct{}{}

		records = append(records, flight.PriceRecord{
			Source:      l.Name(),
			Airline:     "Level",
			Origin:      route.Origin,
			Destination: route.Destination,
			Date:        day.Date,
			Price:       decimal.NewFromFloat(*day.Price),
			Currency:    levelCurrency,
			Stops:       0, // Level flies its long-haul routes nonstop
			Tags:        day.Tags,
			FetchedAt:   fetchedAt,
		})
	}

	return records, nil
}

type levelCalendarResponse struct {
	Data struct {
		DayPrices []levelDayPrice `json:"dayPrices"`
	} `json:"data"`
}

type levelDayPrice struct {
	Date  string   `json:"date"`
	Price *float64 `json:"price"`
	Tags  []string `json:"tags"`
}

var _ Source = (*Level)(nil)
