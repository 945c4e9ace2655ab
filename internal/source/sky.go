package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"flightwatch/internal/config"
	"flightwatch/internal/flight"
)

const (
	skySearchPath = "/shopping-lowest-fares/lowest-fares/v1/search"

	// Public Azure APIM key embedded in Sky's web frontend. If Sky
	// rotates it the API answers 401/403 and the connector latches
	// keyFailed so the operator gets told exactly once per run.
	skyAPIKey = "4c998b33d2aa4e8aba0f9a63d4c04d7d"

	skyCurrency = flight.CurrencyARS

	// One request with dateFlexibility=14 covers roughly 28 days.
	skyDaysPerRequest   = 28
	skyFlexibilityDays  = 14
	skyApproxDaysPerMon = 30
)

// Sky uses city codes rather than airport codes for the origin side.
var skyCityCodes = map[string]string{
	"EZE": "BUE",
	"AEP": "BUE",
	"ROS": "ROS",
	"COR": "COR",
	"MDZ": "MDZ",
}

// SkyOptions parameterise the Sky Airline connector.
type SkyOptions struct {
	BaseURL      string
	Timeout      time.Duration
	UserAgent    string
	RequestDelay time.Duration
}

// Sky fetches lowest fares from the Sky Airline shopping API in windowed
// requests until the route's horizon is covered.
type Sky struct {
	opts    SkyOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
	limiter *rate.Limiter
	now     func() time.Time

	mu        sync.Mutex
	keyFailed bool
}

// NewSky constructs a Sky connector.
func NewSky(opts SkyOptions, logger zerolog.Logger) *Sky {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.skyairline.com"
	}

	return &Sky{
		opts:    opts,
		logger:  logger.With().Str("component", "source_sky").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
		limiter: pacer(opts.RequestDelay),
		now:     time.Now,
	}
}

// Name implements Source.
func (s *Sky) Name() string { return "sky" }

// Currency implements Source.
func (s *Sky) Currency() string { return skyCurrency }

// KeyFailed reports whether the API key was rejected during this process.
// Once latched the connector stops issuing requests.
func (s *Sky) KeyFailed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keyFailed
}

func (s *Sky) latchKeyFailure() {
	s.mu.Lock()
	s.keyFailed = true
	s.mu.Unlock()
}

// Fetch scans ~28-day fare windows covering the route's months_ahead
// horizon. Window failures are logged and skipped; a rejected API key
// aborts the scan and returns whatever was collected so far.
func (s *Sky) Fetch(ctx context.Context, route config.Route) ([]flight.PriceRecord, error) {
	if s.KeyFailed() {
		s.logger.Warn().Str("route", route.Key()).Msg("api key marked invalid, skipping")
		return nil, nil
	}

	today := s.now().UTC()
	totalDays := route.MonthsAhead * skyApproxDaysPerMon
	numRequests := totalDays/skyDaysPerRequest + 1

	cityOrigin := route.Origin
	if city, ok := skyCityCodes[route.Origin]; ok {
		cityOrigin = city
	}

	s.logger.Info().
		Str("origin", route.Origin).
		Str("city_origin", cityOrigin).
		Str("destination", route.Destination).
		Int("windows", numRequests).
		Msg("scanning lowest fares")

	records := make([]flight.PriceRecord, 0)
	seen := make(map[string]struct{})

	for i := 0; i < numRequests; i++ {
		if err := s.limiter.Wait(ctx); err != nil {
			return records, err
		}

		center := today.AddDate(0, 0, skyFlexibilityDays+i*skyDaysPerRequest)
		windowRecords, err := s.fetchWindow(ctx, route, cityOrigin, center, seen)
		if err != nil {
			if ctx.Err() != nil {
				return records, ctx.Err()
			}
			if isAuthStatus(err) {
				s.logger.Error().Err(err).
					Msg("api key rejected, probably rotated; update skyAPIKey")
				s.latchKeyFailure()
				return records, nil
			}
			s.logger.Warn().Err(err).
				Str("route", route.Key()).
				Str("window_center", center.Format("2006-01-02")).
				Msg("fare window failed")
			continue
		}
		records = append(records, windowRecords...)
	}

	s.logger.Info().
		Str("route", route.Key()).
		Int("records", len(records)).
		Msg("lowest fare scan complete")
	return records, nil
}

func (s *Sky) fetchWindow(ctx context.Context, route config.Route, cityOrigin string, center time.Time, seen map[string]struct{}) ([]flight.PriceRecord, error) {
	reqBody := skySearchRequest{
		Currency:       skyCurrency,
		PassengerCount: []skyPassenger{{PTC: "ADT", Quantity: 1}},
		ItineraryParts: []skyItineraryQuery{{
			Origin:          cityOrigin,
			Destination:     route.Destination,
			DepartureDate:   center.Format("2006-01-02"),
			DateFlexibility: skyFlexibilityDays,
		}},
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+skySearchPath, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("ocp-apim-subscription-key", skyAPIKey)
	req.Header.Set("channel", "WEB")
	req.Header.Set("homemarket", "AR")
	req.Header.Set("pointofsale", "AR")
	if ua := strings.TrimSpace(s.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &statusError{status: resp.StatusCode, body: strings.TrimSpace(string(payload))}
	}

	var result skySearchResponse
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, fmt.Errorf("decode search payload: %w", err)
	}

	fetchedAt := s.now().UTC()
	records := make([]flight.PriceRecord, 0, len(result.ItineraryParts))
	for _, part := range result.ItineraryParts {
		if !part.IsAvailable || part.DepartureDate == "" {
			continue
		}
		if _, dup := seen[part.DepartureDate]; dup {
			continue
		}
		seen[part.DepartureDate] = struct{}{}

		origin := part.Origin
		if origin == "" {
			origin = route.Origin
		}
		destination := part.Destination
		if destination == "" {
			destination = route.Destination
		}

		rec := flight.PriceRecord{
			Source:      s.Name(),
			Airline:     "Sky Airline",
			Origin:      origin,
			Destination: destination,
			Date:        part.DepartureDate,
			Price:       decimal.NewFromFloat(part.PricingInfo.BaseFareWithTaxes),
			Currency:    skyCurrency,
			Stops:       part.Stops,
			FetchedAt:   fetchedAt,
		}

		if len(part.Segments) > 0 {
			code := part.Segments[0].OperatingAirlineCode
			if code == "" {
				code = "H2"
			}
			if num := part.Segments[0].FlightNumber.String(); num != "" {
				rec.FlightNumber = code + num
			}
		}
		if part.PricingInfo.SeatsRemaining != nil {
			seats := part.PricingInfo.SeatsRemaining.Number
			rec.SeatsRemaining = &seats
		}
		if part.TotalDuration > 0 {
			duration := part.TotalDuration
			rec.DurationMinutes = &duration
		}

		records = append(records, rec)
	}

	return records, nil
}

type skySearchRequest struct {
	Currency       string              `json:"currency"`
	PassengerCount []skyPassenger      `json:"passengerCount"`
	ItineraryParts []skyItineraryQuery `json:"itineraryParts"`
}

type skyPassenger struct {
	PTC      string `json:"ptc"`
	Quantity int    `json:"quantity"`
}

type skyItineraryQuery struct {
	Origin          string `json:"origin"`
	Destination     string `json:"destination"`
	DepartureDate   string `json:"departureDate"`
	DateFlexibility int    `json:"dateFlexibility"`
}

type skySearchResponse struct {
	ItineraryParts []skyItineraryPart `json:"itineraryParts"`
}

type skyItineraryPart struct {
	IsAvailable   bool           `json:"isAvailable"`
	Origin        string         `json:"origin"`
	Destination   string         `json:"destination"`
	DepartureDate string         `json:"departureDate"`
	Stops         int            `json:"stops"`
	TotalDuration int            `json:"totalDuration"`
	PricingInfo   skyPricingInfo `json:"pricingInfo"`
	Segments      []skySegment   `json:"segments"`
}

type skyPricingInfo struct {
	BaseFareWithTaxes float64 `json:"baseFareWithTaxes"`
	SeatsRemaining    *struct {
		Number int `json:"number"`
	} `json:"seatsRemaining"`
}

type skySegment struct {
	OperatingAirlineCode string      `json:"operatingAirlineCode"`
	FlightNumber         json.Number `json:"flightNumber"`
}

// statusError preserves the HTTP status for auth-failure detection.
type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	if e.body == "" {
		return fmt.Sprintf("sky api status %d", e.status)
	}
	return fmt.Sprintf("sky api status %d: %s", e.status, e.body)
}

func isAuthStatus(err error) bool {
	se, ok := err.(*statusError)
	return ok && (se.status == http.StatusUnauthorized || se.status == http.StatusForbidden)
}

var _ Source = (*Sky)(nil)
