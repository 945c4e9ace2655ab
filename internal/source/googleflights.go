package source

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"flightwatch/internal/config"
	"flightwatch/internal/flight"
)

const (
	googleFlightsURL = "https://www.google.com/travel/flights"

	// One probe every few days keeps request volume tolerable while
	// still catching short-lived fare dips.
	googleScanStepDays = 3
)

// GoogleFlightsOptions parameterise the Google Flights connector.
type GoogleFlightsOptions struct {
	UserAgent           string
	RequestDelay        time.Duration
	PageTimeout         time.Duration
	TripDurationMinDays int
	TripDurationMaxDays int
}

// GoogleFlights scrapes result pages with a headless browser. It covers
// every airline on a route at the cost of being the slowest and most
// fragile source, so all per-date failures are soft.
type GoogleFlights struct {
	opts    GoogleFlightsOptions
	logger  zerolog.Logger
	limiter *rate.Limiter
	now     func() time.Time
}

// NewGoogleFlights constructs a Google Flights connector.
func NewGoogleFlights(opts GoogleFlightsOptions, logger zerolog.Logger) *GoogleFlights {
	if opts.PageTimeout <= 0 {
		opts.PageTimeout = 45 * time.Second
	}
	if opts.TripDurationMinDays <= 0 {
		opts.TripDurationMinDays = 7
	}
	if opts.TripDurationMaxDays < opts.TripDurationMinDays {
		opts.TripDurationMaxDays = opts.TripDurationMinDays
	}

	return &GoogleFlights{
		opts:    opts,
		logger:  logger.With().Str("component", "source_google_flights").Logger(),
		limiter: pacer(opts.RequestDelay),
		now:     time.Now,
	}
}

// Name implements Source.
func (g *GoogleFlights) Name() string { return "google_flights" }

// Currency implements Source. Google renders USD for international routes
// from Argentina; detectCurrency corrects records where the page disagrees.
func (g *GoogleFlights) Currency() string { return flight.CurrencyUSD }

// Fetch probes departure dates every few days across the route horizon.
// Round trips use the midpoint of the configured trip duration range.
func (g *GoogleFlights) Fetch(ctx context.Context, route config.Route) ([]flight.PriceRecord, error) {
	today := g.now().UTC()
	totalDays := route.MonthsAhead * 30

	var dates []time.Time
	for d := 1; d <= totalDays; d += googleScanStepDays {
		dates = append(dates, today.AddDate(0, 0, d))
	}

	returnDays := (g.opts.TripDurationMinDays + g.opts.TripDurationMaxDays) / 2

	g.logger.Info().
		Str("origin", route.Origin).
		Str("destination", route.Destination).
		Int("dates", len(dates)).
		Bool("round_trip", route.RoundTrip()).
		Msg("scanning google flights")

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, g.allocatorOptions()...)
	defer cancelAlloc()

	records := make([]flight.PriceRecord, 0)
	for _, departure := range dates {
		if err := g.limiter.Wait(ctx); err != nil {
			return records, err
		}

		dateRecords, err := g.scrapeDate(allocCtx, route, departure, returnDays)
		if err != nil {
			if ctx.Err() != nil {
				return records, ctx.Err()
			}
			g.logger.Warn().Err(err).
				Str("route", route.Key()).
				Str("date", departure.Format("2006-01-02")).
				Msg("date scan failed")
			continue
		}
		records = append(records, dateRecords...)
	}

	g.logger.Info().
		Str("route", route.Key()).
		Int("records", len(records)).
		Msg("google flights scan complete")
	return records, nil
}

func (g *GoogleFlights) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if ua := strings.TrimSpace(g.opts.UserAgent); ua != "" {
		opts = append(opts, chromedp.UserAgent(ua))
	}
	return opts
}

func (g *GoogleFlights) scrapeDate(allocCtx context.Context, route config.Route, departure time.Time, returnDays int) ([]flight.PriceRecord, error) {
	tabCtx, cancelTab := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...interface{}) {}))
	defer cancelTab()

	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, g.opts.PageTimeout)
	defer cancelTimeout()

	dateDisplay := departure.Format("2006-01-02")
	query := fmt.Sprintf("Flights from %s to %s on %s", route.Origin, route.Destination, dateDisplay)
	if route.RoundTrip() {
		ret := departure.AddDate(0, 0, returnDays)
		query += " returning " + ret.Format("2006-01-02")
		dateDisplay = fmt.Sprintf("%s → %s", dateDisplay, ret.Format("2006-01-02"))
	} else {
		query += " one way"
	}

	target := googleFlightsURL + "?hl=en&q=" + url.QueryEscape(query)

	var offers []googleOffer
	err := chromedp.Run(tabCtx,
		chromedp.Navigate(target),
		chromedp.WaitVisible(`div[role="main"]`, chromedp.ByQuery),
		chromedp.Sleep(3*time.Second),
		chromedp.Evaluate(extractOffersJS, &offers),
	)
	if err != nil {
		return nil, err
	}

	fetchedAt := g.now().UTC()
	records := make([]flight.PriceRecord, 0, len(offers))
	for _, offer := range offers {
		price := parsePrice(offer.Price)
		if price == nil {
			continue
		}

		airline := strings.TrimSpace(offer.Airline)
		if airline == "" {
			airline = "Unknown"
		}

		records = append(records, flight.PriceRecord{
			Source:      g.Name(),
			Airline:     airline,
			Origin:      route.Origin,
			Destination: route.Destination,
			Date:        dateDisplay,
			Price:       *price,
			Currency:    detectCurrency(offer.Price),
			Stops:       parseStops(offer.Stops),
			FetchedAt:   fetchedAt,
		})
	}

	return records, nil
}

type googleOffer struct {
	Airline string `json:"airline"`
	Price   string `json:"price"`
	Stops   string `json:"stops"`
}

// extractOffersJS pulls one {airline, price, stops} triple per result row.
// Google's markup is obfuscated, so it keys off aria-labels rather than
// class names, which survive redesigns far longer.
const extractOffersJS = `
(function() {
	var offers = [];
	var rows = document.querySelectorAll('div[role="main"] ul > li');
	for (var i = 0; i < rows.length; i++) {
		var row = rows[i];
		var label = row.getAttribute('aria-label') || '';

		var priceEl = row.querySelector('span[aria-label*="price" i], span[data-gs]');
		var price = priceEl ? priceEl.textContent.trim() : '';
		if (!price) {
			var m = (row.textContent || '').match(/(?:ARS|AR\$|US?\$|€|USD|EUR)\s?[\d.,]+/);
			price = m ? m[0] : '';
		}
		if (!price) continue;

		var airline = '';
		var spans = row.querySelectorAll('span');
		for (var j = 0; j < spans.length; j++) {
			var t = spans[j].textContent.trim();
			if (t && !/\d/.test(t) && t.length > 2 && t.length < 40) { airline = t; break; }
		}

		var stops = '';
		var sm = label.match(/(Nonstop|\d+\s+stops?)/i) ||
		         (row.textContent || '').match(/(Nonstop|\d+\s+stops?)/i);
		if (sm) stops = sm[1];

		offers.push({airline: airline, price: price, stops: stops});
	}
	return offers;
})()
`

var priceDigitsRe = regexp.MustCompile(`[^\d.,]`)

// parsePrice extracts a decimal amount from a rendered price string such
// as "$1,234", "ARS 401.363", "€450", or "1,50". Returns nil when no
// number can be recovered.
func parsePrice(s string) *decimal.Decimal {
	if s == "" {
		return nil
	}

	cleaned := priceDigitsRe.ReplaceAllString(s, "")
	if cleaned == "" {
		return nil
	}

	switch {
	case strings.Contains(cleaned, ",") && strings.Contains(cleaned, "."):
		// Both separators: the rightmost one is decimal.
		if strings.LastIndex(cleaned, ",") > strings.LastIndex(cleaned, ".") {
			cleaned = strings.ReplaceAll(cleaned, ".", "")
			cleaned = strings.Replace(cleaned, ",", ".", 1)
		} else {
			cleaned = strings.ReplaceAll(cleaned, ",", "")
		}
	case strings.Contains(cleaned, ","):
		parts := strings.Split(cleaned, ",")
		if len(parts[len(parts)-1]) == 3 {
			// Thousands separator: 1,234 or 500,000.
			cleaned = strings.ReplaceAll(cleaned, ",", "")
		} else {
			// European decimal comma: 1,50.
			cleaned = strings.ReplaceAll(cleaned, ",", ".")
		}
	case strings.Contains(cleaned, "."):
		parts := strings.Split(cleaned, ".")
		if len(parts[len(parts)-1]) == 3 && len(parts) > 1 && len(parts[0]) <= 3 {
			// Dot used as thousands separator: 401.363.
			cleaned = strings.ReplaceAll(cleaned, ".", "")
		}
	}

	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return nil
	}
	return &d
}

var stopsNumberRe = regexp.MustCompile(`(\d+)`)

// parseStops maps "Nonstop", "1 stop", "2 stops" to a layover count.
func parseStops(s string) int {
	lower := strings.ToLower(strings.TrimSpace(s))
	if lower == "" || strings.Contains(lower, "nonstop") || strings.Contains(lower, "direct") {
		return 0
	}
	if m := stopsNumberRe.FindString(lower); m != "" {
		n, err := strconv.Atoi(m)
		if err == nil {
			return n
		}
	}
	return 0
}

// detectCurrency guesses the currency of a rendered price string.
// USD is the default Google shows for international routes.
func detectCurrency(s string) string {
	upper := strings.ToUpper(s)
	if strings.Contains(upper, "ARS") || strings.Contains(upper, "AR$") {
		return flight.CurrencyARS
	}
	if strings.Contains(upper, "€") || strings.Contains(upper, "EUR") {
		return flight.CurrencyEUR
	}
	return flight.CurrencyUSD
}

var _ Source = (*GoogleFlights)(nil)
