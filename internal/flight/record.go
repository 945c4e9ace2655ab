package flight

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Supported quote currencies. Every connector declares exactly one.
const (
	CurrencyUSD = "USD"
	CurrencyARS = "ARS"
	CurrencyEUR = "EUR"
)

// Trip types accepted in route configuration.
const (
	TripRoundTrip = "round_trip"
	TripOneWay    = "one_way"
)

// TagMinimumPriceMonth marks the cheapest day of its month (Level calendar).
const TagMinimumPriceMonth = "IsMinimumPriceMonth"

// PriceRecord is the normalized quote every source produces, regardless of
// provider. A price of zero or less means "no price available" and must be
// filtered before threshold comparison.
type PriceRecord struct {
	Source      string
	Airline     string
	Origin      string
	Destination string
	// Date is the departure date as YYYY-MM-DD, or a
	// "YYYY-MM-DD → YYYY-MM-DD" range for round-trip scans.
	Date            string
	Price           decimal.Decimal
	Currency        string
	Stops           int
	FlightNumber    string
	SeatsRemaining  *int
	DurationMinutes *int
	Tags            []string
	FetchedAt       time.Time
}

// RouteKey identifies one monitored flight instance for alert deduplication.
// It is a function of origin, destination, and date only, never of price.
func (r PriceRecord) RouteKey() string {
	return fmt.Sprintf("%s-%s-%s", r.Origin, r.Destination, r.Date)
}

// HasTag reports whether the record carries the given provider tag.
func (r PriceRecord) HasTag(tag string) bool {
	for _, t := range r.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// DisplayPrice renders the price for human-facing messages, e.g.
// "USD 511" or "ARS 401,363".
func (r PriceRecord) DisplayPrice() string {
	return fmt.Sprintf("%s %s", r.Currency, groupThousands(r.Price))
}

func groupThousands(d decimal.Decimal) string {
	s := d.Round(0).StringFixed(0)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}

	var b strings.Builder
	for i, ch := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(ch)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}
