package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"flightwatch/internal/config"
	"flightwatch/internal/flight"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

const levelCalendarFixture = `{
  "data": {
    "dayPrices": [
      {"date": "2026-11-10", "price": 511.0, "tags": ["IsMinimumPriceMonth"]},
      {"date": "2026-11-11", "price": 640.0, "tags": []},
      {"date": "2026-11-12", "price": null, "tags": []}
    ]
  }
}`

func TestLevelFetchSuccess(t *testing.T) {
	var gotQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = map[string]string{
			"triptype":     r.URL.Query().Get("triptype"),
			"origin":       r.URL.Query().Get("origin"),
			"destination":  r.URL.Query().Get("destination"),
			"currencyCode": r.URL.Query().Get("currencyCode"),
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(levelCalendarFixture))
	}))
	defer srv.Close()

	l := NewLevel(LevelOptions{BaseURL: srv.URL, Timeout: time.Second}, testLogger())
	route := config.Route{Origin: "EZE", Destination: "BCN", MonthsAhead: 1, TripType: "round_trip"}

	records, err := l.Fetch(context.Background(), route)
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records (null price dropped), got %d", len(records))
	}

	rec := records[0]
	if rec.Source != "level" || rec.Currency != flight.CurrencyUSD {
		t.Fatalf("unexpected record metadata: %+v", rec)
	}
	if !rec.Price.Equal(decimal.NewFromFloat(511)) {
		t.Fatalf("expected price 511, got %s", rec.Price)
	}
	if !rec.HasTag(flight.TagMinimumPriceMonth) {
		t.Fatal("minimum price tag should be preserved")
	}
	if rec.Stops != 0 {
		t.Fatalf("level records should be nonstop, got %d stops", rec.Stops)
	}

	if gotQuery["triptype"] != "RT" {
		t.Fatalf("round trip route should query RT, got %q", gotQuery["triptype"])
	}
	if gotQuery["origin"] != "EZE" || gotQuery["destination"] != "BCN" {
		t.Fatalf("wrong route in query: %#v", gotQuery)
	}
	if gotQuery["currencyCode"] != flight.CurrencyUSD {
		t.Fatalf("calendar must be requested in USD, got %q", gotQuery["currencyCode"])
	}
}

func TestLevelFetchOneWayQuery(t *testing.T) {
	var tripType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tripType = r.URL.Query().Get("triptype")
		_, _ = w.Write([]byte(`{"data":{"dayPrices":[]}}`))
	}))
	defer srv.Close()

	l := NewLevel(LevelOptions{BaseURL: srv.URL, Timeout: time.Second}, testLogger())
	route := config.Route{Origin: "EZE", Destination: "BCN", MonthsAhead: 1, TripType: "one_way"}

	if _, err := l.Fetch(context.Background(), route); err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if tripType != "OW" {
		t.Fatalf("one way route should query OW, got %q", tripType)
	}
}

func TestLevelFetchSkipsFailedMonths(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(levelCalendarFixture))
	}))
	defer srv.Close()

	l := NewLevel(LevelOptions{BaseURL: srv.URL, Timeout: time.Second}, testLogger())
	route := config.Route{Origin: "EZE", Destination: "BCN", MonthsAhead: 2, TripType: "round_trip"}

	records, err := l.Fetch(context.Background(), route)
	if err != nil {
		t.Fatalf("a failed month should not fail the fetch: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 month requests, got %d", calls)
	}
	if len(records) != 2 {
		t.Fatalf("expected records from the surviving month, got %d", len(records))
	}
}

func TestLevelFetchDeduplicatesDates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(levelCalendarFixture))
	}))
	defer srv.Close()

	l := NewLevel(LevelOptions{BaseURL: srv.URL, Timeout: time.Second}, testLogger())
	route := config.Route{Origin: "EZE", Destination: "BCN", MonthsAhead: 2, TripType: "round_trip"}

	records, err := l.Fetch(context.Background(), route)
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	// both months answer the same fixture; dates must appear once
	if len(records) != 2 {
		t.Fatalf("expected 2 deduplicated records, got %d", len(records))
	}
}
