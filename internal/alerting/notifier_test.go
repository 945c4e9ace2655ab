package alerting

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"flightwatch/internal/checker"
	"flightwatch/internal/config"
	"flightwatch/internal/flight"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func sampleNotification(dropped bool) Notification {
	threshold := 600.0
	return Notification{
		Candidate: checker.Candidate{
			Record: flight.PriceRecord{
				Source:      "level",
				Airline:     "Level",
				Origin:      "EZE",
				Destination: "BCN",
				Date:        "2026-11-10",
				Price:       decimal.NewFromInt(511),
				Currency:    flight.CurrencyUSD,
				Tags:        []string{flight.TagMinimumPriceMonth},
				FetchedAt:   time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
			},
			Route: config.Route{Origin: "EZE", Destination: "BCN", ThresholdUSD: &threshold},
		},
		DroppedFurther: dropped,
	}
}

func TestTelegramNotifierSuccess(t *testing.T) {
	received := make(map[string]any)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "sendMessage") {
			t.Fatalf("path should contain sendMessage, got %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("decoding request body: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	if err := notifier.Notify(context.Background(), sampleNotification(false)); err != nil {
		t.Fatalf("Notify should succeed: %v", err)
	}

	if received["chat_id"] != "chat" {
		t.Fatalf("wrong chat_id: %#v", received)
	}
	text, _ := received["text"].(string)
	if !strings.Contains(text, "PRICE ALERT") || !strings.Contains(text, "EZE") {
		t.Fatalf("unexpected message text: %q", text)
	}
	if received["parse_mode"] != "HTML" {
		t.Fatalf("parse_mode should be HTML, got %v", received["parse_mode"])
	}
}

func TestTelegramNotifierOkFalse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	if err := notifier.Notify(context.Background(), sampleNotification(false)); err == nil {
		t.Fatal("ok=false should return an error")
	}
}

func TestTelegramNotifierHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	if err := notifier.NotifyOperator(context.Background(), "sky key rejected"); err == nil {
		t.Fatal("non-2xx status should return an error")
	}
}

func TestRenderMessage(t *testing.T) {
	msg := RenderMessage(sampleNotification(false))

	for _, want := range []string{
		"PRICE ALERT",
		"EZE",
		"BCN",
		"USD 511",
		"2026-11-10",
		"Nonstop",
		"Lowest price of the month",
		"Threshold: USD 600",
		"Source: level",
	} {
		if !strings.Contains(msg, want) {
			t.Fatalf("message missing %q:\n%s", want, msg)
		}
	}
}

func TestRenderMessageDroppedFurther(t *testing.T) {
	msg := RenderMessage(sampleNotification(true))
	if !strings.Contains(msg, "DROPPED FURTHER") {
		t.Fatalf("dropped alert should use the drop header:\n%s", msg)
	}
}

func TestRenderMessageSeatsAndStops(t *testing.T) {
	note := sampleNotification(false)
	seats := 2
	duration := 755
	note.Record.Stops = 1
	note.Record.SeatsRemaining = &seats
	note.Record.DurationMinutes = &duration
	note.Record.FlightNumber = "H2800"

	msg := RenderMessage(note)
	for _, want := range []string{"1 stop(s)", "⚡ 2 seats remaining", "12h 35m", "Flight H2800"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("message missing %q:\n%s", want, msg)
		}
	}
}

func TestEscapeHTML(t *testing.T) {
	got := escapeHTML(`R&B <Air> "quotes"`)
	if got != `R&amp;B &lt;Air&gt; "quotes"` {
		t.Fatalf("unexpected escape result: %q", got)
	}
}
