package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"flightwatch/internal/checker"
	"flightwatch/internal/flight"
)

// Notification is one approved alert ready for delivery.
type Notification struct {
	checker.Candidate
	// DroppedFurther marks a price that undercut an already-alerted
	// price for the same key; the message is phrased differently.
	DroppedFurther bool
}

// Notifier delivers alerts to wherever the operator reads them.
type Notifier interface {
	// Notify sends one price alert. Failures are local to the alert.
	Notify(ctx context.Context, note Notification) error
	// NotifyOperator sends a plain operational warning (e.g. a source
	// credential was rejected).
	NotifyOperator(ctx context.Context, message string) error
}

// TelegramNotifier pushes messages through the Telegram Bot API.
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier constructs a Telegram notifier.
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Notify renders the alert as HTML and calls sendMessage.
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	if err := n.send(ctx, RenderMessage(note)); err != nil {
		return err
	}

	n.logger.Info().
		Str("key", note.Record.RouteKey()).
		Bool("dropped_further", note.DroppedFurther).
		Msg("alert delivered")
	return nil
}

// NotifyOperator sends an operational warning message.
func (n *TelegramNotifier) NotifyOperator(ctx context.Context, message string) error {
	return n.send(ctx, "⚠️ <b>flightwatch</b>\n\n"+escapeHTML(message))
}

func (n *TelegramNotifier) send(ctx context.Context, text string) error {
	payload := map[string]any{
		"chat_id":                  n.chatID,
		"text":                     text,
		"parse_mode":               "HTML",
		"disable_web_page_preview": true,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram status %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil && !result.OK {
		return fmt.Errorf("telegram returned ok=false")
	}

	return nil
}

// RenderMessage formats an alert as Telegram HTML.
func RenderMessage(note Notification) string {
	rec := note.Record

	header := "🔥 <b>PRICE ALERT"
	if note.DroppedFurther {
		header = "📉 <b>DROPPED FURTHER"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s — %s → %s</b>\n\n", header, rec.Origin, rec.Destination)
	fmt.Fprintf(&b, "💰 <b>%s</b> (%s)\n", rec.DisplayPrice(), escapeHTML(rec.Airline))
	fmt.Fprintf(&b, "📅 %s\n", rec.Date)

	if rec.Stops == 0 {
		b.WriteString("✈️ Nonstop\n")
	} else {
		fmt.Fprintf(&b, "✈️ %d stop(s)\n", rec.Stops)
	}

	if rec.FlightNumber != "" {
		fmt.Fprintf(&b, "🔢 Flight %s\n", escapeHTML(rec.FlightNumber))
	}
	if rec.SeatsRemaining != nil {
		marker := "🪑"
		if *rec.SeatsRemaining <= 3 {
			marker = "⚡"
		}
		fmt.Fprintf(&b, "%s %d seats remaining\n", marker, *rec.SeatsRemaining)
	}
	if rec.DurationMinutes != nil {
		fmt.Fprintf(&b, "⏱️ %dh %dm\n", *rec.DurationMinutes/60, *rec.DurationMinutes%60)
	}
	if rec.HasTag(flight.TagMinimumPriceMonth) {
		b.WriteString("🏷️ <i>Lowest price of the month</i>\n")
	}

	if threshold := thresholdLine(note); threshold != "" {
		fmt.Fprintf(&b, "🎯 %s\n", threshold)
	}

	fmt.Fprintf(&b, "\n📊 Source: %s\n", rec.Source)
	fmt.Fprintf(&b, "⏰ %s UTC\n", rec.FetchedAt.UTC().Format("2006-01-02 15:04:05"))

	return b.String()
}

func thresholdLine(note Notification) string {
	route := note.Route
	switch note.Record.Currency {
	case flight.CurrencyUSD:
		if route.ThresholdUSD != nil {
			return fmt.Sprintf("Threshold: USD %.0f", *route.ThresholdUSD)
		}
	case flight.CurrencyARS:
		if route.ThresholdARS != nil {
			return fmt.Sprintf("Threshold: ARS %.0f", *route.ThresholdARS)
		}
	}
	return ""
}

// escapeHTML escapes the subset Telegram cares about: <, >, and &.
func escapeHTML(text string) string {
	text = strings.ReplaceAll(text, "&", "&amp;")
	text = strings.ReplaceAll(text, "<", "&lt;")
	return strings.ReplaceAll(text, ">", "&gt;")
}

var _ Notifier = (*TelegramNotifier)(nil)
