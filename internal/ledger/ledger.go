package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Decision is the dedup verdict for one candidate alert.
type Decision int

const (
	// Suppress drops the candidate: same or higher price inside the
	// cooldown window.
	Suppress Decision = iota
	// Approve emits the alert: first sighting of the key, or cooldown
	// expired.
	Approve
	// ApproveAsDrop emits the alert phrased as "price dropped further":
	// a strictly lower price than the one previously alerted.
	ApproveAsDrop
)

func (d Decision) String() string {
	switch d {
	case Approve:
		return "approve"
	case ApproveAsDrop:
		return "approve_as_drop"
	default:
		return "suppress"
	}
}

// Emit reports whether the decision results in a notification.
func (d Decision) Emit() bool {
	return d == Approve || d == ApproveAsDrop
}

// Entry is the persisted state for one route+date key.
type Entry struct {
	Price     decimal.Decimal `json:"price"`
	Currency  string          `json:"currency"`
	AlertedAt time.Time       `json:"alerted_at"`
}

// Options tune ledger behaviour.
type Options struct {
	Path string
	// Cooldown is the minimum interval between repeat alerts for an
	// unchanged-or-higher price on the same key.
	Cooldown time.Duration
	// Retention bounds entry age. Independent of, and longer than,
	// the cooldown.
	Retention time.Duration
}

// Ledger decides whether a candidate alert is new enough to emit, and
// remembers what was alerted. It has exactly one writer per run: the
// pipeline loads it at start, mutates it in memory, and saves at end.
type Ledger struct {
	opts    Options
	entries map[string]Entry
	logger  zerolog.Logger
	now     func() time.Time
}

// Load reads the ledger file. A missing or corrupt file is never an
// error: the worst case of starting empty is one duplicate alert, which
// beats refusing to alert at all.
func Load(opts Options, logger zerolog.Logger) *Ledger {
	if opts.Cooldown <= 0 {
		opts.Cooldown = 48 * time.Hour
	}
	if opts.Retention <= 0 {
		opts.Retention = 7 * 24 * time.Hour
	}

	l := &Ledger{
		opts:    opts,
		entries: make(map[string]Entry),
		logger:  logger.With().Str("component", "ledger").Logger(),
		now:     time.Now,
	}

	raw, err := os.ReadFile(opts.Path)
	if err != nil {
		if os.IsNotExist(err) {
			l.logger.Info().Str("path", opts.Path).Msg("no ledger file, starting empty")
		} else {
			l.logger.Warn().Err(err).Str("path", opts.Path).Msg("ledger unreadable, starting empty")
		}
		return l
	}

	var entries map[string]Entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		l.logger.Warn().Err(err).Str("path", opts.Path).Msg("ledger corrupt, starting empty")
		return l
	}

	// A file holding JSON "null" decodes without error into a nil map.
	if entries != nil {
		l.entries = entries
	}
	l.logger.Info().Int("entries", len(entries)).Msg("ledger loaded")
	return l
}

// Decide applies the dedup state machine for one candidate and updates
// the entry in the same step. Calls for the same key are order-dependent
// by design: "lower price" is relative to the running entry.
func (l *Ledger) Decide(key string, price decimal.Decimal, currency string) Decision {
	now := l.now().UTC()

	entry, ok := l.entries[key]
	if !ok {
		l.entries[key] = Entry{Price: price, Currency: currency, AlertedAt: now}
		return Approve
	}

	if price.LessThan(entry.Price) {
		l.logger.Info().
			Str("key", key).
			Str("previous", entry.Price.StringFixed(0)).
			Str("price", price.StringFixed(0)).
			Msg("price dropped below previously alerted")
		entry.Price = price
		entry.Currency = currency
		entry.AlertedAt = now
		l.entries[key] = entry
		return ApproveAsDrop
	}

	if now.Sub(entry.AlertedAt) < l.opts.Cooldown {
		return Suppress
	}

	entry.AlertedAt = now
	l.entries[key] = entry
	return Approve
}

// Purge removes entries older than the retention horizon. Run once per
// cycle before deciding new candidates.
func (l *Ledger) Purge() int {
	cutoff := l.now().UTC().Add(-l.opts.Retention)

	removed := 0
	for key, entry := range l.entries {
		if entry.AlertedAt.Before(cutoff) {
			delete(l.entries, key)
			removed++
		}
	}

	if removed > 0 {
		l.logger.Info().Int("purged", removed).Msg("expired ledger entries removed")
	}
	return removed
}

// Save writes the full ledger atomically (temp file + rename) so a crash
// mid-write can never corrupt the previous state.
func (l *Ledger) Save() error {
	dir := filepath.Dir(l.opts.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create ledger dir: %w", err)
	}

	data, err := json.MarshalIndent(l.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal ledger: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".alert_state-*.json")
	if err != nil {
		return fmt.Errorf("create temp ledger: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write ledger: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close ledger: %w", err)
	}
	if err := os.Rename(tmpName, l.opts.Path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace ledger: %w", err)
	}

	l.logger.Info().Int("entries", len(l.entries)).Str("path", l.opts.Path).Msg("ledger saved")
	return nil
}

// Len returns the number of live entries.
func (l *Ledger) Len() int {
	return len(l.entries)
}

// Entries returns a copy of the current state, keyed by route+date.
func (l *Ledger) Entries() map[string]Entry {
	out := make(map[string]Entry, len(l.entries))
	for k, v := range l.entries {
		out[k] = v
	}
	return out
}
