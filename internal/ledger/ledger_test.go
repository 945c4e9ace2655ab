package ledger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	path := filepath.Join(t.TempDir(), "alert_state.json")
	return Load(Options{Path: path, Cooldown: 48 * time.Hour, Retention: 7 * 24 * time.Hour}, testLogger())
}

func TestDecideFirstObservation(t *testing.T) {
	led := newTestLedger(t)

	d := led.Decide("EZE-BCN-2026-11-10", decimal.NewFromInt(511), "USD")
	if d != Approve {
		t.Fatalf("first observation should be approved, got %s", d)
	}
	if led.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", led.Len())
	}
}

func TestDecideSuppressWithinCooldown(t *testing.T) {
	led := newTestLedger(t)
	led.Decide("EZE-BCN-2026-11-10", decimal.NewFromInt(511), "USD")

	d := led.Decide("EZE-BCN-2026-11-10", decimal.NewFromInt(520), "USD")
	if d != Suppress {
		t.Fatalf("higher price within cooldown should be suppressed, got %s", d)
	}
	d = led.Decide("EZE-BCN-2026-11-10", decimal.NewFromInt(511), "USD")
	if d != Suppress {
		t.Fatalf("same price within cooldown should be suppressed, got %s", d)
	}
}

func TestDecideDropBypassesCooldown(t *testing.T) {
	led := newTestLedger(t)
	led.Decide("EZE-BCN-2026-11-10", decimal.NewFromInt(511), "USD")

	d := led.Decide("EZE-BCN-2026-11-10", decimal.NewFromInt(480), "USD")
	if d != ApproveAsDrop {
		t.Fatalf("lower price should bypass cooldown, got %s", d)
	}

	entries := led.Entries()
	e := entries["EZE-BCN-2026-11-10"]
	if !e.Price.Equal(decimal.NewFromInt(480)) {
		t.Fatalf("entry price should be updated to 480, got %s", e.Price)
	}
}

func TestDecideCooldownExpiry(t *testing.T) {
	led := newTestLedger(t)
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	led.now = func() time.Time { return base }

	led.Decide("EZE-MAD-2026-12-01", decimal.NewFromInt(600), "USD")

	led.now = func() time.Time { return base.Add(47 * time.Hour) }
	if d := led.Decide("EZE-MAD-2026-12-01", decimal.NewFromInt(600), "USD"); d != Suppress {
		t.Fatalf("47h after alert should still suppress, got %s", d)
	}

	led.now = func() time.Time { return base.Add(49 * time.Hour) }
	if d := led.Decide("EZE-MAD-2026-12-01", decimal.NewFromInt(600), "USD"); d != Approve {
		t.Fatalf("49h after alert should approve again, got %s", d)
	}
}

func TestPurgeRetention(t *testing.T) {
	led := newTestLedger(t)
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	led.now = func() time.Time { return base }
	led.Decide("OLD-KEY-2026-09-01", decimal.NewFromInt(100), "USD")

	led.now = func() time.Time { return base.Add(6 * 24 * time.Hour) }
	led.Decide("NEW-KEY-2026-09-01", decimal.NewFromInt(100), "USD")

	led.now = func() time.Time { return base.Add(8 * 24 * time.Hour) }
	removed := led.Purge()
	if removed != 1 {
		t.Fatalf("expected 1 purged entry, got %d", removed)
	}
	if _, ok := led.Entries()["NEW-KEY-2026-09-01"]; !ok {
		t.Fatal("recent entry should survive the purge")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "alert_state.json")
	opts := Options{Path: path, Cooldown: 48 * time.Hour, Retention: 7 * 24 * time.Hour}

	led := Load(opts, testLogger())
	led.Decide("EZE-BCN-2026-11-10", decimal.NewFromFloat(511.5), "USD")
	led.Decide("AEP-COR-2026-10-02", decimal.NewFromInt(90000), "ARS")
	if err := led.Save(); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	reloaded := Load(opts, testLogger())
	if reloaded.Len() != 2 {
		t.Fatalf("expected 2 entries after reload, got %d", reloaded.Len())
	}
	e := reloaded.Entries()["AEP-COR-2026-10-02"]
	if e.Currency != "ARS" || !e.Price.Equal(decimal.NewFromInt(90000)) {
		t.Fatalf("unexpected reloaded entry: %+v", e)
	}

	// during cooldown the reloaded ledger keeps suppressing
	if d := reloaded.Decide("EZE-BCN-2026-11-10", decimal.NewFromInt(512), "USD"); d != Suppress {
		t.Fatalf("reloaded ledger should suppress within cooldown, got %s", d)
	}
}

func TestLoadMissingFile(t *testing.T) {
	led := Load(Options{Path: filepath.Join(t.TempDir(), "nope.json")}, testLogger())
	if led.Len() != 0 {
		t.Fatalf("missing file should start empty, got %d entries", led.Len())
	}
}

func TestLoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alert_state.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	led := Load(Options{Path: path}, testLogger())
	if led.Len() != 0 {
		t.Fatalf("corrupt file should start empty, got %d entries", led.Len())
	}
}

func TestLoadNullFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alert_state.json")
	if err := os.WriteFile(path, []byte("null"), 0o644); err != nil {
		t.Fatal(err)
	}

	led := Load(Options{Path: path}, testLogger())
	if led.Len() != 0 {
		t.Fatalf("null file should start empty, got %d entries", led.Len())
	}

	// the ledger must stay writable after loading a null file
	if d := led.Decide("EZE-BCN-2026-11-10", decimal.NewFromInt(511), "USD"); d != Approve {
		t.Fatalf("first decision after null load should approve, got %s", d)
	}
	if err := led.Save(); err != nil {
		t.Fatalf("save after null load failed: %v", err)
	}
}

func TestSaveFileFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alert_state.json")
	led := Load(Options{Path: path, Cooldown: 48 * time.Hour}, testLogger())
	led.Decide("EZE-BCN-2026-11-10", decimal.NewFromInt(511), "USD")
	if err := led.Save(); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var decoded map[string]map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("state file should be a JSON object keyed by route: %v", err)
	}
	entry, ok := decoded["EZE-BCN-2026-11-10"]
	if !ok {
		t.Fatalf("missing route key in %s", raw)
	}
	for _, field := range []string{"price", "currency", "alerted_at"} {
		if _, ok := entry[field]; !ok {
			t.Fatalf("entry missing %q field: %s", field, raw)
		}
	}
}
