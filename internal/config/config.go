package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"flightwatch/internal/logging"
)

// Source identifiers with an implemented connector.
var validSources = map[string]struct{}{
	"level":          {},
	"sky":            {},
	"google_flights": {},
}

// Config materialises application configuration.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Logging  logging.Config `mapstructure:"logging"`
	Settings Settings       `mapstructure:"settings"`
	Ledger   LedgerConfig   `mapstructure:"ledger"`
	Alerting AlertingConfig `mapstructure:"alerting"`
	Routes   []Route        `mapstructure:"routes"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// Route declares one monitored origin/destination pair with its sources
// and price thresholds. At least one threshold and one source is required.
type Route struct {
	Origin       string   `mapstructure:"origin"`
	Destination  string   `mapstructure:"destination"`
	Sources      []string `mapstructure:"sources"`
	ThresholdUSD *float64 `mapstructure:"threshold_usd"`
	ThresholdARS *float64 `mapstructure:"threshold_ars"`
	MonthsAhead  int      `mapstructure:"months_ahead"`
	TripType     string   `mapstructure:"trip_type"`
}

// Key returns the origin-destination lookup key, e.g. "EZE-BCN".
func (r Route) Key() string {
	return r.Origin + "-" + r.Destination
}

// RoundTrip reports whether the route scans return fares.
func (r Route) RoundTrip() bool {
	return r.TripType != "one_way"
}

// Settings carries the global knobs shared by all routes and sources.
type Settings struct {
	RequestDelay     time.Duration `mapstructure:"request_delay"`
	AlertCooldown    time.Duration `mapstructure:"alert_cooldown"`
	Retention        time.Duration `mapstructure:"retention"`
	ConcurrencyLimit int           `mapstructure:"concurrency_limit"`
	FetchTimeout     time.Duration `mapstructure:"fetch_timeout"`
	UserAgent        string        `mapstructure:"user_agent"`

	// Manual USD→ARS rate for the optional cross-currency comparison.
	// Never applied implicitly: CrossCurrencyCheck must be set too.
	ManualUSDToARS     float64 `mapstructure:"manual_usd_to_ars"`
	CrossCurrencyCheck bool    `mapstructure:"cross_currency_check"`

	TripDurationMinDays int `mapstructure:"trip_duration_min_days"`
	TripDurationMaxDays int `mapstructure:"trip_duration_max_days"`
}

// LedgerConfig locates the durable alert dedup state.
type LedgerConfig struct {
	Path string `mapstructure:"path"`
}

// AlertingConfig defines notification routing.
type AlertingConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig holds Telegram Bot API parameters.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("FLIGHTWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "flightwatch")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("settings.request_delay", "3s")
	v.SetDefault("settings.alert_cooldown", "48h")
	v.SetDefault("settings.retention", "168h")
	v.SetDefault("settings.concurrency_limit", 2)
	v.SetDefault("settings.fetch_timeout", "2m")
	v.SetDefault("settings.user_agent",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/145.0.0.0 Safari/537.36")
	v.SetDefault("settings.manual_usd_to_ars", 1200.0)
	v.SetDefault("settings.cross_currency_check", false)
	v.SetDefault("settings.trip_duration_min_days", 7)
	v.SetDefault("settings.trip_duration_max_days", 10)

	v.SetDefault("ledger.path", "data/alert_state.json")

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")
	// Empty defaults so AutomaticEnv can surface credentials that live
	// only in the environment; viper ignores env keys it has never seen.
	v.SetDefault("alerting.telegram.bot_token", "")
	v.SetDefault("alerting.telegram.chat_id", "")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate normalises and checks the configuration. An invalid route set is
// fatal: a run must never start with silently dropped routes.
func (c *Config) Validate() error {
	if err := c.Settings.validate(); err != nil {
		return err
	}

	if len(c.Routes) == 0 {
		return fmt.Errorf("at least one route must be configured")
	}

	seen := make(map[string]struct{}, len(c.Routes))
	for i := range c.Routes {
		r := &c.Routes[i]
		if err := r.normalize(); err != nil {
			return fmt.Errorf("route #%d: %w", i, err)
		}
		if _, dup := seen[r.Key()]; dup {
			return fmt.Errorf("route #%d: duplicate route %s", i, r.Key())
		}
		seen[r.Key()] = struct{}{}
	}

	if c.Ledger.Path == "" {
		return fmt.Errorf("ledger.path is required")
	}

	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token is required when telegram is enabled")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id is required when telegram is enabled")
		}
	}

	return nil
}

func (s *Settings) validate() error {
	if s.RequestDelay < 0 {
		return fmt.Errorf("settings.request_delay cannot be negative")
	}
	if s.AlertCooldown <= 0 {
		return fmt.Errorf("settings.alert_cooldown must be greater than zero")
	}
	if s.Retention < s.AlertCooldown {
		return fmt.Errorf("settings.retention must not be shorter than settings.alert_cooldown")
	}
	if s.ConcurrencyLimit <= 0 {
		return fmt.Errorf("settings.concurrency_limit must be greater than zero")
	}
	if s.FetchTimeout <= 0 {
		return fmt.Errorf("settings.fetch_timeout must be greater than zero")
	}
	if s.CrossCurrencyCheck && s.ManualUSDToARS <= 0 {
		return fmt.Errorf("settings.manual_usd_to_ars must be positive when cross_currency_check is enabled")
	}
	if s.TripDurationMinDays <= 0 || s.TripDurationMaxDays < s.TripDurationMinDays {
		return fmt.Errorf("settings.trip_duration_min_days/max_days must form a positive range")
	}
	return nil
}

func (r *Route) normalize() error {
	r.Origin = strings.ToUpper(strings.TrimSpace(r.Origin))
	r.Destination = strings.ToUpper(strings.TrimSpace(r.Destination))
	if r.Origin == "" || r.Destination == "" {
		return fmt.Errorf("origin and destination are required")
	}

	if len(r.Sources) == 0 {
		return fmt.Errorf("route %s: at least one source is required", r.Key())
	}
	for i, s := range r.Sources {
		s = strings.ToLower(strings.TrimSpace(s))
		if _, ok := validSources[s]; !ok {
			return fmt.Errorf("route %s: unknown source %q", r.Key(), s)
		}
		r.Sources[i] = s
	}

	if r.ThresholdUSD == nil && r.ThresholdARS == nil {
		return fmt.Errorf("route %s: threshold_usd or threshold_ars is required", r.Key())
	}
	if r.ThresholdUSD != nil && *r.ThresholdUSD <= 0 {
		return fmt.Errorf("route %s: threshold_usd must be positive", r.Key())
	}
	if r.ThresholdARS != nil && *r.ThresholdARS <= 0 {
		return fmt.Errorf("route %s: threshold_ars must be positive", r.Key())
	}

	if r.MonthsAhead <= 0 {
		r.MonthsAhead = 6
	}
	if r.TripType == "" {
		r.TripType = "round_trip"
	}
	if r.TripType != "round_trip" && r.TripType != "one_way" {
		return fmt.Errorf("route %s: trip_type must be round_trip or one_way", r.Key())
	}

	return nil
}
