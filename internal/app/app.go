package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"flightwatch/internal/alerting"
	"flightwatch/internal/checker"
	"flightwatch/internal/config"
	"flightwatch/internal/engine"
	"flightwatch/internal/ledger"
	"flightwatch/internal/scheduler"
	"flightwatch/internal/source"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

// RunOptions configure a single run-cycle.
type RunOptions struct {
	DryRun bool
}

// WatchOptions configure the interval loop.
type WatchOptions struct {
	Interval time.Duration
	DryRun   bool
}

func (a *App) newNotifier(dryRun bool) (alerting.Notifier, error) {
	if dryRun {
		return &alerting.ConsoleNotifier{Out: os.Stdout}, nil
	}

	tg := a.Config.Alerting.Telegram
	if !a.Config.Alerting.Enabled || !tg.Enabled {
		return nil, errors.New("alerting is not configured; enable alerting.telegram or use --dry-run")
	}

	return alerting.NewTelegramNotifier(tg.BotToken, tg.ChatID, tg.APIBase, 15*time.Second, a.Logger), nil
}

func (a *App) openLedger() *ledger.Ledger {
	return ledger.Load(ledger.Options{
		Path:      a.Config.Ledger.Path,
		Cooldown:  a.Config.Settings.AlertCooldown,
		Retention: a.Config.Settings.Retention,
	}, a.Logger)
}

func (a *App) newEngine(notifier alerting.Notifier, led *ledger.Ledger) *engine.Engine {
	registry := source.NewRegistry(a.Config.Settings, a.Logger)
	coordinator := engine.NewCoordinator(registry, a.Config.Settings, a.Logger)
	chk := checker.New(a.Config.Settings, a.Logger)
	return engine.New(coordinator, chk, led, notifier, registry, a.Config.Routes, a.Logger)
}

// Run executes one full run-cycle and exits.
func (a *App) Run(ctx context.Context, opts RunOptions) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	notifier, err := a.newNotifier(opts.DryRun)
	if err != nil {
		return err
	}

	led := a.openLedger()
	eng := a.newEngine(notifier, led)

	a.Logger.Info().
		Int("routes", len(a.Config.Routes)).
		Bool("dry_run", opts.DryRun).
		Msg("starting run cycle")

	summary, err := eng.RunCycle(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run cycle: %w", err)
	}

	a.Logger.Info().
		Int("emitted", summary.Emitted).
		Int("suppressed", summary.Suppressed).
		Msg("run cycle finished")
	return nil
}

// Watch loops run-cycles on an interval until interrupted. Deployments
// driven by an external cron use Run instead.
func (a *App) Watch(ctx context.Context, opts WatchOptions) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	notifier, err := a.newNotifier(opts.DryRun)
	if err != nil {
		return err
	}

	led := a.openLedger()
	eng := a.newEngine(notifier, led)

	sched := scheduler.New(scheduler.Options{
		Interval:   opts.Interval,
		RunAtStart: true,
	}, a.Logger)

	a.Logger.Info().
		Dur("interval", opts.Interval).
		Bool("dry_run", opts.DryRun).
		Msg("starting watch loop")

	err = sched.Run(ctx, func(ctx context.Context) error {
		_, cycleErr := eng.RunCycle(ctx)
		return cycleErr
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	a.Logger.Info().Msg("watch loop stopped")
	return nil
}
