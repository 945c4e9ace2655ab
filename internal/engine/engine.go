package engine

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"flightwatch/internal/alerting"
	"flightwatch/internal/checker"
	"flightwatch/internal/config"
	"flightwatch/internal/ledger"
	"flightwatch/internal/source"
)

// Summary counts what one run-cycle did.
type Summary struct {
	Records    int
	Candidates int
	Emitted    int
	Suppressed int
	Purged     int
}

// Engine composes the fetch coordinator, threshold checker, dedup
// ledger, and notifier into one run-cycle. It is the ledger's only
// writer for the cycle's duration.
type Engine struct {
	coordinator *Coordinator
	checker     *checker.Checker
	ledger      *ledger.Ledger
	notifier    alerting.Notifier
	registry    source.Registry
	routes      []config.Route
	logger      zerolog.Logger
}

// New constructs the pipeline engine.
func New(coordinator *Coordinator, chk *checker.Checker, led *ledger.Ledger, notifier alerting.Notifier, registry source.Registry, routes []config.Route, logger zerolog.Logger) *Engine {
	return &Engine{
		coordinator: coordinator,
		checker:     chk,
		ledger:      led,
		notifier:    notifier,
		registry:    registry,
		routes:      routes,
		logger:      logger.With().Str("component", "engine").Logger(),
	}
}

// RunCycle executes one full pass: fetch, evaluate, dedup, persist,
// notify. The ledger is saved before any notification goes out, so
// notifier trouble can never cost dedup state. No per-route, per-source,
// or per-alert failure aborts the cycle.
func (e *Engine) RunCycle(ctx context.Context) (Summary, error) {
	var s Summary

	records := e.coordinator.FetchAll(ctx, e.routes)
	s.Records = len(records)

	candidates := e.checker.Filter(records, e.routes)
	s.Candidates = len(candidates)

	s.Purged = e.ledger.Purge()

	notes := make([]alerting.Notification, 0, len(candidates))
	for _, cand := range candidates {
		decision := e.ledger.Decide(cand.Record.RouteKey(), cand.Record.Price, cand.Record.Currency)
		if !decision.Emit() {
			s.Suppressed++
			continue
		}
		notes = append(notes, alerting.Notification{
			Candidate:      cand,
			DroppedFurther: decision == ledger.ApproveAsDrop,
		})
	}

	// Persist before notifying: a crash or notifier failure after this
	// point re-sends at most nothing, never loses dedup state.
	if err := e.ledger.Save(); err != nil {
		e.logger.Error().Err(err).Msg("ledger save failed; next run may repeat an alert")
	}

	for _, note := range notes {
		if err := e.notifier.Notify(ctx, note); err != nil {
			e.logger.Error().Err(err).
				Str("key", note.Record.RouteKey()).
				Msg("alert delivery failed")
			continue
		}
		s.Emitted++
	}

	e.reportCredentialFailures(ctx)

	e.logger.Info().
		Int("records", s.Records).
		Int("candidates", s.Candidates).
		Int("emitted", s.Emitted).
		Int("suppressed", s.Suppressed).
		Msg("run cycle complete")

	return s, ctx.Err()
}

func (e *Engine) reportCredentialFailures(ctx context.Context) {
	for name, src := range e.registry {
		reporter, ok := src.(source.CredentialReporter)
		if !ok || !reporter.KeyFailed() {
			continue
		}

		msg := fmt.Sprintf(
			"The %s API key was rejected (401/403) and was probably rotated. "+
				"Prices from this source cannot be fetched until the key is updated.", name)
		if err := e.notifier.NotifyOperator(ctx, msg); err != nil {
			e.logger.Error().Err(err).Str("source", name).Msg("operator warning delivery failed")
		}
	}
}
