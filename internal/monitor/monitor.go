// Package monitor runs the risk engine over every open signal against the
// cached price snapshot and persists the results.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"signal-risk-bot/internal/events"
	"signal-risk-bot/internal/marketdata"
	"signal-risk-bot/internal/metrics"
	"signal-risk-bot/internal/models"
	"signal-risk-bot/internal/notify"
	"signal-risk-bot/internal/risk"
	"signal-risk-bot/internal/store"
)

// SignalStore is the persistence the monitor needs.
type SignalStore interface {
	ListOpen(ctx context.Context) ([]models.Signal, error)
	ApplyUpdate(ctx context.Context, s *models.Signal) error
}

// PriceSource exposes the latest cached prices.
type PriceSource interface {
	Snapshot() map[string]marketdata.PriceTick
}

// Alerter queues user-facing alerts.
type Alerter interface {
	Dispatch(alert notify.Alert)
}

// Publisher emits change events.
type Publisher interface {
	Publish(ev events.Event)
}

// Report summarizes one monitor pass.
type Report struct {
	Open      int           `json:"open"`
	Evaluated int           `json:"evaluated"`
	NoPrice   int           `json:"no_price"`
	Updated   int           `json:"updated"`
	Triggered int           `json:"triggered"`
	Closed    int           `json:"closed"`
	Conflicts int           `json:"conflicts"`
	Errors    int           `json:"errors"`
	Duration  time.Duration `json:"duration"`
}

// Monitor evaluates open signals. Only one pass runs at a time.
type Monitor struct {
	store   SignalStore
	prices  PriceSource
	engine  *risk.Engine
	alerts  Alerter
	bus     Publisher
	workers int
	logger  *zap.Logger
	now     func() time.Time

	mu sync.Mutex
}

// New creates a monitor. workers bounds the per-signal fan-out.
func New(st SignalStore, prices PriceSource, engine *risk.Engine, alerts Alerter, bus Publisher, workers int, logger *zap.Logger) *Monitor {
	if workers <= 0 {
		workers = 1
	}
	return &Monitor{
		store:   st,
		prices:  prices,
		engine:  engine,
		alerts:  alerts,
		bus:     bus,
		workers: workers,
		logger:  logger.Named("monitor"),
		now:     time.Now,
	}
}

type result struct {
	evaluated bool
	updated   bool
	triggered bool
	closed    bool
	conflict  bool
	err       bool
}

// RunCycle runs one pass over every open signal. Per-signal failures are
// logged and counted in the report; only failing to list the signals is
// returned as an error. A pass already in progress makes the caller wait.
func (m *Monitor) RunCycle(ctx context.Context) (Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	start := time.Now()
	var report Report

	signals, err := m.store.ListOpen(ctx)
	if err != nil {
		return report, fmt.Errorf("could not list open signals: %w", err)
	}
	report.Open = len(signals)

	snapshot := m.prices.Snapshot()
	now := m.now()

	jobs := make(chan models.Signal)
	results := make(chan result, len(signals))

	var wg sync.WaitGroup
	for i := 0; i < m.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for sig := range jobs {
				results <- m.process(ctx, sig, snapshot, now)
			}
		}()
	}

	// Feed the workers, then close results once they have all drained jobs.
	go func() {
		for _, sig := range signals {
			jobs <- sig
		}
		close(jobs)
		wg.Wait()
		close(results)
	}()

	for r := range results {
		if r.evaluated {
			report.Evaluated++
		} else {
			report.NoPrice++
		}
		if r.updated {
			report.Updated++
		}
		if r.triggered {
			report.Triggered++
		}
		if r.closed {
			report.Closed++
		}
		if r.conflict {
			report.Conflicts++
		}
		if r.err {
			report.Errors++
		}
	}

	report.Duration = time.Since(start)
	metrics.MonitorRuns.Inc()
	metrics.MonitorDuration.Observe(report.Duration.Seconds())

	m.logger.Info("Monitor cycle complete",
		zap.Int("open", report.Open),
		zap.Int("evaluated", report.Evaluated),
		zap.Int("updated", report.Updated),
		zap.Int("triggered", report.Triggered),
		zap.Int("closed", report.Closed),
		zap.Int("conflicts", report.Conflicts),
		zap.Int("errors", report.Errors),
		zap.Duration("duration", report.Duration),
	)
	return report, nil
}

// process evaluates and persists a single signal. It never returns an error;
// failures are logged and reflected in the result.
func (m *Monitor) process(ctx context.Context, sig models.Signal, snapshot map[string]marketdata.PriceTick, now time.Time) result {
	l := m.logger.With(zap.String("signal_id", sig.ID), zap.String("symbol", sig.Symbol))

	var r result
	var res risk.Result
	pos := risk.FromSignal(&sig)
	if tick, ok := snapshot[sig.Symbol]; ok {
		r.evaluated = true
		res = m.engine.Evaluate(pos, tick.Price, now)
	} else {
		l.Debug("No price for symbol, skipping evaluation")
		res = m.engine.Expire(pos, now)
	}
	if !res.Changed {
		return r
	}

	next := sig
	res.Position.ApplyTo(&next)

	if err := m.store.ApplyUpdate(ctx, &next); err != nil {
		if errors.Is(err, store.ErrConflict) {
			r.conflict = true
			metrics.UpdateConflicts.Inc()
			l.Debug("Signal changed since it was read, retrying next cycle")
			return r
		}
		r.err = true
		metrics.UpdateErrors.Inc()
		l.Error("Failed to persist signal update", zap.Error(err))
		return r
	}
	r.updated = true

	transitions := make([]string, 0, len(res.Events))
	for _, ev := range res.Events {
		transitions = append(transitions, string(ev.Type))
		metrics.Transitions.WithLabelValues(string(ev.Type)).Inc()
		switch ev.Type {
		case risk.EventEntryTriggered:
			r.triggered = true
			l.Info("Entry triggered", zap.String("price", ev.Price.String()))
		case risk.EventBreakevenArmed:
			l.Info("Stop moved to breakeven", zap.String("stop", ev.Level.String()))
		case risk.EventTrailingUpdated:
			l.Info("Trailing stop tightened", zap.String("stop", ev.Level.String()))
		}
		if alert, ok := alertFor(ev, next); ok {
			m.alerts.Dispatch(alert)
		}
	}
	if next.IsTerminal() {
		r.closed = true
		metrics.Outcomes.WithLabelValues(string(next.Outcome)).Inc()
		l.Info("Signal closed",
			zap.String("status", string(next.SignalStatus)),
			zap.String("outcome", string(next.Outcome)),
			zap.String("final_r", next.FinalRMultiple.Decimal.String()),
		)
	}

	m.bus.Publish(events.Event{
		Kind:        events.KindSignalUpdated,
		SignalID:    next.ID,
		Transitions: transitions,
		Signal:      &next,
		At:          now,
	})
	return r
}

func alertFor(ev risk.Event, sig models.Signal) (notify.Alert, bool) {
	alert := notify.Alert{Signal: sig, Level: ev.Level, Target: ev.Target}
	switch ev.Type {
	case risk.EventEntryTriggered:
		alert.Kind = notify.KindEntry
	case risk.EventTargetHit:
		alert.Kind = notify.KindTarget
	case risk.EventStopHit:
		alert.Kind = notify.KindStop
	case risk.EventBreakevenExit:
		alert.Kind = notify.KindBreakeven
	case risk.EventExpired:
		alert.Kind = notify.KindExpired
	default:
		return alert, false
	}
	return alert, true
}
