// Package signals implements the operator commands on signals: ingesting
// generated signals, manual outcome overrides and deletion.
package signals

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"signal-risk-bot/internal/events"
	"signal-risk-bot/internal/marketdata"
	"signal-risk-bot/internal/models"
	"signal-risk-bot/internal/notify"
	"signal-risk-bot/internal/risk"
	"signal-risk-bot/internal/store"
)

var (
	// ErrSignalClosed is returned when overriding a signal that is already terminal.
	ErrSignalClosed = errors.New("signal is already closed")
	// ErrInvalidOutcome is returned for unknown outcomes, pending, or a
	// target the signal does not define.
	ErrInvalidOutcome = errors.New("invalid outcome")
	// ErrInvalidSignal is returned when a new signal's levels are inconsistent.
	ErrInvalidSignal = errors.New("invalid signal")
)

// Repository is the persistence the service needs.
type Repository interface {
	Create(ctx context.Context, s *models.Signal) error
	FindByID(ctx context.Context, id string) (*models.Signal, error)
	List(ctx context.Context, filter store.SignalFilter) ([]models.Signal, error)
	ApplyUpdate(ctx context.Context, s *models.Signal) error
	Delete(ctx context.Context, id string) error
	DeleteAll(ctx context.Context) (int64, error)
}

// PriceSource looks up the latest cached price of a symbol.
type PriceSource interface {
	Price(symbol string) (marketdata.PriceTick, bool)
}

// Alerter queues user-facing alerts.
type Alerter interface {
	Dispatch(alert notify.Alert)
}

// Publisher emits change events.
type Publisher interface {
	Publish(ev events.Event)
}

// Service implements the signal commands.
type Service struct {
	repo   Repository
	prices PriceSource
	engine *risk.Engine
	alerts Alerter
	bus    Publisher
	logger *zap.Logger
	now    func() time.Time
}

// NewService creates a new signal service.
func NewService(repo Repository, prices PriceSource, engine *risk.Engine, alerts Alerter, bus Publisher, logger *zap.Logger) *Service {
	return &Service{
		repo:   repo,
		prices: prices,
		engine: engine,
		alerts: alerts,
		bus:    bus,
		logger: logger.Named("signals"),
		now:    time.Now,
	}
}

// NewSignal is a generated signal to ingest.
type NewSignal struct {
	Symbol          string                 `json:"symbol"`
	InstrumentClass models.InstrumentClass `json:"instrument_class"`
	Direction       models.Direction       `json:"direction"`
	EntryPrice      decimal.Decimal        `json:"entry_price"`
	StopLoss        decimal.Decimal        `json:"stop_loss"`
	TakeProfit1     decimal.Decimal        `json:"take_profit_1"`
	TakeProfit2     decimal.NullDecimal    `json:"take_profit_2"`
	TakeProfit3     decimal.NullDecimal    `json:"take_profit_3"`
	Confluence      int                    `json:"confluence"`
}

// Validate checks that the levels are ordered for the direction: for a
// long stop < entry < TP1 < TP2 < TP3, mirrored for a short.
func (n NewSignal) Validate() error {
	if strings.TrimSpace(n.Symbol) == "" {
		return fmt.Errorf("%w: symbol is required", ErrInvalidSignal)
	}
	if !n.Direction.Valid() {
		return fmt.Errorf("%w: unknown direction %q", ErrInvalidSignal, n.Direction)
	}
	if n.InstrumentClass != "" && !n.InstrumentClass.Valid() {
		return fmt.Errorf("%w: unknown instrument class %q", ErrInvalidSignal, n.InstrumentClass)
	}
	if n.Confluence < 0 || n.Confluence > 100 {
		return fmt.Errorf("%w: confluence must be within 0..100", ErrInvalidSignal)
	}
	if !n.EntryPrice.IsPositive() || !n.StopLoss.IsPositive() || !n.TakeProfit1.IsPositive() {
		return fmt.Errorf("%w: entry, stop and TP1 must be positive", ErrInvalidSignal)
	}
	if n.TakeProfit3.Valid && !n.TakeProfit2.Valid {
		return fmt.Errorf("%w: TP3 requires TP2", ErrInvalidSignal)
	}

	levels := []decimal.Decimal{n.StopLoss, n.EntryPrice, n.TakeProfit1}
	if n.TakeProfit2.Valid {
		levels = append(levels, n.TakeProfit2.Decimal)
	}
	if n.TakeProfit3.Valid {
		levels = append(levels, n.TakeProfit3.Decimal)
	}
	for i := 1; i < len(levels); i++ {
		ordered := levels[i].GreaterThan(levels[i-1])
		if n.Direction == models.DirectionShort {
			ordered = levels[i].LessThan(levels[i-1])
		}
		if !ordered {
			return fmt.Errorf("%w: levels must run stop < entry < targets for a %s", ErrInvalidSignal, n.Direction)
		}
	}
	return nil
}

// Create validates and stores a new pending signal.
func (s *Service) Create(ctx context.Context, in NewSignal) (*models.Signal, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	class := in.InstrumentClass
	if class == "" {
		class = models.ClassForex
	}
	oneR := in.EntryPrice.Sub(in.StopLoss).Abs()
	reward := in.TakeProfit1.Sub(in.EntryPrice).Abs()

	sig := &models.Signal{
		ID:              uuid.NewString(),
		Symbol:          strings.ToUpper(strings.TrimSpace(in.Symbol)),
		InstrumentClass: class,
		Direction:       in.Direction,
		EntryPrice:      in.EntryPrice,
		StopLoss:        in.StopLoss,
		TakeProfit1:     in.TakeProfit1,
		TakeProfit2:     in.TakeProfit2,
		TakeProfit3:     in.TakeProfit3,
		RiskReward:      reward.Div(oneR).Round(2),
		Confluence:      in.Confluence,
		TradeState:      models.TradeStatePending,
		SignalStatus:    models.StatusPending,
		Outcome:         models.OutcomePending,
		CreatedAt:       s.now(),
	}
	if err := s.repo.Create(ctx, sig); err != nil {
		return nil, err
	}

	s.logger.Info("Signal created",
		zap.String("signal_id", sig.ID),
		zap.String("symbol", sig.Symbol),
		zap.String("direction", string(sig.Direction)),
		zap.String("entry", sig.EntryPrice.String()),
	)
	s.bus.Publish(events.Event{Kind: events.KindSignalCreated, SignalID: sig.ID, Signal: sig})
	return sig, nil
}

// Get fetches a signal by id.
func (s *Service) Get(ctx context.Context, id string) (*models.Signal, error) {
	return s.repo.FindByID(ctx, id)
}

// List returns signals matching filter.
func (s *Service) List(ctx context.Context, filter store.SignalFilter) ([]models.Signal, error) {
	return s.repo.List(ctx, filter)
}

// UpdateOutcome closes an open signal with the given outcome, bypassing
// the automatic classifier. A closed signal is never reopened.
func (s *Service) UpdateOutcome(ctx context.Context, id string, outcome models.Outcome) (*models.Signal, error) {
	if !outcome.Valid() || outcome == models.OutcomePending {
		return nil, fmt.Errorf("%w: %q", ErrInvalidOutcome, outcome)
	}

	sig, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if sig.IsTerminal() {
		return nil, fmt.Errorf("signal %s: %w", id, ErrSignalClosed)
	}

	pos := risk.FromSignal(sig)
	status, exit, err := s.classify(sig, pos, outcome)
	if err != nil {
		return nil, err
	}

	now := s.now()
	closed := s.engine.Close(pos, status, outcome, exit, now)
	if outcome == models.OutcomeManualClose {
		closed.Close.Status = manualStatus(closed)
	}

	next := *sig
	closed.ApplyTo(&next)
	if err := s.repo.ApplyUpdate(ctx, &next); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, fmt.Errorf("signal %s: %w", id, ErrSignalClosed)
		}
		return nil, err
	}

	s.logger.Info("Signal outcome overridden",
		zap.String("signal_id", id),
		zap.String("outcome", string(next.Outcome)),
		zap.String("status", string(next.SignalStatus)),
	)
	s.alerts.Dispatch(notify.Alert{Kind: notify.KindManual, Signal: next, Level: exit.Decimal})
	s.bus.Publish(events.Event{
		Kind:        events.KindSignalUpdated,
		SignalID:    id,
		Transitions: []string{"manual_override"},
		Signal:      &next,
		At:          now,
	})
	return &next, nil
}

// classify maps an override outcome to its status and exit level.
func (s *Service) classify(sig *models.Signal, pos risk.Position, outcome models.Outcome) (models.SignalStatus, decimal.NullDecimal, error) {
	switch outcome {
	case models.OutcomeTarget1Hit:
		return models.StatusWon, decimal.NewNullDecimal(sig.TakeProfit1), nil
	case models.OutcomeTarget2Hit:
		if !sig.TakeProfit2.Valid {
			return "", decimal.NullDecimal{}, fmt.Errorf("%w: signal has no TP2", ErrInvalidOutcome)
		}
		return models.StatusWon, sig.TakeProfit2, nil
	case models.OutcomeTarget3Hit:
		if !sig.TakeProfit3.Valid {
			return "", decimal.NullDecimal{}, fmt.Errorf("%w: signal has no TP3", ErrInvalidOutcome)
		}
		return models.StatusWon, sig.TakeProfit3, nil
	case models.OutcomeSLHit:
		return models.StatusLost, decimal.NewNullDecimal(sig.StopLoss), nil
	case models.OutcomeBreakeven:
		return models.StatusBreakeven, decimal.NewNullDecimal(sig.EntryPrice), nil
	case models.OutcomeExpired:
		return models.StatusExpired, decimal.NullDecimal{}, nil
	case models.OutcomeManualClose:
		if pos.Trigger == nil {
			return models.StatusExpired, decimal.NullDecimal{}, nil
		}
		if tick, ok := s.prices.Price(sig.Symbol); ok {
			return models.StatusBreakeven, decimal.NewNullDecimal(tick.Price), nil
		}
		return models.StatusBreakeven, sig.CurrentPrice, nil
	}
	return "", decimal.NullDecimal{}, fmt.Errorf("%w: %q", ErrInvalidOutcome, outcome)
}

// manualStatus derives the status of a manual close from its result.
func manualStatus(pos risk.Position) models.SignalStatus {
	if pos.Trigger == nil || !pos.Close.FinalR.Valid {
		return models.StatusExpired
	}
	r := pos.Close.FinalR.Decimal
	switch {
	case r.IsPositive():
		return models.StatusWon
	case r.IsNegative():
		return models.StatusLost
	default:
		return models.StatusBreakeven
	}
}

// Delete removes a signal permanently.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("Signal deleted", zap.String("signal_id", id))
	s.bus.Publish(events.Event{Kind: events.KindSignalDeleted, SignalID: id})
	return nil
}

// DeleteAll removes every signal.
func (s *Service) DeleteAll(ctx context.Context) (int64, error) {
	n, err := s.repo.DeleteAll(ctx)
	if err != nil {
		return 0, err
	}
	s.logger.Warn("All signals deleted", zap.Int64("count", n))
	s.bus.Publish(events.Event{Kind: events.KindSignalsCleared})
	return n, nil
}
