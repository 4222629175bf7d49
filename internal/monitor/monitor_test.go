package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"signal-risk-bot/internal/config"
	"signal-risk-bot/internal/database"
	"signal-risk-bot/internal/events"
	"signal-risk-bot/internal/marketdata"
	"signal-risk-bot/internal/models"
	"signal-risk-bot/internal/notify"
	"signal-risk-bot/internal/risk"
	"signal-risk-bot/internal/store"
)

type staticPrices map[string]marketdata.PriceTick

func (p staticPrices) Snapshot() map[string]marketdata.PriceTick {
	out := make(map[string]marketdata.PriceTick, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

func (p staticPrices) set(symbol, price string) {
	p[symbol] = marketdata.PriceTick{Symbol: symbol, Price: decimal.RequireFromString(price), Timestamp: time.Now()}
}

type recordingAlerter struct {
	mu     sync.Mutex
	alerts []notify.Alert
}

func (r *recordingAlerter) Dispatch(a notify.Alert) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
}

func (r *recordingAlerter) kinds() []notify.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]notify.Kind, 0, len(r.alerts))
	for _, a := range r.alerts {
		out = append(out, a.Kind)
	}
	return out
}

// flakyStore fails updates for selected signal ids.
type flakyStore struct {
	*store.SignalRepository
	fail map[string]error
}

func (f *flakyStore) ApplyUpdate(ctx context.Context, s *models.Signal) error {
	if err, ok := f.fail[s.ID]; ok {
		return err
	}
	return f.SignalRepository.ApplyUpdate(ctx, s)
}

type fixture struct {
	repo    *store.SignalRepository
	prices  staticPrices
	alerts  *recordingAlerter
	bus     *events.Bus
	monitor *Monitor
}

func newFixture(t *testing.T, policy risk.Policy) *fixture {
	t.Helper()
	db, err := database.NewDatabase(config.Database{Driver: "sqlite", DSN: "file::memory:"})
	require.NoError(t, err)

	f := &fixture{
		repo:   store.NewSignalRepository(db, zap.NewNop()),
		prices: staticPrices{},
		alerts: &recordingAlerter{},
		bus:    events.NewBus(16, zap.NewNop()),
	}
	f.monitor = New(f.repo, f.prices, risk.NewEngine(policy), f.alerts, f.bus, 4, zap.NewNop())
	return f
}

func (f *fixture) addSignal(t *testing.T, symbol string, direction models.Direction, entry, stop, tp1 string) *models.Signal {
	t.Helper()
	sig := &models.Signal{
		ID:              uuid.NewString(),
		Symbol:          symbol,
		InstrumentClass: models.ClassForex,
		Direction:       direction,
		EntryPrice:      decimal.RequireFromString(entry),
		StopLoss:        decimal.RequireFromString(stop),
		TakeProfit1:     decimal.RequireFromString(tp1),
		TradeState:      models.TradeStatePending,
		SignalStatus:    models.StatusPending,
		Outcome:         models.OutcomePending,
	}
	require.NoError(t, f.repo.Create(context.Background(), sig))
	return sig
}

func TestRunCycle_EURUSDLifecycle(t *testing.T) {
	f := newFixture(t, risk.DefaultPolicy())
	ctx := context.Background()
	sig := f.addSignal(t, "EURUSD", models.DirectionLong, "1.0850", "1.0820", "1.0900")

	var states []models.TradeState
	for _, p := range []string{"1.0849", "1.0865", "1.0875", "1.0887", "1.0900"} {
		f.prices.set("EURUSD", p)
		_, err := f.monitor.RunCycle(ctx)
		require.NoError(t, err)

		got, err := f.repo.FindByID(ctx, sig.ID)
		require.NoError(t, err)
		states = append(states, got.TradeState)
	}

	got, err := f.repo.FindByID(ctx, sig.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusWon, got.SignalStatus)
	assert.Equal(t, models.OutcomeTarget1Hit, got.Outcome)
	assert.True(t, got.BreakevenTriggered)
	assert.True(t, got.ExitPrice.Decimal.Equal(decimal.RequireFromString("1.09")))
	assert.NotNil(t, got.ClosedAt)
	assert.Equal(t, []models.TradeState{
		models.TradeStateActive, models.TradeStateActive, models.TradeStatePhase1, models.TradeStatePhase1, models.TradeStateClosed,
	}, states)
	assert.Equal(t, []notify.Kind{notify.KindEntry, notify.KindTarget}, f.alerts.kinds())

	// Closed signals are no longer picked up.
	f.prices.set("EURUSD", "1.0700")
	report, err := f.monitor.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Open)
}

func TestRunCycle_Report(t *testing.T) {
	f := newFixture(t, risk.DefaultPolicy())
	f.addSignal(t, "EURUSD", models.DirectionLong, "1.0850", "1.0820", "1.0900")
	f.addSignal(t, "GBPUSD", models.DirectionShort, "1.2500", "1.2530", "1.2450")
	f.addSignal(t, "USDJPY", models.DirectionLong, "150.00", "149.00", "152.00")
	f.prices.set("EURUSD", "1.0849")
	f.prices.set("GBPUSD", "1.2540")

	report, err := f.monitor.RunCycle(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 3, report.Open)
	assert.Equal(t, 2, report.Evaluated)
	assert.Equal(t, 1, report.NoPrice)
	assert.Equal(t, 2, report.Updated)
	assert.Equal(t, 2, report.Triggered)
	assert.Equal(t, 1, report.Closed)
	assert.Zero(t, report.Errors)
}

func TestRunCycle_UnchangedPriceSkipsWrite(t *testing.T) {
	f := newFixture(t, risk.DefaultPolicy())
	ctx := context.Background()
	sig := f.addSignal(t, "EURUSD", models.DirectionLong, "1.0850", "1.0820", "1.0900")
	f.prices.set("EURUSD", "1.0870")

	first, err := f.monitor.RunCycle(ctx)
	require.NoError(t, err)
	second, err := f.monitor.RunCycle(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, first.Updated)
	assert.Equal(t, 0, second.Updated)
	got, err := f.repo.FindByID(ctx, sig.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Version)
	assert.False(t, got.EntryTriggered)
}

func TestRunCycle_PersistenceFailureIsIsolated(t *testing.T) {
	f := newFixture(t, risk.DefaultPolicy())
	ctx := context.Background()
	bad := f.addSignal(t, "EURUSD", models.DirectionLong, "1.0850", "1.0820", "1.0900")
	good := f.addSignal(t, "EURUSD", models.DirectionLong, "1.0860", "1.0830", "1.0910")
	stale := f.addSignal(t, "EURUSD", models.DirectionLong, "1.0870", "1.0840", "1.0920")

	fs := &flakyStore{SignalRepository: f.repo, fail: map[string]error{
		bad.ID:   errors.New("disk full"),
		stale.ID: fmt.Errorf("update signal %s: %w", stale.ID, store.ErrConflict),
	}}
	m := New(fs, f.prices, risk.NewEngine(risk.DefaultPolicy()), f.alerts, f.bus, 2, zap.NewNop())
	f.prices.set("EURUSD", "1.0849")

	report, err := m.RunCycle(ctx)

	require.NoError(t, err)
	assert.Equal(t, 1, report.Errors)
	assert.Equal(t, 1, report.Conflicts)
	assert.Equal(t, 1, report.Updated)

	got, err := f.repo.FindByID(ctx, good.ID)
	require.NoError(t, err)
	assert.True(t, got.EntryTriggered)

	got, err = f.repo.FindByID(ctx, bad.ID)
	require.NoError(t, err)
	assert.False(t, got.EntryTriggered)
	assert.Len(t, f.alerts.kinds(), 1)
}

func TestRunCycle_PublishesChanges(t *testing.T) {
	f := newFixture(t, risk.DefaultPolicy())
	sig := f.addSignal(t, "EURUSD", models.DirectionLong, "1.0850", "1.0820", "1.0900")
	ch, cancel := f.bus.Subscribe()
	defer cancel()
	f.prices.set("EURUSD", "1.0810")

	_, err := f.monitor.RunCycle(context.Background())
	require.NoError(t, err)

	select {
	case ev := <-ch:
		assert.Equal(t, events.KindSignalUpdated, ev.Kind)
		assert.Equal(t, sig.ID, ev.SignalID)
		assert.Equal(t, []string{string(risk.EventEntryTriggered), string(risk.EventStopHit)}, ev.Transitions)
		require.NotNil(t, ev.Signal)
		assert.Equal(t, models.StatusLost, ev.Signal.SignalStatus)
	case <-time.After(time.Second):
		t.Fatal("no event published")
	}
}

func TestRunCycle_ExpiresWithoutPrice(t *testing.T) {
	policy := risk.DefaultPolicy()
	policy.EntryExpiry = time.Hour
	f := newFixture(t, policy)
	sig := f.addSignal(t, "EURUSD", models.DirectionLong, "1.0850", "1.0820", "1.0900")
	f.monitor.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	report, err := f.monitor.RunCycle(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, report.Closed)
	got, err := f.repo.FindByID(context.Background(), sig.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusExpired, got.SignalStatus)
	assert.Equal(t, models.TradeStateClosed, got.TradeState)
	assert.Equal(t, []notify.Kind{notify.KindExpired}, f.alerts.kinds())
}

type failingList struct{ SignalStore }

func (failingList) ListOpen(context.Context) ([]models.Signal, error) {
	return nil, errors.New("connection refused")
}

func TestRunCycle_ListFailure(t *testing.T) {
	m := New(failingList{}, staticPrices{}, risk.NewEngine(risk.DefaultPolicy()), &recordingAlerter{}, events.NewBus(1, zap.NewNop()), 1, zap.NewNop())

	_, err := m.RunCycle(context.Background())

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}
