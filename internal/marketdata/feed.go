package marketdata

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"signal-risk-bot/internal/metrics"
)

// SymbolSource lists the symbols that currently need prices.
type SymbolSource interface {
	OpenSymbols(ctx context.Context) ([]string, error)
}

// Feed polls a QuoteSource on a fixed cadence and keeps the latest tick per
// symbol in memory. Readers never wait on a fetch.
type Feed struct {
	source   QuoteSource
	symbols  SymbolSource
	interval time.Duration
	logger   *zap.Logger

	mu          sync.RWMutex
	snapshot    map[string]PriceTick
	lastRefresh time.Time
}

// NewFeed creates a feed that polls source for the symbols reported by symbols.
func NewFeed(source QuoteSource, symbols SymbolSource, interval time.Duration, logger *zap.Logger) *Feed {
	return &Feed{
		source:   source,
		symbols:  symbols,
		interval: interval,
		logger:   logger.Named("feed"),
		snapshot: make(map[string]PriceTick),
	}
}

// Refresh fetches quotes for the open symbols and merges them into the
// snapshot. On error the snapshot is left as it was.
func (f *Feed) Refresh(ctx context.Context) error {
	symbols, err := f.symbols.OpenSymbols(ctx)
	if err != nil {
		metrics.PriceFetchErrors.Inc()
		return fmt.Errorf("list open symbols: %w", err)
	}
	if len(symbols) == 0 {
		return nil
	}

	ticks, err := f.source.GetQuotes(ctx, symbols)
	if err != nil {
		metrics.PriceFetchErrors.Inc()
		return err
	}

	f.mu.Lock()
	for symbol, tick := range ticks {
		f.snapshot[symbol] = tick
	}
	f.lastRefresh = time.Now()
	size := len(f.snapshot)
	f.mu.Unlock()

	metrics.PricesCached.Set(float64(size))
	if missing := len(symbols) - len(ticks); missing > 0 {
		f.logger.Debug("Provider returned partial quotes", zap.Int("requested", len(symbols)), zap.Int("missing", missing))
	}
	return nil
}

// Run refreshes immediately and then every interval until ctx is done.
func (f *Feed) Run(ctx context.Context) {
	f.logger.Info("Price feed started", zap.Duration("interval", f.interval))
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		if err := f.Refresh(ctx); err != nil && ctx.Err() == nil {
			f.logger.Warn("Price refresh failed, keeping previous snapshot", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			f.logger.Info("Price feed stopped")
			return
		case <-ticker.C:
		}
	}
}

// Snapshot returns a copy of the cached ticks.
func (f *Feed) Snapshot() map[string]PriceTick {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make(map[string]PriceTick, len(f.snapshot))
	for k, v := range f.snapshot {
		out[k] = v
	}
	return out
}

// Price returns the cached tick for symbol.
func (f *Feed) Price(symbol string) (PriceTick, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	tick, ok := f.snapshot[symbol]
	return tick, ok
}

// LastRefresh is the time of the last successful fetch.
func (f *Feed) LastRefresh() time.Time {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.lastRefresh
}
