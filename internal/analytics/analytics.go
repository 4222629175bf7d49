// Package analytics derives performance statistics from closed signals.
// Nothing here is stored; every figure is recomputed from the rows.
package analytics

import (
	"sort"

	"github.com/shopspring/decimal"

	"signal-risk-bot/internal/models"
)

// Stats summarizes a set of closed signals. R values are rounded to four
// decimal places. ProfitFactor is won/lost, or the raw win count when
// nothing was lost.
type Stats struct {
	Total        int                    `json:"total"`
	Won          int                    `json:"won"`
	Lost         int                    `json:"lost"`
	Breakeven    int                    `json:"breakeven"`
	Expired      int                    `json:"expired"`
	ByOutcome    map[models.Outcome]int `json:"by_outcome"`
	WinRate      decimal.Decimal        `json:"win_rate"`
	ProfitFactor decimal.Decimal        `json:"profit_factor"`
	AvgMAE       decimal.Decimal        `json:"avg_mae"`
	AvgMFE       decimal.Decimal        `json:"avg_mfe"`
	AvgWinR      decimal.Decimal        `json:"avg_win_r"`
	AvgLossR     decimal.Decimal        `json:"avg_loss_r"`
	Expectancy   decimal.Decimal        `json:"expectancy"`
	TotalR       decimal.Decimal        `json:"total_r"`
}

const precision = 4

// Compute aggregates signals whose trade state is closed; others are ignored.
func Compute(signals []models.Signal) Stats {
	stats := Stats{ByOutcome: make(map[models.Outcome]int)}

	maeSum, mfeSum := decimal.Zero, decimal.Zero
	winSum, lossSum := decimal.Zero, decimal.Zero
	totalR := decimal.Zero
	var wins, losses, triggered int

	for i := range signals {
		s := &signals[i]
		if s.TradeState != models.TradeStateClosed {
			continue
		}
		stats.Total++
		stats.ByOutcome[s.Outcome]++

		switch s.SignalStatus {
		case models.StatusWon:
			stats.Won++
		case models.StatusLost:
			stats.Lost++
		case models.StatusBreakeven:
			stats.Breakeven++
		case models.StatusExpired:
			stats.Expired++
		}

		// Excursions exist only once the entry filled.
		if s.EntryTriggered {
			triggered++
			maeSum = maeSum.Add(s.MaxAdverseExcursion)
			mfeSum = mfeSum.Add(s.MaxFavorableExcursion)
		}

		if !s.FinalRMultiple.Valid {
			continue
		}
		r := s.FinalRMultiple.Decimal
		totalR = totalR.Add(r)
		switch {
		case r.IsPositive():
			winSum = winSum.Add(r)
			wins++
		case r.IsNegative():
			lossSum = lossSum.Add(r.Abs())
			losses++
		}
	}

	winRate := decimal.Zero
	if decided := stats.Won + stats.Lost + stats.Breakeven; decided > 0 {
		winRate = decimal.NewFromInt(int64(stats.Won)).Div(decimal.NewFromInt(int64(decided)))
	}
	stats.WinRate = winRate.Round(precision)
	if stats.Lost > 0 {
		stats.ProfitFactor = ratio(stats.Won, stats.Lost)
	} else {
		stats.ProfitFactor = decimal.NewFromInt(int64(stats.Won))
	}

	stats.AvgMAE = mean(maeSum, triggered)
	stats.AvgMFE = mean(mfeSum, triggered)
	avgWin, avgLoss := decimal.Zero, decimal.Zero
	if wins > 0 {
		avgWin = winSum.Div(decimal.NewFromInt(int64(wins)))
	}
	if losses > 0 {
		avgLoss = lossSum.Div(decimal.NewFromInt(int64(losses)))
	}
	stats.AvgWinR = avgWin.Round(precision)
	stats.AvgLossR = avgLoss.Round(precision)

	one := decimal.NewFromInt(1)
	stats.Expectancy = winRate.Mul(avgWin).
		Sub(one.Sub(winRate).Mul(avgLoss)).
		Round(precision)
	stats.TotalR = totalR.Round(precision)

	return stats
}

// SymbolStats pairs a symbol with its statistics.
type SymbolStats struct {
	Symbol string `json:"symbol"`
	Stats
}

// ComputeBySymbol aggregates closed signals per symbol, sorted by symbol.
func ComputeBySymbol(signals []models.Signal) []SymbolStats {
	groups := make(map[string][]models.Signal)
	for _, s := range signals {
		if s.TradeState != models.TradeStateClosed {
			continue
		}
		groups[s.Symbol] = append(groups[s.Symbol], s)
	}

	out := make([]SymbolStats, 0, len(groups))
	for symbol, group := range groups {
		out = append(out, SymbolStats{Symbol: symbol, Stats: Compute(group)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

func ratio(num, den int) decimal.Decimal {
	if den == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(num)).Div(decimal.NewFromInt(int64(den))).Round(precision)
}

func mean(sum decimal.Decimal, n int) decimal.Decimal {
	if n == 0 {
		return decimal.Zero
	}
	return sum.Div(decimal.NewFromInt(int64(n))).Round(precision)
}
