package analytics

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal-risk-bot/internal/models"
)

func closed(symbol string, status models.SignalStatus, outcome models.Outcome, r, mae, mfe string) models.Signal {
	s := models.Signal{
		Symbol:                symbol,
		EntryTriggered:        status != models.StatusExpired,
		TradeState:            models.TradeStateClosed,
		SignalStatus:          status,
		Outcome:               outcome,
		MaxAdverseExcursion:   decimal.RequireFromString(mae),
		MaxFavorableExcursion: decimal.RequireFromString(mfe),
	}
	if r != "" {
		s.FinalRMultiple = decimal.NewNullDecimal(decimal.RequireFromString(r))
	}
	return s
}

func sample() []models.Signal {
	return []models.Signal{
		closed("EURUSD", models.StatusWon, models.OutcomeTarget1Hit, "1.5", "0.2", "1.7"),
		closed("GBPUSD", models.StatusWon, models.OutcomeTarget2Hit, "1", "0.1", "2"),
		closed("EURUSD", models.StatusLost, models.OutcomeSLHit, "-1", "1.1", "0.3"),
		closed("EURUSD", models.StatusBreakeven, models.OutcomeBreakeven, "0", "0.1", "0.6"),
		closed("USDJPY", models.StatusExpired, models.OutcomeExpired, "", "0", "0"),
		{Symbol: "EURUSD", TradeState: models.TradeStatePhase1, SignalStatus: models.StatusActive},
	}
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.Truef(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s", want, got)
}

func TestCompute(t *testing.T) {
	stats := Compute(sample())

	assert.Equal(t, 5, stats.Total)
	assert.Equal(t, 2, stats.Won)
	assert.Equal(t, 1, stats.Lost)
	assert.Equal(t, 1, stats.Breakeven)
	assert.Equal(t, 1, stats.Expired)
	assert.Equal(t, 1, stats.ByOutcome[models.OutcomeSLHit])
	assert.Equal(t, 1, stats.ByOutcome[models.OutcomeExpired])

	assertDecimal(t, "0.5", stats.WinRate)
	assertDecimal(t, "2", stats.ProfitFactor)
	assertDecimal(t, "0.375", stats.AvgMAE)
	assertDecimal(t, "1.15", stats.AvgMFE)
	assertDecimal(t, "1.25", stats.AvgWinR)
	assertDecimal(t, "1", stats.AvgLossR)
	assertDecimal(t, "0.125", stats.Expectancy)
	assertDecimal(t, "1.5", stats.TotalR)
}

func TestCompute_ExcursionsIgnoreUntriggered(t *testing.T) {
	// Arrange
	signals := []models.Signal{
		closed("EURUSD", models.StatusWon, models.OutcomeTarget1Hit, "1", "0.4", "1.2"),
		closed("EURUSD", models.StatusLost, models.OutcomeSLHit, "-1", "1", "0.2"),
		closed("USDJPY", models.StatusExpired, models.OutcomeExpired, "", "0", "0"),
		closed("GBPUSD", models.StatusExpired, models.OutcomeExpired, "", "0", "0"),
	}

	// Act
	stats := Compute(signals)

	// Assert
	assert.Equal(t, 4, stats.Total)
	assertDecimal(t, "0.7", stats.AvgMAE)
	assertDecimal(t, "0.7", stats.AvgMFE)
}

func TestCompute_OnlyExpired(t *testing.T) {
	stats := Compute([]models.Signal{
		closed("USDJPY", models.StatusExpired, models.OutcomeExpired, "", "0", "0"),
	})

	assert.Equal(t, 1, stats.Expired)
	assert.True(t, stats.AvgMAE.IsZero())
	assert.True(t, stats.AvgMFE.IsZero())
}

func TestCompute_Empty(t *testing.T) {
	stats := Compute(nil)

	assert.Zero(t, stats.Total)
	assert.True(t, stats.WinRate.IsZero())
	assert.True(t, stats.ProfitFactor.IsZero())
	assert.True(t, stats.Expectancy.IsZero())
	assert.True(t, stats.AvgMAE.IsZero())
}

func TestCompute_ProfitFactorWithoutLosses(t *testing.T) {
	stats := Compute([]models.Signal{
		closed("EURUSD", models.StatusWon, models.OutcomeTarget1Hit, "1", "0", "1"),
		closed("EURUSD", models.StatusWon, models.OutcomeTarget1Hit, "1", "0", "1"),
		closed("EURUSD", models.StatusWon, models.OutcomeTarget1Hit, "1", "0", "1"),
	})

	assertDecimal(t, "3", stats.ProfitFactor)
	assertDecimal(t, "1", stats.WinRate)
	assertDecimal(t, "1", stats.Expectancy)
}

func TestCompute_Idempotent(t *testing.T) {
	signals := sample()

	first := Compute(signals)
	second := Compute(signals)

	assert.Equal(t, first, second)
	assert.Equal(t, sample(), signals)
}

func TestComputeBySymbol(t *testing.T) {
	groups := ComputeBySymbol(sample())

	require.Len(t, groups, 3)
	assert.Equal(t, "EURUSD", groups[0].Symbol)
	assert.Equal(t, "GBPUSD", groups[1].Symbol)
	assert.Equal(t, "USDJPY", groups[2].Symbol)

	eur := groups[0]
	assert.Equal(t, 3, eur.Total)
	assertDecimal(t, "0.3333", eur.WinRate)
	assertDecimal(t, "0.5", eur.TotalR)
}
