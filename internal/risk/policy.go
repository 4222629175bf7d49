package risk

import (
	"time"

	"github.com/shopspring/decimal"

	"signal-risk-bot/internal/config"
)

// Policy holds the numeric thresholds of the state machine.
type Policy struct {
	// BreakevenProgress arms breakeven once progress toward TP1 reaches it.
	BreakevenProgress decimal.Decimal
	// TrailingProgress starts trailing once progress toward TP1 reaches it.
	TrailingProgress decimal.Decimal
	// TrailingDistance is the trailing gap as a fraction of the TP1 distance.
	TrailingDistance decimal.Decimal
	// ScaleOut closes partial legs at TP1 and TP2 instead of the whole
	// position at TP1.
	ScaleOut       bool
	PartialWeights []decimal.Decimal
	// EntryExpiry closes signals that never triggered. Zero disables it.
	EntryExpiry time.Duration
}

// DefaultPolicy returns the thresholds used when nothing is configured.
func DefaultPolicy() Policy {
	return Policy{
		BreakevenProgress: decimal.NewFromFloat(0.5),
		TrailingProgress:  decimal.NewFromFloat(0.75),
		TrailingDistance:  decimal.NewFromFloat(0.25),
		PartialWeights:    []decimal.Decimal{decimal.NewFromFloat(0.5), decimal.NewFromFloat(0.3)},
	}
}

// PolicyFromConfig converts the risk config section.
func PolicyFromConfig(cfg config.Risk) Policy {
	weights := make([]decimal.Decimal, 0, len(cfg.PartialWeights))
	for _, w := range cfg.PartialWeights {
		weights = append(weights, decimal.NewFromFloat(w))
	}
	return Policy{
		BreakevenProgress: decimal.NewFromFloat(cfg.BreakevenProgress),
		TrailingProgress:  decimal.NewFromFloat(cfg.TrailingProgress),
		TrailingDistance:  decimal.NewFromFloat(cfg.TrailingDistance),
		ScaleOut:          cfg.ScaleOut,
		PartialWeights:    weights,
		EntryExpiry:       cfg.EntryExpiry,
	}
}
