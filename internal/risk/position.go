package risk

import (
	"time"

	"github.com/shopspring/decimal"

	"signal-risk-bot/internal/models"
)

// Position is the risk engine's view of a signal. Phase payloads are nil
// until the phase is reached, so a pending position carries no extrema and
// an open one carries no outcome.
type Position struct {
	ID        string
	Direction models.Direction
	Entry     decimal.Decimal
	Stop      decimal.Decimal
	// Targets holds TP1 and the optional TP2/TP3 in order.
	Targets   []decimal.Decimal
	CreatedAt time.Time

	State        models.TradeState
	CurrentPrice decimal.NullDecimal

	Trigger    *TriggerState
	Protection *ProtectionState
	Legs       LegState
	Close      *CloseState
}

// TriggerState exists once the entry has triggered.
type TriggerState struct {
	At      time.Time
	Highest decimal.Decimal
	Lowest  decimal.Decimal
	MAE     decimal.Decimal
	MFE     decimal.Decimal
}

// ProtectionState exists once breakeven is armed. Stop starts at the entry
// and only tightens; TradeState records whether it has trailed.
type ProtectionState struct {
	Stop decimal.Decimal
}

// LegState tracks realized target legs, P&L in R.
type LegState struct {
	Closed    int
	TP1PnL    decimal.Decimal
	TP2PnL    decimal.Decimal
	RunnerPnL decimal.Decimal
}

// CloseState exists once the position is terminal.
type CloseState struct {
	Status    models.SignalStatus
	Outcome   models.Outcome
	ExitPrice decimal.NullDecimal
	FinalR    decimal.NullDecimal
	At        time.Time
}

// Status derives the signal status from the phase payloads.
func (p Position) Status() models.SignalStatus {
	switch {
	case p.Close != nil:
		return p.Close.Status
	case p.Trigger != nil:
		return models.StatusActive
	default:
		return models.StatusPending
	}
}

// Outcome derives the outcome from the phase payloads.
func (p Position) Outcome() models.Outcome {
	if p.Close != nil {
		return p.Close.Outcome
	}
	return models.OutcomePending
}

// RealizedR is the sum of the leg P&L.
func (p Position) RealizedR() decimal.Decimal {
	return p.Legs.TP1PnL.Add(p.Legs.TP2PnL).Add(p.Legs.RunnerPnL)
}

func (p Position) clone() Position {
	c := p
	c.Targets = append([]decimal.Decimal(nil), p.Targets...)
	if p.Trigger != nil {
		t := *p.Trigger
		c.Trigger = &t
	}
	if p.Protection != nil {
		pr := *p.Protection
		c.Protection = &pr
	}
	if p.Close != nil {
		cl := *p.Close
		c.Close = &cl
	}
	return c
}

// FromSignal builds a position from a persisted signal row.
func FromSignal(s *models.Signal) Position {
	p := Position{
		ID:           s.ID,
		Direction:    s.Direction,
		Entry:        s.EntryPrice,
		Stop:         s.StopLoss,
		Targets:      []decimal.Decimal{s.TakeProfit1},
		CreatedAt:    s.CreatedAt,
		State:        s.TradeState,
		CurrentPrice: s.CurrentPrice,
		Legs: LegState{
			TP1PnL:    s.TP1PnL,
			TP2PnL:    s.TP2PnL,
			RunnerPnL: s.RunnerPnL,
		},
	}
	if s.TakeProfit2.Valid {
		p.Targets = append(p.Targets, s.TakeProfit2.Decimal)
		if s.TakeProfit3.Valid {
			p.Targets = append(p.Targets, s.TakeProfit3.Decimal)
		}
	}
	if p.State == "" {
		p.State = models.TradeStatePending
	}

	if s.EntryTriggered {
		t := &TriggerState{
			Highest: valueOr(s.HighestPrice, s.EntryPrice),
			Lowest:  valueOr(s.LowestPrice, s.EntryPrice),
			MAE:     s.MaxAdverseExcursion,
			MFE:     s.MaxFavorableExcursion,
		}
		if s.EntryTriggeredAt != nil {
			t.At = *s.EntryTriggeredAt
		}
		p.Trigger = t
	}
	if s.BreakevenTriggered {
		p.Protection = &ProtectionState{Stop: valueOr(s.TrailingStop, s.EntryPrice)}
	}
	if s.TP1Closed {
		p.Legs.Closed++
		if s.TP2Closed {
			p.Legs.Closed++
		}
	}
	if s.IsTerminal() {
		cl := &CloseState{
			Status:    s.SignalStatus,
			Outcome:   s.Outcome,
			ExitPrice: s.ExitPrice,
			FinalR:    s.FinalRMultiple,
		}
		if s.ClosedAt != nil {
			cl.At = *s.ClosedAt
		}
		p.Close = cl
	}
	return p
}

// ApplyTo writes the lifecycle fields of p onto s. Static levels are left
// untouched.
func (p Position) ApplyTo(s *models.Signal) {
	s.TradeState = p.State
	s.SignalStatus = p.Status()
	s.Outcome = p.Outcome()
	s.CurrentPrice = p.CurrentPrice

	if p.Trigger != nil {
		at := p.Trigger.At
		s.EntryTriggered = true
		s.EntryTriggeredAt = &at
		s.HighestPrice = decimal.NewNullDecimal(p.Trigger.Highest)
		s.LowestPrice = decimal.NewNullDecimal(p.Trigger.Lowest)
		s.MaxAdverseExcursion = p.Trigger.MAE
		s.MaxFavorableExcursion = p.Trigger.MFE
	}
	if p.Protection != nil {
		s.BreakevenTriggered = true
		s.TrailingStop = decimal.NewNullDecimal(p.Protection.Stop)
	}

	s.TP1Closed = p.Legs.Closed >= 1
	s.TP2Closed = p.Legs.Closed >= 2
	s.TP1PnL = p.Legs.TP1PnL
	s.TP2PnL = p.Legs.TP2PnL
	s.RunnerPnL = p.Legs.RunnerPnL

	if p.Close != nil {
		at := p.Close.At
		s.ClosedAt = &at
		s.ExitPrice = p.Close.ExitPrice
		s.FinalRMultiple = p.Close.FinalR
	}
}

func valueOr(v decimal.NullDecimal, def decimal.Decimal) decimal.Decimal {
	if v.Valid {
		return v.Decimal
	}
	return def
}
