package models

// Direction is the side of a signal.
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
)

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool {
	return d == DirectionLong || d == DirectionShort
}

// TradeState is the risk phase of a signal. It only ever moves forward.
type TradeState string

const (
	TradeStatePending TradeState = "pending"
	TradeStateActive  TradeState = "active"
	TradeStatePhase1  TradeState = "phase1" // breakeven armed
	TradeStatePhase2  TradeState = "phase2" // trailing stop engaged
	TradeStatePhase3  TradeState = "phase3" // partial target leg realized
	TradeStateClosed  TradeState = "closed"
)

var tradeStateRank = map[TradeState]int{
	TradeStatePending: 0,
	TradeStateActive:  1,
	TradeStatePhase1:  2,
	TradeStatePhase2:  3,
	TradeStatePhase3:  4,
	TradeStateClosed:  5,
}

// Rank orders trade states; unknown states rank below pending.
func (s TradeState) Rank() int {
	if r, ok := tradeStateRank[s]; ok {
		return r
	}
	return -1
}

// Advance returns the later of s and next.
func (s TradeState) Advance(next TradeState) TradeState {
	if next.Rank() > s.Rank() {
		return next
	}
	return s
}

// SignalStatus is the user-facing status of a signal.
type SignalStatus string

const (
	StatusPending   SignalStatus = "pending"
	StatusActive    SignalStatus = "active"
	StatusWon       SignalStatus = "won"
	StatusLost      SignalStatus = "lost"
	StatusBreakeven SignalStatus = "breakeven"
	StatusExpired   SignalStatus = "expired"
)

// OpenStatuses are the statuses the risk engine may still mutate.
var OpenStatuses = []SignalStatus{StatusPending, StatusActive}

// IsTerminal reports whether the status is final.
func (s SignalStatus) IsTerminal() bool {
	switch s {
	case StatusWon, StatusLost, StatusBreakeven, StatusExpired:
		return true
	}
	return false
}

// Outcome is the classified result of a signal.
type Outcome string

const (
	OutcomePending     Outcome = "pending"
	OutcomeTarget1Hit  Outcome = "target_1_hit"
	OutcomeTarget2Hit  Outcome = "target_2_hit"
	OutcomeTarget3Hit  Outcome = "target_3_hit"
	OutcomeSLHit       Outcome = "sl_hit"
	OutcomeBreakeven   Outcome = "breakeven"
	OutcomeManualClose Outcome = "manual_close"
	OutcomeExpired     Outcome = "expired"
)

// Valid reports whether o is a known outcome.
func (o Outcome) Valid() bool {
	switch o {
	case OutcomePending, OutcomeTarget1Hit, OutcomeTarget2Hit, OutcomeTarget3Hit,
		OutcomeSLHit, OutcomeBreakeven, OutcomeManualClose, OutcomeExpired:
		return true
	}
	return false
}

// TargetOutcome maps a 1-based target index to its outcome.
func TargetOutcome(n int) Outcome {
	switch n {
	case 2:
		return OutcomeTarget2Hit
	case 3:
		return OutcomeTarget3Hit
	default:
		return OutcomeTarget1Hit
	}
}

// InstrumentClass groups symbols for the bot's enable/disable toggles.
type InstrumentClass string

const (
	ClassForex       InstrumentClass = "forex"
	ClassCrypto      InstrumentClass = "crypto"
	ClassIndices     InstrumentClass = "indices"
	ClassCommodities InstrumentClass = "commodities"
	ClassStocks      InstrumentClass = "stocks"
)

// Valid reports whether c is a known instrument class.
func (c InstrumentClass) Valid() bool {
	switch c {
	case ClassForex, ClassCrypto, ClassIndices, ClassCommodities, ClassStocks:
		return true
	}
	return false
}
