package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Signal is a trading signal and its risk lifecycle.
// Levels are immutable once created; the rest is owned by the monitor.
type Signal struct {
	ID      string `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Version int64  `gorm:"not null;default:0" json:"version"`

	Symbol          string              `gorm:"type:varchar(32);not null;index" json:"symbol"`
	InstrumentClass InstrumentClass     `gorm:"type:varchar(16);not null;default:forex" json:"instrument_class"`
	Direction       Direction           `gorm:"type:varchar(8);not null" json:"direction"`
	EntryPrice      decimal.Decimal     `gorm:"column:entry_price;type:numeric;not null" json:"entry_price"`
	StopLoss        decimal.Decimal     `gorm:"column:stop_loss;type:numeric;not null" json:"stop_loss"`
	TakeProfit1     decimal.Decimal     `gorm:"column:take_profit_1;type:numeric;not null" json:"take_profit_1"`
	TakeProfit2     decimal.NullDecimal `gorm:"column:take_profit_2;type:numeric" json:"take_profit_2"`
	TakeProfit3     decimal.NullDecimal `gorm:"column:take_profit_3;type:numeric" json:"take_profit_3"`
	RiskReward      decimal.Decimal     `gorm:"column:risk_reward;type:numeric" json:"risk_reward"`
	Confluence      int                 `json:"confluence"`

	EntryTriggered     bool                `gorm:"not null;default:false" json:"entry_triggered"`
	EntryTriggeredAt   *time.Time          `json:"entry_triggered_at"`
	BreakevenTriggered bool                `gorm:"not null;default:false" json:"breakeven_triggered"`
	TrailingStop       decimal.NullDecimal `gorm:"column:trailing_stop;type:numeric" json:"trailing_stop"`
	TP1Closed          bool                `gorm:"column:tp1_closed;not null;default:false" json:"tp1_closed"`
	TP2Closed          bool                `gorm:"column:tp2_closed;not null;default:false" json:"tp2_closed"`
	TP1PnL             decimal.Decimal     `gorm:"column:tp1_pnl;type:numeric" json:"tp1_pnl"`
	TP2PnL             decimal.Decimal     `gorm:"column:tp2_pnl;type:numeric" json:"tp2_pnl"`
	RunnerPnL          decimal.Decimal     `gorm:"column:runner_pnl;type:numeric" json:"runner_pnl"`
	FinalRMultiple     decimal.NullDecimal `gorm:"column:final_r_multiple;type:numeric" json:"final_r_multiple"`
	ExitPrice          decimal.NullDecimal `gorm:"column:exit_price;type:numeric" json:"exit_price"`

	CurrentPrice          decimal.NullDecimal `gorm:"column:current_price;type:numeric" json:"current_price"`
	HighestPrice          decimal.NullDecimal `gorm:"column:highest_price;type:numeric" json:"highest_price"`
	LowestPrice           decimal.NullDecimal `gorm:"column:lowest_price;type:numeric" json:"lowest_price"`
	MaxAdverseExcursion   decimal.Decimal     `gorm:"column:max_adverse_excursion;type:numeric" json:"max_adverse_excursion"`
	MaxFavorableExcursion decimal.Decimal     `gorm:"column:max_favorable_excursion;type:numeric" json:"max_favorable_excursion"`

	TradeState   TradeState   `gorm:"type:varchar(16);not null;default:pending;index" json:"trade_state"`
	SignalStatus SignalStatus `gorm:"type:varchar(16);not null;default:pending;index" json:"signal_status"`
	Outcome      Outcome      `gorm:"type:varchar(16);not null;default:pending;index" json:"outcome"`
	ClosedAt     *time.Time   `json:"closed_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsTerminal reports whether the signal has reached a final status.
func (s *Signal) IsTerminal() bool {
	return s.SignalStatus.IsTerminal()
}

// Risk is the absolute distance between entry and stop loss.
func (s *Signal) Risk() decimal.Decimal {
	return s.EntryPrice.Sub(s.StopLoss).Abs()
}
