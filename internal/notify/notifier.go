// Package notify sends user-facing alerts about signal transitions.
// Delivery is best effort: failures are logged and never undo the
// transition that caused them.
package notify

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"signal-risk-bot/internal/config"
	"signal-risk-bot/internal/models"
)

// Kind is the category of an alert.
type Kind string

const (
	KindEntry     Kind = "entry"
	KindTarget    Kind = "target"
	KindStop      Kind = "stop"
	KindBreakeven Kind = "breakeven"
	KindExpired   Kind = "expired"
	KindManual    Kind = "manual"
)

// IsOutcome reports whether the alert announces a terminal result or a
// realized target.
func (k Kind) IsOutcome() bool {
	return k != KindEntry
}

// Alert is a single notification.
type Alert struct {
	Kind   Kind
	Signal models.Signal
	// Target is the 1-based target index for KindTarget.
	Target int
	// Level is the price the alert refers to: entry, target or stop.
	Level decimal.Decimal
}

// Notifier delivers alerts.
type Notifier interface {
	Notify(ctx context.Context, alert Alert) error
}

// sender is the part of tgbotapi.BotAPI the notifier needs.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier posts alerts to a Telegram chat.
type TelegramNotifier struct {
	bot    sender
	chatID int64
	logger *zap.Logger
}

// NewNotifier returns a Telegram notifier when enabled and reachable, and
// a log-only notifier otherwise.
func NewNotifier(cfg config.Telegram, logger *zap.Logger) Notifier {
	logger = logger.Named("notify")
	if !cfg.Enabled {
		return NewLogNotifier(logger)
	}

	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		logger.Error("Failed to create telegram bot, falling back to log notifications", zap.Error(err))
		return NewLogNotifier(logger)
	}

	logger.Info("Telegram bot connected", zap.String("username", bot.Self.UserName))
	return &TelegramNotifier{bot: bot, chatID: cfg.ChatID, logger: logger}
}

// Notify sends the alert as a Markdown message.
func (n *TelegramNotifier) Notify(_ context.Context, alert Alert) error {
	msg := tgbotapi.NewMessage(n.chatID, Format(alert))
	msg.ParseMode = tgbotapi.ModeMarkdown

	if _, err := n.bot.Send(msg); err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	return nil
}

// LogNotifier writes alerts to the log only.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a log-only notifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify logs the alert.
func (n *LogNotifier) Notify(_ context.Context, alert Alert) error {
	n.logger.Info("Alert",
		zap.String("kind", string(alert.Kind)),
		zap.String("signal_id", alert.Signal.ID),
		zap.String("symbol", alert.Signal.Symbol),
		zap.String("level", alert.Level.String()),
		zap.String("outcome", string(alert.Signal.Outcome)),
	)
	return nil
}

// Format renders the alert text.
func Format(a Alert) string {
	s := a.Signal
	side := strings.ToUpper(string(s.Direction))
	symbol := esc(s.Symbol)

	switch a.Kind {
	case KindEntry:
		text := fmt.Sprintf("🟢 *ENTRY* %s %s\nEntry: %s\nSL: %s\nTP1: %s",
			side, symbol, s.EntryPrice, s.StopLoss, s.TakeProfit1)
		if s.TakeProfit2.Valid {
			text += fmt.Sprintf("\nTP2: %s", s.TakeProfit2.Decimal)
		}
		if s.TakeProfit3.Valid {
			text += fmt.Sprintf("\nTP3: %s", s.TakeProfit3.Decimal)
		}
		return text
	case KindTarget:
		return fmt.Sprintf("💰 *TP%d HIT* %s %s\nLevel: %s%s", a.Target, side, symbol, a.Level, resultLine(s))
	case KindStop:
		return fmt.Sprintf("🔴 *STOP HIT* %s %s\nLevel: %s%s", side, symbol, a.Level, resultLine(s))
	case KindBreakeven:
		return fmt.Sprintf("⚪ *BREAKEVEN* %s %s\nClosed at: %s%s", side, symbol, a.Level, resultLine(s))
	case KindExpired:
		return fmt.Sprintf("⌛ *EXPIRED* %s %s\nEntry %s was never reached", side, symbol, s.EntryPrice)
	default:
		return fmt.Sprintf("✍️ *CLOSED* %s %s\nOutcome: %s%s", side, symbol, esc(string(s.Outcome)), resultLine(s))
	}
}

func resultLine(s models.Signal) string {
	if !s.FinalRMultiple.Valid {
		return ""
	}
	return fmt.Sprintf("\nResult: %sR", s.FinalRMultiple.Decimal.StringFixed(2))
}

// esc escapes Markdown entities such as the underscores in "sl_hit" or
// "BTC_USDT", which Telegram otherwise rejects as unbalanced.
func esc(text string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeMarkdown, text)
}
