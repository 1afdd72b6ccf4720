// Package notify implements the Notification Adapter: best-effort,
// structured chat messages for signal-detected, position-open, and
// position-close events, with a config-selected Telegram or no-op
// backend. Grounded on the legacy CopyTradeEngine's tgbotapi usage
// (other_examples/56538281_Jonaed13-congenial-octo-lamp__trading-copy_engine_legacy.go.go),
// restructured from per-user DB-driven fanout into a single operator chat.
package notify

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"

	"copytrade-engine/internal/model"
)

// Notifier is the adapter boundary consumed by the rest of the engine
// (internal/pipeline's signal notice, internal/watcher's exit notice).
type Notifier interface {
	NotifySignalDetected(sig model.BuySignal)
	NotifyPositionOpen(pos *model.OpenPosition)
	NotifyExit(closed *model.ClosedPosition)
}

// NoOp discards every notification; the default when no chat is configured.
type NoOp struct{}

func (NoOp) NotifySignalDetected(model.BuySignal)        {}
func (NoOp) NotifyPositionOpen(*model.OpenPosition)      {}
func (NoOp) NotifyExit(*model.ClosedPosition)            {}

// Telegram sends Markdown-formatted messages to a single configured chat.
// All send failures are logged and swallowed, per spec §7's "notification
// failures are always swallowed" rule.
type Telegram struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegram builds a Telegram notifier from a bot token and target chat.
func NewTelegram(token string, chatID int64) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("notify: init telegram bot: %w", err)
	}
	return &Telegram{bot: bot, chatID: chatID}, nil
}

func (t *Telegram) send(text string) {
	msg := tgbotapi.NewMessage(t.chatID, text)
	msg.ParseMode = "Markdown"
	if _, err := t.bot.Send(msg); err != nil {
		log.Warn().Err(err).Msg("telegram notification failed")
	}
}

// NotifySignalDetected announces a new tracked-wallet buy signal.
func (t *Telegram) NotifySignalDetected(sig model.BuySignal) {
	t.send(fmt.Sprintf(
		"🔔 *Signal detected*\nWallet: `%s`\nMint: `%s`\nTx: `%s`",
		sig.Wallet, sig.Mint, sig.Signature,
	))
}

// NotifyPositionOpen announces a freshly opened mirrored position.
func (t *Telegram) NotifyPositionOpen(pos *model.OpenPosition) {
	entry := "?"
	if pos.EntryPriceUSD != nil {
		entry = fmt.Sprintf("$%.6f", *pos.EntryPriceUSD)
	}
	t.send(fmt.Sprintf(
		"🚀 *Position opened*\nMint: `%s`\nEntry: %s\nMode: %s\nStrategy: %s",
		pos.Mint, entry, pos.Mode, pos.Strategy,
	))
}

// NotifyExit announces a position close with its pnl and reason.
func (t *Telegram) NotifyExit(closed *model.ClosedPosition) {
	pnl := "?"
	if closed.PnLPercent != nil {
		pnl = fmt.Sprintf("%.2f%%", *closed.PnLPercent)
	}
	t.send(fmt.Sprintf(
		"📉 *Position closed*\nMint: `%s`\nReason: %s\nPnL: %s",
		closed.Mint, closed.Reason, pnl,
	))
}
