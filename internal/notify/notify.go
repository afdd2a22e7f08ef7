// Package notify delivers operational notifications to salon staff. The
// booking flow publishes events; this package turns them into log lines and,
// when configured, Telegram messages to the staff chat.
package notify

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"glowdesk/internal/models"
)

// Notifier pushes messages to staff. Implementations must be fire-and-forget:
// a notification failure never affects the booking flow.
type Notifier interface {
	BookingCreated(b models.Booking)
	Alert(msg string)
}

// LogNotifier writes notifications to the service log. Always present, so
// notifications are never silently lost when Telegram is not configured.
type LogNotifier struct {
	logger zerolog.Logger
}

func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "notify").Logger()}
}

func (n *LogNotifier) BookingCreated(b models.Booking) {
	n.logger.Info().
		Int64("booking_id", b.ID).
		Str("client", b.Name).
		Str("service", b.Service).
		Str("date", b.Date).
		Str("time", b.Time).
		Msg("booking created")
}

func (n *LogNotifier) Alert(msg string) {
	n.logger.Warn().Msg(msg)
}

// TelegramSender is the part of the Telegram bot API the notifier needs.
type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier posts notifications to the staff chat. Sends are
// rate-limited so a burst of bookings cannot trip Telegram's flood control;
// messages over the limit are dropped with a log line.
type TelegramNotifier struct {
	sender  TelegramSender
	chatID  int64
	limiter *rate.Limiter
	logger  zerolog.Logger
}

func NewTelegramNotifier(sender TelegramSender, chatID int64, logger zerolog.Logger) *TelegramNotifier {
	return &TelegramNotifier{
		sender: sender,
		chatID: chatID,
		// Telegram allows ~20 messages/minute to one chat.
		limiter: rate.NewLimiter(rate.Limit(20.0/60.0), 5),
		logger:  logger.With().Str("component", "telegram_notify").Logger(),
	}
}

func (n *TelegramNotifier) send(text string) {
	if !n.limiter.Allow() {
		n.logger.Warn().Msg("notification dropped by rate limit")
		return
	}
	msg := tgbotapi.NewMessage(n.chatID, text)
	if _, err := n.sender.Send(msg); err != nil {
		n.logger.Error().Err(err).Msg("telegram send failed")
	}
}

func (n *TelegramNotifier) BookingCreated(b models.Booking) {
	n.send(fmt.Sprintf("New booking #%d\n%s — %s\n%s %s", b.ID, b.Name, b.Service, b.Date, b.Time))
}

func (n *TelegramNotifier) Alert(msg string) {
	n.send("⚠️ " + msg)
}

// Multi fans a notification out to several notifiers.
type Multi []Notifier

func (m Multi) BookingCreated(b models.Booking) {
	for _, n := range m {
		n.BookingCreated(b)
	}
}

func (m Multi) Alert(msg string) {
	for _, n := range m {
		n.Alert(msg)
	}
}
