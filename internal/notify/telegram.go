package notify

import (
	"context"
	"fmt"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/LingJien0709/shiny-carnival/internal/domain"
)

// Telegram delivers parking reminders through a Telegram bot. Users with a
// linked chat id get a direct message; everyone else gets a mention in the
// shared announce chat.
type Telegram struct {
	bot        *tgbotapi.BotAPI
	announceID int64
	log        *zap.Logger
}

// NewTelegram builds the notifier. The underlying HTTP client carries a hard
// timeout so a stuck send cannot hang a dispatcher tick.
func NewTelegram(token string, announceChatID int64, log *zap.Logger) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, &http.Client{
		Timeout: 10 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	bot.Debug = false
	return &Telegram{bot: bot, announceID: announceChatID, log: log}, nil
}

// Send implements scheduler.Notifier. Safe to call repeatedly for the same
// reminder; the worst case is a duplicate message.
func (t *Telegram) Send(_ context.Context, u domain.User) error {
	chatID := t.announceID
	text := reminderText(u)
	if u.ChatID != nil {
		chatID = *u.ChatID
	}

	if _, err := t.bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		return fmt.Errorf("send reminder: %w", err)
	}
	t.log.Debug("reminder delivered",
		zap.String("user", u.DisplayName),
		zap.Bool("direct", u.ChatID != nil),
	)
	return nil
}

func reminderText(u domain.User) string {
	mention := ""
	if u.ChatID == nil && u.ChatHandle != "" {
		mention = "@" + u.ChatHandle + " "
	}
	return fmt.Sprintf(
		"⏰ Parking reminder for %s\n\n%syour 3 hour free parking is almost up (20 minutes remaining). Please repark your car to avoid charges (RM %d per hour).",
		u.DisplayName, mention, domain.SavingsPerRepark,
	)
}
