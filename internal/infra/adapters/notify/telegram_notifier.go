package notify

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/sanskarpan/Latexy/internal/domain"
	"github.com/sanskarpan/Latexy/internal/domain/ports/adapter"
)

var _ adapter.Notifier = (*TelegramNotifier)(nil)

// telegram caps message text at 4096 characters
const maxMessageLen = 4096

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier delivers notifications as bot messages. A numeric
// recipient is used as the chat id; anything else goes to the default chat.
type TelegramNotifier struct {
	bot         sender
	defaultChat int64
	log         *zerolog.Logger
}

func NewTelegramNotifier(token string, defaultChat int64, logger *zerolog.Logger) (*TelegramNotifier, error) {
	if token == "" {
		return nil, errors.New("telegram token is empty")
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return newTelegramNotifier(bot, defaultChat, logger), nil
}

func newTelegramNotifier(bot sender, defaultChat int64, logger *zerolog.Logger) *TelegramNotifier {
	compLog := logger.With().Str("component", "TelegramNotifier").Logger()
	return &TelegramNotifier{bot: bot, defaultChat: defaultChat, log: &compLog}
}

func (t *TelegramNotifier) Name() string { return "telegram" }

func (t *TelegramNotifier) Send(ctx context.Context, n adapter.Notification) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	chatID, text := t.route(n)
	if chatID == 0 {
		return domain.Permanent(fmt.Errorf("%w: no telegram chat for recipient %q", domain.ErrInvalidArgument, n.Recipient))
	}
	msg := tgbotapi.NewMessage(chatID, truncate(text, maxMessageLen))
	msg.DisableWebPagePreview = true
	if _, err := t.bot.Send(msg); err != nil {
		return classify(err)
	}
	t.log.Debug().Int64("chat_id", chatID).Str("kind", n.Kind).Msg("notification sent")
	return nil
}

func (t *TelegramNotifier) route(n adapter.Notification) (int64, string) {
	var b strings.Builder
	if n.Subject != "" {
		b.WriteString(n.Subject)
		b.WriteString("\n\n")
	}
	if id, err := strconv.ParseInt(strings.TrimSpace(n.Recipient), 10, 64); err == nil && id != 0 {
		b.WriteString(n.Body)
		return id, b.String()
	}
	fmt.Fprintf(&b, "To: %s\n", n.Recipient)
	b.WriteString(n.Body)
	return t.defaultChat, b.String()
}

// classify treats Telegram's 4xx answers other than 429 as permanent.
func classify(err error) error {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) && apiErr.Code >= 400 && apiErr.Code < 500 && apiErr.Code != 429 {
		return domain.Permanent(err)
	}
	return err
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
