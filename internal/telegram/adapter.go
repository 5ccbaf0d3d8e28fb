// Package telegram delivers dated output files to Telegram chats.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/jkpraja/genMJP/internal/delivery"
)

// Prefix marks a recipient as a Telegram chat id, e.g. "telegram:-100123".
const Prefix = "telegram:"

const (
	maxTelegramMessage = 4096
	maxCaption         = 1024
)

// Bot is the subset of tgbotapi.BotAPI the adapter uses.
type Bot interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Adapter sends the message body as text and the attachment as a document.
// The bot is connected on first delivery, so an unreachable API only fails
// the send that needed it.
type Adapter struct {
	mu   sync.Mutex
	bot  Bot
	dial func() (Bot, error)
}

// New returns an adapter that connects to the Bot API with token when it
// first delivers.
func New(token string) *Adapter {
	return NewWithDial(func() (Bot, error) {
		return tgbotapi.NewBotAPI(token)
	})
}

// NewWithDial uses dial to create the bot. A failed dial is retried on the
// next delivery.
func NewWithDial(dial func() (Bot, error)) *Adapter {
	return &Adapter{dial: dial}
}

func NewWithBot(bot Bot) *Adapter {
	return &Adapter{bot: bot}
}

func (a *Adapter) connect() (Bot, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.bot != nil {
		return a.bot, nil
	}
	bot, err := a.dial()
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	a.bot = bot
	return bot, nil
}

// Register installs the adapter as the handler for Prefix.
func (a *Adapter) Register(reg *delivery.Registry) {
	reg.Register(Prefix, a.Deliver)
}

// Deliver implements delivery.Handler.
func (a *Adapter) Deliver(ctx context.Context, recipient string, msg delivery.Message) error {
	chatID, err := ParseChatID(recipient)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	bot, err := a.connect()
	if err != nil {
		return err
	}

	text := msg.Body
	if msg.Subject != "" {
		text = msg.Subject + "\n\n" + text
	}
	for _, part := range splitMessage(text) {
		if _, err := bot.Send(tgbotapi.NewMessage(chatID, part)); err != nil {
			return fmt.Errorf("send text: %w", err)
		}
	}

	if msg.Attachment == "" {
		return nil
	}
	doc := tgbotapi.NewDocument(chatID, tgbotapi.FilePath(msg.Attachment))
	doc.Caption = truncate(msg.Subject, maxCaption)
	if _, err := bot.Send(doc); err != nil {
		return fmt.Errorf("send document: %w", err)
	}
	slog.Info("telegram delivery ok", "chat_id", chatID, "file", msg.Attachment)
	return nil
}

// ParseChatID extracts the numeric chat id from a prefixed recipient.
func ParseChatID(recipient string) (int64, error) {
	raw, ok := strings.CutPrefix(recipient, Prefix)
	if !ok {
		return 0, fmt.Errorf("not a telegram recipient: %s", recipient)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid telegram chat id %q: %w", raw, err)
	}
	return id, nil
}

func splitMessage(text string) []string {
	if len(text) <= maxTelegramMessage {
		return []string{text}
	}
	var parts []string
	for len(text) > 0 {
		end := min(maxTelegramMessage, len(text))
		parts = append(parts, text[:end])
		text = text[end:]
	}
	return parts
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
