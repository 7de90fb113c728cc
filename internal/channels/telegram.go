package channels

import (
	"context"
	"fmt"
	"strconv"

	tgbot "github.com/go-telegram/bot"
)

// TelegramConfig configures the Telegram outbound adapter.
type TelegramConfig struct {
	Token         string
	DefaultChatID int64
	ApprovalChat  int64
}

// Telegram is a terminal outbound collaborator wrapping go-telegram/bot.
type Telegram struct {
	cfg    TelegramConfig
	client *tgbot.Bot
}

func NewTelegram(cfg TelegramConfig) (*Telegram, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("telegram: token is required")
	}
	b, err := tgbot.New(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("telegram: create bot: %w", err)
	}
	return &Telegram{cfg: cfg, client: b}, nil
}

func (t *Telegram) Type() ChannelType { return ChannelTelegram }

func (t *Telegram) Send(ctx context.Context, msg OutboundMessage) error {
	chatID := t.cfg.DefaultChatID
	if msg.Recipient != "" {
		if parsed, err := strconv.ParseInt(msg.Recipient, 10, 64); err == nil {
			chatID = parsed
		}
	}
	if chatID == 0 {
		return fmt.Errorf("telegram: no chat id configured for send")
	}
	_, err := t.client.SendMessage(ctx, &tgbot.SendMessageParams{ChatID: chatID, Text: msg.Text})
	return err
}

func (t *Telegram) NotifyApproval(ctx context.Context, summary ApprovalSummary) error {
	chatID := t.cfg.ApprovalChat
	if chatID == 0 {
		chatID = t.cfg.DefaultChatID
	}
	if chatID == 0 {
		return fmt.Errorf("telegram: no approval chat configured")
	}
	text := fmt.Sprintf("approval %s: %s %s value=%d data=%s ttl=%s",
		summary.ApprovalID, summary.Operation, summary.To, summary.Value, summary.DataDigest, summary.TTLRemaining)
	_, err := t.client.SendMessage(ctx, &tgbot.SendMessageParams{ChatID: chatID, Text: text})
	return err
}
