package operator

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/PhillHH/chat-agent/pkg/safego"
)

// TelegramAdapter is the second operator channel. It long-polls the Bot API
// and feeds messages into the same bridge as the Bot Framework webhook, so
// an operator on Telegram and one on Teams are interchangeable.
type TelegramAdapter struct {
	bot          *tgbotapi.BotAPI
	bridge       *Bridge
	allowedChats map[int64]bool // empty = any chat may operate
	logger       *zap.Logger
	cancel       context.CancelFunc
}

// NewTelegramAdapter authenticates against the Bot API. allowedChats limits
// which chats are accepted as operator consoles.
func NewTelegramAdapter(token string, allowedChats []int64, bridge *Bridge, logger *zap.Logger) (*TelegramAdapter, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot init: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	allowed := make(map[int64]bool, len(allowedChats))
	for _, id := range allowedChats {
		allowed[id] = true
	}

	logger.Info("Telegram operator channel ready", zap.String("bot", bot.Self.UserName))

	return &TelegramAdapter{
		bot:          bot,
		bridge:       bridge,
		allowedChats: allowed,
		logger:       logger,
	}, nil
}

// Start begins long polling. Returns immediately; polling runs until the
// context is cancelled or Stop is called.
func (a *TelegramAdapter) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	innerCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	updates := a.bot.GetUpdatesChan(u)

	a.logger.Info("Starting Telegram polling")

	safego.Go(a.logger, "telegram.poll", func() {
		for {
			select {
			case <-innerCtx.Done():
				a.bot.StopReceivingUpdates()
				a.logger.Info("Telegram polling stopped")
				return
			case update := <-updates:
				a.handleUpdate(innerCtx, update)
			}
		}
	})

	return nil
}

// Stop ends polling.
func (a *TelegramAdapter) Stop() {
	if a.cancel != nil {
		a.cancel()
	}
}

func (a *TelegramAdapter) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	if update.Message == nil || update.Message.Text == "" {
		return
	}

	chatID := update.Message.Chat.ID
	if len(a.allowedChats) > 0 && !a.allowedChats[chatID] {
		a.logger.Warn("Ignoring message from unlisted chat", zap.Int64("chat_id", chatID))
		return
	}

	conv := &telegramConversation{bot: a.bot, chatID: chatID}
	reply := a.bridge.HandleOperatorMessage(ctx, telegramKey(chatID), conv, update.Message.Text)
	if reply == "" {
		return
	}
	if err := conv.Send(ctx, reply); err != nil {
		a.logger.Warn("Telegram reply failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

// telegramConversation sends into one chat. Safe to rebuild per update, the
// BotAPI client is shared.
type telegramConversation struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

var _ Conversation = (*telegramConversation)(nil)

func (c *telegramConversation) Send(_ context.Context, text string) error {
	msg := tgbotapi.NewMessage(c.chatID, text)
	_, err := c.bot.Send(msg)
	return err
}

func telegramKey(chatID int64) string {
	return fmt.Sprintf("tg:%d", chatID)
}
