package chatbot

import (
	"context"
	"fmt"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"cryptalert/internal/alerting"
)

// maxMessageLen is Telegram's limit for one text message.
const maxMessageLen = 4096

// Options configure the chat bot.
type Options struct {
	Token       string
	InfoChatID  int64
	PollTimeout int
}

// Bot serves chat commands and can deliver notifications to its info chat.
type Bot struct {
	api     *tgbotapi.BotAPI
	opts    Options
	handler *Handler
	logger  zerolog.Logger
}

// NewBot authenticates with the Bot API.
func NewBot(opts Options, handler *Handler, logger zerolog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(opts.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = 60
	}
	if handler.Name == "" {
		handler.Name = api.Self.UserName
	}

	logger = logger.With().Str("component", "chatbot").Str("bot", api.Self.UserName).Logger()
	logger.Info().Msg("authorized on telegram")
	return &Bot{api: api, opts: opts, handler: handler, logger: logger}, nil
}

// Run polls for updates and answers commands until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.opts.PollTimeout
	updates := b.api.GetUpdatesChan(u)

	b.announce(b.handler.OnlineMessage())
	defer b.announce(b.handler.OfflineMessage())

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message != nil && update.Message.IsCommand() {
				b.handleCommand(update.Message)
			}
		}
	}
}

func (b *Bot) handleCommand(msg *tgbotapi.Message) {
	reply, ok := b.handler.Reply(msg.Command())
	if !ok {
		b.logger.Debug().Str("command", msg.Command()).Msg("unknown command")
		return
	}
	if err := b.send(msg.Chat.ID, reply); err != nil {
		b.logger.Error().Err(err).Str("command", msg.Command()).Msg("failed to reply")
	}
}

func (b *Bot) announce(text string) {
	if b.opts.InfoChatID == 0 {
		return
	}
	if err := b.send(b.opts.InfoChatID, text); err != nil {
		b.logger.Warn().Err(err).Msg("failed to announce status")
	}
}

func (b *Bot) send(chatID int64, text string) error {
	for _, part := range splitMessage(text, maxMessageLen) {
		if _, err := b.api.Send(tgbotapi.NewMessage(chatID, part)); err != nil {
			return err
		}
	}
	return nil
}

// Ready confirms the token is still accepted.
func (b *Bot) Ready(context.Context) error {
	if _, err := b.api.GetMe(); err != nil {
		return fmt.Errorf("telegram getMe: %w", err)
	}
	return nil
}

// Notify delivers a notification to the info chat.
func (b *Bot) Notify(_ context.Context, note alerting.Notification) error {
	if b.opts.InfoChatID == 0 {
		return fmt.Errorf("bot.info_chat_id not configured")
	}
	if err := b.send(b.opts.InfoChatID, alerting.Render(note)); err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	b.logger.Info().Str("notification_id", note.ID.String()).Str("kind", string(note.Kind)).Msg("notification sent (chat bot)")
	return nil
}

// splitMessage breaks text into chunks of at most limit bytes, preferring line breaks and
// never cutting inside a UTF-8 sequence.
func splitMessage(text string, limit int) []string {
	if len(text) <= limit {
		return []string{text}
	}
	var parts []string
	for len(text) > limit {
		cut := -1
		for i := limit; i > 0; i-- {
			if text[i-1] == '\n' {
				cut = i
				break
			}
		}
		if cut < 0 {
			cut = limit
			for cut > 0 && !utf8.RuneStart(text[cut]) {
				cut--
			}
			if cut == 0 {
				_, size := utf8.DecodeRuneInString(text)
				cut = size
			}
		}
		parts = append(parts, text[:cut])
		text = text[cut:]
	}
	if text != "" {
		parts = append(parts, text)
	}
	return parts
}

var (
	_ alerting.Notifier = (*Bot)(nil)
	_ alerting.Readier  = (*Bot)(nil)
)
