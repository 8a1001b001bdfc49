// Package bot is the Telegram front end: it answers reader commands and
// delivers notices and new-item announcements to one chat.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"feeds_reader/internal/config"
	"feeds_reader/internal/model"
	"feeds_reader/internal/search"
	"feeds_reader/internal/session"
)

// API is the subset of the Telegram client the bot uses.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Session is what the bot needs from the reader session.
type Session interface {
	Subscriptions() []model.Subscription
	Subscribe(ctx context.Context, name, url string) (model.Subscription, error)
	Unsubscribe(ctx context.Context, name string) error
	Rename(ctx context.Context, oldName, newName string) error
	FeedItems(ctx context.Context, name string, unreadOnly bool) ([]model.FeedItem, error)
	MarkRead(ctx context.Context, id string) (model.FeedItem, error)
	MarkDeleted(ctx context.Context, id string) (model.FeedItem, error)
	ToggleStar(ctx context.Context, id string) (model.FeedItem, error)
	MarkAllRead(ctx context.Context, name string) (int, error)
	Update(ctx context.Context, name string) (session.UpdateReport, error)
	UpdateAll(ctx context.Context) []session.UpdateReport
	Search(ctx context.Context, q, feed string) ([]search.Result, error)
	Stats(ctx context.Context) (session.Stats, error)
}

// Bot handles user commands.
type Bot struct {
	api  API
	sess Session
	cfg  *config.Config
	log  *slog.Logger
}

// NewAPI connects to Telegram with token.
func NewAPI(token string) (*tgbotapi.BotAPI, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	return api, nil
}

// New creates a Bot answering commands through api.
func New(api API, sess Session, cfg *config.Config, log *slog.Logger) *Bot {
	return &Bot{
		api:  api,
		sess: sess,
		cfg:  cfg,
		log:  log,
	}
}

// Run starts the bot's long-polling loop, blocking until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update := <-updates:
			if update.CallbackQuery != nil {
				if !b.cfg.IsUserAllowed(update.CallbackQuery.From.ID) {
					continue
				}
				b.handleCallback(ctx, update.CallbackQuery)
				continue
			}
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}
			if !b.cfg.IsUserAllowed(update.Message.From.ID) {
				b.reply(update.Message.Chat.ID, "Access denied.")
				continue
			}
			b.handleCommand(ctx, update.Message)
		}
	}
}

// SendMessage sends a text message to the given chat.
func (b *Bot) SendMessage(chatID int64, text string) {
	if err := send(b.api, chatID, text, nil); err != nil {
		b.log.Error("send message", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) reply(chatID int64, text string) {
	b.SendMessage(chatID, text)
}

func send(api API, chatID int64, text string, markup any) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	if markup != nil {
		msg.ReplyMarkup = markup
	}
	_, err := api.Send(msg)
	return err
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	cmd := msg.Command()
	args := strings.TrimSpace(msg.CommandArguments())
	chatID := msg.Chat.ID

	b.log.Debug("command", "cmd", cmd, "args", args, "chat_id", chatID)

	switch cmd {
	case "start":
		b.handleStart(chatID)
	case "help":
		b.handleHelp(chatID)
	case "feeds", "list":
		b.handleFeeds(chatID)
	case "add":
		b.handleAdd(ctx, chatID, args)
	case "remove":
		b.handleRemove(ctx, chatID, args)
	case "rename":
		b.handleRename(ctx, chatID, args)
	case cmdUnread:
		b.handleUnread(ctx, chatID, args)
	case cmdRead:
		b.handleRead(ctx, chatID, args)
	case "readall":
		b.handleReadAll(ctx, chatID, args)
	case "update":
		b.handleUpdate(ctx, chatID, args)
	case "search":
		b.handleSearch(ctx, chatID, args)
	case "stats":
		b.handleStats(ctx, chatID)
	default:
		b.reply(chatID, "Unknown command. Use /help for a list of commands.")
	}
}
