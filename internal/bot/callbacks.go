package bot

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	cmdUnread = "unread"
	cmdRead   = "read"

	cbRead   = "read"
	cbStar   = "star"
	cbDelete = "delete"
)

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	chatID := cb.Message.Chat.ID

	callback := tgbotapi.NewCallback(cb.ID, "")
	if _, err := b.api.Send(callback); err != nil {
		b.log.Error("send callback ack", "error", err)
	}

	action, id, ok := strings.Cut(cb.Data, ":")
	if !ok || id == "" {
		return
	}

	var userID int64
	if cb.From != nil {
		userID = cb.From.ID
	}
	b.log.Info("callback", "action", action, "id", id, "chat_id", chatID, "user_id", userID)

	switch action {
	case cbRead:
		if _, err := b.sess.MarkRead(ctx, id); err != nil {
			b.reply(chatID, fmt.Sprintf("Error: %v", err))
			return
		}
		b.reply(chatID, "Marked as read.")
	case cbStar:
		it, err := b.sess.ToggleStar(ctx, id)
		if err != nil {
			b.reply(chatID, fmt.Sprintf("Error: %v", err))
			return
		}
		if it.Downloaded.IsSet() {
			b.reply(chatID, fmt.Sprintf("Starred %q.", it.Title))
		} else {
			b.reply(chatID, fmt.Sprintf("Unstarred %q.", it.Title))
		}
	case cbDelete:
		it, err := b.sess.MarkDeleted(ctx, id)
		if err != nil {
			b.reply(chatID, fmt.Sprintf("Error: %v", err))
			return
		}
		b.reply(chatID, fmt.Sprintf("Deleted %q.", it.Title))
	}
}
