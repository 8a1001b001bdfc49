package bot

import (
	"context"
	"fmt"
	"log/slog"

	"feeds_reader/internal/model"
)

// Notifier delivers notices and new-item announcements to one chat.
type Notifier struct {
	api    API
	chatID int64
	log    *slog.Logger
}

// NewNotifier creates a Notifier sending to chatID.
func NewNotifier(api API, chatID int64, log *slog.Logger) *Notifier {
	return &Notifier{api: api, chatID: chatID, log: log}
}

// Notify sends msg as is.
func (n *Notifier) Notify(_ context.Context, msg string) error {
	if err := send(n.api, n.chatID, msg, nil); err != nil {
		return fmt.Errorf("send notice: %w", err)
	}
	return nil
}

// AnnounceNewItems sends one message per item with action buttons.
func (n *Notifier) AnnounceNewItems(ctx context.Context, feed string, items []model.FeedItem) error {
	for _, it := range items {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := send(n.api, n.chatID, FormatItem(feed, it), itemKeyboard(it.ID)); err != nil {
			return fmt.Errorf("announce %q: %w", feed, err)
		}
	}
	n.log.Info("announced new items", "feed", feed, "count", len(items))
	return nil
}

// LogNotifier logs notices when no chat is configured.
type LogNotifier struct {
	Log *slog.Logger
}

func (n LogNotifier) Notify(_ context.Context, msg string) error {
	n.Log.Info("notice", "message", msg)
	return nil
}

func (n LogNotifier) AnnounceNewItems(_ context.Context, feed string, items []model.FeedItem) error {
	n.Log.Info(FormatNewItems(feed, items))
	return nil
}
