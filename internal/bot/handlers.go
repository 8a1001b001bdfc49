package bot

import (
	"context"
	"errors"
	"fmt"

	"feeds_reader/internal/session"
)

func (b *Bot) handleStart(chatID int64) {
	b.reply(chatID, `Welcome to Feeds Reader!

Subscribe to feeds, read new items and keep track of what you have seen.

Quick start:
1. /add <url> [name] - subscribe to a feed
2. /unread <name> - show unread items
3. /search <words> - search all items

Use /help for the full command reference.`)
}

func (b *Bot) handleHelp(chatID int64) {
	b.reply(chatID, `Feed management:
/add <url> [name] - subscribe and fetch a feed
/feeds - show all feeds with unread counts
/remove <name> - unsubscribe and delete stored items
/rename <name> | <new name> - rename a feed
/update [name] - fetch one feed or all feeds now

Reading:
/unread <name> [limit] - show unread items with buttons
/read <item id> - mark an item as read
/readall <name> - mark every item of a feed as read
/search <query> - words, -excluded, /regex/
/stats - item counters`)
}

func (b *Bot) handleFeeds(chatID int64) {
	b.reply(chatID, FormatFeedList(b.sess.Subscriptions()))
}

func (b *Bot) handleAdd(ctx context.Context, chatID int64, args string) {
	feedURL, name, err := ParseAddArgs(args)
	if err != nil {
		b.reply(chatID, "Usage: /add <url> [name]")
		return
	}

	sub, err := b.sess.Subscribe(ctx, name, feedURL)
	if err != nil {
		if errors.Is(err, session.ErrFeedExists) {
			b.reply(chatID, fmt.Sprintf("Feed %q already exists.", name))
			return
		}
		b.reply(chatID, fmt.Sprintf("Failed to add feed: %v", err))
		return
	}

	rep, err := b.sess.Update(ctx, sub.Name)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Feed %q added, but the first fetch failed: %v", sub.Name, err))
		return
	}
	b.reply(chatID, fmt.Sprintf("Feed added successfully!\n%s\nURL: %s\n%d item(s), %d unread.",
		sub.Name, sub.FeedURL, rep.Added, rep.Unread))
}

func (b *Bot) handleRemove(ctx context.Context, chatID int64, args string) {
	if args == "" {
		b.reply(chatID, "Usage: /remove <name>")
		return
	}
	if err := b.sess.Unsubscribe(ctx, args); err != nil {
		b.replyFeedError(chatID, args, err)
		return
	}
	b.reply(chatID, fmt.Sprintf("Feed %q deleted.", args))
}

func (b *Bot) handleRename(ctx context.Context, chatID int64, args string) {
	oldName, newName, err := ParseRenameArgs(args)
	if err != nil {
		b.reply(chatID, err.Error())
		return
	}
	if err := b.sess.Rename(ctx, oldName, newName); err != nil {
		if errors.Is(err, session.ErrFeedExists) {
			b.reply(chatID, fmt.Sprintf("Feed %q already exists.", newName))
			return
		}
		b.replyFeedError(chatID, oldName, err)
		return
	}
	b.reply(chatID, fmt.Sprintf("Feed %q renamed to %q.", oldName, newName))
}

func (b *Bot) handleUnread(ctx context.Context, chatID int64, args string) {
	name, limit, err := ParseListArgs(args)
	if err != nil {
		b.reply(chatID, "Usage: /unread <name> [limit]")
		return
	}
	items, err := b.sess.FeedItems(ctx, name, true)
	if err != nil {
		b.replyFeedError(chatID, name, err)
		return
	}
	if len(items) == 0 {
		b.reply(chatID, fmt.Sprintf("No unread items in %q.", name))
		return
	}

	shown := min(limit, len(items))
	for _, it := range items[:shown] {
		if err := send(b.api, chatID, FormatItem(name, it), itemKeyboard(it.ID)); err != nil {
			b.log.Error("send item", "chat_id", chatID, "error", err)
		}
	}
	b.reply(chatID, fmt.Sprintf("Showing %d of %d unread item(s) in %q.", shown, len(items), name))
}

func (b *Bot) handleRead(ctx context.Context, chatID int64, args string) {
	if args == "" {
		b.reply(chatID, "Usage: /read <item id>")
		return
	}
	it, err := b.sess.MarkRead(ctx, args)
	if err != nil {
		if errors.Is(err, session.ErrUnknownItem) {
			b.reply(chatID, fmt.Sprintf("Item %s not found.", args))
			return
		}
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, fmt.Sprintf("Marked %q as read.", it.Title))
}

func (b *Bot) handleReadAll(ctx context.Context, chatID int64, args string) {
	if args == "" {
		b.reply(chatID, "Usage: /readall <name>")
		return
	}
	n, err := b.sess.MarkAllRead(ctx, args)
	if err != nil {
		b.replyFeedError(chatID, args, err)
		return
	}
	b.reply(chatID, fmt.Sprintf("Marked %d item(s) in %q as read.", n, args))
}

func (b *Bot) handleUpdate(ctx context.Context, chatID int64, args string) {
	if args == "" {
		b.reply(chatID, FormatUpdateReports(b.sess.UpdateAll(ctx)))
		return
	}
	rep, err := b.sess.Update(ctx, args)
	if err != nil {
		if errors.Is(err, session.ErrUnknownFeed) {
			b.replyFeedError(chatID, args, err)
			return
		}
		b.reply(chatID, fmt.Sprintf("Failed to update %q: %v", args, err))
		return
	}
	b.reply(chatID, fmt.Sprintf("%q updated: %d new, %d unread.", args, rep.Added, rep.Unread))
}

func (b *Bot) handleSearch(ctx context.Context, chatID int64, args string) {
	if args == "" {
		b.reply(chatID, "Usage: /search <query>")
		return
	}
	results, err := b.sess.Search(ctx, args, "")
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Invalid query: %v", err))
		return
	}
	b.reply(chatID, FormatSearchResults(args, results, defaultListLimit))
}

func (b *Bot) handleStats(ctx context.Context, chatID int64) {
	st, err := b.sess.Stats(ctx)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, FormatStats(st))
}

func (b *Bot) replyFeedError(chatID int64, name string, err error) {
	if errors.Is(err, session.ErrUnknownFeed) {
		b.reply(chatID, fmt.Sprintf("Feed %q not found.", name))
		return
	}
	b.reply(chatID, fmt.Sprintf("Error: %v", err))
}
