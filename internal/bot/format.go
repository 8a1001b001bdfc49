package bot

import (
	"fmt"
	"sort"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"feeds_reader/internal/model"
	"feeds_reader/internal/search"
	"feeds_reader/internal/session"
)

// maxCallbackData is Telegram's limit for inline button payloads.
const maxCallbackData = 64

// FormatItem formats one item as a message.
func FormatItem(feed string, it model.FeedItem) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s]\n\n", feed)
	title := it.Title
	if title == "" {
		title = "(untitled)"
	}
	b.WriteString(title)
	if it.Creator != "" || it.PubDate != "" {
		b.WriteString("\n")
		b.WriteString(strings.TrimSpace(it.Creator + " " + it.PubDate))
	}
	if it.Link != "" {
		b.WriteString("\n\n")
		b.WriteString(it.Link)
	}
	return b.String()
}

// FormatNewItems summarizes the items an update discovered.
func FormatNewItems(feed string, items []model.FeedItem) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d new item(s) in %q:\n", len(items), feed)
	for _, it := range items {
		fmt.Fprintf(&b, "\n- %s", it.Title)
		if it.Link != "" {
			fmt.Fprintf(&b, "\n  %s", it.Link)
		}
	}
	return b.String()
}

// FormatFeedList formats the subscription list for display.
func FormatFeedList(subs []model.Subscription) string {
	if len(subs) == 0 {
		return "You have no feeds yet. Use /add <url> [name] to add one."
	}
	var b strings.Builder
	b.WriteString("Your feeds:\n")
	for _, s := range subs {
		fmt.Fprintf(&b, "\n%s  (%d unread)\n   %s\n", s.Name, s.Unread, s.FeedURL)
	}
	return b.String()
}

// FormatUpdateReports formats the outcome of an update run.
func FormatUpdateReports(reports []session.UpdateReport) string {
	var b strings.Builder
	failed := 0
	for _, r := range reports {
		if r.Err != nil {
			failed++
			fmt.Fprintf(&b, "%s: failed: %v\n", r.Feed, r.Err)
			continue
		}
		if r.Added > 0 {
			fmt.Fprintf(&b, "%s: %d new, %d unread\n", r.Feed, r.Added, r.Unread)
		}
	}
	fmt.Fprintf(&b, "Update finished. %d updated. %d failed.", len(reports)-failed, failed)
	return b.String()
}

// FormatSearchResults lists at most limit hits.
func FormatSearchResults(q string, results []search.Result, limit int) string {
	if len(results) == 0 {
		return fmt.Sprintf("Nothing found for %q.", q)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d result(s) for %q:\n", len(results), q)
	for i, r := range results {
		if i == limit {
			fmt.Fprintf(&b, "\n... and %d more", len(results)-limit)
			break
		}
		fmt.Fprintf(&b, "\n[%s] %s\n   %s\n", r.Feed, r.Item.Title, r.Item.Link)
	}
	return b.String()
}

// FormatStats formats counters of all feeds.
func FormatStats(st session.Stats) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Feeds: %d\nItems: %d\nUnread: %d\n", st.FeedCount, st.TotalItems, st.Unread)
	if st.Dirty > 0 {
		fmt.Fprintf(&b, "Unsaved feeds: %d\n", st.Dirty)
	}
	names := make([]string, 0, len(st.ItemsByFeed))
	for n := range st.ItemsByFeed {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		fmt.Fprintf(&b, "\n%s: %d", n, st.ItemsByFeed[n])
	}
	return b.String()
}

// itemKeyboard returns read, star and delete buttons for an item, or nil
// when the identity does not fit in a callback payload.
func itemKeyboard(id string) any {
	if len(cbDelete)+1+len(id) > maxCallbackData {
		return nil
	}
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Read", cbRead+":"+id),
			tgbotapi.NewInlineKeyboardButtonData("Star", cbStar+":"+id),
			tgbotapi.NewInlineKeyboardButtonData("Delete", cbDelete+":"+id),
		),
	)
}
