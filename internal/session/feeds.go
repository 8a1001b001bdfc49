package session

import (
	"context"
	"fmt"
	"io"
	"strings"

	"feeds_reader/internal/index"
	"feeds_reader/internal/model"
	"feeds_reader/internal/opml"
	"feeds_reader/internal/search"
)

// Subscribe adds a feed with empty content.
func (s *Session) Subscribe(ctx context.Context, name, url string) (model.Subscription, error) {
	name = strings.TrimSpace(name)
	url = strings.TrimSpace(url)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.subIndex(name) >= 0 {
		return model.Subscription{}, fmt.Errorf("subscribe %q: %w", name, ErrFeedExists)
	}
	taken := make(map[string]bool, len(s.subs))
	for _, sub := range s.subs {
		taken[sub.Folder] = true
	}
	sub := model.Subscription{
		Name:    name,
		FeedURL: url,
		Folder:  s.store.AssignFolder(name, taken),
	}
	if err := s.validate.Subscription(&sub); err != nil {
		return model.Subscription{}, fmt.Errorf("subscribe %q: %w", name, err)
	}

	s.subs = append(s.subs, sub)
	s.index.SetFeed(name, model.EmptyContent(sub))
	s.markDirty(name)
	s.log.Info("subscribed", "feed", name, "url", url, "folder", sub.Folder)
	return sub, nil
}

// Unsubscribe drops a feed and deletes its files.
func (s *Session) Unsubscribe(ctx context.Context, name string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	i := s.subIndex(name)
	if i < 0 {
		s.mu.Unlock()
		return fmt.Errorf("unsubscribe %q: %w", name, ErrUnknownFeed)
	}
	sub := s.subs[i]
	s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
	s.index.RemoveFeed(name)
	delete(s.dirty, name)
	s.searchStale = true
	s.mu.Unlock()

	s.RequestSave()
	if err := s.store.RemoveFeedFiles(ctx, sub); err != nil {
		return fmt.Errorf("unsubscribe %q: %w", name, err)
	}
	s.log.Info("unsubscribed", "feed", name)
	return nil
}

// Rename moves a feed to a new name and folder. The content is written to
// the new folder before the old one is removed.
func (s *Session) Rename(ctx context.Context, oldName, newName string) error {
	newName = strings.TrimSpace(newName)
	if newName == oldName {
		return nil
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.loadLocked(ctx, oldName); err != nil {
		return fmt.Errorf("rename %q: %w", oldName, err)
	}
	if s.subIndex(newName) >= 0 {
		return fmt.Errorf("rename %q to %q: %w", oldName, newName, ErrFeedExists)
	}
	i := s.subIndex(oldName)
	old := s.subs[i]

	taken := make(map[string]bool, len(s.subs))
	for _, sub := range s.subs {
		if sub.Name != oldName {
			taken[sub.Folder] = true
		}
	}
	renamed := old
	renamed.Name = newName
	renamed.Folder = s.store.AssignFolder(newName, taken)
	if err := s.validate.Subscription(&renamed); err != nil {
		return fmt.Errorf("rename %q: %w", oldName, err)
	}

	current, _ := s.index.GetFeed(oldName)
	content := current.Clone()
	content.Name = newName
	content.Folder = renamed.Folder
	if err := s.store.SaveFeed(ctx, renamed, content); err != nil {
		return fmt.Errorf("rename %q: %w", oldName, err)
	}
	if renamed.Folder != old.Folder {
		if err := s.store.RemoveFeedFiles(ctx, old); err != nil {
			s.log.Warn("remove old feed folder", "feed", oldName, "folder", old.Folder, "error", err)
		}
	}

	s.subs[i] = renamed
	s.index.RemoveFeed(oldName)
	s.index.SetFeed(newName, content)
	delete(s.dirty, oldName)
	s.searchStale = true
	s.RequestSave()
	s.log.Info("renamed feed", "from", oldName, "to", newName, "folder", renamed.Folder)
	return nil
}

// ImportResult lists what ImportOPML did.
type ImportResult struct {
	Added   []string `json:"added"`
	Skipped []string `json:"skipped"`
}

// ImportOPML subscribes to every feed of an OPML document that is not
// already subscribed by name or URL.
func (s *Session) ImportOPML(ctx context.Context, r io.Reader) (ImportResult, error) {
	entries, err := opml.Parse(r)
	if err != nil {
		return ImportResult{}, err
	}

	urls := make(map[string]bool)
	for _, sub := range s.Subscriptions() {
		urls[sub.FeedURL] = true
	}

	var res ImportResult
	for _, e := range entries {
		if urls[e.URL] {
			res.Skipped = append(res.Skipped, e.Title)
			continue
		}
		if _, err := s.Subscribe(ctx, e.Title, e.URL); err != nil {
			s.log.Warn("skip opml entry", "title", e.Title, "url", e.URL, "error", err)
			res.Skipped = append(res.Skipped, e.Title)
			continue
		}
		urls[e.URL] = true
		res.Added = append(res.Added, e.Title)
	}
	return res, nil
}

// ExportOPML writes the subscription list as OPML.
func (s *Session) ExportOPML(w io.Writer) error {
	return opml.Write(w, "Feeds", s.Subscriptions())
}

// Feed returns a copy of the content of one feed.
func (s *Session) Feed(ctx context.Context, name string) (*model.FeedContent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadLocked(ctx, name); err != nil {
		return nil, err
	}
	c, _ := s.index.GetFeed(name)
	return c.Clone(), nil
}

// FeedItems returns the items of one feed, optionally only unread ones.
func (s *Session) FeedItems(ctx context.Context, name string, unreadOnly bool) ([]model.FeedItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadLocked(ctx, name); err != nil {
		return nil, err
	}
	items := s.index.GetFeedItems(name)
	if !unreadOnly {
		return items, nil
	}
	out := items[:0]
	for _, it := range items {
		if it.Visible() {
			out = append(out, it)
		}
	}
	return out, nil
}

// Item returns an item and the feed it belongs to.
func (s *Session) Item(ctx context.Context, id string) (model.FeedItem, string, error) {
	if err := s.ensureItem(ctx, id); err != nil {
		return model.FeedItem{}, "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.index.GetItem(id)
	if !ok {
		return model.FeedItem{}, "", fmt.Errorf("item %q: %w", id, ErrUnknownItem)
	}
	feed, _ := s.index.Owner(id)
	return it, feed, nil
}

// ensureItem loads every feed when id is not among the loaded items.
func (s *Session) ensureItem(ctx context.Context, id string) error {
	s.mu.Lock()
	_, ok := s.index.GetItem(id)
	s.mu.Unlock()
	if ok {
		return nil
	}
	if err := s.EnsureAll(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.index.GetItem(id); !ok {
		return fmt.Errorf("item %q: %w", id, ErrUnknownItem)
	}
	return nil
}

// Stats describes all subscribed feeds.
type Stats struct {
	index.Stats
	Unread int `json:"unread"`
	Dirty  int `json:"dirty"`
}

// Stats loads every feed and counts feeds, items and unread items.
func (s *Session) Stats(ctx context.Context) (Stats, error) {
	if err := s.EnsureAll(ctx); err != nil {
		return Stats{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Stats{Stats: s.index.GetStats(), Dirty: len(s.dirty)}
	for _, sub := range s.subs {
		st.Unread += sub.Unread
	}
	return st, nil
}

// Search runs a query over every non-deleted item, optionally within one feed.
func (s *Session) Search(ctx context.Context, q, feed string) ([]search.Result, error) {
	if feed != "" {
		if _, ok := s.Subscription(feed); !ok {
			return nil, fmt.Errorf("search %q: %w", feed, ErrUnknownFeed)
		}
	}
	if err := s.EnsureAll(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.searchStale {
		var docs []search.Document
		for _, name := range s.index.FeedNames() {
			for _, it := range s.index.GetFeedItems(name) {
				if it.Deleted.IsSet() {
					continue
				}
				docs = append(docs, search.Document{Feed: name, Item: it})
			}
		}
		s.search.Build(docs)
		s.searchStale = false
	}
	s.mu.Unlock()

	return s.search.Search(q, feed)
}
