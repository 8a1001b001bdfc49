package session

import (
	"context"
	"fmt"

	"feeds_reader/internal/index"
	"feeds_reader/internal/model"
)

// oldContentKeep caps how many of the newest items keep their content in
// RemoveOldContent.
const oldContentKeep = 200

// MarkRead timestamps the item as read.
func (s *Session) MarkRead(ctx context.Context, id string) (model.FeedItem, error) {
	return s.patchItem(ctx, id, func(it model.FeedItem) index.ItemPatch {
		if it.Read.IsSet() {
			return index.ItemPatch{}
		}
		st := model.ChangedAt(s.now())
		return index.ItemPatch{Read: &st}
	})
}

// MarkUnread clears the read state.
func (s *Session) MarkUnread(ctx context.Context, id string) (model.FeedItem, error) {
	return s.patchItem(ctx, id, func(it model.FeedItem) index.ItemPatch {
		if !it.Read.IsSet() {
			return index.ItemPatch{}
		}
		return index.ItemPatch{Read: &model.Stamp{}}
	})
}

// MarkDeleted timestamps the item as deleted.
func (s *Session) MarkDeleted(ctx context.Context, id string) (model.FeedItem, error) {
	return s.patchItem(ctx, id, func(it model.FeedItem) index.ItemPatch {
		if it.Deleted.IsSet() {
			return index.ItemPatch{}
		}
		st := model.ChangedAt(s.now())
		return index.ItemPatch{Deleted: &st}
	})
}

// Restore clears the deleted state.
func (s *Session) Restore(ctx context.Context, id string) (model.FeedItem, error) {
	return s.patchItem(ctx, id, func(it model.FeedItem) index.ItemPatch {
		if !it.Deleted.IsSet() {
			return index.ItemPatch{}
		}
		return index.ItemPatch{Deleted: &model.Stamp{}}
	})
}

// ToggleStar flips the starred (downloaded) state.
func (s *Session) ToggleStar(ctx context.Context, id string) (model.FeedItem, error) {
	return s.patchItem(ctx, id, func(it model.FeedItem) index.ItemPatch {
		st := model.Stamp{}
		if !it.Downloaded.IsSet() {
			st = model.ChangedAt(s.now())
		}
		return index.ItemPatch{Downloaded: &st}
	})
}

func (s *Session) patchItem(ctx context.Context, id string, build func(model.FeedItem) index.ItemPatch) (model.FeedItem, error) {
	if err := s.ensureItem(ctx, id); err != nil {
		return model.FeedItem{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.index.GetItem(id)
	if !ok {
		return model.FeedItem{}, fmt.Errorf("item %q: %w", id, ErrUnknownItem)
	}
	patch := build(it)
	if patch == (index.ItemPatch{}) {
		return it, nil
	}
	feed, _ := s.index.Owner(id)
	s.index.UpdateItem(id, patch)
	s.refreshUnread(feed)
	s.markDirty(feed)

	it, _ = s.index.GetItem(id)
	return it, nil
}

// MarkAllRead marks every unread item of a feed as read and returns how
// many changed.
func (s *Session) MarkAllRead(ctx context.Context, name string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadLocked(ctx, name); err != nil {
		return 0, err
	}
	st := model.ChangedAt(s.now())
	var updates []index.Update
	for _, it := range s.index.GetFeedItems(name) {
		if !it.Read.IsSet() {
			updates = append(updates, index.Update{ID: it.ID, Patch: index.ItemPatch{Read: &st}})
		}
	}
	if len(updates) == 0 {
		return 0, nil
	}
	n := s.index.BatchUpdateItems(updates)
	s.refreshUnread(name)
	s.markDirty(name)
	return n, nil
}

// PurgeDeleted drops the items marked deleted.
func (s *Session) PurgeDeleted(ctx context.Context, name string) (int, error) {
	return s.rewrite(ctx, name, func(items []model.FeedItem) ([]model.FeedItem, int) {
		out := make([]model.FeedItem, 0, len(items))
		for _, it := range items {
			if !it.Deleted.IsSet() {
				out = append(out, it)
			}
		}
		return out, len(items) - len(out)
	})
}

// PurgeAll drops every item of a feed.
func (s *Session) PurgeAll(ctx context.Context, name string) (int, error) {
	return s.rewrite(ctx, name, func(items []model.FeedItem) ([]model.FeedItem, int) {
		return []model.FeedItem{}, len(items)
	})
}

// PurgeOldHalf keeps the newer half of the items.
func (s *Session) PurgeOldHalf(ctx context.Context, name string) (int, error) {
	return s.rewrite(ctx, name, func(items []model.FeedItem) ([]model.FeedItem, int) {
		keep := len(items) / 2
		return items[:keep], len(items) - keep
	})
}

// Deduplicate drops items whose link appeared earlier in the feed.
func (s *Session) Deduplicate(ctx context.Context, name string) (int, error) {
	return s.rewrite(ctx, name, func(items []model.FeedItem) ([]model.FeedItem, int) {
		seen := make(map[string]bool, len(items))
		out := make([]model.FeedItem, 0, len(items))
		for _, it := range items {
			if it.Link != "" {
				if seen[it.Link] {
					continue
				}
				seen[it.Link] = true
			}
			out = append(out, it)
		}
		return out, len(items) - len(out)
	})
}

// RemoveContent blanks content and creator of every item.
func (s *Session) RemoveContent(ctx context.Context, name string) (int, error) {
	return s.rewrite(ctx, name, func(items []model.FeedItem) ([]model.FeedItem, int) {
		return items, blank(items)
	})
}

// RemoveOldContent blanks content and creator of all but the newest third of
// the items, keeping at most oldContentKeep.
func (s *Session) RemoveOldContent(ctx context.Context, name string) (int, error) {
	return s.rewrite(ctx, name, func(items []model.FeedItem) ([]model.FeedItem, int) {
		keep := min(len(items)/3, oldContentKeep)
		return items, blank(items[keep:])
	})
}

func blank(items []model.FeedItem) int {
	n := 0
	for i := range items {
		if items[i].Content == "" && items[i].Creator == "" {
			continue
		}
		items[i].Content = ""
		items[i].Creator = ""
		n++
	}
	return n
}

// rewrite applies fn to a copy of the items of a feed and installs the
// result when fn reports a change.
func (s *Session) rewrite(ctx context.Context, name string, fn func([]model.FeedItem) ([]model.FeedItem, int)) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadLocked(ctx, name); err != nil {
		return 0, err
	}
	current, _ := s.index.GetFeed(name)
	content := current.Clone()
	items, n := fn(content.Items)
	if n == 0 {
		return 0, nil
	}
	content.Items = items
	s.index.SetFeed(name, content)
	s.refreshUnread(name)
	s.markDirty(name)
	s.log.Info("feed maintenance", "feed", name, "affected", n)
	return n, nil
}
