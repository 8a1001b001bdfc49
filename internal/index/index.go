// Package index keeps an in-memory lookup structure over loaded feeds.
package index

import (
	"sort"
	"sync"

	"feeds_reader/internal/model"
)

// ItemPatch lists the fields UpdateItem changes. Nil fields are left alone.
type ItemPatch struct {
	Read       *model.Stamp
	Deleted    *model.Stamp
	Downloaded *model.Stamp
	Title      *string
	Content    *string
	Creator    *string
}

// Update pairs an item identity with a patch for BatchUpdateItems.
type Update struct {
	ID    string
	Patch ItemPatch
}

// Stats summarizes the indexed content.
type Stats struct {
	FeedCount   int            `json:"feedCount"`
	TotalItems  int            `json:"totalItems"`
	ItemsByFeed map[string]int `json:"itemsByFeed"`
}

type ref struct {
	feed string
	pos  int
}

// Store indexes items by identity and by feed. It works on the item slices
// of the registered contents directly, so an update is visible through both
// the store and the owning FeedContent. Call SetFeed again after changing
// the length or order of a registered item slice.
type Store struct {
	mu     sync.RWMutex
	feeds  map[string]*model.FeedContent
	items  map[string]ref
	// byFeed lists the identities each feed owns in items.
	byFeed map[string][]string
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		feeds:  make(map[string]*model.FeedContent),
		items:  make(map[string]ref),
		byFeed: make(map[string][]string),
	}
}

// SetFeed registers content under name, replacing every item previously
// indexed for it. Items without an identity get model.ItemID. An identity
// already owned by another feed keeps resolving to that feed.
func (s *Store) SetFeed(name string, content *model.FeedContent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	orphans := s.evict(name)
	s.feeds[name] = content

	ids := make([]string, 0, len(content.Items))
	for i := range content.Items {
		it := &content.Items[i]
		if it.ID == "" {
			it.ID = model.ItemID(it)
		}
		if _, taken := s.items[it.ID]; taken {
			continue
		}
		s.items[it.ID] = ref{feed: name, pos: i}
		ids = append(ids, it.ID)
	}
	s.byFeed[name] = ids
	s.adopt(orphans)
}

// GetFeed returns the content registered under name.
func (s *Store) GetFeed(name string) (*model.FeedContent, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.feeds[name]
	return c, ok
}

// FeedNames returns the registered feed names, sorted.
func (s *Store) FeedNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.feeds))
	for n := range s.feeds {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// GetItem returns a copy of the item with identity id.
func (s *Store) GetItem(id string) (model.FeedItem, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	it := s.lookup(id)
	if it == nil {
		return model.FeedItem{}, false
	}
	return *it, true
}

// Owner returns the feed an item belongs to.
func (s *Store) Owner(id string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.items[id]
	return r.feed, ok
}

// GetFeedItems returns copies of the items of one feed in stored order.
func (s *Store) GetFeedItems(name string) []model.FeedItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.feeds[name]
	if !ok {
		return nil
	}
	out := make([]model.FeedItem, len(c.Items))
	copy(out, c.Items)
	return out
}

// GetAllItems returns copies of every indexed item, grouped by feed name.
func (s *Store) GetAllItems() []model.FeedItem {
	var out []model.FeedItem
	for _, name := range s.FeedNames() {
		out = append(out, s.GetFeedItems(name)...)
	}
	return out
}

// UpdateItem applies patch to the item with identity id. It reports false
// for unknown identities.
func (s *Store) UpdateItem(id string, patch ItemPatch) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	it := s.lookup(id)
	if it == nil {
		return false
	}
	apply(it, patch)
	return true
}

// BatchUpdateItems applies updates in order and returns how many matched an
// indexed item.
func (s *Store) BatchUpdateItems(updates []Update) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, u := range updates {
		if it := s.lookup(u.ID); it != nil {
			apply(it, u.Patch)
			n++
		}
	}
	return n
}

// RemoveFeed drops a feed and all of its items.
func (s *Store) RemoveFeed(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.feeds[name]; !ok {
		return false
	}
	s.adopt(s.evict(name))
	return true
}

// GetStats counts feeds and items.
func (s *Store) GetStats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Stats{FeedCount: len(s.feeds), ItemsByFeed: make(map[string]int, len(s.feeds))}
	for name, c := range s.feeds {
		n := len(c.Items)
		st.ItemsByFeed[name] = n
		st.TotalItems += n
	}
	return st
}

// Clear removes everything.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.feeds = make(map[string]*model.FeedContent)
	s.items = make(map[string]ref)
	s.byFeed = make(map[string][]string)
}

// evict drops name and returns the identities it owned.
func (s *Store) evict(name string) []string {
	var owned []string
	for _, id := range s.byFeed[name] {
		if r, ok := s.items[id]; ok && r.feed == name {
			delete(s.items, id)
			owned = append(owned, id)
		}
	}
	delete(s.byFeed, name)
	delete(s.feeds, name)
	return owned
}

// adopt points each unowned identity at the first remaining feed, by name,
// that still holds it.
func (s *Store) adopt(ids []string) {
	if len(ids) == 0 {
		return
	}
	names := make([]string, 0, len(s.feeds))
	for n := range s.feeds {
		names = append(names, n)
	}
	sort.Strings(names)

	for _, id := range ids {
		if _, ok := s.items[id]; ok {
			continue
		}
		for _, n := range names {
			if pos := position(s.feeds[n].Items, id); pos >= 0 {
				s.items[id] = ref{feed: n, pos: pos}
				s.byFeed[n] = append(s.byFeed[n], id)
				break
			}
		}
	}
}

func position(items []model.FeedItem, id string) int {
	for i := range items {
		if items[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) lookup(id string) *model.FeedItem {
	r, ok := s.items[id]
	if !ok {
		return nil
	}
	c := s.feeds[r.feed]
	if c == nil || r.pos >= len(c.Items) || c.Items[r.pos].ID != id {
		return nil
	}
	return &c.Items[r.pos]
}

func apply(it *model.FeedItem, p ItemPatch) {
	if p.Read != nil {
		it.Read = *p.Read
	}
	if p.Deleted != nil {
		it.Deleted = *p.Deleted
	}
	if p.Downloaded != nil {
		it.Downloaded = *p.Downloaded
	}
	if p.Title != nil {
		it.Title = *p.Title
	}
	if p.Content != nil {
		it.Content = *p.Content
	}
	if p.Creator != nil {
		it.Creator = *p.Creator
	}
}
