// Package session owns the loaded feeds of one reader: the subscription
// list, the indexed items, dirty tracking and the save cycle.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"feeds_reader/internal/index"
	"feeds_reader/internal/model"
	"feeds_reader/internal/persist"
	"feeds_reader/internal/schema"
	"feeds_reader/internal/search"
)

var (
	ErrUnknownFeed = errors.New("unknown feed")
	ErrUnknownItem = errors.New("unknown item")
	ErrFeedExists  = errors.New("feed already exists")
)

// Fetcher produces freshly parsed content for a subscription.
type Fetcher interface {
	Fetch(ctx context.Context, sub model.Subscription) (*model.FeedContent, error)
}

// Announcer is told about items an update discovered.
type Announcer interface {
	AnnounceNewItems(ctx context.Context, feed string, items []model.FeedItem) error
}

// Options configures a Session.
type Options struct {
	// SaveDebounce is the quiet period RequestSave waits for.
	SaveDebounce time.Duration
	// FetchConcurrency bounds parallel fetches in UpdateAll.
	FetchConcurrency int
	// FetchRate limits fetches per second. Zero disables the limit.
	FetchRate float64
	// Notifier receives update failures. May be nil.
	Notifier persist.Notifier
	// Announcer receives new items when set.
	Announcer Announcer
	// Now defaults to time.Now.
	Now func() time.Time
}

// Session is the single owner of feed state.
type Session struct {
	store    *persist.Store
	fetcher  Fetcher
	validate *schema.Validator
	limiter  *rate.Limiter
	opts     Options
	log      *slog.Logger

	mu          sync.Mutex
	subs        []model.Subscription
	index       *index.Store
	search      *search.Index
	searchStale bool
	// dirty maps feed names to the version of their last change.
	dirty   map[string]uint64
	version uint64

	// writeMu serializes everything that writes to the vault.
	writeMu sync.Mutex

	saveMu   sync.Mutex
	timer    *time.Timer
	inFlight bool
	again    bool
	idle     chan struct{}
	lastErr  error
	closed   bool
}

// New creates a Session. Call Open before use.
func New(store *persist.Store, f Fetcher, opts Options, log *slog.Logger) *Session {
	if opts.SaveDebounce < 0 {
		opts.SaveDebounce = 0
	}
	if opts.FetchConcurrency <= 0 {
		opts.FetchConcurrency = 1
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &Session{
		store:       store,
		fetcher:     f,
		validate:    schema.New(),
		opts:        opts,
		log:         log,
		index:       index.New(),
		search:      search.NewIndex(),
		searchStale: true,
		dirty:       make(map[string]uint64),
	}
	if opts.FetchRate > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(opts.FetchRate), 1)
	}
	return s
}

// Open cleans up interrupted writes and reads the subscription list.
func (s *Session) Open(ctx context.Context) error {
	if err := s.store.RemoveStale(ctx); err != nil {
		s.log.Warn("remove stale folders", "error", err)
	}
	subs, modified, err := s.store.LoadSubscriptions(ctx)
	if err != nil {
		return fmt.Errorf("load subscriptions: %w", err)
	}

	s.mu.Lock()
	s.subs = subs
	s.index.Clear()
	s.searchStale = true
	s.mu.Unlock()

	s.log.Info("session opened", "feeds", len(subs))
	if modified {
		s.RequestSave()
	}
	return nil
}

// Subscriptions returns a copy of the subscription list.
func (s *Session) Subscriptions() []model.Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.subs)
}

// Subscription returns the list entry of one feed.
func (s *Session) Subscription(name string) (model.Subscription, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.subIndex(name)
	if i < 0 {
		return model.Subscription{}, false
	}
	return s.subs[i], true
}

// EnsureLoaded reads a feed from storage unless it is already resident.
func (s *Session) EnsureLoaded(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(ctx, name)
}

// EnsureAll loads every subscribed feed.
func (s *Session) EnsureAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.subs {
		if err := s.loadLocked(ctx, sub.Name); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) loadLocked(ctx context.Context, name string) error {
	i := s.subIndex(name)
	if i < 0 {
		return fmt.Errorf("load %q: %w", name, ErrUnknownFeed)
	}
	if _, ok := s.index.GetFeed(name); ok {
		return nil
	}
	loaded := s.store.Load(ctx, s.subs[i])
	if loaded.Err != nil {
		s.log.Warn("feed loaded with errors", "feed", name, "error", loaded.Err)
	}
	s.index.SetFeed(name, loaded.Content)
	s.subs[i].Unread = model.Unread(loaded.Content.Items)
	s.searchStale = true
	s.log.Debug("feed loaded", "feed", name, "items", len(loaded.Content.Items), "migrated", loaded.Migrated)
	return nil
}

func (s *Session) subIndex(name string) int {
	for i := range s.subs {
		if s.subs[i].Name == name {
			return i
		}
	}
	return -1
}

// refreshUnread recomputes the unread count of a loaded feed.
func (s *Session) refreshUnread(name string) {
	i := s.subIndex(name)
	if i < 0 {
		return
	}
	if c, ok := s.index.GetFeed(name); ok {
		s.subs[i].Unread = model.Unread(c.Items)
	}
}

// markDirty records a change of name and schedules a save. Callers hold mu.
func (s *Session) markDirty(name string) {
	s.version++
	s.dirty[name] = s.version
	s.searchStale = true
	s.RequestSave()
}

// Dirty returns the names of feeds with unsaved changes, sorted.
func (s *Session) Dirty() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirtyNames()
}

func (s *Session) dirtyNames() []string {
	names := make([]string, 0, len(s.dirty))
	for n := range s.dirty {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (s *Session) now() time.Time {
	return s.opts.Now()
}
