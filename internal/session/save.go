package session

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"feeds_reader/internal/model"
	"feeds_reader/internal/persist"
)

// RequestSave schedules a save after the debounce period. Further requests
// restart the period.
func (s *Session) RequestSave() {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	if s.closed {
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.opts.SaveDebounce, func() {
		if err := s.Save(context.Background()); err != nil {
			s.log.Error("scheduled save", "error", err)
		}
	})
}

// Save writes all dirty feeds and the subscription list now. A call made
// while a cycle is running marks that cycle for one rerun and waits for it.
func (s *Session) Save(ctx context.Context) error {
	s.saveMu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.inFlight {
		s.again = true
		idle := s.idle
		s.saveMu.Unlock()
		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
		s.saveMu.Lock()
		defer s.saveMu.Unlock()
		return s.lastErr
	}
	s.inFlight = true
	s.idle = make(chan struct{})
	s.saveMu.Unlock()

	for {
		err := s.cycle(ctx)

		s.saveMu.Lock()
		if !s.again {
			s.inFlight = false
			s.lastErr = err
			close(s.idle)
			s.saveMu.Unlock()
			return err
		}
		s.again = false
		s.saveMu.Unlock()
	}
}

// Close flushes pending changes and stops scheduling saves.
func (s *Session) Close(ctx context.Context) error {
	s.saveMu.Lock()
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.saveMu.Unlock()
	return s.Save(ctx)
}

type snapshot struct {
	subs     map[string]model.Subscription
	contents map[string]*model.FeedContent
}

func (p snapshot) Subscription(name string) (model.Subscription, bool) {
	sub, ok := p.subs[name]
	return sub, ok
}

func (p snapshot) Content(name string) (*model.FeedContent, bool) {
	c, ok := p.contents[name]
	return c, ok
}

func (s *Session) cycle(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	names := s.dirtyNames()
	versions := make(map[string]uint64, len(names))
	snap := snapshot{
		subs:     make(map[string]model.Subscription, len(names)),
		contents: make(map[string]*model.FeedContent, len(names)),
	}
	for _, n := range names {
		versions[n] = s.dirty[n]
		if i := s.subIndex(n); i >= 0 {
			snap.subs[n] = s.subs[i]
		}
		if c, ok := s.index.GetFeed(n); ok {
			snap.contents[n] = c.Clone()
		}
	}
	s.mu.Unlock()

	res := s.store.Save(ctx, snap, names)

	s.mu.Lock()
	for _, n := range res.Saved {
		if s.dirty[n] == versions[n] {
			delete(s.dirty, n)
		}
	}
	for _, n := range names {
		if _, ok := snap.subs[n]; !ok {
			// Unsubscribed while dirty.
			delete(s.dirty, n)
		}
	}
	for i := range s.subs {
		s.refreshUnread(s.subs[i].Name)
	}
	subs := slices.Clone(s.subs)
	s.mu.Unlock()

	var errs []error
	for _, n := range names {
		if err, ok := res.Failed[n]; ok && !errors.Is(err, persist.ErrNoSubscription) {
			errs = append(errs, fmt.Errorf("save feed %q: %w", n, err))
		}
	}
	if err := s.store.SaveSubscriptions(ctx, subs); err != nil {
		errs = append(errs, fmt.Errorf("save subscriptions: %w", err))
	}
	if len(errs) == 0 {
		s.log.Debug("saved", "feeds", len(res.Saved))
	}
	return errors.Join(errs...)
}
