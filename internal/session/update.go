package session

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"feeds_reader/internal/merge"
)

// UpdateReport is the outcome of updating one feed.
type UpdateReport struct {
	Feed    string `json:"feed"`
	Added   int    `json:"added"`
	Changed bool   `json:"changed"`
	Unread  int    `json:"unread"`
	Err     error  `json:"-"`
}

// Update fetches one feed and merges the result into the stored content.
func (s *Session) Update(ctx context.Context, name string) (UpdateReport, error) {
	rep := UpdateReport{Feed: name}
	if err := s.EnsureLoaded(ctx, name); err != nil {
		rep.Err = err
		return rep, err
	}
	sub, ok := s.Subscription(name)
	if !ok {
		rep.Err = fmt.Errorf("update %q: %w", name, ErrUnknownFeed)
		return rep, rep.Err
	}

	fetched, err := s.fetcher.Fetch(ctx, sub)
	if err != nil {
		rep.Err = fmt.Errorf("update %q: %w", name, err)
		return rep, rep.Err
	}

	s.mu.Lock()
	i := s.subIndex(name)
	existing, loaded := s.index.GetFeed(name)
	if i < 0 || !loaded {
		s.mu.Unlock()
		rep.Err = fmt.Errorf("update %q: %w", name, ErrUnknownFeed)
		return rep, rep.Err
	}
	first := len(existing.Items) == 0
	res := merge.Update(existing, fetched)
	res.Merged.Name = name
	res.Merged.Folder = s.subs[i].Folder
	s.index.SetFeed(name, res.Merged)
	s.subs[i].Unread = res.Unread
	s.subs[i].Updated = s.now().UnixMilli()
	if res.Changed {
		s.markDirty(name)
	} else {
		s.RequestSave()
	}
	s.mu.Unlock()

	rep.Added = len(res.Added)
	rep.Changed = res.Changed
	rep.Unread = res.Unread
	s.log.Info("feed updated", "feed", name, "added", rep.Added, "unread", rep.Unread)

	if s.opts.Announcer != nil && !first && len(res.Added) > 0 {
		if err := s.opts.Announcer.AnnounceNewItems(ctx, name, res.Added); err != nil {
			s.log.Warn("announce new items", "feed", name, "error", err)
		}
	}
	return rep, nil
}

// UpdateAll updates every subscribed feed with bounded concurrency. One
// failing feed never stops the others; reports follow subscription order.
func (s *Session) UpdateAll(ctx context.Context) []UpdateReport {
	subs := s.Subscriptions()
	reports := make([]UpdateReport, len(subs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.FetchConcurrency)
	for i, sub := range subs {
		g.Go(func() error {
			if s.limiter != nil {
				if err := s.limiter.Wait(gctx); err != nil {
					reports[i] = UpdateReport{Feed: sub.Name, Err: fmt.Errorf("update %q: %w", sub.Name, err)}
					return nil
				}
			}
			reports[i], _ = s.Update(gctx, sub.Name)
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, r := range reports {
		if r.Err == nil {
			continue
		}
		failed++
		s.notify(ctx, fmt.Sprintf("Failed to update %q: %v", r.Feed, r.Err))
	}
	s.log.Info("update finished", "updated", len(reports)-failed, "failed", failed)
	return reports
}

func (s *Session) notify(ctx context.Context, msg string) {
	s.log.Warn(msg)
	if s.opts.Notifier == nil {
		return
	}
	if err := s.opts.Notifier.Notify(ctx, msg); err != nil {
		s.log.Error("send notice", "error", err)
	}
}
