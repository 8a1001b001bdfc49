// Package merge reconciles freshly fetched feed content with stored state.
package merge

import "feeds_reader/internal/model"

// Result is the outcome of Update.
type Result struct {
	Merged  *model.FeedContent
	Changed bool
	// Added lists the items that were not stored before, newest first.
	Added  []model.FeedItem
	Unread int
}

// Update merges fetched into existing, which may be nil. Items are matched
// by identity only; unknown ones are prepended in fetched order while stored
// items keep their order and user state. Title, description and image are
// replaced when they differ and pubDate is always taken from fetched.
// Neither argument is modified.
func Update(existing, fetched *model.FeedContent) Result {
	if existing == nil {
		merged := fetched.Clone()
		if merged.Items == nil {
			merged.Items = []model.FeedItem{}
		}
		model.EnsureIDs(merged.Items)
		merged.Items = dedupe(merged.Items)
		return Result{
			Merged:  merged,
			Changed: true,
			Added:   merged.Items,
			Unread:  model.Unread(merged.Items),
		}
	}

	merged := &model.FeedContent{FeedMetadata: existing.FeedMetadata}
	seen := make(map[string]bool, len(existing.Items))
	for i := range existing.Items {
		seen[existing.Items[i].ID] = true
	}

	var added []model.FeedItem
	for _, it := range fetched.Items {
		if it.ID == "" {
			it.ID = model.ItemID(&it)
		}
		if seen[it.ID] {
			continue
		}
		seen[it.ID] = true
		added = append(added, it)
	}

	merged.Items = make([]model.FeedItem, 0, len(added)+len(existing.Items))
	merged.Items = append(merged.Items, added...)
	merged.Items = append(merged.Items, existing.Items...)
	changed := len(added) > 0

	if merged.Title != fetched.Title {
		merged.Title = fetched.Title
		changed = true
	}
	if merged.Description != fetched.Description {
		merged.Description = fetched.Description
		changed = true
	}
	if merged.Image != fetched.Image {
		merged.Image = fetched.Image
		changed = true
	}
	merged.PubDate = fetched.PubDate

	return Result{
		Merged:  merged,
		Changed: changed,
		Added:   added,
		Unread:  model.Unread(merged.Items),
	}
}

func dedupe(items []model.FeedItem) []model.FeedItem {
	seen := make(map[string]bool, len(items))
	out := items[:0]
	for _, it := range items {
		if seen[it.ID] {
			continue
		}
		seen[it.ID] = true
		out = append(out, it)
	}
	return out
}
