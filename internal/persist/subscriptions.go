package persist

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"feeds_reader/internal/model"
	"feeds_reader/internal/vault"
)

// LoadSubscriptions reads the subscription list. A missing or empty file is
// an empty list. Invalid and duplicate entries are dropped and folders not
// rooted under the store base are rebuilt from the feed name; modified
// reports whether any of that happened.
func (s *Store) LoadSubscriptions(ctx context.Context) (subs []model.Subscription, modified bool, err error) {
	ok, err := s.vault.Exists(ctx, SubscriptionsFile)
	if err != nil {
		return nil, false, &IOError{Op: "exists", Path: SubscriptionsFile, Err: err}
	}
	if !ok {
		return []model.Subscription{}, false, nil
	}
	text, err := s.vault.Read(ctx, SubscriptionsFile)
	if err != nil {
		return nil, false, &IOError{Op: "read", Path: SubscriptionsFile, Err: err}
	}
	if strings.TrimSpace(text) == "" {
		return []model.Subscription{}, false, nil
	}

	var raws []json.RawMessage
	if err := json.Unmarshal([]byte(text), &raws); err != nil {
		return nil, false, fmt.Errorf("parse %s: %w", SubscriptionsFile, err)
	}

	subs = make([]model.Subscription, 0, len(raws))
	names := make(map[string]bool, len(raws))
	folders := make(map[string]bool, len(raws))
	for i, raw := range raws {
		var sub model.Subscription
		if err := json.Unmarshal(raw, &sub); err != nil {
			s.warn(ctx, fmt.Sprintf("Dropped unreadable subscription #%d", i+1), "index", i, "error", err)
			modified = true
			continue
		}
		if err := s.validate.Subscription(&sub); err != nil {
			s.warn(ctx, fmt.Sprintf("Dropped invalid subscription %q: %v", sub.Name, err), "index", i, "error", err)
			modified = true
			continue
		}
		if names[sub.Name] {
			s.warn(ctx, fmt.Sprintf("Dropped duplicate subscription %q", sub.Name), "feed", sub.Name)
			modified = true
			continue
		}
		if !s.conforms(sub.Folder) || folders[sub.Folder] {
			folder := s.AssignFolder(sub.Name, folders)
			s.log.Warn("rebuilt feed folder", "feed", sub.Name, "from", sub.Folder, "to", folder)
			sub.Folder = folder
			modified = true
		}
		names[sub.Name] = true
		folders[sub.Folder] = true
		subs = append(subs, sub)
	}
	return subs, modified, nil
}

// SaveSubscriptions writes the subscription list.
func (s *Store) SaveSubscriptions(ctx context.Context, subs []model.Subscription) error {
	if subs == nil {
		subs = []model.Subscription{}
	}
	data, err := json.MarshalIndent(subs, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal subscriptions: %w", err)
	}
	if err := s.vault.Write(ctx, SubscriptionsFile, string(data)); err != nil {
		return &IOError{Op: "write", Path: SubscriptionsFile, Err: err}
	}
	return nil
}

// AssignFolder derives a folder for name that is not in taken.
func (s *Store) AssignFolder(name string, taken map[string]bool) string {
	folder := model.FolderFor(s.base, name)
	if !taken[folder] {
		return folder
	}
	for n := 2; ; n++ {
		candidate := folder + "_" + strconv.Itoa(n)
		if !taken[candidate] {
			return candidate
		}
	}
}

// conforms reports whether folder is a direct child of the store base.
func (s *Store) conforms(folder string) bool {
	if folder != vault.Clean(folder) {
		return false
	}
	rest, ok := strings.CutPrefix(folder, s.base+"/")
	return ok && rest != "" && !strings.Contains(rest, "/") &&
		!strings.Contains(rest, ".__swap_") && !strings.Contains(rest, ".__old_")
}
