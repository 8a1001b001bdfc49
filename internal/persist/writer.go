package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"feeds_reader/internal/chunk"
	"feeds_reader/internal/codec"
	"feeds_reader/internal/model"
	"feeds_reader/internal/vault"
)

// Source resolves the state Save writes. Both lookups report false when the
// feed is unknown.
type Source interface {
	Subscription(name string) (model.Subscription, bool)
	Content(name string) (*model.FeedContent, bool)
}

// ErrNoSubscription is reported for feeds missing from the subscription list.
var ErrNoSubscription = errors.New("no subscription entry")

// SaveResult reports per-feed outcomes of Save.
type SaveResult struct {
	Saved  []string
	Failed map[string]error
}

// IsSaved reports whether name was written.
func (r SaveResult) IsSaved(name string) bool {
	for _, n := range r.Saved {
		if n == name {
			return true
		}
	}
	return false
}

type file struct {
	name string
	data []byte
}

// Save writes the named feeds. A failing feed never blocks the others.
func (s *Store) Save(ctx context.Context, src Source, names []string) SaveResult {
	res := SaveResult{Failed: make(map[string]error)}
	for _, name := range names {
		sub, ok := src.Subscription(name)
		if !ok {
			s.log.Warn("skip saving feed without subscription", "feed", name)
			res.Failed[name] = ErrNoSubscription
			continue
		}
		content, ok := src.Content(name)
		if !ok {
			content = model.EmptyContent(sub)
		}
		if err := s.SaveFeed(ctx, sub, content); err != nil {
			s.log.Error("save feed", "feed", name, "error", err)
			res.Failed[name] = err
			continue
		}
		res.Saved = append(res.Saved, name)
	}
	return res
}

// SaveFeed validates and writes one feed. Nothing is touched on disk unless
// the whole feed validates and encodes.
func (s *Store) SaveFeed(ctx context.Context, sub model.Subscription, content *model.FeedContent) error {
	files, err := s.encode(sub, content)
	if err != nil {
		return err
	}
	folder := vault.Clean(sub.Folder)
	if r, ok := s.vault.(vault.Renamer); ok {
		swappable, err := s.onlyDataFiles(ctx, folder)
		if err != nil {
			return err
		}
		if swappable {
			return s.swap(ctx, r, folder, files)
		}
	}
	return s.replaceInPlace(ctx, folder, files)
}

func (s *Store) encode(sub model.Subscription, content *model.FeedContent) ([]file, error) {
	meta := content.Meta()
	meta.Name = sub.Name
	meta.Folder = sub.Folder
	if err := s.validate.Meta(&meta); err != nil {
		return nil, fmt.Errorf("feed %q: %w", sub.Name, err)
	}

	var files []file
	if len(content.Items) > 0 {
		full := model.FeedContent{FeedMetadata: meta, Items: content.Items}
		if err := s.validate.Content(&full); err != nil {
			return nil, fmt.Errorf("feed %q: %w", sub.Name, err)
		}
		text, err := json.Marshal(content.Items)
		if err != nil {
			return nil, fmt.Errorf("marshal items: %w", err)
		}
		for i, part := range chunk.Split(string(text), s.maxChunk) {
			data, err := codec.Compress(part)
			if err != nil {
				return nil, fmt.Errorf("chunk %d: %w", i, err)
			}
			files = append(files, file{name: chunk.ItemsFile(i), data: data})
		}
	}

	metaText, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("marshal meta: %w", err)
	}
	metaData, err := codec.Compress(string(metaText))
	if err != nil {
		return nil, fmt.Errorf("meta: %w", err)
	}
	// The metadata file goes last so its presence marks a complete write.
	return append(files, file{name: chunk.MetaFile, data: metaData}), nil
}

func (s *Store) replaceInPlace(ctx context.Context, folder string, files []file) error {
	if err := s.ensureFolder(ctx, folder); err != nil {
		return err
	}
	if err := s.removeDataFiles(ctx, folder); err != nil {
		return err
	}
	return s.writeFiles(ctx, folder, files)
}

// swap writes files into a staging folder and exchanges it with the live one.
// Either the old or the new complete folder is present at every step.
func (s *Store) swap(ctx context.Context, r vault.Renamer, folder string, files []file) error {
	id := uuid.NewString()
	staging := folder + ".__swap_" + id
	if err := s.vault.CreateFolder(ctx, staging); err != nil {
		return &IOError{Op: "create folder", Path: staging, Err: err}
	}
	if err := s.writeFiles(ctx, staging, files); err != nil {
		s.discard(ctx, staging)
		return err
	}

	live, err := s.vault.Exists(ctx, folder)
	if err != nil {
		s.discard(ctx, staging)
		return &IOError{Op: "exists", Path: folder, Err: err}
	}
	if !live {
		if err := s.ensureFolder(ctx, vault.Parent(folder)); err != nil {
			s.discard(ctx, staging)
			return err
		}
		if err := r.Rename(ctx, staging, folder); err != nil {
			s.discard(ctx, staging)
			return &IOError{Op: "rename", Path: staging, Err: err}
		}
		return nil
	}

	old := folder + ".__old_" + id
	if err := r.Rename(ctx, folder, old); err != nil {
		s.discard(ctx, staging)
		return &IOError{Op: "rename", Path: folder, Err: err}
	}
	if err := r.Rename(ctx, staging, folder); err != nil {
		if rbErr := r.Rename(ctx, old, folder); rbErr != nil {
			s.log.Error("roll back folder swap", "path", folder, "error", rbErr)
		}
		s.discard(ctx, staging)
		return &IOError{Op: "rename", Path: staging, Err: err}
	}
	s.discard(ctx, old)
	return nil
}

func (s *Store) discard(ctx context.Context, p string) {
	if err := s.vault.Delete(ctx, p); err != nil {
		s.log.Warn("remove leftover folder", "path", p, "error", err)
	}
}

// onlyDataFiles reports whether folder is missing or holds nothing but data
// files, so that swapping it out loses nothing.
func (s *Store) onlyDataFiles(ctx context.Context, folder string) (bool, error) {
	ok, err := s.vault.Exists(ctx, folder)
	if err != nil {
		return false, &IOError{Op: "exists", Path: folder, Err: err}
	}
	if !ok {
		return true, nil
	}
	names, err := s.vault.List(ctx, folder)
	if err != nil {
		return false, &IOError{Op: "list", Path: folder, Err: err}
	}
	for _, n := range names {
		if !chunk.IsDataFile(n) {
			return false, nil
		}
	}
	return true, nil
}

func (s *Store) ensureFolder(ctx context.Context, folder string) error {
	if folder == "" {
		return nil
	}
	ok, err := s.vault.Exists(ctx, folder)
	if err != nil {
		return &IOError{Op: "exists", Path: folder, Err: err}
	}
	if ok {
		return nil
	}
	if err := s.vault.CreateFolder(ctx, folder); err != nil {
		return &IOError{Op: "create folder", Path: folder, Err: err}
	}
	return nil
}

func (s *Store) removeDataFiles(ctx context.Context, folder string) error {
	names, err := s.vault.List(ctx, folder)
	if err != nil {
		return &IOError{Op: "list", Path: folder, Err: err}
	}
	for _, n := range names {
		if !chunk.IsDataFile(n) {
			continue
		}
		p := folder + "/" + n
		if err := s.vault.Delete(ctx, p); err != nil {
			return &IOError{Op: "delete", Path: p, Err: err}
		}
	}
	return nil
}

func (s *Store) writeFiles(ctx context.Context, folder string, files []file) error {
	for _, f := range files {
		p := folder + "/" + f.name
		if err := s.vault.WriteBinary(ctx, p, f.data); err != nil {
			return &IOError{Op: "write", Path: p, Err: err}
		}
	}
	return nil
}

// RemoveFeedFiles deletes the folder of a feed. A missing folder is not an
// error.
func (s *Store) RemoveFeedFiles(ctx context.Context, sub model.Subscription) error {
	folder := vault.Clean(sub.Folder)
	if folder == "" || folder == s.base {
		return fmt.Errorf("remove feed %q: refusing to delete %q", sub.Name, folder)
	}
	ok, err := s.vault.Exists(ctx, folder)
	if err != nil {
		return &IOError{Op: "exists", Path: folder, Err: err}
	}
	if !ok {
		return nil
	}
	if err := s.vault.Delete(ctx, folder); err != nil {
		return &IOError{Op: "delete", Path: folder, Err: err}
	}
	return nil
}

// RemoveStale cleans up after interrupted swaps: staging folders are deleted
// and a backup whose live folder is missing is moved back into place.
func (s *Store) RemoveStale(ctx context.Context) error {
	ok, err := s.vault.Exists(ctx, s.base)
	if err != nil {
		return &IOError{Op: "exists", Path: s.base, Err: err}
	}
	if !ok {
		return nil
	}
	names, err := s.vault.List(ctx, s.base)
	if err != nil {
		return &IOError{Op: "list", Path: s.base, Err: err}
	}
	for _, n := range names {
		p := s.base + "/" + n
		if _, _, found := strings.Cut(n, ".__swap_"); found {
			s.log.Info("remove stale staging folder", "path", p)
			s.discard(ctx, p)
			continue
		}
		liveName, _, found := strings.Cut(n, ".__old_")
		if !found {
			continue
		}
		live := s.base + "/" + liveName
		exists, err := s.vault.Exists(ctx, live)
		if err != nil {
			return &IOError{Op: "exists", Path: live, Err: err}
		}
		if r, ok := s.vault.(vault.Renamer); ok && !exists {
			s.log.Warn("restore interrupted swap", "path", live)
			if err := r.Rename(ctx, p, live); err != nil {
				return &IOError{Op: "rename", Path: p, Err: err}
			}
			continue
		}
		s.log.Info("remove stale backup folder", "path", p)
		s.discard(ctx, p)
	}
	return nil
}
