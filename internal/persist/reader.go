package persist

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"feeds_reader/internal/chunk"
	"feeds_reader/internal/codec"
	"feeds_reader/internal/model"
	"feeds_reader/internal/vault"
)

// Loaded is the outcome of Load. Content is always usable.
type Loaded struct {
	Content *model.FeedContent
	// Migrated is set when legacy files were converted to the chunked layout.
	Migrated bool
	// Recovered and Total count items when some of them had to be dropped.
	Recovered, Total int
	// Err holds the first read failure. Whatever could be read is in Content.
	Err error
}

// Partial reports whether items were dropped during recovery.
func (l Loaded) Partial() bool {
	return l.Recovered < l.Total
}

// Load reconstructs the stored content of sub. Missing files yield an empty
// feed, never an error.
func (s *Store) Load(ctx context.Context, sub model.Subscription) Loaded {
	folder := vault.Clean(sub.Folder)
	out := Loaded{Content: model.EmptyContent(sub)}

	meta, metaFound, metaErr := s.readMeta(ctx, folder)
	if metaErr != nil {
		s.log.Warn("unreadable feed metadata, using defaults", "feed", sub.Name, "error", metaErr)
		out.Err = metaErr
	}
	if meta != nil {
		out.Content.FeedMetadata = *meta
	}

	text, chunks, chunkErr := s.readChunks(ctx, folder)
	if chunkErr != nil {
		s.log.Warn("read item chunks", "feed", sub.Name, "chunks", chunks, "error", chunkErr)
		if out.Err == nil {
			out.Err = chunkErr
		}
	}

	switch {
	case chunks > 0:
		s.decodeInto(ctx, &out, sub.Name, text)
	case metaFound:
	case metaErr != nil || chunkErr != nil:
		// The vault could not tell whether current files exist; migrating
		// now could overwrite them.
	default:
		s.migrateLegacy(ctx, sub, &out)
	}

	out.Content.Name = sub.Name
	out.Content.Folder = sub.Folder
	if out.Content.Items == nil {
		out.Content.Items = []model.FeedItem{}
	}
	return out
}

func (s *Store) readMeta(ctx context.Context, folder string) (*model.FeedMetadata, bool, error) {
	p := folder + "/" + chunk.MetaFile
	ok, err := s.vault.Exists(ctx, p)
	if err != nil {
		return nil, false, &IOError{Op: "exists", Path: p, Err: err}
	}
	if !ok {
		return nil, false, nil
	}
	text, err := s.readText(ctx, p)
	if err != nil {
		return nil, true, err
	}
	var meta model.FeedMetadata
	if err := json.Unmarshal([]byte(text), &meta); err != nil {
		return nil, true, fmt.Errorf("parse %s: %w", p, err)
	}
	// Name and folder are owned by the subscription list.
	check := meta
	check.Name, check.Folder = "-", "-"
	if err := s.validate.Meta(&check); err != nil {
		return nil, true, fmt.Errorf("%s: %w", p, err)
	}
	return &meta, true, nil
}

// readChunks concatenates chunk texts in index order up to the first missing
// index. A failing chunk ends the sequence; when it is the first chunk no
// items are read at all.
func (s *Store) readChunks(ctx context.Context, folder string) (string, int, error) {
	var parts []string
	for i := 0; ; i++ {
		p := folder + "/" + chunk.ItemsFile(i)
		ok, err := s.vault.Exists(ctx, p)
		if err != nil {
			return chunk.Join(parts), i, &IOError{Op: "exists", Path: p, Err: err}
		}
		if !ok {
			return chunk.Join(parts), i, nil
		}
		text, err := s.readText(ctx, p)
		if err != nil {
			if i == 0 {
				// Present but unusable: the item list counts as absent, not as
				// a reason to look for legacy data.
				return "", 1, err
			}
			return chunk.Join(parts), i, err
		}
		parts = append(parts, text)
	}
}

func (s *Store) readText(ctx context.Context, p string) (string, error) {
	data, err := s.vault.ReadBinary(ctx, p)
	if err != nil {
		return "", &IOError{Op: "read", Path: p, Err: err}
	}
	text, err := codec.Decompress(data)
	if err != nil {
		return "", fmt.Errorf("%s: %w", p, err)
	}
	return text, nil
}

// decodeInto parses the item array text with per-item recovery.
func (s *Store) decodeInto(ctx context.Context, out *Loaded, name, text string) {
	if text == "" {
		return
	}
	items, total, err := s.recoverItems(text)
	if err != nil {
		s.log.Warn("parse items", "feed", name, "error", err)
		if out.Err == nil {
			out.Err = err
		}
	}
	out.Content.Items = items
	out.Recovered, out.Total = len(items), total
	if len(items) < total {
		s.warn(ctx, fmt.Sprintf("Feed %q: recovered %d/%d items", name, len(items), total),
			"feed", name, "recovered", len(items), "total", total)
	}
}

// recoverItems decodes a JSON array element by element. Elements that do not
// decode or validate are dropped; a truncated array yields its complete
// elements. total counts the elements seen.
func (s *Store) recoverItems(text string) ([]model.FeedItem, int, error) {
	raws, err := splitArray(text)
	items := make([]model.FeedItem, 0, len(raws))
	for i, raw := range raws {
		var it model.FeedItem
		if err := json.Unmarshal(raw, &it); err != nil {
			s.log.Debug("drop undecodable item", "index", i, "error", err)
			continue
		}
		if it.ID == "" {
			it.ID = model.ItemID(&it)
		}
		if verr := s.validate.Item(&it); verr != nil {
			s.log.Debug("drop invalid item", "index", i, "error", verr)
			continue
		}
		items = append(items, it)
	}
	return items, len(raws), err
}

func splitArray(text string) ([]json.RawMessage, error) {
	dec := json.NewDecoder(strings.NewReader(text))
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("parse items: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '[' {
		return nil, fmt.Errorf("parse items: expected array, got %v", tok)
	}
	var raws []json.RawMessage
	for dec.More() {
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return raws, fmt.Errorf("parse items: truncated after %d items: %w", len(raws), err)
		}
		raws = append(raws, raw)
	}
	return raws, nil
}

// legacyContent is the monolithic document of the legacy layout.
type legacyContent struct {
	model.FeedMetadata
	Items json.RawMessage `json:"items"`
}

func (s *Store) migrateLegacy(ctx context.Context, sub model.Subscription, out *Loaded) {
	folder := vault.Clean(sub.Folder)
	text, found, err := s.readLegacy(ctx, folder)
	if err != nil {
		s.log.Warn("read legacy data", "feed", sub.Name, "error", err)
		if out.Err == nil {
			out.Err = err
		}
	}
	if !found {
		return
	}

	var doc legacyContent
	if err := json.Unmarshal([]byte(text), &doc); err != nil {
		s.log.Warn("parse legacy data", "feed", sub.Name, "error", err)
		if out.Err == nil {
			out.Err = fmt.Errorf("parse legacy data: %w", err)
		}
		return
	}
	check := doc.FeedMetadata
	check.Name, check.Folder = "-", "-"
	if err := s.validate.Meta(&check); err == nil {
		out.Content.FeedMetadata = doc.FeedMetadata
		out.Content.Name, out.Content.Folder = sub.Name, sub.Folder
	}
	if len(doc.Items) > 0 && string(doc.Items) != "null" {
		s.decodeInto(ctx, out, sub.Name, string(doc.Items))
	}

	if err := s.SaveFeed(ctx, sub, out.Content); err != nil {
		s.log.Error("migrate legacy data", "feed", sub.Name, "error", err)
		if out.Err == nil {
			out.Err = err
		}
		return
	}
	out.Migrated = true
	s.log.Info("migrated legacy data", "feed", sub.Name, "items", len(out.Content.Items))
}

// readLegacy concatenates the primary legacy fragment and its numbered
// continuations.
func (s *Store) readLegacy(ctx context.Context, folder string) (string, bool, error) {
	var parts []string
	for i := 0; ; i++ {
		p := folder + "/" + chunk.LegacyFile(i)
		ok, err := s.vault.Exists(ctx, p)
		if err != nil {
			return chunk.Join(parts), i > 0, &IOError{Op: "exists", Path: p, Err: err}
		}
		if !ok {
			return chunk.Join(parts), i > 0, nil
		}
		text, err := s.readText(ctx, p)
		if err != nil {
			if i == 0 {
				return "", false, err
			}
			return chunk.Join(parts), true, err
		}
		parts = append(parts, text)
	}
}
