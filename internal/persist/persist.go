// Package persist reads and writes feed content and the subscription list
// through a vault.
package persist

import (
	"context"
	"fmt"
	"log/slog"

	"feeds_reader/internal/chunk"
	"feeds_reader/internal/schema"
	"feeds_reader/internal/vault"
)

// SubscriptionsFile is the vault path of the subscription list.
const SubscriptionsFile = "subscriptions.json"

// DefaultBase is the folder holding one subfolder per feed.
const DefaultBase = "feeds_store"

// Notifier delivers user-visible warnings.
type Notifier interface {
	Notify(ctx context.Context, msg string) error
}

// IOError reports a failed vault primitive.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// Options configures a Store.
type Options struct {
	// Base is the folder every feed folder must live under.
	Base string
	// MaxChunkBytes caps the uncompressed size of one item chunk.
	MaxChunkBytes int
	// Notifier receives warnings meant for the user. May be nil.
	Notifier Notifier
}

// Store persists feeds in the chunked layout.
type Store struct {
	vault    vault.Vault
	base     string
	maxChunk int
	validate *schema.Validator
	notifier Notifier
	log      *slog.Logger
}

// New creates a Store on top of v.
func New(v vault.Vault, opts Options, log *slog.Logger) *Store {
	if opts.Base == "" {
		opts.Base = DefaultBase
	}
	if opts.MaxChunkBytes <= 0 {
		opts.MaxChunkBytes = chunk.DefaultMaxBytes
	}
	return &Store{
		vault:    v,
		base:     vault.Clean(opts.Base),
		maxChunk: opts.MaxChunkBytes,
		validate: schema.New(),
		notifier: opts.Notifier,
		log:      log,
	}
}

// Base returns the folder holding the feed folders.
func (s *Store) Base() string {
	return s.base
}

// warn logs msg and forwards it to the notifier.
func (s *Store) warn(ctx context.Context, msg string, args ...any) {
	s.log.Warn(msg, args...)
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, msg); err != nil {
		s.log.Error("send notice", "error", err)
	}
}
