// Package model defines the domain types used across the application.
package model

import (
	"regexp"
	"strconv"
	"time"
)

// FeedMetadata describes a subscribed feed without its items.
type FeedMetadata struct {
	Name        string   `json:"name" validate:"required"`
	Title       string   `json:"title"`
	Link        string   `json:"link"`
	Folder      string   `json:"folder" validate:"required"`
	Subtitle    string   `json:"subtitle,omitempty"`
	Image       ImageRef `json:"image,omitempty"`
	Description string   `json:"description,omitempty"`
	PubDate     string   `json:"pubDate,omitempty"`
}

// FeedItem is a single entry of a feed together with the user-applied state.
type FeedItem struct {
	ID         string   `json:"id" validate:"required"`
	Title      string   `json:"title"`
	Content    string   `json:"content"`
	Category   string   `json:"category"`
	Link       string   `json:"link"`
	Image      ImageRef `json:"image,omitempty"`
	Creator    string   `json:"creator"`
	PubDate    string   `json:"pubDate"`
	Read       Stamp    `json:"read"`
	Deleted    Stamp    `json:"deleted"`
	Downloaded Stamp    `json:"downloaded"`
	SourceFeed string   `json:"__sourceFeed,omitempty"`
}

// Visible reports whether the item is neither read nor deleted.
func (it *FeedItem) Visible() bool {
	return !it.Read.IsSet() && !it.Deleted.IsSet()
}

// FeedContent is the unit of persistence: one subscription, one folder.
type FeedContent struct {
	FeedMetadata
	Items []FeedItem `json:"items" validate:"dive"`
}

// Meta returns a copy of the feed-level fields.
func (c *FeedContent) Meta() FeedMetadata {
	return c.FeedMetadata
}

// Clone returns a copy whose item slice can be mutated independently.
func (c *FeedContent) Clone() *FeedContent {
	cp := &FeedContent{FeedMetadata: c.FeedMetadata}
	if c.Items != nil {
		cp.Items = make([]FeedItem, len(c.Items))
		copy(cp.Items, c.Items)
	}
	return cp
}

// Subscription is one entry of the subscription list.
type Subscription struct {
	Name    string `json:"name" validate:"required"`
	FeedURL string `json:"feedUrl" validate:"required,url"`
	Unread  int    `json:"unread" validate:"gte=0"`
	Updated int64  `json:"updated"`
	Folder  string `json:"folder"`
}

// EmptyContent returns the valid, item-less content used when nothing is stored for sub.
func EmptyContent(sub Subscription) *FeedContent {
	return &FeedContent{
		FeedMetadata: FeedMetadata{
			Name:   sub.Name,
			Title:  sub.Name,
			Link:   sub.FeedURL,
			Folder: sub.Folder,
		},
		Items: []FeedItem{},
	}
}

// Unread counts items that are neither read nor deleted.
func Unread(items []FeedItem) int {
	n := 0
	for i := range items {
		if items[i].Visible() {
			n++
		}
	}
	return n
}

var unsafeFolderChars = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// FolderFor derives the storage folder of a feed from its name.
func FolderFor(base, name string) string {
	s := unsafeFolderChars.ReplaceAllString(name, "_")
	if len(s) > 50 {
		s = s[:50]
	}
	if s == "" {
		s = "feed_" + strconv.FormatInt(time.Now().UnixMilli(), 10)
	}
	return base + "/" + s
}
