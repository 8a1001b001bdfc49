// Package fetcher downloads feeds and converts them into feed content.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/mmcdole/gofeed"

	"feeds_reader/internal/model"
)

// maxBody caps the size of a downloaded feed document.
const maxBody = 5 * 1024 * 1024

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Fetcher downloads and parses feeds.
type Fetcher struct {
	client    HTTPClient
	timeout   time.Duration
	userAgent string
	policy    *bluemonday.Policy
}

// New creates a Fetcher with the given HTTP client.
func New(client HTTPClient) *Fetcher {
	p := bluemonday.UGCPolicy()
	p.RequireNoFollowOnLinks(true)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	return &Fetcher{
		client:    client,
		timeout:   30 * time.Second,
		userAgent: "FeedsReader/1.0",
		policy:    p,
	}
}

// SetTimeout overrides the default 30-second request timeout.
func (f *Fetcher) SetTimeout(d time.Duration) {
	f.timeout = d
}

// Fetch downloads the feed of sub and converts it.
func (f *Fetcher) Fetch(ctx context.Context, sub model.Subscription) (*model.FeedContent, error) {
	feed, err := f.download(ctx, sub.FeedURL)
	if err != nil {
		return nil, err
	}
	return f.Convert(sub, feed), nil
}

func (f *Fetcher) download(ctx context.Context, url string) (*gofeed.Feed, error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(body) > maxBody {
		return nil, fmt.Errorf("feed exceeds %d MiB", maxBody>>20)
	}

	parser := gofeed.NewParser()
	feed, err := parser.ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}
	return feed, nil
}

// Convert maps a parsed feed onto the stored model. Items without a link or
// guid are skipped; every other item leaves with an identity.
func (f *Fetcher) Convert(sub model.Subscription, feed *gofeed.Feed) *model.FeedContent {
	c := &model.FeedContent{
		FeedMetadata: model.FeedMetadata{
			Name:        sub.Name,
			Title:       strings.TrimSpace(feed.Title),
			Link:        feed.Link,
			Folder:      sub.Folder,
			Description: feed.Description,
			PubDate:     normalizeDate(feed.UpdatedParsed, feed.Updated, feed.PublishedParsed, feed.Published),
		},
		Items: make([]model.FeedItem, 0, len(feed.Items)),
	}
	if c.Title == "" {
		c.Title = sub.Name
	}
	if c.Link == "" {
		c.Link = sub.FeedURL
	}
	if feed.Image != nil && safeImage(feed.Image.URL) {
		c.Image = model.ImageRef(feed.Image.URL)
	}

	for _, item := range feed.Items {
		if it, ok := f.convertItem(item); ok {
			c.Items = append(c.Items, it)
		}
	}
	return c
}

func (f *Fetcher) convertItem(item *gofeed.Item) (model.FeedItem, bool) {
	link := item.Link
	if link == "" {
		link = item.GUID
	}
	if link == "" {
		return model.FeedItem{}, false
	}

	content := item.Content
	if content == "" {
		content = item.Description
	}

	it := model.FeedItem{
		ID:       item.GUID,
		Title:    strings.TrimSpace(item.Title),
		Content:  strings.TrimSpace(f.policy.Sanitize(content)),
		Category: strings.Join(item.Categories, ", "),
		Link:     link,
		Creator:  creator(item),
		PubDate:  normalizeDate(item.PublishedParsed, item.Published, item.UpdatedParsed, item.Updated),
		Image:    model.ImageRef(itemImage(item)),
	}
	if it.ID == "" {
		it.ID = model.ItemID(&it)
	}
	return it, true
}

func creator(item *gofeed.Item) string {
	for _, a := range item.Authors {
		if a != nil && a.Name != "" {
			return a.Name
		}
	}
	if item.Author != nil && item.Author.Name != "" {
		return item.Author.Name
	}
	if dc := item.DublinCoreExt; dc != nil && len(dc.Creator) > 0 {
		return dc.Creator[0]
	}
	return ""
}

func itemImage(item *gofeed.Item) string {
	if item.Image != nil && safeImage(item.Image.URL) {
		return item.Image.URL
	}
	for _, enc := range item.Enclosures {
		if enc != nil && strings.HasPrefix(enc.Type, "image/") && safeImage(enc.URL) {
			return enc.URL
		}
	}
	return ""
}

var safeImageURL = regexp.MustCompile(`(?i)^(https?:)?//`)

// safeImage accepts absolute http(s) and protocol-relative URLs only.
func safeImage(url string) bool {
	return safeImageURL.MatchString(strings.TrimSpace(url))
}

// normalizeDate returns the first parsed time as RFC 3339 in UTC, falling
// back to the first non-empty raw value.
func normalizeDate(parsed1 *time.Time, raw1 string, parsed2 *time.Time, raw2 string) string {
	switch {
	case parsed1 != nil:
		return parsed1.UTC().Format(time.RFC3339)
	case parsed2 != nil:
		return parsed2.UTC().Format(time.RFC3339)
	case raw1 != "":
		return raw1
	}
	return raw2
}
