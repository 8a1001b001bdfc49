// Package search implements query matching and ranked search over feed items.
package search

import (
	"errors"
	"fmt"
	"html"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"feeds_reader/internal/model"
)

// ErrInvalidQuery is returned for queries that cannot be parsed.
var ErrInvalidQuery = errors.New("invalid query")

// Kind is the type of a query term.
type Kind int

// Term kinds.
const (
	Include Kind = iota
	Exclude
	IncludeRe
)

// Term is one element of a query.
type Term struct {
	Kind  Kind
	Value string
	re    *regexp.Regexp
}

// Query is a parsed search query. Every Include and IncludeRe term must
// match and no Exclude term may match.
type Query struct {
	Terms []Term
}

// ParseQuery splits q on whitespace. "-word" excludes, "/expr/" is a
// case-insensitive regular expression, anything else must appear.
func ParseQuery(q string) (Query, error) {
	var out Query
	for _, f := range strings.Fields(q) {
		switch {
		case len(f) > 2 && strings.HasPrefix(f, "/") && strings.HasSuffix(f, "/"):
			expr := f[1 : len(f)-1]
			re, err := compile(expr)
			if err != nil {
				return Query{}, err
			}
			out.Terms = append(out.Terms, Term{Kind: IncludeRe, Value: expr, re: re})
		case len(f) > 1 && strings.HasPrefix(f, "-"):
			out.Terms = append(out.Terms, Term{Kind: Exclude, Value: strings.ToLower(f[1:])})
		default:
			out.Terms = append(out.Terms, Term{Kind: Include, Value: strings.ToLower(f)})
		}
	}
	return out, nil
}

// Positive reports whether the query has a term that selects items.
func (q Query) Positive() bool {
	for _, t := range q.Terms {
		if t.Kind != Exclude {
			return true
		}
	}
	return false
}

func compile(expr string) (*regexp.Regexp, error) {
	re, err := regexp.Compile("(?i)" + expr)
	if err != nil {
		return nil, fmt.Errorf("%w: regex %q: %w", ErrInvalidQuery, expr, err)
	}
	return re, nil
}

// Score returns how well an item matches and whether it matches at all.
// A term found in the title is worth 3, elsewhere 1.
func (q Query) Score(title, text string) (int, bool) {
	title = strings.ToLower(title)
	score := 0
	for _, t := range q.Terms {
		switch t.Kind {
		case Include:
			if !strings.Contains(text, t.Value) {
				return 0, false
			}
			score += weight(strings.Contains(title, t.Value))
		case IncludeRe:
			if !t.re.MatchString(text) {
				return 0, false
			}
			score += weight(t.re.MatchString(title))
		case Exclude:
			if strings.Contains(text, t.Value) {
				return 0, false
			}
		}
	}
	return score, true
}

func weight(inTitle bool) int {
	if inTitle {
		return 3
	}
	return 1
}

// Document is an item together with the feed it belongs to.
type Document struct {
	Feed string
	Item model.FeedItem
}

// Result is a ranked search hit.
type Result struct {
	Feed  string         `json:"feed"`
	Score int            `json:"score"`
	Item  model.FeedItem `json:"item"`
}

type entry struct {
	doc  Document
	text string
}

// Index holds pre-processed search text for a set of documents.
type Index struct {
	mu      sync.RWMutex
	entries []entry
	strip   *bluemonday.Policy
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{strip: bluemonday.StrictPolicy()}
}

// Build replaces the indexed documents.
func (x *Index) Build(docs []Document) {
	entries := make([]entry, 0, len(docs))
	for _, d := range docs {
		entries = append(entries, entry{doc: d, text: x.searchText(&d.Item)})
	}
	x.mu.Lock()
	x.entries = entries
	x.mu.Unlock()
}

// Len returns the number of indexed documents.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.entries)
}

func (x *Index) searchText(it *model.FeedItem) string {
	content := html.UnescapeString(x.strip.Sanitize(it.Content))
	parts := make([]string, 0, 4)
	for _, p := range []string{it.Title, it.Creator, content, it.Category} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.ToLower(strings.Join(parts, " "))
}

// Search runs q over the index, optionally restricted to one feed. Results
// are ordered by score, then newest first.
func (x *Index) Search(q, feed string) ([]Result, error) {
	query, err := ParseQuery(q)
	if err != nil {
		return nil, err
	}
	if !query.Positive() {
		return []Result{}, nil
	}

	x.mu.RLock()
	results := []Result{}
	for _, e := range x.entries {
		if feed != "" && e.doc.Feed != feed {
			continue
		}
		if score, ok := query.Score(e.doc.Item.Title, e.text); ok {
			results = append(results, Result{Feed: e.doc.Feed, Score: score, Item: e.doc.Item})
		}
	}
	x.mu.RUnlock()

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return pubTime(results[i].Item.PubDate).After(pubTime(results[j].Item.PubDate))
	})
	return results, nil
}

var dateLayouts = []string{time.RFC3339, time.RFC1123Z, time.RFC1123, time.RFC822Z, time.RFC822}

func pubTime(s string) time.Time {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
