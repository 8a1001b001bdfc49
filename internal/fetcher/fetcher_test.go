package fetcher

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"os"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/mmcdole/gofeed"

	"feeds_reader/internal/model"
)

type mockTransport struct {
	body       string
	statusCode int
	err        error
	gotAgent   string
}

func (m *mockTransport) Do(req *http.Request) (*http.Response, error) {
	m.gotAgent = req.Header.Get("User-Agent")
	if m.err != nil {
		return nil, m.err
	}
	return &http.Response{
		StatusCode: m.statusCode,
		Body:       io.NopCloser(bytes.NewBufferString(m.body)),
	}, nil
}

func loadFixture(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path) //nolint:gosec // test-only fixture loading
	if err != nil {
		t.Fatalf("read fixture %s: %v", path, err)
	}
	return string(data)
}

var testSub = model.Subscription{
	Name:    "devops",
	FeedURL: "https://devops.example.com/rss",
	Folder:  "feeds_store/devops",
}

func TestFetch(t *testing.T) {
	xml := loadFixture(t, "../../testdata/sample.xml")

	tests := []struct {
		name      string
		transport *mockTransport
		wantTitle string
		wantItems int
		wantErr   string
	}{
		{
			name:      "successful fetch",
			transport: &mockTransport{body: xml, statusCode: 200},
			wantTitle: "DevOps Weekly",
			wantItems: 4,
		},
		{
			name:      "http error status",
			transport: &mockTransport{body: "not found", statusCode: 404},
			wantErr:   "unexpected status 404",
		},
		{
			name:      "network error",
			transport: &mockTransport{err: io.ErrUnexpectedEOF},
			wantErr:   "http get",
		},
		{
			name:      "invalid xml",
			transport: &mockTransport{body: "not xml at all", statusCode: 200},
			wantErr:   "parse feed",
		},
		{
			name:      "oversized body",
			transport: &mockTransport{body: xml + strings.Repeat(" ", maxBody), statusCode: 200},
			wantErr:   "feed exceeds 5 MiB",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := New(tt.transport)
			feed, err := f.Fetch(context.Background(), testSub)

			if diff := cmp.Diff("FeedsReader/1.0", tt.transport.gotAgent); diff != "" {
				t.Errorf("user agent mismatch (-want +got):\n%s", diff)
			}
			if tt.wantErr != "" {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if !strings.Contains(err.Error(), tt.wantErr) {
					t.Errorf("error %q does not mention %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if diff := cmp.Diff(tt.wantTitle, feed.Title); diff != "" {
				t.Errorf("title mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.wantItems, len(feed.Items)); diff != "" {
				t.Errorf("item count mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestConvert(t *testing.T) {
	xml := loadFixture(t, "../../testdata/sample.xml")
	parsed, err := gofeed.NewParser().ParseString(xml)
	if err != nil {
		t.Fatalf("parse fixture: %v", err)
	}

	c := New(&mockTransport{}).Convert(testSub, parsed)

	wantMeta := model.FeedMetadata{
		Name:        "devops",
		Title:       "DevOps Weekly",
		Link:        "https://devops.example.com/",
		Folder:      "feeds_store/devops",
		Description: "Weekly digest of DevOps news",
		Image:       "https://devops.example.com/logo.png",
		PubDate:     "2025-01-06T09:00:00Z",
	}
	if diff := cmp.Diff(wantMeta, c.FeedMetadata); diff != "" {
		t.Errorf("metadata mismatch (-want +got):\n%s", diff)
	}

	if len(c.Items) != 4 {
		t.Fatalf("items = %d, want 4", len(c.Items))
	}

	k8s := c.Items[0]
	if diff := cmp.Diff("k8s-1-32", k8s.ID); diff != "" {
		t.Errorf("guid id (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff("kubernetes, release", k8s.Category); diff != "" {
		t.Errorf("category (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff("Jane Ops", k8s.Creator); diff != "" {
		t.Errorf("creator (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff("2025-01-06T07:00:00Z", k8s.PubDate); diff != "" {
		t.Errorf("pubDate (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(model.ImageRef("https://devops.example.com/k8s.png"), k8s.Image); diff != "" {
		t.Errorf("image (-want +got):\n%s", diff)
	}
	if strings.Contains(k8s.Content, "<script") || !strings.Contains(k8s.Content, "<b>1.32</b>") {
		t.Errorf("content not sanitized as expected: %q", k8s.Content)
	}
	if k8s.Read.IsSet() || k8s.Deleted.IsSet() {
		t.Error("fresh item has state set")
	}

	docker := c.Items[1]
	if diff := cmp.Diff(model.ItemID(&docker), docker.ID); diff != "" {
		t.Errorf("fallback id (-want +got):\n%s", diff)
	}
	if strings.Contains(string(docker.Image), "javascript") {
		t.Errorf("unsafe image kept: %q", docker.Image)
	}
	if diff := cmp.Diff("<p>New Docker Desktop build.</p>", docker.Content); diff != "" {
		t.Errorf("content from description (-want +got):\n%s", diff)
	}

	job := c.Items[2]
	if diff := cmp.Diff("https://devops.example.com/jobs/bigcorp", job.Link); diff != "" {
		t.Errorf("link from guid (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff("not a date", job.PubDate); diff != "" {
		t.Errorf("raw pubDate kept (-want +got):\n%s", diff)
	}
}

func TestConvertFallbacks(t *testing.T) {
	c := New(&mockTransport{}).Convert(testSub, &gofeed.Feed{
		Items: []*gofeed.Item{{Title: "x"}},
	})
	if diff := cmp.Diff("devops", c.Title); diff != "" {
		t.Errorf("title fallback (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(testSub.FeedURL, c.Link); diff != "" {
		t.Errorf("link fallback (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(0, len(c.Items)); diff != "" {
		t.Errorf("items without link or guid (-want +got):\n%s", diff)
	}
}

func TestSafeImage(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"https://example.com/a.png", true},
		{"HTTP://example.com/a.png", true},
		{"//cdn.example.com/a.png", true},
		{"javascript:alert(1)", false},
		{"data:image/png;base64,AAAA", false},
		{"/relative.png", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			if got := safeImage(tt.url); got != tt.want {
				t.Errorf("safeImage(%q) = %v, want %v", tt.url, got, tt.want)
			}
		})
	}
}
