package model

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestStampWire(t *testing.T) {
	at := time.Date(2024, 3, 5, 10, 20, 30, 400_000_000, time.FixedZone("CET", 3600))

	tests := []struct {
		name  string
		stamp Stamp
		want  string
		set   bool
	}{
		{name: "zero value is unset", stamp: Stamp{}, want: `"0"`},
		{name: "parsed zero", stamp: ParseStamp("0"), want: `"0"`},
		{name: "empty legacy value is unset", stamp: ParseStamp(""), want: `"0"`},
		{name: "changed at", stamp: ChangedAt(at), want: `"2024-03-05T09:20:30.400Z"`, set: true},
		{name: "unparseable text kept", stamp: ParseStamp("DELETE-NOW"), want: `"DELETE-NOW"`, set: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := json.Marshal(tt.stamp)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			if diff := cmp.Diff(tt.want, string(got)); diff != "" {
				t.Errorf("wire mismatch (-want +got):\n%s", diff)
			}
			if tt.stamp.IsSet() != tt.set {
				t.Errorf("IsSet() = %v, want %v", tt.stamp.IsSet(), tt.set)
			}

			var back Stamp
			if err := json.Unmarshal(got, &back); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if !back.Equal(tt.stamp) {
				t.Errorf("round trip changed stamp: %q -> %q", tt.stamp, back)
			}
		})
	}
}

func TestStampAt(t *testing.T) {
	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	got, ok := ChangedAt(at).At()
	if !ok || !got.Equal(at) {
		t.Errorf("At() = %v, %v; want %v, true", got, ok, at)
	}
	if _, ok := ParseStamp("yesterday").At(); ok {
		t.Error("expected no time for unparseable stamp")
	}
	if _, ok := (Stamp{}).At(); ok {
		t.Error("expected no time for unset stamp")
	}
}

func TestStampRejectsNonString(t *testing.T) {
	var s Stamp
	if err := json.Unmarshal([]byte(`0`), &s); err == nil {
		t.Fatal("expected error for numeric stamp")
	}
}

func TestImageRef(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    ImageRef
		wantErr bool
	}{
		{name: "string", input: `"https://a.example/i.png"`, want: "https://a.example/i.png"},
		{name: "object", input: `{"url":"https://a.example/o.png","width":3}`, want: "https://a.example/o.png"},
		{name: "list", input: `[{"title":"x"},{"url":"https://a.example/l.png"}]`, want: "https://a.example/l.png"},
		{name: "empty list", input: `[]`, want: ""},
		{name: "number", input: `42`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got ImageRef
			err := json.Unmarshal([]byte(tt.input), &got)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("image mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestItemWireFormat(t *testing.T) {
	it := FeedItem{
		ID:         "a1",
		Title:      "Hello <world>",
		Link:       "https://example.com/a1",
		PubDate:    "2024-01-01T00:00:00Z",
		Read:       ParseStamp("2024-01-02T00:00:00.000Z"),
		SourceFeed: "news",
	}
	data, err := json.Marshal(it)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for _, want := range []string{`"read":"2024-01-02T00:00:00.000Z"`, `"deleted":"0"`, `"downloaded":"0"`, `"__sourceFeed":"news"`} {
		if !strings.Contains(string(data), want) {
			t.Errorf("wire %s missing %s", data, want)
		}
	}
	if strings.Contains(string(data), `"image"`) {
		t.Errorf("empty image should be omitted: %s", data)
	}

	var back FeedItem
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if diff := cmp.Diff(it, back); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestItemID(t *testing.T) {
	a := FeedItem{Title: "T", Link: "https://example.com/x", PubDate: "p"}
	b := FeedItem{Title: "other", Link: "https://example.com/x"}
	c := FeedItem{Title: "T", PubDate: "p"}
	d := FeedItem{Title: "T", PubDate: "q"}

	if ItemID(&a) != ItemID(&b) {
		t.Error("items with the same link must share an id")
	}
	if ItemID(&c) == ItemID(&d) {
		t.Error("items without link must differ by pubDate")
	}
	if ItemID(&c) != ItemID(&FeedItem{Title: "T", PubDate: "p"}) {
		t.Error("id must be deterministic")
	}

	items := []FeedItem{{ID: "keep"}, c}
	if n := EnsureIDs(items); n != 1 {
		t.Errorf("EnsureIDs assigned %d, want 1", n)
	}
	if items[0].ID != "keep" || items[1].ID != ItemID(&c) {
		t.Errorf("unexpected ids %q %q", items[0].ID, items[1].ID)
	}
}

func TestUnread(t *testing.T) {
	now := ChangedAt(time.Now())
	items := []FeedItem{
		{ID: "1"},
		{ID: "2", Read: now},
		{ID: "3", Deleted: now},
		{ID: "4"},
	}
	if got := Unread(items); got != 2 {
		t.Errorf("Unread() = %d, want 2", got)
	}
}

func TestFolderFor(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: "golang-blog", want: "feeds_store/golang-blog"},
		{name: "unsafe chars", in: "Hacker News: Top/Best", want: "feeds_store/Hacker_News__Top_Best"},
		{name: "truncated", in: strings.Repeat("a", 60), want: "feeds_store/" + strings.Repeat("a", 50)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, FolderFor("feeds_store", tt.in)); diff != "" {
				t.Errorf("FolderFor mismatch (-want +got):\n%s", diff)
			}
		})
	}
	if got := FolderFor("feeds_store", ""); !strings.HasPrefix(got, "feeds_store/feed_") {
		t.Errorf("empty name folder = %q", got)
	}
}
