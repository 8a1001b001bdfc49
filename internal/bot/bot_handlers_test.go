package bot

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/go-cmp/cmp"

	"feeds_reader/internal/config"
	"feeds_reader/internal/fetcher"
	"feeds_reader/internal/model"
	"feeds_reader/internal/persist"
	"feeds_reader/internal/session"
	"feeds_reader/internal/vault"
)

// --- mocks ---

type sentMsg struct {
	ChatID   int64
	Text     string
	Keyboard bool
}

type mockAPI struct {
	mu   sync.Mutex
	sent []sentMsg
	err  error
}

func (m *mockAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if m.err != nil {
		return tgbotapi.Message{}, m.err
	}
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		m.mu.Lock()
		m.sent = append(m.sent, sentMsg{ChatID: msg.ChatID, Text: msg.Text, Keyboard: msg.ReplyMarkup != nil})
		m.mu.Unlock()
	}
	return tgbotapi.Message{}, nil
}

func (m *mockAPI) GetUpdatesChan(_ tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return make(tgbotapi.UpdatesChannel)
}

func (m *mockAPI) StopReceivingUpdates() {}

func (m *mockAPI) lastText() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return ""
	}
	return m.sent[len(m.sent)-1].Text
}

func (m *mockAPI) allTexts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.sent))
	for i, s := range m.sent {
		out[i] = s.Text
	}
	return out
}

func (m *mockAPI) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = nil
}

type mockHTTPClient struct {
	body string
	err  error
}

func (m *mockHTTPClient) Do(_ *http.Request) (*http.Response, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &http.Response{
		StatusCode: 200,
		Body:       io.NopCloser(bytes.NewBufferString(m.body)),
	}, nil
}

// --- helpers ---

var testLog = slog.New(slog.NewTextHandler(io.Discard, nil))

func newTestBot(t *testing.T, httpBody string) (*Bot, *mockAPI, *session.Session) {
	t.Helper()
	v, err := vault.NewDir(t.TempDir())
	if err != nil {
		t.Fatalf("new dir: %v", err)
	}
	sess := session.New(
		persist.New(v, persist.Options{}, testLog),
		fetcher.New(&mockHTTPClient{body: httpBody}),
		session.Options{SaveDebounce: time.Hour},
		testLog,
	)
	if err := sess.Open(context.Background()); err != nil {
		t.Fatalf("open session: %v", err)
	}
	t.Cleanup(func() { _ = sess.Close(context.Background()) })

	api := &mockAPI{}
	return New(api, sess, &config.Config{}, testLog), api, sess
}

func seedFeed(t *testing.T, sess *session.Session, name string) {
	t.Helper()
	ctx := context.Background()
	if _, err := sess.Subscribe(ctx, name, "https://devops.example.com/rss"); err != nil {
		t.Fatalf("seed feed: %v", err)
	}
	if _, err := sess.Update(ctx, name); err != nil {
		t.Fatalf("seed update: %v", err)
	}
}

func loadSampleXML(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile("../../testdata/sample.xml")
	if err != nil {
		t.Fatalf("read sample xml: %v", err)
	}
	return string(data)
}

func requireContains(t *testing.T, got, want string) {
	t.Helper()
	if !strings.Contains(got, want) {
		t.Errorf("reply missing %q, got:\n%s", want, got)
	}
}

// --- handler tests ---

func TestHandleStart(t *testing.T) {
	b, api, _ := newTestBot(t, "")
	b.handleStart(100)
	requireContains(t, api.lastText(), "Welcome to Feeds Reader")
}

func TestHandleHelp(t *testing.T) {
	b, api, _ := newTestBot(t, "")
	b.handleHelp(100)
	requireContains(t, api.lastText(), "/add")
	requireContains(t, api.lastText(), "/unread")
}

func TestHandleAdd(t *testing.T) {
	xml := loadSampleXML(t)
	ctx := context.Background()

	t.Run("empty args", func(t *testing.T) {
		b, api, _ := newTestBot(t, xml)
		b.handleAdd(ctx, 100, "")
		requireContains(t, api.lastText(), "Usage: /add")
	})

	t.Run("invalid url", func(t *testing.T) {
		b, api, _ := newTestBot(t, xml)
		b.handleAdd(ctx, 100, "ftp://example.com/feed")
		requireContains(t, api.lastText(), "Usage: /add")
	})

	t.Run("fetch error keeps subscription", func(t *testing.T) {
		b, api, sess := newTestBot(t, "not xml at all")
		b.handleAdd(ctx, 100, "https://bad.example.com/rss Bad")
		requireContains(t, api.lastText(), "first fetch failed")
		if diff := cmp.Diff(1, len(sess.Subscriptions())); diff != "" {
			t.Errorf("subscription count (-want +got):\n%s", diff)
		}
	})

	t.Run("success with name", func(t *testing.T) {
		b, api, sess := newTestBot(t, xml)
		b.handleAdd(ctx, 100, "https://devops.example.com/rss DevOps Weekly")
		requireContains(t, api.lastText(), "Feed added")
		requireContains(t, api.lastText(), "4 item(s), 4 unread")

		subs := sess.Subscriptions()
		if diff := cmp.Diff("DevOps Weekly", subs[0].Name); diff != "" {
			t.Errorf("feed name (-want +got):\n%s", diff)
		}
	})

	t.Run("name defaults to host", func(t *testing.T) {
		b, api, _ := newTestBot(t, xml)
		b.handleAdd(ctx, 100, "https://devops.example.com/rss")
		requireContains(t, api.lastText(), "devops.example.com")
	})

	t.Run("duplicate", func(t *testing.T) {
		b, api, _ := newTestBot(t, xml)
		b.handleAdd(ctx, 100, "https://devops.example.com/rss devops")
		b.handleAdd(ctx, 100, "https://devops.example.com/other devops")
		requireContains(t, api.lastText(), "already exists")
	})
}

func TestHandleFeeds(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		b, api, _ := newTestBot(t, "")
		b.handleFeeds(100)
		requireContains(t, api.lastText(), "no feeds yet")
	})

	t.Run("with feeds", func(t *testing.T) {
		b, api, sess := newTestBot(t, loadSampleXML(t))
		seedFeed(t, sess, "Feed A")
		if _, err := sess.Subscribe(context.Background(), "Feed B", "https://b.example.com/rss"); err != nil {
			t.Fatalf("subscribe: %v", err)
		}
		b.handleFeeds(100)
		reply := api.lastText()
		requireContains(t, reply, "Feed A  (4 unread)")
		requireContains(t, reply, "Feed B  (0 unread)")
	})
}

func TestHandleRemove(t *testing.T) {
	ctx := context.Background()

	t.Run("bad args", func(t *testing.T) {
		b, api, _ := newTestBot(t, "")
		b.handleRemove(ctx, 100, "")
		requireContains(t, api.lastText(), "Usage: /remove")
	})

	t.Run("not found", func(t *testing.T) {
		b, api, _ := newTestBot(t, "")
		b.handleRemove(ctx, 100, "missing")
		requireContains(t, api.lastText(), "not found")
	})

	t.Run("success", func(t *testing.T) {
		b, api, sess := newTestBot(t, loadSampleXML(t))
		seedFeed(t, sess, "Doomed")
		b.handleRemove(ctx, 100, "Doomed")
		requireContains(t, api.lastText(), `"Doomed" deleted`)
		if diff := cmp.Diff(0, len(sess.Subscriptions())); diff != "" {
			t.Errorf("feeds should be empty (-want +got):\n%s", diff)
		}
	})
}

func TestHandleRename(t *testing.T) {
	ctx := context.Background()

	t.Run("bad args", func(t *testing.T) {
		b, api, _ := newTestBot(t, "")
		b.handleRename(ctx, 100, "only old")
		requireContains(t, api.lastText(), "/rename")
	})

	t.Run("not found", func(t *testing.T) {
		b, api, _ := newTestBot(t, "")
		b.handleRename(ctx, 100, "missing | other")
		requireContains(t, api.lastText(), "not found")
	})

	t.Run("success", func(t *testing.T) {
		b, api, sess := newTestBot(t, loadSampleXML(t))
		seedFeed(t, sess, "Old Name")
		b.handleRename(ctx, 100, "Old Name | New Name")
		requireContains(t, api.lastText(), `"Old Name" renamed to "New Name"`)
		if _, ok := sess.Subscription("New Name"); !ok {
			t.Error("renamed feed missing")
		}
	})
}

func TestHandleUnread(t *testing.T) {
	ctx := context.Background()

	t.Run("not found", func(t *testing.T) {
		b, api, _ := newTestBot(t, "")
		b.handleUnread(ctx, 100, "missing")
		requireContains(t, api.lastText(), "not found")
	})

	t.Run("limited list with buttons", func(t *testing.T) {
		b, api, sess := newTestBot(t, loadSampleXML(t))
		seedFeed(t, sess, "devops")
		b.handleUnread(ctx, 100, "devops 2")

		texts := api.allTexts()
		if diff := cmp.Diff(3, len(texts)); diff != "" {
			t.Fatalf("message count (-want +got):\n%s", diff)
		}
		requireContains(t, texts[0], "Kubernetes 1.32 Released")
		requireContains(t, texts[2], "Showing 2 of 4")
		if !api.sent[0].Keyboard {
			t.Error("item message without buttons")
		}
	})

	t.Run("nothing unread", func(t *testing.T) {
		b, api, sess := newTestBot(t, loadSampleXML(t))
		seedFeed(t, sess, "devops")
		if _, err := sess.MarkAllRead(ctx, "devops"); err != nil {
			t.Fatalf("mark all read: %v", err)
		}
		b.handleUnread(ctx, 100, "devops")
		requireContains(t, api.lastText(), "No unread items")
	})
}

func TestHandleReadAndReadAll(t *testing.T) {
	ctx := context.Background()
	b, api, sess := newTestBot(t, loadSampleXML(t))
	seedFeed(t, sess, "devops")

	b.handleRead(ctx, 100, "k8s-1-32")
	requireContains(t, api.lastText(), `Marked "Kubernetes 1.32 Released" as read`)

	b.handleRead(ctx, 100, "nope")
	requireContains(t, api.lastText(), "Item nope not found")

	b.handleReadAll(ctx, 100, "devops")
	requireContains(t, api.lastText(), "Marked 3 item(s)")

	sub, _ := sess.Subscription("devops")
	if diff := cmp.Diff(0, sub.Unread); diff != "" {
		t.Errorf("unread (-want +got):\n%s", diff)
	}
}

func TestHandleUpdate(t *testing.T) {
	ctx := context.Background()

	t.Run("one feed", func(t *testing.T) {
		b, api, sess := newTestBot(t, loadSampleXML(t))
		if _, err := sess.Subscribe(ctx, "devops", "https://devops.example.com/rss"); err != nil {
			t.Fatalf("subscribe: %v", err)
		}
		b.handleUpdate(ctx, 100, "devops")
		requireContains(t, api.lastText(), `"devops" updated: 4 new, 4 unread`)
	})

	t.Run("unknown feed", func(t *testing.T) {
		b, api, _ := newTestBot(t, "")
		b.handleUpdate(ctx, 100, "missing")
		requireContains(t, api.lastText(), "not found")
	})

	t.Run("all feeds", func(t *testing.T) {
		b, api, sess := newTestBot(t, loadSampleXML(t))
		for _, n := range []string{"a", "b"} {
			if _, err := sess.Subscribe(ctx, n, "https://devops.example.com/"+n); err != nil {
				t.Fatalf("subscribe: %v", err)
			}
		}
		b.handleUpdate(ctx, 100, "")
		requireContains(t, api.lastText(), "Update finished. 2 updated. 0 failed.")
	})
}

func TestHandleSearchAndStats(t *testing.T) {
	ctx := context.Background()
	b, api, sess := newTestBot(t, loadSampleXML(t))
	seedFeed(t, sess, "devops")

	b.handleSearch(ctx, 100, "helm")
	requireContains(t, api.lastText(), "1 result(s)")
	requireContains(t, api.lastText(), "Helm Chart Best Practices")

	b.handleSearch(ctx, 100, "/[/")
	requireContains(t, api.lastText(), "Invalid query")

	b.handleStats(ctx, 100)
	requireContains(t, api.lastText(), "Items: 4")
	requireContains(t, api.lastText(), "Unread: 4")
}

func TestHandleCommand(t *testing.T) {
	ctx := context.Background()

	makeMsg := func(cmd, args string) *tgbotapi.Message {
		text := "/" + cmd
		if args != "" {
			text += " " + args
		}
		return &tgbotapi.Message{
			Chat: &tgbotapi.Chat{ID: 100},
			Text: text,
			Entities: []tgbotapi.MessageEntity{
				{Type: "bot_command", Offset: 0, Length: len("/" + cmd)},
			},
		}
	}

	t.Run("dispatches known commands", func(t *testing.T) {
		b, api, _ := newTestBot(t, "")

		cmds := []struct {
			cmd      string
			args     string
			contains string
		}{
			{"start", "", "Welcome"},
			{"help", "", "/add"},
			{"feeds", "", "no feeds"},
			{"list", "", "no feeds"},
			{"remove", "", "Usage: /remove"},
			{"unread", "", "Usage: /unread"},
			{"read", "", "Usage: /read"},
			{"readall", "", "Usage: /readall"},
			{"search", "", "Usage: /search"},
			{"stats", "", "Feeds: 0"},
			{"unknown_cmd", "", "Unknown command"},
		}

		for _, tc := range cmds {
			api.reset()
			b.handleCommand(ctx, makeMsg(tc.cmd, tc.args))
			requireContains(t, api.lastText(), tc.contains)
		}
	})
}

func TestHandleCallback(t *testing.T) {
	ctx := context.Background()

	makeCB := func(data string) *tgbotapi.CallbackQuery {
		return &tgbotapi.CallbackQuery{
			ID:      "cb",
			Data:    data,
			From:    &tgbotapi.User{ID: 7},
			Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 100}},
		}
	}

	t.Run("invalid data format", func(t *testing.T) {
		b, api, _ := newTestBot(t, "")
		b.handleCallback(ctx, makeCB("nocolon"))
		if diff := cmp.Diff(0, len(api.allTexts())); diff != "" {
			t.Errorf("expected no text messages (-want +got):\n%s", diff)
		}
	})

	t.Run("unknown item", func(t *testing.T) {
		b, api, _ := newTestBot(t, "")
		b.handleCallback(ctx, makeCB("read:missing"))
		requireContains(t, api.lastText(), "unknown item")
	})

	t.Run("read star delete", func(t *testing.T) {
		b, api, sess := newTestBot(t, loadSampleXML(t))
		seedFeed(t, sess, "devops")

		b.handleCallback(ctx, makeCB("read:helm-best-practices"))
		requireContains(t, api.lastText(), "Marked as read")

		b.handleCallback(ctx, makeCB("star:helm-best-practices"))
		requireContains(t, api.lastText(), `Starred "Helm Chart Best Practices"`)
		b.handleCallback(ctx, makeCB("star:helm-best-practices"))
		requireContains(t, api.lastText(), "Unstarred")

		b.handleCallback(ctx, makeCB("delete:k8s-1-32"))
		requireContains(t, api.lastText(), `Deleted "Kubernetes 1.32 Released"`)

		sub, _ := sess.Subscription("devops")
		if diff := cmp.Diff(2, sub.Unread); diff != "" {
			t.Errorf("unread (-want +got):\n%s", diff)
		}
	})
}

func TestNotifier(t *testing.T) {
	ctx := context.Background()
	api := &mockAPI{}
	n := NewNotifier(api, 42, testLog)

	if err := n.Notify(ctx, `Feed "x": recovered 1/2 items`); err != nil {
		t.Fatalf("notify: %v", err)
	}
	items := []model.FeedItem{
		{ID: "a", Title: "First", Link: "https://example.com/a"},
		{ID: strings.Repeat("x", 80), Title: "Long id"},
	}
	if err := n.AnnounceNewItems(ctx, "blog", items); err != nil {
		t.Fatalf("announce: %v", err)
	}

	want := []sentMsg{
		{ChatID: 42, Text: `Feed "x": recovered 1/2 items`},
		{ChatID: 42, Text: "[blog]\n\nFirst\n\nhttps://example.com/a", Keyboard: true},
		{ChatID: 42, Text: "[blog]\n\nLong id"},
	}
	if diff := cmp.Diff(want, api.sent); diff != "" {
		t.Errorf("sent mismatch (-want +got):\n%s", diff)
	}

	api.err = errors.New("network down")
	if err := n.Notify(ctx, "x"); err == nil {
		t.Error("expected error from failing api")
	}
}
