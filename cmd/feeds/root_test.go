package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func setupEnv(t *testing.T, backend string) string {
	t.Helper()
	dir := t.TempDir()
	for _, key := range []string{"FEEDS_CONFIG", "FEEDS_SQLITE_PATH", "TELEGRAM_BOT_TOKEN", "TELEGRAM_CHAT_ID", "TELEGRAM_ALLOWED_USERS"} {
		t.Setenv(key, "")
	}
	t.Setenv("FEEDS_DATA_DIR", dir)
	t.Setenv("FEEDS_BACKEND", backend)
	t.Setenv("LOG_LEVEL", "error")
	envFile = ""
	return dir
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(append([]string{"--env-file", ""}, args...))
	err := rootCmd.Execute()
	return buf.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := run(t, args...)
	if err != nil {
		t.Fatalf("feeds %s: %v\n%s", strings.Join(args, " "), err, out)
	}
	return out
}

func requireContains(t *testing.T, out string, wants ...string) {
	t.Helper()
	for _, w := range wants {
		if !strings.Contains(out, w) {
			t.Errorf("output missing %q:\n%s", w, out)
		}
	}
}

func TestRootHelpListsCommands(t *testing.T) {
	out := mustRun(t, "--help")
	requireContains(t, out, "serve", "add", "remove", "rename", "update", "search",
		"stats", "maintain", "import-opml", "export-opml")
}

func TestUnknownCommand(t *testing.T) {
	setupEnv(t, "dir")
	if _, err := run(t, "nonexistent-command"); err == nil {
		t.Fatal("expected error for unknown command, got nil")
	}
}

func TestManageFeedsDirVault(t *testing.T) {
	dir := setupEnv(t, "dir")

	requireContains(t, mustRun(t, "add", "https://go.dev/blog/feed.atom", "Go Blog"), `Subscribed to "Go Blog"`)
	requireContains(t, mustRun(t, "list"), "Go Blog", "https://go.dev/blog/feed.atom", "never")

	if _, err := os.Stat(filepath.Join(dir, "feeds_store", "Go_Blog")); err != nil {
		t.Errorf("feed folder not written: %v", err)
	}

	mustRun(t, "rename", "Go Blog", "Golang")
	requireContains(t, mustRun(t, "export-opml"), `xmlUrl="https://go.dev/blog/feed.atom"`, `text="Golang"`)

	if _, err := run(t, "add", "ftp://example.com/feed"); err == nil {
		t.Error("expected error for non-http URL")
	}
	if _, err := run(t, "maintain", "Golang", "shred"); err == nil {
		t.Error("expected error for unknown maintenance operation")
	}
	requireContains(t, mustRun(t, "maintain", "Golang", "purge-all"), "purge-all: 0 items affected")

	mustRun(t, "remove", "Golang")
	if out := mustRun(t, "list"); strings.Contains(out, "Golang") {
		t.Errorf("removed feed still listed:\n%s", out)
	}
	if _, err := run(t, "remove", "Golang"); err == nil {
		t.Error("expected error removing unknown feed")
	}
}

func TestImportOPMLSQLiteVault(t *testing.T) {
	dir := setupEnv(t, "sqlite")

	opml := filepath.Join(t.TempDir(), "subs.opml")
	body := `<?xml version="1.0"?>
<opml version="2.0"><body>
  <outline text="Tech">
    <outline text="Go Blog" xmlUrl="https://go.dev/blog/feed.atom"/>
    <outline text="DevOps" xmlUrl="https://devops.example.com/rss"/>
  </outline>
</body></opml>`
	if err := os.WriteFile(opml, []byte(body), 0o600); err != nil {
		t.Fatalf("write opml: %v", err)
	}

	requireContains(t, mustRun(t, "import-opml", opml), "Imported 2 feeds, skipped 0")
	requireContains(t, mustRun(t, "import-opml", opml), "Imported 0 feeds, skipped 2")
	requireContains(t, mustRun(t, "stats"), "Feeds: 2", "Items: 0")

	if _, err := os.Stat(filepath.Join(dir, "vault.db")); err != nil {
		t.Errorf("sqlite vault not created: %v", err)
	}
}

func TestMigrate(t *testing.T) {
	dir := setupEnv(t, "sqlite")

	mustRun(t, "migrate", "up")
	requireContains(t, mustRun(t, "migrate", "version"), "version")

	if _, err := run(t, "migrate", "sideways"); err == nil {
		t.Error("expected error for unknown migrate command")
	}
	if _, err := os.Stat(filepath.Join(dir, "vault.db")); err != nil {
		t.Errorf("vault not created: %v", err)
	}
}
