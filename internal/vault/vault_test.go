package vault

import (
	"context"
	"errors"
	"io/fs"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type backend struct {
	name string
	open func(t *testing.T) Vault
}

func backends() []backend {
	return []backend{
		{
			name: "dir",
			open: func(t *testing.T) Vault {
				t.Helper()
				d, err := NewDir(t.TempDir())
				if err != nil {
					t.Fatalf("new dir: %v", err)
				}
				return d
			},
		},
		{
			name: "sqlite",
			open: func(t *testing.T) Vault {
				t.Helper()
				s, err := NewSQLite(context.Background(), ":memory:")
				if err != nil {
					t.Fatalf("new sqlite: %v", err)
				}
				t.Cleanup(func() { _ = s.Close() })
				return s
			},
		},
	}
}

func TestReadWrite(t *testing.T) {
	ctx := context.Background()
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			v := b.open(t)
			if err := v.CreateFolder(ctx, "store/feed_a"); err != nil {
				t.Fatalf("create folder: %v", err)
			}
			if err := v.Write(ctx, "store/list.json", `[]`); err != nil {
				t.Fatalf("write: %v", err)
			}
			got, err := v.Read(ctx, "store/list.json")
			if err != nil {
				t.Fatalf("read: %v", err)
			}
			if diff := cmp.Diff(`[]`, got); diff != "" {
				t.Errorf("Read mismatch (-want +got):\n%s", diff)
			}

			data := []byte{0x1f, 0x8b, 0x00, 0xff}
			if err := v.WriteBinary(ctx, "store/feed_a/items.0.json.gzip", data); err != nil {
				t.Fatalf("write binary: %v", err)
			}
			if err := v.WriteBinary(ctx, "store/feed_a/items.0.json.gzip", data[:2]); err != nil {
				t.Fatalf("overwrite binary: %v", err)
			}
			gotData, err := v.ReadBinary(ctx, "store/feed_a/items.0.json.gzip")
			if err != nil {
				t.Fatalf("read binary: %v", err)
			}
			if diff := cmp.Diff(data[:2], gotData); diff != "" {
				t.Errorf("ReadBinary mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestMissingPaths(t *testing.T) {
	ctx := context.Background()
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			v := b.open(t)

			ok, err := v.Exists(ctx, "nope")
			if err != nil {
				t.Fatalf("exists: %v", err)
			}
			if ok {
				t.Error("Exists(nope) = true, want false")
			}
			if _, err := v.Read(ctx, "nope"); !errors.Is(err, fs.ErrNotExist) {
				t.Errorf("Read(nope) error = %v, want fs.ErrNotExist", err)
			}
			if err := v.Delete(ctx, "nope"); !errors.Is(err, fs.ErrNotExist) {
				t.Errorf("Delete(nope) error = %v, want fs.ErrNotExist", err)
			}
			if _, err := v.List(ctx, "nope"); !errors.Is(err, fs.ErrNotExist) {
				t.Errorf("List(nope) error = %v, want fs.ErrNotExist", err)
			}
			if err := v.Write(ctx, "missing/file.json", "x"); err == nil {
				t.Error("Write into missing folder succeeded, want error")
			}
			if err := v.Delete(ctx, ""); err == nil {
				t.Error("Delete(root) succeeded, want error")
			}
		})
	}
}

func TestListAndDelete(t *testing.T) {
	ctx := context.Background()
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			v := b.open(t)
			mustFolder(t, v, "store/feed_a")
			mustFolder(t, v, "store/feed_b")
			mustWrite(t, v, "store/feed_a/meta.json.gzip", "m")
			mustWrite(t, v, "store/feed_a/items.0.json.gzip", "i0")
			mustWrite(t, v, "store/feed_a/notes.md", "n")
			mustWrite(t, v, "store/feed_a_x.json", "sibling")

			got, err := v.List(ctx, "store/feed_a")
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			want := []string{"items.0.json.gzip", "meta.json.gzip", "notes.md"}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("List mismatch (-want +got):\n%s", diff)
			}

			if err := v.Delete(ctx, "store/feed_a"); err != nil {
				t.Fatalf("delete: %v", err)
			}
			got, err = v.List(ctx, "store")
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if diff := cmp.Diff([]string{"feed_a_x.json", "feed_b"}, got); diff != "" {
				t.Errorf("List after delete mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRename(t *testing.T) {
	ctx := context.Background()
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			v := b.open(t)
			r, ok := v.(Renamer)
			if !ok {
				t.Fatalf("%s does not implement Renamer", b.name)
			}
			mustFolder(t, v, "store/staging")
			mustFolder(t, v, "store/live")
			mustWrite(t, v, "store/staging/meta.json.gzip", "new")

			if err := r.Rename(ctx, "store/staging", "store/live"); !errors.Is(err, fs.ErrExist) {
				t.Errorf("Rename onto existing error = %v, want fs.ErrExist", err)
			}
			if err := r.Rename(ctx, "store/live", "store/old"); err != nil {
				t.Fatalf("rename live: %v", err)
			}
			if err := r.Rename(ctx, "store/staging", "store/live"); err != nil {
				t.Fatalf("rename staging: %v", err)
			}

			got, err := v.Read(ctx, "store/live/meta.json.gzip")
			if err != nil {
				t.Fatalf("read: %v", err)
			}
			if got != "new" {
				t.Errorf("Read = %q, want %q", got, "new")
			}
			names, err := v.List(ctx, "store")
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if diff := cmp.Diff([]string{"live", "old"}, names); diff != "" {
				t.Errorf("List mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestClean(t *testing.T) {
	tests := []struct {
		in, want, parent string
	}{
		{in: "", want: "", parent: ""},
		{in: "/a/b/", want: "a/b", parent: "a"},
		{in: "a//b/../c", want: "a/c", parent: "a"},
		{in: `a\b`, want: "a/b", parent: "a"},
		{in: "top.json", want: "top.json", parent: ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, Clean(tt.in)); diff != "" {
				t.Errorf("Clean mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.parent, Parent(tt.in)); diff != "" {
				t.Errorf("Parent mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func mustFolder(t *testing.T, v Vault, p string) {
	t.Helper()
	if err := v.CreateFolder(context.Background(), p); err != nil {
		t.Fatalf("create folder %s: %v", p, err)
	}
}

func mustWrite(t *testing.T, v Vault, p, text string) {
	t.Helper()
	if err := v.Write(context.Background(), p, text); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}
}
