package vault

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// Dir implements Vault on top of an OS directory.
type Dir struct {
	root string
}

// NewDir opens (and creates if needed) a directory vault rooted at root.
func NewDir(root string) (*Dir, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create vault root: %w", err)
	}
	return &Dir{root: root}, nil
}

// Root returns the OS path of the vault root.
func (d *Dir) Root() string {
	return d.root
}

func (d *Dir) abs(p string) string {
	return filepath.Join(d.root, filepath.FromSlash(Clean(p)))
}

// Exists reports whether p is present.
func (d *Dir) Exists(_ context.Context, p string) (bool, error) {
	_, err := os.Stat(d.abs(p))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("stat %s: %w", p, err)
}

// Read returns the content of a text file.
func (d *Dir) Read(ctx context.Context, p string) (string, error) {
	data, err := d.ReadBinary(ctx, p)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Write replaces a text file.
func (d *Dir) Write(ctx context.Context, p, text string) error {
	return d.WriteBinary(ctx, p, []byte(text))
}

// ReadBinary returns the content of a file.
func (d *Dir) ReadBinary(_ context.Context, p string) ([]byte, error) {
	data, err := os.ReadFile(d.abs(p))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", p, err)
	}
	return data, nil
}

// WriteBinary replaces a file. The parent folder must exist. The content is
// written to a temporary file first and renamed into place.
func (d *Dir) WriteBinary(_ context.Context, p string, data []byte) error {
	dst := d.abs(p)
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".tmp-"+filepath.Base(dst)+"-*")
	if err != nil {
		return fmt.Errorf("write %s: %w", p, err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", p, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", p, err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", p, err)
	}
	return nil
}

// CreateFolder creates p and any missing parents.
func (d *Dir) CreateFolder(_ context.Context, p string) error {
	if err := os.MkdirAll(d.abs(p), 0o750); err != nil {
		return fmt.Errorf("create folder %s: %w", p, err)
	}
	return nil
}

// Delete removes a file or a folder tree.
func (d *Dir) Delete(_ context.Context, p string) error {
	if Clean(p) == "" {
		return fmt.Errorf("delete %q: refusing to delete vault root", p)
	}
	target := d.abs(p)
	if _, err := os.Lstat(target); err != nil {
		return fmt.Errorf("delete %s: %w", p, err)
	}
	if err := os.RemoveAll(target); err != nil {
		return fmt.Errorf("delete %s: %w", p, err)
	}
	return nil
}

// List returns the sorted names of the entries of folder p.
func (d *Dir) List(_ context.Context, p string) ([]string, error) {
	entries, err := os.ReadDir(d.abs(p))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", p, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Rename moves a file or folder. The destination must not exist.
func (d *Dir) Rename(_ context.Context, from, to string) error {
	if _, err := os.Lstat(d.abs(to)); err == nil {
		return fmt.Errorf("rename %s to %s: %w", from, to, fs.ErrExist)
	}
	if err := os.Rename(d.abs(from), d.abs(to)); err != nil {
		return fmt.Errorf("rename %s to %s: %w", from, to, err)
	}
	return nil
}
