// Package vault defines the host file-storage primitives and their backends.
//
// Paths are slash separated and relative to the vault root. Every primitive
// fails with a descriptive error instead of silently doing nothing; missing
// paths yield errors wrapping fs.ErrNotExist.
package vault

import (
	"context"
	"path"
	"strings"
)

// Vault is the interface for whole-file storage operations.
type Vault interface {
	Exists(ctx context.Context, p string) (bool, error)
	Read(ctx context.Context, p string) (string, error)
	Write(ctx context.Context, p, text string) error
	ReadBinary(ctx context.Context, p string) ([]byte, error)
	WriteBinary(ctx context.Context, p string, data []byte) error
	CreateFolder(ctx context.Context, p string) error
	// Delete removes a file, or a folder with everything below it.
	Delete(ctx context.Context, p string) error
	// List returns the names of the direct children of a folder, sorted.
	List(ctx context.Context, p string) ([]string, error)
}

// Renamer is implemented by backends that can move a file or folder in one
// step.
type Renamer interface {
	Rename(ctx context.Context, from, to string) error
}

// Clean normalizes a vault path: slash separated, no leading slash, no dot
// segments.
func Clean(p string) string {
	p = path.Clean("/" + strings.ReplaceAll(p, "\\", "/"))
	return strings.TrimPrefix(p, "/")
}

// Parent returns the folder containing p, "" for top-level entries.
func Parent(p string) string {
	dir := path.Dir(Clean(p))
	if dir == "." {
		return ""
	}
	return dir
}
