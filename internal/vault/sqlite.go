package vault

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"feeds_reader/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

// SQLite implements Vault with every file stored as a row of one table.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(ctx context.Context, dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection keeps ":memory:" databases alive and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if err := migrations.Run(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Exists reports whether p is present.
func (s *SQLite) Exists(ctx context.Context, p string) (bool, error) {
	p = Clean(p)
	if p == "" {
		return true, nil
	}
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM files WHERE path = ?`, p).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", p, err)
	}
	return count > 0, nil
}

// Read returns the content of a text file.
func (s *SQLite) Read(ctx context.Context, p string) (string, error) {
	data, err := s.ReadBinary(ctx, p)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Write replaces a text file.
func (s *SQLite) Write(ctx context.Context, p, text string) error {
	return s.WriteBinary(ctx, p, []byte(text))
}

// ReadBinary returns the content of a file.
func (s *SQLite) ReadBinary(ctx context.Context, p string) ([]byte, error) {
	p = Clean(p)
	var isDir int
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT is_dir, data FROM files WHERE path = ?`, p).Scan(&isDir, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("read %s: %w", p, fs.ErrNotExist)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", p, err)
	}
	if isDir == 1 {
		return nil, fmt.Errorf("read %s: is a folder", p)
	}
	if data == nil {
		data = []byte{}
	}
	return data, nil
}

// WriteBinary replaces a file. The parent folder must exist.
func (s *SQLite) WriteBinary(ctx context.Context, p string, data []byte) error {
	p = Clean(p)
	if p == "" {
		return fmt.Errorf("write %q: empty path", p)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	parent := Parent(p)
	if err := requireFolder(ctx, tx, parent); err != nil {
		return fmt.Errorf("write %s: %w", p, err)
	}
	isDir, found, err := kind(ctx, tx, p)
	if err != nil {
		return fmt.Errorf("write %s: %w", p, err)
	}
	if found && isDir {
		return fmt.Errorf("write %s: is a folder", p)
	}
	if data == nil {
		data = []byte{}
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO files (path, parent, is_dir, data, updated_at) VALUES (?, ?, 0, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		p, parent, data, now(),
	)
	if err != nil {
		return fmt.Errorf("write %s: %w", p, err)
	}
	return tx.Commit()
}

// CreateFolder creates p and any missing parents.
func (s *SQLite) CreateFolder(ctx context.Context, p string) error {
	p = Clean(p)
	if p == "" {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	segments := strings.Split(p, "/")
	for i := range segments {
		cur := path.Join(segments[:i+1]...)
		isDir, found, err := kind(ctx, tx, cur)
		if err != nil {
			return fmt.Errorf("create folder %s: %w", p, err)
		}
		if found {
			if !isDir {
				return fmt.Errorf("create folder %s: %s is a file", p, cur)
			}
			continue
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO files (path, parent, is_dir, updated_at) VALUES (?, ?, 1, ?)`,
			cur, Parent(cur), now(),
		)
		if err != nil {
			return fmt.Errorf("create folder %s: %w", p, err)
		}
	}
	return tx.Commit()
}

// Delete removes a file or a folder tree.
func (s *SQLite) Delete(ctx context.Context, p string) error {
	p = Clean(p)
	if p == "" {
		return fmt.Errorf("delete %q: refusing to delete vault root", p)
	}
	lo, hi := subtree(p)
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM files WHERE path = ? OR (path >= ? AND path < ?)`, p, lo, hi,
	)
	if err != nil {
		return fmt.Errorf("delete %s: %w", p, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete %s: %w", p, err)
	}
	if n == 0 {
		return fmt.Errorf("delete %s: %w", p, fs.ErrNotExist)
	}
	return nil
}

// List returns the sorted names of the entries of folder p.
func (s *SQLite) List(ctx context.Context, p string) ([]string, error) {
	p = Clean(p)
	if err := requireFolder(ctx, s.db, p); err != nil {
		return nil, fmt.Errorf("list %s: %w", p, err)
	}
	rows, err := s.db.QueryContext(ctx, `SELECT path FROM files WHERE parent = ? ORDER BY path`, p)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", p, err)
	}
	defer func() { _ = rows.Close() }()

	var names []string
	for rows.Next() {
		var child string
		if err := rows.Scan(&child); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		names = append(names, path.Base(child))
	}
	return names, rows.Err()
}

// Rename moves a file or folder tree inside one transaction.
func (s *SQLite) Rename(ctx context.Context, from, to string) error {
	from, to = Clean(from), Clean(to)
	if from == "" || to == "" {
		return fmt.Errorf("rename %q to %q: empty path", from, to)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, found, err := kind(ctx, tx, from); err != nil {
		return fmt.Errorf("rename %s: %w", from, err)
	} else if !found {
		return fmt.Errorf("rename %s: %w", from, fs.ErrNotExist)
	}
	if _, found, err := kind(ctx, tx, to); err != nil {
		return fmt.Errorf("rename %s: %w", from, err)
	} else if found {
		return fmt.Errorf("rename %s to %s: %w", from, to, fs.ErrExist)
	}
	if err := requireFolder(ctx, tx, Parent(to)); err != nil {
		return fmt.Errorf("rename %s to %s: %w", from, to, err)
	}

	lo, hi := subtree(from)
	rows, err := tx.QueryContext(ctx,
		`SELECT path FROM files WHERE path = ? OR (path >= ? AND path < ?)`, from, lo, hi,
	)
	if err != nil {
		return fmt.Errorf("rename %s: %w", from, err)
	}
	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			_ = rows.Close()
			return fmt.Errorf("scan entry: %w", err)
		}
		paths = append(paths, p)
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("rename %s: %w", from, err)
	}

	for _, p := range paths {
		np := to + strings.TrimPrefix(p, from)
		if _, err := tx.ExecContext(ctx,
			`UPDATE files SET path = ?, parent = ?, updated_at = ? WHERE path = ?`,
			np, Parent(np), now(), p,
		); err != nil {
			return fmt.Errorf("move %s: %w", p, err)
		}
	}
	return tx.Commit()
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func kind(ctx context.Context, q querier, p string) (isDir, found bool, err error) {
	if p == "" {
		return true, true, nil
	}
	var v int
	err = q.QueryRowContext(ctx, `SELECT is_dir FROM files WHERE path = ?`, p).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return false, false, nil
	}
	if err != nil {
		return false, false, err
	}
	return v == 1, true, nil
}

func requireFolder(ctx context.Context, q querier, p string) error {
	isDir, found, err := kind(ctx, q, p)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("folder %q: %w", p, fs.ErrNotExist)
	}
	if !isDir {
		return fmt.Errorf("%q is not a folder", p)
	}
	return nil
}

// subtree returns the half-open range of paths strictly below p.
func subtree(p string) (lo, hi string) {
	return p + "/", p + "0"
}

func now() string {
	return time.Now().UTC().Format(timeLayout)
}
