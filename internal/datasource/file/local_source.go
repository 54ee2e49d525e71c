// Package file implements a local filesystem-backed datasource.Store.
package file

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"songlake/internal/datasource"
)

func init() {
	open := func(_ context.Context, u *url.URL, raw string, _ datasource.Options) (datasource.Store, error) {
		root := raw
		if strings.EqualFold(u.Scheme, "file") {
			root = u.Path
		}
		return NewLocal(root), nil
	}
	datasource.Register("", open)
	datasource.Register("file", open)
}

// Local is a Store rooted at a directory on the local disk.
type Local struct{ root string }

// NewLocal returns a Local store rooted at dir. The directory does not have to
// exist yet; Put creates parents as needed.
func NewLocal(dir string) *Local { return &Local{root: filepath.Clean(dir)} }

// URI implements datasource.Store.
func (l *Local) URI() string { return l.root }

func (l *Local) abs(key string) string {
	return filepath.Join(l.root, filepath.FromSlash(key))
}

// List walks the directory containing prefix and returns matching keys.
// A missing directory yields an empty list.
func (l *Local) List(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir := l.root
	if i := strings.LastIndex(prefix, "/"); i >= 0 {
		dir = l.abs(prefix[:i])
	}

	var out []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && p == dir {
				return fs.SkipAll
			}
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(l.root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			out = append(out, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	sort.Strings(out)
	return out, nil
}

// Open opens the object at key for reading.
//
// Behavior:
//   - If the context is already canceled or its deadline exceeded at the time
//     of the call, Open returns the context error immediately without touching
//     the filesystem.
//   - Any filesystem error is wrapped with the path for context, while still
//     permitting errors.Is/As checks by callers (e.g., errors.Is(err, os.ErrNotExist)).
func (l *Local) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	p := l.abs(key)
	f, err := os.Open(p)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", p, err)
	}
	return f, nil
}

// Put writes r to a temporary sibling and renames it over key, so readers
// never observe a partial object.
func (l *Local) Put(ctx context.Context, key string, r io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p := l.abs(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", filepath.Dir(p), err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(p), ".tmp-"+filepath.Base(p)+"-*")
	if err != nil {
		return fmt.Errorf("create %s: %w", p, err)
	}
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", p, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close %s: %w", p, err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("rename %s: %w", p, err)
	}
	return nil
}

// RemoveAll deletes the directory at prefix. Removing a missing directory is
// not an error.
func (l *Local) RemoveAll(ctx context.Context, prefix string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	prefix = strings.Trim(prefix, "/")
	if prefix == "" || prefix == "." {
		return fmt.Errorf("remove %s: refusing to remove store root", l.root)
	}
	p := l.abs(prefix)
	if err := os.RemoveAll(p); err != nil {
		return fmt.Errorf("remove %s: %w", p, err)
	}
	return nil
}
