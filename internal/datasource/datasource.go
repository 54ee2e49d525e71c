// Package datasource abstracts the object stores that hold the lake's input
// and output roots. A Store is rooted at a URI (a local directory or an S3
// bucket/prefix) and addresses objects by slash-separated keys relative to
// that root.
//
// Backends register an Opener per URI scheme at init time, mirroring the
// storage.Register pattern, so callers depend only on this package.
package datasource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"sort"
	"strings"
	"sync"

	"songlake/internal/config"
)

// ErrUnsupportedScheme is returned by Open for URIs with no registered backend.
var ErrUnsupportedScheme = errors.New("datasource: unsupported scheme")

// Store is a flat key/value object store.
type Store interface {
	// List returns every key that starts with prefix, sorted ascending.
	List(ctx context.Context, prefix string) ([]string, error)

	// Open opens the object at key for reading.
	Open(ctx context.Context, key string) (io.ReadCloser, error)

	// Put writes r to key, replacing any existing object.
	Put(ctx context.Context, key string, r io.Reader) error

	// RemoveAll deletes every object under the directory prefix. An empty
	// prefix is rejected so a store root is never wiped.
	RemoveAll(ctx context.Context, prefix string) error

	// URI returns the store root for logs.
	URI() string
}

// Options carries what backends need to connect.
type Options struct {
	Credentials config.Credentials
	AWS         config.AWSConfig
}

// Opener constructs a Store for a parsed root URI.
type Opener func(ctx context.Context, u *url.URL, raw string, opts Options) (Store, error)

var (
	mu      sync.RWMutex
	openers = map[string]Opener{}
)

// Register installs (or replaces) the Opener for a URI scheme. The empty
// scheme denotes plain local paths.
func Register(scheme string, fn Opener) {
	mu.Lock()
	defer mu.Unlock()
	openers[strings.ToLower(scheme)] = fn
}

// Open resolves root to a registered backend.
func Open(ctx context.Context, root string, opts Options) (Store, error) {
	u, err := url.Parse(root)
	if err != nil {
		return nil, fmt.Errorf("datasource: parse %q: %w", root, err)
	}
	scheme := strings.ToLower(u.Scheme)
	if len(scheme) == 1 {
		// C:\data parses with scheme "c".
		scheme = ""
	}

	mu.RLock()
	fn, ok := openers[scheme]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w %q (root %s)", ErrUnsupportedScheme, u.Scheme, root)
	}
	return fn(ctx, u, root, opts)
}

// Glob returns the keys in s matching pattern, sorted. Pattern syntax is
// path.Match, so "*" never crosses a "/": "song_data/*/*/*/*.json" matches
// exactly four levels below song_data.
func Glob(ctx context.Context, s Store, pattern string) ([]string, error) {
	if _, err := path.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("datasource: bad pattern %q: %w", pattern, err)
	}
	keys, err := s.List(ctx, staticPrefix(pattern))
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if ok, _ := path.Match(pattern, k); ok {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out, nil
}

// staticPrefix returns the leading directories of pattern that contain no
// match metacharacters, with a trailing slash.
func staticPrefix(pattern string) string {
	segs := strings.Split(pattern, "/")
	var b strings.Builder
	for _, seg := range segs[:len(segs)-1] {
		if strings.ContainsAny(seg, `*?[\`) {
			break
		}
		b.WriteString(seg)
		b.WriteByte('/')
	}
	return b.String()
}

// Join joins key segments with "/" and cleans the result.
func Join(elem ...string) string {
	return strings.TrimPrefix(path.Join(elem...), "/")
}
