// Package paths resolves home-relative paths and measures directory sizes
// with a short-lived per-path cache.
package paths

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultCacheTTL is how long a computed directory size stays valid. The
// cache only exists to coalesce repeated measurements of the same path
// within one launch sequence, so staleness after a mutation is acceptable.
const DefaultCacheTTL = 5 * time.Second

type sizeEntry struct {
	size int64
	at   time.Time
}

// Resolver expands home-relative paths and computes recursive sizes.
// The zero value is not usable; construct with NewResolver.
type Resolver struct {
	home string
	ttl  time.Duration

	mu    sync.Mutex
	cache map[string]sizeEntry
	group singleflight.Group

	// now is swappable for tests.
	now func() time.Time
}

// NewResolver creates a Resolver with the given size-cache TTL.
// A non-positive ttl falls back to DefaultCacheTTL.
func NewResolver(ttl time.Duration) *Resolver {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	home, _ := os.UserHomeDir()
	return &Resolver{
		home:  home,
		ttl:   ttl,
		cache: make(map[string]sizeEntry),
		now:   time.Now,
	}
}

// Expand replaces a leading "~" with the user's home directory. It never
// fails: paths without a home marker (and nonexistent paths) pass through.
func (r *Resolver) Expand(path string) string {
	if path == "~" {
		return r.home
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(r.home, path[2:])
	}
	return path
}

// SizeOf returns the size of path in bytes: 0 when it does not exist, the
// byte length for a file, and the recursive sum of descendant file sizes
// for a directory. Symlinks are never followed, so cyclic links cannot
// cause an infinite walk. Results are cached per absolute path for the
// configured TTL; concurrent callers for the same path share one walk.
func (r *Resolver) SizeOf(path string) int64 {
	abs, err := filepath.Abs(r.Expand(path))
	if err != nil {
		return 0
	}

	r.mu.Lock()
	if e, ok := r.cache[abs]; ok && r.now().Sub(e.at) < r.ttl {
		r.mu.Unlock()
		return e.size
	}
	r.mu.Unlock()

	v, _, _ := r.group.Do(abs, func() (any, error) {
		size := walkSize(abs)
		r.mu.Lock()
		r.cache[abs] = sizeEntry{size: size, at: r.now()}
		r.mu.Unlock()
		return size, nil
	})
	return v.(int64)
}

// walkSize measures path without following symlinks. Directory entries come
// from a shallow listing, so a symlink to a directory is counted as the
// link itself, never descended into.
func walkSize(path string) int64 {
	info, err := os.Lstat(path)
	if err != nil {
		return 0
	}
	if !info.IsDir() {
		return info.Size()
	}

	var total int64
	entries, err := os.ReadDir(path)
	if err != nil {
		return 0
	}
	for _, entry := range entries {
		child := filepath.Join(path, entry.Name())
		if entry.IsDir() {
			total += walkSize(child)
			continue
		}
		if ci, err := entry.Info(); err == nil {
			total += ci.Size()
		}
	}
	return total
}
