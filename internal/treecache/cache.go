// Package treecache provides an in-memory, hierarchical cache for computed
// tree versions. Entries are tagged with the filesystem path they were
// scanned from, so a write anywhere under the project can evict exactly the
// scans it may have affected.
package treecache

import (
	"path/filepath"
	"strings"
	"sync"
)

// TreeVersion is the content identity of a source tree after
// include/exclude filtering.
type TreeVersion struct {
	// ContentHash identifies the filtered tree contents.
	ContentHash string
	// Files lists the scanned paths, sorted for determinism. It is
	// informational only and must never be used to predict runtime file
	// presence.
	Files []string
}

// Key identifies one scan configuration: source path plus include/exclude
// filter hashes. Two configs scanning the same path with the same filters
// share a cache entry.
type Key []string

// String returns the canonical string form of the key, used for the
// per-key scan lock.
func (k Key) String() string {
	return strings.Join(k, "\x1f")
}

type entry struct {
	value TreeVersion
	// context is the filesystem path the scan was rooted at, used for
	// invalidation.
	context string
}

// Cache is a concurrency-safe map from Key to TreeVersion. It does not
// serialize writers computing the same key; callers coordinate through the
// scan lock in the vcs package.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// New returns an initialized, empty Cache.
func New() *Cache {
	return &Cache{entries: make(map[string]entry)}
}

// Get returns the cached TreeVersion for the key, if present.
func (c *Cache) Get(key Key) (TreeVersion, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key.String()]
	return e.value, ok
}

// Set stores the value under the key, tagged with the given filesystem
// context for later invalidation.
func (c *Cache) Set(key Key, value TreeVersion, context string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key.String()] = entry{value: value, context: filepath.Clean(context)}
}

// InvalidateUp evicts every entry whose context is an ancestor-or-equal
// path of the given path: a write under a path may affect any scan rooted
// at or above it. It returns the number of evicted entries.
func (c *Cache) InvalidateUp(path string) int {
	path = filepath.Clean(path)

	c.mu.Lock()
	defer c.mu.Unlock()

	evicted := 0
	// Linear scan over entries. Fine at the expected scale (one entry per
	// distinct scan root); an ancestor index would be the optimization if
	// this ever shows up in profiles.
	for k, e := range c.entries {
		if isAncestorOrEqual(e.context, path) {
			delete(c.entries, k)
			evicted++
		}
	}
	return evicted
}

// Clear evicts all entries.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]entry)
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.entries)
}

// isAncestorOrEqual reports whether ancestor is the same path as path or
// one of its parent directories.
func isAncestorOrEqual(ancestor, path string) bool {
	if ancestor == path {
		return true
	}
	return strings.HasPrefix(path, ancestor+string(filepath.Separator))
}
