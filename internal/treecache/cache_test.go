package treecache

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func key(path string) Key {
	return Key{"source", path}
}

func TestSetAndGet(t *testing.T) {
	c := New()

	_, ok := c.Get(key("/repo/a"))
	assert.False(t, ok)

	want := TreeVersion{ContentHash: "abc123def0", Files: []string{"/repo/a/main.go"}}
	c.Set(key("/repo/a"), want, "/repo/a")

	got, ok := c.Get(key("/repo/a"))
	require.True(t, ok)
	assert.Equal(t, want, got)
}

func TestDistinctFiltersDistinctEntries(t *testing.T) {
	c := New()
	c.Set(Key{"source", "/repo/a"}, TreeVersion{ContentHash: "aaaaaaaaaa"}, "/repo/a")
	c.Set(Key{"source", "/repo/a", "include", "1111111111"}, TreeVersion{ContentHash: "bbbbbbbbbb"}, "/repo/a")

	got, ok := c.Get(Key{"source", "/repo/a", "include", "1111111111"})
	require.True(t, ok)
	assert.Equal(t, "bbbbbbbbbb", got.ContentHash)
	assert.Equal(t, 2, c.Len())
}

// A write deep inside the tree must evict every scan rooted at or above the
// written path, and nothing else.
func TestInvalidateUpEvictsAncestorContexts(t *testing.T) {
	c := New()
	c.Set(key("/repo"), TreeVersion{ContentHash: "1111111111"}, "/repo")
	c.Set(key("/repo/a"), TreeVersion{ContentHash: "2222222222"}, "/repo/a")
	c.Set(key("/repo/a/b"), TreeVersion{ContentHash: "3333333333"}, "/repo/a/b")
	c.Set(key("/repo/c"), TreeVersion{ContentHash: "4444444444"}, "/repo/c")
	c.Set(key("/other"), TreeVersion{ContentHash: "5555555555"}, "/other")

	evicted := c.InvalidateUp("/repo/a/b/file.txt")
	assert.Equal(t, 3, evicted)

	_, ok := c.Get(key("/repo"))
	assert.False(t, ok, "scan rooted at /repo includes the written file")
	_, ok = c.Get(key("/repo/a"))
	assert.False(t, ok)
	_, ok = c.Get(key("/repo/a/b"))
	assert.False(t, ok)

	_, ok = c.Get(key("/repo/c"))
	assert.True(t, ok, "sibling scan is unaffected")
	_, ok = c.Get(key("/other"))
	assert.True(t, ok, "unrelated scan is unaffected")
}

func TestInvalidateUpDoesNotMatchPathPrefixWithinSegment(t *testing.T) {
	c := New()
	c.Set(key("/repo/ab"), TreeVersion{ContentHash: "1111111111"}, "/repo/ab")

	evicted := c.InvalidateUp("/repo/abc/file.txt")
	assert.Equal(t, 0, evicted, "/repo/ab is not an ancestor of /repo/abc")
}

func TestClear(t *testing.T) {
	c := New()
	c.Set(key("/repo"), TreeVersion{ContentHash: "1111111111"}, "/repo")
	c.Clear()
	assert.Equal(t, 0, c.Len())
}

// TestConcurrentAccess verifies the cache can be used by many goroutines
// simultaneously without data races or lost writes.
func TestConcurrentAccess(t *testing.T) {
	c := New()
	numGoroutines := 100
	var wg sync.WaitGroup

	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func(i int) {
			defer wg.Done()
			path := fmt.Sprintf("/repo/mod%d", i)
			c.Set(key(path), TreeVersion{ContentHash: fmt.Sprintf("%010d", i)}, path)
		}(i)
	}
	wg.Wait()

	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func(i int) {
			defer wg.Done()
			path := fmt.Sprintf("/repo/mod%d", i)
			got, ok := c.Get(key(path))
			assert.True(t, ok)
			assert.Equal(t, fmt.Sprintf("%010d", i), got.ContentHash)
		}(i)
	}
	wg.Wait()
}
