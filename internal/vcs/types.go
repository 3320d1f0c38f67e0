package vcs

import (
	"context"

	"github.com/vk/forgegrid/internal/hashing"
	"github.com/vk/forgegrid/internal/treecache"
)

// File is one tracked file and its content hash, as reported by a backend.
// Order is not guaranteed by any backend; the Handler sorts.
type File struct {
	Path string
	Hash string
}

// PathInfo describes the repository state at a path.
type PathInfo struct {
	Branch     string
	CommitHash string
	OriginURL  string
}

// RemoteSource identifies an externally-hosted source tree to be cloned
// into the project's sources directory.
type RemoteSource struct {
	Name string
	// RepositoryURL is the clone URL, with the ref appended after a '#'
	// (e.g. "https://example.com/repo.git#main").
	RepositoryURL string
}

// GetFilesParams configures one backend scan.
type GetFilesParams struct {
	Path    string
	Include []string
	Exclude []string
}

// Backend is a concrete file-tree scanner: a local filesystem walk, a git
// index, etc. The Handler adds caching, locking and hashing on top.
type Backend interface {
	// GetFiles lists tracked files under the path with their content
	// hashes. Unsorted output is acceptable.
	GetFiles(ctx context.Context, params GetFilesParams) ([]File, error)
	// GetRepoRoot returns the root of the repository containing the path.
	GetRepoRoot(ctx context.Context, path string) (string, error)
	// GetPathInfo returns branch/commit/origin metadata for the path.
	GetPathInfo(ctx context.Context, path string) (PathInfo, error)
	// EnsureRemoteSource makes sure the remote source is available
	// locally and returns its local path.
	EnsureRemoteSource(ctx context.Context, source RemoteSource) (string, error)
	// UpdateRemoteSource fetches the latest state of an already-cloned
	// remote source.
	UpdateRemoteSource(ctx context.Context, source RemoteSource) error
}

// ScanConfig describes the tree an action's version is derived from.
type ScanConfig struct {
	// Path is the absolute source root to scan.
	Path string
	// Include and Exclude filter the scan. A non-nil empty Include means
	// the action deliberately includes no files.
	Include []string
	Exclude []string
	// ConfigPath is the action's own config file. It is excluded from the
	// scan, and its directory anchors the relative paths fed into the
	// content hash so a rename within the directory changes the hash.
	ConfigPath string
}

// CacheKey derives the tree-cache key for a scan config. Two configs that
// scan the same path with the same filters share a cache entry.
func (c ScanConfig) CacheKey() treecache.Key {
	key := treecache.Key{"source", c.Path}
	if c.Include != nil {
		key = append(key, "include", hashing.Hash(c.Include...))
	}
	if c.Exclude != nil {
		key = append(key, "exclude", hashing.Hash(c.Exclude...))
	}
	return key
}
