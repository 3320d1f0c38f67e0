// Package vcs computes content-addressable tree versions for action source
// trees. A Handler layers caching, per-key scan locking and deterministic
// hashing over a pluggable Backend (local filesystem walk or git index).
package vcs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/vk/forgegrid/internal/ctxlog"
	"github.com/vk/forgegrid/internal/hashing"
	"github.com/vk/forgegrid/internal/treecache"
)

// scanWarnThreshold is the file count above which a scan logs a warning
// recommending narrower include/exclude filters.
const scanWarnThreshold = 10000

// Handler computes TreeVersions with caching and scan de-duplication. It is
// shared, process-wide state: any number of goroutines may call it
// concurrently.
type Handler struct {
	backend         Backend
	cache           *treecache.Cache
	locks           *keyedLock
	projectRoot     string
	projectExcludes []string
}

// NewHandler wires a Handler over the given backend and cache. The
// projectExcludes apply only to scans rooted at projectRoot that have no
// explicit include filter.
func NewHandler(backend Backend, cache *treecache.Cache, projectRoot string, projectExcludes []string) *Handler {
	return &Handler{
		backend:         backend,
		cache:           cache,
		locks:           newKeyedLock(),
		projectRoot:     filepath.Clean(projectRoot),
		projectExcludes: projectExcludes,
	}
}

// GetTreeVersion computes the content identity of the tree described by the
// scan config. Results are cached by cache key until a write invalidates
// them; force bypasses the cache read but still refreshes the entry.
//
// At most one scan per cache key is in flight at a time: concurrent callers
// with the same key serialize on a per-key lock and the late ones re-check
// the cache before scanning.
func (h *Handler) GetTreeVersion(ctx context.Context, cfg ScanConfig, force bool) (treecache.TreeVersion, error) {
	key := cfg.CacheKey()

	if !force {
		if tv, ok := h.cache.Get(key); ok {
			return tv, nil
		}
	}

	unlock := h.locks.Lock(key.String())
	defer unlock()

	// Another caller may have finished the scan while we waited.
	if !force {
		if tv, ok := h.cache.Get(key); ok {
			return tv, nil
		}
	}

	tv, err := h.scan(ctx, cfg)
	if err != nil {
		return treecache.TreeVersion{}, err
	}

	h.cache.Set(key, tv, cfg.Path)
	return tv, nil
}

func (h *Handler) scan(ctx context.Context, cfg ScanConfig) (treecache.TreeVersion, error) {
	logger := ctxlog.FromContext(ctx)

	// An explicitly empty include set means the action has no source
	// files; no scan needed.
	if cfg.Include != nil && len(cfg.Include) == 0 {
		return treecache.TreeVersion{ContentHash: hashing.EmptyHash, Files: []string{}}, nil
	}

	exclude := cfg.Exclude
	if filepath.Clean(cfg.Path) == h.projectRoot && cfg.Include == nil {
		exclude = append(append([]string{}, exclude...), h.projectExcludes...)
	}

	files, err := h.backend.GetFiles(ctx, GetFilesParams{
		Path:    cfg.Path,
		Include: cfg.Include,
		Exclude: exclude,
	})
	if err != nil {
		return treecache.TreeVersion{}, fmt.Errorf("scanning %s: %w", cfg.Path, err)
	}

	// The action's own config file never contributes to its tree.
	if cfg.ConfigPath != "" {
		filtered := files[:0]
		for _, f := range files {
			if f.Path != cfg.ConfigPath {
				filtered = append(filtered, f)
			}
		}
		files = filtered
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })

	if len(files) > scanWarnThreshold {
		logger.Warn("Large file count in source scan; consider narrowing the action's include/exclude filters.",
			"path", cfg.Path, "fileCount", len(files))
	}

	paths := make([]string, len(files))
	parts := make([]string, len(files))
	configDir := ""
	if cfg.ConfigPath != "" {
		configDir = filepath.Dir(cfg.ConfigPath)
	}
	for i, f := range files {
		paths[i] = f.Path
		// Relativize against the config file's directory when known, so a
		// rename within the same directory changes the hash.
		if configDir != "" {
			if rel, err := filepath.Rel(configDir, f.Path); err == nil {
				parts[i] = rel + "-" + f.Hash
				continue
			}
		}
		parts[i] = f.Hash
	}

	return treecache.TreeVersion{ContentHash: hashing.Hash(parts...), Files: paths}, nil
}

// WriteFile writes data to the path and invalidates every cached scan the
// write may have affected. All mutations done through the handler are
// reflected in subsequent scans.
func (h *Handler) WriteFile(ctx context.Context, path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return err
	}

	evicted := h.cache.InvalidateUp(path)
	ctxlog.FromContext(ctx).Debug("Wrote file and invalidated affected scans.", "path", path, "evicted", evicted)
	return nil
}

// GetPathInfo returns branch/commit/origin metadata for the path.
func (h *Handler) GetPathInfo(ctx context.Context, path string) (PathInfo, error) {
	return h.backend.GetPathInfo(ctx, path)
}

// EnsureRemoteSource makes sure an externally-hosted source is available
// locally and returns its path.
func (h *Handler) EnsureRemoteSource(ctx context.Context, source RemoteSource) (string, error) {
	return h.backend.EnsureRemoteSource(ctx, source)
}

// UpdateRemoteSource fetches the latest state of a remote source.
func (h *Handler) UpdateRemoteSource(ctx context.Context, source RemoteSource) error {
	return h.backend.UpdateRemoteSource(ctx, source)
}
