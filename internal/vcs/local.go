package vcs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// LocalBackend scans plain directory trees with no version control
// awareness. Every regular file is considered tracked.
type LocalBackend struct {
	// projectRoot is the fallback repo root for paths with no enclosing
	// git repository.
	projectRoot string
}

// NewLocalBackend returns a backend rooted at the project root.
func NewLocalBackend(projectRoot string) *LocalBackend {
	return &LocalBackend{projectRoot: filepath.Clean(projectRoot)}
}

// GetFiles walks the tree under params.Path and hashes every regular file
// passing the include/exclude filters. Output order is the walk order.
func (b *LocalBackend) GetFiles(ctx context.Context, params GetFilesParams) ([]File, error) {
	var files []File
	root := filepath.Clean(params.Path)

	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			// A file may vanish between listing and stat; skip it.
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if params.Include != nil && !matchAny(params.Include, rel) {
			return nil
		}
		if matchAny(params.Exclude, rel) {
			return nil
		}

		hash, err := hashFile(p)
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		files = append(files, File{Path: p, Hash: hash})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// GetRepoRoot walks up from the path looking for a .git directory and
// falls back to the project root when none is found.
func (b *LocalBackend) GetRepoRoot(ctx context.Context, path string) (string, error) {
	dir := filepath.Clean(path)
	if info, err := os.Stat(dir); err == nil && !info.IsDir() {
		dir = filepath.Dir(dir)
	}
	for {
		if info, err := os.Stat(filepath.Join(dir, ".git")); err == nil && info.IsDir() {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return b.projectRoot, nil
		}
		dir = parent
	}
}

// GetPathInfo returns empty metadata; plain directories have no branch or
// origin.
func (b *LocalBackend) GetPathInfo(ctx context.Context, path string) (PathInfo, error) {
	return PathInfo{}, nil
}

// EnsureRemoteSource is not supported without version control.
func (b *LocalBackend) EnsureRemoteSource(ctx context.Context, source RemoteSource) (string, error) {
	return "", fmt.Errorf("remote source %q requires a git-backed project", source.Name)
}

// UpdateRemoteSource is not supported without version control.
func (b *LocalBackend) UpdateRemoteSource(ctx context.Context, source RemoteSource) error {
	return fmt.Errorf("remote source %q requires a git-backed project", source.Name)
}

// hashFile returns the hex sha256 of the file contents.
func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
