package vcs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// GitBackend lists files through the git index by shelling out to the git
// command. Object hashes come straight from the index, so no file contents
// are read during a scan.
type GitBackend struct {
	// sourcesDir is where remote sources are cloned,
	// e.g. <projectRoot>/.forgegrid/sources.
	sourcesDir string
}

// NewGitBackend returns a git backend that keeps remote sources under
// sourcesDir.
func NewGitBackend(sourcesDir string) *GitBackend {
	return &GitBackend{sourcesDir: sourcesDir}
}

// GetFiles lists tracked and untracked-but-not-ignored files under the
// path using `git ls-files`, with git's blob hashes for tracked files and
// content hashes computed via `git hash-object` for untracked ones.
// Records are NUL-delimited (-z) so paths with non-ASCII bytes come
// through verbatim instead of C-quoted.
func (b *GitBackend) GetFiles(ctx context.Context, params GetFilesParams) ([]File, error) {
	root := filepath.Clean(params.Path)

	out, err := b.git(ctx, root, "ls-files", "-s", "--others", "--exclude-standard", "-z")
	if err != nil {
		return nil, fmt.Errorf("git ls-files in %s: %w", root, err)
	}

	var files []File
	var untracked []string
	for _, record := range bytes.Split(out, []byte{0}) {
		line := string(record)
		if line == "" {
			continue
		}
		// Tracked entries look like "<mode> <hash> <stage>\t<path>";
		// untracked ones are a bare path.
		rel := line
		hash := ""
		if meta, p, ok := strings.Cut(line, "\t"); ok {
			fields := strings.Fields(meta)
			if len(fields) == 3 {
				rel, hash = p, fields[1]
			}
		}

		rel = filepath.ToSlash(rel)
		if params.Include != nil && !matchAny(params.Include, rel) {
			continue
		}
		if matchAny(params.Exclude, rel) {
			continue
		}

		abs := filepath.Join(root, filepath.FromSlash(rel))
		if hash == "" {
			untracked = append(untracked, abs)
			continue
		}
		files = append(files, File{Path: abs, Hash: hash})
	}

	hashed, err := b.hashUntracked(ctx, root, untracked)
	if err != nil {
		return nil, err
	}
	return append(files, hashed...), nil
}

// hashUntracked computes blob hashes for untracked files in one
// `git hash-object --stdin-paths` call. Output hashes come back in input
// order, one per line.
func (b *GitBackend) hashUntracked(ctx context.Context, root string, paths []string) ([]File, error) {
	present := make([]string, 0, len(paths))
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			// Deleted between listing and hashing.
			continue
		}
		present = append(present, p)
	}
	if len(present) == 0 {
		return nil, nil
	}

	stdin := strings.NewReader(strings.Join(present, "\n") + "\n")
	out, err := b.gitInput(ctx, root, stdin, "hash-object", "--stdin-paths")
	if err != nil {
		return nil, fmt.Errorf("git hash-object in %s: %w", root, err)
	}

	hashes := strings.Split(strings.TrimSpace(string(out)), "\n")
	if len(hashes) != len(present) {
		return nil, fmt.Errorf("git hash-object in %s: %d hashes for %d paths", root, len(hashes), len(present))
	}

	files := make([]File, 0, len(present))
	for i, p := range present {
		files = append(files, File{Path: p, Hash: strings.TrimSpace(hashes[i])})
	}
	return files, nil
}

// GetRepoRoot resolves the repository root via `git rev-parse`.
func (b *GitBackend) GetRepoRoot(ctx context.Context, path string) (string, error) {
	dir := filepath.Clean(path)
	if info, err := os.Stat(dir); err == nil && !info.IsDir() {
		dir = filepath.Dir(dir)
	}
	out, err := b.git(ctx, dir, "rev-parse", "--show-toplevel")
	if err != nil {
		return "", fmt.Errorf("resolving repo root of %s: %w", path, err)
	}
	return strings.TrimSpace(string(out)), nil
}

// GetPathInfo returns the current branch, commit and origin URL. Fields
// that cannot be resolved (detached HEAD, no origin) are left empty.
func (b *GitBackend) GetPathInfo(ctx context.Context, path string) (PathInfo, error) {
	info := PathInfo{}
	if out, err := b.git(ctx, path, "rev-parse", "--abbrev-ref", "HEAD"); err == nil {
		info.Branch = strings.TrimSpace(string(out))
	}
	if out, err := b.git(ctx, path, "rev-parse", "HEAD"); err == nil {
		info.CommitHash = strings.TrimSpace(string(out))
	}
	if out, err := b.git(ctx, path, "config", "--get", "remote.origin.url"); err == nil {
		info.OriginURL = strings.TrimSpace(string(out))
	}
	return info, nil
}

// EnsureRemoteSource clones the source into the sources directory if it is
// not already present, and returns its local path.
func (b *GitBackend) EnsureRemoteSource(ctx context.Context, source RemoteSource) (string, error) {
	dest := filepath.Join(b.sourcesDir, source.Name)
	if _, err := os.Stat(filepath.Join(dest, ".git")); err == nil {
		return dest, nil
	}

	url, ref := splitRepositoryURL(source.RepositoryURL)
	if err := os.MkdirAll(b.sourcesDir, 0o755); err != nil {
		return "", err
	}

	args := []string{"clone", "--depth=1"}
	if ref != "" {
		args = append(args, "--branch", ref)
	}
	args = append(args, url, dest)
	if _, err := b.git(ctx, b.sourcesDir, args...); err != nil {
		return "", fmt.Errorf("cloning remote source %q: %w", source.Name, err)
	}
	return dest, nil
}

// UpdateRemoteSource fetches and resets an already-cloned remote source to
// its configured ref.
func (b *GitBackend) UpdateRemoteSource(ctx context.Context, source RemoteSource) error {
	dest := filepath.Join(b.sourcesDir, source.Name)
	if _, err := os.Stat(filepath.Join(dest, ".git")); err != nil {
		if _, err := b.EnsureRemoteSource(ctx, source); err != nil {
			return err
		}
		return nil
	}

	_, ref := splitRepositoryURL(source.RepositoryURL)
	if _, err := b.git(ctx, dest, "fetch", "--depth=1", "origin"); err != nil {
		return fmt.Errorf("fetching remote source %q: %w", source.Name, err)
	}
	target := "FETCH_HEAD"
	if ref != "" {
		target = "origin/" + ref
	}
	if _, err := b.git(ctx, dest, "reset", "--hard", target); err != nil {
		return fmt.Errorf("updating remote source %q: %w", source.Name, err)
	}
	return nil
}

func (b *GitBackend) git(ctx context.Context, dir string, args ...string) ([]byte, error) {
	return b.gitInput(ctx, dir, nil, args...)
}

func (b *GitBackend) gitInput(ctx context.Context, dir string, stdin io.Reader, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "git", append([]string{"-C", dir}, args...)...)
	cmd.Stdin = stdin
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return nil, fmt.Errorf("git %s: %w: %s", args[0], err, msg)
		}
		return nil, fmt.Errorf("git %s: %w", args[0], err)
	}
	return out, nil
}

// splitRepositoryURL splits "url#ref" into its parts; ref may be empty.
func splitRepositoryURL(repositoryURL string) (url, ref string) {
	url, ref, _ = strings.Cut(repositoryURL, "#")
	return url, ref
}
