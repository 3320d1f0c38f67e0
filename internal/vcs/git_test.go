package vcs

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gitCmd(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", append([]string{"-C", dir}, args...)...)
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "git %v: %s", args, out)
	return string(out)
}

// initRepo creates a repository with quotePath pinned to git's default so
// ls-files would C-quote non-ASCII paths without -z.
func initRepo(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	root := t.TempDir()
	gitCmd(t, root, "init", "-q")
	gitCmd(t, root, "config", "core.quotepath", "true")
	return root
}

func TestGetFilesKeepsNonASCIIPaths(t *testing.T) {
	root := initRepo(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "café.txt"), []byte("tracked"), 0o644))
	gitCmd(t, root, "add", "café.txt")
	require.NoError(t, os.WriteFile(filepath.Join(root, "naïve.txt"), []byte("untracked"), 0o644))

	b := NewGitBackend(t.TempDir())
	files, err := b.GetFiles(context.Background(), GetFilesParams{Path: root})
	require.NoError(t, err)

	byPath := make(map[string]string, len(files))
	for _, f := range files {
		byPath[f.Path] = f.Hash
	}
	require.Len(t, byPath, 2)
	assert.Regexp(t, `^[0-9a-f]{40,64}$`, byPath[filepath.Join(root, "café.txt")],
		"tracked file listed under its literal path")
	assert.Regexp(t, `^[0-9a-f]{40,64}$`, byPath[filepath.Join(root, "naïve.txt")],
		"untracked file listed under its literal path")
}

// Editing an untracked file with a non-ASCII name must change its hash,
// so the tree version tracks it.
func TestGetFilesHashesUntrackedContent(t *testing.T) {
	root := initRepo(t)
	path := filepath.Join(root, "naïve.txt")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0o644))

	b := NewGitBackend(t.TempDir())
	hashOf := func() string {
		files, err := b.GetFiles(context.Background(), GetFilesParams{Path: root})
		require.NoError(t, err)
		require.Len(t, files, 1)
		assert.Equal(t, path, files[0].Path)
		return files[0].Hash
	}

	before := hashOf()
	require.NoError(t, os.WriteFile(path, []byte("v2"), 0o644))
	assert.NotEqual(t, before, hashOf())
}

func TestGetFilesBatchesUntrackedFiles(t *testing.T) {
	root := initRepo(t)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("same"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "sub", "b.txt"), []byte("same"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "c.txt"), []byte("other"), 0o644))

	b := NewGitBackend(t.TempDir())
	files, err := b.GetFiles(context.Background(), GetFilesParams{Path: root})
	require.NoError(t, err)
	require.Len(t, files, 3)

	byPath := make(map[string]string, len(files))
	for _, f := range files {
		byPath[f.Path] = f.Hash
	}
	assert.Equal(t, byPath[filepath.Join(root, "a.txt")], byPath[filepath.Join(root, "sub", "b.txt")],
		"equal contents hash equally")
	assert.NotEqual(t, byPath[filepath.Join(root, "a.txt")], byPath[filepath.Join(root, "c.txt")])
}

func TestGetFilesAppliesFilters(t *testing.T) {
	root := initRepo(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "kept.go"), []byte("package x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "dropped.md"), []byte("# doc"), 0o644))
	gitCmd(t, root, "add", ".")

	b := NewGitBackend(t.TempDir())
	files, err := b.GetFiles(context.Background(), GetFilesParams{
		Path:    root,
		Include: []string{"**/*.go", "*.go"},
	})
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, filepath.Join(root, "kept.go"), files[0].Path)
}
