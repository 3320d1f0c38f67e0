package vcs

import (
	"context"
	"path/filepath"
	"strings"
)

// GetMinimalRoots maps each input path to a representative scan root.
// Paths sharing a VCS repository collapse to their common ancestor, which
// minimizes the number of distinct scan roots (and cache keys) needed to
// cover a set of action source paths. The repository root is the floor:
// the walk never ascends above it.
func (h *Handler) GetMinimalRoots(ctx context.Context, paths []string) (map[string]string, error) {
	repoRoots := make(map[string]string, len(paths))
	groups := make(map[string][]string)
	for _, p := range paths {
		p = filepath.Clean(p)
		if _, ok := repoRoots[p]; ok {
			continue
		}
		root, err := h.backend.GetRepoRoot(ctx, p)
		if err != nil {
			return nil, err
		}
		root = filepath.Clean(root)
		repoRoots[p] = root
		groups[root] = append(groups[root], p)
	}

	ancestors := make(map[string]string, len(groups))
	for root, group := range groups {
		anc := group[0]
		for _, p := range group[1:] {
			anc = commonAncestor(anc, p)
		}
		// Floor at the repo root: if the only shared ancestor lies above
		// it, stop at the root instead of crossing it.
		if !isUnder(anc, root) {
			anc = root
		}
		ancestors[root] = anc
	}

	out := make(map[string]string, len(paths))
	for _, p := range paths {
		p = filepath.Clean(p)
		out[p] = ancestors[repoRoots[p]]
	}
	return out, nil
}

// commonAncestor returns the longest common path prefix of a and b, on
// whole segments.
func commonAncestor(a, b string) string {
	sep := string(filepath.Separator)
	as := strings.Split(filepath.Clean(a), sep)
	bs := strings.Split(filepath.Clean(b), sep)

	n := 0
	for n < len(as) && n < len(bs) && as[n] == bs[n] {
		n++
	}
	anc := strings.Join(as[:n], sep)
	if anc == "" {
		anc = sep
	}
	return anc
}

// isUnder reports whether path is root or a descendant of it.
func isUnder(path, root string) bool {
	if path == root {
		return true
	}
	return strings.HasPrefix(path, root+string(filepath.Separator))
}
