package vcs

import (
	"path"
	"strings"
)

// matchAny reports whether the slash-separated relative path matches any of
// the glob patterns. Patterns use path.Match syntax, extended with a
// leading "**/" (match at any depth) and a trailing "/**" (match anything
// below a directory).
func matchAny(patterns []string, relPath string) bool {
	for _, p := range patterns {
		if matchOne(p, relPath) {
			return true
		}
	}
	return false
}

func matchOne(pattern, relPath string) bool {
	if ok, _ := path.Match(pattern, relPath); ok {
		return true
	}

	if suffix, ok := strings.CutPrefix(pattern, "**/"); ok {
		if matchOne(suffix, relPath) {
			return true
		}
		segs := strings.Split(relPath, "/")
		for i := 1; i < len(segs); i++ {
			if matchOne(suffix, strings.Join(segs[i:], "/")) {
				return true
			}
		}
	}

	if prefix, ok := strings.CutSuffix(pattern, "/**"); ok {
		segs := strings.Split(relPath, "/")
		for i := 1; i < len(segs); i++ {
			if matchOne(prefix, strings.Join(segs[:i], "/")) {
				return true
			}
		}
	}

	return false
}
