package vcs

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchAny(t *testing.T) {
	cases := []struct {
		pattern string
		path    string
		want    bool
	}{
		{"*.go", "main.go", true},
		{"*.go", "pkg/main.go", false},
		{"**/*.go", "main.go", true},
		{"**/*.go", "pkg/sub/main.go", true},
		{"**/*_test.go", "pkg/handler_test.go", true},
		{"**/*_test.go", "pkg/handler.go", false},
		{"tmp/**", "tmp/a/b/c.txt", true},
		{"tmp/**", "src/tmp.txt", false},
		{"docs/*.md", "docs/readme.md", true},
		{"docs/*.md", "docs/sub/readme.md", false},
		{"**/node_modules/**", "web/node_modules/pkg/index.js", true},
		{"**/node_modules/**", "web/src/index.js", false},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, matchAny([]string{tc.pattern}, tc.path),
			"pattern %q against %q", tc.pattern, tc.path)
	}
}
