package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunHelpExitsCleanly(t *testing.T) {
	t.Parallel()

	out := &bytes.Buffer{}
	err := run(out, []string{"-h"})

	require.NoError(t, err)
	assert.Contains(t, out.String(), "Usage:")
}

func TestRunReportsParseFailures(t *testing.T) {
	t.Parallel()

	out := &bytes.Buffer{}
	err := run(out, []string{"not-a-ref"})

	require.Error(t, err)
}

func TestRunExecutesProject(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	project := `
build "greeting" {
  type = "exec"

  spec {
    command = "echo built"
  }
}
`
	require.NoError(t, os.WriteFile(filepath.Join(root, "forge.hcl"), []byte(project), 0o644))

	out := &bytes.Buffer{}
	err := run(out, []string{"-project", root, "-log-level", "error", "build.greeting"})

	require.NoError(t, err)
	assert.Contains(t, out.String(), "build.greeting")
	assert.Contains(t, out.String(), "done")
}

func TestRunSurfacesTaskFailures(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	project := `
run "broken" {
  type = "exec"

  spec {
    command = "exit 7"
  }
}
`
	require.NoError(t, os.WriteFile(filepath.Join(root, "forge.hcl"), []byte(project), 0o644))

	out := &bytes.Buffer{}
	err := run(out, []string{"-project", root, "-log-level", "error", "run.broken"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed")
}
