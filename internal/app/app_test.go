package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/forgegrid/internal/config"
	"github.com/vk/forgegrid/internal/testutil"
)

const projectHCL = `
project "shop" {}

build "api-image" {
  type = "exec"

  spec {
    command = "echo image"
  }
}

deploy "api" {
  type       = "exec"
  depends_on = ["build.api-image"]

  spec {
    command = "echo deployed"
  }
}
`

func writeProject(t *testing.T, content string) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "forge.hcl"), []byte(content), 0o644))
	return root
}

func TestRunExecutesDependenciesFirst(t *testing.T) {
	root := writeProject(t, `
build "api-image" {
  type = "recorder"
}

deploy "api" {
  type       = "recorder"
  depends_on = ["build.api-image"]
}
`)
	recorder := testutil.NewRecorderModule()
	out := &testutil.SafeBuffer{}

	a := New(out, &Config{
		ProjectPath: root,
		Refs:        []config.Ref{{Kind: config.KindDeploy, Name: "api"}},
		LogLevel:    "error",
	}, recorder)

	require.NoError(t, a.Run(context.Background()))
	assert.Equal(t, []string{"build.api-image", "deploy.api"}, recorder.Processed())
	assert.Contains(t, out.String(), "deploy.api")
	assert.Contains(t, out.String(), "done")
}

func TestRunSkipsSatisfiedActions(t *testing.T) {
	root := writeProject(t, `
deploy "api" {
  type = "recorder"
}
`)
	recorder := testutil.NewRecorderModule()
	recorder.Ready["deploy.api"] = true
	out := &testutil.SafeBuffer{}

	a := New(out, &Config{
		ProjectPath: root,
		Refs:        []config.Ref{{Kind: config.KindDeploy, Name: "api"}},
		LogLevel:    "error",
	}, recorder)

	require.NoError(t, a.Run(context.Background()))
	assert.Empty(t, recorder.Processed())
	assert.Contains(t, out.String(), "up to date")
}

func TestRunForceOverridesSatisfiedStatus(t *testing.T) {
	root := writeProject(t, `
deploy "api" {
  type = "recorder"
}
`)
	recorder := testutil.NewRecorderModule()
	recorder.Ready["deploy.api"] = true
	out := &testutil.SafeBuffer{}

	a := New(out, &Config{
		ProjectPath: root,
		Refs:        []config.Ref{{Kind: config.KindDeploy, Name: "api"}},
		Force:       []config.Ref{{Kind: config.KindDeploy, Name: "api"}},
		LogLevel:    "error",
	}, recorder)

	require.NoError(t, a.Run(context.Background()))
	assert.Equal(t, []string{"deploy.api"}, recorder.Processed())
}

func TestRunSurfacesFailures(t *testing.T) {
	root := writeProject(t, `
run "migrate" {
  type = "recorder"
}
`)
	recorder := testutil.NewRecorderModule()
	recorder.Fail["run.migrate"] = errors.New("connection refused")
	out := &testutil.SafeBuffer{}

	a := New(out, &Config{
		ProjectPath: root,
		Refs:        []config.Ref{{Kind: config.KindRun, Name: "migrate"}},
		LogLevel:    "error",
	}, recorder)

	err := a.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 task(s) failed")
	assert.Contains(t, out.String(), "connection refused")
}

func TestRunRejectsUnknownAction(t *testing.T) {
	root := writeProject(t, projectHCL)
	out := &testutil.SafeBuffer{}

	a := New(out, &Config{
		ProjectPath: root,
		Refs:        []config.Ref{{Kind: config.KindDeploy, Name: "ghost"}},
		LogLevel:    "error",
	})

	require.Error(t, a.Run(context.Background()))
}

func TestRunWithBuiltinExecModule(t *testing.T) {
	root := writeProject(t, projectHCL)
	out := &testutil.SafeBuffer{}

	a := New(out, &Config{
		ProjectPath: root,
		Refs:        []config.Ref{{Kind: config.KindDeploy, Name: "api"}},
		LogLevel:    "error",
	})

	require.NoError(t, a.Run(context.Background()))
	assert.Contains(t, out.String(), "build.api-image")
	assert.Contains(t, out.String(), "deploy.api")
}

func TestRunWithoutRefsIsANoop(t *testing.T) {
	root := writeProject(t, projectHCL)
	out := &testutil.SafeBuffer{}

	a := New(out, &Config{ProjectPath: root, LogLevel: "error"})
	require.NoError(t, a.Run(context.Background()))
}
