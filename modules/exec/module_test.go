package exec

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/forgegrid/internal/config"
	"github.com/vk/forgegrid/internal/handlers"
)

func request(t *testing.T, specAttrs map[string]cty.Value) *handlers.Request {
	t.Helper()
	return &handlers.Request{
		Action: &config.Action{
			Kind:   config.KindRun,
			Name:   "job",
			Type:   "exec",
			Source: config.SourceConfig{Path: t.TempDir()},
			Spec:   cty.ObjectVal(specAttrs),
		},
		Version: "v-0123456789",
	}
}

func TestProcessRunsCommand(t *testing.T) {
	req := request(t, map[string]cty.Value{
		"command": cty.StringVal("echo hello"),
	})

	status, err := process(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, handlers.StateReady, status.State)
	assert.Equal(t, "hello", status.Outputs["stdout"])
}

func TestProcessRunsInSourceDir(t *testing.T) {
	req := request(t, map[string]cty.Value{
		"command": cty.StringVal("pwd"),
	})

	status, err := process(context.Background(), req)
	require.NoError(t, err)

	want, err := filepath.EvalSymlinks(req.Action.Source.Path)
	require.NoError(t, err)
	got, err := filepath.EvalSymlinks(status.Outputs["stdout"])
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestProcessExportsVersionAndVariables(t *testing.T) {
	req := request(t, map[string]cty.Value{
		"command": cty.StringVal(`echo "$FORGE_VERSION $REGION"`),
	})
	req.Action.Variables = map[string]cty.Value{"REGION": cty.StringVal("eu-west-1")}

	status, err := process(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "v-0123456789 eu-west-1", status.Outputs["stdout"])
}

func TestProcessExportsDependencyOutputs(t *testing.T) {
	req := request(t, map[string]cty.Value{
		"command": cty.StringVal(`echo "$FORGE_OUTPUT_BUILD_API_IMAGE"`),
	})
	req.DependencyStatuses = map[string]*handlers.Status{
		"build.api-image": {State: handlers.StateReady, Outputs: map[string]string{"stdout": "sha256:abc"}},
	}

	status, err := process(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "sha256:abc", status.Outputs["stdout"])
}

func TestProcessFailureIncludesOutput(t *testing.T) {
	req := request(t, map[string]cty.Value{
		"command": cty.StringVal("echo broken >&2; exit 3"),
	})

	_, err := process(context.Background(), req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
}

func TestProcessRequiresCommand(t *testing.T) {
	req := request(t, map[string]cty.Value{
		"workdir": cty.StringVal("."),
	})

	_, err := process(context.Background(), req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no command")
}

func TestGetStatusWithoutProbeIsIndeterminate(t *testing.T) {
	req := request(t, map[string]cty.Value{
		"command": cty.StringVal("true"),
	})

	status, err := getStatus(context.Background(), req)
	require.NoError(t, err)
	assert.Nil(t, status)
}

func TestGetStatusReportsReady(t *testing.T) {
	marker := filepath.Join(t.TempDir(), "done")
	require.NoError(t, os.WriteFile(marker, nil, 0o644))

	req := request(t, map[string]cty.Value{
		"command":        cty.StringVal("true"),
		"status_command": cty.StringVal("test -f " + marker),
	})

	status, err := getStatus(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, status)
	assert.Equal(t, handlers.StateReady, status.State)
}

func TestGetStatusReportsNotReadyOnNonzeroExit(t *testing.T) {
	req := request(t, map[string]cty.Value{
		"command":        cty.StringVal("true"),
		"status_command": cty.StringVal("test -f /does/not/exist"),
	})

	status, err := getStatus(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, status)
	assert.Equal(t, handlers.StateNotReady, status.State)
}

func TestWorkdirOverridesSourcePath(t *testing.T) {
	req := request(t, map[string]cty.Value{
		"command": cty.StringVal("basename \"$PWD\""),
		"workdir": cty.StringVal("sub"),
	})
	require.NoError(t, os.MkdirAll(filepath.Join(req.Action.Source.Path, "sub"), 0o755))

	status, err := process(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "sub", status.Outputs["stdout"])
}

func TestRegisterCoversEveryKind(t *testing.T) {
	r := handlers.New()
	(&Module{}).Register(r)

	for _, kind := range config.Kinds {
		_, err := r.Lookup(&config.Action{Kind: kind, Type: "exec"})
		assert.NoError(t, err, kind)
	}
}
