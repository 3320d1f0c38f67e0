package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/forgegrid/internal/config"
)

func TestParseActions(t *testing.T) {
	var out bytes.Buffer
	cfg, exit, err := Parse([]string{"deploy.api", "test.smoke"}, &out)
	require.NoError(t, err)
	require.False(t, exit)

	assert.Equal(t, ".", cfg.ProjectPath)
	assert.Equal(t, []config.Ref{
		{Kind: config.KindDeploy, Name: "api"},
		{Kind: config.KindTest, Name: "smoke"},
	}, cfg.Refs)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestParseFlags(t *testing.T) {
	var out bytes.Buffer
	cfg, exit, err := Parse([]string{
		"-project", "/work/shop",
		"-force", "build.api-image, deploy.api",
		"-stop-on-failure",
		"-skip-dependencies",
		"-log-format", "json",
		"-log-level", "debug",
		"run.migrate",
	}, &out)
	require.NoError(t, err)
	require.False(t, exit)

	assert.Equal(t, "/work/shop", cfg.ProjectPath)
	assert.Equal(t, []config.Ref{{Kind: config.KindRun, Name: "migrate"}}, cfg.Refs)
	assert.Equal(t, []config.Ref{
		{Kind: config.KindBuild, Name: "api-image"},
		{Kind: config.KindDeploy, Name: "api"},
	}, cfg.Force)
	assert.True(t, cfg.StopOnFailure)
	assert.True(t, cfg.SkipDependencies)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestParseWithoutActionsPrintsUsage(t *testing.T) {
	var out bytes.Buffer
	cfg, exit, err := Parse(nil, &out)
	require.NoError(t, err)
	assert.True(t, exit)
	assert.Nil(t, cfg)
	assert.Contains(t, out.String(), "Usage:")
}

func TestParseRejectsBadReference(t *testing.T) {
	var out bytes.Buffer
	_, _, err := Parse([]string{"provision.db"}, &out)
	require.Error(t, err)
	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 2, exitErr.Code)
}

func TestParseRejectsBadLogFormat(t *testing.T) {
	var out bytes.Buffer
	_, _, err := Parse([]string{"-log-format", "yaml", "run.migrate"}, &out)
	require.Error(t, err)
	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 2, exitErr.Code)
}

func TestParseHelpExitsCleanly(t *testing.T) {
	var out bytes.Buffer
	cfg, exit, err := Parse([]string{"-h"}, &out)
	require.NoError(t, err)
	assert.True(t, exit)
	assert.Nil(t, cfg)
}
