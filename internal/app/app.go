// Package app wires the engine together for one command invocation:
// loading the project, choosing a version-control backend, building the
// task graph and running it.
package app

import (
	"io"
	"log/slog"

	"github.com/vk/forgegrid/internal/config"
	"github.com/vk/forgegrid/internal/handlers"
)

// Config holds everything an App needs for one run.
type Config struct {
	// ProjectPath is the project root to load .hcl declarations from.
	ProjectPath string
	// Refs are the requested actions, in the order given.
	Refs []config.Ref

	// Force bypasses the status-skip shortcut for the listed actions;
	// ForceAll does so for every action.
	Force    []config.Ref
	ForceAll bool
	// SkipDependencies runs only the requested actions.
	SkipDependencies bool
	// StopOnFailure stops scheduling new tasks after the first failure.
	StopOnFailure bool

	LogLevel  string
	LogFormat string
}

// App encapsulates the engine's dependencies and lifecycle.
type App struct {
	outW    io.Writer
	logger  *slog.Logger
	config  *Config
	modules []handlers.Module
}

// New returns an initialized App with its own isolated logger. When no
// modules are given the built-in set is used.
func New(outW io.Writer, cfg *Config, modules ...handlers.Module) *App {
	if len(modules) == 0 {
		modules = coreModules
	}
	return &App{
		outW:    outW,
		logger:  newLogger(cfg.LogLevel, cfg.LogFormat, outW),
		config:  cfg,
		modules: modules,
	}
}
