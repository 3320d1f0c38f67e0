package task

import (
	"sync"

	"github.com/google/uuid"

	"github.com/vk/forgegrid/internal/config"
	"github.com/vk/forgegrid/internal/handlers"
	"github.com/vk/forgegrid/internal/version"
)

// Options configures task construction for one invocation.
type Options struct {
	// Force lists actions whose tasks bypass the status-skip shortcut.
	Force []config.Ref
	// ForceAll bypasses the shortcut for every task.
	ForceAll bool
	// SkipDependencies makes every task resolve to an empty dependency
	// sequence.
	SkipDependencies bool
}

// Factory builds tasks for a project, memoized by key so that one unit of
// work maps to a single instance per invocation.
type Factory struct {
	project    *config.Project
	registry   *handlers.Registry
	calculator *version.Calculator
	opts       Options

	mu    sync.Mutex
	tasks map[string]*Task
}

// NewFactory wires a Factory for one command invocation. Task instances
// are not persisted beyond it.
func NewFactory(project *config.Project, registry *handlers.Registry, calculator *version.Calculator, opts Options) *Factory {
	return &Factory{
		project:    project,
		registry:   registry,
		calculator: calculator,
		opts:       opts,
		tasks:      make(map[string]*Task),
	}
}

// Process returns the task that performs the referenced action, creating
// it on first use. An unmappable action kind is a definition error.
func (f *Factory) Process(ref config.Ref) (*Task, error) {
	action, ok := f.project.Action(ref)
	if !ok {
		return nil, &UnknownActionError{Ref: ref}
	}
	kind, err := kindFor(action.Kind)
	if err != nil {
		return nil, err
	}
	return f.task(kind, action), nil
}

// Resolve returns the version-only task for the action.
func (f *Factory) Resolve(action *config.Action) *Task {
	return f.task(KindResolve, action)
}

func (f *Factory) task(kind Kind, action *config.Action) *Task {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := string(kind) + "."
	if kind == KindResolve {
		key += action.Ref().String()
	} else {
		key += action.Name
	}
	if t, ok := f.tasks[key]; ok {
		return t
	}

	t := &Task{
		kind:             kind,
		action:           action,
		uid:              uuid.NewString(),
		force:            f.forced(action),
		skipDependencies: f.opts.SkipDependencies,
		factory:          f,
	}
	f.tasks[key] = t
	return t
}

func (f *Factory) forced(action *config.Action) bool {
	if f.opts.ForceAll {
		return true
	}
	for _, ref := range f.opts.Force {
		if ref == action.Ref() {
			return true
		}
	}
	return false
}

// UnknownActionError reports a dependency reference that matches no
// declared action.
type UnknownActionError struct {
	Ref config.Ref
}

func (e *UnknownActionError) Error() string {
	return "no action declared for reference " + e.Ref.String()
}
