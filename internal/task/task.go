// Package task wraps declared actions in executable units the executor can
// schedule. The kind set is closed: build, deploy, run and test tasks
// perform an action through its plugin handler, and every action also has
// a resolve task that only computes its version.
package task

import (
	"context"
	"fmt"
	"sync"

	"github.com/vk/forgegrid/internal/config"
	"github.com/vk/forgegrid/internal/executor"
	"github.com/vk/forgegrid/internal/handlers"
	"github.com/vk/forgegrid/internal/version"
)

// Kind is a task kind. It mirrors the action kinds plus the internal
// resolve kind.
type Kind string

const (
	KindBuild   Kind = "build"
	KindDeploy  Kind = "deploy"
	KindRun     Kind = "run"
	KindTest    Kind = "test"
	KindResolve Kind = "resolve"
)

// defaultConcurrencyLimit bounds simultaneous Process calls per kind.
const defaultConcurrencyLimit = 10

// concurrencyLimits carries per-kind overrides. Resolve tasks only hash
// metadata, so they run wider.
var concurrencyLimits = map[Kind]int{
	KindResolve: 20,
}

// kindFor maps an action kind to the task kind that processes it. The
// mapping is exhaustive over the closed action-kind set; anything else is
// a definition error.
func kindFor(actionKind config.Kind) (Kind, error) {
	switch actionKind {
	case config.KindBuild:
		return KindBuild, nil
	case config.KindDeploy:
		return KindDeploy, nil
	case config.KindRun:
		return KindRun, nil
	case config.KindTest:
		return KindTest, nil
	}
	return "", fmt.Errorf("no task type for action kind %q", actionKind)
}

// Task is one executable unit wrapping an action. Two tasks with the same
// key are the same unit of work; the factory memoizes instances so that
// holds within one factory.
type Task struct {
	kind    Kind
	action  *config.Action
	uid     string
	force   bool
	factory *Factory

	// skipDependencies makes ResolveDependencies return an empty
	// sequence.
	skipDependencies bool

	// resolveOnce memoizes dependency resolution per instance.
	resolveOnce sync.Once
	deps        []executor.Task
	depsErr     error

	// computed holds the action version once the resolve task ran.
	mu       sync.Mutex
	computed *version.ActionVersion
}

// Key identifies the task for scheduling and results. Process tasks use
// "kind.name"; resolve tasks use "resolve.kind.name" so that build.api and
// deploy.api resolve independently.
func (t *Task) Key() string {
	return string(t.kind) + "." + t.Name()
}

// Name returns the task's name within its kind.
func (t *Task) Name() string {
	if t.kind == KindResolve {
		return t.action.Ref().String()
	}
	return t.action.Name
}

// UID returns the per-instantiation identifier, used only for tracing.
func (t *Task) UID() string {
	return t.uid
}

// Kind returns the task kind as a string.
func (t *Task) Kind() string {
	return string(t.kind)
}

// Action returns the wrapped action.
func (t *Task) Action() *config.Action {
	return t.action
}

// ConcurrencyLimit returns how many tasks of this kind may process
// simultaneously.
func (t *Task) ConcurrencyLimit() int {
	if limit, ok := concurrencyLimits[t.kind]; ok {
		return limit
	}
	return defaultConcurrencyLimit
}

// Version returns the computed version string, or "" before resolution.
func (t *Task) Version() string {
	av := t.actionVersion()
	if av == nil {
		return ""
	}
	return av.VersionString
}

func (t *Task) actionVersion() *version.ActionVersion {
	if t.kind != KindResolve {
		return t.factory.Resolve(t.action).actionVersion()
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.computed
}

func (t *Task) setActionVersion(av *version.ActionVersion) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.computed = av
}

// ResolveDependencies returns the tasks this task depends on. The result
// is computed once and reused on repeat calls.
//
// A resolve task depends on the resolve tasks of its action's
// dependencies, so version changes cascade through the DAG. A process
// task depends on its own resolve task plus the process task of every
// declared dependency.
func (t *Task) ResolveDependencies(ctx context.Context) ([]executor.Task, error) {
	t.resolveOnce.Do(func() {
		t.deps, t.depsErr = t.resolveDependencies()
	})
	return t.deps, t.depsErr
}

func (t *Task) resolveDependencies() ([]executor.Task, error) {
	if t.skipDependencies {
		return nil, nil
	}

	var deps []executor.Task
	if t.kind != KindResolve {
		deps = append(deps, t.factory.Resolve(t.action))
	}

	for _, ref := range t.action.DependsOn {
		depAction, ok := t.factory.project.Action(ref)
		if !ok {
			return nil, fmt.Errorf("%s depends on unknown action %q", t.action.Ref(), ref)
		}
		if t.kind == KindResolve {
			deps = append(deps, t.factory.Resolve(depAction))
			continue
		}
		dep, err := t.factory.Process(ref)
		if err != nil {
			return nil, err
		}
		deps = append(deps, dep)
	}
	return deps, nil
}

// GetStatus asks the action's handler about current real-world state.
// satisfied is true when the reported state already fulfills the request
// and the task is not forced; resolve tasks always process.
func (t *Task) GetStatus(ctx context.Context, deps *executor.Results) (any, bool, error) {
	if t.kind == KindResolve {
		return nil, false, nil
	}

	h, err := t.factory.registry.Lookup(t.action)
	if err != nil {
		return nil, false, err
	}
	if h.GetStatus == nil {
		return nil, false, nil
	}

	status, err := h.GetStatus(ctx, t.request(deps))
	if err != nil {
		return nil, false, err
	}
	if status == nil {
		// Indeterminate; process unconditionally.
		return nil, false, nil
	}

	satisfied := status.State == handlers.StateReady && !t.force
	return status, satisfied, nil
}

// Process performs the task. For resolve tasks that means computing the
// action version; for process tasks it delegates to the plugin handler.
func (t *Task) Process(ctx context.Context, deps *executor.Results) (any, error) {
	if t.kind == KindResolve {
		return t.processResolve(ctx)
	}

	h, err := t.factory.registry.Lookup(t.action)
	if err != nil {
		return nil, err
	}
	return h.Process(ctx, t.request(deps))
}

func (t *Task) processResolve(ctx context.Context) (any, error) {
	depVersions := make(map[string]string, len(t.action.DependsOn))
	for _, ref := range t.action.DependsOn {
		depAction, ok := t.factory.project.Action(ref)
		if !ok {
			return nil, fmt.Errorf("%s depends on unknown action %q", t.action.Ref(), ref)
		}
		av := t.factory.Resolve(depAction).actionVersion()
		if av == nil {
			return nil, fmt.Errorf("version of dependency %q not yet resolved", ref)
		}
		depVersions[ref.String()] = av.VersionString
	}

	av, err := t.factory.calculator.ActionVersion(ctx, t.action, depVersions, t.force)
	if err != nil {
		return nil, err
	}
	t.setActionVersion(av)
	return av, nil
}

// request assembles the handler request from the task and its completed
// dependencies.
func (t *Task) request(deps *executor.Results) *handlers.Request {
	statuses := make(map[string]*handlers.Status)
	for _, dep := range t.deps {
		if dep.Kind() == string(KindResolve) {
			continue
		}
		if res, ok := deps.Get(dep.Key()); ok {
			if status, ok := res.Output.(*handlers.Status); ok {
				statuses[dep.Key()] = status
			}
		}
	}
	return &handlers.Request{
		Action:             t.action,
		Version:            t.Version(),
		DependencyStatuses: statuses,
	}
}
