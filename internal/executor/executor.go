package executor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/vk/forgegrid/internal/ctxlog"
)

// Task is one schedulable unit of work. Identity for scheduling and for
// the results map is Key(); UID() disambiguates instances for tracing and
// is never used for equality.
type Task interface {
	Key() string
	UID() string
	Name() string
	Kind() string
	// ConcurrencyLimit bounds how many tasks of this exact kind run
	// simultaneously.
	ConcurrencyLimit() int
	// Version returns the task's computed version string, or "" if not
	// yet known.
	Version() string
	// ResolveDependencies returns the tasks this task depends on. It is
	// memoized by the implementation; a failure here is a definition
	// error.
	ResolveDependencies(ctx context.Context) ([]Task, error)
	// GetStatus inspects current real-world state without mutating it.
	// satisfied reports whether the status already fulfills the request,
	// in which case Process is skipped.
	GetStatus(ctx context.Context, deps *Results) (status any, satisfied bool, err error)
	// Process performs the actual work and may mutate real-world state.
	Process(ctx context.Context, deps *Results) (any, error)
}

// Options configures one graph execution.
type Options struct {
	// StopOnFailure aborts all not-yet-started tasks once any task fails.
	// In-flight tasks are allowed to finish.
	StopOnFailure bool
}

type executor struct {
	results   *Results
	readyChan chan *node
	sems      map[string]*semaphore.Weighted
	wg        sync.WaitGroup
	stopped   atomic.Bool
	opts      Options
}

// Run expands the dependency graph from the root tasks and executes it.
// The returned error reflects definition problems (malformed graph) only;
// execution errors and aborts live in the results map, so partial success
// stays representable.
func Run(ctx context.Context, roots []Task, opts Options) (*Results, error) {
	logger := ctxlog.FromContext(ctx)

	nodes, err := expand(ctx, roots)
	if err != nil {
		return nil, err
	}
	if err := detectCycles(nodes); err != nil {
		return nil, err
	}
	logger.Debug("Task graph expanded.", "taskCount", len(nodes))

	e := &executor{
		results:   newResults(),
		readyChan: make(chan *node, len(nodes)),
		sems:      make(map[string]*semaphore.Weighted),
		opts:      opts,
	}
	for _, n := range nodes {
		if _, ok := e.sems[n.task.Kind()]; !ok {
			e.sems[n.task.Kind()] = semaphore.NewWeighted(int64(n.task.ConcurrencyLimit()))
		}
	}

	e.wg.Add(len(nodes))
	for _, n := range nodes {
		n.depCount.Store(int32(len(n.deps)))
		if len(n.deps) == 0 {
			e.readyChan <- n
		}
	}

	dispatchDone := make(chan struct{})
	go func() {
		defer close(dispatchDone)
		for n := range e.readyChan {
			go e.runNode(ctx, n)
		}
	}()

	e.wg.Wait()
	close(e.readyChan)
	<-dispatchDone

	logger.Debug("Graph execution finished.",
		"completed", len(nodes)-len(e.results.Failed())-len(e.results.Aborted()),
		"failed", len(e.results.Failed()),
		"aborted", len(e.results.Aborted()))
	return e.results, nil
}

// runNode drives one task from ready to terminal.
func (e *executor) runNode(ctx context.Context, n *node) {
	logger := ctxlog.FromContext(ctx).With("task", n.task.Key(), "uid", n.task.UID())

	if e.stopped.Load() || ctx.Err() != nil {
		e.abort(n)
		return
	}
	if !n.state.CompareAndSwap(statePending, stateRunning) {
		// Aborted while queued.
		return
	}

	sem := e.sems[n.task.Kind()]
	if err := sem.Acquire(ctx, 1); err != nil {
		n.state.Store(statePending)
		e.abort(n)
		return
	}
	defer sem.Release(1)

	logger.Debug("Task started.")
	res := &Result{
		Key:       n.task.Key(),
		Name:      n.task.Name(),
		Kind:      n.task.Kind(),
		StartedAt: time.Now(),
	}

	status, satisfied, err := n.task.GetStatus(ctx, e.results)
	var output any
	switch {
	case err != nil:
		// fall through to completion with the error
	case satisfied:
		logger.Debug("Task status already satisfied, skipping process.")
		output = status
		res.Skipped = true
	default:
		output, err = n.task.Process(ctx, e.results)
	}

	res.CompletedAt = time.Now()
	res.Version = n.task.Version()

	if err != nil {
		logger.Error("Task failed.", "error", err)
		res.Error = err
		e.complete(n, res, true)
		return
	}

	logger.Debug("Task completed.", "version", res.Version, "skipped", res.Skipped)
	res.Output = output
	e.complete(n, res, false)
}

// complete records a terminal result and either unlocks dependents or
// cascades an abort through them.
func (e *executor) complete(n *node, res *Result, failed bool) {
	n.state.Store(stateTerminal)
	e.results.set(res)
	e.wg.Done()

	if failed {
		if e.opts.StopOnFailure {
			e.stopped.Store(true)
		}
		e.abortDependents(n)
		return
	}

	for _, dep := range n.dependents {
		if dep.depCount.Add(-1) == 0 {
			e.readyChan <- dep
		}
	}
}

// abort marks a never-started node as aborted and cascades to its
// dependents. Aborted results carry no error and no output: the task's
// dependency failed, the task itself did not.
func (e *executor) abort(n *node) {
	first := false
	n.abortOnce.Do(func() {
		n.state.Store(stateTerminal)
		e.results.set(&Result{
			Key:     n.task.Key(),
			Name:    n.task.Name(),
			Kind:    n.task.Kind(),
			Aborted: true,
		})
		e.wg.Done()
		first = true
	})
	if first {
		e.abortDependents(n)
	}
}

func (e *executor) abortDependents(n *node) {
	for _, dep := range n.dependents {
		e.abort(dep)
	}
}
