package executor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

const (
	statePending int32 = iota
	stateRunning
	stateTerminal
)

// node is one task plus its scheduling state within a single execution.
type node struct {
	task       Task
	deps       map[string]*node
	dependents map[string]*node

	// depCount counts unmet dependencies; a node is ready at zero.
	depCount atomic.Int32
	state    atomic.Int32
	// abortOnce guarantees a node is aborted at most once even when
	// several of its dependencies fail.
	abortOnce sync.Once
}

// expand walks ResolveDependencies from the roots and builds the full
// graph, deduplicating tasks by key. Resolution failures are definition
// errors and fatal.
func expand(ctx context.Context, roots []Task) (map[string]*node, error) {
	nodes := make(map[string]*node)

	var add func(t Task) (*node, error)
	add = func(t Task) (*node, error) {
		if n, ok := nodes[t.Key()]; ok {
			return n, nil
		}
		n := &node{
			task:       t,
			deps:       make(map[string]*node),
			dependents: make(map[string]*node),
		}
		nodes[t.Key()] = n

		deps, err := t.ResolveDependencies(ctx)
		if err != nil {
			return nil, fmt.Errorf("resolving dependencies of %s: %w", t.Key(), err)
		}
		for _, dep := range deps {
			dn, err := add(dep)
			if err != nil {
				return nil, err
			}
			if dn == n {
				return nil, fmt.Errorf("task %s depends on itself", t.Key())
			}
			n.deps[dn.task.Key()] = dn
			dn.dependents[t.Key()] = n
		}
		return n, nil
	}

	for _, t := range roots {
		if _, err := add(t); err != nil {
			return nil, err
		}
	}
	return nodes, nil
}

// detectCycles runs a depth-first search with permanent/temporary marks
// and reports the first cycle found.
func detectCycles(nodes map[string]*node) error {
	permanent := make(map[string]bool)
	temporary := make(map[string]bool)

	var visit func(n *node) error
	visit = func(n *node) error {
		key := n.task.Key()
		if permanent[key] {
			return nil
		}
		if temporary[key] {
			return fmt.Errorf("dependency cycle detected involving task %q", key)
		}

		temporary[key] = true
		for _, dep := range n.deps {
			if err := visit(dep); err != nil {
				return err
			}
		}
		delete(temporary, key)
		permanent[key] = true
		return nil
	}

	for key, n := range nodes {
		if !permanent[key] {
			if err := visit(n); err != nil {
				return err
			}
		}
	}
	return nil
}
