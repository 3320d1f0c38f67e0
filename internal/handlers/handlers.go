// Package handlers holds the plugin-handler contract and registry. A
// handler knows how to inspect and perform one action type (e.g. "exec");
// the executor calls it through Task.GetStatus and Task.Process and never
// sees the technology behind it.
package handlers

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vk/forgegrid/internal/config"
)

// State is the closed set of states a handler can report.
type State string

const (
	StateReady    State = "ready"
	StateNotReady State = "not-ready"
	StateUnknown  State = "unknown"
	StateFailed   State = "failed"
)

// Status is what a handler reports about (or returns after performing) an
// action.
type Status struct {
	State   State
	Detail  string
	Outputs map[string]string
}

// Request carries everything a handler needs for one call: the action, its
// computed version, and the statuses of its already-completed
// dependencies keyed by reference.
type Request struct {
	Action  *config.Action
	Version string
	// DependencyStatuses maps "kind.name" to the dependency's terminal
	// status.
	DependencyStatuses map[string]*Status
}

// Handler implements one action type. GetStatus inspects current
// real-world state without mutating it and may return nil when the state
// is indeterminate; Process performs the action.
type Handler struct {
	GetStatus func(ctx context.Context, req *Request) (*Status, error)
	Process   func(ctx context.Context, req *Request) (*Status, error)
}

// Module is the interface built-in modules implement to register their
// handlers.
type Module interface {
	Register(r *Registry)
}

// Registry maps (action kind, action type) to a handler.
type Registry struct {
	all map[string]*Handler
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{all: make(map[string]*Handler)}
}

func handlerKey(kind config.Kind, actionType string) string {
	return string(kind) + "." + actionType
}

// Register adds a handler for the given kind and action type. Duplicate
// registration is a programmer error.
func (r *Registry) Register(kind config.Kind, actionType string, h *Handler) {
	key := handlerKey(kind, actionType)
	if _, exists := r.all[key]; exists {
		panic(fmt.Sprintf("handler for '%s' already registered", key))
	}
	slog.Debug("Registering action handler.", "key", key)
	r.all[key] = h
}

// Lookup finds the handler for an action, or an error naming the missing
// kind/type pair.
func (r *Registry) Lookup(action *config.Action) (*Handler, error) {
	h, ok := r.all[handlerKey(action.Kind, action.Type)]
	if !ok {
		return nil, fmt.Errorf("no handler registered for %s action type %q", action.Kind, action.Type)
	}
	return h, nil
}
