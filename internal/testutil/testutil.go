// Package testutil holds shared helpers for exercising the engine in
// tests: a thread-safe output buffer and an instrumented action module.
package testutil

import (
	"bytes"
	"context"
	"sync"

	"github.com/vk/forgegrid/internal/config"
	"github.com/vk/forgegrid/internal/handlers"
)

// SafeBuffer is a thread-safe buffer for capturing output in tests.
type SafeBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

// Write implements io.Writer.
func (b *SafeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

// String returns the buffer's contents.
func (b *SafeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// RecorderModule registers a "recorder" action type for every kind and
// records the order in which actions are processed. Actions listed in
// Ready report an already-satisfied status.
type RecorderModule struct {
	mu        sync.Mutex
	processed []string

	// Ready holds "kind.name" references whose GetStatus reports ready.
	Ready map[string]bool
	// Fail holds references whose Process returns an error.
	Fail map[string]error
}

// NewRecorderModule returns an empty recorder.
func NewRecorderModule() *RecorderModule {
	return &RecorderModule{
		Ready: make(map[string]bool),
		Fail:  make(map[string]error),
	}
}

// Register implements handlers.Module.
func (m *RecorderModule) Register(r *handlers.Registry) {
	h := &handlers.Handler{
		GetStatus: func(ctx context.Context, req *handlers.Request) (*handlers.Status, error) {
			m.mu.Lock()
			defer m.mu.Unlock()
			if m.Ready[req.Action.Ref().String()] {
				return &handlers.Status{State: handlers.StateReady}, nil
			}
			return nil, nil
		},
		Process: func(ctx context.Context, req *handlers.Request) (*handlers.Status, error) {
			ref := req.Action.Ref().String()
			m.mu.Lock()
			err := m.Fail[ref]
			if err == nil {
				m.processed = append(m.processed, ref)
			}
			m.mu.Unlock()
			if err != nil {
				return nil, err
			}
			return &handlers.Status{
				State:   handlers.StateReady,
				Outputs: map[string]string{"version": req.Version},
			}, nil
		},
	}
	for _, kind := range config.Kinds {
		r.Register(kind, "recorder", h)
	}
}

// Processed returns the processed action references in completion order.
func (m *RecorderModule) Processed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string{}, m.processed...)
}
