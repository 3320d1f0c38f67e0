package executor

import (
	"fmt"
	"sync"
	"time"
)

// Result is the terminal outcome record for one task within one execution.
// When Aborted is false, exactly one of Output (success) or Error (own
// failure) is meaningful; when Aborted is true the task never executed and
// both are absent.
type Result struct {
	Key         string
	Name        string
	Kind        string
	Version     string
	StartedAt   time.Time
	CompletedAt time.Time
	Aborted     bool
	Error       error
	// Skipped means GetStatus already satisfied the request, so Process
	// was not run; Output holds the observed status.
	Skipped bool
	Output  any
}

// Results is the shared, write-once-per-key map of task outcomes for one
// graph execution.
type Results struct {
	mu sync.RWMutex
	m  map[string]*Result
}

func newResults() *Results {
	return &Results{m: make(map[string]*Result)}
}

// set records a terminal result. Writing a key twice is a programmer
// error: a task with a terminal result is never re-executed.
func (r *Results) set(res *Result) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.m[res.Key]; exists {
		panic(fmt.Sprintf("duplicate result for task %q", res.Key))
	}
	r.m[res.Key] = res
}

// Get returns the result for a task key, if terminal.
func (r *Results) Get(key string) (*Result, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	res, ok := r.m[key]
	return res, ok
}

// All returns a copy of the results map.
func (r *Results) All() map[string]*Result {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]*Result, len(r.m))
	for k, v := range r.m {
		out[k] = v
	}
	return out
}

// Failed returns the results carrying their own execution error.
func (r *Results) Failed() []*Result {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Result
	for _, res := range r.m {
		if res.Error != nil {
			out = append(out, res)
		}
	}
	return out
}

// Aborted returns the results of tasks skipped because a dependency
// failed.
func (r *Results) Aborted() []*Result {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Result
	for _, res := range r.m {
		if res.Aborted {
			out = append(out, res)
		}
	}
	return out
}
