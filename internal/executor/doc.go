// Package executor expands a set of root tasks into their full dependency
// graph and runs it with bounded concurrency.
//
// Scheduling model: every task becomes one graph node, deduplicated by its
// key. A node starts only after all of its dependencies have a terminal
// result; siblings run in any order, in parallel, up to their kind's
// concurrency limit (a weighted semaphore per kind). Within one task,
// GetStatus is always observed before Process.
//
// Failure model: a task whose GetStatus or Process fails gets an error
// result. Every transitive dependent of a failed or aborted task is marked
// aborted, never started, and carries no error of its own. With
// StopOnFailure set, tasks not yet started when the first failure lands are
// aborted as well; in-flight tasks are allowed to finish.
//
// The results map is write-once per task key per execution: a task with a
// terminal result is never re-executed within the same run.
package executor
