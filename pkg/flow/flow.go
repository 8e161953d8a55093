// Package flow implements the Processor's mutable task cursor: a deque of
// pipeline tasks from which the interpreter takes from the front. Tasks can
// be pushed at the front, though the Processor runs each nested task set in
// a flow of its own.
package flow

import "github.com/SouthPatron/reasonchip/pkg/pipeline"

// Flow is a mutable deque of tasks representing one pipeline (or task set)
// execution's remaining work. It is born when a Processor begins a pipeline
// or a TaskSet, and destroyed when drained or unwound by Return/Terminate.
//
// A Flow is not safe for concurrent use; it is exclusively owned by the
// Processor goroutine executing it.
type Flow struct {
	tasks []*pipeline.Task
}

// New creates a Flow seeded with the given tasks, in order.
func New(tasks []*pipeline.Task) *Flow {
	f := &Flow{tasks: make([]*pipeline.Task, len(tasks))}
	copy(f.tasks, tasks)
	return f
}

// Empty reports whether the flow has been fully drained.
func (f *Flow) Empty() bool {
	return len(f.tasks) == 0
}

// Len returns the number of tasks remaining in the flow.
func (f *Flow) Len() int {
	return len(f.tasks)
}

// Take removes and returns the task at the front of the flow. It returns
// false if the flow is empty.
func (f *Flow) Take() (*pipeline.Task, bool) {
	if len(f.tasks) == 0 {
		return nil, false
	}
	t := f.tasks[0]
	f.tasks = f.tasks[1:]
	return t, true
}

// PushFront prepends tasks to the flow, preserving their relative order.
// The Processor does not call it: a TaskSet runs its body in a flow of its own.
func (f *Flow) PushFront(tasks []*pipeline.Task) {
	if len(tasks) == 0 {
		return
	}
	merged := make([]*pipeline.Task, 0, len(tasks)+len(f.tasks))
	merged = append(merged, tasks...)
	merged = append(merged, f.tasks...)
	f.tasks = merged
}

// Clear drops all remaining tasks, leaving the flow empty. The Processor
// does not call it: a Branch replaces the current flow with a new one.
func (f *Flow) Clear() {
	f.tasks = nil
}
