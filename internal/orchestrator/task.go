package orchestrator

import (
	"context"
	"errors"
)

// ErrStopTask is returned by a Task that should not run again
var ErrStopTask = errors.New("stop task")

type Task interface {
	// Run does one invocation. It is never called concurrently with itself.
	Run(ctx context.Context) error

	// Name identifies the task in the scheduler and in logs
	Name() string
}

type funcTask struct {
	name string
	fn   func(ctx context.Context) error
}

// NewTask wraps fn as a Task
func NewTask(name string, fn func(ctx context.Context) error) Task {
	return &funcTask{name: name, fn: fn}
}

func (t *funcTask) Run(ctx context.Context) error {
	return t.fn(ctx)
}

func (t *funcTask) Name() string {
	return t.name
}
