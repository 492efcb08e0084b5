package task

import "context"

// Dispatcher accepts tasks for durable, asynchronous execution by an
// external worker. Enqueue is fire-and-forget from the caller's view:
// callers log and continue on failure rather than aborting the operation
// that triggered the task. No ordering holds between tasks of different
// kinds; workers must tolerate at-least-once delivery.
type Dispatcher interface {
	Enqueue(ctx context.Context, t Task) error
}

// NopDispatcher discards every task. Useful for read-only tooling and tests.
type NopDispatcher struct{}

// Enqueue implements Dispatcher.
func (NopDispatcher) Enqueue(context.Context, Task) error { return nil }
