package task

import (
	"fmt"
	"sync/atomic"
)

// TaskID identifies a task. IDs are unique for the lifetime of the kernel and never reused.
type TaskID uint64

func (id TaskID) String() string {
	return fmt.Sprintf("TaskID(%d)", uint64(id))
}

var nextTaskID atomic.Uint64

// NewTaskID returns an id that has never been returned before
func NewTaskID() TaskID {
	return TaskID(nextTaskID.Add(1) - 1)
}

// Task is a Future with an identity. A task is polled by exactly one executor, and never by two
// callers at the same time.
type Task struct {
	id      TaskID
	future  Future
	polling atomic.Bool
	done    bool
}

// New wraps future in a task with a fresh id
func New(future Future) *Task {
	return &Task{
		id:     NewTaskID(),
		future: future,
	}
}

func (t *Task) ID() TaskID { return t.id }

// Done returns true once the task's future has completed
func (t *Task) Done() bool { return t.done }

// Poll polls the task's future. Polling a task from inside its own Poll, or from two goroutines at
// once, panics. A completed task stays Ready and its future is not polled again.
func (t *Task) Poll(cx *Context) Poll {
	if !t.polling.CompareAndSwap(false, true) {
		panic(fmt.Sprintf("%s polled while a poll was already in flight", t.id))
	}
	defer t.polling.Store(false)

	if t.done {
		return Ready
	}

	if t.future.Poll(cx) == Ready {
		t.done = true
		t.future = nil
		return Ready
	}

	return Pending
}

// Cancel drops the task's future without completing it
func (t *Task) Cancel() {
	if t.done {
		return
	}

	if canceler, ok := t.future.(Canceler); ok {
		canceler.Cancel()
	}
	t.done = true
	t.future = nil
}
