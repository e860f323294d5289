package task

// SimpleExecutor polls every task in turn until all of them complete. Wakers are ignored, so
// pending tasks are polled again on the next round whether or not they can make progress.
type SimpleExecutor struct {
	queue []*Task
}

func NewSimpleExecutor() *SimpleExecutor {
	return &SimpleExecutor{}
}

func (e *SimpleExecutor) Spawn(task *Task) {
	e.queue = append(e.queue, task)
}

// Run returns once every spawned task has completed
func (e *SimpleExecutor) Run() {
	cx := NewContext(NoopWaker)
	for len(e.queue) > 0 {
		task := e.queue[0]
		e.queue[0] = nil
		e.queue = e.queue[1:]

		if task.Poll(cx) == Pending {
			e.queue = append(e.queue, task)
		}
	}
}
