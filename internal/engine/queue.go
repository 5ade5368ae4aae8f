package engine

import "sync"

// chainTask is one unit of scheduled work: run a single chain.
type chainTask struct {
	Seq   int64
	Chain uint64
	Seed  uint64
}

// taskQueue is a FIFO queue of chain tasks.
//
// The run loop is the only consumer. The mutex keeps Len and Close safe
// for hosts that inspect or abort a run from another goroutine.
type taskQueue struct {
	mu     sync.Mutex
	tasks  []chainTask
	closed bool
}

func newTaskQueue(capacity int) *taskQueue {
	return &taskQueue{
		tasks: make([]chainTask, 0, capacity),
	}
}

// Enqueue adds a task to the back of the queue.
// Returns false if the queue is closed.
func (q *taskQueue) Enqueue(t chainTask) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.tasks = append(q.tasks, t)
	return true
}

// TryDequeue removes and returns the front task without blocking.
func (q *taskQueue) TryDequeue() (chainTask, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.tasks) == 0 {
		return chainTask{}, false
	}
	t := q.tasks[0]
	if len(q.tasks) == 1 {
		q.tasks = q.tasks[:0]
	} else {
		q.tasks = q.tasks[1:]
	}
	return t, true
}

// Len returns the number of pending tasks.
func (q *taskQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// Close drops pending tasks and rejects further ones.
func (q *taskQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	q.tasks = nil
}
