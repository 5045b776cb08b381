package js

import "sync"

// callbackQueue holds Go callbacks raised by scripts. They are drained once
// the runtime lock is released so that host handlers never run while a
// script is on the stack.
type callbackQueue struct {
	mu    sync.Mutex
	tasks []func()
}

func (q *callbackQueue) push(fn func()) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, fn)
}

// drain runs queued callbacks in order, including the ones queued while
// draining.
func (q *callbackQueue) drain() {
	for {
		q.mu.Lock()
		if len(q.tasks) == 0 {
			q.mu.Unlock()
			return
		}
		fn := q.tasks[0]
		q.tasks = q.tasks[1:]
		q.mu.Unlock()

		fn()
	}
}
