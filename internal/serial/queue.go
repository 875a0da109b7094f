// Package serial runs tasks one at a time in submission order without a
// dedicated goroutine.
package serial

import (
	"fmt"
	"runtime"
	"sync"

	"go.uber.org/zap"
)

// Queue is a trampoline: the first goroutine to Flush drains the queue, and a
// Flush that finds the queue already draining returns at once. A task may
// therefore Push more tasks without running them re-entrantly.
type Queue struct {
	name    string
	mu      sync.Mutex
	tasks   []func()
	running bool
}

// New returns an empty queue. name only appears in logs.
func New(name string) *Queue {
	return &Queue{name: name}
}

// Push appends f without running it.
func (q *Queue) Push(f func()) {
	q.mu.Lock()
	q.tasks = append(q.tasks, f)
	q.mu.Unlock()
}

// Flush runs queued tasks until the queue is empty, unless another call is
// already doing so.
func (q *Queue) Flush() {
	q.mu.Lock()
	if q.running {
		q.mu.Unlock()
		return
	}
	q.running = true

	for len(q.tasks) > 0 {
		f := q.tasks[0]
		q.tasks[0] = nil
		q.tasks = q.tasks[1:]
		q.mu.Unlock()

		q.run(f)

		q.mu.Lock()
	}
	q.tasks = nil
	q.running = false
	q.mu.Unlock()
}

// Do pushes f and flushes.
func (q *Queue) Do(f func()) {
	q.Push(f)
	q.Flush()
}

// Len returns the number of tasks waiting to run.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

func (q *Queue) run(f func()) {
	defer func() {
		if err := recover(); err != nil {
			const size = 64 << 10
			buf := make([]byte, size)
			buf = buf[:runtime.Stack(buf, false)]
			zap.L().Error(fmt.Sprintf("%s task panic: %v, stack:\n %s", q.name, err, buf))
		}
	}()
	f()
}
