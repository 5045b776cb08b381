// Package loop provides the single-goroutine task queue that serializes all
// DOM construction, script execution and handler dispatch of one WebView.
package loop

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Loop drains posted tasks in FIFO order on a dedicated goroutine.
type Loop struct {
	logger *slog.Logger

	mu     sync.Mutex
	cond   *sync.Cond
	tasks  []func()
	closed bool
	done   chan struct{}
}

// Option configures a Loop.
type Option func(*Loop)

// WithLogger sets the logger used to report recovered task panics.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loop) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// New starts a loop.
func New(opts ...Option) *Loop {
	l := &Loop{
		logger: slog.Default(),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.cond = sync.NewCond(&l.mu)
	go l.run()
	return l
}

// Post queues fn to run after every task already queued. It never blocks
// and reports false once the loop is closed.
func (l *Loop) Post(fn func()) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return false
	}
	l.tasks = append(l.tasks, fn)
	l.cond.Signal()
	return true
}

// Sync waits until every task posted before the call has run.
func (l *Loop) Sync(ctx context.Context) error {
	reached := make(chan struct{})
	if !l.Post(func() { close(reached) }) {
		return fmt.Errorf("loop: closed")
	}
	select {
	case <-reached:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the loop after the running task. Queued tasks are dropped.
func (l *Loop) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	l.tasks = nil
	l.cond.Signal()
	l.mu.Unlock()
	<-l.done
}

func (l *Loop) run() {
	defer close(l.done)
	for {
		l.mu.Lock()
		for len(l.tasks) == 0 && !l.closed {
			l.cond.Wait()
		}
		if l.closed {
			l.mu.Unlock()
			return
		}
		t := l.tasks[0]
		l.tasks[0] = nil
		l.tasks = l.tasks[1:]
		l.mu.Unlock()

		l.runTask(t)
	}
}

func (l *Loop) runTask(t func()) {
	defer func() {
		if p := recover(); p != nil {
			l.logger.Error("loop: task panicked", "panic", fmt.Sprint(p))
		}
	}()
	t()
}
