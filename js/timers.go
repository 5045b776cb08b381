package js

import (
	"sync"
	"time"

	"github.com/dop251/goja"
)

// timer represents a scheduled timer (setTimeout or setInterval).
type timer struct {
	id       int
	callback goja.Callable
	args     []goja.Value
	interval time.Duration // 0 for setTimeout, >0 for setInterval
	handle   *time.Timer
}

// timerManager manages setTimeout and setInterval timers. Due timers are
// handed to schedule, which runs them on the owner's event loop.
type timerManager struct {
	timers   map[int]*timer
	nextID   int
	mu       sync.Mutex
	schedule func(func()) bool
	fire     func(id int)
	stopped  bool
}

// newTimerManager creates a new timer manager.
func newTimerManager(schedule func(func()) bool, fire func(id int)) *timerManager {
	if schedule == nil {
		schedule = func(fn func()) bool {
			fn()
			return true
		}
	}
	return &timerManager{
		timers:   make(map[int]*timer),
		nextID:   1,
		schedule: schedule,
		fire:     fire,
	}
}

// add schedules a callback. A positive interval makes it recurring.
func (tm *timerManager) add(callback goja.Callable, delay, interval time.Duration, args []goja.Value) int {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	id := tm.nextID
	tm.nextID++
	if tm.stopped {
		return id
	}

	t := &timer{
		id:       id,
		callback: callback,
		args:     args,
		interval: interval,
	}
	tm.timers[id] = t
	tm.arm(t, delay)
	return id
}

func (tm *timerManager) arm(t *timer, delay time.Duration) {
	id := t.id
	t.handle = time.AfterFunc(delay, func() {
		tm.schedule(func() { tm.fire(id) })
	})
}

// take returns the timer to run for id, re-arming intervals and dropping
// one-shot timers. It returns nil for cleared timers.
func (tm *timerManager) take(id int) *timer {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	t, ok := tm.timers[id]
	if !ok || tm.stopped {
		return nil
	}
	if t.interval > 0 {
		tm.arm(t, t.interval)
	} else {
		delete(tm.timers, id)
	}
	return t
}

// clear clears a timer by ID.
func (tm *timerManager) clear(id int) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if t, ok := tm.timers[id]; ok {
		t.handle.Stop()
		delete(tm.timers, id)
	}
}

// stop cancels every timer; later additions are ignored.
func (tm *timerManager) stop() {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	tm.stopped = true
	for id, t := range tm.timers {
		t.handle.Stop()
		delete(tm.timers, id)
	}
}

// pending returns the number of scheduled timers.
func (tm *timerManager) pending() int {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return len(tm.timers)
}

// setupTimers creates setTimeout, setInterval, clearTimeout, clearInterval.
func (w *Window) setupTimers(vm *goja.Runtime) {
	schedule := func(call goja.FunctionCall, repeat bool) goja.Value {
		callback, ok := goja.AssertFunction(call.Argument(0))
		if !ok {
			return goja.Undefined()
		}

		delay := time.Duration(call.Argument(1).ToInteger()) * time.Millisecond
		if delay < 0 {
			delay = 0
		}
		var args []goja.Value
		if len(call.Arguments) > 2 {
			args = call.Arguments[2:]
		}

		interval := time.Duration(0)
		if repeat {
			// Minimum interval of 4ms per HTML spec
			interval = max(delay, 4*time.Millisecond)
		}
		return vm.ToValue(w.timers.add(callback, delay, interval, args))
	}
	clearTimer := func(call goja.FunctionCall) goja.Value {
		w.timers.clear(int(call.Argument(0).ToInteger()))
		return goja.Undefined()
	}

	vm.Set("setTimeout", func(call goja.FunctionCall) goja.Value { return schedule(call, false) })
	vm.Set("setInterval", func(call goja.FunctionCall) goja.Value { return schedule(call, true) })
	vm.Set("clearTimeout", clearTimer)
	vm.Set("clearInterval", clearTimer)

	// requestAnimationFrame (simplified - uses 16ms timeout to approximate 60fps)
	vm.Set("requestAnimationFrame", func(call goja.FunctionCall) goja.Value {
		callback, ok := goja.AssertFunction(call.Argument(0))
		if !ok {
			return goja.Undefined()
		}
		timestamp := vm.ToValue(float64(time.Now().UnixNano()) / 1e6)
		return vm.ToValue(w.timers.add(callback, 16*time.Millisecond, 0, []goja.Value{timestamp}))
	})
	vm.Set("cancelAnimationFrame", clearTimer)
}

// fireTimer runs the callback of timer id on the runtime.
func (w *Window) fireTimer(id int) {
	_ = w.rt.run(func(vm *goja.Runtime) error {
		t := w.timers.take(id)
		if t == nil {
			return nil
		}
		_, err := t.callback(goja.Undefined(), t.args...)
		return err
	})
}
