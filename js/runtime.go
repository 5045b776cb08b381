// Package js provides JavaScript execution for the headless DOM engines.
// It uses the goja JavaScript engine (pure Go ES5.1+ implementation) and
// exposes a browser-like Window bound to a dom.Document.
package js

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/dop251/goja"
)

// ErrClosed is returned by windows that were discarded.
var ErrClosed = errors.New("js: window closed")

// Runtime wraps a goja JavaScript runtime. All script execution goes
// through run, which holds the runtime lock; Go callbacks deferred while a
// script executes are invoked once the lock has been released.
type Runtime struct {
	vm       *goja.Runtime
	mu       sync.Mutex
	deferred callbackQueue
	logger   *slog.Logger
	errors   []error
	onError  func(error)
	closed   bool
}

// NewRuntime creates a new JavaScript runtime.
func NewRuntime(logger *slog.Logger) *Runtime {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Runtime{
		vm:     goja.New(),
		logger: logger,
	}
	r.setupConsole()
	return r
}

// SetOnError sets a callback for uncaught script errors. It runs outside
// the runtime lock.
func (r *Runtime) SetOnError(handler func(error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onError = handler
}

// Errors returns all errors that occurred during execution.
func (r *Runtime) Errors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error{}, r.errors...)
}

// uncaught records err, raised while the runtime lock is held, and hands
// it to the error callback once the lock is released.
func (r *Runtime) uncaught(err error) {
	r.errors = append(r.errors, err)
	r.logger.Debug("js: uncaught error", "error", err)
	if fn := r.onError; fn != nil {
		r.Defer(func() { fn(err) })
	}
}

// Defer queues fn to run after the current script returns. It must only be
// called from Go functions invoked by scripts.
func (r *Runtime) Defer(fn func()) {
	r.deferred.push(fn)
}

// run executes fn with exclusive access to the VM, recovering panics from
// the goja parser/runtime, then drains deferred callbacks.
func (r *Runtime) run(fn func(vm *goja.Runtime) error) (err error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	func() {
		defer func() {
			if p := recover(); p != nil {
				err = fmt.Errorf("script execution panic: %v", p)
			}
		}()
		err = fn(r.vm)
	}()
	onError := r.onError
	if err != nil {
		r.errors = append(r.errors, err)
	}
	r.mu.Unlock()

	if err != nil {
		r.logger.Debug("js: script error", "error", err)
		if onError != nil {
			onError(err)
		}
	}
	r.deferred.drain()
	return err
}

// Execute runs JavaScript code and returns the exported result.
func (r *Runtime) Execute(code string) (result any, err error) {
	err = r.run(func(vm *goja.Runtime) error {
		v, err := vm.RunString(code)
		if err != nil {
			return err
		}
		result = export(v)
		return nil
	})
	return result, err
}

// runScript runs code from a script element, compiled in sloppy mode.
func runScript(vm *goja.Runtime, code, src string) error {
	program, err := goja.Compile(src, code, false)
	if err != nil {
		return err
	}
	_, err = vm.RunProgram(program)
	return err
}

func (r *Runtime) close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
}

func export(v goja.Value) any {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	return v.Export()
}

// setupConsole routes console output to the logger.
func (r *Runtime) setupConsole() {
	console := r.vm.NewObject()
	levels := map[string]slog.Level{
		"log":   slog.LevelInfo,
		"info":  slog.LevelInfo,
		"debug": slog.LevelDebug,
		"trace": slog.LevelDebug,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	}
	for name, level := range levels {
		level := level
		console.Set(name, func(call goja.FunctionCall) goja.Value {
			r.logger.Log(context.Background(), level, formatArgs(call.Arguments), "source", "console")
			return goja.Undefined()
		})
	}
	console.Set("assert", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) == 0 || !call.Arguments[0].ToBoolean() {
			msg := "Assertion failed"
			if len(call.Arguments) > 1 {
				msg += ": " + formatArgs(call.Arguments[1:])
			}
			r.logger.Error(msg, "source", "console")
		}
		return goja.Undefined()
	})
	r.vm.Set("console", console)
}

// formatArgs formats function call arguments for console output.
func formatArgs(args []goja.Value) string {
	parts := make([]string, len(args))
	for i, arg := range args {
		parts[i] = formatValue(arg)
	}
	return strings.Join(parts, " ")
}

// formatValue formats a single value for output.
func formatValue(v goja.Value) string {
	if v == nil || goja.IsUndefined(v) {
		return "undefined"
	}
	if goja.IsNull(v) {
		return "null"
	}
	return v.String()
}
