package js

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/dop251/goja"
	"golang.org/x/net/html"

	"github.com/chrisuehlinger/ersatz/dom"
)

// DefaultUserAgent is reported by navigator.userAgent when none is set.
const DefaultUserAgent = "Mozilla/5.0 (ersatz) Ersatz/1.0"

// ErrScriptingDisabled is returned when evaluating code in a window created
// with scripting disabled.
var ErrScriptingDisabled = errors.New("js: scripting is disabled")

// Options configures a Window.
type Options struct {
	// URL is the document location. Empty means about:blank.
	URL            string
	UserAgent      string
	ScriptsEnabled bool
	Logger         *slog.Logger
	// Schedule runs timer callbacks, typically by posting them to the
	// owner's event loop. Nil runs them on the timer goroutine.
	Schedule func(func()) bool
	// LoadScript returns the source of an external script. Nil skips
	// external scripts.
	LoadScript func(url string) (string, error)
	// Parent receives window.parent.postMessage calls. Nil makes the
	// window its own parent.
	Parent func(data any, targetOrigin string)
	// Navigate is called when the page navigates away, through a location
	// assignment or an activated link.
	Navigate func(url string)
	// Open is called for window.open and links opening a new browsing
	// context.
	Open func(url string)
	// Storage backs localStorage. Nil gives the window a private area.
	Storage *Storage
	// OnError receives the errors page scripts and listeners leave
	// uncaught, outside the runtime lock.
	OnError func(error)
}

type goListener struct {
	id int
	fn func()
}

// Window is a browsing context: a goja runtime bound to a dom.Document.
// Its methods are safe for concurrent use; they serialize on the runtime.
type Window struct {
	opts   Options
	rt     *Runtime
	logger *slog.Logger
	timers *timerManager

	// Fields below are guarded by the runtime lock.
	doc        *dom.Document
	url        string
	readyState string
	global     *goja.Object
	document   *goja.Object
	location   *goja.Object
	objects    map[*html.Node]*goja.Object
	nodes      map[*goja.Object]*html.Node
	targets    map[*html.Node]*EventTarget
	winTarget  *EventTarget
	docTarget  *EventTarget
	executed   map[*html.Node]bool

	listenersMu sync.Mutex
	listeners   map[string][]goListener
	nextID      int
}

// NewWindow creates a window holding an empty document.
func NewWindow(opts Options) *Window {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.URL == "" {
		opts.URL = dom.BlankURL
	}
	doc, _ := dom.Parse("", opts.URL)
	w := &Window{
		opts:       opts,
		rt:         NewRuntime(opts.Logger),
		logger:     opts.Logger,
		doc:        doc,
		url:        opts.URL,
		readyState: "loading",
		objects:    make(map[*html.Node]*goja.Object),
		nodes:      make(map[*goja.Object]*html.Node),
		targets:    make(map[*html.Node]*EventTarget),
		winTarget:  newEventTarget(),
		docTarget:  newEventTarget(),
		executed:   make(map[*html.Node]bool),
		listeners:  make(map[string][]goListener),
	}
	w.rt.SetOnError(opts.OnError)
	w.timers = newTimerManager(opts.Schedule, w.fireTimer)
	_ = w.rt.run(func(vm *goja.Runtime) error {
		w.setupGlobals(vm)
		return nil
	})
	return w
}

// ScriptsEnabled reports whether page scripts run in this window.
func (w *Window) ScriptsEnabled() bool {
	return w.opts.ScriptsEnabled
}

// Document returns the current document.
func (w *Window) Document() *dom.Document {
	w.rt.mu.Lock()
	defer w.rt.mu.Unlock()
	return w.doc
}

// URL returns location.href.
func (w *Window) URL() string {
	w.rt.mu.Lock()
	defer w.rt.mu.Unlock()
	return w.url
}

// Title returns document.title.
func (w *Window) Title() string {
	w.rt.mu.Lock()
	defer w.rt.mu.Unlock()
	return w.doc.Title()
}

// ReadyState returns document.readyState.
func (w *Window) ReadyState() string {
	w.rt.mu.Lock()
	defer w.rt.mu.Unlock()
	return w.readyState
}

// Errors returns the uncaught script errors seen so far.
func (w *Window) Errors() []error {
	return w.rt.Errors()
}

// PendingTimers returns the number of scheduled timers.
func (w *Window) PendingTimers() int {
	return w.timers.pending()
}

// Do runs fn with exclusive access to the window's document. fn must not
// call other Window methods.
func (w *Window) Do(fn func(doc *dom.Document)) error {
	return w.rt.run(func(*goja.Runtime) error {
		fn(w.doc)
		return nil
	})
}

// Get returns the exported value of a global property, or nil.
func (w *Window) Get(name string) any {
	var v any
	_ = w.rt.run(func(vm *goja.Runtime) error {
		v = export(vm.Get(name))
		return nil
	})
	return v
}

// Expose installs fn at the dotted global path (for example
// "ReactNativeWebView.postMessage"), creating intermediate objects. fn is
// called with the exported arguments after the calling script returns.
func (w *Window) Expose(path string, fn func(args ...any)) error {
	return w.rt.run(func(vm *goja.Runtime) error {
		parts := strings.Split(path, ".")
		obj := vm.GlobalObject()
		for _, p := range parts[:len(parts)-1] {
			next, ok := obj.Get(p).(*goja.Object)
			if !ok {
				next = vm.NewObject()
				if err := obj.Set(p, next); err != nil {
					return err
				}
			}
			obj = next
		}
		return obj.Set(parts[len(parts)-1], func(call goja.FunctionCall) goja.Value {
			args := make([]any, len(call.Arguments))
			for i, a := range call.Arguments {
				args[i] = export(a)
			}
			w.rt.Defer(func() { fn(args...) })
			return goja.Undefined()
		})
	})
}

// Eval evaluates code in the page context and returns the exported result.
func (w *Window) Eval(code string) (any, error) {
	if !w.opts.ScriptsEnabled {
		return nil, ErrScriptingDisabled
	}
	return w.rt.Execute(code)
}

// InjectScript appends a script element holding code to the body, the way
// a host page injects code into a frame, and runs it when scripting is
// enabled.
func (w *Window) InjectScript(code string) error {
	return w.rt.run(func(vm *goja.Runtime) error {
		script := w.doc.CreateElement("script")
		script.SetTextContent(code)
		parent := w.doc.Body()
		if parent == nil {
			parent = w.doc.DocumentElement()
		}
		if parent == nil {
			return fmt.Errorf("js: document has no element to host the script")
		}
		parent.AppendChild(script)
		w.executed[script.Node()] = true
		if !w.opts.ScriptsEnabled {
			return nil
		}
		return runScript(vm, code, "injected")
	})
}

// Parse replaces the document with src, then runs its scripts in document
// order when scripting is enabled. Script errors are reported, not
// returned.
func (w *Window) Parse(src string) error {
	doc, err := dom.Parse(src, w.url)
	if err != nil {
		return err
	}
	return w.rt.run(func(vm *goja.Runtime) error {
		w.doc = doc
		w.readyState = "loading"
		clear(w.objects)
		clear(w.nodes)
		clear(w.targets)
		clear(w.executed)

		for _, script := range doc.GetElementsByTagName("script") {
			w.runScriptElement(vm, script)
		}
		w.readyState = "interactive"
		return nil
	})
}

// ContentLoaded dispatches DOMContentLoaded to the page, then to the Go
// listeners.
func (w *Window) ContentLoaded() {
	_ = w.rt.run(func(vm *goja.Runtime) error {
		event := newEvent(vm, "DOMContentLoaded", eventInit{bubbles: true, detail: goja.Null()})
		w.dispatch(vm, event, w.doc.Root())
		return nil
	})
	w.emit("DOMContentLoaded")
}

// FinishLoad marks the document complete and dispatches load to the page,
// then to the Go listeners.
func (w *Window) FinishLoad() {
	_ = w.rt.run(func(vm *goja.Runtime) error {
		w.readyState = "complete"
		w.fireWindowEvent("load", eventInit{})
		return nil
	})
	w.emit("load")
}

// Click activates el as a user click would: listeners run, then links are
// followed unless the default action was prevented.
func (w *Window) Click(el *dom.Element) error {
	return w.rt.run(func(vm *goja.Runtime) error {
		w.activate(vm, el)
		return nil
	})
}

// AddEventListener registers a Go listener for window events (currently
// DOMContentLoaded and load). Go listeners run after the page listeners,
// outside the runtime lock. The returned function removes the listener.
func (w *Window) AddEventListener(eventType string, fn func()) (remove func()) {
	w.listenersMu.Lock()
	defer w.listenersMu.Unlock()
	w.nextID++
	id := w.nextID
	w.listeners[eventType] = append(w.listeners[eventType], goListener{id: id, fn: fn})
	return func() {
		w.listenersMu.Lock()
		defer w.listenersMu.Unlock()
		ls := w.listeners[eventType]
		for i, l := range ls {
			if l.id == id {
				w.listeners[eventType] = append(ls[:i:i], ls[i+1:]...)
				return
			}
		}
	}
}

func (w *Window) emit(eventType string) {
	w.listenersMu.Lock()
	ls := append([]goListener(nil), w.listeners[eventType]...)
	w.listenersMu.Unlock()
	for _, l := range ls {
		l.fn()
	}
}

// Close stops the window's timers and rejects further script execution.
func (w *Window) Close() {
	w.timers.stop()
	w.rt.close()
}

// report records an error raised by a listener or a nested script while
// the runtime lock is held.
func (w *Window) report(err error) {
	w.rt.uncaught(err)
}

// runScriptElement executes a script element once. Called with the runtime
// lock held.
func (w *Window) runScriptElement(vm *goja.Runtime, script *dom.Element) {
	n := script.Node()
	if w.executed[n] {
		return
	}
	w.executed[n] = true
	if !w.opts.ScriptsEnabled || !isJavaScript(script.GetAttribute("type")) {
		return
	}

	code := script.TextContent()
	name := w.url
	if src, ok := script.LookupAttribute("src"); ok {
		if w.opts.LoadScript == nil {
			w.logger.Debug("js: external script skipped", "src", src)
			return
		}
		name = w.doc.ResolveURL(src)
		loaded, err := w.opts.LoadScript(name)
		if err != nil {
			w.logger.Warn("js: failed to load script", "src", name, "error", err)
			return
		}
		code = loaded
	}
	if err := runScript(vm, code, name); err != nil {
		w.report(err)
	}
}

func isJavaScript(typ string) bool {
	switch strings.ToLower(strings.TrimSpace(typ)) {
	case "", "text/javascript", "application/javascript", "module", "text/ecmascript", "application/ecmascript":
		return true
	}
	return false
}

// scriptsInserted runs the scripts of a subtree just connected to the
// document. Called with the runtime lock held.
func (w *Window) scriptsInserted(vm *goja.Runtime, n *html.Node) {
	el := w.doc.Wrap(n)
	if el == nil || !el.Connected() {
		return
	}
	if el.Is("script") {
		w.runScriptElement(vm, el)
		return
	}
	for _, s := range el.GetElementsByTagName("script") {
		w.runScriptElement(vm, s)
	}
}
