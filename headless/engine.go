// Package headless implements the in-process DOM engine: every load cycle
// parses the resolved source into a fresh js.Window, runs the page and
// injected scripts, and reports the load lifecycle to the WebView handlers.
package headless

import (
	"log/slog"
	"sync"

	"github.com/chrisuehlinger/ersatz/backend"
	"github.com/chrisuehlinger/ersatz/dom"
	"github.com/chrisuehlinger/ersatz/js"
	"github.com/chrisuehlinger/ersatz/lifecycle"
	"github.com/chrisuehlinger/ersatz/loop"
	"github.com/chrisuehlinger/ersatz/source"
)

// State is the load state of a cycle.
type State string

const (
	Loading State = "loading"
	Loaded  State = "loaded"
)

// Options configures an Engine.
type Options struct {
	Loop   *loop.Loop
	Logger *slog.Logger
	// Storage backs localStorage for every cycle of the engine.
	Storage *js.Storage
	// LoadScript fetches external scripts. Nil skips them.
	LoadScript func(url string) (string, error)
}

// Engine renders one resolved source. It implements backend.Handle.
type Engine struct {
	src    source.Normalized
	loop   *loop.Loop
	logger *slog.Logger
	store  *js.Storage
	fetch  func(string) (string, error)

	mu     sync.Mutex
	props  backend.Props
	cycle  int
	state  State
	window *js.Window
	closed bool
}

// NewEngine creates an engine for src and builds its first load cycle. It
// must be called on the loop: the page scripts run and the Start
// transition is dispatched before it returns.
func NewEngine(src source.Normalized, props backend.Props, opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Storage == nil {
		opts.Storage = js.NewStorage()
	}
	e := &Engine{
		src:    src,
		loop:   opts.Loop,
		logger: opts.Logger,
		store:  opts.Storage,
		fetch:  opts.LoadScript,
		props:  props,
	}
	e.build(0)
	return e
}

func (e *Engine) handlers() lifecycle.Handlers {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.props.Handlers
}

// live reports whether w is still the window of the engine.
func (e *Engine) live(w *js.Window) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.closed && e.window == w
}

// build creates the window of cycle and loads the source into it. The
// previous cycle's window is closed.
func (e *Engine) build(cycle int) {
	e.mu.Lock()
	props := e.props
	e.mu.Unlock()

	w := js.NewWindow(js.Options{
		URL:            e.src.URL,
		UserAgent:      props.UserAgent,
		ScriptsEnabled: props.ScriptsEnabled(),
		Logger:         e.logger,
		Schedule:       e.schedule,
		LoadScript:     e.fetch,
		Storage:        e.store,
		Navigate: func(url string) {
			e.logger.Warn("HeadlessBackend: navigation is not supported", "url", url)
		},
		OnError: func(err error) {
			e.logger.Warn("HeadlessBackend: uncaught script error", "cycle", cycle, "error", err)
		},
	})
	base := func() lifecycle.EventBase {
		return lifecycle.EventBase{URL: w.URL(), Title: w.Title()}
	}

	e.mu.Lock()
	old := e.window
	e.cycle = cycle
	e.state = Loading
	e.window = w
	e.mu.Unlock()
	if old != nil {
		old.Close()
	}

	post := func(args ...any) {
		if !e.live(w) {
			return
		}
		var message any
		if len(args) > 0 {
			message = args[0]
		}
		lifecycle.HandlePostMessage(e.handlers(), base(), message)
	}
	for _, path := range []string{"postMessage", "ReactNativeWebView.postMessage"} {
		if err := w.Expose(path, post); err != nil {
			e.logger.Error("headless: install message bridge", "path", path, "error", err)
		}
	}
	if props.ScriptsEnabled() && props.InjectedJavaScriptBeforeContentLoaded != "" {
		if _, err := w.Eval(props.InjectedJavaScriptBeforeContentLoaded); err != nil {
			e.logger.Debug("headless: injectedJavaScriptBeforeContentLoaded failed", "error", err)
		}
	}

	w.AddEventListener("DOMContentLoaded", func() {
		if !e.live(w) || !props.ScriptsEnabled() || props.InjectedJavaScript == "" {
			return
		}
		if _, err := w.Eval(props.InjectedJavaScript); err != nil {
			e.logger.Debug("headless: injectedJavaScript failed", "error", err)
		}
	})
	w.AddEventListener("load", func() {
		e.mu.Lock()
		if e.closed || e.window != w {
			e.mu.Unlock()
			return
		}
		e.state = Loaded
		e.mu.Unlock()
		lifecycle.HandleLoadEnd(e.handlers(), base())
	})

	if err := w.Parse(e.src.HTML); err != nil {
		e.logger.Error("headless: parse document", "url", e.src.URL, "error", err)
	}
	lifecycle.HandleLoadStart(e.handlers(), base())

	e.schedule(func() {
		if !e.live(w) {
			return
		}
		w.ContentLoaded()
		w.FinishLoad()
	})
}

// schedule runs fn on the loop, or right away when the engine has none.
func (e *Engine) schedule(fn func()) bool {
	if e.loop == nil {
		fn()
		return true
	}
	return e.loop.Post(fn)
}

// Update replaces the props of the engine. Changes to the scripts, the
// user agent or javaScriptEnabled rebuild the current cycle; handler
// changes apply to the next dispatch.
func (e *Engine) Update(props backend.Props) {
	e.mu.Lock()
	old := e.props
	e.props = props
	w := e.window
	e.mu.Unlock()

	if old.InjectedJavaScript != props.InjectedJavaScript ||
		old.InjectedJavaScriptBeforeContentLoaded != props.InjectedJavaScriptBeforeContentLoaded ||
		old.UserAgent != props.UserAgent ||
		old.ScriptsEnabled() != props.ScriptsEnabled() {
		e.schedule(func() {
			if !e.live(w) {
				return
			}
			_, cycle := e.State()
			e.build(cycle)
		})
	}
}

// State returns the state and id of the current cycle.
func (e *Engine) State() (State, int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state, e.cycle
}

// Render returns the marker view of the current cycle.
func (e *Engine) Render() *backend.View {
	state, cycle := e.State()
	var child *backend.View
	if state == Loaded {
		child = backend.NewView("View", backend.Marker(string(Loading), cycle))
	}
	return backend.NewView("View", backend.Marker(string(state), cycle), child)
}

// Reload starts a new load cycle with a new window.
func (e *Engine) Reload() {
	e.schedule(func() {
		e.mu.Lock()
		if e.closed {
			e.mu.Unlock()
			return
		}
		next := e.cycle + 1
		e.mu.Unlock()
		e.build(next)
	})
}

func (e *Engine) unsupported(method string) {
	e.logger.Warn("HeadlessBackend#" + method + ": not Implemented.")
}

func (e *Engine) GoBack()       { e.unsupported("goBack") }
func (e *Engine) GoForward()    { e.unsupported("goForward") }
func (e *Engine) StopLoading()  { e.unsupported("stopLoading") }
func (e *Engine) RequestFocus() { e.unsupported("requestFocus") }

// InjectJavaScript evaluates script in the window of the current cycle,
// whether it has loaded or not. Scripts are dropped while JavaScript is
// disabled.
func (e *Engine) InjectJavaScript(script string) {
	e.mu.Lock()
	w, enabled := e.window, e.props.ScriptsEnabled()
	e.mu.Unlock()
	if w == nil {
		panic("HeadlessBackend#injectJavaScript: the engine has no window.")
	}
	if !enabled {
		e.logger.Debug("HeadlessBackend#injectJavaScript: JavaScript is disabled, script dropped.")
		return
	}
	if _, err := w.Eval(script); err != nil {
		e.logger.Debug("headless: injected script failed", "error", err)
	}
}

// Document returns the document of the current cycle.
func (e *Engine) Document() *dom.Document {
	return e.Window().Document()
}

// Window returns the window of the current cycle.
func (e *Engine) Window() *js.Window {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.window
}

// Close closes the current window. Pending cycle tasks become no-ops.
func (e *Engine) Close() {
	e.mu.Lock()
	e.closed = true
	w := e.window
	e.mu.Unlock()
	w.Close()
}
