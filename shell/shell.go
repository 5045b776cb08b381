// Package shell implements the engine-agnostic WebView wrapper. A Shell
// mounts the engine built by a backend.Factory, renders it inside a scroll
// container and republishes the engine's handle as its own.
package shell

import (
	"context"
	"log/slog"
	"sync"

	"github.com/chrisuehlinger/ersatz/backend"
	"github.com/chrisuehlinger/ersatz/dom"
	"github.com/chrisuehlinger/ersatz/js"
	"github.com/chrisuehlinger/ersatz/loop"
)

// Kinds of the views the shell wraps the engine view in.
const (
	ScrollViewKind = "ScrollView"
	ContainerKind  = "View"
)

const notLoaded = "The DOM backend is not loaded. Make sure you call this method after it has loaded. " +
	"Wait for it with ersatztest.WaitForErsatz."

// Option configures a Shell.
type Option func(*Shell)

// WithLoop runs the engine on l instead of a loop owned by the shell. The
// shell does not close a loop it was given.
func WithLoop(l *loop.Loop) Option {
	return func(s *Shell) {
		s.loop = l
	}
}

// WithLogger sets the logger handed to the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Shell) {
		s.logger = logger
	}
}

// Shell is a mounted WebView. It implements backend.Handle by forwarding
// to the engine currently published in its ref.
type Shell struct {
	loop     *loop.Loop
	ownsLoop bool
	logger   *slog.Logger
	ref      backend.Ref

	mu        sync.Mutex
	props     backend.Props
	component backend.Component
	closed    bool
}

// New mounts the engine built by factory with props.
func New(factory backend.Factory, props backend.Props, opts ...Option) *Shell {
	s := &Shell{}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.loop == nil {
		s.loop = loop.New(loop.WithLogger(s.logger))
		s.ownsLoop = true
	}
	s.props = withDefaults(props)
	s.component = factory(backend.Context{Ref: &s.ref, Loop: s.loop, Logger: s.logger}, s.props)
	return s
}

// withDefaults applies the WebView default props.
func withDefaults(props backend.Props) backend.Props {
	if props.JavaScriptEnabled == nil {
		props.JavaScriptEnabled = backend.Bool(true)
	}
	return props
}

// Props returns the props of the shell, defaults applied.
func (s *Shell) Props() backend.Props {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.props
}

// Loop returns the loop the engine runs on.
func (s *Shell) Loop() *loop.Loop {
	return s.loop
}

// Sync waits until the tasks queued on the engine's loop so far have run.
func (s *Shell) Sync(ctx context.Context) error {
	return s.loop.Sync(ctx)
}

// Render returns the scroll container around the engine's view.
func (s *Shell) Render() *backend.View {
	s.mu.Lock()
	props, component := s.props, s.component
	s.mu.Unlock()

	container := backend.NewView(ContainerKind, "", component.Render())
	container.Style = props.ContainerStyle
	scroll := backend.NewView(ScrollViewKind, "", container)
	scroll.Style = props.Style
	return scroll
}

// Update re-renders the engine with new props. A different source starts a
// new resolution.
func (s *Shell) Update(props backend.Props) {
	props = withDefaults(props)
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.props = props
	component := s.component
	s.mu.Unlock()
	component.Update(props)
}

func (s *Shell) mounted(method string, required bool) backend.Handle {
	h := s.ref.Get()
	if h == nil && required {
		panic("Shell#" + method + ": " + notLoaded)
	}
	return h
}

func (s *Shell) GoBack() {
	if h := s.mounted("goBack", false); h != nil {
		h.GoBack()
	}
}

func (s *Shell) GoForward() {
	if h := s.mounted("goForward", false); h != nil {
		h.GoForward()
	}
}

func (s *Shell) Reload() {
	if h := s.mounted("reload", false); h != nil {
		h.Reload()
	}
}

func (s *Shell) StopLoading() {
	if h := s.mounted("stopLoading", false); h != nil {
		h.StopLoading()
	}
}

func (s *Shell) RequestFocus() {
	if h := s.mounted("requestFocus", false); h != nil {
		h.RequestFocus()
	}
}

// InjectJavaScript evaluates script in the mounted engine. It panics when
// no engine is mounted.
func (s *Shell) InjectJavaScript(script string) {
	s.mounted("injectJavaScript", true).InjectJavaScript(script)
}

// Document returns the document of the mounted engine. It panics when no
// engine is mounted: wait for the loaded marker first.
func (s *Shell) Document() *dom.Document {
	return s.mounted("getDocument", true).Document()
}

// Window returns the window of the mounted engine. It panics when no
// engine is mounted: wait for the loaded marker first.
func (s *Shell) Window() *js.Window {
	return s.mounted("getWindow", true).Window()
}

// Close unmounts the engine and stops the loop the shell owns. It must not
// be called from a task running on that loop.
func (s *Shell) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	component := s.component
	s.mu.Unlock()

	component.Close()
	if s.ownsLoop {
		s.loop.Close()
	}
}
