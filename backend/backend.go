// Package backend defines the contract between the WebView shell and the
// DOM engines plugged into it: props, the imperative handle, the late-bound
// reference the shell forwards through, and the rendered view tree.
package backend

import (
	"log/slog"
	"sync/atomic"

	"github.com/chrisuehlinger/ersatz/dom"
	"github.com/chrisuehlinger/ersatz/js"
	"github.com/chrisuehlinger/ersatz/lifecycle"
	"github.com/chrisuehlinger/ersatz/loop"
	"github.com/chrisuehlinger/ersatz/source"
)

// Handle is the imperative surface of a mounted DOM engine.
type Handle interface {
	GoBack()
	GoForward()
	Reload()
	StopLoading()
	RequestFocus()
	InjectJavaScript(script string)
	// Document returns the document of the current load cycle.
	Document() *dom.Document
	// Window returns the window of the current load cycle, or nil when the
	// engine does not run scripts in-process.
	Window() *js.Window
}

type handleBox struct{ h Handle }

// Ref is a late-bound reference to the handle of the mounted engine. The
// zero value is empty and ready to use.
type Ref struct {
	p atomic.Pointer[handleBox]
}

// Set publishes h. A nil h empties the ref.
func (r *Ref) Set(h Handle) {
	if h == nil {
		r.p.Store(nil)
		return
	}
	r.p.Store(&handleBox{h})
}

// Get returns the published handle, or nil.
func (r *Ref) Get() Handle {
	if b := r.p.Load(); b != nil {
		return b.h
	}
	return nil
}

// Release empties the ref if it still holds h.
func (r *Ref) Release(h Handle) {
	if b := r.p.Load(); b != nil && b.h == h {
		r.p.CompareAndSwap(b, nil)
	}
}

// Style is a free-form style object passed through to the rendered views.
type Style map[string]any

// Props is the WebView prop surface shared by every engine.
type Props struct {
	Source source.Source
	// JavaScriptEnabled defaults to true when nil.
	JavaScriptEnabled                     *bool
	InjectedJavaScript                    string
	InjectedJavaScriptBeforeContentLoaded string
	UserAgent                             string
	// OriginWhitelist defaults to http://* and https://* when empty.
	OriginWhitelist []string

	Handlers    lifecycle.Handlers
	OnHTTPError func(lifecycle.SyntheticEvent[lifecycle.HTTPError])

	RenderLoading func() *View
	RenderError   func(domain string, code int, description string) *View

	Style          Style
	ContainerStyle Style
}

// ScriptsEnabled reports the effective javaScriptEnabled value.
func (p Props) ScriptsEnabled() bool {
	return p.JavaScriptEnabled == nil || *p.JavaScriptEnabled
}

// Bool returns a pointer to v, for optional props.
func Bool(v bool) *bool {
	return &v
}

// Context carries what the shell provides to the engine it mounts.
type Context struct {
	// Ref receives the engine's handle once it can serve calls.
	Ref    *Ref
	Loop   *loop.Loop
	Logger *slog.Logger
}

// Component is a mounted engine. Render may be called from any goroutine.
type Component interface {
	Render() *View
	// Update applies new props. Changing the source starts a new load.
	Update(props Props)
	// Close releases the component's resources.
	Close()
}

// Factory mounts an engine.
type Factory func(ctx Context, props Props) Component
