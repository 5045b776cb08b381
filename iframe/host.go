package iframe

import (
	"context"
	"errors"

	"github.com/chrisuehlinger/ersatz/dom"
	"github.com/chrisuehlinger/ersatz/js"
)

// ErrCrossOrigin is returned by Frame operations that need access to a
// document the host cannot reach.
var ErrCrossOrigin = errors.New("iframe: content window is not accessible")

// ErrFrameClosed is returned by operations on an unmounted frame.
var ErrFrameClosed = errors.New("iframe: frame is closed")

// Host is the document an Engine mounts its iframes in.
type Host interface {
	// Origin returns the origin of the host document.
	Origin() string
	// Mount inserts the iframe described by spec. The events are never
	// called before Mount returns.
	Mount(ctx context.Context, spec Iframe, events FrameEvents) (Frame, error)
	// Open opens url outside the host, like window.open in the host page.
	Open(url string)
	Close() error
}

// FrameEvents are the callbacks of a mounted frame. Every field is
// optional.
type FrameEvents struct {
	// OnContentWindow is called once the frame's browsing context exists,
	// before its document is parsed.
	OnContentWindow func(Frame)
	// OnLoad is called on the iframe's load event.
	OnLoad func()
	// OnMessage is called for every message the host window receives,
	// with the origin of the sender.
	OnMessage func(data any, origin string)
	// OnNavigate is called when the frame starts navigating away, with the
	// element focused in the frame document at that time (nil when the
	// document is not accessible).
	OnNavigate func(url string, active *dom.Element)
}

// Frame is a mounted iframe.
type Frame interface {
	// Document returns the frame document, or nil when the host cannot
	// access it.
	Document() *dom.Document
	// Window returns the in-process window of the frame, or nil.
	Window() *js.Window
	// InjectScript appends a script element holding code to the frame
	// document.
	InjectScript(code string) error
	// InjectBase points relative references of the frame document at href.
	InjectBase(href string) error
	// GuardAnchors retargets the anchors pointing outside wl, present and
	// future, to open in a new context.
	GuardAnchors(wl Whitelist) (cancel func(), err error)
	Focus() error
	Close() error
}
