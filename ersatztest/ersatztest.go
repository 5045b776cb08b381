// Package ersatztest synchronizes tests with a WebView: it waits for the
// backend-<state>-<cycle> marker a DOM engine renders, then hands out the
// WebView, its window or its document.
package ersatztest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chrisuehlinger/ersatz/backend"
	"github.com/chrisuehlinger/ersatz/dom"
	"github.com/chrisuehlinger/ersatz/js"
)

// Defaults of Options.
const (
	DefaultState   = "loaded"
	DefaultTimeout = 300 * time.Millisecond
)

// WebView is what the helpers wait on, such as *ersatz.WebView and
// *web.WebView.
type WebView interface {
	backend.Handle
	Render() *backend.View
}

// Syncer is implemented by WebViews that can wait for their pending loop
// tasks.
type Syncer interface {
	Sync(ctx context.Context) error
}

// Options selects the marker to wait for. The zero value waits up to
// 300ms for cycle 0 to be loaded.
type Options struct {
	LoadCycleID int
	State       string
	Timeout     time.Duration
}

func (o Options) withDefaults() Options {
	if o.State == "" {
		o.State = DefaultState
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	return o
}

// WaitForErsatz waits until wv renders the marker selected by opts. When wv
// is a Syncer, the tasks queued by then also run, so the handlers of the
// transition have been called when it returns.
func WaitForErsatz[W WebView](ctx context.Context, wv W, opts Options) (W, error) {
	opts = opts.withDefaults()
	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	if _, err := backend.WaitForMarker(ctx, wv.Render, backend.Marker(opts.State, opts.LoadCycleID)); err != nil {
		return wv, fmt.Errorf("ersatztest: %w", err)
	}
	if s, ok := any(wv).(Syncer); ok {
		if err := s.Sync(ctx); err != nil {
			return wv, fmt.Errorf("ersatztest: sync: %w", err)
		}
	}
	return wv, nil
}

// WaitForWindow waits like WaitForErsatz, then returns the window.
func WaitForWindow[W WebView](ctx context.Context, wv W, opts Options) (*js.Window, error) {
	if _, err := WaitForErsatz(ctx, wv, opts); err != nil {
		return nil, err
	}
	w := wv.Window()
	if w == nil {
		return nil, errors.New("ersatztest: the WebView has no window")
	}
	return w, nil
}

// WaitForDocument waits like WaitForErsatz, then returns the document.
func WaitForDocument[W WebView](ctx context.Context, wv W, opts Options) (*dom.Document, error) {
	if _, err := WaitForErsatz(ctx, wv, opts); err != nil {
		return nil, err
	}
	doc := wv.Document()
	if doc == nil {
		return nil, errors.New("ersatztest: the WebView has no document")
	}
	return doc, nil
}
