// Package rodhost mounts iframe WebView frames in a real Chrome driven by
// go-rod. The host page is served on a hijacked origin; frames report
// their load, message and beforeunload events through a runtime binding.
package rodhost

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/chrisuehlinger/ersatz/dom"
	"github.com/chrisuehlinger/ersatz/iframe"
)

// BindingName is the page binding frames report events through.
const BindingName = "__ersatz"

// DefaultOrigin is the origin the host page is served on.
const DefaultOrigin = "http://ersatz.localhost"

// hostPage forwards messages posted to the host and the load and
// beforeunload events of mounted frames to the binding.
const hostPage = `<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>ersatz</title></head><body><script>
(function () {
  var send = function (event) { window.` + BindingName + `(JSON.stringify(event)); };
  var frameOf = function (source) {
    var frames = document.getElementsByTagName('iframe');
    for (var i = 0; i < frames.length; i++) {
      if (frames[i].contentWindow === source) return frames[i].id;
    }
    return '';
  };
  window.addEventListener('message', function (e) {
    send({ kind: 'message', frame: frameOf(e.source), origin: e.origin, data: e.data });
  });
  var watch = function (f) {
    try {
      f.contentWindow.addEventListener('beforeunload', function () {
        var a = f.contentDocument.activeElement;
        send({ kind: 'beforeunload', frame: f.id, active: a ? a.cloneNode(false).outerHTML : '' });
      });
    } catch (e) {}
  };
  window.__ersatzMount = function (markup) {
    var t = document.createElement('template');
    t.innerHTML = markup;
    var f = t.content.firstElementChild;
    f.addEventListener('load', function () {
      var url = '';
      try { url = f.contentWindow.location.href; } catch (e) {}
      watch(f);
      send({ kind: 'load', frame: f.id, url: url });
    });
    document.body.appendChild(f);
  };
})();
</script></body></html>`

// Option configures a Host.
type Option func(*Host)

// WithOrigin serves the host page on origin instead of DefaultOrigin.
func WithOrigin(origin string) Option {
	return func(h *Host) {
		h.origin = strings.TrimSuffix(origin, "/")
	}
}

// WithLogger sets the logger of the host.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Host) {
		h.logger = logger
	}
}

// WithSchedule runs frame events through schedule, typically the Post
// method of the WebView's loop. By default every event runs on its own
// goroutine.
func WithSchedule(schedule func(func()) bool) Option {
	return func(h *Host) {
		h.schedule = schedule
	}
}

// WithOpenHandler is called with the URLs the host is asked to open.
func WithOpenHandler(fn func(url string)) Option {
	return func(h *Host) {
		h.onOpen = fn
	}
}

// Host is an iframe.Host backed by a Chrome page.
type Host struct {
	origin   string
	logger   *slog.Logger
	schedule func(func()) bool
	onOpen   func(string)

	page   *rod.Page
	router *rod.HijackRouter
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	frames map[string]*frame
	opened []string
	closed bool
}

var _ iframe.Host = (*Host)(nil)

func newHost(opts ...Option) *Host {
	h := &Host{
		origin: DefaultOrigin,
		logger: slog.Default(),
		schedule: func(fn func()) bool {
			go fn()
			return true
		},
		frames: make(map[string]*frame),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// New opens the host page in a new tab of browser. The tab lives until
// Close or until ctx is done.
func New(ctx context.Context, browser *rod.Browser, opts ...Option) (*Host, error) {
	h := newHost(opts...)
	h.ctx, h.cancel = context.WithCancel(ctx)

	page, err := browser.Page(proto.TargetCreateTarget{URL: ""})
	if err != nil {
		h.cancel()
		return nil, fmt.Errorf("rodhost: create tab: %w", err)
	}
	h.page = page

	h.router = page.HijackRequests()
	err = h.router.Add(h.origin+"/*", "", func(hj *rod.Hijack) {
		hj.Response.SetHeader("Content-Type", "text/html; charset=utf-8")
		hj.Response.SetBody(hostPage)
	})
	if err != nil {
		_ = h.Close()
		return nil, fmt.Errorf("rodhost: hijack %s: %w", h.origin, err)
	}
	go h.router.Run()

	if err := (proto.RuntimeAddBinding{Name: BindingName}).Call(page); err != nil {
		_ = h.Close()
		return nil, fmt.Errorf("rodhost: add binding: %w", err)
	}
	go page.Context(h.ctx).EachEvent(func(e *proto.RuntimeBindingCalled) {
		if e.Name == BindingName {
			h.handle(e.Payload)
		}
	})()

	if err := page.Context(h.ctx).Navigate(h.origin + "/"); err != nil {
		_ = h.Close()
		return nil, fmt.Errorf("rodhost: open host page: %w", err)
	}
	if err := page.Context(h.ctx).WaitLoad(); err != nil {
		h.logger.Warn("rodhost: wait load", "origin", h.origin, "error", err)
	}
	h.logger.Debug("rodhost: host page ready", "origin", h.origin)
	return h, nil
}

// Origin returns the origin of the host page.
func (h *Host) Origin() string {
	return h.origin
}

// Open records url as opened outside the WebView.
func (h *Host) Open(url string) {
	h.mu.Lock()
	h.opened = append(h.opened, url)
	onOpen := h.onOpen
	h.mu.Unlock()
	h.logger.Info("rodhost: open", "url", url)
	if onOpen != nil {
		onOpen(url)
	}
}

// Opened returns the URLs passed to Open so far.
func (h *Host) Opened() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.opened...)
}

// Mount appends the iframe described by spec to the host page.
func (h *Host) Mount(ctx context.Context, spec iframe.Iframe, events iframe.FrameEvents) (iframe.Frame, error) {
	if spec.ID == "" {
		return nil, fmt.Errorf("rodhost: frame without id")
	}
	f := &frame{host: h, id: spec.ID, spec: spec, events: events}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, iframe.ErrFrameClosed
	}
	h.frames[f.id] = f
	h.mu.Unlock()

	if _, err := h.eval(ctx, `(markup) => window.__ersatzMount(markup)`, spec.Markup()); err != nil {
		h.forget(f)
		return nil, fmt.Errorf("rodhost: mount %s: %w", f.id, err)
	}
	return f, nil
}

func (h *Host) eval(ctx context.Context, js string, args ...any) (*proto.RuntimeRemoteObject, error) {
	if h.page == nil {
		return nil, iframe.ErrFrameClosed
	}
	if ctx == nil {
		ctx = h.ctx
	}
	return h.page.Context(ctx).Eval(js, args...)
}

func (h *Host) lookup(id string) *frame {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.frames[id]
}

func (h *Host) forget(f *frame) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.frames[f.id] == f {
		delete(h.frames, f.id)
	}
}

// event is a report of the host page.
type event struct {
	Kind   string `json:"kind"`
	Frame  string `json:"frame"`
	Origin string `json:"origin"`
	Data   any    `json:"data"`
	URL    string `json:"url"`
	Active string `json:"active"`
}

// handle dispatches a binding payload to the frame it concerns.
func (h *Host) handle(payload string) {
	var ev event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		h.logger.Warn("rodhost: malformed event", "error", err)
		return
	}
	f := h.lookup(ev.Frame)
	if f == nil {
		h.logger.Debug("rodhost: event of an unknown frame", "kind", ev.Kind, "frame", ev.Frame)
		return
	}
	switch ev.Kind {
	case "message":
		if fn := f.events.OnMessage; fn != nil {
			h.schedule(func() { fn(ev.Data, ev.Origin) })
		}
	case "beforeunload":
		f.leaving(ev.Active)
	case "load":
		f.loaded(ev.URL)
	default:
		h.logger.Debug("rodhost: unknown event", "kind", ev.Kind)
	}
}

// Close closes the host tab and forgets every frame.
func (h *Host) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	h.frames = make(map[string]*frame)
	h.mu.Unlock()

	if h.cancel != nil {
		h.cancel()
	}
	var err error
	if h.router != nil {
		err = h.router.Stop()
	}
	if h.page != nil {
		if cerr := h.page.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// snapshotElement parses the outer HTML of a childless element.
func snapshotElement(outer, url string) *dom.Element {
	if outer == "" {
		return nil
	}
	doc, err := dom.Parse(outer, url)
	if err != nil {
		return nil
	}
	body := doc.Body()
	if body == nil {
		return nil
	}
	if children := body.Children(); len(children) > 0 {
		return children[0]
	}
	return body
}
