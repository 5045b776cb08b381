package iframe

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/chrisuehlinger/ersatz/dom"
	"github.com/chrisuehlinger/ersatz/js"
	"github.com/chrisuehlinger/ersatz/network"
)

// DefaultHostOrigin is the origin of an EmulatedHost created without
// WithOrigin.
const DefaultHostOrigin = "http://localhost"

const srcdocURL = "about:srcdoc"

// EmulatedHost is an in-process Host: every frame is a js.Window whose
// document comes from the srcdoc attribute or from a fetch of src.
type EmulatedHost struct {
	origin   string
	client   *network.Client
	schedule func(func()) bool
	logger   *slog.Logger
	storage  *js.Storage
	onOpen   func(url string)

	mu     sync.Mutex
	opened []string
	frames map[*emulatedFrame]struct{}
	closed bool
}

// EmulatedOption configures an EmulatedHost.
type EmulatedOption func(*EmulatedHost)

// WithOrigin sets the origin of the host document.
func WithOrigin(origin string) EmulatedOption {
	return func(h *EmulatedHost) {
		if origin != "" {
			h.origin = origin
		}
	}
}

// WithClient sets the client fetching remote frame documents.
func WithClient(client *network.Client) EmulatedOption {
	return func(h *EmulatedHost) {
		h.client = client
	}
}

// WithSchedule sets how frame tasks run, typically the WebView loop's
// Post. By default every task runs on its own goroutine.
func WithSchedule(schedule func(func()) bool) EmulatedOption {
	return func(h *EmulatedHost) {
		if schedule != nil {
			h.schedule = schedule
		}
	}
}

// WithHostLogger sets the logger.
func WithHostLogger(logger *slog.Logger) EmulatedOption {
	return func(h *EmulatedHost) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithOpenHandler sets a function called for every URL the host opens.
func WithOpenHandler(fn func(url string)) EmulatedOption {
	return func(h *EmulatedHost) {
		h.onOpen = fn
	}
}

// NewEmulatedHost creates an emulated host.
func NewEmulatedHost(opts ...EmulatedOption) *EmulatedHost {
	h := &EmulatedHost{
		origin:  DefaultHostOrigin,
		logger:  slog.Default(),
		storage: js.NewStorage(),
		frames:  make(map[*emulatedFrame]struct{}),
		schedule: func(fn func()) bool {
			go fn()
			return true
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Origin returns the origin of the host document.
func (h *EmulatedHost) Origin() string {
	return h.origin
}

// Open records url as opened outside the host.
func (h *EmulatedHost) Open(url string) {
	h.mu.Lock()
	h.opened = append(h.opened, url)
	onOpen := h.onOpen
	h.mu.Unlock()
	h.logger.Info("iframe: opening url outside the host", "url", url)
	if onOpen != nil {
		onOpen(url)
	}
}

// Opened returns the URLs passed to Open so far.
func (h *EmulatedHost) Opened() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.opened...)
}

// Mount creates the frame and schedules its load: srcdoc wins over src,
// and a frame with neither, or with an about: src, shows an empty
// document.
func (h *EmulatedHost) Mount(ctx context.Context, spec Iframe, events FrameEvents) (Frame, error) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrFrameClosed
	}
	f := &emulatedFrame{host: h, spec: spec, events: events}
	h.frames[f] = struct{}{}
	h.mu.Unlock()

	switch {
	case spec.SrcDoc != "":
		h.schedule(func() { f.load(srcdocURL, spec.SrcDoc) })
	case spec.Src == "" || strings.HasPrefix(spec.Src, "about:"):
		url := spec.Src
		if url == "" {
			url = dom.BlankURL
		}
		h.schedule(func() { f.load(url, "") })
	default:
		go f.fetch(ctx, spec.Src)
	}
	return f, nil
}

// Close unmounts every frame.
func (h *EmulatedHost) Close() error {
	h.mu.Lock()
	h.closed = true
	frames := make([]*emulatedFrame, 0, len(h.frames))
	for f := range h.frames {
		frames = append(frames, f)
	}
	h.mu.Unlock()
	for _, f := range frames {
		_ = f.Close()
	}
	return nil
}

func (h *EmulatedHost) forget(f *emulatedFrame) {
	h.mu.Lock()
	delete(h.frames, f)
	h.mu.Unlock()
}

type emulatedFrame struct {
	host   *EmulatedHost
	spec   Iframe
	events FrameEvents

	mu     sync.Mutex
	window *js.Window
	url    string
	closed bool
}

// fetch loads the document of src. Failures show an empty document, as a
// browser shows its error page and still fires load.
func (f *emulatedFrame) fetch(ctx context.Context, src string) {
	body := ""
	if f.host.client == nil {
		f.host.logger.Warn("iframe: no client to fetch the frame document", "src", src)
	} else if resp, err := f.host.client.Get(ctx, src); err != nil {
		f.host.logger.Warn("iframe: frame document fetch failed", "src", src, "error", err)
	} else {
		body = string(resp.Body)
	}
	f.host.schedule(func() { f.load(src, body) })
}

// load runs the frame document through its lifecycle. The load event
// fires in a later task, after the tasks queued by the page.
func (f *emulatedFrame) load(url, body string) {
	var storage *js.Storage
	if f.spec.SameOrigin() {
		storage = f.host.storage
	}
	w := js.NewWindow(js.Options{
		URL:            url,
		ScriptsEnabled: f.spec.ScriptsAllowed(),
		Logger:         f.host.logger,
		Schedule:       f.host.schedule,
		Storage:        storage,
		Parent:         f.postToParent,
		Navigate:       f.navigate,
		Open:           f.open,
		OnError: func(err error) {
			f.host.logger.Debug("iframe: uncaught script error", "frame", f.spec.ID, "url", url, "error", err)
		},
	})

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		w.Close()
		return
	}
	f.window = w
	f.url = url
	f.mu.Unlock()

	if f.events.OnContentWindow != nil {
		f.events.OnContentWindow(f)
	}
	if err := w.Parse(body); err != nil {
		f.host.logger.Error("iframe: parse frame document", "url", url, "error", err)
	}
	w.ContentLoaded()
	f.host.schedule(func() {
		if !f.live(w) {
			return
		}
		w.FinishLoad()
		if f.events.OnLoad != nil {
			f.events.OnLoad()
		}
	})
}

func (f *emulatedFrame) live(w *js.Window) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.closed && f.window == w
}

func (f *emulatedFrame) current() (*js.Window, string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.window, f.url, f.closed
}

// origin returns the serialized origin of the frame document.
func (f *emulatedFrame) origin() string {
	_, url, _ := f.current()
	if !f.spec.SameOrigin() {
		return "null"
	}
	if url == "" || strings.HasPrefix(url, "about:") {
		return f.host.origin
	}
	origin, err := network.GetOrigin(url)
	if err != nil {
		return "null"
	}
	return origin
}

func (f *emulatedFrame) accessible() bool {
	return f.origin() == f.host.origin
}

// postToParent delivers window.parent.postMessage calls to the host
// window, unless targetOrigin excludes it.
func (f *emulatedFrame) postToParent(data any, targetOrigin string) {
	if targetOrigin != "*" && targetOrigin != f.host.origin {
		f.host.logger.Debug("iframe: message dropped, target origin mismatch",
			"targetOrigin", targetOrigin, "host", f.host.origin)
		return
	}
	origin := f.origin()
	f.host.schedule(func() {
		if _, _, closed := f.current(); closed || f.events.OnMessage == nil {
			return
		}
		f.events.OnMessage(data, origin)
	})
}

func (f *emulatedFrame) navigate(url string) {
	var active *dom.Element
	if f.accessible() {
		if w, _, _ := f.current(); w != nil {
			_ = w.Do(func(doc *dom.Document) { active = doc.ActiveElement() })
		}
	}
	if f.events.OnNavigate != nil {
		f.events.OnNavigate(url, active)
	}
}

func (f *emulatedFrame) open(url string) {
	if !f.spec.PopupsAllowed() {
		f.host.logger.Warn("iframe: popup blocked by the sandbox", "url", url)
		return
	}
	f.host.Open(url)
}

func (f *emulatedFrame) Document() *dom.Document {
	w, _, closed := f.current()
	if closed || w == nil || !f.accessible() {
		return nil
	}
	return w.Document()
}

func (f *emulatedFrame) Window() *js.Window {
	w, _, _ := f.current()
	return w
}

func (f *emulatedFrame) ready() (*js.Window, error) {
	w, _, closed := f.current()
	switch {
	case closed:
		return nil, ErrFrameClosed
	case w == nil || !f.accessible():
		return nil, ErrCrossOrigin
	}
	return w, nil
}

func (f *emulatedFrame) InjectScript(code string) error {
	w, err := f.ready()
	if err != nil {
		return err
	}
	return w.InjectScript(code)
}

func (f *emulatedFrame) InjectBase(href string) error {
	w, err := f.ready()
	if err != nil {
		return err
	}
	return w.Do(func(doc *dom.Document) { doc.InjectBase(href) })
}

func (f *emulatedFrame) GuardAnchors(wl Whitelist) (func(), error) {
	w, err := f.ready()
	if err != nil {
		return nil, err
	}
	guard := func(el *dom.Element) {
		if el.IsAnchor() && el.HasAttribute("href") && !wl.Passes(el.Href()) {
			el.SetAttribute("target", "_blank")
			el.SetAttribute("rel", "noopener noreferrer")
		}
	}
	var cancel func()
	err = w.Do(func(doc *dom.Document) {
		for _, a := range doc.GetElementsByTagName("a") {
			guard(a)
		}
		cancel = doc.Observe(guard)
	})
	if err != nil {
		return nil, err
	}
	return func() { _ = w.Do(func(*dom.Document) { cancel() }) }, nil
}

func (f *emulatedFrame) Focus() error {
	w, err := f.ready()
	if err != nil {
		return err
	}
	return w.Do(func(doc *dom.Document) {
		if body := doc.Body(); body != nil {
			body.Focus()
		}
	})
}

func (f *emulatedFrame) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	w := f.window
	f.mu.Unlock()
	f.host.forget(f)
	if w != nil {
		w.Close()
	}
	return nil
}
