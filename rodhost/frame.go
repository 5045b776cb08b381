package rodhost

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/chrisuehlinger/ersatz/dom"
	"github.com/chrisuehlinger/ersatz/iframe"
	"github.com/chrisuehlinger/ersatz/js"
)

// frame is an iframe element of the host page.
type frame struct {
	host   *Host
	id     string
	spec   iframe.Iframe
	events iframe.FrameEvents

	mu      sync.Mutex
	url     string
	loads   int
	pending bool
	active  *dom.Element
	closed  bool
}

var _ iframe.Frame = (*frame)(nil)

// leaving records that the frame is about to navigate away. active is the
// snapshot of the element focused in the leaving document.
func (f *frame) leaving(active string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending = true
	f.active = snapshotElement(active, f.url)
}

// loaded reports a load of the frame. A load following a beforeunload is
// a navigation of the frame's own making.
func (f *frame) loaded(url string) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	navigated, active := f.pending && f.loads > 0, f.active
	f.pending, f.active = false, nil
	f.loads++
	if url != "" {
		f.url = url
	}
	f.mu.Unlock()

	h := f.host
	switch {
	case navigated && f.events.OnNavigate != nil:
		fn := f.events.OnNavigate
		h.schedule(func() { fn(url, active) })
	case !navigated:
		h.schedule(func() {
			if fn := f.events.OnContentWindow; fn != nil {
				fn(f)
			}
			if fn := f.events.OnLoad; fn != nil {
				fn()
			}
		})
	}
}

func (f *frame) live() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.closed
}

// within evaluates body with the frame's document bound to doc. It fails
// with iframe.ErrCrossOrigin when the document is out of reach.
func (f *frame) within(body string, args ...any) (string, error) {
	if !f.live() {
		return "", iframe.ErrFrameClosed
	}
	code := `(id, args) => {
  var f = document.getElementById(id);
  if (!f) return '\u0000closed';
  var doc;
  try { doc = f.contentDocument; } catch (e) {}
  if (!doc) return '\u0000cross-origin';
  ` + body + `
}`
	res, err := f.host.eval(f.host.ctx, code, f.id, args)
	if err != nil {
		return "", fmt.Errorf("rodhost: frame %s: %w", f.id, err)
	}
	out := res.Value.Str()
	switch out {
	case "\x00closed":
		return "", iframe.ErrFrameClosed
	case "\x00cross-origin":
		return "", iframe.ErrCrossOrigin
	}
	return out, nil
}

// Document returns a snapshot of the frame's document, or nil when it
// cannot be read.
func (f *frame) Document() *dom.Document {
	outer, err := f.within(`return doc.documentElement ? doc.documentElement.outerHTML : '';`)
	if err != nil {
		return nil
	}
	f.mu.Lock()
	url := f.url
	f.mu.Unlock()
	if url == "" {
		url = dom.BlankURL
	}
	doc, err := dom.Parse(outer, url)
	if err != nil {
		return nil
	}
	return doc
}

// Window is nil: the frame's scripts run in Chrome.
func (f *frame) Window() *js.Window {
	return nil
}

func (f *frame) InjectScript(code string) error {
	_, err := f.within(`var s = doc.createElement('script');
  s.textContent = args[0];
  (doc.body || doc.documentElement).appendChild(s);
  return '';`, code)
	return err
}

func (f *frame) InjectBase(href string) error {
	_, err := f.within(`if (doc.querySelector('base')) return '';
  var b = doc.createElement('base');
  b.href = args[0];
  var head = doc.head || doc.documentElement;
  head.insertBefore(b, head.firstChild);
  return '';`, href)
	return err
}

// GuardAnchors opens the anchors failing wl in a new context, including
// the anchors inserted later.
func (f *frame) GuardAnchors(wl iframe.Whitelist) (func(), error) {
	var patterns []any
	for _, p := range wl.Sources() {
		patterns = append(patterns, p)
	}
	_, err := f.within(`var patterns = args.map(function (p) { return new RegExp(p); });
  var guard = function (a) {
    var href = a.getAttribute('href');
    if (href === null) return;
    var url = a.href;
    if (patterns.some(function (p) { return p.test(url); })) return;
    a.setAttribute('target', '_blank');
    a.setAttribute('rel', 'noopener noreferrer');
  };
  Array.prototype.forEach.call(doc.getElementsByTagName('a'), guard);
  var observer = new MutationObserver(function (records) {
    records.forEach(function (r) {
      r.addedNodes.forEach(function (n) {
        if (n.nodeType !== 1) return;
        if (n.tagName === 'A') guard(n);
        Array.prototype.forEach.call(n.getElementsByTagName('a'), guard);
      });
    });
  });
  observer.observe(doc, { childList: true, subtree: true });
  if (doc.defaultView.__ersatzGuard) doc.defaultView.__ersatzGuard.disconnect();
  doc.defaultView.__ersatzGuard = observer;
  return '';`, patterns...)
	if err != nil {
		return nil, err
	}
	return func() {
		_, _ = f.within(`if (doc.defaultView.__ersatzGuard) doc.defaultView.__ersatzGuard.disconnect();
  return '';`)
	}, nil
}

func (f *frame) Focus() error {
	_, err := f.host.eval(f.host.ctx, `(id) => {
  var f = document.getElementById(id);
  if (f) f.focus();
}`, f.id)
	return err
}

// Close removes the iframe element from the host page.
func (f *frame) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	f.mu.Unlock()
	f.host.forget(f)

	_, err := f.host.eval(f.host.ctx, `(id) => {
  var f = document.getElementById(id);
  if (f) f.remove();
}`, f.id)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("rodhost: close frame %s: %w", f.id, err)
	}
	return nil
}
