package js

import (
	"net/url"
	"strings"

	"github.com/dop251/goja"
)

// setupLocation creates the location object shared by window and document.
// Assignments resolve against the document base URL; changes that only
// touch the fragment update the location in place, anything else is handed
// to the navigation callback.
func (w *Window) setupLocation(vm *goja.Runtime) *goja.Object {
	location := vm.NewObject()

	part := func(get func(u *url.URL) string) goja.Value {
		return vm.ToValue(func(call goja.FunctionCall) goja.Value {
			u, err := url.Parse(w.url)
			if err != nil {
				return vm.ToValue("")
			}
			return vm.ToValue(get(u))
		})
	}

	location.DefineAccessorProperty("href",
		vm.ToValue(func(call goja.FunctionCall) goja.Value {
			return vm.ToValue(w.url)
		}),
		vm.ToValue(func(call goja.FunctionCall) goja.Value {
			w.navigate(call.Argument(0).String())
			return goja.Undefined()
		}), goja.FLAG_FALSE, goja.FLAG_TRUE)

	location.DefineAccessorProperty("protocol", part(func(u *url.URL) string {
		return u.Scheme + ":"
	}), nil, goja.FLAG_FALSE, goja.FLAG_TRUE)
	location.DefineAccessorProperty("host", part(func(u *url.URL) string {
		return u.Host
	}), nil, goja.FLAG_FALSE, goja.FLAG_TRUE)
	location.DefineAccessorProperty("hostname", part(func(u *url.URL) string {
		return u.Hostname()
	}), nil, goja.FLAG_FALSE, goja.FLAG_TRUE)
	location.DefineAccessorProperty("port", part(func(u *url.URL) string {
		return u.Port()
	}), nil, goja.FLAG_FALSE, goja.FLAG_TRUE)
	location.DefineAccessorProperty("pathname", part(func(u *url.URL) string {
		if u.Opaque != "" {
			return u.Opaque
		}
		return u.EscapedPath()
	}), nil, goja.FLAG_FALSE, goja.FLAG_TRUE)
	location.DefineAccessorProperty("search", part(func(u *url.URL) string {
		if u.RawQuery == "" {
			return ""
		}
		return "?" + u.RawQuery
	}), nil, goja.FLAG_FALSE, goja.FLAG_TRUE)
	location.DefineAccessorProperty("hash",
		part(func(u *url.URL) string {
			if u.Fragment == "" {
				return ""
			}
			return "#" + u.EscapedFragment()
		}),
		vm.ToValue(func(call goja.FunctionCall) goja.Value {
			hash := strings.TrimPrefix(call.Argument(0).String(), "#")
			w.navigate("#" + hash)
			return goja.Undefined()
		}), goja.FLAG_FALSE, goja.FLAG_TRUE)
	location.DefineAccessorProperty("origin", vm.ToValue(func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(w.doc.Origin())
	}), nil, goja.FLAG_FALSE, goja.FLAG_TRUE)

	navigate := func(call goja.FunctionCall) goja.Value {
		w.navigate(call.Argument(0).String())
		return goja.Undefined()
	}
	location.Set("assign", navigate)
	location.Set("replace", navigate)
	location.Set("reload", func(call goja.FunctionCall) goja.Value {
		w.requestNavigation(w.url)
		return goja.Undefined()
	})
	location.Set("toString", func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(w.url)
	})
	location.Set("valueOf", func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(w.url)
	})

	return location
}

// navigate resolves ref and either moves to the new fragment in place or
// requests a navigation. Called with the runtime lock held.
func (w *Window) navigate(ref string) {
	target := w.doc.ResolveURL(ref)
	if sameDocument(w.url, target) {
		w.url = target
		w.doc.SetURL(target)
		return
	}
	w.requestNavigation(target)
}

// requestNavigation fires beforeunload on the page and hands target to the
// navigation callback once the current script returns.
func (w *Window) requestNavigation(target string) {
	w.fireWindowEvent("beforeunload", eventInit{cancelable: true})
	if w.opts.Navigate == nil {
		w.logger.Warn("js: navigation is not supported by this window", "url", target)
		return
	}
	navigate := w.opts.Navigate
	w.rt.Defer(func() { navigate(target) })
}

// sameDocument reports whether b differs from a only by its fragment.
func sameDocument(a, b string) bool {
	ua, errA := url.Parse(a)
	ub, errB := url.Parse(b)
	if errA != nil || errB != nil || ub.Fragment == "" && !strings.HasSuffix(b, "#") {
		return false
	}
	ua.Fragment, ua.RawFragment = "", ""
	ub.Fragment, ub.RawFragment = "", ""
	return ua.String() == strings.TrimSuffix(ub.String(), "#")
}
