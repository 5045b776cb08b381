package js

import (
	"errors"
	"strings"

	"github.com/dop251/goja"
	"golang.org/x/net/html"

	"github.com/chrisuehlinger/ersatz/dom"
)

// DOM node type constants exposed to scripts.
const (
	elementNode  = 1
	textNode     = 3
	documentNode = 9
)

var errNotFound = errors.New("NotFoundError: the node to be removed is not a child of this node")

// setupGlobals installs the window, document and their companions on the
// global object. Called once, with the runtime lock held.
func (w *Window) setupGlobals(vm *goja.Runtime) {
	global := vm.GlobalObject()
	w.global = global

	setupEventConstructors(vm)
	w.setupTimers(vm)
	w.location = w.setupLocation(vm)
	w.document = w.bindDocument(vm)
	w.setupStorage(vm)

	global.Set("window", global)
	global.Set("self", global)
	global.Set("globalThis", global)
	global.Set("top", global)
	global.Set("document", w.document)
	global.Set("location", w.location)
	global.DefineAccessorProperty("name", vm.ToValue(func(goja.FunctionCall) goja.Value {
		return vm.ToValue("")
	}), nil, goja.FLAG_FALSE, goja.FLAG_TRUE)

	navigator := vm.NewObject()
	navigator.Set("userAgent", w.opts.UserAgent)
	navigator.Set("language", "en-US")
	navigator.Set("languages", []string{"en-US", "en"})
	navigator.Set("cookieEnabled", false)
	navigator.Set("onLine", true)
	global.Set("navigator", navigator)

	bindEventTarget(vm, global, w.winTarget, func(event *goja.Object) bool {
		event.Set("target", global)
		event.Set("currentTarget", global)
		w.winTarget.fire(event, global, w.report)
		return !flag(event, "defaultPrevented")
	})

	if w.opts.Parent == nil {
		global.Set("parent", global)
	} else {
		parent := vm.NewObject()
		post := w.opts.Parent
		parent.Set("postMessage", func(call goja.FunctionCall) goja.Value {
			data := export(call.Argument(0))
			targetOrigin := "*"
			if len(call.Arguments) > 1 {
				targetOrigin = call.Arguments[1].String()
			}
			w.rt.Defer(func() { post(data, targetOrigin) })
			return goja.Undefined()
		})
		global.Set("parent", parent)
	}

	global.Set("open", func(call goja.FunctionCall) goja.Value {
		target := w.doc.ResolveURL(call.Argument(0).String())
		if w.opts.Open == nil {
			w.logger.Warn("js: window.open is not supported by this window", "url", target)
			return goja.Null()
		}
		open := w.opts.Open
		w.rt.Defer(func() { open(target) })
		return goja.Null()
	})
	global.Set("alert", func(call goja.FunctionCall) goja.Value {
		w.logger.Info(formatArgs(call.Arguments), "source", "alert")
		return goja.Undefined()
	})
	global.Set("confirm", func(call goja.FunctionCall) goja.Value {
		w.logger.Info(formatArgs(call.Arguments), "source", "confirm")
		return vm.ToValue(false)
	})
	global.Set("prompt", func(call goja.FunctionCall) goja.Value {
		w.logger.Info(formatArgs(call.Arguments), "source", "prompt")
		return goja.Null()
	})
	if _, err := vm.RunString(`globalThis.queueMicrotask = function (callback) {
	if (typeof callback !== "function") throw new TypeError("queueMicrotask: argument is not a function");
	Promise.resolve().then(callback);
};`); err != nil {
		panic(err)
	}
}

// bindDocument creates the document object. Its properties read the
// window's current document, so one object serves every parsed document.
func (w *Window) bindDocument(vm *goja.Runtime) *goja.Object {
	jsDoc := vm.NewObject()
	getter := func(get func() goja.Value) goja.Value {
		return vm.ToValue(func(goja.FunctionCall) goja.Value { return get() })
	}
	readOnly := func(name string, get func() goja.Value) {
		jsDoc.DefineAccessorProperty(name, getter(get), nil, goja.FLAG_FALSE, goja.FLAG_TRUE)
	}

	jsDoc.Set("nodeType", documentNode)
	jsDoc.Set("nodeName", "#document")
	jsDoc.Set("cookie", "")
	readOnly("documentElement", func() goja.Value { return w.element(vm, w.doc.DocumentElement()) })
	readOnly("head", func() goja.Value { return w.element(vm, w.doc.Head()) })
	readOnly("body", func() goja.Value { return w.element(vm, w.doc.Body()) })
	readOnly("URL", func() goja.Value { return vm.ToValue(w.url) })
	readOnly("documentURI", func() goja.Value { return vm.ToValue(w.url) })
	readOnly("baseURI", func() goja.Value { return vm.ToValue(w.doc.BaseURL()) })
	readOnly("readyState", func() goja.Value { return vm.ToValue(w.readyState) })
	readOnly("activeElement", func() goja.Value { return w.element(vm, w.doc.ActiveElement()) })
	readOnly("defaultView", func() goja.Value { return w.global })
	readOnly("location", func() goja.Value { return w.location })
	readOnly("children", func() goja.Value {
		return w.elements(vm, []*dom.Element{w.doc.DocumentElement()})
	})
	jsDoc.DefineAccessorProperty("title",
		getter(func() goja.Value { return vm.ToValue(w.doc.Title()) }),
		vm.ToValue(func(call goja.FunctionCall) goja.Value {
			w.doc.SetTitle(call.Argument(0).String())
			return goja.Undefined()
		}), goja.FLAG_FALSE, goja.FLAG_TRUE)

	jsDoc.Set("getElementById", func(call goja.FunctionCall) goja.Value {
		return w.element(vm, w.doc.GetElementByID(call.Argument(0).String()))
	})
	jsDoc.Set("getElementsByTagName", func(call goja.FunctionCall) goja.Value {
		return w.elements(vm, w.doc.GetElementsByTagName(call.Argument(0).String()))
	})
	jsDoc.Set("querySelector", func(call goja.FunctionCall) goja.Value {
		el, err := w.doc.QuerySelector(call.Argument(0).String())
		if err != nil {
			panic(syntaxError(vm, err))
		}
		return w.element(vm, el)
	})
	jsDoc.Set("querySelectorAll", func(call goja.FunctionCall) goja.Value {
		els, err := w.doc.QuerySelectorAll(call.Argument(0).String())
		if err != nil {
			panic(syntaxError(vm, err))
		}
		return w.elements(vm, els)
	})
	jsDoc.Set("createElement", func(call goja.FunctionCall) goja.Value {
		return w.element(vm, w.doc.CreateElement(call.Argument(0).String()))
	})
	jsDoc.Set("createTextNode", func(call goja.FunctionCall) goja.Value {
		return w.text(vm, &html.Node{Type: html.TextNode, Data: call.Argument(0).String()})
	})
	jsDoc.Set("hasFocus", func(goja.FunctionCall) goja.Value { return vm.ToValue(true) })

	bindEventTarget(vm, jsDoc, w.docTarget, func(event *goja.Object) bool {
		return w.dispatch(vm, event, w.doc.Root())
	})
	return jsDoc
}

func syntaxError(vm *goja.Runtime, err error) *goja.Object {
	return vm.NewGoError(errors.New("SyntaxError: " + err.Error()))
}

// element returns the script object for el, creating it on first use so
// that identity is preserved across lookups.
func (w *Window) element(vm *goja.Runtime, el *dom.Element) goja.Value {
	if el == nil {
		return goja.Null()
	}
	n := el.Node()
	if obj, ok := w.objects[n]; ok {
		return obj
	}
	obj := w.bindElement(vm, el)
	w.objects[n] = obj
	w.nodes[obj] = n
	return obj
}

func (w *Window) elements(vm *goja.Runtime, els []*dom.Element) goja.Value {
	out := make([]any, 0, len(els))
	for _, el := range els {
		if el != nil {
			out = append(out, w.element(vm, el))
		}
	}
	return vm.NewArray(out...)
}

// text returns the script object for a text node.
func (w *Window) text(vm *goja.Runtime, n *html.Node) goja.Value {
	if obj, ok := w.objects[n]; ok {
		return obj
	}
	obj := vm.NewObject()
	obj.Set("nodeType", textNode)
	obj.Set("nodeName", "#text")
	data := vm.ToValue(func(goja.FunctionCall) goja.Value { return vm.ToValue(n.Data) })
	set := vm.ToValue(func(call goja.FunctionCall) goja.Value {
		n.Data = call.Argument(0).String()
		return goja.Undefined()
	})
	obj.DefineAccessorProperty("data", data, set, goja.FLAG_FALSE, goja.FLAG_TRUE)
	obj.DefineAccessorProperty("textContent", data, set, goja.FLAG_FALSE, goja.FLAG_TRUE)
	obj.DefineAccessorProperty("nodeValue", data, set, goja.FLAG_FALSE, goja.FLAG_TRUE)
	w.objects[n] = obj
	w.nodes[obj] = n
	return obj
}

// nodeOf returns the html node behind a script object, or nil.
func (w *Window) nodeOf(v goja.Value) *html.Node {
	obj, ok := v.(*goja.Object)
	if !ok {
		return nil
	}
	return w.nodes[obj]
}

func (w *Window) bindElement(vm *goja.Runtime, el *dom.Element) *goja.Object {
	jsEl := vm.NewObject()
	getter := func(get func() goja.Value) goja.Value {
		return vm.ToValue(func(goja.FunctionCall) goja.Value { return get() })
	}
	readOnly := func(name string, get func() goja.Value) {
		jsEl.DefineAccessorProperty(name, getter(get), nil, goja.FLAG_FALSE, goja.FLAG_TRUE)
	}
	reflect := func(prop, attr string) {
		jsEl.DefineAccessorProperty(prop,
			getter(func() goja.Value { return vm.ToValue(el.GetAttribute(attr)) }),
			vm.ToValue(func(call goja.FunctionCall) goja.Value {
				el.SetAttribute(attr, call.Argument(0).String())
				return goja.Undefined()
			}), goja.FLAG_FALSE, goja.FLAG_TRUE)
	}

	jsEl.Set("nodeType", elementNode)
	readOnly("tagName", func() goja.Value { return vm.ToValue(el.TagName()) })
	readOnly("nodeName", func() goja.Value { return vm.ToValue(el.TagName()) })
	readOnly("localName", func() goja.Value { return vm.ToValue(el.LocalName()) })
	readOnly("ownerDocument", func() goja.Value { return w.document })
	readOnly("isConnected", func() goja.Value { return vm.ToValue(el.Connected()) })
	readOnly("parentNode", func() goja.Value {
		if el.Node().Parent == w.doc.Root() {
			return w.document
		}
		return w.element(vm, el.Parent())
	})
	readOnly("parentElement", func() goja.Value { return w.element(vm, el.Parent()) })
	readOnly("children", func() goja.Value { return w.elements(vm, el.Children()) })
	readOnly("childElementCount", func() goja.Value { return vm.ToValue(len(el.Children())) })
	readOnly("firstElementChild", func() goja.Value {
		if c := el.Children(); len(c) > 0 {
			return w.element(vm, c[0])
		}
		return goja.Null()
	})
	readOnly("lastElementChild", func() goja.Value {
		if c := el.Children(); len(c) > 0 {
			return w.element(vm, c[len(c)-1])
		}
		return goja.Null()
	})
	readOnly("outerHTML", func() goja.Value { return vm.ToValue(el.OuterHTML()) })

	for prop, attr := range map[string]string{
		"id": "id", "className": "class", "target": "target", "rel": "rel",
		"title": "title", "name": "name", "type": "type", "value": "value",
		"src": "src", "download": "download",
	} {
		reflect(prop, attr)
	}
	jsEl.DefineAccessorProperty("href",
		getter(func() goja.Value { return vm.ToValue(el.Href()) }),
		vm.ToValue(func(call goja.FunctionCall) goja.Value {
			el.SetAttribute("href", call.Argument(0).String())
			return goja.Undefined()
		}), goja.FLAG_FALSE, goja.FLAG_TRUE)

	text := getter(func() goja.Value { return vm.ToValue(el.TextContent()) })
	setText := vm.ToValue(func(call goja.FunctionCall) goja.Value {
		el.SetTextContent(call.Argument(0).String())
		return goja.Undefined()
	})
	jsEl.DefineAccessorProperty("textContent", text, setText, goja.FLAG_FALSE, goja.FLAG_TRUE)
	jsEl.DefineAccessorProperty("innerText", text, setText, goja.FLAG_FALSE, goja.FLAG_TRUE)
	jsEl.DefineAccessorProperty("innerHTML",
		getter(func() goja.Value { return vm.ToValue(el.InnerHTML()) }),
		vm.ToValue(func(call goja.FunctionCall) goja.Value {
			if err := el.SetInnerHTML(call.Argument(0).String()); err != nil {
				panic(vm.NewGoError(err))
			}
			return goja.Undefined()
		}), goja.FLAG_FALSE, goja.FLAG_TRUE)

	jsEl.Set("style", vm.NewObject())

	jsEl.Set("getAttribute", func(call goja.FunctionCall) goja.Value {
		v, ok := el.LookupAttribute(call.Argument(0).String())
		if !ok {
			return goja.Null()
		}
		return vm.ToValue(v)
	})
	jsEl.Set("setAttribute", func(call goja.FunctionCall) goja.Value {
		el.SetAttribute(call.Argument(0).String(), call.Argument(1).String())
		return goja.Undefined()
	})
	jsEl.Set("hasAttribute", func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(el.HasAttribute(call.Argument(0).String()))
	})
	jsEl.Set("removeAttribute", func(call goja.FunctionCall) goja.Value {
		el.RemoveAttribute(call.Argument(0).String())
		return goja.Undefined()
	})

	insert := func(child, ref goja.Value) goja.Value {
		n := w.nodeOf(child)
		if n == nil {
			panic(vm.NewTypeError("Failed to execute 'appendChild': parameter 1 is not of type 'Node'."))
		}
		if n.Type == html.TextNode {
			if n.Parent != nil {
				n.Parent.RemoveChild(n)
			}
			if r := w.nodeOf(ref); r != nil && r.Parent == el.Node() {
				el.Node().InsertBefore(n, r)
			} else {
				el.Node().AppendChild(n)
			}
			return child
		}
		el.InsertBefore(w.doc.Wrap(n), w.doc.Wrap(w.nodeOf(ref)))
		w.scriptsInserted(vm, n)
		return child
	}
	jsEl.Set("appendChild", func(call goja.FunctionCall) goja.Value {
		return insert(call.Argument(0), goja.Null())
	})
	jsEl.Set("append", func(call goja.FunctionCall) goja.Value {
		for _, arg := range call.Arguments {
			if _, isObj := arg.(*goja.Object); isObj {
				insert(arg, goja.Null())
			} else {
				el.AppendText(arg.String())
			}
		}
		return goja.Undefined()
	})
	jsEl.Set("insertBefore", func(call goja.FunctionCall) goja.Value {
		return insert(call.Argument(0), call.Argument(1))
	})
	jsEl.Set("removeChild", func(call goja.FunctionCall) goja.Value {
		n := w.nodeOf(call.Argument(0))
		if n == nil || n.Parent != el.Node() {
			panic(vm.NewGoError(errNotFound))
		}
		el.Node().RemoveChild(n)
		return call.Argument(0)
	})
	jsEl.Set("remove", func(goja.FunctionCall) goja.Value {
		el.Remove()
		return goja.Undefined()
	})
	jsEl.Set("contains", func(call goja.FunctionCall) goja.Value {
		for p := w.nodeOf(call.Argument(0)); p != nil; p = p.Parent {
			if p == el.Node() {
				return vm.ToValue(true)
			}
		}
		return vm.ToValue(false)
	})
	jsEl.Set("getElementsByTagName", func(call goja.FunctionCall) goja.Value {
		return w.elements(vm, el.GetElementsByTagName(call.Argument(0).String()))
	})
	jsEl.Set("querySelector", func(call goja.FunctionCall) goja.Value {
		found, err := el.QuerySelector(call.Argument(0).String())
		if err != nil {
			panic(syntaxError(vm, err))
		}
		return w.element(vm, found)
	})
	jsEl.Set("querySelectorAll", func(call goja.FunctionCall) goja.Value {
		found, err := el.QuerySelectorAll(call.Argument(0).String())
		if err != nil {
			panic(syntaxError(vm, err))
		}
		return w.elements(vm, found)
	})
	jsEl.Set("closest", func(call goja.FunctionCall) goja.Value {
		tag := strings.ToLower(call.Argument(0).String())
		for p := el; p != nil; p = p.Parent() {
			if p.Is(tag) {
				return w.element(vm, p)
			}
		}
		return goja.Null()
	})
	jsEl.Set("focus", func(goja.FunctionCall) goja.Value {
		el.Focus()
		return goja.Undefined()
	})
	jsEl.Set("blur", func(goja.FunctionCall) goja.Value {
		if w.doc.ActiveElement() == el {
			w.doc.Focus(nil)
		}
		return goja.Undefined()
	})
	jsEl.Set("click", func(goja.FunctionCall) goja.Value {
		w.activate(vm, el)
		return goja.Undefined()
	})

	target := w.targetFor(el.Node())
	bindEventTarget(vm, jsEl, target, func(event *goja.Object) bool {
		return w.dispatch(vm, event, el.Node())
	})
	return jsEl
}

func (w *Window) targetFor(n *html.Node) *EventTarget {
	t, ok := w.targets[n]
	if !ok {
		t = newEventTarget()
		w.targets[n] = t
	}
	return t
}

// dispatch delivers event at n, then bubbles it through the ancestors, the
// document and the window. Dispatching at the document root starts at the
// document. It returns false when the default action was prevented.
func (w *Window) dispatch(vm *goja.Runtime, event *goja.Object, n *html.Node) bool {
	type hop struct {
		target  *EventTarget
		current goja.Value
	}
	var path []hop
	for p := n; p != nil && p != w.doc.Root(); p = p.Parent {
		if p.Type != html.ElementNode {
			continue
		}
		path = append(path, hop{w.targetFor(p), w.element(vm, w.doc.Wrap(p))})
	}
	if n == w.doc.Root() || w.doc.Wrap(n).Connected() {
		path = append(path, hop{w.docTarget, w.document}, hop{w.winTarget, w.global})
	}
	if len(path) == 0 {
		return true
	}

	event.Set("target", path[0].current)
	bubbles := flag(event, "bubbles")
	for i, h := range path {
		if i > 0 && !bubbles {
			break
		}
		event.Set("currentTarget", h.current)
		if !h.target.fire(event, h.current, w.report) || flag(event, "_stopPropagation") {
			break
		}
	}
	event.Set("currentTarget", goja.Null())
	return !flag(event, "defaultPrevented")
}

// fireWindowEvent dispatches a non-bubbling event at the window, including
// its on<type> handler property. Called with the runtime lock held.
func (w *Window) fireWindowEvent(eventType string, init eventInit) bool {
	vm := w.rt.vm
	if init.detail == nil {
		init.detail = goja.Null()
	}
	event := newEvent(vm, eventType, init)
	event.Set("target", w.global)
	event.Set("currentTarget", w.global)
	if w.winTarget.fire(event, w.global, w.report) {
		if handler, ok := goja.AssertFunction(w.global.Get("on" + eventType)); ok {
			if _, err := handler(w.global, event); err != nil {
				w.report(err)
			}
		}
	}
	return !flag(event, "defaultPrevented")
}

// activate performs a click on el: listeners run first, then an anchor
// with an href is followed unless the default was prevented.
func (w *Window) activate(vm *goja.Runtime, el *dom.Element) {
	w.doc.Focus(el)
	event := newEvent(vm, "click", eventInit{bubbles: true, cancelable: true, detail: vm.ToValue(1)})
	if !w.dispatch(vm, event, el.Node()) {
		return
	}
	var anchor *dom.Element
	for p := el; p != nil; p = p.Parent() {
		if p.IsAnchor() {
			anchor = p
			break
		}
	}
	if anchor == nil {
		return
	}
	href := anchor.Href()
	if href == "" {
		return
	}
	if anchor.OpensInNewContext() {
		if w.opts.Open == nil {
			w.logger.Warn("js: cannot open a new browsing context", "url", href)
			return
		}
		open := w.opts.Open
		w.rt.Defer(func() { open(href) })
		return
	}
	w.navigate(href)
}
