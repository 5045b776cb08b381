package iframe

import (
	"maps"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Iframe describes the iframe element of one generation.
type Iframe struct {
	// Key identifies the generation; a new key means a new browsing
	// context.
	Key int
	// ID is the DOM id of the element in the host document.
	ID     string
	Src    string
	SrcDoc string
	Allow  string
	// Sandbox is only rendered when Sandboxed is set: an empty sandbox
	// attribute applies every restriction.
	Sandbox             string
	Sandboxed           bool
	AllowFullscreen     bool
	AllowPaymentRequest bool
	Lazy                bool
	ReferrerPolicy      string
	CSP                 string
	Width               string
	Height              string
}

// Attrs returns the attributes of the element.
func (f Iframe) Attrs() map[string]string {
	attrs := map[string]string{}
	set := func(k, v string) {
		if v != "" {
			attrs[k] = v
		}
	}
	set("id", f.ID)
	set("src", f.Src)
	set("srcdoc", f.SrcDoc)
	set("allow", f.Allow)
	if f.Sandboxed {
		attrs["sandbox"] = f.Sandbox
	}
	if f.AllowFullscreen {
		attrs["allowfullscreen"] = ""
	}
	if f.AllowPaymentRequest {
		attrs["allowpaymentrequest"] = "true"
	}
	if f.Lazy {
		attrs["loading"] = "lazy"
	}
	set("referrerpolicy", f.ReferrerPolicy)
	set("csp", f.CSP)
	set("width", f.Width)
	set("height", f.Height)
	attrs["data-key"] = strconv.Itoa(f.Key)
	return attrs
}

// Node returns the element as a detached node.
func (f Iframe) Node() *html.Node {
	n := &html.Node{Type: html.ElementNode, DataAtom: atom.Iframe, Data: "iframe"}
	attrs := f.Attrs()
	for _, k := range slices.Sorted(maps.Keys(attrs)) {
		n.Attr = append(n.Attr, html.Attribute{Key: k, Val: attrs[k]})
	}
	return n
}

// Markup serializes the element.
func (f Iframe) Markup() string {
	var b strings.Builder
	_ = html.Render(&b, f.Node())
	return b.String()
}

// ScriptsAllowed reports whether scripts run in the frame.
func (f Iframe) ScriptsAllowed() bool {
	return !f.Sandboxed || SandboxTokens(f.Sandbox)["allow-scripts"]
}

// SameOrigin reports whether the frame keeps its origin, rather than
// getting an opaque one.
func (f Iframe) SameOrigin() bool {
	return !f.Sandboxed || SandboxTokens(f.Sandbox)["allow-same-origin"]
}

// PopupsAllowed reports whether the frame may open new browsing contexts.
func (f Iframe) PopupsAllowed() bool {
	return !f.Sandboxed || SandboxTokens(f.Sandbox)["allow-popups"]
}
