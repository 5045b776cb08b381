// Package source describes the content a WebView displays and resolves it
// into a document body and URL.
package source

import "maps"

// Source is the declarative content of a WebView: either HTML or URI. A nil
// Source renders an empty document.
type Source interface {
	isSource()
}

// HTML is inline markup. BaseURL, when set, is the document URL relative
// references resolve against.
type HTML struct {
	HTML    string
	BaseURL string
}

// URI is a remote document fetched with the given request parameters. An
// empty Method means GET.
type URI struct {
	URI     string
	Headers map[string]string
	Method  string
	Body    string
}

func (HTML) isSource() {}
func (URI) isSource()  {}

// Normalized is a resolved source: the document body and its URL.
type Normalized struct {
	HTML string
	URL  string
}

// Equal reports whether a and b describe the same content.
func Equal(a, b Source) bool {
	switch a := a.(type) {
	case nil:
		return b == nil
	case HTML:
		b, ok := b.(HTML)
		return ok && a == b
	case URI:
		b, ok := b.(URI)
		return ok && a.URI == b.URI && a.Method == b.Method && a.Body == b.Body &&
			maps.Equal(a.Headers, b.Headers)
	}
	return false
}

// Inline returns the normalized form of a source that needs no fetch, and
// false for remote sources.
func Inline(src Source) (Normalized, bool) {
	switch s := src.(type) {
	case HTML:
		return Normalized{HTML: s.HTML, URL: s.BaseURL}, true
	case URI:
		if s.URI == "" {
			return Normalized{}, true
		}
		return Normalized{}, false
	}
	return Normalized{}, true
}
