package html

import (
	"strings"

	"golang.org/x/net/html"
)

// SpliceAfterBody inserts snippet textually right after the opening body
// tag of doc. Documents without an explicit body tag get the snippet
// prepended, which the parser places at the start of the implied body.
// The rest of doc is left byte-for-byte intact.
func SpliceAfterBody(doc, snippet string) string {
	if offset := bodyTagEnd(doc); offset >= 0 {
		return doc[:offset] + snippet + doc[offset:]
	}
	return snippet + doc
}

// bodyTagEnd returns the byte offset just past the first <body ...> start
// tag, or -1.
func bodyTagEnd(doc string) int {
	z := html.NewTokenizer(strings.NewReader(doc))
	offset := 0
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			return -1
		}
		offset += len(z.Raw())
		if tt == html.StartTagToken || tt == html.SelfClosingTagToken {
			name, _ := z.TagName()
			if string(name) == "body" {
				return offset
			}
		}
	}
}
