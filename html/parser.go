// Package html provides HTML parsing and serialization helpers using
// golang.org/x/net/html as the underlying parser implementation.
package html

import (
	"bytes"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Parse parses HTML from a string and returns a document node. The parser
// always produces html, head and body elements.
func Parse(htmlContent string) (*html.Node, error) {
	return ParseReader(strings.NewReader(htmlContent))
}

// ParseReader parses HTML from an io.Reader and returns a document node.
func ParseReader(r io.Reader) (*html.Node, error) {
	return html.Parse(r)
}

// ParseFragment parses an HTML fragment in the context of a parent element.
// A nil context parses as body content.
func ParseFragment(fragment string, context *html.Node) ([]*html.Node, error) {
	if context == nil || context.Type != html.ElementNode {
		context = &html.Node{
			Type:     html.ElementNode,
			Data:     "body",
			DataAtom: atom.Body,
		}
	}
	return html.ParseFragment(strings.NewReader(fragment), context)
}

// Render serializes a node and its descendants.
func Render(n *html.Node) string {
	var buf bytes.Buffer
	if err := html.Render(&buf, n); err != nil {
		return ""
	}
	return buf.String()
}

// InnerHTML serializes the children of n.
func InnerHTML(n *html.Node) string {
	var buf bytes.Buffer
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&buf, c); err != nil {
			return ""
		}
	}
	return buf.String()
}

// TextContent returns the text content of a node and its descendants.
func TextContent(n *html.Node) string {
	var sb strings.Builder
	collectTextContent(n, &sb)
	return sb.String()
}

func collectTextContent(n *html.Node, sb *strings.Builder) {
	if n.Type == html.TextNode {
		sb.WriteString(n.Data)
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectTextContent(c, sb)
	}
}

// SetTextContent replaces all children of n with a single text node.
func SetTextContent(n *html.Node, text string) {
	RemoveChildren(n)
	if text != "" {
		n.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	}
}

// RemoveChildren detaches every child of n.
func RemoveChildren(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		c = next
	}
}

// GetAttribute returns the value of the specified attribute, or empty string if not found.
func GetAttribute(n *html.Node, key string) string {
	v, _ := LookupAttribute(n, key)
	return v
}

// LookupAttribute returns the value of the attribute and whether it exists.
func LookupAttribute(n *html.Node, key string) (string, bool) {
	for _, attr := range n.Attr {
		if attr.Namespace == "" && attr.Key == key {
			return attr.Val, true
		}
	}
	return "", false
}

// SetAttribute sets an attribute value, creating it if it doesn't exist.
func SetAttribute(n *html.Node, key, value string) {
	for i, attr := range n.Attr {
		if attr.Namespace == "" && attr.Key == key {
			n.Attr[i].Val = value
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: value})
}

// HasAttribute returns true if the node has the specified attribute.
func HasAttribute(n *html.Node, key string) bool {
	_, ok := LookupAttribute(n, key)
	return ok
}

// RemoveAttribute removes an attribute from the node.
func RemoveAttribute(n *html.Node, key string) {
	for i, attr := range n.Attr {
		if attr.Namespace == "" && attr.Key == key {
			n.Attr = append(n.Attr[:i], n.Attr[i+1:]...)
			return
		}
	}
}

// NewElement creates a detached element node.
func NewElement(tag string) *html.Node {
	tag = strings.ToLower(tag)
	return &html.Node{
		Type:     html.ElementNode,
		Data:     tag,
		DataAtom: atom.Lookup([]byte(tag)),
	}
}

// FindFirst returns the first descendant of n (in document order) for which
// match returns true.
func FindFirst(n *html.Node, match func(*html.Node) bool) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if match(c) {
			return c
		}
		if found := FindFirst(c, match); found != nil {
			return found
		}
	}
	return nil
}

// FindAll returns every descendant of n for which match returns true.
func FindAll(n *html.Node, match func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(p *html.Node) {
		for c := p.FirstChild; c != nil; c = c.NextSibling {
			if match(c) {
				out = append(out, c)
			}
			walk(c)
		}
	}
	walk(n)
	return out
}

// IsElement reports whether n is an element with the given lower-case tag
// name. An empty tag matches any element.
func IsElement(n *html.Node, tag string) bool {
	return n != nil && n.Type == html.ElementNode && (tag == "" || n.Data == tag)
}
