package dom

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	htmlutil "github.com/chrisuehlinger/ersatz/html"
)

// Element is an element node of a Document.
type Element struct {
	doc  *Document
	node *html.Node
}

// Node returns the underlying parse tree node.
func (e *Element) Node() *html.Node {
	return e.node
}

// OwnerDocument returns the document the element belongs to.
func (e *Element) OwnerDocument() *Document {
	return e.doc
}

// TagName returns the upper-case tag name, as the DOM reports it.
func (e *Element) TagName() string {
	return strings.ToUpper(e.node.Data)
}

// LocalName returns the lower-case tag name.
func (e *Element) LocalName() string {
	return e.node.Data
}

// Is reports whether the element has the given lower-case tag name.
func (e *Element) Is(tag string) bool {
	return e.node.Data == tag
}

// ID returns the id attribute.
func (e *Element) ID() string {
	return e.GetAttribute("id")
}

func (e *Element) GetAttribute(name string) string {
	return htmlutil.GetAttribute(e.node, strings.ToLower(name))
}

// LookupAttribute returns the attribute value and whether it is present.
func (e *Element) LookupAttribute(name string) (string, bool) {
	return htmlutil.LookupAttribute(e.node, strings.ToLower(name))
}

func (e *Element) HasAttribute(name string) bool {
	return htmlutil.HasAttribute(e.node, strings.ToLower(name))
}

func (e *Element) SetAttribute(name, value string) {
	htmlutil.SetAttribute(e.node, strings.ToLower(name), value)
}

func (e *Element) RemoveAttribute(name string) {
	htmlutil.RemoveAttribute(e.node, strings.ToLower(name))
}

// Href returns the href attribute resolved against the document base URL,
// like HTMLAnchorElement.href. Elements without href return "".
func (e *Element) Href() string {
	ref, ok := e.LookupAttribute("href")
	if !ok {
		return ""
	}
	return e.doc.ResolveURL(ref)
}

// OpensInNewContext reports whether following this anchor makes the
// browser open a new browsing context instead of navigating in place: a
// download link, or a target=_blank / rel=noopener link without an opener
// attribute.
func (e *Element) OpensInNewContext() bool {
	if e.HasAttribute("download") {
		return true
	}
	newTab := e.GetAttribute("target") == "_blank" || strings.Contains(e.GetAttribute("rel"), "noopener")
	return newTab && !e.HasAttribute("opener")
}

func (e *Element) TextContent() string {
	return htmlutil.TextContent(e.node)
}

// SetTextContent replaces the children with a single text node.
func (e *Element) SetTextContent(text string) {
	htmlutil.SetTextContent(e.node, text)
}

func (e *Element) InnerHTML() string {
	return htmlutil.InnerHTML(e.node)
}

// SetInnerHTML replaces the children with the parsed fragment.
func (e *Element) SetInnerHTML(fragment string) error {
	nodes, err := htmlutil.ParseFragment(fragment, e.node)
	if err != nil {
		return err
	}
	htmlutil.RemoveChildren(e.node)
	for _, n := range nodes {
		e.node.AppendChild(n)
	}
	for _, n := range nodes {
		e.doc.notifyInserted(n)
	}
	return nil
}

func (e *Element) OuterHTML() string {
	return htmlutil.Render(e.node)
}

// Parent returns the parent element, or nil for the root element and
// detached elements.
func (e *Element) Parent() *Element {
	return e.doc.Wrap(e.node.Parent)
}

// Children returns the element children.
func (e *Element) Children() []*Element {
	var out []*Element
	for c := e.node.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			out = append(out, e.doc.Wrap(c))
		}
	}
	return out
}

// AppendChild moves child to the end of e's children.
func (e *Element) AppendChild(child *Element) {
	e.InsertBefore(child, nil)
}

// InsertBefore inserts child before ref. A nil ref appends.
func (e *Element) InsertBefore(child, ref *Element) {
	if child == nil || child.node == e.node || child.contains(e.node) {
		return
	}
	if child.node.Parent != nil {
		child.node.Parent.RemoveChild(child.node)
	}
	if ref != nil && ref.node.Parent == e.node {
		e.node.InsertBefore(child.node, ref.node)
	} else {
		e.node.AppendChild(child.node)
	}
	e.doc.notifyInserted(child.node)
}

// AppendText appends a text node.
func (e *Element) AppendText(text string) {
	e.node.AppendChild(&html.Node{Type: html.TextNode, Data: text})
}

// Remove detaches the element from its parent.
func (e *Element) Remove() {
	if e.node.Parent != nil {
		e.node.Parent.RemoveChild(e.node)
	}
}

// Connected reports whether the element is attached to its document.
func (e *Element) Connected() bool {
	return e.doc.contains(e.node)
}

func (e *Element) contains(n *html.Node) bool {
	for p := n; p != nil; p = p.Parent {
		if p == e.node {
			return true
		}
	}
	return false
}

// GetElementsByTagName returns the descendants with the given tag name.
func (e *Element) GetElementsByTagName(tag string) []*Element {
	return e.doc.wrapAll(byTagName(e.node, tag))
}

// QuerySelector returns the first descendant matching the CSS selector.
func (e *Element) QuerySelector(selector string) (*Element, error) {
	return e.doc.querySelector(e.node, selector)
}

// QuerySelectorAll returns the descendants matching the CSS selector.
func (e *Element) QuerySelectorAll(selector string) ([]*Element, error) {
	return e.doc.querySelectorAll(e.node, selector)
}

// Focus makes e the document's active element.
func (e *Element) Focus() {
	e.doc.Focus(e)
}

// IsAnchor reports whether e is an a element.
func (e *Element) IsAnchor() bool {
	return e.node.DataAtom == atom.A
}
