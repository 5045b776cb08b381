// Package dom implements the headless document model shared by the DOM
// engines. It wraps a golang.org/x/net/html tree and adds what a WebView
// host needs on top of the parse tree: id and tag lookups, CSS selectors,
// base-URL aware links, the focused element and insertion observers.
//
// A Document is not safe for concurrent use. Engines serialize access
// through their window.
package dom

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	htmlutil "github.com/chrisuehlinger/ersatz/html"
	"github.com/chrisuehlinger/ersatz/network"
)

// BlankURL is the location of documents created without a URL.
const BlankURL = "about:blank"

// Document is a parsed HTML document.
type Document struct {
	root      *html.Node
	url       string
	active    *html.Node
	elements  map[*html.Node]*Element
	observers map[int]func(*Element)
	nextObs   int
}

// NewDocument wraps an existing document node. An empty url means
// about:blank.
func NewDocument(root *html.Node, url string) *Document {
	if url == "" {
		url = BlankURL
	}
	return &Document{
		root:      root,
		url:       url,
		elements:  make(map[*html.Node]*Element),
		observers: make(map[int]func(*Element)),
	}
}

// Parse parses src into a new document located at url.
func Parse(src, url string) (*Document, error) {
	root, err := htmlutil.Parse(src)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return NewDocument(root, url), nil
}

// Root returns the underlying document node.
func (d *Document) Root() *html.Node {
	return d.root
}

// URL returns the document location.
func (d *Document) URL() string {
	return d.url
}

// SetURL changes the document location.
func (d *Document) SetURL(url string) {
	if url == "" {
		url = BlankURL
	}
	d.url = url
}

// Origin returns the serialized origin of the document location.
func (d *Document) Origin() string {
	origin, err := network.GetOrigin(d.url)
	if err != nil {
		return "null"
	}
	return origin
}

// Wrap returns the element wrapping n, or nil if n is not an element.
// Wrapping the same node twice yields the same *Element.
func (d *Document) Wrap(n *html.Node) *Element {
	if n == nil || n.Type != html.ElementNode {
		return nil
	}
	if el, ok := d.elements[n]; ok {
		return el
	}
	el := &Element{doc: d, node: n}
	d.elements[n] = el
	return el
}

func (d *Document) wrapAll(nodes []*html.Node) []*Element {
	out := make([]*Element, 0, len(nodes))
	for _, n := range nodes {
		if el := d.Wrap(n); el != nil {
			out = append(out, el)
		}
	}
	return out
}

// DocumentElement returns the root html element.
func (d *Document) DocumentElement() *Element {
	for c := d.root.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			return d.Wrap(c)
		}
	}
	return nil
}

// Head returns the head element, or nil.
func (d *Document) Head() *Element {
	return d.firstChildOfRoot(atom.Head)
}

// Body returns the body element, or nil.
func (d *Document) Body() *Element {
	return d.firstChildOfRoot(atom.Body)
}

func (d *Document) firstChildOfRoot(a atom.Atom) *Element {
	root := d.DocumentElement()
	if root == nil {
		return nil
	}
	for c := root.node.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == a {
			return d.Wrap(c)
		}
	}
	return nil
}

// Title returns the text of the first title element with whitespace
// collapsed.
func (d *Document) Title() string {
	title := htmlutil.FindFirst(d.root, func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.DataAtom == atom.Title
	})
	if title == nil {
		return ""
	}
	return strings.Join(strings.Fields(htmlutil.TextContent(title)), " ")
}

// SetTitle replaces the document title, creating the title element in the
// head when missing.
func (d *Document) SetTitle(title string) {
	n := htmlutil.FindFirst(d.root, func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.DataAtom == atom.Title
	})
	if n == nil {
		head := d.ensureHead()
		if head == nil {
			return
		}
		el := d.CreateElement("title")
		head.AppendChild(el)
		n = el.node
	}
	htmlutil.SetTextContent(n, title)
}

// GetElementByID returns the first element with the given id, or nil.
func (d *Document) GetElementByID(id string) *Element {
	if id == "" {
		return nil
	}
	return d.Wrap(htmlutil.FindFirst(d.root, func(n *html.Node) bool {
		return n.Type == html.ElementNode && htmlutil.GetAttribute(n, "id") == id
	}))
}

// GetElementsByTagName returns the elements with the given tag name in
// document order. "*" matches every element.
func (d *Document) GetElementsByTagName(tag string) []*Element {
	return d.wrapAll(byTagName(d.root, tag))
}

func byTagName(root *html.Node, tag string) []*html.Node {
	tag = strings.ToLower(tag)
	return htmlutil.FindAll(root, func(n *html.Node) bool {
		return n.Type == html.ElementNode && (tag == "*" || n.Data == tag)
	})
}

// QuerySelector returns the first element matching the CSS selector, or
// nil.
func (d *Document) QuerySelector(selector string) (*Element, error) {
	return d.querySelector(d.root, selector)
}

// QuerySelectorAll returns every element matching the CSS selector.
func (d *Document) QuerySelectorAll(selector string) ([]*Element, error) {
	return d.querySelectorAll(d.root, selector)
}

func (d *Document) querySelector(scope *html.Node, selector string) (*Element, error) {
	all, err := d.querySelectorAll(scope, selector)
	if err != nil || len(all) == 0 {
		return nil, err
	}
	return all[0], nil
}

func (d *Document) querySelectorAll(scope *html.Node, selector string) ([]*Element, error) {
	matcher, err := cascadia.Compile(selector)
	if err != nil {
		return nil, fmt.Errorf("invalid selector %q: %w", selector, err)
	}
	sel := goquery.NewDocumentFromNode(scope).FindMatcher(matcher)
	return d.wrapAll(sel.Nodes), nil
}

// CreateElement creates a detached element owned by d.
func (d *Document) CreateElement(tag string) *Element {
	return d.Wrap(htmlutil.NewElement(tag))
}

// ActiveElement returns the focused element, falling back to the body.
func (d *Document) ActiveElement() *Element {
	if d.active != nil && d.contains(d.active) {
		return d.Wrap(d.active)
	}
	return d.Body()
}

// Focus moves focus to el. A nil element blurs.
func (d *Document) Focus(el *Element) {
	if el == nil {
		d.active = nil
		return
	}
	d.active = el.node
}

func (d *Document) contains(n *html.Node) bool {
	for p := n; p != nil; p = p.Parent {
		if p == d.root {
			return true
		}
	}
	return false
}

// BaseURL returns the URL relative references resolve against: the href
// of the first base element when present, else the document URL.
func (d *Document) BaseURL() string {
	base := htmlutil.FindFirst(d.root, func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.DataAtom == atom.Base && htmlutil.HasAttribute(n, "href")
	})
	if base == nil {
		return d.url
	}
	resolved, err := network.ResolveURL(d.url, htmlutil.GetAttribute(base, "href"))
	if err != nil {
		return htmlutil.GetAttribute(base, "href")
	}
	return resolved
}

// ResolveURL resolves ref against the document base URL. Unresolvable
// references are returned unchanged.
func (d *Document) ResolveURL(ref string) string {
	resolved, err := network.ResolveURL(d.BaseURL(), strings.TrimSpace(ref))
	if err != nil {
		return ref
	}
	return resolved
}

// InjectBase points the document's base element at href, creating the
// head and base elements when needed.
func (d *Document) InjectBase(href string) {
	head := d.ensureHead()
	if head == nil {
		return
	}
	var base *Element
	for c := head.node.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == atom.Base {
			base = d.Wrap(c)
			break
		}
	}
	if base == nil {
		base = d.CreateElement("base")
		head.AppendChild(base)
	}
	base.SetAttribute("href", href)
}

func (d *Document) ensureHead() *Element {
	if head := d.Head(); head != nil {
		return head
	}
	root := d.DocumentElement()
	if root == nil {
		return nil
	}
	head := d.CreateElement("head")
	root.node.InsertBefore(head.node, root.node.FirstChild)
	return head
}

// Observe registers fn to be called with every element inserted through
// this package (AppendChild, InsertBefore, SetInnerHTML), including the
// descendants of inserted subtrees. The returned function unregisters it.
func (d *Document) Observe(fn func(*Element)) (cancel func()) {
	id := d.nextObs
	d.nextObs++
	d.observers[id] = fn
	return func() { delete(d.observers, id) }
}

func (d *Document) notifyInserted(n *html.Node) {
	if len(d.observers) == 0 || !d.contains(n) {
		return
	}
	var added []*Element
	if el := d.Wrap(n); el != nil {
		added = append(added, el)
	}
	added = append(added, d.wrapAll(byTagName(n, "*"))...)
	for _, el := range added {
		for _, fn := range d.observers {
			fn(el)
		}
	}
}

// Render serializes the whole document.
func (d *Document) Render() string {
	return htmlutil.Render(d.root)
}
