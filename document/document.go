// Package document parses fetched pages and evaluates XPath locators on them.
package document

import (
	"bytes"
	"fmt"
	"io"
	"net/url"
	"strconv"

	"github.com/antchfx/htmlquery"
	"github.com/antchfx/xpath"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/net/html"
)

const exprCacheSize = 512

// Locators are evaluated once per result position and once per detail page,
// so compiled expressions are shared process-wide.
var exprCache, _ = lru.New[string, *xpath.Expr](exprCacheSize)

// LocatorError reports an expression that failed to compile or evaluate.
type LocatorError struct {
	Expr string
	Err  error
}

func (e *LocatorError) Error() string {
	return fmt.Sprintf("locator %q: %v", e.Expr, e.Err)
}

func (e *LocatorError) Unwrap() error {
	return e.Err
}

// Document is a parsed page together with the URL it was fetched from.
type Document struct {
	root *Node
	url  *url.URL
}

// Node is an element (or text/attribute) position inside a document.
type Node struct {
	n *html.Node
}

// Parse builds a document from an HTML body. pageURL may be nil.
func Parse(r io.Reader, pageURL *url.URL) (*Document, error) {
	root, err := htmlquery.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return &Document{root: &Node{n: root}, url: pageURL}, nil
}

// ParseBytes is Parse over an in-memory body.
func ParseBytes(body []byte, pageURL *url.URL) (*Document, error) {
	return Parse(bytes.NewReader(body), pageURL)
}

// URL returns the page URL, or nil when unknown.
func (d *Document) URL() *url.URL {
	return d.url
}

// Root returns the document node.
func (d *Document) Root() *Node {
	return d.root
}

// Find evaluates expr from the document root. See Node.Find.
func (d *Document) Find(expr string) (*Node, error) {
	return d.root.Find(expr)
}

// Text evaluates expr from the document root. See Node.Text.
func (d *Document) Text(expr string) (string, error) {
	return d.root.Text(expr)
}

// Resolve turns ref into an absolute URL using the page URL as base.
func (d *Document) Resolve(ref string) (string, error) {
	parsed, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("parse link %q: %w", ref, err)
	}
	if d.url == nil || parsed.IsAbs() {
		return parsed.String(), nil
	}
	return d.url.ResolveReference(parsed).String(), nil
}

// HTML returns the underlying parse-tree node.
func (n *Node) HTML() *html.Node {
	return n.n
}

// Find returns the first node matched by expr, evaluated relative to n, or
// nil when nothing matches.
func (n *Node) Find(expr string) (found *Node, err error) {
	compiled, err := compile(expr)
	if err != nil {
		return nil, err
	}
	defer recoverLocator(expr, &err)

	iter := compiled.Select(htmlquery.CreateXPathNavigator(n.n))
	if !iter.MoveNext() {
		return nil, nil
	}
	nav, ok := iter.Current().(*htmlquery.NodeNavigator)
	if !ok {
		return nil, &LocatorError{Expr: expr, Err: fmt.Errorf("unexpected navigator %T", iter.Current())}
	}
	return &Node{n: nav.Current()}, nil
}

// Text returns the string value of the first match of expr relative to n:
// the value of an attribute, the data of a text node, the inner text of an
// element, or the formatted result of a scalar expression. It returns ""
// when nothing matches.
func (n *Node) Text(expr string) (value string, err error) {
	compiled, err := compile(expr)
	if err != nil {
		return "", err
	}
	defer recoverLocator(expr, &err)

	switch v := compiled.Evaluate(htmlquery.CreateXPathNavigator(n.n)).(type) {
	case *xpath.NodeIterator:
		if !v.MoveNext() {
			return "", nil
		}
		return v.Current().Value(), nil
	case string:
		return v, nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(v), nil
	default:
		return "", &LocatorError{Expr: expr, Err: fmt.Errorf("unsupported result type %T", v)}
	}
}

// Attr returns the named attribute of an element node.
func (n *Node) Attr(name string) string {
	return htmlquery.SelectAttr(n.n, name)
}

// InnerText returns the concatenated text below n.
func (n *Node) InnerText() string {
	return htmlquery.InnerText(n.n)
}

func compile(expr string) (*xpath.Expr, error) {
	if compiled, ok := exprCache.Get(expr); ok {
		return compiled, nil
	}
	compiled, err := xpath.Compile(expr)
	if err != nil {
		return nil, &LocatorError{Expr: expr, Err: err}
	}
	exprCache.Add(expr, compiled)
	return compiled, nil
}

// xpath panics on some malformed navigations; those surface as LocatorErrors.
func recoverLocator(expr string, errp *error) {
	if r := recover(); r != nil {
		*errp = &LocatorError{Expr: expr, Err: fmt.Errorf("%v", r)}
	}
}
