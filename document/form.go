package document

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/aluiziolira/go-scrape-hotels/models"
	"golang.org/x/net/html"
)

// ErrSearchInputNotFound is returned when the search input locator matches
// nothing on the page.
var ErrSearchInputNotFound = errors.New("search input not found")

// FormRequest is a form submission ready to be fetched.
type FormRequest struct {
	Method string
	URL    string
	Fields models.SearchCriteria
}

// Encode returns the fields as an application/x-www-form-urlencoded string,
// keeping field order.
func (f *FormRequest) Encode() string {
	var b strings.Builder
	for i, field := range f.Fields {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(field.Name))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(field.Value))
	}
	return b.String()
}

// TargetURL returns the URL to request. GET submissions replace the action's
// query with the encoded fields.
func (f *FormRequest) TargetURL() (string, error) {
	if f.Method != http.MethodGet {
		return f.URL, nil
	}
	parsed, err := url.Parse(f.URL)
	if err != nil {
		return "", fmt.Errorf("parse form action %q: %w", f.URL, err)
	}
	parsed.RawQuery = f.Encode()
	return parsed.String(), nil
}

// Form locates the element matched by inputExpr, takes its enclosing form
// and returns the submission a browser would make with data filled in. Form
// fields named in data are replaced; the rest keep their default values.
func (d *Document) Form(inputExpr string, data models.SearchCriteria) (*FormRequest, error) {
	input, err := d.Find(inputExpr)
	if err != nil {
		return nil, err
	}
	if input == nil {
		return nil, fmt.Errorf("%w: %s", ErrSearchInputNotFound, inputExpr)
	}

	form := enclosingForm(input.n)
	if form == nil {
		return nil, fmt.Errorf("%w: %s has no enclosing form", ErrSearchInputNotFound, inputExpr)
	}

	method := strings.ToUpper(strings.TrimSpace(attr(form, "method")))
	if method != http.MethodPost {
		method = http.MethodGet
	}

	action := strings.TrimSpace(attr(form, "action"))
	target := ""
	if d.url != nil {
		target = d.url.String()
	}
	if action != "" {
		target, err = d.Resolve(action)
		if err != nil {
			return nil, err
		}
	}

	overridden := make(map[string]struct{}, len(data))
	for _, kv := range data {
		overridden[kv.Name] = struct{}{}
	}

	fields := models.SearchCriteria{}
	var clickable *models.Criterion
	walk(form, func(n *html.Node) {
		if n.Type != html.ElementNode {
			return
		}
		if clickable == nil && isSubmit(n) {
			if name := attr(n, "name"); name != "" {
				clickable = &models.Criterion{Name: name, Value: attr(n, "value")}
			}
			return
		}
		name := attr(n, "name")
		if name == "" {
			return
		}
		if _, ok := overridden[name]; ok {
			return
		}
		if value, ok := defaultValue(n); ok {
			fields = append(fields, models.Criterion{Name: name, Value: value})
		}
	})
	if clickable != nil {
		if _, ok := overridden[clickable.Name]; !ok {
			fields = append(fields, *clickable)
		}
	}
	fields = append(fields, data...)

	return &FormRequest{Method: method, URL: target, Fields: fields}, nil
}

func enclosingForm(n *html.Node) *html.Node {
	for p := n; p != nil; p = p.Parent {
		if p.Type == html.ElementNode && p.Data == "form" {
			return p
		}
	}
	return nil
}

func walk(n *html.Node, fn func(*html.Node)) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		fn(c)
		walk(c, fn)
	}
}

func isSubmit(n *html.Node) bool {
	typ := strings.ToLower(attr(n, "type"))
	switch n.Data {
	case "input":
		return typ == "submit"
	case "button":
		return typ == "" || typ == "submit"
	}
	return false
}

func defaultValue(n *html.Node) (string, bool) {
	switch n.Data {
	case "input":
		switch strings.ToLower(attr(n, "type")) {
		case "submit", "image", "reset", "button", "file":
			return "", false
		case "checkbox", "radio":
			if !hasAttr(n, "checked") {
				return "", false
			}
			if !hasAttr(n, "value") {
				return "on", true
			}
		}
		return attr(n, "value"), true
	case "textarea":
		return textOf(n), true
	case "select":
		return selectValue(n)
	}
	return "", false
}

func selectValue(n *html.Node) (string, bool) {
	var first, selected *html.Node
	walk(n, func(c *html.Node) {
		if c.Type != html.ElementNode || c.Data != "option" {
			return
		}
		if first == nil {
			first = c
		}
		if selected == nil && hasAttr(c, "selected") {
			selected = c
		}
	})
	option := selected
	if option == nil {
		option = first
	}
	if option == nil {
		return "", false
	}
	if hasAttr(option, "value") {
		return attr(option, "value"), true
	}
	return strings.TrimSpace(textOf(option)), true
}

func textOf(n *html.Node) string {
	var b strings.Builder
	walk(n, func(c *html.Node) {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	})
	return b.String()
}

func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

func hasAttr(n *html.Node, name string) bool {
	for _, a := range n.Attr {
		if a.Key == name {
			return true
		}
	}
	return false
}
