package epubslice

import (
	"bytes"
	"fmt"
	"io"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Fragment is a standalone HTML document holding the content of exactly
// one chapter. It is created by ExtractChapter or ParseFragment, mutated in
// place by a Localizer, then handed to whatever repackages the chapter.
type Fragment struct {
	// Title is the chapter title, used for the rendered <title>.
	Title string

	// Doc is the document node; Body is its <body> element.
	Doc  *html.Node
	Body *html.Node

	// Base is the URI relative references in the fragment resolve against.
	Base *url.URL

	// Warnings lists structural problems met while extracting.
	Warnings []string
}

// newFragment builds an empty <html><head></head><body></body></html> document.
func newFragment(base *url.URL) *Fragment {
	doc := &html.Node{Type: html.DocumentNode}
	root := &html.Node{Type: html.ElementNode, DataAtom: atom.Html, Data: "html"}
	head := &html.Node{Type: html.ElementNode, DataAtom: atom.Head, Data: "head"}
	body := &html.Node{Type: html.ElementNode, DataAtom: atom.Body, Data: "body"}
	doc.AppendChild(&html.Node{Type: html.DoctypeNode, Data: "html"})
	doc.AppendChild(root)
	root.AppendChild(head)
	root.AppendChild(body)
	return &Fragment{Doc: doc, Body: body, Base: base}
}

// ParseFragment parses an HTML document into a Fragment. Scrapers that
// fetch chapters from the web use this to feed pages into a Localizer.
func ParseFragment(r io.Reader, base *url.URL) (*Fragment, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("epubslice: parse fragment: %w", err)
	}
	body := findElement(doc, atom.Body)
	if body == nil {
		return nil, fmt.Errorf("epubslice: parse fragment: no <body>")
	}
	f := &Fragment{Doc: doc, Body: body, Base: base}
	if t := findElement(doc, atom.Title); t != nil {
		f.Title = strings.TrimSpace(nodeTextContent(t))
	}
	return f, nil
}

// HTML renders the children of <body>.
func (f *Fragment) HTML() (string, error) {
	var buf bytes.Buffer
	for c := f.Body.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&buf, c); err != nil {
			return "", err
		}
	}
	return strings.TrimSpace(buf.String()), nil
}

// Render writes the whole document, setting <title> from f.Title.
func (f *Fragment) Render(w io.Writer) error {
	if head := findElement(f.Doc, atom.Head); head != nil && f.Title != "" {
		title := findElement(head, atom.Title)
		if title == nil {
			title = &html.Node{Type: html.ElementNode, DataAtom: atom.Title, Data: "title"}
			head.AppendChild(title)
		}
		for title.FirstChild != nil {
			title.RemoveChild(title.FirstChild)
		}
		title.AppendChild(&html.Node{Type: html.TextNode, Data: f.Title})
	}
	return html.Render(w, f.Doc)
}

// Images returns the image elements of the fragment in document order.
func (f *Fragment) Images() []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if isImageNode(n) {
			out = append(out, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(f.Body)
	return out
}
