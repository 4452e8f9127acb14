package epubslice

import (
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// entityNameToNumeric maps lowercase HTML entity names to their XML numeric
// character references. encoding/xml does not recognise HTML named entities,
// so they are converted before parsing OPF/NCX files.
var entityNameToNumeric = map[string][]byte{
	"nbsp": []byte("&#160;"), "mdash": []byte("&#8212;"), "ndash": []byte("&#8211;"),
	"hellip": []byte("&#8230;"),
	"lsquo": []byte("&#8216;"), "rsquo": []byte("&#8217;"),
	"ldquo": []byte("&#8220;"), "rdquo": []byte("&#8221;"),
	"copy": []byte("&#169;"), "reg": []byte("&#174;"), "trade": []byte("&#8482;"),
	"bull": []byte("&#8226;"), "middot": []byte("&#183;"),
	"eacute": []byte("&#233;"), "egrave": []byte("&#232;"),
	"aacute": []byte("&#225;"), "agrave": []byte("&#224;"),
	"ouml": []byte("&#246;"), "uuml": []byte("&#252;"), "auml": []byte("&#228;"),
	"ntilde": []byte("&#241;"), "ccedil": []byte("&#231;"),
	"laquo": []byte("&#171;"), "raquo": []byte("&#187;"),
}

var htmlEntityPattern = regexp.MustCompile(
	`(?i)&(nbsp|mdash|ndash|hellip|lsquo|rsquo|ldquo|rdquo|copy|reg|trade|bull|middot|` +
		`eacute|egrave|aacute|agrave|ouml|uuml|auml|ntilde|ccedil|laquo|raquo);`)

// preprocessHTMLEntities replaces common HTML named entities with numeric
// character references so that encoding/xml can parse the data.
func preprocessHTMLEntities(data []byte) []byte {
	return htmlEntityPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		name := strings.ToLower(string(match[1 : len(match)-1]))
		if replacement, ok := entityNameToNumeric[name]; ok {
			return replacement
		}
		return match
	})
}

// findElement performs a depth-first search for a node with the given atom tag.
func findElement(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if result := findElement(c, a); result != nil {
			return result
		}
	}
	return nil
}

// findByID returns the first element under n whose id attribute equals id.
func findByID(n *html.Node, id string) *html.Node {
	if n.Type == html.ElementNode && getAttr(n, "id") == id {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findByID(c, id); found != nil {
			return found
		}
	}
	return nil
}

func getAttr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// cleanNode removes <script> and <style> elements and strips event handler
// and unsafe URI attributes from the subtree rooted at n.
func cleanNode(n *html.Node) {
	var next *html.Node
	for c := n.FirstChild; c != nil; c = next {
		next = c.NextSibling
		if c.Type == html.ElementNode && (c.DataAtom == atom.Script || c.DataAtom == atom.Style) {
			n.RemoveChild(c)
			continue
		}
		if c.Type == html.ElementNode {
			stripUnsafeAttributes(c)
		}
		cleanNode(c)
	}
}

func stripUnsafeAttributes(n *html.Node) {
	cleaned := n.Attr[:0]
	for _, attr := range n.Attr {
		if strings.HasPrefix(strings.ToLower(attr.Key), "on") {
			continue
		}
		if isURIAttribute(attr) && !isSafeURI(attr.Val) {
			continue
		}
		cleaned = append(cleaned, attr)
	}
	n.Attr = cleaned
}

func isURIAttribute(attr html.Attribute) bool {
	switch attr.Key {
	case "href", "src", "xlink:href":
		return true
	}
	return false
}

// isSafeURI accepts relative references, http(s), mailto, book URIs and
// data:image/* values.
func isSafeURI(raw string) bool {
	v := strings.TrimSpace(raw)
	if v == "" || strings.HasPrefix(v, "#") || strings.HasPrefix(v, "/") ||
		strings.HasPrefix(v, "./") || strings.HasPrefix(v, "../") || strings.HasPrefix(v, "?") {
		return true
	}
	u, err := url.Parse(v)
	if err != nil {
		return false
	}
	switch strings.ToLower(u.Scheme) {
	case "", "http", "https", "mailto", BookScheme:
		return true
	case "data":
		return strings.HasPrefix(strings.ToLower(v), "data:image/")
	default:
		return false
	}
}

// imageSourceKeys lists, per image element, the attributes holding its
// source in preference order. Lazy-load attributes come last.
var imageSourceKeys = map[atom.Atom][]string{
	atom.Img:   {"src", "data-src", "data-original", "data-lazy-src"},
	atom.Image: {"xlink:href", "href", "data-src"},
}

func isImageNode(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	_, ok := imageSourceKeys[n.DataAtom]
	return ok
}

// rewriteImageNode walks the subtree and rewrites relative image sources to
// absolute book URIs, using docPath as the reference location. Sources
// with a scheme are left alone.
func rewriteImageNode(n *html.Node, docPath string) {
	if isImageNode(n) {
		keys := imageSourceKeys[n.DataAtom]
		for i, attr := range n.Attr {
			if !containsKey(keys, attr.Key) {
				continue
			}
			val := strings.TrimSpace(attr.Val)
			if val == "" || hasURIScheme(val) || strings.HasPrefix(val, "//") {
				continue
			}
			if resolved := resolveRelativePath(docPath, val); resolved != "" {
				n.Attr[i].Val = ResourceURI(resolved).String()
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		rewriteImageNode(c, docPath)
	}
}

func containsKey(keys []string, k string) bool {
	for _, key := range keys {
		if key == k {
			return true
		}
	}
	return false
}

// hasURIScheme reports whether s starts with a URI scheme like "mailto:" or
// "https:". Single letters are not schemes (Windows drive letters).
func hasURIScheme(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" || !isASCIILetter(s[0]) {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == ':' {
			return i > 1
		}
		if !(c == '+' || c == '-' || c == '.' || (c >= '0' && c <= '9') || isASCIILetter(c)) {
			return false
		}
	}
	return false
}

func isASCIILetter(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}
