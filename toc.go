package epubslice

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"net/url"
	"path"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// tocNode is one entry of the navigation tree before flattening.
type tocNode struct {
	Title    string
	Href     string // archive path, may carry a #fragment
	Children []tocNode
}

// parseContents builds the flat table of contents. The ePub 3 nav document
// is preferred for 3.x packages, then the NCX. When neither yields entries
// every linear spine document becomes one entry.
func (b *Book) parseContents() {
	var tree []tocNode
	if strings.HasPrefix(b.opf.Version, "3") {
		tree = b.readNavTree()
	}
	if len(tree) == 0 {
		tree = b.readNCXTree()
	}

	inSpine := make(map[string]bool, len(b.resources))
	for _, r := range b.resources {
		inSpine[r.Path] = true
	}

	if len(tree) > 0 {
		b.contents = flattenTOC(tree, inSpine, b.warnf)
	}
	if len(b.contents) == 0 {
		b.contents = b.spineContents()
	}
}

func (b *Book) readNavTree() []tocNode {
	item := b.opf.navItem()
	if item == nil {
		return nil
	}
	navPath := b.resolveOPFPath(item.Href)
	data, err := b.ReadFile(navPath)
	if err != nil {
		b.warnf("failed to read nav document: %v", err)
		return nil
	}
	tree, err := parseNavDocument(data, navPath)
	if err != nil {
		b.warnf("failed to parse nav document: %v", err)
		return nil
	}
	return tree
}

func (b *Book) readNCXTree() []tocNode {
	item := b.opf.ncxItem()
	if item == nil {
		return nil
	}
	ncxPath := b.resolveOPFPath(item.Href)
	data, err := b.ReadFile(ncxPath)
	if err != nil {
		b.warnf("failed to read NCX file: %v", err)
		return nil
	}
	tree, err := parseNCX(data, ncxPath)
	if err != nil {
		b.warnf("failed to parse NCX file: %v", err)
		return nil
	}
	return tree
}

// flattenTOC walks the tree depth-first and links the resulting entries.
// Entries without a target keep their children; entries whose document is
// not in the spine are dropped since nothing can be extracted for them.
func flattenTOC(tree []tocNode, inSpine map[string]bool, warnf func(string, ...any)) []*TocEntry {
	var out []*TocEntry
	var walk func(nodes []tocNode, depth int)
	walk = func(nodes []tocNode, depth int) {
		for _, n := range nodes {
			if n.Href != "" {
				doc, anchor := splitFragment(n.Href)
				if decoded, err := url.PathUnescape(anchor); err == nil {
					anchor = decoded
				}
				if inSpine[doc] {
					out = append(out, &TocEntry{
						Title:  n.Title,
						Href:   doc,
						Anchor: anchor,
						Depth:  depth,
					})
				} else {
					warnf("TOC entry %q points outside the spine: %s", n.Title, n.Href)
				}
			}
			walk(n.Children, depth+1)
		}
	}
	walk(tree, 0)
	linkEntries(out)
	return out
}

func linkEntries(entries []*TocEntry) {
	for i := range entries {
		entries[i].Next = nil
		if i+1 < len(entries) {
			entries[i].Next = entries[i+1]
		}
	}
}

// spineContents derives one entry per linear spine document, titled by the
// document's <title> or, failing that, its file name.
func (b *Book) spineContents() []*TocEntry {
	var out []*TocEntry
	for i, r := range b.resources {
		if !b.spine[i].Linear {
			continue
		}
		title := documentTitle(r.Content)
		if title == "" {
			title = strings.TrimSuffix(path.Base(r.Path), path.Ext(r.Path))
		}
		out = append(out, &TocEntry{Title: title, Href: r.Path})
	}
	linkEntries(out)
	return out
}

func documentTitle(data []byte) string {
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return ""
	}
	if t := findElement(doc, atom.Title); t != nil {
		return strings.TrimSpace(nodeTextContent(t))
	}
	return ""
}

// splitFragment separates "doc.xhtml#id" into its path and fragment parts.
func splitFragment(href string) (string, string) {
	if idx := strings.IndexByte(href, '#'); idx >= 0 {
		return href[:idx], href[idx+1:]
	}
	return href, ""
}

// --- NCX (ePub 2) ---

type ncxNavPoint struct {
	Label   string `xml:"navLabel>text"`
	Content struct {
		Src string `xml:"src,attr"`
	} `xml:"content"`
	Children []ncxNavPoint `xml:"navPoint"`
}

// parseNCX parses NCX data. Hrefs are resolved against ncxPath.
func parseNCX(data []byte, ncxPath string) ([]tocNode, error) {
	var doc struct {
		XMLName   xml.Name      `xml:"ncx"`
		NavPoints []ncxNavPoint `xml:"navMap>navPoint"`
	}
	if err := xml.Unmarshal(stripBOM(preprocessHTMLEntities(data)), &doc); err != nil {
		return nil, fmt.Errorf("epubslice: parse NCX: %w", err)
	}
	return convertNavPoints(doc.NavPoints, ncxPath), nil
}

func convertNavPoints(points []ncxNavPoint, ncxPath string) []tocNode {
	if len(points) == 0 {
		return nil
	}
	nodes := make([]tocNode, 0, len(points))
	for _, np := range points {
		n := tocNode{Title: strings.TrimSpace(np.Label)}
		if src := strings.TrimSpace(np.Content.Src); src != "" {
			n.Href = resolveHref(ncxPath, src)
		}
		n.Children = convertNavPoints(np.Children, ncxPath)
		nodes = append(nodes, n)
	}
	return nodes
}

// resolveHref resolves a TOC href that may carry a fragment. Fragment-only
// hrefs point into the referencing document itself.
func resolveHref(basePath, href string) string {
	doc, anchor := splitFragment(href)
	var resolved string
	if doc == "" {
		resolved = basePath
	} else if resolved = resolveRelativePath(basePath, doc); resolved == "" {
		return ""
	}
	if anchor != "" {
		return resolved + "#" + anchor
	}
	return resolved
}

// --- Nav document (ePub 3) ---

// parseNavDocument returns the tree under <nav epub:type="toc">.
func parseNavDocument(data []byte, basePath string) ([]tocNode, error) {
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("epubslice: parse nav document: %w", err)
	}

	var tree []tocNode
	var visit func(*html.Node) bool
	visit = func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.DataAtom == atom.Nav && hasEpubType(n, "toc") {
			if ol := findFirstChildElement(n, "ol"); ol != nil {
				tree = parseNavOL(ol, basePath)
			}
			return true
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if visit(c) {
				return true
			}
		}
		return false
	}
	visit(doc)
	return tree, nil
}

func parseNavOL(ol *html.Node, basePath string) []tocNode {
	var nodes []tocNode
	for c := ol.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == atom.Li {
			nodes = append(nodes, parseNavLI(c, basePath))
		}
	}
	return nodes
}

// parseNavLI reads the first <a> (or a <span> heading) and a nested <ol>.
func parseNavLI(li *html.Node, basePath string) tocNode {
	var n tocNode
	for c := li.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		switch c.DataAtom {
		case atom.A:
			if n.Href == "" {
				if href := getAttr(c, "href"); href != "" {
					n.Href = resolveHref(basePath, href)
				}
				n.Title = strings.TrimSpace(nodeTextContent(c))
			}
		case atom.Span:
			if n.Title == "" {
				n.Title = strings.TrimSpace(nodeTextContent(c))
			}
		case atom.Ol:
			n.Children = parseNavOL(c, basePath)
		}
	}
	return n
}

// hasEpubType reports whether n's epub:type attribute contains typeName.
func hasEpubType(n *html.Node, typeName string) bool {
	for _, t := range strings.Fields(getAttr(n, "epub:type")) {
		if t == typeName {
			return true
		}
	}
	return false
}

// findFirstChildElement returns the first descendant element named tag.
func findFirstChildElement(n *html.Node, tag string) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.Data == tag {
			return c
		}
		if found := findFirstChildElement(c, tag); found != nil {
			return found
		}
	}
	return nil
}

func nodeTextContent(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		sb.WriteString(nodeTextContent(c))
	}
	return sb.String()
}
