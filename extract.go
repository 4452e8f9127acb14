package epubslice

import (
	"bytes"
	"fmt"
	"log/slog"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ExtractChapter builds the fragment for the chapter starting at from and
// ending before to. A nil to extends the chapter to the end of resources.
//
// The chapter's documents are concatenated into one body. Extraction then
// starts at the element with id from.Anchor (or the top of the first
// document) and copies forward in document order until it meets the element
// with id to.Anchor. Ancestors of the copied content are rebuilt as empty
// shells, so a chapter that begins or ends in the middle of a container is
// still wrapped by that container.
//
// Anchors that cannot be found do not fail extraction; they are reported in
// Fragment.Warnings and logged.
func ExtractChapter(resources []Resource, from Boundary, to *Boundary, opts ...Option) (*Fragment, error) {
	o := newOptions(opts)

	first := indexOfResource(resources, from.Path)
	if first < 0 {
		return nil, fmt.Errorf("%w: %s", ErrResourceNotFound, from.Path)
	}

	frag := newFragment(ResourceURI(from.Path))
	x := &extractor{
		root:   &html.Node{Type: html.ElementNode, DataAtom: atom.Body, Data: "body"},
		logger: o.logger.With("chapter", from.Path+"#"+from.Anchor),
		frag:   frag,
	}

	span, reachedEnd := chapterSpan(resources, first, to)
	if to != nil && !reachedEnd && to.Path != from.Path {
		x.warnf("next chapter document %s does not follow %s; extracting to the end of the book", to.Path, from.Path)
	}

	if to != nil && *to == from {
		x.warnf("next chapter starts at the same place as this one; chapter is empty")
		return frag, nil
	}

	var (
		start                 *html.Node
		startFound, stopFound bool
	)
	for i, r := range span {
		doc, err := html.Parse(bytes.NewReader(r.Content))
		if err != nil {
			return nil, fmt.Errorf("epubslice: parse %s: %w", r.Path, err)
		}
		rewriteImageNode(doc, r.Path)
		body := findElement(doc, atom.Body)
		if body == nil {
			continue
		}
		if i == 0 && from.Anchor != "" {
			start, startFound = anchorIn(doc, body, from.Anchor)
		}
		if to != nil && to.Anchor != "" && r.Path == to.Path {
			x.stop, stopFound = anchorIn(doc, body, to.Anchor)
		}
		for c := body.FirstChild; c != nil; {
			next := c.NextSibling
			body.RemoveChild(c)
			x.root.AppendChild(c)
			c = next
		}
	}

	if from.Anchor != "" && !startFound {
		x.warnf("start anchor %q not found in %s; extracting from the top of the document", from.Anchor, from.Path)
	}
	if to != nil && to.Anchor != "" && reachedEnd && !stopFound {
		x.warnf("stop anchor %q not found in %s; extracting to the end of the span", to.Anchor, to.Path)
	}

	if start == nil {
		start = x.root.FirstChild
	}
	if start != nil {
		for _, n := range x.walk(start) {
			frag.Body.AppendChild(n)
		}
	}
	cleanNode(frag.Body)
	return frag, nil
}

// anchorIn finds the element with id anchor in doc. An id outside the body,
// or on the body itself, marks the top of the document: the first body child,
// which is nil for an empty body.
func anchorIn(doc, body *html.Node, anchor string) (*html.Node, bool) {
	n := findByID(doc, anchor)
	if n == nil {
		return nil, false
	}
	for p := n.Parent; p != nil; p = p.Parent {
		if p == body {
			return n, true
		}
	}
	return body.FirstChild, true
}

func indexOfResource(resources []Resource, p string) int {
	for i := range resources {
		if resources[i].Path == p {
			return i
		}
	}
	return -1
}

// chapterSpan returns the resources holding the chapter that starts in
// resources[first]. The document of the next boundary is included only when
// the boundary has an anchor, since content before that anchor still belongs
// to this chapter. reachedEnd reports whether the next boundary's document
// was found at or after first.
func chapterSpan(resources []Resource, first int, to *Boundary) (span []Resource, reachedEnd bool) {
	if to == nil {
		return resources[first:], false
	}
	if to.Path == resources[first].Path {
		return resources[first : first+1], true
	}
	for i := first + 1; i < len(resources); i++ {
		if resources[i].Path == to.Path {
			if to.Anchor != "" {
				return resources[first : i+1], true
			}
			return resources[first:i], true
		}
	}
	return resources[first:], false
}

// copyResult is the outcome of copying one subtree: the copy made so far
// and whether the stop node was met inside it.
type copyResult struct {
	node    *html.Node
	stopped bool
}

type extractor struct {
	root   *html.Node // combined body; the only natural end of traversal
	stop   *html.Node // first node of the next chapter, may be nil
	logger *slog.Logger
	frag   *Fragment
}

// copyTree copies n. Leaves are deep-copied. Other nodes are shallow-copied
// and their children copied in order until the stop node is met, in which
// case the partial copy is returned with stopped set.
func (x *extractor) copyTree(n *html.Node) copyResult {
	if n == x.stop {
		return copyResult{stopped: true}
	}
	if n.FirstChild == nil {
		return copyResult{node: deepClone(n)}
	}
	c := shallowClone(n)
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		r := x.copyTree(child)
		if r.node != nil {
			c.AppendChild(r.node)
		}
		if r.stopped {
			return copyResult{node: c, stopped: true}
		}
	}
	return copyResult{node: c}
}

// walk copies cur and everything after it in document order. Copies are
// collected per nesting level; leaving a level wraps the collected nodes in
// a shell of their parent before continuing with the parent's next sibling.
func (x *extractor) walk(cur *html.Node) []*html.Node {
	var level []*html.Node
	for {
		r := x.copyTree(cur)
		if r.node != nil {
			level = append(level, r.node)
		}
		if r.stopped {
			return x.wrapAncestors(cur, level)
		}
		for cur.NextSibling == nil {
			parent := cur.Parent
			if parent == x.root {
				return level
			}
			if parent == nil {
				x.warnf("detached node <%s> while leaving a container; stopping", cur.Data)
				return level
			}
			level = []*html.Node{wrap(parent, level)}
			cur = parent
		}
		cur = cur.NextSibling
	}
}

// wrapAncestors rebuilds the ancestors of cur, up to the root, around level.
func (x *extractor) wrapAncestors(cur *html.Node, level []*html.Node) []*html.Node {
	for p := cur.Parent; p != x.root; p = p.Parent {
		if p == nil {
			x.warnf("detached node <%s> while rebuilding ancestors; stopping", cur.Data)
			break
		}
		level = []*html.Node{wrap(p, level)}
	}
	return level
}

func (x *extractor) warnf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	x.frag.Warnings = append(x.frag.Warnings, msg)
	x.logger.Warn(msg)
}

// wrap returns a shallow copy of parent holding children.
func wrap(parent *html.Node, children []*html.Node) *html.Node {
	w := shallowClone(parent)
	for _, c := range children {
		w.AppendChild(c)
	}
	return w
}

func shallowClone(n *html.Node) *html.Node {
	return &html.Node{
		Type:      n.Type,
		DataAtom:  n.DataAtom,
		Data:      n.Data,
		Namespace: n.Namespace,
		Attr:      append([]html.Attribute(nil), n.Attr...),
	}
}

func deepClone(n *html.Node) *html.Node {
	c := shallowClone(n)
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		c.AppendChild(deepClone(child))
	}
	return c
}
