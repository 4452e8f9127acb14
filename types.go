package epubslice

import "net/url"

// Metadata holds the subset of Dublin Core metadata carried over to the
// sliced output.
type Metadata struct {
	// Version is the ePub specification version (e.g., "2.0", "3.0").
	Version string

	// Title is the first non-empty dc:title value.
	Title string

	// Authors contains all dc:creator display names.
	Authors []string

	// Language is the first dc:language value (BCP 47 tag).
	Language string

	// Identifier is the value of the package unique-identifier, if resolvable.
	Identifier string
}

// TocEntry is one entry of the flattened table of contents. Entries are
// ordered by reading order and linked through Next.
type TocEntry struct {
	// Title is the display text of the TOC entry.
	Title string

	// Href is the archive path of the document the entry points to.
	Href string

	// Anchor is the fragment identifier inside Href, or empty when the
	// entry points at the start of the document.
	Anchor string

	// Depth is the nesting level in the original TOC tree (0 for top level).
	Depth int

	// Next is the following entry, or nil for the last one.
	Next *TocEntry
}

// Boundary returns the point where this entry's chapter begins.
func (e *TocEntry) Boundary() Boundary {
	return Boundary{Path: e.Href, Anchor: e.Anchor}
}

// Resource is one spine document of a book.
type Resource struct {
	// Path is the archive path of the document, unique within the book.
	Path string

	// MediaType is the manifest media type (e.g., "application/xhtml+xml").
	MediaType string

	// Content is the raw document text with any UTF-8 BOM removed.
	Content []byte
}

// Boundary marks where a chapter's content begins: a document and an
// optional element id inside it.
type Boundary struct {
	Path   string
	Anchor string
}

// Asset is an image that was fetched and stored locally while localizing
// a fragment.
type Asset struct {
	// Source is the absolute URI the image was fetched from.
	Source *url.URL

	// Name is the generated unique file name (with extension).
	Name string

	// Path is the full path of the stored file.
	Path string

	// Ref is the reference written into the fragment (prefix + Name).
	Ref string

	// MediaType is the response content type, when the fetcher reported one.
	MediaType string

	// Position is the index of the image node in original document order.
	Position int
}

// spineItem represents an entry in the OPF <spine> element.
type spineItem struct {
	ID        string
	Href      string
	MediaType string
	Linear    bool
}

// manifestItem represents an entry in the OPF <manifest> element.
type manifestItem struct {
	ID         string `xml:"id,attr"`
	Href       string `xml:"href,attr"`
	MediaType  string `xml:"media-type,attr"`
	Properties string `xml:"properties,attr"`
}
