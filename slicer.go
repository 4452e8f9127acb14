package epubslice

import (
	"context"
	"fmt"
)

// Source is what the slicer needs from a book. *Book implements it.
type Source interface {
	Contents() []*TocEntry
	Resources() []Resource
}

// Chapter is one extracted chapter, ready for repackaging.
type Chapter struct {
	// Index is the 1-based position of Entry in the table of contents.
	Index int

	Entry    *TocEntry
	Fragment *Fragment

	// Assets are the images stored for Fragment, in document order.
	Assets []Asset
}

// Slice resolves r over the table of contents of src, extracts every
// selected chapter and, when l is non-nil, localizes its images.
// Name lookup failures and context cancellation are returned; image and
// anchor problems are not.
func Slice(ctx context.Context, src Source, r Range, l *Localizer, opts ...Option) ([]Chapter, error) {
	entries := src.Contents()
	selected, err := SelectRange(entries, func(e *TocEntry) string { return e.Title }, r)
	if err != nil {
		return nil, err
	}

	index := make(map[*TocEntry]int, len(entries))
	for i, e := range entries {
		index[e] = i + 1
	}

	o := newOptions(opts)
	resources := src.Resources()
	chapters := make([]Chapter, 0, len(selected))
	for _, e := range selected {
		if err := ctx.Err(); err != nil {
			return chapters, err
		}
		o.logger.Debug("extracting chapter", "index", index[e], "title", e.Title, "href", e.Href)

		frag, err := extractEntry(resources, e, opts)
		if err != nil {
			return chapters, fmt.Errorf("epubslice: chapter %d %q: %w", index[e], e.Title, err)
		}
		ch := Chapter{Index: index[e], Entry: e, Fragment: frag}
		if l != nil {
			ch.Assets, err = l.Localize(ctx, frag)
			if err != nil {
				return chapters, err
			}
		}
		chapters = append(chapters, ch)
	}
	return chapters, nil
}

// extractEntry extracts the chapter of e, bounded by e.Next.
func extractEntry(resources []Resource, e *TocEntry, opts []Option) (*Fragment, error) {
	var to *Boundary
	if e.Next != nil {
		nb := e.Next.Boundary()
		to = &nb
	}
	frag, err := ExtractChapter(resources, e.Boundary(), to, opts...)
	if err != nil {
		return nil, err
	}
	frag.Title = e.Title
	return frag, nil
}
