// Package epubslice cuts ePub books into self-contained chapter fragments.
//
// A chapter runs from its table of contents entry to the entry after it.
// Both ends may point anywhere: into the middle of a document, into a
// nested container, or into a later spine document. The chapter's content
// is copied into a fresh HTML document and every container it started or
// ended inside is rebuilt around it.
//
// # Opening a book
//
// Use [Open] to open a file by path, or [NewReader] to read from an [io.ReaderAt].
// DRM-protected files are detected and rejected with [ErrDRMProtected]:
//
//	book, err := epubslice.Open("book.epub")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer book.Close()
//
// [Book.Contents] returns the table of contents flattened in reading order.
// Each [TocEntry] links to the entry that ends it through Next.
//
// # Selecting chapters
//
// A [Range] selects entries by 1-based index, by negative index counted from
// the end, or by title:
//
//	r := epubslice.Range{Start: epubslice.Named("Chapter 1"), End: epubslice.At(-1)}
//	entries, err := epubslice.SelectRange(book.Contents(), func(e *epubslice.TocEntry) string {
//	    return e.Title
//	}, r)
//
// # Extracting and localizing
//
// [ExtractChapter] builds a [Fragment] from two boundaries. A [Localizer]
// then downloads the fragment's images into a [Storage] and rewrites their
// references. [Slice] does both for every entry of a range:
//
//	chapters, err := epubslice.Slice(ctx, book, r, &epubslice.Localizer{
//	    Fetcher: fetcher,
//	    Store:   store,
//	})
//
// Missing anchors and failed images never fail a chapter. They are logged
// and, for anchors, recorded in [Fragment.Warnings].
package epubslice
