package epubslice

import (
	"archive/zip"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"path"
	"strings"
)

// expectedMimetype is the required content of the "mimetype" file in a valid ePub.
const expectedMimetype = "application/epub+zip"

// BookScheme is the URI scheme used for resources inside the book itself.
// Relative references in chapter documents are resolved to URIs of the
// form "epub:///OEBPS/images/fig1.png".
const BookScheme = "epub"

// Book is a read-only view over an ePub: its spine documents in reading
// order and its table of contents flattened into linked entries.
// Use Open or NewReader to create a Book instance.
//
// A Book is not safe for concurrent use by multiple goroutines.
type Book struct {
	files     *zipIndex
	closer    io.Closer // non-nil only when created via Open()
	opfDir    string
	opf       *opfPackage
	spine     []spineItem
	resources []Resource
	contents  []*TocEntry
	metadata  Metadata
	warnings  []string
	logger    *slog.Logger
}

// Open opens an ePub file at the given path.
// The caller must call Close when done reading from the book.
func Open(path string, opts ...Option) (*Book, error) {
	zrc, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("epubslice: open %s: %w", path, err)
	}

	b, err := initBook(&zrc.Reader, zrc, opts)
	if err != nil {
		zrc.Close()
		return nil, err
	}
	return b, nil
}

// NewReader creates a Book from an io.ReaderAt with the given size.
// The caller is responsible for the lifetime of r.
func NewReader(r io.ReaderAt, size int64, opts ...Option) (*Book, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("epubslice: open zip: %w", err)
	}
	return initBook(zr, nil, opts)
}

func initBook(zr *zip.Reader, closer io.Closer, opts []Option) (*Book, error) {
	o := newOptions(opts)
	b := &Book{
		files:  newZipIndex(zr),
		closer: closer,
		logger: o.logger,
	}
	b.validateMimetype()

	opfPath, err := locatePackage(b.files)
	if err != nil {
		return nil, err
	}
	b.opfDir = path.Dir(opfPath)

	fontObfuscation, err := checkDRM(b.files)
	if err != nil {
		return nil, err
	}
	if fontObfuscation {
		b.warnf("font obfuscation detected; obfuscated fonts may not render correctly")
	}

	opfData, err := b.ReadFile(opfPath)
	if err != nil {
		return nil, fmt.Errorf("epubslice: read OPF file %s: %w", opfPath, ErrInvalidEPub)
	}
	b.opf, err = parseOPF(opfData)
	if err != nil {
		return nil, err
	}
	b.metadata = extractMetadata(b.opf)

	if err := b.loadResources(); err != nil {
		return nil, err
	}
	b.parseContents()

	return b, nil
}

// loadResources reads every spine document eagerly. Spine items that are
// missing from the archive are skipped with a warning.
func (b *Book) loadResources() error {
	for _, si := range b.opf.spine() {
		p := b.resolveOPFPath(si.Href)
		data, err := b.ReadFile(p)
		if err != nil {
			b.warnf("spine item %s unreadable: %v", p, err)
			continue
		}
		b.spine = append(b.spine, si)
		b.resources = append(b.resources, Resource{
			Path:      p,
			MediaType: si.MediaType,
			Content:   stripBOM(data),
		})
	}
	if len(b.resources) == 0 {
		return fmt.Errorf("epubslice: spine has no readable documents: %w", ErrInvalidEPub)
	}
	return nil
}

// validateMimetype records a warning when the first ZIP entry is not a
// "mimetype" file containing "application/epub+zip".
func (b *Book) validateMimetype() {
	if len(b.files.files) == 0 {
		b.warnf("empty ZIP archive; mimetype entry missing")
		return
	}
	first := b.files.files[0]
	if first.Name != "mimetype" {
		b.warnf("first ZIP entry is not \"mimetype\"")
		return
	}
	data, err := readEntry(first, maxDecompressSize)
	if err != nil {
		b.warnf("cannot read mimetype entry: %v", err)
		return
	}
	if string(data) != expectedMimetype {
		b.warnf("unexpected mimetype: %q", string(data))
	}
}

func (b *Book) warnf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	b.warnings = append(b.warnings, msg)
	b.logger.Debug("epub warning", "warning", msg)
}

// Close releases resources held by the Book. Close is idempotent.
func (b *Book) Close() error {
	if b.closer != nil {
		err := b.closer.Close()
		b.closer = nil
		return err
	}
	return nil
}

// ReadFile reads a file from the archive by its archive path, falling back
// to a case-insensitive match.
func (b *Book) ReadFile(name string) ([]byte, error) {
	return b.files.read(name)
}

// resolveOPFPath resolves an href relative to the OPF directory.
func (b *Book) resolveOPFPath(href string) string {
	if href == "" || b.opfDir == "." {
		return href
	}
	return path.Join(b.opfDir, href)
}

// Metadata returns the extracted metadata.
func (b *Book) Metadata() Metadata {
	md := b.metadata
	md.Authors = append([]string(nil), b.metadata.Authors...)
	return md
}

// Warnings returns the non-fatal warnings accumulated during parsing.
func (b *Book) Warnings() []string {
	return append([]string(nil), b.warnings...)
}

// Resources returns the spine documents in reading order. The returned
// slice is a copy; document bytes are shared and must not be modified.
func (b *Book) Resources() []Resource {
	return append([]Resource(nil), b.resources...)
}

// Contents returns the flattened table of contents. Entries are shared with
// the Book and must be treated as read-only.
func (b *Book) Contents() []*TocEntry {
	return append([]*TocEntry(nil), b.contents...)
}

// Extract builds the fragment for entry, ending where entry.Next begins.
func (b *Book) Extract(entry *TocEntry, opts ...Option) (*Fragment, error) {
	return extractEntry(b.resources, entry, append([]Option{WithLogger(b.logger)}, opts...))
}

// ResourceURI returns the book URI of an archive path.
func ResourceURI(p string) *url.URL {
	return &url.URL{Scheme: BookScheme, Path: "/" + strings.TrimPrefix(p, "/")}
}

// PathOf returns the archive path of a book URI, or "" when u is not one.
func PathOf(u *url.URL) string {
	if u == nil || u.Scheme != BookScheme {
		return ""
	}
	return strings.TrimPrefix(u.Path, "/")
}
