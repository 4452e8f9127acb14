package epubslice

import (
	"archive/zip"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
)

// maxDecompressSize caps the decompressed size of a single ZIP entry (256 MB).
const maxDecompressSize int64 = 256 << 20

// zipIndex looks up archive entries by name. When several entries share a
// name, the first one in the archive wins.
type zipIndex struct {
	files []*zip.File
	exact map[string]*zip.File
	lower map[string]*zip.File
}

func newZipIndex(zr *zip.Reader) *zipIndex {
	idx := &zipIndex{
		files: zr.File,
		exact: make(map[string]*zip.File, len(zr.File)),
		lower: make(map[string]*zip.File, len(zr.File)),
	}
	for _, f := range zr.File {
		if _, ok := idx.exact[f.Name]; !ok {
			idx.exact[f.Name] = f
		}
		key := strings.ToLower(f.Name)
		if _, ok := idx.lower[key]; !ok {
			idx.lower[key] = f
		}
	}
	return idx
}

// lookup returns the entry called name, falling back to a case-insensitive
// match, or nil.
func (idx *zipIndex) lookup(name string) *zip.File {
	if f, ok := idx.exact[name]; ok {
		return f
	}
	return idx.lower[strings.ToLower(name)]
}

// read returns the contents of the entry called name.
func (idx *zipIndex) read(name string) ([]byte, error) {
	f := idx.lookup(name)
	if f == nil {
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, name)
	}
	return readEntry(f, maxDecompressSize)
}

// resolveRelativePath resolves href against the directory of basePath.
// Both are archive paths. An empty string is returned for absolute hrefs
// and for results escaping the archive root.
func resolveRelativePath(basePath, href string) string {
	href = strings.TrimSpace(href)
	if strings.HasPrefix(href, "/") {
		return ""
	}
	if decoded, err := url.PathUnescape(href); err == nil {
		href = decoded
	}
	cleaned := path.Join(path.Dir(basePath), href)
	if !isSafePath(cleaned) {
		return ""
	}
	return cleaned
}

// isSafePath reports whether p stays inside the archive root.
func isSafePath(p string) bool {
	cleaned := path.Clean(p)
	return !strings.HasPrefix(cleaned, "/") && cleaned != ".." && !strings.HasPrefix(cleaned, "../")
}

// stripBOM removes a leading UTF-8 BOM from data.
func stripBOM(data []byte) []byte {
	if len(data) >= 3 && data[0] == 0xEF && data[1] == 0xBB && data[2] == 0xBF {
		return data[3:]
	}
	return data
}

// readEntry reads f, refusing unsafe names and entries whose declared or
// actual size exceeds limit.
func readEntry(f *zip.File, limit int64) ([]byte, error) {
	if !isSafePath(f.Name) {
		return nil, fmt.Errorf("epubslice: unsafe zip entry path: %s", f.Name)
	}
	if f.UncompressedSize64 > uint64(limit) {
		return nil, fmt.Errorf("epubslice: zip entry %s too large: %d bytes (max %d)", f.Name, f.UncompressedSize64, limit)
	}

	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("epubslice: open zip entry %s: %w", f.Name, err)
	}
	defer rc.Close()

	// The declared size may be forged; read one byte past the limit to tell.
	data, err := io.ReadAll(io.LimitReader(rc, limit+1))
	if err != nil {
		return nil, fmt.Errorf("epubslice: read zip entry %s: %w", f.Name, err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("epubslice: zip entry %s decompressed size exceeds limit (%d bytes)", f.Name, limit)
	}
	return data, nil
}
