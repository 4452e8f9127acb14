package epubslice

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
)

const validContainerXML = `<?xml version="1.0" encoding="UTF-8"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`

// buildTestZip creates an in-memory ZIP archive from the provided files map
// (path → content) and returns a *zip.Reader over the resulting bytes.
func buildTestZip(t *testing.T, files map[string]string) *zip.Reader {
	t.Helper()
	data := buildTestEPubBytes(t, files)
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("buildTestZip: open reader: %v", err)
	}
	return r
}

// buildTestEPubBytes writes files into a ZIP archive, "mimetype" first and
// the rest in name order so tests are deterministic.
func buildTestEPubBytes(t *testing.T, files map[string]string) []byte {
	t.Helper()
	names := make([]string, 0, len(files))
	for name := range files {
		if name != "mimetype" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	if _, ok := files["mimetype"]; ok {
		names = append([]string{"mimetype"}, names...)
	}

	buf := new(bytes.Buffer)
	zw := zip.NewWriter(buf)
	for _, name := range names {
		fw, err := zw.Create(name)
		if err != nil {
			t.Fatalf("buildTestEPubBytes: create %s: %v", name, err)
		}
		if _, err := io.WriteString(fw, files[name]); err != nil {
			t.Fatalf("buildTestEPubBytes: write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("buildTestEPubBytes: close writer: %v", err)
	}
	return buf.Bytes()
}

// buildTestEPubFile writes the archive to a temporary file and returns its path.
func buildTestEPubFile(t *testing.T, files map[string]string) string {
	t.Helper()
	fp := filepath.Join(t.TempDir(), "test.epub")
	if err := os.WriteFile(fp, buildTestEPubBytes(t, files), 0o644); err != nil {
		t.Fatalf("buildTestEPubFile: write file: %v", err)
	}
	return fp
}

func openTestBook(t *testing.T, files map[string]string) *Book {
	t.Helper()
	data := buildTestEPubBytes(t, files)
	book, err := NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("NewReader() error = %v", err)
	}
	t.Cleanup(func() { book.Close() })
	return book
}

// xhtml wraps body in a minimal XHTML document.
func xhtml(title, body string) string {
	return `<?xml version="1.0" encoding="UTF-8"?>
<html xmlns="http://www.w3.org/1999/xhtml"><head><title>` + title + `</title></head>
<body>` + body + `</body></html>`
}

// testDoc is one spine document of a generated book.
type testDoc struct {
	id, href, body string
}

// testOPF returns a package document listing docs in the spine, with an
// NCX when withNCX is set.
func testOPF(version string, docs []testDoc, extraManifest string, withNCX bool) string {
	var manifest, spine strings.Builder
	for _, d := range docs {
		fmt.Fprintf(&manifest, `<item id="%s" href="%s" media-type="application/xhtml+xml"/>`, d.id, d.href)
		fmt.Fprintf(&spine, `<itemref idref="%s"/>`, d.id)
	}
	toc := ""
	if withNCX {
		manifest.WriteString(`<item id="ncx" href="toc.ncx" media-type="application/x-dtbncx+xml"/>`)
		toc = ` toc="ncx"`
	}
	manifest.WriteString(extraManifest)
	return `<?xml version="1.0" encoding="UTF-8"?>
<package xmlns="http://www.idpf.org/2007/opf" version="` + version + `" unique-identifier="bookid">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
    <dc:title>Test Book</dc:title>
    <dc:creator>Jane Doe</dc:creator>
    <dc:language>en</dc:language>
    <dc:identifier id="bookid">urn:uuid:1234</dc:identifier>
  </metadata>
  <manifest>` + manifest.String() + `</manifest>
  <spine` + toc + `>` + spine.String() + `</spine>
</package>`
}

// testNCX builds a flat NCX from (label, src) pairs.
func testNCX(points ...[2]string) string {
	var b strings.Builder
	for i, p := range points {
		fmt.Fprintf(&b, `<navPoint id="np%d" playOrder="%d"><navLabel><text>%s</text></navLabel><content src="%s"/></navPoint>`,
			i+1, i+1, p[0], p[1])
	}
	return `<?xml version="1.0" encoding="UTF-8"?>
<ncx xmlns="http://www.daisy.org/z3986/2005/ncx/" version="2005-1"><navMap>` + b.String() + `</navMap></ncx>`
}

// sampleBookFiles is a three-document ePub 2 book whose second chapter
// starts in the middle of ch1.xhtml and ends inside ch2.xhtml.
func sampleBookFiles() map[string]string {
	docs := []testDoc{
		{"intro", "intro.xhtml", `<h1>Prologue</h1><p>Before it all.</p>`},
		{"ch1", "ch1.xhtml", `<h1 id="c1">Chapter 1</h1><p>One.</p><div class="sec"><h1 id="c2">Chapter 2</h1><p>Two <img src="images/fig.png" alt="fig"/></p></div>`},
		{"ch2", "ch2.xhtml", `<p>Two, continued.</p><h1 id="c3">Epilogue</h1><p>The end.</p>`},
	}
	files := map[string]string{
		"mimetype":               "application/epub+zip",
		"META-INF/container.xml": validContainerXML,
		"OEBPS/content.opf":      testOPF("2.0", docs, `<item id="fig" href="images/fig.png" media-type="image/png"/>`, true),
		"OEBPS/toc.ncx": testNCX(
			[2]string{"Prologue", "intro.xhtml"},
			[2]string{"Chapter 1", "ch1.xhtml#c1"},
			[2]string{"Chapter 2", "ch1.xhtml#c2"},
			[2]string{"Epilogue", "ch2.xhtml#c3"},
		),
		"OEBPS/images/fig.png": "\x89PNG fake",
	}
	for _, d := range docs {
		files["OEBPS/"+d.href] = xhtml(d.id, d.body)
	}
	return files
}
