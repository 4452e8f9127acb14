package epubslice

import (
	"bytes"
	"errors"
	"net/url"
	"strings"
	"testing"
)

func TestOpen_Valid(t *testing.T) {
	fp := buildTestEPubFile(t, sampleBookFiles())

	book, err := Open(fp)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer book.Close()

	if book.opfDir != "OEBPS" {
		t.Errorf("opfDir = %q, want %q", book.opfDir, "OEBPS")
	}
	if len(book.Warnings()) != 0 {
		t.Errorf("unexpected warnings: %v", book.Warnings())
	}
	if err := book.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := book.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestNewReader_Valid(t *testing.T) {
	book := openTestBook(t, sampleBookFiles())

	if book.closer != nil {
		t.Error("NewReader should not set closer")
	}
	got := book.Resources()
	want := []string{"OEBPS/intro.xhtml", "OEBPS/ch1.xhtml", "OEBPS/ch2.xhtml"}
	if len(got) != len(want) {
		t.Fatalf("Resources() length = %d, want %d", len(got), len(want))
	}
	for i, p := range want {
		if got[i].Path != p {
			t.Errorf("Resources()[%d].Path = %q, want %q", i, got[i].Path, p)
		}
		if got[i].MediaType != "application/xhtml+xml" {
			t.Errorf("Resources()[%d].MediaType = %q", i, got[i].MediaType)
		}
	}
}

func TestOpen_NotAZip(t *testing.T) {
	if _, err := NewReader(bytes.NewReader([]byte("plain text")), 10); err == nil {
		t.Fatal("expected error for non-zip input")
	}
}

func TestOpen_MimetypeWarnings(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(map[string]string)
	}{
		{"missing", func(f map[string]string) { delete(f, "mimetype") }},
		{"wrong content", func(f map[string]string) { f["mimetype"] = "text/plain" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			files := sampleBookFiles()
			tt.mutate(files)
			book := openTestBook(t, files)
			if len(book.Warnings()) == 0 {
				t.Error("expected a mimetype warning, got none")
			}
		})
	}
}

func TestOpen_DRMProtected(t *testing.T) {
	files := sampleBookFiles()
	files["META-INF/encryption.xml"] = encryptionXML("http://www.w3.org/2001/04/xmlenc#aes128-cbc")
	data := buildTestEPubBytes(t, files)

	_, err := NewReader(bytes.NewReader(data), int64(len(data)))
	if !errors.Is(err, ErrDRMProtected) {
		t.Fatalf("error = %v, want ErrDRMProtected", err)
	}
}

func TestOpen_FontObfuscationWarns(t *testing.T) {
	files := sampleBookFiles()
	files["META-INF/encryption.xml"] = encryptionXML("http://www.idpf.org/2008/embedding")

	book := openTestBook(t, files)
	found := false
	for _, w := range book.Warnings() {
		if strings.Contains(w, "font obfuscation") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected font obfuscation warning, got %v", book.Warnings())
	}
}

func TestOpen_NoReadableDocuments(t *testing.T) {
	files := sampleBookFiles()
	delete(files, "OEBPS/intro.xhtml")
	delete(files, "OEBPS/ch1.xhtml")
	delete(files, "OEBPS/ch2.xhtml")
	data := buildTestEPubBytes(t, files)

	_, err := NewReader(bytes.NewReader(data), int64(len(data)))
	if !errors.Is(err, ErrInvalidEPub) {
		t.Fatalf("error = %v, want ErrInvalidEPub", err)
	}
}

func TestOpen_MissingSpineDocumentSkipped(t *testing.T) {
	files := sampleBookFiles()
	delete(files, "OEBPS/intro.xhtml")

	book := openTestBook(t, files)
	if n := len(book.Resources()); n != 2 {
		t.Errorf("Resources() length = %d, want 2", n)
	}
	// The Prologue entry points outside the remaining spine.
	if n := len(book.Contents()); n != 3 {
		t.Errorf("Contents() length = %d, want 3", n)
	}
	if len(book.Warnings()) < 2 {
		t.Errorf("expected warnings for the missing document and its TOC entry, got %v", book.Warnings())
	}
}

func TestContents_NCX(t *testing.T) {
	book := openTestBook(t, sampleBookFiles())
	entries := book.Contents()

	want := []struct {
		title, href, anchor string
	}{
		{"Prologue", "OEBPS/intro.xhtml", ""},
		{"Chapter 1", "OEBPS/ch1.xhtml", "c1"},
		{"Chapter 2", "OEBPS/ch1.xhtml", "c2"},
		{"Epilogue", "OEBPS/ch2.xhtml", "c3"},
	}
	if len(entries) != len(want) {
		t.Fatalf("Contents() length = %d, want %d", len(entries), len(want))
	}
	for i, w := range want {
		e := entries[i]
		if e.Title != w.title || e.Href != w.href || e.Anchor != w.anchor {
			t.Errorf("entry[%d] = {%q %q %q}, want {%q %q %q}", i, e.Title, e.Href, e.Anchor, w.title, w.href, w.anchor)
		}
		if i+1 < len(entries) && e.Next != entries[i+1] {
			t.Errorf("entry[%d].Next does not point at entry[%d]", i, i+1)
		}
	}
	if entries[len(entries)-1].Next != nil {
		t.Error("last entry should have no Next")
	}
}

func TestContents_Nav(t *testing.T) {
	docs := []testDoc{
		{"nav", "nav.xhtml", ""},
		{"a", "text/a.xhtml", `<h1 id="start">A</h1>`},
		{"b", "text/b.xhtml", `<h1>B</h1><h2 id="b1">B.1</h2>`},
	}
	nav := `<?xml version="1.0" encoding="UTF-8"?>
<html xmlns="http://www.w3.org/1999/xhtml" xmlns:epub="http://www.idpf.org/2007/ops"><head><title>Nav</title></head><body>
<nav epub:type="landmarks"><ol><li><a href="text/b.xhtml">Wrong</a></li></ol></nav>
<nav epub:type="toc"><ol>
  <li><a href="text/a.xhtml#start">Part A</a></li>
  <li><span>Part B</span><ol>
    <li><a href="text/b.xhtml">B</a></li>
    <li><a href="text/b.xhtml#b1">B.1</a></li>
  </ol></li>
</ol></nav></body></html>`
	files := map[string]string{
		"mimetype":               "application/epub+zip",
		"META-INF/container.xml": validContainerXML,
		"OEBPS/content.opf": testOPF("3.0", docs[1:],
			`<item id="nav" href="nav.xhtml" media-type="application/xhtml+xml" properties="nav"/>`, false),
		"OEBPS/nav.xhtml":    nav,
		"OEBPS/text/a.xhtml": xhtml("a", docs[1].body),
		"OEBPS/text/b.xhtml": xhtml("b", docs[2].body),
	}

	book := openTestBook(t, files)
	entries := book.Contents()

	want := []struct {
		title, href, anchor string
		depth               int
	}{
		{"Part A", "OEBPS/text/a.xhtml", "start", 0},
		{"B", "OEBPS/text/b.xhtml", "", 1},
		{"B.1", "OEBPS/text/b.xhtml", "b1", 1},
	}
	if len(entries) != len(want) {
		t.Fatalf("Contents() length = %d, want %d: %+v", len(entries), len(want), entries)
	}
	for i, w := range want {
		e := entries[i]
		if e.Title != w.title || e.Href != w.href || e.Anchor != w.anchor || e.Depth != w.depth {
			t.Errorf("entry[%d] = {%q %q %q %d}, want %+v", i, e.Title, e.Href, e.Anchor, e.Depth, w)
		}
	}
}

func TestContents_SpineFallback(t *testing.T) {
	docs := []testDoc{
		{"one", "one.xhtml", `<p>1</p>`},
		{"two", "two.xhtml", `<p>2</p>`},
	}
	files := map[string]string{
		"mimetype":               "application/epub+zip",
		"META-INF/container.xml": validContainerXML,
		"OEBPS/content.opf":      testOPF("2.0", docs, "", false),
		"OEBPS/one.xhtml":        xhtml("First Document", docs[0].body),
		"OEBPS/two.xhtml":        xhtml("", docs[1].body),
	}

	book := openTestBook(t, files)
	entries := book.Contents()
	if len(entries) != 2 {
		t.Fatalf("Contents() length = %d, want 2", len(entries))
	}
	if entries[0].Title != "First Document" {
		t.Errorf("entry[0].Title = %q, want %q", entries[0].Title, "First Document")
	}
	if entries[1].Title != "two" {
		t.Errorf("entry[1].Title = %q, want file name fallback %q", entries[1].Title, "two")
	}
	if entries[0].Next != entries[1] {
		t.Error("fallback entries should be linked")
	}
}

func TestBook_ReadFile(t *testing.T) {
	book := openTestBook(t, sampleBookFiles())

	data, err := book.ReadFile("oebps/IMAGES/fig.png")
	if err != nil {
		t.Fatalf("ReadFile() case-insensitive error = %v", err)
	}
	if string(data) != "\x89PNG fake" {
		t.Errorf("ReadFile() = %q", data)
	}

	_, err = book.ReadFile("OEBPS/missing.png")
	if !errors.Is(err, ErrFileNotFound) {
		t.Errorf("error = %v, want ErrFileNotFound", err)
	}
}

func TestBook_Metadata(t *testing.T) {
	book := openTestBook(t, sampleBookFiles())
	md := book.Metadata()

	if md.Title != "Test Book" {
		t.Errorf("Title = %q, want %q", md.Title, "Test Book")
	}
	if len(md.Authors) != 1 || md.Authors[0] != "Jane Doe" {
		t.Errorf("Authors = %v, want [Jane Doe]", md.Authors)
	}
	if md.Identifier != "urn:uuid:1234" {
		t.Errorf("Identifier = %q", md.Identifier)
	}
	if md.Version != "2.0" {
		t.Errorf("Version = %q, want 2.0", md.Version)
	}

	md.Authors[0] = "changed"
	if book.Metadata().Authors[0] != "Jane Doe" {
		t.Error("Metadata() should return a copy of Authors")
	}
}

func TestBook_Extract(t *testing.T) {
	book := openTestBook(t, sampleBookFiles())
	entries := book.Contents()

	tests := []struct {
		entry int
		want  string
	}{
		{0, `<h1>Prologue</h1><p>Before it all.</p>`},
		{1, `<h1 id="c1">Chapter 1</h1><p>One.</p><div class="sec"></div>`},
		{2, `<div class="sec"><h1 id="c2">Chapter 2</h1><p>Two <img src="epub:///OEBPS/images/fig.png" alt="fig"/></p></div><p>Two, continued.</p>`},
		{3, `<h1 id="c3">Epilogue</h1><p>The end.</p>`},
	}
	for _, tt := range tests {
		t.Run(entries[tt.entry].Title, func(t *testing.T) {
			frag, err := book.Extract(entries[tt.entry])
			if err != nil {
				t.Fatalf("Extract() error = %v", err)
			}
			got, err := frag.HTML()
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("HTML() =\n%s\nwant\n%s", got, tt.want)
			}
			if frag.Title != entries[tt.entry].Title {
				t.Errorf("Title = %q, want %q", frag.Title, entries[tt.entry].Title)
			}
			if len(frag.Warnings) != 0 {
				t.Errorf("unexpected warnings: %v", frag.Warnings)
			}
		})
	}
}

func TestBook_Extract_EncodedAnchor(t *testing.T) {
	docs := []testDoc{{"a", "a.xhtml", `<p>Intro.</p><h2 id="sec 1">Section</h2><p>Body.</p>`}}
	book := openTestBook(t, map[string]string{
		"mimetype":               "application/epub+zip",
		"META-INF/container.xml": validContainerXML,
		"OEBPS/content.opf":      testOPF("2.0", docs, "", true),
		"OEBPS/toc.ncx": testNCX(
			[2]string{"Intro", "a.xhtml"},
			[2]string{"Section", "a.xhtml#sec%201"},
		),
		"OEBPS/a.xhtml": xhtml("a", docs[0].body),
	})

	entries := book.Contents()
	if len(entries) != 2 || entries[1].Anchor != "sec 1" {
		t.Fatalf("Contents() = %v", entries)
	}
	for i, want := range []string{`<p>Intro.</p>`, `<h2 id="sec 1">Section</h2><p>Body.</p>`} {
		frag, err := book.Extract(entries[i])
		if err != nil {
			t.Fatalf("Extract(%q) error = %v", entries[i].Title, err)
		}
		got, err := frag.HTML()
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Errorf("Extract(%q) = %s, want %s", entries[i].Title, got, want)
		}
		if len(frag.Warnings) != 0 {
			t.Errorf("Extract(%q) warnings = %v", entries[i].Title, frag.Warnings)
		}
	}
}

func TestResourceURI(t *testing.T) {
	u := ResourceURI("OEBPS/images/fig 1.png")
	if got, want := u.String(), "epub:///OEBPS/images/fig%201.png"; got != want {
		t.Errorf("ResourceURI() = %q, want %q", got, want)
	}
	if got := PathOf(u); got != "OEBPS/images/fig 1.png" {
		t.Errorf("PathOf() = %q", got)
	}

	other, _ := url.Parse("https://example.com/a.png")
	if got := PathOf(other); got != "" {
		t.Errorf("PathOf(https) = %q, want empty", got)
	}
	if got := PathOf(nil); got != "" {
		t.Errorf("PathOf(nil) = %q, want empty", got)
	}
}
