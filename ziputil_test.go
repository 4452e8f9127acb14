package epubslice

import (
	"archive/zip"
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestZipIndexLookup(t *testing.T) {
	zr := buildTestZip(t, map[string]string{
		"OEBPS/Content.opf": "upper",
		"oebps/content.opf": "exact",
	})
	idx := newZipIndex(zr)

	if f := idx.lookup("oebps/content.opf"); f == nil || f.Name != "oebps/content.opf" {
		t.Errorf("exact match should win, got %v", f)
	}
	if f := idx.lookup("OEBPS/CONTENT.OPF"); f == nil {
		t.Error("expected case-insensitive match")
	}
	if f := idx.lookup("missing"); f != nil {
		t.Errorf("expected nil, got %s", f.Name)
	}
}

func TestZipIndexRead(t *testing.T) {
	idx := newZipIndex(buildTestZip(t, map[string]string{"OEBPS/a.xhtml": "content"}))

	data, err := idx.read("oebps/A.XHTML")
	if err != nil || string(data) != "content" {
		t.Errorf("read() = %q, %v", data, err)
	}
	if _, err := idx.read("OEBPS/b.xhtml"); !errors.Is(err, ErrFileNotFound) {
		t.Errorf("read(missing) error = %v, want ErrFileNotFound", err)
	}
}

func TestResolveRelativePath(t *testing.T) {
	tests := []struct {
		base, href, want string
	}{
		{"OEBPS/text/ch1.xhtml", "../images/a.png", "OEBPS/images/a.png"},
		{"OEBPS/ch1.xhtml", "img/b%20c.png", "OEBPS/img/b c.png"},
		{"ch1.xhtml", "a.png", "a.png"},
		{"ch1.xhtml", "../a.png", ""},
		{"OEBPS/ch1.xhtml", "/abs.png", ""},
		{"OEBPS/ch1.xhtml", "  ./x.png ", "OEBPS/x.png"},
	}
	for _, tt := range tests {
		if got := resolveRelativePath(tt.base, tt.href); got != tt.want {
			t.Errorf("resolveRelativePath(%q, %q) = %q, want %q", tt.base, tt.href, got, tt.want)
		}
	}
}

func TestIsSafePath(t *testing.T) {
	tests := map[string]bool{
		"OEBPS/a.xhtml":    true,
		"a/../b":           true,
		"../a":             false,
		"..":               false,
		"/etc/passwd":      false,
		"a/../../b":        false,
		"META-INF/x.xml":   true,
		"dir/..hidden.txt": true,
	}
	for p, want := range tests {
		if got := isSafePath(p); got != want {
			t.Errorf("isSafePath(%q) = %v, want %v", p, got, want)
		}
	}
}

func TestStripBOM(t *testing.T) {
	if got := stripBOM([]byte("\xEF\xBB\xBFabc")); string(got) != "abc" {
		t.Errorf("stripBOM() = %q", got)
	}
	if got := stripBOM([]byte("ab")); string(got) != "ab" {
		t.Errorf("stripBOM() = %q", got)
	}
}

func TestReadEntry_Limit(t *testing.T) {
	zr := buildTestZip(t, map[string]string{
		"small.txt": "hello",
		"big.txt":   strings.Repeat("x", 100),
	})
	files := map[string]*zip.File{}
	for _, f := range zr.File {
		files[f.Name] = f
	}

	data, err := readEntry(files["small.txt"], 10)
	if err != nil || string(data) != "hello" {
		t.Errorf("readEntry(small) = %q, %v", data, err)
	}
	if _, err := readEntry(files["big.txt"], 10); err == nil {
		t.Error("expected size limit error")
	}
}

func TestReadEntry_PathTraversal(t *testing.T) {
	buf := new(bytes.Buffer)
	zw := zip.NewWriter(buf)
	w, err := zw.Create("../evil.txt")
	if err != nil {
		t.Fatal(err)
	}
	w.Write([]byte("evil"))
	zw.Close()

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Skipf("zip reader rejects traversal names: %v", err)
	}
	if _, err := readEntry(zr.File[0], maxDecompressSize); err == nil {
		t.Error("expected error for unsafe entry name")
	}
}
