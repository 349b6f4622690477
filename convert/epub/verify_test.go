package epub

import (
	"archive/zip"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

type rawEntry struct {
	name   string
	data   string
	method uint16
}

const (
	validContainer = `<?xml version="1.0"?><container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container"><rootfiles><rootfile full-path="OEBPS/Content.opf" media-type="application/oebps-package+xml"/></rootfiles></container>`
	validOPF       = `<?xml version="1.0"?><package version="2.0" xmlns="http://www.idpf.org/2007/opf"><metadata xmlns:dc="http://purl.org/dc/elements/1.1/"><dc:title>T</dc:title></metadata><manifest><item id="ncx" href="toc.ncx" media-type="application/x-dtbncx+xml"/><item id="article_1" href="article_1.html" media-type="application/xhtml+xml"/></manifest><spine toc="ncx"><itemref idref="article_1"/></spine></package>`
	validNCX       = `<?xml version="1.0"?><ncx xmlns="http://www.daisy.org/z3986/2005/ncx/" version="2005-1"><navMap><navPoint id="navpoint-1" playOrder="1"><navLabel><text>A</text></navLabel><content src="article_1.html"/></navPoint></navMap></ncx>`
)

func writeRawZip(t *testing.T, entries []rawEntry) string {
	t.Helper()

	name := filepath.Join(t.TempDir(), "book.epub")
	f, err := os.Create(name)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	w := zip.NewWriter(f)
	for _, e := range entries {
		fw, err := w.CreateHeader(&zip.FileHeader{Name: e.name, Method: e.method})
		if err != nil {
			t.Fatal(err)
		}
		if _, err := fw.Write([]byte(e.data)); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return name
}

func validEntries() []rawEntry {
	return []rawEntry{
		{"mimetype", "application/epub+zip", zip.Store},
		{"META-INF/container.xml", validContainer, zip.Deflate},
		{"OEBPS/Content.opf", validOPF, zip.Deflate},
		{"OEBPS/toc.ncx", validNCX, zip.Deflate},
		{"OEBPS/article_1.html", "<html/>", zip.Deflate},
	}
}

func TestVerify(t *testing.T) {
	sum, err := Verify(writeRawZip(t, validEntries()))
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if sum.Manifest != 2 || sum.Spine != 1 || sum.NavPoints != 1 || sum.Title != "T" {
		t.Errorf("unexpected summary: %+v", sum)
	}
}

func TestVerify_BuiltBook(t *testing.T) {
	for _, fix := range []bool{false, true} {
		out := filepath.Join(t.TempDir(), "built.epub")
		if err := buildForTest(t, out, []string{"http://x/1", "http://x/2"}, WithFixZip(fix)); err != nil {
			t.Fatalf("Build(fixzip=%v) error = %v", fix, err)
		}
		sum, err := Verify(out)
		if err != nil {
			t.Fatalf("Verify(fixzip=%v) error = %v", fix, err)
		}
		if sum.Manifest != 7 || sum.Spine != 3 || sum.NavPoints != 3 {
			t.Errorf("fixzip=%v: unexpected summary: %+v", fix, sum)
		}
	}
}

func TestVerify_Invalid(t *testing.T) {
	replace := func(name, data string) func([]rawEntry) []rawEntry {
		return func(entries []rawEntry) []rawEntry {
			for i := range entries {
				if entries[i].name == name {
					entries[i].data = data
				}
			}
			return entries
		}
	}

	tests := []struct {
		name   string
		mutate func([]rawEntry) []rawEntry
	}{
		{"mimetype not first", func(e []rawEntry) []rawEntry { e[0], e[1] = e[1], e[0]; return e }},
		{"mimetype compressed", func(e []rawEntry) []rawEntry { e[0].method = zip.Deflate; return e }},
		{"mimetype content", replace("mimetype", "application/zip")},
		{"no container", func(e []rawEntry) []rawEntry { return append(e[:1], e[2:]...) }},
		{"wrong rootfile", replace("META-INF/container.xml", `<container><rootfiles><rootfile full-path="content.opf"/></rootfiles></container>`)},
		{"missing manifest file", func(e []rawEntry) []rawEntry { return e[:4] }},
		{"unknown spine item", replace("OEBPS/Content.opf", `<package><manifest><item id="ncx" href="toc.ncx"/></manifest><spine toc="ncx"><itemref idref="article_1"/></spine></package>`)},
		{"no ncx", replace("OEBPS/Content.opf", `<package><manifest><item id="article_1" href="article_1.html"/></manifest><spine><itemref idref="article_1"/></spine></package>`)},
		{"bad play order", replace("OEBPS/toc.ncx", `<ncx><navMap><navPoint id="n" playOrder="2"><content src="article_1.html"/></navPoint></navMap></ncx>`)},
		{"unknown nav src", replace("OEBPS/toc.ncx", `<ncx><navMap><navPoint id="n" playOrder="1"><content src="article_2.html"/></navPoint></navMap></ncx>`)},
		{"malformed xml", replace("OEBPS/Content.opf", `<package version=2.0><manifest/></package>`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Verify(writeRawZip(t, tt.mutate(validEntries())))
			if !errors.Is(err, ErrInvalidPackage) {
				t.Errorf("Verify() error = %v, want ErrInvalidPackage", err)
			}
		})
	}
}

func TestVerify_NotZip(t *testing.T) {
	name := filepath.Join(t.TempDir(), "book.epub")
	if err := os.WriteFile(name, []byte("nope"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Verify(name); err == nil {
		t.Error("Verify() expected error")
	}
}
