package epub

import (
	"archive/zip"
	"errors"
	"fmt"
	"path"
	"strconv"

	"github.com/beevik/etree"

	"web2epub/archive"
)

// ErrInvalidPackage is returned by Verify for structurally broken packages.
var ErrInvalidPackage = errors.New("epub: invalid package")

// Summary describes verified package.
type Summary struct {
	Entries   int
	Manifest  int
	Spine     int
	NavPoints int
	Title     string
}

// Verify re-opens produced package and checks its structure: leading stored
// mimetype, container pointing at the package document and consistency of
// manifest, spine and navigation map with each other and archive content.
func Verify(name string) (*Summary, error) {
	// archive is closed when Walk returns, so documents are read while walking
	files := make(map[string][]byte)
	first := -1
	err := archive.Walk(name, "", func(_ string, index int, f *zip.File) error {
		if f.Name == mimetypeName {
			first = index
			if f.Method != zip.Store {
				return fmt.Errorf("%w: mimetype is compressed", ErrInvalidPackage)
			}
			data, err := archive.ReadFile(f)
			if err != nil {
				return err
			}
			if string(data) != mimetypeContent {
				return fmt.Errorf("%w: unexpected mimetype content %q", ErrInvalidPackage, data)
			}
		}
		files[f.Name] = nil
		switch path.Ext(f.Name) {
		case ".xml", ".opf", ".ncx":
			data, err := archive.ReadFile(f)
			if err != nil {
				return err
			}
			files[f.Name] = data
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if first != 0 {
		return nil, fmt.Errorf("%w: mimetype is not the first entry", ErrInvalidPackage)
	}

	container, err := readXML(files, "META-INF/container.xml")
	if err != nil {
		return nil, err
	}
	rootfile := container.FindElement("//rootfile")
	if rootfile == nil {
		return nil, fmt.Errorf("%w: container has no rootfile", ErrInvalidPackage)
	}
	opfName := rootfile.SelectAttrValue("full-path", "")
	if opfName != entryName(packageDocName) {
		return nil, fmt.Errorf("%w: container points to %q", ErrInvalidPackage, opfName)
	}

	opf, err := readXML(files, opfName)
	if err != nil {
		return nil, err
	}
	sum := &Summary{Entries: len(files)}
	if t := opf.FindElement("//metadata/dc:title"); t != nil {
		sum.Title = t.Text()
	}

	base := path.Dir(opfName)
	ids := make(map[string]string)
	for _, item := range opf.FindElements("//manifest/item") {
		id, href := item.SelectAttrValue("id", ""), item.SelectAttrValue("href", "")
		if _, exists := ids[id]; exists {
			return nil, fmt.Errorf("%w: duplicate manifest id %q", ErrInvalidPackage, id)
		}
		if _, ok := files[path.Join(base, href)]; !ok {
			return nil, fmt.Errorf("%w: manifest item %q refers to missing %q", ErrInvalidPackage, id, href)
		}
		ids[id] = href
	}
	sum.Manifest = len(ids)

	spine := opf.FindElement("//spine")
	if spine == nil {
		return nil, fmt.Errorf("%w: package document has no spine", ErrInvalidPackage)
	}
	for _, ref := range spine.SelectElements("itemref") {
		idref := ref.SelectAttrValue("idref", "")
		if _, ok := ids[idref]; !ok {
			return nil, fmt.Errorf("%w: spine refers to unknown item %q", ErrInvalidPackage, idref)
		}
		sum.Spine++
	}

	ncxHref, ok := ids[spine.SelectAttrValue("toc", "")]
	if !ok {
		return nil, fmt.Errorf("%w: spine has no navigation control file", ErrInvalidPackage)
	}
	ncx, err := readXML(files, path.Join(base, ncxHref))
	if err != nil {
		return nil, err
	}
	hrefs := make(map[string]struct{}, len(ids))
	for _, href := range ids {
		hrefs[href] = struct{}{}
	}
	for i, np := range ncx.FindElements("//navMap/navPoint") {
		order := np.SelectAttrValue("playOrder", "")
		if order != strconv.Itoa(i+1) {
			return nil, fmt.Errorf("%w: navPoint %d has playOrder %q", ErrInvalidPackage, i+1, order)
		}
		content := np.SelectElement("content")
		if content == nil {
			return nil, fmt.Errorf("%w: navPoint %d has no content", ErrInvalidPackage, i+1)
		}
		if _, ok := hrefs[content.SelectAttrValue("src", "")]; !ok {
			return nil, fmt.Errorf("%w: navPoint %d refers to unknown item %q", ErrInvalidPackage, i+1, content.SelectAttrValue("src", ""))
		}
		sum.NavPoints++
	}
	return sum, nil
}

func readXML(files map[string][]byte, name string) (*etree.Document, error) {
	data, ok := files[name]
	if !ok {
		return nil, fmt.Errorf("%w: missing %s", ErrInvalidPackage, name)
	}
	if data == nil {
		return nil, fmt.Errorf("%w: unexpected document name %s", ErrInvalidPackage, name)
	}
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, fmt.Errorf("%w: unable to parse %s: %v", ErrInvalidPackage, name, err)
	}
	return doc, nil
}
