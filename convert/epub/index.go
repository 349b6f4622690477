package epub

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/beevik/etree"
)

const (
	opfNamespace       = "http://www.idpf.org/2007/opf"
	dcNamespace        = "http://purl.org/dc/elements/1.1/"
	ncxNamespace       = "http://www.daisy.org/z3986/2005/ncx/"
	containerNamespace = "urn:oasis:names:tc:opendocument:xmlns:container"

	ncxDoctype = `DOCTYPE ncx PUBLIC "-//NISO//DTD ncx 2005-1//EN" "http://www.daisy.org/z3986/2005/ncx-2005-1.dtd"`

	bookIDName = "bookid"
)

// ManifestItem is a single package content item.
type ManifestItem struct {
	ID        string
	Href      string
	MediaType string
}

// SpineItem is reading order entry.
type SpineItem struct {
	IDRef     string
	NonLinear bool
}

// NavPoint is navigation map entry.
type NavPoint struct {
	ID        string
	PlayOrder int
	Label     string
	Src       string
}

// Index accumulates manifest, spine and navigation map as articles and images
// are registered and renders package documents from them. Order of
// registration is reading order.
type Index struct {
	meta BookMetadata

	manifest []ManifestItem
	spine    []SpineItem
	nav      []NavPoint

	ids      map[string]struct{}
	hrefs    map[string]struct{}
	articles int
	sealed   bool

	packageRendered    bool
	navigationRendered bool
}

// NewIndex returns index with static items (navigation control file, cover
// page, cover image and stylesheet) already in place.
func NewIndex(meta BookMetadata) *Index {
	x := &Index{
		meta:  meta,
		ids:   make(map[string]struct{}),
		hrefs: make(map[string]struct{}),
	}
	for _, item := range []ManifestItem{
		{ID: "ncx", Href: navigationDocName, MediaType: "application/x-dtbncx+xml"},
		{ID: "cover", Href: coverPageName, MediaType: xhtmlMediaType},
		{ID: "cover-image", Href: meta.CoverHref, MediaType: meta.CoverMediaType},
		{ID: "css", Href: stylesheetName, MediaType: "text/css"},
	} {
		// static items are unique
		_ = x.addItem(item)
	}
	x.spine = append(x.spine, SpineItem{IDRef: "cover", NonLinear: true})
	x.nav = append(x.nav, NavPoint{ID: "navpoint-1", PlayOrder: 1, Label: "Cover", Src: coverPageName})
	return x
}

func (x *Index) addItem(item ManifestItem) error {
	if x.sealed {
		return fmt.Errorf("%w: index already rendered", ErrInvalidState)
	}
	if _, exists := x.ids[item.ID]; exists {
		return fmt.Errorf("%w: manifest id %s", ErrDuplicateEntry, item.ID)
	}
	if _, exists := x.hrefs[item.Href]; exists {
		return fmt.Errorf("%w: manifest href %s", ErrDuplicateEntry, item.Href)
	}
	x.ids[item.ID] = struct{}{}
	x.hrefs[item.Href] = struct{}{}
	x.manifest = append(x.manifest, item)
	return nil
}

// RegisterArticle adds article to manifest, spine and navigation map.
// Articles must be registered in their index order.
func (x *Index) RegisterArticle(a *Article) error {
	if a.Index != x.articles+1 {
		return fmt.Errorf("%w: article %d registered after %d", ErrInvalidState, a.Index, x.articles)
	}
	if err := x.addItem(ManifestItem{ID: a.ID(), Href: a.Href(), MediaType: xhtmlMediaType}); err != nil {
		return err
	}
	x.articles++
	x.spine = append(x.spine, SpineItem{IDRef: a.ID()})
	x.nav = append(x.nav, NavPoint{
		ID:        "navpoint-" + strconv.Itoa(a.Index+1),
		PlayOrder: a.Index + 1,
		Label:     a.Title,
		Src:       a.Href(),
	})
	return nil
}

// RegisterImage adds image to manifest.
func (x *Index) RegisterImage(img *ImageAsset) error {
	return x.addItem(ManifestItem{ID: img.ID(), Href: img.Href(), MediaType: img.MediaType})
}

// Manifest returns copy of accumulated manifest items.
func (x *Index) Manifest() []ManifestItem {
	return append([]ManifestItem(nil), x.manifest...)
}

// Spine returns copy of accumulated spine.
func (x *Index) Spine() []SpineItem {
	return append([]SpineItem(nil), x.spine...)
}

// NavPoints returns copy of accumulated navigation map.
func (x *Index) NavPoints() []NavPoint {
	return append([]NavPoint(nil), x.nav...)
}

// Check verifies that every spine and navigation reference points to a
// manifest item.
func (x *Index) Check() error {
	for _, s := range x.spine {
		if _, ok := x.ids[s.IDRef]; !ok {
			return fmt.Errorf("%w: spine idref %s", ErrDanglingReference, s.IDRef)
		}
	}
	for _, n := range x.nav {
		if _, ok := x.hrefs[n.Src]; !ok {
			return fmt.Errorf("%w: navpoint %s src %s", ErrDanglingReference, n.ID, n.Src)
		}
	}
	return nil
}

func newXMLDocument() *etree.Document {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	return doc
}

// PackageDocument renders OPF 2.0 package document. It may be rendered only
// once, no registration is possible afterwards.
func (x *Index) PackageDocument() (*etree.Document, error) {
	if x.packageRendered {
		return nil, fmt.Errorf("%w: package document already rendered", ErrInvalidState)
	}
	if err := x.Check(); err != nil {
		return nil, err
	}
	x.sealed, x.packageRendered = true, true

	doc := newXMLDocument()

	pkg := doc.CreateElement("package")
	pkg.CreateAttr("version", "2.0")
	pkg.CreateAttr("xmlns", opfNamespace)
	pkg.CreateAttr("unique-identifier", bookIDName)

	metadata := pkg.CreateElement("metadata")
	metadata.CreateAttr("xmlns:dc", dcNamespace)
	metadata.CreateAttr("xmlns:opf", opfNamespace)

	metadata.CreateElement("dc:title").SetText(x.meta.Title)
	if x.meta.Author != "" {
		creator := metadata.CreateElement("dc:creator")
		creator.CreateAttr("opf:role", "aut")
		creator.SetText(x.meta.Author)
	}
	metadata.CreateElement("dc:language").SetText(x.meta.Language)
	for _, dc := range []struct{ name, value string }{
		{"dc:rights", x.meta.Rights},
		{"dc:publisher", x.meta.Publisher},
		{"dc:subject", x.meta.Subject},
		{"dc:description", x.meta.Description},
	} {
		if dc.value != "" {
			metadata.CreateElement(dc.name).SetText(dc.value)
		}
	}
	metadata.CreateElement("dc:date").SetText(x.meta.Date.Format("2006-01-02"))

	identifier := metadata.CreateElement("dc:identifier")
	identifier.CreateAttr("id", bookIDName)
	identifier.SetText(x.meta.Identifier)

	cover := metadata.CreateElement("meta")
	cover.CreateAttr("name", "cover")
	cover.CreateAttr("content", "cover-image")

	manifest := pkg.CreateElement("manifest")
	for _, item := range x.manifest {
		el := manifest.CreateElement("item")
		el.CreateAttr("id", item.ID)
		el.CreateAttr("href", item.Href)
		el.CreateAttr("media-type", item.MediaType)
	}

	spine := pkg.CreateElement("spine")
	spine.CreateAttr("toc", "ncx")
	for _, s := range x.spine {
		el := spine.CreateElement("itemref")
		el.CreateAttr("idref", s.IDRef)
		if s.NonLinear {
			el.CreateAttr("linear", "no")
		}
	}

	guide := pkg.CreateElement("guide")
	ref := guide.CreateElement("reference")
	ref.CreateAttr("href", coverPageName)
	ref.CreateAttr("type", "cover")
	ref.CreateAttr("title", "Cover")

	return doc, nil
}

// NavigationDocument renders NCX 2005-1 navigation map. It may be rendered
// only once, no registration is possible afterwards.
func (x *Index) NavigationDocument() (*etree.Document, error) {
	if x.navigationRendered {
		return nil, fmt.Errorf("%w: navigation document already rendered", ErrInvalidState)
	}
	if err := x.Check(); err != nil {
		return nil, err
	}
	x.sealed, x.navigationRendered = true, true

	doc := newXMLDocument()
	doc.CreateDirective(ncxDoctype)

	ncx := doc.CreateElement("ncx")
	ncx.CreateAttr("xmlns", ncxNamespace)
	ncx.CreateAttr("version", "2005-1")

	head := ncx.CreateElement("head")
	for _, m := range []struct{ name, content string }{
		{"dtb:uid", x.meta.Identifier},
		{"dtb:depth", "1"},
		{"dtb:totalPageCount", "0"},
		{"dtb:maxPageNumber", "0"},
	} {
		meta := head.CreateElement("meta")
		meta.CreateAttr("name", m.name)
		meta.CreateAttr("content", m.content)
	}

	ncx.CreateElement("docTitle").CreateElement("text").SetText(x.meta.Title)

	navMap := ncx.CreateElement("navMap")
	for _, n := range x.nav {
		np := navMap.CreateElement("navPoint")
		np.CreateAttr("id", n.ID)
		np.CreateAttr("playOrder", strconv.Itoa(n.PlayOrder))
		np.CreateElement("navLabel").CreateElement("text").SetText(n.Label)
		np.CreateElement("content").CreateAttr("src", n.Src)
	}
	return doc, nil
}

// ContainerDocument renders META-INF/container.xml pointing to the package
// document. It does not depend on index content, so it is not a part of Index
// and is written together with other static entries.
func ContainerDocument() *etree.Document {
	doc := newXMLDocument()

	container := doc.CreateElement("container")
	container.CreateAttr("version", "1.0")
	container.CreateAttr("xmlns", containerNamespace)

	rootfile := container.CreateElement("rootfiles").CreateElement("rootfile")
	rootfile.CreateAttr("full-path", entryName(packageDocName))
	rootfile.CreateAttr("media-type", "application/oebps-package+xml")
	return doc
}

// serialize returns indented document bytes.
func serialize(doc *etree.Document) ([]byte, error) {
	doc.Indent(2)
	var buf bytes.Buffer
	if _, err := doc.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
