package epub

import (
	"fmt"
	"time"
)

const (
	oebpsDir  = "OEBPS"
	imagesDir = "images"

	packageDocName    = "Content.opf"
	navigationDocName = "toc.ncx"
	coverPageName     = "cover.html"
	stylesheetName    = "stylesheet.css"

	xhtmlMediaType = "application/xhtml+xml"
	defaultMedia   = "application/octet-stream"
)

// BookMetadata describes the book as a whole. It does not change once build
// starts.
type BookMetadata struct {
	Title       string
	Author      string
	Rights      string
	Publisher   string
	Identifier  string
	Subject     string
	Description string
	Language    string
	Date        time.Time

	// CoverHref is cover image location relative to OEBPS directory.
	CoverHref      string
	CoverMediaType string
}

// Article is a single transformed page. Index is 1-based and determines
// manifest, spine and navigation order.
type Article struct {
	Index  int
	URL    string
	Title  string
	Body   []byte
	Images []*ImageAsset
}

func (a *Article) ID() string {
	return fmt.Sprintf("article_%d", a.Index)
}

func (a *Article) Href() string {
	return a.ID() + ".html"
}

// ImageAsset is an image referenced by article which was successfully
// downloaded.
type ImageAsset struct {
	Article   int
	Ordinal   int
	Source    string
	Filename  string
	MediaType string
	Data      []byte
}

func (i *ImageAsset) ID() string {
	return fmt.Sprintf("article_%d_image_%d", i.Article, i.Ordinal)
}

// Href is image location relative to OEBPS directory, also used as src in
// article body.
func (i *ImageAsset) Href() string {
	return imagesDir + "/" + i.Filename
}

func imageFilename(article, ordinal int, ext string) string {
	return fmt.Sprintf("article_%d_image_%d%s", article, ordinal, ext)
}

// entryName returns container entry name for location relative to OEBPS.
func entryName(href string) string {
	return oebpsDir + "/" + href
}
