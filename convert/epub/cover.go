package epub

import (
	"bytes"
	_ "embed"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"

	"github.com/beevik/etree"
	"github.com/disintegration/imaging"
	"go.uber.org/zap"

	"web2epub/utils/images"
)

// 1x1 white GIF used when no cover image was supplied.
const placeholderCover = "R0lGODlhAQABAIAAAP///wAAACH5BAEAAAAALAAAAAABAAEAAAICRAEAOw=="

//go:embed default.css
var defaultStylesheet []byte

// Cover is the book cover image.
type Cover struct {
	Href      string
	MediaType string
	Data      []byte
}

// LoadCover reads cover image from path. Empty path yields built-in
// placeholder. Image larger than maxWidth x maxHeight is scaled down keeping
// aspect ratio, zero limit means no limit.
func LoadCover(path string, maxWidth, maxHeight int, log *zap.Logger) (*Cover, error) {
	if path == "" {
		data, err := base64.StdEncoding.DecodeString(placeholderCover)
		if err != nil {
			// this should never happen
			panic(fmt.Sprintf("bad placeholder cover: %v", err))
		}
		return &Cover{Href: imagesDir + "/cover.gif", MediaType: "image/gif", Data: data}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read cover image: %w", err)
	}
	ext := filepath.Ext(path)
	c := &Cover{
		Href:      imagesDir + "/cover" + ext,
		MediaType: MediaType(ext, data),
		Data:      data,
	}
	if maxWidth > 0 || maxHeight > 0 {
		c.Data = downscale(data, path, maxWidth, maxHeight, log)
	}
	return c, nil
}

// downscale returns data unchanged when image could not be processed or
// already fits.
func downscale(data []byte, name string, maxWidth, maxHeight int, log *zap.Logger) []byte {
	format, err := imaging.FormatFromFilename(name)
	if err != nil {
		log.Debug("Cover image format could not be resized, keeping as is", zap.String("file", name))
		return data
	}
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		log.Warn("Unable to decode cover image, keeping as is", zap.String("file", name), zap.Error(err))
		return data
	}

	b := img.Bounds()
	w, h := maxWidth, maxHeight
	if w == 0 {
		w = b.Dx()
	}
	if h == 0 {
		h = b.Dy()
	}
	if b.Dx() <= w && b.Dy() <= h {
		return data
	}
	img = imaging.Fit(img, w, h, imaging.Lanczos)

	var out []byte
	if format == imaging.JPEG {
		out, err = images.EncodeJPEG(img, 90)
	} else {
		buf := new(bytes.Buffer)
		err = imaging.Encode(buf, img, format)
		out = buf.Bytes()
	}
	if err != nil {
		log.Warn("Unable to encode resized cover image, keeping original", zap.String("file", name), zap.Error(err))
		return data
	}
	log.Debug("Cover image resized",
		zap.Int("width", img.Bounds().Dx()), zap.Int("height", img.Bounds().Dy()),
		zap.Int("was_width", b.Dx()), zap.Int("was_height", b.Dy()))
	return out
}

// CoverPage renders cover page document.
func CoverPage(title string, cover *Cover) *etree.Document {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	doc.CreateDirective(xhtmlDoctype)

	html := doc.CreateElement("html")
	html.CreateAttr("xmlns", xhtmlNamespace)

	head := html.CreateElement("head")
	head.CreateElement("title").SetText("Cover")
	style := head.CreateElement("style")
	style.CreateAttr("type", "text/css")
	style.SetText(" img { max-width: 100%; } ")

	body := html.CreateElement("body")
	body.CreateElement("h1").SetText(xmlText(title))

	div := body.CreateElement("div")
	div.CreateAttr("id", "cover-image")
	img := div.CreateElement("img")
	img.CreateAttr("src", cover.Href)
	img.CreateAttr("alt", "Cover image")
	return doc
}

// compressible reports whether entry of the media type benefits from deflate.
// Raster formats are already compressed and stored as is.
func compressible(mediaType string) bool {
	switch mediaType {
	case "image/jpeg", "image/png", "image/gif", "image/webp", "image/avif":
		return false
	}
	return true
}
