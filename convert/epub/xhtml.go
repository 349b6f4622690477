package epub

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"github.com/beevik/etree"
	"go.uber.org/zap"
	"golang.org/x/net/html"
)

const (
	xhtmlNamespace = "http://www.w3.org/1999/xhtml"
	svgNamespace   = "http://www.w3.org/2000/svg"
	mathNamespace  = "http://www.w3.org/1998/Math/MathML"
	xlinkNamespace = "http://www.w3.org/1999/xlink"

	xhtmlDoctype = `DOCTYPE html PUBLIC "-//W3C//DTD XHTML 1.1//EN" "http://www.w3.org/TR/xhtml11/DTD/xhtml11.dtd"`
)

// attributes checked in order for image source, lazy loading scripts keep
// real location in data attributes.
var imageSourceAttrs = []string{"src", "data-src", "data-original", "data-lazy-src"}

// ImageResolver localizes single image reference.
type ImageResolver interface {
	Resolve(ctx context.Context, base, ref string, article, ordinal int) (*ImageAsset, error)
}

// Transformer turns extracted article html into self-contained XHTML.
type Transformer struct {
	resolver ImageResolver
	strip    []string
	log      *zap.Logger
}

// NewTransformer returns transformer which removes strip elements from
// article body and localizes images with resolver.
func NewTransformer(resolver ImageResolver, strip []string, log *zap.Logger) *Transformer {
	return &Transformer{resolver: resolver, strip: strip, log: log.Named("xhtml")}
}

// Transform parses raw article html, builds XHTML tree with stylesheet link,
// title and heading and rewrites images which could be resolved to their
// local copies. Unresolved images keep original source.
func (t *Transformer) Transform(ctx context.Context, base, raw, title string, index int) (*Article, error) {
	gq, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("unable to parse article html: %w", err)
	}
	if len(t.strip) > 0 {
		gq.Find(strings.Join(t.strip, ", ")).Remove()
	}

	doc := NewXHTMLDocument(gq.Nodes[0])
	root := doc.Root()

	SetNamespace(root)
	InsertHeadItems(EnsureHead(root), title)
	InsertHeading(EnsureBody(root), title)

	a := &Article{Index: index, URL: base, Title: title}
	for j, img := range root.FindElements(".//img") {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ref := imageSource(img)
		if ref == "" {
			t.log.Debug("Image without source", zap.Int("article", index), zap.Int("image", j+1))
			continue
		}
		asset, err := t.resolver.Resolve(ctx, base, ref, index, j+1)
		if err != nil {
			t.log.Warn("Unable to resolve image, leaving original source", zap.Int("article", index), zap.String("src", ref), zap.Error(err))
			continue
		}
		img.CreateAttr("src", asset.Href())
		img.RemoveAttr("srcset")
		if img.SelectAttr("alt") == nil {
			img.CreateAttr("alt", "")
		}
		a.Images = append(a.Images, asset)
	}

	var buf bytes.Buffer
	if _, err := doc.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("unable to serialize article: %w", err)
	}
	a.Body = buf.Bytes()
	return a, nil
}

func imageSource(img *etree.Element) string {
	for _, name := range imageSourceAttrs {
		if v := strings.TrimSpace(img.SelectAttrValue(name, "")); v != "" {
			return v
		}
	}
	return ""
}

// NewXHTMLDocument converts parsed html tree into XML document. Comments,
// doctype and attributes which are not valid XML names are dropped. Root is
// always html element.
func NewXHTMLDocument(n *html.Node) *etree.Document {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	doc.CreateDirective(xhtmlDoctype)

	var root *etree.Element
	if n != nil {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && c.Data == "html" {
				root = doc.CreateElement("html")
				copyAttrs(root, c)
				convertChildren(root, c)
				break
			}
		}
	}
	if root == nil {
		root = doc.CreateElement("html")
		if n != nil {
			convertChildren(EnsureBody(root), n)
		}
	}
	return doc
}

func convertChildren(parent *etree.Element, n *html.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.ElementNode:
			el := parent.CreateElement(elementName(c.Data))
			if c.Namespace != n.Namespace {
				switch c.Namespace {
				case "svg":
					el.CreateAttr("xmlns", svgNamespace)
					el.CreateAttr("xmlns:xlink", xlinkNamespace)
				case "math":
					el.CreateAttr("xmlns", mathNamespace)
				}
			}
			copyAttrs(el, c)
			convertChildren(el, c)
		case html.TextNode:
			parent.CreateText(xmlText(c.Data))
		}
	}
}

func copyAttrs(el *etree.Element, n *html.Node) {
	for _, a := range n.Attr {
		key := a.Key
		switch a.Namespace {
		case "":
			if prefix, _, found := strings.Cut(key, ":"); found && prefix != "xml" {
				continue
			}
		case "xlink", "xml":
			key = a.Namespace + ":" + key
		default:
			continue
		}
		if key == "xmlns" || !isXMLName(key) {
			continue
		}
		el.CreateAttr(key, xmlText(a.Val))
	}
}

func elementName(tag string) string {
	if strings.Contains(tag, ":") || !isXMLName(tag) {
		return "span"
	}
	return tag
}

func isXMLName(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case unicode.IsLetter(r) || r == '_':
		case i > 0 && (unicode.IsDigit(r) || r == '-' || r == '.' || r == ':'):
		default:
			return false
		}
	}
	return true
}

// xmlText removes characters which are not allowed in XML 1.0 documents.
func xmlText(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == 0x9 || r == 0xA || r == 0xD,
			0x20 <= r && r <= 0xD7FF,
			0xE000 <= r && r <= 0xFFFD,
			0x10000 <= r && r <= 0x10FFFF:
			return r
		}
		return -1
	}, s)
}

// SetNamespace declares XHTML namespace on root element.
func SetNamespace(root *etree.Element) {
	root.CreateAttr("xmlns", xhtmlNamespace)
}

// EnsureHead returns head element of the document creating it as the first
// child of root when absent.
func EnsureHead(root *etree.Element) *etree.Element {
	if head := root.SelectElement("head"); head != nil {
		return head
	}
	head := etree.NewElement("head")
	root.InsertChildAt(0, head)
	return head
}

// EnsureBody returns body element of the document creating it as the last
// child of root when absent.
func EnsureBody(root *etree.Element) *etree.Element {
	if body := root.SelectElement("body"); body != nil {
		return body
	}
	return root.CreateElement("body")
}

// InsertHeadItems puts stylesheet link and title as the first two children of
// head. Titles, remote stylesheets and base elements already present are
// removed so the document has exactly one of each.
func InsertHeadItems(head *etree.Element, title string) {
	for _, el := range head.ChildElements() {
		switch el.Tag {
		case "title", "base":
			head.RemoveChild(el)
		case "link":
			if strings.Contains(strings.ToLower(el.SelectAttrValue("rel", "")), "stylesheet") {
				head.RemoveChild(el)
			}
		}
	}

	link := etree.NewElement("link")
	link.CreateAttr("type", "text/css")
	link.CreateAttr("rel", "stylesheet")
	link.CreateAttr("href", stylesheetName)
	head.InsertChildAt(0, link)

	t := etree.NewElement("title")
	t.SetText(xmlText(title))
	head.InsertChildAt(1, t)
}

// InsertHeading makes level-1 title heading the first child of body.
func InsertHeading(body *etree.Element, title string) {
	h1 := etree.NewElement("h1")
	h1.CreateAttr("class", "title")
	h1.SetText(xmlText(title))
	body.InsertChildAt(0, h1)
}
