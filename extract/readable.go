// Package extract finds readable part of a web page.
package extract

import (
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"
)

// ErrNoContent is returned for pages without anything worth reading.
var ErrNoContent = errors.New("extract: page has no readable content")

// never part of readable content
const noiseSelector = "script, style, noscript, template, nav, aside, form, button"

// candidates for main content container, in order of preference
var containerSelectors = []string{"article", "main", "[role=main]"}

// site name usually follows the last of these in page title
var titleSeparators = []string{" | ", " - ", " :: "}

// Readable implements heuristic content extraction: it looks for semantic
// containers first and falls back to the element holding most paragraph
// text.
type Readable struct {
	log *zap.Logger
}

func New(log *zap.Logger) *Readable {
	return &Readable{log: log.Named("extract")}
}

// Extract returns page title and readable part of the page wrapped into
// html/body.
func (r *Readable) Extract(page string) (string, string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return "", "", fmt.Errorf("unable to parse page: %w", err)
	}

	title := pageTitle(doc)
	doc.Find(noiseSelector).Remove()

	content, how := mainContent(doc)
	if content == nil {
		return "", "", ErrNoContent
	}
	r.log.Debug("Content found", zap.String("title", title), zap.String("by", how), zap.Int("text", textLen(content)))

	var b strings.Builder
	b.WriteString("<html><body>")
	for _, n := range content.Nodes {
		if err := html.Render(&b, n); err != nil {
			return "", "", fmt.Errorf("unable to render content: %w", err)
		}
	}
	b.WriteString("</body></html>")
	return title, b.String(), nil
}

func pageTitle(doc *goquery.Document) string {
	if og, ok := doc.Find(`meta[property="og:title"]`).First().Attr("content"); ok {
		if t := normalize(og); t != "" {
			return t
		}
	}
	if t := shortTitle(normalize(doc.Find("head title").First().Text())); t != "" {
		return t
	}
	return normalize(doc.Find("h1").First().Text())
}

// shortTitle removes site name which follows the last separator.
func shortTitle(t string) string {
	cut := -1
	for _, sep := range titleSeparators {
		if i := strings.LastIndex(t, sep); i > cut {
			cut = i
		}
	}
	if cut <= 0 {
		return t
	}
	return strings.TrimSpace(t[:cut])
}

func mainContent(doc *goquery.Document) (*goquery.Selection, string) {
	for _, sel := range containerSelectors {
		var best *goquery.Selection
		doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
			if best == nil || textLen(s) > textLen(best) {
				best = s
			}
		})
		if best != nil && hasContent(best) {
			return best, sel
		}
	}

	// score parents by amount of paragraph text they hold
	scores := make(map[*html.Node]int)
	var best *html.Node
	doc.Find("p").Each(func(_ int, p *goquery.Selection) {
		parent := p.Parent()
		if parent.Length() == 0 {
			return
		}
		n := parent.Get(0)
		scores[n] += textLen(p)
		if best == nil || scores[n] > scores[best] {
			best = n
		}
	})
	if best != nil && scores[best] > 0 {
		return goquery.NewDocumentFromNode(best).Selection, "paragraphs"
	}

	body := doc.Find("body").First()
	if body.Length() > 0 && hasContent(body) {
		return body.Contents(), "body"
	}
	return nil, ""
}

func hasContent(s *goquery.Selection) bool {
	return textLen(s) > 0 || s.Find("img").Length() > 0
}

func textLen(s *goquery.Selection) int {
	return len(strings.TrimSpace(s.Text()))
}

func normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
