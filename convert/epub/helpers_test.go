package epub

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"testing"
	"time"

	"github.com/beevik/etree"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

func setupTestLogger(t *testing.T) *zap.Logger {
	return zaptest.NewLogger(t, zaptest.WrapOptions(zap.AddCaller()))
}

var testStamp = time.Date(2024, time.March, 5, 10, 20, 30, 0, time.UTC)

func fixedClock() time.Time { return testStamp }

// stubFetcher serves canned responses, unknown urls fail.
type stubFetcher struct {
	data  map[string][]byte
	calls []string
}

func (f *stubFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	f.calls = append(f.calls, url)
	if d, ok := f.data[url]; ok {
		return d, nil
	}
	return nil, fmt.Errorf("GET %s: 404 Not Found", url)
}

type extractorFunc func(html string) (string, string, error)

func (f extractorFunc) Extract(html string) (string, string, error) { return f(html) }

type stubReport struct {
	names []string
}

func (r *stubReport) StoreData(name string, _ []byte) { r.names = append(r.names, name) }

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func readZipEntries(t *testing.T, name string) ([]*zip.File, map[string][]byte) {
	t.Helper()

	r, err := zip.OpenReader(name)
	if err != nil {
		t.Fatalf("open zip: %v", err)
	}
	t.Cleanup(func() { r.Close() })

	content := make(map[string][]byte, len(r.File))
	for _, f := range r.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("open %s: %v", f.Name, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatalf("read %s: %v", f.Name, err)
		}
		content[f.Name] = data
	}
	return r.File, content
}

func parseXML(t *testing.T, data []byte) *etree.Document {
	t.Helper()

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		t.Fatalf("parse xml: %v\n%s", err, data)
	}
	return doc
}

func attrValues(elements []*etree.Element, attr string) []string {
	values := make([]string, 0, len(elements))
	for _, el := range elements {
		values = append(values, el.SelectAttrValue(attr, ""))
	}
	return values
}
