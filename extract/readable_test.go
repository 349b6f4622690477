package extract

import (
	"errors"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

func setupTestLogger(t *testing.T) *zap.Logger {
	return zaptest.NewLogger(t, zaptest.WrapOptions(zap.AddCaller()))
}

func TestExtract_Title(t *testing.T) {
	tests := []struct {
		name string
		page string
		want string
	}{
		{"og title", `<html><head><meta property="og:title" content=" Real  title "><title>Other | Site</title></head><body><p>x</p></body></html>`, "Real title"},
		{"title with site name", `<html><head><title>Post title | My Blog</title></head><body><p>x</p></body></html>`, "Post title"},
		{"last separator", `<html><head><title>Go - the good parts :: Blog</title></head><body><p>x</p></body></html>`, "Go - the good parts"},
		{"plain title", `<html><head><title>Just a title</title></head><body><p>x</p></body></html>`, "Just a title"},
		{"heading", `<html><body><h1>Heading <em>one</em></h1><p>x</p></body></html>`, "Heading one"},
		{"nothing", `<p>x</p>`, ""},
	}
	r := New(setupTestLogger(t))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			title, _, err := r.Extract(tt.page)
			if err != nil {
				t.Fatalf("Extract() error = %v", err)
			}
			if title != tt.want {
				t.Errorf("title = %q, want %q", title, tt.want)
			}
		})
	}
}

func TestExtract_Body(t *testing.T) {
	tests := []struct {
		name    string
		page    string
		want    []string
		notWant []string
	}{
		{
			name:    "article",
			page:    `<body><nav><a href="/">Home</a></nav><article><p>Story text</p><img src="a.png"></article><footer><p>Copyright</p></footer></body>`,
			want:    []string{"Story text", `<img src="a.png"/>`},
			notWant: []string{"Home", "Copyright"},
		},
		{
			name:    "longest article",
			page:    `<body><article><p>teaser</p></article><article><p>the whole long story goes here</p></article></body>`,
			want:    []string{"the whole long story"},
			notWant: []string{"teaser"},
		},
		{
			name:    "main",
			page:    `<body><div>sidebar</div><main><p>Main text</p><script>track()</script></main></body>`,
			want:    []string{"Main text"},
			notWant: []string{"sidebar", "track()"},
		},
		{
			name:    "role main",
			page:    `<body><div role="main"><p>Role text</p></div><div>junk</div></body>`,
			want:    []string{"Role text"},
			notWant: []string{"junk"},
		},
		{
			name:    "paragraph density",
			page:    `<body><div class="menu"><p>a</p></div><div class="post"><p>first paragraph</p><p>second paragraph</p></div></body>`,
			want:    []string{`<div class="post">`, "first paragraph", "second paragraph"},
			notWant: []string{`class="menu"`},
		},
		{
			name: "body",
			page: `<body>Only loose text</body>`,
			want: []string{"Only loose text"},
		},
		{
			name: "empty article falls through",
			page: `<body><article> </article><div><p>real content</p></div></body>`,
			want: []string{"real content"},
		},
	}
	r := New(setupTestLogger(t))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, body, err := r.Extract(tt.page)
			if err != nil {
				t.Fatalf("Extract() error = %v", err)
			}
			if !strings.HasPrefix(body, "<html><body>") || !strings.HasSuffix(body, "</body></html>") {
				t.Errorf("body is not wrapped: %s", body)
			}
			for _, s := range tt.want {
				if !strings.Contains(body, s) {
					t.Errorf("body does not contain %q: %s", s, body)
				}
			}
			for _, s := range tt.notWant {
				if strings.Contains(body, s) {
					t.Errorf("body contains %q: %s", s, body)
				}
			}
			if _, err := goquery.NewDocumentFromReader(strings.NewReader(body)); err != nil {
				t.Errorf("body does not parse: %v", err)
			}
		})
	}
}

func TestExtract_NoContent(t *testing.T) {
	r := New(setupTestLogger(t))
	for _, page := range []string{"", "<html><head><title>T</title></head><body>  </body></html>", "<body><script>x()</script></body>"} {
		if _, _, err := r.Extract(page); !errors.Is(err, ErrNoContent) {
			t.Errorf("Extract(%q) error = %v, want ErrNoContent", page, err)
		}
	}
}

func TestShortTitle(t *testing.T) {
	tests := []struct{ in, want string }{
		{"A | B", "A"},
		{"A - B - C", "A - B"},
		{" | B", " | B"},
		{"no separator", "no separator"},
	}
	for _, tt := range tests {
		if got := shortTitle(tt.in); got != tt.want {
			t.Errorf("shortTitle(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
