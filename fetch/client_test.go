package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"web2epub/config"
)

func setupTestLogger(t *testing.T) *zap.Logger {
	return zaptest.NewLogger(t, zaptest.WrapOptions(zap.AddCaller()))
}

func testConfig() *config.FetchConfig {
	return &config.FetchConfig{
		Timeout:   5 * time.Second,
		UserAgent: "web2epub-test",
		MaxSize:   1024,
	}
}

func TestFetch(t *testing.T) {
	// "Привет" in windows-1251
	cp1251 := []byte{0xcf, 0xf0, 0xe8, 0xe2, 0xe5, 0xf2}

	mux := http.NewServeMux()
	mux.HandleFunc("/page", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte("<p>hello</p>"))
	})
	mux.HandleFunc("/legacy", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=windows-1251")
		w.Write(append(append([]byte("<p>"), cp1251...), "</p>"...))
	})
	mux.HandleFunc("/meta", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write(append([]byte(`<html><head><meta charset="windows-1251"></head><body>`), cp1251...))
	})
	mux.HandleFunc("/image.bin", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/gif")
		w.Write(cp1251)
	})
	mux.HandleFunc("/headers", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(r.UserAgent() + "|" + r.Header.Get("Cookie")))
	})
	mux.HandleFunc("/big", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("x", 2048)))
	})
	mux.HandleFunc("/redirect", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/page", http.StatusFound)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := testConfig()
	cfg.Cookie = "session=42"
	c := New(cfg, setupTestLogger(t))

	tests := []struct {
		name string
		path string
		want string
		err  error
	}{
		{"html", "/page", "<p>hello</p>", nil},
		{"charset header", "/legacy", "<p>Привет</p>", nil},
		{"charset meta", "/meta", `<html><head><meta charset="windows-1251"></head><body>Привет`, nil},
		{"binary untouched", "/image.bin", string(cp1251), nil},
		{"headers", "/headers", "web2epub-test|session=42", nil},
		{"redirect", "/redirect", "<p>hello</p>", nil},
		{"not found", "/missing", "", ErrStatus},
		{"too large", "/big", "", ErrTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.Fetch(context.Background(), srv.URL+tt.path)
			if tt.err != nil {
				if !errors.Is(err, tt.err) {
					t.Errorf("Fetch() error = %v, want %v", err, tt.err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Fetch() error = %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("Fetch() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFetch_Retry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	t.Run("no retries by default", func(t *testing.T) {
		calls.Store(0)
		c := New(testConfig(), setupTestLogger(t))
		if _, err := c.Fetch(context.Background(), srv.URL); !errors.Is(err, ErrStatus) {
			t.Errorf("Fetch() error = %v, want ErrStatus", err)
		}
		if calls.Load() != 1 {
			t.Errorf("server called %d times, want 1", calls.Load())
		}
	})

	t.Run("retries", func(t *testing.T) {
		calls.Store(0)
		cfg := testConfig()
		cfg.RetryCount = 3
		cfg.RetryWait = 10 * time.Millisecond
		c := New(cfg, setupTestLogger(t))
		got, err := c.Fetch(context.Background(), srv.URL)
		if err != nil {
			t.Fatalf("Fetch() error = %v", err)
		}
		if string(got) != "ok" || calls.Load() != 3 {
			t.Errorf("Fetch() = %q after %d calls", got, calls.Load())
		}
	})
}

func TestFetch_Canceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("late"))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := New(testConfig(), setupTestLogger(t))
	if _, err := c.Fetch(ctx, srv.URL); err == nil {
		t.Error("Fetch() expected error for canceled context")
	}
}

func TestIsHTML(t *testing.T) {
	for ct, want := range map[string]bool{
		"text/html":                 true,
		"Text/HTML; charset=koi8-r": true,
		"application/xhtml+xml":     true,
		"image/png":                 false,
		"":                          false,
		"text/plain; charset=utf-8": false,
	} {
		if got := isHTML(ct); got != want {
			t.Errorf("isHTML(%q) = %v, want %v", ct, got, want)
		}
	}
}
