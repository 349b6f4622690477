// Package fetch downloads pages and images over http(s).
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/net/html/charset"

	"web2epub/config"
)

var (
	// ErrStatus is returned for responses outside of 2xx range.
	ErrStatus = errors.New("fetch: unexpected response status")
	// ErrTooLarge is returned when response body exceeds configured limit.
	ErrTooLarge = errors.New("fetch: response is too large")
)

// Client retrieves resources with configured timeout, user agent and retry
// policy. HTML responses are converted to UTF-8.
type Client struct {
	rc      *resty.Client
	maxSize int64
	log     *zap.Logger
}

func New(cfg *config.FetchConfig, log *zap.Logger) *Client {
	log = log.Named("fetch")

	rc := resty.New().
		SetLogger(log.Sugar()).
		SetTimeout(cfg.Timeout).
		SetHeader("User-Agent", cfg.UserAgent).
		SetRetryCount(cfg.RetryCount).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return !errors.Is(err, context.Canceled)
			}
			return r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= http.StatusInternalServerError
		}).
		AddRetryHook(func(r *resty.Response, err error) {
			// bodies are read by us, drop the ones of failed attempts
			if r != nil && r.RawBody() != nil {
				r.RawBody().Close()
			}
			log.Debug("Retrying request", zap.Error(err))
		})
	if cfg.RetryWait > 0 {
		rc.SetRetryWaitTime(cfg.RetryWait).SetRetryMaxWaitTime(4 * cfg.RetryWait)
	}
	if cookie := cfg.Cookie.Reveal(); cookie != "" {
		rc.SetHeader("Cookie", cookie)
	}

	return &Client{rc: rc, maxSize: cfg.MaxSize, log: log}
}

// Fetch returns body of the resource at url.
func (c *Client) Fetch(ctx context.Context, url string) ([]byte, error) {
	resp, err := c.rc.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(url)
	if err != nil {
		return nil, fmt.Errorf("unable to get %s: %w", url, err)
	}
	body := resp.RawBody()
	defer body.Close()

	if resp.StatusCode() < 200 || resp.StatusCode() > 299 {
		return nil, fmt.Errorf("%w: %s returned %s", ErrStatus, url, resp.Status())
	}

	data, err := io.ReadAll(io.LimitReader(body, c.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", url, err)
	}
	if int64(len(data)) > c.maxSize {
		return nil, fmt.Errorf("%w: %s is over %d bytes", ErrTooLarge, url, c.maxSize)
	}

	ct := resp.Header().Get("Content-Type")
	if isHTML(ct) {
		data = toUTF8(data, ct, c.log)
	}
	c.log.Debug("Fetched", zap.String("url", url), zap.String("type", ct), zap.Int("size", len(data)), zap.Duration("took", resp.Time()))
	return data, nil
}

func isHTML(contentType string) bool {
	mt, _, _ := strings.Cut(strings.ToLower(contentType), ";")
	switch strings.TrimSpace(mt) {
	case "text/html", "application/xhtml+xml":
		return true
	}
	return false
}

// toUTF8 decodes page using encoding from byte order mark, content type
// header or meta element, in that order.
func toUTF8(data []byte, contentType string, log *zap.Logger) []byte {
	enc, name, _ := charset.DetermineEncoding(data, contentType)
	if name == "utf-8" {
		return data
	}
	out, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		log.Warn("Unable to decode page, using as is", zap.String("charset", name), zap.Error(err))
		return data
	}
	return out
}
