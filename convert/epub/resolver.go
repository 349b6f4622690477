package epub

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/h2non/filetype"
	"github.com/h2non/filetype/types"
	"go.uber.org/zap"
)

// Fetcher retrieves raw bytes for absolute url.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Resolver localizes images referenced by articles.
type Resolver struct {
	fetcher Fetcher
	log     *zap.Logger
}

func NewResolver(fetcher Fetcher, log *zap.Logger) *Resolver {
	return &Resolver{fetcher: fetcher, log: log.Named("resolver")}
}

// Resolve computes absolute source url for image reference found in article
// fetched from base, downloads it and names it after article index and image
// ordinal. Returned error is always *AssetError and is not meant to stop the
// build.
func (r *Resolver) Resolve(ctx context.Context, base, ref string, article, ordinal int) (*ImageAsset, error) {
	src, err := ResolveURL(base, ref)
	if err != nil {
		return nil, &AssetError{Ref: ref, Err: err}
	}
	if src.Scheme != "http" && src.Scheme != "https" {
		return nil, &AssetError{Ref: ref, Err: fmt.Errorf("%w: %q", ErrUnsupportedScheme, src.Scheme)}
	}

	r.log.Info("Downloading image", zap.Int("article", article), zap.Int("image", ordinal), zap.Stringer("url", src))

	data, err := r.fetcher.Fetch(ctx, src.String())
	if err != nil {
		return nil, &AssetError{Ref: ref, Err: err}
	}

	ext := imageExt(src.Path)
	return &ImageAsset{
		Article:   article,
		Ordinal:   ordinal,
		Source:    src.String(),
		Filename:  imageFilename(article, ordinal, ext),
		MediaType: MediaType(ext, data),
		Data:      data,
	}, nil
}

// ResolveURL resolves ref against base and removes query and fragment.
func ResolveURL(base, ref string) (*url.URL, error) {
	b, err := url.Parse(strings.TrimSpace(base))
	if err != nil {
		return nil, fmt.Errorf("bad base url: %w", err)
	}
	u, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return nil, fmt.Errorf("bad reference: %w", err)
	}
	abs := b.ResolveReference(u)
	abs.RawQuery = ""
	abs.ForceQuery = false
	abs.Fragment = ""
	abs.RawFragment = ""
	return abs, nil
}

// imageExt returns extension of the last path element. Extensions which
// would not be safe in file name are dropped.
func imageExt(p string) string {
	ext := path.Ext(path.Base(p))
	if len(ext) < 2 || len(ext) > 6 {
		return ""
	}
	for _, c := range ext[1:] {
		if !('a' <= c && c <= 'z' || 'A' <= c && c <= 'Z' || '0' <= c && c <= '9') {
			return ""
		}
	}
	return ext
}

// filetype does not know about vector formats and jpeg aliases.
var extraMediaTypes = map[string]string{
	"svg":  "image/svg+xml",
	"svgz": "image/svg+xml",
	"jpeg": "image/jpeg",
	"jpe":  "image/jpeg",
	"jfif": "image/jpeg",
}

// MediaType infers media type from file extension. When extension is not
// known content is sniffed, application/octet-stream is the last resort.
func MediaType(ext string, data []byte) string {
	e := strings.ToLower(strings.TrimPrefix(ext, "."))
	if mt, ok := extraMediaTypes[e]; ok {
		return mt
	}
	if e != "" {
		if t := filetype.GetType(e); t != types.Unknown {
			return t.MIME.Value
		}
	}
	if len(data) > 0 {
		if t, err := filetype.Match(data); err == nil && t != types.Unknown {
			return t.MIME.Value
		}
	}
	return defaultMedia
}
