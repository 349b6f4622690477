package epub

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/text/language"
)

// Extractor returns readable title and body of the page.
type Extractor interface {
	Extract(html string) (title, body string, err error)
}

// Reporter keeps build artifacts for debugging, config.Report satisfies it.
type Reporter interface {
	StoreData(name string, data []byte)
}

// BuildRequest is everything needed to assemble a book.
type BuildRequest struct {
	Title      string
	Author     string
	CoverPath  string
	OutputPath string
	URLs       []string

	Rights      string
	Publisher   string
	Identifier  string
	Subject     string
	Description string
	Language    string
}

// State is a build stage.
type State int

const (
	StateInit State = iota
	StateWritingStaticEntries
	StateProcessingArticles
	StateRenderingIndex
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "Init"
	case StateWritingStaticEntries:
		return "WritingStaticEntries"
	case StateProcessingArticles:
		return "ProcessingArticles"
	case StateRenderingIndex:
		return "RenderingIndex"
	case StateClosed:
		return "Closed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Option configures Builder.
type Option func(*Builder)

func WithFetcher(f Fetcher) Option { return func(b *Builder) { b.fetcher = f } }

func WithExtractor(e Extractor) Option { return func(b *Builder) { b.extractor = e } }

// WithClock sets source of build time, which becomes book date and timestamp
// of every container entry.
func WithClock(clock func() time.Time) Option { return func(b *Builder) { b.clock = clock } }

func WithLogger(log *zap.Logger) Option { return func(b *Builder) { b.log = log } }

// WithStylesheet replaces built-in stylesheet.
func WithStylesheet(css []byte) Option { return func(b *Builder) { b.stylesheet = css } }

func WithFixZip(fix bool) Option { return func(b *Builder) { b.fixZip = fix } }

// WithStrip sets names of elements removed from article bodies.
func WithStrip(elements []string) Option { return func(b *Builder) { b.strip = elements } }

func WithCoverLimits(maxWidth, maxHeight int) Option {
	return func(b *Builder) { b.coverWidth, b.coverHeight = maxWidth, maxHeight }
}

// WithReport makes builder keep downloaded pages in debug report.
func WithReport(r Reporter) Option { return func(b *Builder) { b.report = r } }

// Builder drives a single build. It is not reusable.
type Builder struct {
	req BuildRequest

	fetcher     Fetcher
	extractor   Extractor
	clock       func() time.Time
	log         *zap.Logger
	stylesheet  []byte
	fixZip      bool
	strip       []string
	coverWidth  int
	coverHeight int
	report      Reporter

	state       State
	cover       *Cover
	meta        BookMetadata
	pkg         *Package
	index       *Index
	transformer *Transformer
}

func NewBuilder(req BuildRequest, opts ...Option) *Builder {
	b := &Builder{
		req:        req,
		clock:      time.Now,
		log:        zap.NewNop(),
		stylesheet: defaultStylesheet,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.log = b.log.Named("build")
	return b
}

// State returns current build stage.
func (b *Builder) State() State {
	return b.state
}

func (b *Builder) advance(from, to State) error {
	if b.state != from {
		return fmt.Errorf("%w: %s, expected %s", ErrInvalidState, b.state, from)
	}
	b.state = to
	return nil
}

// Run assembles the book. Nothing is left at output path unless Run
// succeeds.
func (b *Builder) Run(ctx context.Context) (err error) {
	defer func() {
		if err != nil && b.pkg != nil {
			err = multierr.Append(err, b.pkg.Abort())
		}
	}()

	if err := b.init(); err != nil {
		return err
	}
	if err := b.writeStaticEntries(); err != nil {
		return err
	}
	if err := b.processArticles(ctx); err != nil {
		return err
	}
	if err := b.renderIndex(); err != nil {
		return err
	}
	return b.close()
}

// Build is a shortcut to create builder and run it.
func Build(ctx context.Context, req BuildRequest, opts ...Option) error {
	return NewBuilder(req, opts...).Run(ctx)
}

func (b *Builder) init() error {
	if b.state != StateInit {
		return fmt.Errorf("%w: %s, expected %s", ErrInvalidState, b.state, StateInit)
	}
	if b.fetcher == nil || b.extractor == nil {
		return errors.New("builder requires fetcher and extractor")
	}
	if b.req.OutputPath == "" {
		return errors.New("output path is not specified")
	}
	if len(b.req.URLs) == 0 {
		b.log.Warn("No urls to process, book will only have cover")
	}

	cover, err := LoadCover(b.req.CoverPath, b.coverWidth, b.coverHeight, b.log)
	if err != nil {
		return &FatalBuildError{Source: b.req.CoverPath, Err: err}
	}
	b.cover = cover

	meta, err := b.metadata()
	if err != nil {
		return err
	}
	b.meta = meta

	pkg, err := OpenPackage(b.req.OutputPath, meta.Date, b.fixZip, b.log)
	if err != nil {
		return &FatalBuildError{Source: b.req.OutputPath, Err: err}
	}
	b.pkg = pkg
	b.index = NewIndex(meta)
	b.transformer = NewTransformer(NewResolver(b.fetcher, b.log), b.strip, b.log)

	return b.advance(StateInit, StateWritingStaticEntries)
}

func (b *Builder) metadata() (BookMetadata, error) {
	lang := b.req.Language
	if lang == "" {
		lang = "en"
	}
	tag, err := language.Parse(lang)
	if err != nil {
		return BookMetadata{}, fmt.Errorf("bad book language %q: %w", lang, err)
	}

	id := b.req.Identifier
	if id == "" {
		// same title and urls always give the same identifier
		name := b.req.Title + "\n" + strings.Join(b.req.URLs, "\n")
		id = "urn:uuid:" + uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
	}

	return BookMetadata{
		Title:          b.req.Title,
		Author:         b.req.Author,
		Rights:         b.req.Rights,
		Publisher:      b.req.Publisher,
		Identifier:     id,
		Subject:        b.req.Subject,
		Description:    b.req.Description,
		Language:       tag.String(),
		Date:           b.clock(),
		CoverHref:      b.cover.Href,
		CoverMediaType: b.cover.MediaType,
	}, nil
}

func (b *Builder) writeStaticEntries() error {
	if b.state != StateWritingStaticEntries {
		return fmt.Errorf("%w: %s, expected %s", ErrInvalidState, b.state, StateWritingStaticEntries)
	}

	container, err := serialize(ContainerDocument())
	if err != nil {
		return fmt.Errorf("unable to render container: %w", err)
	}
	if err := b.pkg.Write("META-INF/container.xml", container, true); err != nil {
		return err
	}

	page, err := serialize(CoverPage(b.meta.Title, b.cover))
	if err != nil {
		return fmt.Errorf("unable to render cover page: %w", err)
	}
	if err := b.pkg.Write(entryName(coverPageName), page, true); err != nil {
		return err
	}
	if err := b.pkg.Write(entryName(stylesheetName), b.stylesheet, true); err != nil {
		return err
	}
	if err := b.pkg.Write(entryName(b.cover.Href), b.cover.Data, compressible(b.cover.MediaType)); err != nil {
		return err
	}

	return b.advance(StateWritingStaticEntries, StateProcessingArticles)
}

func (b *Builder) processArticles(ctx context.Context) error {
	if b.state != StateProcessingArticles {
		return fmt.Errorf("%w: %s, expected %s", ErrInvalidState, b.state, StateProcessingArticles)
	}

	for i, u := range b.req.URLs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := b.processArticle(ctx, i+1, u); err != nil {
			return err
		}
	}

	return b.advance(StateProcessingArticles, StateRenderingIndex)
}

func (b *Builder) processArticle(ctx context.Context, index int, u string) error {
	b.log.Info("Reading url", zap.Int("n", index), zap.Int("of", len(b.req.URLs)), zap.String("url", u))

	raw, err := b.fetcher.Fetch(ctx, u)
	if err != nil {
		return &FatalBuildError{Source: u, Err: fmt.Errorf("unable to fetch article: %w", err)}
	}
	if b.report != nil {
		b.report.StoreData(fmt.Sprintf("pages/article_%d.html", index), raw)
	}

	title, body, err := b.extractor.Extract(string(raw))
	if err != nil {
		return &FatalBuildError{Source: u, Err: fmt.Errorf("unable to extract article: %w", err)}
	}
	if title = strings.TrimSpace(title); title == "" {
		b.log.Warn("Article has no title, using url instead", zap.String("url", u))
		title = u
	}

	a, err := b.transformer.Transform(ctx, u, body, title, index)
	if err != nil {
		return &FatalBuildError{Source: u, Err: err}
	}

	if err := b.index.RegisterArticle(a); err != nil {
		return err
	}
	if err := b.pkg.Write(entryName(a.Href()), a.Body, true); err != nil {
		return err
	}
	for _, img := range a.Images {
		if err := b.index.RegisterImage(img); err != nil {
			return err
		}
		if err := b.pkg.Write(entryName(img.Href()), img.Data, compressible(img.MediaType)); err != nil {
			return err
		}
	}

	b.log.Debug("Article done", zap.Int("n", index), zap.String("title", a.Title), zap.Int("images", len(a.Images)))
	return nil
}

func (b *Builder) renderIndex() error {
	if b.state != StateRenderingIndex {
		return fmt.Errorf("%w: %s, expected %s", ErrInvalidState, b.state, StateRenderingIndex)
	}

	opf, err := b.index.PackageDocument()
	if err != nil {
		return fmt.Errorf("unable to render package document: %w", err)
	}
	data, err := serialize(opf)
	if err != nil {
		return fmt.Errorf("unable to render package document: %w", err)
	}
	if err := b.pkg.Write(entryName(packageDocName), data, true); err != nil {
		return err
	}

	ncx, err := b.index.NavigationDocument()
	if err != nil {
		return fmt.Errorf("unable to render navigation document: %w", err)
	}
	if data, err = serialize(ncx); err != nil {
		return fmt.Errorf("unable to render navigation document: %w", err)
	}
	return b.pkg.Write(entryName(navigationDocName), data, true)
}

// close finalizes the container, builder is Closed only when book is in place.
func (b *Builder) close() error {
	if b.state != StateRenderingIndex {
		return fmt.Errorf("%w: %s, expected %s", ErrInvalidState, b.state, StateRenderingIndex)
	}
	if err := b.pkg.Close(); err != nil {
		return &FatalBuildError{Source: b.req.OutputPath, Err: err}
	}
	if err := b.advance(StateRenderingIndex, StateClosed); err != nil {
		return err
	}

	size := int64(-1)
	if fi, err := os.Stat(b.req.OutputPath); err == nil {
		size = fi.Size()
	}
	b.log.Info("Book created",
		zap.String("file", filepath.Base(b.req.OutputPath)),
		zap.Int("articles", len(b.req.URLs)),
		zap.Int64("size", size))
	return nil
}
