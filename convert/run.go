package convert

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"web2epub/convert/epub"
	"web2epub/css"
	"web2epub/extract"
	"web2epub/fetch"
	"web2epub/state"
)

// Flags returns command line flags of the build command.
func Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "title", Aliases: []string{"t"}, Required: true, Usage: "book `TITLE`"},
		&cli.StringFlag{Name: "author", Aliases: []string{"a"}, Usage: "book `AUTHOR`"},
		&cli.StringFlag{Name: "cover", Aliases: []string{"c"}, Usage: "path to cover image `FILE`"},
		&cli.StringFlag{Name: "outfile", Aliases: []string{"o"}, Usage: "output `FILE`, when absent name is produced from configured template in current directory"},
		&cli.BoolFlag{Name: "overwrite", Aliases: []string{"ow"}, Usage: "continue even if destination exits, overwrite file"},
	}
}

func Run(ctx context.Context, cmd *cli.Command) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	env := state.EnvFromContext(ctx)
	log := env.Log.Named("convert")

	title := cmd.String("title")
	if title == "" {
		return errors.New("book title has not been specified")
	}
	urls := cmd.Args().Slice()
	for _, u := range urls {
		if err := checkURL(u); err != nil {
			return err
		}
	}

	if env.Cfg.Book.StylesheetPath != "" {
		data, err := os.ReadFile(env.Cfg.Book.StylesheetPath)
		if err != nil {
			return fmt.Errorf("unable to read style css from %q: %w", env.Cfg.Book.StylesheetPath, err)
		}
		sum, err := css.Inspect(data, env.Cfg.Book.StylesheetPath, log)
		if err != nil {
			return err
		}
		if sum.External() {
			log.Warn("Stylesheet refers to external resources which will not be packed into the book",
				zap.Strings("imports", sum.Imports), zap.Strings("urls", sum.URLs))
		}
		env.Stylesheet = data
	}
	env.Overwrite = cmd.Bool("overwrite")

	// single time stamp for the whole book
	stamp := env.Clock()

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("unable to get working directory: %w", err)
	}
	values := Values{
		Title:  title,
		Author: cmd.String("author"),
		Date:   stamp.Format("2006-01-02"),
		Count:  len(urls),
		Hosts:  buildHosts(urls),
	}
	out, err := filepath.Abs(buildOutputPath(cmd.String("outfile"), cwd, values, env))
	if err != nil {
		return err
	}

	cover := cmd.String("cover")
	if cover != "" {
		if cover, err = filepath.Abs(cover); err != nil {
			return err
		}
	}

	req := epub.BuildRequest{
		Title:       title,
		Author:      values.Author,
		CoverPath:   cover,
		OutputPath:  out,
		URLs:        urls,
		Rights:      env.Cfg.Book.Rights,
		Publisher:   env.Cfg.Book.Publisher,
		Identifier:  env.Cfg.Book.Identifier,
		Subject:     env.Cfg.Book.Subject,
		Description: env.Cfg.Book.Description,
		Language:    env.Cfg.Book.Language,
	}

	log.Info("Processing starting", zap.String("title", title), zap.Int("urls", len(urls)), zap.String("destination", out))
	defer func(start time.Time) {
		if err == nil {
			log.Info("Processing completed", zap.Duration("elapsed", time.Since(start)))
		}
	}(time.Now())

	return build(ctx, req, stamp, env, log)
}

func checkURL(s string) error {
	u, err := url.Parse(s)
	if err != nil {
		return fmt.Errorf("malformed url %q: %w", s, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("unsupported url %q, only absolute http(s) urls could be processed", s)
	}
	return nil
}

// build handles the core of the command independently of CLI framework.
func build(ctx context.Context, req epub.BuildRequest, stamp time.Time, env *state.LocalEnv, log *zap.Logger) error {
	// Check if output file already exists
	if _, err := os.Stat(req.OutputPath); err == nil {
		if !env.Overwrite {
			return fmt.Errorf("output file already exists: %s", req.OutputPath)
		}
		log.Warn("Overwriting existing file", zap.String("file", req.OutputPath))
	} else if !os.IsNotExist(err) {
		return err
	} else if err := os.MkdirAll(filepath.Dir(req.OutputPath), 0755); err != nil {
		return fmt.Errorf("unable to create output directory: %w", err)
	}

	doc := &env.Cfg.Document
	opts := []epub.Option{
		epub.WithFetcher(fetch.New(&env.Cfg.Fetch, log)),
		epub.WithExtractor(extract.New(log)),
		epub.WithClock(func() time.Time { return stamp }),
		epub.WithLogger(log),
		epub.WithFixZip(doc.FixZip),
		epub.WithStrip(doc.StripElements),
		epub.WithCoverLimits(doc.Cover.MaxWidth, doc.Cover.MaxHeight),
	}
	if env.Stylesheet != nil {
		opts = append(opts, epub.WithStylesheet(env.Stylesheet))
	}
	if env.Rpt != nil {
		opts = append(opts, epub.WithReport(env.Rpt))
	}

	if err := epub.Build(ctx, req, opts...); err != nil {
		return err
	}

	if doc.Verify {
		sum, err := epub.Verify(req.OutputPath)
		if err != nil {
			return fmt.Errorf("produced book is broken: %w", err)
		}
		log.Info("Book verified", zap.Int("entries", sum.Entries), zap.Int("manifest", sum.Manifest), zap.Int("spine", sum.Spine))
	}

	// Store result for debugging
	if env.Rpt != nil {
		env.Rpt.Store("result"+outputExt, req.OutputPath)
	}
	return nil
}
