package epub

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	fixzip "github.com/hidez8891/zip"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const (
	mimetypeName    = "mimetype"
	mimetypeContent = "application/epub+zip"
)

// Package is the output container. Entries are written to a temporary file
// next to the destination which is renamed into place on Close, so nothing
// appears at destination path unless package was completed.
type Package struct {
	path    string
	tmpName string
	stamp   time.Time
	fixZip  bool

	f     *os.File
	zw    *zip.Writer
	names map[string]struct{}
	order []string

	log *zap.Logger
}

// OpenPackage creates temporary container for path and writes mimetype entry
// into it. Every entry gets stamp as its modification time. When fixZip is set
// data descriptors are removed from the archive on Close, some readers do not
// accept stored mimetype with descriptor.
func OpenPackage(path string, stamp time.Time, fixZip bool, log *zap.Logger) (*Package, error) {
	dir, base := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	f, err := os.CreateTemp(dir, "."+base+".*.tmp")
	if err != nil {
		return nil, fmt.Errorf("unable to create output file: %w", err)
	}
	// temporary files are private, result is not
	if err := f.Chmod(0644); err != nil {
		log.Debug("Unable to change output file mode", zap.String("file", f.Name()), zap.Error(err))
	}

	p := &Package{
		path:    path,
		tmpName: f.Name(),
		stamp:   stamp,
		fixZip:  fixZip,
		f:       f,
		zw:      zip.NewWriter(f),
		names:   make(map[string]struct{}),
		log:     log,
	}
	if err := p.writeMimetype(); err != nil {
		return nil, multierr.Append(fmt.Errorf("unable to write mimetype: %w", err), p.Abort())
	}
	return p, nil
}

func (p *Package) writeMimetype() error {
	w, err := p.create(mimetypeName, zip.Store)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, mimetypeContent)
	return err
}

func (p *Package) create(name string, method uint16) (io.Writer, error) {
	if p.zw == nil {
		return nil, ErrPackageClosed
	}
	if _, exists := p.names[name]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateEntry, name)
	}
	w, err := p.zw.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   method,
		Modified: p.stamp,
	})
	if err != nil {
		return nil, err
	}
	p.names[name] = struct{}{}
	p.order = append(p.order, name)
	return w, nil
}

// Write adds entry to the package. Entry is deflated unless compressed is
// false. Names must be unique.
func (p *Package) Write(name string, data []byte, compressed bool) error {
	method := zip.Deflate
	if !compressed {
		method = zip.Store
	}
	w, err := p.create(name, method)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("unable to write %s: %w", name, err)
	}
	p.log.Debug("Wrote entry", zap.String("name", name), zap.Int("size", len(data)), zap.Bool("compressed", compressed))
	return nil
}

// Has reports whether entry with name was already written.
func (p *Package) Has(name string) bool {
	_, ok := p.names[name]
	return ok
}

// Entries returns names of written entries in order.
func (p *Package) Entries() []string {
	return append([]string(nil), p.order...)
}

// Close finalizes archive and moves it to destination path.
func (p *Package) Close() error {
	if p.zw == nil {
		return ErrPackageClosed
	}
	zw := p.zw
	p.zw = nil

	if err := zw.Close(); err != nil {
		return multierr.Append(fmt.Errorf("unable to close output archive: %w", err), p.cleanup())
	}
	if err := p.f.Close(); err != nil {
		return multierr.Append(fmt.Errorf("unable to finalize output file: %w", err), p.cleanup())
	}

	if p.fixZip {
		fixed := p.tmpName + ".fix"
		if err := copyZipWithoutDataDescriptors(p.tmpName, fixed); err != nil {
			return multierr.Combine(err, os.Remove(fixed), p.cleanup())
		}
		if err := os.Remove(p.tmpName); err != nil {
			return multierr.Append(err, os.Remove(fixed))
		}
		p.tmpName = fixed
	}

	if err := os.Rename(p.tmpName, p.path); err != nil {
		return multierr.Append(fmt.Errorf("unable to move output file into place: %w", err), p.cleanup())
	}
	p.log.Debug("Package closed", zap.String("file", p.path), zap.Int("entries", len(p.order)))
	return nil
}

// Abort discards everything written so far. Calling it after Close is a noop.
func (p *Package) Abort() error {
	if p.zw == nil {
		return nil
	}
	p.zw = nil
	return multierr.Append(p.f.Close(), p.cleanup())
}

func (p *Package) cleanup() error {
	if err := os.Remove(p.tmpName); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func copyZipWithoutDataDescriptors(from, to string) error {
	out, err := os.Create(to)
	if err != nil {
		return fmt.Errorf("unable to create target file (%s): %w", to, err)
	}
	defer out.Close()

	r, err := fixzip.OpenReader(from)
	if err != nil {
		return fmt.Errorf("unable to read archive file (%s): %w", from, err)
	}
	defer r.Close()

	w := fixzip.NewWriter(out)
	for _, file := range r.File {
		file.Flags &= ^fixzip.FlagDataDescriptor
		if err := w.CopyFile(file); err != nil {
			return fmt.Errorf("unable to write target file (%s): %w", to, err)
		}
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("unable to finalize target file (%s): %w", to, err)
	}
	return out.Close()
}
