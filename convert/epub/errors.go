package epub

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateEntry is returned when container entry name is written twice.
	ErrDuplicateEntry = errors.New("epub: duplicate container entry")
	// ErrPackageClosed is returned when writing to finalized or aborted package.
	ErrPackageClosed = errors.New("epub: package is closed")
	// ErrUnsupportedScheme is returned for asset references which could not be
	// fetched over http(s).
	ErrUnsupportedScheme = errors.New("epub: unsupported url scheme")
	// ErrInvalidState is returned when builder steps are invoked out of order.
	ErrInvalidState = errors.New("epub: invalid builder state")
	// ErrDanglingReference is returned by rendering when spine or navigation
	// refers to an item absent from the manifest.
	ErrDanglingReference = errors.New("epub: reference to unknown manifest item")
)

// FatalBuildError aborts the build. Source names failing url or path.
type FatalBuildError struct {
	Source string
	Err    error
}

func (e *FatalBuildError) Error() string {
	return fmt.Sprintf("unable to build book (%s): %v", e.Source, e.Err)
}

func (e *FatalBuildError) Unwrap() error { return e.Err }

// AssetError describes image which could not be resolved. It is never fatal,
// image element keeps its original source.
type AssetError struct {
	Ref string
	Err error
}

func (e *AssetError) Error() string {
	return fmt.Sprintf("unable to resolve asset %q: %v", e.Ref, e.Err)
}

func (e *AssetError) Unwrap() error { return e.Err }
