package epubslice

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the epubslice package.
var (
	// ErrDRMProtected indicates the ePub file is protected by DRM
	// (e.g., Adobe ADEPT, Apple FairPlay, Readium LCP) and cannot be read.
	ErrDRMProtected = errors.New("epubslice: file is DRM protected")

	// ErrInvalidEPub indicates the file is not a valid ePub
	// (e.g., missing container.xml and no .opf file found).
	ErrInvalidEPub = errors.New("epubslice: invalid ePub file")

	// ErrFileNotFound indicates the requested file does not exist
	// in the ePub archive.
	ErrFileNotFound = errors.New("epubslice: file not found in archive")

	// ErrResourceNotFound indicates a chapter boundary names a document
	// that is not part of the resource list.
	ErrResourceNotFound = errors.New("epubslice: resource not in spine")

	// ErrBoundaryNotFound indicates a named range boundary matched no
	// table of contents entry. The concrete error is a *BoundaryNotFoundError.
	ErrBoundaryNotFound = errors.New("epubslice: boundary not found")
)

// BoundaryNotFoundError reports the chapter title that could not be located.
type BoundaryNotFoundError struct {
	Name string
}

func (e *BoundaryNotFoundError) Error() string {
	return fmt.Sprintf("epubslice: boundary not found: no chapter titled %q", e.Name)
}

// Unwrap lets errors.Is match ErrBoundaryNotFound.
func (e *BoundaryNotFoundError) Unwrap() error {
	return ErrBoundaryNotFound
}
