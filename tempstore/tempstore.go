// Package tempstore keeps fetched files in a private temporary directory
// until the caller hands them on and calls Cleanup.
package tempstore

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// ErrInvalidName is returned for names that are empty or contain a path.
var ErrInvalidName = errors.New("tempstore: invalid file name")

// Store is a directory of write-once files. It is safe for concurrent use
// as long as the underlying filesystem is.
type Store struct {
	fs  afero.Fs
	dir string
}

// New creates a fresh directory under parent. A nil fs means the OS
// filesystem; an empty parent means the system temp directory.
func New(fs afero.Fs, parent string) (*Store, error) {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if parent != "" {
		if err := fs.MkdirAll(parent, 0o755); err != nil {
			return nil, fmt.Errorf("tempstore: create parent %s: %w", parent, err)
		}
	}
	dir, err := afero.TempDir(fs, parent, "epubslice-")
	if err != nil {
		return nil, fmt.Errorf("tempstore: create directory: %w", err)
	}
	return &Store{fs: fs, dir: dir}, nil
}

// Dir returns the store's directory.
func (s *Store) Dir() string { return s.dir }

// Fs returns the filesystem the store writes to.
func (s *Store) Fs() afero.Fs { return s.fs }

// Create writes r to a new file called name and returns its full path.
// Existing files are never overwritten.
func (s *Store) Create(name string, r io.Reader) (string, error) {
	if name == "" || name == "." || name == ".." || filepath.Base(name) != name {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	p := filepath.Join(s.dir, name)

	f, err := s.fs.OpenFile(p, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("tempstore: create %s: %w", name, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = s.fs.Remove(p)
		return "", fmt.Errorf("tempstore: write %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		_ = s.fs.Remove(p)
		return "", fmt.Errorf("tempstore: close %s: %w", name, err)
	}
	return p, nil
}

// Open opens a stored file for reading.
func (s *Store) Open(name string) (afero.File, error) {
	return s.fs.Open(filepath.Join(s.dir, filepath.Base(name)))
}

// Cleanup removes the directory and everything in it.
func (s *Store) Cleanup() error {
	return s.fs.RemoveAll(s.dir)
}
