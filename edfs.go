// Package edfs implements methods for creating and opening EdFS disk images.
//
// The package ties the pieces of this repository together for the common
// cases: open an image file and mount its filesystem, or create a fresh one.
// The interesting work happens in the subpackages; the on-disk engine lives
// in github.com/edfs/go-edfs/filesystem/edfs, and the FUSE bridge adapter in
// github.com/edfs/go-edfs/fs.
package edfs

import (
	"fmt"

	"github.com/edfs/go-edfs/backend/file"
	edfsfs "github.com/edfs/go-edfs/filesystem/edfs"
)

// Open opens the EdFS image at the given path and mounts its filesystem
func Open(path string, readOnly bool) (*edfsfs.FileSystem, error) {
	b, err := file.OpenFromPath(path, readOnly)
	if err != nil {
		return nil, err
	}
	fs, err := edfsfs.Read(b)
	if err != nil {
		_ = b.Close()
		return nil, fmt.Errorf("unable to read filesystem on %s: %w", path, err)
	}
	return fs, nil
}

// Create creates an image file of the given size at the given path and
// formats a fresh EdFS filesystem on it. The file must not exist yet.
func Create(path string, size int64, p *edfsfs.Params) (*edfsfs.FileSystem, error) {
	b, err := file.CreateFromPath(path, size)
	if err != nil {
		return nil, err
	}
	fs, err := edfsfs.Create(b, size, p)
	if err != nil {
		_ = b.Close()
		return nil, fmt.Errorf("unable to create filesystem on %s: %w", path, err)
	}
	return fs, nil
}
