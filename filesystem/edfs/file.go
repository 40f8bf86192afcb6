package edfs

import (
	"fmt"
	"io"
	"os"

	"github.com/edfs/go-edfs/filesystem"
)

// File represents a single open regular file
type File struct {
	filesystem *FileSystem
	number     Inumber
	offset     int64
}

// filesystem.File interface guard
var _ filesystem.File = (*File)(nil)

// Read reads up to len(b) bytes from the File from the current offset.
// At end of file, Read returns 0, io.EOF
func (fl *File) Read(b []byte) (int, error) {
	if fl == nil || fl.filesystem == nil {
		return 0, os.ErrClosed
	}
	n, err := fl.filesystem.ReadFileAt(fl.number, b, fl.offset)
	fl.offset += int64(n)
	if err == nil && n == 0 && len(b) > 0 {
		return 0, io.EOF
	}
	return n, err
}

// Write writes len(b) bytes to the File at the current offset
func (fl *File) Write(b []byte) (int, error) {
	if fl == nil || fl.filesystem == nil {
		return 0, os.ErrClosed
	}
	n, err := fl.filesystem.WriteFileAt(fl.number, b, fl.offset)
	fl.offset += int64(n)
	return n, err
}

// ReadAt reads at a particular offset without touching the file position
func (fl *File) ReadAt(b []byte, offset int64) (int, error) {
	if fl == nil || fl.filesystem == nil {
		return 0, os.ErrClosed
	}
	n, err := fl.filesystem.ReadFileAt(fl.number, b, offset)
	if err == nil && n < len(b) {
		err = io.EOF
	}
	return n, err
}

// WriteAt writes at a particular offset without touching the file position
func (fl *File) WriteAt(b []byte, offset int64) (int, error) {
	if fl == nil || fl.filesystem == nil {
		return 0, os.ErrClosed
	}
	return fl.filesystem.WriteFileAt(fl.number, b, offset)
}

// Seek set the offset to a particular point in the file
func (fl *File) Seek(offset int64, whence int) (int64, error) {
	if fl == nil || fl.filesystem == nil {
		return 0, os.ErrClosed
	}
	newOffset := int64(0)
	switch whence {
	case io.SeekStart:
		newOffset = offset
	case io.SeekEnd:
		fi, err := fl.filesystem.StatAt(fl.number)
		if err != nil {
			return fl.offset, err
		}
		newOffset = fi.Size() + offset
	case io.SeekCurrent:
		newOffset = fl.offset + offset
	}
	if newOffset < 0 {
		return fl.offset, fmt.Errorf("cannot set offset %d before start of file", offset)
	}
	fl.offset = newOffset
	return fl.offset, nil
}

// Truncate change the size of the file
func (fl *File) Truncate(size int64) error {
	if fl == nil || fl.filesystem == nil {
		return os.ErrClosed
	}
	return fl.filesystem.TruncateAt(fl.number, size)
}

// Close close the file
func (fl *File) Close() error {
	if fl == nil || fl.filesystem == nil {
		return nil
	}
	fl.filesystem = nil
	return nil
}
