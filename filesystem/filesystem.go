// Package filesystem provides the interface and shared errors for filesystem
// implementations. The interesting implementation is in the edfs subpackage,
// github.com/edfs/go-edfs/filesystem/edfs
package filesystem

import (
	"errors"
	"io/fs"
	"os"
)

var (
	ErrNotSupported       = errors.New("method not supported by this filesystem")
	ErrNotImplemented     = errors.New("method not implemented (patches are welcome)")
	ErrReadonlyFilesystem = errors.New("read-only filesystem")
)

// FileSystem is a reference to a single filesystem on a disk image
type FileSystem interface {
	// Type return the type of filesystem
	Type() Type
	// Mkdir make a directory
	Mkdir(pathname string) error
	// Rmdir remove an empty directory
	Rmdir(pathname string) error
	// Create create an empty regular file
	Create(pathname string) error
	// Unlink remove a regular file
	Unlink(pathname string) error
	// Chmod changes the mode of the named file to mode.
	Chmod(name string, mode os.FileMode) error
	// Chown changes the numeric uid and gid of the named file.
	// A uid or gid of -1 means to not change that value
	Chown(name string, uid, gid int) error
	// Stat return file info for the named file
	Stat(pathname string) (fs.FileInfo, error)
	// ReadDir read the contents of a directory
	ReadDir(pathname string) ([]os.FileInfo, error)
	// OpenFile open a handle to read or write to a file
	OpenFile(pathname string, flag int) (File, error)
	// Truncate change the size of the named file
	Truncate(pathname string, size int64) error
	// Close release the filesystem and its backing image
	Close() error
}

// Type represents the type of filesystem this is
type Type int

const (
	// TypeEdfs is an EdFS filesystem
	TypeEdfs Type = iota
)
