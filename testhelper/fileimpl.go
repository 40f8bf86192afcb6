// Package testhelper provides stubbed backend.Storage implementations used to
// test filesystem code without touching real files.
package testhelper

import (
	"fmt"
	"io"
	"io/fs"
	"time"

	"github.com/edfs/go-edfs/backend"
	"github.com/xaionaro-go/bytesextra"
)

type reader func(b []byte, offset int64) (int, error)
type writer func(b []byte, offset int64) (int, error)

// FileImpl implements github.com/edfs/go-edfs/backend.Storage
// used for testing to enable stubbing out files
type FileImpl struct {
	Reader reader
	Writer writer
}

// backend.Storage interface guard
var _ backend.Storage = (*FileImpl)(nil)

func (f *FileImpl) Stat() (fs.FileInfo, error) {
	return nil, nil
}

func (f *FileImpl) Read(b []byte) (int, error) {
	return f.Reader(b, 0)
}

func (f *FileImpl) Close() error {
	return nil
}

// ReadAt read at a particular offset
func (f *FileImpl) ReadAt(b []byte, offset int64) (int, error) {
	return f.Reader(b, offset)
}

// WriteAt write at a particular offset
func (f *FileImpl) WriteAt(b []byte, offset int64) (int, error) {
	return f.Writer(b, offset)
}

// Seek seek a particular offset - does not actually work
//
//nolint:unused,revive // to implement the interface
func (f *FileImpl) Seek(offset int64, whence int) (int64, error) {
	return 0, fmt.Errorf("FileImpl does not implement Seek()")
}

func (f *FileImpl) Writable() (backend.WritableFile, error) {
	return f, nil
}

// Memory is an in-memory backend.Storage over a byte slice, for tests that
// want a whole image they can inspect afterwards. Writes land in the slice
// passed to NewMemory.
type Memory struct {
	io.ReadWriteSeeker
	data []byte
}

// backend.Storage interface guard
var _ backend.Storage = (*Memory)(nil)

// NewMemory creates an in-memory image of the given content
func NewMemory(content []byte) *Memory {
	return &Memory{
		ReadWriteSeeker: bytesextra.NewReadWriteSeeker(content),
		data:            content,
	}
}

// Bytes returns the underlying image content
func (m *Memory) Bytes() []byte {
	return m.data
}

// ReadAt read at a particular offset
func (m *Memory) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// WriteAt write at a particular offset; the image never grows
func (m *Memory) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 || off+int64(len(p)) > int64(len(m.data)) {
		return 0, fmt.Errorf("write of %d bytes at %d past end of %d byte image", len(p), off, len(m.data))
	}
	return copy(m.data[off:], p), nil
}

func (m *Memory) Stat() (fs.FileInfo, error) {
	return memoryInfo{size: int64(len(m.data))}, nil
}

// memoryInfo is the fs.FileInfo of an in-memory image
type memoryInfo struct {
	size int64
}

func (mi memoryInfo) Name() string       { return "memory" }
func (mi memoryInfo) Size() int64        { return mi.size }
func (mi memoryInfo) Mode() fs.FileMode  { return 0o600 }
func (mi memoryInfo) ModTime() time.Time { return time.Time{} }
func (mi memoryInfo) IsDir() bool        { return false }
func (mi memoryInfo) Sys() interface{}   { return nil }

func (m *Memory) Close() error {
	return nil
}

func (m *Memory) Writable() (backend.WritableFile, error) {
	return m, nil
}
