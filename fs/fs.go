// Package fs exposes an EdFS engine through the user-space filesystem
// bridge: it implements fuseutil.FileSystem by translating each operation
// into engine calls and each engine error into an errno at the boundary.
//
// The kernel protocol addresses objects by inode ID. EdFS inumbers are
// stable and small, so they are used as the fuse inode IDs directly, with
// the engine's root inumber standing in for fuseops.RootInodeID.
package fs

import (
	"context"
	"io"
	"os"
	"sync"
	"syscall"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"
	"github.com/sirupsen/logrus"

	"github.com/edfs/go-edfs/filesystem/edfs"
)

// ServerConfig carries the dependencies of a new file system server
type ServerConfig struct {
	// Engine the mounted EdFS filesystem
	Engine *edfs.FileSystem
	// Logger destination for per-operation debug logging; nil disables it
	Logger *logrus.Logger
}

// NewServer creates a fuse server that serves one EdFS image
func NewServer(cfg *ServerConfig) (fuse.Server, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	fs := &fileSystem{
		engine: cfg.Engine,
		root:   cfg.Engine.Root(),
		logger: logger,
	}
	return fuseutil.NewFileSystemServer(fs), nil
}

type fileSystem struct {
	fuseutil.NotImplementedFileSystem

	/////////////////////////
	// Dependencies
	/////////////////////////

	engine *edfs.FileSystem
	root   edfs.Inumber
	logger *logrus.Logger

	/////////////////////////
	// Mutable state
	/////////////////////////

	// The engine is single-threaded: one operation runs to completion before
	// the next begins. The bridge dispatches concurrently, so serialise here.
	mu sync.Mutex
}

// inum translates a fuse inode ID to an engine inumber
func (fs *fileSystem) inum(id fuseops.InodeID) edfs.Inumber {
	if id == fuseops.RootInodeID {
		return fs.root
	}
	return edfs.Inumber(id)
}

// inodeID translates an engine inumber to a fuse inode ID
func (fs *fileSystem) inodeID(number edfs.Inumber) fuseops.InodeID {
	if number == fs.root {
		return fuseops.RootInodeID
	}
	return fuseops.InodeID(number)
}

// attributes builds the fuse attributes of one object. The root directory
// reports the conventional 0755; other directories 0770, files 0660.
func (fs *fileSystem) attributes(fi edfs.FileInfo) fuseops.InodeAttributes {
	attrs := fuseops.InodeAttributes{
		Size:  uint64(fi.Size()),
		Nlink: fi.Nlink(),
		Mode:  0o660,
	}
	if fi.IsDir() {
		attrs.Mode = os.ModeDir | 0o770
		if fi.Inumber() == fs.root {
			attrs.Mode = os.ModeDir | 0o755
		}
	}
	return attrs
}

////////////////////////////////////////////////////////////////////////
// FileSystem methods
////////////////////////////////////////////////////////////////////////

func (fs *fileSystem) LookUpInode(
	_ context.Context, op *fuseops.LookUpInodeOp) (err error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	fi, err := fs.engine.LookupAt(fs.inum(op.Parent), op.Name)
	if err != nil {
		return fs.errno("LookUpInode", err)
	}

	op.Entry.Child = fs.inodeID(fi.Inumber())
	op.Entry.Attributes = fs.attributes(fi)

	return
}

func (fs *fileSystem) GetInodeAttributes(
	_ context.Context, op *fuseops.GetInodeAttributesOp) (err error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	fi, err := fs.engine.StatAt(fs.inum(op.Inode))
	if err != nil {
		return fs.errno("GetInodeAttributes", err)
	}

	op.Attributes = fs.attributes(fi)

	return
}

func (fs *fileSystem) SetInodeAttributes(
	_ context.Context, op *fuseops.SetInodeAttributesOp) (err error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	// Size changes truncate; mode, ownership and time changes are accepted
	// and discarded, EdFS stores none of them.
	if op.Size != nil {
		if err = fs.engine.TruncateAt(fs.inum(op.Inode), int64(*op.Size)); err != nil {
			return fs.errno("SetInodeAttributes", err)
		}
	}

	fi, err := fs.engine.StatAt(fs.inum(op.Inode))
	if err != nil {
		return fs.errno("SetInodeAttributes", err)
	}
	op.Attributes = fs.attributes(fi)

	return
}

func (fs *fileSystem) ForgetInode(
	_ context.Context, op *fuseops.ForgetInodeOp) (err error) {
	// inode lifetimes live on disk, nothing to forget
	return
}

func (fs *fileSystem) MkDir(
	_ context.Context, op *fuseops.MkDirOp) (err error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	fi, err := fs.engine.MkdirAt(fs.inum(op.Parent), op.Name)
	if err != nil {
		return fs.errno("MkDir", err)
	}

	op.Entry.Child = fs.inodeID(fi.Inumber())
	op.Entry.Attributes = fs.attributes(fi)

	return
}

func (fs *fileSystem) CreateFile(
	_ context.Context, op *fuseops.CreateFileOp) (err error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	fi, err := fs.engine.CreateAt(fs.inum(op.Parent), op.Name)
	if err != nil {
		return fs.errno("CreateFile", err)
	}

	op.Entry.Child = fs.inodeID(fi.Inumber())
	op.Entry.Attributes = fs.attributes(fi)

	// We have nothing interesting to put in the Handle field.

	return
}

func (fs *fileSystem) RmDir(
	_ context.Context, op *fuseops.RmDirOp) (err error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if err = fs.engine.RmdirAt(fs.inum(op.Parent), op.Name); err != nil {
		return fs.errno("RmDir", err)
	}

	return
}

func (fs *fileSystem) Unlink(
	_ context.Context, op *fuseops.UnlinkOp) (err error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if err = fs.engine.UnlinkAt(fs.inum(op.Parent), op.Name); err != nil {
		return fs.errno("Unlink", err)
	}

	return
}

func (fs *fileSystem) OpenDir(
	_ context.Context, op *fuseops.OpenDirOp) (err error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	fi, err := fs.engine.StatAt(fs.inum(op.Inode))
	if err != nil {
		return fs.errno("OpenDir", err)
	}
	if !fi.IsDir() {
		return syscall.ENOTDIR
	}

	// no handle state: every ReadDir re-reads the directory

	return
}

func (fs *fileSystem) ReadDir(
	_ context.Context, op *fuseops.ReadDirOp) (err error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	entries, err := fs.engine.ReadDirAt(fs.inum(op.Inode))
	if err != nil {
		return fs.errno("ReadDir", err)
	}

	if op.Offset > fuseops.DirOffset(len(entries)) {
		return syscall.EINVAL
	}

	// resume at the specified offset into the listing
	for i := int(op.Offset); i < len(entries); i++ {
		fi := entries[i]
		direntType := fuseutil.DT_File
		if fi.IsDir() {
			direntType = fuseutil.DT_Directory
		}
		n := fuseutil.WriteDirent(op.Dst[op.BytesRead:], fuseutil.Dirent{
			Offset: fuseops.DirOffset(i + 1),
			Inode:  fs.inodeID(fi.Inumber()),
			Name:   fi.Name(),
			Type:   direntType,
		})
		if n == 0 {
			break
		}
		op.BytesRead += n
	}

	return
}

func (fs *fileSystem) ReleaseDirHandle(
	_ context.Context, op *fuseops.ReleaseDirHandleOp) (err error) {
	return
}

func (fs *fileSystem) OpenFile(
	_ context.Context, op *fuseops.OpenFileOp) (err error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	fi, err := fs.engine.StatAt(fs.inum(op.Inode))
	if err != nil {
		return fs.errno("OpenFile", err)
	}
	if fi.IsDir() {
		return syscall.EISDIR
	}

	// no handle state is kept for open files either

	return
}

func (fs *fileSystem) ReadFile(
	_ context.Context, op *fuseops.ReadFileOp) (err error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	n, err := fs.engine.ReadFileAt(fs.inum(op.Inode), op.Dst, op.Offset)
	op.BytesRead = n
	if err != nil {
		return fs.errno("ReadFile", err)
	}

	// a short read signals EOF to the bridge, no explicit error is needed

	return
}

func (fs *fileSystem) WriteFile(
	_ context.Context, op *fuseops.WriteFileOp) (err error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if _, err = fs.engine.WriteFileAt(fs.inum(op.Inode), op.Data, op.Offset); err != nil {
		return fs.errno("WriteFile", err)
	}

	return
}

func (fs *fileSystem) SyncFile(
	_ context.Context, op *fuseops.SyncFileOp) (err error) {
	// every write already went to the image; durability is the host's job
	return
}

func (fs *fileSystem) FlushFile(
	_ context.Context, op *fuseops.FlushFileOp) (err error) {
	return
}

func (fs *fileSystem) ReleaseFileHandle(
	_ context.Context, op *fuseops.ReleaseFileHandleOp) (err error) {
	return
}
