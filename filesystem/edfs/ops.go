package edfs

import (
	"fmt"
	iofs "io/fs"
	"os"
	"time"

	"github.com/edfs/go-edfs/filesystem"
)

// FileInfo describes one filesystem object. It implements fs.FileInfo; EdFS
// keeps no timestamps, so ModTime is always the zero time.
type FileInfo struct {
	name    string
	inumber Inumber
	dir     bool
	size    int64
}

func (fi FileInfo) Name() string { return fi.name }
func (fi FileInfo) Size() int64  { return fi.size }
func (fi FileInfo) Mode() iofs.FileMode {
	if fi.dir {
		return iofs.ModeDir | 0o770
	}
	return 0o660
}
func (fi FileInfo) ModTime() time.Time { return time.Time{} }
func (fi FileInfo) IsDir() bool        { return fi.dir }
func (fi FileInfo) Sys() interface{}   { return fi.inumber }

// Inumber returns the inode number backing this object
func (fi FileInfo) Inumber() Inumber { return fi.inumber }

// Nlink returns the link count reported for this object
func (fi FileInfo) Nlink() uint32 {
	if fi.dir {
		return 2
	}
	return 1
}

func fileInfoFromInode(name string, in *inode) FileInfo {
	return FileInfo{
		name:    name,
		inumber: in.number,
		dir:     in.isDir(),
		size:    int64(in.size),
	}
}

////////////////////////////////////////////////////////////////////////////////
// Inumber-addressed operations. The FUSE bridge speaks in terms of inode
// numbers and (parent, name) pairs, so these are the primitives; the
// path-addressed API below composes them with the path resolver.

// StatAt returns information about an inode
func (fs *FileSystem) StatAt(number Inumber) (FileInfo, error) {
	in, err := fs.readInode(number)
	if err != nil {
		return FileInfo{}, err
	}
	if in.itype == typeFree {
		return FileInfo{}, fmt.Errorf("inode %d is free: %w", number, ErrNotExist)
	}
	return fileInfoFromInode("", in), nil
}

// LookupAt finds the named child of a directory
func (fs *FileSystem) LookupAt(parent Inumber, name string) (FileInfo, error) {
	dir, err := fs.readInode(parent)
	if err != nil {
		return FileInfo{}, err
	}
	if !dir.isDir() {
		return FileInfo{}, fmt.Errorf("inode %d: %w", parent, ErrNotDir)
	}
	child, err := fs.lookupEntry(dir, name)
	if err != nil {
		return FileInfo{}, err
	}
	if child == 0 {
		return FileInfo{}, fmt.Errorf("%s: %w", name, ErrNotExist)
	}
	in, err := fs.readInode(child)
	if err != nil {
		return FileInfo{}, err
	}
	return fileInfoFromInode(name, in), nil
}

// ReadDirAt lists the on-disk entries of a directory. The synthetic "." and
// ".." entries are not included; the path-addressed ReadDir adds them.
func (fs *FileSystem) ReadDirAt(number Inumber) ([]FileInfo, error) {
	dir, err := fs.readInode(number)
	if err != nil {
		return nil, err
	}
	var names []dirent
	if err = fs.scanDir(dir, func(_ int, _ uint32, de dirent) bool {
		names = append(names, de)
		return false
	}); err != nil {
		return nil, err
	}
	entries := make([]FileInfo, 0, len(names))
	for _, de := range names {
		in, err := fs.readInode(de.inumber)
		if err != nil {
			return nil, err
		}
		entries = append(entries, fileInfoFromInode(de.name, in))
	}
	return entries, nil
}

// mkNode is the common trunk of MkdirAt and CreateAt
func (fs *FileSystem) mkNode(parent Inumber, name string, itype inodeType) (FileInfo, error) {
	dir, err := fs.readInode(parent)
	if err != nil {
		return FileInfo{}, err
	}
	if !dir.isDir() {
		return FileInfo{}, fmt.Errorf("inode %d: %w", parent, ErrNotDir)
	}
	if name == "" {
		return FileInfo{}, fmt.Errorf("empty name: %w", ErrInvalid)
	}
	if len(name) >= filenameMax {
		return FileInfo{}, fmt.Errorf("name %q: %w", name, ErrNameTooLong)
	}
	existing, err := fs.lookupEntry(dir, name)
	if err != nil {
		return FileInfo{}, err
	}
	if existing != 0 {
		return FileInfo{}, fmt.Errorf("%s: %w", name, ErrExist)
	}
	child, err := fs.newInode(itype)
	if err != nil {
		return FileInfo{}, err
	}
	if err = fs.writeInode(child); err != nil {
		return FileInfo{}, err
	}
	if err = fs.addEntry(dir, name, child.number); err != nil {
		// the slot was claimed but never linked; release it again
		_ = fs.clearInode(child.number)
		return FileInfo{}, err
	}
	return fileInfoFromInode(name, child), nil
}

// MkdirAt creates an empty directory under a parent directory
func (fs *FileSystem) MkdirAt(parent Inumber, name string) (FileInfo, error) {
	return fs.mkNode(parent, name, typeDir)
}

// CreateAt creates an empty regular file under a parent directory
func (fs *FileSystem) CreateAt(parent Inumber, name string) (FileInfo, error) {
	return fs.mkNode(parent, name, typeFile)
}

// RmdirAt removes an empty directory from its parent
func (fs *FileSystem) RmdirAt(parent Inumber, name string) error {
	dir, err := fs.readInode(parent)
	if err != nil {
		return err
	}
	childNumber, err := fs.lookupEntry(dir, name)
	if err != nil {
		return err
	}
	if childNumber == 0 {
		return fmt.Errorf("%s: %w", name, ErrNotExist)
	}
	child, err := fs.readInode(childNumber)
	if err != nil {
		return err
	}
	if !child.isDir() {
		return fmt.Errorf("%s: %w", name, ErrNotDir)
	}
	empty := true
	if err = fs.scanDir(child, func(_ int, _ uint32, _ dirent) bool {
		empty = false
		return true
	}); err != nil {
		return err
	}
	if !empty {
		return fmt.Errorf("%s: %w", name, ErrNotEmpty)
	}
	if _, err = fs.removeEntry(dir, name); err != nil {
		return err
	}
	// entries are removed without compaction, so an emptied directory keeps
	// the blocks it grew; free them all
	for i := 0; i < nDirect; i++ {
		if child.blocks[i] != invalidBlock {
			if err = fs.freeBlock(child.blocks[i]); err != nil {
				return err
			}
		}
	}
	return fs.clearInode(childNumber)
}

// UnlinkAt removes a regular file from its parent, releasing every data
// block it owns, the indirect blocks included
func (fs *FileSystem) UnlinkAt(parent Inumber, name string) error {
	dir, err := fs.readInode(parent)
	if err != nil {
		return err
	}
	childNumber, err := fs.lookupEntry(dir, name)
	if err != nil {
		return err
	}
	if childNumber == 0 {
		return fmt.Errorf("%s: %w", name, ErrNotExist)
	}
	child, err := fs.readInode(childNumber)
	if err != nil {
		return err
	}
	if child.isDir() {
		return fmt.Errorf("%s: %w", name, ErrIsDir)
	}
	if err = fs.freeInodeBlocks(child); err != nil {
		return err
	}
	if _, err = fs.removeEntry(dir, name); err != nil {
		return err
	}
	return fs.clearInode(childNumber)
}

// freeInodeBlocks releases every block an inode references
func (fs *FileSystem) freeInodeBlocks(in *inode) error {
	for i := 0; i < nDirect; i++ {
		if in.blocks[i] == invalidBlock {
			continue
		}
		if in.indirect {
			ptrs, err := fs.readIndirect(in.blocks[i])
			if err != nil {
				return err
			}
			for _, p := range ptrs {
				if p == invalidBlock {
					continue
				}
				if err = fs.freeBlock(p); err != nil {
					return err
				}
			}
		}
		if err := fs.freeBlock(in.blocks[i]); err != nil {
			return err
		}
	}
	return nil
}

// ReadFileAt reads up to len(p) bytes at the given offset of a regular file.
// Reads past the end of the file return 0 bytes; reads are clamped at the
// file size. Reading a hole reports an I/O error.
func (fs *FileSystem) ReadFileAt(number Inumber, p []byte, offset int64) (int, error) {
	in, err := fs.readInode(number)
	if err != nil {
		return 0, err
	}
	if in.isDir() {
		return 0, fmt.Errorf("inode %d: %w", number, ErrIsDir)
	}
	if offset < 0 {
		return 0, fmt.Errorf("negative offset %d: %w", offset, ErrInvalid)
	}
	if offset >= int64(in.size) {
		return 0, nil
	}
	size := len(p)
	if int64(size) > int64(in.size)-offset {
		size = int(int64(in.size) - offset)
	}

	total := 0
	for total < size {
		block, within, err := fs.blockPosition(in, uint32(offset)+uint32(total))
		if err != nil {
			return total, err
		}
		chunk := int(fs.superblock.blockSize - within)
		if chunk > size-total {
			chunk = size - total
		}
		if err = fs.readRange(block, within, p[total:total+chunk]); err != nil {
			return total, err
		}
		total += chunk
	}
	return total, nil
}

// WriteFileAt writes len(p) bytes at the given offset of a regular file,
// allocating blocks and growing the file as needed
func (fs *FileSystem) WriteFileAt(number Inumber, p []byte, offset int64) (int, error) {
	in, err := fs.readInode(number)
	if err != nil {
		return 0, err
	}
	if in.isDir() {
		return 0, fmt.Errorf("inode %d: %w", number, ErrIsDir)
	}
	if offset < 0 {
		return 0, fmt.Errorf("negative offset %d: %w", offset, ErrInvalid)
	}
	if uint64(offset)+uint64(len(p)) > fs.superblock.maxFileSize() {
		return 0, fmt.Errorf("write to offset %d: %w", offset, ErrTooBig)
	}

	total := 0
	for total < len(p) {
		pos := uint32(offset) + uint32(total)
		idx := pos / fs.superblock.blockSize
		within := pos % fs.superblock.blockSize
		block, err := fs.ensureBlock(in, idx)
		if err != nil {
			return total, err
		}
		chunk := int(fs.superblock.blockSize - within)
		if chunk > len(p)-total {
			chunk = len(p) - total
		}
		if err = fs.writeBlock(block, within, p[total:total+chunk]); err != nil {
			return total, err
		}
		total += chunk
	}

	if uint64(offset)+uint64(total) > uint64(in.size) {
		in.size = uint32(offset) + uint32(total)
		if err = fs.writeInode(in); err != nil {
			return total, err
		}
	}
	return total, nil
}

// TruncateAt changes the size of a regular file. Growing only ensures the
// last logical block, leaving holes before it unallocated; shrinking
// releases every whole block past the new end.
func (fs *FileSystem) TruncateAt(number Inumber, size int64) error {
	in, err := fs.readInode(number)
	if err != nil {
		return err
	}
	if in.isDir() {
		return fmt.Errorf("inode %d: %w", number, ErrIsDir)
	}
	if size < 0 {
		return fmt.Errorf("negative size %d: %w", size, ErrInvalid)
	}
	if uint64(size) > fs.superblock.maxFileSize() {
		return fmt.Errorf("size %d: %w", size, ErrTooBig)
	}

	bs := int64(fs.superblock.blockSize)
	switch {
	case size > int64(in.size):
		if _, err = fs.ensureBlock(in, uint32((size-1)/bs)); err != nil {
			return err
		}
	case size < int64(in.size):
		first := (size + bs - 1) / bs
		last := (int64(in.size) + bs - 1) / bs
		if err = fs.trimBlocks(in, uint32(first), uint32(last)); err != nil {
			return err
		}
	}

	in.size = uint32(size)
	return fs.writeInode(in)
}

// trimBlocks frees logical blocks [first, last) of an inode, resetting their
// pointers to the unallocated sentinel. Holes in the range are skipped.
func (fs *FileSystem) trimBlocks(in *inode, first, last uint32) error {
	if !in.indirect {
		for idx := first; idx < last && idx < nDirect; idx++ {
			if in.blocks[idx] == invalidBlock {
				continue
			}
			if err := fs.freeBlock(in.blocks[idx]); err != nil {
				return err
			}
			in.blocks[idx] = invalidBlock
		}
		return nil
	}

	per := fs.superblock.pointersPerBlock()
	for slot := uint32(0); slot < nDirect; slot++ {
		if in.blocks[slot] == invalidBlock {
			continue
		}
		lo := slot * per
		hi := lo + per
		if hi <= first || lo >= last {
			continue
		}
		ptrs, err := fs.readIndirect(in.blocks[slot])
		if err != nil {
			return err
		}
		dirty := false
		for idx := lo; idx < hi; idx++ {
			if idx < first || idx >= last {
				continue
			}
			if ptrs[idx-lo] == invalidBlock {
				continue
			}
			if err = fs.freeBlock(ptrs[idx-lo]); err != nil {
				return err
			}
			ptrs[idx-lo] = invalidBlock
			dirty = true
		}
		if dirty {
			for i, p := range ptrs {
				if err = fs.writeIndirectEntry(in.blocks[slot], uint32(i), p); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

////////////////////////////////////////////////////////////////////////////////
// Path-addressed operations: the filesystem.FileSystem surface. Every
// operation resolves paths through the resolver and then runs the
// inumber-addressed primitive.

// Stat return file info for the named file
func (fs *FileSystem) Stat(pathname string) (iofs.FileInfo, error) {
	in, err := fs.findInode(pathname)
	if err != nil {
		return nil, err
	}
	name := basename(pathname)
	if name == "" {
		name = "/"
	}
	return fileInfoFromInode(name, in), nil
}

// ReadDir read the contents of a directory. The "." and ".." entries are
// synthesized; they are not stored on disk.
func (fs *FileSystem) ReadDir(pathname string) ([]os.FileInfo, error) {
	in, err := fs.findInode(pathname)
	if err != nil {
		return nil, err
	}
	if !in.isDir() {
		return nil, fmt.Errorf("%s: %w", pathname, ErrNotDir)
	}
	parent, err := fs.parentInodeOrRoot(pathname)
	if err != nil {
		return nil, err
	}
	entries := []os.FileInfo{
		fileInfoFromInode(".", in),
		fileInfoFromInode("..", parent),
	}
	children, err := fs.ReadDirAt(in.number)
	if err != nil {
		return nil, err
	}
	for _, child := range children {
		entries = append(entries, child)
	}
	return entries, nil
}

// parentInodeOrRoot is parentInode with "/" mapping to the root itself
func (fs *FileSystem) parentInodeOrRoot(pathname string) (*inode, error) {
	if basename(pathname) == "" {
		return fs.readInode(fs.superblock.rootInumber)
	}
	return fs.parentInode(pathname)
}

// resolveParent splits a path into its parent directory inode and basename
func (fs *FileSystem) resolveParent(pathname string) (*inode, string, error) {
	parent, err := fs.parentInode(pathname)
	if err != nil {
		return nil, "", err
	}
	if !parent.isDir() {
		return nil, "", fmt.Errorf("%s: %w", pathname, ErrNotDir)
	}
	name := basename(pathname)
	if name == "" {
		return nil, "", fmt.Errorf("path %q has no final component: %w", pathname, ErrInvalid)
	}
	return parent, name, nil
}

// Mkdir make a directory
func (fs *FileSystem) Mkdir(pathname string) error {
	parent, name, err := fs.resolveParent(pathname)
	if err != nil {
		return err
	}
	_, err = fs.MkdirAt(parent.number, name)
	return err
}

// Rmdir remove an empty directory
func (fs *FileSystem) Rmdir(pathname string) error {
	parent, name, err := fs.resolveParent(pathname)
	if err != nil {
		return err
	}
	return fs.RmdirAt(parent.number, name)
}

// Create create an empty regular file
func (fs *FileSystem) Create(pathname string) error {
	parent, name, err := fs.resolveParent(pathname)
	if err != nil {
		return err
	}
	_, err = fs.CreateAt(parent.number, name)
	return err
}

// Unlink remove a regular file
func (fs *FileSystem) Unlink(pathname string) error {
	parent, name, err := fs.resolveParent(pathname)
	if err != nil {
		return err
	}
	return fs.UnlinkAt(parent.number, name)
}

// Truncate change the size of the named file
func (fs *FileSystem) Truncate(pathname string, size int64) error {
	in, err := fs.findInode(pathname)
	if err != nil {
		return err
	}
	return fs.TruncateAt(in.number, size)
}

// Chmod accepts and discards a mode change; EdFS stores no permissions
//
//nolint:revive // parameters accepted for interface compatibility
func (fs *FileSystem) Chmod(name string, mode os.FileMode) error {
	if _, err := fs.findInode(name); err != nil {
		return err
	}
	return nil
}

// Chown accepts and discards an ownership change; EdFS stores no owners
//
//nolint:revive // parameters accepted for interface compatibility
func (fs *FileSystem) Chown(name string, uid, gid int) error {
	if _, err := fs.findInode(name); err != nil {
		return err
	}
	return nil
}

// OpenFile open a handle to read or write to a file
func (fs *FileSystem) OpenFile(pathname string, flag int) (filesystem.File, error) {
	in, err := fs.findInode(pathname)
	if err != nil {
		if flag&os.O_CREATE == 0 {
			return nil, err
		}
		parent, name, perr := fs.resolveParent(pathname)
		if perr != nil {
			return nil, perr
		}
		fi, cerr := fs.CreateAt(parent.number, name)
		if cerr != nil {
			return nil, cerr
		}
		return &File{filesystem: fs, number: fi.Inumber()}, nil
	}
	if in.isDir() {
		return nil, fmt.Errorf("%s: %w", pathname, ErrIsDir)
	}
	if flag&os.O_TRUNC != 0 {
		if err = fs.TruncateAt(in.number, 0); err != nil {
			return nil, err
		}
	}
	return &File{filesystem: fs, number: in.number}, nil
}
