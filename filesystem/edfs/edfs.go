// Package edfs implements EdFS, a small on-disk filesystem with a bit-per-block
// allocation bitmap, a fixed inode table and single-indirect block indexing.
//
// The layout of an image, from low to high offset: superblock, free-block
// bitmap, inode table, data region. All integer fields are little-endian.
// An inode holds six direct block pointers; a file that grows past the direct
// capacity is promoted once to a single-indirect layout where every direct
// slot holds the number of an indirect block of pointers.
package edfs

import (
	"fmt"

	"github.com/edfs/go-edfs/backend"
	"github.com/edfs/go-edfs/filesystem"
	"github.com/edfs/go-edfs/util/bitmap"
)

// FileSystem implements the filesystem.FileSystem interface
type FileSystem struct {
	superblock *superblock
	size       int64
	backend    backend.Storage
}

// FSStat describes capacity and usage of a filesystem
type FSStat struct {
	BlockSize   uint32
	Blocks      uint64
	BlocksFree  uint64
	Inodes      uint32
	InodesFree  uint32
	MaxFileSize uint64
	MaxNameLen  uint32
}

// Params controls geometry when creating a fresh filesystem
type Params struct {
	// BlockSize bytes per data block; defaults to 512
	BlockSize uint32
	// InodeCount slots in the inode table; defaults to 1 per 4 data blocks
	InodeCount uint32
}

// Read mounts an EdFS filesystem from an existing image.
//
// It reads and validates the superblock and checks that the backing file is
// at least as large as the size the superblock declares. The superblock is
// never re-read: it is treated as immutable for the lifetime of the mount.
func Read(b backend.Storage) (*FileSystem, error) {
	sbBytes := make([]byte, superblockSize)
	n, err := b.ReadAt(sbBytes, superblockOffset)
	if err != nil {
		return nil, fmt.Errorf("could not read superblock bytes from image: %v", err)
	}
	if n != superblockSize {
		return nil, fmt.Errorf("only could read %d superblock bytes from image", n)
	}

	sb, err := superblockFromBytes(sbBytes)
	if err != nil {
		return nil, fmt.Errorf("could not interpret superblock data: %w", err)
	}

	info, err := b.Stat()
	if err != nil {
		return nil, fmt.Errorf("could not stat image: %v", err)
	}
	var size int64
	if info != nil {
		size = info.Size()
		if size > 0 && uint64(size) < sb.size {
			return nil, fmt.Errorf("image is %d bytes but superblock declares %d: truncated image", size, sb.size)
		}
	}

	return &FileSystem{
		superblock: sb,
		size:       size,
		backend:    b,
	}, nil
}

// Create formats a fresh EdFS filesystem of the given total size on the
// backing storage: superblock, zeroed allocation bitmap, zeroed inode table
// and an empty root directory at inumber 1.
func Create(b backend.Storage, size int64, p *Params) (*FileSystem, error) {
	if p == nil {
		p = &Params{}
	}
	blockSize := p.BlockSize
	if blockSize == 0 {
		blockSize = 512
	}
	if blockSize%direntSize != 0 || blockSize%uint32(blockPtrSize) != 0 {
		return nil, fmt.Errorf("block size %d is not a multiple of the directory entry size", blockSize)
	}
	if size < int64(blockSize)*8 {
		return nil, fmt.Errorf("requested size %d is too small for an EdFS image", size)
	}

	// carve up the image: superblock, bitmap, inode table, data region. The
	// bitmap is sized for the data region that remains after the metadata,
	// computed against the whole image and then clamped to what actually fits.
	blocks := uint64(size) / uint64(blockSize)
	if blocks > uint64(invalidBlock) {
		blocks = uint64(invalidBlock)
	}
	bitmapSize := (blocks + 7) / 8
	inodeCount := p.InodeCount
	if inodeCount == 0 {
		inodeCount = uint32(blocks / 4)
	}
	if inodeCount < 2 {
		inodeCount = 2
	}
	if inodeCount > uint32(^Inumber(0)) {
		inodeCount = uint32(^Inumber(0))
	}

	bitmapStart := uint64(superblockSize)
	inodeTableStart := bitmapStart + bitmapSize
	blockOffset := inodeTableStart + uint64(inodeCount)*diskInodeSize
	// round the data region up to a block boundary
	if rem := blockOffset % uint64(blockSize); rem != 0 {
		blockOffset += uint64(blockSize) - rem
	}
	if blockOffset >= uint64(size) {
		return nil, fmt.Errorf("requested size %d leaves no room for data blocks", size)
	}
	dataBlocks := (uint64(size) - blockOffset) / uint64(blockSize)
	if dataBlocks < blocks {
		blocks = dataBlocks
		bitmapSize = (blocks + 7) / 8
	}

	sb := &superblock{
		blockSize:       blockSize,
		size:            uint64(size),
		bitmapStart:     bitmapStart,
		bitmapSize:      bitmapSize,
		inodeCount:      inodeCount,
		inodeSize:       diskInodeSize,
		inodeTableStart: inodeTableStart,
		blockOffset:     blockOffset,
		rootInumber:     1,
	}

	writable, err := b.Writable()
	if err != nil {
		return nil, err
	}
	if _, err := writable.WriteAt(sb.toBytes(), superblockOffset); err != nil {
		return nil, fmt.Errorf("could not write superblock: %v", err)
	}
	// fresh bitmap: all blocks free, except the trailing bits of the last
	// byte that address blocks past the end of the data region
	bm := bitmap.NewBytes(int(bitmapSize))
	for bit := blocks; bit < bitmapSize*8; bit++ {
		if err := bm.Set(int(bit)); err != nil {
			return nil, err
		}
	}
	if _, err := writable.WriteAt(bm.ToBytes(), int64(bitmapStart)); err != nil {
		return nil, fmt.Errorf("could not write allocation bitmap: %v", err)
	}
	// zero the inode table
	zero := make([]byte, uint64(inodeCount)*diskInodeSize)
	if _, err := writable.WriteAt(zero, int64(inodeTableStart)); err != nil {
		return nil, fmt.Errorf("could not zero inode table: %v", err)
	}

	fs := &FileSystem{
		superblock: sb,
		size:       size,
		backend:    b,
	}

	// the root directory starts with one zeroed data block of empty entries
	root := inode{
		number: sb.rootInumber,
		itype:  typeDir,
	}
	for i := 0; i < nDirect; i++ {
		root.blocks[i] = invalidBlock
	}
	rootBlock, err := fs.allocBlock()
	if err != nil {
		return nil, fmt.Errorf("could not allocate root directory block: %w", err)
	}
	if err := fs.writeBlock(rootBlock, 0, make([]byte, blockSize)); err != nil {
		return nil, fmt.Errorf("could not zero root directory block: %w", err)
	}
	root.blocks[0] = rootBlock
	if err := fs.writeInode(&root); err != nil {
		return nil, fmt.Errorf("could not write root inode: %w", err)
	}

	return fs, nil
}

// interface guard
var _ filesystem.FileSystem = (*FileSystem)(nil)

// Type returns the type code for the filesystem. Always returns filesystem.TypeEdfs
func (fs *FileSystem) Type() filesystem.Type {
	return filesystem.TypeEdfs
}

// Close releases the backing image
func (fs *FileSystem) Close() error {
	return fs.backend.Close()
}

// Root returns the inumber of the root directory
func (fs *FileSystem) Root() Inumber {
	return fs.superblock.rootInumber
}

// BlockSize returns the data block size in bytes
func (fs *FileSystem) BlockSize() uint32 {
	return fs.superblock.blockSize
}

// FSStat returns capacity and usage counters. Multiple calls return identical
// data if no modifications have been made to the filesystem.
func (fs *FileSystem) FSStat() (FSStat, error) {
	bm, err := fs.readBitmap()
	if err != nil {
		return FSStat{}, err
	}
	var used uint64
	for i := 0; uint64(i) < fs.superblock.blockCount(); i++ {
		set, err := bm.IsSet(i)
		if err != nil {
			break
		}
		if set {
			used++
		}
	}
	var usedInodes uint32
	for number := Inumber(1); uint32(number) < fs.superblock.inodeCount; number++ {
		in, err := fs.readInode(number)
		if err != nil {
			return FSStat{}, err
		}
		if in.itype != typeFree {
			usedInodes++
		}
	}
	return FSStat{
		BlockSize:   fs.superblock.blockSize,
		Blocks:      fs.superblock.blockCount(),
		BlocksFree:  fs.superblock.blockCount() - used,
		Inodes:      fs.superblock.inodeCount,
		InodesFree:  fs.superblock.inodeCount - 1 - usedInodes,
		MaxFileSize: fs.superblock.maxFileSize(),
		MaxNameLen:  filenameMax - 1,
	}, nil
}

// blockOffset byte position of a data block in the image
func (fs *FileSystem) blockOffset(block blockPtr) int64 {
	return int64(fs.superblock.blockOffset) + int64(block)*int64(fs.superblock.blockSize)
}

// readBlock loads one whole data block
func (fs *FileSystem) readBlock(block blockPtr) ([]byte, error) {
	b := make([]byte, fs.superblock.blockSize)
	n, err := fs.backend.ReadAt(b, fs.blockOffset(block))
	if err != nil {
		return nil, fmt.Errorf("could not read block %d: %v: %w", block, err, ErrIO)
	}
	if n != len(b) {
		return nil, fmt.Errorf("read %d bytes of block %d instead of %d: %w", n, block, len(b), ErrIO)
	}
	return b, nil
}

// writeBlock persists bytes at an offset inside one data block
func (fs *FileSystem) writeBlock(block blockPtr, within uint32, data []byte) error {
	writable, err := fs.backend.Writable()
	if err != nil {
		return err
	}
	n, err := writable.WriteAt(data, fs.blockOffset(block)+int64(within))
	if err != nil {
		return fmt.Errorf("could not write block %d: %v: %w", block, err, ErrIO)
	}
	if n != len(data) {
		return fmt.Errorf("wrote %d bytes of block %d instead of %d: %w", n, block, len(data), ErrIO)
	}
	return nil
}

// readRange reads part of one data block
func (fs *FileSystem) readRange(block blockPtr, within uint32, data []byte) error {
	n, err := fs.backend.ReadAt(data, fs.blockOffset(block)+int64(within))
	if err != nil {
		return fmt.Errorf("could not read block %d: %v: %w", block, err, ErrIO)
	}
	if n != len(data) {
		return fmt.Errorf("read %d bytes of block %d instead of %d: %w", n, block, len(data), ErrIO)
	}
	return nil
}
