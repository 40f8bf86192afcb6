package edfs

import (
	"fmt"

	"github.com/edfs/go-edfs/util/bitmap"
)

// The free-block bitmap lives at superblock.bitmapStart; bit b represents
// data block b, set = allocated. The in-memory scan below is an optimisation
// only; the authoritative state is always on disk, and both allocBlock and
// freeBlock persist their change with a single-byte read-modify-write at the
// bitmap offset rather than rewriting the whole map.

// readBitmap loads the whole allocation bitmap
func (fs *FileSystem) readBitmap() (*bitmap.Bitmap, error) {
	b := make([]byte, fs.superblock.bitmapSize)
	n, err := fs.backend.ReadAt(b, int64(fs.superblock.bitmapStart))
	if err != nil {
		return nil, fmt.Errorf("could not read allocation bitmap: %v: %w", err, ErrIO)
	}
	if n != len(b) {
		return nil, fmt.Errorf("read %d bytes of allocation bitmap instead of %d: %w", n, len(b), ErrIO)
	}
	return bitmap.FromBytes(b), nil
}

// bitmapRMW flips one bit on disk via a single-byte read-modify-write.
// Reports whether the bit was set before the write.
func (fs *FileSystem) bitmapRMW(block blockPtr, set bool) (wasSet bool, err error) {
	offset := int64(fs.superblock.bitmapStart) + int64(block)/8
	mask := byte(1) << (uint(block) % 8)

	b := make([]byte, 1)
	n, err := fs.backend.ReadAt(b, offset)
	if err != nil || n != 1 {
		return false, fmt.Errorf("could not read allocation bitmap byte for block %d: %w", block, ErrIO)
	}
	wasSet = b[0]&mask != 0

	if set {
		b[0] |= mask
	} else {
		b[0] &^= mask
	}
	writable, err := fs.backend.Writable()
	if err != nil {
		return wasSet, err
	}
	n, err = writable.WriteAt(b, offset)
	if err != nil || n != 1 {
		return wasSet, fmt.Errorf("could not write allocation bitmap byte for block %d: %w", block, ErrIO)
	}
	return wasSet, nil
}

// allocBlock finds the first free data block, marks it allocated on disk and
// returns its number. The block content is not zeroed; callers that need
// defined content must write it themselves.
func (fs *FileSystem) allocBlock() (blockPtr, error) {
	bm, err := fs.readBitmap()
	if err != nil {
		return invalidBlock, err
	}
	free := bm.FirstFree()
	// the all-ones block number is the unallocated sentinel, never hand it out
	if free < 0 || uint64(free) >= fs.superblock.blockCount() || blockPtr(free) == invalidBlock {
		return invalidBlock, fmt.Errorf("no free data blocks: %w", ErrNoSpace)
	}
	if _, err = fs.bitmapRMW(blockPtr(free), true); err != nil {
		return invalidBlock, err
	}
	return blockPtr(free), nil
}

// freeBlock releases one data block
func (fs *FileSystem) freeBlock(block blockPtr) error {
	if uint64(block) >= fs.superblock.blockCount() {
		return fmt.Errorf("block %d out of range: %w", block, ErrNotExist)
	}
	wasSet, err := fs.bitmapRMW(block, false)
	if err != nil {
		return err
	}
	if !wasSet {
		return fmt.Errorf("block %d was already free: %w", block, ErrNotExist)
	}
	return nil
}
