package edfs

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

const (
	// filenameMax bytes per entry name, terminating NUL included
	filenameMax = 60
	// direntSize bytes per directory entry slot on disk
	direntSize uint32 = 64
)

// dirent is one fixed-size directory entry: a NUL-terminated name and the
// inumber it refers to. An entry with inumber 0 and an empty name is a free
// slot.
type dirent struct {
	name    string
	inumber Inumber
}

func (de *dirent) empty() bool {
	return de.inumber == 0 && de.name == ""
}

func direntFromBytes(b []byte) dirent {
	name := b[:filenameMax]
	if i := bytes.IndexByte(name, 0); i >= 0 {
		name = name[:i]
	}
	return dirent{
		name:    string(name),
		inumber: Inumber(binary.LittleEndian.Uint16(b[filenameMax : filenameMax+2])),
	}
}

func (de *dirent) toBytes() []byte {
	b := make([]byte, direntSize)
	copy(b[:filenameMax-1], de.name)
	binary.LittleEndian.PutUint16(b[filenameMax:filenameMax+2], uint16(de.inumber))
	return b
}

// scanDir iterates every non-empty entry of a directory, in pointer-array
// order then entry order, skipping unallocated block pointers. The step
// function gets the pointer-array index, the entry index within the block
// and the entry; returning true stops the scan early.
func (fs *FileSystem) scanDir(dir *inode, step func(blockIdx int, entryIdx uint32, de dirent) bool) error {
	if !dir.isDir() {
		return fmt.Errorf("inode %d: %w", dir.number, ErrNotDir)
	}
	perBlock := fs.superblock.entriesPerBlock()
	for blockIdx := 0; blockIdx < nDirect; blockIdx++ {
		if dir.blocks[blockIdx] == invalidBlock {
			continue
		}
		b, err := fs.readBlock(dir.blocks[blockIdx])
		if err != nil {
			return err
		}
		for entryIdx := uint32(0); entryIdx < perBlock; entryIdx++ {
			de := direntFromBytes(b[entryIdx*direntSize : (entryIdx+1)*direntSize])
			if de.empty() {
				continue
			}
			if step(blockIdx, entryIdx, de) {
				return nil
			}
		}
	}
	return nil
}

// lookupEntry finds the entry with the given name. Returns 0 when absent.
func (fs *FileSystem) lookupEntry(dir *inode, name string) (Inumber, error) {
	var found Inumber
	err := fs.scanDir(dir, func(_ int, _ uint32, de dirent) bool {
		if de.name == name {
			found = de.inumber
			return true
		}
		return false
	})
	if err != nil {
		return 0, err
	}
	return found, nil
}

// addEntry inserts a name/inumber pair into a directory. It reuses the first
// empty slot of the existing blocks; when every slot is taken it grows the
// directory by one freshly allocated data block, as long as the pointer
// array has room. Name uniqueness is the caller's responsibility.
func (fs *FileSystem) addEntry(dir *inode, name string, child Inumber) error {
	if !dir.isDir() {
		return fmt.Errorf("inode %d: %w", dir.number, ErrNotDir)
	}
	if len(name) >= filenameMax {
		return fmt.Errorf("name %q: %w", name, ErrNameTooLong)
	}
	entry := dirent{name: name, inumber: child}
	perBlock := fs.superblock.entriesPerBlock()

	// first pass: a free slot in an already allocated block
	for blockIdx := 0; blockIdx < nDirect; blockIdx++ {
		if dir.blocks[blockIdx] == invalidBlock {
			continue
		}
		b, err := fs.readBlock(dir.blocks[blockIdx])
		if err != nil {
			return err
		}
		for entryIdx := uint32(0); entryIdx < perBlock; entryIdx++ {
			de := direntFromBytes(b[entryIdx*direntSize : (entryIdx+1)*direntSize])
			if !de.empty() {
				continue
			}
			return fs.writeBlock(dir.blocks[blockIdx], entryIdx*direntSize, entry.toBytes())
		}
	}

	// second pass: grow the directory by one block
	for blockIdx := 0; blockIdx < nDirect; blockIdx++ {
		if dir.blocks[blockIdx] != invalidBlock {
			continue
		}
		block, err := fs.allocBlock()
		if err != nil {
			return err
		}
		// fresh block image: the new entry in slot 0, empty slots after it
		b := make([]byte, fs.superblock.blockSize)
		copy(b, entry.toBytes())
		if err = fs.writeBlock(block, 0, b); err != nil {
			return err
		}
		dir.blocks[blockIdx] = block
		return fs.writeInode(dir)
	}

	return fmt.Errorf("directory %d is full: %w", dir.number, ErrNoSpace)
}

// removeEntry zeroes the entry with the given name in place. The directory
// is never compacted and emptied blocks are not returned. Reports the
// inumber the entry referred to; ErrNotExist when the name is absent.
func (fs *FileSystem) removeEntry(dir *inode, name string) (Inumber, error) {
	var (
		child    Inumber
		blockIdx = -1
		entryIdx uint32
	)
	err := fs.scanDir(dir, func(bi int, ei uint32, de dirent) bool {
		if de.name == name {
			child = de.inumber
			blockIdx, entryIdx = bi, ei
			return true
		}
		return false
	})
	if err != nil {
		return 0, err
	}
	if blockIdx < 0 {
		return 0, fmt.Errorf("no entry %q in directory %d: %w", name, dir.number, ErrNotExist)
	}
	empty := make([]byte, direntSize)
	if err = fs.writeBlock(dir.blocks[blockIdx], entryIdx*direntSize, empty); err != nil {
		return 0, err
	}
	return child, nil
}
