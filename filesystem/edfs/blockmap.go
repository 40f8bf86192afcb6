package edfs

import (
	"encoding/binary"
	"fmt"
)

// The block map translates logical block indexes of an inode to physical
// block numbers. A file starts with direct pointers only; the first write
// that needs a logical index past the direct capacity promotes the inode to
// a single-indirect layout, after which every slot of the pointer array
// names an indirect block of pointers.
//
// Ordering matters for crash behaviour: a block is marked allocated in the
// bitmap before the pointer to it is written. A crash in between leaks the
// block for fsck to reclaim, which is repairable; the reverse order could
// hand the same block to two owners, which is not.

// indirectFromBytes decodes an indirect block into pointers
func (fs *FileSystem) indirectFromBytes(b []byte) []blockPtr {
	per := fs.superblock.pointersPerBlock()
	ptrs := make([]blockPtr, per)
	for i := uint32(0); i < per; i++ {
		ptrs[i] = blockPtr(binary.LittleEndian.Uint16(b[2*i : 2*i+2]))
	}
	return ptrs
}

// readIndirect loads the pointer array of one indirect block
func (fs *FileSystem) readIndirect(block blockPtr) ([]blockPtr, error) {
	b, err := fs.readBlock(block)
	if err != nil {
		return nil, err
	}
	return fs.indirectFromBytes(b), nil
}

// writeIndirectEntry updates a single pointer slot of an indirect block
func (fs *FileSystem) writeIndirectEntry(block blockPtr, slot uint32, value blockPtr) error {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, uint16(value))
	return fs.writeBlock(block, slot*blockPtrSize, b)
}

// blockPosition translates a byte offset within an inode to the physical
// block that holds it and the offset inside that block. The byte offset must
// be inside the current file size. Translation into a hole, or through a
// corrupt pointer, reports an I/O error.
func (fs *FileSystem) blockPosition(in *inode, offset uint32) (blockPtr, uint32, error) {
	if offset >= in.size {
		return invalidBlock, 0, fmt.Errorf("offset %d beyond inode size %d: %w", offset, in.size, ErrIO)
	}
	idx := offset / fs.superblock.blockSize
	within := offset % fs.superblock.blockSize

	if !in.indirect {
		if idx >= nDirect {
			return invalidBlock, 0, fmt.Errorf("logical block %d of direct inode %d: %w", idx, in.number, ErrIO)
		}
		if in.blocks[idx] == invalidBlock {
			return invalidBlock, 0, fmt.Errorf("hole at logical block %d of inode %d: %w", idx, in.number, ErrIO)
		}
		return in.blocks[idx], within, nil
	}

	per := fs.superblock.pointersPerBlock()
	slot := idx / per
	if slot >= nDirect {
		return invalidBlock, 0, fmt.Errorf("logical block %d of inode %d out of range: %w", idx, in.number, ErrIO)
	}
	if in.blocks[slot] == invalidBlock {
		return invalidBlock, 0, fmt.Errorf("hole at indirect slot %d of inode %d: %w", slot, in.number, ErrIO)
	}
	ptrs, err := fs.readIndirect(in.blocks[slot])
	if err != nil {
		return invalidBlock, 0, err
	}
	if ptrs[idx%per] == invalidBlock {
		return invalidBlock, 0, fmt.Errorf("hole at logical block %d of inode %d: %w", idx, in.number, ErrIO)
	}
	return ptrs[idx%per], within, nil
}

// ensureBlock guarantees that logical block idx of the inode is backed by an
// allocated data block and returns its physical number. It allocates blocks
// and promotes the inode from direct to single-indirect layout as needed,
// writing the inode back whenever it changes.
func (fs *FileSystem) ensureBlock(in *inode, idx uint32) (blockPtr, error) {
	if !in.indirect && idx < nDirect {
		if in.blocks[idx] == invalidBlock {
			block, err := fs.allocBlock()
			if err != nil {
				return invalidBlock, err
			}
			in.blocks[idx] = block
			if err = fs.writeInode(in); err != nil {
				return invalidBlock, err
			}
		}
		return in.blocks[idx], nil
	}

	if !in.indirect {
		if err := fs.promote(in); err != nil {
			return invalidBlock, err
		}
	}

	per := fs.superblock.pointersPerBlock()
	slot := idx / per
	within := idx % per
	if slot >= nDirect {
		return invalidBlock, fmt.Errorf("logical block %d exceeds single-indirect capacity: %w", idx, ErrTooBig)
	}

	if in.blocks[slot] == invalidBlock {
		indirect, err := fs.newIndirectBlock()
		if err != nil {
			return invalidBlock, err
		}
		in.blocks[slot] = indirect
		if err = fs.writeInode(in); err != nil {
			return invalidBlock, err
		}
	}

	ptrs, err := fs.readIndirect(in.blocks[slot])
	if err != nil {
		return invalidBlock, err
	}
	if ptrs[within] == invalidBlock {
		block, err := fs.allocBlock()
		if err != nil {
			return invalidBlock, err
		}
		if err = fs.writeIndirectEntry(in.blocks[slot], within, block); err != nil {
			return invalidBlock, err
		}
		ptrs[within] = block
	}
	return ptrs[within], nil
}

// newIndirectBlock allocates a block and fills it with the unallocated
// sentinel in every pointer slot
func (fs *FileSystem) newIndirectBlock() (blockPtr, error) {
	block, err := fs.allocBlock()
	if err != nil {
		return invalidBlock, err
	}
	empty := make([]byte, fs.superblock.blockSize)
	for i := range empty {
		empty[i] = 0xff
	}
	if err = fs.writeBlock(block, 0, empty); err != nil {
		return invalidBlock, err
	}
	return block, nil
}

// promote converts a direct-only inode to the single-indirect layout: one
// fresh indirect block takes over the six direct pointers at their original
// logical positions, and becomes the sole occupant of the pointer array.
func (fs *FileSystem) promote(in *inode) error {
	indirect, err := fs.newIndirectBlock()
	if err != nil {
		return err
	}
	for i := 0; i < nDirect; i++ {
		if err = fs.writeIndirectEntry(indirect, uint32(i), in.blocks[i]); err != nil {
			return err
		}
	}
	for i := 0; i < nDirect; i++ {
		in.blocks[i] = invalidBlock
	}
	in.blocks[0] = indirect
	in.indirect = true
	return fs.writeInode(in)
}
