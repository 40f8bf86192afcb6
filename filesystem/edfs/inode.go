package edfs

import (
	"encoding/binary"
	"fmt"
)

const (
	// nDirect direct block pointers per inode
	nDirect = 6
	// diskInodeSize bytes per inode table slot
	diskInodeSize = 20

	// the type/flag byte: low two bits are the type, bit 2 marks a file that
	// has been promoted to single-indirect layout
	inodeTypeMask     byte = 0x03
	inodeFlagIndirect byte = 0x04
)

type inodeType byte

const (
	typeFree inodeType = iota
	typeFile
	typeDir
)

// inode pairs an inumber with an in-memory copy of the disk inode. It is a
// short-lived value created by the resolver or an operation and never shared
// across calls.
type inode struct {
	number   Inumber
	itype    inodeType
	indirect bool
	size     uint32
	blocks   [nDirect]blockPtr
}

func (in *inode) isDir() bool {
	return in.itype == typeDir
}

func (in *inode) isFile() bool {
	return in.itype == typeFile
}

func inodeFromBytes(b []byte, number Inumber) (*inode, error) {
	if len(b) < diskInodeSize {
		return nil, fmt.Errorf("inode was %d bytes instead of expected %d", len(b), diskInodeSize)
	}
	flags := b[0]
	in := inode{
		number:   number,
		itype:    inodeType(flags & inodeTypeMask),
		indirect: flags&inodeFlagIndirect != 0,
		size:     binary.LittleEndian.Uint32(b[4:8]),
	}
	for i := 0; i < nDirect; i++ {
		in.blocks[i] = blockPtr(binary.LittleEndian.Uint16(b[8+2*i : 10+2*i]))
	}
	return &in, nil
}

func (in *inode) toBytes() []byte {
	b := make([]byte, diskInodeSize)
	flags := byte(in.itype) & inodeTypeMask
	if in.indirect {
		flags |= inodeFlagIndirect
	}
	b[0] = flags
	binary.LittleEndian.PutUint32(b[4:8], in.size)
	for i := 0; i < nDirect; i++ {
		binary.LittleEndian.PutUint16(b[8+2*i:10+2*i], uint16(in.blocks[i]))
	}
	return b
}

// inodeOffset byte position of an inode slot in the image
func (fs *FileSystem) inodeOffset(number Inumber) int64 {
	return int64(fs.superblock.inodeTableStart) + int64(number)*int64(fs.superblock.inodeSize)
}

// readInode loads one inode table slot
func (fs *FileSystem) readInode(number Inumber) (*inode, error) {
	if uint32(number) >= fs.superblock.inodeCount {
		return nil, fmt.Errorf("inumber %d out of range: %w", number, ErrNotExist)
	}
	b := make([]byte, diskInodeSize)
	n, err := fs.backend.ReadAt(b, fs.inodeOffset(number))
	if err != nil {
		return nil, fmt.Errorf("could not read inode %d: %v: %w", number, err, ErrIO)
	}
	if n != diskInodeSize {
		return nil, fmt.Errorf("read %d bytes of inode %d instead of %d: %w", n, number, diskInodeSize, ErrIO)
	}
	return inodeFromBytes(b, number)
}

// writeInode persists one inode table slot
func (fs *FileSystem) writeInode(in *inode) error {
	if uint32(in.number) >= fs.superblock.inodeCount {
		return fmt.Errorf("inumber %d out of range: %w", in.number, ErrNotExist)
	}
	writable, err := fs.backend.Writable()
	if err != nil {
		return err
	}
	b := in.toBytes()
	n, err := writable.WriteAt(b, fs.inodeOffset(in.number))
	if err != nil {
		return fmt.Errorf("could not write inode %d: %v: %w", in.number, err, ErrIO)
	}
	if n != len(b) {
		return fmt.Errorf("wrote %d bytes of inode %d instead of %d: %w", n, in.number, len(b), ErrIO)
	}
	return nil
}

// clearInode zeroes one inode table slot, marking it free
func (fs *FileSystem) clearInode(number Inumber) error {
	if uint32(number) >= fs.superblock.inodeCount {
		return fmt.Errorf("inumber %d out of range: %w", number, ErrNotExist)
	}
	writable, err := fs.backend.Writable()
	if err != nil {
		return err
	}
	b := make([]byte, diskInodeSize)
	n, err := writable.WriteAt(b, fs.inodeOffset(number))
	if err != nil {
		return fmt.Errorf("could not clear inode %d: %v: %w", number, err, ErrIO)
	}
	if n != len(b) {
		return fmt.Errorf("wrote %d bytes of inode %d instead of %d: %w", n, number, len(b), ErrIO)
	}
	return nil
}

// findFreeInode scans the table from inumber 1 for the first free slot.
// Returns 0 if the table is full.
func (fs *FileSystem) findFreeInode() (Inumber, error) {
	for number := Inumber(1); uint32(number) < fs.superblock.inodeCount; number++ {
		in, err := fs.readInode(number)
		if err != nil {
			return 0, err
		}
		if in.itype == typeFree {
			return number, nil
		}
	}
	return 0, nil
}

// newInode finds a free slot and returns a fresh in-memory inode of the given
// type, size zero, every pointer unallocated. The slot is not considered
// allocated on disk until the caller writes the inode.
func (fs *FileSystem) newInode(itype inodeType) (*inode, error) {
	number, err := fs.findFreeInode()
	if err != nil {
		return nil, err
	}
	if number == 0 {
		return nil, fmt.Errorf("inode table full: %w", ErrNoSpace)
	}
	in := inode{
		number: number,
		itype:  itype,
	}
	for i := 0; i < nDirect; i++ {
		in.blocks[i] = invalidBlock
	}
	return &in, nil
}
