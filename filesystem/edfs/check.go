package edfs

import (
	"fmt"

	gobitmap "github.com/boljen/go-bitmap"
	"github.com/hashicorp/go-multierror"
)

// Check verifies the on-disk invariants of the filesystem:
//
//   - every pointer of every allocated inode references an in-range data
//     block whose allocation bit is set
//   - no data block is referenced twice
//   - every directory entry refers to an allocated inode, and every
//     allocated inode is reachable from the root
//   - directories never use the indirect layout
//   - file sizes stay within what the block map can address
//
// Blocks that are allocated but referenced by nothing are reported as leaks;
// the write ordering of the engine can leave them behind after a failure.
// Check only reports them; it does not free them.
//
// The returned error is a multierror holding one entry per problem, or nil
// for a clean filesystem.
func (fs *FileSystem) Check() error {
	var problems *multierror.Error

	blocks := int(fs.superblock.blockCount())
	seen := gobitmap.New(blocks)

	// reference marks one block referenced, complaining about range errors,
	// double references and clear allocation bits
	bm, err := fs.readBitmap()
	if err != nil {
		return err
	}
	reference := func(owner string, block blockPtr) {
		if int(block) >= blocks {
			problems = multierror.Append(problems, fmt.Errorf("%s references out-of-range block %d", owner, block))
			return
		}
		if seen.Get(int(block)) {
			problems = multierror.Append(problems, fmt.Errorf("%s references block %d, which is already referenced", owner, block))
			return
		}
		seen.Set(int(block), true)
		set, err := bm.IsSet(int(block))
		if err != nil || !set {
			problems = multierror.Append(problems, fmt.Errorf("%s references block %d, which is not allocated", owner, block))
		}
	}

	reachable := make(map[Inumber]bool)
	var walk func(number Inumber) error
	walk = func(number Inumber) error {
		if reachable[number] {
			problems = multierror.Append(problems, fmt.Errorf("inode %d is linked from more than one directory", number))
			return nil
		}
		reachable[number] = true

		in, err := fs.readInode(number)
		if err != nil {
			return err
		}
		owner := fmt.Sprintf("inode %d", number)

		switch {
		case in.isDir():
			if in.indirect {
				problems = multierror.Append(problems, fmt.Errorf("%s is a directory with the indirect flag set", owner))
			}
			for i := 0; i < nDirect; i++ {
				if in.blocks[i] != invalidBlock {
					reference(owner, in.blocks[i])
				}
			}
			var children []dirent
			if err := fs.scanDir(in, func(_ int, _ uint32, de dirent) bool {
				children = append(children, de)
				return false
			}); err != nil {
				return err
			}
			for _, de := range children {
				if uint32(de.inumber) >= fs.superblock.inodeCount {
					problems = multierror.Append(problems, fmt.Errorf("%s entry %q references out-of-range inode %d", owner, de.name, de.inumber))
					continue
				}
				child, err := fs.readInode(de.inumber)
				if err != nil {
					return err
				}
				if child.itype == typeFree {
					problems = multierror.Append(problems, fmt.Errorf("%s entry %q references free inode %d", owner, de.name, de.inumber))
					continue
				}
				if err := walk(de.inumber); err != nil {
					return err
				}
			}
		case in.isFile():
			max := uint64(nDirect) * uint64(fs.superblock.blockSize)
			if in.indirect {
				max = fs.superblock.maxFileSize()
			}
			if uint64(in.size) > max {
				problems = multierror.Append(problems, fmt.Errorf("%s declares size %d beyond its layout capacity %d", owner, in.size, max))
			}
			for i := 0; i < nDirect; i++ {
				if in.blocks[i] == invalidBlock {
					continue
				}
				reference(owner, in.blocks[i])
				if !in.indirect {
					continue
				}
				ptrs, err := fs.readIndirect(in.blocks[i])
				if err != nil {
					return err
				}
				for _, p := range ptrs {
					if p != invalidBlock {
						reference(owner, p)
					}
				}
			}
		default:
			problems = multierror.Append(problems, fmt.Errorf("%s has unknown type %d", owner, in.itype))
		}
		return nil
	}

	if err := walk(fs.superblock.rootInumber); err != nil {
		return err
	}

	// allocated inodes the walk never met
	for number := Inumber(1); uint32(number) < fs.superblock.inodeCount; number++ {
		in, err := fs.readInode(number)
		if err != nil {
			return err
		}
		if in.itype != typeFree && !reachable[number] {
			problems = multierror.Append(problems, fmt.Errorf("inode %d is allocated but unreachable from the root", number))
		}
	}

	// allocated blocks nothing references are leaks
	for block := 0; block < blocks; block++ {
		set, err := bm.IsSet(block)
		if err != nil {
			break
		}
		if set && !seen.Get(block) {
			problems = multierror.Append(problems, fmt.Errorf("block %d is allocated but referenced by nothing", block))
		}
	}

	return problems.ErrorOrNil()
}
