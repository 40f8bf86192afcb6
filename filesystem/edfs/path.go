package edfs

import (
	"fmt"
	"strings"
)

// The path resolver walks slash-separated absolute paths from the root
// inode. Trailing slashes are tolerated; "/" resolves to the root itself.

// findInode resolves an absolute path to its inode
func (fs *FileSystem) findInode(path string) (*inode, error) {
	if path == "" || path[0] != '/' {
		return nil, fmt.Errorf("path %q is not absolute: %w", path, ErrInvalid)
	}
	in, err := fs.readInode(fs.superblock.rootInumber)
	if err != nil {
		return nil, err
	}
	for _, component := range strings.Split(path, "/") {
		if component == "" {
			continue
		}
		if len(component) >= filenameMax {
			return nil, fmt.Errorf("component %q: %w", component, ErrNameTooLong)
		}
		child, err := fs.lookupEntry(in, component)
		if err != nil {
			return nil, err
		}
		if child == 0 {
			return nil, fmt.Errorf("%s: %w", path, ErrNotExist)
		}
		if in, err = fs.readInode(child); err != nil {
			return nil, err
		}
	}
	return in, nil
}

// parentInode resolves the directory that contains the last path component
func (fs *FileSystem) parentInode(path string) (*inode, error) {
	if path == "" || !strings.Contains(path, "/") {
		return nil, fmt.Errorf("path %q has no parent: %w", path, ErrInvalid)
	}
	trimmed := strings.TrimRight(path, "/")
	idx := strings.LastIndex(trimmed, "/")
	if idx <= 0 {
		return fs.readInode(fs.superblock.rootInumber)
	}
	return fs.findInode(trimmed[:idx])
}

// basename returns the final path component with trailing slashes removed,
// or "" for a path with no final component (such as "/")
func basename(path string) string {
	trimmed := strings.TrimRight(path, "/")
	idx := strings.LastIndex(trimmed, "/")
	if idx < 0 {
		return trimmed
	}
	return trimmed[idx+1:]
}
