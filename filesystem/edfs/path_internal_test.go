package edfs

import (
	"errors"
	"testing"
)

func TestBasename(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/", ""},
		{"//", ""},
		{"/a", "a"},
		{"/a/", "a"},
		{"/a/b", "b"},
		{"/a/b///", "b"},
		{"noslash", "noslash"},
	}
	for _, tt := range tests {
		if got := basename(tt.path); got != tt.want {
			t.Errorf("basename(%q) = %q, expected %q", tt.path, got, tt.want)
		}
	}
}

func TestFindInode(t *testing.T) {
	fs, _ := newTestImage(t)
	if err := fs.Mkdir("/a"); err != nil {
		t.Fatalf("unable to mkdir: %v", err)
	}
	if err := fs.Mkdir("/a/b"); err != nil {
		t.Fatalf("unable to mkdir: %v", err)
	}
	if err := fs.Create("/a/b/c"); err != nil {
		t.Fatalf("unable to create: %v", err)
	}

	t.Run("root", func(t *testing.T) {
		in, err := fs.findInode("/")
		if err != nil || in.number != fs.Root() {
			t.Errorf("resolving / returned inode %v, %v", in, err)
		}
	})

	t.Run("nested", func(t *testing.T) {
		in, err := fs.findInode("/a/b/c")
		if err != nil {
			t.Fatalf("unable to resolve: %v", err)
		}
		if !in.isFile() {
			t.Errorf("resolved inode is not a file")
		}
	})

	t.Run("trailing slashes", func(t *testing.T) {
		withSlash, err := fs.findInode("/a/b/")
		if err != nil {
			t.Fatalf("unable to resolve: %v", err)
		}
		without, err := fs.findInode("/a/b")
		if err != nil {
			t.Fatalf("unable to resolve: %v", err)
		}
		if withSlash.number != without.number {
			t.Errorf("trailing slash resolved inode %d, expected %d", withSlash.number, without.number)
		}
	})

	t.Run("missing component", func(t *testing.T) {
		if _, err := fs.findInode("/a/missing/c"); !errors.Is(err, ErrNotExist) {
			t.Errorf("resolving a missing component returned %v", err)
		}
	})

	t.Run("relative", func(t *testing.T) {
		if _, err := fs.findInode("a/b"); !errors.Is(err, ErrInvalid) {
			t.Errorf("resolving a relative path returned %v", err)
		}
		if _, err := fs.findInode(""); !errors.Is(err, ErrInvalid) {
			t.Errorf("resolving an empty path returned %v", err)
		}
	})
}

func TestParentInode(t *testing.T) {
	fs, _ := newTestImage(t)
	if err := fs.Mkdir("/a"); err != nil {
		t.Fatalf("unable to mkdir: %v", err)
	}

	parent, err := fs.parentInode("/a/b")
	if err != nil {
		t.Fatalf("unable to resolve parent: %v", err)
	}
	if !parent.isDir() {
		t.Errorf("parent of /a/b is not a directory")
	}

	root, err := fs.parentInode("/a")
	if err != nil || root.number != fs.Root() {
		t.Errorf("parent of /a is inode %v, %v, expected the root", root, err)
	}

	if _, err = fs.parentInode("noslash"); !errors.Is(err, ErrInvalid) {
		t.Errorf("parent of a slashless path returned %v", err)
	}
}
