package edfs

import (
	"strings"
	"testing"
)

func TestCheckClean(t *testing.T) {
	fs, _ := newTestImage(t)
	if err := fs.Mkdir("/d"); err != nil {
		t.Fatalf("unable to mkdir: %v", err)
	}
	if err := fs.Create("/d/f"); err != nil {
		t.Fatalf("unable to create: %v", err)
	}
	fi, _ := fs.Stat("/d/f")
	if _, err := fs.WriteFileAt(fi.Sys().(Inumber), make([]byte, 5000), 0); err != nil {
		t.Fatalf("unable to write: %v", err)
	}
	if err := fs.Check(); err != nil {
		t.Errorf("clean filesystem reported %v", err)
	}
}

func TestCheckFindsProblems(t *testing.T) {
	t.Run("leaked block", func(t *testing.T) {
		fs, _ := newTestImage(t)
		if _, err := fs.allocBlock(); err != nil {
			t.Fatalf("unable to allocate: %v", err)
		}
		err := fs.Check()
		if err == nil || !strings.Contains(err.Error(), "referenced by nothing") {
			t.Errorf("expected a leaked block report, got %v", err)
		}
	})

	t.Run("unallocated reference", func(t *testing.T) {
		fs, _ := newTestImage(t)
		if err := fs.Create("/f"); err != nil {
			t.Fatalf("unable to create: %v", err)
		}
		fi, _ := fs.Stat("/f")
		number := fi.Sys().(Inumber)
		if _, err := fs.WriteFileAt(number, []byte("x"), 0); err != nil {
			t.Fatalf("unable to write: %v", err)
		}
		in, _ := fs.readInode(number)
		if err := fs.freeBlock(in.blocks[0]); err != nil {
			t.Fatalf("unable to corrupt: %v", err)
		}
		err := fs.Check()
		if err == nil || !strings.Contains(err.Error(), "not allocated") {
			t.Errorf("expected an unallocated reference report, got %v", err)
		}
	})

	t.Run("orphaned inode", func(t *testing.T) {
		fs, _ := newTestImage(t)
		orphan, err := fs.newInode(typeFile)
		if err != nil {
			t.Fatalf("unable to reserve inode: %v", err)
		}
		if err = fs.writeInode(orphan); err != nil {
			t.Fatalf("unable to write inode: %v", err)
		}
		err = fs.Check()
		if err == nil || !strings.Contains(err.Error(), "unreachable") {
			t.Errorf("expected an unreachable inode report, got %v", err)
		}
	})

	t.Run("entry to free inode", func(t *testing.T) {
		fs, _ := newTestImage(t)
		if err := fs.Create("/f"); err != nil {
			t.Fatalf("unable to create: %v", err)
		}
		fi, _ := fs.Stat("/f")
		if err := fs.clearInode(fi.Sys().(Inumber)); err != nil {
			t.Fatalf("unable to corrupt: %v", err)
		}
		err := fs.Check()
		if err == nil || !strings.Contains(err.Error(), "free inode") {
			t.Errorf("expected a dangling entry report, got %v", err)
		}
	})
}
