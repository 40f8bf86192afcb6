package file_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/edfs/go-edfs/backend"
	"github.com/edfs/go-edfs/backend/file"
)

func TestCreateFromPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "image.edfs")

	b, err := file.CreateFromPath(path, 1<<20)
	if err != nil {
		t.Fatalf("unable to create image: %v", err)
	}
	defer b.Close()

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("unable to stat created image: %v", err)
	}
	if info.Size() != 1<<20 {
		t.Errorf("image is %d bytes, expected %d", info.Size(), 1<<20)
	}

	// a second create of the same path must refuse
	if _, err = file.CreateFromPath(path, 1<<20); err == nil {
		t.Errorf("creating over an existing image did not fail")
	}
}

func TestOpenFromPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "image.edfs")

	if _, err := file.OpenFromPath(path, false); err == nil {
		t.Errorf("opening a missing image did not fail")
	}

	created, err := file.CreateFromPath(path, 4096)
	if err != nil {
		t.Fatalf("unable to create image: %v", err)
	}
	w, err := created.Writable()
	if err != nil {
		t.Fatalf("created image is not writable: %v", err)
	}
	if _, err = w.WriteAt([]byte("edfs"), 100); err != nil {
		t.Fatalf("unable to write: %v", err)
	}
	_ = created.Close()

	t.Run("read-only", func(t *testing.T) {
		b, err := file.OpenFromPath(path, true)
		if err != nil {
			t.Fatalf("unable to open image: %v", err)
		}
		defer b.Close()

		buf := make([]byte, 4)
		if _, err = b.ReadAt(buf, 100); err != nil || string(buf) != "edfs" {
			t.Errorf("read back %q, %v", buf, err)
		}
		if _, err = b.Writable(); err != backend.ErrIncorrectOpenMode {
			t.Errorf("writable view of a read-only image returned %v", err)
		}
	})

	t.Run("read-write", func(t *testing.T) {
		b, err := file.OpenFromPath(path, false)
		if err != nil {
			t.Fatalf("unable to open image: %v", err)
		}
		defer b.Close()
		if _, err = b.Writable(); err != nil {
			t.Errorf("writable view returned %v", err)
		}
	})
}
