package fs

import (
	"context"
	"io"
	"syscall"
	"testing"

	"github.com/jacobsa/fuse/fuseops"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edfs/go-edfs/filesystem/edfs"
	"github.com/edfs/go-edfs/testhelper"
)

var ctx = context.Background()

func newTestFileSystem(t *testing.T) *fileSystem {
	t.Helper()
	mem := testhelper.NewMemory(make([]byte, 1<<20))
	engine, err := edfs.Create(mem, 1<<20, nil)
	require.NoError(t, err, "unable to create test filesystem")

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return &fileSystem{
		engine: engine,
		root:   engine.Root(),
		logger: logger,
	}
}

func TestLookUpInode(t *testing.T) {
	fs := newTestFileSystem(t)

	mkdir := &fuseops.MkDirOp{Parent: fuseops.RootInodeID, Name: "dir"}
	require.NoError(t, fs.MkDir(ctx, mkdir))

	lookup := &fuseops.LookUpInodeOp{Parent: fuseops.RootInodeID, Name: "dir"}
	require.NoError(t, fs.LookUpInode(ctx, lookup))
	assert.Equal(t, mkdir.Entry.Child, lookup.Entry.Child)
	assert.True(t, lookup.Entry.Attributes.Mode.IsDir())
	assert.EqualValues(t, 2, lookup.Entry.Attributes.Nlink)

	missing := &fuseops.LookUpInodeOp{Parent: fuseops.RootInodeID, Name: "missing"}
	assert.Equal(t, syscall.ENOENT, fs.LookUpInode(ctx, missing))
}

func TestRootAttributes(t *testing.T) {
	fs := newTestFileSystem(t)

	op := &fuseops.GetInodeAttributesOp{Inode: fuseops.RootInodeID}
	require.NoError(t, fs.GetInodeAttributes(ctx, op))
	assert.True(t, op.Attributes.Mode.IsDir())
	assert.EqualValues(t, 0o755, op.Attributes.Mode.Perm())
}

func TestCreateWriteRead(t *testing.T) {
	fs := newTestFileSystem(t)

	create := &fuseops.CreateFileOp{Parent: fuseops.RootInodeID, Name: "file"}
	require.NoError(t, fs.CreateFile(ctx, create))
	assert.EqualValues(t, 0o660, create.Entry.Attributes.Mode.Perm())

	write := &fuseops.WriteFileOp{
		Inode:  create.Entry.Child,
		Data:   []byte("payload"),
		Offset: 0,
	}
	require.NoError(t, fs.WriteFile(ctx, write))

	read := &fuseops.ReadFileOp{
		Inode: create.Entry.Child,
		Size:  32,
		Dst:   make([]byte, 32),
	}
	require.NoError(t, fs.ReadFile(ctx, read))
	assert.Equal(t, "payload", string(read.Dst[:read.BytesRead]))

	attrs := &fuseops.GetInodeAttributesOp{Inode: create.Entry.Child}
	require.NoError(t, fs.GetInodeAttributes(ctx, attrs))
	assert.EqualValues(t, 7, attrs.Attributes.Size)

	// a second create of the same name must not succeed
	again := &fuseops.CreateFileOp{Parent: fuseops.RootInodeID, Name: "file"}
	assert.Equal(t, syscall.EEXIST, fs.CreateFile(ctx, again))
}

func TestSetInodeAttributesTruncates(t *testing.T) {
	fs := newTestFileSystem(t)

	create := &fuseops.CreateFileOp{Parent: fuseops.RootInodeID, Name: "file"}
	require.NoError(t, fs.CreateFile(ctx, create))
	write := &fuseops.WriteFileOp{Inode: create.Entry.Child, Data: []byte("some payload")}
	require.NoError(t, fs.WriteFile(ctx, write))

	size := uint64(4)
	set := &fuseops.SetInodeAttributesOp{Inode: create.Entry.Child, Size: &size}
	require.NoError(t, fs.SetInodeAttributes(ctx, set))
	assert.EqualValues(t, 4, set.Attributes.Size)
}

func TestReadDir(t *testing.T) {
	fs := newTestFileSystem(t)

	require.NoError(t, fs.MkDir(ctx, &fuseops.MkDirOp{Parent: fuseops.RootInodeID, Name: "a"}))
	require.NoError(t, fs.CreateFile(ctx, &fuseops.CreateFileOp{Parent: fuseops.RootInodeID, Name: "b"}))

	read := &fuseops.ReadDirOp{
		Inode: fuseops.RootInodeID,
		Dst:   make([]byte, 4096),
	}
	require.NoError(t, fs.ReadDir(ctx, read))
	assert.NotZero(t, read.BytesRead)

	// continuing past the end yields nothing further
	read2 := &fuseops.ReadDirOp{
		Inode:  fuseops.RootInodeID,
		Offset: 2,
		Dst:    make([]byte, 4096),
	}
	require.NoError(t, fs.ReadDir(ctx, read2))
	assert.Zero(t, read2.BytesRead)
}

func TestRemove(t *testing.T) {
	fs := newTestFileSystem(t)

	require.NoError(t, fs.MkDir(ctx, &fuseops.MkDirOp{Parent: fuseops.RootInodeID, Name: "d"}))
	mk := &fuseops.MkDirOp{Parent: fuseops.RootInodeID, Name: "d"}
	assert.Equal(t, syscall.EEXIST, fs.MkDir(ctx, mk))

	lookup := &fuseops.LookUpInodeOp{Parent: fuseops.RootInodeID, Name: "d"}
	require.NoError(t, fs.LookUpInode(ctx, lookup))
	require.NoError(t, fs.CreateFile(ctx, &fuseops.CreateFileOp{Parent: lookup.Entry.Child, Name: "x"}))

	rmdir := &fuseops.RmDirOp{Parent: fuseops.RootInodeID, Name: "d"}
	assert.Equal(t, syscall.ENOTEMPTY, fs.RmDir(ctx, rmdir))

	require.NoError(t, fs.Unlink(ctx, &fuseops.UnlinkOp{Parent: lookup.Entry.Child, Name: "x"}))
	assert.NoError(t, fs.RmDir(ctx, rmdir))

	unlink := &fuseops.UnlinkOp{Parent: fuseops.RootInodeID, Name: "d"}
	assert.Equal(t, syscall.ENOENT, fs.Unlink(ctx, unlink))
}
