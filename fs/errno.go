package fs

import (
	"errors"
	"syscall"

	"github.com/edfs/go-edfs/filesystem/edfs"
)

// errno converts an engine error to the errno the bridge reports to the
// kernel. Engine errors wrap exactly one sentinel from the edfs package;
// anything else is a surprise and maps to EIO, the catch-all for corrupt
// structures and short positioned I/O.
func (fs *fileSystem) errno(op string, err error) error {
	if err == nil {
		return nil
	}
	fs.logger.WithError(err).Debug(op)

	switch {
	case errors.Is(err, edfs.ErrNotExist):
		return syscall.ENOENT
	case errors.Is(err, edfs.ErrNotDir):
		return syscall.ENOTDIR
	case errors.Is(err, edfs.ErrIsDir):
		return syscall.EISDIR
	case errors.Is(err, edfs.ErrExist):
		return syscall.EEXIST
	case errors.Is(err, edfs.ErrNotEmpty):
		return syscall.ENOTEMPTY
	case errors.Is(err, edfs.ErrNoSpace):
		return syscall.ENOSPC
	case errors.Is(err, edfs.ErrTooBig):
		return syscall.EFBIG
	case errors.Is(err, edfs.ErrNameTooLong):
		// overlong names are a validation failure, not a name length limit
		// the caller can probe; see the operation contract
		return syscall.EINVAL
	case errors.Is(err, edfs.ErrInvalid):
		return syscall.EINVAL
	case errors.Is(err, edfs.ErrIO):
		return syscall.EIO
	}
	return syscall.EIO
}
