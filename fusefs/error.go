package fusefs

import (
	"bazil.org/fuse"

	"github.com/archfs/tarfs/internal/unixstat"
	"github.com/archfs/tarfs/tarfs"
)

// FuseError is the errno bazil.org/fuse reports back to the kernel for a
// failed request, carrying the original error for logging.
type FuseError struct {
	source error
	errno  unixstat.Errno
}

func (err FuseError) Error() string { return err.source.Error() }

func (err FuseError) Errno() fuse.Errno { return fuse.Errno(err.errno) }

// kindErrno maps §7's error kinds to the errno a fuse client actually
// sees, the one part of the kind that is host-specific enough it doesn't
// belong in package tarfs itself.
func kindErrno(kind tarfs.ErrKind) unixstat.Errno {
	switch kind {
	case tarfs.ErrOutOfMemory:
		return unixstat.ENOMEM
	case tarfs.ErrIO:
		return unixstat.EIO
	case tarfs.ErrReadOnlyFS:
		return unixstat.EROFS
	case tarfs.ErrNoSuchEntry:
		return unixstat.ENOENT
	case tarfs.ErrExists:
		return unixstat.EEXIST
	case tarfs.ErrNotEmpty:
		return unixstat.ENOTEMPTY
	case tarfs.ErrBusy:
		return unixstat.EBUSY
	case tarfs.ErrIsDir:
		return unixstat.EISDIR
	case tarfs.ErrNotDir:
		return unixstat.ENOTDIR
	case tarfs.ErrBadFormat:
		return unixstat.EIO
	case tarfs.ErrInvalidArgument:
		return unixstat.EINVAL
	case tarfs.ErrNotSupported:
		return unixstat.ENOSYS
	case tarfs.ErrNameTooLong:
		return unixstat.ENAMETOOLONG
	default:
		return unixstat.EIO
	}
}

// WrapIOError turns any error package tarfs returns into a FuseError the
// request dispatch loop can hand back to the kernel.
func WrapIOError(err error) FuseError {
	if fe, ok := err.(FuseError); ok {
		return fe
	}
	return FuseError{source: err, errno: kindErrno(tarfs.KindOf(err))}
}
