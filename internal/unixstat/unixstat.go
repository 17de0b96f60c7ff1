// Package unixstat centralizes the POSIX mode bits, errno values and
// statfs plumbing the rest of the tree needs, the way the teacher's unix
// package did, trimmed to what a tar-backed filesystem actually touches.
package unixstat

import (
	"os"

	"github.com/go-errors/errors"
	"golang.org/x/sys/unix"
)

const (
	S_IFMT   = unix.S_IFMT
	S_IFBLK  = unix.S_IFBLK
	S_IFCHR  = unix.S_IFCHR
	S_IFDIR  = unix.S_IFDIR
	S_IFIFO  = unix.S_IFIFO
	S_IFLNK  = unix.S_IFLNK
	S_IFREG  = unix.S_IFREG
	S_IFSOCK = unix.S_IFSOCK

	S_ISGID = unix.S_ISGID
	S_ISUID = unix.S_ISUID
	S_ISVTX = unix.S_ISVTX

	EACCES  = unix.EACCES
	EBADF   = unix.EBADF
	EBUSY   = unix.EBUSY
	EEXIST  = unix.EEXIST
	EINVAL  = unix.EINVAL
	EIO     = unix.EIO
	EISDIR  = unix.EISDIR
	ENAMETOOLONG = unix.ENAMETOOLONG
	ENOENT  = unix.ENOENT
	ENOSYS  = unix.ENOSYS
	ENOTDIR = unix.ENOTDIR
	ENOTEMPTY = unix.ENOTEMPTY
	ENOTSUP = unix.ENOTSUP
	ENOMEM  = unix.ENOMEM
	EROFS   = unix.EROFS
)

type Statfs_t = unix.Statfs_t
type Errno = unix.Errno

// Makedev packs major/minor the way GNU tar's CHR/BLK header fields do:
// rdev = (major << 8) | minor. Only 8-bit major/minor are supported; larger
// values are rejected with an error.
func Makedev(major, minor uint32) (uint32, error) {
	if major > 0xff {
		return 0, errors.New("major number too large")
	}
	if minor > 0xff {
		return 0, errors.New("minor number too large")
	}
	return major<<8 | minor, nil
}

// Major and Minor unpack the device numbers Makedev packed, the
// direction the tar header encoder needs when emitting a CHR/BLK record.
func Major(rdev uint32) uint32 { return rdev >> 8 }
func Minor(rdev uint32) uint32 { return rdev & 0xff }

func S_ISDIR(mode uint32) bool  { return mode&S_IFMT == S_IFDIR }
func S_ISREG(mode uint32) bool  { return mode&S_IFMT == S_IFREG }
func S_ISLNK(mode uint32) bool  { return mode&S_IFMT == S_IFLNK }
func S_ISBLK(mode uint32) bool  { return mode&S_IFMT == S_IFBLK }
func S_ISCHR(mode uint32) bool  { return mode&S_IFMT == S_IFCHR }
func S_ISFIFO(mode uint32) bool { return mode&S_IFMT == S_IFIFO }

func UnixToFileStatMode(unixMode uint32) os.FileMode {
	fsMode := os.FileMode(unixMode & 0777)
	switch unixMode & S_IFMT {
	case S_IFBLK:
		fsMode |= os.ModeDevice
	case S_IFCHR:
		fsMode |= os.ModeDevice | os.ModeCharDevice
	case S_IFDIR:
		fsMode |= os.ModeDir
	case S_IFIFO:
		fsMode |= os.ModeNamedPipe
	case S_IFLNK:
		fsMode |= os.ModeSymlink
	case S_IFREG:
		// nothing to do
	case S_IFSOCK:
		fsMode |= os.ModeSocket
	}
	if unixMode&S_ISGID != 0 {
		fsMode |= os.ModeSetgid
	}
	if unixMode&S_ISUID != 0 {
		fsMode |= os.ModeSetuid
	}
	if unixMode&S_ISVTX != 0 {
		fsMode |= os.ModeSticky
	}
	return fsMode
}

func FileStatToUnixMode(fsMode os.FileMode) uint32 {
	unixMode := uint32(fsMode & 0777)
	switch {
	case fsMode&os.ModeCharDevice != 0:
		unixMode |= S_IFCHR
	case fsMode&os.ModeDevice != 0:
		unixMode |= S_IFBLK
	case fsMode&os.ModeDir != 0:
		unixMode |= S_IFDIR
	case fsMode&os.ModeNamedPipe != 0:
		unixMode |= S_IFIFO
	case fsMode&os.ModeSymlink != 0:
		unixMode |= S_IFLNK
	case fsMode&os.ModeSocket != 0:
		unixMode |= S_IFSOCK
	default:
		unixMode |= S_IFREG
	}
	if fsMode&os.ModeSetgid != 0 {
		unixMode |= S_ISGID
	}
	if fsMode&os.ModeSetuid != 0 {
		unixMode |= S_ISUID
	}
	if fsMode&os.ModeSticky != 0 {
		unixMode |= S_ISVTX
	}
	return unixMode
}

// TestAccess mirrors the teacher's permission check: owner bits if the
// request's uid matches, group bits if the gid matches, else other bits.
func TestAccess(isOwner, isGroup bool, mode, mask uint32) bool {
	var modeEffective uint32
	switch {
	case isOwner:
		modeEffective = (mode >> 6) & 07
	case isGroup:
		modeEffective = (mode >> 3) & 07
	default:
		modeEffective = mode & 07
	}
	return mask&modeEffective == mask
}

// RetrySyscallE retries a syscall-shaped call across EINTR, the way the
// teacher's unix package wraps every blocking syscall.
func RetrySyscallE(callSyscallE func() error) error {
	for {
		err := callSyscallE()
		if err == unix.EINTR {
			continue
		}
		if err == nil || err == Errno(0) {
			return nil
		}
		return errors.New(err)
	}
}

func Statfs(path string, buf *Statfs_t) error {
	return RetrySyscallE(func() error {
		return unix.Statfs(path, buf)
	})
}
