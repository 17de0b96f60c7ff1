package fusefs

import (
	"encoding/binary"

	"github.com/archfs/tarfs/internal/unixstat"
)

// direntAlign rounds up to the next 8-byte boundary, the alignment
// FUSE_DIRENT_ALIGN requires of each packed struct fuse_dirent entry.
func direntAlign(x int) int { return (x + 7) &^ 7 }

// addDirEntry packs one raw fuse_dirent record (inode, offset, name
// length, d_type, name, padding) into buf, returning its padded length or
// 0 if buf is too small to hold it (the caller then stops, leaving the
// kernel to re-request starting at this entry's offset).
func addDirEntry(buf []byte, name string, inodeId uint64, offset uint64, inodeMode uint32) int {
	entryBaseLen := 24 + len(name)
	entryPadLen := direntAlign(entryBaseLen)
	if len(buf) < entryPadLen {
		return 0
	}

	binary.NativeEndian.PutUint64(buf[0:], inodeId)
	binary.NativeEndian.PutUint64(buf[8:], offset)
	binary.NativeEndian.PutUint32(buf[16:], uint32(len(name)))
	binary.NativeEndian.PutUint32(buf[20:], (inodeMode&unixstat.S_IFMT)>>12)

	copy(buf[24:], name)
	for i := entryBaseLen; i < entryPadLen; i++ {
		buf[i] = 0
	}
	return entryPadLen
}
