// Package tarcodec implements §4.1 of the spec: parsing and emitting GNU
// tar's 512-byte records, including the checksum rules, octal field
// encoding and the L/K long-name extensions. It knows nothing about the
// in-memory node graph or the item list — those are built on top of it by
// package tarfs.
package tarcodec

import (
	"time"

	"github.com/go-errors/errors"
)

// RecordSize is the fixed size of one tar record, both for headers and for
// payload chunks.
const RecordSize = 512

// Typeflag values, as GNU tar (and ustar) encode them in the header's
// single typeflag byte.
const (
	TypeRegular  = '0'
	TypeRegularA = '\x00' // pre-POSIX archives sometimes leave this NUL
	TypeLink     = '1'    // hardlink
	TypeSymlink  = '2'
	TypeChar     = '3'
	TypeBlock    = '4'
	TypeDir      = '5'
	TypeFifo     = '6'
	TypeContig   = '7'
	TypeLongLink = 'K' // GNU extension: next header's linkname follows as payload
	TypeLongName = 'L' // GNU extension: next header's name follows as payload
)

const ustarMagic = "ustar  \x00"

// Header is the decoded form of one (possibly L/K-extended) tar entry.
// Name and Linkname have already had any long-name payload substituted in.
type Header struct {
	Name     string
	Linkname string
	Typeflag byte

	Mode uint32 // permission bits only (07777), no S_IFMT
	Uid  uint32
	Gid  uint32
	Uname string
	Gname string

	Size int64

	Mtime time.Time

	Devmajor uint32
	Devminor uint32

	// HasUstarMagic is true when the header's magic field starts with
	// "ustar" (GNU "ustar  \0" or POSIX "ustar\0"), in which case
	// uname/gname should be preferred over the numeric uid/gid per §4.1.
	HasUstarMagic bool
}

// rawRecord is the on-the-wire 512-byte layout. Field widths mirror the
// classic ustar/GNU layout exactly; prefix is folded into name on read and
// never populated on write. L/K long-name extensions are only understood
// on read; on write, names and linknames longer than 100 bytes are
// truncated to 100 bytes.
type rawRecord struct {
	name     [100]byte
	mode     [8]byte
	uid      [8]byte
	gid      [8]byte
	size     [12]byte
	mtime    [12]byte
	chksum   [8]byte
	typeflag [1]byte
	linkname [100]byte
	magic    [8]byte
	uname    [32]byte
	gname    [32]byte
	devmajor [8]byte
	devminor [8]byte
	prefix   [155]byte
	pad      [12]byte
}

func decodeRaw(buf []byte) (*rawRecord, error) {
	if len(buf) != RecordSize {
		return nil, errors.Errorf("tar record must be %d bytes, got %d", RecordSize, len(buf))
	}
	var r rawRecord
	pos := 0
	fields := [][]byte{
		r.name[:], r.mode[:], r.uid[:], r.gid[:], r.size[:], r.mtime[:],
		r.chksum[:], r.typeflag[:], r.linkname[:], r.magic[:], r.uname[:],
		r.gname[:], r.devmajor[:], r.devminor[:], r.prefix[:], r.pad[:],
	}
	for _, f := range fields {
		copy(f, buf[pos:pos+len(f)])
		pos += len(f)
	}
	return &r, nil
}

func (r *rawRecord) encode() []byte {
	buf := make([]byte, RecordSize)
	pos := 0
	fields := [][]byte{
		r.name[:], r.mode[:], r.uid[:], r.gid[:], r.size[:], r.mtime[:],
		r.chksum[:], r.typeflag[:], r.linkname[:], r.magic[:], r.uname[:],
		r.gname[:], r.devmajor[:], r.devminor[:], r.prefix[:], r.pad[:],
	}
	for _, f := range fields {
		copy(buf[pos:pos+len(f)], f)
		pos += len(f)
	}
	return buf
}

// isZeroBlock reports whether every byte in buf is zero, the condition the
// spec uses for the trailing EOF marker records.
func isZeroBlock(buf []byte) bool {
	for _, b := range buf {
		if b != 0 {
			return false
		}
	}
	return true
}

// checksum computes the header checksum the way §4.1 specifies: sum of all
// 512 bytes with the checksum field replaced by eight spaces. Returns both
// the unsigned interpretation (standard) and the signed interpretation
// (legacy compatibility, for archives written by tar implementations that
// treated header bytes as signed chars).
func checksum(buf []byte) (unsignedSum int64, signedSum int64) {
	tmp := make([]byte, RecordSize)
	copy(tmp, buf)
	for i := 148; i < 156; i++ {
		tmp[i] = ' '
	}
	for _, b := range tmp {
		unsignedSum += int64(b)
		signedSum += int64(int8(b))
	}
	return
}

func nullTerminated(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
