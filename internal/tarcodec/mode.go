package tarcodec

import "github.com/archfs/tarfs/internal/unixstat"

// ModeFromTypeflag augments the permission bits from a header with the
// S_IFMT bits implied by its typeflag, the way §4.1's "Header→stat"
// conversion does. Hardlink entries (TypeLink) come back as S_IFREG: a
// hardlink has no type of its own, it aliases whatever its target is, and
// regular files are the only target a GNU archive records TypeLink against.
func ModeFromTypeflag(permBits uint32, typeflag byte) uint32 {
	switch typeflag {
	case TypeDir:
		return permBits | unixstat.S_IFDIR
	case TypeSymlink:
		return permBits | unixstat.S_IFLNK
	case TypeChar:
		return permBits | unixstat.S_IFCHR
	case TypeBlock:
		return permBits | unixstat.S_IFBLK
	case TypeFifo:
		return permBits | unixstat.S_IFIFO
	case TypeLink, TypeRegular, TypeRegularA, TypeContig:
		return permBits | unixstat.S_IFREG
	default:
		return permBits | unixstat.S_IFREG
	}
}

// TypeflagFromMode picks the typeflag byte a stat's mode implies, the
// inverse used by the "Stat→header" direction.
func TypeflagFromMode(mode uint32) byte {
	switch {
	case unixstat.S_ISDIR(mode):
		return TypeDir
	case unixstat.S_ISLNK(mode):
		return TypeSymlink
	case unixstat.S_ISCHR(mode):
		return TypeChar
	case unixstat.S_ISBLK(mode):
		return TypeBlock
	case unixstat.S_ISFIFO(mode):
		return TypeFifo
	default:
		return TypeRegular
	}
}
