package tarcodec

import (
	"fmt"
	"strconv"
	"strings"
)

// parseOctal decodes a space/NUL-padded octal numeric field. Per §4.1, a
// field containing nothing but spaces (and no digits at all) is invalid and
// reports (-1, false).
func parseOctal(field []byte) (value int64, ok bool) {
	s := strings.Trim(string(field), " \x00")
	if s == "" {
		return -1, false
	}
	v, err := strconv.ParseInt(s, 8, 64)
	if err != nil {
		return -1, false
	}
	return v, true
}

// formatOctal renders v as a zero-padded octal field occupying all but the
// final byte of field, with a trailing NUL (widths from §4.1:
// mode/uid/gid/devmajor/devminor = 7 digits, size/times = 11 digits).
func formatOctal(field []byte, v int64) {
	digits := len(field) - 1
	s := fmt.Sprintf("%0*o", digits, v)
	if len(s) > digits {
		s = s[len(s)-digits:]
	}
	copy(field, []byte(s))
	field[len(field)-1] = 0
}

// writeChecksumField renders the classic 8-byte checksum field: six octal
// digits, a NUL, then a trailing space.
func writeChecksumField(field []byte, v int64) {
	s := fmt.Sprintf("%06o", v)
	copy(field, []byte(s))
	field[6] = 0
	field[7] = ' '
}
