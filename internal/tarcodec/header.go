package tarcodec

import "time"

// decodeHeader turns a raw on-wire record into a Header. It does not
// resolve L/K long-name extensions or uname/gname-to-uid/gid lookups —
// those need state (a pending long name, a name oracle) that the codec
// layer doesn't own; package tarfs's ingest loop drives that.
func decodeHeader(r *rawRecord) *Header {
	mode, _ := parseOctal(r.mode[:])
	uid, _ := parseOctal(r.uid[:])
	gid, _ := parseOctal(r.gid[:])
	size, _ := parseOctal(r.size[:])
	mtime, _ := parseOctal(r.mtime[:])
	devmajor, _ := parseOctal(r.devmajor[:])
	devminor, _ := parseOctal(r.devminor[:])

	name := nullTerminated(r.name[:])
	if len(r.prefix) > 0 && r.prefix[0] != 0 {
		prefix := nullTerminated(r.prefix[:])
		if prefix != "" {
			name = prefix + "/" + name
		}
	}

	typeflag := r.typeflag[0]
	if typeflag == 0 {
		typeflag = TypeRegular
	}
	if len(name) > 0 && name[len(name)-1] == '/' && typeflag == TypeRegular {
		typeflag = TypeDir
	}

	return &Header{
		Name:          name,
		Linkname:      nullTerminated(r.linkname[:]),
		Typeflag:      typeflag,
		Mode:          uint32(mode) & 07777,
		Uid:           uint32(uid),
		Gid:           uint32(gid),
		Uname:         nullTerminated(r.uname[:]),
		Gname:         nullTerminated(r.gname[:]),
		Size:          size,
		Mtime:         time.Unix(mtime, 0).UTC(),
		Devmajor:      uint32(devmajor),
		Devminor:      uint32(devminor),
		HasUstarMagic: string(r.magic[:5]) == "ustar",
	}
}

// encodeHeader renders h as a raw on-wire record. Checksum is computed and
// written last, over the fully-populated record with the checksum field
// blanked, as §4.1 requires.
func encodeHeader(h *Header) []byte {
	var r rawRecord

	name := h.Name
	if len(name) > 100 {
		name = name[:100]
	}
	copy(r.name[:], name)

	formatOctal(r.mode[:], int64(h.Mode&07777))
	formatOctal(r.uid[:], int64(h.Uid))
	formatOctal(r.gid[:], int64(h.Gid))
	formatOctal(r.size[:], h.Size)
	formatOctal(r.mtime[:], h.Mtime.Unix())

	r.typeflag[0] = h.Typeflag

	linkname := h.Linkname
	if len(linkname) > 100 {
		linkname = linkname[:100]
	}
	copy(r.linkname[:], linkname)

	copy(r.magic[:], ustarMagic)
	copy(r.uname[:], h.Uname)
	copy(r.gname[:], h.Gname)

	formatOctal(r.devmajor[:], int64(h.Devmajor))
	formatOctal(r.devminor[:], int64(h.Devminor))

	for i := range r.chksum {
		r.chksum[i] = ' '
	}
	buf := r.encode()
	unsignedSum, _ := checksum(buf)
	writeChecksumField(r.chksum[:], unsignedSum)

	return r.encode()
}
