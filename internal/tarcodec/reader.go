package tarcodec

import (
	"io"

	"github.com/go-errors/errors"
)

// ErrBadFormat is returned when the archive stream fails structurally (a
// bad checksum on the first record, or repeated bad checksums) rather than
// simply ending; a truncated header record is reported as io.EOF.
var ErrBadFormat = errors.New("tarcodec: bad archive format")

// Entry is one resolved tar entry: a Header plus the byte offset (from the
// start of the stream the Reader was built on) where its payload begins.
// Offset points at the payload, one record past the header itself, matching
// the item model's convention in §3 ("offset... points to the payload
// start").
type Entry struct {
	Header  *Header
	Offset  int64
}

// Reader streams tar records, resolving L/K long-name extensions and
// skipping each entry's payload bytes (callers that need payload content
// read it themselves from the backing store at Entry.Offset; the ingest
// pass only needs structure, not bytes, since content stays cached lazily
// per §4.3).
type Reader struct {
	r      io.Reader
	offset int64

	recordsRead  int
	badChecksums int

	// Logf receives warnings for recoverable conditions (bad checksum
	// skipped, inconsistent archive). Defaults to a no-op.
	Logf func(format string, args ...any)
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: r, Logf: func(string, ...any) {}}
}

// Offset returns the number of bytes consumed from the underlying stream so
// far.
func (tr *Reader) Offset() int64 { return tr.offset }

func (tr *Reader) readRecord() ([]byte, error) {
	buf := make([]byte, RecordSize)
	n, err := io.ReadFull(tr.r, buf)
	tr.offset += int64(n)
	if err == io.ErrUnexpectedEOF || err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		return nil, err
	}
	tr.recordsRead++
	return buf, nil
}

func (tr *Reader) discard(n int64) error {
	copied, err := io.CopyN(io.Discard, tr.r, n)
	tr.offset += copied
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}

// payloadRecords returns the number of 512-byte records a payload of size
// bytes occupies. Per the resolved Open Question, this is uniformly
// ceil(size/RecordSize); the alternate formula seen once in the original
// source looks like the over-read bug the spec authors suspected.
func payloadRecords(size int64) int64 {
	if size <= 0 {
		return 0
	}
	return (size + RecordSize - 1) / RecordSize
}

// PayloadRecords exports payloadRecords for the tarfs engine's sync pass.
func PayloadRecords(size int64) int64 { return payloadRecords(size) }

// Next reads and resolves the next tar entry, returning io.EOF once the
// archive's end marker is reached (one or two all-zero records).
func (tr *Reader) Next() (*Entry, error) {
	var pendingName, pendingLink string
	haveLongName, haveLongLink := false, false

	for {
		header, raw, err := tr.nextRawHeader()
		if err != nil {
			return nil, err
		}

		if header.Typeflag == TypeLongName || header.Typeflag == TypeLongLink {
			payload, err := tr.readPayload(header.Size)
			if err != nil {
				return nil, err
			}
			name := nullTerminated(payload)
			if header.Typeflag == TypeLongName {
				pendingName, haveLongName = name, true
			} else {
				pendingLink, haveLongLink = name, true
			}
			_ = raw
			continue
		}

		if haveLongName {
			header.Name = pendingName
		}
		if haveLongLink {
			header.Linkname = pendingLink
		}

		payloadOffset := tr.offset
		if err := tr.discard(payloadRecords(header.Size) * RecordSize); err != nil {
			return nil, err
		}

		return &Entry{Header: header, Offset: payloadOffset}, nil
	}
}

// readPayload reads and returns the size bytes of a payload (used only for
// L/K extension bodies, which must be interpreted immediately), discarding
// the record-size rounding padding.
func (tr *Reader) readPayload(size int64) ([]byte, error) {
	records := payloadRecords(size)
	buf := make([]byte, records*RecordSize)
	n, err := io.ReadFull(tr.r, buf)
	tr.offset += int64(n)
	if err != nil {
		return nil, io.ErrUnexpectedEOF
	}
	if size < int64(len(buf)) {
		return buf[:size], nil
	}
	return buf, nil
}

// nextRawHeader reads one header record, handling the EOF-marker and
// bad-checksum rules of §4.1. It never interprets L/K itself; Next does.
func (tr *Reader) nextRawHeader() (*Header, *rawRecord, error) {
	zeroStreak := 0
	for {
		buf, err := tr.readRecord()
		if err != nil {
			if err == io.EOF && zeroStreak > 0 {
				return nil, nil, io.EOF
			}
			return nil, nil, err
		}

		if isZeroBlock(buf) {
			zeroStreak++
			if zeroStreak >= 2 {
				return nil, nil, io.EOF
			}
			continue
		}
		if zeroStreak == 1 {
			tr.Logf("inconsistent archive: non-empty record follows a lone end-of-archive marker")
			zeroStreak = 0
		}

		raw, err := decodeRaw(buf)
		if err != nil {
			return nil, nil, err
		}

		storedChecksum, ok := parseOctal(raw.chksum[:])
		unsignedSum, signedSum := checksum(buf)
		if ok && (storedChecksum == unsignedSum || storedChecksum == signedSum) {
			tr.badChecksums = 0
			return decodeHeader(raw), raw, nil
		}

		tr.badChecksums++
		if tr.recordsRead <= 1 {
			return nil, nil, errors.WrapPrefix(ErrBadFormat, "bad checksum on first record", 0)
		}
		if tr.badChecksums >= 2 {
			return nil, nil, errors.WrapPrefix(ErrBadFormat, "repeated bad checksums", 0)
		}

		tr.Logf("bad checksum at offset %d, skipping header's declared payload", tr.offset-RecordSize)
		// Best-effort: try to skip past whatever payload this bad header
		// claims, using whatever parses out of its size field.
		size, ok := parseOctal(raw.size[:])
		if !ok || size < 0 {
			size = 0
		}
		if err := tr.discard(payloadRecords(size) * RecordSize); err != nil {
			return nil, nil, err
		}
	}
}
