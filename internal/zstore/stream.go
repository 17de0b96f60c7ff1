package zstore

import (
	"compress/bzip2"
	"io"

	bzip2w "github.com/dsnet/compress/bzip2"
	"github.com/go-errors/errors"
	"github.com/klauspost/compress/pgzip"
)

// Error kinds a codec failure maps to, per §4.5's error mapping table.
var (
	ErrOutOfMemory     = errors.New("zstore: out of memory")
	ErrBadFormat       = errors.New("zstore: bad format")
	ErrIO              = errors.New("zstore: io error")
	ErrInvalidArgument = errors.New("zstore: invalid argument")
)

// mapCodecError classifies an error surfaced by a decoder or encoder: a
// truncated stream or a bad gzip header becomes bad-format, and a gzip
// checksum mismatch or any other error becomes io-error. It never returns
// ErrOutOfMemory or ErrInvalidArgument. Buffer-full never reaches here (next_in/next_out equivalents are always
// kept current by io.CopyN/io.ReadFull's own bookkeeping), so there is no
// case for it: reaching one would be the assertion failure §4.5 describes.
func mapCodecError(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	switch err {
	case io.EOF, io.ErrUnexpectedEOF:
		return errors.WrapPrefix(ErrBadFormat, "truncated "+kind.String()+" stream", 0)
	}
	if kind == KindGzip && err == pgzip.ErrChecksum {
		return errors.WrapPrefix(ErrIO, "gzip checksum mismatch", 0)
	}
	if kind == KindGzip && err == pgzip.ErrHeader {
		return errors.WrapPrefix(ErrBadFormat, "gzip header", 0)
	}
	return errors.WrapPrefix(ErrIO, kind.String(), 0)
}

func newDecoder(kind Kind, r io.Reader) (io.Reader, error) {
	switch kind {
	case KindGzip:
		zr, err := pgzip.NewReader(r)
		if err != nil {
			return nil, mapCodecError(kind, err)
		}
		return zr, nil
	case KindBzip2:
		return bzip2.NewReader(r), nil
	default:
		return r, nil
	}
}

func closeDecoder(r io.Reader) {
	if c, ok := r.(io.Closer); ok {
		c.Close()
	}
}

func newEncoder(kind Kind, w io.Writer) (io.WriteCloser, error) {
	switch kind {
	case KindGzip:
		return pgzip.NewWriter(w), nil
	case KindBzip2:
		bw, err := bzip2w.NewWriter(w, nil)
		if err != nil {
			return nil, mapCodecError(kind, err)
		}
		return bw, nil
	default:
		return nopWriteCloser{w}, nil
	}
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// readStreamState mirrors §4.5's per-stream-half state machine:
// idle -> running on first use, running -> running across forward seeks
// and resets, running -> eof once the underlying decoder is exhausted.
type readStreamState int

const (
	streamIdle readStreamState = iota
	streamRunning
	streamEOF
)

// decodeStream is the forward-only decompression half of the store. It
// emulates random access by discarding (or, in readAt, copying) bytes
// until the logical position reaches the target, and by recreating the
// underlying decoder from the start of the backing bytes whenever asked
// to seek backward. Backward seeks are the caller's responsibility to
// forbid while a write session is live (§4.5); decodeStream itself will
// happily reset.
type decodeStream struct {
	kind        Kind
	backing     Backing
	backingSize int64

	state readStreamState
	pos   int64
	dec   io.Reader
}

func (d *decodeStream) reset() error {
	if d.dec != nil {
		closeDecoder(d.dec)
	}
	sr := io.NewSectionReader(d.backing, 0, d.backingSize)
	dec, err := newDecoder(d.kind, sr)
	if err != nil {
		return err
	}
	d.dec = dec
	d.pos = 0
	d.state = streamRunning
	return nil
}

func (d *decodeStream) seekTo(off int64) error {
	if d.state == streamIdle || off < d.pos {
		if err := d.reset(); err != nil {
			return err
		}
	}
	if off == d.pos {
		return nil
	}
	n, err := io.CopyN(io.Discard, d.dec, off-d.pos)
	d.pos += n
	if err != nil {
		if err == io.EOF {
			d.state = streamEOF
		}
		return mapCodecError(d.kind, err)
	}
	return nil
}

// readAt seeks (forward, or by reset-and-reseek backward) to off and
// reads len(dst) bytes into dst, advancing the logical position past
// them.
func (d *decodeStream) readAt(dst []byte, off int64) error {
	if len(dst) == 0 {
		return nil
	}
	if err := d.seekTo(off); err != nil {
		return err
	}
	n, err := io.ReadFull(d.dec, dst)
	d.pos += int64(n)
	if err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			d.state = streamEOF
		}
		return mapCodecError(d.kind, err)
	}
	return nil
}

// drainSize decodes the whole stream once, discarding output, to learn
// the uncompressed length. Used only when a store is first opened over a
// compressed backing file (§4.5: "the first time the store is opened,
// traverse the full compressed stream to discover the uncompressed
// size").
func (d *decodeStream) drainSize() (int64, error) {
	if err := d.reset(); err != nil {
		return 0, err
	}
	defer func() {
		closeDecoder(d.dec)
		d.dec = nil
		d.state = streamIdle
	}()

	var total int64
	buf := make([]byte, 32*1024)
	for {
		n, err := d.dec.Read(buf)
		total += int64(n)
		if err == io.EOF {
			return total, nil
		}
		if err != nil {
			return 0, mapCodecError(d.kind, err)
		}
	}
}
