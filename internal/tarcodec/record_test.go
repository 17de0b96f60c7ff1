package tarcodec

import (
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderRoundTrip(t *testing.T) {
	h := &Header{
		Name:     "a/b.txt",
		Typeflag: TypeRegular,
		Mode:     0644,
		Uid:      1000,
		Gid:      1000,
		Uname:    "alice",
		Gname:    "alice",
		Size:     14,
		Mtime:    time.Unix(1700000000, 0).UTC(),
	}

	buf := EmitHeader(h)
	require.Len(t, buf, RecordSize)

	raw, err := decodeRaw(buf)
	require.NoError(t, err)

	got := decodeHeader(raw)
	assert.Equal(t, h.Name, got.Name)
	assert.Equal(t, h.Mode, got.Mode)
	assert.Equal(t, int64(1000), int64(got.Uid))
	assert.Equal(t, h.Size, got.Size)
	assert.True(t, got.HasUstarMagic)

	storedChecksum, ok := parseOctal(raw.chksum[:])
	require.True(t, ok)
	unsignedSum, signedSum := checksum(buf)
	assert.True(t, storedChecksum == unsignedSum || storedChecksum == signedSum)
}

func TestReaderSkipsPayloadAndTracksOffset(t *testing.T) {
	h := &Header{Name: "f", Typeflag: TypeRegular, Mode: 0644, Size: 5}
	header := EmitHeader(h)
	payload := PadPayload([]byte("hello"))

	var buf bytes.Buffer
	buf.Write(header)
	buf.Write(payload)
	buf.Write(EOFRecord())
	buf.Write(EOFRecord())

	tr := NewReader(&buf)
	entry, err := tr.Next()
	require.NoError(t, err)
	assert.Equal(t, "f", entry.Header.Name)
	assert.Equal(t, int64(RecordSize), entry.Offset)

	_, err = tr.Next()
	assert.ErrorIs(t, err, io.EOF)
}
