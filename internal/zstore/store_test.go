package zstore

import (
	"bytes"
	"compress/gzip"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memBacking is a growable in-memory Backing, standing in for the
// mounted archive's *os.File in tests.
type memBacking struct {
	data []byte
}

func (b *memBacking) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(b.data)) {
		return 0, nil
	}
	n := copy(p, b.data[off:])
	return n, nil
}

func (b *memBacking) WriteAt(p []byte, off int64) (int, error) {
	end := off + int64(len(p))
	if end > int64(len(b.data)) {
		grown := make([]byte, end)
		copy(grown, b.data)
		b.data = grown
	}
	copy(b.data[off:end], p)
	return len(p), nil
}

func (b *memBacking) Truncate(size int64) error {
	if size <= int64(len(b.data)) {
		b.data = b.data[:size]
		return nil
	}
	grown := make([]byte, size)
	copy(grown, b.data)
	b.data = grown
	return nil
}

func gzipBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	_, err := w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestPlainStoreReadWriteRoundTrip(t *testing.T) {
	backing := &memBacking{data: []byte("hello, archive world")}
	s, err := Open(backing, KindPlain, int64(len(backing.data)))
	require.NoError(t, err)

	got, err := s.Read(7, 7)
	require.NoError(t, err)
	assert.Equal(t, "archive", string(got))

	n, err := s.Write(7, []byte("TARBALL"))
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	got, err = s.Read(0, 21)
	require.NoError(t, err)
	assert.Equal(t, "hello, TARBALL world", string(got))

	require.NoError(t, s.Sync())
	assert.Equal(t, "hello, TARBALL world", string(backing.data))
}

func TestPlainStoreGrowAndShrink(t *testing.T) {
	backing := &memBacking{data: []byte("abc")}
	s, err := Open(backing, KindPlain, 3)
	require.NoError(t, err)

	_, err = s.Write(5, []byte("Z"))
	require.NoError(t, err)
	assert.Equal(t, int64(6), s.Size())

	require.NoError(t, s.SetSize(2))
	assert.Equal(t, int64(2), s.Size())

	require.NoError(t, s.Sync())
	assert.Equal(t, int64(2), int64(len(backing.data)))
}

func TestGzipStoreDiscoversSizeAndReadsThroughDecoder(t *testing.T) {
	payload := bytes.Repeat([]byte("tarball-payload-bytes "), 1000)
	backing := &memBacking{data: gzipBytes(t, payload)}

	s, err := Open(backing, KindGzip, int64(len(backing.data)))
	require.NoError(t, err)
	assert.Equal(t, int64(len(payload)), s.Size())

	got, err := s.Read(100, 20)
	require.NoError(t, err)
	assert.Equal(t, payload[100:120], got)

	// backward seek relative to the shared decoder's position forces a reset
	got, err = s.Read(0, 10)
	require.NoError(t, err)
	assert.Equal(t, payload[0:10], got)
}

func TestGzipStoreWriteThenSyncProducesDecodableStream(t *testing.T) {
	payload := bytes.Repeat([]byte("x"), 4000)
	backing := &memBacking{data: gzipBytes(t, payload)}

	s, err := Open(backing, KindGzip, int64(len(backing.data)))
	require.NoError(t, err)

	_, err = s.Write(10, []byte("MODIFIED"))
	require.NoError(t, err)
	assert.True(t, s.Dirty())

	require.NoError(t, s.Sync())
	assert.False(t, s.Dirty())

	zr, err := gzip.NewReader(bytes.NewReader(backing.data))
	require.NoError(t, err)
	roundTripped, err := io.ReadAll(zr)
	require.NoError(t, err)

	want := append([]byte(nil), payload...)
	copy(want[10:], []byte("MODIFIED"))
	assert.Equal(t, want, roundTripped)
}
