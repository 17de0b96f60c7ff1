package filecache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	data []byte
}

func (s *fakeSource) ReadAt(off int64, length int) ([]byte, error) {
	out := make([]byte, length)
	copy(out, s.data[off:])
	return out, nil
}

func TestReadFetchesFromSourceWithoutMaterializing(t *testing.T) {
	src := &fakeSource{data: []byte("hello world, this is the archive payload")}
	fc := New(int64(len(src.data)))

	got, err := fc.Read(0, 5, src)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got)
	assert.True(t, fc.IsSynced(), "a pure read must not materialize blocks")
}

func TestWriteMaterializesBlockAndMergesWithSource(t *testing.T) {
	src := &fakeSource{data: []byte("0123456789ABCDEF")}
	fc := New(int64(len(src.data)))

	n, err := fc.Write(2, []byte("XY"), src)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.False(t, fc.IsSynced())

	got, err := fc.Read(0, 6, src)
	require.NoError(t, err)
	assert.Equal(t, []byte("01XY45"), got)
}

func TestWritePastEndGrowsFile(t *testing.T) {
	fc := New(0)
	n, err := fc.Write(0, []byte("abc"), nil)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, int64(3), fc.Size())
}

func TestSetSizeShrinkTruncatesReads(t *testing.T) {
	src := &fakeSource{data: []byte("0123456789")}
	fc := New(10)
	require.NoError(t, fc.SetSize(4))

	got, err := fc.Read(0, 10, src)
	require.NoError(t, err)
	assert.Equal(t, []byte("0123"), got)
}

func TestCacheAheadMaterializesUnreadSourceBytes(t *testing.T) {
	src := &fakeSource{data: []byte("0123456789ABCDEF")}
	fc := New(int64(len(src.data)))

	require.NoError(t, fc.CacheAhead(fc.Size(), src))
	assert.False(t, fc.IsSynced())

	got, err := fc.Read(0, int(fc.Size()), nil)
	require.NoError(t, err)
	assert.Equal(t, src.data, got)
}

func TestResetRebasesOrigSize(t *testing.T) {
	src := &fakeSource{data: []byte("0123456789")}
	fc := New(10)
	_, err := fc.Write(0, []byte("X"), src)
	require.NoError(t, err)

	fc.Reset()
	assert.True(t, fc.IsSynced())
	assert.Equal(t, int64(10), fc.Size())
}
