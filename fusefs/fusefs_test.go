package fusefs

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/archfs/tarfs/internal/fstree"
	"github.com/archfs/tarfs/internal/unixstat"
	"github.com/archfs/tarfs/internal/zstore"
	"github.com/archfs/tarfs/tarfs"
)

// openTestFS opens a fresh empty archive, the way filesystem_test.go in
// package tarfs does, so WrapIOError can be exercised against the real
// *FSError values Backend methods actually return instead of hand-built
// fakes.
func openTestFS(t *testing.T, opts tarfs.Options) *tarfs.Filesystem {
	t.Helper()
	opts.Kind = zstore.KindPlain
	opts.Create = true
	path := filepath.Join(t.TempDir(), "archive.tar")
	fs, err := tarfs.Open(path, opts, nil)
	require.NoError(t, err)
	t.Cleanup(func() { fs.GoAway() })
	return fs
}

func TestWrapIOErrorMapsKnownKinds(t *testing.T) {
	fs := openTestFS(t, tarfs.Options{})

	_, lookupErr := fs.Lookup(fs.Root(), "missing")
	require.Error(t, lookupErr)
	assert.Equal(t, unixstat.ENOENT, unixstat.Errno(WrapIOError(lookupErr).Errno()))

	_, readErr := fs.ReadNode(fs.Root(), 0, 1)
	require.Error(t, readErr)
	assert.Equal(t, unixstat.EISDIR, unixstat.Errno(WrapIOError(readErr).Errno()))

	roFS := openTestFS(t, tarfs.Options{ReadOnly: true})
	_, createErr := roFS.CreateNode(roFS.Root(), "x", fstree.Stat{Mode: unixstat.S_IFREG | 0644})
	require.Error(t, createErr)
	assert.Equal(t, unixstat.EROFS, unixstat.Errno(WrapIOError(createErr).Errno()))
}

func TestWrapIOErrorDefaultsUnknownErrorsToEIO(t *testing.T) {
	got := WrapIOError(assert.AnError)
	assert.Equal(t, unixstat.EIO, unixstat.Errno(got.Errno()))
}

func TestWrapIOErrorPassesThroughExistingFuseError(t *testing.T) {
	fe := FuseError{source: assert.AnError, errno: unixstat.EBUSY}
	got := WrapIOError(fe)
	assert.Equal(t, unixstat.EBUSY, unixstat.Errno(got.Errno()))
}

func TestAddDirEntryReturnsZeroWhenBufferTooSmall(t *testing.T) {
	buf := make([]byte, 4)
	n := addDirEntry(buf, "file.txt", 2, 1, unixstat.S_IFREG)
	assert.Equal(t, 0, n)
}

func TestAddDirEntryPadsToEightByteAlignment(t *testing.T) {
	buf := make([]byte, 64)
	n := addDirEntry(buf, "abc", 5, 1, unixstat.S_IFDIR)
	assert.Equal(t, 0, n%8)
	assert.True(t, n >= 24+len("abc"))
}

func TestDirentAlign(t *testing.T) {
	assert.Equal(t, 0, direntAlign(0))
	assert.Equal(t, 8, direntAlign(1))
	assert.Equal(t, 8, direntAlign(8))
	assert.Equal(t, 16, direntAlign(9))
}
