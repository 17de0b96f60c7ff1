package tarfs

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/archfs/tarfs/internal/fstree"
	"github.com/archfs/tarfs/internal/unixstat"
	"github.com/archfs/tarfs/internal/zstore"
)

func openEmpty(t *testing.T) (*Filesystem, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "archive.tar")
	fs, err := Open(path, Options{Kind: zstore.KindPlain, Create: true}, nil)
	require.NoError(t, err)
	return fs, path
}

func TestCreateWriteSyncReopenRoundTrip(t *testing.T) {
	fs, path := openEmpty(t)

	root := fs.Root()
	node, err := fs.CreateNode(root, "hello.txt", fstree.Stat{Mode: unixstat.S_IFREG | 0644})
	require.NoError(t, err)

	content := []byte("hello from the tar filesystem")
	n, err := fs.WriteNode(node, 0, content)
	require.NoError(t, err)
	assert.Equal(t, len(content), n)

	require.NoError(t, fs.SyncFS())
	require.NoError(t, fs.GoAway())

	reopened, err := Open(path, Options{Kind: zstore.KindPlain}, nil)
	require.NoError(t, err)
	defer reopened.GoAway()

	found, err := reopened.Lookup(reopened.Root(), "hello.txt")
	require.NoError(t, err)

	got, err := reopened.ReadNode(found, 0, len(content))
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestUnlinkRemovesEntryAcrossSync(t *testing.T) {
	fs, path := openEmpty(t)

	root := fs.Root()
	node, err := fs.CreateNode(root, "gone.txt", fstree.Stat{Mode: unixstat.S_IFREG | 0644})
	require.NoError(t, err)
	_, err = fs.WriteNode(node, 0, []byte("bye"))
	require.NoError(t, err)
	require.NoError(t, fs.SyncFS())

	require.NoError(t, fs.UnlinkNode(node))
	fs.FreeNode(node)
	require.NoError(t, fs.SyncFS())
	require.NoError(t, fs.GoAway())

	reopened, err := Open(path, Options{Kind: zstore.KindPlain}, nil)
	require.NoError(t, err)
	defer reopened.GoAway()

	_, err = reopened.Lookup(reopened.Root(), "gone.txt")
	assert.Error(t, err)
}

func TestReadOnlyRejectsMutation(t *testing.T) {
	_, path := openEmpty(t)

	fs, err := Open(path, Options{Kind: zstore.KindPlain, ReadOnly: true}, nil)
	require.NoError(t, err)
	defer fs.GoAway()

	_, err = fs.CreateNode(fs.Root(), "nope.txt", fstree.Stat{Mode: unixstat.S_IFREG | 0644})
	assert.Error(t, err)
}

func TestVolatileSyncIsNoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.tar")
	fs, err := Open(path, Options{Kind: zstore.KindPlain, Create: true, Volatile: true}, nil)
	require.NoError(t, err)

	node, err := fs.CreateNode(fs.Root(), "mem.txt", fstree.Stat{Mode: unixstat.S_IFREG | 0644})
	require.NoError(t, err)
	_, err = fs.WriteNode(node, 0, []byte("in memory only"))
	require.NoError(t, err)

	require.NoError(t, fs.SyncFS())
	require.NoError(t, fs.GoAway())

	reopened, err := Open(path, Options{Kind: zstore.KindPlain}, nil)
	require.NoError(t, err)
	defer reopened.GoAway()

	_, err = reopened.Lookup(reopened.Root(), "mem.txt")
	assert.Error(t, err, "a volatile mount must never persist back to the archive")
}
